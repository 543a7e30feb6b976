package models

import "time"

// Currency is the balance an item is priced in
type Currency string

const (
	CurrencyGold Currency = "GOLD"
	CurrencyGems Currency = "GEMS"
)

// ItemType identifies which catalog an item belongs to
type ItemType string

const (
	ItemTypeSleeve    ItemType = "SLEEVE"
	ItemTypeBoard     ItemType = "BOARD"
	ItemTypeAvatar    ItemType = "AVATAR"
	ItemTypeFinisher  ItemType = "FINISHER"
	ItemTypeQuickChat ItemType = "QUICK_CHAT"
	ItemTypeItem      ItemType = "ITEM"
	ItemTypePack      ItemType = "PACK"
	ItemTypeGemBundle ItemType = "GEM_BUNDLE"
)

// Cosmetic reports whether items of this type can be equipped once unlocked
func (t ItemType) Cosmetic() bool {
	switch t {
	case ItemTypeSleeve, ItemTypeBoard, ItemTypeAvatar, ItemTypeFinisher:
		return true
	}
	return false
}

// CatalogItem is a purchasable entry of any catalog
type CatalogItem struct {
	ID           string   `yaml:"id" json:"id"`
	Name         string   `yaml:"name" json:"name"`
	Description  string   `yaml:"description,omitempty" json:"description,omitempty"`
	Type         ItemType `yaml:"type" json:"type"`
	Price        int64    `yaml:"price" json:"price"`
	Currency     Currency `yaml:"currency" json:"currency"`
	Style        string   `yaml:"style,omitempty" json:"style,omitempty"`
	AnimationKey string   `yaml:"animation_key,omitempty" json:"animation_key,omitempty"`
	Phrase       string   `yaml:"phrase,omitempty" json:"phrase,omitempty"`
	PhraseStyle  string   `yaml:"phrase_style,omitempty" json:"phrase_style,omitempty"`
	BundleID     string   `yaml:"bundle_id,omitempty" json:"bundle_id,omitempty"`
	AssetPath    string   `yaml:"asset_path,omitempty" json:"asset_path,omitempty"`
}

// ItemRef points into one of the catalogs
type ItemRef struct {
	Type ItemType `yaml:"type" json:"type" binding:"required"`
	ID   string   `yaml:"id" json:"id" binding:"required"`
}

// DealPack bundles several catalog items at a discount
type DealPack struct {
	ID              string    `yaml:"id" json:"id"`
	Name            string    `yaml:"name" json:"name"`
	Description     string    `yaml:"description" json:"description"`
	Items           []ItemRef `yaml:"items" json:"items"`
	OriginalPrice   int64     `yaml:"original_price" json:"original_price"`
	BundlePrice     int64     `yaml:"bundle_price" json:"bundle_price"`
	DiscountPercent int       `yaml:"discount_percent" json:"discount_percent"`
	Currency        Currency  `yaml:"currency" json:"currency"`
}

// GemBundle is a pure currency top-up
type GemBundle struct {
	ID       string   `yaml:"id" json:"id"`
	Name     string   `yaml:"name" json:"name"`
	Gems     int64    `yaml:"gems" json:"gems"`
	Price    int64    `yaml:"price" json:"price"`
	Currency Currency `yaml:"currency" json:"currency"`
}

// Emote is an avatar emote fetched from the backend
type Emote struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	TriggerCode string   `json:"trigger_code"`
	FilePath    string   `json:"file_path"`
	Price       int64    `json:"price"`
	Currency    Currency `json:"currency"`
}

// Finisher is a victory animation fetched from the backend
type Finisher struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	AnimationKey string   `json:"animation_key"`
	Price        int64    `json:"price"`
	Currency     Currency `json:"currency"`
}

// ChatPreset is a quick-chat phrase fetched from the backend
type ChatPreset struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Style    string   `json:"style"`
	Price    int64    `json:"price"`
	Currency Currency `json:"currency"`
	BundleID string   `json:"bundle_id,omitempty"`
}

// Inventory as stored on the profile. ActiveBoosters values are sign-encoded,
// see DecodeBoosters.
type Inventory struct {
	Items          map[string]int   `json:"items"`
	ActiveBoosters map[string]int64 `json:"active_boosters"`
}

// Profile is a read-only copy of the backend-owned player profile
type Profile struct {
	ID                string    `json:"id"`
	Username          string    `json:"username"`
	IsGuest           bool      `json:"is_guest"`
	Coins             int64     `json:"coins"`
	Gems              int64     `json:"gems"`
	UnlockedSleeves   []string  `json:"unlocked_sleeves"`
	UnlockedAvatars   []string  `json:"unlocked_avatars"`
	UnlockedBoards    []string  `json:"unlocked_boards"`
	UnlockedFinishers []string  `json:"unlocked_finishers"`
	UnlockedPhrases   []string  `json:"unlocked_phrases"`
	EquippedSleeve    string    `json:"equipped_sleeve"`
	EquippedBoard     string    `json:"equipped_board"`
	Avatar            string    `json:"avatar"`
	EquippedFinisher  string    `json:"equipped_finisher"`
	Inventory         Inventory `json:"inventory"`
	FetchedAt         time.Time `json:"fetched_at"`
}

// Owns reports whether the profile has unlocked the referenced item
func (p *Profile) Owns(ref ItemRef) bool {
	if p == nil {
		return false
	}
	switch ref.Type {
	case ItemTypeSleeve:
		return contains(p.UnlockedSleeves, ref.ID)
	case ItemTypeBoard:
		return contains(p.UnlockedBoards, ref.ID)
	case ItemTypeAvatar:
		return contains(p.UnlockedAvatars, ref.ID)
	case ItemTypeFinisher:
		return contains(p.UnlockedFinishers, ref.ID)
	case ItemTypeQuickChat:
		return contains(p.UnlockedPhrases, ref.ID)
	case ItemTypeItem:
		return p.Inventory.Items[ref.ID] > 0
	}
	return false
}

// Equipped reports whether the referenced cosmetic is currently in use
func (p *Profile) Equipped(ref ItemRef, animationKey string) bool {
	if p == nil {
		return false
	}
	switch ref.Type {
	case ItemTypeSleeve:
		return p.EquippedSleeve == ref.ID
	case ItemTypeBoard:
		return p.EquippedBoard == ref.ID
	case ItemTypeAvatar:
		return p.Avatar == ref.ID
	case ItemTypeFinisher:
		return animationKey != "" && p.EquippedFinisher == animationKey
	}
	return false
}

// Balance returns the balance held in the given currency
func (p *Profile) Balance(c Currency) int64 {
	if p == nil {
		return 0
	}
	if c == CurrencyGems {
		return p.Gems
	}
	return p.Coins
}

func contains(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}

// ProfileSettings is a partial profile update. Nil fields are left untouched.
type ProfileSettings struct {
	EquippedSleeve *string        `json:"equipped_sleeve,omitempty"`
	EquippedBoard  *string        `json:"equipped_board,omitempty"`
	Avatar         *string        `json:"avatar,omitempty"`
	InventoryItems map[string]int `json:"inventory_items,omitempty"`
}

// BuyItemRequest carries the arguments of the buy_item RPC
type BuyItemRequest struct {
	ProfileID string   `json:"profile_id"`
	Price     int64    `json:"price"`
	ItemID    string   `json:"item_id"`
	Type      ItemType `json:"type"`
	IsGuest   bool     `json:"is_guest"`
	Currency  Currency `json:"currency"`
}

// GemTransactionResult is returned by process_gem_transaction
type GemTransactionResult struct {
	Success       bool   `json:"success"`
	NewGemBalance *int64 `json:"new_gem_balance,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Reward types returned by claim_ad_reward_gems
const (
	RewardTypeGems  = "gems"
	RewardTypeCoins = "coins"
)

// AdClaimResult is returned by claim_ad_reward_gems
type AdClaimResult struct {
	Success           bool   `json:"success"`
	WeeklyGems        *int64 `json:"weekly_gems,omitempty"`
	HitCap            bool   `json:"hit_cap"`
	RewardType        string `json:"reward_type"`
	RewardAmount      int64  `json:"reward_amount"`
	NewGemBalance     *int64 `json:"new_gem_balance,omitempty"`
	NewCoinBalance    *int64 `json:"new_coin_balance,omitempty"`
	CooldownRemaining *int64 `json:"cooldown_remaining,omitempty"`
	Error             string `json:"error,omitempty"`
}

// WeeklyRewardStatus tracks the rolling weekly ad gem allowance
type WeeklyRewardStatus struct {
	WeeklyGemTotal int64     `json:"weekly_gem_total" db:"weekly_gem_total"`
	LastResetDate  time.Time `json:"last_reset_date" db:"last_reset_date"`
}
