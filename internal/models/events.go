package models

import "time"

// Event types
const (
	EventTypePurchaseCompleted      = "PURCHASE_COMPLETED"
	EventTypePurchaseFailed         = "PURCHASE_FAILED"
	EventTypePurchasePartialFailure = "PURCHASE_PARTIAL_FAILURE"
	EventTypeAdRewardClaimed        = "AD_REWARD_CLAIMED"
	EventTypeBoosterActivated       = "BOOSTER_ACTIVATED"
	EventTypeProfileChanged         = "PROFILE_CHANGED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// PurchaseCompletedEvent published when a purchase or equip succeeds
type PurchaseCompletedEvent struct {
	BaseEvent
	ProfileID string   `json:"profile_id"`
	ItemID    string   `json:"item_id"`
	ItemType  ItemType `json:"item_type"`
	Price     int64    `json:"price"`
	Currency  Currency `json:"currency"`
	Equip     bool     `json:"equip"`
	Voucher   bool     `json:"voucher"`
}

// PurchaseFailedEvent published when a purchase fails without side effects left behind
type PurchaseFailedEvent struct {
	BaseEvent
	ProfileID string   `json:"profile_id"`
	ItemID    string   `json:"item_id"`
	ItemType  ItemType `json:"item_type"`
	Reason    string   `json:"reason"`
}

// PurchasePartialFailureEvent published when the first step of a two-step
// purchase committed and could not be reversed
type PurchasePartialFailureEvent struct {
	BaseEvent
	ProfileID   string   `json:"profile_id"`
	ItemID      string   `json:"item_id"`
	ItemType    ItemType `json:"item_type"`
	Step        string   `json:"step"`
	Compensated bool     `json:"compensated"`
	Reason      string   `json:"reason"`
}

// AdRewardClaimedEvent published after a successful ad reward claim
type AdRewardClaimedEvent struct {
	BaseEvent
	ProfileID  string `json:"profile_id"`
	Placement  string `json:"placement"`
	ViewID     string `json:"view_id"`
	RewardType string `json:"reward_type"`
	Amount     int64  `json:"amount"`
	WeeklyGems int64  `json:"weekly_gems"`
	HitCap     bool   `json:"hit_cap"`
}

// BoosterActivatedEvent published after a booster activation
type BoosterActivatedEvent struct {
	BaseEvent
	ProfileID string `json:"profile_id"`
	ItemID    string `json:"item_id"`
}

// ProfileChangedEvent is emitted by the backend when a profile row changes
type ProfileChangedEvent struct {
	BaseEvent
	ProfileID string `json:"profile_id"`
}
