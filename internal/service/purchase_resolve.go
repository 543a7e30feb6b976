package service

import (
	"context"
	"fmt"

	"thirteen-shop/internal/catalog"
	"thirteen-shop/internal/models"
)

// resolve turns a tapped catalog reference into a PendingPurchase priced
// against the given profile
func (c *PurchaseController) resolve(ctx context.Context, ref models.ItemRef, profile *models.Profile) (*PendingPurchase, error) {
	p := &PendingPurchase{Ref: ref, Action: ActionPurchase, SelectedAt: c.now()}

	switch ref.Type {
	case models.ItemTypeSleeve, models.ItemTypeBoard, models.ItemTypeItem:
		item, ok := c.catalog.Lookup(ref)
		if !ok {
			return nil, fmt.Errorf("%w: %s/%s", ErrUnknownItem, ref.Type, ref.ID)
		}
		p.Item = item

	case models.ItemTypeAvatar:
		emote, ok, err := c.refdata.Emote(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: avatar %s", ErrUnknownItem, ref.ID)
		}
		p.Item = models.CatalogItem{
			ID: emote.ID, Name: emote.Name, Type: ref.Type,
			Price: emote.Price, Currency: emote.Currency,
			Style: emote.TriggerCode, AssetPath: emote.FilePath,
		}

	case models.ItemTypeFinisher:
		f, ok, err := c.refdata.Finisher(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: finisher %s", ErrUnknownItem, ref.ID)
		}
		p.Item = models.CatalogItem{
			ID: f.ID, Name: f.Name, Type: ref.Type,
			Price: f.Price, Currency: f.Currency, AnimationKey: f.AnimationKey,
		}

	case models.ItemTypeQuickChat:
		preset, ok, err := c.refdata.ChatPreset(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: phrase %s", ErrUnknownItem, ref.ID)
		}
		p.Item = models.CatalogItem{
			ID: preset.ID, Name: preset.Text, Type: ref.Type,
			Price: preset.Price, Currency: preset.Currency,
			Phrase: preset.Text, PhraseStyle: preset.Style, BundleID: preset.BundleID,
		}

	case models.ItemTypePack:
		pack, ok := c.catalog.Pack(ref.ID)
		if !ok {
			return nil, fmt.Errorf("%w: pack %s", ErrUnknownItem, ref.ID)
		}
		p.Pack = &pack
		p.Item = models.CatalogItem{
			ID: pack.ID, Name: pack.Name, Description: pack.Description, Type: ref.Type,
			Price: pack.BundlePrice, Currency: pack.Currency,
		}

	case models.ItemTypeGemBundle:
		bundle, ok := c.catalog.GemBundle(ref.ID)
		if !ok {
			return nil, fmt.Errorf("%w: gem bundle %s", ErrUnknownItem, ref.ID)
		}
		p.GemBundle = &bundle
		p.Item = models.CatalogItem{
			ID: bundle.ID, Name: bundle.Name, Type: ref.Type,
			Price: bundle.Price, Currency: bundle.Currency,
		}

	default:
		return nil, fmt.Errorf("%w: type %q", ErrUnknownItem, ref.Type)
	}

	p.Currency = p.Item.Currency
	p.Unlocked = c.ownedNow(p, profile)
	p.Equipped = profile.Equipped(ref, p.Item.AnimationKey)

	if p.Unlocked {
		if !ref.Type.Cosmetic() {
			return nil, ErrAlreadyOwned
		}
		p.Action = ActionEquip
		p.Quote = Quote{}
		return p, nil
	}

	if p.Item.Price <= 0 && ref.Type != models.ItemTypeSleeve && ref.Type != models.ItemTypeBoard {
		return nil, fmt.Errorf("%w: %s", ErrNotForSale, ref.ID)
	}

	if ref.Type == models.ItemTypeSleeve && p.Currency == models.CurrencyGems {
		if dealID, ok := c.catalog.DailyDealSleeveID(c.now()); ok && dealID == ref.ID {
			p.DailyDeal = true
		}
	}

	p.VoucherAvailable = c.voucherApplies(p, profile)
	p.Quote = QuotePrice(p.Item.Price, c.catalog.DailyDealPercent, p.DailyDeal, c.catalog.VoucherPercent, false)
	return p, nil
}

// ownedNow reports whether the profile already has what p would grant.
// Store items are consumables and never count as owned.
func (c *PurchaseController) ownedNow(p *PendingPurchase, profile *models.Profile) bool {
	switch p.Ref.Type {
	case models.ItemTypeItem, models.ItemTypeGemBundle:
		return false
	case models.ItemTypePack:
		return p.Pack != nil && catalog.IsPackOwned(*p.Pack, profile)
	}
	return profile.Owns(p.Ref)
}

// voucherApplies is true for purchases whose price is sent to the backend
func (c *PurchaseController) voucherApplies(p *PendingPurchase, profile *models.Profile) bool {
	if c.catalog.VoucherItemID == "" || profile.Inventory.Items[c.catalog.VoucherItemID] <= 0 {
		return false
	}
	switch p.Ref.Type {
	case models.ItemTypeFinisher, models.ItemTypeQuickChat, models.ItemTypeGemBundle:
		return false
	case models.ItemTypeItem:
		return p.Ref.ID != c.catalog.VoucherItemID
	}
	return true
}
