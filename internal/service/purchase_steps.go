package service

import (
	"context"
	"errors"
	"fmt"

	"thirteen-shop/internal/modal"
	"thirteen-shop/internal/models"

	"go.uber.org/zap"
)

const (
	gemReasonPhrase       = "phrase_purchase"
	gemReasonPhraseRefund = "phrase_purchase_refund"
)

// Purchase branches. Each one calls the backend and reports the result to
// the presenter; none of them touches the cached balances.

func (c *PurchaseController) buyItem(ctx context.Context, p *PendingPurchase, profile *models.Profile) (*Result, error) {
	req := models.BuyItemRequest{
		ProfileID: profile.ID,
		Price:     p.Quote.Final,
		ItemID:    p.Ref.ID,
		Type:      p.Ref.Type,
		IsGuest:   profile.IsGuest,
		Currency:  p.Currency,
	}
	if err := c.backend.BuyItem(ctx, req); err != nil {
		return nil, fmt.Errorf("buy_item %s: %w", p.Ref.ID, err)
	}

	c.successModal(modal.Modal{
		Kind:     modal.KindPurchaseSuccess,
		Title:    "Purchase complete",
		Message:  fmt.Sprintf("%s is now yours", p.Item.Name),
		ItemID:   p.Ref.ID,
		ItemType: p.Ref.Type,
		Amount:   p.Quote.Final,
		Currency: p.Currency,
		Effect:   modal.EffectConfetti,
	})
	return c.result(p, OutcomePurchased), nil
}

func (c *PurchaseController) buyFinisher(ctx context.Context, p *PendingPurchase, profile *models.Profile) (*Result, error) {
	ok, err := c.backend.BuyFinisher(ctx, profile.ID, p.Ref.ID)
	if err != nil {
		return nil, fmt.Errorf("buy_finisher %s: %w", p.Ref.ID, err)
	}
	if !ok {
		return nil, fmt.Errorf("buy_finisher %s: %w", p.Ref.ID, ErrPurchaseRejected)
	}

	c.successModal(modal.Modal{
		Kind:      modal.KindPurchaseSuccess,
		Title:     "Finisher unlocked",
		Message:   fmt.Sprintf("%s is now yours", p.Item.Name),
		ItemID:    p.Ref.ID,
		ItemType:  p.Ref.Type,
		Amount:    p.Quote.Final,
		Currency:  p.Currency,
		Finishers: []string{p.Item.AnimationKey},
		Effect:    modal.EffectConfetti,
	})
	return c.result(p, OutcomePurchased), nil
}

// buyPhrase deducts gems and then unlocks the phrase. A failed unlock refunds
// the deduction; the outcome of the refund is reported on the error.
// Coin-priced phrases go through buy_item in a single call.
func (c *PurchaseController) buyPhrase(ctx context.Context, p *PendingPurchase, profile *models.Profile) (*Result, error) {
	if p.Currency != models.CurrencyGems {
		return c.buyItem(ctx, p, profile)
	}

	price := p.Quote.Final
	tx, err := c.backend.ProcessGemTransaction(ctx, profile.ID, -price, gemReasonPhrase, p.Ref.ID)
	if err != nil {
		return nil, fmt.Errorf("gem deduction for %s: %w", p.Ref.ID, err)
	}
	if !tx.Success {
		return nil, fmt.Errorf("gem deduction for %s: %w: %s", p.Ref.ID, ErrPurchaseRejected, tx.Error)
	}

	unlocked, err := c.backend.PurchasePhrase(ctx, profile.ID, p.Ref.ID)
	if err == nil && !unlocked {
		err = ErrPurchaseRejected
	}
	if err != nil {
		return nil, c.refundPhrase(ctx, profile.ID, p.Ref.ID, price, err)
	}

	c.successModal(modal.Modal{
		Kind:     modal.KindPurchaseSuccess,
		Title:    "Phrase unlocked",
		Message:  fmt.Sprintf("%q added to your quick chat", p.Item.Phrase),
		ItemID:   p.Ref.ID,
		ItemType: p.Ref.Type,
		Amount:   price,
		Currency: p.Currency,
		Effect:   modal.EffectConfetti,
	})
	return c.result(p, OutcomePurchased), nil
}

func (c *PurchaseController) refundPhrase(ctx context.Context, profileID, phraseID string, amount int64, cause error) error {
	pf := &PartialFailureError{Step: StepPhraseUnlock, Err: cause}

	ctx, cancel := compensationContext(ctx)
	defer cancel()
	tx, err := c.backend.ProcessGemTransaction(ctx, profileID, amount, gemReasonPhraseRefund, phraseID)
	switch {
	case err != nil:
		c.logger.Error("Gem refund failed", zap.String("phrase_id", phraseID), zap.Int64("amount", amount), zap.Error(err))
	case !tx.Success:
		c.logger.Error("Gem refund rejected", zap.String("phrase_id", phraseID), zap.Int64("amount", amount), zap.String("reason", tx.Error))
	default:
		pf.Compensated = true
		c.logger.Info("Gem deduction refunded", zap.String("phrase_id", phraseID), zap.Int64("amount", amount))
	}
	return pf
}

// buyPack opens a deal pack, or tops up gems when the pack is priced like a
// gem bundle
func (c *PurchaseController) buyPack(ctx context.Context, p *PendingPurchase, profile *models.Profile) (*Result, error) {
	bundle := p.GemBundle
	if bundle == nil && p.Pack != nil {
		if b, ok := c.catalog.GemBundleForPrice(p.Pack.BundlePrice, p.Pack.Currency); ok {
			bundle = &b
		}
	}
	if bundle != nil {
		return c.topUp(ctx, p, profile, *bundle)
	}
	if p.Pack == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownItem, p.Ref.ID)
	}

	pack := *p.Pack
	ok, err := c.backend.BuyPack(ctx, profile.ID, pack.Items, p.Quote.Final)
	if err != nil {
		return nil, fmt.Errorf("buy_pack %s: %w", pack.ID, err)
	}
	if !ok {
		return nil, fmt.Errorf("buy_pack %s: %w", pack.ID, ErrPurchaseRejected)
	}

	var warnings []string
	if err := c.unlockBundlePhrases(ctx, profile, pack.ID); err != nil {
		// The pack itself committed; report the phrase gap without failing it.
		c.surfacePartial(ctx, p, &PartialFailureError{Step: StepBundlePhrase, Err: err})
		warnings = append(warnings, err.Error())
	}

	granted := c.grantedFinishers(ctx, pack, profile)
	c.successModal(modal.Modal{
		Kind:      modal.KindPackOpened,
		Title:     fmt.Sprintf("%s opened!", pack.Name),
		Message:   pack.Description,
		ItemID:    pack.ID,
		ItemType:  models.ItemTypePack,
		Amount:    p.Quote.Final,
		Currency:  p.Currency,
		Finishers: granted,
		Effect:    modal.EffectConfetti,
	})

	res := c.result(p, OutcomePackOpened)
	res.GrantedFinishers = granted
	res.Warnings = warnings
	return res, nil
}

func (c *PurchaseController) topUp(ctx context.Context, p *PendingPurchase, profile *models.Profile, bundle models.GemBundle) (*Result, error) {
	items := []models.ItemRef{{Type: models.ItemTypeGemBundle, ID: bundle.ID}}
	ok, err := c.backend.BuyPack(ctx, profile.ID, items, p.Quote.Final)
	if err != nil {
		return nil, fmt.Errorf("gem top-up %s: %w", bundle.ID, err)
	}
	if !ok {
		return nil, fmt.Errorf("gem top-up %s: %w", bundle.ID, ErrPurchaseRejected)
	}

	c.successModal(modal.Modal{
		Kind:     modal.KindGemsAdded,
		Title:    "Gems added",
		Message:  fmt.Sprintf("+%d gems", bundle.Gems),
		ItemID:   bundle.ID,
		ItemType: models.ItemTypeGemBundle,
		Amount:   bundle.Gems,
		Currency: models.CurrencyGems,
		Effect:   modal.EffectGemRain,
	})

	res := c.result(p, OutcomeToppedUp)
	res.GemsAdded = bundle.Gems
	return res, nil
}

// unlockBundlePhrases unlocks every chat phrase tagged with the pack id that
// the profile does not have yet. All phrases are attempted; failures are joined.
func (c *PurchaseController) unlockBundlePhrases(ctx context.Context, profile *models.Profile, packID string) error {
	presets, err := c.refdata.PresetsForBundle(ctx, packID)
	if err != nil {
		return fmt.Errorf("load bundle phrases: %w", err)
	}

	var errs []error
	for _, preset := range presets {
		if profile.Owns(models.ItemRef{Type: models.ItemTypeQuickChat, ID: preset.ID}) {
			continue
		}
		ok, err := c.backend.PurchasePhrase(ctx, profile.ID, preset.ID)
		if err == nil && !ok {
			err = ErrPurchaseRejected
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("phrase %s: %w", preset.ID, err))
		}
	}
	return errors.Join(errs...)
}

// grantedFinishers lists animation keys of pack finishers the profile did not
// own before the purchase
func (c *PurchaseController) grantedFinishers(ctx context.Context, pack models.DealPack, before *models.Profile) []string {
	var keys []string
	for _, ref := range pack.Items {
		if ref.Type != models.ItemTypeFinisher || before.Owns(ref) {
			continue
		}
		key := ref.ID
		if f, ok, err := c.refdata.Finisher(ctx, ref.ID); err == nil && ok && f.AnimationKey != "" {
			key = f.AnimationKey
		}
		keys = append(keys, key)
	}
	return keys
}

// equip applies an already unlocked cosmetic. No balance is involved.
func (c *PurchaseController) equip(ctx context.Context, p *PendingPurchase) (*Result, error) {
	profileID := c.profiles.ProfileID()
	id := p.Ref.ID

	var err error
	switch p.Ref.Type {
	case models.ItemTypeFinisher:
		err = c.backend.EquipFinisher(ctx, profileID, p.Item.AnimationKey)
	case models.ItemTypeSleeve:
		err = c.backend.UpdateProfileSettings(ctx, profileID, models.ProfileSettings{EquippedSleeve: &id})
	case models.ItemTypeBoard:
		err = c.backend.UpdateProfileSettings(ctx, profileID, models.ProfileSettings{EquippedBoard: &id})
	case models.ItemTypeAvatar:
		err = c.backend.UpdateProfileSettings(ctx, profileID, models.ProfileSettings{Avatar: &id})
	default:
		return nil, fmt.Errorf("%w: %s cannot be equipped", ErrUnknownItem, p.Ref.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("equip %s: %w", id, err)
	}

	c.successModal(modal.Modal{
		Kind:     modal.KindEquipSuccess,
		Title:    "Equipped",
		Message:  fmt.Sprintf("%s equipped", p.Item.Name),
		ItemID:   id,
		ItemType: p.Ref.Type,
		Currency: p.Currency,
	})

	res := c.result(p, OutcomeEquipped)
	res.Price = 0
	c.completed(ctx, p, res)
	return res, nil
}

// consumeVoucher decrements the voucher by one ahead of the purchase call
// and returns the quantity held before
func (c *PurchaseController) consumeVoucher(ctx context.Context, profile *models.Profile) (int, error) {
	id := c.catalog.VoucherItemID
	qty := profile.Inventory.Items[id]
	if qty <= 0 {
		return 0, ErrVoucherUnavailable
	}
	settings := models.ProfileSettings{InventoryItems: map[string]int{id: qty - 1}}
	if err := c.backend.UpdateProfileSettings(ctx, profile.ID, settings); err != nil {
		return 0, fmt.Errorf("consume voucher: %w", err)
	}
	return qty, nil
}

// restoreVoucher puts the voucher back after the purchase it was consumed
// for failed
func (c *PurchaseController) restoreVoucher(ctx context.Context, qty int, cause error) error {
	id := c.catalog.VoucherItemID
	settings := models.ProfileSettings{InventoryItems: map[string]int{id: qty}}
	pf := &PartialFailureError{Step: StepVoucher, Err: cause}

	ctx, cancel := compensationContext(ctx)
	defer cancel()
	if err := c.backend.UpdateProfileSettings(ctx, c.profiles.ProfileID(), settings); err != nil {
		c.logger.Error("Voucher restore failed", zap.String("voucher", id), zap.Error(err))
		return pf
	}
	pf.Compensated = true
	c.logger.Info("Voucher restored", zap.String("voucher", id), zap.Int("quantity", qty))
	return pf
}

func (c *PurchaseController) result(p *PendingPurchase, outcome Outcome) *Result {
	return &Result{
		Outcome:  outcome,
		ItemID:   p.Ref.ID,
		ItemType: p.Ref.Type,
		Price:    p.Quote.Final,
		Currency: p.Currency,
	}
}
