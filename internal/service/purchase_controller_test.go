package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"thirteen-shop/internal/catalog"
	"thirteen-shop/internal/modal"
	"thirteen-shop/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func sleeve(id string) models.ItemRef {
	return models.ItemRef{Type: models.ItemTypeSleeve, ID: id}
}

func TestSelectReplacesPendingPurchase(t *testing.T) {
	f := newFixture(t, models.Profile{Coins: 5000})
	c := f.controller(testNow)
	ctx := context.Background()

	_, err := c.Select(ctx, sleeve("classic_blue"))
	require.NoError(t, err)
	_, err = c.Select(ctx, models.ItemRef{Type: models.ItemTypeBoard, ID: "bamboo_court"})
	require.NoError(t, err)

	state := c.State()
	assert.Equal(t, PhaseSelected, state.Phase)
	require.NotNil(t, state.Pending)
	assert.Equal(t, "bamboo_court", state.Pending.Ref.ID)
	assert.Equal(t, int64(2000), state.Pending.Quote.Final)
}

func TestExecuteWithoutPending(t *testing.T) {
	f := newFixture(t, models.Profile{})
	c := f.controller(testNow)

	_, err := c.Execute(context.Background())
	assert.ErrorIs(t, err, ErrNoPendingPurchase)
}

func TestCancelClearsPending(t *testing.T) {
	f := newFixture(t, models.Profile{Coins: 5000})
	c := f.controller(testNow)

	_, err := c.Select(context.Background(), sleeve("classic_blue"))
	require.NoError(t, err)
	require.NoError(t, c.Cancel())

	state := c.State()
	assert.Equal(t, PhaseIdle, state.Phase)
	assert.Nil(t, state.Pending)
}

func TestInsufficientGemsOpensUpsell(t *testing.T) {
	f := newFixture(t, models.Profile{Gems: 50})
	c := f.controller(testNow)
	ctx := context.Background()

	_, err := c.Select(ctx, models.ItemRef{Type: models.ItemTypeFinisher, ID: "gold_rush"})
	require.NoError(t, err)
	_, err = c.Confirm(false)
	require.NoError(t, err)

	res, err := c.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpsell, res.Outcome)
	assert.Equal(t, int64(50), res.Shortfall)

	assert.Empty(t, f.backend.finisherCalls)
	assert.Empty(t, f.backend.buyItemReqs)
	assert.Empty(t, f.backend.settings)

	state := c.State()
	require.NotNil(t, state.Pending)
	assert.Equal(t, "gold_rush", state.Pending.Ref.ID)

	m, ok := f.shell.Current()
	require.True(t, ok)
	assert.Equal(t, modal.KindUpsell, m.Kind)
	assert.Equal(t, int64(50), m.Amount)
}

func TestInsufficientCoinsWarns(t *testing.T) {
	f := newFixture(t, models.Profile{Coins: 100})
	c := f.controller(testNow)
	ctx := context.Background()

	_, err := c.Select(ctx, sleeve("midnight_ink"))
	require.NoError(t, err)

	res, err := c.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInsufficientFunds, res.Outcome)
	assert.Empty(t, f.backend.buyItemReqs)

	toasts := f.shell.Toasts()
	require.Len(t, toasts, 1)
	assert.Equal(t, modal.LevelWarning, toasts[0].Level)
	assert.Contains(t, toasts[0].Message, "Not enough coins")
}

func TestDealAndVoucherPriceIsCharged(t *testing.T) {
	f := newFixture(t, models.Profile{
		Gems:      10000,
		Inventory: models.Inventory{Items: map[string]int{"GENERAL_10_OFF": 2}},
	})
	c := f.controller(testNow)
	ctx := context.Background()

	dealID, ok := f.catalog.DailyDealSleeveID(testNow)
	require.True(t, ok)
	item, ok := f.catalog.Lookup(sleeve(dealID))
	require.True(t, ok)

	p, err := c.Select(ctx, sleeve(dealID))
	require.NoError(t, err)
	assert.True(t, p.DailyDeal)
	assert.True(t, p.VoucherAvailable)
	assert.Equal(t, PercentOff(item.Price, 30), p.Quote.Final)

	p, err = c.Confirm(true)
	require.NoError(t, err)
	want := PercentOff(PercentOff(item.Price, 30), 10)
	assert.Equal(t, want, p.Quote.Final)

	res, err := c.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomePurchased, res.Outcome)

	require.Len(t, f.backend.buyItemReqs, 1)
	req := f.backend.buyItemReqs[0]
	assert.Equal(t, want, req.Price)
	assert.Equal(t, models.CurrencyGems, req.Currency)
	assert.Equal(t, testProfileID, req.ProfileID)

	require.Len(t, f.backend.settings, 1)
	assert.Equal(t, 1, f.backend.settings[0].InventoryItems["GENERAL_10_OFF"])

	state := c.State()
	assert.Equal(t, PhaseIdle, state.Phase)
	assert.Nil(t, state.Pending)
	require.Len(t, f.publisher.completed, 1)
	assert.True(t, f.publisher.completed[0].Voucher)
}

func TestVoucherUnavailableWithoutInventory(t *testing.T) {
	f := newFixture(t, models.Profile{Coins: 5000})
	c := f.controller(testNow)

	_, err := c.Select(context.Background(), sleeve("classic_blue"))
	require.NoError(t, err)
	_, err = c.Confirm(true)
	assert.ErrorIs(t, err, ErrVoucherUnavailable)
}

func TestVoucherRestoredWhenPurchaseFails(t *testing.T) {
	f := newFixture(t, models.Profile{
		Coins:     5000,
		Inventory: models.Inventory{Items: map[string]int{"GENERAL_10_OFF": 2}},
	})
	f.backend.buyItemErr = errors.New("rpc unavailable")
	c := f.controller(testNow)
	ctx := context.Background()

	_, err := c.Select(ctx, sleeve("classic_blue"))
	require.NoError(t, err)
	_, err = c.Confirm(true)
	require.NoError(t, err)

	_, err = c.Execute(ctx)
	require.Error(t, err)

	var pf *PartialFailureError
	require.ErrorAs(t, err, &pf)
	assert.Equal(t, StepVoucher, pf.Step)
	assert.True(t, pf.Compensated)

	require.Len(t, f.backend.settings, 2)
	assert.Equal(t, 1, f.backend.settings[0].InventoryItems["GENERAL_10_OFF"])
	assert.Equal(t, 2, f.backend.settings[1].InventoryItems["GENERAL_10_OFF"])

	state := c.State()
	assert.Equal(t, PhaseFailure, state.Phase)
	require.NotNil(t, state.Pending)
	assert.Contains(t, toastMessages(f.shell), "Purchase failed. Your balance has been restored.")
	assert.Len(t, f.publisher.partial, 1)
}

func TestPhraseUnlockFailureRefundsGems(t *testing.T) {
	f := newFixture(t, models.Profile{Gems: 500})
	f.backend.phraseErr = errors.New("unlock failed")
	c := f.controller(testNow)
	ctx := context.Background()

	_, err := c.Select(ctx, models.ItemRef{Type: models.ItemTypeQuickChat, ID: "gg"})
	require.NoError(t, err)

	_, err = c.Execute(ctx)
	var pf *PartialFailureError
	require.ErrorAs(t, err, &pf)
	assert.Equal(t, StepPhraseUnlock, pf.Step)
	assert.True(t, pf.Compensated)
	assert.Equal(t, []int64{-50, 50}, f.backend.gemTx)
}

func TestPhraseRefundFailureIsReported(t *testing.T) {
	f := newFixture(t, models.Profile{Gems: 500})
	f.backend.phraseErr = errors.New("unlock failed")
	f.backend.refundErr = errors.New("ledger down")
	c := f.controller(testNow)
	ctx := context.Background()

	_, err := c.Select(ctx, models.ItemRef{Type: models.ItemTypeQuickChat, ID: "gg"})
	require.NoError(t, err)

	_, err = c.Execute(ctx)
	var pf *PartialFailureError
	require.ErrorAs(t, err, &pf)
	assert.False(t, pf.Compensated)
	assert.Contains(t, toastMessages(f.shell), "Purchase failed after payment. Please contact support.")
	require.Len(t, f.publisher.partial, 1)
	assert.False(t, f.publisher.partial[0].Compensated)
}

func TestOwnedPhraseCannotBeSelected(t *testing.T) {
	f := newFixture(t, models.Profile{Gems: 500, UnlockedPhrases: []string{"gg"}})
	c := f.controller(testNow)

	_, err := c.Select(context.Background(), models.ItemRef{Type: models.ItemTypeQuickChat, ID: "gg"})
	assert.ErrorIs(t, err, ErrAlreadyOwned)
}

func TestPackOpenedListsNewFinishers(t *testing.T) {
	f := newFixture(t, models.Profile{Gems: 2000})
	c := f.controller(testNow)
	ctx := context.Background()

	_, err := c.Select(ctx, models.ItemRef{Type: models.ItemTypePack, ID: "lunar_pack"})
	require.NoError(t, err)

	res, err := c.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomePackOpened, res.Outcome)
	assert.Equal(t, []string{"fx_firework"}, res.GrantedFinishers)
	assert.Equal(t, []int64{980}, f.backend.packPrices)
	assert.Equal(t, []string{"lunar_hello"}, f.backend.phraseCalls)

	m, ok := f.shell.Current()
	require.True(t, ok)
	assert.Equal(t, modal.KindPackOpened, m.Kind)
	assert.Equal(t, []string{"fx_firework"}, m.Finishers)
}

func TestOwnedPackCannotBeSelected(t *testing.T) {
	f := newFixture(t, models.Profile{
		Gems:            2000,
		UnlockedSleeves: []string{"neon_circuit"},
		UnlockedBoards:  []string{"cyber_grid"},
	})
	c := f.controller(testNow)

	_, err := c.Select(context.Background(), models.ItemRef{Type: models.ItemTypePack, ID: "cyber_pack"})
	assert.ErrorIs(t, err, ErrAlreadyOwned)
}

func TestGemBundleTopsUp(t *testing.T) {
	f := newFixture(t, models.Profile{Coins: 6000})
	c := f.controller(testNow)
	ctx := context.Background()

	_, err := c.Select(ctx, models.ItemRef{Type: models.ItemTypeGemBundle, ID: "gems_100"})
	require.NoError(t, err)

	res, err := c.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeToppedUp, res.Outcome)
	assert.Equal(t, int64(100), res.GemsAdded)

	require.Len(t, f.backend.packCalls, 1)
	assert.Equal(t, []models.ItemRef{{Type: models.ItemTypeGemBundle, ID: "gems_100"}}, f.backend.packCalls[0])
	assert.Equal(t, []int64{5000}, f.backend.packPrices)

	m, ok := f.shell.Current()
	require.True(t, ok)
	assert.Equal(t, modal.KindGemsAdded, m.Kind)
	assert.Equal(t, modal.EffectGemRain, m.Effect)
}

func TestUnlockedSleeveIsEquipped(t *testing.T) {
	f := newFixture(t, models.Profile{UnlockedSleeves: []string{"classic_blue"}})
	c := f.controller(testNow)
	ctx := context.Background()

	p, err := c.Select(ctx, sleeve("classic_blue"))
	require.NoError(t, err)
	assert.Equal(t, ActionEquip, p.Action)
	assert.True(t, p.Unlocked)

	res, err := c.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeEquipped, res.Outcome)
	assert.Zero(t, res.Price)
	assert.Empty(t, f.backend.buyItemReqs)

	require.Len(t, f.backend.settings, 1)
	require.NotNil(t, f.backend.settings[0].EquippedSleeve)
	assert.Equal(t, "classic_blue", *f.backend.settings[0].EquippedSleeve)

	m, ok := f.shell.Current()
	require.True(t, ok)
	assert.Equal(t, modal.KindEquipSuccess, m.Kind)
	assert.Zero(t, m.Amount)
}

func TestUnlockedFinisherEquipsByAnimationKey(t *testing.T) {
	f := newFixture(t, models.Profile{UnlockedFinishers: []string{"firework_burst"}})
	c := f.controller(testNow)
	ctx := context.Background()

	_, err := c.Select(ctx, models.ItemRef{Type: models.ItemTypeFinisher, ID: "firework_burst"})
	require.NoError(t, err)
	_, err = c.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"fx_firework"}, f.backend.equipped)
}

func TestExecuteIsNotReentrant(t *testing.T) {
	f := newFixture(t, models.Profile{Coins: 5000})
	f.backend.buyStarted = make(chan struct{}, 1)
	f.backend.buyRelease = make(chan struct{})
	c := f.controller(testNow)
	ctx := context.Background()

	_, err := c.Select(ctx, sleeve("classic_blue"))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := c.Execute(ctx)
		done <- err
	}()
	<-f.backend.buyStarted

	_, err = c.Execute(ctx)
	assert.ErrorIs(t, err, ErrPurchaseInFlight)
	_, err = c.Select(ctx, sleeve("emerald_weave"))
	assert.ErrorIs(t, err, ErrControllerBusy)
	assert.Equal(t, "classic_blue", c.State().BuyingID)

	close(f.backend.buyRelease)
	require.NoError(t, <-done)
	assert.Len(t, f.backend.buyItemReqs, 1)
	assert.Empty(t, c.State().BuyingID)
}

func TestUnknownItem(t *testing.T) {
	f := newFixture(t, models.Profile{})
	c := f.controller(testNow)

	_, err := c.Select(context.Background(), sleeve("missing"))
	assert.ErrorIs(t, err, ErrUnknownItem)
}

// cancellingBackend drops the caller's request partway through a purchase and
// fails any later call made on a cancelled context, as a database driver would
type cancellingBackend struct {
	*fakeBackend
	cancel context.CancelFunc
}

func (b *cancellingBackend) PurchasePhrase(ctx context.Context, profileID, phraseID string) (bool, error) {
	b.cancel()
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return false, errors.New("connection reset")
}

func (b *cancellingBackend) BuyItem(ctx context.Context, req models.BuyItemRequest) error {
	b.cancel()
	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.New("connection reset")
}

func (b *cancellingBackend) ProcessGemTransaction(ctx context.Context, profileID string, amount int64, reason, itemID string) (*models.GemTransactionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.fakeBackend.ProcessGemTransaction(ctx, profileID, amount, reason, itemID)
}

func (b *cancellingBackend) UpdateProfileSettings(ctx context.Context, profileID string, settings models.ProfileSettings) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.fakeBackend.UpdateProfileSettings(ctx, profileID, settings)
}

func newCancellingController(f *fixture, cancel context.CancelFunc) *PurchaseController {
	backend := &cancellingBackend{fakeBackend: f.backend, cancel: cancel}
	c := NewPurchaseController(f.catalog, f.refdata, f.profiles, backend, f.shell, f.publisher)
	c.now = func() time.Time { return testNow }
	c.SetModalAutoClose(0)
	return c
}

func TestPhraseRefundSurvivesDroppedRequest(t *testing.T) {
	f := newFixture(t, models.Profile{Gems: 500})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := newCancellingController(f, cancel)

	_, err := c.Select(ctx, models.ItemRef{Type: models.ItemTypeQuickChat, ID: "gg"})
	require.NoError(t, err)

	_, err = c.Execute(ctx)
	var pf *PartialFailureError
	require.ErrorAs(t, err, &pf)
	assert.Equal(t, StepPhraseUnlock, pf.Step)
	assert.True(t, pf.Compensated)
	assert.Equal(t, []int64{-50, 50}, f.backend.gemTx)

	assert.Contains(t, toastMessages(f.shell), "Purchase failed. Your balance has been restored.")
	require.Len(t, f.publisher.partial, 1)
	assert.True(t, f.publisher.partial[0].Compensated)
}

func TestVoucherRestoreSurvivesDroppedRequest(t *testing.T) {
	f := newFixture(t, models.Profile{
		Coins:     5000,
		Inventory: models.Inventory{Items: map[string]int{"GENERAL_10_OFF": 1}},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := newCancellingController(f, cancel)

	_, err := c.Select(ctx, sleeve("classic_blue"))
	require.NoError(t, err)
	_, err = c.Confirm(true)
	require.NoError(t, err)

	_, err = c.Execute(ctx)
	var pf *PartialFailureError
	require.ErrorAs(t, err, &pf)
	assert.Equal(t, StepVoucher, pf.Step)
	assert.True(t, pf.Compensated)

	require.Len(t, f.backend.settings, 2)
	assert.Equal(t, 0, f.backend.settings[0].InventoryItems["GENERAL_10_OFF"])
	assert.Equal(t, 1, f.backend.settings[1].InventoryItems["GENERAL_10_OFF"])
}

func TestFinisherPurchaseShowsAnimation(t *testing.T) {
	f := newFixture(t, models.Profile{Gems: 500})
	c := f.controller(testNow)
	ctx := context.Background()

	p, err := c.Select(ctx, models.ItemRef{Type: models.ItemTypeFinisher, ID: "gold_rush"})
	require.NoError(t, err)
	assert.Equal(t, ActionPurchase, p.Action)

	res, err := c.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomePurchased, res.Outcome)
	assert.Equal(t, int64(100), res.Price)
	assert.Equal(t, models.CurrencyGems, res.Currency)
	assert.Equal(t, []string{"gold_rush"}, f.backend.finisherCalls)
	assert.Empty(t, f.backend.buyItemReqs)

	m, ok := f.shell.Current()
	require.True(t, ok)
	assert.Equal(t, modal.KindPurchaseSuccess, m.Kind)
	assert.Equal(t, []string{"fx_gold_rush"}, m.Finishers)

	// selection, affordability check and the post-purchase refresh
	assert.GreaterOrEqual(t, f.backend.fetchCount(), 3)
	require.Len(t, f.publisher.completed, 1)
	assert.Equal(t, "gold_rush", f.publisher.completed[0].ItemID)
	assert.Equal(t, PhaseIdle, c.State().Phase)
}

func TestBundlePhraseFailureCompletesPackWithWarning(t *testing.T) {
	f := newFixture(t, models.Profile{Gems: 2000})
	f.backend.phraseErr = errors.New("unlock failed")
	c := f.controller(testNow)
	ctx := context.Background()

	_, err := c.Select(ctx, models.ItemRef{Type: models.ItemTypePack, ID: "lunar_pack"})
	require.NoError(t, err)

	res, err := c.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomePackOpened, res.Outcome)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "lunar_hello")
	assert.Equal(t, []string{"lunar_hello"}, f.backend.phraseCalls)

	toasts := f.shell.Toasts()
	require.Len(t, toasts, 1)
	assert.Equal(t, modal.LevelWarning, toasts[0].Level)

	require.Len(t, f.publisher.partial, 1)
	assert.Equal(t, StepBundlePhrase, f.publisher.partial[0].Step)
	assert.Len(t, f.publisher.completed, 1)
	assert.Empty(t, f.publisher.failed)

	m, ok := f.shell.Current()
	require.True(t, ok)
	assert.Equal(t, modal.KindPackOpened, m.Kind)
}

func TestPackPricedLikeGemBundleTopsUp(t *testing.T) {
	f := newFixture(t, models.Profile{Coins: 6000})
	cat, err := catalog.Parse([]byte(`
gem_bundles:
  - {id: gems_100, name: Pouch of Gems, gems: 100, price: 5000, currency: GOLD}
packs:
  - {id: gem_pouch_pack, name: Gem Pouch Deal, items: [{type: SLEEVE, id: lotus_bloom}], original_price: 6000, bundle_price: 5000, currency: GOLD}
`))
	require.NoError(t, err)
	f.catalog = cat
	c := f.controller(testNow)
	ctx := context.Background()

	_, err = c.Select(ctx, models.ItemRef{Type: models.ItemTypePack, ID: "gem_pouch_pack"})
	require.NoError(t, err)

	res, err := c.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeToppedUp, res.Outcome)
	assert.Equal(t, int64(100), res.GemsAdded)

	require.Len(t, f.backend.packCalls, 1)
	assert.Equal(t, []models.ItemRef{{Type: models.ItemTypeGemBundle, ID: "gems_100"}}, f.backend.packCalls[0])
	assert.Equal(t, []int64{5000}, f.backend.packPrices)
	assert.Empty(t, f.backend.phraseCalls)

	m, ok := f.shell.Current()
	require.True(t, ok)
	assert.Equal(t, modal.KindGemsAdded, m.Kind)
}
