package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"thirteen-shop/internal/catalog"
	"thirteen-shop/internal/modal"
	"thirteen-shop/internal/models"
	"thirteen-shop/internal/refdata"

	"github.com/stretchr/testify/require"
)

const testProfileID = "p-1"

type fakeBackend struct {
	mu      sync.Mutex
	profile models.Profile
	fetches int

	buyItemReqs []models.BuyItemRequest
	buyItemErr  error
	buyStarted  chan struct{}
	buyRelease  chan struct{}

	packCalls  [][]models.ItemRef
	packPrices []int64

	finisherCalls []string
	equipped      []string

	phraseCalls []string
	phraseErr   error

	gemTx     []int64
	refundErr error

	settings    []models.ProfileSettings
	settingsErr func(models.ProfileSettings) error

	activated   []string
	activateErr error

	claims  int
	claimFn func(ctx context.Context) (*models.AdClaimResult, error)
	weekly  models.WeeklyRewardStatus
}

func (f *fakeBackend) FetchProfile(ctx context.Context, profileID string) (*models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	p := f.profile
	return &p, nil
}

func (f *fakeBackend) BuyItem(ctx context.Context, req models.BuyItemRequest) error {
	f.mu.Lock()
	f.buyItemReqs = append(f.buyItemReqs, req)
	started, release, err := f.buyStarted, f.buyRelease, f.buyItemErr
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
		<-release
	}
	return err
}

func (f *fakeBackend) BuyPack(ctx context.Context, profileID string, items []models.ItemRef, finalPrice int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.packCalls = append(f.packCalls, items)
	f.packPrices = append(f.packPrices, finalPrice)
	return true, nil
}

func (f *fakeBackend) BuyFinisher(ctx context.Context, profileID, finisherID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finisherCalls = append(f.finisherCalls, finisherID)
	return true, nil
}

func (f *fakeBackend) EquipFinisher(ctx context.Context, profileID, animationKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.equipped = append(f.equipped, animationKey)
	return nil
}

func (f *fakeBackend) PurchasePhrase(ctx context.Context, profileID, phraseID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.phraseCalls = append(f.phraseCalls, phraseID)
	if f.phraseErr != nil {
		return false, f.phraseErr
	}
	return true, nil
}

func (f *fakeBackend) ProcessGemTransaction(ctx context.Context, profileID string, amount int64, reason, itemID string) (*models.GemTransactionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gemTx = append(f.gemTx, amount)
	if amount > 0 && f.refundErr != nil {
		return nil, f.refundErr
	}
	balance := f.profile.Gems + amount
	return &models.GemTransactionResult{Success: true, NewGemBalance: &balance}, nil
}

func (f *fakeBackend) UpdateProfileSettings(ctx context.Context, profileID string, settings models.ProfileSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings = append(f.settings, settings)
	if f.settingsErr != nil {
		return f.settingsErr(settings)
	}
	return nil
}

func (f *fakeBackend) ActivateBooster(ctx context.Context, profileID, itemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activated = append(f.activated, itemID)
	return f.activateErr
}

func (f *fakeBackend) ClaimAdRewardGems(ctx context.Context) (*models.AdClaimResult, error) {
	f.mu.Lock()
	f.claims++
	fn := f.claimFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	amount := int64(20)
	return &models.AdClaimResult{Success: true, RewardType: models.RewardTypeGems, RewardAmount: amount}, nil
}

func (f *fakeBackend) FetchWeeklyRewardStatus(ctx context.Context, profileID string) (*models.WeeklyRewardStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := f.weekly
	return &w, nil
}

func (f *fakeBackend) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func (f *fakeBackend) claimCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.claims
}

type fakeRefSource struct{}

func (fakeRefSource) FetchEmotes(ctx context.Context, force bool) ([]models.Emote, error) {
	return []models.Emote{
		{ID: "wave", Name: "Wave", TriggerCode: ":wave:", FilePath: "emotes/wave.webp", Price: 200, Currency: models.CurrencyGold},
	}, nil
}

func (fakeRefSource) FetchFinishers(ctx context.Context) ([]models.Finisher, error) {
	return []models.Finisher{
		{ID: "firework_burst", Name: "Firework Burst", AnimationKey: "fx_firework", Price: 400, Currency: models.CurrencyGems},
		{ID: "gold_rush", Name: "Gold Rush", AnimationKey: "fx_gold_rush", Price: 100, Currency: models.CurrencyGems},
	}, nil
}

func (fakeRefSource) FetchChatPresets(ctx context.Context) ([]models.ChatPreset, error) {
	return []models.ChatPreset{
		{ID: "gg", Text: "Good game!", Style: "bold", Price: 50, Currency: models.CurrencyGems},
		{ID: "lunar_hello", Text: "Happy Lunar New Year!", Style: "gold", Currency: models.CurrencyGems, BundleID: "lunar_pack"},
	}, nil
}

type recordingPublisher struct {
	nopPublisher
	mu        sync.Mutex
	completed []*models.PurchaseCompletedEvent
	failed    []*models.PurchaseFailedEvent
	partial   []*models.PurchasePartialFailureEvent
	ads       []*models.AdRewardClaimedEvent
	boosters  []*models.BoosterActivatedEvent
}

func (r *recordingPublisher) PublishPurchaseCompleted(_ context.Context, e *models.PurchaseCompletedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, e)
	return nil
}

func (r *recordingPublisher) PublishPurchaseFailed(_ context.Context, e *models.PurchaseFailedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, e)
	return nil
}

func (r *recordingPublisher) PublishPurchasePartialFailure(_ context.Context, e *models.PurchasePartialFailureEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.partial = append(r.partial, e)
	return nil
}

func (r *recordingPublisher) PublishAdRewardClaimed(_ context.Context, e *models.AdRewardClaimedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ads = append(r.ads, e)
	return nil
}

func (r *recordingPublisher) PublishBoosterActivated(_ context.Context, e *models.BoosterActivatedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.boosters = append(r.boosters, e)
	return nil
}

type recordingSounds struct {
	mu     sync.Mutex
	played []string
}

func (s *recordingSounds) Play(effect string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.played = append(s.played, effect)
}

type fixture struct {
	backend   *fakeBackend
	catalog   *catalog.Catalog
	refdata   *refdata.Cache
	profiles  *ProfileCache
	shell     *modal.Shell
	publisher *recordingPublisher
}

func newFixture(t *testing.T, profile models.Profile) *fixture {
	t.Helper()

	cat, err := catalog.Load()
	require.NoError(t, err)

	profile.ID = testProfileID
	if profile.Inventory.Items == nil {
		profile.Inventory.Items = map[string]int{}
	}
	backend := &fakeBackend{profile: profile}
	shell := modal.NewShell()
	t.Cleanup(shell.Close)

	return &fixture{
		backend:   backend,
		catalog:   cat,
		refdata:   refdata.NewCache(fakeRefSource{}),
		profiles:  NewProfileCache(backend, testProfileID),
		shell:     shell,
		publisher: &recordingPublisher{},
	}
}

func (f *fixture) controller(now time.Time) *PurchaseController {
	c := NewPurchaseController(f.catalog, f.refdata, f.profiles, f.backend, f.shell, f.publisher)
	c.now = func() time.Time { return now }
	c.SetModalAutoClose(0)
	return c
}

func toastMessages(s *modal.Shell) []string {
	var out []string
	for _, t := range s.Toasts() {
		out = append(out, t.Message)
	}
	return out
}
