package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"thirteen-shop/internal/modal"
	"thirteen-shop/internal/models"
	"thirteen-shop/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Known ad placements
const (
	PlacementShop      = "shop"
	PlacementInventory = "inventory"
)

// AdState of one placement
type AdState string

const (
	AdStateIdle     AdState = "idle"
	AdStateLoading  AdState = "loading"
	AdStatePlaying  AdState = "playing"
	AdStateRewarded AdState = "rewarded"
	AdStateError    AdState = "error"
)

// AdProvider is the rewarded-ad SDK. Show returns false when no ad could be
// shown. For a shown ad it calls exactly one of onReward or onEarlyClose.
type AdProvider interface {
	IsLoaded(placement string) bool
	Show(ctx context.Context, placement string, onReward func(amount int64), onEarlyClose func()) bool
}

// AdCanceler is implemented by providers that can abandon an ad whose outcome
// was never reported
type AdCanceler interface {
	Cancel(placement string)
}

// ClaimGuard records ad views that have been claimed. MarkClaimed returns
// false if the view was already marked.
type ClaimGuard interface {
	MarkClaimed(ctx context.Context, viewID string, ttl time.Duration) (bool, error)
}

// AdConfig tunes the ad economy
type AdConfig struct {
	Cooldown     time.Duration
	ResetDelay   time.Duration
	ClaimTimeout time.Duration
	ShowTimeout  time.Duration
	WeeklyCap    int64
}

// DefaultAdConfig returns the production settings
func DefaultAdConfig() AdConfig {
	return AdConfig{
		Cooldown:     5 * time.Minute,
		ResetDelay:   3 * time.Second,
		ClaimTimeout: 10 * time.Second,
		ShowTimeout:  2 * time.Minute,
		WeeklyCap:    500,
	}
}

const claimGuardTTL = 24 * time.Hour

// WeeklyProgress is the weekly gem allowance as shown to the player
type WeeklyProgress struct {
	Total     int64     `json:"total"`
	Cap       int64     `json:"cap"`
	Remaining int64     `json:"remaining"`
	Capped    bool      `json:"capped"`
	ResetsAt  time.Time `json:"resets_at"`
}

// PlacementStatus describes one placement for display
type PlacementStatus struct {
	Placement string  `json:"placement"`
	State     AdState `json:"state"`
	Available bool    `json:"available"`
	Cooldown  string  `json:"cooldown"`
}

type placementState struct {
	state      AdState
	lastReward time.Time
	subs       map[int]func(AdState)
	timer      *time.Timer
	generation uint64

	// view being shown and the timer that abandons it
	viewID   string
	watchdog *time.Timer
}

// AdRewards runs rewarded ads per placement and claims their rewards from the
// backend. Reward amounts always come from the claim response.
type AdRewards struct {
	provider  AdProvider
	backend   AdBackend
	profiles  *ProfileCache
	presenter Presenter
	publisher EventPublisher
	guard     ClaimGuard
	cfg       AdConfig
	logger    *zap.Logger
	now       func() time.Time

	mu         sync.Mutex
	placements map[string]*placementState
	claimed    map[string]struct{}
	expired    map[string]struct{}
	weekly     *models.WeeklyRewardStatus
	nextSub    int
	closed     bool
}

// NewAdRewards creates the ad economy
func NewAdRewards(
	provider AdProvider,
	backend AdBackend,
	profiles *ProfileCache,
	presenter Presenter,
	publisher EventPublisher,
	cfg AdConfig,
) *AdRewards {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &AdRewards{
		provider:   provider,
		backend:    backend,
		profiles:   profiles,
		presenter:  presenter,
		publisher:  publisher,
		cfg:        cfg,
		logger:     util.Component("ads"),
		now:        time.Now,
		placements: make(map[string]*placementState),
		claimed:    make(map[string]struct{}),
		expired:    make(map[string]struct{}),
	}
}

// SetClaimGuard adds a shared record of claimed views on top of the local one
func (a *AdRewards) SetClaimGuard(guard ClaimGuard) {
	a.guard = guard
}

func (a *AdRewards) placementLocked(placement string) *placementState {
	ps, ok := a.placements[placement]
	if !ok {
		ps = &placementState{state: AdStateIdle, subs: make(map[int]func(AdState))}
		a.placements[placement] = ps
	}
	return ps
}

// State returns the current state of a placement
func (a *AdRewards) State(placement string) AdState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.placementLocked(placement).state
}

// OnStateChange subscribes to state changes of a placement. The returned
// function unsubscribes.
func (a *AdRewards) OnStateChange(placement string, cb func(AdState)) func() {
	a.mu.Lock()
	defer a.mu.Unlock()

	ps := a.placementLocked(placement)
	id := a.nextSub
	a.nextSub++
	ps.subs[id] = cb

	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(ps.subs, id)
	}
}

// setState changes a placement state and notifies subscribers outside the lock
func (a *AdRewards) setState(placement string, state AdState) {
	a.mu.Lock()
	ps := a.placementLocked(placement)
	if ps.state == state || a.closed {
		a.mu.Unlock()
		return
	}
	ps.state = state
	ps.generation++
	if ps.timer != nil {
		ps.timer.Stop()
		ps.timer = nil
	}
	settle := state == AdStateRewarded || state == AdStateError
	if settle && a.cfg.ResetDelay > 0 {
		gen := ps.generation
		ps.timer = time.AfterFunc(a.cfg.ResetDelay, func() {
			a.reset(placement, gen)
		})
	}
	subs := make([]func(AdState), 0, len(ps.subs))
	for _, cb := range ps.subs {
		subs = append(subs, cb)
	}
	a.mu.Unlock()

	for _, cb := range subs {
		cb(state)
	}
	if settle && a.cfg.ResetDelay <= 0 {
		a.setState(placement, AdStateIdle)
	}
}

func (a *AdRewards) reset(placement string, gen uint64) {
	a.mu.Lock()
	ps := a.placementLocked(placement)
	stale := a.closed || ps.generation != gen
	a.mu.Unlock()
	if !stale {
		a.setState(placement, AdStateIdle)
	}
}

// CooldownRemaining is how long until the placement can show another ad
func (a *AdRewards) CooldownRemaining(placement string) time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cooldownLocked(placement)
}

func (a *AdRewards) cooldownLocked(placement string) time.Duration {
	ps := a.placementLocked(placement)
	if ps.lastReward.IsZero() {
		return 0
	}
	left := ps.lastReward.Add(a.cfg.Cooldown).Sub(a.now())
	if left < 0 {
		return 0
	}
	return left
}

// CooldownString formats the remaining cooldown as m:ss
func (a *AdRewards) CooldownString(placement string) string {
	left := a.CooldownRemaining(placement)
	secs := int64((left + time.Second - 1) / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

// IsAdAvailable reports whether an ad can be shown for the placement now
func (a *AdRewards) IsAdAvailable(placement string) bool {
	a.mu.Lock()
	ps := a.placementLocked(placement)
	ok := !a.closed && ps.state == AdStateIdle && a.cooldownLocked(placement) == 0
	a.mu.Unlock()
	return ok && a.provider.IsLoaded(placement)
}

// Status describes a placement for display
func (a *AdRewards) Status(placement string) PlacementStatus {
	return PlacementStatus{
		Placement: placement,
		State:     a.State(placement),
		Available: a.IsAdAvailable(placement),
		Cooldown:  a.CooldownString(placement),
	}
}

// Watch shows a rewarded ad and returns the id of the ad view. The reward,
// if earned, is claimed from the reward callback.
func (a *AdRewards) Watch(ctx context.Context, placement string) (string, error) {
	if !a.IsAdAvailable(placement) {
		a.presenter.Toast(modal.LevelInfo, a.unavailableReason(placement))
		return "", ErrAdUnavailable
	}

	viewID := uuid.New().String()
	logger := a.logger.With(zap.String("placement", placement), zap.String("view_id", viewID))
	a.setState(placement, AdStateLoading)

	// Callbacks can outlive the request that started the ad.
	cbCtx := context.WithoutCancel(ctx)
	onReward := func(amount int64) {
		if !a.endShow(placement, viewID) {
			logger.Warn("Reward reported for an abandoned ad", zap.Int64("sdk_amount", amount))
			return
		}
		logger.Debug("Ad reward earned", zap.Int64("sdk_amount", amount))
		a.handleReward(cbCtx, placement, viewID)
	}
	onEarlyClose := func() {
		if !a.endShow(placement, viewID) {
			return
		}
		a.handleEarlyClose(placement, viewID)
	}

	a.setState(placement, AdStatePlaying)
	a.startShow(placement, viewID)
	if !a.provider.Show(ctx, placement, onReward, onEarlyClose) {
		a.endShow(placement, viewID)
		logger.Warn("Ad could not be shown")
		a.setState(placement, AdStateError)
		a.presenter.Toast(modal.LevelError, "Ad failed to load. Please try again later.")
		return "", ErrAdUnavailable
	}
	return viewID, nil
}

// startShow arms the timer that abandons a view whose outcome never arrives
func (a *AdRewards) startShow(placement, viewID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ps := a.placementLocked(placement)
	ps.viewID = viewID
	if a.cfg.ShowTimeout > 0 {
		ps.watchdog = time.AfterFunc(a.cfg.ShowTimeout, func() {
			a.showTimedOut(placement, viewID)
		})
	}
}

// endShow disarms the show timer. It returns false when the view has already
// been abandoned.
func (a *AdRewards) endShow(placement, viewID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, gone := a.expired[viewID]; gone {
		return false
	}
	ps := a.placementLocked(placement)
	if ps.viewID == viewID {
		ps.viewID = ""
		if ps.watchdog != nil {
			ps.watchdog.Stop()
			ps.watchdog = nil
		}
	}
	return true
}

func (a *AdRewards) showTimedOut(placement, viewID string) {
	a.mu.Lock()
	ps := a.placementLocked(placement)
	if a.closed || ps.viewID != viewID {
		a.mu.Unlock()
		return
	}
	ps.viewID = ""
	ps.watchdog = nil
	a.expired[viewID] = struct{}{}
	a.mu.Unlock()

	if c, ok := a.provider.(AdCanceler); ok {
		c.Cancel(placement)
	}
	a.logger.Warn("Ad outcome never reported, abandoning view",
		zap.String("placement", placement),
		zap.String("view_id", viewID),
		zap.Duration("timeout", a.cfg.ShowTimeout))
	util.AdClaimsTotal.WithLabelValues("none", "show_timeout").Inc()
	a.presenter.Toast(modal.LevelError, "The ad stopped responding. Please try again.")
	a.setState(placement, AdStateError)
}

func (a *AdRewards) unavailableReason(placement string) string {
	if left := a.CooldownRemaining(placement); left > 0 {
		return fmt.Sprintf("Next ad available in %s", a.CooldownString(placement))
	}
	if a.State(placement) != AdStateIdle {
		return "An ad is already playing"
	}
	return "No ad available right now"
}

func (a *AdRewards) handleEarlyClose(placement, viewID string) {
	a.mu.Lock()
	_, claimed := a.claimed[viewID]
	a.mu.Unlock()
	if claimed {
		return
	}

	a.logger.Info("Ad closed before reward", zap.String("placement", placement), zap.String("view_id", viewID))
	util.AdClaimsTotal.WithLabelValues("none", "closed_early").Inc()
	a.presenter.Toast(modal.LevelWarning, "Ad closed early. Watch the full ad to earn your reward.")
	a.setState(placement, AdStateIdle)
}

// markClaimed makes sure a view is claimed at most once
func (a *AdRewards) markClaimed(ctx context.Context, viewID string) bool {
	a.mu.Lock()
	if _, dup := a.claimed[viewID]; dup {
		a.mu.Unlock()
		return false
	}
	a.claimed[viewID] = struct{}{}
	a.mu.Unlock()

	if a.guard == nil {
		return true
	}
	first, err := a.guard.MarkClaimed(ctx, viewID, claimGuardTTL)
	if err != nil {
		a.logger.Warn("Shared claim guard unavailable", zap.String("view_id", viewID), zap.Error(err))
		return true
	}
	return first
}

func (a *AdRewards) handleReward(ctx context.Context, placement, viewID string) {
	if !a.markClaimed(ctx, viewID) {
		a.logger.Warn("Duplicate reward callback ignored", zap.String("view_id", viewID))
		util.AdClaimsTotal.WithLabelValues("none", "duplicate").Inc()
		return
	}

	ctx, span := util.StartSpan(ctx, "AdRewards.Claim",
		attribute.String("placement", placement),
		attribute.String("view_id", viewID))
	start := time.Now()
	res, err := a.claim(ctx)
	util.AdClaimLatency.Observe(time.Since(start).Seconds())
	util.EndSpan(span, err)

	if err != nil {
		if res != nil && res.CooldownRemaining != nil {
			a.syncCooldown(placement, time.Duration(*res.CooldownRemaining)*time.Second)
		}
		if res != nil && res.Error != "" {
			err = fmt.Errorf("%w: %s", err, res.Error)
		}
		a.claimFailed(placement, viewID, err)
		return
	}
	a.claimSucceeded(ctx, placement, viewID, res)
}

// syncCooldown aligns the local cooldown with the one reported by the backend
func (a *AdRewards) syncCooldown(placement string, remaining time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.placementLocked(placement).lastReward = a.now().Add(remaining - a.cfg.Cooldown)
}

// claim races the backend call against the claim timeout
func (a *AdRewards) claim(ctx context.Context) (*models.AdClaimResult, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.ClaimTimeout)
	defer cancel()

	type outcome struct {
		res *models.AdClaimResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := a.backend.ClaimAdRewardGems(ctx)
		done <- outcome{res, err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrClaimTimeout
			}
			return nil, out.err
		}
		if out.res == nil || !out.res.Success {
			return out.res, ErrClaimRejected
		}
		return out.res, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrClaimTimeout
		}
		return nil, ctx.Err()
	}
}

func (a *AdRewards) claimFailed(placement, viewID string, err error) {
	util.AdClaimsTotal.WithLabelValues("none", "failed").Inc()
	a.logger.Error("Ad reward claim failed",
		zap.String("placement", placement),
		zap.String("view_id", viewID),
		zap.Error(err))

	switch {
	case errors.Is(err, ErrClaimTimeout):
		a.presenter.Toast(modal.LevelError, "Reward claim timed out. Please try again.")
	case errors.Is(err, ErrClaimRejected):
		a.presenter.Toast(modal.LevelError, "Could not claim your reward. Please try again later.")
	default:
		a.presenter.Toast(modal.LevelError, "Something went wrong claiming your reward.")
	}
	a.setState(placement, AdStateError)
}

func (a *AdRewards) claimSucceeded(ctx context.Context, placement, viewID string, res *models.AdClaimResult) {
	a.mu.Lock()
	a.placementLocked(placement).lastReward = a.now()
	if res.WeeklyGems != nil {
		if a.weekly == nil {
			a.weekly = &models.WeeklyRewardStatus{LastResetDate: a.now()}
		}
		a.weekly.WeeklyGemTotal = *res.WeeklyGems
	}
	capped := res.HitCap || (res.WeeklyGems != nil && *res.WeeklyGems >= a.cfg.WeeklyCap)
	a.mu.Unlock()

	switch res.RewardType {
	case models.RewardTypeGems:
		a.presenter.Open(modal.Modal{
			Kind:     modal.KindAdReward,
			Title:    "Free gems!",
			Message:  fmt.Sprintf("+%d gems", res.RewardAmount),
			Amount:   res.RewardAmount,
			Currency: models.CurrencyGems,
			Effect:   modal.EffectGemRain,
		})
	case models.RewardTypeCoins:
		a.presenter.Toast(modal.LevelSuccess, fmt.Sprintf("+%d coins", res.RewardAmount))
	default:
		a.logger.Warn("Unknown reward type", zap.String("reward_type", res.RewardType))
		a.presenter.Toast(modal.LevelSuccess, "Reward received")
	}
	if capped && res.RewardType == models.RewardTypeGems {
		a.presenter.Toast(modal.LevelInfo, "Weekly gem limit reached! Ads will reward coins until the weekly reset.")
	}

	util.AdClaimsTotal.WithLabelValues(res.RewardType, "success").Inc()
	a.logger.Info("Ad reward claimed",
		zap.String("placement", placement),
		zap.String("view_id", viewID),
		zap.String("reward_type", res.RewardType),
		zap.Int64("amount", res.RewardAmount),
		zap.Bool("hit_cap", capped))

	if _, err := a.profiles.Refresh(ctx, "ad_reward"); err != nil {
		a.logger.Warn("Profile refresh after ad reward failed", zap.Error(err))
	}
	a.setState(placement, AdStateRewarded)

	event := &models.AdRewardClaimedEvent{
		BaseEvent:  newBaseEvent(models.EventTypeAdRewardClaimed),
		ProfileID:  a.profiles.ProfileID(),
		Placement:  placement,
		ViewID:     viewID,
		RewardType: res.RewardType,
		Amount:     res.RewardAmount,
		HitCap:     capped,
	}
	if res.WeeklyGems != nil {
		event.WeeklyGems = *res.WeeklyGems
	}
	if err := a.publisher.PublishAdRewardClaimed(ctx, event); err != nil {
		a.logger.Error("Failed to publish AdRewardClaimed event", zap.Error(err))
	}
}

// RefreshWeekly loads the weekly allowance from the backend
func (a *AdRewards) RefreshWeekly(ctx context.Context) (WeeklyProgress, error) {
	status, err := a.backend.FetchWeeklyRewardStatus(ctx, a.profiles.ProfileID())
	if err != nil {
		return WeeklyProgress{}, fmt.Errorf("failed to fetch weekly reward status: %w", err)
	}
	a.mu.Lock()
	a.weekly = status
	a.mu.Unlock()
	return a.WeeklyProgress(), nil
}

// WeeklyProgress reports the last known weekly allowance. A week that has
// rolled over since the last reset is shown as empty.
func (a *AdRewards) WeeklyProgress() WeeklyProgress {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	p := WeeklyProgress{Cap: a.cfg.WeeklyCap}
	if a.weekly != nil {
		p.Total = a.weekly.WeeklyGemTotal
		p.ResetsAt = a.weekly.LastResetDate.Add(7 * 24 * time.Hour)
		if !a.weekly.LastResetDate.IsZero() && !now.Before(p.ResetsAt) {
			p.Total = 0
			p.ResetsAt = now.Add(7 * 24 * time.Hour)
		}
	}
	p.Remaining = p.Cap - p.Total
	if p.Remaining < 0 {
		p.Remaining = 0
	}
	p.Capped = p.Total >= p.Cap
	return p
}

// Close stops pending state resets and rejects further ads
func (a *AdRewards) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	for _, ps := range a.placements {
		if ps.timer != nil {
			ps.timer.Stop()
			ps.timer = nil
		}
		if ps.watchdog != nil {
			ps.watchdog.Stop()
			ps.watchdog = nil
		}
	}
}
