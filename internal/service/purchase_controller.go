package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"thirteen-shop/internal/catalog"
	"thirteen-shop/internal/modal"
	"thirteen-shop/internal/models"
	"thirteen-shop/internal/refdata"
	"thirteen-shop/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Phase of the purchase flow
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseSelected   Phase = "selected"
	PhaseConfirming Phase = "confirming"
	PhaseExecuting  Phase = "executing"
	PhaseFailure    Phase = "failure"
)

// Action is what executing a pending purchase does
type Action string

const (
	ActionPurchase Action = "purchase"
	ActionEquip    Action = "equip"
)

// Outcome of an Execute call that did not fail
type Outcome string

const (
	OutcomePurchased         Outcome = "purchased"
	OutcomeEquipped          Outcome = "equipped"
	OutcomePackOpened        Outcome = "pack_opened"
	OutcomeToppedUp          Outcome = "topped_up"
	OutcomeUpsell            Outcome = "upsell"
	OutcomeInsufficientFunds Outcome = "insufficient_funds"
)

const (
	purchaseLockTTL = 30 * time.Second

	// executeTimeout bounds a purchase once it has started. The purchase
	// keeps running if the caller goes away.
	executeTimeout = 30 * time.Second

	// compensationTimeout bounds each reversal of a committed step
	compensationTimeout = 10 * time.Second
)

// PendingPurchase is the single purchase under review
type PendingPurchase struct {
	Ref              models.ItemRef     `json:"ref"`
	Item             models.CatalogItem `json:"item"`
	Pack             *models.DealPack   `json:"pack,omitempty"`
	GemBundle        *models.GemBundle  `json:"gem_bundle,omitempty"`
	Action           Action             `json:"action"`
	Currency         models.Currency    `json:"currency"`
	Quote            Quote              `json:"quote"`
	Unlocked         bool               `json:"unlocked"`
	Equipped         bool               `json:"equipped"`
	DailyDeal        bool               `json:"daily_deal"`
	VoucherAvailable bool               `json:"voucher_available"`
	UseVoucher       bool               `json:"use_voucher"`
	SelectedAt       time.Time          `json:"selected_at"`
}

// Result describes a completed Execute call
type Result struct {
	Outcome          Outcome         `json:"outcome"`
	ItemID           string          `json:"item_id"`
	ItemType         models.ItemType `json:"item_type"`
	Price            int64           `json:"price"`
	Currency         models.Currency `json:"currency"`
	GrantedFinishers []string        `json:"granted_finishers,omitempty"`
	GemsAdded        int64           `json:"gems_added,omitempty"`
	Shortfall        int64           `json:"shortfall,omitempty"`
	Warnings         []string        `json:"warnings,omitempty"`
}

// Snapshot is a copy of the controller state
type Snapshot struct {
	Phase     Phase            `json:"phase"`
	Pending   *PendingPurchase `json:"pending,omitempty"`
	BuyingID  string           `json:"buying_id,omitempty"`
	LastError string           `json:"last_error,omitempty"`
}

// AdAvailability lets the upsell prompt mention whether an ad can be watched
type AdAvailability interface {
	IsAdAvailable(placement string) bool
}

// PurchaseController drives select -> confirm -> execute for every item type.
// At most one purchase is pending; selecting again replaces it.
type PurchaseController struct {
	catalog   *catalog.Catalog
	refdata   *refdata.Cache
	profiles  *ProfileCache
	backend   PurchaseBackend
	presenter Presenter
	publisher EventPublisher
	lock      PurchaseLock
	ads       AdAvailability
	logger    *zap.Logger
	now       func() time.Time
	autoClose time.Duration

	mu       sync.Mutex
	phase    Phase
	pending  *PendingPurchase
	buyingID string
	lastErr  error
}

// NewPurchaseController creates an idle controller
func NewPurchaseController(
	cat *catalog.Catalog,
	ref *refdata.Cache,
	profiles *ProfileCache,
	backend PurchaseBackend,
	presenter Presenter,
	publisher EventPublisher,
) *PurchaseController {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &PurchaseController{
		catalog:   cat,
		refdata:   ref,
		profiles:  profiles,
		backend:   backend,
		presenter: presenter,
		publisher: publisher,
		logger:    util.Component("purchase"),
		now:       time.Now,
		autoClose: 4 * time.Second,
		phase:     PhaseIdle,
	}
}

// SetLock adds a cross-process purchase lock
func (c *PurchaseController) SetLock(lock PurchaseLock) {
	c.lock = lock
}

// SetAdAvailability wires the ad economy into the upsell prompt
func (c *PurchaseController) SetAdAvailability(ads AdAvailability) {
	c.ads = ads
}

// SetModalAutoClose sets how long success modals stay open
func (c *PurchaseController) SetModalAutoClose(d time.Duration) {
	c.autoClose = d
}

// State returns a copy of the controller state
func (c *PurchaseController) State() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{Phase: c.phase, BuyingID: c.buyingID}
	if c.pending != nil {
		p := *c.pending
		s.Pending = &p
	}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	return s
}

// Select makes ref the pending purchase, replacing any previous selection.
// Already unlocked cosmetics become an equip action.
func (c *PurchaseController) Select(ctx context.Context, ref models.ItemRef) (*PendingPurchase, error) {
	c.mu.Lock()
	busy := c.phase == PhaseExecuting
	c.mu.Unlock()
	if busy {
		return nil, ErrControllerBusy
	}

	profile, err := c.profiles.Ensure(ctx)
	if err != nil {
		return nil, err
	}

	p, err := c.resolve(ctx, ref, profile)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == PhaseExecuting {
		return nil, ErrControllerBusy
	}
	if c.pending != nil && c.pending.Ref != ref {
		c.logger.Debug("Pending purchase replaced",
			zap.String("previous", c.pending.Ref.ID),
			zap.String("item_id", ref.ID))
	}
	c.pending = p
	c.phase = PhaseSelected
	c.lastErr = nil

	out := *p
	return &out, nil
}

// Confirm moves the pending purchase to review, optionally applying a voucher
func (c *PurchaseController) Confirm(useVoucher bool) (*PendingPurchase, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase == PhaseExecuting {
		return nil, ErrControllerBusy
	}
	if c.pending == nil {
		return nil, ErrNoPendingPurchase
	}
	if useVoucher && !c.pending.VoucherAvailable {
		return nil, ErrVoucherUnavailable
	}

	p := c.pending
	p.UseVoucher = useVoucher
	p.Quote = QuotePrice(p.Quote.Base, c.catalog.DailyDealPercent, p.DailyDeal, c.catalog.VoucherPercent, useVoucher)
	c.phase = PhaseConfirming

	out := *p
	return &out, nil
}

// Cancel drops the pending purchase
func (c *PurchaseController) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase == PhaseExecuting {
		return ErrControllerBusy
	}
	c.pending = nil
	c.phase = PhaseIdle
	c.lastErr = nil
	return nil
}

// Execute runs the pending purchase. While it runs, further calls return
// ErrPurchaseInFlight without touching the backend. The pending purchase is
// cleared on success and kept on failure so it can be retried.
func (c *PurchaseController) Execute(ctx context.Context) (*Result, error) {
	c.mu.Lock()
	if c.pending == nil {
		c.mu.Unlock()
		return nil, ErrNoPendingPurchase
	}
	if c.buyingID != "" {
		c.mu.Unlock()
		return nil, ErrPurchaseInFlight
	}
	p := *c.pending
	c.buyingID = p.Ref.ID
	c.phase = PhaseExecuting
	c.mu.Unlock()

	// Money moves below; a dropped request must not cut a purchase in half.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), executeTimeout)
	defer cancel()

	ctx, span := util.StartSpan(ctx, "PurchaseController.Execute",
		attribute.String("item_id", p.Ref.ID),
		attribute.String("item_type", string(p.Ref.Type)))

	start := time.Now()
	res, err := c.executeLocked(ctx, &p)
	util.PurchaseLatency.WithLabelValues(string(p.Ref.Type)).Observe(time.Since(start).Seconds())
	util.EndSpan(span, err)

	c.mu.Lock()
	c.buyingID = ""
	switch {
	case err != nil:
		c.phase = PhaseFailure
		c.lastErr = err
	case res.Outcome == OutcomeUpsell || res.Outcome == OutcomeInsufficientFunds:
		c.phase = PhaseConfirming
	default:
		c.pending = nil
		c.phase = PhaseIdle
		c.lastErr = nil
	}
	c.mu.Unlock()

	if err != nil {
		if errors.Is(err, ErrPurchaseInFlight) {
			return nil, err
		}
		util.PurchasesTotal.WithLabelValues(string(p.Ref.Type), "failed").Inc()
		c.surfaceFailure(ctx, &p, err)
		return nil, err
	}
	util.PurchasesTotal.WithLabelValues(string(p.Ref.Type), string(res.Outcome)).Inc()
	return res, nil
}

func (c *PurchaseController) executeLocked(ctx context.Context, p *PendingPurchase) (*Result, error) {
	if c.lock != nil {
		key := fmt.Sprintf("purchase:%s:%s", c.profiles.ProfileID(), p.Ref.ID)
		token, ok, err := c.lock.Acquire(ctx, key, purchaseLockTTL)
		if err != nil {
			c.logger.Warn("Purchase lock unavailable, continuing with local guard", zap.Error(err))
		} else if !ok {
			return nil, ErrPurchaseInFlight
		} else {
			defer func() {
				if err := c.lock.Release(context.Background(), key, token); err != nil {
					c.logger.Warn("Failed to release purchase lock", zap.String("key", key), zap.Error(err))
				}
			}()
		}
	}

	if p.Action == ActionEquip {
		return c.equip(ctx, p)
	}
	return c.purchase(ctx, p)
}

func (c *PurchaseController) purchase(ctx context.Context, p *PendingPurchase) (*Result, error) {
	profile, err := c.profiles.Refresh(ctx, "affordability")
	if err != nil {
		return nil, err
	}

	if c.ownedNow(p, profile) {
		return nil, ErrAlreadyOwned
	}

	price := p.Quote.Final
	balance := profile.Balance(p.Currency)
	if balance < price {
		return c.insufficient(p, price-balance), nil
	}

	var voucherQty int
	if p.UseVoucher {
		if voucherQty, err = c.consumeVoucher(ctx, profile); err != nil {
			return nil, err
		}
	}

	var res *Result
	switch p.Ref.Type {
	case models.ItemTypeFinisher:
		res, err = c.buyFinisher(ctx, p, profile)
	case models.ItemTypeQuickChat:
		res, err = c.buyPhrase(ctx, p, profile)
	case models.ItemTypePack, models.ItemTypeGemBundle:
		res, err = c.buyPack(ctx, p, profile)
	default:
		res, err = c.buyItem(ctx, p, profile)
	}

	if err != nil && p.UseVoucher {
		err = c.restoreVoucher(ctx, voucherQty, err)
	}
	if err != nil {
		return nil, err
	}

	c.completed(ctx, p, res)
	return res, nil
}

// insufficient routes a short gem balance to the ad upsell and a short coin
// balance to a warning. Neither clears the pending purchase.
func (c *PurchaseController) insufficient(p *PendingPurchase, shortfall int64) *Result {
	res := &Result{
		ItemID:    p.Ref.ID,
		ItemType:  p.Ref.Type,
		Price:     p.Quote.Final,
		Currency:  p.Currency,
		Shortfall: shortfall,
	}

	if p.Currency == models.CurrencyGems {
		res.Outcome = OutcomeUpsell
		msg := fmt.Sprintf("You need %d more gems.", shortfall)
		if c.ads != nil && c.ads.IsAdAvailable(PlacementShop) {
			msg += " Watch an ad to earn free gems!"
		}
		c.presenter.Open(modal.Modal{
			Kind:     modal.KindUpsell,
			Title:    "Not enough gems",
			Message:  msg,
			ItemID:   p.Ref.ID,
			ItemType: p.Ref.Type,
			Amount:   shortfall,
			Currency: models.CurrencyGems,
		})
		util.UpsellPromptsTotal.Inc()
		return res
	}

	res.Outcome = OutcomeInsufficientFunds
	c.presenter.Toast(modal.LevelWarning, fmt.Sprintf("Not enough coins: %d more needed", shortfall))
	return res
}

func (c *PurchaseController) completed(ctx context.Context, p *PendingPurchase, res *Result) {
	if _, err := c.profiles.Refresh(ctx, "purchase"); err != nil {
		c.logger.Warn("Profile refresh after purchase failed", zap.Error(err))
	}

	c.logger.Info("Purchase completed",
		zap.String("item_id", p.Ref.ID),
		zap.String("item_type", string(p.Ref.Type)),
		zap.String("outcome", string(res.Outcome)),
		zap.Int64("price", res.Price))

	event := &models.PurchaseCompletedEvent{
		BaseEvent: newBaseEvent(models.EventTypePurchaseCompleted),
		ProfileID: c.profiles.ProfileID(),
		ItemID:    p.Ref.ID,
		ItemType:  p.Ref.Type,
		Price:     res.Price,
		Currency:  p.Currency,
		Equip:     p.Action == ActionEquip,
		Voucher:   p.UseVoucher,
	}
	if err := c.publisher.PublishPurchaseCompleted(ctx, event); err != nil {
		c.logger.Error("Failed to publish PurchaseCompleted event", zap.Error(err))
	}
}

// surfaceFailure is the single exit for terminal purchase failures
func (c *PurchaseController) surfaceFailure(ctx context.Context, p *PendingPurchase, err error) {
	var partial *PartialFailureError
	switch {
	case errors.As(err, &partial):
		c.surfacePartial(ctx, p, partial)
		return
	case errors.Is(err, ErrAlreadyOwned):
		c.presenter.Toast(modal.LevelInfo, fmt.Sprintf("You already own %s", p.Item.Name))
	case errors.Is(err, ErrPurchaseRejected):
		c.presenter.Toast(modal.LevelError, "The purchase was declined. You have not been charged.")
	default:
		c.presenter.Toast(modal.LevelError, "Purchase failed. Please try again.")
	}

	c.logger.Error("Purchase failed",
		zap.String("item_id", p.Ref.ID),
		zap.String("item_type", string(p.Ref.Type)),
		zap.Error(err))

	event := &models.PurchaseFailedEvent{
		BaseEvent: newBaseEvent(models.EventTypePurchaseFailed),
		ProfileID: c.profiles.ProfileID(),
		ItemID:    p.Ref.ID,
		ItemType:  p.Ref.Type,
		Reason:    err.Error(),
	}
	if perr := c.publisher.PublishPurchaseFailed(ctx, event); perr != nil {
		c.logger.Error("Failed to publish PurchaseFailed event", zap.Error(perr))
	}
}

func (c *PurchaseController) surfacePartial(ctx context.Context, p *PendingPurchase, pf *PartialFailureError) {
	util.PurchasePartialFailuresTotal.WithLabelValues(pf.Step, fmt.Sprint(pf.Compensated)).Inc()

	switch {
	case pf.Step == StepBundlePhrase:
		c.presenter.Toast(modal.LevelWarning, "Some bundle phrases could not be unlocked yet. They will be retried.")
	case pf.Compensated:
		c.presenter.Toast(modal.LevelError, "Purchase failed. Your balance has been restored.")
	default:
		c.presenter.Toast(modal.LevelError, "Purchase failed after payment. Please contact support.")
	}

	c.logger.Error("Purchase partially failed",
		zap.String("item_id", p.Ref.ID),
		zap.String("step", pf.Step),
		zap.Bool("compensated", pf.Compensated),
		zap.Error(pf.Err))

	event := &models.PurchasePartialFailureEvent{
		BaseEvent:   newBaseEvent(models.EventTypePurchasePartialFailure),
		ProfileID:   c.profiles.ProfileID(),
		ItemID:      p.Ref.ID,
		ItemType:    p.Ref.Type,
		Step:        pf.Step,
		Compensated: pf.Compensated,
		Reason:      pf.Err.Error(),
	}
	if err := c.publisher.PublishPurchasePartialFailure(ctx, event); err != nil {
		c.logger.Error("Failed to publish PurchasePartialFailure event", zap.Error(err))
	}
}

func (c *PurchaseController) successModal(m modal.Modal) {
	m.AutoClose = c.autoClose
	c.presenter.Open(m)
}

// compensationContext detaches a reversal from the purchase it undoes, so a
// cancelled or expired purchase can still be compensated
func compensationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
