package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"thirteen-shop/internal/catalog"
	"thirteen-shop/internal/models"
	"thirteen-shop/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const soundBoosterActivated = "booster_activated"

// InventoryItem is an owned store item with its quantity
type InventoryItem struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Price    int64           `json:"price"`
	Currency models.Currency `json:"currency"`
}

// InventoryView is what the inventory screen shows
type InventoryView struct {
	Items    []InventoryItem  `json:"items"`
	Boosters []models.Booster `json:"boosters"`
}

// BoosterService lists inventory and activates boosters
type BoosterService struct {
	catalog   *catalog.Catalog
	profiles  *ProfileCache
	backend   BoosterBackend
	sounds    SoundPlayer
	publisher EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewBoosterService creates a BoosterService
func NewBoosterService(cat *catalog.Catalog, profiles *ProfileCache, backend BoosterBackend, sounds SoundPlayer, publisher EventPublisher) *BoosterService {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &BoosterService{
		catalog:   cat,
		profiles:  profiles,
		backend:   backend,
		sounds:    sounds,
		publisher: publisher,
		logger:    util.Component("boosters"),
		now:       time.Now,
	}
}

// View lists owned items with a positive quantity and the boosters active now
func (s *BoosterService) View(profile *models.Profile) InventoryView {
	view := InventoryView{Items: []InventoryItem{}, Boosters: []models.Booster{}}
	if profile == nil {
		return view
	}

	for id, qty := range profile.Inventory.Items {
		if qty <= 0 {
			continue
		}
		item := InventoryItem{ID: id, Name: id, Quantity: qty}
		if ci, ok := s.catalog.Lookup(models.ItemRef{Type: models.ItemTypeItem, ID: id}); ok {
			item.Name = ci.Name
			item.Price = ci.Price
			item.Currency = ci.Currency
		}
		view.Items = append(view.Items, item)
	}
	sort.Slice(view.Items, func(i, j int) bool { return view.Items[i].ID < view.Items[j].ID })

	view.Boosters = append(view.Boosters, models.DecodeBoosters(profile.Inventory.ActiveBoosters, s.now())...)
	return view
}

// Current is the view of the cached profile
func (s *BoosterService) Current(ctx context.Context) (InventoryView, error) {
	profile, err := s.profiles.Ensure(ctx)
	if err != nil {
		return InventoryView{}, err
	}
	return s.View(profile), nil
}

// Activate uses one booster from the inventory. Failures are logged and
// returned; no toast is shown for them.
func (s *BoosterService) Activate(ctx context.Context, itemID string) error {
	ctx, span := util.StartSpan(ctx, "BoosterService.Activate", attribute.String("item_id", itemID))
	var err error
	defer func() { util.EndSpan(span, err) }()

	profile, err := s.profiles.Ensure(ctx)
	if err != nil {
		return err
	}
	if profile.Inventory.Items[itemID] <= 0 {
		err = fmt.Errorf("%w: %s", ErrNotInInventory, itemID)
		util.BoosterActivationsTotal.WithLabelValues("rejected").Inc()
		s.logger.Warn("Booster not in inventory", zap.String("item_id", itemID))
		return err
	}

	if err = s.backend.ActivateBooster(ctx, profile.ID, itemID); err != nil {
		util.BoosterActivationsTotal.WithLabelValues("failed").Inc()
		s.logger.Error("Booster activation failed", zap.String("item_id", itemID), zap.Error(err))
		err = fmt.Errorf("failed to activate booster %s: %w", itemID, err)
		return err
	}

	util.BoosterActivationsTotal.WithLabelValues("success").Inc()
	s.logger.Info("Booster activated", zap.String("item_id", itemID))
	s.sounds.Play(soundBoosterActivated)

	if _, rerr := s.profiles.Refresh(ctx, "booster"); rerr != nil {
		s.logger.Warn("Profile refresh after booster failed", zap.Error(rerr))
	}

	event := &models.BoosterActivatedEvent{
		BaseEvent: newBaseEvent(models.EventTypeBoosterActivated),
		ProfileID: profile.ID,
		ItemID:    itemID,
	}
	if perr := s.publisher.PublishBoosterActivated(ctx, event); perr != nil {
		s.logger.Error("Failed to publish BoosterActivated event", zap.Error(perr))
	}
	return nil
}

// Tick calls onTick every interval with the booster's current state until it
// expires, disappears from the cached profile, or ctx is done. The ticker is
// always stopped on return.
func (s *BoosterService) Tick(ctx context.Context, boosterID string, interval time.Duration, onTick func(models.Booster)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if !s.emit(boosterID, onTick) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.emit(boosterID, onTick) {
				return
			}
		}
	}
}

func (s *BoosterService) emit(boosterID string, onTick func(models.Booster)) bool {
	profile := s.profiles.Current()
	if profile == nil {
		return false
	}
	raw, ok := profile.Inventory.ActiveBoosters[boosterID]
	if !ok {
		return false
	}
	b, ok := models.DecodeBooster(boosterID, raw)
	if !ok || !b.Active(s.now()) {
		return false
	}
	onTick(b)
	// Count boosters only change on refresh, one emission is enough.
	return b.Kind == models.BoosterKindTime
}
