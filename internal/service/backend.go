package service

import (
	"context"
	"time"

	"thirteen-shop/internal/modal"
	"thirteen-shop/internal/models"
	"thirteen-shop/internal/util"

	"go.uber.org/zap"
)

// ProfileSource loads the authoritative profile
type ProfileSource interface {
	FetchProfile(ctx context.Context, profileID string) (*models.Profile, error)
}

// PurchaseBackend holds the mutations used by the purchase flow
type PurchaseBackend interface {
	BuyItem(ctx context.Context, req models.BuyItemRequest) error
	BuyPack(ctx context.Context, profileID string, items []models.ItemRef, finalPrice int64) (bool, error)
	BuyFinisher(ctx context.Context, profileID, finisherID string) (bool, error)
	EquipFinisher(ctx context.Context, profileID, animationKey string) error
	PurchasePhrase(ctx context.Context, profileID, phraseID string) (bool, error)
	ProcessGemTransaction(ctx context.Context, profileID string, amount int64, reason, itemID string) (*models.GemTransactionResult, error)
	UpdateProfileSettings(ctx context.Context, profileID string, settings models.ProfileSettings) error
}

// AdBackend holds the ad reward calls
type AdBackend interface {
	ClaimAdRewardGems(ctx context.Context) (*models.AdClaimResult, error)
	FetchWeeklyRewardStatus(ctx context.Context, profileID string) (*models.WeeklyRewardStatus, error)
}

// BoosterBackend activates inventory boosters
type BoosterBackend interface {
	ActivateBooster(ctx context.Context, profileID, itemID string) error
}

// Presenter is where the shop reports modals and toasts
type Presenter interface {
	Open(m modal.Modal) modal.Modal
	Toast(level modal.Level, message string) modal.Toast
}

// EventPublisher emits shop telemetry
type EventPublisher interface {
	PublishPurchaseCompleted(ctx context.Context, event *models.PurchaseCompletedEvent) error
	PublishPurchaseFailed(ctx context.Context, event *models.PurchaseFailedEvent) error
	PublishPurchasePartialFailure(ctx context.Context, event *models.PurchasePartialFailureEvent) error
	PublishAdRewardClaimed(ctx context.Context, event *models.AdRewardClaimedEvent) error
	PublishBoosterActivated(ctx context.Context, event *models.BoosterActivatedEvent) error
}

// PurchaseLock serialises purchases of the same item across processes
type PurchaseLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

// SoundPlayer triggers sound effects
type SoundPlayer interface {
	Play(effect string)
}

type nopPublisher struct{}

func (nopPublisher) PublishPurchaseCompleted(context.Context, *models.PurchaseCompletedEvent) error {
	return nil
}
func (nopPublisher) PublishPurchaseFailed(context.Context, *models.PurchaseFailedEvent) error {
	return nil
}
func (nopPublisher) PublishPurchasePartialFailure(context.Context, *models.PurchasePartialFailureEvent) error {
	return nil
}
func (nopPublisher) PublishAdRewardClaimed(context.Context, *models.AdRewardClaimedEvent) error {
	return nil
}
func (nopPublisher) PublishBoosterActivated(context.Context, *models.BoosterActivatedEvent) error {
	return nil
}

// LogSounds writes sound triggers to the debug log
type LogSounds struct {
	logger *zap.Logger
}

// NewLogSounds creates a SoundPlayer backed by the logger
func NewLogSounds() *LogSounds {
	return &LogSounds{logger: util.Component("audio")}
}

// Play logs the effect name
func (s *LogSounds) Play(effect string) {
	s.logger.Debug("Sound effect", zap.String("effect", effect))
}
