package worker

import (
	"context"

	"thirteen-shop/internal/broker"
	"thirteen-shop/internal/models"
	"thirteen-shop/internal/service"
	"thirteen-shop/internal/util"

	"go.uber.org/zap"
)

// ProfileWorker refreshes the cached profile when the backend reports that it
// changed outside this process
type ProfileWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	profiles     *service.ProfileCache
	logger       *zap.Logger
}

// NewProfileWorker creates a new profile worker
func NewProfileWorker(consumer *broker.Consumer, profiles *service.ProfileCache) *ProfileWorker {
	w := &ProfileWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		profiles:     profiles,
		logger:       util.Component("worker"),
	}
	w.eventHandler.OnProfileChanged(w.HandleProfileChanged)
	return w
}

// Start starts the worker
func (w *ProfileWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting profile worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *ProfileWorker) Stop() error {
	w.logger.Info("Stopping profile worker")
	return w.consumer.Close()
}

// HandleProfileChanged refreshes the cache for changes to the tracked profile
func (w *ProfileWorker) HandleProfileChanged(ctx context.Context, event *models.ProfileChangedEvent) error {
	if event.ProfileID != w.profiles.ProfileID() {
		return nil
	}
	_, err := w.profiles.Refresh(ctx, "event")
	return err
}
