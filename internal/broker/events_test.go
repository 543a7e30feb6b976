package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"thirteen-shop/internal/models"
	"thirteen-shop/internal/util"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *memoryWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memoryWriter) Close() error { return nil }

func TestPublishKeysByProfile(t *testing.T) {
	w := &memoryWriter{}
	ep := NewEventPublisher(&Producer{writer: w, logger: util.GetLogger()})

	event := &models.PurchaseCompletedEvent{
		BaseEvent: models.BaseEvent{EventID: "e-1", EventType: models.EventTypePurchaseCompleted},
		ProfileID: "p-1",
		ItemID:    "lotus_bloom",
		ItemType:  models.ItemTypeSleeve,
		Price:     210,
		Currency:  models.CurrencyGems,
	}
	require.NoError(t, ep.PublishPurchaseCompleted(context.Background(), event))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "profile-p-1", string(w.msgs[0].Key))

	var decoded models.PurchaseCompletedEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, models.EventTypePurchaseCompleted, decoded.EventType)
	assert.Equal(t, int64(210), decoded.Price)
}

func TestPublishWrapsWriterError(t *testing.T) {
	base := errors.New("broker down")
	ep := NewEventPublisher(&Producer{writer: &memoryWriter{err: base}, logger: util.GetLogger()})

	err := ep.PublishBoosterActivated(context.Background(), &models.BoosterActivatedEvent{ProfileID: "p-1"})
	assert.ErrorIs(t, err, base)
}

func TestHandleProfileChanged(t *testing.T) {
	eh := NewEventHandler()
	var got string
	eh.OnProfileChanged(func(_ context.Context, e *models.ProfileChangedEvent) error {
		got = e.ProfileID
		return nil
	})

	value, err := json.Marshal(models.ProfileChangedEvent{
		BaseEvent: models.BaseEvent{EventType: models.EventTypeProfileChanged},
		ProfileID: "p-9",
	})
	require.NoError(t, err)

	require.NoError(t, eh.HandleMessage(context.Background(), kafka.Message{Value: value}))
	assert.Equal(t, "p-9", got)

	other, _ := json.Marshal(models.BaseEvent{EventType: "SOMETHING_ELSE"})
	assert.NoError(t, eh.HandleMessage(context.Background(), kafka.Message{Value: other}))

	assert.Error(t, eh.HandleMessage(context.Background(), kafka.Message{Value: []byte("{")}))
}
