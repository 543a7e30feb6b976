package worker

import (
	"context"
	"sync/atomic"
	"testing"

	"thirteen-shop/internal/models"
	"thirteen-shop/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	calls atomic.Int32
}

func (s *countingSource) FetchProfile(_ context.Context, id string) (*models.Profile, error) {
	s.calls.Add(1)
	return &models.Profile{ID: id, Gems: 120}, nil
}

func TestProfileChangedRefreshesTrackedProfile(t *testing.T) {
	src := &countingSource{}
	profiles := service.NewProfileCache(src, "p-1")
	w := NewProfileWorker(nil, profiles)
	ctx := context.Background()

	require.NoError(t, w.HandleProfileChanged(ctx, &models.ProfileChangedEvent{ProfileID: "p-2"}))
	assert.Equal(t, int32(0), src.calls.Load())
	assert.Nil(t, profiles.Current())

	require.NoError(t, w.HandleProfileChanged(ctx, &models.ProfileChangedEvent{ProfileID: "p-1"}))
	assert.Equal(t, int32(1), src.calls.Load())
	require.NotNil(t, profiles.Current())
	assert.Equal(t, int64(120), profiles.Current().Gems)
}
