package service

import (
	"context"
	"testing"

	"thirteen-shop/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type missingProfileSource struct{}

func (missingProfileSource) FetchProfile(context.Context, string) (*models.Profile, error) {
	return nil, nil
}

func TestRefreshWithoutProfileRow(t *testing.T) {
	cache := NewProfileCache(missingProfileSource{}, testProfileID)

	_, err := cache.Refresh(context.Background(), "manual")
	assert.ErrorIs(t, err, ErrNoProfile)
	assert.Nil(t, cache.Current())

	_, err = cache.Ensure(context.Background())
	assert.ErrorIs(t, err, ErrNoProfile)
}

func TestEnsureFetchesOnce(t *testing.T) {
	f := newFixture(t, models.Profile{Coins: 10})

	p, err := f.profiles.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(10), p.Coins)
	assert.False(t, p.FetchedAt.IsZero())

	_, err = f.profiles.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, f.backend.fetchCount())
}
