package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"thirteen-shop/internal/models"
	"thirteen-shop/internal/util"

	"go.uber.org/zap"
)

// ProfileCache is a read-after-write copy of the backend profile. Refresh is
// its only write path; balances are never adjusted locally.
type ProfileCache struct {
	source    ProfileSource
	profileID string
	logger    *zap.Logger

	mu      sync.RWMutex
	profile *models.Profile
}

// NewProfileCache creates an empty cache for one profile
func NewProfileCache(source ProfileSource, profileID string) *ProfileCache {
	return &ProfileCache{
		source:    source,
		profileID: profileID,
		logger:    util.Component("profile"),
	}
}

// ProfileID returns the id this cache tracks
func (c *ProfileCache) ProfileID() string {
	return c.profileID
}

// Current returns the last fetched profile, nil before the first refresh.
// The returned value must be treated as read-only.
func (c *ProfileCache) Current() *models.Profile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.profile
}

// Refresh fetches the authoritative profile
func (c *ProfileCache) Refresh(ctx context.Context, trigger string) (*models.Profile, error) {
	ctx, span := util.StartSpan(ctx, "ProfileCache.Refresh")
	var err error
	defer func() { util.EndSpan(span, err) }()

	profile, err := c.source.FetchProfile(ctx, c.profileID)
	if err != nil {
		c.logger.Warn("Profile refresh failed",
			zap.String("profile_id", c.profileID),
			zap.String("trigger", trigger),
			zap.Error(err))
		return nil, fmt.Errorf("failed to refresh profile: %w", err)
	}
	if profile == nil {
		err = fmt.Errorf("%w: %s", ErrNoProfile, c.profileID)
		return nil, err
	}
	if profile.FetchedAt.IsZero() {
		profile.FetchedAt = time.Now()
	}

	c.mu.Lock()
	c.profile = profile
	c.mu.Unlock()

	util.ProfileRefreshesTotal.WithLabelValues(trigger).Inc()
	c.logger.Debug("Profile refreshed",
		zap.String("trigger", trigger),
		zap.Int64("coins", profile.Coins),
		zap.Int64("gems", profile.Gems))
	return profile, nil
}

// Ensure returns the cached profile, fetching it if none is cached yet
func (c *ProfileCache) Ensure(ctx context.Context) (*models.Profile, error) {
	if p := c.Current(); p != nil {
		return p, nil
	}
	return c.Refresh(ctx, "initial")
}
