package refdata

import (
	"context"
	"strings"
	"sync/atomic"

	"thirteen-shop/internal/models"

	"golang.org/x/sync/errgroup"
)

// Source is the backend side of the reference catalogs
type Source interface {
	FetchEmotes(ctx context.Context, forceRefresh bool) ([]models.Emote, error)
	FetchFinishers(ctx context.Context) ([]models.Finisher, error)
	FetchChatPresets(ctx context.Context) ([]models.ChatPreset, error)
}

// Cache owns one Resource per reference catalog
type Cache struct {
	emotes      *Resource[models.Emote]
	finishers   *Resource[models.Finisher]
	chatPresets *Resource[models.ChatPreset]

	forceEmotes atomic.Bool
}

// NewCache creates an empty cache over src
func NewCache(src Source) *Cache {
	c := &Cache{}
	c.emotes = NewResource("emotes", func(ctx context.Context) ([]models.Emote, error) {
		emotes, err := src.FetchEmotes(ctx, c.forceEmotes.Swap(false))
		if err != nil {
			return nil, err
		}
		return DedupeEmotes(emotes), nil
	})
	c.finishers = NewResource("finishers", src.FetchFinishers)
	c.chatPresets = NewResource("chat_presets", src.FetchChatPresets)
	return c
}

// Warm fetches every catalog concurrently
func (c *Cache) Warm(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { _, err := c.emotes.Get(ctx); return err })
	g.Go(func() error { _, err := c.finishers.Get(ctx); return err })
	g.Go(func() error { _, err := c.chatPresets.Get(ctx); return err })
	return g.Wait()
}

// Emotes returns the usable emote catalog
func (c *Cache) Emotes(ctx context.Context) ([]models.Emote, error) {
	return c.emotes.Get(ctx)
}

// RefreshEmotes bypasses both this cache and the backend's emote cache
func (c *Cache) RefreshEmotes(ctx context.Context) ([]models.Emote, error) {
	c.forceEmotes.Store(true)
	c.emotes.Invalidate()
	return c.emotes.Get(ctx)
}

// Finishers returns the finisher catalog
func (c *Cache) Finishers(ctx context.Context) ([]models.Finisher, error) {
	return c.finishers.Get(ctx)
}

// ChatPresets returns the quick-chat catalog
func (c *Cache) ChatPresets(ctx context.Context) ([]models.ChatPreset, error) {
	return c.chatPresets.Get(ctx)
}

// States reports the fetch state of each resource
func (c *Cache) States() map[string]string {
	return map[string]string{
		"emotes":       c.emotes.State().String(),
		"finishers":    c.finishers.State().String(),
		"chat_presets": c.chatPresets.State().String(),
	}
}

// Emote finds an emote by id
func (c *Cache) Emote(ctx context.Context, id string) (models.Emote, bool, error) {
	emotes, err := c.Emotes(ctx)
	if err != nil {
		return models.Emote{}, false, err
	}
	for _, e := range emotes {
		if e.ID == id {
			return e, true, nil
		}
	}
	return models.Emote{}, false, nil
}

// Finisher finds a finisher by id
func (c *Cache) Finisher(ctx context.Context, id string) (models.Finisher, bool, error) {
	finishers, err := c.Finishers(ctx)
	if err != nil {
		return models.Finisher{}, false, err
	}
	for _, f := range finishers {
		if f.ID == id {
			return f, true, nil
		}
	}
	return models.Finisher{}, false, nil
}

// ChatPreset finds a chat preset by id
func (c *Cache) ChatPreset(ctx context.Context, id string) (models.ChatPreset, bool, error) {
	presets, err := c.ChatPresets(ctx)
	if err != nil {
		return models.ChatPreset{}, false, err
	}
	for _, p := range presets {
		if p.ID == id {
			return p, true, nil
		}
	}
	return models.ChatPreset{}, false, nil
}

// PresetsForBundle returns the chat presets granted by a pack
func (c *Cache) PresetsForBundle(ctx context.Context, bundleID string) ([]models.ChatPreset, error) {
	presets, err := c.ChatPresets(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.ChatPreset
	for _, p := range presets {
		if p.BundleID != "" && p.BundleID == bundleID {
			out = append(out, p)
		}
	}
	return out, nil
}

// DedupeEmotes drops emotes that cannot render and keeps one emote per trigger
// code, preferring the first record that carries an asset path.
func DedupeEmotes(in []models.Emote) []models.Emote {
	seen := make(map[string]bool, len(in))
	out := make([]models.Emote, 0, len(in))
	for _, e := range in {
		if strings.TrimSpace(e.FilePath) == "" {
			continue
		}
		key := e.TriggerCode
		if key == "" {
			key = "id:" + e.ID
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	return out
}
