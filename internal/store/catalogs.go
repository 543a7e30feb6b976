package store

import (
	"context"
	"database/sql"
	"time"

	"thirteen-shop/internal/models"
)

type emoteRow struct {
	ID          string         `db:"id"`
	Name        string         `db:"name"`
	TriggerCode string         `db:"trigger_code"`
	FilePath    sql.NullString `db:"file_path"`
	Price       int64          `db:"price"`
	Currency    string         `db:"currency"`
}

func (r emoteRow) toModel() models.Emote {
	return models.Emote{
		ID:          r.ID,
		Name:        r.Name,
		TriggerCode: r.TriggerCode,
		FilePath:    r.FilePath.String,
		Price:       r.Price,
		Currency:    models.Currency(r.Currency),
	}
}

type finisherRow struct {
	ID           string `db:"id"`
	Name         string `db:"name"`
	AnimationKey string `db:"animation_key"`
	Price        int64  `db:"price"`
	Currency     string `db:"currency"`
}

type chatPresetRow struct {
	ID       string         `db:"id"`
	Text     string         `db:"text"`
	Style    sql.NullString `db:"style"`
	Price    int64          `db:"price"`
	Currency string         `db:"currency"`
	BundleID sql.NullString `db:"bundle_id"`
}

// FetchEmotes lists avatar emotes. Results are memoised for a few minutes;
// forceRefresh skips the memo.
func (s *Store) FetchEmotes(ctx context.Context, forceRefresh bool) ([]models.Emote, error) {
	if !forceRefresh {
		s.mu.RLock()
		rows, at := s.emotes, s.emotesAt
		s.mu.RUnlock()
		if rows != nil && time.Since(at) < s.emoteTTL {
			return emotesToModel(rows), nil
		}
	}

	var rows []emoteRow
	err := s.call(ctx, "fetch_emotes", func(ctx context.Context) error {
		return s.db.SelectContext(ctx, &rows,
			"SELECT id, name, trigger_code, file_path, price, currency FROM emotes ORDER BY sort_order, id")
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.emotes, s.emotesAt = rows, time.Now()
	s.mu.Unlock()
	return emotesToModel(rows), nil
}

func emotesToModel(rows []emoteRow) []models.Emote {
	out := make([]models.Emote, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out
}

// FetchFinishers lists victory finishers
func (s *Store) FetchFinishers(ctx context.Context) ([]models.Finisher, error) {
	var rows []finisherRow
	err := s.call(ctx, "fetch_finishers", func(ctx context.Context) error {
		return s.db.SelectContext(ctx, &rows,
			"SELECT id, name, animation_key, price, currency FROM finishers ORDER BY price, id")
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.Finisher, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.Finisher{
			ID:           r.ID,
			Name:         r.Name,
			AnimationKey: r.AnimationKey,
			Price:        r.Price,
			Currency:     models.Currency(r.Currency),
		})
	}
	return out, nil
}

// FetchChatPresets lists quick chat phrases
func (s *Store) FetchChatPresets(ctx context.Context) ([]models.ChatPreset, error) {
	var rows []chatPresetRow
	err := s.call(ctx, "fetch_chat_presets", func(ctx context.Context) error {
		return s.db.SelectContext(ctx, &rows,
			"SELECT id, text, style, price, currency, bundle_id FROM chat_presets ORDER BY id")
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.ChatPreset, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.ChatPreset{
			ID:       r.ID,
			Text:     r.Text,
			Style:    r.Style.String,
			Price:    r.Price,
			Currency: models.Currency(r.Currency),
			BundleID: r.BundleID.String,
		})
	}
	return out, nil
}
