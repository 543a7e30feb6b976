// Package usage keeps advisory, client-local emote usage counts. Nothing in
// the economy reads them.
package usage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"thirteen-shop/internal/util"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// EmoteUsage is how often a profile used one emote trigger
type EmoteUsage struct {
	TriggerCode string    `db:"trigger_code" json:"trigger_code"`
	Count       int64     `db:"use_count" json:"count"`
	LastUsedAt  time.Time `db:"last_used_at" json:"last_used_at"`
}

// Store persists usage counts in a SQLite file
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// Open opens or creates the usage database at path
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open usage database: %w", err)
	}

	// SQLite allows a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create usage tables: %w", err)
	}

	logger := util.Component("usage")
	logger.Info("Usage database ready", zap.String("path", path))
	return &Store{db: db, logger: logger}, nil
}

func createTables(db *sqlx.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS emote_usage (
		profile_id TEXT NOT NULL,
		trigger_code TEXT NOT NULL,
		use_count INTEGER NOT NULL DEFAULT 0,
		last_used_at DATETIME NOT NULL,
		PRIMARY KEY (profile_id, trigger_code)
	);
	`)
	return err
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordEmoteUse increments the count of one emote trigger
func (s *Store) RecordEmoteUse(ctx context.Context, profileID, triggerCode string) error {
	if triggerCode == "" {
		return errors.New("empty trigger code")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO emote_usage (profile_id, trigger_code, use_count, last_used_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(profile_id, trigger_code) DO UPDATE SET
			use_count = use_count + 1,
			last_used_at = excluded.last_used_at`,
		profileID, triggerCode, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record emote use: %w", err)
	}
	return nil
}

// MostUsedEmote returns the most used trigger of a profile. Ties go to the
// most recently used one.
func (s *Store) MostUsedEmote(ctx context.Context, profileID string) (EmoteUsage, bool, error) {
	var u EmoteUsage
	err := s.db.GetContext(ctx, &u, `
		SELECT trigger_code, use_count, last_used_at FROM emote_usage
		WHERE profile_id = ?
		ORDER BY use_count DESC, last_used_at DESC, trigger_code
		LIMIT 1`, profileID)
	if errors.Is(err, sql.ErrNoRows) {
		return EmoteUsage{}, false, nil
	}
	if err != nil {
		return EmoteUsage{}, false, fmt.Errorf("failed to read emote usage: %w", err)
	}
	return u, true, nil
}

// Stats lists usage counts of a profile, most used first
func (s *Store) Stats(ctx context.Context, profileID string, limit int) ([]EmoteUsage, error) {
	if limit <= 0 {
		limit = 10
	}
	out := []EmoteUsage{}
	err := s.db.SelectContext(ctx, &out, `
		SELECT trigger_code, use_count, last_used_at FROM emote_usage
		WHERE profile_id = ?
		ORDER BY use_count DESC, trigger_code
		LIMIT ?`, profileID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list emote usage: %w", err)
	}
	return out, nil
}
