package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"thirteen-shop/internal/models"

	"github.com/lib/pq"
)

type profileRow struct {
	ID                string         `db:"id"`
	Username          sql.NullString `db:"username"`
	IsGuest           bool           `db:"is_guest"`
	Coins             int64          `db:"coins"`
	Gems              int64          `db:"gems"`
	UnlockedSleeves   pq.StringArray `db:"unlocked_sleeves"`
	UnlockedAvatars   pq.StringArray `db:"unlocked_avatars"`
	UnlockedBoards    pq.StringArray `db:"unlocked_boards"`
	UnlockedFinishers pq.StringArray `db:"unlocked_finishers"`
	UnlockedPhrases   pq.StringArray `db:"unlocked_phrases"`
	EquippedSleeve    sql.NullString `db:"equipped_sleeve"`
	EquippedBoard     sql.NullString `db:"equipped_board"`
	Avatar            sql.NullString `db:"avatar"`
	EquippedFinisher  sql.NullString `db:"equipped_finisher"`
	Inventory         []byte         `db:"inventory"`
}

const profileQuery = `
	SELECT id, username, is_guest, coins, gems,
		unlocked_sleeves, unlocked_avatars, unlocked_boards, unlocked_finishers, unlocked_phrases,
		equipped_sleeve, equipped_board, avatar, equipped_finisher, inventory
	FROM profiles WHERE id = $1`

// FetchProfile reads the authoritative profile row
func (s *Store) FetchProfile(ctx context.Context, profileID string) (*models.Profile, error) {
	var row profileRow
	err := s.call(ctx, "fetch_profile", func(ctx context.Context) error {
		err := s.db.GetContext(ctx, &row, profileQuery, profileID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrProfileNotFound, profileID)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return row.toModel(time.Now())
}

func (r profileRow) toModel(fetchedAt time.Time) (*models.Profile, error) {
	inv, err := decodeInventory(r.Inventory)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", r.ID, err)
	}
	return &models.Profile{
		ID:                r.ID,
		Username:          r.Username.String,
		IsGuest:           r.IsGuest,
		Coins:             r.Coins,
		Gems:              r.Gems,
		UnlockedSleeves:   []string(r.UnlockedSleeves),
		UnlockedAvatars:   []string(r.UnlockedAvatars),
		UnlockedBoards:    []string(r.UnlockedBoards),
		UnlockedFinishers: []string(r.UnlockedFinishers),
		UnlockedPhrases:   []string(r.UnlockedPhrases),
		EquippedSleeve:    r.EquippedSleeve.String,
		EquippedBoard:     r.EquippedBoard.String,
		Avatar:            r.Avatar.String,
		EquippedFinisher:  r.EquippedFinisher.String,
		Inventory:         inv,
		FetchedAt:         fetchedAt,
	}, nil
}

// decodeInventory reads the inventory jsonb column. A null column is an
// empty inventory.
func decodeInventory(raw []byte) (models.Inventory, error) {
	inv := models.Inventory{Items: map[string]int{}, ActiveBoosters: map[string]int64{}}
	if len(raw) == 0 || string(raw) == "null" {
		return inv, nil
	}

	var doc struct {
		Items          map[string]int   `json:"items"`
		ActiveBoosters map[string]int64 `json:"active_boosters"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return inv, fmt.Errorf("invalid inventory: %w", err)
	}
	for id, qty := range doc.Items {
		inv.Items[id] = qty
	}
	for id, v := range doc.ActiveBoosters {
		inv.ActiveBoosters[id] = v
	}
	return inv, nil
}

// FetchWeeklyRewardStatus reads the weekly ad gem allowance. A profile that
// never claimed has an empty status.
func (s *Store) FetchWeeklyRewardStatus(ctx context.Context, profileID string) (*models.WeeklyRewardStatus, error) {
	var status models.WeeklyRewardStatus
	err := s.call(ctx, "fetch_weekly_reward_status", func(ctx context.Context) error {
		err := s.db.GetContext(ctx, &status,
			"SELECT weekly_gem_total, last_reset_date FROM ad_reward_status WHERE profile_id = $1", profileID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &status, nil
}
