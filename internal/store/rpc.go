package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"thirteen-shop/internal/models"
)

// BuyItem charges the profile and unlocks a sleeve, board, avatar or store item
func (s *Store) BuyItem(ctx context.Context, req models.BuyItemRequest) error {
	return s.call(ctx, "buy_item", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, "SELECT buy_item($1, $2, $3, $4, $5, $6)",
			req.ProfileID, req.Price, req.ItemID, string(req.Type), req.IsGuest, string(req.Currency))
		return err
	})
}

// BuyPack charges finalPrice and unlocks every item of a pack
func (s *Store) BuyPack(ctx context.Context, profileID string, items []models.ItemRef, finalPrice int64) (bool, error) {
	payload, err := json.Marshal(items)
	if err != nil {
		return false, fmt.Errorf("failed to encode pack items: %w", err)
	}

	var ok bool
	err = s.call(ctx, "buy_pack", func(ctx context.Context) error {
		return s.db.GetContext(ctx, &ok, "SELECT buy_pack($1, $2::jsonb, $3)", profileID, string(payload), finalPrice)
	})
	return ok, err
}

// BuyFinisher charges and unlocks a finisher at its backend price
func (s *Store) BuyFinisher(ctx context.Context, profileID, finisherID string) (bool, error) {
	var ok bool
	err := s.call(ctx, "buy_finisher", func(ctx context.Context) error {
		return s.db.GetContext(ctx, &ok, "SELECT buy_finisher($1, $2)", profileID, finisherID)
	})
	return ok, err
}

// EquipFinisher sets the equipped finisher animation
func (s *Store) EquipFinisher(ctx context.Context, profileID, animationKey string) error {
	return s.call(ctx, "equip_finisher", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, "SELECT equip_finisher($1, $2)", profileID, animationKey)
		return err
	})
}

// PurchasePhrase unlocks a quick chat phrase. Payment is taken separately.
func (s *Store) PurchasePhrase(ctx context.Context, profileID, phraseID string) (bool, error) {
	var ok bool
	err := s.call(ctx, "purchase_phrase", func(ctx context.Context) error {
		return s.db.GetContext(ctx, &ok, "SELECT purchase_phrase($1, $2)", profileID, phraseID)
	})
	return ok, err
}

// ProcessGemTransaction adds a signed amount of gems with a reason tag
func (s *Store) ProcessGemTransaction(ctx context.Context, profileID string, amount int64, reason, itemID string) (*models.GemTransactionResult, error) {
	var raw []byte
	err := s.call(ctx, "process_gem_transaction", func(ctx context.Context) error {
		return s.db.GetContext(ctx, &raw, "SELECT process_gem_transaction($1, $2, $3, $4)",
			profileID, amount, reason, sql.NullString{String: itemID, Valid: itemID != ""})
	})
	if err != nil {
		return nil, err
	}

	var res models.GemTransactionResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("process_gem_transaction: invalid result: %w", err)
	}
	return &res, nil
}

// UpdateProfileSettings applies a partial profile update
func (s *Store) UpdateProfileSettings(ctx context.Context, profileID string, settings models.ProfileSettings) error {
	payload, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode profile settings: %w", err)
	}
	return s.call(ctx, "update_profile_settings", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, "SELECT update_profile_settings($1, $2::jsonb)", profileID, string(payload))
		return err
	})
}

// ActivateBooster consumes one booster from the inventory and starts it
func (s *Store) ActivateBooster(ctx context.Context, profileID, itemID string) error {
	return s.call(ctx, "activate_booster", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, "SELECT activate_booster($1, $2)", profileID, itemID)
		return err
	})
}

// ClaimAdRewardGems claims the reward for a watched ad. The caller is
// identified by the session claims set for the transaction.
func (s *Store) ClaimAdRewardGems(ctx context.Context) (*models.AdClaimResult, error) {
	claims := s.sessionClaims()
	if claims == "" {
		return nil, fmt.Errorf("claim_ad_reward_gems: no session")
	}

	var raw []byte
	err := s.call(ctx, "claim_ad_reward_gems", func(ctx context.Context) error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, "SELECT set_config('request.jwt.claims', $1, true)", claims); err != nil {
			return fmt.Errorf("failed to set session claims: %w", err)
		}
		if err := tx.GetContext(ctx, &raw, "SELECT claim_ad_reward_gems()"); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}
	return decodeClaimResult(raw)
}

func decodeClaimResult(raw []byte) (*models.AdClaimResult, error) {
	var res models.AdClaimResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("claim_ad_reward_gems: invalid result: %w", err)
	}
	return &res, nil
}
