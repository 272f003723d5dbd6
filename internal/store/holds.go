package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"reservation-service/internal/models"
)

// CreateHoldTx creates a hold after re-checking every precondition inside a
// single transaction. The product row is locked so concurrent creates for
// the same product serialize, which is what prevents oversell.
func (s *Postgres) CreateHoldTx(ctx context.Context, hold *models.Hold, cooldown time.Duration) error {
	now := hold.CreatedAt

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var product models.Product
	err = tx.GetContext(ctx, &product,
		"SELECT * FROM products WHERE id = $1 FOR UPDATE", hold.ProductID)
	if err == sql.ErrNoRows {
		return models.ErrProductNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock product: %w", err)
	}

	if !product.Reservable(now) {
		return models.ErrProductInactive
	}

	// Lazily expire this agent's stale holds on the product so the
	// cooldown check below sees them even if the sweep has not run yet.
	_, err = tx.ExecContext(ctx,
		`UPDATE holds SET status = $1, updated_at = $2
		 WHERE product_id = $3 AND agent_id = $4 AND status = $5 AND expires_at <= $2`,
		models.HoldStatusExpired, now, hold.ProductID, hold.AgentID, models.HoldStatusActive)
	if err != nil {
		return fmt.Errorf("failed to expire stale holds: %w", err)
	}

	var alreadyHeld bool
	err = tx.GetContext(ctx, &alreadyHeld,
		`SELECT EXISTS(SELECT 1 FROM holds
		 WHERE product_id = $1 AND agent_id = $2 AND status = $3 AND expires_at > $4)`,
		hold.ProductID, hold.AgentID, models.HoldStatusActive, now)
	if err != nil {
		return fmt.Errorf("failed to check active hold: %w", err)
	}
	if alreadyHeld {
		return models.ErrAlreadyHeld
	}

	var lastExpired time.Time
	err = tx.GetContext(ctx, &lastExpired,
		`SELECT updated_at FROM holds
		 WHERE product_id = $1 AND agent_id = $2 AND status = $3
		 ORDER BY updated_at DESC LIMIT 1`,
		hold.ProductID, hold.AgentID, models.HoldStatusExpired)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to check cooldown: %w", err)
	}
	if err == nil && now.Before(lastExpired.Add(cooldown)) {
		return models.ErrCooldown
	}

	// Converted holds occupy a unit forever; active holds only while their
	// deadline has not passed.
	var used int
	err = tx.GetContext(ctx, &used,
		`SELECT COUNT(*) FROM holds
		 WHERE product_id = $1
		   AND (status = $2 OR (status = $3 AND expires_at > $4))`,
		hold.ProductID, models.HoldStatusConverted, models.HoldStatusActive, now)
	if err != nil {
		return fmt.Errorf("failed to count holds: %w", err)
	}
	if used >= product.TotalQty {
		return models.ErrSoldOut
	}

	if product.DailyLimit != nil {
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		var today int
		err = tx.GetContext(ctx, &today,
			`SELECT COUNT(*) FROM holds
			 WHERE product_id = $1 AND created_at >= $2 AND created_at < $3`,
			hold.ProductID, dayStart, dayStart.Add(24*time.Hour))
		if err != nil {
			return fmt.Errorf("failed to count daily holds: %w", err)
		}
		if today >= *product.DailyLimit {
			return models.ErrSoldOut
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO holds (id, product_id, agent_id, status, extended, expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		hold.ID, hold.ProductID, hold.AgentID, hold.Status, hold.Extended,
		hold.ExpiresAt, hold.CreatedAt, hold.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert hold: %w", err)
	}

	return tx.Commit()
}

// GetHoldByID retrieves a hold by ID
func (s *Postgres) GetHoldByID(ctx context.Context, id string) (*models.Hold, error) {
	var hold models.Hold
	err := s.db.GetContext(ctx, &hold, "SELECT * FROM holds WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrHoldNotFound
	}
	if err != nil {
		return nil, err
	}
	return &hold, nil
}

// ListHolds retrieves holds, newest first, for one agent or all
func (s *Postgres) ListHolds(ctx context.Context, agentID string) ([]models.Hold, error) {
	var holds []models.Hold
	if agentID == "" {
		err := s.db.SelectContext(ctx, &holds, "SELECT * FROM holds ORDER BY created_at DESC")
		return holds, err
	}
	err := s.db.SelectContext(ctx, &holds,
		"SELECT * FROM holds WHERE agent_id = $1 ORDER BY created_at DESC", agentID)
	return holds, err
}

// ExpireStaleHolds transitions every overdue active hold to expired. The
// update is conditioned on the stored status, so a hold consumed by a
// concurrent conversion is never re-expired.
func (s *Postgres) ExpireStaleHolds(ctx context.Context, now time.Time) ([]models.Hold, error) {
	const query = `
		UPDATE holds SET status = $1, updated_at = $2
		WHERE status = $3 AND expires_at <= $2
		RETURNING *`

	var expired []models.Hold
	err := s.db.SelectContext(ctx, &expired, query,
		models.HoldStatusExpired, now, models.HoldStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to expire holds: %w", err)
	}
	return expired, nil
}

// ExtendHoldIf applies the one-shot extension as a conditional update
func (s *Postgres) ExtendHoldIf(ctx context.Context, holdID, agentID string, newExpiry, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE holds SET expires_at = $1, extended = TRUE, updated_at = $2
		 WHERE id = $3 AND agent_id = $4 AND status = $5 AND extended = FALSE AND expires_at > $2`,
		newExpiry, now, holdID, agentID, models.HoldStatusActive)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// CancelHoldIf flips active -> cancelled as a conditional update
func (s *Postgres) CancelHoldIf(ctx context.Context, holdID, agentID string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE holds SET status = $1, updated_at = $2
		 WHERE id = $3 AND agent_id = $4 AND status = $5 AND expires_at > $2`,
		models.HoldStatusCancelled, now, holdID, agentID, models.HoldStatusActive)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}
