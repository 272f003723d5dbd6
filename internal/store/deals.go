package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"reservation-service/internal/models"
)

// ConvertHoldTx is the single hard concurrency point: the hold's
// active -> converted flip and the deal insert happen in one transaction,
// with the flip conditioned on the stored status and the deadline. Two
// racing conversions produce exactly one deal.
func (s *Postgres) ConvertHoldTx(ctx context.Context, deal *models.Deal, now time.Time) error {
	if deal.HoldID == nil {
		return models.ErrValidation
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE holds SET status = $1, updated_at = $2
		 WHERE id = $3 AND agent_id = $4 AND status = $5 AND expires_at > $2`,
		models.HoldStatusConverted, now, *deal.HoldID, deal.AgentID, models.HoldStatusActive)
	if err != nil {
		return fmt.Errorf("failed to convert hold: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		var hold models.Hold
		err = tx.GetContext(ctx, &hold, "SELECT * FROM holds WHERE id = $1", *deal.HoldID)
		if err == sql.ErrNoRows {
			return models.ErrHoldNotFound
		}
		if err != nil {
			return err
		}
		switch {
		case hold.AgentID != deal.AgentID:
			return models.ErrNotOwner
		case hold.Status == models.HoldStatusActive && !hold.ExpiresAt.After(now):
			return models.ErrHoldExpired
		default:
			return models.ErrInvalidState
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO deals (id, hold_id, product_id, agent_id, status,
		    customer_name, customer_paypal, customer_telegram, marketplace_profile_url,
		    order_screenshot_path, commission_cents, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		deal.ID, deal.HoldID, deal.ProductID, deal.AgentID, deal.Status,
		deal.CustomerName, deal.CustomerPaypal, deal.CustomerTelegram, deal.MarketplaceProfileURL,
		deal.OrderScreenshotPath, deal.CommissionCents, deal.CreatedAt, deal.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert deal: %w", err)
	}

	return tx.Commit()
}

// GetDealByID retrieves a deal by ID
func (s *Postgres) GetDealByID(ctx context.Context, id string) (*models.Deal, error) {
	var deal models.Deal
	err := s.db.GetContext(ctx, &deal, "SELECT * FROM deals WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrDealNotFound
	}
	if err != nil {
		return nil, err
	}
	return &deal, nil
}

// ListDeals retrieves deals, newest first, optionally filtered
func (s *Postgres) ListDeals(ctx context.Context, agentID, status string) ([]models.Deal, error) {
	query := "SELECT * FROM deals WHERE 1=1"
	args := []interface{}{}
	if agentID != "" {
		args = append(args, agentID)
		query += fmt.Sprintf(" AND agent_id = $%d", len(args))
	}
	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	var deals []models.Deal
	err := s.db.SelectContext(ctx, &deals, query, args...)
	return deals, err
}

// AdvanceDealTx applies a review-state transition conditionally on the
// stored status. The commission credit, when present, is inserted in the
// same transaction so completion and crediting are all-or-nothing.
func (s *Postgres) AdvanceDealTx(ctx context.Context, dealID, from, to, note string, now time.Time, credit *models.CommissionCredit) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var res sql.Result
	if note != "" {
		res, err = tx.ExecContext(ctx,
			`UPDATE deals SET status = $1, admin_note = $2, updated_at = $3
			 WHERE id = $4 AND status = $5`,
			to, note, now, dealID, from)
	} else {
		res, err = tx.ExecContext(ctx,
			`UPDATE deals SET status = $1, updated_at = $2
			 WHERE id = $3 AND status = $4`,
			to, now, dealID, from)
	}
	if err != nil {
		return fmt.Errorf("failed to update deal status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return models.ErrConflict
	}

	if credit != nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO commission_credits (id, deal_id, agent_id, product_id, amount_cents, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			credit.ID, credit.DealID, credit.AgentID, credit.ProductID,
			credit.AmountCents, credit.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert commission credit: %w", err)
		}
	}

	return tx.Commit()
}

// SetDealReviewIf records review evidence and advances approved -> review_uploaded
func (s *Postgres) SetDealReviewIf(ctx context.Context, dealID, agentID, reviewLink, screenshotPath string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE deals SET status = $1, review_link = $2, review_screenshot_path = $3, updated_at = $4
		 WHERE id = $5 AND agent_id = $6 AND status = $7`,
		models.DealStatusReviewUploaded, reviewLink, screenshotPath, now,
		dealID, agentID, models.DealStatusApproved)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}
