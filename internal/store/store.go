// Package store defines the persistence interface for the reservation
// engine. PostgreSQL is the source of truth; an in-memory implementation
// backs unit and concurrency tests.
//
// Every mutation that affects an invariant (oversell, double conversion,
// double commission) is a single conditional write or transaction here, so
// callers never read-modify-write across round trips.
package store

import (
	"context"
	"time"

	"reservation-service/internal/models"
)

// Store is the persistence interface for holds, deals and the commission
// ledger.
type Store interface {
	// --- Catalog reads ---

	// GetProductByID retrieves a product, or models.ErrProductNotFound.
	GetProductByID(ctx context.Context, id string) (*models.Product, error)

	// ListProducts returns all products.
	ListProducts(ctx context.Context) ([]models.Product, error)

	// IsAgentBlocked reports whether the agent is blocked for the product.
	IsAgentBlocked(ctx context.Context, productID, agentID string) (bool, error)

	// GetCommissionOverride returns the agent's commission override for a
	// product, or nil when none exists.
	GetCommissionOverride(ctx context.Context, productID, agentID string) (*models.CommissionOverride, error)

	// --- Users ---

	// GetProfile retrieves a user profile, or models.ErrUserNotFound.
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)

	// GetUserRoles returns the roles granted to a user.
	GetUserRoles(ctx context.Context, userID string) ([]string, error)

	// --- Hold lifecycle ---

	// CreateHoldTx inserts the hold after checking, inside one transaction,
	// that the product is reservable at hold.CreatedAt, that quantity and
	// daily limit are not exhausted, that the agent holds no active hold on
	// the product, and that no post-expiry cooldown is in force.
	CreateHoldTx(ctx context.Context, hold *models.Hold, cooldown time.Duration) error

	// GetHoldByID retrieves a hold, or models.ErrHoldNotFound.
	GetHoldByID(ctx context.Context, id string) (*models.Hold, error)

	// ListHolds returns holds, newest first, optionally filtered by agent.
	ListHolds(ctx context.Context, agentID string) ([]models.Hold, error)

	// ExpireStaleHolds flips every active hold past its deadline to expired
	// and returns the affected holds. Conditional on stored status, so it is
	// idempotent and safe to race with conversions.
	ExpireStaleHolds(ctx context.Context, now time.Time) ([]models.Hold, error)

	// ExtendHoldIf applies the one-shot extension iff the hold is still
	// active, unextended, owned by the agent, and not past its deadline.
	// Returns false when the conditional update matched no row.
	ExtendHoldIf(ctx context.Context, holdID, agentID string, newExpiry, now time.Time) (bool, error)

	// CancelHoldIf flips active -> cancelled iff the hold is owned by the
	// agent and not past its deadline. Returns false on no match.
	CancelHoldIf(ctx context.Context, holdID, agentID string, now time.Time) (bool, error)

	// --- Conversion ---

	// ConvertHoldTx atomically flips the referenced hold active -> converted
	// and inserts the deal. Exactly one of two concurrent calls on the same
	// hold can succeed; the loser gets a classified domain error.
	ConvertHoldTx(ctx context.Context, deal *models.Deal, now time.Time) error

	// --- Deal review ---

	// GetDealByID retrieves a deal, or models.ErrDealNotFound.
	GetDealByID(ctx context.Context, id string) (*models.Deal, error)

	// ListDeals returns deals, newest first, optionally filtered by agent
	// and/or status.
	ListDeals(ctx context.Context, agentID, status string) ([]models.Deal, error)

	// AdvanceDealTx applies status transition from -> to conditionally on
	// the stored status, recording note when non-empty and inserting credit
	// (when non-nil) in the same transaction. A missed condition returns
	// models.ErrConflict.
	AdvanceDealTx(ctx context.Context, dealID, from, to, note string, now time.Time, credit *models.CommissionCredit) error

	// SetDealReviewIf records review evidence and flips approved ->
	// review_uploaded iff the deal is owned by the agent and currently
	// approved. Returns false on no match.
	SetDealReviewIf(ctx context.Context, dealID, agentID, reviewLink, screenshotPath string, now time.Time) (bool, error)

	// --- Commission ledger and reporting ---

	// ListCommissionCreditsByAgent returns an agent's credits, newest first.
	ListCommissionCreditsByAgent(ctx context.Context, agentID string) ([]models.CommissionCredit, error)

	// GetSalesMetrics returns per-day, per-country completed-deal rollups
	// within [from, to].
	GetSalesMetrics(ctx context.Context, from, to time.Time) ([]models.SalesMetric, error)

	// --- Consumer idempotency ---

	// IsEventProcessed checks if an event has been processed.
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)

	// MarkEventProcessed marks an event as processed.
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}
