package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"reservation-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Postgres implements Store on top of PostgreSQL via sqlx.
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres connects to the database and returns the store
func NewPostgres(databaseURL string) (*Postgres, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Postgres{db: db}, nil
}

// Close closes the database connection
func (s *Postgres) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Postgres) GetDB() *sqlx.DB {
	return s.db
}

// GetProductByID retrieves a product by ID
func (s *Postgres) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ListProducts retrieves all products
func (s *Postgres) ListProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products, "SELECT * FROM products ORDER BY created_at DESC")
	return products, err
}

// IsAgentBlocked checks the per-product block list
func (s *Postgres) IsAgentBlocked(ctx context.Context, productID, agentID string) (bool, error) {
	var blocked bool
	err := s.db.GetContext(ctx, &blocked,
		"SELECT EXISTS(SELECT 1 FROM product_blocked_agents WHERE product_id = $1 AND agent_id = $2)",
		productID, agentID)
	return blocked, err
}

// GetCommissionOverride retrieves the agent-specific commission for a product, if any
func (s *Postgres) GetCommissionOverride(ctx context.Context, productID, agentID string) (*models.CommissionOverride, error) {
	var override models.CommissionOverride
	err := s.db.GetContext(ctx, &override,
		"SELECT * FROM commission_overrides WHERE product_id = $1 AND agent_id = $2",
		productID, agentID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &override, nil
}

// GetProfile retrieves a user profile by ID
func (s *Postgres) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var profile models.Profile
	err := s.db.GetContext(ctx, &profile, "SELECT * FROM profiles WHERE id = $1", userID)
	if err == sql.ErrNoRows {
		return nil, models.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// GetUserRoles retrieves all roles granted to a user
func (s *Postgres) GetUserRoles(ctx context.Context, userID string) ([]string, error) {
	var roles []string
	err := s.db.SelectContext(ctx, &roles,
		"SELECT role FROM user_roles WHERE user_id = $1", userID)
	return roles, err
}

// ListCommissionCreditsByAgent retrieves an agent's commission ledger entries
func (s *Postgres) ListCommissionCreditsByAgent(ctx context.Context, agentID string) ([]models.CommissionCredit, error) {
	var credits []models.CommissionCredit
	err := s.db.SelectContext(ctx, &credits,
		"SELECT * FROM commission_credits WHERE agent_id = $1 ORDER BY created_at DESC", agentID)
	return credits, err
}

// GetSalesMetrics aggregates completed deals by day and marketplace country
func (s *Postgres) GetSalesMetrics(ctx context.Context, from, to time.Time) ([]models.SalesMetric, error) {
	const query = `
		SELECT date_trunc('day', d.updated_at) AS sale_date,
		       COALESCE(p.marketplace_country, '') AS country,
		       COUNT(*) AS deal_count,
		       COALESCE(SUM(d.commission_cents), 0) AS total_commission_cents
		FROM deals d
		JOIN products p ON p.id = d.product_id
		WHERE d.status = $1 AND d.updated_at >= $2 AND d.updated_at <= $3
		GROUP BY 1, 2
		ORDER BY 1, 2`

	var metrics []models.SalesMetric
	err := s.db.SelectContext(ctx, &metrics, query, models.DealStatusCompleted, from, to)
	return metrics, err
}

// IsEventProcessed checks if an event has been processed
func (s *Postgres) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Postgres) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
