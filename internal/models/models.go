package models

import "time"

// Country codes for supported marketplaces
const (
	CountryES = "ES"
	CountryDE = "DE"
	CountryFR = "FR"
	CountryIT = "IT"
	CountryUK = "UK"
)

// Product represents a sellable product listed by a seller
type Product struct {
	ID                 string     `db:"id" json:"id"`
	OwnerID            string     `db:"owner_id" json:"owner_id"`
	Title              string     `db:"title" json:"title"`
	CommissionCents    int64      `db:"commission_cents" json:"commission_cents"`
	PriceCents         int64      `db:"price_cents" json:"price_cents,omitempty"`
	TotalQty           int        `db:"total_qty" json:"total_qty"`
	DailyLimit         *int       `db:"daily_limit" json:"daily_limit,omitempty"`
	StartDate          *time.Time `db:"start_date" json:"start_date,omitempty"`
	EndDate            *time.Time `db:"end_date" json:"end_date,omitempty"`
	IsActive           bool       `db:"is_active" json:"is_active"`
	MarketplaceCountry string     `db:"marketplace_country" json:"marketplace_country,omitempty"`
	MarketplaceURL     string     `db:"marketplace_url" json:"marketplace_url,omitempty"`
	MainImageURL       string     `db:"main_image_url" json:"main_image_url,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// Reservable reports whether the product accepts new holds at the given instant.
func (p *Product) Reservable(now time.Time) bool {
	if !p.IsActive {
		return false
	}
	if p.StartDate != nil && p.StartDate.After(now) {
		return false
	}
	if p.EndDate != nil && p.EndDate.Before(now) {
		return false
	}
	return true
}

// Hold represents a time-boxed reservation of one product unit by an agent
type Hold struct {
	ID        string    `db:"id" json:"id"`
	ProductID string    `db:"product_id" json:"product_id"`
	AgentID   string    `db:"agent_id" json:"agent_id"`
	Status    string    `db:"status" json:"status"`
	Extended  bool      `db:"extended" json:"extended"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Hold statuses
const (
	HoldStatusActive    = "active"
	HoldStatusExpired   = "expired"
	HoldStatusConverted = "converted"
	HoldStatusCancelled = "cancelled"
)

// Deal represents a tracked sale originating from a converted hold
type Deal struct {
	ID                    string    `db:"id" json:"id"`
	HoldID                *string   `db:"hold_id" json:"hold_id,omitempty"`
	ProductID             string    `db:"product_id" json:"product_id"`
	AgentID               string    `db:"agent_id" json:"agent_id"`
	Status                string    `db:"status" json:"status"`
	CustomerName          string    `db:"customer_name" json:"customer_name,omitempty"`
	CustomerPaypal        string    `db:"customer_paypal" json:"customer_paypal,omitempty"`
	CustomerTelegram      string    `db:"customer_telegram" json:"customer_telegram,omitempty"`
	MarketplaceProfileURL string    `db:"marketplace_profile_url" json:"marketplace_profile_url,omitempty"`
	OrderScreenshotPath   string    `db:"order_screenshot_path" json:"order_screenshot_path,omitempty"`
	ReviewLink            string    `db:"review_link" json:"review_link,omitempty"`
	ReviewScreenshotPath  string    `db:"review_screenshot_path" json:"review_screenshot_path,omitempty"`
	CommissionCents       int64     `db:"commission_cents" json:"commission_cents"`
	AdminNote             string    `db:"admin_note" json:"admin_note,omitempty"`
	CreatedAt             time.Time `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time `db:"updated_at" json:"updated_at"`
}

// Deal statuses. Review evidence is uploaded by the agent after admin
// approval, so the linear chain is:
//
//	sold_submitted -> approved -> review_uploaded -> paid_to_client -> completed
//
// with rejected reachable from any non-terminal state.
const (
	DealStatusSoldSubmitted  = "sold_submitted"
	DealStatusApproved       = "approved"
	DealStatusReviewUploaded = "review_uploaded"
	DealStatusPaidToClient   = "paid_to_client"
	DealStatusCompleted      = "completed"
	DealStatusRejected       = "rejected"
)

// DealTerminal reports whether a deal status admits no further transitions.
func DealTerminal(status string) bool {
	return status == DealStatusCompleted || status == DealStatusRejected
}

// CommissionCredit is an append-only ledger entry crediting an agent for a
// completed deal. Exactly one per completed deal.
type CommissionCredit struct {
	ID          string    `db:"id" json:"id"`
	DealID      string    `db:"deal_id" json:"deal_id"`
	AgentID     string    `db:"agent_id" json:"agent_id"`
	ProductID   string    `db:"product_id" json:"product_id"`
	AmountCents int64     `db:"amount_cents" json:"amount_cents"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// CommissionOverride is a per-agent commission for a product, taking
// precedence over the product's own commission at conversion time.
type CommissionOverride struct {
	ID              string    `db:"id" json:"id"`
	ProductID       string    `db:"product_id" json:"product_id"`
	AgentID         string    `db:"agent_id" json:"agent_id"`
	CommissionCents int64     `db:"commission_cents" json:"commission_cents"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// Profile represents an account known to the service
type Profile struct {
	ID             string    `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	Email          string    `db:"email" json:"email"`
	Status         string    `db:"status" json:"status"`
	PaymentDetails string    `db:"payment_details" json:"payment_details,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// User statuses
const (
	UserStatusPending  = "pending"
	UserStatusApproved = "approved"
	UserStatusBlocked  = "blocked"
)

// Roles
const (
	RoleAdmin  = "admin"
	RoleSeller = "seller"
	RoleAgent  = "agent"
)

// SalesMetric is a per-day, per-country rollup of completed deal volume
type SalesMetric struct {
	SaleDate             time.Time `db:"sale_date" json:"sale_date"`
	Country              string    `db:"country" json:"country"`
	DealCount            int       `db:"deal_count" json:"deal_count"`
	TotalCommissionCents int64     `db:"total_commission_cents" json:"total_commission_cents"`
}

// ProcessedEvent for consumer idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
