package models

import "time"

// Event types
const (
	EventTypeHoldCreated        = "HOLD_CREATED"
	EventTypeHoldExpired        = "HOLD_EXPIRED"
	EventTypeHoldCancelled      = "HOLD_CANCELLED"
	EventTypeDealSubmitted      = "DEAL_SUBMITTED"
	EventTypeDealStatusChanged  = "DEAL_STATUS_CHANGED"
	EventTypeCommissionCredited = "COMMISSION_CREDITED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// HoldCreatedEvent published when an agent reserves a product
type HoldCreatedEvent struct {
	BaseEvent
	HoldID    string    `json:"hold_id"`
	ProductID string    `json:"product_id"`
	AgentID   string    `json:"agent_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HoldExpiredEvent published by the expiry sweep, one per batch
type HoldExpiredEvent struct {
	BaseEvent
	Count int `json:"count"`
}

// HoldCancelledEvent published when an agent releases a hold early
type HoldCancelledEvent struct {
	BaseEvent
	HoldID    string `json:"hold_id"`
	ProductID string `json:"product_id"`
	AgentID   string `json:"agent_id"`
}

// DealSubmittedEvent published when a hold converts into a deal
type DealSubmittedEvent struct {
	BaseEvent
	DealID          string `json:"deal_id"`
	HoldID          string `json:"hold_id"`
	ProductID       string `json:"product_id"`
	AgentID         string `json:"agent_id"`
	CommissionCents int64  `json:"commission_cents"`
}

// DealStatusChangedEvent published on every review-state transition
type DealStatusChangedEvent struct {
	BaseEvent
	DealID     string `json:"deal_id"`
	AgentID    string `json:"agent_id"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
	ActorID    string `json:"actor_id"`
}

// CommissionCreditedEvent published when a completed deal credits the agent
type CommissionCreditedEvent struct {
	BaseEvent
	CreditID    string `json:"credit_id"`
	DealID      string `json:"deal_id"`
	AgentID     string `json:"agent_id"`
	AmountCents int64  `json:"amount_cents"`
}
