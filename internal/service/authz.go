package service

import (
	"context"
	"fmt"

	"reservation-service/internal/models"
	"reservation-service/internal/store"
)

// Capability is a single permission evaluated per operation. Roles are
// flattened to capability sets rather than treated as a hierarchy, since a
// user may hold several roles at once.
type Capability string

const (
	// CapReserve covers the agent surface: creating, extending, cancelling
	// and converting holds, and uploading review evidence.
	CapReserve Capability = "reserve"

	// CapReviewDeals covers the admin surface: advancing and rejecting
	// deals through the review chain.
	CapReviewDeals Capability = "review_deals"

	// CapViewReports covers the sales metrics rollups.
	CapViewReports Capability = "view_reports"
)

func capabilitiesForRoles(roles []string) map[Capability]bool {
	caps := make(map[Capability]bool)
	for _, role := range roles {
		switch role {
		case models.RoleAdmin:
			// Admin implies the full agent surface as well.
			caps[CapReserve] = true
			caps[CapReviewDeals] = true
			caps[CapViewReports] = true
		case models.RoleAgent:
			caps[CapReserve] = true
		case models.RoleSeller:
			// Sellers manage the catalog through the external layer; they
			// hold no engine capability of their own.
		}
	}
	return caps
}

// Authorizer resolves an actor's capabilities from their profile and roles.
// Only approved users may act at all.
type Authorizer struct {
	store store.Store
}

// NewAuthorizer creates a new authorizer backed by the given store.
func NewAuthorizer(st store.Store) *Authorizer {
	return &Authorizer{store: st}
}

// Can reports whether the user is approved and holds the capability.
func (a *Authorizer) Can(ctx context.Context, userID string, cap Capability) (bool, error) {
	profile, err := a.store.GetProfile(ctx, userID)
	if err != nil {
		return false, err
	}
	if profile.Status != models.UserStatusApproved {
		return false, nil
	}

	roles, err := a.store.GetUserRoles(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to load roles: %w", err)
	}
	return capabilitiesForRoles(roles)[cap], nil
}

// Require returns models.ErrForbidden unless the user is approved and holds
// the capability.
func (a *Authorizer) Require(ctx context.Context, userID string, cap Capability) error {
	ok, err := a.Can(ctx, userID, cap)
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrForbidden
	}
	return nil
}
