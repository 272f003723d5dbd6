package service

import (
	"context"
	"testing"

	"reservation-service/internal/models"
	"reservation-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapabilitiesForRoles(t *testing.T) {
	caps := capabilitiesForRoles([]string{models.RoleAgent})
	assert.True(t, caps[CapReserve])
	assert.False(t, caps[CapReviewDeals])
	assert.False(t, caps[CapViewReports])

	caps = capabilitiesForRoles([]string{models.RoleAdmin})
	assert.True(t, caps[CapReserve], "admin implies the agent surface")
	assert.True(t, caps[CapReviewDeals])
	assert.True(t, caps[CapViewReports])

	caps = capabilitiesForRoles([]string{models.RoleSeller})
	assert.Empty(t, caps)

	// Roles union rather than override.
	caps = capabilitiesForRoles([]string{models.RoleSeller, models.RoleAgent})
	assert.True(t, caps[CapReserve])
	assert.False(t, caps[CapReviewDeals])
}

func TestAuthorizer(t *testing.T) {
	st := store.NewMemory()
	st.PutProfile(models.Profile{ID: "agent-1", Status: models.UserStatusApproved})
	st.GrantRole("agent-1", models.RoleAgent)
	st.PutProfile(models.Profile{ID: "pending-1", Status: models.UserStatusPending})
	st.GrantRole("pending-1", models.RoleAgent)
	st.PutProfile(models.Profile{ID: "blocked-1", Status: models.UserStatusBlocked})
	st.GrantRole("blocked-1", models.RoleAdmin)

	authz := NewAuthorizer(st)
	ctx := context.Background()

	ok, err := authz.Can(ctx, "agent-1", CapReserve)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = authz.Can(ctx, "agent-1", CapReviewDeals)
	require.NoError(t, err)
	assert.False(t, ok)

	// Approval gates everything, whatever the roles say.
	ok, err = authz.Can(ctx, "pending-1", CapReserve)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = authz.Can(ctx, "blocked-1", CapReviewDeals)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = authz.Can(ctx, "nobody", CapReserve)
	assert.ErrorIs(t, err, models.ErrUserNotFound)

	err = authz.Require(ctx, "pending-1", CapReserve)
	assert.ErrorIs(t, err, models.ErrForbidden)

	assert.NoError(t, authz.Require(ctx, "agent-1", CapReserve))
}
