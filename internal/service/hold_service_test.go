package service

import (
	"context"
	"testing"
	"time"

	"reservation-service/config"
	"reservation-service/internal/clock"
	"reservation-service/internal/models"
	"reservation-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envStart = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	store *store.Memory
	clock *clock.Manual
	holds *HoldService
	deals *DealService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st := store.NewMemory()
	clk := clock.NewManual(envStart)
	cfg := config.BusinessConfig{
		HoldWindow:    30 * time.Minute,
		HoldExtension: 5 * time.Minute,
		ExtendWindow:  60 * time.Second,
		Cooldown:      5 * time.Minute,
		SweepInterval: 30 * time.Second,
	}

	seedUser := func(id, role, status string) {
		st.PutProfile(models.Profile{ID: id, Name: id, Email: id + "@example.com", Status: status})
		if role != "" {
			st.GrantRole(id, role)
		}
	}
	seedUser("agent-1", models.RoleAgent, models.UserStatusApproved)
	seedUser("agent-2", models.RoleAgent, models.UserStatusApproved)
	seedUser("admin-1", models.RoleAdmin, models.UserStatusApproved)
	seedUser("seller-1", models.RoleSeller, models.UserStatusApproved)
	seedUser("pending-1", models.RoleAgent, models.UserStatusPending)

	st.PutProduct(models.Product{
		ID:                 "prod-1",
		OwnerID:            "seller-1",
		Title:              "Wireless Earbuds",
		CommissionCents:    700,
		TotalQty:           5,
		IsActive:           true,
		MarketplaceCountry: models.CountryES,
		CreatedAt:          envStart,
		UpdatedAt:          envStart,
	})

	authz := NewAuthorizer(st)
	return &testEnv{
		store: st,
		clock: clk,
		holds: NewHoldService(st, nil, nil, authz, clk, cfg),
		deals: NewDealService(st, nil, authz, clk, cfg),
	}
}

func TestCreateHold(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	hold, err := env.holds.CreateHold(ctx, "agent-1", "prod-1")
	require.NoError(t, err)

	assert.Equal(t, models.HoldStatusActive, hold.Status)
	assert.Equal(t, "agent-1", hold.AgentID)
	assert.False(t, hold.Extended)
	assert.Equal(t, envStart.Add(30*time.Minute), hold.ExpiresAt)
}

func TestCreateHold_Eligibility(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.holds.CreateHold(ctx, "pending-1", "prod-1")
	assert.ErrorIs(t, err, models.ErrForbidden, "pending users must not reserve")

	_, err = env.holds.CreateHold(ctx, "seller-1", "prod-1")
	assert.ErrorIs(t, err, models.ErrForbidden, "sellers hold no reserve capability")

	_, err = env.holds.CreateHold(ctx, "nobody", "prod-1")
	assert.ErrorIs(t, err, models.ErrUserNotFound)

	env.store.BlockAgent("prod-1", "agent-2")
	_, err = env.holds.CreateHold(ctx, "agent-2", "prod-1")
	assert.ErrorIs(t, err, models.ErrForbidden)

	// Admins carry the full agent surface.
	_, err = env.holds.CreateHold(ctx, "admin-1", "prod-1")
	assert.NoError(t, err)
}

func TestCreateHold_ProductWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	start := envStart.Add(24 * time.Hour)
	end := envStart.Add(48 * time.Hour)
	env.store.PutProduct(models.Product{
		ID:              "prod-window",
		OwnerID:         "seller-1",
		Title:           "Scheduled Listing",
		CommissionCents: 500,
		TotalQty:        5,
		IsActive:        true,
		StartDate:       &start,
		EndDate:         &end,
	})

	_, err := env.holds.CreateHold(ctx, "agent-1", "prod-window")
	assert.ErrorIs(t, err, models.ErrProductInactive, "before the start date")

	env.clock.Set(start.Add(time.Hour))
	_, err = env.holds.CreateHold(ctx, "agent-1", "prod-window")
	assert.NoError(t, err)

	env.clock.Set(end.Add(time.Hour))
	_, err = env.holds.CreateHold(ctx, "agent-2", "prod-window")
	assert.ErrorIs(t, err, models.ErrProductInactive, "after the end date")
}

func TestCreateHold_InactiveProduct(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.store.PutProduct(models.Product{
		ID:       "prod-off",
		OwnerID:  "seller-1",
		Title:    "Paused Listing",
		TotalQty: 5,
		IsActive: false,
	})

	_, err := env.holds.CreateHold(ctx, "agent-1", "prod-off")
	assert.ErrorIs(t, err, models.ErrProductInactive)

	_, err = env.holds.CreateHold(ctx, "agent-1", "prod-missing")
	assert.ErrorIs(t, err, models.ErrProductNotFound)
}

func TestExtendHold_TooEarly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	hold, err := env.holds.CreateHold(ctx, "agent-1", "prod-1")
	require.NoError(t, err)

	// 25 minutes remain; the window opens only in the final minute.
	env.clock.Advance(5 * time.Minute)
	err = env.holds.ExtendHold(ctx, "agent-1", hold.ID)
	assert.ErrorIs(t, err, models.ErrTooEarly)
}

func TestExtendHold_OneShotInFinalWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	hold, err := env.holds.CreateHold(ctx, "agent-1", "prod-1")
	require.NoError(t, err)

	env.clock.Advance(29*time.Minute + 30*time.Second)
	require.NoError(t, env.holds.ExtendHold(ctx, "agent-1", hold.ID))

	got, err := env.holds.GetHold(ctx, "agent-1", hold.ID)
	require.NoError(t, err)
	assert.True(t, got.Extended)
	assert.Equal(t, envStart.Add(35*time.Minute), got.ExpiresAt)

	// A second extension is refused even inside the new final window.
	env.clock.Set(envStart.Add(34*time.Minute + 30*time.Second))
	err = env.holds.ExtendHold(ctx, "agent-1", hold.ID)
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestExtendHold_AfterExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	hold, err := env.holds.CreateHold(ctx, "agent-1", "prod-1")
	require.NoError(t, err)

	env.clock.Advance(31 * time.Minute)
	err = env.holds.ExtendHold(ctx, "agent-1", hold.ID)
	assert.ErrorIs(t, err, models.ErrHoldExpired)
}

func TestExtendHold_NotOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	hold, err := env.holds.CreateHold(ctx, "agent-1", "prod-1")
	require.NoError(t, err)

	env.clock.Advance(29*time.Minute + 30*time.Second)
	err = env.holds.ExtendHold(ctx, "agent-2", hold.ID)
	assert.ErrorIs(t, err, models.ErrNotOwner)
}

func TestCancelHold(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	hold, err := env.holds.CreateHold(ctx, "agent-1", "prod-1")
	require.NoError(t, err)

	env.clock.Advance(10 * time.Minute)
	require.NoError(t, env.holds.CancelHold(ctx, "agent-1", hold.ID))

	got, err := env.holds.GetHold(ctx, "agent-1", hold.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HoldStatusCancelled, got.Status)

	// Cancellation is penalty-free.
	_, err = env.holds.CreateHold(ctx, "agent-1", "prod-1")
	assert.NoError(t, err)
}

func TestCancelHold_AfterExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	hold, err := env.holds.CreateHold(ctx, "agent-1", "prod-1")
	require.NoError(t, err)

	env.clock.Advance(31 * time.Minute)
	err = env.holds.CancelHold(ctx, "agent-1", hold.ID)
	assert.ErrorIs(t, err, models.ErrHoldExpired)
}

func TestExpirySweepAndCooldown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	hold, err := env.holds.CreateHold(ctx, "agent-1", "prod-1")
	require.NoError(t, err)

	env.clock.Advance(31 * time.Minute)

	count, err := env.holds.ExpireStaleHolds(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := env.holds.GetHold(ctx, "agent-1", hold.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HoldStatusExpired, got.Status)

	// Sweeping again finds nothing.
	count, err = env.holds.ExpireStaleHolds(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	// Inside the cooldown the agent is locked out of this product.
	_, err = env.holds.CreateHold(ctx, "agent-1", "prod-1")
	assert.ErrorIs(t, err, models.ErrCooldown)

	// Another agent is unaffected.
	_, err = env.holds.CreateHold(ctx, "agent-2", "prod-1")
	assert.NoError(t, err)

	// Past the cooldown the original agent may try again.
	env.clock.Advance(5*time.Minute + time.Second)
	_, err = env.holds.CreateHold(ctx, "agent-1", "prod-1")
	assert.NoError(t, err)
}

func TestCooldownWithoutSweep(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.holds.CreateHold(ctx, "agent-1", "prod-1")
	require.NoError(t, err)

	// The sweep has not run, but the overdue hold still triggers the
	// cooldown through lazy expiry inside the create path.
	env.clock.Advance(31 * time.Minute)
	_, err = env.holds.CreateHold(ctx, "agent-1", "prod-1")
	assert.ErrorIs(t, err, models.ErrCooldown)
}

func TestSweepBeatsLateConversion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	hold, err := env.holds.CreateHold(ctx, "agent-1", "prod-1")
	require.NoError(t, err)

	env.clock.Advance(31 * time.Minute)
	_, err = env.holds.ExpireStaleHolds(ctx)
	require.NoError(t, err)

	// The client's countdown does not matter; once the server expired the
	// hold, conversion is refused.
	_, err = env.deals.ConvertHoldToDeal(ctx, ConvertHoldInput{
		HoldID:                hold.ID,
		AgentID:               "agent-1",
		OrderScreenshotPath:   "orders/late.png",
		CustomerName:          "Jane Buyer",
		MarketplaceProfileURL: "https://example.com/profile",
	})
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestGetHold_Visibility(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	hold, err := env.holds.CreateHold(ctx, "agent-1", "prod-1")
	require.NoError(t, err)

	_, err = env.holds.GetHold(ctx, "agent-2", hold.ID)
	assert.ErrorIs(t, err, models.ErrNotOwner)

	_, err = env.holds.GetHold(ctx, "admin-1", hold.ID)
	assert.NoError(t, err)
}

func TestListHolds_Scoping(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.holds.CreateHold(ctx, "agent-1", "prod-1")
	require.NoError(t, err)
	_, err = env.holds.CreateHold(ctx, "agent-2", "prod-1")
	require.NoError(t, err)

	mine, err := env.holds.ListHolds(ctx, "agent-1")
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	all, err := env.holds.ListHolds(ctx, "admin-1")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
