package service

import (
	"context"
	"testing"
	"time"

	"reservation-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func convertInput(holdID, agentID string) ConvertHoldInput {
	return ConvertHoldInput{
		HoldID:                holdID,
		AgentID:               agentID,
		OrderScreenshotPath:   "orders/abc.png",
		CustomerName:          "Jane Buyer",
		CustomerPaypal:        "jane@example.com",
		MarketplaceProfileURL: "https://example.com/profile/jane",
	}
}

func submitDeal(t *testing.T, env *testEnv, agentID string) *models.Deal {
	t.Helper()
	ctx := context.Background()

	hold, err := env.holds.CreateHold(ctx, agentID, "prod-1")
	require.NoError(t, err)

	deal, err := env.deals.ConvertHoldToDeal(ctx, convertInput(hold.ID, agentID))
	require.NoError(t, err)
	return deal
}

func TestConvertHoldToDeal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	hold, err := env.holds.CreateHold(ctx, "agent-1", "prod-1")
	require.NoError(t, err)

	env.clock.Advance(10 * time.Minute)

	deal, err := env.deals.ConvertHoldToDeal(ctx, convertInput(hold.ID, "agent-1"))
	require.NoError(t, err)

	assert.Equal(t, models.DealStatusSoldSubmitted, deal.Status)
	assert.Equal(t, int64(700), deal.CommissionCents)
	require.NotNil(t, deal.HoldID)
	assert.Equal(t, hold.ID, *deal.HoldID)

	got, err := env.holds.GetHold(ctx, "agent-1", hold.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HoldStatusConverted, got.Status)
}

func TestConvertHoldToDeal_MissingEvidence(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	hold, err := env.holds.CreateHold(ctx, "agent-1", "prod-1")
	require.NoError(t, err)

	in := convertInput(hold.ID, "agent-1")
	in.OrderScreenshotPath = ""
	_, err = env.deals.ConvertHoldToDeal(ctx, in)
	assert.ErrorIs(t, err, models.ErrValidation)

	in = convertInput(hold.ID, "agent-1")
	in.CustomerName = ""
	_, err = env.deals.ConvertHoldToDeal(ctx, in)
	assert.ErrorIs(t, err, models.ErrValidation)

	in = convertInput(hold.ID, "agent-1")
	in.MarketplaceProfileURL = ""
	_, err = env.deals.ConvertHoldToDeal(ctx, in)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestConvertHoldToDeal_ExpiredHold(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	hold, err := env.holds.CreateHold(ctx, "agent-1", "prod-1")
	require.NoError(t, err)

	env.clock.Advance(31 * time.Minute)
	_, err = env.deals.ConvertHoldToDeal(ctx, convertInput(hold.ID, "agent-1"))
	assert.ErrorIs(t, err, models.ErrHoldExpired)
}

func TestConvertHoldToDeal_NotOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	hold, err := env.holds.CreateHold(ctx, "agent-1", "prod-1")
	require.NoError(t, err)

	_, err = env.deals.ConvertHoldToDeal(ctx, convertInput(hold.ID, "agent-2"))
	assert.ErrorIs(t, err, models.ErrNotOwner)
}

func TestConvertHoldToDeal_CommissionOverride(t *testing.T) {
	env := newTestEnv(t)

	env.store.PutCommissionOverride(models.CommissionOverride{
		ID:              "ov-1",
		ProductID:       "prod-1",
		AgentID:         "agent-1",
		CommissionCents: 1200,
	})

	deal := submitDeal(t, env, "agent-1")
	assert.Equal(t, int64(1200), deal.CommissionCents)

	// Agents without an override get the product commission.
	deal2 := submitDeal(t, env, "agent-2")
	assert.Equal(t, int64(700), deal2.CommissionCents)
}

func TestCommissionSnapshotSurvivesProductEdit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	deal := submitDeal(t, env, "agent-1")

	// Raising the product commission after submission must not change
	// what this deal pays.
	env.store.PutProduct(models.Product{
		ID:                 "prod-1",
		OwnerID:            "seller-1",
		Title:              "Wireless Earbuds",
		CommissionCents:    9900,
		TotalQty:           5,
		IsActive:           true,
		MarketplaceCountry: models.CountryES,
	})

	require.NoError(t, env.deals.AdvanceDeal(ctx, "admin-1", deal.ID, models.DealStatusApproved))
	require.NoError(t, env.deals.UploadReviewEvidence(ctx, "agent-1", deal.ID, "https://example.com/review", "reviews/abc.png"))
	require.NoError(t, env.deals.AdvanceDeal(ctx, "admin-1", deal.ID, models.DealStatusPaidToClient))
	require.NoError(t, env.deals.AdvanceDeal(ctx, "admin-1", deal.ID, models.DealStatusCompleted))

	credits := env.store.CommissionCredits()
	require.Len(t, credits, 1)
	assert.Equal(t, int64(700), credits[0].AmountCents)
}

func TestDealReviewChain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	deal := submitDeal(t, env, "agent-1")

	require.NoError(t, env.deals.AdvanceDeal(ctx, "admin-1", deal.ID, models.DealStatusApproved))

	got, err := env.deals.GetDeal(ctx, "agent-1", deal.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DealStatusApproved, got.Status)

	require.NoError(t, env.deals.UploadReviewEvidence(ctx, "agent-1", deal.ID, "https://example.com/review", "reviews/abc.png"))

	got, err = env.deals.GetDeal(ctx, "agent-1", deal.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DealStatusReviewUploaded, got.Status)
	assert.Equal(t, "https://example.com/review", got.ReviewLink)

	require.NoError(t, env.deals.AdvanceDeal(ctx, "admin-1", deal.ID, models.DealStatusPaidToClient))
	require.NoError(t, env.deals.AdvanceDeal(ctx, "admin-1", deal.ID, models.DealStatusCompleted))

	got, err = env.deals.GetDeal(ctx, "agent-1", deal.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DealStatusCompleted, got.Status)

	credits, err := env.store.ListCommissionCreditsByAgent(ctx, "agent-1")
	require.NoError(t, err)
	require.Len(t, credits, 1)
	assert.Equal(t, deal.ID, credits[0].DealID)
	assert.Equal(t, int64(700), credits[0].AmountCents)
}

func TestAdvanceDeal_SkippingStepsRefused(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	deal := submitDeal(t, env, "agent-1")

	err := env.deals.AdvanceDeal(ctx, "admin-1", deal.ID, models.DealStatusCompleted)
	assert.ErrorIs(t, err, models.ErrInvalidState)

	err = env.deals.AdvanceDeal(ctx, "admin-1", deal.ID, models.DealStatusPaidToClient)
	assert.ErrorIs(t, err, models.ErrInvalidState)

	// approved -> review_uploaded belongs to the agent, not the admin.
	require.NoError(t, env.deals.AdvanceDeal(ctx, "admin-1", deal.ID, models.DealStatusApproved))
	err = env.deals.AdvanceDeal(ctx, "admin-1", deal.ID, models.DealStatusReviewUploaded)
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestAdvanceDeal_AdminOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	deal := submitDeal(t, env, "agent-1")

	err := env.deals.AdvanceDeal(ctx, "agent-1", deal.ID, models.DealStatusApproved)
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestAdvanceDeal_CompletedIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	deal := submitDeal(t, env, "agent-1")

	require.NoError(t, env.deals.AdvanceDeal(ctx, "admin-1", deal.ID, models.DealStatusApproved))
	require.NoError(t, env.deals.UploadReviewEvidence(ctx, "agent-1", deal.ID, "https://example.com/review", "reviews/abc.png"))
	require.NoError(t, env.deals.AdvanceDeal(ctx, "admin-1", deal.ID, models.DealStatusPaidToClient))
	require.NoError(t, env.deals.AdvanceDeal(ctx, "admin-1", deal.ID, models.DealStatusCompleted))

	err := env.deals.AdvanceDeal(ctx, "admin-1", deal.ID, models.DealStatusCompleted)
	assert.ErrorIs(t, err, models.ErrInvalidState)

	err = env.deals.RejectDeal(ctx, "admin-1", deal.ID, "too late")
	assert.ErrorIs(t, err, models.ErrInvalidState)

	// Still exactly one credit.
	assert.Len(t, env.store.CommissionCredits(), 1)
}

func TestRejectDeal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	deal := submitDeal(t, env, "agent-1")

	require.NoError(t, env.deals.AdvanceDeal(ctx, "admin-1", deal.ID, models.DealStatusApproved))
	require.NoError(t, env.deals.RejectDeal(ctx, "admin-1", deal.ID, "review looks fabricated"))

	got, err := env.deals.GetDeal(ctx, "agent-1", deal.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DealStatusRejected, got.Status)
	assert.Equal(t, "review looks fabricated", got.AdminNote)

	// A rejected deal never pays out.
	assert.Empty(t, env.store.CommissionCredits())
}

func TestUploadReviewEvidence_Guards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	deal := submitDeal(t, env, "agent-1")

	// Not yet approved.
	err := env.deals.UploadReviewEvidence(ctx, "agent-1", deal.ID, "https://example.com/review", "reviews/abc.png")
	assert.ErrorIs(t, err, models.ErrInvalidState)

	require.NoError(t, env.deals.AdvanceDeal(ctx, "admin-1", deal.ID, models.DealStatusApproved))

	err = env.deals.UploadReviewEvidence(ctx, "agent-2", deal.ID, "https://example.com/review", "reviews/abc.png")
	assert.ErrorIs(t, err, models.ErrNotOwner)

	err = env.deals.UploadReviewEvidence(ctx, "agent-1", deal.ID, "", "reviews/abc.png")
	assert.ErrorIs(t, err, models.ErrValidation)

	require.NoError(t, env.deals.UploadReviewEvidence(ctx, "agent-1", deal.ID, "https://example.com/review", "reviews/abc.png"))

	// One-shot: the state has moved on.
	err = env.deals.UploadReviewEvidence(ctx, "agent-1", deal.ID, "https://example.com/other", "reviews/other.png")
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestListDeals_Scoping(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	submitDeal(t, env, "agent-1")
	submitDeal(t, env, "agent-2")

	mine, err := env.deals.ListDeals(ctx, "agent-1", "")
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	all, err := env.deals.ListDeals(ctx, "admin-1", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	none, err := env.deals.ListDeals(ctx, "admin-1", models.DealStatusCompleted)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSalesReport_AdminOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	deal := submitDeal(t, env, "agent-1")
	require.NoError(t, env.deals.AdvanceDeal(ctx, "admin-1", deal.ID, models.DealStatusApproved))
	require.NoError(t, env.deals.UploadReviewEvidence(ctx, "agent-1", deal.ID, "https://example.com/review", "reviews/abc.png"))
	require.NoError(t, env.deals.AdvanceDeal(ctx, "admin-1", deal.ID, models.DealStatusPaidToClient))
	require.NoError(t, env.deals.AdvanceDeal(ctx, "admin-1", deal.ID, models.DealStatusCompleted))

	_, err := env.deals.SalesReport(ctx, "agent-1", envStart.Add(-time.Hour), envStart.Add(time.Hour))
	assert.ErrorIs(t, err, models.ErrForbidden)

	metrics, err := env.deals.SalesReport(ctx, "admin-1", envStart.Add(-time.Hour), envStart.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	assert.Equal(t, models.CountryES, metrics[0].Country)
	assert.Equal(t, 1, metrics[0].DealCount)
	assert.Equal(t, int64(700), metrics[0].TotalCommissionCents)
}
