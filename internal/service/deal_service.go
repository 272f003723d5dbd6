package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reservation-service/config"
	"reservation-service/internal/broker"
	"reservation-service/internal/clock"
	"reservation-service/internal/models"
	"reservation-service/internal/store"
	"reservation-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// adminNext is the admin-driven forward chain. Review evidence comes after
// approval: the approved -> review_uploaded step belongs to the agent (see
// UploadReviewEvidence), so it is absent here.
var adminNext = map[string]string{
	models.DealStatusSoldSubmitted:  models.DealStatusApproved,
	models.DealStatusReviewUploaded: models.DealStatusPaidToClient,
	models.DealStatusPaidToClient:   models.DealStatusCompleted,
}

// DealService implements the conversion protocol and the admin-driven deal
// review state machine, including commission-credit issuance.
type DealService struct {
	store  store.Store
	events *broker.EventPublisher
	authz  *Authorizer
	clock  clock.Clock
	cfg    config.BusinessConfig
	logger *zap.Logger
}

// NewDealService creates a new deal service. events may be nil.
func NewDealService(
	st store.Store,
	events *broker.EventPublisher,
	authz *Authorizer,
	clk clock.Clock,
	cfg config.BusinessConfig,
) *DealService {
	return &DealService{
		store:  st,
		events: events,
		authz:  authz,
		clock:  clk,
		cfg:    cfg,
		logger: util.GetLogger(),
	}
}

// ConvertHoldInput carries the order evidence and customer contact fields
// collected by the external layer.
type ConvertHoldInput struct {
	HoldID                string
	AgentID               string
	OrderScreenshotPath   string
	CustomerName          string
	CustomerPaypal        string
	CustomerTelegram      string
	MarketplaceProfileURL string
}

// ConvertHoldToDeal atomically turns an active hold plus order evidence
// into a deal. Exactly one of two concurrent attempts on the same hold
// succeeds; the loser gets a classified error.
func (s *DealService) ConvertHoldToDeal(ctx context.Context, in ConvertHoldInput) (*models.Deal, error) {
	ctx, span := util.StartSpan(ctx, "DealService.ConvertHoldToDeal")
	defer span.End()

	if err := s.authz.Require(ctx, in.AgentID, CapReserve); err != nil {
		return nil, err
	}
	if in.OrderScreenshotPath == "" || in.CustomerName == "" || in.MarketplaceProfileURL == "" {
		return nil, models.ErrValidation
	}

	now := s.clock.Now()

	hold, err := s.store.GetHoldByID(ctx, in.HoldID)
	if err != nil {
		return nil, err
	}

	product, err := s.store.GetProductByID(ctx, hold.ProductID)
	if err != nil {
		return nil, err
	}

	// Snapshot the commission now so later product edits cannot change
	// what this deal pays out. A per-agent override wins over the
	// product's own commission.
	commission := product.CommissionCents
	override, err := s.store.GetCommissionOverride(ctx, hold.ProductID, in.AgentID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve commission: %w", err)
	}
	if override != nil {
		commission = override.CommissionCents
	}

	holdID := in.HoldID
	deal := &models.Deal{
		ID:                    uuid.New().String(),
		HoldID:                &holdID,
		ProductID:             hold.ProductID,
		AgentID:               in.AgentID,
		Status:                models.DealStatusSoldSubmitted,
		CustomerName:          in.CustomerName,
		CustomerPaypal:        in.CustomerPaypal,
		CustomerTelegram:      in.CustomerTelegram,
		MarketplaceProfileURL: in.MarketplaceProfileURL,
		OrderScreenshotPath:   in.OrderScreenshotPath,
		CommissionCents:       commission,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	if err := s.store.ConvertHoldTx(ctx, deal, now); err != nil {
		if errors.Is(err, models.ErrInvalidState) || errors.Is(err, models.ErrHoldExpired) || errors.Is(err, models.ErrConflict) {
			util.ConversionConflictsTotal.Inc()
		}
		return nil, err
	}

	util.HoldsConvertedTotal.Inc()
	s.logger.Info("Hold converted to deal",
		zap.String("hold_id", in.HoldID),
		zap.String("deal_id", deal.ID),
		zap.Int64("commission_cents", commission))

	if s.events != nil {
		event := &models.DealSubmittedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeDealSubmitted,
				Timestamp: now,
			},
			DealID:          deal.ID,
			HoldID:          in.HoldID,
			ProductID:       hold.ProductID,
			AgentID:         in.AgentID,
			CommissionCents: commission,
		}
		if err := s.events.PublishDealSubmitted(ctx, event); err != nil {
			s.logger.Error("Failed to publish DealSubmitted event", zap.Error(err))
		}
	}

	return deal, nil
}

// AdvanceDeal moves a deal one step along the admin chain. The transition
// into completed inserts the commission credit in the same transaction.
func (s *DealService) AdvanceDeal(ctx context.Context, actorID, dealID, target string) error {
	ctx, span := util.StartSpan(ctx, "DealService.AdvanceDeal")
	defer span.End()

	if err := s.authz.Require(ctx, actorID, CapReviewDeals); err != nil {
		return err
	}

	now := s.clock.Now()

	deal, err := s.store.GetDealByID(ctx, dealID)
	if err != nil {
		return err
	}

	next, ok := adminNext[deal.Status]
	if !ok || next != target {
		return models.ErrInvalidState
	}

	var credit *models.CommissionCredit
	if target == models.DealStatusCompleted {
		credit = &models.CommissionCredit{
			ID:          uuid.New().String(),
			DealID:      deal.ID,
			AgentID:     deal.AgentID,
			ProductID:   deal.ProductID,
			AmountCents: deal.CommissionCents,
			CreatedAt:   now,
		}
	}

	if err := s.store.AdvanceDealTx(ctx, dealID, deal.Status, target, "", now, credit); err != nil {
		return err
	}

	util.DealTransitionsTotal.WithLabelValues(target).Inc()
	s.logger.Info("Deal advanced",
		zap.String("deal_id", dealID),
		zap.String("from", deal.Status),
		zap.String("to", target))

	s.publishStatusChange(ctx, deal, actorID, target, now)

	if credit != nil {
		util.CommissionCreditsTotal.Inc()
		util.CommissionCentsTotal.Add(float64(credit.AmountCents))

		if s.events != nil {
			event := &models.CommissionCreditedEvent{
				BaseEvent: models.BaseEvent{
					EventID:   uuid.New().String(),
					EventType: models.EventTypeCommissionCredited,
					Timestamp: now,
				},
				CreditID:    credit.ID,
				DealID:      deal.ID,
				AgentID:     deal.AgentID,
				AmountCents: credit.AmountCents,
			}
			if err := s.events.PublishCommissionCredited(ctx, event); err != nil {
				s.logger.Error("Failed to publish CommissionCredited event", zap.Error(err))
			}
		}
	}

	return nil
}

// RejectDeal marks a deal rejected from any non-terminal state.
func (s *DealService) RejectDeal(ctx context.Context, actorID, dealID, note string) error {
	ctx, span := util.StartSpan(ctx, "DealService.RejectDeal")
	defer span.End()

	if err := s.authz.Require(ctx, actorID, CapReviewDeals); err != nil {
		return err
	}

	now := s.clock.Now()

	deal, err := s.store.GetDealByID(ctx, dealID)
	if err != nil {
		return err
	}
	if models.DealTerminal(deal.Status) {
		return models.ErrInvalidState
	}

	if err := s.store.AdvanceDealTx(ctx, dealID, deal.Status, models.DealStatusRejected, note, now, nil); err != nil {
		return err
	}

	util.DealTransitionsTotal.WithLabelValues(models.DealStatusRejected).Inc()
	s.logger.Info("Deal rejected", zap.String("deal_id", dealID))

	s.publishStatusChange(ctx, deal, actorID, models.DealStatusRejected, now)
	return nil
}

// UploadReviewEvidence records the review link and screenshot and advances
// approved -> review_uploaded. Agent-driven, owner-only.
func (s *DealService) UploadReviewEvidence(ctx context.Context, agentID, dealID, reviewLink, screenshotPath string) error {
	ctx, span := util.StartSpan(ctx, "DealService.UploadReviewEvidence")
	defer span.End()

	if err := s.authz.Require(ctx, agentID, CapReserve); err != nil {
		return err
	}
	if reviewLink == "" || screenshotPath == "" {
		return models.ErrValidation
	}

	now := s.clock.Now()

	deal, err := s.store.GetDealByID(ctx, dealID)
	if err != nil {
		return err
	}
	if deal.AgentID != agentID {
		return models.ErrNotOwner
	}
	if deal.Status != models.DealStatusApproved {
		return models.ErrInvalidState
	}

	ok, err := s.store.SetDealReviewIf(ctx, dealID, agentID, reviewLink, screenshotPath, now)
	if err != nil {
		return fmt.Errorf("failed to record review evidence: %w", err)
	}
	if !ok {
		return models.ErrConflict
	}

	util.DealTransitionsTotal.WithLabelValues(models.DealStatusReviewUploaded).Inc()
	s.logger.Info("Review evidence uploaded", zap.String("deal_id", dealID))

	s.publishStatusChange(ctx, deal, agentID, models.DealStatusReviewUploaded, now)
	return nil
}

// GetDeal retrieves a deal. Agents see their own; admins see all.
func (s *DealService) GetDeal(ctx context.Context, actorID, dealID string) (*models.Deal, error) {
	deal, err := s.store.GetDealByID(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if deal.AgentID != actorID {
		admin, err := s.authz.Can(ctx, actorID, CapReviewDeals)
		if err != nil {
			return nil, err
		}
		if !admin {
			return nil, models.ErrNotOwner
		}
	}
	return deal, nil
}

// ListDeals returns the actor's deals, or all deals for admins, optionally
// filtered by status.
func (s *DealService) ListDeals(ctx context.Context, actorID, status string) ([]models.Deal, error) {
	admin, err := s.authz.Can(ctx, actorID, CapReviewDeals)
	if err != nil {
		return nil, err
	}
	if admin {
		return s.store.ListDeals(ctx, "", status)
	}
	return s.store.ListDeals(ctx, actorID, status)
}

// SalesReport returns daily completed-deal rollups. Admin-only.
func (s *DealService) SalesReport(ctx context.Context, actorID string, from, to time.Time) ([]models.SalesMetric, error) {
	if err := s.authz.Require(ctx, actorID, CapViewReports); err != nil {
		return nil, err
	}
	return s.store.GetSalesMetrics(ctx, from, to)
}

func (s *DealService) publishStatusChange(ctx context.Context, deal *models.Deal, actorID, target string, now time.Time) {
	if s.events == nil {
		return
	}
	event := &models.DealStatusChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeDealStatusChanged,
			Timestamp: now,
		},
		DealID:     deal.ID,
		AgentID:    deal.AgentID,
		FromStatus: deal.Status,
		ToStatus:   target,
		ActorID:    actorID,
	}
	if err := s.events.PublishDealStatusChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish DealStatusChanged event", zap.Error(err))
	}
}
