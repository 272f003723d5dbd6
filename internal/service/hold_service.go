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
	"reservation-service/internal/redisclient"
	"reservation-service/internal/store"
	"reservation-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HoldService implements the hold lifecycle: creation with inventory and
// eligibility checks, server-enforced expiry, the one-shot extension, agent
// cancellation, and the post-expiry cooldown.
type HoldService struct {
	store  store.Store
	redis  *redisclient.Client
	events *broker.EventPublisher
	authz  *Authorizer
	clock  clock.Clock
	cfg    config.BusinessConfig
	logger *zap.Logger
}

// NewHoldService creates a new hold service. redis and events may be nil;
// both are fast paths around the authoritative store.
func NewHoldService(
	st store.Store,
	redis *redisclient.Client,
	events *broker.EventPublisher,
	authz *Authorizer,
	clk clock.Clock,
	cfg config.BusinessConfig,
) *HoldService {
	return &HoldService{
		store:  st,
		redis:  redis,
		events: events,
		authz:  authz,
		clock:  clk,
		cfg:    cfg,
		logger: util.GetLogger(),
	}
}

// CreateHold reserves one unit of the product for the agent. All
// preconditions are re-checked inside the store transaction; the Redis
// checks only reject obviously doomed requests early.
func (s *HoldService) CreateHold(ctx context.Context, agentID, productID string) (*models.Hold, error) {
	ctx, span := util.StartSpan(ctx, "HoldService.CreateHold")
	defer span.End()

	if err := s.authz.Require(ctx, agentID, CapReserve); err != nil {
		return nil, err
	}

	now := s.clock.Now()

	product, err := s.store.GetProductByID(ctx, productID)
	if err != nil {
		util.HoldsRejectedTotal.WithLabelValues("not_found").Inc()
		return nil, err
	}
	if !product.Reservable(now) {
		util.HoldsRejectedTotal.WithLabelValues("inactive").Inc()
		return nil, models.ErrProductInactive
	}

	blocked, err := s.store.IsAgentBlocked(ctx, productID, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to check block list: %w", err)
	}
	if blocked {
		util.HoldsRejectedTotal.WithLabelValues("blocked").Inc()
		return nil, models.ErrForbidden
	}

	tookSlot := false
	if s.redis != nil {
		cooling, err := s.redis.InCooldown(ctx, productID, agentID)
		if err != nil {
			s.logger.Warn("Redis cooldown check failed, deferring to store",
				zap.String("product_id", productID), zap.Error(err))
		} else if cooling {
			util.HoldsRejectedTotal.WithLabelValues("cooldown").Inc()
			return nil, models.ErrCooldown
		}

		if product.DailyLimit != nil {
			ok, err := s.redis.TakeDailySlot(ctx, productID, now, *product.DailyLimit)
			if err != nil {
				s.logger.Warn("Redis daily-limit check failed, deferring to store",
					zap.String("product_id", productID), zap.Error(err))
			} else if !ok {
				util.HoldsRejectedTotal.WithLabelValues("daily_limit").Inc()
				return nil, models.ErrSoldOut
			} else {
				tookSlot = true
			}
		}
	}

	hold := &models.Hold{
		ID:        uuid.New().String(),
		ProductID: productID,
		AgentID:   agentID,
		Status:    models.HoldStatusActive,
		ExpiresAt: now.Add(s.cfg.HoldWindow),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.CreateHoldTx(ctx, hold, s.cfg.Cooldown); err != nil {
		if tookSlot {
			if rerr := s.redis.ReleaseDailySlot(ctx, productID, now); rerr != nil {
				s.logger.Error("Failed to release daily slot",
					zap.String("product_id", productID), zap.Error(rerr))
			}
		}
		util.HoldsRejectedTotal.WithLabelValues(rejectReason(err)).Inc()
		return nil, err
	}

	util.HoldsCreatedTotal.Inc()
	s.logger.Info("Hold created",
		zap.String("hold_id", hold.ID),
		zap.String("product_id", productID),
		zap.String("agent_id", agentID),
		zap.Time("expires_at", hold.ExpiresAt))

	if s.events != nil {
		event := &models.HoldCreatedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeHoldCreated,
				Timestamp: now,
			},
			HoldID:    hold.ID,
			ProductID: productID,
			AgentID:   agentID,
			ExpiresAt: hold.ExpiresAt,
		}
		if err := s.events.PublishHoldCreated(ctx, event); err != nil {
			s.logger.Error("Failed to publish HoldCreated event", zap.Error(err))
		}
	}

	return hold, nil
}

// ExtendHold grants the single five-minute extension, allowed only inside
// the closing window before expiry.
func (s *HoldService) ExtendHold(ctx context.Context, agentID, holdID string) error {
	ctx, span := util.StartSpan(ctx, "HoldService.ExtendHold")
	defer span.End()

	if err := s.authz.Require(ctx, agentID, CapReserve); err != nil {
		return err
	}

	now := s.clock.Now()

	hold, err := s.store.GetHoldByID(ctx, holdID)
	if err != nil {
		return err
	}
	if hold.AgentID != agentID {
		return models.ErrNotOwner
	}
	if hold.Status != models.HoldStatusActive || !hold.ExpiresAt.After(now) {
		if hold.Status == models.HoldStatusExpired || (hold.Status == models.HoldStatusActive && !hold.ExpiresAt.After(now)) {
			return models.ErrHoldExpired
		}
		return models.ErrInvalidState
	}
	if hold.Extended {
		return models.ErrInvalidState
	}
	if hold.ExpiresAt.Sub(now) > s.cfg.ExtendWindow {
		return models.ErrTooEarly
	}

	ok, err := s.store.ExtendHoldIf(ctx, holdID, agentID, hold.ExpiresAt.Add(s.cfg.HoldExtension), now)
	if err != nil {
		return fmt.Errorf("failed to extend hold: %w", err)
	}
	if !ok {
		return models.ErrConflict
	}

	util.HoldsExtendedTotal.Inc()
	s.logger.Info("Hold extended", zap.String("hold_id", holdID))
	return nil
}

// CancelHold releases an active hold before its deadline.
func (s *HoldService) CancelHold(ctx context.Context, agentID, holdID string) error {
	ctx, span := util.StartSpan(ctx, "HoldService.CancelHold")
	defer span.End()

	if err := s.authz.Require(ctx, agentID, CapReserve); err != nil {
		return err
	}

	now := s.clock.Now()

	hold, err := s.store.GetHoldByID(ctx, holdID)
	if err != nil {
		return err
	}
	if hold.AgentID != agentID {
		return models.ErrNotOwner
	}
	if hold.Status != models.HoldStatusActive {
		return models.ErrInvalidState
	}
	if !hold.ExpiresAt.After(now) {
		return models.ErrHoldExpired
	}

	ok, err := s.store.CancelHoldIf(ctx, holdID, agentID, now)
	if err != nil {
		return fmt.Errorf("failed to cancel hold: %w", err)
	}
	if !ok {
		return models.ErrConflict
	}

	util.HoldsCancelledTotal.Inc()
	s.logger.Info("Hold cancelled", zap.String("hold_id", holdID))

	if s.events != nil {
		event := &models.HoldCancelledEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeHoldCancelled,
				Timestamp: now,
			},
			HoldID:    holdID,
			ProductID: hold.ProductID,
			AgentID:   agentID,
		}
		if err := s.events.PublishHoldCancelled(ctx, event); err != nil {
			s.logger.Error("Failed to publish HoldCancelled event", zap.Error(err))
		}
	}

	return nil
}

// ExpireStaleHolds flips every overdue active hold to expired and plants
// the cooldown markers. Idempotent; safe to run concurrently with
// conversions because the store update is conditioned on the stored status.
func (s *HoldService) ExpireStaleHolds(ctx context.Context) (int, error) {
	ctx, span := util.StartSpan(ctx, "HoldService.ExpireStaleHolds")
	defer span.End()

	start := time.Now()
	defer func() {
		util.SweepLatency.Observe(time.Since(start).Seconds())
	}()

	now := s.clock.Now()

	expired, err := s.store.ExpireStaleHolds(ctx, now)
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}

	util.HoldsExpiredTotal.Add(float64(len(expired)))
	s.logger.Info("Expired stale holds", zap.Int("count", len(expired)))

	if s.redis != nil {
		for _, hold := range expired {
			if err := s.redis.SetCooldown(ctx, hold.ProductID, hold.AgentID, s.cfg.Cooldown); err != nil {
				s.logger.Error("Failed to set cooldown marker",
					zap.String("hold_id", hold.ID), zap.Error(err))
			}
		}
	}

	if s.events != nil {
		event := &models.HoldExpiredEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeHoldExpired,
				Timestamp: now,
			},
			Count: len(expired),
		}
		if err := s.events.PublishHoldExpired(ctx, event); err != nil {
			s.logger.Error("Failed to publish HoldExpired event", zap.Error(err))
		}
	}

	return len(expired), nil
}

// GetHold retrieves a hold. Agents see their own; admins see all.
func (s *HoldService) GetHold(ctx context.Context, actorID, holdID string) (*models.Hold, error) {
	hold, err := s.store.GetHoldByID(ctx, holdID)
	if err != nil {
		return nil, err
	}
	if hold.AgentID != actorID {
		admin, err := s.authz.Can(ctx, actorID, CapReviewDeals)
		if err != nil {
			return nil, err
		}
		if !admin {
			return nil, models.ErrNotOwner
		}
	}
	return hold, nil
}

// ListProducts returns the catalog for browsing agents.
func (s *HoldService) ListProducts(ctx context.Context, actorID string) ([]models.Product, error) {
	if err := s.authz.Require(ctx, actorID, CapReserve); err != nil {
		return nil, err
	}
	return s.store.ListProducts(ctx)
}

// ListHolds returns the actor's holds, or every hold for admins.
func (s *HoldService) ListHolds(ctx context.Context, actorID string) ([]models.Hold, error) {
	admin, err := s.authz.Can(ctx, actorID, CapReviewDeals)
	if err != nil {
		return nil, err
	}
	if admin {
		return s.store.ListHolds(ctx, "")
	}
	return s.store.ListHolds(ctx, actorID)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, models.ErrProductNotFound):
		return "not_found"
	case errors.Is(err, models.ErrProductInactive):
		return "inactive"
	case errors.Is(err, models.ErrSoldOut):
		return "sold_out"
	case errors.Is(err, models.ErrAlreadyHeld):
		return "already_held"
	case errors.Is(err, models.ErrCooldown):
		return "cooldown"
	default:
		return "error"
	}
}
