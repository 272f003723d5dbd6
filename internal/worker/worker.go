package worker

import (
	"context"
	"log"
	"time"

	"reservation-service/internal/broker"
	"reservation-service/internal/models"
	"reservation-service/internal/service"
	"reservation-service/internal/store"
)

// SweepWorker periodically expires overdue holds. Expiry is authoritative
// here regardless of what clients display.
type SweepWorker struct {
	holds    *service.HoldService
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// NewSweepWorker creates a new sweep worker
func NewSweepWorker(holds *service.HoldService, interval time.Duration) *SweepWorker {
	return &SweepWorker{
		holds:    holds,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the sweep loop until ctx is cancelled or Stop is called
func (sw *SweepWorker) Start(ctx context.Context) {
	log.Println("Starting sweep worker...")

	go func() {
		defer close(sw.done)

		ticker := time.NewTicker(sw.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				count, err := sw.holds.ExpireStaleHolds(ctx)
				if err != nil {
					log.Printf("Hold sweep failed: %v", err)
					continue
				}
				if count > 0 {
					log.Printf("Hold sweep expired %d holds", count)
				}
			case <-ctx.Done():
				return
			case <-sw.stop:
				return
			}
		}
	}()
}

// Stop stops the sweep worker and waits for the loop to exit
func (sw *SweepWorker) Stop() {
	log.Println("Stopping sweep worker...")
	close(sw.stop)
	<-sw.done
}

// Notifier receives deal-lifecycle notifications. Engine-side delivery is
// log-only; a Telegram or email sender can replace it without touching the
// worker.
type Notifier interface {
	NotifyDealSubmitted(ctx context.Context, event *models.DealSubmittedEvent) error
	NotifyDealStatusChanged(ctx context.Context, event *models.DealStatusChangedEvent) error
	NotifyCommissionCredited(ctx context.Context, event *models.CommissionCreditedEvent) error
}

// LogNotifier is the default Notifier
type LogNotifier struct{}

func (LogNotifier) NotifyDealSubmitted(_ context.Context, event *models.DealSubmittedEvent) error {
	log.Printf("Deal submitted: deal=%s agent=%s commission=%d", event.DealID, event.AgentID, event.CommissionCents)
	return nil
}

func (LogNotifier) NotifyDealStatusChanged(_ context.Context, event *models.DealStatusChangedEvent) error {
	log.Printf("Deal status changed: deal=%s %s -> %s", event.DealID, event.FromStatus, event.ToStatus)
	return nil
}

func (LogNotifier) NotifyCommissionCredited(_ context.Context, event *models.CommissionCreditedEvent) error {
	log.Printf("Commission credited: credit=%s agent=%s amount=%d", event.CreditID, event.AgentID, event.AmountCents)
	return nil
}

// NotifyWorker consumes deal events and forwards them to a Notifier.
// Events are deduplicated through the processed_events table, so a
// redelivered Kafka message never notifies twice.
type NotifyWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
}

// NewNotifyWorker creates a new notify worker
func NewNotifyWorker(consumer *broker.Consumer, st store.Store, notifier Notifier) *NotifyWorker {
	eventHandler := broker.NewEventHandler()

	eventHandler.OnDealSubmitted(func(ctx context.Context, event *models.DealSubmittedEvent) error {
		return dedupe(ctx, st, event.EventID, event.EventType, func() error {
			return notifier.NotifyDealSubmitted(ctx, event)
		})
	})
	eventHandler.OnDealStatusChanged(func(ctx context.Context, event *models.DealStatusChangedEvent) error {
		return dedupe(ctx, st, event.EventID, event.EventType, func() error {
			return notifier.NotifyDealStatusChanged(ctx, event)
		})
	})
	eventHandler.OnCommissionCredited(func(ctx context.Context, event *models.CommissionCreditedEvent) error {
		return dedupe(ctx, st, event.EventID, event.EventType, func() error {
			return notifier.NotifyCommissionCredited(ctx, event)
		})
	})

	return &NotifyWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
	}
}

// Start starts the notify worker
func (nw *NotifyWorker) Start(ctx context.Context) error {
	log.Println("Starting notify worker...")
	return nw.consumer.StartConsuming(ctx, nw.eventHandler.HandleMessage)
}

// Stop stops the notify worker
func (nw *NotifyWorker) Stop() error {
	log.Println("Stopping notify worker...")
	return nw.consumer.Close()
}

func dedupe(ctx context.Context, st store.Store, eventID, eventType string, fn func() error) error {
	processed, err := st.IsEventProcessed(ctx, eventID)
	if err != nil {
		return err
	}
	if processed {
		log.Printf("Skipping already processed event: %s", eventID)
		return nil
	}
	if err := fn(); err != nil {
		return err
	}
	return st.MarkEventProcessed(ctx, eventID, eventType)
}
