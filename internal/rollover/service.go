package rollover

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/meadowlane/pickups-backend/internal/pickups"
	"github.com/meadowlane/pickups-backend/internal/schedule"
	"github.com/meadowlane/pickups-backend/internal/subscriptions"
	"github.com/meadowlane/pickups-backend/pkg/db/models"
	"github.com/meadowlane/pickups-backend/pkg/enums"
	pkgerrors "github.com/meadowlane/pickups-backend/pkg/errors"
	"github.com/meadowlane/pickups-backend/pkg/logger"
	"github.com/meadowlane/pickups-backend/pkg/outbox"
)

// Lifecycle is the slice of the subscription service the sweeps need.
type Lifecycle interface {
	Resume(ctx context.Context, shopDomain string, id uuid.UUID, actor subscriptions.Actor) (*models.Subscription, error)
}

// Result reports one shop's rollover sweep. The sweep is per-subscription:
// one failure never aborts the rest.
type Result struct {
	Processed int
	Created   int
	Errors    []error
}

// Err combines the per-subscription failures into one error, or nil.
func (r Result) Err() error {
	return multierr.Combine(r.Errors...)
}

// ServiceParams groups dependencies for the daily rollover processor.
type ServiceParams struct {
	Subscriptions subscriptions.Repository
	Pickups       pickups.Repository
	Lifecycle     Lifecycle
	TxRunner      subscriptions.TxRunner
	Outbox        subscriptions.OutboxEmitter
	Engine        *schedule.Engine
	Logger        *logger.Logger

	// Calendar is optional; sync failures are logged and swallowed.
	Calendar pickups.CalendarSync

	// MaxBillingFailures mirrors the pause threshold; paused subscriptions at
	// or past it are never auto-resumed.
	MaxBillingFailures int

	Now func() time.Time
}

// Service converts due subscriptions into concrete pickup instances and
// advances their schedules, once per invocation per shop.
type Service struct {
	subs        subscriptions.Repository
	pickups     pickups.Repository
	lifecycle   Lifecycle
	txRunner    subscriptions.TxRunner
	outbox      subscriptions.OutboxEmitter
	engine      *schedule.Engine
	logg        *logger.Logger
	calendar    pickups.CalendarSync
	maxFailures int
	now         func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscription repo required")
	}
	if params.Pickups == nil {
		return nil, fmt.Errorf("pickup repo required")
	}
	if params.Lifecycle == nil {
		return nil, fmt.Errorf("lifecycle service required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Engine == nil {
		return nil, fmt.Errorf("schedule engine required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.MaxBillingFailures <= 0 {
		params.MaxBillingFailures = 3
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &Service{
		subs:        params.Subscriptions,
		pickups:     params.Pickups,
		lifecycle:   params.Lifecycle,
		txRunner:    params.TxRunner,
		outbox:      params.Outbox,
		engine:      params.Engine,
		logg:        params.Logger,
		calendar:    params.Calendar,
		maxFailures: params.MaxBillingFailures,
		now:         params.Now,
	}, nil
}

// RunDailyRollover materializes every due pickup for the shop and advances
// each subscription to its next cycle.
func (s *Service) RunDailyRollover(ctx context.Context, shopDomain string) Result {
	logCtx := s.logg.WithShop(ctx, shopDomain)
	today := s.engine.Today(s.now())

	due, err := s.subs.FindDueActive(ctx, shopDomain, today)
	if err != nil {
		return Result{Errors: []error{
			pkgerrors.Wrap(pkgerrors.CodeDependency, err, "querying due subscriptions"),
		}}
	}

	result := Result{}
	for i := range due {
		sub := due[i]
		result.Processed++

		instance, err := s.rollSubscription(ctx, &sub)
		if err != nil {
			subCtx := s.logg.WithSubscriptionID(logCtx, sub.ID.String())
			s.logg.Error(subCtx, "rollover failed for subscription", err)
			result.Errors = append(result.Errors, fmt.Errorf("subscription %s: %w", sub.ID, err))
			continue
		}
		result.Created++

		if s.calendar != nil {
			if calErr := s.calendar.CreateEvent(ctx, instance); calErr != nil {
				s.logg.Error(s.logg.WithPickupID(logCtx, instance.ID.String()),
					"calendar sync failed", calErr)
			}
		}
	}

	s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
		"processed": result.Processed,
		"created":   result.Created,
		"errored":   len(result.Errors),
	}), "daily rollover complete")
	return result
}

// rollSubscription materializes one pickup and advances the schedule in a
// single transaction.
func (s *Service) rollSubscription(ctx context.Context, sub *models.Subscription) (*models.PickupInstance, error) {
	if sub.NextPickupDate == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "due subscription has no next pickup date")
	}
	pickupDate := *sub.NextPickupDate
	timeSlot := sub.CurrentTimeSlot()

	var instance *models.PickupInstance
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		subRepo := s.subs.WithTx(tx)
		pickupRepo := s.pickups.WithTx(tx)

		subID := sub.ID
		instance = &models.PickupInstance{
			ShopDomain:     sub.ShopDomain,
			SubscriptionID: &subID,
			CustomerEmail:  sub.CustomerEmail,
			CustomerName:   sub.CustomerName,
			ProductLabel:   sub.ProductLabel,
			PickupDate:     pickupDate,
			TimeSlot:       timeSlot,
			Status:         enums.PickupStatusScheduled,
		}
		if err := pickupRepo.Create(ctx, instance); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating pickup instance")
		}

		next := s.engine.NextPickupAfter(pickupDate, sub.PreferredDay, sub.Frequency)
		billing := s.engine.BillingInstant(next, schedule.ParseClock(sub.PreferredSlotStart), sub.BillingLeadHours)
		sub.NextPickupDate = &next
		sub.NextBillingDate = &billing
		// A materialized override must not re-fire.
		sub.ClearOneTimeFields()
		if err := subRepo.Update(ctx, sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "advancing subscription")
		}
		if err := subRepo.AppendNote(ctx, &models.SubscriptionNote{
			SubscriptionID: sub.ID,
			Actor:          "system",
			Message: fmt.Sprintf("pickup scheduled for %s, next cycle %s",
				pickupDate.Format("2006-01-02"), next.Format("2006-01-02")),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "appending subscription note")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPickupScheduled,
			AggregateType: enums.AggregatePickup,
			AggregateID:   instance.ID,
			Data: map[string]any{
				"pickupId":       instance.ID.String(),
				"subscriptionId": sub.ID.String(),
				"shopDomain":     sub.ShopDomain,
				"pickupDate":     pickupDate,
				"timeSlot":       timeSlot,
			},
			OccurredAt: s.now(),
		})
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

// RunAutoResumeSweep lifts pauses whose resume date has passed. Pauses caused
// by repeated billing failures need manual intervention and are skipped.
func (s *Service) RunAutoResumeSweep(ctx context.Context, shopDomain string) (int, error) {
	logCtx := s.logg.WithShop(ctx, shopDomain)
	today := s.engine.Today(s.now())

	due, err := s.subs.FindPausedDue(ctx, shopDomain, today)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "querying paused subscriptions")
	}

	resumed := 0
	var errs error
	for i := range due {
		sub := due[i]
		subCtx := s.logg.WithSubscriptionID(logCtx, sub.ID.String())

		if sub.BillingFailureCount >= s.maxFailures &&
			sub.PauseReason != nil && *sub.PauseReason == subscriptions.PauseReasonBillingFailure {
			s.logg.Warn(subCtx, "skipping auto-resume, billing failures need manual review")
			continue
		}

		if _, err := s.lifecycle.Resume(ctx, shopDomain, sub.ID, subscriptions.SystemActor); err != nil {
			s.logg.Error(subCtx, "auto-resume failed", err)
			errs = multierr.Append(errs, fmt.Errorf("subscription %s: %w", sub.ID, err))
			continue
		}
		resumed++
	}

	s.logg.Info(s.logg.WithField(logCtx, "resumed", resumed), "auto-resume sweep complete")
	return resumed, errs
}
