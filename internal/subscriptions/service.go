package subscriptions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/meadowlane/pickups-backend/internal/schedule"
	"github.com/meadowlane/pickups-backend/pkg/db/models"
	"github.com/meadowlane/pickups-backend/pkg/enums"
	pkgerrors "github.com/meadowlane/pickups-backend/pkg/errors"
	"github.com/meadowlane/pickups-backend/pkg/logger"
	"github.com/meadowlane/pickups-backend/pkg/outbox"
)

// PauseReasonBillingFailure marks pauses applied automatically after repeated
// failed billing attempts. The auto-resume sweep never lifts these.
const PauseReasonBillingFailure = "billing_failure"

// Actor identifies who is asking for a transition. Staff actors bypass the
// customer ownership check.
type Actor struct {
	Email string
	Staff bool
}

// SystemActor marks automated transitions such as the auto-resume sweep.
var SystemActor = Actor{Staff: true}

// CanManage reports whether the actor may mutate the subscription.
func (a Actor) CanManage(sub *models.Subscription) bool {
	if a.Staff {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(a.Email), strings.TrimSpace(sub.CustomerEmail))
}

func (a Actor) String() string {
	if a.Staff {
		if a.Email != "" {
			return "staff:" + a.Email
		}
		return "staff"
	}
	if a.Email != "" {
		return "customer:" + a.Email
	}
	return "system"
}

func (a Actor) ref() *outbox.ActorRef {
	return &outbox.ActorRef{Email: a.Email, Staff: a.Staff}
}

// TxRunner executes a function inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// OutboxEmitter queues a domain event inside the supplied transaction.
type OutboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// EventData is the outbox payload for subscription transitions.
type EventData struct {
	SubscriptionID  uuid.UUID                `json:"subscriptionId"`
	ShopDomain      string                   `json:"shopDomain"`
	CustomerEmail   string                   `json:"customerEmail"`
	Status          enums.SubscriptionStatus `json:"status"`
	Frequency       enums.Frequency          `json:"frequency"`
	NextPickupDate  *time.Time               `json:"nextPickupDate,omitempty"`
	NextBillingDate *time.Time               `json:"nextBillingDate,omitempty"`
	Detail          string                   `json:"detail,omitempty"`
}

func eventData(sub *models.Subscription, detail string) EventData {
	return EventData{
		SubscriptionID:  sub.ID,
		ShopDomain:      sub.ShopDomain,
		CustomerEmail:   sub.CustomerEmail,
		Status:          sub.Status,
		Frequency:       sub.Frequency,
		NextPickupDate:  sub.NextPickupDate,
		NextBillingDate: sub.NextBillingDate,
		Detail:          detail,
	}
}

// ServiceParams groups dependencies for the subscription lifecycle service.
type ServiceParams struct {
	Repo     Repository
	TxRunner TxRunner
	Outbox   OutboxEmitter
	Engine   *schedule.Engine
	Logger   *logger.Logger

	// MaxBillingFailures pauses a subscription once reached. Zero means the
	// default of three.
	MaxBillingFailures int

	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// Service owns all subscription state transitions. Every mutation runs in one
// transaction that also appends an audit note and queues an outbox event.
type Service struct {
	repo        Repository
	txRunner    TxRunner
	outbox      OutboxEmitter
	engine      *schedule.Engine
	logg        *logger.Logger
	maxFailures int
	now         func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("subscription repo required")
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
		repo:        params.Repo,
		txRunner:    params.TxRunner,
		outbox:      params.Outbox,
		engine:      params.Engine,
		logg:        params.Logger,
		maxFailures: params.MaxBillingFailures,
		now:         params.Now,
	}, nil
}

// Get loads one subscription scoped to the shop.
func (s *Service) Get(ctx context.Context, shopDomain string, id uuid.UUID) (*models.Subscription, error) {
	sub, err := s.repo.FindByID(ctx, shopDomain, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading subscription")
	}
	if sub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	return sub, nil
}

// Notes returns the audit trail for a subscription, oldest first.
func (s *Service) Notes(ctx context.Context, shopDomain string, id uuid.UUID) ([]models.SubscriptionNote, error) {
	sub, err := s.Get(ctx, shopDomain, id)
	if err != nil {
		return nil, err
	}
	notes, err := s.repo.NotesBySubscription(ctx, sub.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading subscription notes")
	}
	return notes, nil
}

// transition loads the subscription, applies mutate, and persists row, audit
// note, and outbox event in one transaction. mutate returns the note text.
func (s *Service) transition(
	ctx context.Context,
	shopDomain string,
	id uuid.UUID,
	actor Actor,
	eventType enums.OutboxEventType,
	mutate func(sub *models.Subscription) (string, error),
) (*models.Subscription, error) {
	var updated *models.Subscription
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sub, err := repo.FindByID(ctx, shopDomain, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading subscription")
		}
		if sub == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
		}
		if !actor.CanManage(sub) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "subscription belongs to another customer")
		}

		note, err := mutate(sub)
		if err != nil {
			return err
		}
		if err := repo.Update(ctx, sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "updating subscription")
		}
		if err := repo.AppendNote(ctx, &models.SubscriptionNote{
			SubscriptionID: sub.ID,
			Actor:          actor.String(),
			Message:        note,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "appending subscription note")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateSubscription,
			AggregateID:   sub.ID,
			Actor:         actor.ref(),
			Data:          eventData(sub, note),
			OccurredAt:    s.now(),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queueing outbox event")
		}
		updated = sub
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithSubscriptionID(s.logg.WithShop(ctx, shopDomain), id.String())
	s.logg.Info(s.logg.WithField(logCtx, "event_type", string(eventType)), "subscription transition applied")
	return updated, nil
}

// Pause freezes the subscription. Scheduled dates are retained untouched so a
// resume can tell how stale they are. until is optional; when set the daily
// sweep resumes the subscription once the date passes.
func (s *Service) Pause(ctx context.Context, shopDomain string, id uuid.UUID, actor Actor, reason string, until *time.Time) (*models.Subscription, error) {
	return s.transition(ctx, shopDomain, id, actor, enums.EventSubscriptionPaused, func(sub *models.Subscription) (string, error) {
		switch sub.Status {
		case enums.SubscriptionStatusPaused:
			return "", pkgerrors.New(pkgerrors.CodeStateConflict, "subscription is already paused")
		case enums.SubscriptionStatusCancelled:
			return "", pkgerrors.New(pkgerrors.CodeStateConflict, "cancelled subscriptions cannot be paused")
		}

		trimmed := strings.TrimSpace(reason)
		if trimmed == "" {
			trimmed = "paused on request"
		}
		sub.Status = enums.SubscriptionStatusPaused
		sub.PauseReason = &trimmed
		sub.PausedUntil = nil
		if until != nil {
			day := s.engine.Today(*until)
			if !day.After(s.engine.Today(s.now())) {
				return "", pkgerrors.New(pkgerrors.CodeValidation, "pause-until date must be in the future")
			}
			sub.PausedUntil = &day
		}

		note := fmt.Sprintf("paused: %s", trimmed)
		if sub.PausedUntil != nil {
			note = fmt.Sprintf("%s (until %s)", note, sub.PausedUntil.Format("2006-01-02"))
		}
		return note, nil
	})
}

// Resume reactivates a paused subscription and recomputes both dates from
// today. The frozen values are discarded since they may be weeks stale.
func (s *Service) Resume(ctx context.Context, shopDomain string, id uuid.UUID, actor Actor) (*models.Subscription, error) {
	return s.transition(ctx, shopDomain, id, actor, enums.EventSubscriptionResumed, func(sub *models.Subscription) (string, error) {
		switch sub.Status {
		case enums.SubscriptionStatusActive:
			return "", pkgerrors.New(pkgerrors.CodeStateConflict, "subscription is already active")
		case enums.SubscriptionStatusCancelled:
			return "", pkgerrors.New(pkgerrors.CodeStateConflict, "cancelled subscriptions cannot be resumed")
		}

		if err := s.rescheduleFromToday(sub); err != nil {
			return "", err
		}
		sub.Status = enums.SubscriptionStatusActive
		sub.PausedUntil = nil
		sub.PauseReason = nil
		sub.BillingFailureCount = 0
		return fmt.Sprintf("resumed, next pickup %s", sub.NextPickupDate.Format("2006-01-02")), nil
	})
}

// Cancel terminates the subscription. Terminal; nothing transitions out.
func (s *Service) Cancel(ctx context.Context, shopDomain string, id uuid.UUID, actor Actor, reason string) (*models.Subscription, error) {
	return s.transition(ctx, shopDomain, id, actor, enums.EventSubscriptionCancelled, func(sub *models.Subscription) (string, error) {
		if sub.Status == enums.SubscriptionStatusCancelled {
			return "", pkgerrors.New(pkgerrors.CodeStateConflict, "subscription is already cancelled")
		}

		sub.Status = enums.SubscriptionStatusCancelled
		sub.NextPickupDate = nil
		sub.NextBillingDate = nil
		sub.PausedUntil = nil
		sub.ClearOneTimeFields()

		trimmed := strings.TrimSpace(reason)
		if trimmed == "" {
			trimmed = "cancelled on request"
		}
		sub.PauseReason = nil
		return fmt.Sprintf("cancelled: %s", trimmed), nil
	})
}

// OneTimeReschedule overrides the next pickup only. The recurring cadence is
// untouched; the rollover restores it after materializing the override.
func (s *Service) OneTimeReschedule(ctx context.Context, shopDomain string, id uuid.UUID, actor Actor, newDate time.Time, timeSlot, reason string) (*models.Subscription, error) {
	return s.transition(ctx, shopDomain, id, actor, enums.EventSubscriptionRescheduled, func(sub *models.Subscription) (string, error) {
		if sub.Status != enums.SubscriptionStatusActive {
			return "", pkgerrors.Newf(pkgerrors.CodeStateConflict, "only active subscriptions can be rescheduled (status %s)", sub.Status)
		}

		day := s.engine.Today(newDate)
		if !day.After(s.engine.Today(s.now())) {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "reschedule date must be after today")
		}

		slot := strings.TrimSpace(timeSlot)
		if slot == "" {
			slot = sub.PreferredTimeSlot
		}
		slotStart, ok := schedule.ParseTimeSlotStart(slot)
		if !ok {
			return "", pkgerrors.Newf(pkgerrors.CodeValidation, "unparseable time slot %q", slot)
		}
		billing := s.engine.BillingInstant(day, slotStart, sub.BillingLeadHours)
		if billing.Before(s.now()) {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "billing for that date has already passed")
		}

		kind := enums.RescheduleActorCustomer
		if actor.Staff {
			kind = enums.RescheduleActorStaff
		}
		trimmed := strings.TrimSpace(reason)
		setAt := s.now()
		sub.OneTimeDate = &day
		sub.OneTimeTimeSlot = &slot
		sub.OneTimeReason = &trimmed
		sub.OneTimeBy = &kind
		sub.OneTimeSetAt = &setAt
		sub.NextPickupDate = &day
		sub.NextBillingDate = &billing
		return fmt.Sprintf("one-time reschedule to %s %s", day.Format("2006-01-02"), slot), nil
	})
}

// ClearOneTimeReschedule drops a pending override and restores the regular
// cadence computed from today.
func (s *Service) ClearOneTimeReschedule(ctx context.Context, shopDomain string, id uuid.UUID, actor Actor) (*models.Subscription, error) {
	return s.transition(ctx, shopDomain, id, actor, enums.EventSubscriptionRescheduled, func(sub *models.Subscription) (string, error) {
		if !sub.HasOneTimeReschedule() {
			return "", pkgerrors.New(pkgerrors.CodeStateConflict, "no one-time reschedule to clear")
		}
		if sub.Status == enums.SubscriptionStatusCancelled {
			return "", pkgerrors.New(pkgerrors.CodeStateConflict, "subscription is cancelled")
		}

		sub.ClearOneTimeFields()
		if err := s.rescheduleFromToday(sub); err != nil {
			return "", err
		}
		return fmt.Sprintf("one-time reschedule cleared, next pickup %s", sub.NextPickupDate.Format("2006-01-02")), nil
	})
}

// PermanentReschedule changes the recurring day and slot. Any pending one-time
// override is discarded and both dates are recomputed from today.
func (s *Service) PermanentReschedule(ctx context.Context, shopDomain string, id uuid.UUID, actor Actor, newDay int, newTimeSlot string) (*models.Subscription, error) {
	return s.transition(ctx, shopDomain, id, actor, enums.EventSubscriptionRescheduled, func(sub *models.Subscription) (string, error) {
		if sub.Status == enums.SubscriptionStatusCancelled {
			return "", pkgerrors.New(pkgerrors.CodeStateConflict, "subscription is cancelled")
		}
		if newDay < 0 || newDay > 6 {
			return "", pkgerrors.Newf(pkgerrors.CodeValidation, "preferred day %d out of range (0-6)", newDay)
		}

		slot := strings.TrimSpace(newTimeSlot)
		if slot == "" {
			slot = sub.PreferredTimeSlot
		}
		slotStart, ok := schedule.ParseTimeSlotStart(slot)
		if !ok {
			return "", pkgerrors.Newf(pkgerrors.CodeValidation, "unparseable time slot %q", slot)
		}

		sub.PreferredDay = newDay
		sub.PreferredTimeSlot = slot
		sub.PreferredSlotStart = slotStart.String()
		sub.ClearOneTimeFields()
		if err := s.rescheduleFromToday(sub); err != nil {
			return "", err
		}
		return fmt.Sprintf("moved to %s %s, next pickup %s",
			time.Weekday(newDay), slot, sub.NextPickupDate.Format("2006-01-02")), nil
	})
}

// ApplyBillingFailure increments the failure counter for the subscription
// bound to contractID inside an existing transaction, pausing it once the
// limit is reached. Callers that own a larger unit of work (webhook
// ingestion) compose this with their own commit point.
func (s *Service) ApplyBillingFailure(ctx context.Context, tx *gorm.DB, shopDomain, contractID string) (*models.Subscription, error) {
	repo := s.repo.WithTx(tx)
	sub, err := repo.FindByContractID(ctx, shopDomain, contractID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading subscription by contract")
	}
	if sub == nil {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "no subscription for contract %s", contractID)
	}

	sub.BillingFailureCount++
	note := fmt.Sprintf("billing attempt failed (%d of %d)", sub.BillingFailureCount, s.maxFailures)
	if sub.BillingFailureCount >= s.maxFailures && sub.Status == enums.SubscriptionStatusActive {
		reason := PauseReasonBillingFailure
		sub.Status = enums.SubscriptionStatusPaused
		sub.PauseReason = &reason
		sub.PausedUntil = nil
		note = fmt.Sprintf("paused after %d failed billing attempts", sub.BillingFailureCount)
	}

	if err := repo.Update(ctx, sub); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "updating subscription")
	}
	if err := repo.AppendNote(ctx, &models.SubscriptionNote{
		SubscriptionID: sub.ID,
		Actor:          "system",
		Message:        note,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "appending subscription note")
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventSubscriptionBillingFailure,
		AggregateType: enums.AggregateSubscription,
		AggregateID:   sub.ID,
		Data:          eventData(sub, note),
		OccurredAt:    s.now(),
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queueing outbox event")
	}
	return sub, nil
}

// RecordBillingFailure runs ApplyBillingFailure in its own transaction.
func (s *Service) RecordBillingFailure(ctx context.Context, shopDomain, contractID string) (*models.Subscription, error) {
	var updated *models.Subscription
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		sub, err := s.ApplyBillingFailure(ctx, tx, shopDomain, contractID)
		if err != nil {
			return err
		}
		updated = sub
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithSubscriptionID(s.logg.WithShop(ctx, shopDomain), updated.ID.String())
	if updated.Status == enums.SubscriptionStatusPaused {
		s.logg.Warn(logCtx, "subscription paused after repeated billing failures")
	} else {
		s.logg.Warn(logCtx, "billing attempt failure recorded")
	}
	return updated, nil
}

func (s *Service) rescheduleFromToday(sub *models.Subscription) error {
	next, err := s.engine.NextPickupFromToday(s.now(), sub.PreferredDay, sub.Frequency)
	if err != nil {
		return err
	}
	billing := s.engine.BillingInstant(next, schedule.ParseClock(sub.PreferredSlotStart), sub.BillingLeadHours)
	sub.NextPickupDate = &next
	sub.NextBillingDate = &billing
	return nil
}
