package ingestion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/meadowlane/pickups-backend/internal/plans"
	"github.com/meadowlane/pickups-backend/internal/schedule"
	"github.com/meadowlane/pickups-backend/internal/subscriptions"
	"github.com/meadowlane/pickups-backend/pkg/config"
	"github.com/meadowlane/pickups-backend/pkg/db"
	"github.com/meadowlane/pickups-backend/pkg/db/models"
	"github.com/meadowlane/pickups-backend/pkg/enums"
	pkgerrors "github.com/meadowlane/pickups-backend/pkg/errors"
	"github.com/meadowlane/pickups-backend/pkg/logger"
	"github.com/meadowlane/pickups-backend/pkg/outbox"
)

var validate = validator.New()

// PlanLookup resolves the discount and billing lead for a cadence.
type PlanLookup interface {
	Lookup(ctx context.Context, shopDomain string, freq enums.Frequency) plans.Plan
}

// BillingFailureApplier records one failed charge inside the caller's
// transaction.
type BillingFailureApplier interface {
	ApplyBillingFailure(ctx context.Context, tx *gorm.DB, shopDomain, contractID string) (*models.Subscription, error)
}

// ServiceParams groups dependencies for webhook ingestion.
type ServiceParams struct {
	Events        EventRepository
	Subscriptions subscriptions.Repository
	Plans         PlanLookup
	Lifecycle     BillingFailureApplier
	TxRunner      subscriptions.TxRunner
	Outbox        subscriptions.OutboxEmitter
	Engine        *schedule.Engine
	Logger        *logger.Logger
	Scheduling    config.SchedulingConfig

	Now func() time.Time
}

// Service turns inbound commerce-platform events into at most one
// subscription each. The idempotency row is always the last write of a
// successful path so a failed attempt can be retried cleanly.
type Service struct {
	events    EventRepository
	subs      subscriptions.Repository
	plans     PlanLookup
	lifecycle BillingFailureApplier
	txRunner  subscriptions.TxRunner
	outbox    subscriptions.OutboxEmitter
	engine    *schedule.Engine
	logg      *logger.Logger
	sched     config.SchedulingConfig
	now       func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Events == nil {
		return nil, fmt.Errorf("event repo required")
	}
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscription repo required")
	}
	if params.Plans == nil {
		return nil, fmt.Errorf("plan lookup required")
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
	if params.Now == nil {
		params.Now = time.Now
	}
	return &Service{
		events:    params.Events,
		subs:      params.Subscriptions,
		plans:     params.Plans,
		lifecycle: params.Lifecycle,
		txRunner:  params.TxRunner,
		outbox:    params.Outbox,
		engine:    params.Engine,
		logg:      params.Logger,
		sched:     params.Scheduling,
		now:       params.Now,
	}, nil
}

// HandleOrderCreated processes an order webhook carrying a recurring line
// item.
func (s *Service) HandleOrderCreated(ctx context.Context, shopDomain string, evt OrderCreatedEvent) (Result, error) {
	if err := validatePayload(evt); err != nil {
		return Result{}, err
	}

	topic := enums.WebhookTopicOrderCreated
	if processed, err := s.alreadyProcessed(ctx, shopDomain, topic, evt.OrderID); err != nil || processed {
		return Result{AlreadyProcessed: processed}, err
	}

	var sub *models.Subscription
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		sub, err = s.createSubscription(ctx, tx, shopDomain, subscriptionSeed{
			originOrderID:        evt.OrderID,
			customer:             evt.Customer,
			billingIntervalCount: evt.BillingIntervalCount,
			preferredDay:         evt.PreferredDay,
			preferredTimeSlot:    evt.PreferredTimeSlot,
			productLabel:         evt.ProductLabel,
			note:                 fmt.Sprintf("created from order %s", evt.OrderID),
		})
		if err != nil {
			return err
		}
		return s.recordEvent(ctx, tx, shopDomain, topic, evt.OrderID)
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return Result{AlreadyProcessed: true}, nil
		}
		return Result{}, err
	}
	return Result{SubscriptionID: sub.ID.String()}, nil
}

// HandleContractCreated processes the authoritative contract webhook. When a
// recent order-sourced subscription exists for the same customer it is
// adopted instead of creating a duplicate.
func (s *Service) HandleContractCreated(ctx context.Context, shopDomain string, evt ContractCreatedEvent) (Result, error) {
	if err := validatePayload(evt); err != nil {
		return Result{}, err
	}

	topic := enums.WebhookTopicContractCreated
	if processed, err := s.alreadyProcessed(ctx, shopDomain, topic, evt.ContractID); err != nil || processed {
		return Result{AlreadyProcessed: processed}, err
	}

	var sub *models.Subscription
	matched := false
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.subs.WithTx(tx)
		since := s.now().Add(-s.dedupWindow())
		existing, err := repo.FindRecentOrderSourced(ctx, shopDomain, evt.Customer.Email, since)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "searching for order-sourced subscription")
		}

		if existing != nil {
			contractID := evt.ContractID
			existing.ContractID = &contractID
			if err := repo.Update(ctx, existing); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "linking contract to subscription")
			}
			if err := repo.AppendNote(ctx, &models.SubscriptionNote{
				SubscriptionID: existing.ID,
				Actor:          "system",
				Message:        fmt.Sprintf("linked contract %s", contractID),
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "appending subscription note")
			}
			sub = existing
			matched = true
			return s.recordEvent(ctx, tx, shopDomain, topic, evt.ContractID)
		}

		sub, err = s.createSubscription(ctx, tx, shopDomain, subscriptionSeed{
			contractID:           evt.ContractID,
			customer:             evt.Customer,
			billingIntervalCount: evt.BillingIntervalCount,
			preferredDay:         evt.PreferredDay,
			preferredTimeSlot:    evt.PreferredTimeSlot,
			productLabel:         evt.ProductLabel,
			note:                 fmt.Sprintf("created from contract %s", evt.ContractID),
		})
		if err != nil {
			return err
		}
		return s.recordEvent(ctx, tx, shopDomain, topic, evt.ContractID)
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return Result{AlreadyProcessed: true}, nil
		}
		return Result{}, err
	}
	return Result{SubscriptionID: sub.ID.String(), MatchedExisting: matched}, nil
}

// HandleBillingAttemptFailed processes a failed-charge webhook.
func (s *Service) HandleBillingAttemptFailed(ctx context.Context, shopDomain string, evt BillingAttemptFailedEvent) (Result, error) {
	if err := validatePayload(evt); err != nil {
		return Result{}, err
	}

	topic := enums.WebhookTopicBillingAttemptFailed
	if processed, err := s.alreadyProcessed(ctx, shopDomain, topic, evt.AttemptID); err != nil || processed {
		return Result{AlreadyProcessed: processed}, err
	}

	var sub *models.Subscription
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		sub, err = s.lifecycle.ApplyBillingFailure(ctx, tx, shopDomain, evt.ContractID)
		if err != nil {
			return err
		}
		return s.recordEvent(ctx, tx, shopDomain, topic, evt.AttemptID)
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return Result{AlreadyProcessed: true}, nil
		}
		return Result{}, err
	}
	return Result{SubscriptionID: sub.ID.String()}, nil
}

type subscriptionSeed struct {
	contractID           string
	originOrderID        string
	customer             CustomerInfo
	billingIntervalCount int
	preferredDay         *int
	preferredTimeSlot    string
	productLabel         string
	note                 string
}

func (s *Service) createSubscription(ctx context.Context, tx *gorm.DB, shopDomain string, seed subscriptionSeed) (*models.Subscription, error) {
	freq, known := enums.FrequencyFromIntervalCount(seed.billingIntervalCount)
	if !known {
		logCtx := s.logg.WithShop(ctx, shopDomain)
		s.logg.Warn(s.logg.WithField(logCtx, "interval_count", seed.billingIntervalCount),
			"unrecognized billing interval, defaulting to weekly")
	}

	day := s.sched.DefaultPickupDay
	if seed.preferredDay != nil {
		day = *seed.preferredDay
	}
	slot := strings.TrimSpace(seed.preferredTimeSlot)
	if slot == "" {
		slot = s.sched.DefaultTimeSlot
	}
	slotStart, ok := schedule.ParseTimeSlotStart(slot)
	if !ok {
		logCtx := s.logg.WithShop(ctx, shopDomain)
		s.logg.Warn(s.logg.WithField(logCtx, "time_slot", slot),
			"unparseable time slot, using default start")
	}

	plan := s.plans.Lookup(ctx, shopDomain, freq)

	nextPickup, err := s.engine.NextPickupFromToday(s.now(), day, freq)
	if err != nil {
		return nil, err
	}
	nextBilling := s.engine.BillingInstant(nextPickup, slotStart, plan.BillingLeadHours)

	sub := &models.Subscription{
		ShopDomain:         shopDomain,
		CustomerEmail:      strings.ToLower(strings.TrimSpace(seed.customer.Email)),
		CustomerName:       seed.customer.Name,
		ProductLabel:       seed.productLabel,
		PreferredDay:       day,
		PreferredTimeSlot:  slot,
		PreferredSlotStart: slotStart.String(),
		Frequency:          freq,
		DiscountPercent:    plan.DiscountPercent,
		BillingLeadHours:   plan.BillingLeadHours,
		NextPickupDate:     &nextPickup,
		NextBillingDate:    &nextBilling,
		Status:             enums.SubscriptionStatusActive,
	}
	if seed.contractID != "" {
		sub.ContractID = &seed.contractID
	}
	if seed.originOrderID != "" {
		sub.OriginOrderID = &seed.originOrderID
	}

	repo := s.subs.WithTx(tx)
	if err := repo.Create(ctx, sub); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating subscription")
	}
	if err := repo.AppendNote(ctx, &models.SubscriptionNote{
		SubscriptionID: sub.ID,
		Actor:          "system",
		Message:        seed.note,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "appending subscription note")
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventSubscriptionCreated,
		AggregateType: enums.AggregateSubscription,
		AggregateID:   sub.ID,
		Data:          subscriptionCreatedData(sub),
		OccurredAt:    s.now(),
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queueing outbox event")
	}
	return sub, nil
}

func (s *Service) alreadyProcessed(ctx context.Context, shopDomain string, topic enums.WebhookTopic, externalID string) (bool, error) {
	processed, err := s.events.Exists(ctx, shopDomain, topic, externalID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "checking idempotency row")
	}
	if processed {
		logCtx := s.logg.WithFields(s.logg.WithShop(ctx, shopDomain), map[string]any{
			"topic":       topic,
			"external_id": externalID,
		})
		s.logg.Info(logCtx, "duplicate webhook delivery ignored")
	}
	return processed, nil
}

func (s *Service) recordEvent(ctx context.Context, tx *gorm.DB, shopDomain string, topic enums.WebhookTopic, externalID string) error {
	err := s.events.WithTx(tx).Create(ctx, &models.WebhookEvent{
		ShopDomain: shopDomain,
		Topic:      topic,
		ExternalID: externalID,
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return err
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recording idempotency row")
	}
	return nil
}

func (s *Service) dedupWindow() time.Duration {
	if s.sched.DedupWindow > 0 {
		return s.sched.DedupWindow
	}
	return 5 * time.Minute
}

type createdEventData struct {
	SubscriptionID string          `json:"subscriptionId"`
	ShopDomain     string          `json:"shopDomain"`
	CustomerEmail  string          `json:"customerEmail"`
	Frequency      enums.Frequency `json:"frequency"`
	NextPickupDate *time.Time      `json:"nextPickupDate,omitempty"`
}

func subscriptionCreatedData(sub *models.Subscription) createdEventData {
	return createdEventData{
		SubscriptionID: sub.ID.String(),
		ShopDomain:     sub.ShopDomain,
		CustomerEmail:  sub.CustomerEmail,
		Frequency:      sub.Frequency,
		NextPickupDate: sub.NextPickupDate,
	}
}

func validatePayload(payload any) error {
	if err := validate.Struct(payload); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload")
	}
	return nil
}
