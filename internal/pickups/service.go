package pickups

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/meadowlane/pickups-backend/pkg/db/models"
	"github.com/meadowlane/pickups-backend/pkg/enums"
	pkgerrors "github.com/meadowlane/pickups-backend/pkg/errors"
	"github.com/meadowlane/pickups-backend/pkg/logger"
	"github.com/meadowlane/pickups-backend/pkg/outbox"
)

// Notifier delivers a "your order is ready" message. Best effort; failures
// never roll back the status change that triggered them.
type Notifier interface {
	SendReadyNotification(ctx context.Context, instance *models.PickupInstance) (method string, err error)
}

// CalendarSync mirrors pickup instances into an external calendar. Best
// effort; failures are logged and swallowed.
type CalendarSync interface {
	CreateEvent(ctx context.Context, instance *models.PickupInstance) error
	UpdateEvent(ctx context.Context, instance *models.PickupInstance) error
	DeleteEvent(ctx context.Context, instance *models.PickupInstance) error
}

// TxRunner executes a function inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// OutboxEmitter queues a domain event inside the supplied transaction.
type OutboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

var allowedTransitions = map[enums.PickupStatus][]enums.PickupStatus{
	enums.PickupStatusScheduled: {enums.PickupStatusReady, enums.PickupStatusCancelled, enums.PickupStatusNoShow},
	enums.PickupStatusReady:     {enums.PickupStatusPickedUp, enums.PickupStatusCancelled, enums.PickupStatusNoShow},
}

func transitionAllowed(from, to enums.PickupStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

var eventByStatus = map[enums.PickupStatus]enums.OutboxEventType{
	enums.PickupStatusReady:     enums.EventPickupReady,
	enums.PickupStatusPickedUp:  enums.EventPickupCompleted,
	enums.PickupStatusCancelled: enums.EventPickupCancelled,
	enums.PickupStatusNoShow:    enums.EventPickupNoShow,
}

// ServiceParams groups dependencies for the pickup instance service.
type ServiceParams struct {
	Repo     Repository
	TxRunner TxRunner
	Outbox   OutboxEmitter
	Logger   *logger.Logger

	// Notifier and Calendar are optional collaborators.
	Notifier Notifier
	Calendar CalendarSync

	Now func() time.Time
}

// Service owns pickup instance status transitions.
type Service struct {
	repo     Repository
	txRunner TxRunner
	outbox   OutboxEmitter
	logg     *logger.Logger
	notifier Notifier
	calendar CalendarSync
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("pickup repo required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &Service{
		repo:     params.Repo,
		txRunner: params.TxRunner,
		outbox:   params.Outbox,
		logg:     params.Logger,
		notifier: params.Notifier,
		calendar: params.Calendar,
		now:      params.Now,
	}, nil
}

// Get loads one pickup instance scoped to the shop.
func (s *Service) Get(ctx context.Context, shopDomain string, id uuid.UUID) (*models.PickupInstance, error) {
	instance, err := s.repo.FindByID(ctx, shopDomain, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading pickup instance")
	}
	if instance == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "pickup instance not found")
	}
	return instance, nil
}

// ListByDate returns the shop's pickups for one calendar date.
func (s *Service) ListByDate(ctx context.Context, shopDomain string, date time.Time) ([]models.PickupInstance, error) {
	instances, err := s.repo.FindByDate(ctx, shopDomain, date)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing pickups")
	}
	return instances, nil
}

// MarkReady flips a scheduled pickup to ready and fires the customer
// notification best effort.
func (s *Service) MarkReady(ctx context.Context, shopDomain string, id uuid.UUID) (*models.PickupInstance, error) {
	instance, err := s.transition(ctx, shopDomain, id, enums.PickupStatusReady)
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		logCtx := s.logg.WithPickupID(s.logg.WithShop(ctx, shopDomain), id.String())
		method, notifyErr := s.notifier.SendReadyNotification(ctx, instance)
		if notifyErr != nil {
			s.logg.Error(logCtx, "ready notification failed", notifyErr)
		} else {
			s.logg.Info(s.logg.WithField(logCtx, "method", method), "ready notification sent")
		}
	}
	return instance, nil
}

// MarkPickedUp completes a ready pickup.
func (s *Service) MarkPickedUp(ctx context.Context, shopDomain string, id uuid.UUID) (*models.PickupInstance, error) {
	return s.transition(ctx, shopDomain, id, enums.PickupStatusPickedUp)
}

// Cancel terminates a pickup that will not happen and removes its calendar
// event best effort.
func (s *Service) Cancel(ctx context.Context, shopDomain string, id uuid.UUID) (*models.PickupInstance, error) {
	instance, err := s.transition(ctx, shopDomain, id, enums.PickupStatusCancelled)
	if err != nil {
		return nil, err
	}
	s.bestEffortCalendar(ctx, shopDomain, instance, "delete")
	return instance, nil
}

// MarkNoShow records that the customer never arrived.
func (s *Service) MarkNoShow(ctx context.Context, shopDomain string, id uuid.UUID) (*models.PickupInstance, error) {
	return s.transition(ctx, shopDomain, id, enums.PickupStatusNoShow)
}

func (s *Service) transition(ctx context.Context, shopDomain string, id uuid.UUID, to enums.PickupStatus) (*models.PickupInstance, error) {
	var updated *models.PickupInstance
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		instance, err := repo.FindByID(ctx, shopDomain, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading pickup instance")
		}
		if instance == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "pickup instance not found")
		}
		if !transitionAllowed(instance.Status, to) {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict,
				"pickup cannot go from %s to %s", instance.Status, to)
		}

		instance.Status = to
		if err := repo.Update(ctx, instance); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "updating pickup instance")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventByStatus[to],
			AggregateType: enums.AggregatePickup,
			AggregateID:   instance.ID,
			Data:          instanceEventData(instance),
			OccurredAt:    s.now(),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queueing outbox event")
		}
		updated = instance
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) bestEffortCalendar(ctx context.Context, shopDomain string, instance *models.PickupInstance, op string) {
	if s.calendar == nil {
		return
	}
	var err error
	switch op {
	case "create":
		err = s.calendar.CreateEvent(ctx, instance)
	case "update":
		err = s.calendar.UpdateEvent(ctx, instance)
	case "delete":
		err = s.calendar.DeleteEvent(ctx, instance)
	}
	if err != nil {
		logCtx := s.logg.WithPickupID(s.logg.WithShop(ctx, shopDomain), instance.ID.String())
		s.logg.Error(s.logg.WithField(logCtx, "op", op), "calendar sync failed", err)
	}
}

type instanceData struct {
	PickupID       string             `json:"pickupId"`
	ShopDomain     string             `json:"shopDomain"`
	SubscriptionID *uuid.UUID         `json:"subscriptionId,omitempty"`
	CustomerEmail  string             `json:"customerEmail"`
	PickupDate     time.Time          `json:"pickupDate"`
	TimeSlot       string             `json:"timeSlot"`
	Status         enums.PickupStatus `json:"status"`
}

func instanceEventData(instance *models.PickupInstance) instanceData {
	return instanceData{
		PickupID:       instance.ID.String(),
		ShopDomain:     instance.ShopDomain,
		SubscriptionID: instance.SubscriptionID,
		CustomerEmail:  instance.CustomerEmail,
		PickupDate:     instance.PickupDate,
		TimeSlot:       instance.TimeSlot,
		Status:         instance.Status,
	}
}
