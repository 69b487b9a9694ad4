package ingestion

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/meadowlane/pickups-backend/pkg/db/models"
	"github.com/meadowlane/pickups-backend/pkg/enums"
)

// EventRepository guards idempotency rows for processed webhook deliveries.
type EventRepository interface {
	WithTx(tx *gorm.DB) EventRepository
	Exists(ctx context.Context, shopDomain string, topic enums.WebhookTopic, externalID string) (bool, error)
	Create(ctx context.Context, row *models.WebhookEvent) error
}

type eventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) WithTx(tx *gorm.DB) EventRepository {
	if tx == nil {
		return r
	}
	return &eventRepository{db: tx}
}

func (r *eventRepository) Exists(ctx context.Context, shopDomain string, topic enums.WebhookTopic, externalID string) (bool, error) {
	var row models.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("shop_domain = ? AND topic = ? AND external_id = ?", shopDomain, topic, externalID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *eventRepository) Create(ctx context.Context, row *models.WebhookEvent) error {
	return r.db.WithContext(ctx).Create(row).Error
}
