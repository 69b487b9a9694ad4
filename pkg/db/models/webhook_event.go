package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/meadowlane/pickups-backend/pkg/enums"
)

// WebhookEvent is the durable idempotency marker for one processed inbound
// event. The row's existence is the guard; it is written as the final step of
// a successful handling path so a failed attempt can be retried.
type WebhookEvent struct {
	ID          uuid.UUID          `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ShopDomain  string             `gorm:"column:shop_domain;not null;uniqueIndex:ux_webhook_events_shop_topic_external"`
	Topic       enums.WebhookTopic `gorm:"column:topic;not null;uniqueIndex:ux_webhook_events_shop_topic_external"`
	ExternalID  string             `gorm:"column:external_id;not null;uniqueIndex:ux_webhook_events_shop_topic_external"`
	ProcessedAt time.Time          `gorm:"column:processed_at;autoCreateTime"`
}
