package models

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionNote is one line of the append-only audit log attached to a
// subscription. Rows are never updated or deleted.
type SubscriptionNote struct {
	ID             uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	SubscriptionID uuid.UUID `gorm:"column:subscription_id;type:uuid;not null;index"`
	Actor          string    `gorm:"column:actor;not null"`
	Message        string    `gorm:"column:message;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime;index"`
}
