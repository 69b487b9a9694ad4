package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/meadowlane/pickups-backend/pkg/enums"
)

// PickupInstance is one concrete, dated pickup occurrence. It is created from
// a Subscription snapshot (or a one-off order) and owned independently
// afterwards: later subscription changes never rewrite existing instances.
type PickupInstance struct {
	ID             uuid.UUID          `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ShopDomain     string             `gorm:"column:shop_domain;not null;index"`
	SubscriptionID *uuid.UUID         `gorm:"column:subscription_id;type:uuid;index"`
	CustomerEmail  string             `gorm:"column:customer_email;not null"`
	CustomerName   string             `gorm:"column:customer_name"`
	ProductLabel   string             `gorm:"column:product_label"`
	PickupDate     time.Time          `gorm:"column:pickup_date;not null;index"`
	TimeSlot       string             `gorm:"column:time_slot;not null"`
	Status         enums.PickupStatus `gorm:"column:status;not null;default:'scheduled';index"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
