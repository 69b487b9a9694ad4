package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meadowlane/pickups-backend/pkg/enums"
)

// PlanFrequency is per-shop configuration for a cadence: the subscribe & save
// discount and how many hours before the pickup slot billing fires.
type PlanFrequency struct {
	ID               uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ShopDomain       string          `gorm:"column:shop_domain;not null;uniqueIndex:ux_plan_frequencies_shop_label"`
	Label            enums.Frequency `gorm:"column:label;not null;uniqueIndex:ux_plan_frequencies_shop_label"`
	DiscountPercent  decimal.Decimal `gorm:"column:discount_percent;type:numeric(5,2);not null"`
	BillingLeadHours int             `gorm:"column:billing_lead_hours;not null"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
