package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meadowlane/pickups-backend/pkg/enums"
)

// Subscription is one recurring subscribe & save pickup commitment.
//
// NextPickupDate is a business-local calendar date (midnight); NextBillingDate
// is the absolute instant billing fires. Both are set iff the subscription is
// active, frozen while paused, and null once cancelled.
type Subscription struct {
	ID            uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ShopDomain    string    `gorm:"column:shop_domain;not null;index"`
	ContractID    *string   `gorm:"column:contract_id;index"`
	OriginOrderID *string   `gorm:"column:origin_order_id"`
	CustomerEmail string    `gorm:"column:customer_email;not null;index"`
	CustomerName  string    `gorm:"column:customer_name"`
	ProductLabel  string    `gorm:"column:product_label"`

	PreferredDay       int    `gorm:"column:preferred_day;not null"`
	PreferredTimeSlot  string `gorm:"column:preferred_time_slot;not null"`
	PreferredSlotStart string `gorm:"column:preferred_slot_start;not null"`

	Frequency        enums.Frequency `gorm:"column:frequency;not null"`
	DiscountPercent  decimal.Decimal `gorm:"column:discount_percent;type:numeric(5,2);not null"`
	BillingLeadHours int             `gorm:"column:billing_lead_hours;not null"`

	NextPickupDate  *time.Time `gorm:"column:next_pickup_date;index"`
	NextBillingDate *time.Time `gorm:"column:next_billing_date"`

	Status enums.SubscriptionStatus `gorm:"column:status;not null;default:'active';index"`

	PausedUntil *time.Time `gorm:"column:paused_until"`
	PauseReason *string    `gorm:"column:pause_reason"`

	OneTimeDate     *time.Time             `gorm:"column:one_time_date"`
	OneTimeTimeSlot *string                `gorm:"column:one_time_time_slot"`
	OneTimeReason   *string                `gorm:"column:one_time_reason"`
	OneTimeBy       *enums.RescheduleActor `gorm:"column:one_time_by"`
	OneTimeSetAt    *time.Time             `gorm:"column:one_time_set_at"`

	BillingFailureCount int `gorm:"column:billing_failure_count;not null;default:0"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// HasOneTimeReschedule reports whether a one-off deviation is pending.
func (s *Subscription) HasOneTimeReschedule() bool {
	return s.OneTimeDate != nil
}

// ClearOneTimeFields wipes the one-off override.
func (s *Subscription) ClearOneTimeFields() {
	s.OneTimeDate = nil
	s.OneTimeTimeSlot = nil
	s.OneTimeReason = nil
	s.OneTimeBy = nil
	s.OneTimeSetAt = nil
}

// CurrentTimeSlot returns the slot the next pickup will use, honoring a
// pending one-time override.
func (s *Subscription) CurrentTimeSlot() string {
	if s.OneTimeTimeSlot != nil && *s.OneTimeTimeSlot != "" {
		return *s.OneTimeTimeSlot
	}
	return s.PreferredTimeSlot
}
