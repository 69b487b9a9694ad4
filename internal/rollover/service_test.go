package rollover

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/meadowlane/pickups-backend/internal/pickups"
	"github.com/meadowlane/pickups-backend/internal/schedule"
	"github.com/meadowlane/pickups-backend/internal/subscriptions"
	"github.com/meadowlane/pickups-backend/pkg/db/models"
	"github.com/meadowlane/pickups-backend/pkg/enums"
	"github.com/meadowlane/pickups-backend/pkg/logger"
	"github.com/meadowlane/pickups-backend/pkg/outbox"
	"github.com/meadowlane/pickups-backend/pkg/timeutil"
)

const testShop = "greenmarket.example.com"

func setupRolloverTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{`
CREATE TABLE IF NOT EXISTS subscriptions (
  id TEXT PRIMARY KEY,
  shop_domain TEXT NOT NULL,
  contract_id TEXT,
  origin_order_id TEXT,
  customer_email TEXT NOT NULL,
  customer_name TEXT,
  product_label TEXT,
  preferred_day INTEGER NOT NULL,
  preferred_time_slot TEXT NOT NULL,
  preferred_slot_start TEXT NOT NULL,
  frequency TEXT NOT NULL,
  discount_percent NUMERIC NOT NULL,
  billing_lead_hours INTEGER NOT NULL,
  next_pickup_date DATETIME,
  next_billing_date DATETIME,
  status TEXT NOT NULL DEFAULT 'active',
  paused_until DATETIME,
  pause_reason TEXT,
  one_time_date DATETIME,
  one_time_time_slot TEXT,
  one_time_reason TEXT,
  one_time_by TEXT,
  one_time_set_at DATETIME,
  billing_failure_count INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS pickup_instances (
  id TEXT PRIMARY KEY,
  shop_domain TEXT NOT NULL,
  subscription_id TEXT,
  customer_email TEXT NOT NULL,
  customer_name TEXT,
  product_label TEXT,
  pickup_date DATETIME NOT NULL,
  time_slot TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'scheduled',
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS subscription_notes (
  id TEXT PRIMARY KEY,
  subscription_id TEXT NOT NULL,
  actor TEXT NOT NULL,
  message TEXT NOT NULL,
  created_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT,
  created_at DATETIME
);`}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

// testNow is a Wednesday in New York.
func testNow() time.Time {
	return time.Date(2026, 3, 4, 10, 0, 0, 0, timeutil.LoadLocation("America/New_York"))
}

type countingCalendar struct {
	created int
	err     error
}

func (c *countingCalendar) CreateEvent(ctx context.Context, instance *models.PickupInstance) error {
	c.created++
	return c.err
}

func (c *countingCalendar) UpdateEvent(ctx context.Context, instance *models.PickupInstance) error {
	return c.err
}

func (c *countingCalendar) DeleteEvent(ctx context.Context, instance *models.PickupInstance) error {
	return c.err
}

// failingPickupRepo errors on create for one customer, simulating a
// per-subscription persistence failure mid-sweep.
type failingPickupRepo struct {
	pickups.Repository
	failEmail string
}

func (f *failingPickupRepo) WithTx(tx *gorm.DB) pickups.Repository {
	return &failingPickupRepo{Repository: f.Repository.WithTx(tx), failEmail: f.failEmail}
}

func (f *failingPickupRepo) Create(ctx context.Context, instance *models.PickupInstance) error {
	if instance.CustomerEmail == f.failEmail {
		return fmt.Errorf("disk full")
	}
	return f.Repository.Create(ctx, instance)
}

func newRolloverService(t *testing.T, db *gorm.DB, pickupRepo pickups.Repository, calendar pickups.CalendarSync) *Service {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test"})
	engine := schedule.NewEngine(timeutil.LoadLocation("America/New_York"))
	outboxSvc := outbox.NewService(outbox.NewRepository(db), logg)
	subRepo := subscriptions.NewRepository(db)

	lifecycle, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repo:     subRepo,
		TxRunner: gormTxRunner{db: db},
		Outbox:   outboxSvc,
		Engine:   engine,
		Logger:   logg,
		Now:      testNow,
	})
	require.NoError(t, err)

	if pickupRepo == nil {
		pickupRepo = pickups.NewRepository(db)
	}
	svc, err := NewService(ServiceParams{
		Subscriptions: subRepo,
		Pickups:       pickupRepo,
		Lifecycle:     lifecycle,
		TxRunner:      gormTxRunner{db: db},
		Outbox:        outboxSvc,
		Engine:        engine,
		Logger:        logg,
		Calendar:      calendar,
		Now:           testNow,
	})
	require.NoError(t, err)
	return svc
}

func seedDueSubscription(t *testing.T, db *gorm.DB, mutate func(sub *models.Subscription)) *models.Subscription {
	t.Helper()
	loc := timeutil.LoadLocation("America/New_York")
	due := time.Date(2026, 3, 4, 0, 0, 0, 0, loc) // today
	billing := time.Date(2026, 3, 3, 9, 0, 0, 0, loc)
	sub := &models.Subscription{
		ShopDomain:         testShop,
		CustomerEmail:      "pat@example.com",
		CustomerName:       "Pat Doyle",
		ProductLabel:       "Weekly Veg Box",
		PreferredDay:       3,
		PreferredTimeSlot:  "9:00 AM – 11:00 AM",
		PreferredSlotStart: "09:00",
		Frequency:          enums.FrequencyWeekly,
		DiscountPercent:    decimal.NewFromInt(10),
		BillingLeadHours:   24,
		NextPickupDate:     &due,
		NextBillingDate:    &billing,
		Status:             enums.SubscriptionStatusActive,
	}
	if mutate != nil {
		mutate(sub)
	}
	require.NoError(t, db.Create(sub).Error)
	return sub
}

func TestRolloverMaterializesDuePickup(t *testing.T) {
	db := setupRolloverTestDB(t)
	svc := newRolloverService(t, db, nil, nil)
	sub := seedDueSubscription(t, db, nil)

	result := svc.RunDailyRollover(context.Background(), testShop)
	require.NoError(t, result.Err())
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Created)

	var instance models.PickupInstance
	require.NoError(t, db.First(&instance).Error)
	assert.Equal(t, enums.PickupStatusScheduled, instance.Status)
	assert.Equal(t, 4, instance.PickupDate.Day())
	assert.Equal(t, "9:00 AM – 11:00 AM", instance.TimeSlot)
	require.NotNil(t, instance.SubscriptionID)
	assert.Equal(t, sub.ID, *instance.SubscriptionID)

	var advanced models.Subscription
	require.NoError(t, db.First(&advanced, "id = ?", sub.ID).Error)
	require.NotNil(t, advanced.NextPickupDate)
	// Weekly Wednesday cadence: the 11th.
	assert.Equal(t, 11, advanced.NextPickupDate.Day())
	require.NotNil(t, advanced.NextBillingDate)
	assert.Equal(t, 10, advanced.NextBillingDate.Day())
	assert.Equal(t, 9, advanced.NextBillingDate.Hour())

	var event models.OutboxEvent
	require.NoError(t, db.Where("event_type = ?", enums.EventPickupScheduled).First(&event).Error)
}

func TestRolloverMaterializesOverrideThenRestoresCadence(t *testing.T) {
	db := setupRolloverTestDB(t)
	svc := newRolloverService(t, db, nil, nil)
	loc := timeutil.LoadLocation("America/New_York")
	overrideDate := time.Date(2026, 3, 4, 0, 0, 0, 0, loc)
	overrideSlot := "12:00 PM – 2:00 PM"
	sub := seedDueSubscription(t, db, func(s *models.Subscription) {
		s.PreferredDay = 5 // regular cadence is Fridays
		s.OneTimeDate = &overrideDate
		s.OneTimeTimeSlot = &overrideSlot
		s.NextPickupDate = &overrideDate
	})

	result := svc.RunDailyRollover(context.Background(), testShop)
	require.NoError(t, result.Err())

	var instance models.PickupInstance
	require.NoError(t, db.First(&instance).Error)
	assert.Equal(t, 4, instance.PickupDate.Day(), "instance carries the override date")
	assert.Equal(t, overrideSlot, instance.TimeSlot, "instance carries the override slot")

	var advanced models.Subscription
	require.NoError(t, db.First(&advanced, "id = ?", sub.ID).Error)
	assert.False(t, advanced.HasOneTimeReschedule(), "a materialized override must not re-fire")
	require.NotNil(t, advanced.NextPickupDate)
	// +7 from Wednesday the 4th lands on the 11th, snapped to Friday the 13th.
	assert.Equal(t, 13, advanced.NextPickupDate.Day())
}

func TestRolloverIgnoresFutureAndInactive(t *testing.T) {
	db := setupRolloverTestDB(t)
	svc := newRolloverService(t, db, nil, nil)
	loc := timeutil.LoadLocation("America/New_York")
	future := time.Date(2026, 3, 11, 0, 0, 0, 0, loc)
	seedDueSubscription(t, db, func(s *models.Subscription) {
		s.NextPickupDate = &future
	})
	seedDueSubscription(t, db, func(s *models.Subscription) {
		s.Status = enums.SubscriptionStatusPaused
	})

	result := svc.RunDailyRollover(context.Background(), testShop)
	require.NoError(t, result.Err())
	assert.Zero(t, result.Processed)
	assert.Zero(t, countPickups(t, db))
}

func TestRolloverIsolatesPerSubscriptionFailures(t *testing.T) {
	db := setupRolloverTestDB(t)
	failing := &failingPickupRepo{Repository: pickups.NewRepository(db), failEmail: "broken@example.com"}
	svc := newRolloverService(t, db, failing, nil)

	bad := seedDueSubscription(t, db, func(s *models.Subscription) {
		s.CustomerEmail = "broken@example.com"
	})
	seedDueSubscription(t, db, func(s *models.Subscription) {
		s.CustomerEmail = "fine@example.com"
	})

	result := svc.RunDailyRollover(context.Background(), testShop)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Created)
	require.Len(t, result.Errors, 1)
	assert.Error(t, result.Err())

	// The failed subscription's schedule is untouched.
	var untouched models.Subscription
	require.NoError(t, db.First(&untouched, "id = ?", bad.ID).Error)
	require.NotNil(t, untouched.NextPickupDate)
	assert.Equal(t, 4, untouched.NextPickupDate.Day())
	assert.EqualValues(t, 1, countPickups(t, db))
}

func TestRolloverCalendarFailureIsSwallowed(t *testing.T) {
	db := setupRolloverTestDB(t)
	calendar := &countingCalendar{err: fmt.Errorf("calendar api 500")}
	svc := newRolloverService(t, db, nil, calendar)
	seedDueSubscription(t, db, nil)

	result := svc.RunDailyRollover(context.Background(), testShop)
	require.NoError(t, result.Err())
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, calendar.created)
}

func TestAutoResumeSweepSkipsBillingFailures(t *testing.T) {
	db := setupRolloverTestDB(t)
	svc := newRolloverService(t, db, nil, nil)
	loc := timeutil.LoadLocation("America/New_York")
	yesterday := time.Date(2026, 3, 3, 0, 0, 0, 0, loc)

	expired := seedDueSubscription(t, db, func(s *models.Subscription) {
		s.Status = enums.SubscriptionStatusPaused
		s.PausedUntil = &yesterday
	})
	reason := subscriptions.PauseReasonBillingFailure
	stuck := seedDueSubscription(t, db, func(s *models.Subscription) {
		s.CustomerEmail = "late@example.com"
		s.Status = enums.SubscriptionStatusPaused
		s.PausedUntil = &yesterday
		s.PauseReason = &reason
		s.BillingFailureCount = 3
	})

	resumed, err := svc.RunAutoResumeSweep(context.Background(), testShop)
	require.NoError(t, err)
	assert.Equal(t, 1, resumed)

	var active models.Subscription
	require.NoError(t, db.First(&active, "id = ?", expired.ID).Error)
	assert.Equal(t, enums.SubscriptionStatusActive, active.Status)
	require.NotNil(t, active.NextPickupDate)
	// Recomputed from Wednesday the 4th for a Wednesday preference.
	assert.Equal(t, 11, active.NextPickupDate.Day())

	var stillPaused models.Subscription
	require.NoError(t, db.First(&stillPaused, "id = ?", stuck.ID).Error)
	assert.Equal(t, enums.SubscriptionStatusPaused, stillPaused.Status)
}

func countPickups(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.PickupInstance{}).Count(&n).Error)
	return n
}
