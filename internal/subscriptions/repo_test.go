package subscriptions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meadowlane/pickups-backend/pkg/db/models"
	"github.com/meadowlane/pickups-backend/pkg/enums"
	"github.com/meadowlane/pickups-backend/pkg/timeutil"
)

func TestFindRecentOrderSourced(t *testing.T) {
	db := setupSubscriptionsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	since := testNow().Add(-5 * time.Minute)

	contractID := "gid://shopify/SubscriptionContract/1"
	seedSubscription(t, db, func(s *models.Subscription) {
		s.ContractID = &contractID
		s.CreatedAt = testNow()
	})
	seedSubscription(t, db, func(s *models.Subscription) {
		s.CreatedAt = testNow().Add(-time.Hour)
	})
	match := seedSubscription(t, db, func(s *models.Subscription) {
		s.CreatedAt = testNow().Add(-time.Minute)
	})

	got, err := repo.FindRecentOrderSourced(ctx, "greenmarket.example.com", "PAT@example.com", since)
	require.NoError(t, err)
	require.NotNil(t, got, "case-insensitive email should match")
	assert.Equal(t, match.ID, got.ID, "contract-bound and stale rows are skipped")

	got, err = repo.FindRecentOrderSourced(ctx, "othershop.example.com", "pat@example.com", since)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFindDueActiveFiltersByDateAndStatus(t *testing.T) {
	db := setupSubscriptionsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	loc := timeutil.LoadLocation("America/New_York")
	today := timeutil.Today(testNow(), loc)
	tomorrow := timeutil.AddDays(today, 1)

	due := seedSubscription(t, db, func(s *models.Subscription) {
		s.NextPickupDate = &today
	})
	seedSubscription(t, db, func(s *models.Subscription) {
		s.NextPickupDate = &tomorrow
	})
	seedSubscription(t, db, func(s *models.Subscription) {
		s.Status = enums.SubscriptionStatusPaused
		s.NextPickupDate = &today
	})
	seedSubscription(t, db, func(s *models.Subscription) {
		s.NextPickupDate = nil
	})

	subs, err := repo.FindDueActive(ctx, "greenmarket.example.com", today)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, due.ID, subs[0].ID)
}

func TestFindPausedDue(t *testing.T) {
	db := setupSubscriptionsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	loc := timeutil.LoadLocation("America/New_York")
	today := timeutil.Today(testNow(), loc)
	yesterday := timeutil.AddDays(today, -1)
	nextWeek := timeutil.AddDays(today, 7)

	expired := seedSubscription(t, db, func(s *models.Subscription) {
		s.Status = enums.SubscriptionStatusPaused
		s.PausedUntil = &yesterday
	})
	seedSubscription(t, db, func(s *models.Subscription) {
		s.Status = enums.SubscriptionStatusPaused
		s.PausedUntil = &nextWeek
	})
	seedSubscription(t, db, func(s *models.Subscription) {
		s.Status = enums.SubscriptionStatusPaused
	})

	subs, err := repo.FindPausedDue(ctx, "greenmarket.example.com", today)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, expired.ID, subs[0].ID)
}

func TestActiveShopDomainsSkipsCancelledOnly(t *testing.T) {
	db := setupSubscriptionsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	seedSubscription(t, db, nil)
	seedSubscription(t, db, func(s *models.Subscription) {
		s.ShopDomain = "pauses.example.com"
		s.Status = enums.SubscriptionStatusPaused
	})
	seedSubscription(t, db, func(s *models.Subscription) {
		s.ShopDomain = "gone.example.com"
		s.Status = enums.SubscriptionStatusCancelled
	})

	shops, err := repo.ActiveShopDomains(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"greenmarket.example.com", "pauses.example.com"}, shops)
}

func TestFindByContractIDPrefersNewest(t *testing.T) {
	db := setupSubscriptionsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	contractID := "gid://shopify/SubscriptionContract/7"
	seedSubscription(t, db, func(s *models.Subscription) {
		s.ContractID = &contractID
		s.Status = enums.SubscriptionStatusCancelled
		s.CreatedAt = testNow().Add(-48 * time.Hour)
	})
	newest := seedSubscription(t, db, func(s *models.Subscription) {
		s.ContractID = &contractID
		s.CreatedAt = testNow()
	})

	got, err := repo.FindByContractID(ctx, "greenmarket.example.com", contractID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, newest.ID, got.ID)
}
