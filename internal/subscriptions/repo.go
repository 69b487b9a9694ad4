package subscriptions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/meadowlane/pickups-backend/pkg/db/models"
	"github.com/meadowlane/pickups-backend/pkg/enums"
)

// Repository is the persistence surface for subscriptions and their audit
// notes. Find methods return nil without error when no row matches.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, sub *models.Subscription) error
	Update(ctx context.Context, sub *models.Subscription) error
	FindByID(ctx context.Context, shopDomain string, id uuid.UUID) (*models.Subscription, error)
	FindByContractID(ctx context.Context, shopDomain, contractID string) (*models.Subscription, error)
	FindRecentOrderSourced(ctx context.Context, shopDomain, customerEmail string, since time.Time) (*models.Subscription, error)
	FindDueActive(ctx context.Context, shopDomain string, cutoff time.Time) ([]models.Subscription, error)
	FindPausedDue(ctx context.Context, shopDomain string, cutoff time.Time) ([]models.Subscription, error)
	ActiveShopDomains(ctx context.Context) ([]string, error)
	AppendNote(ctx context.Context, note *models.SubscriptionNote) error
	NotesBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]models.SubscriptionNote, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a subscription repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *repository) Update(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Save(sub).Error
}

func (r *repository) FindByID(ctx context.Context, shopDomain string, id uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Where("shop_domain = ? AND id = ?", shopDomain, id).
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repository) FindByContractID(ctx context.Context, shopDomain, contractID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Where("shop_domain = ? AND contract_id = ?", shopDomain, contractID).
		Order("created_at DESC").
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// FindRecentOrderSourced locates an active subscription created by the
// order-ingestion path (no contract id yet) for the same customer. Used to
// merge the two upstream creation events into one record.
func (r *repository) FindRecentOrderSourced(ctx context.Context, shopDomain, customerEmail string, since time.Time) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Where("shop_domain = ? AND LOWER(customer_email) = LOWER(?)", shopDomain, customerEmail).
		Where("status = ?", enums.SubscriptionStatusActive).
		Where("contract_id IS NULL").
		Where("created_at >= ?", since).
		Order("created_at DESC").
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repository) FindDueActive(ctx context.Context, shopDomain string, cutoff time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.WithContext(ctx).
		Where("shop_domain = ? AND status = ?", shopDomain, enums.SubscriptionStatusActive).
		Where("next_pickup_date IS NOT NULL AND next_pickup_date <= ?", cutoff).
		Order("next_pickup_date ASC").
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repository) FindPausedDue(ctx context.Context, shopDomain string, cutoff time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.WithContext(ctx).
		Where("shop_domain = ? AND status = ?", shopDomain, enums.SubscriptionStatusPaused).
		Where("paused_until IS NOT NULL AND paused_until <= ?", cutoff).
		Order("paused_until ASC").
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repository) ActiveShopDomains(ctx context.Context) ([]string, error) {
	var shops []string
	err := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("status <> ?", enums.SubscriptionStatusCancelled).
		Distinct("shop_domain").
		Pluck("shop_domain", &shops).Error
	if err != nil {
		return nil, err
	}
	return shops, nil
}

func (r *repository) AppendNote(ctx context.Context, note *models.SubscriptionNote) error {
	return r.db.WithContext(ctx).Create(note).Error
}

func (r *repository) NotesBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]models.SubscriptionNote, error) {
	var notes []models.SubscriptionNote
	err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at ASC").
		Find(&notes).Error
	if err != nil {
		return nil, err
	}
	return notes, nil
}
