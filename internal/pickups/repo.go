package pickups

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/meadowlane/pickups-backend/pkg/db/models"
)

// Repository is the persistence surface for pickup instances.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, instance *models.PickupInstance) error
	Update(ctx context.Context, instance *models.PickupInstance) error
	FindByID(ctx context.Context, shopDomain string, id uuid.UUID) (*models.PickupInstance, error)
	FindByDate(ctx context.Context, shopDomain string, date time.Time) ([]models.PickupInstance, error)
	FindBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]models.PickupInstance, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, instance *models.PickupInstance) error {
	return r.db.WithContext(ctx).Create(instance).Error
}

func (r *repository) Update(ctx context.Context, instance *models.PickupInstance) error {
	return r.db.WithContext(ctx).Save(instance).Error
}

func (r *repository) FindByID(ctx context.Context, shopDomain string, id uuid.UUID) (*models.PickupInstance, error) {
	var instance models.PickupInstance
	err := r.db.WithContext(ctx).
		Where("shop_domain = ? AND id = ?", shopDomain, id).
		First(&instance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &instance, nil
}

func (r *repository) FindByDate(ctx context.Context, shopDomain string, date time.Time) ([]models.PickupInstance, error) {
	var instances []models.PickupInstance
	err := r.db.WithContext(ctx).
		Where("shop_domain = ? AND pickup_date = ?", shopDomain, date).
		Order("time_slot ASC").
		Find(&instances).Error
	if err != nil {
		return nil, err
	}
	return instances, nil
}

func (r *repository) FindBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]models.PickupInstance, error) {
	var instances []models.PickupInstance
	err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("pickup_date DESC").
		Find(&instances).Error
	if err != nil {
		return nil, err
	}
	return instances, nil
}
