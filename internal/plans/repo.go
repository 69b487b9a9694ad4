package plans

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/meadowlane/pickups-backend/pkg/db/models"
	"github.com/meadowlane/pickups-backend/pkg/enums"
)

// Repository reads per-shop frequency configuration.
type Repository interface {
	FindByLabel(ctx context.Context, shopDomain string, label enums.Frequency) (*models.PlanFrequency, error)
	Upsert(ctx context.Context, plan *models.PlanFrequency) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a plan repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindByLabel(ctx context.Context, shopDomain string, label enums.Frequency) (*models.PlanFrequency, error) {
	var plan models.PlanFrequency
	err := r.db.WithContext(ctx).
		Where("shop_domain = ? AND label = ?", shopDomain, label).
		First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

func (r *repository) Upsert(ctx context.Context, plan *models.PlanFrequency) error {
	existing, err := r.FindByLabel(ctx, plan.ShopDomain, plan.Label)
	if err != nil {
		return err
	}
	if existing == nil {
		return r.db.WithContext(ctx).Create(plan).Error
	}
	existing.DiscountPercent = plan.DiscountPercent
	existing.BillingLeadHours = plan.BillingLeadHours
	return r.db.WithContext(ctx).Save(existing).Error
}
