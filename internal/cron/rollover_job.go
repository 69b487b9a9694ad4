package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/meadowlane/pickups-backend/internal/rollover"
	"github.com/meadowlane/pickups-backend/pkg/logger"
)

// ShopSource lists the shops with live subscriptions to sweep.
type ShopSource interface {
	ActiveShopDomains(ctx context.Context) ([]string, error)
}

// RolloverRunner is the slice of the rollover service the jobs drive.
type RolloverRunner interface {
	RunDailyRollover(ctx context.Context, shopDomain string) rollover.Result
	RunAutoResumeSweep(ctx context.Context, shopDomain string) (int, error)
}

// DailyRolloverJob materializes due pickups for every active shop.
type DailyRolloverJob struct {
	shops ShopSource
	svc   RolloverRunner
	logg  *logger.Logger
}

func NewDailyRolloverJob(shops ShopSource, svc RolloverRunner, logg *logger.Logger) (*DailyRolloverJob, error) {
	if shops == nil {
		return nil, fmt.Errorf("shop source required")
	}
	if svc == nil {
		return nil, fmt.Errorf("rollover service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &DailyRolloverJob{shops: shops, svc: svc, logg: logg}, nil
}

func (j *DailyRolloverJob) Name() string {
	return "daily_rollover"
}

// Run sweeps every shop. Per-shop failures are collected, never fatal to the
// remaining shops.
func (j *DailyRolloverJob) Run(ctx context.Context) error {
	shops, err := j.shops.ActiveShopDomains(ctx)
	if err != nil {
		return fmt.Errorf("listing active shops: %w", err)
	}

	var errs error
	for _, shop := range shops {
		result := j.svc.RunDailyRollover(ctx, shop)
		if shopErr := result.Err(); shopErr != nil {
			errs = multierr.Append(errs, fmt.Errorf("shop %s: %w", shop, shopErr))
		}
	}
	return errs
}
