package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/meadowlane/pickups-backend/pkg/logger"
)

// AutoResumeJob lifts expired pauses for every active shop.
type AutoResumeJob struct {
	shops ShopSource
	svc   RolloverRunner
	logg  *logger.Logger
}

func NewAutoResumeJob(shops ShopSource, svc RolloverRunner, logg *logger.Logger) (*AutoResumeJob, error) {
	if shops == nil {
		return nil, fmt.Errorf("shop source required")
	}
	if svc == nil {
		return nil, fmt.Errorf("rollover service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &AutoResumeJob{shops: shops, svc: svc, logg: logg}, nil
}

func (j *AutoResumeJob) Name() string {
	return "auto_resume"
}

func (j *AutoResumeJob) Run(ctx context.Context) error {
	shops, err := j.shops.ActiveShopDomains(ctx)
	if err != nil {
		return fmt.Errorf("listing active shops: %w", err)
	}

	total := 0
	var errs error
	for _, shop := range shops {
		resumed, shopErr := j.svc.RunAutoResumeSweep(ctx, shop)
		total += resumed
		if shopErr != nil {
			errs = multierr.Append(errs, fmt.Errorf("shop %s: %w", shop, shopErr))
		}
	}
	j.logg.Info(j.logg.WithField(ctx, "resumed", total), "auto-resume job finished")
	return errs
}
