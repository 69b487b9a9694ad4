package plans

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/meadowlane/pickups-backend/pkg/enums"
	"github.com/meadowlane/pickups-backend/pkg/logger"
)

// Plan is the resolved billing configuration for one cadence.
type Plan struct {
	Frequency        enums.Frequency
	DiscountPercent  decimal.Decimal
	BillingLeadHours int
}

// Fallback defaults when a shop has no configuration row. Plan lookup
// failures must never block scheduling.
var defaultPlans = map[enums.Frequency]Plan{
	enums.FrequencyWeekly: {
		Frequency:        enums.FrequencyWeekly,
		DiscountPercent:  decimal.NewFromInt(10),
		BillingLeadHours: 24,
	},
	enums.FrequencyBiweekly: {
		Frequency:        enums.FrequencyBiweekly,
		DiscountPercent:  decimal.NewFromInt(5),
		BillingLeadHours: 24,
	},
	enums.FrequencyTriweekly: {
		Frequency:        enums.FrequencyTriweekly,
		DiscountPercent:  decimal.NewFromFloat(2.5),
		BillingLeadHours: 24,
	},
}

// ServiceParams groups dependencies for the plan lookup service.
type ServiceParams struct {
	Repo   Repository
	Logger *logger.Logger
}

// Service resolves a frequency label to its discount and billing lead.
type Service struct {
	repo Repository
	logg *logger.Logger
}

// NewService builds a plan lookup service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("plan repo required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{repo: params.Repo, logg: params.Logger}, nil
}

// Lookup returns the shop's configuration for the cadence, falling back to
// hardcoded defaults when no row exists or the read fails.
func (s *Service) Lookup(ctx context.Context, shopDomain string, freq enums.Frequency) Plan {
	fallback := defaultPlans[enums.FrequencyWeekly]
	if plan, ok := defaultPlans[freq]; ok {
		fallback = plan
	}

	row, err := s.repo.FindByLabel(ctx, shopDomain, freq)
	if err != nil {
		logCtx := s.logg.WithShop(ctx, shopDomain)
		s.logg.Error(logCtx, "plan lookup failed, using defaults", err)
		return fallback
	}
	if row == nil {
		return fallback
	}
	return Plan{
		Frequency:        freq,
		DiscountPercent:  row.DiscountPercent,
		BillingLeadHours: row.BillingLeadHours,
	}
}
