package webhooks

import (
	"context"
	"net/http"

	"github.com/meadowlane/pickups-backend/api/middleware"
	"github.com/meadowlane/pickups-backend/api/responses"
	"github.com/meadowlane/pickups-backend/api/validators"
	"github.com/meadowlane/pickups-backend/internal/ingestion"
	pkgerrors "github.com/meadowlane/pickups-backend/pkg/errors"
	"github.com/meadowlane/pickups-backend/pkg/logger"
)

// IngestionService settles inbound platform webhooks.
type IngestionService interface {
	HandleOrderCreated(ctx context.Context, shopDomain string, evt ingestion.OrderCreatedEvent) (ingestion.Result, error)
	HandleContractCreated(ctx context.Context, shopDomain string, evt ingestion.ContractCreatedEvent) (ingestion.Result, error)
	HandleBillingAttemptFailed(ctx context.Context, shopDomain string, evt ingestion.BillingAttemptFailedEvent) (ingestion.Result, error)
}

// OrderCreated accepts the recurring-line-item order webhook. Replays return
// 200 with alreadyProcessed set instead of an error.
func OrderCreated(svc IngestionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ingestion service unavailable"))
			return
		}

		shop, err := middleware.ShopFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload ingestion.OrderCreatedEvent
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.HandleOrderCreated(r.Context(), shop, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeIngestionResult(w, result)
	}
}

// ContractCreated accepts the authoritative contract webhook.
func ContractCreated(svc IngestionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ingestion service unavailable"))
			return
		}

		shop, err := middleware.ShopFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload ingestion.ContractCreatedEvent
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.HandleContractCreated(r.Context(), shop, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeIngestionResult(w, result)
	}
}

// BillingAttemptFailed records a failed charge against the owning contract.
func BillingAttemptFailed(svc IngestionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ingestion service unavailable"))
			return
		}

		shop, err := middleware.ShopFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload ingestion.BillingAttemptFailedEvent
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.HandleBillingAttemptFailed(r.Context(), shop, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func writeIngestionResult(w http.ResponseWriter, result ingestion.Result) {
	if result.AlreadyProcessed || result.MatchedExisting {
		responses.WriteSuccess(w, result)
		return
	}
	responses.WriteSuccessStatus(w, http.StatusCreated, result)
}
