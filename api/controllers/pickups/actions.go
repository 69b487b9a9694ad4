package pickups

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/meadowlane/pickups-backend/api/middleware"
	"github.com/meadowlane/pickups-backend/api/responses"
	"github.com/meadowlane/pickups-backend/pkg/db/models"
	pkgerrors "github.com/meadowlane/pickups-backend/pkg/errors"
	"github.com/meadowlane/pickups-backend/pkg/logger"
)

const dateLayout = "2006-01-02"

// Service is the slice of the pickup instance service the controllers drive.
type Service interface {
	Get(ctx context.Context, shopDomain string, id uuid.UUID) (*models.PickupInstance, error)
	ListByDate(ctx context.Context, shopDomain string, date time.Time) ([]models.PickupInstance, error)
	MarkReady(ctx context.Context, shopDomain string, id uuid.UUID) (*models.PickupInstance, error)
	MarkPickedUp(ctx context.Context, shopDomain string, id uuid.UUID) (*models.PickupInstance, error)
	Cancel(ctx context.Context, shopDomain string, id uuid.UUID) (*models.PickupInstance, error)
	MarkNoShow(ctx context.Context, shopDomain string, id uuid.UUID) (*models.PickupInstance, error)
}

type pickupResponse struct {
	ID             uuid.UUID  `json:"id"`
	ShopDomain     string     `json:"shopDomain"`
	SubscriptionID *uuid.UUID `json:"subscriptionId,omitempty"`
	CustomerEmail  string     `json:"customerEmail"`
	CustomerName   string     `json:"customerName,omitempty"`
	ProductLabel   string     `json:"productLabel,omitempty"`
	PickupDate     string     `json:"pickupDate"`
	TimeSlot       string     `json:"timeSlot"`
	Status         string     `json:"status"`
}

func Detail(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shop, id, err := requestScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		instance, err := svc.Get(r.Context(), shop, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPickupResponse(instance))
	}
}

// ListByDate returns the shop's pickups for the date query parameter,
// defaulting to today in the business timezone.
func ListByDate(svc Service, logg *logger.Logger, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shop, err := middleware.ShopFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		day := time.Now().In(loc)
		if raw := r.URL.Query().Get("date"); raw != "" {
			parsed, parseErr := time.ParseInLocation(dateLayout, raw, loc)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.Newf(pkgerrors.CodeValidation, "invalid date %q (want YYYY-MM-DD)", raw))
				return
			}
			day = parsed
		}

		instances, err := svc.ListByDate(r.Context(), shop, day)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]*pickupResponse, 0, len(instances))
		for i := range instances {
			out = append(out, newPickupResponse(&instances[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

func MarkReady(svc Service, logg *logger.Logger) http.HandlerFunc {
	return transitionHandler(svc.MarkReady, logg)
}

func MarkPickedUp(svc Service, logg *logger.Logger) http.HandlerFunc {
	return transitionHandler(svc.MarkPickedUp, logg)
}

func Cancel(svc Service, logg *logger.Logger) http.HandlerFunc {
	return transitionHandler(svc.Cancel, logg)
}

func MarkNoShow(svc Service, logg *logger.Logger) http.HandlerFunc {
	return transitionHandler(svc.MarkNoShow, logg)
}

func transitionHandler(
	apply func(ctx context.Context, shopDomain string, id uuid.UUID) (*models.PickupInstance, error),
	logg *logger.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shop, id, err := requestScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		instance, err := apply(r.Context(), shop, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPickupResponse(instance))
	}
}

func requestScope(r *http.Request) (string, uuid.UUID, error) {
	shop, err := middleware.ShopFromContext(r.Context())
	if err != nil {
		return "", uuid.Nil, err
	}
	raw := chi.URLParam(r, "pickupId")
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", uuid.Nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid pickup id %q", raw)
	}
	return shop, id, nil
}

func newPickupResponse(instance *models.PickupInstance) *pickupResponse {
	if instance == nil {
		return nil
	}
	return &pickupResponse{
		ID:             instance.ID,
		ShopDomain:     instance.ShopDomain,
		SubscriptionID: instance.SubscriptionID,
		CustomerEmail:  instance.CustomerEmail,
		CustomerName:   instance.CustomerName,
		ProductLabel:   instance.ProductLabel,
		PickupDate:     instance.PickupDate.Format(dateLayout),
		TimeSlot:       instance.TimeSlot,
		Status:         string(instance.Status),
	}
}
