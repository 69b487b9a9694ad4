package subscriptions

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meadowlane/pickups-backend/api/middleware"
	"github.com/meadowlane/pickups-backend/api/responses"
	"github.com/meadowlane/pickups-backend/api/validators"
	subsvc "github.com/meadowlane/pickups-backend/internal/subscriptions"
	"github.com/meadowlane/pickups-backend/pkg/db/models"
	pkgerrors "github.com/meadowlane/pickups-backend/pkg/errors"
	"github.com/meadowlane/pickups-backend/pkg/logger"
)

const (
	customerEmailHeader = "X-Customer-Email"
	staffEmailHeader    = "X-Staff-Email"
	dateLayout          = "2006-01-02"
)

// Lifecycle is the slice of the subscription service the controllers drive.
type Lifecycle interface {
	Get(ctx context.Context, shopDomain string, id uuid.UUID) (*models.Subscription, error)
	Notes(ctx context.Context, shopDomain string, id uuid.UUID) ([]models.SubscriptionNote, error)
	Pause(ctx context.Context, shopDomain string, id uuid.UUID, actor subsvc.Actor, reason string, until *time.Time) (*models.Subscription, error)
	Resume(ctx context.Context, shopDomain string, id uuid.UUID, actor subsvc.Actor) (*models.Subscription, error)
	Cancel(ctx context.Context, shopDomain string, id uuid.UUID, actor subsvc.Actor, reason string) (*models.Subscription, error)
	OneTimeReschedule(ctx context.Context, shopDomain string, id uuid.UUID, actor subsvc.Actor, newDate time.Time, timeSlot, reason string) (*models.Subscription, error)
	ClearOneTimeReschedule(ctx context.Context, shopDomain string, id uuid.UUID, actor subsvc.Actor) (*models.Subscription, error)
	PermanentReschedule(ctx context.Context, shopDomain string, id uuid.UUID, actor subsvc.Actor, newDay int, newTimeSlot string) (*models.Subscription, error)
}

type pauseRequest struct {
	Reason string `json:"reason"`
	Until  string `json:"until" validate:"omitempty,datetime=2006-01-02"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type oneTimeRescheduleRequest struct {
	Date     string `json:"date" validate:"required,datetime=2006-01-02"`
	TimeSlot string `json:"timeSlot"`
	Reason   string `json:"reason"`
}

type permanentRescheduleRequest struct {
	Day      *int   `json:"day" validate:"required,min=0,max=6"`
	TimeSlot string `json:"timeSlot"`
}

type subscriptionResponse struct {
	ID                  uuid.UUID       `json:"id"`
	ShopDomain          string          `json:"shopDomain"`
	ContractID          *string         `json:"contractId,omitempty"`
	CustomerEmail       string          `json:"customerEmail"`
	CustomerName        string          `json:"customerName,omitempty"`
	ProductLabel        string          `json:"productLabel,omitempty"`
	Status              string          `json:"status"`
	Frequency           string          `json:"frequency"`
	DiscountPercent     decimal.Decimal `json:"discountPercent"`
	PreferredDay        int             `json:"preferredDay"`
	PreferredTimeSlot   string          `json:"preferredTimeSlot"`
	NextPickupDate      *string         `json:"nextPickupDate,omitempty"`
	NextBillingDate     *time.Time      `json:"nextBillingDate,omitempty"`
	PausedUntil         *string         `json:"pausedUntil,omitempty"`
	PauseReason         *string         `json:"pauseReason,omitempty"`
	OneTimeDate         *string         `json:"oneTimeDate,omitempty"`
	OneTimeTimeSlot     *string         `json:"oneTimeTimeSlot,omitempty"`
	BillingFailureCount int             `json:"billingFailureCount"`
}

type noteResponse struct {
	Actor     string    `json:"actor"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// actorFrom builds the acting identity from request headers. Staff routes set
// staff true and may carry an optional staff email for the audit trail.
func actorFrom(r *http.Request, staff bool) (subsvc.Actor, error) {
	if staff {
		return subsvc.Actor{Email: strings.TrimSpace(r.Header.Get(staffEmailHeader)), Staff: true}, nil
	}
	email := strings.TrimSpace(r.Header.Get(customerEmailHeader))
	if email == "" {
		return subsvc.Actor{}, pkgerrors.Newf(pkgerrors.CodeValidation, "%s header is required", customerEmailHeader)
	}
	return subsvc.Actor{Email: email}, nil
}

func subscriptionIDFrom(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "subscriptionId")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid subscription id %q", raw)
	}
	return id, nil
}

func parseDate(value string, loc *time.Location) (time.Time, error) {
	day, err := time.ParseInLocation(dateLayout, value, loc)
	if err != nil {
		return time.Time{}, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid date %q (want YYYY-MM-DD)", value)
	}
	return day, nil
}

func Detail(svc Lifecycle, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shop, id, _, err := requestScope(r, true)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sub, err := svc.Get(r.Context(), shop, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSubscriptionResponse(sub))
	}
}

func Notes(svc Lifecycle, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shop, id, _, err := requestScope(r, true)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		notes, err := svc.Notes(r.Context(), shop, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]noteResponse, 0, len(notes))
		for _, note := range notes {
			out = append(out, noteResponse{Actor: note.Actor, Message: note.Message, CreatedAt: note.CreatedAt})
		}
		responses.WriteSuccess(w, out)
	}
}

func Pause(svc Lifecycle, logg *logger.Logger, loc *time.Location, staff bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shop, id, actor, err := requestScope(r, staff)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload pauseRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		var until *time.Time
		if payload.Until != "" {
			day, err := parseDate(payload.Until, loc)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			until = &day
		}

		sub, err := svc.Pause(r.Context(), shop, id, actor, payload.Reason, until)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSubscriptionResponse(sub))
	}
}

func Resume(svc Lifecycle, logg *logger.Logger, staff bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shop, id, actor, err := requestScope(r, staff)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sub, err := svc.Resume(r.Context(), shop, id, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSubscriptionResponse(sub))
	}
}

func Cancel(svc Lifecycle, logg *logger.Logger, staff bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shop, id, actor, err := requestScope(r, staff)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cancelRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		sub, err := svc.Cancel(r.Context(), shop, id, actor, payload.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSubscriptionResponse(sub))
	}
}

func OneTimeReschedule(svc Lifecycle, logg *logger.Logger, loc *time.Location, staff bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shop, id, actor, err := requestScope(r, staff)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload oneTimeRescheduleRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		day, err := parseDate(payload.Date, loc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.OneTimeReschedule(r.Context(), shop, id, actor, day, payload.TimeSlot, payload.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSubscriptionResponse(sub))
	}
}

func ClearOneTimeReschedule(svc Lifecycle, logg *logger.Logger, staff bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shop, id, actor, err := requestScope(r, staff)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sub, err := svc.ClearOneTimeReschedule(r.Context(), shop, id, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSubscriptionResponse(sub))
	}
}

func PermanentReschedule(svc Lifecycle, logg *logger.Logger, staff bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shop, id, actor, err := requestScope(r, staff)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload permanentRescheduleRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.PermanentReschedule(r.Context(), shop, id, actor, *payload.Day, payload.TimeSlot)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSubscriptionResponse(sub))
	}
}

func requestScope(r *http.Request, staff bool) (string, uuid.UUID, subsvc.Actor, error) {
	shop, err := middleware.ShopFromContext(r.Context())
	if err != nil {
		return "", uuid.Nil, subsvc.Actor{}, err
	}
	id, err := subscriptionIDFrom(r)
	if err != nil {
		return "", uuid.Nil, subsvc.Actor{}, err
	}
	actor, err := actorFrom(r, staff)
	if err != nil {
		return "", uuid.Nil, subsvc.Actor{}, err
	}
	return shop, id, actor, nil
}

func newSubscriptionResponse(sub *models.Subscription) *subscriptionResponse {
	if sub == nil {
		return nil
	}
	return &subscriptionResponse{
		ID:                  sub.ID,
		ShopDomain:          sub.ShopDomain,
		ContractID:          sub.ContractID,
		CustomerEmail:       sub.CustomerEmail,
		CustomerName:        sub.CustomerName,
		ProductLabel:        sub.ProductLabel,
		Status:              string(sub.Status),
		Frequency:           string(sub.Frequency),
		DiscountPercent:     sub.DiscountPercent,
		PreferredDay:        sub.PreferredDay,
		PreferredTimeSlot:   sub.PreferredTimeSlot,
		NextPickupDate:      dateString(sub.NextPickupDate),
		NextBillingDate:     sub.NextBillingDate,
		PausedUntil:         dateString(sub.PausedUntil),
		PauseReason:         sub.PauseReason,
		OneTimeDate:         dateString(sub.OneTimeDate),
		OneTimeTimeSlot:     sub.OneTimeTimeSlot,
		BillingFailureCount: sub.BillingFailureCount,
	}
}

func dateString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := t.Format(dateLayout)
	return &formatted
}
