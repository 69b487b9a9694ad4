package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meadowlane/pickups-backend/api/controllers"
	pickupcontrollers "github.com/meadowlane/pickups-backend/api/controllers/pickups"
	subscriptioncontrollers "github.com/meadowlane/pickups-backend/api/controllers/subscriptions"
	webhookcontrollers "github.com/meadowlane/pickups-backend/api/controllers/webhooks"
	"github.com/meadowlane/pickups-backend/api/middleware"
	"github.com/meadowlane/pickups-backend/pkg/config"
	"github.com/meadowlane/pickups-backend/pkg/logger"
)

// RouterParams carries everything the HTTP surface depends on. Health pingers
// are keyed by dependency name for the readiness report.
type RouterParams struct {
	Config        *config.Config
	Logger        *logger.Logger
	HealthPingers map[string]controllers.Pinger
	Ingestion     webhookcontrollers.IngestionService
	Subscriptions subscriptioncontrollers.Lifecycle
	Pickups       pickupcontrollers.Service
	Location      *time.Location
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.HealthPingers))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Use(middleware.ShopContext(logg))
		r.Post("/orders", webhookcontrollers.OrderCreated(params.Ingestion, logg))
		r.Post("/contracts", webhookcontrollers.ContractCreated(params.Ingestion, logg))
		r.Post("/billing-attempts", webhookcontrollers.BillingAttemptFailed(params.Ingestion, logg))
	})

	// Customer-facing actions authenticate via the storefront proxy, which
	// injects the customer email header.
	r.Route("/api/v1/subscriptions", func(r chi.Router) {
		r.Use(middleware.ShopContext(logg))
		r.Route("/{subscriptionId}", func(r chi.Router) {
			r.Post("/pause", subscriptioncontrollers.Pause(params.Subscriptions, logg, loc, false))
			r.Post("/resume", subscriptioncontrollers.Resume(params.Subscriptions, logg, false))
			r.Post("/cancel", subscriptioncontrollers.Cancel(params.Subscriptions, logg, false))
			r.Post("/reschedule", subscriptioncontrollers.OneTimeReschedule(params.Subscriptions, logg, loc, false))
			r.Delete("/reschedule", subscriptioncontrollers.ClearOneTimeReschedule(params.Subscriptions, logg, false))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.ShopContext(logg))

		r.Route("/subscriptions/{subscriptionId}", func(r chi.Router) {
			r.Get("/", subscriptioncontrollers.Detail(params.Subscriptions, logg))
			r.Get("/notes", subscriptioncontrollers.Notes(params.Subscriptions, logg))
			r.Post("/pause", subscriptioncontrollers.Pause(params.Subscriptions, logg, loc, true))
			r.Post("/resume", subscriptioncontrollers.Resume(params.Subscriptions, logg, true))
			r.Post("/cancel", subscriptioncontrollers.Cancel(params.Subscriptions, logg, true))
			r.Post("/reschedule", subscriptioncontrollers.OneTimeReschedule(params.Subscriptions, logg, loc, true))
			r.Delete("/reschedule", subscriptioncontrollers.ClearOneTimeReschedule(params.Subscriptions, logg, true))
			r.Post("/reschedule/permanent", subscriptioncontrollers.PermanentReschedule(params.Subscriptions, logg, true))
		})

		r.Route("/pickups", func(r chi.Router) {
			r.Get("/", pickupcontrollers.ListByDate(params.Pickups, logg, loc))
			r.Route("/{pickupId}", func(r chi.Router) {
				r.Get("/", pickupcontrollers.Detail(params.Pickups, logg))
				r.Post("/ready", pickupcontrollers.MarkReady(params.Pickups, logg))
				r.Post("/picked-up", pickupcontrollers.MarkPickedUp(params.Pickups, logg))
				r.Post("/cancel", pickupcontrollers.Cancel(params.Pickups, logg))
				r.Post("/no-show", pickupcontrollers.MarkNoShow(params.Pickups, logg))
			})
		})
	})

	return r
}
