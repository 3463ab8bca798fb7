package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/sheerent-backend/api/controllers"
	"github.com/angelmondragon/sheerent-backend/api/middleware"
	"github.com/angelmondragon/sheerent-backend/internal/ledger"
	"github.com/angelmondragon/sheerent-backend/internal/messages"
	"github.com/angelmondragon/sheerent-backend/internal/rentals"
	"github.com/angelmondragon/sheerent-backend/pkg/clock"
	"github.com/angelmondragon/sheerent-backend/pkg/config"
	"github.com/angelmondragon/sheerent-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/sheerent-backend/pkg/redis"
)

// Deps groups everything the HTTP surface needs. Idempotency and Redis may be nil.
type Deps struct {
	Config      *config.Config
	Logger      *logger.Logger
	Clock       clock.Clock
	DB          controllers.Pinger
	Redis       controllers.Pinger
	Idempotency pkgredis.IdempotencyStore
	Gatherer    prometheus.Gatherer
	Rentals     rentals.Service
	Messages    messages.Service
	Ledger      ledger.Service
}

func NewRouter(d Deps) http.Handler {
	cfg, logg := d.Config, d.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	checks := map[string]controllers.Pinger{"db": d.DB}
	if d.Redis != nil {
		checks["redis"] = d.Redis
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, checks))
	})

	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Idempotency(d.Idempotency, logg))

		r.Route("/rentals", func(r chi.Router) {
			r.Post("/preview", controllers.PreviewRental(d.Rentals, d.Clock, logg))
			r.Post("/", controllers.CreateRental(d.Rentals, d.Clock, logg))
			r.Get("/", controllers.ListRentals(d.Rentals, logg))
			r.Get("/stats/{userId}", controllers.RentalStats(d.Rentals, logg))
			r.Route("/{rentalId}", func(r chi.Router) {
				r.Get("/", controllers.GetRental(d.Rentals, logg))
				r.Delete("/", controllers.DeleteRental(d.Rentals, logg))
				r.Put("/return", controllers.ReturnRental(d.Rentals, logg))
				r.Put("/extend", controllers.ExtendRental(d.Rentals, logg))
				r.Post("/pay-late-fee", controllers.PayLateFee(d.Rentals, logg))
			})
		})

		r.Route("/messages", func(r chi.Router) {
			r.Get("/{userId}", controllers.ListMessages(d.Messages, logg))
			r.Post("/{messageId}/read", controllers.MarkMessageRead(d.Messages, logg))
		})

		r.Get("/users/{userId}/ledger", controllers.ListLedgerEntries(d.Ledger, logg))
	})

	return r
}
