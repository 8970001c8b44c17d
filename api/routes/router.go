package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/holopos/api/controllers"
	"github.com/angelmondragon/holopos/api/middleware"
	"github.com/angelmondragon/holopos/internal/backend"
	"github.com/angelmondragon/holopos/internal/cart"
	"github.com/angelmondragon/holopos/internal/catalog"
	checkoutsvc "github.com/angelmondragon/holopos/internal/checkout"
	"github.com/angelmondragon/holopos/internal/connectivity"
	"github.com/angelmondragon/holopos/internal/offline"
	"github.com/angelmondragon/holopos/internal/reconcile"
	"github.com/angelmondragon/holopos/pkg/config"
	"github.com/angelmondragon/holopos/pkg/enums"
	"github.com/angelmondragon/holopos/pkg/logger"
	pkgredis "github.com/angelmondragon/holopos/pkg/redis"
)

// Deps are the terminal components the HTTP surface fronts.
type Deps struct {
	Catalog      *catalog.Cache
	Pricer       cart.Pricer
	Checkout     *checkoutsvc.Service
	Backend      *backend.Client
	Queue        *offline.Store
	Reconciler   *reconcile.Reconciler
	Runner       *reconcile.Runner
	Connectivity *connectivity.Monitor
	// Redis is optional; without it checkout requests are not replayed.
	Redis    *pkgredis.Client
	Ready    map[string]controllers.Pinger
	Registry *prometheus.Registry
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Ready))
	})

	if deps.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{Registry: deps.Registry}))
	}

	var idempotencyStore pkgredis.IdempotencyStore
	if deps.Redis != nil {
		idempotencyStore = deps.Redis
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Post("/cart/quote", controllers.CartQuote(deps.Catalog, deps.Pricer, logg))
		r.Post("/checkout", controllers.Checkout(deps.Checkout, deps.Catalog, deps.Backend, logg))

		r.Route("/offline", func(r chi.Router) {
			r.Get("/sales", controllers.OfflineSales(deps.Queue, logg))
			r.Post("/sync", controllers.OfflineSync(deps.Reconciler, runnerOrNil(deps.Runner), logg))
		})

		r.Get("/connectivity", controllers.ConnectivityGet(deps.Connectivity, logg))
		r.Put("/connectivity", controllers.ConnectivitySet(deps.Connectivity, logg))

		r.Route("/catalog", func(r chi.Router) {
			r.Get("/products", controllers.CatalogProducts(deps.Catalog, logg))
			r.Get("/barcode/{code}", controllers.CatalogBarcode(deps.Catalog, logg))
			r.With(middleware.RequireRole(logg, enums.StaffRoleAdmin, enums.StaffRoleManager)).
				Post("/refresh", controllers.CatalogRefresh(deps.Catalog, logg))
		})
	})

	return r
}

func runnerOrNil(runner *reconcile.Runner) interface{ Trigger() } {
	if runner == nil {
		return nil
	}
	return runner
}
