package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/warewave/warewave/internal/inventory"
	"github.com/warewave/warewave/internal/lots"
	"github.com/warewave/warewave/internal/masterdata/locations"
	"github.com/warewave/warewave/internal/masterdata/products"
	"github.com/warewave/warewave/internal/observability"
	"github.com/warewave/warewave/internal/picking/orders"
	"github.com/warewave/warewave/internal/picking/tasks"
	"github.com/warewave/warewave/internal/picking/waves"
	"github.com/warewave/warewave/internal/routing"
	"github.com/warewave/warewave/internal/stats"
	"github.com/warewave/warewave/internal/trace"
	"github.com/warewave/warewave/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics

	ProductsHandler  *products.Handler
	LocationsHandler *locations.Handler
	LotsHandler      *lots.Handler
	InventoryHandler *inventory.Handler
	TraceHandler     *trace.Handler
	WavesHandler     *waves.Handler
	OrdersHandler    *orders.Handler
	TasksHandler     *tasks.Handler
	RoutingHandler   *routing.Handler
	StatsHandler     *stats.Handler
	JobsHandler      *jobs.Handler
}

// NewRouter constructs the chi.Router with warewave defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.ProductsHandler != nil {
		r.Route("/masterdata/products", params.ProductsHandler.MountRoutes)
	}
	if params.LocationsHandler != nil {
		r.Route("/masterdata/locations", params.LocationsHandler.MountRoutes)
	}
	if params.LotsHandler != nil {
		r.Route("/lots", params.LotsHandler.MountRoutes)
	}
	if params.InventoryHandler != nil {
		r.Route("/inventory", params.InventoryHandler.MountRoutes)
	}
	if params.TraceHandler != nil {
		r.Route("/trace", params.TraceHandler.MountRoutes)
	}
	if params.WavesHandler != nil {
		r.Route("/waves", params.WavesHandler.MountRoutes)
	}
	if params.OrdersHandler != nil {
		r.Route("/orders", params.OrdersHandler.MountRoutes)
	}
	if params.TasksHandler != nil {
		r.Route("/tasks", params.TasksHandler.MountRoutes)
	}
	if params.RoutingHandler != nil {
		r.Route("/routes", params.RoutingHandler.MountRoutes)
	}
	if params.StatsHandler != nil {
		r.Route("/stats", params.StatsHandler.MountRoutes)
	}
	if params.JobsHandler != nil {
		r.Route("/jobs", params.JobsHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
