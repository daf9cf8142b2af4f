package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/odyssey-pos/internal/cart"
	"github.com/odyssey-erp/odyssey-pos/internal/checkout"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/loyalty"
	"github.com/odyssey-erp/odyssey-pos/internal/observability"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/register"
	"github.com/odyssey-erp/odyssey-pos/jobs"
)

// Pinger is a dependency probed by /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	CartHandler      *cart.Handler
	CheckoutHandler  *checkout.Handler
	LoyaltyHandler   *loyalty.Handler
	InventoryHandler *inventory.Handler
	RegisterHandler  *register.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
	Health           map[string]Pinger
}

// NewRouter constructs the chi.Router with the POS API.
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

	r.Get("/healthz", healthz(params.Logger, params.Health))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	checkoutLimit := 0
	if params.Config != nil {
		checkoutLimit = params.Config.CheckoutRateLimit
	}
	r.Route("/pos", func(r chi.Router) {
		if params.CartHandler != nil {
			params.CartHandler.MountRoutes(r)
		}
		if params.LoyaltyHandler != nil {
			params.LoyaltyHandler.MountRoutes(r)
		}
		if params.CheckoutHandler != nil {
			r.Group(func(r chi.Router) {
				r.Use(CheckoutLimiter(checkoutLimit))
				params.CheckoutHandler.MountRoutes(r)
			})
		}
	})
	if params.InventoryHandler != nil {
		r.Route("/inventory", params.InventoryHandler.MountRoutes)
	}
	if params.RegisterHandler != nil {
		r.Route("/registers", params.RegisterHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthz(logger *slog.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(deps) > 0 {
			resp.Checks = make(map[string]string, len(deps))
		}
		for name, dep := range deps {
			if err := dep.Ping(ctx); err != nil {
				logger.Warn("health check failed", slog.String("dependency", name), slog.Any("error", err))
				resp.Checks[name] = "down"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httpx.JSON(w, status, resp)
	}
}
