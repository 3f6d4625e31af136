package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/justin-elyphant/elyphant-v1-sub002/pkg/health"
	"github.com/justin-elyphant/elyphant-v1-sub002/pkg/middleware"
)

const serviceName = "wishlist"

// RouterConfig holds the router settings that come from configuration.
type RouterConfig struct {
	AllowedOrigins []string
	PprofCIDRs     []string
	RequestTimeout time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
}

// NewRouter creates a chi router with all wishlist service routes registered.
func NewRouter(
	wishlistHandler *WishlistHandler,
	healthHandler *health.Handler,
	validate middleware.TokenValidator,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.AllowedOrigins)))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())
	middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)

	// Wishlist API endpoints
	r.Route("/api/v1/wishlists", func(r chi.Router) {
		r.Use(middleware.Auth(validate))
		r.Use(middleware.RequestLogger(logger))
		r.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst, logger))
		r.Use(middleware.NoStore)

		// Long-lived; must not be compressed or timed out.
		r.Get("/stream", wishlistHandler.Stream)

		r.Group(func(r chi.Router) {
			r.Use(chimw.Compress(5))
			r.Use(chimw.Timeout(cfg.RequestTimeout))

			r.Get("/", wishlistHandler.GetWishlists)
			r.Post("/", wishlistHandler.CreateWishlist)
			r.Post("/reload", wishlistHandler.Reload)
			r.Post("/quick-add", wishlistHandler.QuickAdd)
			r.Get("/products/{productId}", wishlistHandler.IsWishlisted)
			r.Delete("/session", wishlistHandler.EndSession)

			r.Delete("/{wishlistId}", wishlistHandler.DeleteWishlist)
			r.Get("/{wishlistId}/items", wishlistHandler.ListItems)
			r.Post("/{wishlistId}/items", wishlistHandler.AddItem)
			r.Delete("/{wishlistId}/items/{itemId}", wishlistHandler.RemoveItem)
		})
	})

	return r
}
