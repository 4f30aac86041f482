package rest

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"api-backend/infrastructure/observability"
	"api-backend/interfaces/http/rest/handlers"
	"api-backend/interfaces/http/rest/middleware"
)

// BasePath is the prefix the API routes are mounted under. Empty mounts
// them at the root.
type BasePath string

// Router creates and configures the HTTP router
type Router struct {
	orders    *handlers.OrderHandler
	products  *handlers.ProductHandler
	metrics   *observability.HTTPMetrics
	telemetry *observability.Telemetry
	basePath  BasePath
	logger    *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(
	orders *handlers.OrderHandler,
	products *handlers.ProductHandler,
	metrics *observability.HTTPMetrics,
	telemetry *observability.Telemetry,
	basePath BasePath,
	logger *zap.Logger,
) *Router {
	return &Router{
		orders:    orders,
		products:  products,
		metrics:   metrics,
		telemetry: telemetry,
		basePath:  basePath,
		logger:    logger,
	}
}

// Setup configures all routes and middleware. Metrics and tracing wrap the
// recovery middleware so a panicking handler is still observed as a 500.
func (rt *Router) Setup() *chi.Mux {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(observability.MetricsMiddleware(rt.metrics))
	router.Use(observability.TracingMiddleware(
		rt.telemetry.TracerProvider.Tracer("api-backend/http"),
		rt.telemetry.Propagator,
	))
	router.Use(middleware.Logger(rt.logger))
	router.Use(middleware.Recovery(rt.logger))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.RequestIDHeader, "traceparent", "tracestate"},
		ExposedHeaders: []string{middleware.RequestIDHeader, "X-Trace-ID"},
		MaxAge:         300,
	}))

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, "Route not found")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	router.Get("/healthz", handlers.Healthz)
	router.Get("/readyz", handlers.Readyz)

	api := func(r chi.Router) {
		r.Post("/orders", rt.orders.CreateOrder)
		r.Get("/orders", rt.orders.GetAllOrders)
		r.Get("/orders/{id}", rt.orders.GetOrder)

		r.Post("/products", rt.products.CreateProduct)
		r.Get("/products", rt.products.GetAllProducts)
		r.Get("/products/{id}", rt.products.GetProduct)
	}

	if prefix := normalizeBasePath(string(rt.basePath)); prefix != "" {
		router.Route(prefix, api)
	} else {
		api(router)
	}

	return router
}

// normalizeBasePath turns "api/", "/api/" and "/api" into "/api"; "" and "/"
// become "".
func normalizeBasePath(path string) string {
	path = strings.Trim(strings.TrimSpace(path), "/")
	if path == "" {
		return ""
	}
	return "/" + path
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"message":"` + message + `"}`))
}
