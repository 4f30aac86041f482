package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"

	"api-backend/application/ports"
	"api-backend/application/services"
	"api-backend/domain"
	"api-backend/infrastructure/observability"
	"api-backend/infrastructure/persistence/memory"
	"api-backend/interfaces/http/rest/handlers"
)

type testServer struct {
	router *chi.Mux
	spans  *tracetest.InMemoryExporter
	reader *sdkmetric.ManualReader
}

func newTestServer(t *testing.T, repo ports.Repository, basePath BasePath) *testServer {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	telemetry := observability.NewTelemetryWithProviders(tp, mp)

	httpMetrics, err := observability.NewHTTPMetrics(telemetry.Meter("http"))
	require.NoError(t, err)
	domainMetrics, err := observability.NewDomainMetrics(telemetry.Meter("domain"))
	require.NoError(t, err)

	if repo == nil {
		repo = memory.NewStore()
	}
	logger := zap.NewNop()
	serviceTracer := telemetry.Tracer("services")
	handlerTracer := telemetry.Tracer("handlers")

	orderService := services.NewOrderService(repo, repo, serviceTracer, domainMetrics, logger)
	productService := services.NewProductService(repo, serviceTracer, domainMetrics, logger)

	router := NewRouter(
		handlers.NewOrderHandler(orderService, handlerTracer, handlers.DefaultBodyLimit, logger),
		handlers.NewProductHandler(productService, handlerTracer, handlers.DefaultBodyLimit, logger),
		httpMetrics,
		telemetry,
		basePath,
		logger,
	)

	return &testServer{router: router.Setup(), spans: exporter, reader: reader}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func (s *testServer) spanNames() []string {
	var names []string
	for _, span := range s.spans.GetSpans() {
		names = append(names, span.Name)
	}
	return names
}

func (s *testServer) requestCounts(t *testing.T) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, s.reader.Collect(context.Background(), &rm))

	counts := map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != "http_requests_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				method, _ := dp.Attributes.Value("method")
				route, _ := dp.Attributes.Value("route")
				status, _ := dp.Attributes.Value("status_code")
				counts[method.Emit()+" "+route.Emit()+" "+status.Emit()] += dp.Value
			}
		}
	}
	return counts
}

func TestRouter_CreateProduct(t *testing.T) {
	s := newTestServer(t, nil, "")

	w := s.do(t, http.MethodPost, "/products", `{"name":"Widget","price":9.99,"stock":5}`)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	body := decode(t, w)
	assert.Greater(t, body["id"], float64(0))
	assert.Equal(t, "Widget", body["name"])
	assert.Equal(t, 9.99, body["price"])
	assert.Equal(t, float64(5), body["stock"])
	assert.Equal(t, "", body["description"])
}

func TestRouter_CreateProductValidation(t *testing.T) {
	s := newTestServer(t, nil, "")

	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"missing name", `{"price":1,"stock":1}`, "failed to create product: missing required product fields: name, price, stock"},
		{"zero price", `{"name":"W","price":0,"stock":1}`, "failed to create product: price must be positive"},
		{"negative stock", `{"name":"W","price":1,"stock":-1}`, "failed to create product: stock cannot be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/products", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.message, decode(t, w)["message"])
		})
	}
}

func TestRouter_OrderForMissingProductIsConflict(t *testing.T) {
	s := newTestServer(t, nil, "")

	w := s.do(t, http.MethodPost, "/orders", `{"orderId":"A1","productId":424242,"quantity":1}`)

	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, decode(t, w)["message"], "conflict")
	assert.Equal(t, []string{
		"OrderService.checkProduct",
		"OrderService.IngestOrder",
		"OrderController.createOrder",
		"POST /orders",
	}, s.spanNames())
}

func TestRouter_OrderLifecycle(t *testing.T) {
	s := newTestServer(t, nil, "")

	w := s.do(t, http.MethodPost, "/products", `{"name":"Widget","price":9.99,"stock":5}`)
	require.Equal(t, http.StatusCreated, w.Code)
	productID := int64(decode(t, w)["id"].(float64))

	w = s.do(t, http.MethodPost, "/orders", `{"orderId":"A1","productId":`+jsonInt(productID)+`,"quantity":2}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	order := decode(t, w)
	assert.Equal(t, "A1", order["orderId"])
	assert.Equal(t, "pending", order["status"])

	id := jsonInt(int64(order["id"].(float64)))
	w = s.do(t, http.MethodGet, "/orders/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, order, decode(t, w))

	w = s.do(t, http.MethodPost, "/orders", `{"orderId":"A1","productId":`+jsonInt(productID)+`,"quantity":2}`)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Failed to create order. It might already exist or there was a conflict.", decode(t, w)["message"])

	w = s.do(t, http.MethodPost, "/orders", `{"orderId":"A2","productId":`+jsonInt(productID)+`,"quantity":0}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "failed to ingest order: quantity must be positive", decode(t, w)["message"])

	w = s.do(t, http.MethodGet, "/orders", "")
	require.Equal(t, http.StatusOK, w.Code)
	var orders []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &orders))
	assert.Len(t, orders, 1)
}

func TestRouter_InvalidIDs(t *testing.T) {
	s := newTestServer(t, nil, "")

	w := s.do(t, http.MethodGet, "/orders/abc", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, map[string]interface{}{"message": "Invalid order ID format"}, decode(t, w))

	w = s.do(t, http.MethodGet, "/products/12abc", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid product ID format", decode(t, w)["message"])
}

func TestRouter_NotFound(t *testing.T) {
	s := newTestServer(t, nil, "")

	w := s.do(t, http.MethodGet, "/orders/999999", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, map[string]interface{}{"message": "Order not found"}, decode(t, w))

	w = s.do(t, http.MethodGet, "/products/999999", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Product not found", decode(t, w)["message"])

	for _, span := range s.spans.GetSpans() {
		if span.Name == "OrderController.getOrder" {
			assert.Equal(t, "Ok", span.Status.Code.String())
		}
	}
}

func TestRouter_InvalidBodies(t *testing.T) {
	s := newTestServer(t, nil, "")

	for _, body := range []string{`[1,2]`, `"text"`, `not json`, `  `, `{"orderId":`} {
		w := s.do(t, http.MethodPost, "/orders", body)
		require.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, "Invalid request body", decode(t, w)["message"])
	}
}

func TestRouter_HealthAndHeaders(t *testing.T) {
	s := newTestServer(t, nil, "/api")

	w := s.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]interface{}{"status": "ok"}, decode(t, w))

	w = s.do(t, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]interface{}{"status": "ready"}, decode(t, w))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Len(t, w.Header().Get("X-Trace-ID"), 32)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
}

func TestRouter_BasePath(t *testing.T) {
	s := newTestServer(t, nil, "api/")

	w := s.do(t, http.MethodGet, "/api/products", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))

	w = s.do(t, http.MethodGet, "/products", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Route not found", decode(t, w)["message"])

	w = s.do(t, http.MethodGet, "/api/orders/7", "")
	require.Equal(t, http.StatusNotFound, w.Code)

	counts := s.requestCounts(t)
	assert.Equal(t, int64(1), counts["GET /api/products 200"])
	assert.Equal(t, int64(1), counts["GET /api/orders/{id} 404"])
}

func TestRouter_MetricsRecordedOncePerRequest(t *testing.T) {
	s := newTestServer(t, nil, "")

	s.do(t, http.MethodGet, "/orders/1", "")
	s.do(t, http.MethodGet, "/orders/2", "")
	s.do(t, http.MethodGet, "/orders/abc", "")
	s.do(t, http.MethodPost, "/products", `{"name":"Widget","price":9.99,"stock":5}`)

	assert.Equal(t, map[string]int64{
		"GET /orders/{id} 404": 2,
		"GET /orders/{id} 400": 1,
		"POST /products 201":   1,
	}, s.requestCounts(t))
}

// panickingRepository blows up on list calls.
type panickingRepository struct {
	*memory.Store
}

func (panickingRepository) ListOrders(context.Context) ([]*domain.Order, error) {
	panic("storage exploded")
}

func TestRouter_PanicBecomes500(t *testing.T) {
	s := newTestServer(t, panickingRepository{Store: memory.NewStore()}, "")

	w := s.do(t, http.MethodGet, "/orders", "")

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, map[string]interface{}{"message": "Internal server error"}, decode(t, w))
	assert.Equal(t, int64(1), s.requestCounts(t)["GET /orders 500"])

	for _, span := range s.spans.GetSpans() {
		assert.Equal(t, "Error", span.Status.Code.String(), span.Name)
	}
	assert.Equal(t, []string{"OrderService.GetAllOrders", "OrderController.getAllOrders", "GET /orders"}, s.spanNames())
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
