package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"api-backend/application/ports"
	"api-backend/domain"
	"api-backend/infrastructure/observability"
	"api-backend/infrastructure/persistence/memory"
	apperrors "api-backend/pkg/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type testEnv struct {
	orders   *OrderService
	products *ProductService
	store    *memory.Store
	spans    *tracetest.InMemoryExporter
	reader   *sdkmetric.ManualReader
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithRepo(t, nil)
}

// newTestEnvWithRepo wires both services to repo, or to a fresh memory store
// when repo is nil.
func newTestEnvWithRepo(t *testing.T, repo ports.Repository) *testEnv {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	metrics, err := observability.NewDomainMetrics(mp.Meter("test"))
	require.NoError(t, err)
	tracer := observability.NewTracer(tp.Tracer("test"))

	store := memory.NewStore()
	if repo == nil {
		repo = store
	}

	return &testEnv{
		orders:   NewOrderService(repo, repo, tracer, metrics, zap.NewNop()),
		products: NewProductService(repo, tracer, metrics, zap.NewNop()),
		store:    store,
		spans:    exporter,
		reader:   reader,
	}
}

func ptr[T any](v T) *T { return &v }

func (e *testEnv) createProduct(t *testing.T) *domain.Product {
	t.Helper()
	product, err := e.products.CreateProduct(context.Background(), ProductInput{
		Name:  ptr("Widget"),
		Price: ptr(9.99),
		Stock: ptr(5),
	})
	require.NoError(t, err)
	return product
}

func spanNamed(t *testing.T, spans tracetest.SpanStubs, name string) tracetest.SpanStub {
	t.Helper()
	for _, s := range spans {
		if s.Name == name {
			return s
		}
	}
	require.Failf(t, "span not found", "no span named %q", name)
	return tracetest.SpanStub{}
}

func spanNames(spans tracetest.SpanStubs) []string {
	names := make([]string, 0, len(spans))
	for _, s := range spans {
		names = append(names, s.Name)
	}
	return names
}

// failingRepository fails every call with err.
type failingRepository struct {
	err error
}

func (f failingRepository) CreateProduct(context.Context, *domain.Product) error { return f.err }
func (f failingRepository) FindProductByID(context.Context, int64) (*domain.Product, error) {
	return nil, f.err
}
func (f failingRepository) ListProducts(context.Context) ([]*domain.Product, error) {
	return nil, f.err
}
func (f failingRepository) CreateOrder(context.Context, *domain.Order) error { return f.err }
func (f failingRepository) FindOrderByID(context.Context, int64) (*domain.Order, error) {
	return nil, f.err
}
func (f failingRepository) ListOrders(context.Context) ([]*domain.Order, error) {
	return nil, f.err
}
func (f failingRepository) Close() error { return nil }

func TestProductService_CreateProduct(t *testing.T) {
	t.Run("Should create with default description", func(t *testing.T) {
		env := newTestEnv(t)
		product := env.createProduct(t)

		assert.Positive(t, product.ID)
		assert.Equal(t, "Widget", product.Name)
		assert.Equal(t, "", product.Description)
		assert.Equal(t, 9.99, product.Price)
		assert.Equal(t, 5, product.Stock)
	})

	t.Run("Should assign unused ids", func(t *testing.T) {
		env := newTestEnv(t)
		seen := map[int64]bool{}
		for i := 0; i < 5; i++ {
			product := env.createProduct(t)
			assert.False(t, seen[product.ID])
			seen[product.ID] = true
		}
	})

	t.Run("Should keep a given description and zero stock", func(t *testing.T) {
		env := newTestEnv(t)
		product, err := env.products.CreateProduct(context.Background(), ProductInput{
			Name:        ptr("Gadget"),
			Description: ptr("shiny"),
			Price:       ptr(1.5),
			Stock:       ptr(0),
		})
		require.NoError(t, err)
		assert.Equal(t, "shiny", product.Description)
		assert.Equal(t, 0, product.Stock)
	})
}

func TestProductService_Validation(t *testing.T) {
	tests := []struct {
		name    string
		input   ProductInput
		message string
	}{
		{"missing name", ProductInput{Price: ptr(1.0), Stock: ptr(1)}, msgMissingProductFields},
		{"empty name", ProductInput{Name: ptr(""), Price: ptr(1.0), Stock: ptr(1)}, msgMissingProductFields},
		{"missing price", ProductInput{Name: ptr("a"), Stock: ptr(1)}, msgMissingProductFields},
		{"missing stock", ProductInput{Name: ptr("a"), Price: ptr(1.0)}, msgMissingProductFields},
		{"zero price", ProductInput{Name: ptr("a"), Price: ptr(0.0), Stock: ptr(1)}, msgPricePositive},
		{"negative price", ProductInput{Name: ptr("a"), Price: ptr(-3.0), Stock: ptr(1)}, msgPricePositive},
		{"negative stock", ProductInput{Name: ptr("a"), Price: ptr(1.0), Stock: ptr(-1)}, msgStockNegative},
		{"price checked before stock", ProductInput{Name: ptr("a"), Price: ptr(0.0), Stock: ptr(-1)}, msgPricePositive},
		{"presence checked first", ProductInput{Price: ptr(0.0), Stock: ptr(-1)}, msgMissingProductFields},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			product, err := env.products.CreateProduct(context.Background(), tt.input)
			require.Error(t, err)
			assert.Nil(t, product)
			assert.True(t, apperrors.IsValidation(err))
			assert.Equal(t, "failed to create product: "+tt.message, err.Error())

			products, err := env.store.ListProducts(context.Background())
			require.NoError(t, err)
			assert.Empty(t, products, "no write may happen after a validation failure")
		})
	}
}

func TestProductService_WriteFailureIsConflict(t *testing.T) {
	env := newTestEnvWithRepo(t, failingRepository{err: errors.New("disk full")})

	_, err := env.products.CreateProduct(context.Background(), ProductInput{
		Name: ptr("a"), Price: ptr(1.0), Stock: ptr(1),
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
	assert.Equal(t, "failed to create product: disk full", err.Error())

	persist := spanNamed(t, env.spans.GetSpans(), "ProductService.persistProduct")
	assert.Equal(t, codes.Error, persist.Status.Code)
}

func TestProductService_Reads(t *testing.T) {
	env := newTestEnv(t)
	created := env.createProduct(t)
	ctx := context.Background()

	first, err := env.products.GetProductByID(ctx, created.ID)
	require.NoError(t, err)
	second, err := env.products.GetProductByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	missing, err := env.products.GetProductByID(ctx, 999999)
	require.NoError(t, err)
	assert.Nil(t, missing)

	all, err := env.products.GetAllProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestOrderService_IngestOrder(t *testing.T) {
	env := newTestEnv(t)
	product := env.createProduct(t)

	order, err := env.orders.IngestOrder(context.Background(), OrderInput{
		OrderID:   ptr("A1"),
		ProductID: ptr(product.ID),
		Quantity:  ptr(2),
	})
	require.NoError(t, err)

	assert.Positive(t, order.ID)
	assert.Equal(t, "A1", order.OrderID)
	assert.Equal(t, domain.OrderStatusPending, order.Status)

	withStatus, err := env.orders.IngestOrder(context.Background(), OrderInput{
		OrderID:   ptr("A2"),
		ProductID: ptr(product.ID),
		Quantity:  ptr(1),
		Status:    "processing",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusProcessing, withStatus.Status)
}

func TestOrderService_Validation(t *testing.T) {
	tests := []struct {
		name    string
		input   OrderInput
		message string
	}{
		{"missing orderId", OrderInput{ProductID: ptr(int64(1)), Quantity: ptr(1)}, msgMissingOrderFields},
		{"empty orderId", OrderInput{OrderID: ptr(""), ProductID: ptr(int64(1)), Quantity: ptr(1)}, msgMissingOrderFields},
		{"missing productId", OrderInput{OrderID: ptr("A1"), Quantity: ptr(1)}, msgMissingOrderFields},
		{"missing quantity", OrderInput{OrderID: ptr("A1"), ProductID: ptr(int64(1))}, msgMissingOrderFields},
		{"zero quantity", OrderInput{OrderID: ptr("A1"), ProductID: ptr(int64(1)), Quantity: ptr(0)}, msgQuantityPositive},
		{"negative quantity", OrderInput{OrderID: ptr("A1"), ProductID: ptr(int64(1)), Quantity: ptr(-4)}, msgQuantityPositive},
		{"unknown status", OrderInput{OrderID: ptr("A1"), ProductID: ptr(int64(1)), Quantity: ptr(1), Status: "shipped"}, msgInvalidStatus},
		{"presence checked first", OrderInput{ProductID: ptr(int64(1)), Quantity: ptr(0)}, msgMissingOrderFields},
		{"quantity checked before status", OrderInput{OrderID: ptr("A1"), ProductID: ptr(int64(1)), Quantity: ptr(0), Status: "bad"}, msgQuantityPositive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.createProduct(t)

			_, err := env.orders.IngestOrder(context.Background(), tt.input)
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
			assert.Equal(t, "failed to ingest order: "+tt.message, err.Error())

			outcome := apperrors.Classify(err, apperrors.Messages{})
			assert.Equal(t, 400, outcome.Status)
			assert.Equal(t, err.Error(), outcome.Message)
		})
	}
}

func TestOrderService_QuantityRejectedEvenWithValidProduct(t *testing.T) {
	env := newTestEnv(t)
	product := env.createProduct(t)

	_, err := env.orders.IngestOrder(context.Background(), OrderInput{
		OrderID: ptr("A1"), ProductID: ptr(product.ID), Quantity: ptr(0),
	})
	require.Error(t, err)
	assert.Equal(t, 400, apperrors.StatusFor(apperrors.KindOf(err)))

	// Validation fails before the referential check opens its span.
	assert.Equal(t, []string{"ProductService.persistProduct", "ProductService.CreateProduct", "OrderService.IngestOrder"},
		spanNames(env.spans.GetSpans()))
}

func TestOrderService_MissingProduct(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.orders.IngestOrder(context.Background(), OrderInput{
		OrderID: ptr("A1"), ProductID: ptr(int64(424242)), Quantity: ptr(1),
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindReferential, apperrors.KindOf(err))
	assert.Equal(t, "failed to ingest order: product with ID 424242 does not exist", err.Error())
	assert.Equal(t, 409, apperrors.Classify(err, apperrors.Messages{}).Status)

	spans := env.spans.GetSpans()
	assert.Equal(t, []string{"OrderService.checkProduct", "OrderService.IngestOrder"}, spanNames(spans))

	check := spanNamed(t, spans, "OrderService.checkProduct")
	assert.Equal(t, codes.Error, check.Status.Code)
	assert.Equal(t, "product with ID 424242 does not exist", check.Status.Description)

	root := spanNamed(t, spans, "OrderService.IngestOrder")
	assert.Equal(t, codes.Error, root.Status.Code)
	assert.Equal(t, err.Error(), root.Status.Description)
}

func TestOrderService_ZeroProductIDIsReferential(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.orders.IngestOrder(context.Background(), OrderInput{
		OrderID: ptr("A1"), ProductID: ptr(int64(0)), Quantity: ptr(1),
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindReferential, apperrors.KindOf(err))
}

func TestOrderService_DuplicateOrderID(t *testing.T) {
	env := newTestEnv(t)
	product := env.createProduct(t)
	input := OrderInput{OrderID: ptr("A1"), ProductID: ptr(product.ID), Quantity: ptr(1)}

	_, err := env.orders.IngestOrder(context.Background(), input)
	require.NoError(t, err)

	_, err = env.orders.IngestOrder(context.Background(), input)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
	assert.ErrorIs(t, err, ports.ErrDuplicateKey)
	assert.Equal(t, 409, apperrors.Classify(err, apperrors.Messages{}).Status)
}

func TestOrderService_LookupFailureIsInternal(t *testing.T) {
	env := newTestEnvWithRepo(t, failingRepository{err: errors.New("connection reset")})

	_, err := env.orders.IngestOrder(context.Background(), OrderInput{
		OrderID: ptr("A1"), ProductID: ptr(int64(1)), Quantity: ptr(1),
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsInternal(err))
	assert.Equal(t, 500, apperrors.Classify(err, apperrors.Messages{}).Status)

	_, err = env.orders.GetOrderByID(context.Background(), 1)
	assert.True(t, apperrors.IsInternal(err))

	_, err = env.orders.GetAllOrders(context.Background())
	assert.True(t, apperrors.IsInternal(err))
}

func TestOrderService_SpanHierarchy(t *testing.T) {
	env := newTestEnv(t)
	product := env.createProduct(t)
	env.spans.Reset()

	_, err := env.orders.IngestOrder(context.Background(), OrderInput{
		OrderID: ptr("A1"), ProductID: ptr(product.ID), Quantity: ptr(3),
	})
	require.NoError(t, err)

	spans := env.spans.GetSpans()
	require.Equal(t, []string{"OrderService.checkProduct", "OrderService.persistOrder", "OrderService.IngestOrder"}, spanNames(spans))

	root := spans[2]
	for _, child := range spans[:2] {
		assert.Equal(t, root.SpanContext.SpanID(), child.Parent.SpanID())
		assert.Equal(t, codes.Ok, child.Status.Code)
		assert.False(t, child.EndTime.After(root.EndTime))
	}
	// checkProduct closes before persistOrder starts.
	assert.False(t, spans[0].EndTime.After(spans[1].StartTime))
	assert.Equal(t, codes.Ok, root.Status.Code)

	attrs := map[string]interface{}{}
	for _, kv := range root.Attributes {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	assert.Equal(t, "A1", attrs["order.id"])
	assert.Equal(t, product.ID, attrs["order.product_id"])
	assert.Equal(t, int64(3), attrs["order.quantity"])
	assert.Equal(t, "pending", attrs["order.status"])
}

func TestOrderService_ReadsAreIdempotent(t *testing.T) {
	env := newTestEnv(t)
	product := env.createProduct(t)
	ctx := context.Background()

	created, err := env.orders.IngestOrder(ctx, OrderInput{OrderID: ptr("A1"), ProductID: ptr(product.ID), Quantity: ptr(1)})
	require.NoError(t, err)

	first, err := env.orders.GetOrderByID(ctx, created.ID)
	require.NoError(t, err)
	second, err := env.orders.GetOrderByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	missing, err := env.orders.GetOrderByID(ctx, 999999)
	require.NoError(t, err)
	assert.Nil(t, missing)

	// A miss is not an error on the span.
	span := env.spans.GetSpans()[len(env.spans.GetSpans())-1]
	assert.Equal(t, "OrderService.GetOrderByID", span.Name)
	assert.Equal(t, codes.Ok, span.Status.Code)

	all, err := env.orders.GetAllOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestOrderService_GetAllOrdersNeverNil(t *testing.T) {
	env := newTestEnv(t)

	orders, err := env.orders.GetAllOrders(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, orders)
	assert.Empty(t, orders)
}

func TestOrderService_DomainMetrics(t *testing.T) {
	env := newTestEnv(t)
	product := env.createProduct(t)
	ctx := context.Background()

	_, _ = env.orders.IngestOrder(ctx, OrderInput{OrderID: ptr("A1"), ProductID: ptr(product.ID), Quantity: ptr(1)})
	_, _ = env.orders.IngestOrder(ctx, OrderInput{OrderID: ptr("A1"), ProductID: ptr(product.ID), Quantity: ptr(1)})
	_, _ = env.orders.IngestOrder(ctx, OrderInput{OrderID: ptr("A2"), ProductID: ptr(product.ID), Quantity: ptr(0)})

	var rm metricdata.ResourceMetrics
	require.NoError(t, env.reader.Collect(ctx, &rm))

	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "orders_ingested_total" {
				continue
			}
			for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
				v, _ := dp.Attributes.Value("outcome")
				counts[v.AsString()] = dp.Value
			}
		}
	}
	assert.Equal(t, map[string]int64{"created": 1, "conflict": 1, "validation": 1}, counts)
}

func TestOrderService_ConcurrentIngestion(t *testing.T) {
	env := newTestEnv(t)
	product := env.createProduct(t)
	env.spans.Reset()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.orders.IngestOrder(context.Background(), OrderInput{
				OrderID: ptr(fmt.Sprintf("C-%d", i)), ProductID: ptr(product.ID), Quantity: ptr(1),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	spans := env.spans.GetSpans()
	require.Len(t, spans, 3*n)

	roots := map[string]bool{}
	for _, s := range spans {
		if s.Name == "OrderService.IngestOrder" {
			roots[s.SpanContext.SpanID().String()] = true
		}
	}
	require.Len(t, roots, n)

	children := map[string]int{}
	for _, s := range spans {
		if s.Name != "OrderService.IngestOrder" {
			parent := s.Parent.SpanID().String()
			assert.True(t, roots[parent])
			children[parent]++
		}
	}
	for _, count := range children {
		assert.Equal(t, 2, count)
	}
}
