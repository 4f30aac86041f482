package observability

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricRequestsTotal   = "http_requests_total"
	metricRequestDuration = "http_request_duration_seconds"
	metricRequestSize     = "http_request_size_bytes"
	metricResponseSize    = "http_response_size_bytes"

	metricOrdersIngested  = "orders_ingested_total"
	metricProductsCreated = "products_created_total"
)

// sizeBuckets covers 100B..10MB payloads.
var sizeBuckets = prometheus.ExponentialBuckets(100, 10, 6)

// HTTPMetrics holds the request-level instruments
type HTTPMetrics struct {
	requests     metric.Int64Counter
	duration     metric.Float64Histogram
	requestSize  metric.Int64Histogram
	responseSize metric.Int64Histogram
}

// RequestObservation is everything recorded for one completed request.
type RequestObservation struct {
	Method       string
	Route        string
	StatusCode   int
	Duration     time.Duration
	RequestSize  int64
	ResponseSize int64
}

// NewHTTPMetrics creates the four request instruments on meter
func NewHTTPMetrics(meter metric.Meter) (*HTTPMetrics, error) {
	requests, err := meter.Int64Counter(
		metricRequestsTotal,
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRequestsTotal, err)
	}

	duration, err := meter.Float64Histogram(
		metricRequestDuration,
		metric.WithDescription("Duration of HTTP requests in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(prometheus.DefBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRequestDuration, err)
	}

	requestSize, err := meter.Int64Histogram(
		metricRequestSize,
		metric.WithDescription("Size of HTTP requests in bytes"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(sizeBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRequestSize, err)
	}

	responseSize, err := meter.Int64Histogram(
		metricResponseSize,
		metric.WithDescription("Size of HTTP responses in bytes"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(sizeBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricResponseSize, err)
	}

	return &HTTPMetrics{
		requests:     requests,
		duration:     duration,
		requestSize:  requestSize,
		responseSize: responseSize,
	}, nil
}

// Record adds one observation to each instrument.
func (m *HTTPMetrics) Record(ctx context.Context, obs RequestObservation) {
	// Recording must survive a cancelled request context.
	ctx = context.WithoutCancel(ctx)

	status := strconv.Itoa(obs.StatusCode)
	withStatus := metric.WithAttributeSet(attribute.NewSet(
		attribute.String("method", obs.Method),
		attribute.String("route", obs.Route),
		attribute.String("status_code", status),
	))
	withoutStatus := metric.WithAttributeSet(attribute.NewSet(
		attribute.String("method", obs.Method),
		attribute.String("route", obs.Route),
	))

	m.requests.Add(ctx, 1, withStatus)
	m.duration.Record(ctx, obs.Duration.Seconds(), withStatus)
	m.requestSize.Record(ctx, obs.RequestSize, withoutStatus)
	m.responseSize.Record(ctx, obs.ResponseSize, withStatus)
}

// DomainMetrics counts business operations by outcome.
type DomainMetrics struct {
	ordersIngested  metric.Int64Counter
	productsCreated metric.Int64Counter
}

// NewDomainMetrics creates the business counters on meter
func NewDomainMetrics(meter metric.Meter) (*DomainMetrics, error) {
	ordersIngested, err := meter.Int64Counter(
		metricOrdersIngested,
		metric.WithDescription("Orders ingestion attempts by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricOrdersIngested, err)
	}

	productsCreated, err := meter.Int64Counter(
		metricProductsCreated,
		metric.WithDescription("Product creation attempts by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricProductsCreated, err)
	}

	return &DomainMetrics{
		ordersIngested:  ordersIngested,
		productsCreated: productsCreated,
	}, nil
}

// OrderIngested counts one ingestion attempt.
func (m *DomainMetrics) OrderIngested(ctx context.Context, outcome string) {
	m.ordersIngested.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// ProductCreated counts one creation attempt.
func (m *DomainMetrics) ProductCreated(ctx context.Context, outcome string) {
	m.productsCreated.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
