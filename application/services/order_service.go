package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"api-backend/application/ports"
	"api-backend/domain"
	"api-backend/infrastructure/observability"
	apperrors "api-backend/pkg/errors"
)

const (
	msgMissingOrderFields = "missing required order fields: orderId, productId, quantity"
	msgQuantityPositive   = "quantity must be positive"
	msgInvalidStatus      = "status must be one of: pending processing completed cancelled"
)

// OrderInput is the payload for order ingestion. Pointer fields tell an
// absent value apart from a zero one.
type OrderInput struct {
	OrderID   *string `json:"orderId" validate:"required,min=1"`
	ProductID *int64  `json:"productId" validate:"required"`
	Quantity  *int    `json:"quantity" validate:"required,gt=0"`
	Status    string  `json:"status" validate:"omitempty,oneof=pending processing completed cancelled"`
}

func rankOrderViolation(fe validator.FieldError) (int, string) {
	switch {
	case isPresenceFailure(fe):
		return 0, msgMissingOrderFields
	case fe.StructField() == "Quantity":
		return 1, msgQuantityPositive
	case fe.StructField() == "Status":
		return 2, msgInvalidStatus
	default:
		return 3, fallbackMessage(fe)
	}
}

func (in OrderInput) attributes() []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if in.OrderID != nil {
		attrs = append(attrs, attribute.String("order.id", *in.OrderID))
	}
	if in.ProductID != nil {
		attrs = append(attrs, attribute.Int64("order.product_id", *in.ProductID))
	}
	if in.Quantity != nil {
		attrs = append(attrs, attribute.Int("order.quantity", *in.Quantity))
	}
	return attrs
}

// OrderService ingests and reads orders
type OrderService struct {
	products ports.ProductRepository
	orders   ports.OrderRepository
	tracer   *observability.Tracer
	metrics  *observability.DomainMetrics
	logger   *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	products ports.ProductRepository,
	orders ports.OrderRepository,
	tracer *observability.Tracer,
	metrics *observability.DomainMetrics,
	logger *zap.Logger,
) *OrderService {
	return &OrderService{
		products: products,
		orders:   orders,
		tracer:   tracer,
		metrics:  metrics,
		logger:   logger.Named("order-service"),
	}
}

// IngestOrder validates input, checks that the referenced product exists and
// stores the order. The referential check and the write each run in their
// own child span. Every failure is returned wrapped as
// "failed to ingest order: <cause>" with its kind preserved.
func (s *OrderService) IngestOrder(ctx context.Context, input OrderInput) (*domain.Order, error) {
	return observability.Trace(ctx, s.tracer, "OrderService.IngestOrder", func(ctx context.Context, span *observability.Span) (*domain.Order, error) {
		order, err := s.ingest(ctx, input)
		if err != nil {
			s.metrics.OrderIngested(ctx, outcome(err))
			s.logger.Warn("Order ingestion failed", zap.Error(err), zap.String("kind", string(apperrors.KindOf(err))))
			return nil, apperrors.Wrap(err, "failed to ingest order")
		}

		span.SetAttributes(
			attribute.Int64("order.db_id", order.ID),
			attribute.String("order.status", string(order.Status)),
		)
		s.metrics.OrderIngested(ctx, outcomeCreated)
		s.logger.Info("Order ingested",
			zap.String("orderId", order.OrderID),
			zap.Int64("id", order.ID),
			zap.Int64("productId", order.ProductID),
		)
		return order, nil
	}, input.attributes()...)
}

func (s *OrderService) ingest(ctx context.Context, input OrderInput) (*domain.Order, error) {
	if err := validateInput(input, rankOrderViolation); err != nil {
		return nil, err
	}

	if err := s.checkProduct(ctx, *input.ProductID); err != nil {
		return nil, err
	}

	status := domain.OrderStatusPending
	if input.Status != "" {
		status = domain.OrderStatus(input.Status)
	}

	return s.persistOrder(ctx, &domain.Order{
		OrderID:   *input.OrderID,
		ProductID: *input.ProductID,
		Quantity:  *input.Quantity,
		Status:    status,
	})
}

func (s *OrderService) checkProduct(ctx context.Context, productID int64) error {
	return observability.Run(ctx, s.tracer, "OrderService.checkProduct", func(ctx context.Context, span *observability.Span) error {
		product, err := s.products.FindProductByID(ctx, productID)
		if err != nil {
			return apperrors.NewInternalError("failed to look up product", err)
		}
		span.SetAttributes(attribute.Bool("product.found", product != nil))
		if product == nil {
			return apperrors.NewReferentialError(fmt.Sprintf("product with ID %d does not exist", productID))
		}
		return nil
	}, attribute.Int64("product.id", productID))
}

func (s *OrderService) persistOrder(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	return observability.Trace(ctx, s.tracer, "OrderService.persistOrder", func(ctx context.Context, _ *observability.Span) (*domain.Order, error) {
		if err := s.orders.CreateOrder(ctx, order); err != nil {
			return nil, apperrors.NewConflictError(err.Error(), err)
		}
		return order, nil
	}, attribute.String("order.id", order.OrderID))
}

// GetOrderByID returns the order or nil when it does not exist.
func (s *OrderService) GetOrderByID(ctx context.Context, id int64) (*domain.Order, error) {
	return observability.Trace(ctx, s.tracer, "OrderService.GetOrderByID", func(ctx context.Context, span *observability.Span) (*domain.Order, error) {
		order, err := s.orders.FindOrderByID(ctx, id)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to retrieve order", err)
		}
		span.SetAttributes(attribute.Bool("order.found", order != nil))
		return order, nil
	}, attribute.Int64("order.db_id", id))
}

// GetAllOrders returns every order, never nil.
func (s *OrderService) GetAllOrders(ctx context.Context) ([]*domain.Order, error) {
	return observability.Trace(ctx, s.tracer, "OrderService.GetAllOrders", func(ctx context.Context, span *observability.Span) ([]*domain.Order, error) {
		orders, err := s.orders.ListOrders(ctx)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to retrieve orders", err)
		}
		if orders == nil {
			orders = []*domain.Order{}
		}
		span.SetAttributes(attribute.Int("orders.count", len(orders)))
		return orders, nil
	})
}

const outcomeCreated = "created"

// outcome is the metric label for a failed operation.
func outcome(err error) string {
	return strings.ToLower(string(apperrors.KindOf(err)))
}
