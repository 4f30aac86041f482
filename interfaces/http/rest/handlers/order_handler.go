package handlers

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"api-backend/application/services"
	"api-backend/infrastructure/observability"
	apperrors "api-backend/pkg/errors"
)

const (
	msgInvalidOrderID   = "Invalid order ID format"
	msgOrderNotFound    = "Order not found"
	msgOrderReadFailed  = "Internal server error while retrieving order"
	msgOrdersReadFailed = "Internal server error while retrieving orders"
)

var orderCreateMessages = apperrors.Messages{
	Conflict: "Failed to create order. It might already exist or there was a conflict.",
	NotFound: msgOrderNotFound,
	Internal: "Internal server error while creating order",
}

// OrderHandler handles order-related HTTP requests
type OrderHandler struct {
	service   *services.OrderService
	tracer    *observability.Tracer
	bodyLimit BodyLimit
	logger    *zap.Logger
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(
	service *services.OrderService,
	tracer *observability.Tracer,
	bodyLimit BodyLimit,
	logger *zap.Logger,
) *OrderHandler {
	return &OrderHandler{
		service:   service,
		tracer:    tracer,
		bodyLimit: bodyLimit,
		logger:    logger.Named("order-handler"),
	}
}

// CreateOrder handles POST /orders
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	_ = observability.Run(r.Context(), h.tracer, "OrderController.createOrder", func(ctx context.Context, span *observability.Span) error {
		var input services.OrderInput
		if err := decodeObject(w, r, h.bodyLimit.bytes(), &input); err != nil {
			respondBodyError(w, err)
			return err
		}

		order, err := h.service.IngestOrder(ctx, input)
		if err != nil {
			out := apperrors.Classify(err, orderCreateMessages)
			span.SetAttributes(attribute.Int("http.status_code", out.Status))
			logFailure(h.logger, "Failed to create order", out.Status, err)
			respondError(w, out.Status, out.Message)
			return err
		}

		span.SetAttributes(
			attribute.Int64("order.db_id", order.ID),
			attribute.Int("http.status_code", http.StatusCreated),
		)
		respondJSON(w, http.StatusCreated, order)
		return nil
	}, requestAttributes(r)...)
}

// GetOrder handles GET /orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	_ = observability.Run(r.Context(), h.tracer, "OrderController.getOrder", func(ctx context.Context, span *observability.Span) error {
		id, ok := parseID(r)
		if !ok {
			respondError(w, http.StatusBadRequest, msgInvalidOrderID)
			return apperrors.NewValidationError(msgInvalidOrderID)
		}
		span.SetAttributes(attribute.Int64("order.db_id", id))

		order, err := h.service.GetOrderByID(ctx, id)
		if err != nil {
			logFailure(h.logger, "Failed to retrieve order", http.StatusInternalServerError, err)
			respondError(w, http.StatusInternalServerError, msgOrderReadFailed)
			return err
		}
		if order == nil {
			span.SetAttributes(attribute.Bool("order.found", false))
			respondError(w, http.StatusNotFound, msgOrderNotFound)
			return nil
		}

		span.SetAttributes(attribute.Bool("order.found", true))
		respondJSON(w, http.StatusOK, order)
		return nil
	}, requestAttributes(r)...)
}

// GetAllOrders handles GET /orders
func (h *OrderHandler) GetAllOrders(w http.ResponseWriter, r *http.Request) {
	_ = observability.Run(r.Context(), h.tracer, "OrderController.getAllOrders", func(ctx context.Context, span *observability.Span) error {
		orders, err := h.service.GetAllOrders(ctx)
		if err != nil {
			logFailure(h.logger, "Failed to retrieve orders", http.StatusInternalServerError, err)
			respondError(w, http.StatusInternalServerError, msgOrdersReadFailed)
			return err
		}

		span.SetAttributes(attribute.Int("orders.count", len(orders)))
		respondJSON(w, http.StatusOK, orders)
		return nil
	}, requestAttributes(r)...)
}
