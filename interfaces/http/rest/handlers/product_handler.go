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
	msgInvalidProductID   = "Invalid product ID format"
	msgProductNotFound    = "Product not found"
	msgProductReadFailed  = "Internal server error while retrieving product"
	msgProductsReadFailed = "Internal server error while retrieving products"
)

var productCreateMessages = apperrors.Messages{
	Conflict: "Failed to create product. It might already exist or there was a conflict.",
	NotFound: msgProductNotFound,
	Internal: "Internal server error while creating product",
}

// ProductHandler handles product-related HTTP requests
type ProductHandler struct {
	service   *services.ProductService
	tracer    *observability.Tracer
	bodyLimit BodyLimit
	logger    *zap.Logger
}

// NewProductHandler creates a new product handler
func NewProductHandler(
	service *services.ProductService,
	tracer *observability.Tracer,
	bodyLimit BodyLimit,
	logger *zap.Logger,
) *ProductHandler {
	return &ProductHandler{
		service:   service,
		tracer:    tracer,
		bodyLimit: bodyLimit,
		logger:    logger.Named("product-handler"),
	}
}

// CreateProduct handles POST /products
func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	_ = observability.Run(r.Context(), h.tracer, "ProductController.createProduct", func(ctx context.Context, span *observability.Span) error {
		var input services.ProductInput
		if err := decodeObject(w, r, h.bodyLimit.bytes(), &input); err != nil {
			respondBodyError(w, err)
			return err
		}

		product, err := h.service.CreateProduct(ctx, input)
		if err != nil {
			out := apperrors.Classify(err, productCreateMessages)
			span.SetAttributes(attribute.Int("http.status_code", out.Status))
			logFailure(h.logger, "Failed to create product", out.Status, err)
			respondError(w, out.Status, out.Message)
			return err
		}

		span.SetAttributes(
			attribute.Int64("product.id", product.ID),
			attribute.Int("http.status_code", http.StatusCreated),
		)
		respondJSON(w, http.StatusCreated, product)
		return nil
	}, requestAttributes(r)...)
}

// GetProduct handles GET /products/{id}
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	_ = observability.Run(r.Context(), h.tracer, "ProductController.getProduct", func(ctx context.Context, span *observability.Span) error {
		id, ok := parseID(r)
		if !ok {
			respondError(w, http.StatusBadRequest, msgInvalidProductID)
			return apperrors.NewValidationError(msgInvalidProductID)
		}
		span.SetAttributes(attribute.Int64("product.id", id))

		product, err := h.service.GetProductByID(ctx, id)
		if err != nil {
			logFailure(h.logger, "Failed to retrieve product", http.StatusInternalServerError, err)
			respondError(w, http.StatusInternalServerError, msgProductReadFailed)
			return err
		}
		if product == nil {
			span.SetAttributes(attribute.Bool("product.found", false))
			respondError(w, http.StatusNotFound, msgProductNotFound)
			return nil
		}

		span.SetAttributes(attribute.Bool("product.found", true))
		respondJSON(w, http.StatusOK, product)
		return nil
	}, requestAttributes(r)...)
}

// GetAllProducts handles GET /products
func (h *ProductHandler) GetAllProducts(w http.ResponseWriter, r *http.Request) {
	_ = observability.Run(r.Context(), h.tracer, "ProductController.getAllProducts", func(ctx context.Context, span *observability.Span) error {
		products, err := h.service.GetAllProducts(ctx)
		if err != nil {
			logFailure(h.logger, "Failed to retrieve products", http.StatusInternalServerError, err)
			respondError(w, http.StatusInternalServerError, msgProductsReadFailed)
			return err
		}

		span.SetAttributes(attribute.Int("products.count", len(products)))
		respondJSON(w, http.StatusOK, products)
		return nil
	}, requestAttributes(r)...)
}
