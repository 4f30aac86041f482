package services

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"api-backend/application/ports"
	"api-backend/domain"
	"api-backend/infrastructure/observability"
	apperrors "api-backend/pkg/errors"
)

const (
	msgMissingProductFields = "missing required product fields: name, price, stock"
	msgPricePositive        = "price must be positive"
	msgStockNegative        = "stock cannot be negative"
)

// ProductInput is the payload for product creation.
type ProductInput struct {
	Name        *string  `json:"name" validate:"required,min=1"`
	Description *string  `json:"description"`
	Price       *float64 `json:"price" validate:"required,gt=0"`
	Stock       *int     `json:"stock" validate:"required,gte=0"`
}

func rankProductViolation(fe validator.FieldError) (int, string) {
	switch {
	case isPresenceFailure(fe):
		return 0, msgMissingProductFields
	case fe.StructField() == "Price":
		return 1, msgPricePositive
	case fe.StructField() == "Stock":
		return 2, msgStockNegative
	default:
		return 3, fallbackMessage(fe)
	}
}

// ProductService creates and reads products
type ProductService struct {
	products ports.ProductRepository
	tracer   *observability.Tracer
	metrics  *observability.DomainMetrics
	logger   *zap.Logger
}

// NewProductService creates a new product service
func NewProductService(
	products ports.ProductRepository,
	tracer *observability.Tracer,
	metrics *observability.DomainMetrics,
	logger *zap.Logger,
) *ProductService {
	return &ProductService{
		products: products,
		tracer:   tracer,
		metrics:  metrics,
		logger:   logger.Named("product-service"),
	}
}

// CreateProduct validates and stores a product. A missing description is
// stored as "". Failures are wrapped as "failed to create product: <cause>".
func (s *ProductService) CreateProduct(ctx context.Context, input ProductInput) (*domain.Product, error) {
	return observability.Trace(ctx, s.tracer, "ProductService.CreateProduct", func(ctx context.Context, span *observability.Span) (*domain.Product, error) {
		product, err := s.create(ctx, input)
		if err != nil {
			s.metrics.ProductCreated(ctx, outcome(err))
			s.logger.Warn("Product creation failed", zap.Error(err))
			return nil, apperrors.Wrap(err, "failed to create product")
		}

		span.SetAttributes(attribute.Int64("product.id", product.ID))
		s.metrics.ProductCreated(ctx, outcomeCreated)
		s.logger.Info("Product created",
			zap.String("name", product.Name),
			zap.Int64("id", product.ID),
		)
		return product, nil
	})
}

func (s *ProductService) create(ctx context.Context, input ProductInput) (*domain.Product, error) {
	if err := validateInput(input, rankProductViolation); err != nil {
		return nil, err
	}

	product := &domain.Product{
		Name:  *input.Name,
		Price: *input.Price,
		Stock: *input.Stock,
	}
	if input.Description != nil {
		product.Description = *input.Description
	}

	return s.persistProduct(ctx, product)
}

func (s *ProductService) persistProduct(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	return observability.Trace(ctx, s.tracer, "ProductService.persistProduct", func(ctx context.Context, _ *observability.Span) (*domain.Product, error) {
		if err := s.products.CreateProduct(ctx, product); err != nil {
			return nil, apperrors.NewConflictError(err.Error(), err)
		}
		return product, nil
	},
		attribute.String("product.name", product.Name),
		attribute.Float64("product.price", product.Price),
		attribute.Int("product.stock", product.Stock),
	)
}

// GetProductByID returns the product or nil when it does not exist.
func (s *ProductService) GetProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	return observability.Trace(ctx, s.tracer, "ProductService.GetProductByID", func(ctx context.Context, span *observability.Span) (*domain.Product, error) {
		product, err := s.products.FindProductByID(ctx, id)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to retrieve product", err)
		}
		span.SetAttributes(attribute.Bool("product.found", product != nil))
		return product, nil
	}, attribute.Int64("product.id", id))
}

// GetAllProducts returns every product, never nil.
func (s *ProductService) GetAllProducts(ctx context.Context) ([]*domain.Product, error) {
	return observability.Trace(ctx, s.tracer, "ProductService.GetAllProducts", func(ctx context.Context, span *observability.Span) ([]*domain.Product, error) {
		products, err := s.products.ListProducts(ctx)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to retrieve products", err)
		}
		if products == nil {
			products = []*domain.Product{}
		}
		span.SetAttributes(attribute.Int("products.count", len(products)))
		return products, nil
	})
}
