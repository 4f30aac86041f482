package ports

import (
	"context"
	"errors"

	"api-backend/domain"
)

// ErrDuplicateKey is returned (wrapped) by repositories when a write violates
// a uniqueness constraint, such as a repeated orderId.
var ErrDuplicateKey = errors.New("duplicate key")

// ProductRepository persists products. Find methods return (nil, nil) when
// the product does not exist.
type ProductRepository interface {
	CreateProduct(ctx context.Context, product *domain.Product) error
	FindProductByID(ctx context.Context, id int64) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]*domain.Product, error)
}

// OrderRepository persists orders. Find methods return (nil, nil) when the
// order does not exist.
type OrderRepository interface {
	CreateOrder(ctx context.Context, order *domain.Order) error
	FindOrderByID(ctx context.Context, id int64) (*domain.Order, error)
	ListOrders(ctx context.Context) ([]*domain.Order, error)
}

// Repository is the full persistence collaborator used by the services.
// Create methods assign ID and timestamps on the passed entity.
type Repository interface {
	ProductRepository
	OrderRepository
	Close() error
}
