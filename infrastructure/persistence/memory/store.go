// Package memory is a map-backed repository for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"api-backend/application/ports"
	"api-backend/domain"
)

// Store keeps products and orders in process memory. ID assignment and the
// orderId uniqueness check happen under the same write lock.
type Store struct {
	mu sync.RWMutex

	products      map[int64]domain.Product
	orders        map[int64]domain.Order
	orderIDs      map[string]int64
	nextProductID int64
	nextOrderID   int64

	now func() time.Time
}

var _ ports.Repository = (*Store)(nil)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		products: make(map[int64]domain.Product),
		orders:   make(map[int64]domain.Order),
		orderIDs: make(map[string]int64),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) CreateProduct(ctx context.Context, product *domain.Product) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextProductID++
	now := s.now()
	product.ID = s.nextProductID
	product.CreatedAt = now
	product.UpdatedAt = now
	s.products[product.ID] = *product
	return nil
}

func (s *Store) FindProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, nil
	}
	return &product, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]*domain.Product, 0, len(s.products))
	for _, p := range s.products {
		p := p
		products = append(products, &p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

func (s *Store) CreateOrder(ctx context.Context, order *domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orderIDs[order.OrderID]; exists {
		return fmt.Errorf("order %q: %w", order.OrderID, ports.ErrDuplicateKey)
	}

	s.nextOrderID++
	now := s.now()
	order.ID = s.nextOrderID
	order.CreatedAt = now
	order.UpdatedAt = now
	s.orders[order.ID] = *order
	s.orderIDs[order.OrderID] = order.ID
	return nil
}

func (s *Store) FindOrderByID(ctx context.Context, id int64) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	return &order, nil
}

func (s *Store) ListOrders(ctx context.Context) ([]*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]*domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		o := o
		orders = append(orders, &o)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	return orders, nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}
