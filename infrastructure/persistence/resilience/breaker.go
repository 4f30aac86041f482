// Package resilience decorates a repository with a circuit breaker.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"api-backend/application/ports"
	"api-backend/domain"
)

// BreakerConfig holds configuration for the circuit breaker
type BreakerConfig struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	// Consecutive failures that open the breaker.
	MaxFailures uint32
}

// DefaultBreakerConfig returns the configuration used for the store.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:        name,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		MaxFailures: 5,
	}
}

// Repository runs every call of the wrapped repository through one breaker.
// Duplicate-key rejections mean the store is healthy and do not count as
// failures.
type Repository struct {
	next ports.Repository
	cb   *gobreaker.CircuitBreaker
}

var _ ports.Repository = (*Repository)(nil)

// NewRepository wraps next.
func NewRepository(next ports.Repository, cfg BreakerConfig, logger *zap.Logger) *Repository {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ports.ErrDuplicateKey) ||
				errors.Is(err, context.Canceled)
		},
	})

	return &Repository{next: next, cb: cb}
}

// State reports the breaker state.
func (r *Repository) State() gobreaker.State {
	return r.cb.State()
}

func execute[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	result, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}

func (r *Repository) CreateProduct(ctx context.Context, product *domain.Product) error {
	_, err := execute(r.cb, func() (struct{}, error) {
		return struct{}{}, r.next.CreateProduct(ctx, product)
	})
	return err
}

func (r *Repository) FindProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	return execute(r.cb, func() (*domain.Product, error) {
		return r.next.FindProductByID(ctx, id)
	})
}

func (r *Repository) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	return execute(r.cb, func() ([]*domain.Product, error) {
		return r.next.ListProducts(ctx)
	})
}

func (r *Repository) CreateOrder(ctx context.Context, order *domain.Order) error {
	_, err := execute(r.cb, func() (struct{}, error) {
		return struct{}{}, r.next.CreateOrder(ctx, order)
	})
	return err
}

func (r *Repository) FindOrderByID(ctx context.Context, id int64) (*domain.Order, error) {
	return execute(r.cb, func() (*domain.Order, error) {
		return r.next.FindOrderByID(ctx, id)
	})
}

func (r *Repository) ListOrders(ctx context.Context) ([]*domain.Order, error) {
	return execute(r.cb, func() ([]*domain.Order, error) {
		return r.next.ListOrders(ctx)
	})
}

// Close closes the wrapped repository.
func (r *Repository) Close() error {
	return r.next.Close()
}
