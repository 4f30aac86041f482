// Package postgres is the pgx-backed repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"api-backend/application/ports"
	"api-backend/domain"
)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id          BIGSERIAL PRIMARY KEY,
	name        VARCHAR(255) NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	price       DOUBLE PRECISION NOT NULL,
	stock       INTEGER NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS orders (
	id          BIGSERIAL PRIMARY KEY,
	order_id    VARCHAR(255) NOT NULL UNIQUE,
	product_id  BIGINT NOT NULL,
	quantity    INTEGER NOT NULL,
	status      VARCHAR(20) NOT NULL DEFAULT 'pending'
	            CHECK (status IN ('pending', 'processing', 'completed', 'cancelled')),
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS orders_product_id_idx ON orders (product_id);
`

const (
	insertProduct = `INSERT INTO products (name, description, price, stock)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at, updated_at`
	selectProduct = `SELECT id, name, description, price, stock, created_at, updated_at
FROM products WHERE id = $1`
	selectProducts = `SELECT id, name, description, price, stock, created_at, updated_at
FROM products ORDER BY id`

	insertOrder = `INSERT INTO orders (order_id, product_id, quantity, status)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at, updated_at`
	selectOrder = `SELECT id, order_id, product_id, quantity, status, created_at, updated_at
FROM orders WHERE id = $1`
	selectOrders = `SELECT id, order_id, product_id, quantity, status, created_at, updated_at
FROM orders ORDER BY id`
)

// querier is the subset of pgxpool.Pool the store needs.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements ports.Repository on PostgreSQL.
type Store struct {
	db    querier
	close func()
}

var _ ports.Repository = (*Store)(nil)

// Open creates a connection pool for dsn and applies the schema.
func Open(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}

	store := &Store{db: pool, close: pool.Close}
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("SQL store ready",
		zap.String("driver", "postgres"),
		zap.String("host", poolConfig.ConnConfig.Host),
		zap.String("database", poolConfig.ConnConfig.Database),
	)
	return store, nil
}

func newStore(db querier) *Store {
	return &Store{db: db, close: func() {}}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (s *Store) CreateProduct(ctx context.Context, product *domain.Product) error {
	err := s.db.QueryRow(ctx, insertProduct,
		product.Name, product.Description, product.Price, product.Stock,
	).Scan(&product.ID, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", translate(err))
	}
	return nil
}

func (s *Store) FindProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRow(ctx, selectProduct, id).
		Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find product: %w", err)
	}
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	rows, err := s.db.Query(ctx, selectProducts)
	if err != nil {
		return nil, fmt.Errorf("failed to find products: %w", err)
	}
	defer rows.Close()

	products := make([]*domain.Product, 0)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to find products: %w", err)
	}
	return products, nil
}

func (s *Store) CreateOrder(ctx context.Context, order *domain.Order) error {
	err := s.db.QueryRow(ctx, insertOrder,
		order.OrderID, order.ProductID, order.Quantity, string(order.Status),
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", translate(err))
	}
	return nil
}

func (s *Store) FindOrderByID(ctx context.Context, id int64) (*domain.Order, error) {
	var (
		o      domain.Order
		status string
	)
	err := s.db.QueryRow(ctx, selectOrder, id).
		Scan(&o.ID, &o.OrderID, &o.ProductID, &o.Quantity, &status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find order: %w", err)
	}
	o.Status = domain.OrderStatus(status)
	return &o, nil
}

func (s *Store) ListOrders(ctx context.Context) ([]*domain.Order, error) {
	rows, err := s.db.Query(ctx, selectOrders)
	if err != nil {
		return nil, fmt.Errorf("failed to find orders: %w", err)
	}
	defer rows.Close()

	orders := make([]*domain.Order, 0)
	for rows.Next() {
		var (
			o      domain.Order
			status string
		)
		if err := rows.Scan(&o.ID, &o.OrderID, &o.ProductID, &o.Quantity, &status, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		o.Status = domain.OrderStatus(status)
		orders = append(orders, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to find orders: %w", err)
	}
	return orders, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.close()
	return nil
}

// translate maps unique-constraint violations onto ports.ErrDuplicateKey.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ports.ErrDuplicateKey, pgErr.ConstraintName)
	}
	return err
}
