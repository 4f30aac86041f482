// Package sqlstore is the gorm-backed repository. The default deployment
// runs it on an in-memory SQLite database.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"api-backend/application/ports"
	"api-backend/domain"
)

// Store implements ports.Repository with gorm.
type Store struct {
	db *gorm.DB
}

var _ ports.Repository = (*Store)(nil)

// Open connects to the SQLite database at dsn and migrates the schema.
func Open(dsn string, logger *zap.Logger) (*Store, error) {
	level := gormlogger.Warn
	if logger.Core().Enabled(zap.DebugLevel) {
		level = gormlogger.Info
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         newZapLogger(logger, level),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	// Every connection to an in-memory database sees its own empty database
	// unless the cache is shared, so keep a single connection.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&productRow{}, &orderRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("SQL store ready", zap.String("driver", "sqlite"))
	return &Store{db: db}, nil
}

func (s *Store) CreateProduct(ctx context.Context, product *domain.Product) error {
	row := productRow{
		Name:        product.Name,
		Description: product.Description,
		Price:       product.Price,
		Stock:       product.Stock,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to create product: %w", translate(err))
	}
	*product = *row.toDomain()
	return nil
}

func (s *Store) FindProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	var row productRow
	if err := s.db.WithContext(ctx).Take(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find product: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	var rows []productRow
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find products: %w", err)
	}

	products := make([]*domain.Product, 0, len(rows))
	for i := range rows {
		products = append(products, rows[i].toDomain())
	}
	return products, nil
}

func (s *Store) CreateOrder(ctx context.Context, order *domain.Order) error {
	row := orderRow{
		OrderID:   order.OrderID,
		ProductID: order.ProductID,
		Quantity:  order.Quantity,
		Status:    string(order.Status),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to create order: %w", translate(err))
	}
	*order = *row.toDomain()
	return nil
}

func (s *Store) FindOrderByID(ctx context.Context, id int64) (*domain.Order, error) {
	var row orderRow
	if err := s.db.WithContext(ctx).Take(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find order: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListOrders(ctx context.Context) ([]*domain.Order, error) {
	var rows []orderRow
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find orders: %w", err)
	}

	orders := make([]*domain.Order, 0, len(rows))
	for i := range rows {
		orders = append(orders, rows[i].toDomain())
	}
	return orders, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// translate maps unique-constraint failures onto ports.ErrDuplicateKey.
func translate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", ports.ErrDuplicateKey, err)
	}
	return err
}
