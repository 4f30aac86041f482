package sqlstore

import (
	"time"

	"api-backend/domain"
)

type productRow struct {
	ID          int64     `gorm:"primaryKey;autoIncrement"`
	Name        string    `gorm:"size:255;not null"`
	Description string    `gorm:"not null;default:''"`
	Price       float64   `gorm:"not null"`
	Stock       int       `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (productRow) TableName() string {
	return "products"
}

func (r *productRow) toDomain() *domain.Product {
	return &domain.Product{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
		Stock:       r.Stock,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

type orderRow struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	OrderID   string    `gorm:"column:order_id;size:255;not null;uniqueIndex"`
	ProductID int64     `gorm:"not null;index"`
	Quantity  int       `gorm:"not null"`
	Status    string    `gorm:"size:20;not null;default:pending"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (orderRow) TableName() string {
	return "orders"
}

func (r *orderRow) toDomain() *domain.Order {
	return &domain.Order{
		ID:        r.ID,
		OrderID:   r.OrderID,
		ProductID: r.ProductID,
		Quantity:  r.Quantity,
		Status:    domain.OrderStatus(r.Status),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}
