package repository

import (
	"context"
	"fmt"

	"github.com/Govind-619/paysync/models"
	"gorm.io/gorm"
)

// OrderRepository is the narrow view of the order store that payment
// reconciliation needs
type OrderRepository interface {
	FindByID(ctx context.Context, id uint) (*models.Order, error)
	// TransitionFromPending sets status and reason only while the order is
	// still pending and reports whether a row changed
	TransitionFromPending(ctx context.Context, id uint, status, reason string) (bool, error)
}

// GormOrderRepository stores orders with gorm
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a gorm backed order repository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

func (r *GormOrderRepository) FindByID(ctx context.Context, id uint) (*models.Order, error) {
	var o models.Order
	if err := r.db.WithContext(ctx).First(&o, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &o, nil
}

func (r *GormOrderRepository) TransitionFromPending(ctx context.Context, id uint, status, reason string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", id, models.OrderStatusPending).
		Updates(map[string]interface{}{
			"status":         status,
			"failure_reason": reason,
		})
	if res.Error != nil {
		return false, fmt.Errorf("update order %d: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}
