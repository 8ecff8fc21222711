package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Govind-619/paysync/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound is returned when no row matches the lookup
	ErrNotFound = errors.New("record not found")
)

// UpdateFunc mutates a payment loaded under lock. Returning false leaves the
// row untouched; returning an error aborts the whole update.
type UpdateFunc func(p *models.Payment) (changed bool, err error)

// PaymentFilter narrows List results
type PaymentFilter struct {
	Status      models.PaymentStatus
	CreatedFrom time.Time // zero means unbounded
	CreatedTo   time.Time
	Limit       int
	Offset      int
}

// PaymentRepository is the payment record store. Update is the only path
// that modifies an existing payment.
type PaymentRepository interface {
	Create(ctx context.Context, p *models.Payment) error
	FindByID(ctx context.Context, id string) (*models.Payment, error)
	FindByProviderReference(ctx context.Context, ref string) (*models.Payment, error)
	Update(ctx context.Context, id string, fn UpdateFunc) (*models.Payment, error)
	ListPollCandidates(ctx context.Context, createdAfter time.Time, maxPolls, limit int) ([]models.Payment, error)
	ListExpiredPending(ctx context.Context, createdBefore time.Time, limit int) ([]models.Payment, error)
	List(ctx context.Context, filter PaymentFilter) ([]models.Payment, int64, error)
}

// GormPaymentRepository stores payments with gorm
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a gorm backed payment repository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

func (r *GormPaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

func (r *GormPaymentRepository) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *GormPaymentRepository) FindByProviderReference(ctx context.Context, ref string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.WithContext(ctx).Where("provider_reference = ?", ref).First(&p).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// Update loads the row with SELECT ... FOR UPDATE, applies fn and writes the
// complete row back inside the same transaction
func (r *GormPaymentRepository) Update(ctx context.Context, id string, fn UpdateFunc) (*models.Payment, error) {
	var out *models.Payment
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Payment
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&p).Error; err != nil {
			return notFound(err)
		}

		changed, err := fn(&p)
		if err != nil {
			return err
		}
		if changed {
			if err := tx.Save(&p).Error; err != nil {
				return fmt.Errorf("save payment %s: %w", id, err)
			}
		}
		out = &p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *GormPaymentRepository) ListPollCandidates(ctx context.Context, createdAfter time.Time, maxPolls, limit int) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.WithContext(ctx).
		Where("status = ? AND provider_reference IS NOT NULL AND poll_count < ? AND created_at > ?",
			models.PaymentStatusPending, maxPolls, createdAfter).
		Order("COALESCE(last_polled_at, created_at) ASC").
		Limit(limit).
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("list poll candidates: %w", err)
	}
	return payments, nil
}

func (r *GormPaymentRepository) ListExpiredPending(ctx context.Context, createdBefore time.Time, limit int) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.PaymentStatusPending, createdBefore).
		Order("created_at ASC").
		Limit(limit).
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("list expired payments: %w", err)
	}
	return payments, nil
}

func (r *GormPaymentRepository) List(ctx context.Context, filter PaymentFilter) ([]models.Payment, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Payment{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if !filter.CreatedFrom.IsZero() {
		query = query.Where("created_at >= ?", filter.CreatedFrom)
	}
	if !filter.CreatedTo.IsZero() {
		query = query.Where("created_at <= ?", filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}

	var payments []models.Payment
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit).Offset(filter.Offset)
	}
	if err := query.Order("created_at DESC").Find(&payments).Error; err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}
	return payments, total, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
