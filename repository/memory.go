package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Govind-619/paysync/models"
)

// MemoryPaymentRepository keeps payments in a map. Update is serialized by a
// single mutex, which stands in for the row lock of the gorm store.
type MemoryPaymentRepository struct {
	mu       sync.Mutex
	payments map[string]*models.Payment
	now      func() time.Time
}

// NewMemoryPaymentRepository creates an empty in-memory payment store
func NewMemoryPaymentRepository() *MemoryPaymentRepository {
	return &MemoryPaymentRepository{payments: make(map[string]*models.Payment), now: time.Now}
}

func (r *MemoryPaymentRepository) Create(_ context.Context, p *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.payments[p.ID]; ok {
		return fmt.Errorf("create payment: duplicate id %s", p.ID)
	}
	if err := r.checkReferenceLocked(p); err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	now := r.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	r.payments[p.ID] = p.Clone()
	return nil
}

func (r *MemoryPaymentRepository) FindByID(_ context.Context, id string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (r *MemoryPaymentRepository) FindByProviderReference(_ context.Context, ref string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.payments {
		if p.ProviderRef() == ref {
			return p.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

// Update runs fn under the store mutex and replaces the row only when fn
// succeeds, so a failed update leaves nothing half-written
func (r *MemoryPaymentRepository) Update(_ context.Context, id string, fn UpdateFunc) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	working := current.Clone()
	changed, err := fn(working)
	if err != nil {
		return nil, err
	}
	if changed {
		if err := r.checkReferenceLocked(working); err != nil {
			return nil, fmt.Errorf("save payment %s: %w", id, err)
		}
		working.UpdatedAt = r.now()
		r.payments[id] = working.Clone()
	}
	return working, nil
}

func (r *MemoryPaymentRepository) ListPollCandidates(_ context.Context, createdAfter time.Time, maxPolls, limit int) ([]models.Payment, error) {
	return r.filter(func(p *models.Payment) bool {
		return p.Status == models.PaymentStatusPending &&
			p.ProviderReference != nil &&
			p.PollCount < maxPolls &&
			p.CreatedAt.After(createdAfter)
	}, func(a, b *models.Payment) bool {
		return lastTouched(a).Before(lastTouched(b))
	}, limit), nil
}

func (r *MemoryPaymentRepository) ListExpiredPending(_ context.Context, createdBefore time.Time, limit int) ([]models.Payment, error) {
	return r.filter(func(p *models.Payment) bool {
		return p.Status == models.PaymentStatusPending && p.CreatedAt.Before(createdBefore)
	}, func(a, b *models.Payment) bool {
		return a.CreatedAt.Before(b.CreatedAt)
	}, limit), nil
}

func (r *MemoryPaymentRepository) List(_ context.Context, filter PaymentFilter) ([]models.Payment, int64, error) {
	all := r.filter(func(p *models.Payment) bool {
		if filter.Status != "" && p.Status != filter.Status {
			return false
		}
		if !filter.CreatedFrom.IsZero() && p.CreatedAt.Before(filter.CreatedFrom) {
			return false
		}
		return filter.CreatedTo.IsZero() || !p.CreatedAt.After(filter.CreatedTo)
	}, func(a, b *models.Payment) bool {
		return a.CreatedAt.After(b.CreatedAt)
	}, 0)

	total := int64(len(all))
	if filter.Offset >= len(all) {
		return []models.Payment{}, total, nil
	}
	all = all[filter.Offset:]
	if filter.Limit > 0 && len(all) > filter.Limit {
		all = all[:filter.Limit]
	}
	return all, total, nil
}

func (r *MemoryPaymentRepository) filter(keep func(*models.Payment) bool, less func(a, b *models.Payment) bool, limit int) []models.Payment {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.Payment
	for _, p := range r.payments {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	result := make([]models.Payment, 0, len(out))
	for _, p := range out {
		result = append(result, *p.Clone())
	}
	return result
}

func (r *MemoryPaymentRepository) checkReferenceLocked(p *models.Payment) error {
	ref := p.ProviderRef()
	if ref == "" {
		return nil
	}
	for id, other := range r.payments {
		if id != p.ID && other.ProviderRef() == ref {
			return fmt.Errorf("provider reference %s already used by payment %s", ref, id)
		}
	}
	return nil
}

func lastTouched(p *models.Payment) time.Time {
	if p.LastPolledAt != nil {
		return *p.LastPolledAt
	}
	return p.CreatedAt
}

// MemoryOrderRepository keeps orders in a map
type MemoryOrderRepository struct {
	mu     sync.Mutex
	orders map[uint]*models.Order
}

// NewMemoryOrderRepository creates an in-memory order store seeded with orders
func NewMemoryOrderRepository(orders ...models.Order) *MemoryOrderRepository {
	r := &MemoryOrderRepository{orders: make(map[uint]*models.Order)}
	for i := range orders {
		o := orders[i]
		r.orders[o.ID] = &o
	}
	return r
}

func (r *MemoryOrderRepository) FindByID(_ context.Context, id uint) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *MemoryOrderRepository) TransitionFromPending(_ context.Context, id uint, status, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok || o.Status != models.OrderStatusPending {
		return false, nil
	}
	o.Status = status
	o.FailureReason = reason
	o.UpdatedAt = time.Now()
	return true, nil
}
