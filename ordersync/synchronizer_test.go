package ordersync

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Govind-619/paysync/models"
	"github.com/Govind-619/paysync/notify"
	"github.com/Govind-619/paysync/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	sent []notify.Notification
	err  error
}

func (r *recorder) Dispatch(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

func pendingOrder(id uint) models.Order {
	return models.Order{ID: id, Status: models.OrderStatusPending, ContactEmail: "buyer@example.com"}
}

func TestSync_PaidNotifiesCustomerAndAdmin(t *testing.T) {
	ctx := context.Background()
	orders := repository.NewMemoryOrderRepository(pendingOrder(1))
	rec := &recorder{}
	s := New(orders, rec, "admin@example.com")

	require.NoError(t, s.Sync(ctx, 1, models.PaymentStatusPaid, "ignored"))

	o, err := orders.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, o.Status)
	assert.Empty(t, o.FailureReason)

	require.Len(t, rec.sent, 2)
	assert.Equal(t, "buyer@example.com", rec.sent[0].Recipient)
	assert.Equal(t, notify.AudienceCustomer, rec.sent[0].Audience)
	assert.Equal(t, "admin@example.com", rec.sent[1].Recipient)
	assert.Equal(t, models.OrderStatusPaid, rec.sent[1].Status)
}

func TestSync_FailureReasons(t *testing.T) {
	tests := []struct {
		name   string
		status models.PaymentStatus
		reason string
		want   string
	}{
		{"provider message", models.PaymentStatusFailed, "insufficient funds", "insufficient funds"},
		{"generic", models.PaymentStatusFailed, "", models.DefaultPaymentFailureReason},
		{"cancelled", models.PaymentStatusCancelled, "", models.DefaultPaymentFailureReason},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			orders := repository.NewMemoryOrderRepository(pendingOrder(1))
			s := New(orders, &recorder{}, "")

			require.NoError(t, s.Sync(ctx, 1, tt.status, tt.reason))
			o, err := orders.FindByID(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, models.OrderStatusFailed, o.Status)
			assert.Equal(t, tt.want, o.FailureReason)
		})
	}
}

func TestSync_OrderNoLongerPendingIsLeftAlone(t *testing.T) {
	ctx := context.Background()
	shipped := pendingOrder(1)
	shipped.Status = models.OrderStatusShipped
	orders := repository.NewMemoryOrderRepository(shipped)
	rec := &recorder{}

	require.NoError(t, New(orders, rec, "admin@example.com").Sync(ctx, 1, models.PaymentStatusFailed, ""))

	o, err := orders.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipped, o.Status)
	assert.Empty(t, rec.sent)
}

func TestSync_DispatchFailureDoesNotFail(t *testing.T) {
	ctx := context.Background()
	orders := repository.NewMemoryOrderRepository(pendingOrder(1))
	rec := &recorder{err: errors.New("smtp unreachable")}

	require.NoError(t, New(orders, rec, "admin@example.com").Sync(ctx, 1, models.PaymentStatusPaid, ""))
	o, _ := orders.FindByID(ctx, 1)
	assert.Equal(t, models.OrderStatusPaid, o.Status)
	assert.Len(t, rec.sent, 2)
}

func TestSync_RejectsNonTerminalStatus(t *testing.T) {
	s := New(repository.NewMemoryOrderRepository(pendingOrder(1)), &recorder{}, "")
	assert.Error(t, s.Sync(context.Background(), 1, models.PaymentStatusPending, ""))
}
