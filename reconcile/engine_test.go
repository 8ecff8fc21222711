package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Govind-619/paysync/gateway"
	"github.com/Govind-619/paysync/lock"
	"github.com/Govind-619/paysync/models"
	"github.com/Govind-619/paysync/notify"
	"github.com/Govind-619/paysync/ordersync"
	"github.com/Govind-619/paysync/repository"
	"github.com/Govind-619/paysync/webhook"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncCall struct {
	OrderRef uint
	Status   models.PaymentStatus
	Reason   string
}

type fakeSyncer struct {
	mu      sync.Mutex
	calls   []syncCall
	ctxErrs []error
	err     error
}

func (f *fakeSyncer) Sync(ctx context.Context, orderRef uint, status models.PaymentStatus, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, syncCall{orderRef, status, reason})
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	return f.err
}

func (f *fakeSyncer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	repo   *repository.MemoryPaymentRepository
	syncer *fakeSyncer
	clock  *clock
	engine *Engine
	start  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	f := &fixture{
		repo:   repository.NewMemoryPaymentRepository(),
		syncer: &fakeSyncer{},
		clock:  &clock{now: start},
		start:  start,
	}
	f.engine = NewEngine(f.repo, lock.NewLocal(), f.syncer, WithClock(f.clock.Now))
	return f
}

// seed creates a pending payment with order 1 and provider reference ref
func (f *fixture) seed(t *testing.T, id, ref string) {
	t.Helper()
	order := uint(1)
	p := &models.Payment{
		ID:        id,
		OrderRef:  &order,
		Method:    "mpesa",
		Amount:    decimal.NewFromInt(50),
		Status:    models.PaymentStatusPending,
		CreatedAt: f.start,
	}
	if ref != "" {
		p.ProviderReference = &ref
	}
	require.NoError(t, f.repo.Create(context.Background(), p))
}

func event(ref string, status gateway.Status) *webhook.NormalizedEvent {
	return &webhook.NormalizedEvent{
		ProviderReference: ref,
		Status:            status,
		Raw:               []byte(fmt.Sprintf(`{"reference":%q,"status":%q}`, ref, status)),
	}
}

func (f *fixture) payment(t *testing.T, id string) *models.Payment {
	t.Helper()
	p, err := f.repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	return p
}

func TestEngine_DuplicateWebhooksSyncOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "P1", "R1")

	res, err := f.engine.HandleWebhook(ctx, event("R1", gateway.StatusSucceeded))
	require.NoError(t, err)
	assert.Equal(t, Transitioned, res.Outcome)
	assert.Equal(t, models.PaymentStatusPaid, res.Payment.Status)

	for i := 0; i < 5; i++ {
		f.clock.Advance(time.Second)
		res, err = f.engine.HandleWebhook(ctx, event("R1", gateway.StatusSucceeded))
		require.NoError(t, err)
		assert.Equal(t, AlreadyFinalized, res.Outcome)
	}

	assert.Equal(t, 1, f.syncer.count())
	assert.Equal(t, syncCall{1, models.PaymentStatusPaid, ""}, f.syncer.calls[0])
	assert.Equal(t, models.PaymentStatusPaid, f.payment(t, "P1").Status)
}

func TestEngine_LaterConflictingSignalNeverOverrides(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "P1", "R1")

	_, err := f.engine.HandleWebhook(ctx, event("R1", gateway.StatusFailed))
	require.NoError(t, err)
	res, err := f.engine.HandlePollResult(ctx, "P1", PollResult{Status: gateway.StatusSucceeded})
	require.NoError(t, err)

	assert.Equal(t, AlreadyFinalized, res.Outcome)
	assert.Equal(t, models.PaymentStatusFailed, res.Payment.Status)
	assert.Equal(t, 1, res.Payment.PollCount, "the attempt is still counted")
	assert.Equal(t, 1, f.syncer.count())
}

func TestEngine_ConcurrentWebhookAndPoll(t *testing.T) {
	for round := 0; round < 20; round++ {
		ctx := context.Background()
		f := newFixture(t)
		f.seed(t, "P1", "R1")

		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := 0; i < 4; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				<-start
				_, err := f.engine.HandleWebhook(ctx, event("R1", gateway.StatusSucceeded))
				assert.NoError(t, err)
			}()
			go func() {
				defer wg.Done()
				<-start
				_, err := f.engine.HandlePollResult(ctx, "P1", PollResult{Status: gateway.StatusUnknown})
				assert.NoError(t, err)
			}()
		}
		close(start)
		wg.Wait()

		p := f.payment(t, "P1")
		assert.Equal(t, models.PaymentStatusPaid, p.Status)
		assert.Equal(t, 4, p.PollCount)
		assert.Equal(t, 1, f.syncer.count())

		entries, err := p.AuditEntries()
		require.NoError(t, err)
		assert.Len(t, entries, 8, "every signal is recorded, none overwritten")
	}
}

func TestEngine_UnknownPollOnlyRecords(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "P1", "R1")

	f.clock.Advance(5 * time.Second)
	res, err := f.engine.HandlePollResult(ctx, "P1", PollResult{
		Status: gateway.StatusUnknown,
		Error:  "query status: gateway_unavailable (http 503)",
	})
	require.NoError(t, err)
	assert.Equal(t, Recorded, res.Outcome)
	assert.Equal(t, models.PaymentStatusPending, res.Payment.Status)
	assert.Equal(t, 1, res.Payment.PollCount)
	require.NotNil(t, res.Payment.LastPolledAt)
	assert.Equal(t, f.start.Add(5*time.Second), *res.Payment.LastPolledAt)
	assert.Zero(t, f.syncer.count())
}

func TestEngine_WebhookUnknownReference(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.HandleWebhook(context.Background(), event("nope", gateway.StatusSucceeded))
	assert.ErrorIs(t, err, ErrPaymentNotFound)

	_, err = f.engine.HandleTimeout(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestEngine_TimeoutMonotonicity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "P2", "R2")

	f.clock.Advance(14 * time.Minute)
	res, err := f.engine.HandleTimeout(ctx, "P2")
	require.NoError(t, err)
	assert.Equal(t, NotDue, res.Outcome)
	assert.Empty(t, f.payment(t, "P2").RawResponse, "an early tick writes nothing")

	f.clock.Advance(time.Minute + time.Second)
	res, err = f.engine.HandleTimeout(ctx, "P2")
	require.NoError(t, err)
	assert.Equal(t, Transitioned, res.Outcome)
	assert.Equal(t, models.PaymentStatusFailed, res.Payment.Status)

	f.clock.Advance(time.Minute)
	res, err = f.engine.HandleWebhook(ctx, event("R2", gateway.StatusSucceeded))
	require.NoError(t, err)
	assert.Equal(t, AlreadyFinalized, res.Outcome)
	assert.Equal(t, models.PaymentStatusFailed, res.Payment.Status)

	res, err = f.engine.HandleTimeout(ctx, "P2")
	require.NoError(t, err)
	assert.Equal(t, AlreadyFinalized, res.Outcome)

	log, err := f.payment(t, "P2").AuditLog()
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Equal(t, models.AuditSourceTimeout, log[0].Source)
	assert.Contains(t, string(log[0].Payload), `"synthetic":true`)
	assert.Equal(t, models.AuditSourceWebhook, log[1].Source)

	require.Equal(t, 1, f.syncer.count())
	assert.Equal(t, models.PaymentStatusFailed, f.syncer.calls[0].Status)
}

func TestEngine_AuditRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "P1", "R1")

	const n = 6
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			_, err := f.engine.HandlePollResult(ctx, "P1", PollResult{Status: gateway.StatusUnknown, Raw: []byte(fmt.Sprintf(`{"i":%d}`, i))})
			require.NoError(t, err)
		} else {
			_, err := f.engine.HandleWebhook(ctx, event("R1", gateway.StatusUnknown))
			require.NoError(t, err)
		}
		if i < 4 {
			f.clock.Advance(time.Second)
		}
	}

	log, err := f.payment(t, "P1").AuditLog()
	require.NoError(t, err)
	require.Len(t, log, n)
	for i, e := range log {
		if i%2 == 0 {
			assert.Equal(t, models.AuditSourceGatewayPoll, e.Source)
		} else {
			assert.Equal(t, models.AuditSourceWebhook, e.Source)
		}
	}
	assert.Contains(t, string(log[0].Payload), `{"i":0}`)
}

func TestEngine_CancelAndProviderMessage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "P1", "R1")
	f.seed(t, "P3", "R3")

	res, err := f.engine.Cancel(ctx, "P1", "")
	require.NoError(t, err)
	assert.Equal(t, Transitioned, res.Outcome)
	assert.Equal(t, models.PaymentStatusCancelled, res.Payment.Status)

	res, err = f.engine.Cancel(ctx, "P1", "again")
	require.NoError(t, err)
	assert.Equal(t, AlreadyFinalized, res.Outcome)

	_, err = f.engine.HandlePollResult(ctx, "P3", PollResult{Status: gateway.StatusFailed, Message: "insufficient funds"})
	require.NoError(t, err)

	require.Equal(t, 2, f.syncer.count())
	assert.Equal(t, syncCall{1, models.PaymentStatusCancelled, "payment was cancelled"}, f.syncer.calls[0])
	assert.Equal(t, syncCall{1, models.PaymentStatusFailed, "insufficient funds"}, f.syncer.calls[1])
}

func TestEngine_StoreFailureLeavesNothingBehind(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "P1", "R1")

	broken := &failingRepo{MemoryPaymentRepository: f.repo}
	engine := NewEngine(broken, lock.NewLocal(), f.syncer, WithClock(f.clock.Now))

	_, err := engine.HandleWebhook(ctx, event("R1", gateway.StatusSucceeded))
	assert.Error(t, err)
	p := f.payment(t, "P1")
	assert.Equal(t, models.PaymentStatusPending, p.Status)
	assert.Empty(t, p.RawResponse)
	assert.Zero(t, f.syncer.count())
}

// failingRepo runs the update function and then fails the write
type failingRepo struct {
	*repository.MemoryPaymentRepository
}

func (r *failingRepo) Update(ctx context.Context, id string, fn repository.UpdateFunc) (*models.Payment, error) {
	return r.MemoryPaymentRepository.Update(ctx, id, func(p *models.Payment) (bool, error) {
		if _, err := fn(p); err != nil {
			return false, err
		}
		return false, errors.New("database is unavailable")
	})
}

func TestEngine_MissingOrderStillConverges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ref := "R9"
	require.NoError(t, f.repo.Create(ctx, &models.Payment{
		ID: "P9", Method: "card", Amount: decimal.NewFromInt(10),
		ProviderReference: &ref, Status: models.PaymentStatusPending, CreatedAt: f.start,
	}))

	res, err := f.engine.HandleWebhook(ctx, event("R9", gateway.StatusSucceeded))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, res.Payment.Status)
	assert.Zero(t, f.syncer.count())

	p, err := f.engine.AttachOrder(ctx, "P9", 4)
	require.NoError(t, err)
	require.NotNil(t, p.OrderRef)
	require.Equal(t, 1, f.syncer.count(), "attaching to a terminal payment syncs the order")
	assert.Equal(t, syncCall{4, models.PaymentStatusPaid, ""}, f.syncer.calls[0])

	_, err = f.engine.AttachOrder(ctx, "P9", 5)
	assert.ErrorIs(t, err, ErrOrderConflict)
}

func TestEngine_AttachProviderReference(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "P1", "")

	p, err := f.engine.AttachProviderReference(ctx, "P1", "R1", []byte(`{"status":"success"}`))
	require.NoError(t, err)
	assert.Equal(t, "R1", p.ProviderRef())

	_, err = f.engine.AttachProviderReference(ctx, "P1", "R1", nil)
	require.NoError(t, err, "same reference is a no-op")

	_, err = f.engine.AttachProviderReference(ctx, "P1", "R2", nil)
	assert.ErrorIs(t, err, ErrReferenceConflict)

	res, err := f.engine.RecordCreateFailure(ctx, "P1", &gateway.Error{Kind: gateway.KindUnavailable, Op: "create payment", StatusCode: 503})
	require.NoError(t, err)
	assert.Equal(t, Recorded, res.Outcome)
	entries, err := f.payment(t, "P1").AuditEntries()
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestEngine_RejectedCreateFailsPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "P1", "")

	res, err := f.engine.RecordCreateFailure(ctx, "P1", &gateway.Error{
		Kind: gateway.KindRejected, Op: "create payment", StatusCode: 422,
		Message: "invalid phone number", Raw: []byte(`{"status":"error","message":"invalid phone number"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, Transitioned, res.Outcome)
	assert.Equal(t, models.PaymentStatusFailed, res.Payment.Status)
	require.Equal(t, 1, f.syncer.count())
	assert.Equal(t, "invalid phone number", f.syncer.calls[0].Reason)
}

func TestEngine_Resync(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "P1", "R1")
	f.syncer.err = errors.New("orders table locked")

	res, err := f.engine.HandlePollResult(ctx, "P1", PollResult{Status: gateway.StatusFailed, Message: "expired"})
	require.NoError(t, err, "order sync failure does not fail the transition")
	assert.Equal(t, models.PaymentStatusFailed, res.Payment.Status)

	f.syncer.err = nil
	_, err = f.engine.Resync(ctx, "P1")
	require.NoError(t, err)
	require.Equal(t, 2, f.syncer.count())
	assert.Equal(t, "expired", f.syncer.calls[1].Reason)
}

// Scenario P1: poll unknown, webhook succeeded, duplicate webhook
func TestScenario_PollThenWebhookThenDuplicate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	orders := repository.NewMemoryOrderRepository(models.Order{ID: 1, Status: models.OrderStatusPending, ContactEmail: "buyer@example.com"})
	var mu sync.Mutex
	var sent []notify.Notification
	dispatcher := notify.DispatcherFunc(func(_ context.Context, n notify.Notification) error {
		mu.Lock()
		defer mu.Unlock()
		sent = append(sent, n)
		return nil
	})
	engine := NewEngine(f.repo, lock.NewLocal(), ordersync.New(orders, dispatcher, ""), WithClock(f.clock.Now))

	f.seed(t, "P1", "")
	_, err := engine.AttachProviderReference(ctx, "P1", "R1", []byte(`{"status":"success","data":{"provider_reference":"R1"}}`))
	require.NoError(t, err)

	f.clock.Advance(5 * time.Second)
	res, err := engine.HandlePollResult(ctx, "P1", PollResult{Status: gateway.StatusUnknown})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Payment.PollCount)
	assert.Equal(t, models.PaymentStatusPending, res.Payment.Status)

	f.clock.Advance(25 * time.Second)
	res, err = engine.HandleWebhook(ctx, event("R1", gateway.StatusSucceeded))
	require.NoError(t, err)
	assert.Equal(t, Transitioned, res.Outcome)
	assert.Equal(t, models.PaymentStatusPaid, res.Payment.Status)

	f.clock.Advance(time.Second)
	res, err = engine.HandleWebhook(ctx, event("R1", gateway.StatusSucceeded))
	require.NoError(t, err)
	assert.Equal(t, AlreadyFinalized, res.Outcome)

	o, err := orders.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, o.Status)
	assert.Len(t, sent, 1)
}

// cancelAfterUpdateRepo cancels the caller's context once a write commits
type cancelAfterUpdateRepo struct {
	*repository.MemoryPaymentRepository
	cancel context.CancelFunc
}

func (r *cancelAfterUpdateRepo) Update(ctx context.Context, id string, fn repository.UpdateFunc) (*models.Payment, error) {
	p, err := r.MemoryPaymentRepository.Update(ctx, id, fn)
	r.cancel()
	return p, err
}

func TestEngine_OrderSyncOutlivesCallerContext(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "P1", "R1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine := NewEngine(&cancelAfterUpdateRepo{f.repo, cancel}, lock.NewLocal(), f.syncer, WithClock(f.clock.Now))

	res, err := engine.HandleWebhook(ctx, event("R1", gateway.StatusSucceeded))
	require.NoError(t, err)
	assert.Equal(t, Transitioned, res.Outcome)
	require.ErrorIs(t, ctx.Err(), context.Canceled)

	require.Equal(t, 1, f.syncer.count())
	assert.Equal(t, models.PaymentStatusPaid, f.syncer.calls[0].Status)
	assert.NoError(t, f.syncer.ctxErrs[0], "order sync must not inherit the cancelled request context")
}

func TestEngine_AttachOrderSyncOutlivesCallerContext(t *testing.T) {
	f := newFixture(t)
	ref := "R7"
	require.NoError(t, f.repo.Create(context.Background(), &models.Payment{
		ID: "P7", Method: "card", Amount: decimal.NewFromInt(10),
		ProviderReference: &ref, Status: models.PaymentStatusPending, CreatedAt: f.start,
	}))
	_, err := f.engine.HandleWebhook(context.Background(), event("R7", gateway.StatusSucceeded))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine := NewEngine(&cancelAfterUpdateRepo{f.repo, cancel}, lock.NewLocal(), f.syncer, WithClock(f.clock.Now))

	_, err = engine.AttachOrder(ctx, "P7", 3)
	require.NoError(t, err)
	require.Equal(t, 1, f.syncer.count())
	assert.NoError(t, f.syncer.ctxErrs[0])
}

func TestEngine_ResyncAfterTimeoutUsesDefaultReason(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "P2", "R2")

	f.clock.Advance(5 * time.Second)
	_, err := f.engine.HandlePollResult(ctx, "P2", PollResult{Status: gateway.StatusUnknown, Message: "Payment is being processed"})
	require.NoError(t, err)

	f.clock.Advance(16 * time.Minute)
	res, err := f.engine.HandleTimeout(ctx, "P2")
	require.NoError(t, err)
	require.Equal(t, Transitioned, res.Outcome)

	_, err = f.engine.Resync(ctx, "P2")
	require.NoError(t, err)

	require.Equal(t, 2, f.syncer.count())
	assert.Equal(t, "", f.syncer.calls[0].Reason)
	assert.Equal(t, "", f.syncer.calls[1].Reason, "a pending-era poll message is not the failure reason")
}

func TestEngine_ResyncIgnoresSignalsAfterFinalization(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "P1", "R1")

	failed := event("R1", gateway.StatusFailed)
	failed.Message = "insufficient funds"
	_, err := f.engine.HandleWebhook(ctx, failed)
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	late := event("R1", gateway.StatusSucceeded)
	late.Message = "Payment received"
	res, err := f.engine.HandleWebhook(ctx, late)
	require.NoError(t, err)
	require.Equal(t, AlreadyFinalized, res.Outcome)

	f.clock.Advance(time.Minute)
	_, err = f.engine.HandlePollResult(ctx, "P1", PollResult{Status: gateway.StatusFailed, Message: "card blocked"})
	require.NoError(t, err)

	_, err = f.engine.Resync(ctx, "P1")
	require.NoError(t, err)
	require.Equal(t, 2, f.syncer.count())
	assert.Equal(t, "insufficient funds", f.syncer.calls[1].Reason)

	entry, err := f.payment(t, "P1").TransitionEntry()
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, models.AuditSourceWebhook, entry.Source)
	assert.Equal(t, models.PaymentStatusFailed, entry.Transition)
}

func TestEngine_AttachOrderReasonAfterTimeoutOrCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, id := range []string{"P5", "P6"} {
		ref := "R" + id
		require.NoError(t, f.repo.Create(ctx, &models.Payment{
			ID: id, Method: "card", Amount: decimal.NewFromInt(10),
			ProviderReference: &ref, Status: models.PaymentStatusPending, CreatedAt: f.start,
		}))
	}

	_, err := f.engine.HandlePollResult(ctx, "P5", PollResult{Status: gateway.StatusUnknown, Message: "Payment is being processed"})
	require.NoError(t, err)
	f.clock.Advance(16 * time.Minute)
	_, err = f.engine.HandleTimeout(ctx, "P5")
	require.NoError(t, err)

	_, err = f.engine.Cancel(ctx, "P6", "changed my mind")
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	expired := event("RP6", gateway.StatusFailed)
	expired.Message = "session expired"
	_, err = f.engine.HandleWebhook(ctx, expired)
	require.NoError(t, err)
	assert.Zero(t, f.syncer.count(), "no order attached yet")

	_, err = f.engine.AttachOrder(ctx, "P5", 5)
	require.NoError(t, err)
	_, err = f.engine.AttachOrder(ctx, "P6", 6)
	require.NoError(t, err)

	require.Equal(t, 2, f.syncer.count())
	assert.Equal(t, syncCall{5, models.PaymentStatusFailed, ""}, f.syncer.calls[0])
	assert.Equal(t, syncCall{6, models.PaymentStatusCancelled, "changed my mind"}, f.syncer.calls[1])
}
