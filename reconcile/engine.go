// Package reconcile is the payment state machine. Webhooks, poll results,
// timeout ticks and cancellations all funnel into one locked transition per
// payment, so the first terminal signal wins and every later one is only
// recorded for audit.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Govind-619/paysync/gateway"
	"github.com/Govind-619/paysync/lock"
	"github.com/Govind-619/paysync/models"
	"github.com/Govind-619/paysync/repository"
	"github.com/Govind-619/paysync/utils"
	"github.com/Govind-619/paysync/webhook"
)

// DefaultPendingTimeout is how long a payment may stay pending without a terminal signal
const DefaultPendingTimeout = 15 * time.Minute

// orderSyncTimeout bounds the order update and notification hand-off that
// follows a committed transition
const orderSyncTimeout = 30 * time.Second

var (
	ErrPaymentNotFound   = errors.New("payment not found")
	ErrReferenceConflict = errors.New("payment already has a different provider reference")
	ErrOrderConflict     = errors.New("payment already belongs to a different order")
)

// Outcome says what a signal did to the payment
type Outcome string

const (
	// Transitioned: the payment moved from pending to a terminal status
	Transitioned Outcome = "transitioned"
	// AlreadyFinalized: the payment was terminal; the signal was only recorded
	AlreadyFinalized Outcome = "already_finalized"
	// Recorded: no status change; the signal was recorded
	Recorded Outcome = "recorded"
	// NotDue: a timeout tick arrived before the threshold; nothing was written
	NotDue Outcome = "not_due"
)

// Result is returned by every engine entry point
type Result struct {
	Outcome Outcome
	Payment *models.Payment
}

// PollResult is one status query outcome handed over by the poller
type PollResult struct {
	Status  gateway.Status
	Message string
	Raw     []byte
	Error   string // set when the query itself failed
}

// OrderSyncer propagates a terminal payment status to the owning order
type OrderSyncer interface {
	Sync(ctx context.Context, orderRef uint, status models.PaymentStatus, reason string) error
}

// Engine applies signals to payments
type Engine struct {
	payments repository.PaymentRepository
	locker   lock.Locker
	syncer   OrderSyncer
	timeout  time.Duration
	now      func() time.Time
}

// Option customizes an Engine
type Option func(*Engine)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithPendingTimeout overrides DefaultPendingTimeout
func WithPendingTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// NewEngine creates an Engine
func NewEngine(payments repository.PaymentRepository, locker lock.Locker, syncer OrderSyncer, opts ...Option) *Engine {
	e := &Engine{
		payments: payments,
		locker:   locker,
		syncer:   syncer,
		timeout:  DefaultPendingTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PendingTimeout returns the configured threshold
func (e *Engine) PendingTimeout() time.Duration {
	return e.timeout
}

// signal is the single internal shape every entry point is reduced to
type signal struct {
	source  string
	payload interface{}
	target  models.PaymentStatus // "" when the signal carries no terminal status
	reason  string
	poll    bool
	timeout bool
}

// HandleWebhook applies a verified callback. The payment is resolved through
// its provider reference, which never changes once set.
func (e *Engine) HandleWebhook(ctx context.Context, ev *webhook.NormalizedEvent) (Result, error) {
	p, err := e.payments.FindByProviderReference(ctx, ev.ProviderReference)
	if err != nil {
		return Result{}, e.lookupErr(err, "reference "+ev.ProviderReference)
	}

	sig := signal{
		source:  models.AuditSourceWebhook,
		payload: ev.Raw,
		target:  targetFor(ev.Status),
		reason:  ev.Message,
	}
	return e.apply(ctx, p.ID, sig)
}

// HandlePollResult applies one poll attempt. Every call counts as an attempt.
func (e *Engine) HandlePollResult(ctx context.Context, paymentID string, res PollResult) (Result, error) {
	payload := map[string]interface{}{
		"status": res.Status,
	}
	if res.Message != "" {
		payload["message"] = res.Message
	}
	if res.Error != "" {
		payload["error"] = res.Error
	}
	if len(res.Raw) > 0 {
		payload["response"] = rawPayload(res.Raw)
	}

	sig := signal{
		source:  models.AuditSourceGatewayPoll,
		payload: payload,
		target:  targetFor(res.Status),
		reason:  res.Message,
		poll:    true,
	}
	return e.apply(ctx, paymentID, sig)
}

// HandleTimeout fails a payment that stayed pending past the threshold. A
// tick that arrives early returns NotDue without writing anything.
func (e *Engine) HandleTimeout(ctx context.Context, paymentID string) (Result, error) {
	sig := signal{
		source: models.AuditSourceTimeout,
		payload: map[string]interface{}{
			"synthetic": true,
			"reason":    "no terminal signal received",
			"threshold": e.timeout.String(),
		},
		target:  models.PaymentStatusFailed,
		timeout: true,
	}
	return e.apply(ctx, paymentID, sig)
}

// Cancel moves a pending payment to cancelled
func (e *Engine) Cancel(ctx context.Context, paymentID, reason string) (Result, error) {
	if strings.TrimSpace(reason) == "" {
		reason = "payment was cancelled"
	}
	sig := signal{
		source:  models.AuditSourceCancel,
		payload: map[string]interface{}{"reason": reason},
		target:  models.PaymentStatusCancelled,
		reason:  reason,
	}
	return e.apply(ctx, paymentID, sig)
}

func (e *Engine) apply(ctx context.Context, paymentID string, sig signal) (Result, error) {
	unlock, err := e.locker.Lock(ctx, paymentID)
	if err != nil {
		return Result{}, fmt.Errorf("lock payment %s: %w", paymentID, err)
	}

	var outcome Outcome
	updated, err := e.payments.Update(ctx, paymentID, func(p *models.Payment) (bool, error) {
		now := e.now().UTC()

		if sig.timeout {
			if p.Status.IsTerminal() {
				outcome = AlreadyFinalized
				return false, nil
			}
			if now.Sub(p.CreatedAt) <= e.timeout {
				outcome = NotDue
				return false, nil
			}
		}

		if sig.poll {
			p.PollCount++
			p.LastPolledAt = &now
		}
		switch {
		case p.Status.IsTerminal():
			outcome = AlreadyFinalized
		case sig.target != "":
			outcome = Transitioned
		default:
			outcome = Recorded
		}

		var err error
		if outcome == Transitioned {
			_, err = p.AppendTransition(sig.source, now, sig.payload, sig.target, sig.reason)
			p.Status = sig.target
		} else {
			_, err = p.AppendAudit(sig.source, now, sig.payload)
		}
		if err != nil {
			return false, err
		}
		return true, nil
	})
	unlock()
	if err != nil {
		return Result{}, e.lookupErr(err, "id "+paymentID)
	}

	switch outcome {
	case Transitioned:
		utils.LogInfo("Payment %s moved to %s by %s", updated.ID, updated.Status, sig.source)
		e.syncOrder(ctx, updated, sig.reason)
	case AlreadyFinalized:
		utils.LogDebug("Payment %s already %s, %s signal recorded only", updated.ID, updated.Status, sig.source)
	case Recorded:
		utils.LogDebug("Payment %s still pending after %s signal", updated.ID, sig.source)
	}
	return Result{Outcome: outcome, Payment: updated}, nil
}

// syncOrder runs after the transition is committed. It is detached from the
// caller's cancellation: a dropped webhook connection or a stopping poller
// must not leave the order behind a committed payment. Its failure never
// undoes the payment state; Resync repairs orders left behind.
func (e *Engine) syncOrder(ctx context.Context, p *models.Payment, reason string) {
	if p.OrderRef == nil {
		utils.LogError("Payment %s reached %s without an order, order sync skipped", p.ID, p.Status)
		return
	}
	if e.syncer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), orderSyncTimeout)
	defer cancel()
	if err := e.syncer.Sync(ctx, *p.OrderRef, p.Status, reason); err != nil {
		utils.LogError("Failed to sync order %d for payment %s: %v", *p.OrderRef, p.ID, err)
	}
}

// Resync re-applies the terminal status of a payment to its order. The order
// update is guarded by status, so an order that already moved is untouched
// and no second notification is sent.
func (e *Engine) Resync(ctx context.Context, paymentID string) (Result, error) {
	p, err := e.payments.FindByID(ctx, paymentID)
	if err != nil {
		return Result{}, e.lookupErr(err, "id "+paymentID)
	}
	if !p.Status.IsTerminal() {
		return Result{Outcome: Recorded, Payment: p}, nil
	}
	if p.OrderRef == nil || e.syncer == nil {
		return Result{}, fmt.Errorf("payment %s has no order to sync", p.ID)
	}
	if err := e.syncer.Sync(ctx, *p.OrderRef, p.Status, failureReason(p)); err != nil {
		return Result{}, err
	}
	return Result{Outcome: AlreadyFinalized, Payment: p}, nil
}

// AttachProviderReference stores the gateway acknowledgement of a created
// payment. The reference is set once; repeating the same reference only
// records the response.
func (e *Engine) AttachProviderReference(ctx context.Context, paymentID, ref string, raw []byte) (*models.Payment, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("attach reference to payment %s: empty reference", paymentID)
	}

	unlock, err := e.locker.Lock(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("lock payment %s: %w", paymentID, err)
	}
	defer unlock()

	p, err := e.payments.Update(ctx, paymentID, func(p *models.Payment) (bool, error) {
		if current := p.ProviderRef(); current != "" && current != ref {
			return false, fmt.Errorf("%w: %s has %s", ErrReferenceConflict, p.ID, current)
		}
		p.ProviderReference = &ref
		if _, err := p.AppendAudit(models.AuditSourceGatewayCreate, e.now(), rawPayload(raw)); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return nil, e.lookupErr(err, "id "+paymentID)
	}
	return p, nil
}

// RecordCreateFailure records a failed gateway create. A rejection is final
// and fails the payment with the provider reason; any other failure leaves it
// pending for the timeout to settle.
func (e *Engine) RecordCreateFailure(ctx context.Context, paymentID string, gwErr error) (Result, error) {
	payload := map[string]interface{}{
		"error": gwErr.Error(),
		"kind":  gateway.KindOf(gwErr),
	}
	sig := signal{source: models.AuditSourceGatewayCreate, payload: payload}

	var ge *gateway.Error
	if errors.As(gwErr, &ge) {
		if len(ge.Raw) > 0 {
			payload["response"] = rawPayload(ge.Raw)
		}
		if ge.Kind == gateway.KindRejected {
			sig.target = models.PaymentStatusFailed
			sig.reason = ge.Message
		}
	}
	return e.apply(ctx, paymentID, sig)
}

// AttachOrder links the payment to its order. If the payment is already
// terminal the order is synced right away.
func (e *Engine) AttachOrder(ctx context.Context, paymentID string, orderRef uint) (*models.Payment, error) {
	unlock, err := e.locker.Lock(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("lock payment %s: %w", paymentID, err)
	}

	var attached bool
	p, err := e.payments.Update(ctx, paymentID, func(p *models.Payment) (bool, error) {
		if p.OrderRef != nil {
			if *p.OrderRef != orderRef {
				return false, fmt.Errorf("%w: %s belongs to order %d", ErrOrderConflict, p.ID, *p.OrderRef)
			}
			return false, nil
		}
		ref := orderRef
		p.OrderRef = &ref
		attached = true
		return true, nil
	})
	unlock()
	if err != nil {
		return nil, e.lookupErr(err, "id "+paymentID)
	}

	if attached && p.Status.IsTerminal() {
		e.syncOrder(ctx, p, failureReason(p))
	}
	return p, nil
}

func (e *Engine) lookupErr(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrPaymentNotFound, what)
	}
	return err
}

func targetFor(status gateway.Status) models.PaymentStatus {
	switch status {
	case gateway.StatusSucceeded:
		return models.PaymentStatusPaid
	case gateway.StatusFailed:
		return models.PaymentStatusFailed
	default:
		return ""
	}
}

// failureReason returns the reason recorded by the signal that settled the
// payment. Signals recorded after that never change it, and "" lets the
// synchronizer fall back to its default text.
func failureReason(p *models.Payment) string {
	if p.Status == models.PaymentStatusPaid {
		return ""
	}
	entry, err := p.TransitionEntry()
	if err != nil || entry == nil {
		return ""
	}
	return entry.Reason
}

// rawPayload keeps JSON bodies structured and everything else as text
func rawPayload(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	if json.Valid(raw) {
		return json.RawMessage(raw)
	}
	return string(raw)
}
