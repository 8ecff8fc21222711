// Package poller queries the gateway for payments that are still pending and
// fires the timeout tick for the ones nobody heard back about.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Govind-619/paysync/gateway"
	"github.com/Govind-619/paysync/models"
	"github.com/Govind-619/paysync/reconcile"
	"github.com/Govind-619/paysync/repository"
	"github.com/Govind-619/paysync/utils"
	"golang.org/x/sync/errgroup"
)

var ErrNoProviderReference = errors.New("payment has no provider reference yet")

// Config controls the poll cadence and budget
type Config struct {
	Interval      time.Duration // between the first FastAttempts polls
	MaxInterval   time.Duration // backoff cap
	FastAttempts  int
	MaxAttempts   int
	BatchSize     int
	Concurrency   int
	SweepInterval time.Duration
}

// DefaultConfig matches the shipped environment defaults
func DefaultConfig() Config {
	return Config{
		Interval:      5 * time.Second,
		MaxInterval:   2 * time.Minute,
		FastAttempts:  6,
		MaxAttempts:   30,
		BatchSize:     50,
		Concurrency:   4,
		SweepInterval: 30 * time.Second,
	}
}

// Engine is the part of reconcile.Engine the scheduler drives
type Engine interface {
	HandlePollResult(ctx context.Context, paymentID string, res reconcile.PollResult) (reconcile.Result, error)
	HandleTimeout(ctx context.Context, paymentID string) (reconcile.Result, error)
	PendingTimeout() time.Duration
}

// Scheduler polls pending payments and sweeps expired ones
type Scheduler struct {
	payments repository.PaymentRepository
	gateway  gateway.Client
	engine   Engine
	cfg      Config
	now      func() time.Time
}

// New creates a Scheduler
func New(payments repository.PaymentRepository, gw gateway.Client, engine Engine, cfg Config) *Scheduler {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxInterval < cfg.Interval {
		cfg.MaxInterval = cfg.Interval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	return &Scheduler{payments: payments, gateway: gw, engine: engine, cfg: cfg, now: time.Now}
}

// SetClock replaces time.Now
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Backoff returns the wait after pollCount attempts: Interval for the first
// FastAttempts polls, then doubling up to MaxInterval
func (c Config) Backoff(pollCount int) time.Duration {
	if pollCount < c.FastAttempts {
		return c.Interval
	}
	d := c.Interval
	for i := c.FastAttempts; i <= pollCount; i++ {
		d *= 2
		if d >= c.MaxInterval {
			return c.MaxInterval
		}
	}
	return d
}

// Due reports whether p should be polled at now
func (c Config) Due(p *models.Payment, now time.Time) bool {
	last := p.CreatedAt
	if p.LastPolledAt != nil {
		last = *p.LastPolledAt
	}
	return !now.Before(last.Add(c.Backoff(p.PollCount)))
}

// Run polls and sweeps until ctx is done
func (s *Scheduler) Run(ctx context.Context) {
	pollTicker := time.NewTicker(s.cfg.Interval)
	defer pollTicker.Stop()
	sweepTicker := time.NewTicker(s.cfg.SweepInterval)
	defer sweepTicker.Stop()

	utils.LogInfo("Poll scheduler started (interval %v, sweep %v)", s.cfg.Interval, s.cfg.SweepInterval)
	for {
		select {
		case <-ctx.Done():
			utils.LogInfo("Poll scheduler stopped")
			return
		case <-pollTicker.C:
			if _, err := s.PollOnce(ctx); err != nil && ctx.Err() == nil {
				utils.LogError("Poll round failed: %v", err)
			}
		case <-sweepTicker.C:
			if _, err := s.SweepTimeouts(ctx); err != nil && ctx.Err() == nil {
				utils.LogError("Timeout sweep failed: %v", err)
			}
		}
	}
}

// PollOnce queries every due candidate once and returns how many were polled
func (s *Scheduler) PollOnce(ctx context.Context) (int, error) {
	now := s.now()
	candidates, err := s.payments.ListPollCandidates(ctx, now.Add(-s.engine.PendingTimeout()), s.cfg.MaxAttempts, s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	polled := make(chan struct{}, len(candidates))
	for i := range candidates {
		p := candidates[i]
		if !s.cfg.Due(&p, now) {
			continue
		}
		g.Go(func() error {
			ok, err := s.poll(gctx, p.ID)
			if err != nil {
				// one payment never stops the round
				utils.LogError("Failed to poll payment %s: %v", p.ID, err)
				return nil
			}
			if ok {
				polled <- struct{}{}
			}
			return nil
		})
	}
	err = g.Wait()
	close(polled)
	return len(polled), err
}

// PollPayment polls one payment right away, ignoring the backoff schedule
func (s *Scheduler) PollPayment(ctx context.Context, paymentID string) (reconcile.Result, error) {
	p, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return reconcile.Result{}, fmt.Errorf("%w: id %s", reconcile.ErrPaymentNotFound, paymentID)
		}
		return reconcile.Result{}, err
	}
	if p.Status.IsTerminal() {
		return reconcile.Result{Outcome: reconcile.AlreadyFinalized, Payment: p}, nil
	}
	if p.ProviderRef() == "" {
		return reconcile.Result{}, ErrNoProviderReference
	}
	return s.query(ctx, p)
}

// poll re-reads the payment so one that turned terminal since listing is skipped
func (s *Scheduler) poll(ctx context.Context, paymentID string) (bool, error) {
	p, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		return false, err
	}
	if p.Status.IsTerminal() || p.PollCount >= s.cfg.MaxAttempts {
		return false, nil
	}
	if s.now().Sub(p.CreatedAt) > s.engine.PendingTimeout() {
		_, err := s.engine.HandleTimeout(ctx, p.ID)
		return false, err
	}
	if _, err := s.query(ctx, p); err != nil {
		return false, err
	}
	return true, nil
}

// query calls the gateway without holding any lock and feeds the answer to the engine
func (s *Scheduler) query(ctx context.Context, p *models.Payment) (reconcile.Result, error) {
	res, err := s.gateway.QueryStatus(ctx, p.ProviderRef())
	if err != nil {
		utils.LogError("Status query for payment %s (%s) failed: %v", p.ID, p.ProviderRef(), err)
	}
	return s.engine.HandlePollResult(ctx, p.ID, ToPollResult(res, err))
}

// ToPollResult turns a gateway answer into an engine signal. Unavailable
// counts as unknown; a rejected or unparsable answer is a failure signal.
func ToPollResult(res *gateway.StatusResult, err error) reconcile.PollResult {
	if err == nil {
		return reconcile.PollResult{Status: res.Status, Message: res.Message, Raw: res.Raw}
	}

	out := reconcile.PollResult{Status: gateway.StatusUnknown, Error: err.Error()}
	var gwErr *gateway.Error
	if !errors.As(err, &gwErr) {
		return out
	}
	out.Raw = gwErr.Raw
	switch gwErr.Kind {
	case gateway.KindRejected:
		out.Status = gateway.StatusFailed
		out.Message = gwErr.Message
	case gateway.KindMalformed:
		out.Status = gateway.StatusFailed
	}
	return out
}

// SweepTimeouts fires the timeout tick for pending payments past the
// threshold and returns how many were failed
func (s *Scheduler) SweepTimeouts(ctx context.Context) (int, error) {
	expired, err := s.payments.ListExpiredPending(ctx, s.now().Add(-s.engine.PendingTimeout()), s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	failed := 0
	for _, p := range expired {
		if ctx.Err() != nil {
			return failed, ctx.Err()
		}
		res, err := s.engine.HandleTimeout(ctx, p.ID)
		if err != nil {
			utils.LogError("Timeout tick for payment %s failed: %v", p.ID, err)
			continue
		}
		if res.Outcome == reconcile.Transitioned {
			utils.LogInfo("Payment %s failed after %v without a terminal signal", p.ID, s.engine.PendingTimeout())
			failed++
		}
	}
	return failed, nil
}
