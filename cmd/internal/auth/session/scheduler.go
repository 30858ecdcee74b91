package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"jobmarket/cmd/security/token"
)

// Scheduler runs background revalidation of the active session.
//
// At most one verification is in flight. Triggers arriving while one is in
// flight are dropped, not queued. Each verification captures the session
// epoch when it starts; a result that arrives after the session changed is
// discarded.
type Scheduler struct {
	store    *Store
	verifier Verifier
	interval time.Duration
	metrics  *Metrics
	log      *slog.Logger

	inFlight atomic.Bool
	wg       sync.WaitGroup
}

// NewScheduler constructs a Scheduler. A non-positive interval uses 30s.
func NewScheduler(store *Store, verifier Verifier, interval time.Duration, metrics *Metrics, log *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		store:    store,
		verifier: verifier,
		interval: interval,
		metrics:  metrics,
		log:      log,
	}
}

// InFlight reports whether a verification is running.
func (s *Scheduler) InFlight() bool {
	return s.inFlight.Load()
}

// Trigger starts one verification in the background and returns true, or
// returns false when the trigger is dropped (a check is already in flight,
// or there is no active session).
func (s *Scheduler) Trigger(ctx context.Context) bool {
	if !s.store.Snapshot().Authenticated() {
		s.metrics.triggerDropped()
		return false
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		s.metrics.triggerDropped()
		s.log.Debug("session.revalidate.dropped", "reason", "in_flight")
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.inFlight.Store(false)
		s.verify(ctx)
	}()
	return true
}

// RunOnce runs one verification synchronously. The bool is false when the
// run was dropped, in which case the Result is zero.
func (s *Scheduler) RunOnce(ctx context.Context) (Result, bool) {
	if !s.store.Snapshot().Authenticated() {
		s.metrics.triggerDropped()
		return Result{}, false
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		s.metrics.triggerDropped()
		return Result{}, false
	}
	defer s.inFlight.Store(false)

	return s.verify(ctx), true
}

// Wait blocks until any background verification has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Run fires once immediately when a session exists, then every interval,
// until ctx is cancelled. Each tick also retries a pending record erase.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Debug("session.scheduler.start", "interval", s.interval.String())
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.log.Debug("session.scheduler.stop")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if err := s.store.Reconcile(ctx); err != nil {
		s.log.Warn("session.reconcile.failed", "err", err)
	}
	if s.store.Snapshot().Authenticated() {
		s.Trigger(ctx)
	}
}

// verify performs one verification and feeds the outcome back into the
// store. The caller holds the in-flight gate.
func (s *Scheduler) verify(ctx context.Context) Result {
	snap := s.store.Snapshot()
	if !snap.Authenticated() {
		return Transient("no_session", ErrNoSession)
	}
	epoch := snap.Epoch
	s.store.BeginRevalidation(epoch)

	start := time.Now()
	res := s.verifier.Verify(ctx, snap.Token)
	s.metrics.observeVerification(res.Outcome, time.Since(start))

	attrs := []any{
		"session_id", snap.SessionID,
		"token_fp", token.Fingerprint(snap.Token),
		"outcome", res.Outcome.String(),
	}
	if res.Reason != "" {
		attrs = append(attrs, "reason", res.Reason)
	}

	applied := false
	switch res.Outcome {
	case OutcomeConfirmed:
		if s.store.MergeProfileAt(ctx, epoch, res.Patch) {
			s.store.EndRevalidation(epoch)
			applied = true
			s.log.Debug("session.verify.confirmed", attrs...)
		}

	case OutcomeRejected:
		ok, err := s.store.InvalidateAt(ctx, epoch)
		if ok {
			applied = true
			if err != nil {
				attrs = append(attrs, "err", err)
			}
			s.log.Info("session.verify.rejected", attrs...)
		}

	default:
		// No verdict. The session stays as it was.
		if s.store.EndRevalidation(epoch) {
			applied = true
			if res.Err != nil {
				attrs = append(attrs, "err", res.Err)
			}
			s.log.Debug("session.verify.transient", attrs...)
		}
	}

	if !applied {
		s.metrics.staleResult()
		s.log.Debug("session.verify.stale", attrs...)
	}
	return res
}
