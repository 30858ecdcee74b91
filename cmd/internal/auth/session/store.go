package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"jobmarket/cmd/identity/ids"
	"jobmarket/cmd/security/token"
)

// Store is the single owner of session state.
//
// Writers serialize on writeMu, which is held across the durable write so the
// record store and memory never disagree about which write came last. Readers
// only take mu, which guards the in-memory swap. Every observable change is
// published to the Broadcaster.
type Store struct {
	records RecordStore
	events  *Broadcaster
	metrics *Metrics
	log     *slog.Logger
	now     func() time.Time

	writeMu       sync.Mutex
	pendingErase  bool // guarded by writeMu
	hydrateFailed bool // guarded by writeMu; Reconcile retries the load

	mu    sync.RWMutex
	state Snapshot
}

// NewStore constructs a Store in PhaseUnauthenticated. events and metrics may be nil.
func NewStore(records RecordStore, events *Broadcaster, metrics *Metrics, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		records: records,
		events:  events,
		metrics: metrics,
		log:     log,
		now:     time.Now,
		state:   Snapshot{Phase: PhaseUnauthenticated},
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// swap replaces the in-memory state and publishes it. Callers hold writeMu.
func (s *Store) swap(next Snapshot) {
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()

	s.metrics.setAuthenticated(next.Authenticated())
	s.events.Publish(next)
}

// Hydrate loads the persisted record. The phase passes through
// PhaseHydrating and ends in PhaseAuthenticated when a well-formed record
// exists, PhaseUnauthenticated otherwise. No network call is made.
//
// A corrupt record is erased on a best-effort basis and is not an error.
// A record store failure leaves the session unauthenticated and is returned;
// Reconcile keeps retrying the load until it succeeds or a login or logout
// supersedes it.
func (s *Store) Hydrate(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.Snapshot()
	s.swap(Snapshot{Phase: PhaseHydrating, Epoch: cur.Epoch})
	return s.hydrateLocked(ctx, cur, false)
}

// hydrateLocked loads the record and settles the phase. On retry a failed
// load leaves the state alone so repeated attempts publish nothing.
func (s *Store) hydrateLocked(ctx context.Context, cur Snapshot, retry bool) error {
	rec, err := s.records.Load(ctx)
	var prof Profile
	if err == nil {
		prof, err = decodeProfile(rec.Profile)
	}

	s.hydrateFailed = false
	switch {
	case err == nil:
		next := Snapshot{
			Phase:     PhaseAuthenticated,
			Token:     rec.Token,
			Profile:   &prof,
			Epoch:     cur.Epoch + 1,
			SessionID: ids.MustULID(s.now()),
		}
		s.swap(next)
		s.log.Info("session.hydrate.ok",
			"session_id", next.SessionID,
			"role", string(prof.Role),
			"token_fp", token.Fingerprint(rec.Token),
		)
		return nil

	case errors.Is(err, ErrNoRecord):
		if !retry {
			s.swap(Snapshot{Phase: PhaseUnauthenticated, Epoch: cur.Epoch})
		}
		s.log.Debug("session.hydrate.empty")
		return nil

	case errors.Is(err, ErrCorruptRecord):
		s.log.Warn("session.hydrate.corrupt")
		if eraseErr := s.records.Erase(ctx); eraseErr != nil {
			s.pendingErase = true
			s.log.Warn("session.erase.failed", "op", "hydrate", "err", eraseErr)
		}
		s.swap(Snapshot{Phase: PhaseUnauthenticated, Epoch: cur.Epoch + 1})
		return nil

	default:
		s.hydrateFailed = true
		if retry {
			s.log.Debug("session.hydrate.retry_failed", "err", err)
		} else {
			s.swap(Snapshot{Phase: PhaseUnauthenticated, Epoch: cur.Epoch})
			s.log.Error("session.hydrate.failed", "err", err)
		}
		return fmt.Errorf("hydrate: %w", err)
	}
}

// Commit persists token and profile, then makes them the active session.
// If the durable write fails the in-memory state is left untouched.
func (s *Store) Commit(ctx context.Context, tok string, profile Profile) error {
	if strings.TrimSpace(tok) == "" || !profile.Role.Valid() {
		return ErrInvalidLogin
	}

	enc, err := encodeProfile(profile)
	if err != nil {
		return persistenceError("encode", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.records.Save(ctx, Record{Token: tok, Profile: enc}); err != nil {
		s.log.Error("session.commit.failed", "err", err)
		return persistenceError("save", err)
	}
	s.pendingErase = false
	s.hydrateFailed = false

	cur := s.Snapshot()
	next := Snapshot{
		Phase:     PhaseAuthenticated,
		Token:     tok,
		Profile:   &profile,
		Epoch:     cur.Epoch + 1,
		SessionID: ids.MustULID(s.now()),
	}
	s.swap(next)

	s.log.Info("session.commit.ok",
		"session_id", next.SessionID,
		"role", string(profile.Role),
		"token_fp", token.Fingerprint(tok),
	)
	return nil
}

// MergeProfile shallow-merges patch into the active profile and returns the
// result. Without a session it returns ErrNoSession and changes nothing.
// An empty or no-op patch writes nothing and publishes nothing.
func (s *Store) MergeProfile(ctx context.Context, patch ProfilePatch) (Profile, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.Snapshot()
	if !cur.Authenticated() {
		return Profile{}, ErrNoSession
	}
	return s.mergeLocked(ctx, cur, patch), nil
}

// MergeProfileAt is MergeProfile guarded by epoch. It returns false, and does
// nothing, when the session has changed since epoch was observed.
func (s *Store) MergeProfileAt(ctx context.Context, epoch uint64, patch ProfilePatch) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.Snapshot()
	if cur.Epoch != epoch || !cur.Authenticated() {
		return false
	}
	s.mergeLocked(ctx, cur, patch)
	return true
}

func (s *Store) mergeLocked(ctx context.Context, cur Snapshot, patch ProfilePatch) Profile {
	merged := cur.Profile.Merge(patch)
	if patch.IsEmpty() || merged == *cur.Profile {
		return merged
	}

	// Mirror the merge so the next hydration sees it. The in-memory merge
	// stands even if the write fails.
	if enc, err := encodeProfile(merged); err != nil {
		s.log.Warn("session.profile.mirror_failed", "session_id", cur.SessionID, "err", err)
	} else if err := s.records.Save(ctx, Record{Token: cur.Token, Profile: enc}); err != nil {
		s.log.Warn("session.profile.mirror_failed", "session_id", cur.SessionID, "err", err)
	}

	next := cur
	next.Profile = &merged
	s.swap(next)

	s.log.Debug("session.profile.merged", "session_id", cur.SessionID)
	return merged
}

// Clear erases the record and the in-memory session (idempotent).
//
// Memory is cleared even when the erase fails; the erase is then retried by
// Reconcile and ErrPersistence is returned.
func (s *Store) Clear(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.clearLocked(ctx, PhaseUnauthenticated)
}

// Invalidate is Clear after an authoritative rejection. The resulting phase
// is PhaseInvalidated.
func (s *Store) Invalidate(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.clearLocked(ctx, PhaseInvalidated)
}

// InvalidateAt is Invalidate guarded by epoch. The bool reports whether the
// epoch was still current.
func (s *Store) InvalidateAt(ctx context.Context, epoch uint64) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.Snapshot()
	if cur.Epoch != epoch || !cur.Phase.Active() {
		return false, nil
	}
	return true, s.clearLocked(ctx, PhaseInvalidated)
}

func (s *Store) clearLocked(ctx context.Context, phase Phase) error {
	eraseErr := s.records.Erase(ctx)
	s.pendingErase = eraseErr != nil
	s.hydrateFailed = false

	cur := s.Snapshot()
	if cur.Phase != phase || cur.Token != "" || cur.Profile != nil {
		s.swap(Snapshot{Phase: phase, Epoch: cur.Epoch + 1})
		s.log.Info("session.cleared", "session_id", cur.SessionID, "phase", phase.String())
	}

	if eraseErr != nil {
		s.log.Warn("session.erase.failed", "op", "clear", "err", eraseErr)
		return persistenceError("erase", eraseErr)
	}
	return nil
}

// Reconcile retries an erase that failed during Clear or Invalidate, and a
// hydration whose load failed. It is a no-op when nothing is pending.
func (s *Store) Reconcile(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.hydrateFailed {
		cur := s.Snapshot()
		if cur.Phase != PhaseUnauthenticated {
			s.hydrateFailed = false
			return nil
		}
		return s.hydrateLocked(ctx, cur, true)
	}
	if !s.pendingErase {
		return nil
	}
	if s.Snapshot().Phase.Active() {
		// A later commit already replaced the record.
		s.pendingErase = false
		return nil
	}

	if err := s.records.Erase(ctx); err != nil {
		return persistenceError("erase", err)
	}
	s.pendingErase = false
	s.log.Info("session.erase.reconciled")
	return nil
}

// HydratePending reports whether a failed hydration is waiting for Reconcile.
func (s *Store) HydratePending() bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.hydrateFailed
}

// PendingErase reports whether a failed erase is waiting for Reconcile.
func (s *Store) PendingErase() bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.pendingErase
}

// BeginRevalidation moves an authenticated session at epoch into PhaseRevalidating.
func (s *Store) BeginRevalidation(epoch uint64) bool {
	return s.transitionAt(epoch, PhaseAuthenticated, PhaseRevalidating)
}

// EndRevalidation returns a revalidating session at epoch to PhaseAuthenticated.
func (s *Store) EndRevalidation(epoch uint64) bool {
	return s.transitionAt(epoch, PhaseRevalidating, PhaseAuthenticated)
}

func (s *Store) transitionAt(epoch uint64, from, to Phase) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.Snapshot()
	if cur.Epoch != epoch || cur.Phase != from {
		return false
	}
	next := cur
	next.Phase = to
	s.swap(next)
	return true
}
