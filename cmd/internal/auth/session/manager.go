package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
)

// Manager is the session façade handed to the rest of the application.
// Construct one at boot and pass it down; it lives for the process lifetime.
type Manager struct {
	log       *slog.Logger
	records   RecordStore
	store     *Store
	events    *Broadcaster
	scheduler *Scheduler

	loading atomic.Bool

	startOnce sync.Once
	closeOnce sync.Once

	runCtx    context.Context
	runCancel context.CancelFunc
	runDone   chan struct{}
}

// NewManager wires a Store, Broadcaster and Scheduler around records and
// verifier. metrics may be nil. The Manager owns records and closes it on Close.
func NewManager(cfg Config, records RecordStore, verifier Verifier, metrics *Metrics, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}

	events := NewBroadcaster(log, cfg.SubscriberQueue)
	store := NewStore(records, events, metrics, log)
	runCtx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		log:       log,
		records:   records,
		store:     store,
		events:    events,
		scheduler: NewScheduler(store, verifier, cfg.RevalidateInterval, metrics, log),
		runCtx:    runCtx,
		runCancel: cancel,
		runDone:   make(chan struct{}),
	}
	m.loading.Store(true)
	return m
}

// Start hydrates the session from the record store and launches background
// revalidation. Only the first call has an effect.
//
// A hydration error is returned for logging; the Manager is still usable and
// the session is unauthenticated.
func (m *Manager) Start(ctx context.Context) error {
	var err error
	m.startOnce.Do(func() {
		err = m.store.Hydrate(ctx)
		m.loading.Store(false)

		go func() {
			defer close(m.runDone)
			m.scheduler.Run(m.runCtx)
		}()
	})
	return err
}

// Loading is true from construction until hydration finishes.
func (m *Manager) Loading() bool {
	return m.loading.Load()
}

// Login persists token and profile and makes them the active session.
// An empty token or an unknown role is ErrInvalidLogin.
func (m *Manager) Login(ctx context.Context, tok string, profile Profile) error {
	if strings.TrimSpace(tok) == "" {
		return ErrInvalidLogin
	}
	role, ok := ParseRole(string(profile.Role))
	if !ok {
		return ErrInvalidLogin
	}
	profile.Role = role

	return m.store.Commit(ctx, tok, profile)
}

// Logout clears the session. An in-flight verification is not cancelled;
// its result is discarded.
//
// ErrPersistence means memory is cleared but the record could not be erased:
// the logout is not durable until Reconcile succeeds, and a restart before
// then hydrates the old session again.
func (m *Manager) Logout(ctx context.Context) error {
	return m.store.Clear(ctx)
}

// UpdateProfile merges patch into the active profile.
func (m *Manager) UpdateProfile(ctx context.Context, patch ProfilePatch) (Profile, error) {
	return m.store.MergeProfile(ctx, patch)
}

func (m *Manager) IsAuthenticated() bool {
	return m.store.Snapshot().Authenticated()
}

// CurrentProfile returns the active profile, if any.
func (m *Manager) CurrentProfile() (Profile, bool) {
	snap := m.store.Snapshot()
	if !snap.Authenticated() {
		return Profile{}, false
	}
	return *snap.Profile, true
}

func (m *Manager) CanAccess(c Capability) bool {
	return CanAccess(m.store.Snapshot(), c)
}

func (m *Manager) Snapshot() Snapshot {
	return m.store.Snapshot()
}

// Revalidate asks for an immediate verification. It returns false when the
// request was dropped.
func (m *Manager) Revalidate() bool {
	return m.scheduler.Trigger(m.runCtx)
}

// Subscribe registers for session snapshots. Call Unsubscribe when done.
func (m *Manager) Subscribe() *Subscription {
	return m.events.Subscribe()
}

func (m *Manager) Unsubscribe(sub *Subscription) {
	m.events.Unsubscribe(sub)
}

// Store exposes the underlying Store.
func (m *Manager) Store() *Store { return m.store }

// Scheduler exposes the underlying Scheduler.
func (m *Manager) Scheduler() *Scheduler { return m.scheduler }

// Close stops background revalidation, waits for it, cancels subscriptions
// and closes the record store.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.runCancel()

		// Consuming startOnce here also keeps a late Start from launching the loop.
		started := true
		m.startOnce.Do(func() { started = false })
		if started {
			<-m.runDone
		}
		m.scheduler.Wait()
		m.events.Close()

		if err = m.records.Close(); err != nil {
			m.log.Warn("session.records.close_failed", "err", err)
		}
	})
	return err
}
