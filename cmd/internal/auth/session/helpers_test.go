package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

var errBackendDown = errors.New("backend down")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// flakyRecordStore is a MemoryRecordStore whose operations can be made to fail.
type flakyRecordStore struct {
	*MemoryRecordStore

	mu       sync.Mutex
	loadErr  error
	saveErr  error
	eraseErr error
	saves    int
	erases   int
}

func newFlakyRecordStore() *flakyRecordStore {
	return &flakyRecordStore{MemoryRecordStore: NewMemoryRecordStore()}
}

func (f *flakyRecordStore) setErrs(load, save, erase error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadErr, f.saveErr, f.eraseErr = load, save, erase
}

func (f *flakyRecordStore) counts() (saves, erases int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves, f.erases
}

func (f *flakyRecordStore) Load(ctx context.Context) (Record, error) {
	f.mu.Lock()
	err := f.loadErr
	f.mu.Unlock()
	if err != nil {
		return Record{}, err
	}
	return f.MemoryRecordStore.Load(ctx)
}

func (f *flakyRecordStore) Save(ctx context.Context, rec Record) error {
	f.mu.Lock()
	f.saves++
	err := f.saveErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.MemoryRecordStore.Save(ctx, rec)
}

func (f *flakyRecordStore) Erase(ctx context.Context) error {
	f.mu.Lock()
	f.erases++
	err := f.eraseErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.MemoryRecordStore.Erase(ctx)
}

// gateVerifier blocks every Verify call until a result is released.
type gateVerifier struct {
	mu      sync.Mutex
	calls   int
	tokens  []string
	started chan struct{}
	release chan Result
}

func newGateVerifier() *gateVerifier {
	return &gateVerifier{
		started: make(chan struct{}, 16),
		release: make(chan Result, 16),
	}
}

func (g *gateVerifier) Verify(ctx context.Context, token string) Result {
	g.mu.Lock()
	g.calls++
	g.tokens = append(g.tokens, token)
	g.mu.Unlock()

	g.started <- struct{}{}
	select {
	case res := <-g.release:
		return res
	case <-ctx.Done():
		return Transient("cancelled", ctx.Err())
	}
}

func (g *gateVerifier) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *gateVerifier) waitStarted(t *testing.T) {
	t.Helper()
	select {
	case <-g.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("verification did not start")
	}
}

// fixedVerifier returns the same result immediately and counts calls.
type fixedVerifier struct {
	mu    sync.Mutex
	res   Result
	calls int
}

func (f *fixedVerifier) Verify(context.Context, string) Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.res
}

func (f *fixedVerifier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func mustRecord(t *testing.T, tok string, p Profile) Record {
	t.Helper()
	enc, err := encodeProfile(p)
	if err != nil {
		t.Fatalf("encodeProfile: %v", err)
	}
	return Record{Token: tok, Profile: enc}
}

// assertConsistent checks the token/profile pairing invariant on a snapshot.
func assertConsistent(t *testing.T, s Snapshot) {
	t.Helper()
	if (s.Token == "") != (s.Profile == nil) {
		t.Fatalf("token and profile out of step: phase=%s token=%q profile=%v", s.Phase, s.Token, s.Profile)
	}
	if s.Phase.Active() && (s.Token == "" || s.Profile == nil) {
		t.Fatalf("active phase %s without token and profile", s.Phase)
	}
}

func strPtr(s string) *string { return &s }

func rolePtr(r Role) *Role { return &r }

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
