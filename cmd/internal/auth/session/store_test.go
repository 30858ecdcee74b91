package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestStore(t *testing.T, records RecordStore) (*Store, *Broadcaster) {
	t.Helper()
	events := NewBroadcaster(discardLogger(), 32)
	return NewStore(records, events, nil, discardLogger()), events
}

func TestStore_HydrateEmpty(t *testing.T) {
	t.Parallel()

	st, _ := newTestStore(t, NewMemoryRecordStore())
	if err := st.Hydrate(context.Background()); err != nil {
		t.Fatalf("Hydrate: %v", err)
	}

	snap := st.Snapshot()
	if snap.Phase != PhaseUnauthenticated {
		t.Fatalf("expected unauthenticated, got %s", snap.Phase)
	}
	assertConsistent(t, snap)
}

func TestStore_HydratePassesThroughHydrating(t *testing.T) {
	t.Parallel()

	st, events := newTestStore(t, NewMemoryRecordStoreWith(mustRecord(t, "abc", Profile{Role: RoleEmployee})))
	sub := events.Subscribe()

	if err := st.Hydrate(context.Background()); err != nil {
		t.Fatalf("Hydrate: %v", err)
	}

	first := <-sub.C
	if first.Phase != PhaseHydrating {
		t.Fatalf("expected first event hydrating, got %s", first.Phase)
	}
	second := <-sub.C
	if second.Phase != PhaseAuthenticated {
		t.Fatalf("expected second event authenticated, got %s", second.Phase)
	}
}

func TestStore_HydrateRecord(t *testing.T) {
	t.Parallel()

	prof := Profile{SubjectID: "u1", Role: RoleEmployee, FirstName: "Ada"}
	st, _ := newTestStore(t, NewMemoryRecordStoreWith(mustRecord(t, "abc", prof)))

	if err := st.Hydrate(context.Background()); err != nil {
		t.Fatalf("Hydrate: %v", err)
	}

	snap := st.Snapshot()
	if snap.Phase != PhaseAuthenticated || snap.Token != "abc" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.Profile == nil || *snap.Profile != prof {
		t.Fatalf("unexpected profile: %+v", snap.Profile)
	}
	if snap.SessionID == "" || snap.Epoch == 0 {
		t.Fatalf("expected session id and epoch, got %q %d", snap.SessionID, snap.Epoch)
	}
	assertConsistent(t, snap)
}

func TestStore_HydrateCorrupt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rec  Record
	}{
		{"token only", Record{Token: "abc"}},
		{"profile only", Record{Profile: `{"role":"employee"}`}},
		{"unparsable profile", Record{Token: "abc", Profile: "{not json"}},
		{"unknown role", Record{Token: "abc", Profile: `{"role":"superuser"}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			records := newFlakyRecordStore()
			_ = records.MemoryRecordStore.Save(context.Background(), tt.rec)
			st, _ := newTestStore(t, records)

			if err := st.Hydrate(context.Background()); err != nil {
				t.Fatalf("Hydrate: %v", err)
			}
			snap := st.Snapshot()
			if snap.Phase != PhaseUnauthenticated {
				t.Fatalf("expected unauthenticated, got %s", snap.Phase)
			}
			assertConsistent(t, snap)

			if _, erases := records.counts(); erases != 1 {
				t.Fatalf("expected corrupt record to be erased once, got %d", erases)
			}
			if _, err := records.Load(context.Background()); !errors.Is(err, ErrNoRecord) {
				t.Fatalf("expected record gone, got %v", err)
			}
		})
	}
}

func TestStore_HydrateLoadFailure(t *testing.T) {
	t.Parallel()

	records := newFlakyRecordStore()
	records.setErrs(errBackendDown, nil, nil)
	st, _ := newTestStore(t, records)

	err := st.Hydrate(context.Background())
	if !errors.Is(err, errBackendDown) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if st.Snapshot().Phase != PhaseUnauthenticated {
		t.Fatalf("expected unauthenticated after load failure")
	}
	if _, erases := records.counts(); erases != 0 {
		t.Fatalf("load failure must not erase the record")
	}
}

func TestStore_ReconcileRetriesFailedHydrate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	records := newFlakyRecordStore()
	_ = records.MemoryRecordStore.Save(ctx, mustRecord(t, "abc", Profile{SubjectID: "u-1", Role: RoleEmployee}))
	records.setErrs(errBackendDown, nil, nil)
	st, events := newTestStore(t, records)

	if err := st.Hydrate(ctx); !errors.Is(err, errBackendDown) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if !st.HydratePending() {
		t.Fatalf("failed hydrate should be pending")
	}
	before := st.Snapshot()

	sub := events.Subscribe()
	defer events.Unsubscribe(sub)

	if err := st.Reconcile(ctx); !errors.Is(err, errBackendDown) {
		t.Fatalf("expected retry to fail while the store is down, got %v", err)
	}
	if got := st.Snapshot(); got.Phase != PhaseUnauthenticated || got.Epoch != before.Epoch {
		t.Fatalf("failed retry changed state: %+v", got)
	}
	select {
	case snap := <-sub.C:
		t.Fatalf("failed retry published %+v", snap)
	default:
	}

	records.setErrs(nil, nil, nil)
	if err := st.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	got := st.Snapshot()
	if !got.Authenticated() || got.Token != "abc" || got.Profile.SubjectID != "u-1" {
		t.Fatalf("session not restored: %+v", got)
	}
	if st.HydratePending() {
		t.Fatalf("hydrate still pending after success")
	}
}

func TestStore_LoginSupersedesFailedHydrate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	records := newFlakyRecordStore()
	_ = records.MemoryRecordStore.Save(ctx, mustRecord(t, "old", Profile{Role: RoleEmployee}))
	records.setErrs(errBackendDown, nil, nil)
	st, _ := newTestStore(t, records)
	_ = st.Hydrate(ctx)

	records.setErrs(nil, nil, nil)
	if err := st.Commit(ctx, "new", Profile{Role: RoleEmployer}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if st.HydratePending() {
		t.Fatalf("commit should cancel the hydrate retry")
	}
	if err := st.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got := st.Snapshot(); got.Token != "new" || got.Profile.Role != RoleEmployer {
		t.Fatalf("reconcile replaced the newer login: %+v", got)
	}
}

func TestStore_CommitPersistsThenFlips(t *testing.T) {
	t.Parallel()

	records := NewMemoryRecordStore()
	st, _ := newTestStore(t, records)
	prof := Profile{Role: RoleEmployer, DisplayName: "Acme"}

	if err := st.Commit(context.Background(), "xyz", prof); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	snap := st.Snapshot()
	if snap.Phase != PhaseAuthenticated || snap.Token != "xyz" || snap.Epoch != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	rec, err := records.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got, err := decodeProfile(rec.Profile)
	if err != nil || rec.Token != "xyz" || got != prof {
		t.Fatalf("unexpected persisted record: %+v (%v)", rec, err)
	}
}

func TestStore_CommitFailureLeavesStateUntouched(t *testing.T) {
	t.Parallel()

	records := newFlakyRecordStore()
	st, _ := newTestStore(t, records)
	if err := st.Commit(context.Background(), "first", Profile{Role: RoleEmployee}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	before := st.Snapshot()

	records.setErrs(nil, errBackendDown, nil)
	err := st.Commit(context.Background(), "second", Profile{Role: RoleAdmin})
	if !errors.Is(err, ErrPersistence) || !errors.Is(err, errBackendDown) {
		t.Fatalf("expected ErrPersistence wrapping backend error, got %v", err)
	}

	after := st.Snapshot()
	if after.Token != before.Token || after.Epoch != before.Epoch || after.Profile.Role != RoleEmployee {
		t.Fatalf("state changed after failed commit: before=%+v after=%+v", before, after)
	}
}

func TestStore_CommitRejectsInvalid(t *testing.T) {
	t.Parallel()

	st, _ := newTestStore(t, NewMemoryRecordStore())
	if err := st.Commit(context.Background(), "", Profile{Role: RoleEmployee}); !errors.Is(err, ErrInvalidLogin) {
		t.Fatalf("expected ErrInvalidLogin for empty token, got %v", err)
	}
	if err := st.Commit(context.Background(), "abc", Profile{Role: "owner"}); !errors.Is(err, ErrInvalidLogin) {
		t.Fatalf("expected ErrInvalidLogin for unknown role, got %v", err)
	}
}

func TestStore_MergeProfile(t *testing.T) {
	t.Parallel()

	records := newFlakyRecordStore()
	st, events := newTestStore(t, records)

	if _, err := st.MergeProfile(context.Background(), ProfilePatch{FirstName: strPtr("x")}); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession without a session, got %v", err)
	}

	if err := st.Commit(context.Background(), "abc", Profile{Role: RoleEmployee, FirstName: "Ada"}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	epoch := st.Snapshot().Epoch
	savesBefore, _ := records.counts()
	sub := events.Subscribe()

	// An empty patch writes nothing and publishes nothing.
	if _, err := st.MergeProfile(context.Background(), ProfilePatch{}); err != nil {
		t.Fatalf("MergeProfile(empty): %v", err)
	}
	if saves, _ := records.counts(); saves != savesBefore {
		t.Fatalf("empty patch must not write")
	}
	select {
	case snap := <-sub.C:
		t.Fatalf("empty patch must not publish, got %+v", snap)
	default:
	}

	merged, err := st.MergeProfile(context.Background(), ProfilePatch{LastName: strPtr("Lovelace")})
	if err != nil {
		t.Fatalf("MergeProfile: %v", err)
	}
	if merged.FirstName != "Ada" || merged.LastName != "Lovelace" || merged.Role != RoleEmployee {
		t.Fatalf("unexpected merged profile: %+v", merged)
	}
	if st.Snapshot().Epoch != epoch {
		t.Fatalf("profile merge must not bump epoch")
	}

	rec, err := records.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	persisted, _ := decodeProfile(rec.Profile)
	if persisted.LastName != "Lovelace" {
		t.Fatalf("merge not mirrored to record store: %+v", persisted)
	}
}

func TestStore_MergeProfileMirrorFailureKeepsMemory(t *testing.T) {
	t.Parallel()

	records := newFlakyRecordStore()
	st, _ := newTestStore(t, records)
	if err := st.Commit(context.Background(), "abc", Profile{Role: RoleEmployee}); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	records.setErrs(nil, errBackendDown, nil)
	merged, err := st.MergeProfile(context.Background(), ProfilePatch{DisplayName: strPtr("ada")})
	if err != nil {
		t.Fatalf("MergeProfile: %v", err)
	}
	if merged.DisplayName != "ada" || st.Snapshot().Profile.DisplayName != "ada" {
		t.Fatalf("in-memory merge should stand after mirror failure")
	}
}

func TestStore_MergeIgnoresUnknownRole(t *testing.T) {
	t.Parallel()

	st, _ := newTestStore(t, NewMemoryRecordStore())
	if err := st.Commit(context.Background(), "abc", Profile{Role: RoleEmployee}); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	merged, err := st.MergeProfile(context.Background(), ProfilePatch{Role: rolePtr("root")})
	if err != nil {
		t.Fatalf("MergeProfile: %v", err)
	}
	if merged.Role != RoleEmployee {
		t.Fatalf("unknown role must not be merged, got %q", merged.Role)
	}
}

func TestStore_ClearIsIdempotent(t *testing.T) {
	t.Parallel()

	records := NewMemoryRecordStore()
	st, _ := newTestStore(t, records)
	if err := st.Commit(context.Background(), "abc", Profile{Role: RoleEmployee}); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := st.Clear(context.Background()); err != nil {
			t.Fatalf("Clear #%d: %v", i+1, err)
		}
		snap := st.Snapshot()
		if snap.Phase != PhaseUnauthenticated {
			t.Fatalf("expected unauthenticated, got %s", snap.Phase)
		}
		assertConsistent(t, snap)
	}

	if _, err := records.Load(context.Background()); !errors.Is(err, ErrNoRecord) {
		t.Fatalf("expected record erased, got %v", err)
	}
}

func TestStore_ClearEraseFailureThenReconcile(t *testing.T) {
	t.Parallel()

	records := newFlakyRecordStore()
	st, _ := newTestStore(t, records)
	if err := st.Commit(context.Background(), "abc", Profile{Role: RoleEmployee}); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	records.setErrs(nil, nil, errBackendDown)
	err := st.Clear(context.Background())
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if st.Snapshot().Phase != PhaseUnauthenticated {
		t.Fatalf("memory must be cleared even when erase fails")
	}
	if !st.PendingErase() {
		t.Fatalf("expected pending erase")
	}

	if err := st.Reconcile(context.Background()); !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected reconcile to fail while backend is down, got %v", err)
	}

	records.setErrs(nil, nil, nil)
	if err := st.Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if st.PendingErase() {
		t.Fatalf("pending erase should be cleared after reconcile")
	}
	if _, err := records.Load(context.Background()); !errors.Is(err, ErrNoRecord) {
		t.Fatalf("expected record erased after reconcile, got %v", err)
	}
}

func TestStore_InvalidateAndEpochGuards(t *testing.T) {
	t.Parallel()

	st, _ := newTestStore(t, NewMemoryRecordStore())
	if err := st.Commit(context.Background(), "abc", Profile{Role: RoleBoth}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	stale := st.Snapshot().Epoch

	if err := st.Commit(context.Background(), "def", Profile{Role: RoleBoth}); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if ok, err := st.InvalidateAt(context.Background(), stale); ok || err != nil {
		t.Fatalf("InvalidateAt(stale) = %v, %v; want false, nil", ok, err)
	}
	if st.MergeProfileAt(context.Background(), stale, ProfilePatch{FirstName: strPtr("x")}) {
		t.Fatalf("MergeProfileAt(stale) should be rejected")
	}
	if st.BeginRevalidation(stale) {
		t.Fatalf("BeginRevalidation(stale) should be rejected")
	}

	cur := st.Snapshot().Epoch
	if !st.BeginRevalidation(cur) {
		t.Fatalf("BeginRevalidation(current) should succeed")
	}
	if st.Snapshot().Phase != PhaseRevalidating {
		t.Fatalf("expected revalidating")
	}
	if !CanAccess(st.Snapshot(), CapEmployeeArea) {
		t.Fatalf("revalidating session must keep access")
	}

	ok, err := st.InvalidateAt(context.Background(), cur)
	if !ok || err != nil {
		t.Fatalf("InvalidateAt(current) = %v, %v", ok, err)
	}
	snap := st.Snapshot()
	if snap.Phase != PhaseInvalidated || CanAccess(snap, CapEmployeeArea) {
		t.Fatalf("expected invalidated without access, got %+v", snap)
	}
	assertConsistent(t, snap)
}

func TestStore_EpochBumpsOnCommitAndClearOnly(t *testing.T) {
	t.Parallel()

	st, _ := newTestStore(t, NewMemoryRecordStore())
	ctx := context.Background()

	_ = st.Commit(ctx, "a", Profile{Role: RoleEmployee})
	e1 := st.Snapshot().Epoch
	_, _ = st.MergeProfile(ctx, ProfilePatch{FirstName: strPtr("n")})
	if st.Snapshot().Epoch != e1 {
		t.Fatalf("merge bumped epoch")
	}
	_ = st.Clear(ctx)
	e2 := st.Snapshot().Epoch
	if e2 <= e1 {
		t.Fatalf("clear did not bump epoch: %d -> %d", e1, e2)
	}
	_ = st.Commit(ctx, "b", Profile{Role: RoleEmployee})
	if st.Snapshot().Epoch <= e2 {
		t.Fatalf("commit did not bump epoch")
	}
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	t.Parallel()

	st, _ := newTestStore(t, NewMemoryRecordStore())
	_ = st.Commit(context.Background(), "a", Profile{Role: RoleEmployee, FirstName: "Ada"})

	snap := st.Snapshot()
	snap.Profile.FirstName = "Mallory"

	if st.Snapshot().Profile.FirstName != "Ada" {
		t.Fatalf("mutating a snapshot leaked into the store")
	}
}

func TestStore_SessionIDChangesPerCommit(t *testing.T) {
	t.Parallel()

	st, _ := newTestStore(t, NewMemoryRecordStore())
	st.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	_ = st.Commit(context.Background(), "a", Profile{Role: RoleEmployee})
	first := st.Snapshot().SessionID
	_ = st.Commit(context.Background(), "b", Profile{Role: RoleEmployee})
	second := st.Snapshot().SessionID

	if first == "" || second == "" || first == second {
		t.Fatalf("expected distinct session ids, got %q and %q", first, second)
	}
}
