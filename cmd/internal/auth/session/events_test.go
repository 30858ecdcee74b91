package session

import (
	"testing"
)

func TestBroadcaster_FanoutAndDrop(t *testing.T) {
	t.Parallel()

	b := NewBroadcaster(discardLogger(), 2)
	fast := b.Subscribe()
	slow := b.Subscribe()

	for i := 1; i <= 3; i++ {
		b.Publish(Snapshot{Phase: PhaseAuthenticated, Epoch: uint64(i)})
		if i < 3 {
			<-fast.C
		}
	}

	// slow never read: two queued, one dropped.
	if got := len(slow.C); got != 2 {
		t.Fatalf("expected 2 queued snapshots, got %d", got)
	}
	if slow.Dropped() != 1 {
		t.Fatalf("expected 1 dropped snapshot, got %d", slow.Dropped())
	}
	if first := <-slow.C; first.Epoch != 1 {
		t.Fatalf("expected oldest snapshot first, got epoch %d", first.Epoch)
	}
}

func TestBroadcaster_UnsubscribeAndClose(t *testing.T) {
	t.Parallel()

	b := NewBroadcaster(discardLogger(), 4)
	a := b.Subscribe()
	c := b.Subscribe()
	if b.Len() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", b.Len())
	}

	b.Unsubscribe(a)
	b.Unsubscribe(a)
	select {
	case <-a.Done():
	default:
		t.Fatalf("Done should be closed after Unsubscribe")
	}

	b.Publish(Snapshot{Phase: PhaseUnauthenticated})
	if len(a.C) != 0 {
		t.Fatalf("unsubscribed subscriber received a snapshot")
	}

	b.Close()
	select {
	case <-c.Done():
	default:
		t.Fatalf("Close should cancel every subscription")
	}
	if b.Len() != 0 {
		t.Fatalf("expected no subscribers after Close")
	}
}

func TestBroadcaster_PublishClonesProfile(t *testing.T) {
	t.Parallel()

	b := NewBroadcaster(discardLogger(), 1)
	sub := b.Subscribe()

	p := &Profile{Role: RoleEmployee, FirstName: "Ada"}
	b.Publish(Snapshot{Phase: PhaseAuthenticated, Token: "t", Profile: p})
	p.FirstName = "changed"

	got := <-sub.C
	if got.Profile.FirstName != "Ada" {
		t.Fatalf("published snapshot shares profile memory with the publisher")
	}
}
