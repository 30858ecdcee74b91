package session

import (
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
)

// Subscription receives session snapshots published by the Store.
//
// C is never closed by the broadcaster, so a publisher racing with
// Unsubscribe cannot panic. Readers select on Done to stop.
type Subscription struct {
	ID string
	C  chan Snapshot

	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Uint64
}

// Done is closed once the subscription has been cancelled.
func (s *Subscription) Done() <-chan struct{} {
	if s == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.done
}

// Dropped returns how many snapshots were discarded because C was full.
func (s *Subscription) Dropped() uint64 {
	if s == nil {
		return 0
	}
	return s.dropped.Load()
}

func (s *Subscription) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Broadcaster fans snapshots out to subscribers.
// Publish never blocks: a full subscriber queue drops the snapshot.
type Broadcaster struct {
	log   *slog.Logger
	queue int

	seq atomic.Uint64

	mu   sync.RWMutex
	subs map[string]*Subscription
}

// NewBroadcaster constructs a Broadcaster with per-subscriber queues of size queue.
func NewBroadcaster(log *slog.Logger, queue int) *Broadcaster {
	if log == nil {
		log = slog.Default()
	}
	if queue <= 0 {
		queue = 16
	}
	return &Broadcaster{
		log:   log,
		queue: queue,
		subs:  make(map[string]*Subscription),
	}
}

// Subscribe registers a new subscriber.
func (b *Broadcaster) Subscribe() *Subscription {
	sub := &Subscription{
		ID:   "sub-" + strconv.FormatUint(b.seq.Add(1), 10),
		C:    make(chan Snapshot, b.queue),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	b.subs[sub.ID] = sub
	n := len(b.subs)
	b.mu.Unlock()

	b.log.Debug("session.subscriber.join", "subscriber_id", sub.ID, "subscribers", n)
	return sub
}

// Unsubscribe removes sub and signals Done (idempotent).
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	if b == nil || sub == nil {
		return
	}

	b.mu.Lock()
	_, ok := b.subs[sub.ID]
	delete(b.subs, sub.ID)
	b.mu.Unlock()

	sub.close()
	if ok {
		b.log.Debug("session.subscriber.leave", "subscriber_id", sub.ID, "dropped", sub.Dropped())
	}
}

// Publish delivers snap to every subscriber without blocking.
func (b *Broadcaster) Publish(snap Snapshot) {
	if b == nil {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		select {
		case <-sub.done:
			continue
		default:
		}

		select {
		case sub.C <- snap.clone():
		default:
			sub.dropped.Add(1)
		}
	}
}

// Len returns the number of active subscribers.
func (b *Broadcaster) Len() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close cancels every subscription.
func (b *Broadcaster) Close() {
	if b == nil {
		return
	}

	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string]*Subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}
