package persistence

import (
	"log/slog"
	"sync"
)

// Hub fans snapshots out to subscribers. Each subscription is drained by its
// own goroutine in the order snapshots were published, so a callback may call
// back into the service that owns the hub without deadlocking.
type Hub struct {
	mu     sync.Mutex
	next   uint64
	subs   map[string]map[uint64]*subscription
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[uint64]*subscription)}
}

// Add registers fn under root and queues initial as its first delivery.
// Callers hold their own state lock while calling Add and Publish so that
// the initial snapshot is ordered correctly with later changes.
func (h *Hub) Add(root string, fn func(Snapshot), initial Snapshot) (func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}

	h.next++
	id := h.next
	sub := newSubscription(root, fn)
	if h.subs[root] == nil {
		h.subs[root] = make(map[uint64]*subscription)
	}
	h.subs[root][id] = sub
	sub.push(initial)
	go sub.run()

	return func() {
		h.mu.Lock()
		if m := h.subs[root]; m != nil {
			delete(m, id)
			if len(m) == 0 {
				delete(h.subs, root)
			}
		}
		h.mu.Unlock()
		sub.stop()
	}, nil
}

// Publish queues snap for every subscriber of snap.Root. It never blocks on
// subscriber callbacks.
func (h *Hub) Publish(snap Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs[snap.Root] {
		sub.push(snap)
	}
}

// Subscribers returns how many subscriptions are registered for root.
func (h *Hub) Subscribers(root string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[root])
}

// Close stops every subscription. Later Add calls fail with ErrClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]map[uint64]*subscription)
	h.closed = true
	h.mu.Unlock()

	for _, m := range subs {
		for _, sub := range m {
			sub.stop()
		}
	}
}

type subscription struct {
	root  string
	fn    func(Snapshot)
	mu    sync.Mutex
	queue []Snapshot
	wake  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func newSubscription(root string, fn func(Snapshot)) *subscription {
	return &subscription{
		root: root,
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (s *subscription) push(snap Snapshot) {
	s.mu.Lock()
	s.queue = append(s.queue, snap)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			snap := s.queue[0]
			s.queue[0] = Snapshot{}
			s.queue = s.queue[1:]
			s.mu.Unlock()

			select {
			case <-s.done:
				return
			default:
			}
			s.deliver(snap)
		}
	}
}

func (s *subscription) deliver(snap Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Subscriber panicked", "root", s.root, "revision", snap.Revision, "panic", r)
		}
	}()
	s.fn(snap)
}
