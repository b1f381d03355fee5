package state

import "sync"

// Store holds a single value and notifies subscribers on every change.
//
// Delivery is serialised: each Set is delivered to every subscriber before
// the next Set starts, so subscribers observe the complete, strictly ordered
// sequence of values. Subscriber callbacks run on the goroutine calling Set
// and must not call Set or Subscribe on the same store.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Store[T any] struct {
	// publishMu serialises publication so deliveries never interleave.
	publishMu sync.Mutex

	mu     sync.RWMutex
	value  T
	subs   map[uint64]func(T)
	order  []uint64
	nextID uint64
}

// New creates a store holding initial.
func New[T any](initial T) *Store[T] {
	return &Store[T]{
		value: initial,
		subs:  make(map[uint64]func(T)),
	}
}

// Get returns the current value. Safe to call from a subscriber callback.
func (s *Store[T]) Get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Set replaces the value and delivers it to every subscriber in
// subscription order.
func (s *Store[T]) Set(v T) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.mu.Lock()
	s.value = v
	callbacks := s.snapshotLocked()
	s.mu.Unlock()

	for _, fn := range callbacks {
		fn(v)
	}
}

// Subscribe registers fn and immediately calls it with the current value.
// The returned function removes the subscription; calling it more than
// once is a no-op.
func (s *Store[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.order = append(s.order, id)
	current := s.value
	s.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			for i, sid := range s.order {
				if sid == id {
					s.order = append(s.order[:i], s.order[i+1:]...)
					break
				}
			}
		})
	}
}

// SubscriberCount returns the number of active subscriptions.
func (s *Store[T]) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// snapshotLocked copies the callback list in subscription order.
// Caller must hold s.mu.
func (s *Store[T]) snapshotLocked() []func(T) {
	callbacks := make([]func(T), 0, len(s.order))
	for _, id := range s.order {
		callbacks = append(callbacks, s.subs[id])
	}
	return callbacks
}
