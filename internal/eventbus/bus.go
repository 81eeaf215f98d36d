// Package eventbus delivers named events to registered listeners.
//
// Emit calls listeners synchronously on the emitting goroutine in the order
// they were registered. Listeners may add or remove subscriptions while an
// event is being delivered; the change applies from the next Emit.
package eventbus

import "sync"

type listener[T any] struct {
	id int
	fn func(T)
}

// Bus delivers events of payload type T keyed by name.
type Bus[T any] struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[string][]listener[T]
}

// New creates an empty bus.
func New[T any]() *Bus[T] {
	return &Bus[T]{listeners: make(map[string][]listener[T])}
}

// Subscription removes a listener from its bus.
type Subscription struct {
	once   sync.Once
	remove func()
}

// Remove unregisters the listener. Calling it more than once is a no-op.
func (s *Subscription) Remove() {
	if s == nil || s.remove == nil {
		return
	}
	s.once.Do(s.remove)
}

// On registers fn for events named name.
func (b *Bus[T]) On(name string, fn func(T)) *Subscription {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.listeners[name] = append(b.listeners[name], listener[T]{id: id, fn: fn})
	b.mu.Unlock()

	return &Subscription{remove: func() { b.off(name, id) }}
}

func (b *Bus[T]) off(name string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ls := b.listeners[name]
	for i, l := range ls {
		if l.id != id {
			continue
		}
		kept := make([]listener[T], 0, len(ls)-1)
		kept = append(kept, ls[:i]...)
		kept = append(kept, ls[i+1:]...)
		if len(kept) == 0 {
			delete(b.listeners, name)
		} else {
			b.listeners[name] = kept
		}
		return
	}
}

// HasListeners reports whether any listener is registered for name.
func (b *Bus[T]) HasListeners(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[name]) > 0
}

// Emit delivers data to every listener registered for name.
func (b *Bus[T]) Emit(name string, data T) {
	b.mu.RLock()
	ls := b.listeners[name]
	b.mu.RUnlock()

	for _, l := range ls {
		l.fn(data)
	}
}
