package services

import "sync"

// listenerRegistry tracks subscribed callbacks and dispatches over a
// snapshot, so a listener may unsubscribe itself or its peers from
// within a dispatch without corrupting iteration.
type listenerRegistry[T any] struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]func(T)
}

// add registers a callback and returns its unsubscribe closure.
// Unsubscribing more than once is harmless.
func (r *listenerRegistry[T]) add(fn func(T)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listeners == nil {
		r.listeners = make(map[int]func(T))
	}
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.listeners, id)
	}
}

// dispatch invokes every listener registered at snapshot time
func (r *listenerRegistry[T]) dispatch(value T) {
	r.mu.Lock()
	snapshot := make([]func(T), 0, len(r.listeners))
	for _, fn := range r.listeners {
		snapshot = append(snapshot, fn)
	}
	r.mu.Unlock()

	for _, fn := range snapshot {
		fn(value)
	}
}
