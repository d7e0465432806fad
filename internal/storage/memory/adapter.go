// Package memory provides a map-backed storage adapter with a change feed.
// It backs tests and examples, and doubles as the reference implementation of
// the Subscriber capability.
package memory

import (
	"context"
	"sync"

	"github.com/goliatone/go-statesync/pkg/interfaces/store"
)

// Adapter stores blobs in process memory and notifies watchers on change.
type Adapter struct {
	mu       sync.RWMutex
	data     map[string]string
	watchers map[string]map[int]func(store.Event)
	nextID   int
}

var (
	_ store.Adapter    = (*Adapter)(nil)
	_ store.Subscriber = (*Adapter)(nil)
)

// New returns an empty in-memory adapter.
func New() *Adapter {
	return &Adapter{
		data:     make(map[string]string),
		watchers: make(map[string]map[int]func(store.Event)),
	}
}

// Get returns the blob stored under key.
func (a *Adapter) Get(ctx context.Context, key string) (string, bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	value, ok := a.data[key]
	return value, ok, nil
}

// Set stores the blob and notifies watchers of the key.
func (a *Adapter) Set(ctx context.Context, key, value string) error {
	a.mu.Lock()
	a.data[key] = value
	listeners := a.listenersFor(key)
	a.mu.Unlock()

	for _, fn := range listeners {
		fn(store.Event{Key: key, Value: &value})
	}
	return nil
}

// Delete removes the key and notifies watchers with a nil value.
func (a *Adapter) Delete(ctx context.Context, key string) error {
	a.mu.Lock()
	delete(a.data, key)
	listeners := a.listenersFor(key)
	a.mu.Unlock()

	for _, fn := range listeners {
		fn(store.Event{Key: key})
	}
	return nil
}

// Subscribe registers a change listener for the key. The returned cancel
// function releases the subscription; it is safe to call more than once.
func (a *Adapter) Subscribe(ctx context.Context, key string, fn func(store.Event)) (func(), error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.watchers[key] == nil {
		a.watchers[key] = make(map[int]func(store.Event))
	}
	id := a.nextID
	a.nextID++
	a.watchers[key][id] = fn

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			a.mu.Lock()
			defer a.mu.Unlock()
			delete(a.watchers[key], id)
		})
	}
	return cancel, nil
}

// listenersFor snapshots the callbacks for a key. Callers must hold the lock.
func (a *Adapter) listenersFor(key string) []func(store.Event) {
	registered := a.watchers[key]
	if len(registered) == 0 {
		return nil
	}
	listeners := make([]func(store.Event), 0, len(registered))
	for _, fn := range registered {
		listeners = append(listeners, fn)
	}
	return listeners
}

// Len reports the number of stored keys.
func (a *Adapter) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.data)
}
