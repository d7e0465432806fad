package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by adapters that cannot express absence through the
// Get ok flag (e.g. row-backed stores translating driver errors).
var ErrNotFound = errors.New("store: not found")

// Adapter is the minimal storage capability: read, write, and delete a named
// blob. Every transform layer both consumes and implements this contract, so
// higher layers are built by wrapping one Adapter with another of the same
// shape. The interface itself guarantees no ordering between concurrent calls
// on the same key; callers serialize access when they need ordering.
type Adapter interface {
	// Get returns the blob stored under key. The second return reports
	// presence: absent keys yield ("", false, nil), not an error.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores the blob under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// Event describes a remote change: Value is nil when the key was deleted.
type Event struct {
	Key   string
	Value *string
}

// Subscriber is the optional real-time capability of a remote store: it
// delivers an Event each time the watched key changes remotely. The returned
// cancel function releases the subscription.
type Subscriber interface {
	Subscribe(ctx context.Context, key string, fn func(Event)) (cancel func(), err error)
}

// Nop adapter stores nothing: reads miss, writes and deletes succeed.
type Nop struct{}

var _ Adapter = (*Nop)(nil)

func (n *Nop) Get(ctx context.Context, key string) (string, bool, error) { return "", false, nil }
func (n *Nop) Set(ctx context.Context, key, value string) error          { return nil }
func (n *Nop) Delete(ctx context.Context, key string) error              { return nil }
