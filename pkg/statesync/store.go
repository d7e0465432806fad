package statesync

import (
	"context"
	"errors"
	"strings"

	"github.com/goliatone/go-statesync/pkg/domain"
	"github.com/goliatone/go-statesync/pkg/interfaces/logger"
	"github.com/goliatone/go-statesync/pkg/interfaces/store"
)

// Store persists one application state document under a fixed key, pushing it
// through whatever layer chain the adapter was built with.
type Store struct {
	key     string
	adapter store.Adapter
	logger  logger.Logger
}

// NewStore builds a Store bound to key on top of adapter.
func NewStore(key string, adapter store.Adapter, lgr logger.Logger) (*Store, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("statesync: store key is required")
	}
	if adapter == nil {
		return nil, errors.New("statesync: storage adapter is required")
	}
	if lgr == nil {
		lgr = &logger.Nop{}
	}
	return &Store{key: key, adapter: adapter, logger: lgr}, nil
}

// Key returns the storage key this store writes under.
func (s *Store) Key() string {
	return s.key
}

// Save serializes doc and writes it through the layer chain.
func (s *Store) Save(ctx context.Context, doc domain.Document) error {
	blob, err := doc.Marshal()
	if err != nil {
		return err
	}
	return s.adapter.Set(ctx, s.key, blob)
}

// Load reads the stored document. The second return is false when no state
// has been saved yet.
func (s *Store) Load(ctx context.Context) (domain.Document, bool, error) {
	blob, ok, err := s.adapter.Get(ctx, s.key)
	if err != nil || !ok {
		return nil, ok, err
	}
	doc, err := domain.ParseDocument(blob)
	if err != nil {
		return nil, true, err
	}
	return doc, true, nil
}

// Delete removes the stored document.
func (s *Store) Delete(ctx context.Context) error {
	return s.adapter.Delete(ctx, s.key)
}
