// Package bunrepo implements the remote storage adapter on top of a
// relational table: one row per storage key, keyed by the key column, holding
// the blob exactly as it left the layer chain.
package bunrepo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-statesync/pkg/domain"
	"github.com/goliatone/go-statesync/pkg/interfaces/store"
)

// StateStore persists state blobs through a bun database.
type StateStore struct {
	db *bun.DB
}

var _ store.Adapter = (*StateStore)(nil)

// NewStateStore builds the adapter over an existing bun DB. The caller owns
// the DB lifecycle.
func NewStateStore(db *bun.DB) *StateStore {
	return &StateStore{db: db}
}

// Get returns the blob stored under key; absent rows are not an error.
func (s *StateStore) Get(ctx context.Context, key string) (string, bool, error) {
	var rec domain.StateRecord
	err := s.db.NewSelect().
		Model(&rec).
		Where("key = ?", key).
		Where("deleted_at IS NULL").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return rec.Blob, true, nil
}

// Set upserts the row for key, replacing the blob and bumping updated_at.
func (s *StateStore) Set(ctx context.Context, key, value string) error {
	rec := &domain.StateRecord{Key: key, Blob: value}
	rec.EnsureID()
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	_, err := s.db.NewInsert().
		Model(rec).
		On("CONFLICT (key) DO UPDATE").
		Set("blob = EXCLUDED.blob").
		Set("updated_at = EXCLUDED.updated_at").
		Set("deleted_at = NULL").
		Exec(ctx)
	return err
}

// Delete removes the row for key. Deleting an absent key is not an error.
func (s *StateStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.NewDelete().
		Model((*domain.StateRecord)(nil)).
		Where("key = ?", key).
		ForceDelete().
		Exec(ctx)
	return err
}
