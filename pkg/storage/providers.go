// Package storage wires concrete adapter providers: the in-memory adapter
// used by tests and single-process setups, and the bun-backed adapter used as
// a remote collaborator.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	bunrepo "github.com/goliatone/go-statesync/internal/storage/bun"
	"github.com/goliatone/go-statesync/internal/storage/memory"
	"github.com/goliatone/go-statesync/pkg/domain"
	"github.com/goliatone/go-statesync/pkg/interfaces/store"
)

// NewMemoryAdapter returns a map-backed adapter that also implements the
// Subscriber capability.
func NewMemoryAdapter() *memory.Adapter {
	return memory.New()
}

// NewBunAdapter wires the bun-backed state adapter. The caller is responsible
// for creating the *bun.DB instance (potentially via OpenSQLite) and managing
// its lifecycle.
func NewBunAdapter(db *bun.DB) store.Adapter {
	if db == nil {
		panic("storage: bun DB is required")
	}
	// Register the model so go-persistence-bun migrations can pick it up.
	persistence.RegisterModel((*domain.StateRecord)(nil))
	return bunrepo.NewStateStore(db)
}

// OpenSQLite opens a sqlite-backed bun DB and ensures the state table exists.
func OpenSQLite(ctx context.Context, dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	db := bun.NewDB(sqldb, sqlitedialect.New())
	if _, err := db.NewCreateTable().Model((*domain.StateRecord)(nil)).IfNotExists().Exec(ctx); err != nil {
		return nil, fmt.Errorf("storage: create table: %w", err)
	}
	return db, nil
}
