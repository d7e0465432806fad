package commands

import (
	command "github.com/goliatone/go-command"
	internalcommands "github.com/goliatone/go-statesync/internal/commands"
	"github.com/goliatone/go-statesync/pkg/interfaces/logger"
	"github.com/goliatone/go-statesync/pkg/interfaces/store"
	"github.com/goliatone/go-statesync/pkg/migrate"
	syncer "github.com/goliatone/go-statesync/pkg/sync"
)

// Re-export request types so consumers need not import internal packages.
type (
	MigrateState = internalcommands.MigrateState
	SyncState    = internalcommands.SyncState
)

// Registry exposes go-command compatible handlers backed by the module services.
type Registry struct {
	Catalog      *internalcommands.Catalog
	MigrateState command.Commander[MigrateState]
	SyncState    command.Commander[SyncState]
}

// Dependencies mirror the internal command dependencies but keep them public.
type Dependencies struct {
	Store        store.Adapter
	Engine       *migrate.Engine
	Orchestrator *syncer.Orchestrator
	Logger       logger.Logger
}

// New builds the registry using the provided dependencies.
func New(deps Dependencies) (*Registry, error) {
	catalog, err := internalcommands.NewCatalog(internalcommands.Dependencies{
		Store:        deps.Store,
		Engine:       deps.Engine,
		Orchestrator: deps.Orchestrator,
		Logger:       deps.Logger,
	})
	if err != nil {
		return nil, err
	}
	return &Registry{
		Catalog:      catalog,
		MigrateState: catalog.MigrateState,
		SyncState:    catalog.SyncState,
	}, nil
}

// Commanders returns every handler so callers can register them with go-command registries.
func (r *Registry) Commanders() []any {
	if r == nil {
		return nil
	}
	return []any{
		r.MigrateState,
		r.SyncState,
	}
}
