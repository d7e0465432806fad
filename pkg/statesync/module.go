// Package statesync is the module facade: it assembles the layer chain,
// migration engine, conflict resolver, sync orchestrator and command registry
// from a single options struct.
package statesync

import (
	"context"

	"github.com/goliatone/go-statesync/internal/di"
	"github.com/goliatone/go-statesync/pkg/commands"
	"github.com/goliatone/go-statesync/pkg/config"
	"github.com/goliatone/go-statesync/pkg/conflict"
	"github.com/goliatone/go-statesync/pkg/domain"
	"github.com/goliatone/go-statesync/pkg/interfaces/logger"
	"github.com/goliatone/go-statesync/pkg/interfaces/store"
	"github.com/goliatone/go-statesync/pkg/migrate"
	"github.com/goliatone/go-statesync/pkg/persist"
	"github.com/goliatone/go-statesync/pkg/retry"
	syncer "github.com/goliatone/go-statesync/pkg/sync"
)

// ModuleOptions configure the statesync module facade.
type ModuleOptions struct {
	Config     config.Config
	Backing    store.Adapter // local persistence target, in-memory when nil
	Remote     store.Adapter // remote reconciliation target, in-memory when nil
	Subscriber store.Subscriber
	Secret     string // required when Config.Crypto.Enabled
	Migrations map[int]migrate.Step
	Merge      conflict.MergeOptions
	Handler    conflict.Handler
	Logger     logger.Logger
	Metrics    persist.MetricsCollector
	Backoff    retry.Backoff

	OnResult func(domain.SyncResult)
	OnError  func(error)
	OnChange func(domain.Document)
}

// Module bundles the container and exposes high-level accessors.
type Module struct {
	container *di.Container
	store     *Store
}

// New assembles the layer chain, resolver, orchestrator and commands.
func New(opts ModuleOptions) (*Module, error) {
	container, err := di.New(di.Options{
		Config:     opts.Config,
		Backing:    opts.Backing,
		Remote:     opts.Remote,
		Subscriber: opts.Subscriber,
		Secret:     opts.Secret,
		Migrations: opts.Migrations,
		Merge:      opts.Merge,
		Handler:    opts.Handler,
		Logger:     opts.Logger,
		Metrics:    opts.Metrics,
		Backoff:    opts.Backoff,
		OnResult:   opts.OnResult,
		OnError:    opts.OnError,
		OnChange:   opts.OnChange,
	})
	if err != nil {
		return nil, err
	}
	st, err := NewStore(container.Config.Sync.Key, container.Store, opts.Logger)
	if err != nil {
		return nil, err
	}
	return &Module{container: container, store: st}, nil
}

// Save persists doc locally through the layer chain and hands the same
// document to the orchestrator as the current local state.
func (m *Module) Save(ctx context.Context, doc domain.Document) error {
	if err := m.store.Save(ctx, doc); err != nil {
		return err
	}
	m.container.Orchestrator.SetState(doc)
	return nil
}

// Load reads the persisted document through the layer chain.
func (m *Module) Load(ctx context.Context) (domain.Document, bool, error) {
	return m.store.Load(ctx)
}

// Store returns the keyed document store.
func (m *Module) Store() *Store {
	if m == nil || m.container == nil {
		return nil
	}
	return m.store
}

// Adapter returns the backing adapter wrapped by the configured layers.
func (m *Module) Adapter() store.Adapter {
	if m == nil || m.container == nil {
		return nil
	}
	return m.container.Store
}

// Orchestrator returns the sync orchestrator.
func (m *Module) Orchestrator() *syncer.Orchestrator {
	if m == nil || m.container == nil {
		return nil
	}
	return m.container.Orchestrator
}

// Engine returns the migration engine.
func (m *Module) Engine() *migrate.Engine {
	if m == nil || m.container == nil {
		return nil
	}
	return m.container.Engine
}

// Resolver returns the conflict resolver.
func (m *Module) Resolver() *conflict.Resolver {
	if m == nil || m.container == nil {
		return nil
	}
	return m.container.Resolver
}

// Commands returns the go-command registry.
func (m *Module) Commands() *commands.Registry {
	if m == nil || m.container == nil {
		return nil
	}
	return m.container.Commands
}

// Config returns the effective module configuration.
func (m *Module) Config() config.Config {
	if m == nil || m.container == nil {
		return config.Config{}
	}
	return m.container.Config
}
