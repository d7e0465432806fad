package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	command "github.com/goliatone/go-command"
	"github.com/goliatone/go-statesync/pkg/domain"
	"github.com/goliatone/go-statesync/pkg/interfaces/logger"
	"github.com/goliatone/go-statesync/pkg/interfaces/store"
	"github.com/goliatone/go-statesync/pkg/migrate"
	syncer "github.com/goliatone/go-statesync/pkg/sync"
)

// Catalog exposes go-command compatible handlers for host transports.
type Catalog struct {
	MigrateState command.Commander[MigrateState]
	SyncState    command.Commander[SyncState]
}

// Dependencies wires the storage adapter, migration engine and orchestrator
// into the command catalog.
type Dependencies struct {
	Store        store.Adapter
	Engine       *migrate.Engine
	Orchestrator *syncer.Orchestrator
	Logger       logger.Logger
}

// NewCatalog builds the command catalog using the supplied dependencies.
func NewCatalog(deps Dependencies) (*Catalog, error) {
	if deps.Store == nil {
		return nil, errors.New("commands: storage adapter is required")
	}
	if deps.Engine == nil {
		return nil, errors.New("commands: migration engine is required")
	}
	if deps.Orchestrator == nil {
		return nil, errors.New("commands: orchestrator is required")
	}
	if deps.Logger == nil {
		deps.Logger = &logger.Nop{}
	}

	return &Catalog{
		MigrateState: migrateStateCommand{store: deps.Store, engine: deps.Engine, logger: deps.Logger},
		SyncState:    syncStateCommand{orchestrator: deps.Orchestrator},
	}, nil
}

// MigrateState migrates a stored payload in place. TargetVersion zero means
// the engine's current version.
type MigrateState struct {
	Key           string `json:"key"`
	TargetVersion int    `json:"target_version"`
}

type migrateStateCommand struct {
	store  store.Adapter
	engine *migrate.Engine
	logger logger.Logger
}

func (c migrateStateCommand) Execute(ctx context.Context, msg MigrateState) error {
	msg.Key = strings.TrimSpace(msg.Key)
	if msg.Key == "" {
		return errors.New("commands: key is required")
	}
	blob, ok, err := c.store.Get(ctx, msg.Key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("commands: key %q not found", msg.Key)
	}
	doc, err := domain.ParseDocument(blob)
	if err != nil {
		return fmt.Errorf("commands: parse %q: %w", msg.Key, err)
	}
	target := msg.TargetVersion
	if target <= 0 {
		target = c.engine.Current()
	}
	from := migrate.Version(doc)
	migrated, err := c.engine.MigrateTo(doc, target)
	if err != nil {
		return err
	}
	out, err := migrated.Marshal()
	if err != nil {
		return err
	}
	if err := c.store.Set(ctx, msg.Key, out); err != nil {
		return err
	}
	c.logger.Info("migrated stored state",
		logger.Field{Key: "key", Value: msg.Key},
		logger.Field{Key: "from", Value: from},
		logger.Field{Key: "to", Value: target})
	return nil
}

// SyncState forces one reconciliation pass outside the periodic cadence.
type SyncState struct{}

type syncStateCommand struct {
	orchestrator *syncer.Orchestrator
}

func (c syncStateCommand) Execute(ctx context.Context, msg SyncState) error {
	_, err := c.orchestrator.SyncNow(ctx)
	return err
}
