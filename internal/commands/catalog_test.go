package commands

import (
	"context"
	"testing"

	"github.com/goliatone/go-statesync/internal/storage/memory"
	"github.com/goliatone/go-statesync/pkg/conflict"
	"github.com/goliatone/go-statesync/pkg/domain"
	"github.com/goliatone/go-statesync/pkg/migrate"
	syncer "github.com/goliatone/go-statesync/pkg/sync"
)

func newTestEngine(t *testing.T) *migrate.Engine {
	t.Helper()
	engine, err := migrate.New(2,
		migrate.WithStep(1, func(doc domain.Document) (domain.Document, error) {
			doc["name"] = doc["username"]
			delete(doc, "username")
			return doc, nil
		}),
		migrate.WithStep(2, func(doc domain.Document) (domain.Document, error) {
			doc["displayName"] = doc["name"]
			return doc, nil
		}),
	)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return engine
}

func newTestCatalog(t *testing.T, adapter *memory.Adapter) (*Catalog, *syncer.Orchestrator) {
	t.Helper()
	resolver := conflict.New()
	orchestrator, err := syncer.New(syncer.Dependencies{
		Remote:   memory.New(),
		Resolver: resolver,
	})
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}
	cat, err := NewCatalog(Dependencies{
		Store:        adapter,
		Engine:       newTestEngine(t),
		Orchestrator: orchestrator,
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return cat, orchestrator
}

func TestMigrateStateCommand(t *testing.T) {
	ctx := context.Background()
	adapter := memory.New()
	cat, _ := newTestCatalog(t, adapter)

	stored, _ := domain.Document{"username": "ana"}.Marshal()
	if err := adapter.Set(ctx, "profile", stored); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := cat.MigrateState.Execute(ctx, MigrateState{Key: "profile"}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	blob, ok, err := adapter.Get(ctx, "profile")
	if err != nil || !ok {
		t.Fatalf("get migrated: ok=%v err=%v", ok, err)
	}
	doc, err := domain.ParseDocument(blob)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if doc["displayName"] != "ana" {
		t.Fatalf("migration steps did not run: %v", doc)
	}
	if migrate.Version(doc) != 2 {
		t.Fatalf("expected version stamp 2, got %d", migrate.Version(doc))
	}
}

func TestMigrateStateCommandPartialTarget(t *testing.T) {
	ctx := context.Background()
	adapter := memory.New()
	cat, _ := newTestCatalog(t, adapter)

	stored, _ := domain.Document{"username": "ana"}.Marshal()
	if err := adapter.Set(ctx, "profile", stored); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := cat.MigrateState.Execute(ctx, MigrateState{Key: "profile", TargetVersion: 1}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	blob, _, _ := adapter.Get(ctx, "profile")
	doc, _ := domain.ParseDocument(blob)
	if _, ok := doc["displayName"]; ok {
		t.Fatalf("step past target must not run: %v", doc)
	}
	if doc["name"] != "ana" {
		t.Fatalf("first step did not run: %v", doc)
	}
}

func TestMigrateStateCommandValidation(t *testing.T) {
	ctx := context.Background()
	cat, _ := newTestCatalog(t, memory.New())

	if err := cat.MigrateState.Execute(ctx, MigrateState{Key: "  "}); err == nil {
		t.Fatalf("expected error for blank key")
	}
	if err := cat.MigrateState.Execute(ctx, MigrateState{Key: "missing"}); err == nil {
		t.Fatalf("expected error for absent key")
	}
}

func TestSyncStateCommand(t *testing.T) {
	ctx := context.Background()
	cat, orchestrator := newTestCatalog(t, memory.New())
	orchestrator.SetState(domain.Document{"theme": "dark"})

	if err := cat.SyncState.Execute(ctx, SyncState{}); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if orchestrator.LastSynced() == "" {
		t.Fatalf("sync pass did not run")
	}
}

func TestNewCatalogValidatesDependencies(t *testing.T) {
	if _, err := NewCatalog(Dependencies{}); err == nil {
		t.Fatalf("expected dependency validation error")
	}
}
