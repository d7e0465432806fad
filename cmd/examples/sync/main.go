package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/goliatone/go-statesync/pkg/config"
	"github.com/goliatone/go-statesync/pkg/conflict"
	"github.com/goliatone/go-statesync/pkg/domain"
	"github.com/goliatone/go-statesync/pkg/migrate"
	"github.com/goliatone/go-statesync/pkg/statesync"
	"github.com/goliatone/go-statesync/pkg/storage"
)

// Two devices persist encrypted state locally and reconcile divergent copies
// through a shared SQLite-backed remote using the merge strategy.
func main() {
	ctx := context.Background()

	db, err := storage.OpenSQLite(ctx, "file::memory:?cache=shared")
	if err != nil {
		log.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()
	remote := storage.NewBunAdapter(db)

	cfg := config.Defaults()
	cfg.Sync.Strategy = string(conflict.StrategyMerge)
	cfg.Crypto.Enabled = true
	cfg.Compression.Enabled = true
	cfg.Compression.MinSize = 256

	migrations := map[int]migrate.Step{
		1: func(doc domain.Document) (domain.Document, error) {
			if v, ok := doc["username"]; ok {
				doc["displayName"] = v
				delete(doc, "username")
			}
			return doc, nil
		},
	}

	newDevice := func(name string) *statesync.Module {
		module, err := statesync.New(statesync.ModuleOptions{
			Config:     cfg,
			Remote:     remote,
			Secret:     "example-secret",
			Migrations: migrations,
			OnResult: func(result domain.SyncResult) {
				fmt.Printf("[%s] reconciled via %s (conflict=%v)\n", name, result.Strategy, result.HadConflict)
			},
		})
		if err != nil {
			log.Fatalf("%s: %v", name, err)
		}
		return module
	}

	laptop := newDevice("laptop")
	phone := newDevice("phone")

	if err := laptop.Save(ctx, domain.Document{"username": "ana", "theme": "dark"}); err != nil {
		log.Fatalf("laptop save: %v", err)
	}
	if err := phone.Save(ctx, domain.Document{"fontSize": float64(14)}); err != nil {
		log.Fatalf("phone save: %v", err)
	}

	if _, err := laptop.Orchestrator().SyncNow(ctx); err != nil {
		log.Fatalf("laptop sync: %v", err)
	}
	if _, err := phone.Orchestrator().SyncNow(ctx); err != nil {
		log.Fatalf("phone sync: %v", err)
	}
	if _, err := laptop.Orchestrator().SyncNow(ctx); err != nil {
		log.Fatalf("laptop re-sync: %v", err)
	}

	// Both devices converge on the merged document.
	printState("laptop", laptop.Orchestrator().State())
	printState("phone", phone.Orchestrator().State())

	// Stored payloads migrate on read: a legacy blob gains displayName.
	loaded, ok, err := laptop.Load(ctx)
	if err != nil || !ok {
		log.Fatalf("laptop load: ok=%v err=%v", ok, err)
	}
	printState("laptop (persisted)", loaded)
}

func printState(label string, doc domain.Document) {
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		log.Fatalf("marshal %s: %v", label, err)
	}
	fmt.Printf("%s:\n%s\n", label, payload)
}
