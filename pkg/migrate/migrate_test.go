package migrate

import (
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-statesync/pkg/domain"
)

func addCreatedAt(doc domain.Document) (domain.Document, error) {
	doc["createdAt"] = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
	return doc, nil
}

func renameCountToTotal(doc domain.Document) (domain.Document, error) {
	if count, ok := doc["count"]; ok {
		doc["total"] = count
		delete(doc, "count")
	}
	return doc, nil
}

func TestStepwiseUpgrade(t *testing.T) {
	engine, err := New(2,
		WithStep(1, addCreatedAt),
		WithStep(2, renameCountToTotal),
	)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	// Stored payload predates versioning entirely.
	doc := domain.Document{"count": float64(5)}
	out, err := engine.Apply(doc)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out["total"] != float64(5) {
		t.Fatalf("expected count renamed to total, got %v", out)
	}
	if _, ok := out["count"]; ok {
		t.Fatalf("count should be gone after rename")
	}
	if out["createdAt"] == nil {
		t.Fatalf("expected createdAt from step 1")
	}
	if out[VersionField] != 2 {
		t.Fatalf("expected version stamp 2, got %v", out[VersionField])
	}
	if _, ok := doc["total"]; ok {
		t.Fatalf("input document must not be mutated")
	}
}

func TestAlreadyCurrentIsNoOp(t *testing.T) {
	engine, err := New(2, WithStep(1, addCreatedAt), WithStep(2, renameCountToTotal))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	doc := domain.Document{"total": float64(7), VersionField: float64(2)}
	out, err := engine.Apply(doc)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out["total"] != float64(7) {
		t.Fatalf("payload changed on no-op migration: %v", out)
	}
	if out[VersionField] != 2 {
		t.Fatalf("expected re-stamped version 2, got %v", out[VersionField])
	}
	if _, ok := out["createdAt"]; ok {
		t.Fatalf("no steps should run when already current")
	}
}

func TestLenientGapSkipsMissingStep(t *testing.T) {
	// Step 2 is registered, step 1 is not.
	engine, err := New(2, WithStep(2, renameCountToTotal))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	out, err := engine.Apply(domain.Document{"count": float64(3)})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out["total"] != float64(3) {
		t.Fatalf("later step should still run past the gap, got %v", out)
	}
	if out[VersionField] != 2 {
		t.Fatalf("expected version 2, got %v", out[VersionField])
	}
}

func TestStrictGapFails(t *testing.T) {
	engine, err := New(2, WithStep(2, renameCountToTotal), WithStrictGaps())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if _, err := engine.Apply(domain.Document{"count": float64(3)}); !errors.Is(err, ErrMissingStep) {
		t.Fatalf("expected ErrMissingStep, got %v", err)
	}
}

func TestMigrateToExplicitTarget(t *testing.T) {
	engine, err := New(3,
		WithStep(1, addCreatedAt),
		WithStep(2, renameCountToTotal),
		WithStep(3, func(doc domain.Document) (domain.Document, error) {
			doc["v3"] = true
			return doc, nil
		}),
	)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	out, err := engine.MigrateTo(domain.Document{"count": float64(1)}, 2)
	if err != nil {
		t.Fatalf("migrate to: %v", err)
	}
	if out[VersionField] != 2 {
		t.Fatalf("expected version 2, got %v", out[VersionField])
	}
	if _, ok := out["v3"]; ok {
		t.Fatalf("step beyond the target must not run")
	}
}

func TestMonotonicityMatchesSingleSteps(t *testing.T) {
	build := func() *Engine {
		engine, err := New(2, WithStep(1, addCreatedAt), WithStep(2, renameCountToTotal))
		if err != nil {
			t.Fatalf("new engine: %v", err)
		}
		return engine
	}

	direct, err := build().MigrateTo(domain.Document{"count": float64(9)}, 2)
	if err != nil {
		t.Fatalf("direct: %v", err)
	}

	stepped, err := build().MigrateTo(domain.Document{"count": float64(9)}, 1)
	if err != nil {
		t.Fatalf("step 1: %v", err)
	}
	stepped, err = build().MigrateTo(stepped, 2)
	if err != nil {
		t.Fatalf("step 2: %v", err)
	}

	directBlob, err := direct.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	steppedBlob, err := stepped.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if directBlob != steppedBlob {
		t.Fatalf("stepwise and direct migration diverge:\n%s\n%s", directBlob, steppedBlob)
	}
}

func TestStampDoesNotMigrate(t *testing.T) {
	engine, err := New(2, WithStep(1, addCreatedAt), WithStep(2, renameCountToTotal))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	out := engine.Stamp(domain.Document{"count": float64(4)})
	if out[VersionField] != 2 {
		t.Fatalf("expected stamp 2, got %v", out[VersionField])
	}
	if _, ok := out["total"]; ok {
		t.Fatalf("stamp must not run migration steps")
	}
}

func TestBlobHelpers(t *testing.T) {
	engine, err := New(1, WithStep(1, addCreatedAt))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	upgraded, err := engine.UpgradeBlob(`{"count":5}`)
	if err != nil {
		t.Fatalf("upgrade blob: %v", err)
	}
	doc, err := domain.ParseDocument(upgraded)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if Version(doc) != 1 {
		t.Fatalf("expected version 1, got %d", Version(doc))
	}

	if _, err := engine.UpgradeBlob("not json"); err == nil {
		t.Fatalf("expected parse error for bad blob")
	}

	stamped, err := engine.StampBlob(`{"count":5}`)
	if err != nil {
		t.Fatalf("stamp blob: %v", err)
	}
	doc, err = domain.ParseDocument(stamped)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if Version(doc) != 1 {
		t.Fatalf("expected stamped version 1, got %d", Version(doc))
	}
	if doc["createdAt"] != nil {
		t.Fatalf("stamp blob must not migrate")
	}
}

func TestNegativeVersionRejected(t *testing.T) {
	if _, err := New(-1); !errors.Is(err, ErrInvalidVersion) {
		t.Fatalf("expected ErrInvalidVersion, got %v", err)
	}
}
