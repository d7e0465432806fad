// Package migrate upgrades stored payloads stepwise between schema versions.
// Each step transforms a document from version v-1 to v; the engine walks the
// gap between the stored version and the current one in increasing order.
package migrate

import (
	"errors"
	"fmt"

	"github.com/goliatone/go-statesync/pkg/domain"
	"github.com/goliatone/go-statesync/pkg/interfaces/logger"
)

// VersionField is the reserved document field carrying the schema version.
// A document without it is treated as version 0.
const VersionField = "_version"

var (
	// ErrMissingStep is returned in strict mode when the step for an
	// intermediate version is not registered.
	ErrMissingStep = errors.New("migrate: missing migration step")
	// ErrInvalidVersion is returned when the current version is negative.
	ErrInvalidVersion = errors.New("migrate: version must be >= 0")
)

// Step upgrades a payload by exactly one schema version.
type Step func(doc domain.Document) (domain.Document, error)

// Engine applies registered steps up to the current schema version.
type Engine struct {
	current int
	steps   map[int]Step
	strict  bool
	logger  logger.Logger
}

// Option configures the engine.
type Option func(*Engine)

// WithStrictGaps makes a missing intermediate step an error instead of being
// skipped silently.
func WithStrictGaps() Option {
	return func(e *Engine) { e.strict = true }
}

// WithLogger attaches a logger; Nop when omitted.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithStep registers a migration step at construction time.
func WithStep(version int, step Step) Option {
	return func(e *Engine) { e.steps[version] = step }
}

// New builds an engine targeting the given current schema version.
func New(current int, opts ...Option) (*Engine, error) {
	if current < 0 {
		return nil, ErrInvalidVersion
	}
	engine := &Engine{
		current: current,
		steps:   make(map[int]Step),
		logger:  &logger.Nop{},
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine, nil
}

// Register adds or replaces the step that upgrades documents to version.
func (e *Engine) Register(version int, step Step) {
	e.steps[version] = step
}

// Current returns the engine's target schema version.
func (e *Engine) Current() int {
	return e.current
}

// Version reads a document's schema version; absent or unreadable means 0.
func Version(doc domain.Document) int {
	if doc == nil {
		return 0
	}
	switch v := doc[VersionField].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// Apply upgrades the document from its stored version to the current one and
// stamps the result. The input document is not mutated.
func (e *Engine) Apply(doc domain.Document) (domain.Document, error) {
	return e.MigrateTo(doc, e.current)
}

// MigrateTo runs the stepwise upgrade loop against an explicit target
// version, supporting one-off batch migration outside the normal read path.
// The input document is not mutated and no storage is touched.
func (e *Engine) MigrateTo(doc domain.Document, target int) (domain.Document, error) {
	if target < 0 {
		return nil, ErrInvalidVersion
	}
	out := doc.Clone()
	if out == nil {
		out = domain.Document{}
	}
	for v := Version(out); v < target; v++ {
		step, ok := e.steps[v+1]
		if !ok {
			if e.strict {
				return nil, fmt.Errorf("%w: version %d", ErrMissingStep, v+1)
			}
			e.logger.Debug("skipping missing migration step", logger.Field{Key: "version", Value: v + 1})
			continue
		}
		next, err := step(out)
		if err != nil {
			return nil, fmt.Errorf("migrate: step %d: %w", v+1, err)
		}
		out = next
	}
	out[VersionField] = target
	return out, nil
}

// Stamp tags the document with the current schema version without migrating.
// This is the write path: payloads are only upgraded on read.
func (e *Engine) Stamp(doc domain.Document) domain.Document {
	out := doc.Clone()
	if out == nil {
		out = domain.Document{}
	}
	out[VersionField] = e.current
	return out
}

// UpgradeBlob parses a JSON blob, applies pending migrations, and re-encodes
// the result.
func (e *Engine) UpgradeBlob(blob string) (string, error) {
	doc, err := domain.ParseDocument(blob)
	if err != nil {
		return "", err
	}
	upgraded, err := e.Apply(doc)
	if err != nil {
		return "", err
	}
	return upgraded.Marshal()
}

// StampBlob parses a JSON blob and stamps the current version onto it.
func (e *Engine) StampBlob(blob string) (string, error) {
	doc, err := domain.ParseDocument(blob)
	if err != nil {
		return "", err
	}
	return e.Stamp(doc).Marshal()
}
