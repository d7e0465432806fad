// Package persist composes storage adapters out of transform layers. A layer
// wraps an inner adapter and transforms values in transit: forward on write,
// inverse on read. When an inverse transform fails the layer degrades to
// returning the stored value unchanged (fail-open), so adding or removing a
// layer never makes previously stored data unreadable.
package persist

import (
	"context"
	"errors"

	"github.com/goliatone/go-statesync/pkg/compress"
	"github.com/goliatone/go-statesync/pkg/crypto"
	"github.com/goliatone/go-statesync/pkg/interfaces/logger"
	"github.com/goliatone/go-statesync/pkg/interfaces/store"
	"github.com/goliatone/go-statesync/pkg/migrate"
)

var (
	// ErrMissingAdapter is returned when a layer is built without an inner adapter.
	ErrMissingAdapter = errors.New("persist: inner adapter is required")
	// ErrMissingEngine is returned when the migration layer has no engine.
	ErrMissingEngine = errors.New("persist: migration engine is required")
)

// Outcome reports which path a layered read took. The public Get contract
// still returns a plain value; the outcome is surfaced through metrics so
// fallback reads stay observable.
type Outcome int

const (
	// OutcomeApplied means the inverse transform ran successfully.
	OutcomeApplied Outcome = iota
	// OutcomeFellBack means the inverse transform failed and the stored
	// value was returned unchanged.
	OutcomeFellBack
	// OutcomePassthrough means the transform did not apply to this value
	// (e.g. an uncompressed blob read through the compression layer).
	OutcomePassthrough
)

// MetricsCollector records layer events for downstream observers.
type MetricsCollector interface {
	Record(operation string, labels map[string]string)
}

type layerOptions struct {
	logger  logger.Logger
	metrics MetricsCollector
}

// LayerOption configures a single layer.
type LayerOption func(*layerOptions)

// WithLayerLogger attaches a logger to the layer; Nop when omitted.
func WithLayerLogger(l logger.Logger) LayerOption {
	return func(o *layerOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithLayerMetrics attaches a metrics collector to the layer.
func WithLayerMetrics(m MetricsCollector) LayerOption {
	return func(o *layerOptions) { o.metrics = m }
}

func buildLayerOptions(opts []LayerOption) layerOptions {
	settings := layerOptions{logger: &logger.Nop{}}
	for _, opt := range opts {
		opt(&settings)
	}
	return settings
}

func (o layerOptions) observe(layer string, outcome Outcome) {
	if outcome == OutcomeFellBack {
		o.logger.Warn("inverse transform failed, returning stored value unchanged",
			logger.Field{Key: "layer", Value: layer})
	}
	if o.metrics == nil {
		return
	}
	label := "applied"
	switch outcome {
	case OutcomeFellBack:
		label = "fallback"
	case OutcomePassthrough:
		label = "passthrough"
	}
	o.metrics.Record("layer_read", map[string]string{"layer": layer, "outcome": label})
}

// MigrationLayer stamps the current schema version on write and upgrades
// stored payloads stepwise on read. It sits innermost in the chain so it
// always operates on the canonical uncompressed, unencrypted JSON shape.
type MigrationLayer struct {
	inner  store.Adapter
	engine *migrate.Engine
	opts   layerOptions
}

var _ store.Adapter = (*MigrationLayer)(nil)

// NewMigrationLayer wraps inner with version stamping and upgrading.
func NewMigrationLayer(inner store.Adapter, engine *migrate.Engine, opts ...LayerOption) (*MigrationLayer, error) {
	if inner == nil {
		return nil, ErrMissingAdapter
	}
	if engine == nil {
		return nil, ErrMissingEngine
	}
	return &MigrationLayer{inner: inner, engine: engine, opts: buildLayerOptions(opts)}, nil
}

func (l *MigrationLayer) Get(ctx context.Context, key string) (string, bool, error) {
	raw, ok, err := l.inner.Get(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}
	upgraded, err := l.engine.UpgradeBlob(raw)
	if err != nil {
		l.opts.observe("migration", OutcomeFellBack)
		return raw, true, nil
	}
	l.opts.observe("migration", OutcomeApplied)
	return upgraded, true, nil
}

func (l *MigrationLayer) Set(ctx context.Context, key, value string) error {
	stamped, err := l.engine.StampBlob(value)
	if err != nil {
		return err
	}
	return l.inner.Set(ctx, key, stamped)
}

func (l *MigrationLayer) Delete(ctx context.Context, key string) error {
	return l.inner.Delete(ctx, key)
}

// CompressionLayer shrinks payloads that meet the size threshold. Values
// below the threshold are stored verbatim; the tag prefix tells both forms
// apart on read.
type CompressionLayer struct {
	inner   store.Adapter
	minSize int
	opts    layerOptions
}

var _ store.Adapter = (*CompressionLayer)(nil)

// NewCompressionLayer wraps inner with threshold-gated compression. A
// minSize of zero or less selects compress.DefaultMinSize.
func NewCompressionLayer(inner store.Adapter, minSize int, opts ...LayerOption) (*CompressionLayer, error) {
	if inner == nil {
		return nil, ErrMissingAdapter
	}
	if minSize <= 0 {
		minSize = compress.DefaultMinSize
	}
	return &CompressionLayer{inner: inner, minSize: minSize, opts: buildLayerOptions(opts)}, nil
}

func (l *CompressionLayer) Get(ctx context.Context, key string) (string, bool, error) {
	raw, ok, err := l.inner.Get(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}
	if !compress.IsCompressed(raw) {
		l.opts.observe("compression", OutcomePassthrough)
		return raw, true, nil
	}
	plain, err := compress.Decompress(raw)
	if err != nil {
		l.opts.observe("compression", OutcomeFellBack)
		return raw, true, nil
	}
	l.opts.observe("compression", OutcomeApplied)
	return plain, true, nil
}

func (l *CompressionLayer) Set(ctx context.Context, key, value string) error {
	if !compress.ShouldCompress(value, l.minSize) {
		return l.inner.Set(ctx, key, value)
	}
	packed, err := compress.Compress(value)
	if err != nil {
		return err
	}
	return l.inner.Set(ctx, key, packed)
}

func (l *CompressionLayer) Delete(ctx context.Context, key string) error {
	return l.inner.Delete(ctx, key)
}

// EncryptionLayer seals values before they leave the process. It sits
// outermost in the chain so whatever reaches the transport is opaque.
type EncryptionLayer struct {
	inner      store.Adapter
	secret     string
	cryptoOpts []crypto.Option
	opts       layerOptions
}

var _ store.Adapter = (*EncryptionLayer)(nil)

// NewEncryptionLayer wraps inner with one-shot encryption. An empty secret
// fails fast at construction.
func NewEncryptionLayer(inner store.Adapter, secret string, cryptoOpts []crypto.Option, opts ...LayerOption) (*EncryptionLayer, error) {
	if inner == nil {
		return nil, ErrMissingAdapter
	}
	if secret == "" {
		return nil, crypto.ErrEmptySecret
	}
	return &EncryptionLayer{
		inner:      inner,
		secret:     secret,
		cryptoOpts: cryptoOpts,
		opts:       buildLayerOptions(opts),
	}, nil
}

func (l *EncryptionLayer) Get(ctx context.Context, key string) (string, bool, error) {
	raw, ok, err := l.inner.Get(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}
	plain, err := crypto.Decrypt(raw, l.secret, l.cryptoOpts...)
	if err != nil {
		l.opts.observe("encryption", OutcomeFellBack)
		return raw, true, nil
	}
	l.opts.observe("encryption", OutcomeApplied)
	return plain, true, nil
}

func (l *EncryptionLayer) Set(ctx context.Context, key, value string) error {
	sealed, err := crypto.Encrypt(value, l.secret, l.cryptoOpts...)
	if err != nil {
		return err
	}
	return l.inner.Set(ctx, key, sealed)
}

func (l *EncryptionLayer) Delete(ctx context.Context, key string) error {
	return l.inner.Delete(ctx, key)
}
