package persist

import (
	"github.com/goliatone/go-statesync/pkg/crypto"
	"github.com/goliatone/go-statesync/pkg/interfaces/logger"
	"github.com/goliatone/go-statesync/pkg/interfaces/store"
	"github.com/goliatone/go-statesync/pkg/migrate"
)

type chainConfig struct {
	engine     *migrate.Engine
	compress   bool
	minSize    int
	encrypt    bool
	secret     string
	cryptoOpts []crypto.Option
	layerOpts  []LayerOption
}

// ChainOption selects the layers of a composed adapter.
type ChainOption func(*chainConfig)

// WithMigration enables the migration layer.
func WithMigration(engine *migrate.Engine) ChainOption {
	return func(c *chainConfig) { c.engine = engine }
}

// WithCompression enables the compression layer; minSize of zero or less
// selects the default threshold.
func WithCompression(minSize int) ChainOption {
	return func(c *chainConfig) {
		c.compress = true
		c.minSize = minSize
	}
}

// WithEncryption enables the encryption layer.
func WithEncryption(secret string, cryptoOpts ...crypto.Option) ChainOption {
	return func(c *chainConfig) {
		c.encrypt = true
		c.secret = secret
		c.cryptoOpts = cryptoOpts
	}
}

// WithLogger attaches a logger to every layer in the chain.
func WithLogger(l logger.Logger) ChainOption {
	return func(c *chainConfig) { c.layerOpts = append(c.layerOpts, WithLayerLogger(l)) }
}

// WithMetrics attaches a metrics collector to every layer in the chain.
func WithMetrics(m MetricsCollector) ChainOption {
	return func(c *chainConfig) { c.layerOpts = append(c.layerOpts, WithLayerMetrics(m)) }
}

// NewChain wraps the backing adapter with the selected transform layers in
// the load-bearing order: migration operates on the canonical JSON shape,
// compression on plaintext, encryption last before the transport. On write a
// value therefore passes migration, then compression, then encryption; reads
// invert the chain. Any subset of layers may be selected; the relative order
// of the selected subset is fixed by construction.
func NewChain(backing store.Adapter, opts ...ChainOption) (store.Adapter, error) {
	if backing == nil {
		return nil, ErrMissingAdapter
	}
	cfg := chainConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	adapter := backing
	var err error
	if cfg.encrypt {
		adapter, err = NewEncryptionLayer(adapter, cfg.secret, cfg.cryptoOpts, cfg.layerOpts...)
		if err != nil {
			return nil, err
		}
	}
	if cfg.compress {
		adapter, err = NewCompressionLayer(adapter, cfg.minSize, cfg.layerOpts...)
		if err != nil {
			return nil, err
		}
	}
	if cfg.engine != nil {
		adapter, err = NewMigrationLayer(adapter, cfg.engine, cfg.layerOpts...)
		if err != nil {
			return nil, err
		}
	}
	return adapter, nil
}
