package di

import (
	"errors"
	"reflect"

	"github.com/goliatone/go-statesync/pkg/commands"
	"github.com/goliatone/go-statesync/pkg/config"
	"github.com/goliatone/go-statesync/pkg/conflict"
	"github.com/goliatone/go-statesync/pkg/crypto"
	"github.com/goliatone/go-statesync/pkg/domain"
	"github.com/goliatone/go-statesync/pkg/interfaces/logger"
	"github.com/goliatone/go-statesync/pkg/interfaces/store"
	"github.com/goliatone/go-statesync/pkg/migrate"
	"github.com/goliatone/go-statesync/pkg/persist"
	"github.com/goliatone/go-statesync/pkg/retry"
	"github.com/goliatone/go-statesync/pkg/storage"
	syncer "github.com/goliatone/go-statesync/pkg/sync"
)

// Options configure the DI container.
type Options struct {
	Config     config.Config
	Backing    store.Adapter // local persistence target, memory when nil
	Remote     store.Adapter // remote reconciliation target, memory when nil
	Subscriber store.Subscriber
	Secret     string // required when crypto is enabled
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

// Container wires the layer chain, migration engine, resolver, orchestrator
// and command registry.
type Container struct {
	Config       config.Config
	Backing      store.Adapter
	Store        store.Adapter // Backing wrapped by the configured layers
	Engine       *migrate.Engine
	Resolver     *conflict.Resolver
	Orchestrator *syncer.Orchestrator
	Commands     *commands.Registry
}

func isZeroConfig(cfg config.Config) bool {
	return reflect.ValueOf(cfg).IsZero()
}

// New constructs the container using the supplied options.
func New(opts Options) (*Container, error) {
	cfg := opts.Config
	if isZeroConfig(cfg) {
		cfg = config.Defaults()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	lgr := opts.Logger
	if lgr == nil {
		lgr = &logger.Nop{}
	}

	backing := opts.Backing
	if backing == nil {
		backing = storage.NewMemoryAdapter()
	}
	remote := opts.Remote
	if remote == nil {
		remote = storage.NewMemoryAdapter()
	}

	engine, err := buildEngine(cfg.Migration, opts.Migrations, lgr)
	if err != nil {
		return nil, err
	}

	chain, err := buildChain(cfg, engine, opts.Secret, lgr, opts.Metrics, backing)
	if err != nil {
		return nil, err
	}

	merge := opts.Merge
	if merge.TimestampField == "" {
		merge.TimestampField = cfg.Sync.TimestampField
	}
	resolverOpts := []conflict.Option{
		conflict.WithStrategy(conflict.Strategy(cfg.Sync.Strategy)),
		conflict.WithMergeOptions(merge),
		conflict.WithLogger(lgr),
	}
	if opts.Handler != nil {
		resolverOpts = append(resolverOpts, conflict.WithHandler(opts.Handler))
	}
	resolver := conflict.New(resolverOpts...)

	orchestrator, err := syncer.New(syncer.Dependencies{
		Remote:     remote,
		Subscriber: opts.Subscriber,
		Resolver:   resolver,
		Logger:     lgr,
		Backoff:    opts.Backoff,
		Config:     cfg.Sync,
		OnResult:   opts.OnResult,
		OnError:    opts.OnError,
		OnChange:   opts.OnChange,
	})
	if err != nil {
		return nil, err
	}

	registry, err := commands.New(commands.Dependencies{
		Store:        chain,
		Engine:       engine,
		Orchestrator: orchestrator,
		Logger:       lgr,
	})
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Backing:      backing,
		Store:        chain,
		Engine:       engine,
		Resolver:     resolver,
		Orchestrator: orchestrator,
		Commands:     registry,
	}, nil
}

func buildEngine(cfg config.MigrationConfig, steps map[int]migrate.Step, lgr logger.Logger) (*migrate.Engine, error) {
	current := 0
	for version := range steps {
		if version > current {
			current = version
		}
	}
	engineOpts := []migrate.Option{migrate.WithLogger(lgr)}
	if cfg.Strict {
		engineOpts = append(engineOpts, migrate.WithStrictGaps())
	}
	for version, step := range steps {
		engineOpts = append(engineOpts, migrate.WithStep(version, step))
	}
	return migrate.New(current, engineOpts...)
}

func buildChain(cfg config.Config, engine *migrate.Engine, secret string, lgr logger.Logger, metrics persist.MetricsCollector, backing store.Adapter) (store.Adapter, error) {
	chainOpts := []persist.ChainOption{persist.WithLogger(lgr)}
	if metrics != nil {
		chainOpts = append(chainOpts, persist.WithMetrics(metrics))
	}
	if cfg.Migration.Enabled || engine.Current() > 0 {
		chainOpts = append(chainOpts, persist.WithMigration(engine))
	}
	if cfg.Compression.Enabled {
		chainOpts = append(chainOpts, persist.WithCompression(cfg.Compression.MinSize))
	}
	if cfg.Crypto.Enabled {
		if secret == "" {
			return nil, errors.New("di: crypto is enabled but no secret was provided")
		}
		chainOpts = append(chainOpts, persist.WithEncryption(secret,
			crypto.WithAlgorithm(crypto.Algorithm(cfg.Crypto.Algorithm)),
			crypto.WithIterations(cfg.Crypto.Iterations)))
	}
	return persist.NewChain(backing, chainOpts...)
}
