// Package sync coordinates periodic and event-driven reconciliation between
// local in-memory state and a remote storage adapter. The conflict resolver
// is the sole correctness mechanism for concurrent writers on other devices;
// within one orchestrator instance outbound syncs are single-flight.
package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-statesync/pkg/conflict"
	"github.com/goliatone/go-statesync/pkg/config"
	"github.com/goliatone/go-statesync/pkg/domain"
	"github.com/goliatone/go-statesync/pkg/interfaces/logger"
	"github.com/goliatone/go-statesync/pkg/interfaces/store"
	"github.com/goliatone/go-statesync/pkg/retry"
)

// DefaultInterval is the periodic reconciliation cadence.
const DefaultInterval = 5 * time.Second

var (
	// ErrMissingRemote is returned when no remote adapter is supplied.
	ErrMissingRemote = errors.New("sync: remote adapter is required")
	// ErrMissingResolver is returned when no conflict resolver is supplied.
	ErrMissingResolver = errors.New("sync: conflict resolver is required")
	// ErrSyncInFlight reports that a pass was dropped because another one is
	// still running. Drops are deliberate: pending syncs suppress new ones,
	// they are never queued.
	ErrSyncInFlight = errors.New("sync: a sync pass is already in flight")
	// ErrAlreadyStarted is returned by Start on a running orchestrator.
	ErrAlreadyStarted = errors.New("sync: orchestrator already started")
)

// Dependencies groups the collaborators required by the orchestrator.
type Dependencies struct {
	Remote     store.Adapter
	Subscriber store.Subscriber // optional real-time change feed
	Resolver   *conflict.Resolver
	Logger     logger.Logger
	Backoff    retry.Backoff // used when re-establishing a broken subscription
	Config     config.SyncConfig

	// OnResult receives the audit record of each pass that found divergence.
	OnResult func(domain.SyncResult)
	// OnError receives transport failures. The orchestrator never retries a
	// failed pass; it waits for the next tick.
	OnError func(error)
	// OnChange is invoked when reconciliation changes the local state. The
	// mutation is flagged internally so a state setter that calls back into
	// SetState does not echo the remote's own update back out.
	OnChange func(domain.Document)
}

// Orchestrator owns one key's reconciliation loop. All mutable coordination
// state (timer, pending flag, last-synced snapshot) lives on the instance, so
// multiple stores can run independent orchestrators safely.
type Orchestrator struct {
	id         uuid.UUID
	key        string
	interval   time.Duration
	remote     store.Adapter
	subscriber store.Subscriber
	resolver   *conflict.Resolver
	logger     logger.Logger
	backoff    retry.Backoff
	onResult   func(domain.SyncResult)
	onError    func(error)
	onChange   func(domain.Document)

	mu             gosync.Mutex
	state          domain.Document
	lastSynced     string
	applyingRemote bool

	pending atomic.Bool

	runMu       gosync.Mutex
	cancel      context.CancelFunc
	done        chan struct{}
	unsubscribe func()
}

// New builds an orchestrator. The remote adapter and resolver are required;
// everything else has defaults.
func New(deps Dependencies) (*Orchestrator, error) {
	if deps.Remote == nil {
		return nil, ErrMissingRemote
	}
	if deps.Resolver == nil {
		return nil, ErrMissingResolver
	}
	if deps.Logger == nil {
		deps.Logger = &logger.Nop{}
	}
	if deps.Backoff == nil {
		deps.Backoff = retry.DefaultBackoff()
	}
	key := deps.Config.Key
	if key == "" {
		key = "state"
	}
	interval := deps.Config.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Orchestrator{
		id:         uuid.New(),
		key:        key,
		interval:   interval,
		remote:     deps.Remote,
		subscriber: deps.Subscriber,
		resolver:   deps.Resolver,
		logger:     deps.Logger.With(logger.Field{Key: "key", Value: key}),
		backoff:    deps.Backoff,
		onResult:   deps.OnResult,
		onError:    deps.OnError,
		onChange:   deps.OnChange,
	}, nil
}

// ID returns the orchestrator instance id.
func (o *Orchestrator) ID() uuid.UUID {
	return o.id
}

// SetState replaces the local in-memory state with a copy of doc.
func (o *Orchestrator) SetState(doc domain.Document) {
	o.mu.Lock()
	o.state = doc.Clone()
	o.mu.Unlock()
}

// State returns a copy of the local in-memory state.
func (o *Orchestrator) State() domain.Document {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Clone()
}

// Start launches the periodic timer and, when a subscriber is configured,
// establishes the remote change feed. It returns immediately; reconciliation
// runs until Stop or until ctx is cancelled.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	if o.cancel != nil {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.done = make(chan struct{})

	if o.subscriber != nil {
		go o.subscribeLoop(runCtx)
	}
	go o.tickLoop(runCtx)
	return nil
}

// Stop cancels the timer and releases the subscription. An already
// dispatched remote write is not aborted; it completes or fails
// asynchronously after teardown.
func (o *Orchestrator) Stop() {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	if o.cancel == nil {
		return
	}
	o.cancel()
	o.cancel = nil
	if o.unsubscribe != nil {
		o.unsubscribe()
		o.unsubscribe = nil
	}
	<-o.done
}

// SyncNow performs one reconciliation pass synchronously. It returns
// ErrSyncInFlight when another pass is running.
func (o *Orchestrator) SyncNow(ctx context.Context) (domain.SyncResult, error) {
	if !o.pending.CompareAndSwap(false, true) {
		return domain.SyncResult{}, ErrSyncInFlight
	}
	defer o.pending.Store(false)
	return o.reconcile(ctx)
}

func (o *Orchestrator) tickLoop(ctx context.Context) {
	defer close(o.done)
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.pass(ctx)
		}
	}
}

func (o *Orchestrator) subscribeLoop(ctx context.Context) {
	for attempt := 1; ; attempt++ {
		cancel, err := o.subscriber.Subscribe(ctx, o.key, func(event store.Event) {
			// A push notification only signals divergence; the pass itself
			// re-reads the remote so stale events cannot clobber state.
			go o.pass(ctx)
		})
		if err == nil {
			o.runMu.Lock()
			o.unsubscribe = cancel
			o.runMu.Unlock()
			return
		}
		o.reportError(fmt.Errorf("sync: subscribe: %w", err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(o.backoff.Next(attempt)):
		}
	}
}

// pass runs one reconciliation attempt, dropping it when one is in flight.
func (o *Orchestrator) pass(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	_, err := o.SyncNow(ctx)
	if errors.Is(err, ErrSyncInFlight) {
		o.logger.Debug("sync pass dropped, previous pass still in flight")
		return
	}
	if err != nil {
		o.reportError(err)
	}
}

func (o *Orchestrator) reconcile(ctx context.Context) (domain.SyncResult, error) {
	local := o.State()
	localBlob, err := local.Marshal()
	if err != nil {
		return domain.SyncResult{}, err
	}

	remoteBlob, ok, err := o.remote.Get(ctx, o.key)
	if err != nil {
		return domain.SyncResult{}, fmt.Errorf("sync: read remote: %w", err)
	}

	if !ok {
		// First writer for this key: seed the remote with the local state.
		if err := o.writeRemote(ctx, localBlob); err != nil {
			return domain.SyncResult{}, err
		}
		o.setLastSynced(localBlob)
		return domain.SyncResult{
			ID:         uuid.New(),
			State:      local,
			Strategy:   string(o.resolver.Strategy()),
			ResolvedAt: time.Now().UTC(),
		}, nil
	}

	remote, err := domain.ParseDocument(remoteBlob)
	if err != nil {
		return domain.SyncResult{}, fmt.Errorf("sync: parse remote: %w", err)
	}

	result, err := o.resolver.Resolve(local, remote)
	if err != nil {
		return domain.SyncResult{}, err
	}
	resolvedBlob, err := result.State.Marshal()
	if err != nil {
		return domain.SyncResult{}, err
	}

	if resolvedBlob != remoteBlob {
		if err := o.writeRemote(ctx, resolvedBlob); err != nil {
			return domain.SyncResult{}, err
		}
	}
	if resolvedBlob != localBlob {
		o.applyResolved(result.State)
	}
	o.setLastSynced(resolvedBlob)

	if localBlob != remoteBlob {
		o.logger.Info("divergence reconciled",
			logger.Field{Key: "strategy", Value: result.Strategy},
			logger.Field{Key: "had_conflict", Value: result.HadConflict})
		if o.onResult != nil {
			o.onResult(result)
		}
	}
	return result, nil
}

// writeRemote propagates a winner to the remote. The write deliberately
// survives teardown: Stop does not abort a dispatched write.
func (o *Orchestrator) writeRemote(ctx context.Context, blob string) error {
	if err := o.remote.Set(context.WithoutCancel(ctx), o.key, blob); err != nil {
		return fmt.Errorf("sync: write remote: %w", err)
	}
	return nil
}

// applyResolved installs a reconciled state locally. The applyingRemote flag
// marks the mutation as remote-driven for the duration of the OnChange
// callback, so callers wiring OnChange back into SetState do not trigger an
// outbound echo of the remote's own update.
func (o *Orchestrator) applyResolved(doc domain.Document) {
	o.mu.Lock()
	o.state = doc.Clone()
	o.applyingRemote = true
	o.mu.Unlock()

	if o.onChange != nil {
		o.onChange(doc.Clone())
	}

	o.mu.Lock()
	o.applyingRemote = false
	o.mu.Unlock()
}

// ApplyingRemote reports whether the current local mutation originates from
// a remote update rather than from the caller.
func (o *Orchestrator) ApplyingRemote() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.applyingRemote
}

func (o *Orchestrator) setLastSynced(blob string) {
	o.mu.Lock()
	o.lastSynced = blob
	o.mu.Unlock()
}

// LastSynced returns the serialized snapshot of the last reconciled state.
func (o *Orchestrator) LastSynced() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastSynced
}

func (o *Orchestrator) reportError(err error) {
	o.logger.Error("sync error", logger.Field{Key: "error", Value: err})
	if o.onError != nil {
		o.onError(err)
	}
}
