// Package conflict reconciles two divergent copies of application state into
// one through a selectable strategy. Resolution is a pure function of the two
// candidates; the resolver object only carries the current strategy setting.
package conflict

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-statesync/pkg/domain"
	"github.com/goliatone/go-statesync/pkg/interfaces/logger"
)

// Strategy names a conflict-resolution policy.
type Strategy string

const (
	// StrategyLastWriteWins selects the side with the greater timestamp.
	StrategyLastWriteWins Strategy = "last-write-wins"
	// StrategyServerWins always selects the remote candidate.
	StrategyServerWins Strategy = "server-wins"
	// StrategyClientWins always selects the local candidate.
	StrategyClientWins Strategy = "client-wins"
	// StrategyMerge recursively merges both candidates.
	StrategyMerge Strategy = "merge"
	// StrategyCustom delegates to a caller-supplied handler.
	StrategyCustom Strategy = "custom"
)

// DefaultTimestampField is the document field consulted by last-write-wins.
const DefaultTimestampField = "_updatedAt"

// Handler is a caller-supplied resolution function for StrategyCustom.
type Handler func(local, remote domain.Document) (domain.Document, error)

// MergeOptions tune the merge strategy only.
type MergeOptions struct {
	// IgnoreKeys keep the local value untouched regardless of the remote.
	IgnoreKeys []string
	// ForceLastWriteWinsKeys always take the remote value.
	ForceLastWriteWinsKeys []string
	// TimestampField overrides DefaultTimestampField.
	TimestampField string
}

// Resolver dispatches resolution to the configured strategy. The strategy is
// mutable; everything else about a resolution is a pure function of the two
// candidate documents.
type Resolver struct {
	mu       sync.RWMutex
	strategy Strategy
	handler  Handler
	merge    MergeOptions
	logger   logger.Logger
	now      func() time.Time
}

// Option configures the resolver.
type Option func(*Resolver)

// WithStrategy sets the initial strategy.
func WithStrategy(s Strategy) Option {
	return func(r *Resolver) { r.strategy = s }
}

// WithHandler supplies the custom-strategy handler.
func WithHandler(h Handler) Option {
	return func(r *Resolver) { r.handler = h }
}

// WithMergeOptions configures the merge strategy.
func WithMergeOptions(opts MergeOptions) Option {
	return func(r *Resolver) { r.merge = opts }
}

// WithLogger attaches a logger; Nop when omitted.
func WithLogger(l logger.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// New builds a resolver, defaulting to last-write-wins.
func New(opts ...Option) *Resolver {
	resolver := &Resolver{
		strategy: StrategyLastWriteWins,
		logger:   &logger.Nop{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(resolver)
	}
	return resolver
}

// SetStrategy switches the active strategy.
func (r *Resolver) SetStrategy(s Strategy) {
	r.mu.Lock()
	r.strategy = s
	r.mu.Unlock()
}

// Strategy returns the active strategy.
func (r *Resolver) Strategy() Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.strategy
}

// SetHandler installs or replaces the custom-strategy handler.
func (r *Resolver) SetHandler(h Handler) {
	r.mu.Lock()
	r.handler = h
	r.mu.Unlock()
}

// Resolve reconciles the two candidates. When both serialize identically the
// local candidate is returned with HadConflict false and no strategy runs, so
// no-op syncs never report a resolved conflict.
func (r *Resolver) Resolve(local, remote domain.Document) (domain.SyncResult, error) {
	r.mu.RLock()
	strategy := r.strategy
	handler := r.handler
	mergeOpts := r.merge
	r.mu.RUnlock()

	localBlob, err := local.Marshal()
	if err != nil {
		return domain.SyncResult{}, err
	}
	remoteBlob, err := remote.Marshal()
	if err != nil {
		return domain.SyncResult{}, err
	}
	if localBlob == remoteBlob {
		return r.result(local, false, strategy), nil
	}

	switch strategy {
	case StrategyLastWriteWins:
		return r.result(lastWriteWins(local, remote, mergeOpts.TimestampField), true, strategy), nil
	case StrategyServerWins:
		return r.result(remote, true, strategy), nil
	case StrategyClientWins:
		return r.result(local, true, strategy), nil
	case StrategyMerge:
		return r.result(mergeDocuments(local, remote, mergeOpts, maxMergeDepth), true, strategy), nil
	case StrategyCustom:
		if handler == nil {
			// No handler registered: fall back without surfacing an error,
			// reporting the strategy that actually ran.
			return r.result(lastWriteWins(local, remote, mergeOpts.TimestampField), true, StrategyLastWriteWins), nil
		}
		resolved, err := handler(local, remote)
		if err != nil {
			return domain.SyncResult{}, fmt.Errorf("conflict: custom handler: %w", err)
		}
		return r.result(resolved, true, strategy), nil
	default:
		return domain.SyncResult{}, fmt.Errorf("conflict: unknown strategy %q", strategy)
	}
}

func (r *Resolver) result(state domain.Document, hadConflict bool, strategy Strategy) domain.SyncResult {
	return domain.SyncResult{
		ID:          uuid.New(),
		State:       state,
		HadConflict: hadConflict,
		Strategy:    string(strategy),
		ResolvedAt:  r.now().UTC(),
	}
}

// lastWriteWins compares the timestamp field on both sides. A missing or
// unreadable timestamp counts as epoch 0; only a strictly greater remote
// timestamp wins, so ties favor local.
func lastWriteWins(local, remote domain.Document, field string) domain.Document {
	if field == "" {
		field = DefaultTimestampField
	}
	if timestampOf(remote[field]) > timestampOf(local[field]) {
		return remote
	}
	return local
}

func timestampOf(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case time.Time:
		return float64(val.UnixMilli())
	case string:
		if parsed, err := time.Parse(time.RFC3339, val); err == nil {
			return float64(parsed.UnixMilli())
		}
		return 0
	default:
		return 0
	}
}
