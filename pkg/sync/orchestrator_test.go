package sync

import (
	"context"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/goliatone/go-statesync/pkg/conflict"
	"github.com/goliatone/go-statesync/pkg/config"
	"github.com/goliatone/go-statesync/pkg/domain"
	"github.com/goliatone/go-statesync/pkg/interfaces/store"
)

type fakeRemote struct {
	mu   gosync.Mutex
	data map[string]string

	getErr  error
	setErr  error
	getGate chan struct{} // when set, Get blocks until the gate closes
}

var _ store.Adapter = (*fakeRemote)(nil)

func newFakeRemote() *fakeRemote {
	return &fakeRemote{data: map[string]string{}}
}

func (f *fakeRemote) Get(ctx context.Context, key string) (string, bool, error) {
	if f.getGate != nil {
		<-f.getGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return "", false, f.getErr
	}
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeRemote) Set(ctx context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.data[key] = value
	return nil
}

func (f *fakeRemote) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func (f *fakeRemote) stored(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok
}

type fakeSubscriber struct {
	mu       gosync.Mutex
	failures int
	attempts int
	handler  func(store.Event)
	canceled bool
}

var _ store.Subscriber = (*fakeSubscriber)(nil)

func (f *fakeSubscriber) Subscribe(ctx context.Context, key string, fn func(store.Event)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.attempts <= f.failures {
		return nil, errors.New("feed unavailable")
	}
	f.handler = fn
	return func() {
		f.mu.Lock()
		f.canceled = true
		f.mu.Unlock()
	}, nil
}

func (f *fakeSubscriber) emit(event store.Event) bool {
	f.mu.Lock()
	fn := f.handler
	f.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(event)
	return true
}

type fixedBackoff struct{ d time.Duration }

func (b fixedBackoff) Next(int) time.Duration { return b.d }

func mustOrchestrator(t *testing.T, deps Dependencies) *Orchestrator {
	t.Helper()
	if deps.Resolver == nil {
		deps.Resolver = conflict.New()
	}
	o, err := New(deps)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	return o
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestNewRequiresDependencies(t *testing.T) {
	resolver := conflict.New()
	if _, err := New(Dependencies{Resolver: resolver}); !errors.Is(err, ErrMissingRemote) {
		t.Fatalf("expected ErrMissingRemote, got %v", err)
	}
	if _, err := New(Dependencies{Remote: newFakeRemote()}); !errors.Is(err, ErrMissingResolver) {
		t.Fatalf("expected ErrMissingResolver, got %v", err)
	}
}

func TestSyncNowSeedsAbsentRemote(t *testing.T) {
	remote := newFakeRemote()
	o := mustOrchestrator(t, Dependencies{Remote: remote})
	o.SetState(domain.Document{"theme": "dark"})

	result, err := o.SyncNow(context.Background())
	if err != nil {
		t.Fatalf("sync returned error: %v", err)
	}
	if result.HadConflict {
		t.Fatalf("seeding must not report a conflict")
	}

	blob, ok := remote.stored("state")
	if !ok {
		t.Fatalf("remote was not seeded")
	}
	doc, err := domain.ParseDocument(blob)
	if err != nil {
		t.Fatalf("parse remote: %v", err)
	}
	if doc["theme"] != "dark" {
		t.Fatalf("unexpected remote state: %v", doc)
	}
	if o.LastSynced() != blob {
		t.Fatalf("last synced snapshot not recorded")
	}
}

func TestSyncNowAdoptsNewerRemote(t *testing.T) {
	remote := newFakeRemote()
	remoteDoc := domain.Document{"theme": "light", "_updatedAt": float64(200)}
	blob, _ := remoteDoc.Marshal()
	remote.data["state"] = blob

	var (
		mu       gosync.Mutex
		results  []domain.SyncResult
		applied  []domain.Document
		fromSync bool
	)

	o := mustOrchestrator(t, Dependencies{
		Remote: remote,
		OnResult: func(r domain.SyncResult) {
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		},
	})
	o.onChange = func(doc domain.Document) {
		mu.Lock()
		applied = append(applied, doc)
		fromSync = o.ApplyingRemote()
		mu.Unlock()
	}
	o.SetState(domain.Document{"theme": "dark", "_updatedAt": float64(100)})

	result, err := o.SyncNow(context.Background())
	if err != nil {
		t.Fatalf("sync returned error: %v", err)
	}
	if !result.HadConflict {
		t.Fatalf("expected a conflict")
	}
	if result.Strategy != string(conflict.StrategyLastWriteWins) {
		t.Fatalf("unexpected strategy %q", result.Strategy)
	}
	if got := o.State()["theme"]; got != "light" {
		t.Fatalf("local state not updated, got %v", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(results) != 1 {
		t.Fatalf("expected one result callback, got %d", len(results))
	}
	if len(applied) != 1 || applied[0]["theme"] != "light" {
		t.Fatalf("change callback missing or wrong: %v", applied)
	}
	if !fromSync {
		t.Fatalf("remote-driven mutation was not flagged")
	}
}

func TestSyncNowPushesNewerLocal(t *testing.T) {
	remote := newFakeRemote()
	remoteDoc := domain.Document{"count": float64(1), "_updatedAt": float64(100)}
	blob, _ := remoteDoc.Marshal()
	remote.data["state"] = blob

	o := mustOrchestrator(t, Dependencies{Remote: remote})
	o.SetState(domain.Document{"count": float64(5), "_updatedAt": float64(300)})

	if _, err := o.SyncNow(context.Background()); err != nil {
		t.Fatalf("sync returned error: %v", err)
	}

	stored, _ := remote.stored("state")
	doc, err := domain.ParseDocument(stored)
	if err != nil {
		t.Fatalf("parse remote: %v", err)
	}
	if doc["count"] != float64(5) {
		t.Fatalf("local winner not written to remote: %v", doc)
	}
}

func TestSyncNowNoDivergenceSkipsCallbacks(t *testing.T) {
	remote := newFakeRemote()
	doc := domain.Document{"theme": "dark"}
	blob, _ := doc.Marshal()
	remote.data["state"] = blob

	called := false
	o := mustOrchestrator(t, Dependencies{
		Remote:   remote,
		OnResult: func(domain.SyncResult) { called = true },
	})
	o.SetState(doc)

	result, err := o.SyncNow(context.Background())
	if err != nil {
		t.Fatalf("sync returned error: %v", err)
	}
	if result.HadConflict {
		t.Fatalf("identical state must not conflict")
	}
	if called {
		t.Fatalf("no-op sync must not report a result")
	}
}

func TestSyncNowSingleFlight(t *testing.T) {
	remote := newFakeRemote()
	gate := make(chan struct{})
	remote.getGate = gate

	o := mustOrchestrator(t, Dependencies{Remote: remote})
	o.SetState(domain.Document{"a": float64(1)})

	errc := make(chan error, 1)
	go func() {
		_, err := o.SyncNow(context.Background())
		errc <- err
	}()

	waitFor(t, func() bool { return o.pending.Load() })

	if _, err := o.SyncNow(context.Background()); !errors.Is(err, ErrSyncInFlight) {
		t.Fatalf("expected ErrSyncInFlight, got %v", err)
	}

	close(gate)
	if err := <-errc; err != nil {
		t.Fatalf("first sync failed: %v", err)
	}
}

func TestSyncNowReadErrorPropagates(t *testing.T) {
	remote := newFakeRemote()
	remote.getErr = errors.New("network down")

	o := mustOrchestrator(t, Dependencies{Remote: remote})
	o.SetState(domain.Document{"a": float64(1)})

	if _, err := o.SyncNow(context.Background()); err == nil {
		t.Fatalf("expected transport error")
	}
}

func TestStartStopLifecycle(t *testing.T) {
	remote := newFakeRemote()
	o := mustOrchestrator(t, Dependencies{
		Remote: remote,
		Config: config.SyncConfig{Interval: 10 * time.Millisecond},
	})
	o.SetState(domain.Document{"theme": "dark"})

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := o.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}

	waitFor(t, func() bool {
		_, ok := remote.stored("state")
		return ok
	})

	o.Stop()
	// Stop twice is a no-op.
	o.Stop()
}

func TestSubscriberEventTriggersPass(t *testing.T) {
	remote := newFakeRemote()
	sub := &fakeSubscriber{}

	o := mustOrchestrator(t, Dependencies{
		Remote:     remote,
		Subscriber: sub,
		Config:     config.SyncConfig{Interval: time.Hour},
	})
	o.SetState(domain.Document{"theme": "dark"})

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer o.Stop()

	waitFor(t, func() bool {
		sub.mu.Lock()
		defer sub.mu.Unlock()
		return sub.handler != nil
	})

	// The timer is effectively off; only the push event can cause the write.
	if !sub.emit(store.Event{Key: "state"}) {
		t.Fatalf("no handler registered")
	}
	waitFor(t, func() bool {
		_, ok := remote.stored("state")
		return ok
	})
}

func TestSubscribeRetriesWithBackoff(t *testing.T) {
	remote := newFakeRemote()
	sub := &fakeSubscriber{failures: 2}

	var errCount int
	var mu gosync.Mutex

	o := mustOrchestrator(t, Dependencies{
		Remote:     remote,
		Subscriber: sub,
		Backoff:    fixedBackoff{d: time.Millisecond},
		Config:     config.SyncConfig{Interval: time.Hour},
		OnError: func(error) {
			mu.Lock()
			errCount++
			mu.Unlock()
		},
	})

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer o.Stop()

	waitFor(t, func() bool {
		sub.mu.Lock()
		defer sub.mu.Unlock()
		return sub.handler != nil
	})

	mu.Lock()
	defer mu.Unlock()
	if errCount != 2 {
		t.Fatalf("expected 2 subscribe errors, got %d", errCount)
	}
}

func TestStopReleasesSubscription(t *testing.T) {
	remote := newFakeRemote()
	sub := &fakeSubscriber{}

	o := mustOrchestrator(t, Dependencies{
		Remote:     remote,
		Subscriber: sub,
		Config:     config.SyncConfig{Interval: time.Hour},
	})
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, func() bool {
		sub.mu.Lock()
		defer sub.mu.Unlock()
		return sub.handler != nil
	})

	o.Stop()

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if !sub.canceled {
		t.Fatalf("subscription was not released")
	}
}
