package hierarchy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agencyflow/agent"
)

func ptr(s string) *string { return &s }

func seedStore() *agent.MemoryStore {
	m := agent.NewMemoryStore()
	m.Save(agent.Agent{NPN: "A", Name: "Alice"})
	m.Save(agent.Agent{NPN: "B", UplineNPN: ptr("A"), Name: "Bob"})
	m.Save(agent.Agent{NPN: "C", UplineNPN: ptr("A"), Name: "Cara"})
	m.Save(agent.Agent{NPN: "D", UplineNPN: ptr("B"), Name: "Dev"})
	return m
}

// flakyStore fails the selected operations and counts calls.
type flakyStore struct {
	agent.Store
	failDownline bool
	failReports  bool
	failBatchAt  int

	mu           sync.Mutex
	downline     int
	reports      int
	largestBatch int
}

func (f *flakyStore) Downline(ctx context.Context, root string, depth int) ([]string, error) {
	f.mu.Lock()
	f.downline++
	f.mu.Unlock()
	if f.failDownline {
		return nil, errors.New("stage limit exceeded")
	}
	return f.Store.Downline(ctx, root, depth)
}

func (f *flakyStore) DirectReports(ctx context.Context, uplines []string) ([]agent.Agent, error) {
	f.mu.Lock()
	f.reports++
	if len(uplines) > f.largestBatch {
		f.largestBatch = len(uplines)
	}
	f.mu.Unlock()
	if f.failReports || (f.failBatchAt > 0 && len(uplines) > f.failBatchAt) {
		return nil, errors.New("payload too large")
	}
	return f.Store.DirectReports(ctx, uplines)
}

func newTestResolver(store agent.Store) *Resolver {
	r := NewResolver(NewMemoryCache(time.Minute, time.Hour), DefaultStrategies(store)...)
	return r
}

func TestResolve_Scenario(t *testing.T) {
	r := newTestResolver(seedStore())
	defer r.Close()
	ctx := context.Background()

	assert.Equal(t, []string{"A", "B", "C", "D"}, r.Resolve(ctx, "A").Slice())
	assert.Equal(t, []string{"B", "D"}, r.Resolve(ctx, "B").Slice())
	assert.Equal(t, []string{"D"}, r.Resolve(ctx, "D").Slice())
}

func TestResolve_SelfInclusionForUnknownRoot(t *testing.T) {
	r := newTestResolver(seedStore())
	defer r.Close()

	got := r.Resolve(context.Background(), "ghost")
	assert.Equal(t, []string{"ghost"}, got.Slice())
}

func TestResolve_FallsBackToBreadthFirst(t *testing.T) {
	store := &flakyStore{Store: seedStore(), failDownline: true}
	r := newTestResolver(store)
	defer r.Close()

	got := r.Resolve(context.Background(), "A")
	assert.Equal(t, []string{"A", "B", "C", "D"}, got.Slice())
	assert.Equal(t, 1, store.downline)
	assert.Positive(t, store.reports)
}

func TestResolve_FallsBackToSmallerBatches(t *testing.T) {
	base := agent.NewMemoryStore()
	base.Save(agent.Agent{NPN: "root"})
	for i := 0; i < 120; i++ {
		npn := "child-" + string(rune('a'+i%26)) + string(rune('a'+i/26))
		base.Save(agent.Agent{NPN: npn, UplineNPN: ptr("root")})
		base.Save(agent.Agent{NPN: npn + "-leaf", UplineNPN: ptr(npn)})
	}
	store := &flakyStore{Store: base, failDownline: true, failBatchAt: 50}
	r := newTestResolver(store)
	defer r.Close()

	got := r.Resolve(context.Background(), "root")
	assert.Equal(t, 241, got.Len())
	assert.True(t, got.Has("root"))
	assert.Equal(t, 100, store.largestBatch)
}

func TestResolve_DegradesToSelfAndCaches(t *testing.T) {
	store := &flakyStore{Store: seedStore(), failDownline: true, failReports: true}
	r := newTestResolver(store)
	defer r.Close()
	ctx := context.Background()

	got := r.Resolve(ctx, "A")
	assert.Equal(t, []string{"A"}, got.Slice())
	calls := store.downline + store.reports

	again := r.Resolve(ctx, "A")
	assert.Equal(t, []string{"A"}, again.Slice())
	assert.Equal(t, calls, store.downline+store.reports, "degraded result must be served from cache")
}

// ctxStore fails every call once its context is done.
type ctxStore struct {
	agent.Store
}

func (c ctxStore) Downline(ctx context.Context, root string, depth int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.Store.Downline(ctx, root, depth)
}

func (c ctxStore) DirectReports(ctx context.Context, uplines []string) ([]agent.Agent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.Store.DirectReports(ctx, uplines)
}

func TestResolve_CancelledCallerDoesNotPoisonCache(t *testing.T) {
	r := newTestResolver(ctxStore{Store: seedStore()})
	defer r.Close()

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, []string{"A"}, r.Resolve(cancelled, "A").Slice())

	got := r.Resolve(context.Background(), "A")
	assert.Equal(t, []string{"A", "B", "C", "D"}, got.Slice())
}

func TestResolve_IdempotentWithinTTL(t *testing.T) {
	base := seedStore()
	store := &flakyStore{Store: base}
	r := newTestResolver(store)
	defer r.Close()
	ctx := context.Background()

	first := r.Resolve(ctx, "A")
	base.Reparent("D", "")
	second := r.Resolve(ctx, "A")

	assert.Equal(t, first.Slice(), second.Slice())
	assert.Equal(t, 1, store.downline)

	require.NoError(t, r.Clear(ctx))
	third := r.Resolve(ctx, "A")
	assert.Equal(t, []string{"A", "B", "C"}, third.Slice())
}

func TestResolve_ReturnedSetIsDetached(t *testing.T) {
	r := newTestResolver(seedStore())
	defer r.Close()
	ctx := context.Background()

	got := r.Resolve(ctx, "B")
	got.Add("intruder")
	assert.False(t, r.Resolve(ctx, "B").Has("intruder"))
}

func TestBreadthFirst_DepthBound(t *testing.T) {
	m := agent.NewMemoryStore()
	prev := "n0"
	m.Save(agent.Agent{NPN: prev})
	for i := 1; i <= 20; i++ {
		npn := "n" + string(rune('0'+i/10)) + string(rune('0'+i%10))
		m.Save(agent.Agent{NPN: npn, UplineNPN: ptr(prev)})
		prev = npn
	}

	got, err := BreadthFirst{Store: m, BatchSize: 100}.Resolve(context.Background(), "n0")
	require.NoError(t, err)
	assert.Equal(t, MaxDepth+1, got.Len())
}

func TestBreadthFirst_Cycle(t *testing.T) {
	m := seedStore()
	m.Reparent("A", "D")

	got, err := BreadthFirst{Store: m, BatchSize: 1}.Resolve(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C", "D"}, got.Slice())
}
