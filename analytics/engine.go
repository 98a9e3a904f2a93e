package analytics

import (
	"context"
	"maps"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"agencyflow/calendar"
	"agencyflow/hierarchy"
	"agencyflow/policy"
	"agencyflow/takeaction"
)

// lookupBatch bounds the policy numbers sent in one action-record query.
const lookupBatch = 500

// Resolver resolves an agent's downline. Close ends the resolver's lifecycle.
type Resolver interface {
	Resolve(ctx context.Context, root string) hierarchy.Set
	Close() error
}

// Engine computes hierarchy-scoped rollups over policies and action records.
type Engine struct {
	resolver Resolver
	policies policy.Store
	actions  takeaction.Store
	linker   *takeaction.Linker
	dates    calendar.Boundary
	now      func() time.Time
	log      *zap.Logger
	tracer   trace.Tracer
}

func NewEngine(resolver Resolver, policies policy.Store, actions takeaction.Store, dates calendar.Boundary) *Engine {
	if dates == nil {
		dates = calendar.UTC()
	}
	return &Engine{
		resolver: resolver,
		policies: policies,
		actions:  actions,
		linker:   takeaction.NewLinker(actions),
		dates:    dates,
		now:      time.Now,
		log:      zap.NewNop(),
		tracer:   otel.Tracer("agencyflow/analytics"),
	}
}

// WithClock overrides the time source, primarily for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	if now != nil {
		e.now = now
	}
	return e
}

func (e *Engine) WithLogger(log *zap.Logger) *Engine {
	if log != nil {
		e.log = log
	}
	return e
}

// Close disposes the resolver and its cache sweeper.
func (e *Engine) Close() error {
	return e.resolver.Close()
}

// scope validates f, resolves owners and builds the base predicate.
func (e *Engine) scope(ctx context.Context, f policy.Filter, mode policy.BobMode) (policy.Predicate, error) {
	if err := f.Validate(); err != nil {
		return policy.Predicate{}, err
	}
	owners := hierarchy.NewSet(f.NPN)
	if !f.SelfOnly {
		owners = e.resolver.Resolve(ctx, f.NPN)
	}
	return policy.BuildPredicate(owners, f, mode, e.dates)
}

func (e *Engine) startSpan(ctx context.Context, name string, f policy.Filter, mode policy.BobMode) (context.Context, trace.Span) {
	ctx, span := e.tracer.Start(ctx, name)
	span.SetAttributes(
		attribute.String("analytics.npn", f.NPN),
		attribute.String("analytics.bob_mode", mode.String()),
	)
	return ctx, span
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// firstActions looks up the oldest record per policy number, fanning out in
// bounded batches.
func (e *Engine) firstActions(ctx context.Context, numbers []string, bob *policy.Bob) (map[string]time.Time, error) {
	out := make(map[string]time.Time, len(numbers))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for start := 0; start < len(numbers); start += lookupBatch {
		batch := numbers[start:min(start+lookupBatch, len(numbers))]
		g.Go(func() error {
			times, err := e.actions.FirstActionTimes(gctx, batch, bob)
			if err != nil {
				return err
			}
			mu.Lock()
			maps.Copy(out, times)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, storeErr("first action times", err)
	}
	return out, nil
}

// allPolicies loads every policy matching pred.
func (e *Engine) allPolicies(ctx context.Context, pred policy.Predicate) ([]policy.Policy, error) {
	list, err := e.policies.Find(ctx, pred, policy.Page{SortKey: "policyNumber"})
	if err != nil {
		return nil, storeErr("find policies", err)
	}
	return list, nil
}

func policyNumbers(list []policy.Policy) []string {
	out := make([]string, len(list))
	for i, p := range list {
		out[i] = p.PolicyNumber
	}
	return out
}

func daysBetween(from, to time.Time) float64 {
	return to.Sub(from).Hours() / 24
}
