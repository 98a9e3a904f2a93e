package hierarchy

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Resolver answers downline queries through a cache and an ordered strategy chain.
type Resolver struct {
	cache      Cache
	strategies []Strategy
	log        *zap.Logger
	ins        instruments
}

// NewResolver wires a resolver. A nil cache selects a MemoryCache with defaults.
func NewResolver(cache Cache, strategies ...Strategy) *Resolver {
	if cache == nil {
		cache = NewMemoryCache(DefaultTTL, DefaultSweepInterval)
	}
	return &Resolver{
		cache:      cache,
		strategies: strategies,
		log:        zap.NewNop(),
		ins:        newInstruments(),
	}
}

// WithLogger sets the logger used for fallback transitions.
func (r *Resolver) WithLogger(log *zap.Logger) *Resolver {
	if log != nil {
		r.log = log
	}
	return r
}

// Resolve returns root plus every agent below it. It never fails: when every
// strategy errors the result degrades to {root}, and that result is cached too.
// A degraded result caused by ctx ending is returned but not cached.
func (r *Resolver) Resolve(ctx context.Context, root string) Set {
	ctx, span := r.ins.tracer.Start(ctx, "hierarchy.resolve")
	defer span.End()
	span.SetAttributes(attribute.String("hierarchy.root", root))

	if set, ok := r.cache.Get(ctx, root); ok {
		r.ins.hits.Add(ctx, 1)
		span.SetAttributes(attribute.Bool("hierarchy.cache_hit", true))
		return set
	}
	r.ins.misses.Add(ctx, 1)

	set := NewSet(root)
	for _, s := range r.strategies {
		resolved, err := s.Resolve(ctx, root)
		if err != nil {
			r.ins.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("strategy", s.Name())))
			r.log.Warn("hierarchy strategy failed",
				zap.String("root", root),
				zap.String("strategy", s.Name()),
				zap.Error(err),
			)
			continue
		}
		resolved.Add(root)
		set = resolved
		span.SetAttributes(attribute.String("hierarchy.strategy", s.Name()))
		break
	}

	span.SetAttributes(attribute.Int("hierarchy.size", set.Len()))
	if err := ctx.Err(); err != nil {
		r.log.Debug("hierarchy resolve abandoned", zap.String("root", root), zap.Error(err))
		return set.Clone()
	}
	r.cache.Put(ctx, root, set)
	return set.Clone()
}

// Clear drops every cached resolution.
func (r *Resolver) Clear(ctx context.Context) error {
	return r.cache.Clear(ctx)
}

// Close releases the cache and stops any background sweeper.
func (r *Resolver) Close() error {
	return r.cache.Close()
}
