package hierarchy

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"agencyflow/agent"
)

// MaxDepth bounds every traversal against unexpectedly deep or cyclic data.
const MaxDepth = 15

// Strategy resolves the downline of root. Implementations return an error
// rather than a partial set when the store rejects a query.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, root string) (Set, error)
}

// GraphLookup issues a single recursive query against the store.
type GraphLookup struct {
	Store agent.Store
}

func (g GraphLookup) Name() string { return "graph-lookup" }

func (g GraphLookup) Resolve(ctx context.Context, root string) (Set, error) {
	npns, err := g.Store.Downline(ctx, root, MaxDepth)
	if err != nil {
		return nil, err
	}
	set := NewSet(npns...)
	set.Add(root)
	return set, nil
}

// BreadthFirst expands the tree one level at a time, querying direct reports in
// batches of at most BatchSize uplines. Batches within a level run concurrently.
type BreadthFirst struct {
	Store       agent.Store
	BatchSize   int
	Concurrency int
}

func (b BreadthFirst) Name() string { return fmt.Sprintf("bfs-%d", b.batchSize()) }

func (b BreadthFirst) batchSize() int {
	if b.BatchSize <= 0 {
		return 100
	}
	return b.BatchSize
}

func (b BreadthFirst) Resolve(ctx context.Context, root string) (Set, error) {
	limit := b.Concurrency
	if limit <= 0 {
		limit = 4
	}
	size := b.batchSize()

	seen := NewSet(root)
	frontier := []string{root}

	for depth := 0; depth < MaxDepth && len(frontier) > 0; depth++ {
		var (
			mu    sync.Mutex
			found []string
		)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(limit)

		for start := 0; start < len(frontier); start += size {
			end := min(start+size, len(frontier))
			batch := frontier[start:end]
			g.Go(func() error {
				reports, err := b.Store.DirectReports(gctx, batch)
				if err != nil {
					return err
				}
				mu.Lock()
				for _, a := range reports {
					found = append(found, a.NPN)
				}
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		next := make([]string, 0, len(found))
		for _, npn := range found {
			if seen.Add(npn) {
				next = append(next, npn)
			}
		}
		frontier = next
	}
	return seen, nil
}

// DefaultStrategies is the production chain: one recursive query, then BFS
// with 100-wide batches, then BFS with 50-wide batches.
func DefaultStrategies(store agent.Store) []Strategy {
	return []Strategy{
		GraphLookup{Store: store},
		BreadthFirst{Store: store, BatchSize: 100},
		BreadthFirst{Store: store, BatchSize: 50},
	}
}
