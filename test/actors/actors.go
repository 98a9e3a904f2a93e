package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"agencyflow/agent"
	"agencyflow/analytics"
	"agencyflow/hierarchy"
	"agencyflow/policy"
	"agencyflow/takeaction"
)

// ErrInvariant marks a violation observed by an actor. Store errors caused by
// chaos are tolerated; invariant violations end the run.
var ErrInvariant = errors.New("actors: invariant violated")

func stopped(ctx context.Context, stop <-chan struct{}) (bool, error) {
	select {
	case <-ctx.Done():
		return true, ctx.Err()
	case <-stop:
		return true, nil
	default:
		return false, nil
	}
}

func pause(minMs, spreadMs int) {
	time.Sleep(time.Duration(minMs+rand.Intn(spreadMs)) * time.Millisecond)
}

// HierarchyReader resolves random roots and checks every result includes its root.
func HierarchyReader(ctx context.Context, resolver *hierarchy.Resolver, roots []string, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		root := roots[rand.Intn(len(roots))]
		set := resolver.Resolve(ctx, root)
		if !set.Has(root) {
			return fmt.Errorf("%w: resolve %s omitted the root (%v)", ErrInvariant, root, set.Slice())
		}
		pause(5, 15)
	}
}

// Reparenter moves random non-root agents under other agents, sometimes
// creating cycles the resolver must survive.
func Reparenter(ctx context.Context, agents *agent.PGRepository, npns []string, resolver *hierarchy.Resolver, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		child := npns[1+rand.Intn(len(npns)-1)]
		upline := npns[rand.Intn(len(npns))]
		if upline == child {
			continue
		}
		if err := agents.Upsert(ctx, agent.Agent{NPN: child, UplineNPN: &upline, Name: child}); err == nil {
			// Writers invalidate so readers observe the new shape after TTL or clear.
			_ = resolver.Clear(ctx)
		}
		pause(40, 60)
	}
}

// NoteWriter appends take-action notes to random policies.
func NoteWriter(ctx context.Context, notes *takeaction.Service, numbers []string, stop <-chan struct{}) error {
	statuses := []string{"pending", "in progress", "completed", "awaiting docs"}
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		_, _ = notes.CreateNote(ctx, takeaction.NoteRequest{
			PolicyNumber: numbers[rand.Intn(len(numbers))],
			Status:       statuses[rand.Intn(len(statuses))],
			Requirements: "stress",
			Sender:       "stress",
		})
		pause(10, 30)
	}
}

// StatusUpdater flips action statuses through the locked transition.
func StatusUpdater(ctx context.Context, policies *policy.Service, ids []string, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		next := policy.ActionStatuses[rand.Intn(len(policy.ActionStatuses))]
		_, _ = policies.UpdateActionStatus(ctx, ids[rand.Intn(len(ids))], string(next))
		pause(10, 30)
	}
}

// AnalyticsReader runs rollups and checks the bucket-sum and percentage bounds.
func AnalyticsReader(ctx context.Context, engine *analytics.Engine, roots []string, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		f := policy.Filter{NPN: roots[rand.Intn(len(roots))]}

		aging, err := engine.Aging(ctx, f, policy.BobInclusive)
		if err == nil {
			sum := 0
			for _, b := range aging.AgingBuckets {
				sum += b.Count
			}
			if sum != aging.Total {
				return fmt.Errorf("%w: aging buckets sum %d, total %d", ErrInvariant, sum, aging.Total)
			}
		}

		counts, err := engine.StatusCounts(ctx, f, policy.BobInclusive)
		if err == nil {
			if p := counts.Metrics.PendingActionPercentage; p < 0 || p > 100 {
				return fmt.Errorf("%w: pending percentage %v out of range", ErrInvariant, p)
			}
		}
		pause(20, 40)
	}
}
