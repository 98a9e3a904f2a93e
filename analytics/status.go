package analytics

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"agencyflow/policy"
)

type StatusCounts struct {
	Submitted  int `json:"submitted"`
	Active     int `json:"active"`
	Lapsed     int `json:"lapsed"`
	Cancelled  int `json:"cancelled"`
	TakeAction int `json:"takeAction"`
}

type Metrics struct {
	PendingActionPercentage float64            `json:"pendingActionPercentage"`
	AvgDaysInPolicy         float64            `json:"avgDaysInPolicy"`
	DropOffRate             float64            `json:"dropOffRate"`
	TotalPolicies           int                `json:"totalPolicies"`
	ConservationRatio       string             `json:"conservationRatio"`
	ProcessType             policy.ProcessType `json:"processType"`
}

type RawStatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

type StatusCountsResult struct {
	StatusCounts    StatusCounts     `json:"statusCounts"`
	Metrics         Metrics          `json:"metrics"`
	RawStatusCounts []RawStatusCount `json:"rawStatusCounts"`
}

// takeActionStats summarizes the policies that have at least one record.
type takeActionStats struct {
	total     int
	pending   int
	completed int
	avgDays   float64
}

// StatusCounts computes per-status counts and the derived take-action metrics.
// Named counts exclude Rejected policies; raw counts do not.
func (e *Engine) StatusCounts(ctx context.Context, f policy.Filter, mode policy.BobMode) (res StatusCountsResult, err error) {
	ctx, span := e.startSpan(ctx, "analytics.status_counts", f, mode)
	defer func() { endSpan(span, err) }()

	pred, err := e.scope(ctx, f, mode)
	if err != nil {
		return StatusCountsResult{}, err
	}

	var (
		named map[policy.Status]int
		raw   map[policy.Status]int
		total int
		stats takeActionStats
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		named, err = e.countByStatus(gctx, pred.WithoutActionStatuses(policy.ActionRejected))
		return err
	})
	g.Go(func() error {
		var err error
		raw, err = e.countByStatus(gctx, pred)
		return err
	})
	g.Go(func() error {
		n, err := e.policies.Count(gctx, pred)
		total = n
		return storeErr("count policies", err)
	})
	g.Go(func() error {
		var err error
		stats, err = e.takeActionStats(gctx, pred)
		return err
	})
	if err := g.Wait(); err != nil {
		return StatusCountsResult{}, err
	}

	counts := StatusCounts{
		Submitted:  named[policy.StatusSubmitted],
		Active:     named[policy.StatusActive],
		Lapsed:     named[policy.StatusLapsed],
		Cancelled:  named[policy.StatusCancelled],
		TakeAction: stats.total,
	}
	return StatusCountsResult{
		StatusCounts: counts,
		Metrics: Metrics{
			PendingActionPercentage: percent(stats.pending, stats.total),
			AvgDaysInPolicy:         stats.avgDays,
			DropOffRate:             DropOffRate(counts.Lapsed, counts.Submitted),
			TotalPolicies:           total,
			ConservationRatio:       fmt.Sprintf("%d/%d", stats.completed, stats.total),
			ProcessType:             policy.ProcessTypeFor(f.RequestedBob()),
		},
		RawStatusCounts: rawCounts(raw),
	}, nil
}

// DropOffRate is lapsed/submitted*100, or 0 when nothing was submitted.
func DropOffRate(lapsed, submitted int) float64 {
	return percent(lapsed, submitted)
}

// countByStatus prefers one grouped query and falls back to a count per status
// when the store rejects the grouping.
func (e *Engine) countByStatus(ctx context.Context, pred policy.Predicate) (map[policy.Status]int, error) {
	counts, err := e.policies.CountByStatus(ctx, pred)
	if err == nil {
		return counts, nil
	}
	e.log.Warn("grouped status count failed, counting per status", zap.Error(err))

	counts = make(map[policy.Status]int, len(policy.Statuses))
	for _, s := range policy.Statuses {
		n, err := e.policies.Count(ctx, pred.WithStatuses(s))
		if err != nil {
			return nil, storeErr("count by status", err)
		}
		if n > 0 {
			counts[s] = n
		}
	}
	return counts, nil
}

// takeActionStats joins the matching policies to their first action record
// under the predicate's bob constraint.
func (e *Engine) takeActionStats(ctx context.Context, pred policy.Predicate) (takeActionStats, error) {
	list, err := e.allPolicies(ctx, pred)
	if err != nil {
		return takeActionStats{}, err
	}
	first, err := e.firstActions(ctx, policyNumbers(list), pred.Bob)
	if err != nil {
		return takeActionStats{}, err
	}

	now := e.now()
	var (
		stats   takeActionStats
		sumDays float64
		samples int
	)
	for _, p := range list {
		at, ok := first[p.PolicyNumber]
		if !ok {
			continue
		}
		stats.total++

		end := now
		switch p.ActionStatus {
		case policy.ActionPending:
			stats.pending++
		case policy.ActionCompleted:
			stats.completed++
			if p.ActionCompletedDate != nil {
				end = *p.ActionCompletedDate
			}
		default:
			continue
		}
		if days := daysBetween(at, end); days >= 0 {
			sumDays += days
			samples++
		}
	}
	if samples > 0 {
		stats.avgDays = round2(sumDays / float64(samples))
	}
	return stats, nil
}

func rawCounts(counts map[policy.Status]int) []RawStatusCount {
	out := make([]RawStatusCount, 0, len(counts))
	known := make(map[policy.Status]bool, len(policy.Statuses))
	for _, s := range policy.Statuses {
		known[s] = true
		if n := counts[s]; n > 0 {
			out = append(out, RawStatusCount{Status: string(s), Count: n})
		}
	}

	var other []RawStatusCount
	for s, n := range counts {
		if !known[s] && n > 0 {
			other = append(other, RawStatusCount{Status: string(s), Count: n})
		}
	}
	sort.Slice(other, func(i, j int) bool { return other[i].Status < other[j].Status })
	return append(out, other...)
}
