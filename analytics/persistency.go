package analytics

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"agencyflow/calendar"
	"agencyflow/policy"
)

const (
	persistencyMonths   = 6
	persistencyQuarters = 4
)

type PersistencyWindow struct {
	Label       string    `json:"label"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Active      int       `json:"active"`
	Total       int       `json:"total"`
	Persistency float64   `json:"persistency"`
}

type PersistencyResult struct {
	Monthly     []PersistencyWindow `json:"monthly"`
	Quarterly   []PersistencyWindow `json:"quarterly"`
	Overall     PersistencyWindow   `json:"overall"`
	AnchorDate  time.Time           `json:"anchorDate"`
	ProcessType policy.ProcessType  `json:"processType"`
}

// Persistency reports active/total*100 over six trailing calendar months, four
// trailing calendar quarters and the whole filtered range. Windows are anchored
// at the filter's end date, or today.
func (e *Engine) Persistency(ctx context.Context, f policy.Filter, mode policy.BobMode) (res PersistencyResult, err error) {
	ctx, span := e.startSpan(ctx, "analytics.persistency", f, mode)
	defer func() { endSpan(span, err) }()

	pred, err := e.scope(ctx, f, mode)
	if err != nil {
		return PersistencyResult{}, err
	}

	anchor := e.now().In(e.dates.Location())
	if f.EndDate != "" {
		if anchor, err = e.dates.Parse(f.EndDate); err != nil {
			return PersistencyResult{}, fmt.Errorf("%w: endDate: %w", policy.ErrInvalidFilter, err)
		}
	}
	anchor = e.dates.StartOfDay(anchor)

	monthly := MonthlyWindows(anchor, persistencyMonths)
	quarterly := QuarterlyWindows(anchor, persistencyQuarters)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	fill := func(w *PersistencyWindow, p policy.Predicate) {
		g.Go(func() error {
			total, err := e.policies.Count(gctx, p)
			if err != nil {
				return storeErr("count window", err)
			}
			active, err := e.policies.Count(gctx, p.WithStatuses(policy.StatusActive))
			if err != nil {
				return storeErr("count active window", err)
			}
			w.Total, w.Active = total, active
			w.Persistency = percent(active, total)
			return nil
		})
	}
	for i := range monthly {
		fill(&monthly[i], pred.WithReceivedBetween(monthly[i].Start, monthly[i].End))
	}
	for i := range quarterly {
		fill(&quarterly[i], pred.WithReceivedBetween(quarterly[i].Start, quarterly[i].End))
	}
	overall := PersistencyWindow{Label: "overall"}
	if pred.ReceivedFrom != nil {
		overall.Start = *pred.ReceivedFrom
	}
	if pred.ReceivedTo != nil {
		overall.End = *pred.ReceivedTo
	}
	fill(&overall, pred)

	if err := g.Wait(); err != nil {
		return PersistencyResult{}, err
	}
	return PersistencyResult{
		Monthly:     monthly,
		Quarterly:   quarterly,
		Overall:     overall,
		AnchorDate:  anchor,
		ProcessType: policy.ProcessTypeFor(f.RequestedBob()),
	}, nil
}

// MonthlyWindows returns n calendar months ending with the anchor's month,
// oldest first.
func MonthlyWindows(anchor time.Time, n int) []PersistencyWindow {
	first := calendar.StartOfMonth(anchor)
	out := make([]PersistencyWindow, 0, n)
	for i := n - 1; i >= 0; i-- {
		start := first.AddDate(0, -i, 0)
		out = append(out, PersistencyWindow{
			Label: start.Format("2006-01"),
			Start: start,
			End:   start.AddDate(0, 1, 0).Add(-time.Nanosecond),
		})
	}
	return out
}

// QuarterlyWindows returns n calendar quarters ending with the anchor's quarter,
// oldest first.
func QuarterlyWindows(anchor time.Time, n int) []PersistencyWindow {
	first := calendar.StartOfQuarter(anchor)
	out := make([]PersistencyWindow, 0, n)
	for i := n - 1; i >= 0; i-- {
		start := first.AddDate(0, -3*i, 0)
		out = append(out, PersistencyWindow{
			Label: fmt.Sprintf("%d-Q%d", start.Year(), calendar.Quarter(start)),
			Start: start,
			End:   start.AddDate(0, 3, 0).Add(-time.Nanosecond),
		})
	}
	return out
}
