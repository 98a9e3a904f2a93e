package analytics

import (
	"context"

	"agencyflow/policy"
)

type AgingBucket struct {
	AgeRange string `json:"ageRange"`
	Count    int    `json:"count"`
	MinDays  int    `json:"minDays"`
	MaxDays  *int   `json:"maxDays"`
}

type AgingResult struct {
	AgingBuckets []AgingBucket      `json:"agingBuckets"`
	Total        int                `json:"total"`
	Page         int                `json:"page"`
	Limit        int                `json:"limit"`
	TotalPages   int                `json:"totalPages"`
	ProcessType  policy.ProcessType `json:"processType"`
}

type bucketDef struct {
	label string
	min   int
	max   int // exclusive; 0 means unbounded
}

var agingBuckets = []bucketDef{
	{label: "<2 days", min: 0, max: 2},
	{label: "3-5 Days", min: 2, max: 5},
	{label: "6-10 days", min: 5, max: 10},
	{label: ">10 Days", min: 10},
}

// bucketFor returns the index of the bucket holding days. Negative ages from
// clock skew land in the first bucket.
func bucketFor(days float64) int {
	for i, b := range agingBuckets {
		if b.max == 0 || days < float64(b.max) {
			return i
		}
	}
	return len(agingBuckets) - 1
}

// Aging buckets Pending policies by the age of their first linked action record.
// All four buckets are always present and their counts sum to Total.
func (e *Engine) Aging(ctx context.Context, f policy.Filter, mode policy.BobMode) (res AgingResult, err error) {
	ctx, span := e.startSpan(ctx, "analytics.aging", f, mode)
	defer func() { endSpan(span, err) }()

	pred, err := e.scope(ctx, f, mode)
	if err != nil {
		return AgingResult{}, err
	}

	list, err := e.allPolicies(ctx, pred.WithActionStatuses(policy.ActionPending))
	if err != nil {
		return AgingResult{}, err
	}
	first, err := e.firstActions(ctx, policyNumbers(list), pred.Bob)
	if err != nil {
		return AgingResult{}, err
	}

	counts := make([]int, len(agingBuckets))
	now := e.now()
	total := 0
	for _, p := range list {
		at, ok := first[p.PolicyNumber]
		if !ok {
			continue
		}
		counts[bucketFor(daysBetween(at, now))]++
		total++
	}

	buckets := make([]AgingBucket, len(agingBuckets))
	for i, def := range agingBuckets {
		buckets[i] = AgingBucket{AgeRange: def.label, Count: counts[i], MinDays: def.min}
		if def.max > 0 {
			maxDays := def.max
			buckets[i].MaxDays = &maxDays
		}
	}

	limit := f.PageLimit()
	return AgingResult{
		AgingBuckets: buckets,
		Total:        total,
		Page:         f.PageNumber(),
		Limit:        limit,
		TotalPages:   policy.TotalPages(total, limit),
		ProcessType:  policy.ProcessTypeFor(f.RequestedBob()),
	}, nil
}
