package analytics

import (
	"context"

	"golang.org/x/sync/errgroup"

	"agencyflow/policy"
)

// PolicyRow is a policy joined with its latest take-action. Issue fields are
// nil when the policy has no record.
type PolicyRow struct {
	policy.Policy
	IssueType        *string
	IssueDescription *string
}

type PolicyList struct {
	Policies    []PolicyRow
	Total       int
	Page        int
	Limit       int
	TotalPages  int
	ProcessType policy.ProcessType
}

// ListPolicies pages through the book of business, newest received first.
func (e *Engine) ListPolicies(ctx context.Context, f policy.Filter, mode policy.BobMode) (res PolicyList, err error) {
	ctx, span := e.startSpan(ctx, "analytics.list_policies", f, mode)
	defer func() { endSpan(span, err) }()

	pred, err := e.scope(ctx, f, mode)
	if err != nil {
		return PolicyList{}, err
	}

	limit := f.PageLimit()
	var (
		list  []policy.Policy
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		list, err = e.policies.Find(gctx, pred, policy.Page{
			Offset:  f.Offset(),
			Limit:   limit,
			SortKey: "receivedDate",
			Desc:    true,
		})
		return storeErr("find policies", err)
	})
	g.Go(func() error {
		var err error
		total, err = e.policies.Count(gctx, pred)
		return storeErr("count policies", err)
	})
	if err := g.Wait(); err != nil {
		return PolicyList{}, err
	}

	links, err := e.linker.Link(ctx, policyNumbers(list), pred.Bob)
	if err != nil {
		return PolicyList{}, storeErr("link take actions", err)
	}

	rows := make([]PolicyRow, len(list))
	for i, p := range list {
		rows[i] = PolicyRow{Policy: p}
		if l, ok := links[p.PolicyNumber]; ok {
			issueType, desc := l.IssueType, l.IssueDescription
			rows[i].IssueType = &issueType
			rows[i].IssueDescription = &desc
		}
	}
	return PolicyList{
		Policies:    rows,
		Total:       total,
		Page:        f.PageNumber(),
		Limit:       limit,
		TotalPages:  policy.TotalPages(total, limit),
		ProcessType: policy.ProcessTypeFor(f.RequestedBob()),
	}, nil
}
