package analytics

import (
	"context"
	"sort"
	"strings"

	"agencyflow/policy"
)

type AgentPerformance struct {
	AgentName               string  `json:"agentName"`
	PoliciesWithTakeActions int     `json:"policiesWithTakeActions"`
	PoliciesEffectuated     int     `json:"policiesEffectuated"`
	ResolutionRate          float64 `json:"resolutionRate"`
}

type AgentPerformanceResult struct {
	Agents      []AgentPerformance `json:"agents"`
	TotalAgents int                `json:"totalAgents"`
	Page        int                `json:"page"`
	Limit       int                `json:"limit"`
	TotalPages  int                `json:"totalPages"`
	ProcessType policy.ProcessType `json:"processType"`
}

// QualifyingStatuses is {Active} for pure book-of-business requests and
// {Effectuated, Active, Cancelled} for underwriting-inclusive requests.
func QualifyingStatuses(pure bool) []policy.Status {
	if pure {
		return []policy.Status{policy.StatusActive}
	}
	return []policy.Status{policy.StatusEffectuated, policy.StatusActive, policy.StatusCancelled}
}

// ResolutionRate applies the mode-specific formula. Pure mode divides the group
// total, underwriting mode divides the effectuated count; both by the policies
// with take-actions. A zero denominator yields 0.
func ResolutionRate(pure bool, groupTotal, effectuated, withTakeActions int) float64 {
	if pure {
		return percent(groupTotal, withTakeActions)
	}
	return percent(effectuated, withTakeActions)
}

type agentGroup struct {
	total       int
	effectuated int
	withActions int
}

// AgentPerformance groups qualifying policies by owner display name. Records of
// any bob flag count toward PoliciesWithTakeActions.
func (e *Engine) AgentPerformance(ctx context.Context, f policy.Filter, mode policy.BobMode) (res AgentPerformanceResult, err error) {
	ctx, span := e.startSpan(ctx, "analytics.agent_performance", f, mode)
	defer func() { endSpan(span, err) }()

	pred, err := e.scope(ctx, f, mode)
	if err != nil {
		return AgentPerformanceResult{}, err
	}

	pure := f.RequestedBob() == policy.BobYes
	qualifying := QualifyingStatuses(pure)
	list, err := e.allPolicies(ctx, pred.WithStatuses(qualifying...))
	if err != nil {
		return AgentPerformanceResult{}, err
	}
	first, err := e.firstActions(ctx, policyNumbers(list), nil)
	if err != nil {
		return AgentPerformanceResult{}, err
	}

	groups := make(map[string]*agentGroup)
	for _, p := range list {
		name := strings.TrimSpace(p.AgentName)
		if name == "" {
			continue
		}
		g, ok := groups[name]
		if !ok {
			g = &agentGroup{}
			groups[name] = g
		}
		g.total++
		for _, s := range qualifying {
			if p.Status == s {
				g.effectuated++
				break
			}
		}
		if _, ok := first[p.PolicyNumber]; ok {
			g.withActions++
		}
	}

	rows := make([]AgentPerformance, 0, len(groups))
	for name, g := range groups {
		rows = append(rows, AgentPerformance{
			AgentName:               name,
			PoliciesWithTakeActions: g.withActions,
			PoliciesEffectuated:     g.effectuated,
			ResolutionRate:          ResolutionRate(pure, g.total, g.effectuated, g.withActions),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].PoliciesWithTakeActions != rows[j].PoliciesWithTakeActions {
			return rows[i].PoliciesWithTakeActions > rows[j].PoliciesWithTakeActions
		}
		return rows[i].AgentName < rows[j].AgentName
	})

	limit := f.PageLimit()
	return AgentPerformanceResult{
		Agents:      paginate(rows, f.Offset(), limit),
		TotalAgents: len(rows),
		Page:        f.PageNumber(),
		Limit:       limit,
		TotalPages:  policy.TotalPages(len(rows), limit),
		ProcessType: policy.ProcessTypeFor(f.RequestedBob()),
	}, nil
}

func paginate[T any](rows []T, offset, limit int) []T {
	if offset >= len(rows) {
		return []T{}
	}
	end := min(offset+limit, len(rows))
	return rows[offset:end]
}
