package policy

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"agencyflow/calendar"
	"agencyflow/hierarchy"
)

// Predicate is a normalized, conjunctive filter over policies. Zero-valued
// clauses apply no constraint, except Owners: a non-nil empty slice matches nothing.
type Predicate struct {
	Owners                []string
	Bob                   *Bob
	ReceivedFrom          *time.Time
	ReceivedTo            *time.Time
	Carriers              []string
	Search                string
	Statuses              []Status
	ActionStatuses        []ActionStatus
	ExcludeActionStatuses []ActionStatus
	PolicyNumbers         []string
}

// BuildPredicate scopes f to the resolved owner set under the given bob mode.
func BuildPredicate(owners hierarchy.Set, f Filter, mode BobMode, dates calendar.Boundary) (Predicate, error) {
	p := Predicate{
		Owners:   owners.Slice(),
		Carriers: ParseCarriers(f.Carrier),
		Search:   strings.TrimSpace(f.Search),
	}

	if strings.TrimSpace(f.Bob) != "" {
		b, err := ParseBob(f.Bob)
		if err != nil {
			return Predicate{}, fmt.Errorf("%w: %w", ErrInvalidFilter, err)
		}
		p.Bob = mode.Constraint(b)
	}

	if f.StartDate != "" {
		t, err := dates.Parse(f.StartDate)
		if err != nil {
			return Predicate{}, fmt.Errorf("%w: startDate: %w", ErrInvalidFilter, err)
		}
		from := dates.StartOfDay(t)
		p.ReceivedFrom = &from
	}
	if f.EndDate != "" {
		t, err := dates.Parse(f.EndDate)
		if err != nil {
			return Predicate{}, fmt.Errorf("%w: endDate: %w", ErrInvalidFilter, err)
		}
		to := dates.EndOfDay(t)
		p.ReceivedTo = &to
	}
	if p.ReceivedFrom != nil && p.ReceivedTo != nil && p.ReceivedFrom.After(*p.ReceivedTo) {
		return Predicate{}, fmt.Errorf("%w: startDate after endDate", ErrInvalidFilter)
	}

	if f.Status != "" {
		s, err := ParseStatus(f.Status)
		if err != nil {
			return Predicate{}, fmt.Errorf("%w: %w", ErrInvalidFilter, err)
		}
		p.Statuses = []Status{s}
	}
	if f.ActionStatus != "" {
		s, err := ParseActionStatus(f.ActionStatus)
		if err != nil {
			return Predicate{}, fmt.Errorf("%w: %w", ErrInvalidFilter, err)
		}
		p.ActionStatuses = []ActionStatus{s}
	}
	return p, nil
}

// WithStatuses replaces the status clause. A caller-supplied status narrows the
// set instead of being overwritten.
func (p Predicate) WithStatuses(statuses ...Status) Predicate {
	out := p.clone()
	if p.Statuses == nil {
		out.Statuses = slices.Clone(statuses)
		return out
	}
	out.Statuses = nil
	for _, s := range p.Statuses {
		if slices.Contains(statuses, s) {
			out.Statuses = append(out.Statuses, s)
		}
	}
	if out.Statuses == nil {
		out.Statuses = []Status{}
	}
	return out
}

// WithActionStatuses narrows the action-status clause the same way as WithStatuses.
func (p Predicate) WithActionStatuses(statuses ...ActionStatus) Predicate {
	out := p.clone()
	if p.ActionStatuses == nil {
		out.ActionStatuses = slices.Clone(statuses)
		return out
	}
	out.ActionStatuses = nil
	for _, s := range p.ActionStatuses {
		if slices.Contains(statuses, s) {
			out.ActionStatuses = append(out.ActionStatuses, s)
		}
	}
	if out.ActionStatuses == nil {
		out.ActionStatuses = []ActionStatus{}
	}
	return out
}

func (p Predicate) WithoutActionStatuses(statuses ...ActionStatus) Predicate {
	out := p.clone()
	out.ExcludeActionStatuses = append(out.ExcludeActionStatuses, statuses...)
	return out
}

// WithReceivedBetween intersects the received-date window with [from, to].
func (p Predicate) WithReceivedBetween(from, to time.Time) Predicate {
	out := p.clone()
	if out.ReceivedFrom == nil || from.After(*out.ReceivedFrom) {
		out.ReceivedFrom = &from
	}
	if out.ReceivedTo == nil || to.Before(*out.ReceivedTo) {
		out.ReceivedTo = &to
	}
	return out
}

func (p Predicate) WithPolicyNumbers(numbers ...string) Predicate {
	out := p.clone()
	out.PolicyNumbers = slices.Clone(numbers)
	if out.PolicyNumbers == nil {
		out.PolicyNumbers = []string{}
	}
	return out
}

func (p Predicate) clone() Predicate {
	out := p
	out.Owners = slices.Clone(p.Owners)
	out.Carriers = slices.Clone(p.Carriers)
	out.Statuses = slices.Clone(p.Statuses)
	out.ActionStatuses = slices.Clone(p.ActionStatuses)
	out.ExcludeActionStatuses = slices.Clone(p.ExcludeActionStatuses)
	out.PolicyNumbers = slices.Clone(p.PolicyNumbers)
	return out
}

// Matcher compiles the predicate for repeated in-memory evaluation.
func (p Predicate) Matcher() func(Policy) bool {
	owners := toSet(p.Owners)
	carriers := toSet(p.Carriers)
	numbers := toSet(p.PolicyNumbers)
	statuses := toSet(p.Statuses)
	actions := toSet(p.ActionStatuses)
	excluded := toSet(p.ExcludeActionStatuses)
	needle := foldCase(p.Search)

	return func(pol Policy) bool {
		if owners != nil && !has(owners, pol.OwnerNPN) {
			return false
		}
		if p.Bob != nil && pol.Bob != *p.Bob {
			return false
		}
		if p.ReceivedFrom != nil && pol.ReceivedDate.Before(*p.ReceivedFrom) {
			return false
		}
		if p.ReceivedTo != nil && pol.ReceivedDate.After(*p.ReceivedTo) {
			return false
		}
		if len(p.Carriers) > 0 && !has(carriers, NormalizeCarrier(pol.Carrier)) {
			return false
		}
		if numbers != nil && !has(numbers, pol.PolicyNumber) {
			return false
		}
		if statuses != nil && !has(statuses, pol.Status) {
			return false
		}
		if actions != nil && !has(actions, pol.ActionStatus) {
			return false
		}
		if has(excluded, pol.ActionStatus) {
			return false
		}
		if needle != "" && !matchesSearch(pol, needle) {
			return false
		}
		return true
	}
}

// Match evaluates the predicate against a single policy.
func (p Predicate) Match(pol Policy) bool {
	return p.Matcher()(pol)
}

func matchesSearch(pol Policy, needle string) bool {
	for _, field := range []string{pol.AgentName, pol.ClientName, pol.PolicyNumber, pol.OwnerNPN} {
		if strings.Contains(foldCase(field), needle) {
			return true
		}
	}
	return false
}

// foldCase builds a fresh Caser per call; Casers are stateful and not safe to share.
func foldCase(s string) string {
	return cases.Fold().String(s)
}

// toSet returns nil for a nil slice so callers can tell "no clause" from "empty clause".
func toSet[T comparable](values []T) map[T]struct{} {
	if values == nil {
		return nil
	}
	out := make(map[T]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}

func has[T comparable](set map[T]struct{}, v T) bool {
	_, ok := set[v]
	return ok
}
