package policy

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process Store used by tests and local runs.
type MemoryStore struct {
	mu       sync.RWMutex
	byID     map[string]Policy
	byNumber map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:     make(map[string]Policy),
		byNumber: make(map[string]string),
	}
}

// Save inserts or replaces a policy keyed by policy number.
func (m *MemoryStore) Save(p Policy) Policy {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byNumber[p.PolicyNumber]; ok && p.ID == "" {
		p.ID = id
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.ActionStatus == "" {
		p.ActionStatus = ActionPending
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	p.Carrier = NormalizeCarrier(p.Carrier)

	m.byID[p.ID] = p
	m.byNumber[p.PolicyNumber] = p.ID
	return p
}

func (m *MemoryStore) Find(_ context.Context, pred Predicate, page Page) ([]Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	match := pred.Matcher()
	out := []Policy{}
	for _, p := range m.byID {
		if match(p) {
			out = append(out, p)
		}
	}
	sortPolicies(out, page)

	if page.Offset > 0 {
		if page.Offset >= len(out) {
			return []Policy{}, nil
		}
		out = out[page.Offset:]
	}
	if page.Limit > 0 && len(out) > page.Limit {
		out = out[:page.Limit]
	}
	return out, nil
}

func (m *MemoryStore) Count(_ context.Context, pred Predicate) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	match := pred.Matcher()
	n := 0
	for _, p := range m.byID {
		if match(p) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) CountByStatus(_ context.Context, pred Predicate) (map[Status]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	match := pred.Matcher()
	out := make(map[Status]int)
	for _, p := range m.byID {
		if match(p) {
			out[p.Status]++
		}
	}
	return out, nil
}

func (m *MemoryStore) PremiumByProduct(_ context.Context, pred Predicate) ([]ProductPremium, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	match := pred.Matcher()
	byProduct := make(map[string]*ProductPremium)
	for _, p := range m.byID {
		if !match(p) {
			continue
		}
		row, ok := byProduct[p.Product]
		if !ok {
			row = &ProductPremium{Product: p.Product, TotalPremium: decimal.Zero}
			byProduct[p.Product] = row
		}
		row.Policies++
		row.TotalPremium = row.TotalPremium.Add(p.AnnualizedPremium)
	}

	out := make([]ProductPremium, 0, len(byProduct))
	for _, row := range byProduct {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].TotalPremium.Cmp(out[j].TotalPremium); c != 0 {
			return c > 0
		}
		return out[i].Product < out[j].Product
	})
	return out, nil
}

func (m *MemoryStore) GetByID(_ context.Context, id string) (Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.byID[id]
	if !ok {
		return Policy{}, ErrNotFound
	}
	return p, nil
}

func (m *MemoryStore) GetByNumber(_ context.Context, number string) (Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byNumber[number]
	if !ok {
		return Policy{}, ErrNotFound
	}
	return m.byID[id], nil
}

func (m *MemoryStore) Transition(_ context.Context, id string, fn func(*Policy) error) (Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return Policy{}, ErrNotFound
	}
	if err := fn(&p); err != nil {
		return Policy{}, err
	}
	p.UpdatedAt = time.Now().UTC()
	m.byID[id] = p
	return p, nil
}

func (m *MemoryStore) StampFirstTakeAction(_ context.Context, number string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byNumber[number]
	if !ok {
		return ErrNotFound
	}
	p := m.byID[id]
	if p.FirstTakeActionDate == nil {
		p.FirstTakeActionDate = &at
		m.byID[id] = p
	}
	return nil
}

func sortPolicies(list []Policy, page Page) {
	compare := func(a, b Policy) int {
		switch page.SortKey {
		case "policyNumber":
			return strings.Compare(a.PolicyNumber, b.PolicyNumber)
		case "agentName":
			return strings.Compare(a.AgentName, b.AgentName)
		case "clientName":
			return strings.Compare(a.ClientName, b.ClientName)
		case "carrier":
			return strings.Compare(a.Carrier, b.Carrier)
		case "status":
			return strings.Compare(string(a.Status), string(b.Status))
		case "premium":
			return a.AnnualizedPremium.Cmp(b.AnnualizedPremium)
		case "updatedAt":
			return a.UpdatedAt.Compare(b.UpdatedAt)
		default:
			return a.ReceivedDate.Compare(b.ReceivedDate)
		}
	}
	sort.SliceStable(list, func(i, j int) bool {
		c := compare(list[i], list[j])
		if page.Desc {
			c = -c
		}
		if c != 0 {
			return c < 0
		}
		return list[i].PolicyNumber < list[j].PolicyNumber
	})
}
