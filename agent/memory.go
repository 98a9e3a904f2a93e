package agent

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store indexed by NPN. It backs tests and the
// resolve command when no database is configured.
type MemoryStore struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{agents: make(map[string]Agent)}
}

// Save inserts or replaces an agent.
func (m *MemoryStore) Save(a Agent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	m.agents[a.NPN] = a
}

// Reparent moves npn under upline. An empty upline makes it a root.
func (m *MemoryStore) Reparent(npn, upline string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[npn]
	if !ok {
		return
	}
	if upline == "" {
		a.UplineNPN = nil
	} else {
		a.UplineNPN = &upline
	}
	m.agents[npn] = a
}

func (m *MemoryStore) FindByNPN(_ context.Context, npn string) (Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[npn]
	if !ok {
		return Agent{}, ErrNotFound
	}
	return a, nil
}

func (m *MemoryStore) DirectReports(_ context.Context, uplines []string) ([]Agent, error) {
	want := make(map[string]struct{}, len(uplines))
	for _, u := range uplines {
		want[u] = struct{}{}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Agent
	for _, a := range m.agents {
		if a.UplineNPN == nil {
			continue
		}
		if _, ok := want[*a.UplineNPN]; ok {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NPN < out[j].NPN })
	return out, nil
}

// Downline mirrors the recursive query of the SQL store: depth-bounded, and the
// root is only returned when it exists.
func (m *MemoryStore) Downline(_ context.Context, root string, maxDepth int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.agents[root]; !ok {
		return nil, nil
	}

	children := make(map[string][]string, len(m.agents))
	for _, a := range m.agents {
		if a.UplineNPN != nil {
			children[*a.UplineNPN] = append(children[*a.UplineNPN], a.NPN)
		}
	}

	seen := map[string]bool{root: true}
	out := []string{root}
	frontier := []string{root}
	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, npn := range frontier {
			for _, child := range children[npn] {
				if seen[child] {
					continue
				}
				seen[child] = true
				out = append(out, child)
				next = append(next, child)
			}
		}
		frontier = next
	}
	sort.Strings(out)
	return out, nil
}
