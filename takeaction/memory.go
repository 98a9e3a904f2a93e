package takeaction

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"agencyflow/policy"
)

// MemoryStore keeps records in insertion order.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Create(_ context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return Record{}, err
		}
		rec.ID = id.String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return rec, nil
}

func (m *MemoryStore) Latest(_ context.Context, numbers []string, bob *policy.Bob) (map[string]Record, error) {
	out := make(map[string]Record, len(numbers))
	m.each(numbers, bob, func(rec Record) {
		if cur, ok := out[rec.PolicyNumber]; !ok || rec.ID > cur.ID {
			out[rec.PolicyNumber] = rec
		}
	})
	return out, nil
}

func (m *MemoryStore) FirstActionTimes(_ context.Context, numbers []string, bob *policy.Bob) (map[string]time.Time, error) {
	out := make(map[string]time.Time, len(numbers))
	m.each(numbers, bob, func(rec Record) {
		if cur, ok := out[rec.PolicyNumber]; !ok || rec.CreatedAt.Before(cur) {
			out[rec.PolicyNumber] = rec.CreatedAt
		}
	})
	return out, nil
}

func (m *MemoryStore) ListForPolicy(_ context.Context, number string) ([]Record, error) {
	list := []Record{}
	m.each([]string{number}, nil, func(rec Record) {
		list = append(list, rec)
	})
	sort.Slice(list, func(i, j int) bool { return list[i].ID > list[j].ID })
	return list, nil
}

func (m *MemoryStore) each(numbers []string, bob *policy.Bob, fn func(Record)) {
	want := make(map[string]struct{}, len(numbers))
	for _, n := range numbers {
		want[n] = struct{}{}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.records {
		if _, ok := want[rec.PolicyNumber]; !ok {
			continue
		}
		if bob != nil && rec.Bob != *bob {
			continue
		}
		fn(rec)
	}
}
