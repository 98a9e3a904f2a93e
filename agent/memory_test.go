package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(s string) *string { return &s }

func seed() *MemoryStore {
	m := NewMemoryStore()
	m.Save(Agent{NPN: "A", Name: "Alice"})
	m.Save(Agent{NPN: "B", UplineNPN: ptr("A"), Name: "Bob"})
	m.Save(Agent{NPN: "C", UplineNPN: ptr("A"), Name: "Cara"})
	m.Save(Agent{NPN: "D", UplineNPN: ptr("B"), Name: "Dev"})
	return m
}

func TestMemoryStore_Downline(t *testing.T) {
	m := seed()
	ctx := context.Background()

	got, err := m.Downline(ctx, "A", 15)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C", "D"}, got)

	got, err = m.Downline(ctx, "B", 15)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "D"}, got)

	got, err = m.Downline(ctx, "A", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, got)

	got, err = m.Downline(ctx, "missing", 15)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryStore_DownlineTerminatesOnCycle(t *testing.T) {
	m := seed()
	m.Reparent("A", "D")

	got, err := m.Downline(context.Background(), "A", 15)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C", "D"}, got)
}

func TestMemoryStore_DirectReports(t *testing.T) {
	m := seed()
	got, err := m.DirectReports(context.Background(), []string{"A", "B"})
	require.NoError(t, err)

	npns := make([]string, 0, len(got))
	for _, a := range got {
		npns = append(npns, a.NPN)
	}
	assert.Equal(t, []string{"B", "C", "D"}, npns)
}

func TestService_GetNotFound(t *testing.T) {
	svc := NewService(seed())
	_, err := svc.Get(context.Background(), "Z")
	assert.True(t, errors.Is(err, ErrNotFound))

	a, err := svc.Get(context.Background(), "D")
	require.NoError(t, err)
	assert.Equal(t, "B", *a.UplineNPN)
}
