package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agencyflow/test/infra"
)

func TestPGRepository_Integration(t *testing.T) {
	pool := infra.TestPool(t)
	repo := NewRepository(pool)
	ctx := context.Background()

	for _, a := range []Agent{
		{NPN: "A", Name: "Alice"},
		{NPN: "B", UplineNPN: ptr("A"), Name: "Bob"},
		{NPN: "C", UplineNPN: ptr("A"), Name: "Cara"},
		{NPN: "D", UplineNPN: ptr("B"), Name: "Dev"},
	} {
		require.NoError(t, repo.Upsert(ctx, a))
	}

	got, err := repo.FindByNPN(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, "Bob", got.Name)
	require.NotNil(t, got.UplineNPN)
	assert.Equal(t, "A", *got.UplineNPN)

	_, err = repo.FindByNPN(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	reports, err := repo.DirectReports(ctx, []string{"A"})
	require.NoError(t, err)
	npns := make([]string, 0, len(reports))
	for _, r := range reports {
		npns = append(npns, r.NPN)
	}
	assert.ElementsMatch(t, []string{"B", "C"}, npns)

	down, err := repo.Downline(ctx, "A", 15)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "B", "C", "D"}, down)

	down, err = repo.Downline(ctx, "A", 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "B", "C"}, down)

	down, err = repo.Downline(ctx, "missing", 15)
	require.NoError(t, err)
	assert.Empty(t, down)

	// A cycle must not hang the recursive query.
	require.NoError(t, repo.Upsert(ctx, Agent{NPN: "A", UplineNPN: ptr("D"), Name: "Alice"}))
	down, err = repo.Downline(ctx, "A", 15)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "B", "C", "D"}, down)
}
