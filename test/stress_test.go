package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"agencyflow/agent"
	"agencyflow/analytics"
	"agencyflow/calendar"
	"agencyflow/hierarchy"
	"agencyflow/policy"
	"agencyflow/takeaction"
	"agencyflow/test/actors"
	"agencyflow/test/chaos"
	"agencyflow/test/infra"
	"agencyflow/test/oracles"
)

const actorsAppName = "agencyflow-stress-actors"

var (
	flDuration    = flag.Duration("duration", 90*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent actors")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
	flAgents      = flag.Int("agents", 60, "agents in the seeded hierarchy")
)

func TestHierarchyConcurrency(t *testing.T) {
	if testing.Short() {
		t.Skip("stress test skipped in -short mode")
	}
	flag.Parse()
	seed := *flSeed
	rand.Seed(seed)

	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	db, err := infra.Acquire(ctx, *flDSN)
	if errors.Is(err, infra.ErrNoDatabase) {
		t.Skipf("no database available: %v", err)
	}
	if err != nil {
		t.Fatalf("acquire database: %v", err)
	}
	defer func() {
		if err := db.Release(context.Background()); err != nil {
			t.Logf("release warning: %v", err)
		}
	}()

	pool, teardown, err := infra.ApplyMigrations(ctx, db.DSN, db.Shared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	// Actors get their own pool so chaos never kills the oracle connection.
	actorPool, err := infra.Reconnect(ctx, pool, actorsAppName)
	if err != nil {
		t.Fatalf("actor pool: %v", err)
	}
	defer actorPool.Close()

	seedData := mustSeed(t, ctx, pool, *flAgents)

	agents := agent.NewRepository(actorPool)
	policies := policy.NewRepository(actorPool)
	records := takeaction.NewRepository(actorPool)
	resolver := hierarchy.NewResolver(
		hierarchy.NewMemoryCache(500*time.Millisecond, 250*time.Millisecond),
		hierarchy.DefaultStrategies(agents)...,
	).WithLogger(zap.NewNop())
	engine := analytics.NewEngine(resolver, policies, records, calendar.UTC())
	defer engine.Close()
	notes := takeaction.NewService(records, policies)
	policySvc := policy.NewService(policies, notes)

	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	for i := 0; i < *flConcurrency; i++ {
		g.Go(func() error { return actors.HierarchyReader(ctx2, resolver, seedData.npns, stop) })
		g.Go(func() error { return actors.AnalyticsReader(ctx2, engine, seedData.npns, stop) })
	}
	g.Go(func() error { return actors.Reparenter(ctx2, agents, seedData.npns, resolver, stop) })
	g.Go(func() error { return actors.NoteWriter(ctx2, notes, seedData.numbers, stop) })
	g.Go(func() error { return actors.NoteWriter(ctx2, notes, seedData.numbers, stop) })
	g.Go(func() error { return actors.StatusUpdater(ctx2, policySvc, seedData.ids, stop) })
	go chaos.TerminateRandomBackend(ctx2, pool, actorsAppName, stop)

	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx2.Done():
			break loop
		case <-ticker.C:
			name, row, err := oracles.Run(ctx2, pool)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				t.Fatalf("oracle error: %v", err)
			}
			if name != "" {
				failed = true
				dumpRecent(t, ctx2, pool)
				t.Fatalf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !failed {
		if errors.Is(err, actors.ErrInvariant) {
			t.Fatalf("actor invariant: %v (seed=%d)", err, seed)
		}
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v", err)
		}
	}
}

type seedIDs struct {
	npns    []string
	numbers []string
	ids     []string
}

// mustSeed builds a random tree rooted at npns[0] with two policies per agent.
func mustSeed(t *testing.T, ctx context.Context, pool *pgxpool.Pool, n int) seedIDs {
	t.Helper()
	agents := agent.NewRepository(pool)
	policies := policy.NewRepository(pool)

	var s seedIDs
	received := time.Now().UTC().AddDate(0, 0, -30)
	for i := 0; i < n; i++ {
		npn := fmt.Sprintf("N%04d", i)
		a := agent.Agent{NPN: npn, Name: "Agent " + npn}
		if i > 0 {
			upline := s.npns[rand.Intn(len(s.npns))]
			a.UplineNPN = &upline
		}
		if err := agents.Upsert(ctx, a); err != nil {
			t.Fatalf("seed agent: %v", err)
		}
		s.npns = append(s.npns, npn)

		for j := 0; j < 2; j++ {
			bob := policy.BobYes
			if j == 1 {
				bob = policy.BobNo
			}
			p, err := policies.Upsert(ctx, policy.Policy{
				PolicyNumber:      fmt.Sprintf("%s-P%d", npn, j),
				OwnerNPN:          npn,
				AgentName:         a.Name,
				Carrier:           "Acme Life",
				Product:           "Term",
				ReceivedDate:      received.AddDate(0, 0, rand.Intn(30)),
				Status:            policy.Statuses[rand.Intn(len(policy.Statuses))],
				Bob:               bob,
				AnnualizedPremium: decimal.NewFromInt(int64(100 + rand.Intn(900))),
			})
			if err != nil {
				t.Fatalf("seed policy: %v", err)
			}
			s.numbers = append(s.numbers, p.PolicyNumber)
			s.ids = append(s.ids, p.ID)
		}
	}
	return s
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	type dump struct {
		name string
		sql  string
	}
	dumps := []dump{
		{"agents", `SELECT npn, upline_npn FROM agents ORDER BY npn LIMIT 50`},
		{"policies", `SELECT policy_number, action_status, action_completed_date, first_take_action_date, updated_at FROM policies ORDER BY updated_at DESC LIMIT 50`},
		{"action_records", `SELECT id, policy_number, status, bob, created_at FROM action_records ORDER BY id DESC LIMIT 50`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
