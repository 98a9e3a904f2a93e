package infra

import (
	"context"
	"fmt"
	"io"
	"os/exec"

	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

const postgresImage = "postgres:16-alpine"

// containerDatabase runs a throwaway Postgres 16 container.
func containerDatabase(ctx context.Context) (*Database, error) {
	pgC, err := postgres.Run(ctx,
		postgresImage,
		postgres.WithDatabase("agencyflow"),
		postgres.WithUsername("agencyflow"),
		postgres.WithPassword("agencyflow"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", postgresImage, err)
	}

	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pgC.Terminate(ctx)
		return nil, fmt.Errorf("container dsn: %w", err)
	}
	return &Database{DSN: dsn, release: func(ctx context.Context) error { return pgC.Terminate(ctx) }}, nil
}

// DockerAvailable reports whether a Docker daemon answers.
func DockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}
