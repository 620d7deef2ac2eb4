// Package pgtest provides a migrated PostgreSQL pool for integration tests.
//
// MEMBERDESK_TEST_DATABASE_URL points tests at an existing database.
// MEMBERDESK_TEST_CONTAINERS=1 starts a disposable postgres container instead.
// With neither set, callers are skipped.
package pgtest

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"memberdesk/cmd/ids"
	"memberdesk/cmd/internal/migrations"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

const (
	EnvDatabaseURL = "MEMBERDESK_TEST_DATABASE_URL"
	EnvContainers  = "MEMBERDESK_TEST_CONTAINERS"
)

var (
	containerOnce sync.Once
	containerDSN  string
	containerErr  error
)

// Open returns a pool on a migrated database, or skips t.
func Open(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in -short mode")
	}

	dsn := strings.TrimSpace(os.Getenv(EnvDatabaseURL))
	if dsn == "" {
		if os.Getenv(EnvContainers) != "1" {
			t.Skipf("set %s or %s=1 to run integration tests", EnvDatabaseURL, EnvContainers)
		}
		testcontainers.SkipIfProviderIsNotHealthy(t)
		dsn = startContainer(t)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := migrations.Up(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

// startContainer starts one postgres container per test binary. Ryuk reaps it.
func startContainer(t *testing.T) string {
	t.Helper()
	containerOnce.Do(func() {
		ctx := context.Background()
		c, err := tcpostgres.Run(ctx, "postgres:16-alpine",
			tcpostgres.WithDatabase("memberdesk"),
			tcpostgres.WithUsername("memberdesk"),
			tcpostgres.WithPassword("memberdesk"),
			tcpostgres.BasicWaitStrategies(),
		)
		if err != nil {
			containerErr = err
			return
		}
		containerDSN, containerErr = c.ConnectionString(ctx, "sslmode=disable")
	})
	if containerErr != nil {
		t.Fatalf("start postgres container: %v", containerErr)
	}
	return containerDSN
}

// InsertMember inserts a member row and returns its ID.
func InsertMember(t *testing.T, pool *pgxpool.Pool, first, last, email string) string {
	t.Helper()
	id := ids.MustULID(time.Now().UTC())
	_, err := pool.Exec(context.Background(),
		`INSERT INTO memberdesk.members (id, first_name, last_name, email) VALUES ($1, $2, $3, $4)`,
		id, first, last, email,
	)
	if err != nil {
		t.Fatalf("insert member: %v", err)
	}
	return id
}
