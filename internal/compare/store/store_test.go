//go:build integration

// Run with:
//
//	go test -tags=integration ./internal/compare/store/...
package store

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/compare"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/postgres"
)

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// skipIfNoPostgres skips the test when PostgreSQL is unavailable.
func skipIfNoPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	port, _ := strconv.Atoi(envOrDefault("TEST_POSTGRES_PORT", "5432"))
	db, err := postgres.New(config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            port,
		Database:        envOrDefault("TEST_POSTGRES_DB", "postindex_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "postindex"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	})
	if err != nil {
		t.Skipf("skipping integration test: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSaveLatestList(t *testing.T) {
	db := skipIfNoPostgres(t)
	ctx := context.Background()
	s := New(db, 2)
	require.NoError(t, s.EnsureSchema(ctx))

	fp := "test-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	t.Cleanup(func() {
		db.DB.Exec(`DELETE FROM comparison_reports WHERE fingerprint = $1`, fp)
	})

	var ids []int64
	for seed := uint64(1); seed <= 3; seed++ {
		id, err := s.Save(ctx, &compare.Report{Fingerprint: fp, Seed: seed})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	latest, err := s.Latest(ctx, fp)
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.Equal(t, ids[2], latest.ID)
	require.EqualValues(t, 3, latest.Report.Seed)

	var kept int
	require.NoError(t, db.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM comparison_reports WHERE fingerprint = $1`, fp).Scan(&kept))
	require.Equal(t, 2, kept)

	entries, err := s.List(ctx, 50)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	missing, err := s.Latest(ctx, fp+"-missing")
	require.NoError(t, err)
	require.Nil(t, missing)
}
