//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-money-ledger/internal/app/core/adapter/out/storetest"
	"github.com/JoeShih716/go-money-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-money-ledger/pkg/postgres"
)

// setupPostgresContainer 啟動一次性的 PostgreSQL 容器並回傳 DSN
func setupPostgresContainer(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("ledger"),
		tcpostgres.WithUsername("ledger"),
		tcpostgres.WithPassword("ledger"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestIntegration_PostgresStore(t *testing.T) {
	dsn := setupPostgresContainer(t)
	ctx := context.Background()
	log := zap.NewNop()

	require.NoError(t, postgres.RunMigrations(log, dsn))

	client, err := postgres.NewClient(ctx, postgres.Config{DSN: dsn, MaxConns: 40}, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store := NewStore(client)
	storetest.Run(t, func(t *testing.T) usecase.AccountRepository {
		_, err := client.Pool().Exec(ctx, "TRUNCATE accounts")
		require.NoError(t, err)
		return store
	})
}
