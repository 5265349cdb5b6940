//go:build integration

package mysql

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-money-ledger/internal/app/core/adapter/out/storetest"
	"github.com/JoeShih716/go-money-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-money-ledger/pkg/mysql"
)

// setupMySQLContainer 啟動一次性的 MySQL 容器並回傳連線設定
func setupMySQLContainer(t *testing.T) mysql.Config {
	t.Helper()
	ctx := context.Background()

	container, err := tcmysql.Run(ctx,
		"mysql:8.0.36",
		tcmysql.WithDatabase("ledger"),
		tcmysql.WithUsername("ledger"),
		tcmysql.WithPassword("ledger"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	return mysql.Config{
		Host:                 host,
		Port:                 port.Int(),
		User:                 "ledger",
		Password:             "ledger",
		DBName:               "ledger",
		ConnectRetries:       5,
		ConnectRetryInterval: time.Second,
		LogLevel:             "silent",
	}
}

func TestIntegration_MySQLStore(t *testing.T) {
	cfg := setupMySQLContainer(t)
	ctx := context.Background()

	client, err := mysql.NewClient(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store := NewStore(client)
	require.NoError(t, store.Migrate(ctx))

	storetest.Run(t, func(t *testing.T) usecase.AccountRepository {
		require.NoError(t, client.DB().Exec(fmt.Sprintf("DELETE FROM %s", (&sqlAccount{}).TableName())).Error)
		return store
	})
}
