package postgres

import (
	"embed"
	"errors"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

// RunMigrations 套用 schema migration (已是最新版時不視為錯誤)
func RunMigrations(log *zap.Logger, dsn string) error {
	d, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, migrateURL(dsn))
	if err != nil {
		return err
	}
	defer func(m *migrate.Migrate) {
		_, _ = m.Close()
	}(m)

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	log.Info("database migrations applied")
	return nil
}

// migrateURL golang-migrate 以 pgx5:// 選擇 pgx v5 driver
func migrateURL(dsn string) string {
	dsn = strings.TrimPrefix(dsn, "postgresql://")
	dsn = strings.TrimPrefix(dsn, "postgres://")
	return "pgx5://" + dsn
}
