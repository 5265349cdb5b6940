package postgres

import "time"

// Config PostgreSQL 連線設定
type Config struct {
	DSN             string        `yaml:"dsn" env:"POSTGRES_DSN"` // user:pass@host:5432/db?sslmode=disable (不含 scheme)
	MaxConns        int32         `yaml:"max_conns" env:"POSTGRES_MAX_CONNS"`
	MinConns        int32         `yaml:"min_conns" env:"POSTGRES_MIN_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"POSTGRES_CONN_MAX_LIFETIME"`
	Migrate         bool          `yaml:"migrate" env:"POSTGRES_MIGRATE"` // 啟動時自動執行 migration
}

// SetDefaults 補全未設定的欄位
func (c *Config) SetDefaults() {
	if c.MaxConns == 0 {
		c.MaxConns = 20
	}
	if c.MinConns == 0 {
		c.MinConns = 2
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = 30 * time.Minute
	}
}
