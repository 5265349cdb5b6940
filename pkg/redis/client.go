package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config Redis 連線設定
// Addr 為空代表不啟用 Redis
type Config struct {
	Addr         string        `yaml:"addr" env:"REDIS_ADDR"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB           int           `yaml:"db" env:"REDIS_DB"`
	UseTLS       bool          `yaml:"use_tls" env:"REDIS_USE_TLS"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env:"REDIS_DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"REDIS_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"REDIS_WRITE_TIMEOUT"`
	PoolSize     int           `yaml:"pool_size" env:"REDIS_POOL_SIZE"`
	// IdempotencyTTL 冪等回應保留時間
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl" env:"REDIS_IDEMPOTENCY_TTL"`
}

// Enabled 是否設定了 Redis
func (c Config) Enabled() bool {
	return c.Addr != ""
}

// NewClient 建立 redis.Client 並以 PING 確認連線
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  defaultDuration(cfg.DialTimeout, 3*time.Second),
		ReadTimeout:  defaultDuration(cfg.ReadTimeout, 2*time.Second),
		WriteTimeout: defaultDuration(cfg.WriteTimeout, 2*time.Second),
		PoolSize:     defaultInt(cfg.PoolSize, 10),
		MinIdleConns: 2,
		MaxRetries:   3,
	}
	if cfg.UseTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}

func defaultDuration(v, d time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return d
}

func defaultInt(v, d int) int {
	if v > 0 {
		return v
	}
	return d
}
