package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Client 封裝 pgx 連線池
type Client struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// NewClient 建立連線池並以 Ping 確認可連線
//
// 參數:
//
//	ctx: 上下文
//	cfg: 連線設定
//	log: logger
//
// 回傳:
//
//	*Client: 客戶端
//	error: 連線失敗
func NewClient(ctx context.Context, cfg Config, log *zap.Logger) (*Client, error) {
	cfg.SetDefaults()
	poolCfg, err := pgxpool.ParseConfig(withScheme(cfg.DSN))
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	log.Info("postgres connection pool established", zap.String("dsn", maskDSN(withScheme(cfg.DSN))))
	return &Client{pool: pool, log: log}, nil
}

// Pool 回傳底層連線池
func (c *Client) Pool() *pgxpool.Pool {
	return c.pool
}

// WithTransaction 在交易中執行 fn，無錯誤時 commit，否則 rollback
// fn panic 時同樣 rollback 後再拋出
func (c *Client) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) (err error) {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		} else if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()
	err = fn(ctx, tx)
	return err
}

// Close 關閉連線池
func (c *Client) Close() error {
	c.pool.Close()
	c.log.Info("postgres connection pool closed")
	return nil
}

func withScheme(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return dsn
	}
	return "postgres://" + dsn
}

// maskDSN 隱藏帳號密碼
func maskDSN(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	at := strings.LastIndex(rest, "@")
	if at < 0 {
		return dsn
	}
	return scheme + "://*****:*****@" + rest[at+1:]
}
