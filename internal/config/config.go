package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/JoeShih716/go-money-ledger/pkg/mysql"
	"github.com/JoeShih716/go-money-ledger/pkg/postgres"
	"github.com/JoeShih716/go-money-ledger/pkg/redis"
)

// 儲存層種類
const (
	DriverMemory   = "memory"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// DefaultPath 預設設定檔路徑
const DefaultPath = "config/config.yaml"

type Config struct {
	App      AppConfig       `yaml:"app"`
	HTTP     HTTPConfig      `yaml:"http"`
	GRPC     GRPCConfig      `yaml:"grpc"`
	Store    StoreConfig     `yaml:"store"`
	Engine   EngineConfig    `yaml:"engine"`
	MySQL    mysql.Config    `yaml:"mysql"`
	Postgres postgres.Config `yaml:"postgres"`
	Redis    redis.Config    `yaml:"redis"`
}

type AppConfig struct {
	Env string `yaml:"env" env:"APP_ENV" validate:"oneof=dev test prod"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr" env:"HTTP_ADDR" validate:"required"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"HTTP_IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT"`
}

type GRPCConfig struct {
	Addr string `yaml:"addr" env:"GRPC_ADDR" validate:"required"`
}

type StoreConfig struct {
	Driver string `yaml:"driver" env:"STORE_DRIVER" validate:"oneof=memory mysql postgres"`
	// WALPath memory driver 的 WAL 檔案路徑，空字串代表不持久化
	WALPath string `yaml:"wal_path" env:"STORE_WAL_PATH"`
}

// DefaultMaxRetries 未設定 engine.max_retries 時的重試次數
const DefaultMaxRetries = 3

// EngineConfig 餘額異動引擎的重試設定
type EngineConfig struct {
	MaxRetries     uint64        `yaml:"max_retries" env:"ENGINE_MAX_RETRIES" validate:"lte=10"`
	InitialBackoff time.Duration `yaml:"initial_backoff" env:"ENGINE_INITIAL_BACKOFF" validate:"gt=0"`
	MaxBackoff     time.Duration `yaml:"max_backoff" env:"ENGINE_MAX_BACKOFF" validate:"gtefield=InitialBackoff"`
}

// Load 載入設定
// 順序: .env (可選) -> yaml 檔 (可選) -> 環境變數覆寫 -> 預設值 -> 驗證
//
// 參數:
//
//	path: yaml 設定檔路徑，檔案不存在時只使用環境變數與預設值
//
// 回傳:
//
//	Config: 設定
//	error: 解析或驗證失敗
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	// max_retries: 0 代表不重試，預設值須在解析前填入才能與「未設定」區分
	cfg := Config{Engine: EngineConfig{MaxRetries: DefaultMaxRetries}}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults 補全未設定的欄位
func (c *Config) setDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = 10 * time.Second
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = 10 * time.Second
	}
	if c.HTTP.IdleTimeout == 0 {
		c.HTTP.IdleTimeout = 60 * time.Second
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.GRPC.Addr == "" {
		c.GRPC.Addr = ":50051"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverMemory
	}
	if c.Engine.InitialBackoff == 0 {
		c.Engine.InitialBackoff = 10 * time.Millisecond
	}
	if c.Engine.MaxBackoff == 0 {
		c.Engine.MaxBackoff = 200 * time.Millisecond
	}
	if c.Redis.IdempotencyTTL == 0 {
		c.Redis.IdempotencyTTL = 24 * time.Hour
	}
	c.MySQL.SetDefaults()
	c.Postgres.SetDefaults()
}

// Validate 檢查欄位格式與所選儲存層的必要設定
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	switch c.Store.Driver {
	case DriverMySQL:
		if c.MySQL.Host == "" || c.MySQL.DBName == "" {
			return errors.New("invalid config: mysql.host and mysql.db_name are required for the mysql driver")
		}
	case DriverPostgres:
		if c.Postgres.DSN == "" {
			return errors.New("invalid config: postgres.dsn is required for the postgres driver")
		}
	}
	return nil
}
