package mysql

import (
	"fmt"
	"time"
)

// Config 定義 MySQL 連線與連線池的配置
type Config struct {
	Host     string `yaml:"host" env:"MYSQL_HOST"`         // 資料庫主機地址
	Port     int    `yaml:"port" env:"MYSQL_PORT"`         // 資料庫埠號 (預設 3306)
	User     string `yaml:"user" env:"MYSQL_USER"`         // 使用者名稱
	Password string `yaml:"password" env:"MYSQL_PASSWORD"` // 密碼
	DBName   string `yaml:"db_name" env:"MYSQL_DB_NAME"`   // 資料庫名稱

	// 連線池設定 (Connection Pool)
	// 參考: https://github.com/go-sql-driver/mysql#important-settings
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MYSQL_MAX_OPEN_CONNS"`       // 最大開啟連線數
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MYSQL_MAX_IDLE_CONNS"`       // 最大閒置連線數
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"MYSQL_CONN_MAX_LIFETIME"` // 連線最大存活時間

	// 連線重試
	ConnectRetries       int           `yaml:"connect_retries" env:"MYSQL_CONNECT_RETRIES"`
	ConnectRetryInterval time.Duration `yaml:"connect_retry_interval" env:"MYSQL_CONNECT_RETRY_INTERVAL"`

	// GORM 設定
	LogLevel string `yaml:"log_level" env:"MYSQL_LOG_LEVEL"` // Log 等級: "silent", "error", "warn", "info"
}

// SetDefaults 補全未設定的欄位
func (c *Config) SetDefaults() {
	if c.Port == 0 {
		c.Port = 3306
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 100
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 10
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = 30 * time.Minute
	}
	if c.ConnectRetries == 0 {
		c.ConnectRetries = 10
	}
	if c.ConnectRetryInterval == 0 {
		c.ConnectRetryInterval = 2 * time.Second
	}
}

// DSN (Data Source Name) 產生連線字串
// 格式: user:password@tcp(host:port)/dbname?charset=utf8mb4&parseTime=True&loc=UTC
func (c *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.DBName,
	)
}
