package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RouterConfig 建立 Router 所需的依賴
type RouterConfig struct {
	Core   AccountUseCase
	Logger *zap.Logger
	// Redis 為 nil 時停用冪等
	Redis          *redis.Client
	IdempotencyTTL time.Duration
	// HealthCheck 可選，回傳錯誤時 /healthz 回應 503
	HealthCheck func(ctx context.Context) error
}

// NewRouter 建立 gin Engine 並註冊所有路由
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(Recovery(cfg.Logger), RequestLogger(cfg.Logger), Metrics())
	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS", "HEAD"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", IdempotencyHeader},
		ExposeHeaders: []string{"Content-Length", "Content-Type", IdempotencyReplayedHeader},
		MaxAge:        12 * time.Hour,
	}))

	r.GET("/healthz", healthHandler(cfg.HealthCheck))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := NewAccountHandler(cfg.Core, cfg.Logger)
	api := r.Group("/api")
	api.GET("/accounts", h.ListAccounts)
	api.POST("/accounts", h.CreateAccount)
	api.GET("/accounts/:id", h.GetAccount)
	api.DELETE("/accounts/:id", h.DeleteAccount)

	mutations := api.Group("/accounts/:id")
	if cfg.Redis != nil {
		ttl := cfg.IdempotencyTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		mutations.Use(Idempotency(cfg.Redis, ttl, cfg.Logger))
	}
	mutations.POST("/deposit", h.Deposit)
	mutations.POST("/withdraw", h.Withdraw)
	return r
}

// healthCheckTimeout /healthz 檢查儲存層的時限
const healthCheckTimeout = 2 * time.Second

func healthHandler(check func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
			defer cancel()
			if err := check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}
