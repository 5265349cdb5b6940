package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	grpc_adapter "github.com/JoeShih716/go-money-ledger/internal/app/core/adapter/in/grpc"
	"github.com/JoeShih716/go-money-ledger/internal/app/core/adapter/in/rest"
	memory_adapter "github.com/JoeShih716/go-money-ledger/internal/app/core/adapter/out/memory"
	mysql_adapter "github.com/JoeShih716/go-money-ledger/internal/app/core/adapter/out/mysql"
	postgres_adapter "github.com/JoeShih716/go-money-ledger/internal/app/core/adapter/out/postgres"
	"github.com/JoeShih716/go-money-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-money-ledger/internal/config"
	grpcpkg "github.com/JoeShih716/go-money-ledger/pkg/grpc"
	"github.com/JoeShih716/go-money-ledger/pkg/logger"
	"github.com/JoeShih716/go-money-ledger/pkg/mysql"
	"github.com/JoeShih716/go-money-ledger/pkg/postgres"
	"github.com/JoeShih716/go-money-ledger/pkg/redis"
	"github.com/JoeShih716/go-money-ledger/pkg/wal"
)

func main() {
	// 1. 載入設定
	cfg, err := config.Load(config.DefaultPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.App.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited with error", zap.Error(err))
	}
	log.Info("server exited")
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. 初始化儲存層 (Driven Adapter)，程式結束時最後關閉
	repo, err := newRepository(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := repo.Close(); err != nil {
			log.Error("failed to close store", zap.Error(err))
		}
	}()
	log.Info("store ready", zap.String("driver", cfg.Store.Driver))

	// 3. Redis (可選，用於 Idempotency-Key)
	var rdb *goredis.Client
	if cfg.Redis.Enabled() {
		rdb, err = redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
		log.Info("redis connected", zap.String("addr", cfg.Redis.Addr))
	}

	// 4. 初始化 UseCase
	engine := usecase.NewBalanceEngine(repo,
		usecase.WithMaxRetries(cfg.Engine.MaxRetries),
		usecase.WithBackoff(cfg.Engine.InitialBackoff, cfg.Engine.MaxBackoff),
	)
	accountService := usecase.NewAccountService(repo, engine)

	// 5. 初始化 Driving Adapters
	if cfg.App.Env == logger.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	httpServer := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: rest.NewRouter(rest.RouterConfig{
			Core:           accountService,
			Logger:         log,
			Redis:          rdb,
			IdempotencyTTL: cfg.Redis.IdempotencyTTL,
			HealthCheck:    repo.Ping,
		}),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		grpc_adapter.RecoveryInterceptor(log),
		grpc_adapter.LoggingInterceptor(log),
	))
	grpc_adapter.RegisterAccountServiceServer(grpcServer, grpc_adapter.NewGrpcServer(accountService))

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.GRPC.Addr, err)
	}

	// 6. 啟動 Server，收到 SIGINT / SIGTERM 後 Graceful Shutdown
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", zap.String("addr", cfg.HTTP.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info("starting grpc server", zap.String("addr", cfg.GRPC.Addr))
		if err := grpcServer.Serve(lis); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down servers...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if grpcpkg.GracefulStop(shutdownCtx, grpcServer) {
			log.Warn("grpc graceful stop timed out, forced stop")
		}
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newRepository 依設定建立儲存層
func newRepository(ctx context.Context, cfg config.Config, log *zap.Logger) (usecase.AccountRepository, error) {
	switch cfg.Store.Driver {
	case config.DriverMySQL:
		client, err := mysql.NewClient(ctx, cfg.MySQL, log)
		if err != nil {
			return nil, err
		}
		store := mysql_adapter.NewStore(client)
		if err := store.Migrate(ctx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("mysql migrate: %w", err)
		}
		return store, nil

	case config.DriverPostgres:
		if cfg.Postgres.Migrate {
			if err := postgres.RunMigrations(log, cfg.Postgres.DSN); err != nil {
				return nil, fmt.Errorf("postgres migrate: %w", err)
			}
		}
		client, err := postgres.NewClient(ctx, cfg.Postgres, log)
		if err != nil {
			return nil, err
		}
		return postgres_adapter.NewStore(client), nil

	default:
		var w *wal.WAL
		if cfg.Store.WALPath != "" {
			var err error
			if w, err = wal.Open(cfg.Store.WALPath); err != nil {
				return nil, err
			}
		}
		store, err := memory_adapter.NewStore(w)
		if err != nil {
			if w != nil {
				_ = w.Close()
			}
			return nil, err
		}
		return store, nil
	}
}
