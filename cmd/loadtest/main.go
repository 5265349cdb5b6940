package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	grpc_adapter "github.com/JoeShih716/go-money-ledger/internal/app/core/adapter/in/grpc"
	"github.com/JoeShih716/go-money-ledger/internal/app/core/domain"
	grpcpool "github.com/JoeShih716/go-money-ledger/pkg/grpc"
	"github.com/JoeShih716/go-money-ledger/pkg/logger"
)

// loadtest 對同一帳戶併發存提款，最後比對餘額確認沒有遺失更新
func main() {
	target := flag.String("target", "localhost:50051", "gRPC server address")
	total := flag.Int("n", 10000, "total number of requests")
	concurrency := flag.Int("c", 100, "number of concurrent workers")
	amount := flag.String("amount", "1.00", "amount per deposit / withdraw")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall timeout")
	flag.Parse()

	log, err := logger.New("dev")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(log, *target, *total, *concurrency, *amount, *timeout); err != nil {
		log.Fatal("loadtest failed", zap.Error(err))
	}
}

func run(log *zap.Logger, target string, total, concurrency int, amount string, timeout time.Duration) error {
	unit, err := domain.FromDecimal(amount)
	if err != nil {
		return err
	}

	var rpcErrors atomic.Int64
	pool := grpcpool.NewPool(grpcpool.WithInterceptor(countErrors(&rpcErrors)))
	defer pool.Close()

	conn, err := pool.GetConnection(target)
	if err != nil {
		return err
	}
	client := grpc_adapter.NewClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// 1. 建立測試帳戶並預存一半的金額，確保提款不會因餘額不足失敗
	account, err := client.CreateAccount(ctx, "loadtest-"+uuid.NewString()[:8], "USD")
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	withdrawals := total / 2
	deposits := total - withdrawals
	seed, err := multiply(unit, withdrawals)
	if err != nil {
		return err
	}
	if withdrawals > 0 {
		if _, err := client.Deposit(ctx, account.ID, seed.String()); err != nil {
			return fmt.Errorf("seed deposit: %w", err)
		}
	}
	log.Info("account ready",
		zap.String("account_id", account.ID.String()),
		zap.Int("deposits", deposits),
		zap.Int("withdrawals", withdrawals))

	// 2. 併發送出存款與提款
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
		sem       = make(chan struct{}, concurrency)
	)
	start := time.Now()
	for i := 0; i < total; i++ {
		sem <- struct{}{}
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			var err error
			if idx%2 == 0 {
				_, err = client.Deposit(ctx, account.ID, amount)
			} else {
				_, err = client.Withdraw(ctx, account.ID, amount)
			}
			if err != nil {
				if !errors.Is(err, domain.ErrStorageUnavailable) {
					log.Warn("request failed", zap.Int("idx", idx), zap.Error(err))
				}
				return
			}
			succeeded.Add(1)
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	// 3. 驗證: 若所有請求皆成功，餘額應等於 deposits 筆存款 (預存款被提款抵銷)
	final, err := client.GetAccount(ctx, account.ID)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}
	log.Info("loadtest finished",
		zap.Int("requests", total),
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("rpc_errors", rpcErrors.Load()),
		zap.Duration("elapsed", elapsed),
		zap.Float64("tps", float64(total)/elapsed.Seconds()),
		zap.String("final_balance", final.Balance.String()))

	if succeeded.Load() != int64(total) {
		return fmt.Errorf("%d of %d requests failed", int64(total)-succeeded.Load(), total)
	}
	expected, err := multiply(unit, deposits)
	if err != nil {
		return err
	}
	if final.Balance != expected {
		return fmt.Errorf("lost update detected: balance %s, expected %s", final.Balance, expected)
	}
	log.Info("no lost updates", zap.String("balance", final.Balance.String()))
	return nil
}

func multiply(unit domain.Money, n int) (domain.Money, error) {
	total := domain.Money(0)
	for i := 0; i < n; i++ {
		var err error
		if total, err = total.Add(unit); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// countErrors 統計失敗的 RPC 次數
func countErrors(counter *atomic.Int64) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		err := invoker(ctx, method, req, reply, cc, opts...)
		if err != nil {
			if _, ok := status.FromError(err); ok {
				counter.Add(1)
			}
		}
		return err
	}
}
