package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/JoeShih716/go-money-ledger/internal/app/core/domain"
)

const (
	// DefaultMaxRetries 儲存層暫時性錯誤的最大重試次數
	DefaultMaxRetries = 3
	// DefaultInitialBackoff 第一次重試前的等待時間
	DefaultInitialBackoff = 10 * time.Millisecond
	// DefaultMaxBackoff 單次重試等待上限
	DefaultMaxBackoff = 200 * time.Millisecond
)

// BalanceEngine 餘額異動引擎
// 不持有任何帳戶狀態，每次操作都只呼叫一次 Store.AtomicUpdate (加上有限次數的重試)
type BalanceEngine struct {
	store          AccountStore
	maxRetries     uint64
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// EngineOption 定義了 BalanceEngine 的配置選項函數
type EngineOption func(*BalanceEngine)

// WithMaxRetries 設定暫時性錯誤的重試次數
func WithMaxRetries(n uint64) EngineOption {
	return func(e *BalanceEngine) {
		e.maxRetries = n
	}
}

// WithBackoff 設定重試的等待區間
func WithBackoff(initial, max time.Duration) EngineOption {
	return func(e *BalanceEngine) {
		if initial > 0 {
			e.initialBackoff = initial
		}
		if max > 0 {
			e.maxBackoff = max
		}
	}
}

// NewBalanceEngine 建立餘額異動引擎
func NewBalanceEngine(store AccountStore, opts ...EngineOption) *BalanceEngine {
	e := &BalanceEngine{
		store:          store,
		maxRetries:     DefaultMaxRetries,
		initialBackoff: DefaultInitialBackoff,
		maxBackoff:     DefaultMaxBackoff,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Deposit 存款
//
// 參數:
//
//	ctx: 上下文
//	id: 帳戶 ID
//	amount: 存款金額 (必須 > 0)
//
// 回傳:
//
//	*domain.Account: 更新後的帳戶
//	error: ErrInvalidAmount / ErrAccountNotFound / ErrStorageUnavailable
func (e *BalanceEngine) Deposit(ctx context.Context, id uuid.UUID, amount domain.Money) (*domain.Account, error) {
	return e.mutate(ctx, "deposit", id, amount, func(account *domain.Account) error {
		return account.Deposit(amount)
	})
}

// Withdraw 提款
// 餘額檢查與寫入在同一次 AtomicUpdate 內完成，不會與其他並發異動交錯
//
// 參數:
//
//	ctx: 上下文
//	id: 帳戶 ID
//	amount: 提款金額 (必須 > 0)
//
// 回傳:
//
//	*domain.Account: 更新後的帳戶
//	error: ErrInvalidAmount / ErrAccountNotFound / ErrInsufficientFunds / ErrStorageUnavailable
func (e *BalanceEngine) Withdraw(ctx context.Context, id uuid.UUID, amount domain.Money) (*domain.Account, error) {
	return e.mutate(ctx, "withdraw", id, amount, func(account *domain.Account) error {
		return account.Withdraw(amount)
	})
}

func (e *BalanceEngine) mutate(ctx context.Context, op string, id uuid.UUID, amount domain.Money, fn UpdateFunc) (*domain.Account, error) {
	if !amount.IsPositive() {
		return nil, &domain.OpError{
			Op:        op,
			AccountID: id,
			Err:       fmt.Errorf("%w: amount must be positive", domain.ErrInvalidAmount),
		}
	}

	account, err := backoff.RetryWithData(func() (*domain.Account, error) {
		updated, err := e.store.AtomicUpdate(ctx, id, fn)
		if err == nil {
			return updated, nil
		}
		// 只有暫時性的儲存錯誤會重試，呼叫端錯誤直接回傳
		if errors.Is(err, domain.ErrTransientStorage) {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(e.newBackOff(), e.maxRetries), ctx))
	if err != nil {
		return nil, &domain.OpError{Op: op, AccountID: id, Err: classify(err)}
	}
	return account, nil
}

func (e *BalanceEngine) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.initialBackoff
	b.MaxInterval = e.maxBackoff
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// classify 將錯誤歸類為四種對外錯誤之一；context 取消則原樣回傳
func classify(err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrStorageUnavailable):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}
}
