package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-money-ledger/internal/app/core/adapter/out/memory"
	"github.com/JoeShih716/go-money-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-money-ledger/internal/app/core/usecase"
)

// flakyStore 在前 failures 次 AtomicUpdate 回傳暫時性錯誤
type flakyStore struct {
	usecase.AccountStore
	failures int32
	err      error
	calls    atomic.Int32
}

func (f *flakyStore) AtomicUpdate(ctx context.Context, id uuid.UUID, fn usecase.UpdateFunc) (*domain.Account, error) {
	if f.calls.Add(1) <= f.failures {
		return nil, f.err
	}
	return f.AccountStore.AtomicUpdate(ctx, id, fn)
}

func newStoreWithAccount(t *testing.T, balance domain.Money) (*memory.Store, *domain.Account) {
	t.Helper()
	store, err := memory.NewStore(nil)
	require.NoError(t, err)
	acc, err := domain.NewAccount("Wallet", "USD", time.Now())
	require.NoError(t, err)
	acc.Balance = balance
	require.NoError(t, store.Create(context.Background(), acc))
	return store, acc
}

func fastEngine(store usecase.AccountStore, opts ...usecase.EngineOption) *usecase.BalanceEngine {
	opts = append([]usecase.EngineOption{usecase.WithBackoff(time.Millisecond, 2*time.Millisecond)}, opts...)
	return usecase.NewBalanceEngine(store, opts...)
}

func TestBalanceEngine_Deposit(t *testing.T) {
	ctx := context.Background()
	store, acc := newStoreWithAccount(t, 0)
	engine := fastEngine(store)

	updated, err := engine.Deposit(ctx, acc.ID, 10050)
	require.NoError(t, err)
	assert.Equal(t, domain.Money(10050), updated.Balance)
	assert.False(t, updated.UpdatedAt.Before(acc.UpdatedAt))
}

func TestBalanceEngine_InvalidAmount(t *testing.T) {
	ctx := context.Background()
	store, acc := newStoreWithAccount(t, 1000)
	engine := fastEngine(store)

	for _, amount := range []domain.Money{0, -5} {
		_, err := engine.Deposit(ctx, acc.ID, amount)
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
		_, err = engine.Withdraw(ctx, acc.ID, amount)
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	}

	got, err := store.Get(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Money(1000), got.Balance)
}

func TestBalanceEngine_InsufficientFunds(t *testing.T) {
	ctx := context.Background()
	store, acc := newStoreWithAccount(t, 1000)
	engine := fastEngine(store)

	_, err := engine.Withdraw(ctx, acc.ID, 1001)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	var opErr *domain.OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, acc.ID, opErr.AccountID)
	assert.Equal(t, "withdraw", opErr.Op)

	got, err := store.Get(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Money(1000), got.Balance)
}

func TestBalanceEngine_AccountNotFound(t *testing.T) {
	ctx := context.Background()
	store, _ := newStoreWithAccount(t, 0)
	engine := fastEngine(store)

	missing := uuid.New()
	_, err := engine.Deposit(ctx, missing, 100)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	_, err = engine.Withdraw(ctx, missing, 100)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	_, err = store.Get(ctx, missing)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestBalanceEngine_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, acc := newStoreWithAccount(t, 1000)
	engine := fastEngine(store)

	amount, err := domain.FromDecimal("100.50")
	require.NoError(t, err)

	updated, err := engine.Deposit(ctx, acc.ID, amount)
	require.NoError(t, err)
	assert.Equal(t, domain.Money(1000+10050), updated.Balance)

	updated, err = engine.Withdraw(ctx, acc.ID, amount)
	require.NoError(t, err)
	assert.Equal(t, domain.Money(1000), updated.Balance)
}

func TestBalanceEngine_RetriesTransientErrors(t *testing.T) {
	ctx := context.Background()
	store, acc := newStoreWithAccount(t, 0)
	flaky := &flakyStore{
		AccountStore: store,
		failures:     2,
		err:          fmt.Errorf("%w: deadlock", domain.ErrTransientStorage),
	}
	engine := fastEngine(flaky, usecase.WithMaxRetries(3))

	updated, err := engine.Deposit(ctx, acc.ID, 100)
	require.NoError(t, err)
	assert.Equal(t, domain.Money(100), updated.Balance)
	assert.Equal(t, int32(3), flaky.calls.Load())
}

func TestBalanceEngine_StorageUnavailableAfterRetries(t *testing.T) {
	ctx := context.Background()
	store, acc := newStoreWithAccount(t, 0)
	flaky := &flakyStore{
		AccountStore: store,
		failures:     100,
		err:          fmt.Errorf("%w: serialization failure", domain.ErrTransientStorage),
	}
	engine := fastEngine(flaky, usecase.WithMaxRetries(3))

	_, err := engine.Deposit(ctx, acc.ID, 100)
	require.ErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.Equal(t, int32(4), flaky.calls.Load())

	got, err := store.Get(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Money(0), got.Balance)
}

func TestBalanceEngine_NonTransientErrorNotRetried(t *testing.T) {
	ctx := context.Background()
	store, acc := newStoreWithAccount(t, 0)
	flaky := &flakyStore{
		AccountStore: store,
		failures:     100,
		err:          errors.New("disk on fire"),
	}
	engine := fastEngine(flaky)

	_, err := engine.Withdraw(ctx, acc.ID, 100)
	require.ErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.Equal(t, int32(1), flaky.calls.Load())
}

func TestBalanceEngine_CanceledContext(t *testing.T) {
	store, acc := newStoreWithAccount(t, 0)
	engine := fastEngine(store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := engine.Deposit(ctx, acc.ID, 100)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrStorageUnavailable)

	got, err := store.Get(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Money(0), got.Balance)
}

func TestBalanceEngine_ConcurrentMutationsAreSerializable(t *testing.T) {
	ctx := context.Background()
	const initial = domain.Money(5000)
	store, acc := newStoreWithAccount(t, initial)
	engine := fastEngine(store)

	const n = 400
	var (
		wg        sync.WaitGroup
		deposited atomic.Int64
		withdrawn atomic.Int64
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		amount := domain.Money(rand.Intn(200) + 1)
		isDeposit := i%2 == 0
		go func() {
			defer wg.Done()
			if isDeposit {
				_, err := engine.Deposit(ctx, acc.ID, amount)
				if assert.NoError(t, err) {
					deposited.Add(int64(amount))
				}
				return
			}
			updated, err := engine.Withdraw(ctx, acc.ID, amount)
			if err != nil {
				assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
				return
			}
			assert.False(t, updated.Balance.IsNegative())
			withdrawn.Add(int64(amount))
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, acc.ID)
	require.NoError(t, err)
	want := int64(initial) + deposited.Load() - withdrawn.Load()
	assert.Equal(t, domain.Money(want), got.Balance)
	assert.False(t, got.Balance.IsNegative())
}

func TestBalanceEngine_DistinctAccountsInParallel(t *testing.T) {
	ctx := context.Background()
	store, err := memory.NewStore(nil)
	require.NoError(t, err)
	engine := fastEngine(store)

	ids := make([]uuid.UUID, 8)
	for i := range ids {
		acc, err := domain.NewAccount(fmt.Sprintf("acc-%d", i), "EUR", time.Now())
		require.NoError(t, err)
		require.NoError(t, store.Create(ctx, acc))
		ids[i] = acc.ID
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		for j := 0; j < 25; j++ {
			wg.Add(1)
			go func(id uuid.UUID) {
				defer wg.Done()
				_, err := engine.Deposit(ctx, id, 4)
				assert.NoError(t, err)
			}(id)
		}
	}
	wg.Wait()

	for _, id := range ids {
		got, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.Money(100), got.Balance)
	}
}
