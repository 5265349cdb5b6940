// Package storetest 提供所有 AccountRepository 實作共用的行為測試
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-money-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-money-ledger/internal/app/core/usecase"
)

// Factory 為每個子測試建立一個全新 (空的) Repository
type Factory func(t *testing.T) usecase.AccountRepository

// Run 對 Repository 執行共用的行為測試
func Run(t *testing.T, newRepo Factory) {
	t.Run("CreateGetFind", func(t *testing.T) { testCreateGetFind(t, newRepo(t)) })
	t.Run("AtomicUpdate", func(t *testing.T) { testAtomicUpdate(t, newRepo(t)) })
	t.Run("AtomicUpdateNotFound", func(t *testing.T) { testAtomicUpdateNotFound(t, newRepo(t)) })
	t.Run("ConcurrentWithdrawNeverNegative", func(t *testing.T) { testConcurrentWithdraw(t, newRepo(t)) })
	t.Run("ListAndDelete", func(t *testing.T) { testListAndDelete(t, newRepo(t)) })
	t.Run("Ping", func(t *testing.T) {
		require.NoError(t, newRepo(t).Ping(context.Background()))
	})
}

func mustAccount(t *testing.T, name string, createdAt time.Time) *domain.Account {
	t.Helper()
	acc, err := domain.NewAccount(name, "USD", createdAt)
	require.NoError(t, err)
	return acc
}

func testCreateGetFind(t *testing.T, repo usecase.AccountRepository) {
	ctx := context.Background()
	acc := mustAccount(t, "Wallet", time.Now().Truncate(time.Millisecond))
	require.NoError(t, repo.Create(ctx, acc))

	got, err := repo.Get(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, got.ID)
	assert.Equal(t, "Wallet", got.Name)
	assert.Equal(t, "USD", got.Currency)
	assert.Equal(t, domain.Money(0), got.Balance)
	assert.WithinDuration(t, acc.CreatedAt, got.CreatedAt, time.Millisecond)

	byName, err := repo.FindByName(ctx, "WALLET")
	require.NoError(t, err)
	assert.Equal(t, acc.ID, byName.ID)

	err = repo.Create(ctx, mustAccount(t, "wallet", time.Now()))
	assert.ErrorIs(t, err, domain.ErrAccountAlreadyExists)

	_, err = repo.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func testAtomicUpdate(t *testing.T, repo usecase.AccountRepository) {
	ctx := context.Background()
	acc := mustAccount(t, "Wallet", time.Now().Add(-time.Hour))
	require.NoError(t, repo.Create(ctx, acc))

	updated, err := repo.AtomicUpdate(ctx, acc.ID, func(a *domain.Account) error { return a.Deposit(10050) })
	require.NoError(t, err)
	assert.Equal(t, domain.Money(10050), updated.Balance)
	assert.True(t, updated.UpdatedAt.After(acc.UpdatedAt))

	boom := errors.New("boom")
	_, err = repo.AtomicUpdate(ctx, acc.ID, func(a *domain.Account) error {
		a.Balance = 1
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = repo.AtomicUpdate(ctx, acc.ID, func(a *domain.Account) error { return a.Withdraw(20000) })
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	got, err := repo.Get(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Money(10050), got.Balance)
}

func testAtomicUpdateNotFound(t *testing.T, repo usecase.AccountRepository) {
	ctx := context.Background()
	id := uuid.New()
	_, err := repo.AtomicUpdate(ctx, id, func(a *domain.Account) error { return a.Deposit(1) })
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	_, err = repo.Get(ctx, id)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

// testConcurrentWithdraw 100 元分 30 次並發提款 5 元: 恰好 20 次成功，餘額歸零且不為負
func testConcurrentWithdraw(t *testing.T, repo usecase.AccountRepository) {
	ctx := context.Background()
	acc := mustAccount(t, "Wallet", time.Now())
	require.NoError(t, repo.Create(ctx, acc))
	_, err := repo.AtomicUpdate(ctx, acc.ID, func(a *domain.Account) error { return a.Deposit(10000) })
	require.NoError(t, err)

	engine := usecase.NewBalanceEngine(repo, usecase.WithMaxRetries(10), usecase.WithBackoff(time.Millisecond, 20*time.Millisecond))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Withdraw(ctx, acc.ID, 500)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, succeeded)
	got, err := repo.Get(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Money(0), got.Balance)
}

func testListAndDelete(t *testing.T, repo usecase.AccountRepository) {
	ctx := context.Background()
	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	ids := make([]uuid.UUID, 3)
	for i := range ids {
		acc := mustAccount(t, fmt.Sprintf("acc-%d", i), base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, repo.Create(ctx, acc))
		ids[i] = acc.ID
	}

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, ids[2], list[0].ID)
	assert.Equal(t, ids[0], list[2].ID)

	require.NoError(t, repo.Delete(ctx, ids[1]))
	assert.ErrorIs(t, repo.Delete(ctx, ids[1]), domain.ErrAccountNotFound)

	_, err = repo.AtomicUpdate(ctx, ids[1], func(a *domain.Account) error { return a.Deposit(1) })
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	list, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
