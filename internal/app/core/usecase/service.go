package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-money-ledger/internal/app/core/domain"
)

// AccountService 是帳戶相關的業務流程層
// 建立 / 查詢 / 刪除直接使用 Repository，存提款一律委派給 BalanceEngine
type AccountService struct {
	repo   AccountRepository
	engine *BalanceEngine
	now    func() time.Time
}

// NewAccountService 建立 AccountService
func NewAccountService(repo AccountRepository, engine *BalanceEngine) *AccountService {
	return &AccountService{
		repo:   repo,
		engine: engine,
		now:    time.Now,
	}
}

// CreateAccount 建立新帳戶 (餘額 0)，名稱不分大小寫必須唯一
func (s *AccountService) CreateAccount(ctx context.Context, name, currency string) (*domain.Account, error) {
	account, err := domain.NewAccount(name, currency, s.now())
	if err != nil {
		return nil, err
	}

	_, err = s.repo.FindByName(ctx, account.Name)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: %q", domain.ErrAccountAlreadyExists, account.Name)
	case !errors.Is(err, domain.ErrAccountNotFound):
		return nil, storageError(err)
	}

	// 並發建立同名帳戶時由 Repository 的唯一索引把關
	if err := s.repo.Create(ctx, account); err != nil {
		if errors.Is(err, domain.ErrAccountAlreadyExists) {
			return nil, err
		}
		return nil, storageError(err)
	}
	return account, nil
}

// GetAccount 取得帳戶
func (s *AccountService) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	account, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, &domain.OpError{Op: "get", AccountID: id, Err: err}
		}
		return nil, storageError(err)
	}
	return account, nil
}

// ListAccounts 列出所有帳戶 (新到舊)
func (s *AccountService) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	accounts, err := s.repo.List(ctx)
	if err != nil {
		return nil, storageError(err)
	}
	return accounts, nil
}

// DeleteAccount 刪除帳戶
func (s *AccountService) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return &domain.OpError{Op: "delete", AccountID: id, Err: err}
		}
		return storageError(err)
	}
	return nil
}

// Deposit 解析十進位金額字串後委派給 BalanceEngine
func (s *AccountService) Deposit(ctx context.Context, id uuid.UUID, amount string) (*domain.Account, error) {
	money, err := domain.FromDecimal(amount)
	if err != nil {
		return nil, &domain.OpError{Op: "deposit", AccountID: id, Err: err}
	}
	return s.engine.Deposit(ctx, id, money)
}

// Withdraw 解析十進位金額字串後委派給 BalanceEngine
func (s *AccountService) Withdraw(ctx context.Context, id uuid.UUID, amount string) (*domain.Account, error) {
	money, err := domain.FromDecimal(amount)
	if err != nil {
		return nil, &domain.OpError{Op: "withdraw", AccountID: id, Err: err}
	}
	return s.engine.Withdraw(ctx, id, money)
}

func storageError(err error) error {
	if errors.Is(err, domain.ErrStorageUnavailable) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
}
