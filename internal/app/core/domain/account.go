package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/currency"
)

// MaxAccountNameLength 帳戶名稱長度上限 (字元數)
const MaxAccountNameLength = 100

// Account 帳戶
// Balance 為唯一會被核心修改的欄位，任何時刻都必須 >= 0
type Account struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Balance   Money     `json:"balance"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewAccount 建立新帳戶，餘額為 0
//
// 參數:
//
//	name: 帳戶名稱 (不可為空)
//	currencyCode: ISO 4217 幣別代碼 (如 USD)
//	now: 建立時間
//
// 回傳:
//
//	*Account: 新帳戶
//	error: 名稱或幣別不合法時回傳 ErrInvalidAccount
func NewAccount(name, currencyCode string, now time.Time) (*Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidAccount)
	}
	if utf8.RuneCountInString(name) > MaxAccountNameLength {
		return nil, fmt.Errorf("%w: name exceeds %d characters", ErrInvalidAccount, MaxAccountNameLength)
	}
	unit, err := currency.ParseISO(strings.TrimSpace(currencyCode))
	if err != nil {
		return nil, fmt.Errorf("%w: unknown currency %q", ErrInvalidAccount, currencyCode)
	}
	now = now.UTC()
	return &Account{
		ID:        uuid.New(),
		Name:      name,
		Balance:   0,
		Currency:  unit.String(),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Deposit 存款
func (a *Account) Deposit(amount Money) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	balance, err := a.Balance.Add(amount)
	if err != nil {
		return err
	}
	a.Balance = balance
	return nil
}

// Withdraw 提款，餘額不足時回傳 *InsufficientFundsError
func (a *Account) Withdraw(amount Money) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	balance, err := a.Balance.Subtract(amount)
	if err != nil {
		return err
	}
	if balance.IsNegative() {
		return &InsufficientFundsError{Available: a.Balance, Requested: amount}
	}
	a.Balance = balance
	return nil
}

// Clone 回傳帳戶的複本，AtomicUpdate 以複本套用變更，失敗時原資料不受影響
func (a *Account) Clone() *Account {
	c := *a
	return &c
}
