package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrInvalidAmount 金額格式錯誤或非正數
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInsufficientFunds 餘額不足
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAccountNotFound 找不到帳戶
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountAlreadyExists 帳戶已存在 (名稱重複)
	ErrAccountAlreadyExists = errors.New("account already exists")

	// ErrInvalidAccount 帳戶名稱或幣別不合法
	ErrInvalidAccount = errors.New("invalid account")

	// ErrStorageUnavailable 儲存層暫時無法使用 (重試後仍失敗)
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrTransientStorage 可重試的儲存層錯誤 (deadlock / serialization failure / lock timeout)
	// 只在 Store 與 Engine 之間流動，不會直接回給呼叫端
	ErrTransientStorage = errors.New("transient storage failure")

	// ErrWALWriteFailed WAL 寫入失敗
	ErrWALWriteFailed = errors.New("wal write failed")
)

// InsufficientFundsError 餘額不足的詳細資訊
type InsufficientFundsError struct {
	Available Money
	Requested Money
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: available %s, requested %s", e.Available, e.Requested)
}

// Is 讓 errors.Is(err, ErrInsufficientFunds) 成立
func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// OpError 附帶操作名稱與帳戶 ID 的錯誤，方便診斷
type OpError struct {
	Op        string
	AccountID uuid.UUID
	Err       error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s account %s: %v", e.Op, e.AccountID, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}
