package rest

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"github.com/JoeShih716/go-money-ledger/internal/app/core/domain"
)

// CreateAccountRequest POST /api/accounts
type CreateAccountRequest struct {
	Name     string `json:"name" binding:"required"`
	Currency string `json:"currency" binding:"required"`
}

// AmountRequest 存提款請求
// amount 可為字串 "100.50" 或 JSON 數字 100.50，數字以原始文字解析，不經過 float
type AmountRequest struct {
	Amount json.RawMessage `json:"amount" binding:"required"`
}

var errAmountType = errors.New("amount must be a string or a number")

// AmountText 取出 amount 的十進位文字
func (r AmountRequest) AmountText() (string, error) {
	raw := bytes.TrimSpace(r.Amount)
	if len(raw) == 0 {
		return "", errAmountType
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", errAmountType
		}
		return s, nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return string(raw), nil
	default:
		return "", errAmountType
	}
}

// AccountResponse 帳戶回應
// balance 為兩位小數字串，balance_minor 為最小單位整數
type AccountResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Balance      string `json:"balance"`
	BalanceMinor int64  `json:"balance_minor"`
	Currency     string `json:"currency"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

func newAccountResponse(a *domain.Account) AccountResponse {
	return AccountResponse{
		ID:           a.ID.String(),
		Name:         a.Name,
		Balance:      a.Balance.String(),
		BalanceMinor: a.Balance.MinorUnits(),
		Currency:     a.Currency,
		CreatedAt:    a.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:    a.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// MessageResponse 無資料回傳時使用 (刪除)
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse 錯誤回應 {"error": "..."}
type ErrorResponse struct {
	Error string `json:"error"`
}
