package grpc

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/JoeShih716/go-money-ledger/internal/app/core/domain"
)

// 訊息欄位
const (
	fieldAccountID    = "account_id"
	fieldAmount       = "amount"
	fieldName         = "name"
	fieldCurrency     = "currency"
	fieldAccount      = "account"
	fieldAccounts     = "accounts"
	fieldID           = "id"
	fieldBalance      = "balance"       // "75.50"
	fieldBalanceMinor = "balance_minor" // 7550
	fieldCreatedAt    = "created_at"
	fieldUpdatedAt    = "updated_at"
	fieldMessage      = "message"
)

// invalidAccountIDMessage account_id 無法解析時的錯誤訊息前綴
const invalidAccountIDMessage = "invalid account_id"

func stringField(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

// amountField 接受字串 "100.50" 或數字 100.5
func amountField(s *structpb.Struct) string {
	v, ok := s.GetFields()[fieldAmount]
	if !ok {
		return ""
	}
	if n, isNumber := v.GetKind().(*structpb.Value_NumberValue); isNumber {
		return strconv.FormatFloat(n.NumberValue, 'f', -1, 64)
	}
	return v.GetStringValue()
}

func accountIDField(s *structpb.Struct) (uuid.UUID, error) {
	raw := stringField(s, fieldAccountID)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s %q", invalidAccountIDMessage, raw)
	}
	return id, nil
}

func accountValue(a *domain.Account) map[string]any {
	return map[string]any{
		fieldID:           a.ID.String(),
		fieldName:         a.Name,
		fieldBalance:      a.Balance.String(),
		fieldBalanceMinor: float64(a.Balance.MinorUnits()),
		fieldCurrency:     a.Currency,
		fieldCreatedAt:    a.CreatedAt.UTC().Format(time.RFC3339Nano),
		fieldUpdatedAt:    a.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func encodeAccount(a *domain.Account) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{fieldAccount: accountValue(a)})
}

func encodeAccounts(accounts []*domain.Account) (*structpb.Struct, error) {
	list := make([]any, 0, len(accounts))
	for _, a := range accounts {
		list = append(list, accountValue(a))
	}
	return structpb.NewStruct(map[string]any{fieldAccounts: list})
}

// decodeAccount 客戶端使用，balance 以十進位字串還原 (balance_minor 為 float64，超過 2^53 會失真)
func decodeAccount(s *structpb.Struct) (*domain.Account, error) {
	if s == nil {
		return nil, fmt.Errorf("grpc: empty account")
	}
	id, err := uuid.Parse(stringField(s, fieldID))
	if err != nil {
		return nil, fmt.Errorf("grpc: decode account id: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, stringField(s, fieldCreatedAt))
	if err != nil {
		return nil, fmt.Errorf("grpc: decode created_at: %w", err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, stringField(s, fieldUpdatedAt))
	if err != nil {
		return nil, fmt.Errorf("grpc: decode updated_at: %w", err)
	}
	balance, err := domain.FromDecimal(stringField(s, fieldBalance))
	if err != nil {
		return nil, fmt.Errorf("grpc: decode balance: %w", err)
	}
	return &domain.Account{
		ID:        id,
		Name:      stringField(s, fieldName),
		Balance:   balance,
		Currency:  stringField(s, fieldCurrency),
		CreatedAt: createdAt.UTC(),
		UpdatedAt: updatedAt.UTC(),
	}, nil
}
