package grpc

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/JoeShih716/go-money-ledger/internal/app/core/domain"
)

// Client ledger.v1.AccountService 的客戶端
// 伺服器回傳的 status 會轉回 domain 錯誤，呼叫端可用 errors.Is 判斷
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient 建立客戶端，cc 通常來自 pkg/grpc.Pool
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) CreateAccount(ctx context.Context, name, currency string) (*domain.Account, error) {
	return c.invokeAccount(ctx, MethodCreateAccount, map[string]any{
		fieldName:     name,
		fieldCurrency: currency,
	})
}

func (c *Client) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return c.invokeAccount(ctx, MethodGetAccount, map[string]any{fieldAccountID: id.String()})
}

func (c *Client) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	out, err := c.invoke(ctx, MethodListAccounts, map[string]any{})
	if err != nil {
		return nil, err
	}
	values := out.GetFields()[fieldAccounts].GetListValue().GetValues()
	accounts := make([]*domain.Account, 0, len(values))
	for _, v := range values {
		account, err := decodeAccount(v.GetStructValue())
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

func (c *Client) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	_, err := c.invoke(ctx, MethodDeleteAccount, map[string]any{fieldAccountID: id.String()})
	return err
}

func (c *Client) Deposit(ctx context.Context, id uuid.UUID, amount string) (*domain.Account, error) {
	return c.invokeAccount(ctx, MethodDeposit, map[string]any{
		fieldAccountID: id.String(),
		fieldAmount:    amount,
	})
}

func (c *Client) Withdraw(ctx context.Context, id uuid.UUID, amount string) (*domain.Account, error) {
	return c.invokeAccount(ctx, MethodWithdraw, map[string]any{
		fieldAccountID: id.String(),
		fieldAmount:    amount,
	})
}

func (c *Client) invokeAccount(ctx context.Context, method string, req map[string]any) (*domain.Account, error) {
	out, err := c.invoke(ctx, method, req)
	if err != nil {
		return nil, err
	}
	return decodeAccount(out.GetFields()[fieldAccount].GetStructValue())
}

func (c *Client) invoke(ctx context.Context, method string, req map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, fmt.Errorf("grpc: encode request: %w", err)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out); err != nil {
		return nil, fromStatus(err)
	}
	return out, nil
}

// fromStatus 將 gRPC status 轉回 domain 錯誤
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	var sentinel error
	switch st.Code() {
	case codes.NotFound:
		sentinel = domain.ErrAccountNotFound
	case codes.InvalidArgument:
		// account_id 格式錯誤不屬於任何 domain 錯誤，保留原始 status
		if strings.HasPrefix(st.Message(), invalidAccountIDMessage) {
			return err
		}
		sentinel = domain.ErrInvalidAmount
		if strings.Contains(st.Message(), domain.ErrInvalidAccount.Error()) {
			sentinel = domain.ErrInvalidAccount
		}
	case codes.FailedPrecondition:
		sentinel = domain.ErrInsufficientFunds
	case codes.AlreadyExists:
		sentinel = domain.ErrAccountAlreadyExists
	case codes.Unavailable:
		sentinel = domain.ErrStorageUnavailable
	case codes.Canceled:
		return fmt.Errorf("%w: %s", context.Canceled, st.Message())
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", context.DeadlineExceeded, st.Message())
	default:
		return err
	}
	return fmt.Errorf("%w: %s", sentinel, st.Message())
}
