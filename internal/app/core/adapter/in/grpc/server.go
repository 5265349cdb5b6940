package grpc

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/JoeShih716/go-money-ledger/internal/app/core/domain"
)

// AccountUseCase gRPC Adapter 依賴的業務操作 (由 usecase.AccountService 實作)
type AccountUseCase interface {
	CreateAccount(ctx context.Context, name, currency string) (*domain.Account, error)
	GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	ListAccounts(ctx context.Context) ([]*domain.Account, error)
	DeleteAccount(ctx context.Context, id uuid.UUID) error
	Deposit(ctx context.Context, id uuid.UUID, amount string) (*domain.Account, error)
	Withdraw(ctx context.Context, id uuid.UUID, amount string) (*domain.Account, error)
}

type GrpcServer struct {
	core AccountUseCase
}

func NewGrpcServer(core AccountUseCase) *GrpcServer {
	return &GrpcServer{
		core: core,
	}
}

func (s *GrpcServer) CreateAccount(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	account, err := s.core.CreateAccount(ctx, stringField(req, fieldName), stringField(req, fieldCurrency))
	if err != nil {
		return nil, toStatus(err)
	}
	return respond(encodeAccount(account))
}

func (s *GrpcServer) GetAccount(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := accountIDField(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	account, err := s.core.GetAccount(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return respond(encodeAccount(account))
}

func (s *GrpcServer) ListAccounts(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	accounts, err := s.core.ListAccounts(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return respond(encodeAccounts(accounts))
}

func (s *GrpcServer) DeleteAccount(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := accountIDField(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.core.DeleteAccount(ctx, id); err != nil {
		return nil, toStatus(err)
	}
	return respond(structpb.NewStruct(map[string]any{fieldMessage: "account deleted"}))
}

// Deposit 存款，回傳更新後的帳戶
func (s *GrpcServer) Deposit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := accountIDField(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	account, err := s.core.Deposit(ctx, id, amountField(req))
	if err != nil {
		return nil, toStatus(err)
	}
	return respond(encodeAccount(account))
}

// Withdraw 提款，餘額不足時回傳 FailedPrecondition
func (s *GrpcServer) Withdraw(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := accountIDField(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	account, err := s.core.Withdraw(ctx, id, amountField(req))
	if err != nil {
		return nil, toStatus(err)
	}
	return respond(encodeAccount(account))
}

func respond(out *structpb.Struct, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response: "+err.Error())
	}
	return out, nil
}

// toStatus 將 domain 錯誤轉為 gRPC status
// 未知錯誤不回傳細節
func toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrInvalidAccount):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrInsufficientFunds):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrAccountAlreadyExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, domain.ErrStorageUnavailable):
		return status.Error(codes.Unavailable, domain.ErrStorageUnavailable.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

var _ AccountServiceServer = (*GrpcServer)(nil)
