package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName gRPC 服務名稱
const ServiceName = "ledger.v1.AccountService"

// 方法名稱
const (
	MethodCreateAccount = "CreateAccount"
	MethodGetAccount    = "GetAccount"
	MethodListAccounts  = "ListAccounts"
	MethodDeleteAccount = "DeleteAccount"
	MethodDeposit       = "Deposit"
	MethodWithdraw      = "Withdraw"
)

// FullMethod 回傳完整方法路徑，例: /ledger.v1.AccountService/Deposit
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// AccountServiceServer 服務端需實作的方法
// 請求與回應皆為 google.protobuf.Struct，欄位見 codec.go
type AccountServiceServer interface {
	CreateAccount(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetAccount(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListAccounts(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	DeleteAccount(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Deposit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Withdraw(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(srv AccountServiceServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

// unaryHandler 產生 grpc.MethodHandler: 解碼請求 -> (攔截器) -> 呼叫實作
func unaryHandler(method string, call unaryMethod) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AccountServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: FullMethod(method),
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AccountServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// AccountServiceDesc 手動註冊的服務描述
var AccountServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AccountServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: MethodCreateAccount, Handler: unaryHandler(MethodCreateAccount, AccountServiceServer.CreateAccount)},
		{MethodName: MethodGetAccount, Handler: unaryHandler(MethodGetAccount, AccountServiceServer.GetAccount)},
		{MethodName: MethodListAccounts, Handler: unaryHandler(MethodListAccounts, AccountServiceServer.ListAccounts)},
		{MethodName: MethodDeleteAccount, Handler: unaryHandler(MethodDeleteAccount, AccountServiceServer.DeleteAccount)},
		{MethodName: MethodDeposit, Handler: unaryHandler(MethodDeposit, AccountServiceServer.Deposit)},
		{MethodName: MethodWithdraw, Handler: unaryHandler(MethodWithdraw, AccountServiceServer.Withdraw)},
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterAccountServiceServer 將實作註冊到 gRPC Server
func RegisterAccountServiceServer(s grpc.ServiceRegistrar, srv AccountServiceServer) {
	s.RegisterService(&AccountServiceDesc, srv)
}
