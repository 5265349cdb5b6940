package grpc

import (
	"context"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// LoggingInterceptor 記錄每個 unary 呼叫的方法、狀態碼與耗時
func LoggingInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)

		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("duration", time.Since(start)),
		}
		switch code {
		case codes.OK:
			log.Debug("grpc request", fields...)
		case codes.Internal, codes.Unavailable, codes.Unknown:
			log.Error("grpc request failed", append(fields, zap.Error(err))...)
		default:
			log.Info("grpc request rejected", append(fields, zap.Error(err))...)
		}
		return resp, err
	}
}

// RecoveryInterceptor 將 handler 的 panic 轉為 Internal 錯誤
func RecoveryInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if p := recover(); p != nil {
				log.Error("grpc handler panic",
					zap.String("method", info.FullMethod),
					zap.Any("panic", p),
					zap.ByteString("stack", debug.Stack()),
				)
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}
