package grpc

import (
	"context"

	"google.golang.org/grpc"
)

// GracefulStop 等待進行中的 RPC 結束後關閉 Server，ctx 到期時改為強制 Stop
//
// 回傳:
//
//	bool: 是否因逾時而強制關閉
func GracefulStop(ctx context.Context, s *grpc.Server) bool {
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		return false
	case <-ctx.Done():
		// Stop 會中斷所有連線，GracefulStop 隨之返回
		s.Stop()
		<-done
		return true
	}
}
