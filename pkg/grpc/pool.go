package grpc

import (
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

// Pool 依目標地址共用 gRPC 連線，每個地址只維護一條 *grpc.ClientConn
// 可被多個 goroutine 同時使用
type Pool struct {
	mu          sync.RWMutex
	conns       map[string]*grpc.ClientConn
	interceptor grpc.UnaryClientInterceptor
	dialOpts    []grpc.DialOption
	keepalive   keepalive.ClientParameters
}

// PoolOption Pool 的設定選項
type PoolOption func(*Pool)

// WithInterceptor 設定所有連線共用的 UnaryClientInterceptor (logging / metrics)
func WithInterceptor(interceptor grpc.UnaryClientInterceptor) PoolOption {
	return func(p *Pool) {
		p.interceptor = interceptor
	}
}

// WithDialOptions 附加到每條新連線的 DialOption (如測試用的 bufconn dialer)
func WithDialOptions(opts ...grpc.DialOption) PoolOption {
	return func(p *Pool) {
		p.dialOpts = append(p.dialOpts, opts...)
	}
}

// WithKeepalive 覆寫預設的 keepalive 參數
func WithKeepalive(params keepalive.ClientParameters) PoolOption {
	return func(p *Pool) {
		p.keepalive = params
	}
}

// NewPool 建立連線池
func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{
		conns: make(map[string]*grpc.ClientConn),
		keepalive: keepalive.ClientParameters{
			Time:                10 * time.Second, // 閒置 10 秒送一次 ping
			Timeout:             time.Second,
			PermitWithoutStream: true,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GetConnection 取得目標的連線，不存在或已 Shutdown 時建立新連線
//
// 參數:
//
//	target: 目標地址 (e.g., "localhost:50051")
//	opts: 僅套用於本次新建連線的額外選項
//
// 回傳值:
//
//	*grpc.ClientConn: 連線 (lazy，第一次呼叫時才真正連線)
//	error: 建立失敗
func (p *Pool) GetConnection(target string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	p.mu.RLock()
	conn, ok := p.conns[target]
	p.mu.RUnlock()
	if ok && conn.GetState() != connectivity.Shutdown {
		return conn, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// double-check: 等鎖期間可能已被其他 goroutine 建立
	if conn, ok := p.conns[target]; ok {
		if conn.GetState() != connectivity.Shutdown {
			return conn, nil
		}
		delete(p.conns, target)
	}

	// 內部服務通訊預設不加密
	finalOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(p.keepalive),
	}
	if p.interceptor != nil {
		finalOpts = append(finalOpts, grpc.WithUnaryInterceptor(p.interceptor))
	}
	finalOpts = append(finalOpts, p.dialOpts...)
	finalOpts = append(finalOpts, opts...)

	conn, err := grpc.NewClient(target, finalOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client for target %s: %w", target, err)
	}
	p.conns[target] = conn
	return conn, nil
}

// Len 目前維護的連線數
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.conns)
}

// Close 關閉所有連線，回傳第一個發生的錯誤
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for target, conn := range p.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.conns, target)
	}
	return firstErr
}
