package rest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-money-ledger/internal/app/core/adapter/out/memory"
	"github.com/JoeShih716/go-money-ledger/internal/app/core/usecase"
)

func newIdempotentRouter(t *testing.T) (*gin.Engine, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store, err := memory.NewStore(nil)
	require.NoError(t, err)
	engine := usecase.NewBalanceEngine(store)
	return NewRouter(RouterConfig{
		Core:           usecase.NewAccountService(store, engine),
		Logger:         zap.NewNop(),
		Redis:          rdb,
		IdempotencyTTL: time.Hour,
	}), mr
}

func TestIdempotency_ReplaysFirstResponse(t *testing.T) {
	r, mr := newIdempotentRouter(t)
	acc := createAccount(t, r, "Wallet")
	path := "/api/accounts/" + acc.ID + "/deposit"

	w := doJSON(t, r, http.MethodPost, path, `{"amount":"10.00"}`, IdempotencyHeader, "key-1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get(IdempotencyReplayedHeader))
	first := w.Body.String()

	w = doJSON(t, r, http.MethodPost, path, `{"amount":"10.00"}`, IdempotencyHeader, "key-1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "true", w.Header().Get(IdempotencyReplayedHeader))
	assert.JSONEq(t, first, w.Body.String())

	// 只入帳一次
	w = doJSON(t, r, http.MethodGet, "/api/accounts/"+acc.ID, "")
	assert.Equal(t, "10.00", decodeAccount(t, w).Balance)

	// 不同的鍵會再次執行
	w = doJSON(t, r, http.MethodPost, path, `{"amount":"10.00"}`, IdempotencyHeader, "key-2")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "20.00", decodeAccount(t, w).Balance)

	mr.FastForward(2 * time.Hour)
	assert.False(t, mr.Exists(idempotencyKeyPrefix+"POST:"+path+":key-1"))
}

func TestIdempotency_CachesClientErrors(t *testing.T) {
	r, _ := newIdempotentRouter(t)
	acc := createAccount(t, r, "Wallet")
	path := "/api/accounts/" + acc.ID + "/withdraw"

	w := doJSON(t, r, http.MethodPost, path, `{"amount":"5.00"}`, IdempotencyHeader, "k")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = doJSON(t, r, http.MethodPost, path, `{"amount":"5.00"}`, IdempotencyHeader, "k")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "true", w.Header().Get(IdempotencyReplayedHeader))
}

func TestIdempotency_InProgress(t *testing.T) {
	r, mr := newIdempotentRouter(t)
	acc := createAccount(t, r, "Wallet")
	path := "/api/accounts/" + acc.ID + "/deposit"

	require.NoError(t, mr.Set(idempotencyKeyPrefix+"POST:"+path+":busy", pendingMarker))
	w := doJSON(t, r, http.MethodPost, path, `{"amount":"1"}`, IdempotencyHeader, "busy")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestIdempotency_RedisDown(t *testing.T) {
	r, mr := newIdempotentRouter(t)
	acc := createAccount(t, r, "Wallet")
	mr.SetError("ERR injected failure")

	w := doJSON(t, r, http.MethodPost, "/api/accounts/"+acc.ID+"/deposit", `{"amount":"1"}`, IdempotencyHeader, "k")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	// 未帶鍵的請求不受影響
	w = doJSON(t, r, http.MethodPost, "/api/accounts/"+acc.ID+"/deposit", `{"amount":"1"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

// newStubIdempotentRouter 以自訂 handler 測試中介層本身
func newStubIdempotentRouter(t *testing.T, handler gin.HandlerFunc) (*gin.Engine, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	r := gin.New()
	r.POST("/op", Idempotency(rdb, time.Hour, zap.NewNop()), handler)
	return r, mr
}

func TestIdempotency_ClientGoneAfterCommit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	r, mr := newStubIdempotentRouter(t, func(c *gin.Context) {
		calls++
		// 已提交後客戶端才斷線
		cancel()
		c.JSON(http.StatusOK, gin.H{"balance": "1.00"})
	})

	req := httptest.NewRequest(http.MethodPost, "/op", nil).WithContext(ctx)
	req.Header.Set(IdempotencyHeader, "gone")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	stored, err := mr.Get(idempotencyKeyPrefix + "POST:/op:gone")
	require.NoError(t, err)
	assert.NotEqual(t, pendingMarker, stored)

	w = doJSON(t, r, http.MethodPost, "/op", "", IdempotencyHeader, "gone")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "true", w.Header().Get(IdempotencyReplayedHeader))
	assert.JSONEq(t, `{"balance":"1.00"}`, w.Body.String())
	assert.Equal(t, 1, calls)
}

func TestIdempotency_ReleasesKeyOnServerError(t *testing.T) {
	calls := 0
	r, mr := newStubIdempotentRouter(t, func(c *gin.Context) {
		calls++
		if calls == 1 {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "storage unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := doJSON(t, r, http.MethodPost, "/op", "", IdempotencyHeader, "k")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.False(t, mr.Exists(idempotencyKeyPrefix+"POST:/op:k"))

	w = doJSON(t, r, http.MethodPost, "/op", "", IdempotencyHeader, "k")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get(IdempotencyReplayedHeader))
	assert.Equal(t, 2, calls)
}

func TestIdempotency_ReleasesKeyOnCanceledRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r, mr := newStubIdempotentRouter(t, func(c *gin.Context) {
		cancel()
		c.JSON(statusClientClosedRequest, ErrorResponse{Error: "request canceled"})
	})

	req := httptest.NewRequest(http.MethodPost, "/op", nil).WithContext(ctx)
	req.Header.Set(IdempotencyHeader, "k")
	r.ServeHTTP(httptest.NewRecorder(), req)

	assert.False(t, mr.Exists(idempotencyKeyPrefix+"POST:/op:k"))
}
