package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// IdempotencyHeader 客戶端提供的冪等鍵
	IdempotencyHeader = "Idempotency-Key"
	// IdempotencyReplayedHeader 回應來自快取時設為 true
	IdempotencyReplayedHeader = "Idempotency-Replayed"

	idempotencyKeyPrefix = "ledger:idempotency:"
	maxIdempotencyKeyLen = 255
	pendingMarker        = "pending"

	// idempotencyWriteTimeout handler 結束後寫回 Redis 的時限
	idempotencyWriteTimeout = 3 * time.Second
)

// cachedResponse 存在 Redis 的回應
type cachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// bodyRecorder 複製寫出的 body
type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency 相同 Idempotency-Key 的重送請求回放第一次的回應
// 流程: SETNX pending -> 執行 handler -> 成功 (非 5xx) 時覆寫為回應內容，否則刪除讓客戶端可重試
// 同一鍵的請求仍在處理中時回傳 409
//
// 參數:
//
//	rdb: Redis 客戶端
//	ttl: 回應保留時間
//	log: logger
func Idempotency(rdb *redis.Client, ttl time.Duration, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyHeader)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKeyLen {
			c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: "Idempotency-Key is too long"})
			return
		}

		ctx := c.Request.Context()
		// 鍵包含路徑，同一個鍵用在不同帳戶 / 操作時互不影響
		redisKey := idempotencyKeyPrefix + c.Request.Method + ":" + c.Request.URL.Path + ":" + key

		acquired, err := rdb.SetNX(ctx, redisKey, pendingMarker, ttl).Result()
		if err != nil {
			log.Error("idempotency store unavailable", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, ErrorResponse{Error: "idempotency store unavailable"})
			return
		}
		if !acquired {
			replay(c, rdb, redisKey, log)
			return
		}

		rec := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Next()

		// 客戶端斷線時帳務可能已提交，寫回不能跟著請求取消
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), idempotencyWriteTimeout)
		defer cancel()

		status := rec.Status()
		if status >= http.StatusInternalServerError || status == statusClientClosedRequest {
			if err := rdb.Del(writeCtx, redisKey).Err(); err != nil {
				log.Warn("failed to release idempotency key", zap.String("key", key), zap.Error(err))
			}
			return
		}

		payload, err := json.Marshal(cachedResponse{
			Status:      status,
			ContentType: rec.Header().Get("Content-Type"),
			Body:        rec.body.Bytes(),
		})
		if err == nil {
			err = rdb.Set(writeCtx, redisKey, payload, ttl).Err()
		}
		if err != nil {
			log.Error("failed to save idempotent response", zap.String("key", key), zap.Error(err))
		}
	}
}

func replay(c *gin.Context, rdb *redis.Client, redisKey string, log *zap.Logger) {
	raw, err := rdb.Get(c.Request.Context(), redisKey).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		// 第一次請求失敗後已釋放，請客戶端重送
		c.AbortWithStatusJSON(http.StatusConflict, ErrorResponse{Error: "request with this Idempotency-Key was not completed, retry"})
		return
	case err != nil:
		log.Error("idempotency store unavailable", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, ErrorResponse{Error: "idempotency store unavailable"})
		return
	}
	if string(raw) == pendingMarker {
		c.AbortWithStatusJSON(http.StatusConflict, ErrorResponse{Error: "request with this Idempotency-Key is in progress"})
		return
	}

	var cached cachedResponse
	if err := json.Unmarshal(raw, &cached); err != nil {
		log.Error("corrupt idempotent response", zap.String("key", redisKey), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.Header(IdempotencyReplayedHeader, "true")
	c.Data(cached.Status, cached.ContentType, cached.Body)
	c.Abort()
}
