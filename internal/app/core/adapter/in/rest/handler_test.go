package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-money-ledger/internal/app/core/adapter/out/memory"
	"github.com/JoeShih716/go-money-ledger/internal/app/core/usecase"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	store, err := memory.NewStore(nil)
	require.NoError(t, err)
	engine := usecase.NewBalanceEngine(store, usecase.WithBackoff(time.Millisecond, 5*time.Millisecond))
	return NewRouter(RouterConfig{
		Core:   usecase.NewAccountService(store, engine),
		Logger: zap.NewNop(),
	})
}

func doJSON(t *testing.T, r http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeAccount(t *testing.T, w *httptest.ResponseRecorder) AccountResponse {
	t.Helper()
	var out AccountResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func createAccount(t *testing.T, r http.Handler, name string) AccountResponse {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/api/accounts", `{"name":"`+name+`","currency":"USD"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeAccount(t, w)
}

func TestHTTP_DepositWithdrawScenario(t *testing.T) {
	r := newTestRouter(t)
	acc := createAccount(t, r, "Wallet")
	assert.Equal(t, "0.00", acc.Balance)
	base := "/api/accounts/" + acc.ID

	w := doJSON(t, r, http.MethodPost, base+"/deposit", `{"amount":"100.50"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decodeAccount(t, w)
	assert.Equal(t, "100.50", got.Balance)
	assert.Equal(t, int64(10050), got.BalanceMinor)

	w = doJSON(t, r, http.MethodPost, base+"/withdraw", `{"amount":25.00}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, int64(7550), decodeAccount(t, w).BalanceMinor)

	w = doJSON(t, r, http.MethodPost, base+"/withdraw", `{"amount":"1000.00"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "insufficient funds")

	w = doJSON(t, r, http.MethodPost, base+"/deposit", `{"amount":"-1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "75.50", decodeAccount(t, w).Balance)
}

func TestHTTP_ErrorMapping(t *testing.T) {
	r := newTestRouter(t)
	acc := createAccount(t, r, "Wallet")
	base := "/api/accounts/" + acc.ID

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{name: "unknown account", method: http.MethodPost, path: "/api/accounts/" + uuid.NewString() + "/deposit", body: `{"amount":"1"}`, want: http.StatusNotFound},
		{name: "bad uuid", method: http.MethodGet, path: "/api/accounts/abc", want: http.StatusBadRequest},
		{name: "zero amount", method: http.MethodPost, path: base + "/deposit", body: `{"amount":"0"}`, want: http.StatusBadRequest},
		{name: "three decimals", method: http.MethodPost, path: base + "/deposit", body: `{"amount":"1.005"}`, want: http.StatusBadRequest},
		{name: "scientific notation", method: http.MethodPost, path: base + "/deposit", body: `{"amount":1e3}`, want: http.StatusBadRequest},
		{name: "amount is bool", method: http.MethodPost, path: base + "/deposit", body: `{"amount":true}`, want: http.StatusBadRequest},
		{name: "missing amount", method: http.MethodPost, path: base + "/deposit", body: `{}`, want: http.StatusBadRequest},
		{name: "duplicate name", method: http.MethodPost, path: "/api/accounts", body: `{"name":"WALLET","currency":"USD"}`, want: http.StatusConflict},
		{name: "bad currency", method: http.MethodPost, path: "/api/accounts", body: `{"name":"x","currency":"ABCD"}`, want: http.StatusBadRequest},
		{name: "delete unknown", method: http.MethodDelete, path: "/api/accounts/" + uuid.NewString(), want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, r, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestHTTP_ListAndDelete(t *testing.T) {
	r := newTestRouter(t)
	first := createAccount(t, r, "First")
	time.Sleep(time.Millisecond)
	second := createAccount(t, r, "Second")

	w := doJSON(t, r, http.MethodGet, "/api/accounts", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []AccountResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)

	w = doJSON(t, r, http.MethodDelete, "/api/accounts/"+first.ID, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/accounts/"+first.ID+"/deposit", `{"amount":"1"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHTTP_HealthAndMetrics(t *testing.T) {
	r := newTestRouter(t)
	w := doJSON(t, r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "money_ledger_http_requests_total")
}

func TestHTTP_HealthReportsStoreFailure(t *testing.T) {
	store, err := memory.NewStore(nil)
	require.NoError(t, err)
	var hasDeadline bool
	r := NewRouter(RouterConfig{
		Core:   usecase.NewAccountService(store, usecase.NewBalanceEngine(store)),
		Logger: zap.NewNop(),
		HealthCheck: func(ctx context.Context) error {
			_, hasDeadline = ctx.Deadline()
			return errors.New("connection refused")
		},
	})

	w := doJSON(t, r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
	assert.True(t, hasDeadline)
}

func TestAmountRequest_AmountText(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: `"100.50"`, want: "100.50"},
		{raw: `100.50`, want: "100.50"},
		{raw: ` 7 `, want: "7"},
		{raw: `-1`, want: "-1"},
		{raw: `null`, wantErr: true},
		{raw: `{}`, wantErr: true},
		{raw: ``, wantErr: true},
	}
	for _, tt := range tests {
		got, err := AmountRequest{Amount: json.RawMessage(tt.raw)}.AmountText()
		if tt.wantErr {
			assert.Error(t, err, tt.raw)
			continue
		}
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got)
	}
}
