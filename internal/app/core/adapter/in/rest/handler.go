package rest

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-money-ledger/internal/app/core/domain"
)

// statusClientClosedRequest 客戶端已中斷連線 (nginx 慣例)
const statusClientClosedRequest = 499

// AccountUseCase HTTP Adapter 依賴的業務操作 (由 usecase.AccountService 實作)
type AccountUseCase interface {
	CreateAccount(ctx context.Context, name, currency string) (*domain.Account, error)
	GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	ListAccounts(ctx context.Context) ([]*domain.Account, error)
	DeleteAccount(ctx context.Context, id uuid.UUID) error
	Deposit(ctx context.Context, id uuid.UUID, amount string) (*domain.Account, error)
	Withdraw(ctx context.Context, id uuid.UUID, amount string) (*domain.Account, error)
}

type AccountHandler struct {
	core AccountUseCase
	log  *zap.Logger
}

func NewAccountHandler(core AccountUseCase, log *zap.Logger) *AccountHandler {
	return &AccountHandler{core: core, log: log}
}

// CreateAccount POST /api/accounts
func (h *AccountHandler) CreateAccount(c *gin.Context) {
	var req CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	account, err := h.core.CreateAccount(c.Request.Context(), req.Name, req.Currency)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.log.Info("account created", zap.String("account_id", account.ID.String()), zap.String("currency", account.Currency))
	c.JSON(http.StatusCreated, newAccountResponse(account))
}

// ListAccounts GET /api/accounts
func (h *AccountHandler) ListAccounts(c *gin.Context) {
	accounts, err := h.core.ListAccounts(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	out := make([]AccountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, newAccountResponse(a))
	}
	c.JSON(http.StatusOK, out)
}

// GetAccount GET /api/accounts/:id
func (h *AccountHandler) GetAccount(c *gin.Context) {
	id, ok := h.accountID(c)
	if !ok {
		return
	}
	account, err := h.core.GetAccount(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newAccountResponse(account))
}

// DeleteAccount DELETE /api/accounts/:id
func (h *AccountHandler) DeleteAccount(c *gin.Context) {
	id, ok := h.accountID(c)
	if !ok {
		return
	}
	if err := h.core.DeleteAccount(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	h.log.Info("account deleted", zap.String("account_id", id.String()))
	c.JSON(http.StatusOK, MessageResponse{Message: "account deleted successfully"})
}

// Deposit POST /api/accounts/:id/deposit
func (h *AccountHandler) Deposit(c *gin.Context) {
	h.mutate(c, h.core.Deposit)
}

// Withdraw POST /api/accounts/:id/withdraw
func (h *AccountHandler) Withdraw(c *gin.Context) {
	h.mutate(c, h.core.Withdraw)
}

func (h *AccountHandler) mutate(c *gin.Context, op func(ctx context.Context, id uuid.UUID, amount string) (*domain.Account, error)) {
	id, ok := h.accountID(c)
	if !ok {
		return
	}
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	amount, err := req.AmountText()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	account, err := op(c.Request.Context(), id, amount)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newAccountResponse(account))
}

func (h *AccountHandler) accountID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid account id"})
		return uuid.Nil, false
	}
	return id, true
}

// writeError domain 錯誤 -> HTTP 狀態碼
// 儲存層與未知錯誤只記錄 log，不回傳細節
func (h *AccountHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrInvalidAccount):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrInsufficientFunds):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrAccountAlreadyExists):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrStorageUnavailable):
		h.log.Warn("storage unavailable", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: domain.ErrStorageUnavailable.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, ErrorResponse{Error: "request timed out"})
	case errors.Is(err, context.Canceled):
		c.JSON(statusClientClosedRequest, ErrorResponse{Error: "request canceled"})
	default:
		h.log.Error("unexpected error", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}
