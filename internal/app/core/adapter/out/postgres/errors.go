package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JoeShih716/go-money-ledger/internal/app/core/domain"
)

// PostgreSQL SQLSTATE
// 參考: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	sqlStateUniqueViolation      = "23505"
	sqlStateCheckViolation       = "23514"
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateLockNotAvailable     = "55P03"
	sqlStateTooManyConnections   = "53300"
	sqlStateAdminShutdown        = "57P01"
)

// translateError 將 pgx 錯誤轉為 domain 錯誤
// 可重試者包裝 ErrTransientStorage，domain 錯誤與 context 錯誤原樣回傳
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrAccountNotFound
	}
	if isDomainError(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		// 連線中斷等網路層錯誤
		if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
			return fmt.Errorf("%w: %w", domain.ErrTransientStorage, err)
		}
		return err
	}
	switch pgErr.Code {
	case sqlStateUniqueViolation:
		return fmt.Errorf("%w: %s", domain.ErrAccountAlreadyExists, pgErr.Message)
	case sqlStateCheckViolation:
		return fmt.Errorf("%w: %s", domain.ErrInsufficientFunds, pgErr.Message)
	case sqlStateSerializationFailure, sqlStateDeadlockDetected, sqlStateLockNotAvailable,
		sqlStateTooManyConnections, sqlStateAdminShutdown:
		return fmt.Errorf("%w: %w", domain.ErrTransientStorage, err)
	default:
		return err
	}
}

func isDomainError(err error) bool {
	return errors.Is(err, domain.ErrAccountNotFound) ||
		errors.Is(err, domain.ErrInvalidAmount) ||
		errors.Is(err, domain.ErrInsufficientFunds) ||
		errors.Is(err, domain.ErrAccountAlreadyExists)
}
