package mysql

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"

	mysqldriver "github.com/go-sql-driver/mysql"

	"github.com/JoeShih716/go-money-ledger/internal/app/core/domain"
)

// MySQL 錯誤代碼
// 參考: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	errDupEntry        uint16 = 1062 // ER_DUP_ENTRY
	errLockWaitTimeout uint16 = 1205 // ER_LOCK_WAIT_TIMEOUT
	errLockDeadlock    uint16 = 1213 // ER_LOCK_DEADLOCK
	errCheckConstraint uint16 = 3819 // ER_CHECK_CONSTRAINT_VIOLATED
	errTooManyConns    uint16 = 1040 // ER_CON_COUNT_ERROR
)

// classifyMySQLError 區分可重試與不可重試的錯誤
// domain 錯誤 (fn 回傳) 與 context 錯誤原樣回傳
func classifyMySQLError(err error) error {
	if isDomainError(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysqldriver.ErrInvalidConn) {
		return fmt.Errorf("%w: %w", domain.ErrTransientStorage, err)
	}

	var myErr *mysqldriver.MySQLError
	if !errors.As(err, &myErr) {
		return err
	}
	switch myErr.Number {
	case errDupEntry:
		return fmt.Errorf("%w: %s", domain.ErrAccountAlreadyExists, myErr.Message)
	case errLockDeadlock, errLockWaitTimeout, errTooManyConns:
		return fmt.Errorf("%w: %w", domain.ErrTransientStorage, err)
	case errCheckConstraint:
		// balance >= 0 的最後一道防線，正常流程不會觸發
		return fmt.Errorf("%w: %s", domain.ErrInsufficientFunds, myErr.Message)
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
