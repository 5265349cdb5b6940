package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/JoeShih716/go-money-ledger/internal/app/core/domain"
)

func TestTranslateError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "no rows", err: pgx.ErrNoRows, want: domain.ErrAccountNotFound},
		{name: "wrapped no rows", err: fmt.Errorf("scan: %w", pgx.ErrNoRows), want: domain.ErrAccountNotFound},
		{name: "serialization failure", err: &pgconn.PgError{Code: "40001"}, want: domain.ErrTransientStorage},
		{name: "deadlock", err: &pgconn.PgError{Code: "40P01"}, want: domain.ErrTransientStorage},
		{name: "lock not available", err: &pgconn.PgError{Code: "55P03"}, want: domain.ErrTransientStorage},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505", Message: "duplicate key"}, want: domain.ErrAccountAlreadyExists},
		{name: "check violation", err: &pgconn.PgError{Code: "23514"}, want: domain.ErrInsufficientFunds},
		{name: "domain error passes through", err: &domain.InsufficientFundsError{Available: 1, Requested: 5}, want: domain.ErrInsufficientFunds},
		{name: "deadline exceeded", err: context.DeadlineExceeded, want: context.DeadlineExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, translateError(tt.err), tt.want)
		})
	}
}

func TestTranslateError_UnknownIsNotTransient(t *testing.T) {
	err := translateError(&pgconn.PgError{Code: "42P01", Message: "relation does not exist"})
	assert.False(t, errors.Is(err, domain.ErrTransientStorage))

	plain := errors.New("boom")
	assert.Equal(t, plain, translateError(plain))
	assert.Nil(t, translateError(nil))
}
