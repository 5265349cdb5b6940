package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JoeShih716/go-money-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-money-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-money-ledger/pkg/postgres"
)

const accountColumns = "id, name, balance, currency, created_at, updated_at"

// Store 是以 PostgreSQL (pgx) 實作的帳戶儲存
// AtomicUpdate 使用 SELECT ... FOR UPDATE 悲觀鎖
type Store struct {
	client *postgres.Client
	now    func() time.Time
}

// NewStore 建立 Store (schema 由 postgres.RunMigrations 建立)
func NewStore(client *postgres.Client) *Store {
	return &Store{
		client: client,
		now:    time.Now,
	}
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		a       domain.Account
		balance int64
	)
	if err := row.Scan(&a.ID, &a.Name, &balance, &a.Currency, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Balance = domain.FromMinorUnits(balance)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

// Create 新增帳戶
func (s *Store) Create(ctx context.Context, account *domain.Account) error {
	_, err := s.client.Pool().Exec(ctx,
		`INSERT INTO accounts (`+accountColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		account.ID, account.Name, account.Balance.MinorUnits(), account.Currency,
		account.CreatedAt.UTC(), account.UpdatedAt.UTC(),
	)
	return translateError(err)
}

// Get 取得帳戶
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	row := s.client.Pool().QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	account, err := scanAccount(row)
	if err != nil {
		return nil, translateError(err)
	}
	return account, nil
}

// AtomicUpdate 在單一交易內鎖定該列、套用 fn 並寫回
//
// 參數:
//
//	ctx: 上下文
//	id: 帳戶 ID
//	fn: 對帳戶套用的變更
//
// 回傳:
//
//	*domain.Account: 更新後的帳戶
//	error: ErrAccountNotFound / fn 的錯誤 / 儲存層錯誤 (可重試者包裝 ErrTransientStorage)
func (s *Store) AtomicUpdate(ctx context.Context, id uuid.UUID, fn usecase.UpdateFunc) (*domain.Account, error) {
	var updated *domain.Account
	err := s.client.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		account, err := scanAccount(tx.QueryRow(ctx,
			`SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if err := fn(account); err != nil {
			return err
		}
		account.UpdatedAt = s.now().UTC()

		if _, err := tx.Exec(ctx,
			`UPDATE accounts SET balance = $2, updated_at = $3 WHERE id = $1`,
			id, account.Balance.MinorUnits(), account.UpdatedAt,
		); err != nil {
			return err
		}
		updated = account
		return nil
	})
	if err != nil {
		return nil, translateError(err)
	}
	return updated, nil
}

// FindByName 以名稱查詢 (不分大小寫，對應 LOWER(name) 唯一索引)
func (s *Store) FindByName(ctx context.Context, name string) (*domain.Account, error) {
	row := s.client.Pool().QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE LOWER(name) = LOWER(TRIM($1))`, name)
	account, err := scanAccount(row)
	if err != nil {
		return nil, translateError(err)
	}
	return account, nil
}

// List 依建立時間由新到舊列出所有帳戶
func (s *Store) List(ctx context.Context) ([]*domain.Account, error) {
	rows, err := s.client.Pool().Query(ctx,
		`SELECT `+accountColumns+` FROM accounts ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	accounts := make([]*domain.Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, translateError(err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err)
	}
	return accounts, nil
}

// Delete 刪除帳戶
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.client.Pool().Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// Ping 檢查連線池
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Pool().Ping(ctx)
}

// Close 關閉連線池
func (s *Store) Close() error {
	return s.client.Close()
}

var _ usecase.AccountRepository = (*Store)(nil)
