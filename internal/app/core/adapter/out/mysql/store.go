package mysql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JoeShih716/go-money-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-money-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-money-ledger/pkg/mysql"
)

// sqlAccount 對應資料庫的 accounts 表
// balance 使用 BIGINT 儲存最小單位，不使用浮點數欄位
type sqlAccount struct {
	ID        string    `gorm:"primaryKey;type:char(36)"`
	Name      string    `gorm:"type:varchar(100);not null"`
	NameKey   string    `gorm:"column:name_key;type:varchar(100);not null;uniqueIndex:uk_accounts_name_key"` // 小寫名稱，唯一
	Balance   int64     `gorm:"not null;default:0;check:chk_accounts_balance,balance >= 0"`
	Currency  string    `gorm:"type:char(3);not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime:false;index"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime:false"`
}

func (*sqlAccount) TableName() string {
	return "accounts"
}

func toRow(a *domain.Account) *sqlAccount {
	return &sqlAccount{
		ID:        a.ID.String(),
		Name:      a.Name,
		NameKey:   nameKey(a.Name),
		Balance:   a.Balance.MinorUnits(),
		Currency:  a.Currency,
		CreatedAt: a.CreatedAt.UTC(),
		UpdatedAt: a.UpdatedAt.UTC(),
	}
}

func (r *sqlAccount) toDomain() (*domain.Account, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("mysql: corrupt account id %q: %w", r.ID, err)
	}
	return &domain.Account{
		ID:        id,
		Name:      r.Name,
		Balance:   domain.FromMinorUnits(r.Balance),
		Currency:  r.Currency,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}, nil
}

// Store 是以 MySQL (GORM) 實作的帳戶儲存
// AtomicUpdate 使用 SELECT ... FOR UPDATE 悲觀鎖
type Store struct {
	client *mysql.Client
	now    func() time.Time
}

// NewStore 建立 Store
func NewStore(client *mysql.Client) *Store {
	return &Store{
		client: client,
		now:    time.Now,
	}
}

// Migrate 建立 / 更新資料表結構
func (s *Store) Migrate(ctx context.Context) error {
	return s.client.DB().WithContext(ctx).AutoMigrate(&sqlAccount{})
}

// Create 新增帳戶
func (s *Store) Create(ctx context.Context, account *domain.Account) error {
	if err := s.client.DB().WithContext(ctx).Create(toRow(account)).Error; err != nil {
		return translateError(err)
	}
	return nil
}

// Get 取得帳戶
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	var row sqlAccount
	err := s.client.DB().WithContext(ctx).Where("id = ?", id.String()).Take(&row).Error
	if err != nil {
		return nil, translateError(err)
	}
	return row.toDomain()
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
	err := s.client.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 悲觀鎖: 同一帳戶的其他 AtomicUpdate 會在此等待
		var row sqlAccount
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id.String()).
			Take(&row).Error; err != nil {
			return err
		}
		account, err := row.toDomain()
		if err != nil {
			return err
		}
		if err := fn(account); err != nil {
			return err
		}
		account.UpdatedAt = s.now().UTC()

		result := tx.Model(&sqlAccount{}).
			Where("id = ?", row.ID).
			Updates(map[string]any{
				"balance":    account.Balance.MinorUnits(),
				"updated_at": account.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		updated = account
		return nil
	})
	if err != nil {
		return nil, translateError(err)
	}
	return updated, nil
}

// FindByName 以名稱查詢 (不分大小寫)
func (s *Store) FindByName(ctx context.Context, name string) (*domain.Account, error) {
	var row sqlAccount
	err := s.client.DB().WithContext(ctx).Where("name_key = ?", nameKey(name)).Take(&row).Error
	if err != nil {
		return nil, translateError(err)
	}
	return row.toDomain()
}

// List 依建立時間由新到舊列出所有帳戶
func (s *Store) List(ctx context.Context) ([]*domain.Account, error) {
	var rows []sqlAccount
	if err := s.client.DB().WithContext(ctx).Order("created_at DESC").Order("id").Find(&rows).Error; err != nil {
		return nil, translateError(err)
	}
	accounts := make([]*domain.Account, 0, len(rows))
	for i := range rows {
		account, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

// Delete 刪除帳戶
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	result := s.client.DB().WithContext(ctx).Where("id = ?", id.String()).Delete(&sqlAccount{})
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// Ping 檢查資料庫連線
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.client.DB().DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 關閉資料庫連線
func (s *Store) Close() error {
	return s.client.Close()
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// translateError 將 GORM / MySQL 錯誤轉為 domain 錯誤
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrAccountNotFound
	}
	return classifyMySQLError(err)
}

var _ usecase.AccountRepository = (*Store)(nil)
