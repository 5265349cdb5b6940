package usecase

import (
	"context"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-money-ledger/internal/app/core/domain"
)

// UpdateFunc 對帳戶目前狀態套用的純函式，回傳錯誤時不寫入任何資料
type UpdateFunc func(account *domain.Account) error

// AccountStore 是餘額異動引擎唯一依賴的儲存介面
// 所有餘額異動都必須透過一次 AtomicUpdate 完成 (系統唯一的同步點)
type AccountStore interface {
	// Get 取得帳戶，不存在時回傳 domain.ErrAccountNotFound
	Get(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	// AtomicUpdate 在同一個持久化單位內 鎖定 -> 讀取 -> 套用 fn -> 寫回 (含 UpdatedAt)
	// 同一帳戶的並發呼叫不會讀到過期餘額；fn 失敗時帳戶不變
	// 可重試的儲存錯誤以 domain.ErrTransientStorage 包裝回傳
	AtomicUpdate(ctx context.Context, id uuid.UUID, fn UpdateFunc) (*domain.Account, error)
}

// AccountRepository 提供 AccountService 使用的 CRUD 操作
type AccountRepository interface {
	AccountStore
	// Create 新增帳戶，名稱重複 (不分大小寫) 時回傳 domain.ErrAccountAlreadyExists
	Create(ctx context.Context, account *domain.Account) error
	// FindByName 以名稱 (不分大小寫) 查詢，不存在時回傳 domain.ErrAccountNotFound
	FindByName(ctx context.Context, name string) (*domain.Account, error)
	// List 依建立時間由新到舊列出所有帳戶
	List(ctx context.Context) ([]*domain.Account, error)
	// Delete 刪除帳戶，不存在時回傳 domain.ErrAccountNotFound
	Delete(ctx context.Context, id uuid.UUID) error
	// Ping 檢查儲存層是否可用 (健康檢查)
	Ping(ctx context.Context) error
	// Close 釋放底層資源
	Close() error
}
