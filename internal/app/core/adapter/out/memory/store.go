package memory

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-money-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-money-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-money-ledger/pkg/wal"
)

type recordType string

const (
	recordPut    recordType = "put"
	recordDelete recordType = "delete"
)

// walRecord WAL 中的一筆紀錄，存放異動後的完整帳戶快照
// Sequence 為全局遞增序號，重放時依序套用
type walRecord struct {
	Sequence uint64          `json:"seq"`
	Type     recordType      `json:"type"`
	Account  *domain.Account `json:"account"`
}

// entry 單一帳戶的鎖與資料
// 每個帳戶各自一把鎖，不同帳戶的異動可完全平行
type entry struct {
	mu      sync.Mutex
	account *domain.Account
	deleted bool
}

// Store 是以記憶體 + WAL 實作的帳戶儲存
//
// 結構:
//
//	accounts: 帳戶 ID -> entry
//	names: 小寫名稱 -> 帳戶 ID (名稱唯一)
//	mu: 只保護 map 結構本身，不保護餘額
//	wal: Write-Ahead Log 實例 (nil 代表不落盤，僅供測試)
type Store struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]*entry
	names    map[string]uuid.UUID

	seqMu sync.Mutex
	seq   uint64
	wal   *wal.WAL

	now func() time.Time
}

// NewStore 建立 Store，若有 WAL 則先從 WAL 恢復狀態並壓縮
//
// 參數:
//
//	w: Write-Ahead Log 實例 (可為 nil)
//
// 回傳:
//
//	*Store: Store 實例
//	error: 初始化錯誤 (如 WAL 恢復失敗)
func NewStore(w *wal.WAL) (*Store, error) {
	s := &Store{
		accounts: make(map[uuid.UUID]*entry),
		names:    make(map[string]uuid.UUID),
		wal:      w,
		now:      time.Now,
	}
	if w == nil {
		return s, nil
	}
	if err := s.recoverFromWAL(); err != nil {
		return nil, err
	}
	if err := s.compact(); err != nil {
		return nil, err
	}
	return s, nil
}

// recoverFromWAL 從 WAL 檔案恢復帳戶狀態
// 只有 NewStore 呼叫，無需 Lock (單執行緒)
func (s *Store) recoverFromWAL() error {
	return s.wal.ReadAll(func(jsonRaw []byte) error {
		var rec walRecord
		if err := json.Unmarshal(jsonRaw, &rec); err != nil {
			return fmt.Errorf("memory: decode wal record: %w", err)
		}
		if rec.Account == nil {
			return fmt.Errorf("memory: wal record %d has no account", rec.Sequence)
		}
		switch rec.Type {
		case recordPut:
			if old, ok := s.accounts[rec.Account.ID]; ok {
				delete(s.names, nameKey(old.account.Name))
			}
			s.accounts[rec.Account.ID] = &entry{account: rec.Account}
			s.names[nameKey(rec.Account.Name)] = rec.Account.ID
		case recordDelete:
			if old, ok := s.accounts[rec.Account.ID]; ok {
				delete(s.names, nameKey(old.account.Name))
				delete(s.accounts, rec.Account.ID)
			}
		default:
			return fmt.Errorf("memory: unknown wal record type %q", rec.Type)
		}
		if rec.Sequence > s.seq {
			s.seq = rec.Sequence
		}
		return nil
	})
}

// compact 將目前狀態寫成快照取代整個 WAL
func (s *Store) compact() error {
	records := make([]any, 0, len(s.accounts))
	for _, e := range s.sortedEntries() {
		s.seq++
		records = append(records, walRecord{Sequence: s.seq, Type: recordPut, Account: e.account})
	}
	return s.wal.Rewrite(records)
}

// appendWAL 寫入 WAL (Critical Path)，回傳 nil 代表已落盤
func (s *Store) appendWAL(typ recordType, account *domain.Account) error {
	if s.wal == nil {
		return nil
	}
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	s.seq++
	if err := s.wal.Write(walRecord{Sequence: s.seq, Type: typ, Account: account}); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrWALWriteFailed, err)
	}
	return nil
}

func (s *Store) lookup(id uuid.UUID) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.accounts[id]
	return e, ok
}

// Create 新增帳戶
func (s *Store) Create(ctx context.Context, account *domain.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[account.ID]; ok {
		return fmt.Errorf("%w: id %s", domain.ErrAccountAlreadyExists, account.ID)
	}
	if _, ok := s.names[nameKey(account.Name)]; ok {
		return fmt.Errorf("%w: %q", domain.ErrAccountAlreadyExists, account.Name)
	}
	stored := account.Clone()
	if err := s.appendWAL(recordPut, stored); err != nil {
		return err
	}
	s.accounts[stored.ID] = &entry{account: stored}
	s.names[nameKey(stored.Name)] = stored.ID
	return nil
}

// Get 取得帳戶
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, ok := s.lookup(id)
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, domain.ErrAccountNotFound
	}
	return e.account.Clone(), nil
}

// AtomicUpdate 持有該帳戶的鎖完成 讀取 -> 套用 fn -> 寫 WAL -> 更新記憶體
func (s *Store) AtomicUpdate(ctx context.Context, id uuid.UUID, fn usecase.UpdateFunc) (*domain.Account, error) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, domain.ErrAccountNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, domain.ErrAccountNotFound
	}
	// 取得鎖之後才檢查，確保取消的請求不會寫入
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	next := e.account.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = s.now().UTC()

	if err := s.appendWAL(recordPut, next); err != nil {
		return nil, err
	}
	e.account = next
	return next.Clone(), nil
}

// FindByName 以名稱查詢 (不分大小寫)
func (s *Store) FindByName(ctx context.Context, name string) (*domain.Account, error) {
	s.mu.RLock()
	id, ok := s.names[nameKey(name)]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return s.Get(ctx, id)
}

// List 依建立時間由新到舊列出所有帳戶
func (s *Store) List(ctx context.Context) ([]*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.accounts))
	for _, e := range s.accounts {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	accounts := make([]*domain.Account, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.deleted {
			accounts = append(accounts, e.account.Clone())
		}
		e.mu.Unlock()
	}
	slices.SortFunc(accounts, func(a, b *domain.Account) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	return accounts, nil
}

// Delete 刪除帳戶
// 先取 map 寫鎖再取帳戶鎖 (與 AtomicUpdate 相同順序，不會死鎖)
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := s.appendWAL(recordDelete, e.account); err != nil {
		return err
	}
	e.deleted = true
	delete(s.accounts, id)
	delete(s.names, nameKey(e.account.Name))
	return nil
}

// Ping 記憶體儲存永遠可用
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close 關閉 WAL
func (s *Store) Close() error {
	if s.wal == nil {
		return nil
	}
	return s.wal.Close()
}

func (s *Store) sortedEntries() []*entry {
	entries := make([]*entry, 0, len(s.accounts))
	for _, e := range s.accounts {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b *entry) int {
		return a.account.CreatedAt.Compare(b.account.CreatedAt)
	})
	return entries
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

var _ usecase.AccountRepository = (*Store)(nil)
