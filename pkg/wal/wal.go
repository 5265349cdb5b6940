package wal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileModePrivate rw------- (只有擁有者可讀寫)
const FileModePrivate fs.FileMode = 0600

// 以變數包裝檔案 I/O，測試時可替換以模擬寫入失敗
var (
	writeFile = func(f *os.File, b []byte) (int, error) { return f.Write(b) }
	syncFile  = func(f *os.File) error { return f.Sync() }
)

// ErrClosed WAL 已關閉
var ErrClosed = errors.New("wal: closed")

// WAL 以 JSON Lines 格式追加寫入的 Write-Ahead Log
// 每次 Write 都會 fsync，回傳 nil 即代表該筆紀錄已落盤
type WAL struct {
	path string
	file *os.File
	mu   sync.Mutex
}

// Open 開啟或建立一個 WAL 檔案
// O_RDWR讀寫模式
// O_APPEND 每次寫入時自動跳到文件末尾
// O_CREATE 如果文件不存在則建立
func Open(path string) (*WAL, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("wal: create dir: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, FileModePrivate)
	if err != nil {
		return nil, fmt.Errorf("wal: open %s: %w", path, err)
	}
	return &WAL{path: path, file: file}, nil
}

// Write 寫入一筆資料並強制刷入硬碟
func (w *WAL) Write(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("wal: encode: %w", err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return ErrClosed
	}

	// 寫入或 fsync 失敗時截回原長度，避免殘留半行或未回報成功的紀錄
	offset, err := w.file.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("wal: seek: %w", err)
	}
	if _, err := writeFile(w.file, line); err != nil {
		return w.rollback(offset, fmt.Errorf("wal: write: %w", err))
	}
	if err := syncFile(w.file); err != nil {
		return w.rollback(offset, fmt.Errorf("wal: sync: %w", err))
	}
	return nil
}

// rollback 將檔案截斷回 offset，截斷失敗時一併回傳
func (w *WAL) rollback(offset int64, cause error) error {
	if err := w.file.Truncate(offset); err != nil {
		return errors.Join(cause, fmt.Errorf("wal: truncate: %w", err))
	}
	return cause
}

// ReadAll 從頭讀取所有資料
// callback 是一個函式，接收一行 JSON
// 這樣可以避免一次將所有資料載入記憶體
// 最後一行若不完整 (寫入途中當機) 視為未提交，直接忽略
func (w *WAL) ReadAll(callback func(jsonRaw []byte) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return ErrClosed
	}

	// 確保從頭讀取
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}

	decoder := json.NewDecoder(bufio.NewReader(w.file))
	for {
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return fmt.Errorf("wal: decode: %w", err)
		}
		if err := callback(raw); err != nil {
			return err
		}
	}
	return nil
}

// Rewrite 以新的紀錄集合取代整個 WAL (寫入暫存檔後 rename)，用於啟動時壓縮
func (w *WAL) Rewrite(values []any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return ErrClosed
	}

	tmpPath := w.path + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, FileModePrivate)
	if err != nil {
		return fmt.Errorf("wal: create temp: %w", err)
	}
	buf := bufio.NewWriter(tmp)
	enc := json.NewEncoder(buf)
	for _, v := range values {
		if err := enc.Encode(v); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("wal: encode: %w", err)
		}
	}
	if err := buf.Flush(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, w.path); err != nil {
		return fmt.Errorf("wal: rename: %w", err)
	}

	// 重新開啟 rename 後的檔案
	_ = w.file.Close()
	file, err := os.OpenFile(w.path, os.O_APPEND|os.O_RDWR, FileModePrivate)
	if err != nil {
		w.file = nil
		return fmt.Errorf("wal: reopen: %w", err)
	}
	w.file = file
	return nil
}

// Close 關閉檔案
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
