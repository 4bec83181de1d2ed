// Package errors keeps a ledger of inputs that failed so they can be retried
// in a later run.
package errors

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"pdf-invert/internal/types"
)

// LedgerFileName is the file the ledger is stored in.
const LedgerFileName = "errors.json"

// ErrorStage 出错阶段，与 AppError 的错误代码一致
type ErrorStage = types.ErrorCode

// ErrorRecord 错误记录
type ErrorRecord struct {
	ID         string     `json:"id"`          // 输入文件的绝对路径
	Input      string     `json:"input"`       // 命令行上给出的原始路径
	Stage      ErrorStage `json:"stage"`       // 出错阶段
	ErrorMsg   string     `json:"error_msg"`   // 错误信息
	Page       int        `json:"page,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`   // 错误发生时间
	RetryCount int        `json:"retry_count"` // 重试次数
	LastRetry  time.Time  `json:"last_retry"`  // 最后重试时间
}

// ErrorManager 错误管理器
type ErrorManager struct {
	baseDir string
	mu      sync.RWMutex
	errors  map[string]*ErrorRecord // key: ID
}

// NewErrorManager 创建新的错误管理器
func NewErrorManager(baseDir string) (*ErrorManager, error) {
	if baseDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		baseDir = filepath.Join(homeDir, ".pdf-invert", "failures")
	}

	// 确保目录存在
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create failures directory: %w", err)
	}

	em := &ErrorManager{
		baseDir: baseDir,
		errors:  make(map[string]*ErrorRecord),
	}

	// 加载现有错误记录
	if err := em.load(); err != nil {
		return nil, err
	}

	return em, nil
}

// IDFor returns the ledger key for an input path.
func IDFor(input string) string {
	if abs, err := filepath.Abs(input); err == nil {
		return abs
	}
	return filepath.Clean(input)
}

// RecordResult stores a failed result and removes the entry of a successful
// one.
func (em *ErrorManager) RecordResult(res types.FileResult) error {
	id := IDFor(res.Input)
	if res.Status == types.FileStatusSuccess {
		return em.RemoveError(id)
	}

	stage := types.ErrReadFailed
	msg := "unknown error"
	page := 0
	if res.Err != nil {
		stage = res.Err.Code
		msg = res.Err.Error()
		page = res.Err.Page
	}
	return em.RecordError(id, res.Input, stage, msg, page)
}

// RecordError 记录错误
func (em *ErrorManager) RecordError(id, input string, stage ErrorStage, errorMsg string, page int) error {
	em.mu.Lock()
	defer em.mu.Unlock()

	record := &ErrorRecord{
		ID:        id,
		Input:     input,
		Stage:     stage,
		ErrorMsg:  errorMsg,
		Page:      page,
		Timestamp: time.Now(),
	}

	// 如果已存在，保留重试次数
	if existing, ok := em.errors[id]; ok {
		record.RetryCount = existing.RetryCount
		record.LastRetry = existing.LastRetry
	}

	em.errors[id] = record

	return em.save()
}

// IncrementRetry 增加重试次数
func (em *ErrorManager) IncrementRetry(id string) error {
	em.mu.Lock()
	defer em.mu.Unlock()

	if record, ok := em.errors[id]; ok {
		record.RetryCount++
		record.LastRetry = time.Now()
		return em.save()
	}

	return fmt.Errorf("error record not found: %s", id)
}

// RemoveError 移除错误记录（处理成功后）
func (em *ErrorManager) RemoveError(id string) error {
	em.mu.Lock()
	defer em.mu.Unlock()

	if _, ok := em.errors[id]; !ok {
		return nil
	}
	delete(em.errors, id)
	return em.save()
}

// ListErrors 列出所有错误记录，按 ID 排序
func (em *ErrorManager) ListErrors() []*ErrorRecord {
	em.mu.RLock()
	defer em.mu.RUnlock()

	records := make([]*ErrorRecord, 0, len(em.errors))
	for _, record := range em.errors {
		// 创建副本以避免并发修改
		recordCopy := *record
		records = append(records, &recordCopy)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	return records
}

// GetError 获取特定错误记录
func (em *ErrorManager) GetError(id string) (*ErrorRecord, bool) {
	em.mu.RLock()
	defer em.mu.RUnlock()

	record, ok := em.errors[id]
	if !ok {
		return nil, false
	}

	recordCopy := *record
	return &recordCopy, true
}

// ClearAll 清除所有错误记录
func (em *ErrorManager) ClearAll() error {
	em.mu.Lock()
	defer em.mu.Unlock()

	em.errors = make(map[string]*ErrorRecord)
	return em.save()
}

// load 从文件加载错误记录
func (em *ErrorManager) load() error {
	filePath := filepath.Join(em.baseDir, LedgerFileName)

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在是正常的
			return nil
		}
		return fmt.Errorf("failed to read errors file: %w", err)
	}

	var records []*ErrorRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("failed to unmarshal errors: %w", err)
	}

	for _, record := range records {
		em.errors[record.ID] = record
	}

	return nil
}

// save 保存错误记录到文件
func (em *ErrorManager) save() error {
	records := make([]*ErrorRecord, 0, len(em.errors))
	for _, record := range em.errors {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal errors: %w", err)
	}

	filePath := filepath.Join(em.baseDir, LedgerFileName)
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write errors file: %w", err)
	}

	return nil
}

// ExportInputs 导出所有失败文件的路径到文本文件，每行一个，可作为 --from-list 的输入
func (em *ErrorManager) ExportInputs(outputPath string) error {
	var sb strings.Builder
	for _, record := range em.ListErrors() {
		sb.WriteString(record.ID)
		sb.WriteString("\n")
	}

	if err := os.WriteFile(outputPath, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("failed to write inputs file: %w", err)
	}

	return nil
}

// GetStageDisplayName 获取阶段的显示名称
func GetStageDisplayName(stage ErrorStage) string {
	switch stage {
	case types.ErrPathInvalid:
		return "路径无效"
	case types.ErrBoxUnreadable:
		return "页面框不可读"
	case types.ErrReadFailed:
		return "读取失败"
	case types.ErrSaveFailed:
		return "保存失败"
	default:
		return string(stage)
	}
}
