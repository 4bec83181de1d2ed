// Package types defines core data types and enums for the PDF inverter.
package types

import (
	"errors"
	"fmt"
)

// Config 应用配置
type Config struct {
	InvRatio        float64 `json:"inv_ratio"`        // 反色强度，0.0 无变化，1.0 完全反色
	MarginPolicy    string  `json:"margin_policy"`    // "symmetric" 或 "centered"
	MinMargin       float64 `json:"min_margin"`       // 退化页面框的最小边距（pt）
	BlendMode       string  `json:"blend_mode"`       // "Exclusion" 或 "Difference"
	OverlayMode     string  `json:"overlay_mode"`     // "content" 或 "form"
	BoxSource       string  `json:"box_source"`       // "mediabox" 或 "cropbox"
	ScribbleDensity int     `json:"scribble_density"` // 每页之后插入的空白页数
	ScribbleOverlay bool    `json:"scribble_overlay"` // 空白页是否也加反色层
	FailuresDir     string  `json:"failures_dir"`     // 失败记录目录，为空则不记录
	LogFilePath     string  `json:"log_file_path"`
}

// FileStatus 单个文件的处理状态
type FileStatus string

const (
	FileStatusSuccess FileStatus = "success"
	FileStatusFailed  FileStatus = "failed"
)

// PageReport 单个文档的页面处理结果
type PageReport struct {
	PagesIn      int   `json:"pages_in"`
	PagesOut     int   `json:"pages_out"`
	Overlaid     int   `json:"overlaid"`
	SkippedPages []int `json:"skipped_pages,omitempty"` // 页面框不可读而跳过的页码（原始页码）
}

// FileResult 单个文件的处理结果
type FileResult struct {
	Input  string      `json:"input"`
	Output string      `json:"output,omitempty"`
	Status FileStatus  `json:"status"`
	Pages  *PageReport `json:"pages,omitempty"`
	Err    *AppError   `json:"error,omitempty"`
}

// ErrorCode 错误代码枚举
type ErrorCode string

const (
	ErrPathInvalid   ErrorCode = "PATH_INVALID"
	ErrBoxUnreadable ErrorCode = "BOX_UNREADABLE"
	ErrReadFailed    ErrorCode = "READ_FAILED"
	ErrSaveFailed    ErrorCode = "SAVE_FAILED"
	ErrInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrConfig        ErrorCode = "CONFIG_ERROR"
)

// AppError 应用错误
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Page    int       `json:"page,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface for AppError
func (e *AppError) Error() string {
	msg := e.Message
	if e.Page > 0 {
		msg = fmt.Sprintf("%s (page %d)", msg, e.Page)
	}
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause of the error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new AppError with the given code, message, and optional cause
func NewAppError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewAppErrorWithDetails creates a new AppError with details
func NewAppErrorWithDetails(code ErrorCode, message, details string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: details,
		Cause:   cause,
	}
}

// NewPageError creates a new AppError bound to a page number
func NewPageError(code ErrorCode, page int, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Page:    page,
		Cause:   cause,
	}
}

// AsAppError returns the first AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsCode reports whether err carries an AppError with the given code.
func IsCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}
