package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrRequestCancelled 请求被用户取消
	ErrRequestCancelled = errors.New("请求被用户取消")
	// ErrSessionBusy 会话当前正在处理另一个请求
	ErrSessionBusy = errors.New("会话当前正在处理另一个请求")
	// ErrEmptyPrompt 提示词为空
	ErrEmptyPrompt = errors.New("提示词为空")
	// ErrUnknownRequest 运行时不认识该请求 ID
	ErrUnknownRequest = errors.New("未知的请求")
)

// RuntimeError 运行时转发的提供商 HTTP 错误
type RuntimeError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *RuntimeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("运行时错误 (HTTP %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("运行时错误 (HTTP %d): %s", e.StatusCode, e.Body)
}

func (e *RuntimeError) Unwrap() error { return e.Err }
