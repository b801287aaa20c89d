package orchestrator

import (
	"errors"

	"github.com/purpose168/chorus/internal/agent"
)

// CategoryValidation 预检失败的错误类别
const CategoryValidation = "validation"

var (
	// ErrNoModel 没有选择模型
	ErrNoModel = errors.New("尚未选择模型")
	// ErrNoCredential 提供商缺少凭据
	ErrNoCredential = errors.New("提供商缺少 API 密钥")
	// ErrSessionBusy 会话已有进行中的轮次
	ErrSessionBusy = agent.ErrSessionBusy
	// ErrEmptyPrompt 消息内容为空
	ErrEmptyPrompt = agent.ErrEmptyPrompt
)

// ValidationError 发送前的预检失败，修正配置后可重新发送
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return "预检失败: " + e.Err.Error() }

func (e *ValidationError) Unwrap() error { return e.Err }

func validation(err error) error {
	return &ValidationError{Err: err}
}
