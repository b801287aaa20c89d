// Package agent 定义外部智能体运行时的接口与事件模型。
//
// 运行时负责执行多步工具调用循环并按请求 ID 推送增量事件；
// 本包只描述与它交互的契约，不包含工具执行本身。
package agent

import (
	"context"
)

// Mode 智能体模式
type Mode string

const (
	ModeChat    Mode = "chat"
	ModePlan    Mode = "plan"
	ModeBuilder Mode = "builder"
)

// Mutating 报告该模式下的轮次是否可能修改文件
func (m Mode) Mutating() bool {
	return m == ModeBuilder
}

// EditApprovalMode 文件修改的审批策略
type EditApprovalMode string

const (
	ApproveAlways EditApprovalMode = "always" // 每次修改都需要审批
	ApproveNever  EditApprovalMode = "never"
	ApproveUnsafe EditApprovalMode = "unsafe" // 仅对项目目录外的路径审批
)

// HistoryEntry 扁平化后的历史轮次
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Endpoint 解析完成、可直接用于传输的提供商端点
type Endpoint struct {
	BaseURL    string `json:"base_url"`
	WireFormat string `json:"wire_format"`
	APIKey     string `json:"-"`
	ModelName  string `json:"model_name"`
	MaxTokens  int64  `json:"max_tokens,omitempty"`
}

// Request 一次轮次提交给运行时的请求
type Request struct {
	RequestID           string           `json:"request_id"`
	UserMessage         string           `json:"user_message"`
	FileContext         string           `json:"file_context,omitempty"`
	Model               string           `json:"model"`
	Provider            string           `json:"provider"`
	Endpoint            Endpoint         `json:"endpoint"`
	SystemPrompt        string           `json:"system_prompt"`
	AgentMode           Mode             `json:"agent_mode"`
	MaxIterations       int              `json:"max_iterations"`
	ProjectPath         string           `json:"project_path,omitempty"`
	ConversationHistory []HistoryEntry   `json:"conversation_history"`
	EditApprovalMode    EditApprovalMode `json:"edit_approval_mode"`
}

// Runtime 外部智能体运行时
type Runtime interface {
	// Run 提交请求并阻塞直到轮次结束
	// 提供商错误既可能通过 AgentError 事件送达，也可能作为返回值
	Run(ctx context.Context, req Request) error
	// Abort 通知运行时停止指定请求
	Abort(ctx context.Context, requestID string) error
	// OnEvent 为请求注册事件处理函数，返回取消注册函数
	// 同一请求的事件按发出顺序串行投递
	OnEvent(requestID string, handler func(Event)) (unsubscribe func())
	// RespondToolApproval 回复工具或路径审批
	RespondToolApproval(ctx context.Context, approvalID string, approved bool) error
}
