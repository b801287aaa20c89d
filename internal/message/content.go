package message

import (
	"maps"
	"slices"
	"strings"
	"time"
)

// Role 消息角色
type Role string

const (
	User      Role = "user"
	Assistant Role = "assistant"
)

// Part 消息内容片段，封闭的和类型
type Part interface {
	isPart()
}

// TextContent 文本片段
type TextContent struct {
	Text string `json:"text"`
}

func (TextContent) isPart() {}

// ToolCallStatus 工具调用状态
type ToolCallStatus string

const (
	ToolCallRunning  ToolCallStatus = "running"
	ToolCallPending  ToolCallStatus = "pending" // 等待用户审批
	ToolCallApproved ToolCallStatus = "approved"
	ToolCallRejected ToolCallStatus = "rejected"
)

// ToolCall 工具调用片段
// ApprovalID 非空表示该调用需要用户审批，审批结果经由 ID 在带外返回
type ToolCall struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Args       map[string]any `json:"args,omitempty"`
	ApprovalID string         `json:"approval_id,omitempty"`
	Status     ToolCallStatus `json:"status,omitempty"`
}

func (ToolCall) isPart() {}

// ToolResult 工具结果片段，仅通过 ToolCallID 与调用关联用于展示
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Success    bool   `json:"success"`
	Output     string `json:"output"`
}

func (ToolResult) isPart() {}

// ThinkingContent 思考步骤片段，在轮次内被反复替换，结束时定稿一次
type ThinkingContent struct {
	Steps      []string      `json:"steps"`
	Duration   time.Duration `json:"duration"`
	IsComplete bool          `json:"is_complete"`
}

func (ThinkingContent) isPart() {}

// ReasoningContent 模型推理内容片段
type ReasoningContent struct {
	Content    string `json:"content"`
	IsComplete bool   `json:"is_complete"`
}

func (ReasoningContent) isPart() {}

// ImageContent 图片片段
type ImageContent struct {
	URL      string `json:"url"`
	MIMEType string `json:"mime_type"`
}

func (ImageContent) isPart() {}

// Message 会话中的一条消息
// 助手占位消息在整个轮次内被原地修改，不会被替换
type Message struct {
	ID        string
	SessionID string
	Role      Role
	Parts     []Part
	Model     string
	Provider  string
	// Plan 规划模式轮次结束时的计划文本
	Plan      string
	CreatedAt int64 // Unix 毫秒
	UpdatedAt int64
}

// Text 按顺序拼接所有文本片段
func (m *Message) Text() string {
	var sb strings.Builder
	for _, part := range m.Parts {
		if c, ok := part.(TextContent); ok {
			sb.WriteString(c.Text)
		}
	}
	return sb.String()
}

// ToolCalls 返回消息中的所有工具调用
func (m *Message) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, part := range m.Parts {
		if c, ok := part.(ToolCall); ok {
			calls = append(calls, c)
		}
	}
	return calls
}

// ToolResults 返回消息中的所有工具结果
func (m *Message) ToolResults() []ToolResult {
	var results []ToolResult
	for _, part := range m.Parts {
		if c, ok := part.(ToolResult); ok {
			results = append(results, c)
		}
	}
	return results
}

// HasContent 报告是否存在非空文本或任何工具片段
func (m *Message) HasContent() bool {
	return HasContent(m.Parts)
}

// HasContent 报告片段列表中是否存在非空文本或任何工具片段
func HasContent(parts []Part) bool {
	for _, part := range parts {
		switch c := part.(type) {
		case TextContent:
			if strings.TrimSpace(c.Text) != "" {
				return true
			}
		case ToolCall, ToolResult:
			return true
		}
	}
	return false
}

// Clone 返回消息的深拷贝，片段切片与参数映射不与原消息共享
func (m Message) Clone() Message {
	m.Parts = CloneParts(m.Parts)
	return m
}

// CloneParts 复制片段列表
func CloneParts(parts []Part) []Part {
	if parts == nil {
		return nil
	}
	out := make([]Part, len(parts))
	for i, part := range parts {
		switch c := part.(type) {
		case ToolCall:
			c.Args = maps.Clone(c.Args)
			out[i] = c
		case ThinkingContent:
			c.Steps = slices.Clone(c.Steps)
			out[i] = c
		default:
			out[i] = part
		}
	}
	return out
}
