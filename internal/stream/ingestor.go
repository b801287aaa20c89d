// Package stream 将运行时推送的微事件组装为因果有序的消息片段。
package stream

import (
	"maps"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/purpose168/chorus/internal/agent"
	"github.com/purpose168/chorus/internal/message"
)

const (
	// NoResponseText 轮次没有产生任何内容时的占位文本
	NoResponseText = "（模型没有返回任何内容）"
	// ErrorMarkerPrefix 轮次出错且没有内容时错误片段的前缀
	ErrorMarkerPrefix = "错误: "
)

// Result 轮次结束时的摘要
type Result struct {
	Parts       []message.Part
	Usage       *agent.Usage
	Err         error
	Iterations  int
	OutputChars int
	// HadContent 结束前是否已产生文本或工具片段
	HadContent bool
}

// Ingestor 单个轮次的事件摄取状态机
// 事件按到达顺序处理；快照随时可取，不阻塞摄取
type Ingestor struct {
	mu    sync.Mutex
	now   func() time.Time
	start time.Time

	parts     []message.Part
	toolIndex map[string]int

	thinking     []string
	reasoning    strings.Builder
	hasReasoning bool

	usage       *agent.Usage
	err         error
	iterations  int
	outputChars int
	finished    bool
}

// NewIngestor 创建摄取器，片段缓冲区以一个空文本片段开始
func NewIngestor(now func() time.Time) *Ingestor {
	if now == nil {
		now = time.Now
	}
	return &Ingestor{
		now:       now,
		start:     now(),
		parts:     []message.Part{message.TextContent{}},
		toolIndex: make(map[string]int),
	}
}

// Apply 处理一个事件，返回是否需要立即刷新
func (in *Ingestor) Apply(ev agent.Event) (flushNow bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.finished {
		return false
	}

	switch e := ev.(type) {
	case agent.TextDelta:
		in.appendText(e.Content)
		in.outputChars += utf8.RuneCountInString(e.Content)
	case agent.ToolCallStart:
		in.startToolCall(e)
	case agent.ToolResult:
		in.parts = append(in.parts, message.ToolResult{
			ToolCallID: e.ID,
			Name:       e.Name,
			Success:    e.Success,
			Output:     e.Output,
		})
	case agent.ToolApprovalRequired:
		id := e.ToolCallID
		if id == "" {
			id = e.ApprovalID
		}
		in.parts = append(in.parts, message.ToolCall{
			ID:         id,
			Name:       e.Name,
			Args:       maps.Clone(e.Args),
			ApprovalID: e.ApprovalID,
			Status:     message.ToolCallPending,
		})
	case agent.PathApprovalRequired:
		in.parts = append(in.parts, message.ToolCall{
			ID:         e.ApprovalID,
			Name:       e.Name,
			Args:       map[string]any{"path": e.Path},
			ApprovalID: e.ApprovalID,
			Status:     message.ToolCallPending,
		})
	case agent.Thinking:
		in.thinking = append(in.thinking, e.Content)
	case agent.ReasoningDelta:
		in.reasoning.WriteString(e.Content)
		in.hasReasoning = true
		in.outputChars += utf8.RuneCountInString(e.Content)
	case agent.IterationComplete:
		in.iterations++
		return true
	case agent.AgentComplete:
		if e.Usage != nil {
			u := *e.Usage
			in.usage = &u
		}
	case agent.AgentError:
		in.err = e.Err
	}
	return false
}

// appendText 追加到末尾的文本片段，末尾不是文本时开启新的文本片段
func (in *Ingestor) appendText(s string) {
	last := len(in.parts) - 1
	if last >= 0 {
		if t, ok := in.parts[last].(message.TextContent); ok {
			t.Text += s
			in.parts[last] = t
			return
		}
	}
	in.parts = append(in.parts, message.TextContent{Text: s})
}

// startToolCall 按调用 ID 去重，重复出现时合并参数
func (in *Ingestor) startToolCall(e agent.ToolCallStart) {
	if idx, ok := in.toolIndex[e.ID]; ok {
		call := in.parts[idx].(message.ToolCall)
		if call.Args == nil {
			call.Args = make(map[string]any, len(e.Args))
		}
		maps.Copy(call.Args, e.Args)
		if e.Name != "" {
			call.Name = e.Name
		}
		in.parts[idx] = call
		return
	}
	in.toolIndex[e.ID] = len(in.parts)
	in.parts = append(in.parts, message.ToolCall{
		ID:     e.ID,
		Name:   e.Name,
		Args:   maps.Clone(e.Args),
		Status: message.ToolCallRunning,
	})
}

// ResolveApproval 更新带审批 ID 的待审批片段，返回是否找到
func (in *Ingestor) ResolveApproval(approvalID string, approved bool) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	for i, part := range in.parts {
		call, ok := part.(message.ToolCall)
		if !ok || call.ApprovalID != approvalID {
			continue
		}
		if approved {
			call.Status = message.ToolCallApproved
		} else {
			call.Status = message.ToolCallRejected
		}
		in.parts[i] = call
		return true
	}
	return false
}

// Snapshot 返回当前可见片段：有序片段后接合成的思考与推理片段
func (in *Ingestor) Snapshot() []message.Part {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.render(false)
}

func (in *Ingestor) render(complete bool) []message.Part {
	out := message.CloneParts(in.parts)
	if len(in.thinking) > 0 {
		out = append(out, message.ThinkingContent{
			Steps:      append([]string(nil), in.thinking...),
			Duration:   in.now().Sub(in.start),
			IsComplete: complete,
		})
	}
	if in.hasReasoning {
		out = append(out, message.ReasoningContent{
			Content:    in.reasoning.String(),
			IsComplete: complete,
		})
	}
	return out
}

// Usage 返回运行时报告的权威用量
func (in *Ingestor) Usage() *agent.Usage {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.usage
}

// Err 返回 agent_error 携带的错误
func (in *Ingestor) Err() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.err
}

// HasContent 报告是否已产生文本或工具片段
func (in *Ingestor) HasContent() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return message.HasContent(in.parts)
}

// Finish 定稿轮次，只生效一次
//   - runErr 为运行时返回的错误，与 agent_error 事件合并
//   - aborted 为 true 时保留已有片段，不插入占位文本
//
// 没有文本与工具片段时：有错误则只保留一个错误片段，否则只保留“无响应”片段
func (in *Ingestor) Finish(runErr error, aborted bool) Result {
	in.mu.Lock()
	defer in.mu.Unlock()

	err := in.err
	if err == nil {
		err = runErr
	}
	if in.finished {
		return Result{Parts: in.render(true), Usage: in.usage, Err: err, Iterations: in.iterations, OutputChars: in.outputChars}
	}
	in.finished = true
	in.err = err

	hadContent := message.HasContent(in.parts)
	res := Result{
		Usage:       in.usage,
		Err:         err,
		Iterations:  in.iterations,
		OutputChars: in.outputChars,
		HadContent:  hadContent,
	}

	if !aborted && !hadContent {
		text := NoResponseText
		if err != nil {
			text = ErrorMarkerPrefix + err.Error()
		}
		in.parts = []message.Part{message.TextContent{Text: text}}
		in.thinking, in.hasReasoning = nil, false
	}
	res.Parts = in.render(true)
	return res
}
