package orchestrator

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/purpose168/chorus/internal/agent"
	"github.com/purpose168/chorus/internal/message"
)

const (
	// maxToolSummary 历史中工具调用与结果摘要的最大字符数
	maxToolSummary = 200
	maxTitleRunes  = 50
)

// flattenHistory 将既往消息压平为运行时使用的 {role, content} 列表
func flattenHistory(msgs []message.Message) []agent.HistoryEntry {
	out := make([]agent.HistoryEntry, 0, len(msgs))
	for _, msg := range msgs {
		var sb strings.Builder
		for _, part := range msg.Parts {
			switch p := part.(type) {
			case message.TextContent:
				sb.WriteString(p.Text)
			case message.ToolCall:
				writeLine(&sb, fmt.Sprintf("[tool call %s] %s", p.Name, truncate(toolArgs(p.Args), maxToolSummary)))
			case message.ToolResult:
				status := "ok"
				if !p.Success {
					status = "failed"
				}
				writeLine(&sb, fmt.Sprintf("[tool result %s %s] %s", p.Name, status, truncate(p.Output, maxToolSummary)))
			}
		}
		content := strings.TrimSpace(sb.String())
		if content == "" {
			continue
		}
		out = append(out, agent.HistoryEntry{Role: string(msg.Role), Content: content})
	}
	return out
}

func writeLine(sb *strings.Builder, s string) {
	if sb.Len() > 0 {
		sb.WriteByte('\n')
	}
	sb.WriteString(s)
	sb.WriteByte('\n')
}

// toolArgs 参数无法编码为 JSON 时退回 fmt 格式
func toolArgs(args map[string]any) string {
	data, err := json.Marshal(args)
	if err != nil {
		slog.Debug("编码工具参数失败", "error", err)
		return fmt.Sprint(args)
	}
	return string(data)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}

// promptChars 请求中计入输入令牌估算的字符数
func promptChars(req agent.Request) int {
	n := utf8.RuneCountInString(req.UserMessage) +
		utf8.RuneCountInString(req.FileContext) +
		utf8.RuneCountInString(req.SystemPrompt)
	for _, h := range req.ConversationHistory {
		n += utf8.RuneCountInString(h.Content)
	}
	return n
}

// deriveTitle 由首条消息生成会话标题
func deriveTitle(content string) string {
	title := strings.Join(strings.Fields(content), " ")
	if utf8.RuneCountInString(title) <= maxTitleRunes {
		return title
	}
	return string([]rune(title)[:maxTitleRunes])
}

// planText 取规划模式最终回答的文本
func planText(parts []message.Part) string {
	var sb strings.Builder
	for _, part := range parts {
		if t, ok := part.(message.TextContent); ok {
			sb.WriteString(t.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}
