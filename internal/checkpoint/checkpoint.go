// Package checkpoint 在变更类轮次开始前为已知被修改过的文件创建快照。
package checkpoint

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/purpose168/chorus/internal/message"
	"github.com/purpose168/chorus/internal/pubsub"
)

// File 检查点中的一个文件
type File struct {
	Path    string `json:"path"`
	Existed bool   `json:"existed"`
	// Skipped 未保存内容的原因，恢复时该文件报告为错误
	Skipped string `json:"skipped,omitempty"`
}

// Checkpoint 检查点，先于与之配对的助手消息创建
type Checkpoint struct {
	ID          string `json:"id"`
	SessionID   string `json:"session_id"`
	MessageID   string `json:"message_id"`
	Label       string `json:"label"`
	ProjectPath string `json:"project_path,omitempty"`
	CreatedAt   int64  `json:"created_at"`
	Files       []File `json:"files"`
}

// CreateParams 创建检查点的参数
type CreateParams struct {
	SessionID   string
	MessageID   string
	Label       string
	ProjectPath string
	Paths       []string
}

// FileError 恢复单个文件时的错误
type FileError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// RestoreResult 恢复结果，错误按文件记录而不是整体失败
type RestoreResult struct {
	Restored int         `json:"restored"`
	Errors   []FileError `json:"errors,omitempty"`
}

// Backend 检查点存储后端
type Backend interface {
	Create(ctx context.Context, params CreateParams) (Checkpoint, error)
	List(ctx context.Context, sessionID string) ([]Checkpoint, error)
	Restore(ctx context.Context, sessionID, checkpointID string) RestoreResult
	Delete(ctx context.Context, sessionID, checkpointID string) error
}

// SessionDeleter 支持按会话批量删除的后端
type SessionDeleter interface {
	DeleteSession(ctx context.Context, sessionID string) error
}

// mutatingTools 会修改文件的工具名及其别名
var mutatingTools = map[string]struct{}{
	"write":           {},
	"write_file":      {},
	"create_file":     {},
	"edit":            {},
	"edit_file":       {},
	"multiedit":       {},
	"replace_in_file": {},
	"str_replace":     {},
	"delete":          {},
	"delete_file":     {},
	"remove_file":     {},
	"move":            {},
	"move_file":       {},
	"rename_file":     {},
}

var (
	pathKeys        = []string{"path", "file_path", "filePath", "target_file", "filename"}
	sourceKeys      = []string{"source", "from", "old_path", "src"}
	destinationKeys = []string{"destination", "to", "new_path", "dest", "target"}
)

// IsMutating 报告工具是否会修改文件
func IsMutating(tool string) bool {
	_, ok := mutatingTools[strings.ToLower(tool)]
	return ok
}

// TouchedPaths 扫描历史中变更类工具调用涉及的路径，按首次出现顺序去重
// 移动类工具同时贡献源路径与目标路径
func TouchedPaths(history []message.Message) []string {
	var paths []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if p == "" {
			return
		}
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		paths = append(paths, p)
	}

	for _, msg := range history {
		for _, call := range msg.ToolCalls() {
			if !IsMutating(call.Name) {
				continue
			}
			add(stringArg(call.Args, pathKeys...))
			add(stringArg(call.Args, sourceKeys...))
			add(stringArg(call.Args, destinationKeys...))
		}
	}
	return paths
}

func stringArg(args map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := args[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

const maxLabelRunes = 40

// Label 由用户消息的首行生成简短标签
func Label(userMessage string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(userMessage), "\n")
	line = strings.Join(strings.Fields(line), " ")
	if utf8.RuneCountInString(line) <= maxLabelRunes {
		return line
	}
	return string([]rune(line)[:maxLabelRunes]) + "…"
}

// Coordinator 检查点协调器
type Coordinator struct {
	*pubsub.Broker[Checkpoint]
	backend Backend
}

// NewCoordinator 创建协调器
func NewCoordinator(backend Backend) *Coordinator {
	return &Coordinator{
		Broker:  pubsub.NewBroker[Checkpoint](),
		backend: backend,
	}
}

// BeforeTurn 在变更类轮次前创建检查点，路径集合可以为空
func (c *Coordinator) BeforeTurn(ctx context.Context, sessionID, messageID, projectPath, userMessage string, history []message.Message) (Checkpoint, error) {
	cp, err := c.backend.Create(ctx, CreateParams{
		SessionID:   sessionID,
		MessageID:   messageID,
		Label:       Label(userMessage),
		ProjectPath: projectPath,
		Paths:       TouchedPaths(history),
	})
	if err != nil {
		return Checkpoint{}, err
	}
	slog.Debug("已创建检查点", "session_id", sessionID, "checkpoint_id", cp.ID, "files", len(cp.Files))
	c.Publish(pubsub.CreatedEvent, cp)
	return cp, nil
}

// List 列出会话的检查点
func (c *Coordinator) List(ctx context.Context, sessionID string) ([]Checkpoint, error) {
	return c.backend.List(ctx, sessionID)
}

// Restore 恢复检查点，逐文件报告错误
func (c *Coordinator) Restore(ctx context.Context, sessionID, checkpointID string) RestoreResult {
	res := c.backend.Restore(ctx, sessionID, checkpointID)
	slog.Info("检查点已恢复", "session_id", sessionID, "checkpoint_id", checkpointID, "restored", res.Restored, "errors", len(res.Errors))
	return res
}

// Delete 删除检查点
func (c *Coordinator) Delete(ctx context.Context, sessionID, checkpointID string) error {
	if err := c.backend.Delete(ctx, sessionID, checkpointID); err != nil {
		return err
	}
	c.Publish(pubsub.DeletedEvent, Checkpoint{ID: checkpointID, SessionID: sessionID})
	return nil
}

// DeleteSession 删除会话的全部检查点，后端不支持时忽略
func (c *Coordinator) DeleteSession(ctx context.Context, sessionID string) error {
	d, ok := c.backend.(SessionDeleter)
	if !ok {
		return nil
	}
	return d.DeleteSession(ctx, sessionID)
}
