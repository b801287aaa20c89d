// Package orchestrator 是对话编排的门面：按会话发送与中止消息，
// 并把会话、流式摄取、提供商解析、检查点与用量记账组合在一起。
//
// 每个会话同一时刻至多一个进行中的轮次；不同会话的轮次互不影响。
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/purpose168/chorus/internal/agent"
	"github.com/purpose168/chorus/internal/checkpoint"
	"github.com/purpose168/chorus/internal/csync"
	"github.com/purpose168/chorus/internal/provider"
	"github.com/purpose168/chorus/internal/prompt"
	"github.com/purpose168/chorus/internal/pubsub"
	"github.com/purpose168/chorus/internal/session"
	"github.com/purpose168/chorus/internal/store"
	"github.com/purpose168/chorus/internal/stream"
	"github.com/purpose168/chorus/internal/usage"
)

const persistTimeout = 5 * time.Second

// Resolver 解析提供商端点
type Resolver interface {
	Endpoint(ctx context.Context, modelID, providerID string) (provider.ProviderConfig, provider.ModelConfig, error)
	Provider(id string) (provider.Info, bool)
}

// PromptBuilder 构建系统提示词，读取失败时省略对应部分
type PromptBuilder interface {
	Build(ctx context.Context, p prompt.Params) string
}

// SizeRefresher 在后台刷新项目规模估算
type SizeRefresher interface {
	Refresh(root string)
}

// Selection 当前使用的模型与提供商
type Selection struct {
	Model    string `json:"model"`
	Provider string `json:"provider"`
}

// Notification 不覆盖对话内容的旁路通知
type Notification struct {
	SessionID string
	Category  string
	Message   string
	Hint      string
}

// Settings 轮次参数
type Settings struct {
	MaxIterations    int
	EditApprovalMode agent.EditApprovalMode
	FlushInterval    time.Duration
}

// Orchestrator 对话编排器
type Orchestrator struct {
	sessions    *session.Manager
	runtime     agent.Runtime
	resolver    Resolver
	checkpoints *checkpoint.Coordinator
	usage       *usage.Tracker
	store       store.Store
	writer      *store.Writer
	prompts     PromptBuilder
	sizes       SizeRefresher
	settings    Settings
	now         func() time.Time

	turns         *csync.Map[string, *turn]
	approvals     *csync.Map[string, string] // 审批 ID -> 会话 ID
	selection     *csync.Value[Selection]
	notifications *pubsub.Broker[Notification]
}

// Option 编排器选项
type Option func(*Orchestrator)

// WithCheckpoints 设置检查点协调器，未设置时不创建检查点
func WithCheckpoints(c *checkpoint.Coordinator) Option {
	return func(o *Orchestrator) { o.checkpoints = c }
}

// WithPromptBuilder 设置系统提示词构建器
func WithPromptBuilder(b PromptBuilder) Option {
	return func(o *Orchestrator) { o.prompts = b }
}

// WithSizeRefresher 设置项目规模估算缓存
func WithSizeRefresher(r SizeRefresher) Option {
	return func(o *Orchestrator) { o.sizes = r }
}

// WithSettings 设置轮次参数
func WithSettings(s Settings) Option {
	return func(o *Orchestrator) { o.settings = s }
}

// WithClock 替换时钟
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New 创建编排器
func New(
	sessions *session.Manager,
	runtime agent.Runtime,
	resolver Resolver,
	tracker *usage.Tracker,
	s store.Store,
	w *store.Writer,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		sessions:      sessions,
		runtime:       runtime,
		resolver:      resolver,
		usage:         tracker,
		store:         s,
		writer:        w,
		now:           time.Now,
		turns:         csync.NewMap[string, *turn](),
		approvals:     csync.NewMap[string, string](),
		selection:     csync.NewValue(Selection{}),
		notifications: pubsub.NewBroker[Notification](),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.prompts == nil {
		o.prompts = prompt.NewBuilder()
	}
	if o.settings.MaxIterations <= 0 {
		o.settings.MaxIterations = 25
	}
	if o.settings.EditApprovalMode == "" {
		o.settings.EditApprovalMode = agent.ApproveUnsafe
	}
	if o.settings.FlushInterval <= 0 {
		o.settings.FlushInterval = stream.DefaultFlushInterval
	}
	return o
}

// Load 从存储恢复模型选择
func (o *Orchestrator) Load(ctx context.Context) {
	model, err := store.GetString(ctx, o.store, store.ActiveModelKey)
	if err != nil {
		slog.Warn("读取活动模型失败", "error", err)
	}
	prov, err := store.GetString(ctx, o.store, store.ActiveProviderKey)
	if err != nil {
		slog.Warn("读取活动提供商失败", "error", err)
	}
	o.selection.Set(Selection{Model: model, Provider: prov})
}

// Notifications 旁路通知的订阅入口
func (o *Orchestrator) Notifications() pubsub.Subscriber[Notification] {
	return o.notifications
}

// ActiveModel 返回当前的模型选择
func (o *Orchestrator) ActiveModel() Selection {
	return o.selection.Get()
}

// SetActiveModel 切换模型，对后续轮次生效
func (o *Orchestrator) SetActiveModel(_ context.Context, model, providerID string) error {
	model = strings.TrimSpace(model)
	if model == "" {
		return validation(ErrNoModel)
	}
	if _, ok := o.resolver.Provider(providerID); !ok {
		return validation(fmt.Errorf("%w: %s", provider.ErrUnknownProvider, providerID))
	}
	o.selection.Set(Selection{Model: model, Provider: providerID})
	o.writer.Set(store.ActiveModelKey, []byte(model))
	o.writer.Set(store.ActiveProviderKey, []byte(providerID))
	return nil
}

// SetCredential 保存提供商凭据，key 为空时清除
// 写入在返回前落盘，随后的发送即可使用新凭据
func (o *Orchestrator) SetCredential(ctx context.Context, providerID, key string) error {
	if _, ok := o.resolver.Provider(providerID); !ok {
		return fmt.Errorf("%w: %s", provider.ErrUnknownProvider, providerID)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		o.writer.Delete(store.APIKeyKey(providerID))
	} else {
		o.writer.Set(store.APIKeyKey(providerID), []byte(key))
	}
	return o.writer.Flush(ctx)
}

// IsBusy 报告会话是否有进行中的轮次
func (o *Orchestrator) IsBusy(sessionID string) bool {
	_, ok := o.turns.Get(sessionID)
	return ok
}

// StreamingRate 返回会话当前的流速（令牌每秒），空闲时为 0
func (o *Orchestrator) StreamingRate(sessionID string) float64 {
	t, ok := o.turns.Get(sessionID)
	if !ok {
		return 0
	}
	return t.rate.Rate()
}

// AbortMessage 中止会话进行中的轮次
// 已摄取的片段保留为最终内容，其他会话不受影响
func (o *Orchestrator) AbortMessage(ctx context.Context, sessionID string) error {
	t, ok := o.turns.Get(sessionID)
	if !ok {
		return nil
	}
	if !t.aborted.CompareAndSwap(false, true) {
		return nil
	}
	t.unsubscribe()
	t.rate.Reset()

	err := o.runtime.Abort(ctx, t.requestID)
	t.cancel()
	if err != nil && !errors.Is(err, agent.ErrUnknownRequest) {
		return fmt.Errorf("中止请求失败: %w", err)
	}
	slog.Info("轮次已中止", "session_id", sessionID, "request_id", t.requestID)
	return nil
}

// RespondToolApproval 回复工具或路径审批，不阻塞任何会话的摄取
func (o *Orchestrator) RespondToolApproval(ctx context.Context, approvalID string, approved bool) error {
	if sessionID, ok := o.approvals.Take(approvalID); ok {
		if t, ok := o.turns.Get(sessionID); ok {
			t.ingestor.ResolveApproval(approvalID, approved)
			t.flusher.Mark()
		}
	} else {
		slog.Debug("审批不属于任何进行中的轮次", "approval_id", approvalID)
	}
	return o.runtime.RespondToolApproval(ctx, approvalID, approved)
}

// DeleteSession 删除会话及其消息、用量与检查点
// 进行中的轮次先被中止，并等待其收尾结束后再删除
func (o *Orchestrator) DeleteSession(ctx context.Context, sessionID string) error {
	if t, ok := o.turns.Get(sessionID); ok {
		if err := o.AbortMessage(ctx, sessionID); err != nil {
			slog.Warn("删除前中止轮次失败", "session_id", sessionID, "error", err)
		}
		select {
		case <-t.done:
		case <-ctx.Done():
			return fmt.Errorf("等待轮次结束失败: %w", ctx.Err())
		}
	}
	if err := o.sessions.Delete(ctx, sessionID); err != nil {
		return err
	}
	o.usage.Delete(sessionID)
	if o.checkpoints != nil {
		if err := o.checkpoints.DeleteSession(ctx, sessionID); err != nil {
			slog.Warn("删除会话检查点失败", "session_id", sessionID, "error", err)
		}
	}
	return nil
}

// Shutdown 中止所有进行中的轮次并关闭通知
func (o *Orchestrator) Shutdown(ctx context.Context) {
	for id := range o.turns.Seq2() {
		if err := o.AbortMessage(ctx, id); err != nil {
			slog.Warn("关闭时中止轮次失败", "session_id", id, "error", err)
		}
	}
	o.notifications.Shutdown()
}

func (o *Orchestrator) notify(n Notification) {
	slog.Warn("轮次通知", "session_id", n.SessionID, "category", n.Category, "message", n.Message)
	o.notifications.Publish(pubsub.CreatedEvent, n)
}
