package orchestrator

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/purpose168/chorus/internal/agent"
	"github.com/purpose168/chorus/internal/event"
	"github.com/purpose168/chorus/internal/log"
	"github.com/purpose168/chorus/internal/message"
	"github.com/purpose168/chorus/internal/prompt"
	"github.com/purpose168/chorus/internal/provider"
	"github.com/purpose168/chorus/internal/stream"
	"github.com/purpose168/chorus/internal/usage"
)

// SendParams 一次发送的参数
type SendParams struct {
	// SessionID 为空时新建会话，标题取自消息开头
	SessionID   string
	Content     string
	Attachments []message.Attachment
	Mode        agent.Mode
	// ProjectPath 为空时使用会话记录的项目路径
	ProjectPath string
}

// Result 轮次结果
type Result struct {
	SessionID string
	Message   message.Message
	Usage     usage.TokenUsage
	Aborted   bool
	// Err 轮次内的提供商错误，已写入对话或通知
	Err *provider.Error
}

// turn 会话进行中的轮次，注册在以会话 ID 为键的表中
type turn struct {
	sessionID string
	requestID string
	messageID string

	ingestor *stream.Ingestor
	rate     *stream.RateMeter
	flusher  *stream.Flusher

	cancel  context.CancelFunc
	aborted atomic.Bool
	// done 在轮次注销后关闭
	done chan struct{}

	mu        sync.Mutex
	unsub     func()
	approvals []string
}

// subscribe 保存取消订阅函数；轮次已被中止时立即取消
func (t *turn) subscribe(unsub func()) {
	unsub = sync.OnceFunc(unsub)
	t.mu.Lock()
	t.unsub = unsub
	t.mu.Unlock()
	if t.aborted.Load() {
		unsub()
	}
}

func (t *turn) unsubscribe() {
	t.mu.Lock()
	unsub := t.unsub
	t.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (t *turn) trackApproval(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.approvals = append(t.approvals, id)
}

// register 原子地登记轮次，会话已有轮次时失败
func (o *Orchestrator) register(t *turn) bool {
	return o.turns.SetIfAbsent(t.sessionID, t)
}

func (o *Orchestrator) unregister(t *turn) {
	o.turns.DelIf(t.sessionID, func(cur *turn) bool { return cur == t })
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range t.approvals {
		o.approvals.Del(id)
	}
	close(t.done)
}

// SendMessage 发送用户消息并阻塞直到轮次结束
//
// 预检失败返回 *ValidationError；会话忙时返回 ErrSessionBusy，
// 不会与进行中的轮次交错写入。轮次内的提供商错误不作为返回值，
// 而是写入对话（尚无内容时）或发布为通知，并记录在 Result.Err 中。
func (o *Orchestrator) SendMessage(ctx context.Context, p SendParams) (Result, error) {
	content := strings.TrimSpace(p.Content)
	if content == "" && len(p.Attachments) == 0 {
		return Result{}, validation(ErrEmptyPrompt)
	}
	if p.Mode == "" {
		p.Mode = agent.ModeChat
	}

	sel := o.selection.Get()
	if sel.Model == "" || sel.Provider == "" {
		return Result{}, validation(ErrNoModel)
	}
	pc, mc, err := o.resolver.Endpoint(ctx, sel.Model, sel.Provider)
	if err != nil {
		if errors.Is(err, provider.ErrMissingAPIKey) {
			return Result{}, validation(errors.Join(ErrNoCredential, err))
		}
		return Result{}, validation(err)
	}

	sessionID := p.SessionID
	if sessionID == "" {
		s, err := o.sessions.Create(ctx, deriveTitle(content))
		if err != nil {
			return Result{}, err
		}
		sessionID = s.ID
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	t := &turn{
		sessionID: sessionID,
		requestID: uuid.NewString(),
		messageID: uuid.NewString(),
		ingestor:  stream.NewIngestor(o.now),
		rate:      stream.NewRateMeter(o.now),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	if !o.register(t) {
		return Result{}, ErrSessionBusy
	}
	defer o.unregister(t)

	if err := o.sessions.Ensure(ctx, sessionID); err != nil {
		return Result{}, err
	}
	sess, _ := o.sessions.Get(sessionID)
	projectPath := p.ProjectPath
	if projectPath == "" {
		projectPath = sess.ProjectPath
	} else if projectPath != sess.ProjectPath {
		if err := o.sessions.SetProjectPath(ctx, sessionID, projectPath); err != nil {
			slog.Warn("更新会话项目路径失败", "session_id", sessionID, "error", err)
		}
	}

	prior := o.sessions.Messages(sessionID)

	// 检查点先于占位消息创建
	if p.Mode.Mutating() && o.checkpoints != nil {
		if _, err := o.checkpoints.BeforeTurn(ctx, sessionID, t.messageID, projectPath, content, prior); err != nil {
			slog.Warn("创建检查点失败", "session_id", sessionID, "error", err)
		}
	}

	if err := o.sessions.AppendMessage(sessionID, message.Message{
		ID:    uuid.NewString(),
		Role:  message.User,
		Parts: userParts(content, p.Attachments),
	}); err != nil {
		return Result{}, err
	}
	if err := o.sessions.AppendMessage(sessionID, message.Message{
		ID:       t.messageID,
		Role:     message.Assistant,
		Parts:    []message.Part{message.TextContent{}},
		Model:    sel.Model,
		Provider: sel.Provider,
	}); err != nil {
		return Result{}, err
	}

	if o.sizes != nil && projectPath != "" {
		o.sizes.Refresh(projectPath)
	}

	req := agent.Request{
		RequestID:   t.requestID,
		UserMessage: content,
		FileContext: message.FileContext(p.Attachments),
		Model:       sel.Model,
		Provider:    sel.Provider,
		Endpoint: agent.Endpoint{
			BaseURL:    pc.BaseURL,
			WireFormat: string(mc.WireFormat),
			APIKey:     pc.APIKey,
			ModelName:  mc.ID,
			MaxTokens:  mc.MaxTokens,
		},
		SystemPrompt: o.prompts.Build(ctx, prompt.Params{
			Mode:        p.Mode,
			ProjectPath: projectPath,
			Model:       mc.Name,
			Provider:    pc.Name,
		}),
		AgentMode:           p.Mode,
		MaxIterations:       o.settings.MaxIterations,
		ProjectPath:         projectPath,
		ConversationHistory: flattenHistory(prior),
		EditApprovalMode:    o.settings.EditApprovalMode,
	}

	return o.run(ctx, runCtx, t, req), nil
}

// run 提交请求并摄取事件，直到运行时返回
func (o *Orchestrator) run(ctx, runCtx context.Context, t *turn, req agent.Request) Result {
	t.flusher = stream.NewFlusher(o.settings.FlushInterval, func() {
		if err := o.sessions.UpdateParts(t.sessionID, t.messageID, t.ingestor.Snapshot()); err != nil {
			slog.Debug("刷新占位消息失败", "session_id", t.sessionID, "error", err)
		}
	})
	t.subscribe(o.runtime.OnEvent(t.requestID, func(ev agent.Event) {
		defer log.RecoverPanic("orchestrator.onEvent", nil)
		o.handleEvent(t, ev)
	}))

	var runErr error
	if !t.aborted.Load() {
		slog.Debug("提交轮次", "session_id", t.sessionID, "request_id", t.requestID, "mode", req.AgentMode)
		runErr = o.runtime.Run(runCtx, req)
	}

	t.unsubscribe()
	t.flusher.Close()

	aborted := t.aborted.Load() || ctx.Err() != nil
	if aborted {
		runErr = nil
	}
	res := t.ingestor.Finish(runErr, aborted)
	t.rate.Reset()

	final := Result{SessionID: t.sessionID, Aborted: aborted}
	if err := o.sessions.UpdateMessage(t.sessionID, t.messageID, func(m *message.Message) {
		m.Parts = res.Parts
		if req.AgentMode == agent.ModePlan && !aborted && res.Err == nil {
			m.Plan = planText(res.Parts)
		}
		final.Message = m.Clone()
	}); err != nil {
		slog.Warn("定稿占位消息失败", "session_id", t.sessionID, "error", err)
	}

	persistCtx, done := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer done()
	o.sessions.PersistMessages(t.sessionID)

	in := usage.Input{
		TurnID:      t.requestID,
		SessionID:   t.sessionID,
		Provider:    req.Provider,
		Model:       req.Model,
		InputChars:  promptChars(req),
		OutputChars: res.OutputChars,
	}
	if res.Usage != nil {
		in.Authoritative = &usage.Authoritative{
			PromptTokens:     res.Usage.PromptTokens,
			CompletionTokens: res.Usage.CompletionTokens,
		}
	}
	// 会话已被删除时不再记账，避免重新写回用量记录
	if _, ok := o.sessions.Get(t.sessionID); ok {
		final.Usage = o.usage.Track(persistCtx, in)
	}

	if err := o.writer.Flush(persistCtx); err != nil {
		slog.Warn("轮次结束时持久化失败", "session_id", t.sessionID, "error", err)
	}

	if res.Err != nil && !aborted {
		final.Err = provider.ClassifyError(req.Provider, res.Err)
		event.ProviderFailed("provider", req.Provider, "category", string(final.Err.Category))
		if res.HadContent {
			o.notify(Notification{
				SessionID: t.sessionID,
				Category:  string(final.Err.Category),
				Message:   final.Err.Error(),
				Hint:      final.Err.Hint(),
			})
		}
	}

	if aborted {
		event.TurnAborted("mode", string(req.AgentMode))
	} else {
		event.TurnCompleted(
			"mode", string(req.AgentMode),
			"provider", req.Provider,
			"iterations", res.Iterations,
			"authoritative_usage", res.Usage != nil,
		)
	}
	slog.Info("轮次结束",
		"session_id", t.sessionID,
		"request_id", t.requestID,
		"aborted", aborted,
		"iterations", res.Iterations,
		"error", res.Err,
	)
	return final
}

// handleEvent 运行时按请求串行投递事件
func (o *Orchestrator) handleEvent(t *turn, ev agent.Event) {
	if t.aborted.Load() {
		return
	}
	switch e := ev.(type) {
	case agent.TextDelta:
		t.rate.Record(len([]rune(e.Content)))
	case agent.ToolApprovalRequired:
		o.approvals.Set(e.ApprovalID, t.sessionID)
		t.trackApproval(e.ApprovalID)
	case agent.PathApprovalRequired:
		o.approvals.Set(e.ApprovalID, t.sessionID)
		t.trackApproval(e.ApprovalID)
	}
	if t.ingestor.Apply(ev) {
		t.flusher.Now()
		return
	}
	t.flusher.Mark()
}

// userParts 文本附件经由 FileContext 传给运行时，图片附件作为图片片段保存
func userParts(content string, attachments []message.Attachment) []message.Part {
	parts := []message.Part{message.TextContent{Text: content}}
	for _, a := range attachments {
		if !a.IsImage() {
			continue
		}
		parts = append(parts, message.ImageContent{
			URL:      "data:" + a.MimeType + ";base64," + base64.StdEncoding.EncodeToString(a.Content),
			MIMEType: a.MimeType,
		})
	}
	return parts
}
