// Package agenttest 提供可编排脚本的运行时替身，供编排层测试使用。
package agenttest

import (
	"context"
	"slices"
	"sync"

	"github.com/purpose168/chorus/internal/agent"
)

// Script 描述一次 Run 的行为，emit 同步地把事件投递给已注册的处理函数
type Script func(ctx context.Context, req agent.Request, emit func(agent.Event)) error

// Runtime 实现 agent.Runtime 的测试替身
type Runtime struct {
	mu        sync.Mutex
	script    Script
	handlers  map[string]func(agent.Event)
	cancels   map[string]context.CancelFunc
	requests  []agent.Request
	aborted   []string
	approvals map[string]bool
}

var _ agent.Runtime = (*Runtime)(nil)

// New 创建使用给定脚本的运行时替身，script 为 nil 时立即完成
func New(script Script) *Runtime {
	return &Runtime{
		script:    script,
		handlers:  make(map[string]func(agent.Event)),
		cancels:   make(map[string]context.CancelFunc),
		approvals: make(map[string]bool),
	}
}

// SetScript 替换后续 Run 使用的脚本
func (r *Runtime) SetScript(s Script) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.script = s
}

// Run 实现 agent.Runtime
func (r *Runtime) Run(ctx context.Context, req agent.Request) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.mu.Lock()
	r.requests = append(r.requests, req)
	r.cancels[req.RequestID] = cancel
	script := r.script
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.cancels, req.RequestID)
		r.mu.Unlock()
	}()

	if script == nil {
		r.emit(req.RequestID, agent.AgentComplete{})
		return nil
	}
	return script(ctx, req, func(ev agent.Event) {
		r.emit(req.RequestID, ev)
	})
}

func (r *Runtime) emit(requestID string, ev agent.Event) {
	r.mu.Lock()
	h := r.handlers[requestID]
	r.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

// Abort 实现 agent.Runtime，取消对应 Run 的上下文
func (r *Runtime) Abort(_ context.Context, requestID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aborted = append(r.aborted, requestID)
	if cancel, ok := r.cancels[requestID]; ok {
		cancel()
		return nil
	}
	return agent.ErrUnknownRequest
}

// OnEvent 实现 agent.Runtime
func (r *Runtime) OnEvent(requestID string, handler func(agent.Event)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[requestID] = handler
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.handlers, requestID)
	}
}

// RespondToolApproval 实现 agent.Runtime
func (r *Runtime) RespondToolApproval(_ context.Context, approvalID string, approved bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.approvals[approvalID] = approved
	return nil
}

// Requests 返回收到的全部请求
func (r *Runtime) Requests() []agent.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.requests)
}

// Aborted 返回被中止的请求 ID
func (r *Runtime) Aborted() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.aborted)
}

// Approval 返回审批回复
func (r *Runtime) Approval(approvalID string) (bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.approvals[approvalID]
	return v, ok
}

// Subscribed 报告请求当前是否有处理函数
func (r *Runtime) Subscribed(requestID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.handlers[requestID]
	return ok
}

// Events 返回依次发出固定事件的脚本
func Events(events ...agent.Event) Script {
	return func(_ context.Context, _ agent.Request, emit func(agent.Event)) error {
		for _, ev := range events {
			emit(ev)
		}
		return nil
	}
}
