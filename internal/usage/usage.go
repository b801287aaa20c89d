// Package usage 按会话与全局累计令牌用量和估算费用。
package usage

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/purpose168/chorus/internal/store"
)

// maxTrackedTurns 每个会话保留用于对账的最近轮次数
const maxTrackedTurns = 32

// TokenUsage 令牌用量与估算费用
type TokenUsage struct {
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	EstimatedCost    float64 `json:"estimated_cost"`
}

// Add 累加另一份用量
func (u *TokenUsage) Add(o TokenUsage) {
	u.PromptTokens += o.PromptTokens
	u.CompletionTokens += o.CompletionTokens
	u.TotalTokens += o.TotalTokens
	u.EstimatedCost += o.EstimatedCost
}

// Pricing 每百万令牌的价格
type Pricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// Cost 计算给定令牌数的费用
func (p Pricing) Cost(prompt, completion int64) float64 {
	return float64(prompt)*p.InputPerMillion/1e6 + float64(completion)*p.OutputPerMillion/1e6
}

// PricingSource 查询模型定价
type PricingSource interface {
	Pricing(provider, model string) (Pricing, bool)
}

// PricingFunc 将普通函数适配为 PricingSource
type PricingFunc func(provider, model string) (Pricing, bool)

func (f PricingFunc) Pricing(provider, model string) (Pricing, bool) { return f(provider, model) }

// Authoritative 运行时报告的权威用量
type Authoritative struct {
	PromptTokens     int64
	CompletionTokens int64
}

// Input 一次用量记录
// 提供 Authoritative 时按原样使用，否则按字符数估算
type Input struct {
	TurnID        string
	SessionID     string
	Provider      string
	Model         string
	Authoritative *Authoritative
	InputChars    int
	OutputChars   int
}

// Persister 即发即弃的持久化写入
type Persister interface {
	SetJSON(key string, v any)
	Delete(key string)
}

type sessionRecord struct {
	usage TokenUsage
	turns map[string]TokenUsage
	order []string
}

// Tracker 令牌用量跟踪器
type Tracker struct {
	store   store.Store
	persist Persister
	pricing PricingSource
	display Estimator

	mu       sync.Mutex
	sessions map[string]*sessionRecord
	global   TokenUsage
}

// NewTracker 创建跟踪器；display 仅用于界面展示的估算
func NewTracker(s store.Store, p Persister, pricing PricingSource, display Estimator) *Tracker {
	if display == nil {
		display = Baseline{}
	}
	return &Tracker{
		store:    s,
		persist:  p,
		pricing:  pricing,
		display:  display,
		sessions: make(map[string]*sessionRecord),
	}
}

// Track 记录一次轮次的用量并返回会话的最新累计值
//
// 同一 TurnID 再次记录时以新值替换旧的贡献，不重复累加；
// 若新值低于已记录值，差额按零处理，会话累计永不减少。
func (t *Tracker) Track(ctx context.Context, in Input) TokenUsage {
	contribution := t.compute(in)

	rec := t.record(ctx, in.SessionID)

	t.mu.Lock()
	prev := rec.turns[in.TurnID]
	delta := TokenUsage{
		PromptTokens:     max(contribution.PromptTokens-prev.PromptTokens, 0),
		CompletionTokens: max(contribution.CompletionTokens-prev.CompletionTokens, 0),
		EstimatedCost:    max(contribution.EstimatedCost-prev.EstimatedCost, 0),
	}
	delta.TotalTokens = delta.PromptTokens + delta.CompletionTokens

	effective := prev
	effective.Add(delta)
	if in.TurnID != "" {
		if _, seen := rec.turns[in.TurnID]; !seen {
			rec.order = append(rec.order, in.TurnID)
			if len(rec.order) > maxTrackedTurns {
				delete(rec.turns, rec.order[0])
				rec.order = rec.order[1:]
			}
		}
		rec.turns[in.TurnID] = effective
	}

	rec.usage.Add(delta)
	t.global.Add(delta)
	sessionUsage, global := rec.usage, t.global
	t.mu.Unlock()

	if t.persist != nil {
		t.persist.SetJSON(store.UsageKey(in.SessionID), sessionUsage)
		t.persist.SetJSON(store.GlobalUsageKey, global)
	}
	slog.Debug("记录令牌用量",
		"session_id", in.SessionID,
		"turn_id", in.TurnID,
		"authoritative", in.Authoritative != nil,
		"prompt_tokens", delta.PromptTokens,
		"completion_tokens", delta.CompletionTokens,
	)
	return sessionUsage
}

func (t *Tracker) compute(in Input) TokenUsage {
	var prompt, completion int64
	if in.Authoritative != nil {
		prompt, completion = in.Authoritative.PromptTokens, in.Authoritative.CompletionTokens
	} else {
		prompt, completion = EstimateChars(in.InputChars), EstimateChars(in.OutputChars)
	}
	u := TokenUsage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
	if t.pricing != nil {
		if p, ok := t.pricing.Pricing(in.Provider, in.Model); ok {
			u.EstimatedCost = p.Cost(prompt, completion)
		}
	}
	return u
}

// record 返回会话记录，首次访问时从存储加载
func (t *Tracker) record(ctx context.Context, sessionID string) *sessionRecord {
	t.mu.Lock()
	rec, ok := t.sessions[sessionID]
	t.mu.Unlock()
	if ok {
		return rec
	}

	loaded := t.load(ctx, store.UsageKey(sessionID))

	t.mu.Lock()
	defer t.mu.Unlock()
	if rec, ok := t.sessions[sessionID]; ok {
		return rec
	}
	rec = &sessionRecord{usage: loaded, turns: make(map[string]TokenUsage)}
	t.sessions[sessionID] = rec
	return rec
}

func (t *Tracker) load(ctx context.Context, key string) TokenUsage {
	if t.store == nil {
		return TokenUsage{}
	}
	u, err := store.GetJSON[TokenUsage](ctx, t.store, key)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		slog.Warn("读取令牌用量失败", "key", key, "error", err)
	}
	return u
}

// LoadGlobal 从存储恢复全局累计
func (t *Tracker) LoadGlobal(ctx context.Context) {
	u := t.load(ctx, store.GlobalUsageKey)
	t.mu.Lock()
	defer t.mu.Unlock()
	if u.TotalTokens > t.global.TotalTokens {
		t.global = u
	}
}

// Session 返回会话累计用量
func (t *Tracker) Session(ctx context.Context, sessionID string) TokenUsage {
	rec := t.record(ctx, sessionID)
	t.mu.Lock()
	defer t.mu.Unlock()
	return rec.usage
}

// Global 返回全局累计用量
func (t *Tracker) Global() TokenUsage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.global
}

// Delete 删除会话的用量记录，全局累计保持不变
func (t *Tracker) Delete(sessionID string) {
	t.mu.Lock()
	delete(t.sessions, sessionID)
	t.mu.Unlock()
	if t.persist != nil {
		t.persist.Delete(store.UsageKey(sessionID))
	}
}

// EstimateDisplay 使用展示用估算器估算文本令牌数
func (t *Tracker) EstimateDisplay(text string) int64 {
	return t.display.Estimate(text)
}
