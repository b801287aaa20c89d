package stream

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/purpose168/chorus/internal/agent"
	"github.com/purpose168/chorus/internal/message"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func apply(in *Ingestor, events ...agent.Event) {
	for _, ev := range events {
		in.Apply(ev)
	}
}

func TestIngestor_TextAfterToolOpensNewPart(t *testing.T) {
	t.Parallel()

	in := NewIngestor(nil)
	apply(in,
		agent.TextDelta{Content: "先看"},
		agent.TextDelta{Content: "一下"},
		agent.ToolCallStart{ID: "c1", Name: "read_file", Args: map[string]any{"path": "a.go"}},
		agent.ToolResult{ID: "c1", Name: "read_file", Success: true, Output: "package a"},
		agent.TextDelta{Content: "好了"},
	)

	require.Equal(t, []message.Part{
		message.TextContent{Text: "先看一下"},
		message.ToolCall{ID: "c1", Name: "read_file", Args: map[string]any{"path": "a.go"}, Status: message.ToolCallRunning},
		message.ToolResult{ToolCallID: "c1", Name: "read_file", Success: true, Output: "package a"},
		message.TextContent{Text: "好了"},
	}, in.Snapshot())
}

func TestIngestor_ToolCallDedupMergesArgs(t *testing.T) {
	t.Parallel()

	in := NewIngestor(nil)
	apply(in,
		agent.ToolCallStart{ID: "c1", Name: "write_file"},
		agent.ToolCallStart{ID: "c1", Name: "write_file", Args: map[string]any{"path": "x.go", "content": "1"}},
		agent.ToolResult{ID: "c1", Name: "write_file", Success: true},
		agent.ToolResult{ID: "c1", Name: "write_file", Success: true},
	)

	parts := in.Snapshot()
	var calls, results int
	for _, p := range parts {
		switch c := p.(type) {
		case message.ToolCall:
			calls++
			require.Equal(t, map[string]any{"path": "x.go", "content": "1"}, c.Args)
		case message.ToolResult:
			results++
		}
	}
	require.Equal(t, 1, calls)
	require.Equal(t, 2, results)
}

func TestIngestor_ApprovalIsOutOfBand(t *testing.T) {
	t.Parallel()

	in := NewIngestor(nil)
	apply(in,
		agent.ToolApprovalRequired{ApprovalID: "ap1", ToolCallID: "c9", Name: "bash", Args: map[string]any{"command": "rm -rf build"}},
		agent.PathApprovalRequired{ApprovalID: "ap2", Name: "read_file", Path: "/etc/hosts"},
		agent.TextDelta{Content: "继续"},
	)

	require.True(t, in.ResolveApproval("ap1", true))
	require.True(t, in.ResolveApproval("ap2", false))
	require.False(t, in.ResolveApproval("missing", true))

	parts := in.Snapshot()
	require.Equal(t, message.ToolCallApproved, parts[1].(message.ToolCall).Status)
	require.Equal(t, "c9", parts[1].(message.ToolCall).ID)
	require.Equal(t, message.ToolCallRejected, parts[2].(message.ToolCall).Status)
	require.Equal(t, "/etc/hosts", parts[2].(message.ToolCall).Args["path"])
	require.Equal(t, message.TextContent{Text: "继续"}, parts[3])
}

func TestIngestor_ThinkingRenderedAsTrailingParts(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	in := NewIngestor(clock.Now)
	apply(in, agent.Thinking{Content: "读文件"}, agent.ReasoningDelta{Content: "因为"})
	clock.Advance(3 * time.Second)
	apply(in, agent.Thinking{Content: "改代码"}, agent.TextDelta{Content: "完成"}, agent.ReasoningDelta{Content: "所以"})

	parts := in.Snapshot()
	require.Len(t, parts, 3)
	require.Equal(t, message.TextContent{Text: "完成"}, parts[0])
	require.Equal(t, message.ThinkingContent{Steps: []string{"读文件", "改代码"}, Duration: 3 * time.Second}, parts[1])
	require.Equal(t, message.ReasoningContent{Content: "因为所以"}, parts[2])

	clock.Advance(time.Second)
	res := in.Finish(nil, false)
	require.Equal(t, message.ThinkingContent{Steps: []string{"读文件", "改代码"}, Duration: 4 * time.Second, IsComplete: true}, res.Parts[1])
	require.True(t, res.Parts[2].(message.ReasoningContent).IsComplete)
}

func TestIngestor_FinishNoResponse(t *testing.T) {
	t.Parallel()

	in := NewIngestor(nil)
	apply(in, agent.Thinking{Content: "嗯"}, agent.AgentComplete{})
	res := in.Finish(nil, false)
	require.Equal(t, []message.Part{message.TextContent{Text: NoResponseText}}, res.Parts)
	require.False(t, res.HadContent)
}

func TestIngestor_FinishErrorWithoutContent(t *testing.T) {
	t.Parallel()

	in := NewIngestor(nil)
	apply(in, agent.AgentError{Err: errors.New("rate limited")})
	res := in.Finish(nil, false)
	require.Equal(t, []message.Part{message.TextContent{Text: ErrorMarkerPrefix + "rate limited"}}, res.Parts)
	require.EqualError(t, res.Err, "rate limited")
}

func TestIngestor_FinishErrorKeepsPartialContent(t *testing.T) {
	t.Parallel()

	in := NewIngestor(nil)
	apply(in, agent.TextDelta{Content: "部分回答"})
	res := in.Finish(errors.New("连接中断"), false)
	require.Equal(t, []message.Part{message.TextContent{Text: "部分回答"}}, res.Parts)
	require.True(t, res.HadContent)
	require.Error(t, res.Err)

	// 定稿后的事件被忽略
	in.Apply(agent.TextDelta{Content: "迟到"})
	require.Equal(t, []message.Part{message.TextContent{Text: "部分回答"}}, in.Snapshot())
}

func TestIngestor_AbortKeepsParts(t *testing.T) {
	t.Parallel()

	in := NewIngestor(nil)
	apply(in, agent.ToolCallStart{ID: "c1", Name: "bash"})
	res := in.Finish(nil, true)
	require.Len(t, res.Parts, 2)
}

func TestIngestor_UsageAndIterations(t *testing.T) {
	t.Parallel()

	in := NewIngestor(nil)
	require.False(t, in.Apply(agent.TextDelta{Content: "abcd"}))
	require.True(t, in.Apply(agent.IterationComplete{Iteration: 1}))
	in.Apply(agent.IterationComplete{Iteration: 2})
	in.Apply(agent.AgentComplete{Usage: &agent.Usage{PromptTokens: 10, CompletionTokens: 5}})

	res := in.Finish(nil, false)
	require.Equal(t, 2, res.Iterations)
	require.Equal(t, 4, res.OutputChars)
	require.Equal(t, &agent.Usage{PromptTokens: 10, CompletionTokens: 5}, res.Usage)
}

func TestFlusher_CoalescesAndFinalFlush(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	var latest atomic.Int32
	var value atomic.Int32
	f := NewFlusher(20*time.Millisecond, func() {
		calls.Add(1)
		latest.Store(value.Load())
	})

	for i := range 200 {
		value.Store(int32(i + 1))
		f.Mark()
	}
	f.Close()

	require.Equal(t, int32(200), latest.Load())
	require.Less(t, calls.Load(), int32(50))
	require.GreaterOrEqual(t, calls.Load(), int32(1))

	// Close 可重复调用
	f.Close()
}

func TestFlusher_NowAfterCloseIsNoop(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	f := NewFlusher(time.Millisecond, func() { calls.Add(1) })
	f.Close()
	require.Equal(t, int32(1), calls.Load())

	f.Now()
	f.Mark()
	require.Equal(t, int32(1), calls.Load())
}

func TestFlusher_BoundedLatency(t *testing.T) {
	t.Parallel()

	flushed := make(chan struct{}, 8)
	f := NewFlusher(30*time.Millisecond, func() {
		select {
		case flushed <- struct{}{}:
		default:
		}
	})
	defer f.Close()

	f.Mark()
	select {
	case <-flushed:
	case <-time.After(time.Second):
		t.Fatal("标记后未在限定时间内刷新")
	}
}

func TestRateMeter(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	r := NewRateMeter(clock.Now)
	require.Zero(t, r.Rate())

	r.Record(40)
	clock.Advance(50 * time.Millisecond)
	require.Zero(t, r.Rate(), "跨度不足 100ms 不报告")

	clock.Advance(950 * time.Millisecond)
	r.Record(40)
	// 80 字符 / 4 = 20 令牌，跨度 1 秒
	require.InDelta(t, 20.0, r.Rate(), 0.001)

	clock.Advance(1500 * time.Millisecond)
	// 第一个样本移出 2 秒窗口，剩余样本跨度 1.5 秒
	require.InDelta(t, 10.0/1.5, r.Rate(), 0.001)

	r.Reset()
	require.Zero(t, r.Rate())
}

func TestIngestor_TextConcatenationPreserved(t *testing.T) {
	t.Parallel()

	deltas := []string{"一", "二", "", "three ", "四", "五"}
	in := NewIngestor(nil)
	var want string
	for i, d := range deltas {
		want += d
		in.Apply(agent.TextDelta{Content: d})
		switch i % 3 {
		case 0:
			in.Apply(agent.Thinking{Content: "想"})
		case 1:
			id := string(rune('a' + i))
			in.Apply(agent.ToolCallStart{ID: id, Name: "grep"})
			in.Apply(agent.ToolResult{ID: id, Name: "grep", Success: true})
		}
	}
	res := in.Finish(nil, false)

	var got string
	for _, p := range res.Parts {
		if tc, ok := p.(message.TextContent); ok {
			got += tc.Text
		}
	}
	require.Equal(t, want, got)
}
