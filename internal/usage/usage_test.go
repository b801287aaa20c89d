package usage

import (
	"sync"
	"testing"

	"github.com/purpose168/chorus/internal/store"
	"github.com/stretchr/testify/require"
)

func testPricing() PricingSource {
	return PricingFunc(func(provider, model string) (Pricing, bool) {
		if provider == "openai" && model == "gpt-4o" {
			return Pricing{InputPerMillion: 2.5, OutputPerMillion: 10}, true
		}
		return Pricing{}, false
	})
}

func newTestTracker(t *testing.T) (*Tracker, *store.Memory, *store.Writer) {
	t.Helper()
	mem := store.NewMemory()
	w := store.NewWriter(mem)
	t.Cleanup(w.Close)
	return NewTracker(mem, w, testPricing(), nil), mem, w
}

func TestTrack_EstimatesFromChars(t *testing.T) {
	t.Parallel()
	tr, _, _ := newTestTracker(t)

	got := tr.Track(t.Context(), Input{
		TurnID:      "t1",
		SessionID:   "s1",
		Provider:    "openai",
		Model:       "gpt-4o",
		InputChars:  401,
		OutputChars: 40,
	})
	require.Equal(t, int64(101), got.PromptTokens)
	require.Equal(t, int64(10), got.CompletionTokens)
	require.Equal(t, int64(111), got.TotalTokens)
	require.InDelta(t, 101*2.5/1e6+10*10/1e6, got.EstimatedCost, 1e-12)
}

// 同一轮次的权威用量替换先前的估算，不重复累加
func TestTrack_AuthoritativeReplacesEstimate(t *testing.T) {
	t.Parallel()
	tr, _, _ := newTestTracker(t)
	ctx := t.Context()

	tr.Track(ctx, Input{TurnID: "t1", SessionID: "s1", InputChars: 400, OutputChars: 400})
	got := tr.Track(ctx, Input{
		TurnID:        "t1",
		SessionID:     "s1",
		Authoritative: &Authoritative{PromptTokens: 150, CompletionTokens: 120},
	})

	require.Equal(t, int64(150), got.PromptTokens)
	require.Equal(t, int64(120), got.CompletionTokens)
	require.Equal(t, int64(270), tr.Global().TotalTokens)
}

func TestTrack_NeverDecreases(t *testing.T) {
	t.Parallel()
	tr, _, _ := newTestTracker(t)
	ctx := t.Context()

	first := tr.Track(ctx, Input{TurnID: "t1", SessionID: "s1", InputChars: 4000, OutputChars: 40})
	second := tr.Track(ctx, Input{
		TurnID:        "t1",
		SessionID:     "s1",
		Authoritative: &Authoritative{PromptTokens: 10, CompletionTokens: 50},
	})

	require.Equal(t, first.PromptTokens, second.PromptTokens)
	require.Equal(t, int64(50), second.CompletionTokens)
	require.GreaterOrEqual(t, second.TotalTokens, first.TotalTokens)
}

func TestTrack_ConcurrentSessions(t *testing.T) {
	t.Parallel()
	tr, _, _ := newTestTracker(t)
	ctx := t.Context()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Go(func() {
			sid := "a"
			if i%2 == 1 {
				sid = "b"
			}
			tr.Track(ctx, Input{TurnID: string(rune('A' + i)), SessionID: sid, InputChars: 4, OutputChars: 4})
		})
	}
	wg.Wait()

	require.Equal(t, int64(20), tr.Session(ctx, "a").TotalTokens)
	require.Equal(t, int64(20), tr.Session(ctx, "b").TotalTokens)
	require.Equal(t, int64(40), tr.Global().TotalTokens)
}

func TestTrack_PersistsAndReloads(t *testing.T) {
	t.Parallel()
	tr, mem, w := newTestTracker(t)
	ctx := t.Context()

	tr.Track(ctx, Input{TurnID: "t1", SessionID: "s1", Authoritative: &Authoritative{PromptTokens: 7, CompletionTokens: 3}})
	require.NoError(t, w.Flush(ctx))

	reloaded := NewTracker(mem, nil, nil, nil)
	reloaded.LoadGlobal(ctx)
	require.Equal(t, int64(10), reloaded.Session(ctx, "s1").TotalTokens)
	require.Equal(t, int64(10), reloaded.Global().TotalTokens)

	tr.Delete("s1")
	require.NoError(t, w.Flush(ctx))
	_, err := mem.Get(ctx, store.UsageKey("s1"))
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestEstimators(t *testing.T) {
	t.Parallel()

	require.Equal(t, int64(0), Baseline{}.Estimate(""))
	require.Equal(t, int64(3), Baseline{}.Estimate("fix the bug"))

	cases := map[string]int64{
		"":            0,
		"12345678":    3,
		"getUserName": 3,
		"user_name":   2,
		"hello world": 2,
		"你好世界":        4,
		"   ":         1,
	}
	for in, want := range cases {
		require.Equal(t, want, Fine{}.Estimate(in), "输入 %q", in)
	}

	require.IsType(t, Fine{}, NewEstimator("fine"))
	require.IsType(t, Baseline{}, NewEstimator(""))
}
