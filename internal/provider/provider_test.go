package provider

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/purpose168/chorus/internal/agent"
	"github.com/purpose168/chorus/internal/store"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   Category
	}{
		{"未授权", 401, `{"error":{"message":"bad key"}}`, CategoryAuth},
		{"需要付费", 402, ``, CategoryBilling},
		{"限流", 429, `{"error":{"message":"insufficient_quota"}}`, CategoryRateLimit},
		{"服务端错误", 503, `upstream down`, CategoryServer},
		{"余额关键字", 400, `{"error":{"message":"Insufficient balance"}}`, CategoryBilling},
		{"过载关键字", 400, `{"message":"model is overloaded"}`, CategoryServer},
		{"限流关键字", 400, `{"error":"Rate limit exceeded"}`, CategoryRateLimit},
		{"密钥关键字", 403, `{"error":{"message":"Invalid API key provided"}}`, CategoryAuth},
		{"未知", 400, `{"error":{"message":"bad request"}}`, CategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Classify(tt.status, []byte(tt.body))
			require.Equal(t, tt.want, got.Category)
			require.Equal(t, tt.status, got.StatusCode)
			require.NotEmpty(t, got.Hint())
		})
	}
}

func TestClassify_ExtractsMessage(t *testing.T) {
	t.Parallel()

	got := Classify(429, []byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	require.Equal(t, "slow down", got.Message)
	require.Contains(t, got.Error(), "HTTP 429")
}

func TestClassifyError(t *testing.T) {
	t.Parallel()

	t.Run("运行时错误", func(t *testing.T) {
		t.Parallel()
		err := fmt.Errorf("turn: %w", &agent.RuntimeError{StatusCode: 401, Body: `{"error":{"message":"no"}}`})
		got := ClassifyError("openai", err)
		require.Equal(t, CategoryAuth, got.Category)
		require.Equal(t, "openai", got.Provider)
	})

	t.Run("网络错误", func(t *testing.T) {
		t.Parallel()
		err := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
		got := ClassifyError("ollama", err)
		require.Equal(t, CategoryNetwork, got.Category)
	})

	t.Run("已分类错误", func(t *testing.T) {
		t.Parallel()
		got := ClassifyError("x", &Error{Category: CategoryBilling})
		require.Equal(t, CategoryBilling, got.Category)
		require.Equal(t, "x", got.Provider)
	})

	t.Run("nil", func(t *testing.T) {
		t.Parallel()
		require.Nil(t, ClassifyError("x", nil))
	})
}

func testRegistry(p1URL, p2URL string) []Info {
	return []Info{
		{ID: "p1", Name: "Alpha", BaseURL: p1URL, WireFormat: WireChatCompletions, Auth: AuthBearer, SupportsListing: true, ProbePath: "/models"},
		{ID: "p2", Name: "Beta", BaseURL: p2URL, WireFormat: WireChatCompletions, Auth: AuthBearer, SupportsListing: true, ProbePath: "/models"},
		{ID: "static", Name: "Gamma", BaseURL: "http://127.0.0.1:1", WireFormat: WireMessages, Auth: AuthAPIKey},
	}
}

func modelsHandler(t *testing.T, wantKey, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+wantKey {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
			return
		}
		require.Equal(t, "/models", r.URL.Path)
		_, _ = w.Write([]byte(body))
	}
}

func TestGetModels_ReservedModelExcluded(t *testing.T) {
	t.Parallel()

	p1 := httptest.NewServer(modelsHandler(t, "k1", `{"data":[{"id":"shared"},{"id":"exclusive-1"}]}`))
	defer p1.Close()
	p2 := httptest.NewServer(modelsHandler(t, "k2", `{"data":[{"id":"exclusive-1"},{"id":"b-model","pricing":{"prompt":"0","completion":"0"}}]}`))
	defer p2.Close()

	r := NewResolver(
		WithRegistry(testRegistry(p1.URL, p2.URL)),
		WithReserved(map[string]string{"exclusive-1": "p1"}),
		WithOverrides(map[string]ModelOverride{}),
		WithSettings(map[string]Settings{"p1": {APIKey: "k1"}, "p2": {APIKey: "k2"}}),
	)

	models, err := r.GetModels(t.Context())
	require.NoError(t, err)

	var got []string
	for _, m := range models {
		got = append(got, m.Provider+"/"+m.ID)
	}
	require.Equal(t, []string{"p2/b-model", "p1/exclusive-1", "p1/shared"}, got)
}

func TestGetModels_FallsBackOnFailure(t *testing.T) {
	t.Parallel()

	p1 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer p1.Close()
	p2 := httptest.NewServer(modelsHandler(t, "k2", `{"data":[{"id":"b-model"}]}`))
	defer p2.Close()

	r := NewResolver(
		WithRegistry(testRegistry(p1.URL, p2.URL)),
		WithReserved(map[string]string{}),
		WithSettings(map[string]Settings{"p1": {APIKey: "k1"}, "p2": {APIKey: "k2"}}),
	)

	models, err := r.GetModels(t.Context())
	require.NoError(t, err)
	require.Len(t, models, 1)
	require.Equal(t, "b-model", models[0].ID)
	require.Equal(t, SourceRemote, models[0].Source)
}

func TestSortModels(t *testing.T) {
	t.Parallel()

	models := []ModelInfo{
		{ID: "z", ProviderName: "Alpha"},
		{ID: "a", ProviderName: "Beta"},
		{ID: "free", ProviderName: "Zed", Free: true},
		{ID: "b", ProviderName: "alpha"},
	}
	SortModels(models)

	var got []string
	for _, m := range models {
		got = append(got, m.ID)
	}
	require.Equal(t, []string{"free", "b", "z", "a"}, got)
}

func TestResolve(t *testing.T) {
	t.Parallel()

	mem := store.NewMemory()
	require.NoError(t, mem.Set(t.Context(), store.APIKeyKey("zai"), []byte("stored-key")))

	r := NewResolver(WithStore(mem))

	t.Run("覆盖表", func(t *testing.T) {
		pc, mc, err := r.Resolve(t.Context(), "glm-4.6", "zai")
		require.NoError(t, err)
		require.Equal(t, "https://api.z.ai/api/coding/paas/v4", pc.BaseURL)
		require.Equal(t, "GLM-4.6 (Coding Plan)", mc.Name)
		require.Equal(t, "stored-key", pc.APIKey)
		require.Equal(t, "Bearer stored-key", pc.Headers().Get("Authorization"))
	})

	t.Run("线路格式覆盖", func(t *testing.T) {
		pc, mc, err := r.Resolve(t.Context(), "gpt-5-codex", "openai")
		require.NoError(t, err)
		require.Equal(t, WireResponses, pc.WireFormat)
		require.Equal(t, WireResponses, mc.WireFormat)
		require.Equal(t, "https://api.openai.com/v1", pc.BaseURL)
	})

	t.Run("默认值", func(t *testing.T) {
		pc, _, err := r.Resolve(t.Context(), "claude-sonnet-4", "anthropic")
		require.NoError(t, err)
		require.Equal(t, WireMessages, pc.WireFormat)
		require.Equal(t, AuthAPIKey, pc.Auth)
	})

	t.Run("未知提供商", func(t *testing.T) {
		_, _, err := r.Resolve(t.Context(), "m", "nope")
		require.ErrorIs(t, err, ErrUnknownProvider)
	})

	t.Run("缺少凭据", func(t *testing.T) {
		_, _, err := r.Endpoint(t.Context(), "gpt-4o", "openai")
		require.ErrorIs(t, err, ErrMissingAPIKey)
	})

	t.Run("本地无需凭据", func(t *testing.T) {
		_, _, err := r.Endpoint(t.Context(), "llama3.1:8b", "ollama")
		require.NoError(t, err)
	})
}

func TestResolve_BaseURLSetting(t *testing.T) {
	t.Parallel()

	r := NewResolver(WithSettings(map[string]Settings{"ollama": {BaseURL: "http://gpu-box:11434/v1/"}}))
	pc, _, err := r.Resolve(t.Context(), "llama3.1:8b", "ollama")
	require.NoError(t, err)
	require.Equal(t, "http://gpu-box:11434/v1", pc.BaseURL)
}

func TestValidateAPIKey(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(modelsHandler(t, "good", `{"data":[]}`))
	t.Cleanup(srv.Close)

	registry := testRegistry(srv.URL, srv.URL)

	t.Run("有效", func(t *testing.T) {
		t.Parallel()
		r := NewResolver(WithRegistry(registry), WithSettings(map[string]Settings{"p1": {APIKey: "good"}}))
		require.NoError(t, r.ValidateAPIKey(t.Context(), "p1"))
	})

	t.Run("无效", func(t *testing.T) {
		t.Parallel()
		r := NewResolver(WithRegistry(registry), WithSettings(map[string]Settings{"p1": {APIKey: "bad"}}))
		err := r.ValidateAPIKey(t.Context(), "p1")
		var perr *Error
		require.ErrorAs(t, err, &perr)
		require.Equal(t, CategoryAuth, perr.Category)
	})

	t.Run("缺少凭据", func(t *testing.T) {
		t.Parallel()
		r := NewResolver(WithRegistry(registry))
		require.ErrorIs(t, r.ValidateAPIKey(t.Context(), "p2"), ErrMissingAPIKey)
	})

	t.Run("本地连通性", func(t *testing.T) {
		t.Parallel()
		local := []Info{{ID: "local", BaseURL: srv.URL, Auth: AuthNone, ProbePath: "/models"}}
		r := NewResolver(WithRegistry(local))
		require.NoError(t, r.ValidateAPIKey(t.Context(), "local"))
	})

	t.Run("本地不可达", func(t *testing.T) {
		t.Parallel()
		local := []Info{{ID: "local", BaseURL: "http://127.0.0.1:1", Auth: AuthNone}}
		r := NewResolver(WithRegistry(local))
		var perr *Error
		require.ErrorAs(t, r.ValidateAPIKey(t.Context(), "local"), &perr)
		require.Equal(t, CategoryNetwork, perr.Category)
	})
}
