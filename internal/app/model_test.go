package app

import (
	"testing"

	"github.com/purpose168/chorus/internal/provider"
	"github.com/stretchr/testify/require"
)

func knownProviders(ids ...string) func(string) bool {
	return func(id string) bool {
		for _, k := range ids {
			if k == id {
				return true
			}
		}
		return false
	}
}

func TestParseModelStr(t *testing.T) {
	t.Parallel()

	known := knownProviders("openai", "openrouter")
	tests := []struct {
		name            string
		modelStr        string
		expectedFilter  string
		expectedModelID string
	}{
		{"无斜杠的简单模型", "gpt-4o", "", "gpt-4o"},
		{"有效的提供商和模型", "openai/gpt-4o", "openai", "gpt-4o"},
		{"第一段不是提供商", "meta-llama/llama-3", "", "meta-llama/llama-3"},
		{"提供商加带斜杠的模型", "openrouter/meta-llama/llama-3", "openrouter", "meta-llama/llama-3"},
		{"空字符串", "", "", ""},
		{"尾部斜杠", "openai/", "openai", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			filter, id := parseModelStr(known, tt.modelStr)
			require.Equal(t, tt.expectedFilter, filter)
			require.Equal(t, tt.expectedModelID, id)
		})
	}
}

func TestFindModels(t *testing.T) {
	t.Parallel()

	models := []provider.ModelInfo{
		{ID: "gpt-4o", Provider: "openai"},
		{ID: "gpt-4o", Provider: "openrouter"},
		{ID: "llama3.2", Provider: "ollama"},
	}

	t.Run("唯一匹配", func(t *testing.T) {
		t.Parallel()
		m, err := validateMatches(findModels(models, "", "llama3.2"), "llama3.2")
		require.NoError(t, err)
		require.Equal(t, "ollama", m.Provider)
	})

	t.Run("多个提供商需要指定", func(t *testing.T) {
		t.Parallel()
		_, err := validateMatches(findModels(models, "", "gpt-4o"), "gpt-4o")
		require.ErrorContains(t, err, "openai")
		require.ErrorContains(t, err, "openrouter")
	})

	t.Run("按提供商过滤", func(t *testing.T) {
		t.Parallel()
		m, err := validateMatches(findModels(models, "openrouter", "gpt-4o"), "gpt-4o")
		require.NoError(t, err)
		require.Equal(t, "openrouter", m.Provider)
	})

	t.Run("未找到", func(t *testing.T) {
		t.Parallel()
		_, err := validateMatches(findModels(models, "", "claude"), "claude")
		require.ErrorContains(t, err, "未找到")
	})
}
