package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/purpose168/chorus/internal/agent"
	"github.com/purpose168/chorus/internal/env"
	"github.com/purpose168/chorus/internal/provider"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CHORUS_GLOBAL_CONFIG", filepath.Join(dir, "config"))
	t.Setenv("CHORUS_GLOBAL_DATA", filepath.Join(dir, "data"))
	t.Setenv("CATWALK_URL", "")
	return dir
}

func writeJSON(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)
	wd := t.TempDir()

	cfg, err := load(wd, "", env.NewFromMap(nil))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(wd, ".chorus"), cfg.Options.DataDirectory)
	require.Equal(t, 25, cfg.Options.MaxIterations)
	require.Equal(t, agent.ApproveUnsafe, cfg.Options.EditApproval)
	require.Equal(t, "baseline", cfg.Options.Estimator)
	require.Equal(t, provider.DefaultCatwalkURL, cfg.Options.CatwalkURL)
	require.Equal(t, 50*time.Millisecond, cfg.FlushInterval())
	require.Zero(t, cfg.ProjectSizeTTL())
	require.Equal(t, wd, cfg.WorkingDir())
}

func TestLoad_MergesGlobalAndProject(t *testing.T) {
	dir := isolate(t)
	writeJSON(t, filepath.Join(dir, "config", "chorus.json"), `{
		"options": {"max_iterations": 10, "debug": true},
		"providers": {"openai": {"api_key": "global-key"}, "groq": {"disable": true}}
	}`)
	wd := t.TempDir()
	writeJSON(t, filepath.Join(wd, ".chorus.json"), `{
		"options": {"max_iterations": 40, "flush_interval_ms": 120},
		"providers": {"openai": {"base_url": "http://localhost:9000/v1"}}
	}`)

	cfg, err := load(wd, "", env.NewFromMap(nil))
	require.NoError(t, err)
	require.Equal(t, 40, cfg.Options.MaxIterations)
	require.True(t, cfg.Options.Debug)
	require.Equal(t, 120*time.Millisecond, cfg.FlushInterval())

	settings := cfg.ProviderSettings()
	require.Equal(t, "global-key", settings["openai"].APIKey)
	require.Equal(t, "http://localhost:9000/v1", settings["openai"].BaseURL)
	require.True(t, settings["groq"].Disabled)
}

func TestLoad_ExpandsVariables(t *testing.T) {
	isolate(t)
	wd := t.TempDir()
	writeJSON(t, filepath.Join(wd, "chorus.json"), `{
		"providers": {
			"openai": {"api_key": "$OPENAI_API_KEY"},
			"ollama": {"base_url": "http://${OLLAMA_HOST}/v1"},
			"xai": {"api_key": "$XAI_API_KEY"}
		}
	}`)
	writeJSON(t, filepath.Join(wd, ".env"), "XAI_API_KEY=from-dotenv\nOPENAI_API_KEY=shadowed\n")

	cfg, err := load(wd, "", env.NewFromMap(map[string]string{
		"OPENAI_API_KEY": "sk-test",
		"OLLAMA_HOST":    "127.0.0.1:11434",
	}))
	require.NoError(t, err)
	require.Equal(t, "sk-test", cfg.Providers["openai"].APIKey)
	require.Equal(t, "http://127.0.0.1:11434/v1", cfg.Providers["ollama"].BaseURL)
	require.Equal(t, "from-dotenv", cfg.Providers["xai"].APIKey)
}

func TestLoad_InvalidJSON(t *testing.T) {
	isolate(t)
	wd := t.TempDir()
	writeJSON(t, filepath.Join(wd, "chorus.json"), `{"options": `)

	_, err := load(wd, "", env.NewFromMap(nil))
	require.Error(t, err)
}

func TestLoad_DataDirOverride(t *testing.T) {
	isolate(t)
	wd := t.TempDir()
	abs := filepath.Join(t.TempDir(), "state")

	cfg, err := load(wd, abs, env.NewFromMap(nil))
	require.NoError(t, err)
	require.Equal(t, abs, cfg.Options.DataDirectory)
}

func TestSetConfigField(t *testing.T) {
	dir := isolate(t)
	cfg, err := load(t.TempDir(), "", env.NewFromMap(nil))
	require.NoError(t, err)

	require.False(t, cfg.HasConfigField("providers.openai.disable"))
	require.NoError(t, cfg.DisableProvider("openai", true))
	require.True(t, cfg.HasConfigField("providers.openai.disable"))
	require.True(t, cfg.Providers["openai"].Disable)

	data, err := os.ReadFile(filepath.Join(dir, "data", "chorus.json"))
	require.NoError(t, err)
	require.JSONEq(t, `{"providers":{"openai":{"disable":true}}}`, string(data))

	require.NoError(t, cfg.RemoveConfigField("providers.openai"))
	require.False(t, cfg.HasConfigField("providers.openai.disable"))
}

func TestSchema(t *testing.T) {
	t.Parallel()

	s := Schema()
	require.NotNil(t, s)
	require.Equal(t, "chorus configuration", s.Title)
}
