package provider

import (
	"charm.land/catwalk/pkg/catwalk"
)

// WireFormat 请求的线路格式
type WireFormat string

const (
	WireChatCompletions WireFormat = "chat_completions"
	WireResponses       WireFormat = "responses"
	WireMessages        WireFormat = "messages"
)

// AuthStyle 凭据的传递方式
type AuthStyle string

const (
	AuthBearer AuthStyle = "bearer"
	AuthAPIKey AuthStyle = "x-api-key"
	AuthNone   AuthStyle = "none"
)

// Info 提供商注册表条目
type Info struct {
	ID              string
	Name            string
	BaseURL         string
	WireFormat      WireFormat
	Auth            AuthStyle
	SupportsListing bool
	// ProbePath 校验密钥时请求的路径，相对 BaseURL
	ProbePath string
	// ProbeModel 不支持列表的提供商用于最小生成调用的模型
	ProbeModel string
	// CatwalkID 在 catwalk 数据库中的 ID，为空表示使用本地补充目录
	CatwalkID catwalk.InferenceProvider
}

// RequiresKey 报告该提供商是否需要凭据
func (i Info) RequiresKey() bool {
	return i.Auth != AuthNone
}

// Local 报告是否为本地无凭据的提供商
func (i Info) Local() bool {
	return !i.RequiresKey()
}

var defaultRegistry = []Info{
	{
		ID:              "openai",
		Name:            "OpenAI",
		BaseURL:         "https://api.openai.com/v1",
		WireFormat:      WireChatCompletions,
		Auth:            AuthBearer,
		SupportsListing: true,
		ProbePath:       "/models",
		CatwalkID:       catwalk.InferenceProviderOpenAI,
	},
	{
		ID:              "anthropic",
		Name:            "Anthropic",
		BaseURL:         "https://api.anthropic.com/v1",
		WireFormat:      WireMessages,
		Auth:            AuthAPIKey,
		SupportsListing: true,
		ProbePath:       "/models",
		CatwalkID:       catwalk.InferenceProviderAnthropic,
	},
	{
		ID:              "openrouter",
		Name:            "OpenRouter",
		BaseURL:         "https://openrouter.ai/api/v1",
		WireFormat:      WireChatCompletions,
		Auth:            AuthBearer,
		SupportsListing: true,
		ProbePath:       "/credits",
		CatwalkID:       catwalk.InferenceProviderOpenRouter,
	},
	{
		ID:              "deepseek",
		Name:            "DeepSeek",
		BaseURL:         "https://api.deepseek.com/v1",
		WireFormat:      WireChatCompletions,
		Auth:            AuthBearer,
		SupportsListing: true,
		ProbePath:       "/models",
		CatwalkID:       catwalk.InferenceProvider("deepseek"),
	},
	{
		ID:              "groq",
		Name:            "Groq",
		BaseURL:         "https://api.groq.com/openai/v1",
		WireFormat:      WireChatCompletions,
		Auth:            AuthBearer,
		SupportsListing: true,
		ProbePath:       "/models",
		CatwalkID:       catwalk.InferenceProvider("groq"),
	},
	{
		ID:              "xai",
		Name:            "xAI",
		BaseURL:         "https://api.x.ai/v1",
		WireFormat:      WireChatCompletions,
		Auth:            AuthBearer,
		SupportsListing: true,
		ProbePath:       "/models",
		CatwalkID:       catwalk.InferenceProvider("xai"),
	},
	{
		ID:         "zai",
		Name:       "Z.AI",
		BaseURL:    "https://api.z.ai/api/paas/v4",
		WireFormat: WireChatCompletions,
		Auth:       AuthBearer,
		ProbeModel: "glm-4.5-air",
		CatwalkID:  catwalk.InferenceProviderZAI,
	},
	{
		ID:              "ollama",
		Name:            "Ollama",
		BaseURL:         "http://localhost:11434/v1",
		WireFormat:      WireChatCompletions,
		Auth:            AuthNone,
		SupportsListing: true,
		ProbePath:       "/models",
	},
	{
		ID:              "lmstudio",
		Name:            "LM Studio",
		BaseURL:         "http://localhost:1234/v1",
		WireFormat:      WireChatCompletions,
		Auth:            AuthNone,
		SupportsListing: true,
		ProbePath:       "/models",
	},
}

// Registry 返回内置注册表的副本
func Registry() []Info {
	out := make([]Info, len(defaultRegistry))
	copy(out, defaultRegistry)
	return out
}

// ModelOverride 少数模型需要与其提供商默认值不同的端点、格式或名称
type ModelOverride struct {
	BaseURL     string
	WireFormat  WireFormat
	DisplayName string
}

var defaultOverrides = map[string]ModelOverride{
	// GLM 编码套餐走独立端点
	"glm-4.6": {
		BaseURL:     "https://api.z.ai/api/coding/paas/v4",
		DisplayName: "GLM-4.6 (Coding Plan)",
	},
	"glm-4.5": {
		BaseURL:     "https://api.z.ai/api/coding/paas/v4",
		DisplayName: "GLM-4.5 (Coding Plan)",
	},
	"gpt-5-codex":       {WireFormat: WireResponses},
	"codex-mini-latest": {WireFormat: WireResponses},
	"o3-pro":            {WireFormat: WireResponses},
}

// defaultReserved 仅允许由指定提供商提供的模型 ID
var defaultReserved = map[string]string{
	"glm-4.6":          "zai",
	"glm-4.5":          "zai",
	"deepseek-chat":    "deepseek",
	"deepseek-reasoner": "deepseek",
	"grok-code-fast-1": "xai",
}
