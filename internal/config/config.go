// Package config 加载并合并全局与项目级 JSON 配置。
package config

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/purpose168/chorus/internal/agent"
	"github.com/purpose168/chorus/internal/provider"
	"github.com/purpose168/chorus/internal/stream"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	appName = "chorus"

	defaultDataDirectory = "." + appName
	defaultMaxIterations = 25
	defaultEstimator     = "baseline"
)

// ProviderConfig 单个提供商的用户配置
type ProviderConfig struct {
	BaseURL string `json:"base_url,omitempty" jsonschema:"description=Override the provider base URL,format=uri,example=http://localhost:11434/v1"`
	APIKey  string `json:"api_key,omitempty" jsonschema:"description=API key for the provider; $VAR references are expanded,example=$OPENAI_API_KEY"`
	Disable bool   `json:"disable,omitempty" jsonschema:"description=Hide this provider,default=false"`
}

// Options 通用选项
type Options struct {
	DataDirectory             string                 `json:"data_directory,omitempty" jsonschema:"description=Directory for storing application data (relative to working directory),default=.chorus,example=.chorus"`
	Debug                     bool                   `json:"debug,omitempty" jsonschema:"description=Enable debug logging,default=false"`
	FlushIntervalMS           int                    `json:"flush_interval_ms,omitempty" jsonschema:"description=Minimum milliseconds between streaming UI flushes,default=50,minimum=1"`
	MaxIterations             int                    `json:"max_iterations,omitempty" jsonschema:"description=Maximum agent loop iterations per turn,default=25,minimum=1"`
	EditApproval              agent.EditApprovalMode `json:"edit_approval,omitempty" jsonschema:"description=When file edits require approval,enum=always,enum=never,enum=unsafe,default=unsafe"`
	Estimator                 string                 `json:"estimator,omitempty" jsonschema:"description=Token estimator used for display,enum=baseline,enum=fine,enum=tiktoken,default=baseline"`
	ProjectSizeTTLSeconds     int                    `json:"project_size_ttl_seconds,omitempty" jsonschema:"description=Seconds a project size estimate stays fresh,default=300"`
	ContextPaths              []string               `json:"context_paths,omitempty" jsonschema:"description=Extra rule files included in the system prompt,example=AGENTS.md,example=.cursor/rules/*.mdc"`
	SkillDirs                 []string               `json:"skill_dirs,omitempty" jsonschema:"description=Extra directories searched for SKILL.md skills,example=.github/skills"`
	DisableProviderAutoUpdate bool                   `json:"disable_provider_auto_update,omitempty" jsonschema:"description=Use the embedded model catalog only,default=false"`
	DisableMetrics            bool                   `json:"disable_metrics,omitempty" jsonschema:"description=Disable sending metrics,default=false"`
	CatwalkURL                string                 `json:"catwalk_url,omitempty" jsonschema:"description=Model catalog service URL,format=uri"`
}

// Config 合并后的配置
type Config struct {
	Schema    string                    `json:"$schema,omitempty"`
	Options   *Options                  `json:"options,omitempty" jsonschema:"description=General application options"`
	Providers map[string]ProviderConfig `json:"providers,omitempty" jsonschema:"description=Provider overrides keyed by provider ID"`

	workingDir    string `json:"-"`
	globalDataCfg string `json:"-"`
}

// WorkingDir 返回加载配置时的工作目录
func (c *Config) WorkingDir() string {
	return c.workingDir
}

// FlushInterval 流式刷新间隔
func (c *Config) FlushInterval() time.Duration {
	if c.Options.FlushIntervalMS <= 0 {
		return stream.DefaultFlushInterval
	}
	return time.Duration(c.Options.FlushIntervalMS) * time.Millisecond
}

// ProjectSizeTTL 项目规模估算的有效期，未设置时返回 0
func (c *Config) ProjectSizeTTL() time.Duration {
	return time.Duration(c.Options.ProjectSizeTTLSeconds) * time.Second
}

// ProviderSettings 转换为提供商解析器使用的设置
func (c *Config) ProviderSettings() map[string]provider.Settings {
	out := make(map[string]provider.Settings, len(c.Providers))
	for id, p := range c.Providers {
		out[id] = provider.Settings{
			BaseURL:  p.BaseURL,
			APIKey:   p.APIKey,
			Disabled: p.Disable,
		}
	}
	return out
}

func (c *Config) setDefaults(workingDir, dataDir string) {
	c.workingDir = workingDir
	if c.Options == nil {
		c.Options = &Options{}
	}
	if dataDir != "" {
		c.Options.DataDirectory = dataDir
	}
	c.Options.DataDirectory = cmp.Or(c.Options.DataDirectory, defaultDataDirectory)
	if !filepath.IsAbs(c.Options.DataDirectory) {
		c.Options.DataDirectory = filepath.Join(workingDir, c.Options.DataDirectory)
	}
	if c.Options.MaxIterations <= 0 {
		c.Options.MaxIterations = defaultMaxIterations
	}
	c.Options.EditApproval = cmp.Or(c.Options.EditApproval, agent.ApproveUnsafe)
	c.Options.Estimator = cmp.Or(c.Options.Estimator, defaultEstimator)
	c.Options.CatwalkURL = cmp.Or(os.Getenv("CATWALK_URL"), c.Options.CatwalkURL, provider.DefaultCatwalkURL)
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
}

// HasConfigField 报告全局数据配置中是否存在该字段
func (c *Config) HasConfigField(key string) bool {
	data, err := os.ReadFile(c.globalDataCfg)
	if err != nil {
		return false
	}
	return gjson.GetBytes(data, key).Exists()
}

// SetConfigField 写入全局数据配置中的一个字段
func (c *Config) SetConfigField(key string, value any) error {
	data, err := os.ReadFile(c.globalDataCfg)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("读取配置文件失败: %w", err)
		}
		data = []byte("{}")
	}

	updated, err := sjson.SetBytes(data, key, value)
	if err != nil {
		return fmt.Errorf("设置配置字段 %s 失败: %w", key, err)
	}
	return c.writeDataConfig(updated)
}

// RemoveConfigField 删除全局数据配置中的一个字段
func (c *Config) RemoveConfigField(key string) error {
	data, err := os.ReadFile(c.globalDataCfg)
	if err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}
	updated, err := sjson.DeleteBytes(data, key)
	if err != nil {
		return fmt.Errorf("删除配置字段 %s 失败: %w", key, err)
	}
	return c.writeDataConfig(updated)
}

func (c *Config) writeDataConfig(data []byte) error {
	if err := os.MkdirAll(filepath.Dir(c.globalDataCfg), 0o755); err != nil {
		return fmt.Errorf("创建配置目录 %q 失败: %w", c.globalDataCfg, err)
	}
	if err := os.WriteFile(c.globalDataCfg, data, 0o600); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}
	return nil
}

// DisableProvider 在全局数据配置中禁用提供商
func (c *Config) DisableProvider(id string, disabled bool) error {
	p := c.Providers[id]
	p.Disable = disabled
	c.Providers[id] = p
	return c.SetConfigField(fmt.Sprintf("providers.%s.disable", id), disabled)
}

// Schema 生成配置文件的 JSON schema
func Schema() *jsonschema.Schema {
	r := new(jsonschema.Reflector)
	s := r.Reflect(&Config{})
	s.Title = appName + " configuration"
	return s
}

// JSONSchemaExtend 限定提供商键只能是已知的提供商 ID
func (Config) JSONSchemaExtend(schema *jsonschema.Schema) {
	if schema.Properties == nil {
		return
	}
	prop, ok := schema.Properties.Get("providers")
	if !ok || prop == nil {
		return
	}
	var ids []any
	for _, info := range provider.Registry() {
		ids = append(ids, info.ID)
	}
	prop.PropertyNames = &jsonschema.Schema{Enum: ids}
}
