package provider

import (
	"cmp"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/purpose168/chorus/internal/csync"
	"github.com/purpose168/chorus/internal/log"
	"github.com/purpose168/chorus/internal/store"
	"github.com/purpose168/chorus/internal/usage"
)

// Settings 单个提供商的用户配置
type Settings struct {
	BaseURL  string
	APIKey   string
	Disabled bool
}

// ProviderConfig 可直接用于请求的提供商描述
type ProviderConfig struct {
	ID         string
	Name       string
	BaseURL    string
	WireFormat WireFormat
	Auth       AuthStyle
	APIKey     string
}

// Headers 返回认证所需的请求头
func (p ProviderConfig) Headers() http.Header {
	h := http.Header{}
	if p.APIKey == "" {
		return h
	}
	switch p.Auth {
	case AuthAPIKey:
		h.Set("x-api-key", p.APIKey)
		h.Set("anthropic-version", "2023-06-01")
	case AuthBearer:
		h.Set("Authorization", "Bearer "+p.APIKey)
	}
	return h
}

// ModelConfig 可直接用于请求的模型描述
type ModelConfig struct {
	ID            string
	Name          string
	WireFormat    WireFormat
	ContextWindow int64
	MaxTokens     int64
	Pricing       usage.Pricing
}

// Resolver 提供商与模型解析器
type Resolver struct {
	registry  []Info
	overrides map[string]ModelOverride
	reserved  map[string]string
	settings  map[string]Settings
	store     store.Store
	catalog   *Catalog
	client    *http.Client
	// remote 记录远程目录中带价格的模型
	remote *csync.Map[string, ModelInfo]
}

// Option 解析器选项
type Option func(*Resolver)

// WithSettings 设置提供商配置（base URL 覆盖、密钥、禁用）
func WithSettings(s map[string]Settings) Option {
	return func(r *Resolver) { r.settings = s }
}

// WithStore 设置凭据存储
func WithStore(s store.Store) Option {
	return func(r *Resolver) { r.store = s }
}

// WithCatalog 设置静态目录
func WithCatalog(c *Catalog) Option {
	return func(r *Resolver) { r.catalog = c }
}

// WithHTTPClient 设置目录拉取与校验使用的 HTTP 客户端
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) { r.client = c }
}

// WithRegistry 替换内置注册表
func WithRegistry(infos []Info) Option {
	return func(r *Resolver) { r.registry = infos }
}

// WithOverrides 替换模型覆盖表
func WithOverrides(o map[string]ModelOverride) Option {
	return func(r *Resolver) { r.overrides = o }
}

// WithReserved 替换模型独占表（模型 ID -> 提供商 ID）
func WithReserved(m map[string]string) Option {
	return func(r *Resolver) { r.reserved = m }
}

// NewResolver 创建解析器
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		registry:  Registry(),
		overrides: defaultOverrides,
		reserved:  defaultReserved,
		settings:  map[string]Settings{},
		remote:    csync.NewMap[string, ModelInfo](),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.catalog == nil {
		r.catalog = EmbeddedCatalog()
	}
	if r.client == nil {
		r.client = log.NewHTTPClient(30 * time.Second)
	}
	return r
}

// Providers 返回未被禁用的注册表条目
func (r *Resolver) Providers() []Info {
	out := make([]Info, 0, len(r.registry))
	for _, info := range r.registry {
		if r.settings[info.ID].Disabled {
			continue
		}
		out = append(out, info)
	}
	return out
}

// Provider 按 ID 查找注册表条目
func (r *Resolver) Provider(id string) (Info, bool) {
	for _, info := range r.registry {
		if info.ID == id {
			return info, true
		}
	}
	return Info{}, false
}

// BaseURL 返回提供商的实际 base URL
func (r *Resolver) BaseURL(info Info) string {
	return strings.TrimRight(cmp.Or(r.settings[info.ID].BaseURL, info.BaseURL), "/")
}

// APIKey 返回提供商凭据，配置优先于存储
func (r *Resolver) APIKey(ctx context.Context, providerID string) (string, error) {
	if key := r.settings[providerID].APIKey; key != "" {
		return key, nil
	}
	if r.store == nil {
		return "", nil
	}
	return store.GetString(ctx, r.store, store.APIKeyKey(providerID))
}

// Configured 报告提供商是否可用：本地提供商总是可用，其余需要凭据
func (r *Resolver) Configured(ctx context.Context, info Info) bool {
	if r.settings[info.ID].Disabled {
		return false
	}
	if info.Local() {
		return true
	}
	key, err := r.APIKey(ctx, info.ID)
	return err == nil && key != ""
}

// Resolve 将提供商与模型解析为可用于请求的配置
// 从提供商默认值出发，再应用按模型 ID 索引的覆盖表
func (r *Resolver) Resolve(ctx context.Context, modelID, providerID string) (ProviderConfig, ModelConfig, error) {
	info, ok := r.Provider(providerID)
	if !ok {
		return ProviderConfig{}, ModelConfig{}, fmt.Errorf("%w: %s", ErrUnknownProvider, providerID)
	}
	if r.settings[providerID].Disabled {
		return ProviderConfig{}, ModelConfig{}, fmt.Errorf("提供商 %s 已被禁用", providerID)
	}

	key, err := r.APIKey(ctx, providerID)
	if err != nil {
		return ProviderConfig{}, ModelConfig{}, fmt.Errorf("读取 %s 凭据失败: %w", providerID, err)
	}

	pc := ProviderConfig{
		ID:         info.ID,
		Name:       info.Name,
		BaseURL:    r.BaseURL(info),
		WireFormat: info.WireFormat,
		Auth:       info.Auth,
		APIKey:     key,
	}
	mc := ModelConfig{
		ID:         modelID,
		Name:       modelID,
		WireFormat: info.WireFormat,
	}

	if m, ok := r.catalog.Lookup(ctx, info, modelID); ok {
		mc.Name = cmp.Or(m.Name, modelID)
		mc.ContextWindow = m.ContextWindow
		mc.MaxTokens = m.MaxTokens
		mc.Pricing = m.Pricing
	} else if m, ok := r.remote.Get(remoteKey(providerID, modelID)); ok {
		mc.Name = cmp.Or(m.Name, modelID)
		mc.ContextWindow = m.ContextWindow
		mc.Pricing = m.Pricing
	}

	if o, ok := r.overrides[modelID]; ok && r.reservedFor(modelID, providerID) {
		if o.BaseURL != "" && r.settings[providerID].BaseURL == "" {
			pc.BaseURL = o.BaseURL
		}
		if o.WireFormat != "" {
			pc.WireFormat = o.WireFormat
			mc.WireFormat = o.WireFormat
		}
		if o.DisplayName != "" {
			mc.Name = o.DisplayName
		}
	}
	return pc, mc, nil
}

// reservedFor 报告模型是否可由该提供商提供
func (r *Resolver) reservedFor(modelID, providerID string) bool {
	owner, ok := r.reserved[modelID]
	return !ok || owner == providerID
}

// Pricing 实现 usage.PricingSource
func (r *Resolver) Pricing(providerID, modelID string) (usage.Pricing, bool) {
	info, ok := r.Provider(providerID)
	if !ok {
		return usage.Pricing{}, false
	}
	if m, ok := r.catalog.Lookup(context.Background(), info, modelID); ok {
		return m.Pricing, true
	}
	if m, ok := r.remote.Get(remoteKey(providerID, modelID)); ok {
		return m.Pricing, true
	}
	return usage.Pricing{}, false
}

// Endpoint 解析并校验凭据，供发起请求前的预检使用
func (r *Resolver) Endpoint(ctx context.Context, modelID, providerID string) (ProviderConfig, ModelConfig, error) {
	pc, mc, err := r.Resolve(ctx, modelID, providerID)
	if err != nil {
		return pc, mc, err
	}
	info, _ := r.Provider(providerID)
	if info.RequiresKey() && pc.APIKey == "" {
		return pc, mc, fmt.Errorf("%w: %s", ErrMissingAPIKey, providerID)
	}
	return pc, mc, nil
}

func remoteKey(providerID, modelID string) string {
	return providerID + "/" + modelID
}
