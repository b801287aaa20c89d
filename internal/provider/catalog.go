package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"charm.land/catwalk/pkg/catwalk"
	"charm.land/catwalk/pkg/embedded"
	"github.com/charmbracelet/x/etag"
)

// DefaultCatwalkURL 在线提供商数据库地址
const DefaultCatwalkURL = "https://catwalk.charm.sh"

const catalogFetchTimeout = 10 * time.Second

// CatwalkClient 在线提供商数据库客户端
type CatwalkClient interface {
	GetProviders(context.Context, string) ([]catwalk.Provider, error)
}

// Catalog 静态模型目录
// 数据来自 catwalk 在线数据库，拉取失败时依次回退到磁盘缓存与内嵌数据库
type Catalog struct {
	once       sync.Once
	result     []catwalk.Provider
	err        error
	cache      fileCache
	client     CatwalkClient
	autoupdate bool
}

// NewCatalog 创建目录，client 为 nil 或 autoupdate 为 false 时只使用内嵌数据
func NewCatalog(client CatwalkClient, cachePath string, autoupdate bool) *Catalog {
	return &Catalog{
		client:     client,
		cache:      fileCache{path: cachePath},
		autoupdate: autoupdate && client != nil,
	}
}

// EmbeddedCatalog 只使用内嵌数据库的目录
func EmbeddedCatalog() *Catalog {
	return NewCatalog(nil, "", false)
}

// Providers 返回目录中的提供商列表，只在首次调用时加载
func (c *Catalog) Providers(ctx context.Context) ([]catwalk.Provider, error) {
	c.once.Do(func() {
		c.result, c.err = c.load(ctx)
	})
	return c.result, c.err
}

func (c *Catalog) load(ctx context.Context) ([]catwalk.Provider, error) {
	if !c.autoupdate {
		slog.Debug("使用内嵌的提供商数据库")
		return embedded.GetAll(), nil
	}

	cached, tag, err := c.cache.Get()
	if len(cached) == 0 || err != nil {
		cached = embedded.GetAll()
	}

	ctx, cancel := context.WithTimeout(ctx, catalogFetchTimeout)
	defer cancel()

	slog.Info("从 catwalk 获取提供商数据库")
	result, err := c.client.GetProviders(ctx, tag)
	switch {
	case errors.Is(err, catwalk.ErrNotModified):
		slog.Info("提供商数据库未修改")
		return cached, nil
	case errors.Is(err, context.DeadlineExceeded):
		slog.Warn("提供商数据库未能及时更新")
		return cached, nil
	case err != nil:
		slog.Warn("获取提供商数据库失败，使用缓存", "error", err)
		return cached, nil
	case len(result) == 0:
		return cached, errors.New("从 catwalk 获取的提供商列表为空")
	}
	return result, c.cache.Store(result)
}

// Models 返回指定提供商的静态模型目录
func (c *Catalog) Models(ctx context.Context, info Info) []ModelInfo {
	var out []ModelInfo
	if info.CatwalkID != "" {
		providers, _ := c.Providers(ctx)
		for _, p := range providers {
			if p.ID != info.CatwalkID {
				continue
			}
			for _, m := range p.Models {
				out = append(out, fromCatwalk(info, m))
			}
			break
		}
	}
	if len(out) == 0 {
		out = append(out, supplement[info.ID]...)
		for i := range out {
			out[i].Provider = info.ID
			out[i].ProviderName = info.Name
		}
	}
	for i := range out {
		out[i].Source = SourceStatic
	}
	return out
}

// Lookup 在静态目录中查找模型
func (c *Catalog) Lookup(ctx context.Context, info Info, modelID string) (ModelInfo, bool) {
	for _, m := range c.Models(ctx, info) {
		if m.ID == modelID {
			return m, true
		}
	}
	return ModelInfo{}, false
}

func fromCatwalk(info Info, m catwalk.Model) ModelInfo {
	mi := ModelInfo{
		ID:            m.ID,
		Name:          m.Name,
		Provider:      info.ID,
		ProviderName:  info.Name,
		ContextWindow: m.ContextWindow,
		MaxTokens:     m.DefaultMaxTokens,
	}
	mi.Pricing.InputPerMillion = m.CostPer1MIn
	mi.Pricing.OutputPerMillion = m.CostPer1MOut
	mi.Free = m.CostPer1MIn == 0 && m.CostPer1MOut == 0
	return mi
}

// supplement catwalk 不收录的提供商的手写目录
var supplement = map[string][]ModelInfo{
	"ollama": {
		{ID: "qwen2.5-coder:7b", Name: "Qwen2.5 Coder 7B", ContextWindow: 32768, MaxTokens: 8192, Free: true},
		{ID: "llama3.1:8b", Name: "Llama 3.1 8B", ContextWindow: 131072, MaxTokens: 8192, Free: true},
	},
	"lmstudio": {
		{ID: "qwen2.5-coder-7b-instruct", Name: "Qwen2.5 Coder 7B Instruct", ContextWindow: 32768, MaxTokens: 8192, Free: true},
	},
	"deepseek": {
		{ID: "deepseek-chat", Name: "DeepSeek V3", ContextWindow: 128000, MaxTokens: 8192},
		{ID: "deepseek-reasoner", Name: "DeepSeek R1", ContextWindow: 128000, MaxTokens: 32768},
	},
}

// fileCache 目录的磁盘缓存，ETag 由文件内容计算
type fileCache struct {
	path string
}

func (c fileCache) Get() ([]catwalk.Provider, string, error) {
	if c.path == "" {
		return nil, "", errors.New("未配置缓存路径")
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, "", fmt.Errorf("读取提供商缓存文件失败: %w", err)
	}
	var v []catwalk.Provider
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, "", fmt.Errorf("从缓存反序列化提供商数据失败: %w", err)
	}
	return v, etag.Of(data), nil
}

func (c fileCache) Store(v []catwalk.Provider) error {
	if c.path == "" {
		return nil
	}
	slog.Info("将提供商数据保存到磁盘", "path", c.path)
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("创建提供商缓存目录失败: %w", err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("序列化提供商数据失败: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("写入提供商缓存失败: %w", err)
	}
	return nil
}
