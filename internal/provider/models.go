package provider

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/purpose168/chorus/internal/usage"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"
)

const (
	SourceStatic = "static"
	SourceRemote = "remote"
)

// maxCatalogBody 模型列表响应体上限
const maxCatalogBody = 8 << 20

// Pricing 每百万令牌价格
type Pricing = usage.Pricing

// ModelInfo 合并目录中的一个模型条目
type ModelInfo struct {
	ID            string
	Name          string
	Provider      string
	ProviderName  string
	ContextWindow int64
	MaxTokens     int64
	Pricing       Pricing
	Free          bool
	Source        string
}

// GetModels 返回所有提供商的合并模型目录
// 已配置且支持列表的提供商并行拉取远程目录，失败或不支持列表时回退到静态目录
func (r *Resolver) GetModels(ctx context.Context) ([]ModelInfo, error) {
	providers := r.Providers()
	results := make([][]ModelInfo, len(providers))

	g, gctx := errgroup.WithContext(ctx)
	for i, info := range providers {
		static := r.catalog.Models(ctx, info)
		if !info.SupportsListing || !r.Configured(ctx, info) {
			results[i] = static
			continue
		}
		g.Go(func() error {
			remote, err := r.fetchModels(gctx, info)
			if err != nil {
				slog.Warn("获取模型列表失败，使用静态目录", "provider", info.ID, "error", err)
				results[i] = static
				return nil
			}
			results[i] = enrich(remote, static)
			for _, m := range results[i] {
				r.remote.Set(remoteKey(m.Provider, m.ID), m)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var merged []ModelInfo
	seen := make(map[string]struct{})
	for _, list := range results {
		for _, m := range list {
			if !r.reservedFor(m.ID, m.Provider) {
				continue
			}
			key := remoteKey(m.Provider, m.ID)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			if o, ok := r.overrides[m.ID]; ok && o.DisplayName != "" {
				m.Name = o.DisplayName
			}
			merged = append(merged, m)
		}
	}
	SortModels(merged)
	return merged, nil
}

// SortModels 免费模型在前，其后按提供商名称、模型名称排序
func SortModels(models []ModelInfo) {
	slices.SortStableFunc(models, func(a, b ModelInfo) int {
		if a.Free != b.Free {
			if a.Free {
				return -1
			}
			return 1
		}
		return cmp.Or(
			cmp.Compare(strings.ToLower(a.ProviderName), strings.ToLower(b.ProviderName)),
			cmp.Compare(strings.ToLower(cmp.Or(a.Name, a.ID)), strings.ToLower(cmp.Or(b.Name, b.ID))),
		)
	})
}

// enrich 用静态目录补全远程条目缺失的元数据
func enrich(remote, static []ModelInfo) []ModelInfo {
	byID := make(map[string]ModelInfo, len(static))
	for _, m := range static {
		byID[m.ID] = m
	}
	for i, m := range remote {
		s, ok := byID[m.ID]
		if !ok {
			continue
		}
		if m.Name == "" || m.Name == m.ID {
			remote[i].Name = s.Name
		}
		if m.ContextWindow == 0 {
			remote[i].ContextWindow = s.ContextWindow
		}
		remote[i].MaxTokens = s.MaxTokens
		if m.Pricing == (Pricing{}) && !m.Free {
			remote[i].Pricing = s.Pricing
			remote[i].Free = s.Free
		}
	}
	return remote
}

func (r *Resolver) fetchModels(ctx context.Context, info Info) ([]ModelInfo, error) {
	key, err := r.APIKey(ctx, info.ID)
	if err != nil {
		return nil, err
	}
	pc := ProviderConfig{ID: info.ID, Auth: info.Auth, APIKey: key}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.BaseURL(info)+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("无法创建请求: %w", err)
	}
	for k, v := range pc.Headers() {
		req.Header[k] = v
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, ClassifyError(info.ID, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCatalogBody))
	if err != nil {
		return nil, ClassifyError(info.ID, err)
	}
	if resp.StatusCode != http.StatusOK {
		perr := Classify(resp.StatusCode, body)
		perr.Provider = info.ID
		return nil, perr
	}
	return parseModels(info, body)
}

// parseModels 解析 OpenAI 风格的 {"data": [...]} 模型列表
func parseModels(info Info, body []byte) ([]ModelInfo, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%s: 模型列表不是有效的 JSON", info.ID)
	}
	data := gjson.GetBytes(body, "data")
	if !data.IsArray() {
		return nil, fmt.Errorf("%s: 模型列表缺少 data 字段", info.ID)
	}

	var out []ModelInfo
	data.ForEach(func(_, item gjson.Result) bool {
		id := item.Get("id").String()
		if id == "" {
			return true
		}
		m := ModelInfo{
			ID:            id,
			Name:          cmp.Or(item.Get("name").String(), item.Get("display_name").String(), id),
			Provider:      info.ID,
			ProviderName:  info.Name,
			ContextWindow: cmp.Or(item.Get("context_length").Int(), item.Get("context_window").Int()),
			Source:        SourceRemote,
		}
		// OpenRouter 按每令牌计价
		if p := item.Get("pricing"); p.Exists() {
			in, out := p.Get("prompt").Float(), p.Get("completion").Float()
			m.Pricing = Pricing{InputPerMillion: in * 1e6, OutputPerMillion: out * 1e6}
			m.Free = in == 0 && out == 0
		}
		if strings.HasSuffix(id, ":free") || info.Local() {
			m.Free = true
		}
		out = append(out, m)
		return true
	})
	return out, nil
}
