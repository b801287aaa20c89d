package provider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"charm.land/fantasy"
	"charm.land/fantasy/providers/anthropic"
	"charm.land/fantasy/providers/openai"
	"charm.land/fantasy/providers/openaicompat"
)

// probeMaxTokens 生成探测请求的输出上限
const probeMaxTokens int64 = 1

// ValidateAPIKey 校验提供商凭据
//   - 本地提供商只检查连通性
//   - 支持列表的提供商请求探测路径
//   - 其余提供商发起一次最小的生成调用
func (r *Resolver) ValidateAPIKey(ctx context.Context, providerID string) error {
	info, ok := r.Provider(providerID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, providerID)
	}

	if info.Local() {
		return r.probeConnectivity(ctx, info)
	}

	key, err := r.APIKey(ctx, providerID)
	if err != nil {
		return fmt.Errorf("读取 %s 凭据失败: %w", providerID, err)
	}
	if key == "" {
		return fmt.Errorf("%w: %s", ErrMissingAPIKey, providerID)
	}
	pc := ProviderConfig{
		ID:         info.ID,
		Name:       info.Name,
		BaseURL:    r.BaseURL(info),
		WireFormat: info.WireFormat,
		Auth:       info.Auth,
		APIKey:     key,
	}

	if info.SupportsListing && info.ProbePath != "" {
		return r.probeListing(ctx, info, pc)
	}
	return r.probeGeneration(ctx, info, pc)
}

func (r *Resolver) probeConnectivity(ctx context.Context, info Info) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.BaseURL(info)+info.ProbePath, nil)
	if err != nil {
		return fmt.Errorf("无法创建请求: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return ClassifyError(info.ID, err)
	}
	_ = resp.Body.Close()
	slog.Debug("本地提供商可连接", "provider", info.ID, "status", resp.StatusCode)
	return nil
}

func (r *Resolver) probeListing(ctx context.Context, info Info, pc ProviderConfig) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pc.BaseURL+info.ProbePath, nil)
	if err != nil {
		return fmt.Errorf("无法创建请求: %w", err)
	}
	for k, v := range pc.Headers() {
		req.Header[k] = v
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return ClassifyError(info.ID, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusOK {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	perr := Classify(resp.StatusCode, body)
	perr.Provider = info.ID
	return perr
}

func (r *Resolver) probeGeneration(ctx context.Context, info Info, pc ProviderConfig) error {
	model := info.ProbeModel
	if model == "" {
		return fmt.Errorf("提供商 %s 未配置探测模型", info.ID)
	}
	lm, err := r.languageModel(ctx, pc, model)
	if err != nil {
		return ClassifyError(info.ID, err)
	}

	maxTokens := probeMaxTokens
	_, err = lm.Generate(ctx, fantasy.Call{
		Prompt: fantasy.Prompt{{
			Role:    fantasy.MessageRoleUser,
			Content: []fantasy.MessagePart{fantasy.TextPart{Text: "ping"}},
		}},
		MaxOutputTokens: &maxTokens,
	})
	if err != nil {
		return ClassifyError(info.ID, err)
	}
	return nil
}

// languageModel 按线路格式构造 fantasy 模型
func (r *Resolver) languageModel(ctx context.Context, pc ProviderConfig, model string) (fantasy.LanguageModel, error) {
	var (
		p   fantasy.Provider
		err error
	)
	switch pc.WireFormat {
	case WireMessages:
		p, err = anthropic.New(
			anthropic.WithBaseURL(pc.BaseURL),
			anthropic.WithAPIKey(pc.APIKey),
			anthropic.WithHTTPClient(r.client),
		)
	case WireResponses:
		p, err = openai.New(
			openai.WithBaseURL(pc.BaseURL),
			openai.WithAPIKey(pc.APIKey),
			openai.WithHTTPClient(r.client),
		)
	default:
		p, err = openaicompat.New(
			openaicompat.WithBaseURL(pc.BaseURL),
			openaicompat.WithAPIKey(pc.APIKey),
			openaicompat.WithHTTPClient(r.client),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("创建 %s 客户端失败: %w", pc.ID, err)
	}
	return p.LanguageModel(ctx, model)
}
