package app

import (
	"context"
	"fmt"
	"strings"

	xstrings "github.com/charmbracelet/x/exp/strings"
	"github.com/purpose168/chorus/internal/orchestrator"
	"github.com/purpose168/chorus/internal/provider"
)

// parseModelStr 将模型字符串解析为提供商过滤器和模型 ID。
// 格式："model-name"、"provider/model-name" 或 "openrouter/meta-llama/llama-3"。
// 仅当第一段是已知提供商时才视为过滤器，否则整个字符串都是模型 ID。
func parseModelStr(known func(string) bool, modelStr string) (providerFilter, modelID string) {
	first, rest, ok := strings.Cut(modelStr, "/")
	if !ok {
		return "", modelStr
	}
	if known(first) {
		return first, rest
	}
	return "", modelStr
}

// findModels 在合并目录中查找匹配的模型。
func findModels(models []provider.ModelInfo, providerFilter, modelID string) []provider.ModelInfo {
	var matches []provider.ModelInfo
	for _, m := range models {
		if modelID != "" && m.ID == modelID &&
			(providerFilter == "" || m.Provider == providerFilter) {
			matches = append(matches, m)
		}
	}
	return matches
}

// validateMatches 验证并返回单个匹配项。
func validateMatches(matches []provider.ModelInfo, modelID string) (provider.ModelInfo, error) {
	switch {
	case len(matches) == 0:
		return provider.ModelInfo{}, fmt.Errorf("模型 %q 未找到，使用 'chorus models' 列出可用模型", modelID)
	case len(matches) > 1:
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = m.Provider
		}
		return provider.ModelInfo{}, fmt.Errorf(
			"模型 %q 在多个提供商中找到：%s。请使用 'provider/model' 格式指定提供商",
			modelID,
			xstrings.EnglishJoin(names, true),
		)
	}
	return matches[0], nil
}

// SelectModel 按 "model" 或 "provider/model" 在目录中查找模型并设为活动模型
func (app *App) SelectModel(ctx context.Context, modelStr string) (orchestrator.Selection, error) {
	providerFilter, modelID := parseModelStr(func(id string) bool {
		_, ok := app.Resolver.Provider(id)
		return ok
	}, strings.TrimSpace(modelStr))

	models, err := app.Resolver.GetModels(ctx)
	if err != nil {
		return orchestrator.Selection{}, fmt.Errorf("获取模型目录失败: %w", err)
	}
	m, err := validateMatches(findModels(models, providerFilter, modelID), modelID)
	if err != nil {
		return orchestrator.Selection{}, err
	}
	if err := app.Orchestrator.SetActiveModel(ctx, m.ID, m.Provider); err != nil {
		return orchestrator.Selection{}, err
	}
	if err := app.Writer.Flush(ctx); err != nil {
		return orchestrator.Selection{}, err
	}
	return app.Orchestrator.ActiveModel(), nil
}
