// Package store 定义共享的扁平键值持久化接口及其实现。
//
// 内存状态始终是渲染的权威来源，持久化允许滞后；写入通过 [Writer]
// 以有序、即发即弃的方式进行，失败只记录日志。
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound 键不存在
var ErrNotFound = errors.New("键不存在")

// Store 扁平字符串键的 get/set 存储，Set 传入 nil 表示清除该键
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

const (
	SessionsKey       = "sessions"
	GlobalUsageKey    = "usage:global"
	ActiveModelKey    = "active_model"
	ActiveProviderKey = "active_provider"
	ActiveSessionKey  = "active_session"
)

// MessagesKey 会话消息列表的键
func MessagesKey(sessionID string) string { return "messages:" + sessionID }

// UsageKey 会话用量记录的键
func UsageKey(sessionID string) string { return "usage:" + sessionID }

// APIKeyKey 提供商凭据的键
func APIKeyKey(providerID string) string { return "api_key:" + providerID }

// GetJSON 读取并反序列化 key 对应的值
func GetJSON[T any](ctx context.Context, s Store, key string) (T, error) {
	var v T
	data, err := s.Get(ctx, key)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("解析 %s 失败: %w", key, err)
	}
	return v, nil
}

// GetString 读取字符串值，不存在时返回空字符串
func GetString(ctx context.Context, s Store, key string) (string, error) {
	data, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}
