package store

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
)

// ErrInjected 内存存储在注入失败模式下返回的错误
var ErrInjected = errors.New("注入的存储失败")

// Memory 进程内 Store 实现，用于测试与无数据库的场景
type Memory struct {
	mu       sync.RWMutex
	data     map[string][]byte
	failSets bool
	getDelay func(key string)
}

// NewMemory 创建空的内存存储
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Get 实现 Store
func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	delay := m.getDelay
	m.mu.RUnlock()
	if delay != nil {
		delay(key)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(v), nil
}

// Set 实现 Store
func (m *Memory) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSets {
		return ErrInjected
	}
	if value == nil {
		delete(m.data, key)
		return nil
	}
	m.data[key] = slices.Clone(value)
	return nil
}

// Keys 列出带指定前缀的键（已排序）
func (m *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

// FailSets 使后续 Set 调用全部失败
func (m *Memory) FailSets(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failSets = fail
}

// OnGet 注册在每次 Get 之前调用的钩子，可用于模拟慢速读取
func (m *Memory) OnGet(fn func(key string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getDelay = fn
}
