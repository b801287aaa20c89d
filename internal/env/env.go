// Package env 抽象环境变量的读取，便于在配置解析与测试中替换来源。
package env

import "os"

// Env 环境变量来源
type Env interface {
	// Get 返回变量值，不存在时返回空字符串
	Get(key string) string
	// Lookup 返回变量值以及变量是否存在
	Lookup(key string) (string, bool)
	// Env 以 key=value 形式返回全部变量
	Env() []string
}

type osEnv struct{}

// Get 实现 Env
func (osEnv) Get(key string) string {
	return os.Getenv(key)
}

// Lookup 实现 Env
func (osEnv) Lookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// Env 实现 Env
func (osEnv) Env() []string {
	env := os.Environ()
	if env == nil {
		return []string{}
	}
	return env
}

// New 返回读取当前进程环境变量的 Env
func New() Env {
	return &osEnv{}
}

type mapEnv struct {
	m map[string]string
}

// Get 实现 Env
func (e *mapEnv) Get(key string) string {
	return e.m[key]
}

// Lookup 实现 Env
func (e *mapEnv) Lookup(key string) (string, bool) {
	v, ok := e.m[key]
	return v, ok
}

// Env 实现 Env
func (e *mapEnv) Env() []string {
	out := make([]string, 0, len(e.m))
	for k, v := range e.m {
		out = append(out, k+"="+v)
	}
	return out
}

// NewFromMap 从给定映射构造 Env，主要用于测试
func NewFromMap(m map[string]string) Env {
	if m == nil {
		m = map[string]string{}
	}
	return &mapEnv{m: m}
}
