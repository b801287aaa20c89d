package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"

	"charm.land/fantasy"
	"github.com/purpose168/chorus/internal/agent"
	"github.com/tidwall/gjson"
)

// Category 提供商错误分类
type Category string

const (
	CategoryAuth      Category = "auth"
	CategoryBilling   Category = "billing"
	CategoryRateLimit Category = "rate_limit"
	CategoryServer    Category = "server"
	CategoryNetwork   Category = "network"
	CategoryUnknown   Category = "unknown"
)

var hints = map[Category]string{
	CategoryAuth:      "请检查 API 密钥是否正确且未过期",
	CategoryBilling:   "账户余额或额度不足，请前往提供商控制台充值",
	CategoryRateLimit: "请求过于频繁，请稍后重试或降低并发",
	CategoryServer:    "提供商服务暂时不可用，请稍后重试",
	CategoryNetwork:   "无法连接到提供商，请检查网络或 base_url 配置",
	CategoryUnknown:   "请查看日志获取详细信息",
}

// Hint 返回分类对应的处理建议
func (c Category) Hint() string {
	if h, ok := hints[c]; ok {
		return h
	}
	return hints[CategoryUnknown]
}

var (
	// ErrUnknownProvider 注册表中不存在该提供商
	ErrUnknownProvider = errors.New("未知的提供商")
	// ErrMissingAPIKey 提供商需要凭据但未配置
	ErrMissingAPIKey = errors.New("未配置 API 密钥")
)

// Error 已分类的提供商错误
type Error struct {
	Provider   string
	Category   Category
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.Provider != "" {
		fmt.Fprintf(&sb, "%s: ", e.Provider)
	}
	sb.WriteString(string(e.Category))
	if e.StatusCode != 0 {
		fmt.Fprintf(&sb, " (HTTP %d)", e.StatusCode)
	}
	if e.Message != "" {
		fmt.Fprintf(&sb, ": %s", e.Message)
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Hint 返回处理建议
func (e *Error) Hint() string { return e.Category.Hint() }

const maxMessageLen = 200

// Classify 根据 HTTP 状态码与响应体对错误分类
// 先按状态码映射，再对解析出的错误消息做关键字匹配，最后归为 unknown
func Classify(status int, body []byte) *Error {
	msg := errorMessage(body)
	return &Error{
		Category:   categorize(status, msg),
		StatusCode: status,
		Message:    msg,
	}
}

func categorize(status int, msg string) Category {
	switch {
	case status == 401:
		return CategoryAuth
	case status == 402:
		return CategoryBilling
	case status == 429:
		return CategoryRateLimit
	case status >= 500:
		return CategoryServer
	}

	lower := strings.ToLower(msg)
	switch {
	case containsAny(lower, "insufficient", "quota", "billing", "credit", "payment required"):
		return CategoryBilling
	case containsAny(lower, "rate limit", "rate_limit", "too many requests"):
		return CategoryRateLimit
	case containsAny(lower, "overloaded", "unavailable", "internal server error", "bad gateway"):
		return CategoryServer
	case containsAny(lower, "invalid api key", "invalid_api_key", "unauthorized", "authentication", "incorrect api key"):
		return CategoryAuth
	case containsAny(lower, "connection refused", "no such host", "i/o timeout", "network is unreachable"):
		return CategoryNetwork
	}
	return CategoryUnknown
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// errorMessage 从常见的错误响应结构中提取消息
func errorMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if gjson.ValidBytes(body) {
		for _, path := range []string{"error.message", "error.error.message", "message", "error", "detail", "errors.0.message"} {
			if r := gjson.GetBytes(body, path); r.Exists() && r.Type == gjson.String && r.String() != "" {
				return truncate(r.String())
			}
		}
	}
	return truncate(strings.TrimSpace(string(body)))
}

func truncate(s string) string {
	if r := []rune(s); len(r) > maxMessageLen {
		return string(r[:maxMessageLen]) + "…"
	}
	return s
}

// ClassifyError 将任意错误归类为 *Error
func ClassifyError(providerID string, err error) *Error {
	if err == nil {
		return nil
	}

	var perr *Error
	if errors.As(err, &perr) {
		cp := *perr
		if cp.Provider == "" {
			cp.Provider = providerID
		}
		return &cp
	}

	var out *Error
	var rerr *agent.RuntimeError
	var ferr *fantasy.ProviderError
	switch {
	case errors.As(err, &rerr):
		out = Classify(rerr.StatusCode, []byte(rerr.Body))
		if out.Message == "" && rerr.Err != nil {
			out.Message = truncate(rerr.Err.Error())
		}
	case errors.As(err, &ferr):
		out = Classify(ferr.StatusCode, ferr.ResponseBody)
		if out.Message == "" {
			out.Message = truncate(ferr.Message)
		}
	case isNetworkError(err):
		out = &Error{Category: CategoryNetwork, Message: truncate(err.Error())}
	default:
		msg := truncate(err.Error())
		out = &Error{Category: categorize(0, msg), Message: msg}
	}
	out.Provider = providerID
	out.Err = err
	return out
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var dnsErr *net.DNSError
	var opErr *net.OpError
	var urlErr *url.Error
	return errors.As(err, &dnsErr) || errors.As(err, &opErr) || errors.As(err, &urlErr)
}
