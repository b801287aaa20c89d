package log

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// NewHTTPClient 创建带请求/响应日志的 HTTP 客户端，供提供商目录拉取与密钥校验使用
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &HTTPRoundTripLogger{
			Transport: http.DefaultTransport,
		},
	}
}

// HTTPRoundTripLogger 拦截并记录 HTTP 请求与响应
// 调试级别下记录请求体与响应体，敏感头部会被隐藏
type HTTPRoundTripLogger struct {
	Transport http.RoundTripper
}

// RoundTrip 实现 http.RoundTripper
func (h *HTTPRoundTripLogger) RoundTrip(req *http.Request) (*http.Response, error) {
	debugEnabled := slog.Default().Enabled(req.Context(), slog.LevelDebug)

	if debugEnabled {
		var err error
		var save io.ReadCloser
		save, req.Body, err = drainBody(req.Body)
		if err != nil {
			slog.Error("HTTP请求失败", "method", req.Method, "url", req.URL, "error", err)
			return nil, err
		}
		slog.Debug(
			"HTTP请求",
			"method", req.Method,
			"url", req.URL,
			"headers", redactHeaders(req.Header),
			"body", bodyToString(save),
		)
	}

	start := time.Now()
	resp, err := h.Transport.RoundTrip(req)
	duration := time.Since(start)
	if err != nil {
		slog.Error(
			"HTTP请求失败",
			"method", req.Method,
			"url", req.URL,
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
		return resp, err
	}

	if debugEnabled {
		var save io.ReadCloser
		save, resp.Body, err = drainBody(resp.Body)
		slog.Debug(
			"HTTP响应",
			"status_code", resp.StatusCode,
			"headers", redactHeaders(resp.Header),
			"body", bodyToString(save),
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
	}
	return resp, err
}

func bodyToString(body io.ReadCloser) string {
	if body == nil {
		return ""
	}
	src, err := io.ReadAll(body)
	if err != nil {
		slog.Error("读取body失败", "error", err)
		return ""
	}
	var b bytes.Buffer
	if json.Indent(&b, bytes.TrimSpace(src), "", "  ") != nil {
		return string(src)
	}
	return b.String()
}

// redactHeaders 返回隐藏了认证类头部的副本
func redactHeaders(headers http.Header) map[string][]string {
	filtered := make(map[string][]string, len(headers))
	for key, values := range headers {
		lowerKey := strings.ToLower(key)
		if strings.Contains(lowerKey, "authorization") ||
			strings.Contains(lowerKey, "api-key") ||
			strings.Contains(lowerKey, "token") ||
			strings.Contains(lowerKey, "secret") {
			filtered[key] = []string{"[已隐藏]"}
			continue
		}
		filtered[key] = values
	}
	return filtered
}

// drainBody 读出 body 并返回两个等价副本
func drainBody(b io.ReadCloser) (r1, r2 io.ReadCloser, err error) {
	if b == nil || b == http.NoBody {
		return http.NoBody, http.NoBody, nil
	}
	var buf bytes.Buffer
	if _, err = buf.ReadFrom(b); err != nil {
		return nil, b, err
	}
	if err = b.Close(); err != nil {
		return nil, b, err
	}
	return io.NopCloser(&buf), io.NopCloser(bytes.NewReader(buf.Bytes())), nil
}
