package event

import (
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"runtime"
	"sync"
	"time"

	"github.com/posthog/posthog-go"
	"github.com/purpose168/chorus/internal/version"
)

const (
	defaultEndpoint = "https://us.i.posthog.com"

	// keyEnv 与 endpointEnv 未设置密钥时不会上报任何事件
	keyEnv      = "CHORUS_POSTHOG_KEY"
	endpointEnv = "CHORUS_POSTHOG_ENDPOINT"
)

var (
	mu     sync.RWMutex
	client posthog.Client

	baseProps = posthog.NewProperties().
			Set("GOOS", runtime.GOOS).
			Set("GOARCH", runtime.GOARCH).
			Set("Version", version.Version).
			Set("GoVersion", runtime.Version())
)

// Init 初始化上报客户端
// 仅在调用方允许上报且配置了项目密钥时生效
func Init() {
	key := os.Getenv(keyEnv)
	if key == "" {
		slog.Debug("未配置上报密钥，跳过使用情况上报")
		return
	}
	endpoint := os.Getenv(endpointEnv)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}

	c, err := posthog.NewWithConfig(key, posthog.Config{
		Endpoint:        endpoint,
		Logger:          logger{},
		ShutdownTimeout: 500 * time.Millisecond,
	})
	if err != nil {
		slog.Error("初始化 PostHog 客户端失败", "error", err)
		return
	}

	mu.Lock()
	client = c
	distinctId = getDistinctId()
	mu.Unlock()
}

// Enabled 报告上报客户端是否已初始化
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return client != nil
}

// send 使用给定的事件名称和属性向 PostHog 记录事件
func send(event string, props ...any) {
	mu.RLock()
	defer mu.RUnlock()
	if client == nil {
		return
	}
	err := client.Enqueue(posthog.Capture{
		DistinctId: distinctId,
		Event:      event,
		Properties: pairsToProps(props...).Merge(baseProps),
	})
	if err != nil {
		slog.Error("将 PostHog 事件加入队列失败", "event", event, "props", props, "error", err)
	}
}

// Error 记录错误事件，包含错误类型和消息
func Error(errToLog any, props ...any) {
	mu.RLock()
	defer mu.RUnlock()
	if client == nil || errToLog == nil {
		return
	}
	posthogErr := client.Enqueue(posthog.NewDefaultException(
		time.Now(),
		distinctId,
		reflect.TypeOf(errToLog).String(),
		fmt.Sprintf("%v", errToLog),
	))
	if posthogErr != nil {
		slog.Error("将 PostHog 错误加入队列失败", "err", errToLog, "props", props, "posthogErr", posthogErr)
	}
}

// Flush 关闭客户端并发送队列中剩余的事件
func Flush() {
	mu.Lock()
	defer mu.Unlock()
	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		slog.Error("刷新 PostHog 事件失败", "error", err)
	}
	client = nil
}

func pairsToProps(props ...any) posthog.Properties {
	p := posthog.NewProperties()

	if len(props)%2 != 0 {
		slog.Error("事件属性必须以键值对的形式提供", "props", props)
		return p
	}

	for i := 0; i < len(props); i += 2 {
		key, ok := props[i].(string)
		if !ok {
			key = fmt.Sprint(props[i])
		}
		p = p.Set(key, props[i+1])
	}
	return p
}
