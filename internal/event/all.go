// Package event 提供可选的匿名使用情况上报
// 该文件定义了应用生命周期、会话与对话轮次相关的事件
package event

import (
	"time"
)

var appStartTime time.Time

// AppInitialized 记录应用初始化完成
func AppInitialized() {
	appStartTime = time.Now()
	send("应用已初始化")
}

// AppExited 记录应用退出及运行时长，并刷新队列
func AppExited() {
	duration := time.Since(appStartTime).Truncate(time.Second)
	send(
		"应用已退出",
		"应用运行时长（可读格式）", duration.String(),
		"应用运行时长（秒）", int64(duration.Seconds()),
	)
	Flush()
}

// SessionCreated 记录会话创建
func SessionCreated() {
	send("会话已创建")
}

// SessionDeleted 记录会话删除
func SessionDeleted() {
	send("会话已删除")
}

// TurnCompleted 记录一次对话轮次结束
// props: 键值对，例如 provider、model、mode、iterations
func TurnCompleted(props ...any) {
	send("对话轮次已完成", props...)
}

// TurnAborted 记录用户中止的轮次
func TurnAborted(props ...any) {
	send("对话轮次已中止", props...)
}

// ProviderFailed 记录提供商错误及其分类
func ProviderFailed(props ...any) {
	send("提供商请求失败", props...)
}

// TokensUsed 记录令牌消耗
func TokensUsed(props ...any) {
	send("令牌已使用", props...)
}

// CheckpointRestored 记录检查点恢复
func CheckpointRestored(props ...any) {
	send("检查点已恢复", props...)
}
