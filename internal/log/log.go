package log

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/purpose168/chorus/internal/event"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	initOnce    sync.Once
	initialized atomic.Bool
	panicDir    atomic.Value // string
)

// Setup 初始化日志系统
// 参数:
//   - logFile: 日志文件路径，panic 报告写入同一目录
//   - debug: 是否启用调试级别
func Setup(logFile string, debug bool) {
	initOnce.Do(func() {
		logRotator := &lumberjack.Logger{
			Filename: logFile,
			MaxSize:  10, // MB
			MaxAge:   30, // 天
		}

		level := slog.LevelInfo
		if debug {
			level = slog.LevelDebug
		}

		logger := slog.NewJSONHandler(logRotator, &slog.HandlerOptions{
			Level:     level,
			AddSource: true,
		})

		slog.SetDefault(slog.New(logger))
		panicDir.Store(filepath.Dir(logFile))
		initialized.Store(true)
	})
}

// Initialized 检查日志系统是否已初始化
func Initialized() bool {
	return initialized.Load()
}

// RecoverPanic 恢复 panic 并写出带堆栈的报告文件
// 应在 goroutine 顶部以 defer 调用，cleanup 可为 nil
func RecoverPanic(name string, cleanup func()) {
	r := recover()
	if r == nil {
		return
	}
	event.Error(r, "panic", true, "name", name)
	slog.Error("goroutine 发生 panic", "name", name, "panic", r)

	dir, _ := panicDir.Load().(string)
	timestamp := time.Now().Format("20060102-150405")
	filename := filepath.Join(dir, fmt.Sprintf("chorus-panic-%s-%s.log", name, timestamp))

	if file, err := os.Create(filename); err == nil {
		fmt.Fprintf(file, "Panic in %s: %v\n\n", name, r)
		fmt.Fprintf(file, "Time: %s\n\n", time.Now().Format(time.RFC3339))
		fmt.Fprintf(file, "Stack Trace:\n%s\n", debug.Stack())
		_ = file.Close()
	}

	if cleanup != nil {
		cleanup()
	}
}
