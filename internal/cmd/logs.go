package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"charm.land/log/v2"
	"github.com/charmbracelet/colorprofile"
	"github.com/charmbracelet/x/term"
	"github.com/nxadm/tail"
	"github.com/spf13/cobra"
)

const defaultTailLines = 1000

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "查看 chorus 日志",
	Long:  `以可读格式打印项目数据目录中的结构化日志，可持续跟踪新条目。`,
	Example: `
# 打印最后 1000 行
chorus logs

# 跟踪新的日志条目
chorus logs -f

# 只看最后 50 行
chorus logs -t 50
  `,
	RunE: func(cmd *cobra.Command, args []string) error {
		follow, err := cmd.Flags().GetBool("follow")
		if err != nil {
			return fmt.Errorf("获取 follow 标志失败: %w", err)
		}
		tailLines, err := cmd.Flags().GetInt("tail")
		if err != nil {
			return fmt.Errorf("获取 tail 标志失败: %w", err)
		}

		log.SetLevel(log.DebugLevel)
		log.SetOutput(os.Stdout)
		if !term.IsTerminal(os.Stdout.Fd()) {
			log.SetColorProfile(colorprofile.NoTTY)
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}
		logsFile := filepath.Join(cfg.Options.DataDirectory, "logs", "chorus.log")
		if _, err := os.Stat(logsFile); os.IsNotExist(err) {
			log.Warn("看起来您不在 chorus 项目中。未找到日志。")
			return nil
		}

		if follow {
			return followLogs(cmd.Context(), logsFile, tailLines)
		}
		return showLogs(logsFile, tailLines)
	},
}

func init() {
	logsCmd.Flags().BoolP("follow", "f", false, "跟踪日志输出")
	logsCmd.Flags().IntP("tail", "t", defaultTailLines, "只显示最后 N 行")
}

// lastLines 读出文件末尾的 n 行
func lastLines(logsFile string, n int) ([]string, error) {
	t, err := tail.TailFile(logsFile, tail.Config{
		Follow: false,
		ReOpen: false,
		Logger: tail.DiscardingLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("无法追踪日志文件: %w", err)
	}
	defer t.Stop()

	var lines []string
	for line := range t.Lines {
		if line.Err != nil {
			continue
		}
		lines = append(lines, line.Text)
		if len(lines) > n {
			lines = lines[len(lines)-n:]
		}
	}
	return lines, nil
}

func followLogs(ctx context.Context, logsFile string, tailLines int) error {
	lines, err := lastLines(logsFile, tailLines)
	if err != nil {
		return err
	}
	for _, line := range lines {
		printLogLine(line)
	}
	if len(lines) == tailLines {
		fmt.Fprintf(os.Stderr, "\n显示最后 %d 行。完整日志位于: %s\n", tailLines, logsFile)
		fmt.Fprintf(os.Stderr, "正在跟踪新的日志条目...\n\n")
	}

	t, err := tail.TailFile(logsFile, tail.Config{
		Follow:   true,
		ReOpen:   true,
		Logger:   tail.DiscardingLogger,
		Location: &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
	})
	if err != nil {
		return fmt.Errorf("无法追踪日志文件: %w", err)
	}
	defer t.Stop()

	for {
		select {
		case line := <-t.Lines:
			if line.Err != nil {
				continue
			}
			printLogLine(line.Text)
		case <-ctx.Done():
			return nil
		}
	}
}

func showLogs(logsFile string, tailLines int) error {
	lines, err := lastLines(logsFile, tailLines)
	if err != nil {
		return err
	}
	for _, line := range lines {
		printLogLine(line)
	}
	if len(lines) == tailLines {
		fmt.Fprintf(os.Stderr, "\n显示最后 %d 行。完整日志位于: %s\n", tailLines, logsFile)
	}
	return nil
}

// logFields 将一行 JSON 日志拆成消息、级别、时间与其余键值对
func logFields(lineText string) (msg any, level string, ts time.Time, kv []any, ok bool) {
	var data map[string]any
	if err := json.Unmarshal([]byte(lineText), &data); err != nil {
		return nil, "", time.Time{}, nil, false
	}
	msg = data["msg"]
	level, _ = data["level"].(string)
	if s, isStr := data["time"].(string); isStr {
		ts, _ = time.Parse(time.RFC3339, s)
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		switch k {
		case "msg", "level", "time":
			continue
		case "source":
			source, isMap := data[k].(map[string]any)
			if !isMap {
				continue
			}
			line, _ := source["line"].(float64)
			kv = append(kv, "source", fmt.Sprintf("%s:%d", source["file"], int(line)))
		default:
			kv = append(kv, k, data[k])
		}
	}
	return msg, level, ts, kv, true
}

func printLogLine(lineText string) {
	msg, level, ts, kv, ok := logFields(lineText)
	if !ok {
		return
	}
	log.SetTimeFunction(func(time.Time) time.Time {
		if ts.IsZero() {
			return time.Now()
		}
		return ts
	})
	switch level {
	case "DEBUG":
		log.Debug(msg, kv...)
	case "ERROR":
		log.Error(msg, kv...)
	case "WARN":
		log.Warn(msg, kv...)
	default:
		log.Info(msg, kv...)
	}
}
