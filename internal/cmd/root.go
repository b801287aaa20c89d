package cmd

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/colorprofile"
	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/x/exp/charmtone"
	"github.com/charmbracelet/x/term"
	"github.com/dustin/go-humanize"
	"github.com/purpose168/chorus/internal/app"
	"github.com/purpose168/chorus/internal/config"
	"github.com/purpose168/chorus/internal/db"
	"github.com/purpose168/chorus/internal/version"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.PersistentFlags().StringP("cwd", "c", "", "当前工作目录")
	rootCmd.PersistentFlags().StringP("data-dir", "D", "", "自定义 chorus 数据目录")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "调试")
	rootCmd.Flags().BoolP("help", "h", false, "帮助")

	rootCmd.AddCommand(
		dirsCmd,
		logsCmd,
		schemaCmd,
		modelsCmd,
		sessionsCmd,
		usageCmd,
		checkpointsCmd,
		validateCmd,
	)
}

var rootCmd = &cobra.Command{
	Use:   "chorus",
	Short: "编程助手的对话编排核心",
	Long:  "管理编程助手的会话、模型选择、检查点与令牌用量",
	Example: `
# 查看当前状态
chorus

# 在特定目录中启用调试日志运行
chorus -d -c /path/to/project

# 使用自定义数据目录运行
chorus -D /path/to/custom/.chorus

# 切换模型
chorus models use anthropic/claude-sonnet-4

# 打印版本
chorus -v
  `,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := setupApp(cmd)
		if err != nil {
			return err
		}
		defer app.Shutdown()

		sel := app.Orchestrator.ActiveModel()
		model := "未选择"
		if sel.Model != "" {
			model = sel.Provider + "/" + sel.Model
		}
		global := app.Usage.Global()
		cmd.Printf("模型: %s\n", model)
		cmd.Printf("会话: %d\n", len(app.Sessions.List()))
		cmd.Printf("令牌: %s\n", humanize.Comma(global.TotalTokens))
		return nil
	},
}

var heartbit = lipgloss.NewStyle().Foreground(charmtone.Dolly).SetString(`
   ▄▄▄▄▄▄    ▄▄▄▄▄▄
 ██████████▄██████████
████████████████████████
 ▀██████████████████▀
    ▀████████████▀
        ▀████▀
`)

// copied from cobra:
const defaultVersionTemplate = `{{with .DisplayName}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`

func Execute() {
	// cobra 没有提供打印版本的钩子，只能把带颜色的图案预先渲染进版本模板。
	if term.IsTerminal(os.Stdout.Fd()) {
		var b bytes.Buffer
		w := colorprofile.NewWriter(os.Stdout, os.Environ())
		w.Forward = &b
		_, _ = w.WriteString(heartbit.String())
		rootCmd.SetVersionTemplate(b.String() + "\n" + defaultVersionTemplate)
	}
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(version.Version),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}

// loadConfig 按全局标志加载配置
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	debug, _ := cmd.Flags().GetBool("debug")
	dataDir, _ := cmd.Flags().GetString("data-dir")

	cwd, err := ResolveCwd(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(cwd, dataDir, debug)
	if err != nil {
		return nil, err
	}
	if !shouldEnableMetrics(cfg) {
		cfg.Options.DisableMetrics = true
	}
	return cfg, nil
}

// setupApp 加载配置、连接数据库并创建应用实例
func setupApp(cmd *cobra.Command) (*app.App, error) {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	if err := createDotChorusDir(cfg.Options.DataDirectory); err != nil {
		return nil, err
	}

	// 连接到数据库；这也会运行迁移。
	conn, err := db.Connect(ctx, cfg.Options.DataDirectory)
	if err != nil {
		return nil, err
	}

	appInstance, err := app.New(ctx, conn, cfg)
	if err != nil {
		slog.Error("创建应用实例失败", "error", err)
		conn.Close()
		return nil, err
	}
	return appInstance, nil
}

func shouldEnableMetrics(cfg *config.Config) bool {
	if v, _ := strconv.ParseBool(os.Getenv("CHORUS_DISABLE_METRICS")); v {
		return false
	}
	if v, _ := strconv.ParseBool(os.Getenv("DO_NOT_TRACK")); v {
		return false
	}
	return !cfg.Options.DisableMetrics
}

func ResolveCwd(cmd *cobra.Command) (string, error) {
	cwd, _ := cmd.Flags().GetString("cwd")
	if cwd != "" {
		if err := os.Chdir(cwd); err != nil {
			return "", fmt.Errorf("切换目录失败: %w", err)
		}
		return cwd, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("获取当前工作目录失败: %w", err)
	}
	return cwd, nil
}

func createDotChorusDir(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("创建数据目录失败: %q %w", dir, err)
	}

	gitIgnorePath := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(gitIgnorePath); os.IsNotExist(err) {
		if err := os.WriteFile(gitIgnorePath, []byte("*\n"), 0o644); err != nil {
			return fmt.Errorf("创建 .gitignore 文件失败: %q %w", gitIgnorePath, err)
		}
	}
	return nil
}
