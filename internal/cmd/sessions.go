package cmd

import (
	"fmt"
	"os"
	"time"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"github.com/MakeNowJust/heredoc"
	"github.com/charmbracelet/x/ansi"
	"github.com/charmbracelet/x/exp/ordered"
	"github.com/charmbracelet/x/term"
	"github.com/dustin/go-humanize"
	"github.com/purpose168/chorus/internal/session"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"session"},
	Short:   "列出会话",
	Long:    "列出所有会话，最近更新的排在前面，活动会话以 * 标记。",
	Example: heredoc.Doc(`
		# 列出会话
		chorus sessions

		# 重命名会话
		chorus sessions rename <id> "重构存储层"

		# 删除会话及其消息、用量与检查点
		chorus sessions delete <id>
	`),
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := setupApp(cmd)
		if err != nil {
			return err
		}
		defer app.Shutdown()

		list := app.Sessions.List()
		if len(list) == 0 {
			cmd.Println("还没有会话。")
			return nil
		}
		active, _ := app.Sessions.Active()

		if !term.IsTerminal(os.Stdout.Fd()) {
			for _, s := range list {
				cmd.Printf("%s\t%s\t%s\n", s.ID, s.Title, s.ProjectPath)
			}
			return nil
		}

		width, _, err := term.GetSize(os.Stdout.Fd())
		if err != nil {
			width = 80
		}
		col := columnWidth(width)

		t := table.New().
			Border(lipgloss.RoundedBorder()).
			StyleFunc(func(row, col int) lipgloss.Style {
				return lipgloss.NewStyle().Padding(0, 1)
			}).
			Headers("", "ID", "标题", "项目", "更新于")
		for _, s := range list {
			t.Row(
				activeMark(s, active),
				s.ID,
				ansi.Truncate(s.Title, col, "…"),
				ansi.Truncate(s.ProjectPath, col, "…"),
				humanize.Time(time.UnixMilli(s.UpdatedAt)),
			)
		}
		lipgloss.Println(t)
		return nil
	},
}

var sessionsRenameCmd = &cobra.Command{
	Use:   "rename <id> <title>",
	Short: "重命名会话",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := setupApp(cmd)
		if err != nil {
			return err
		}
		defer app.Shutdown()

		if err := app.Sessions.Rename(cmd.Context(), args[0], args[1]); err != nil {
			return fmt.Errorf("重命名会话失败: %w", err)
		}
		s, _ := app.Sessions.Get(args[0])
		cmd.Printf("会话已重命名为 %q\n", s.Title)
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:     "delete <id>...",
	Aliases: []string{"rm"},
	Short:   "删除会话",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := setupApp(cmd)
		if err != nil {
			return err
		}
		defer app.Shutdown()

		for _, id := range args {
			if err := app.Orchestrator.DeleteSession(cmd.Context(), id); err != nil {
				return fmt.Errorf("删除会话 %s 失败: %w", id, err)
			}
			cmd.Printf("已删除 %s\n", id)
		}
		return nil
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsRenameCmd, sessionsDeleteCmd)
}

func activeMark(s, active session.Session) string {
	if s.ID == active.ID {
		return "*"
	}
	return ""
}

// columnWidth 标题与项目列的宽度，ID、时间与边框约占 52 列
func columnWidth(termWidth int) int {
	return ordered.Clamp((termWidth-52)/2, 12, 60)
}
