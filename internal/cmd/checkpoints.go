package cmd

import (
	"fmt"
	"os"
	"time"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"github.com/charmbracelet/x/term"
	"github.com/dustin/go-humanize"
	"github.com/purpose168/chorus/internal/event"
	"github.com/spf13/cobra"
)

var checkpointsCmd = &cobra.Command{
	Use:     "checkpoints <session-id>",
	Aliases: []string{"cp"},
	Short:   "列出会话的检查点",
	Long:    "列出在变更类轮次开始前创建的检查点，最新的排在前面。",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := setupApp(cmd)
		if err != nil {
			return err
		}
		defer app.Shutdown()

		list, err := app.Checkpoints.List(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(list) == 0 {
			cmd.Println("该会话没有检查点。")
			return nil
		}

		if !term.IsTerminal(os.Stdout.Fd()) {
			for _, c := range list {
				cmd.Printf("%s\t%d\t%s\n", c.ID, len(c.Files), c.Label)
			}
			return nil
		}

		t := table.New().
			Border(lipgloss.RoundedBorder()).
			StyleFunc(func(row, col int) lipgloss.Style {
				return lipgloss.NewStyle().Padding(0, 1)
			}).
			Headers("ID", "说明", "文件", "创建于")
		for _, c := range list {
			t.Row(c.ID, c.Label, fmt.Sprint(len(c.Files)), humanize.Time(time.UnixMilli(c.CreatedAt)))
		}
		lipgloss.Println(t)
		return nil
	},
}

var checkpointsRestoreCmd = &cobra.Command{
	Use:   "restore <session-id> <checkpoint-id>",
	Short: "将文件恢复到检查点时的状态",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := setupApp(cmd)
		if err != nil {
			return err
		}
		defer app.Shutdown()

		res := app.Checkpoints.Restore(cmd.Context(), args[0], args[1])
		event.CheckpointRestored("restored", res.Restored, "errors", len(res.Errors))
		cmd.Printf("已恢复 %d 个文件\n", res.Restored)
		for _, e := range res.Errors {
			cmd.PrintErrf("  %s: %s\n", e.Path, e.Message)
		}
		if len(res.Errors) > 0 {
			return fmt.Errorf("%d 个文件恢复失败", len(res.Errors))
		}
		return nil
	},
}

var checkpointsDeleteCmd = &cobra.Command{
	Use:     "delete <session-id> <checkpoint-id>",
	Aliases: []string{"rm"},
	Short:   "删除检查点",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := setupApp(cmd)
		if err != nil {
			return err
		}
		defer app.Shutdown()

		if err := app.Checkpoints.Delete(cmd.Context(), args[0], args[1]); err != nil {
			return fmt.Errorf("删除检查点失败: %w", err)
		}
		cmd.Printf("已删除 %s\n", args[1])
		return nil
	},
}

func init() {
	checkpointsCmd.AddCommand(checkpointsRestoreCmd, checkpointsDeleteCmd)
}
