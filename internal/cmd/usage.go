package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"github.com/charmbracelet/x/term"
	"github.com/dustin/go-humanize"
	"github.com/purpose168/chorus/internal/usage"
	"github.com/spf13/cobra"
)

var usageCmd = &cobra.Command{
	Use:   "usage [session-id]",
	Short: "显示令牌用量",
	Long:  "显示每个会话与全局的累计令牌用量及估算费用。",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")

		app, err := setupApp(cmd)
		if err != nil {
			return err
		}
		defer app.Shutdown()

		ctx := cmd.Context()
		type row struct {
			ID    string           `json:"id"`
			Title string           `json:"title"`
			Usage usage.TokenUsage `json:"usage"`
		}
		var rows []row
		for _, s := range app.Sessions.List() {
			if len(args) == 1 && s.ID != args[0] {
				continue
			}
			rows = append(rows, row{ID: s.ID, Title: s.Title, Usage: app.Usage.Session(ctx, s.ID)})
		}
		if len(args) == 1 && len(rows) == 0 {
			return fmt.Errorf("会话 %s 不存在", args[0])
		}
		global := app.Usage.Global()

		if jsonOutput {
			data, err := json.Marshal(struct {
				Sessions []row           `json:"sessions"`
				Global   usage.TokenUsage `json:"global"`
			}{rows, global})
			if err != nil {
				return err
			}
			cmd.Println(string(data))
			return nil
		}

		if !term.IsTerminal(os.Stdout.Fd()) {
			for _, r := range rows {
				cmd.Printf("%s\t%d\t%d\t%.4f\n", r.ID, r.Usage.PromptTokens, r.Usage.CompletionTokens, r.Usage.EstimatedCost)
			}
			cmd.Printf("global\t%d\t%d\t%.4f\n", global.PromptTokens, global.CompletionTokens, global.EstimatedCost)
			return nil
		}

		t := table.New().
			Border(lipgloss.RoundedBorder()).
			StyleFunc(func(row, col int) lipgloss.Style {
				s := lipgloss.NewStyle().Padding(0, 1)
				if col > 0 {
					s = s.Align(lipgloss.Right)
				}
				return s
			}).
			Headers("会话", "输入", "输出", "合计", "费用")
		for _, r := range rows {
			t.Row(usageRow(r.Title, r.Usage)...)
		}
		t.Row(usageRow("全局", global)...)
		lipgloss.Println(t)
		return nil
	},
}

func init() {
	usageCmd.Flags().Bool("json", false, "以 JSON 格式输出")
}

func usageRow(label string, u usage.TokenUsage) []string {
	return []string{
		label,
		humanize.Comma(u.PromptTokens),
		humanize.Comma(u.CompletionTokens),
		humanize.Comma(u.TotalTokens),
		"$" + humanize.CommafWithDigits(u.EstimatedCost, 4),
	}
}
