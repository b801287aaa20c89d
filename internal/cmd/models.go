package cmd

import (
	"cmp"
	"fmt"
	"os"
	"strings"

	"charm.land/lipgloss/v2/tree"
	"github.com/MakeNowJust/heredoc"
	"github.com/mattn/go-isatty"
	"github.com/purpose168/chorus/internal/provider"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models [term]",
	Short: "列出所有提供商的可用模型",
	Long: heredoc.Doc(`
		列出合并后的模型目录。已配置且支持列表的提供商拉取远程目录，
		其余使用静态目录。免费模型排在前面，可按关键字模糊搜索。
	`),
	Example: heredoc.Doc(`
		# 列出所有可用模型
		chorus models

		# 模糊搜索模型
		chorus models sonnet
	`),
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := setupApp(cmd)
		if err != nil {
			return err
		}
		defer app.Shutdown()

		models, err := app.Resolver.GetModels(cmd.Context())
		if err != nil {
			return err
		}

		term := strings.Join(args, " ")
		models = filterModels(models, term)
		if len(models) == 0 {
			if term == "" {
				return fmt.Errorf("未找到可用模型")
			}
			return fmt.Errorf("未找到匹配 %q 的模型", term)
		}

		if !isatty.IsTerminal(os.Stdout.Fd()) {
			for _, m := range models {
				cmd.Println(m.Provider + "/" + m.ID)
			}
			return nil
		}

		active := app.Orchestrator.ActiveModel()
		cmd.Println(modelTree(models, active.Provider, active.Model))
		return nil
	},
}

var modelsUseCmd = &cobra.Command{
	Use:   "use <model>",
	Short: "设置活动模型",
	Example: heredoc.Doc(`
		# 模型 ID 唯一时可以省略提供商
		chorus models use llama3.2

		# 指定提供商
		chorus models use openrouter/meta-llama/llama-3.3-70b-instruct
	`),
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := setupApp(cmd)
		if err != nil {
			return err
		}
		defer app.Shutdown()

		sel, err := app.SelectModel(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		cmd.Printf("活动模型: %s/%s\n", sel.Provider, sel.Model)
		return nil
	},
}

func init() {
	modelsCmd.AddCommand(modelsUseCmd)
}

type modelSource []provider.ModelInfo

func (s modelSource) String(i int) string {
	return s[i].Provider + "/" + s[i].ID + " " + s[i].Name
}

func (s modelSource) Len() int { return len(s) }

// filterModels 模糊匹配提供商、模型 ID 与名称；term 为空时原样返回
// 有关键字时按匹配得分排序
func filterModels(models []provider.ModelInfo, term string) []provider.ModelInfo {
	term = strings.TrimSpace(term)
	if term == "" {
		return models
	}
	matches := fuzzy.FindFrom(term, modelSource(models))
	out := make([]provider.ModelInfo, 0, len(matches))
	for _, m := range matches {
		out = append(out, models[m.Index])
	}
	return out
}

// modelTree 按提供商分组，保持目录原有的模型顺序
func modelTree(models []provider.ModelInfo, activeProvider, activeModel string) *tree.Tree {
	t := tree.New()
	nodes := map[string]*tree.Tree{}
	for _, m := range models {
		node, ok := nodes[m.Provider]
		if !ok {
			node = tree.Root(cmp.Or(m.ProviderName, m.Provider))
			nodes[m.Provider] = node
			t.Child(node)
		}
		node.Child(modelLabel(m, m.Provider == activeProvider && m.ID == activeModel))
	}
	return t
}

func modelLabel(m provider.ModelInfo, active bool) string {
	var b strings.Builder
	b.WriteString(m.ID)
	if m.Free {
		b.WriteString(" (免费)")
	} else if m.Pricing.InputPerMillion > 0 || m.Pricing.OutputPerMillion > 0 {
		fmt.Fprintf(&b, " ($%.2f/$%.2f)", m.Pricing.InputPerMillion, m.Pricing.OutputPerMillion)
	}
	if active {
		b.WriteString(" *")
	}
	return b.String()
}
