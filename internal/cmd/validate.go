package cmd

import (
	"errors"
	"fmt"

	"github.com/MakeNowJust/heredoc"
	"github.com/purpose168/chorus/internal/provider"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <provider>",
	Short: "校验提供商凭据",
	Long: heredoc.Doc(`
		校验提供商的 API 密钥。支持列表的提供商请求模型列表，
		其余提供商发起一次最小生成调用。本地提供商只检查连通性。
	`),
	Example: heredoc.Doc(`
		# 校验已保存的密钥
		chorus validate openai

		# 保存新密钥后校验
		chorus validate anthropic --key sk-ant-...
	`),
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := setupApp(cmd)
		if err != nil {
			return err
		}
		defer app.Shutdown()

		ctx := cmd.Context()
		id := args[0]
		if cmd.Flags().Changed("key") {
			key, _ := cmd.Flags().GetString("key")
			if err := app.Orchestrator.SetCredential(ctx, id, key); err != nil {
				return err
			}
		}

		if err := app.Resolver.ValidateAPIKey(ctx, id); err != nil {
			var perr *provider.Error
			if errors.As(err, &perr) {
				cmd.PrintErrln(perr.Hint())
			}
			return fmt.Errorf("校验失败: %w", err)
		}
		cmd.Printf("%s 可用\n", id)
		return nil
	},
}

func init() {
	validateCmd.Flags().String("key", "", "先保存该密钥再校验，空字符串清除已保存的密钥")
}
