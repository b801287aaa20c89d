package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/purpose168/chorus/internal/config"
	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:    "schema",
	Short:  "生成配置文件的 JSON schema",
	Long:   "为 chorus.json 配置文件生成 JSON schema",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		bts, err := json.MarshalIndent(config.Schema(), "", "  ")
		if err != nil {
			return fmt.Errorf("无法序列化 schema: %w", err)
		}
		cmd.Println(string(bts))
		return nil
	},
}
