package cmd

import (
	"os"
	"path/filepath"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"github.com/charmbracelet/x/term"
	"github.com/purpose168/chorus/internal/config"
	"github.com/spf13/cobra"
)

var dirsCmd = &cobra.Command{
	Use:   "dirs",
	Short: "打印 chorus 使用的目录",
	Long:  `打印全局配置目录与全局数据目录。项目级数据目录位于项目根目录下的 .chorus。`,
	Example: `
# 打印所有目录
chorus dirs

# 仅打印配置目录
chorus dirs config

# 仅打印数据目录
chorus dirs data
  `,
	Run: func(cmd *cobra.Command, args []string) {
		configDir := filepath.Dir(config.GlobalConfig())
		dataDir := filepath.Dir(config.GlobalConfigData())
		if term.IsTerminal(os.Stdout.Fd()) {
			t := table.New().
				Border(lipgloss.RoundedBorder()).
				StyleFunc(func(row, col int) lipgloss.Style {
					return lipgloss.NewStyle().Padding(0, 2)
				}).
				Row("Config", configDir).
				Row("Data", dataDir)
			lipgloss.Println(t)
			return
		}
		cmd.Println(configDir)
		cmd.Println(dataDir)
	},
}

var configDirCmd = &cobra.Command{
	Use:   "config",
	Short: "打印配置目录",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println(filepath.Dir(config.GlobalConfig()))
	},
}

var dataDirCmd = &cobra.Command{
	Use:   "data",
	Short: "打印数据目录",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println(filepath.Dir(config.GlobalConfigData()))
	},
}

func init() {
	dirsCmd.AddCommand(configDirCmd, dataDirCmd)
}
