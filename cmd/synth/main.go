package main

import (
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "synth",
	Short: "教师示范数据集生成工具",
	Long: `synth 调用教师模型为种子段落生成润色示范，并写出 JSONL 数据集。

常用命令:
  run        执行一次生成
  clean      清洗已有数据集中被元数据包裹的 input
  cache-key  计算 (文本, 要求) 对应的缓存键`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径（默认查找 ./config.yaml 与 ./config/config.yaml）")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
