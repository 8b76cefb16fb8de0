package main

import (
	"encoding/json"
	"fmt"

	"distill-go/internal/cleaner"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var cleanOutput string

var cleanCmd = &cobra.Command{
	Use:   "clean <dataset.jsonl>",
	Short: "清洗数据集中被元数据包裹的 input 字段",
	Long: `逐行读取 JSONL 数据集，把 input 字段里残留的模型响应元数据剥离为正文。
不指定 --output 时就地改写。`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := logrus.New()
		logger.SetOutput(cmd.ErrOrStderr())

		report, err := cleaner.CleanFile(args[0], cleanOutput, logger)
		if err != nil {
			return err
		}
		data, _ := json.Marshal(report)
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	cleanCmd.Flags().StringVarP(&cleanOutput, "output", "o", "", "输出路径，默认就地改写")
	rootCmd.AddCommand(cleanCmd)
}
