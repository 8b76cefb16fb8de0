package main

import (
	"fmt"

	"distill-go/internal/cache"
	"distill-go/internal/seed"
	"distill-go/internal/utils"

	"github.com/spf13/cobra"
)

var cacheKeyFlags struct {
	requirements string
	variant      int
}

var cacheKeyCmd = &cobra.Command{
	Use:   "cache-key <text>",
	Short: "计算文本与要求集合对应的缓存键",
	Long: `输出与流水线相同的缓存键，可用于在缓存文件中查找某条示范。
--variant 大于 0 时按变体文本计算（samples-per-seed > 1 时使用）。`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reqs := utils.ParseRequirements(cacheKeyFlags.requirements, nil)
		text := args[0]
		if cacheKeyFlags.variant > 0 {
			text = seed.VariantText(text, cacheKeyFlags.variant)
		}
		fmt.Fprintln(cmd.OutOrStdout(), cache.Key(text, reqs))
		return nil
	},
}

func init() {
	cacheKeyCmd.Flags().StringVar(&cacheKeyFlags.requirements, "requirements", "", "写作要求，分号/逗号/换行分隔")
	cacheKeyCmd.Flags().IntVar(&cacheKeyFlags.variant, "variant", 0, "变体序号")
	rootCmd.AddCommand(cacheKeyCmd)
}
