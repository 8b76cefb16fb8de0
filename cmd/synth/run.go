package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"

	"distill-go/internal/bootstrap"
	"distill-go/internal/config"
	"distill-go/internal/dataset"
	"distill-go/internal/dto"
	"distill-go/internal/pipeline"
	"distill-go/internal/service"
	"distill-go/internal/utils"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var runFlags struct {
	seedsFile      string
	text           string
	requirements   string
	domains        string
	output         string
	ruleSeeds      int
	modelSeeds     int
	samplesPerSeed int
	targetCount    int
	workers        int
	randomSeed     int64
	appendMode     bool
	force          bool
	shuffle        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "执行一次数据集生成",
	Long: `按配置文件和命令行参数执行一次生成。命令行参数覆盖配置文件。

示例:
  synth run --seeds seeds.txt --samples-per-seed 2 --target-count 100
  synth run --text "一段待润色的文字" --requirements "结构清晰;语言简洁" --append`,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.seedsFile, "seeds", "", "种子文件，每行一个种子")
	f.StringVar(&runFlags.text, "text", "", "直接给出的种子文本")
	f.StringVar(&runFlags.requirements, "requirements", "", "写作要求，分号/逗号/换行分隔")
	f.StringVar(&runFlags.domains, "domains", "", "生成种子使用的领域列表")
	f.StringVarP(&runFlags.output, "output", "o", "", "输出数据集路径")
	f.IntVar(&runFlags.ruleSeeds, "rule-seeds", 0, "规则生成的种子数")
	f.IntVar(&runFlags.modelSeeds, "model-seeds", 0, "教师模型生成的种子数")
	f.IntVar(&runFlags.samplesPerSeed, "samples-per-seed", 1, "每个种子的变体数")
	f.IntVar(&runFlags.targetCount, "target-count", 0, "目标记录数，0 表示不限制")
	f.IntVar(&runFlags.workers, "workers", 1, "并发调用教师模型的 worker 数")
	f.Int64Var(&runFlags.randomSeed, "random-seed", 0, "随机种子，0 表示使用当前时间")
	f.BoolVar(&runFlags.appendMode, "append", false, "追加到已有数据集，编号接续")
	f.BoolVar(&runFlags.force, "force", false, "忽略缓存，强制重新生成")
	f.BoolVar(&runFlags.shuffle, "shuffle", true, "打乱种子顺序")
	rootCmd.AddCommand(runCmd)
}

// startRequest 只把显式给出的参数写入请求，其余沿用配置
func startRequest(cmd *cobra.Command) *dto.StartRunRequest {
	f := cmd.Flags()
	req := &dto.StartRunRequest{
		SeedsFile:    runFlags.seedsFile,
		Text:         runFlags.text,
		Requirements: runFlags.requirements,
		Domains:      runFlags.domains,
		OutputPath:   runFlags.output,
	}
	intFlag := func(name string, v int) *int {
		if f.Changed(name) {
			return &v
		}
		return nil
	}
	boolFlag := func(name string, v bool) *bool {
		if f.Changed(name) {
			return &v
		}
		return nil
	}
	req.RuleSeedCount = intFlag("rule-seeds", runFlags.ruleSeeds)
	req.ModelSeedCount = intFlag("model-seeds", runFlags.modelSeeds)
	req.SamplesPerSeed = intFlag("samples-per-seed", runFlags.samplesPerSeed)
	req.TargetCount = intFlag("target-count", runFlags.targetCount)
	req.Workers = intFlag("workers", runFlags.workers)
	req.Append = boolFlag("append", runFlags.appendMode)
	req.ForceRegenerate = boolFlag("force", runFlags.force)
	req.ShuffleSeeds = boolFlag("shuffle", runFlags.shuffle)
	if f.Changed("random-seed") {
		seed := runFlags.randomSeed
		req.RandomSeed = &seed
	}
	return req
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	logger := bootstrap.NewLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	req := startRequest(cmd)
	if err := utils.ValidateBinding(req); err != nil {
		return fmt.Errorf("参数无效: %w", err)
	}

	plan, err := service.BuildRunPlan(cfg, req, logger)
	if err != nil {
		return err
	}

	redisClient, err := bootstrap.NewRedisClient(ctx, cfg)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	store, err := bootstrap.NewStore(cfg, redisClient, logger)
	if err != nil {
		return fmt.Errorf("初始化示范缓存失败: %w", err)
	}
	defer store.Close()

	teacher, err := bootstrap.NewTeacher(cfg, redisClient, logger)
	if err != nil {
		return fmt.Errorf("初始化教师模型失败: %w", err)
	}

	writer, err := dataset.Open(plan.OutputPath, plan.Mode)
	if err != nil {
		return err
	}
	defer writer.Close()

	logger.WithFields(logrus.Fields{
		"output":     plan.OutputPath,
		"mode":       plan.Mode.String(),
		"start_id":   writer.Start(),
		"file_seeds": len(plan.Seeds),
	}).Info("开始生成")

	opts := plan.Options
	opts.OnEvent = func(ev pipeline.Event) {
		if ev.Type == pipeline.EventState {
			logger.WithFields(logrus.Fields{
				"state":    ev.State,
				"requests": ev.Stats.Requests,
			}).Debug("状态切换")
		}
	}
	orch := pipeline.New(opts, teacher, store, logger, rand.New(rand.NewSource(plan.RandomSeed)))

	stats, runErr := orch.Run(ctx, plan.Seeds, writer)
	if err := writer.Close(); err != nil && runErr == nil {
		runErr = err
	}

	summary, _ := json.MarshalIndent(struct {
		pipeline.Stats
		YieldRate float64 `json:"yield_rate"`
		Output    string  `json:"output"`
		NextID    int     `json:"next_id"`
	}{*stats, stats.YieldRate(), plan.OutputPath, writer.Next()}, "", "  ")
	fmt.Fprintln(cmd.OutOrStdout(), string(summary))

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}
