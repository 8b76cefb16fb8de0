package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"sync"
	"time"

	"distill-go/internal/cache"
	"distill-go/internal/config"
	"distill-go/internal/dataset"
	"distill-go/internal/dto"
	"distill-go/internal/metrics"
	"distill-go/internal/models"
	"distill-go/internal/pipeline"
	"distill-go/internal/repository"
	"distill-go/internal/seed"
	"distill-go/internal/utils"
	"distill-go/pkg/model_caller"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// maxEventHistory 每个运行在内存中保留的事件数
const maxEventHistory = 1000

var (
	// ErrRunNotFound 运行不存在
	ErrRunNotFound = errors.New("运行不存在")
	// ErrOutputBusy 同一输出路径已有运行在写入
	ErrOutputBusy = errors.New("该输出路径已有运行中的任务")
	// ErrRunFinished 运行已结束
	ErrRunFinished = errors.New("运行已结束")
)

// RunManager 运行管理器
type RunManager struct {
	runRepo    *repository.RunRepository
	recordRepo *repository.RunRecordRepository
	skipRepo   *repository.SkipEventRepository
	teacher    model_caller.Teacher
	store      cache.Store
	cfg        *config.Config
	logger     logrus.FieldLogger

	// 内存中的运行状态
	runs     map[string]*RunContext
	outputs  map[string]string
	runsLock sync.RWMutex
	wg       sync.WaitGroup
}

// RunContext 运行上下文
type RunContext struct {
	RunID      string
	OutputPath string
	Params     map[string]interface{}
	StartID    int
	StartTime  time.Time
	CancelFunc context.CancelFunc

	mu           sync.RWMutex
	status       string
	state        pipeline.State
	stats        pipeline.Stats
	endTime      *time.Time
	errorMessage string
	stopped      bool

	// 用于广播的事件历史和订阅者管理
	eventHistory     []*dto.ProgressEvent
	eventHistoryLock sync.RWMutex
	subscribers      map[chan *dto.ProgressEvent]bool
	subscribersLock  sync.RWMutex
	done             chan struct{}
}

// AddEvent 添加事件到历史并广播给所有订阅者
func (rc *RunContext) AddEvent(event *dto.ProgressEvent) {
	rc.eventHistoryLock.Lock()
	rc.eventHistory = append(rc.eventHistory, event)
	if len(rc.eventHistory) > maxEventHistory {
		rc.eventHistory = rc.eventHistory[len(rc.eventHistory)-maxEventHistory:]
	}
	rc.eventHistoryLock.Unlock()

	rc.subscribersLock.RLock()
	for ch := range rc.subscribers {
		select {
		case ch <- event:
		default:
			// 通道满了，跳过（避免阻塞）
		}
	}
	rc.subscribersLock.RUnlock()
}

// Subscribe 订阅事件（返回一个接收事件的通道）
func (rc *RunContext) Subscribe() chan *dto.ProgressEvent {
	ch := make(chan *dto.ProgressEvent, 200)

	rc.subscribersLock.Lock()
	if rc.subscribers == nil {
		rc.subscribers = make(map[chan *dto.ProgressEvent]bool)
	}
	rc.subscribers[ch] = true
	rc.subscribersLock.Unlock()

	return ch
}

// Unsubscribe 取消订阅
// 不关闭通道，SSE handler 通过 context.Done() 检测断开
func (rc *RunContext) Unsubscribe(ch chan *dto.ProgressEvent) {
	rc.subscribersLock.Lock()
	delete(rc.subscribers, ch)
	rc.subscribersLock.Unlock()
}

// GetEventHistory 获取事件历史的副本
func (rc *RunContext) GetEventHistory() []*dto.ProgressEvent {
	rc.eventHistoryLock.RLock()
	defer rc.eventHistoryLock.RUnlock()

	history := make([]*dto.ProgressEvent, len(rc.eventHistory))
	copy(history, rc.eventHistory)
	return history
}

// Done 运行结束时关闭
func (rc *RunContext) Done() <-chan struct{} {
	return rc.done
}

// Finished 是否已结束
func (rc *RunContext) Finished() bool {
	select {
	case <-rc.done:
		return true
	default:
		return false
	}
}

// Info 运行信息快照
func (rc *RunContext) Info() dto.RunInfo {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	end := time.Now()
	if rc.endTime != nil {
		end = *rc.endTime
	}
	return dto.RunInfo{
		RunID:        rc.RunID,
		Status:       rc.status,
		State:        string(rc.state),
		OutputPath:   rc.OutputPath,
		Params:       rc.Params,
		Stats:        toRunStats(rc.stats),
		RunTime:      end.Sub(rc.StartTime).Seconds(),
		Finished:     rc.endTime != nil,
		ErrorMessage: rc.errorMessage,
	}
}

func toRunStats(s pipeline.Stats) dto.RunStats {
	return dto.RunStats{
		Seeds:        s.Seeds,
		Requests:     s.Requests,
		Emitted:      s.Emitted,
		CacheHits:    s.CacheHits,
		TeacherCalls: s.TeacherCalls,
		Skipped:      s.Skipped,
		SeedFailures: s.SeedFailures,
		YieldRate:    s.YieldRate(),
	}
}

// NewRunManager 创建运行管理器
// 启动时把上次遗留的 running 记录标记为 stopped。
func NewRunManager(
	runRepo *repository.RunRepository,
	recordRepo *repository.RunRecordRepository,
	skipRepo *repository.SkipEventRepository,
	teacher model_caller.Teacher,
	store cache.Store,
	cfg *config.Config,
	logger logrus.FieldLogger,
) *RunManager {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	rm := &RunManager{
		runRepo:    runRepo,
		recordRepo: recordRepo,
		skipRepo:   skipRepo,
		teacher:    teacher,
		store:      store,
		cfg:        cfg,
		logger:     logger.WithField("component", "run_manager"),
		runs:       make(map[string]*RunContext),
		outputs:    make(map[string]string),
	}

	if n, err := runRepo.MarkInterrupted(); err != nil {
		rm.logger.WithError(err).Warn("标记中断的运行失败")
	} else if n > 0 {
		rm.logger.WithField("count", n).Warn("上次退出时仍在运行的任务已标记为 stopped")
	}
	return rm
}

// RunPlan 一次运行的完整参数，由请求和配置合并得到
type RunPlan struct {
	Options    pipeline.Options
	Seeds      []seed.Seed
	OutputPath string
	Mode       dataset.Mode
	RandomSeed int64
	Params     map[string]interface{}
}

// BuildRunPlan 合并请求与配置默认值并加载种子文件
// text 只在没有其他种子时作为单个种子使用；没有任何种子来源时返回 pipeline.ErrNoSeeds。
func BuildRunPlan(cfg *config.Config, req *dto.StartRunRequest, logger logrus.FieldLogger) (*RunPlan, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	gen := cfg.Generation
	seedsFile := gen.SeedsFile
	text := gen.Text
	if req.SeedsFile != "" || req.Text != "" {
		seedsFile, text = req.SeedsFile, req.Text
	}

	var seeds []seed.Seed
	if seedsFile != "" {
		loaded, report, err := seed.LoadSeedsFile(seedsFile)
		if err != nil {
			return nil, err
		}
		for _, e := range report.Errors {
			logger.WithError(e).WithField("path", seedsFile).Warn("跳过格式错误的种子行")
		}
		seeds = append(seeds, loaded...)
	}

	reqText := gen.Requirements
	if req.Requirements != "" {
		reqText = req.Requirements
	}
	domains := gen.Domains
	if req.Domains != "" {
		domains = req.Domains
	}

	opts := pipeline.Options{
		RuleSeedCount:   intOr(req.RuleSeedCount, gen.RuleSeedCount),
		ModelSeedCount:  intOr(req.ModelSeedCount, gen.ModelSeedCount),
		SamplesPerSeed:  intOr(req.SamplesPerSeed, gen.SamplesPerSeed),
		TargetCount:     intOr(req.TargetCount, gen.TargetCount),
		Requirements:    utils.ParseRequirements(reqText, gen.DefaultRequirements),
		Domains:         seed.ParseDomains(domains),
		ForceRegenerate: boolOr(req.ForceRegenerate, gen.ForceRegenerate),
		ShuffleSeeds:    boolOr(req.ShuffleSeeds, gen.ShuffleSeeds),
		Workers:         intOr(req.Workers, gen.Workers),
		FallbackText:    text,
	}

	if len(seeds) == 0 && opts.RuleSeedCount == 0 && opts.ModelSeedCount == 0 && len(seed.FromText(text)) == 0 {
		return nil, pipeline.ErrNoSeeds
	}

	outputPath := cfg.Output.Path
	if req.OutputPath != "" {
		outputPath = req.OutputPath
	}
	outputPath = filepath.Clean(outputPath)

	mode := dataset.ModeOverwrite
	if boolOr(req.Append, gen.Append) {
		mode = dataset.ModeAppend
	}

	randomSeed := gen.RandomSeed
	if req.RandomSeed != nil {
		randomSeed = *req.RandomSeed
	}
	if randomSeed == 0 {
		randomSeed = time.Now().UnixNano()
	}

	return &RunPlan{
		Options:    opts,
		Seeds:      seeds,
		OutputPath: outputPath,
		Mode:       mode,
		RandomSeed: randomSeed,
		Params: map[string]interface{}{
			"seeds_file":       seedsFile,
			"file_seeds":       len(seeds),
			"requirements":     opts.Requirements,
			"rule_seed_count":  opts.RuleSeedCount,
			"model_seed_count": opts.ModelSeedCount,
			"samples_per_seed": opts.SamplesPerSeed,
			"target_count":     opts.TargetCount,
			"workers":          opts.Workers,
			"force_regenerate": opts.ForceRegenerate,
			"shuffle_seeds":    opts.ShuffleSeeds,
			"mode":             mode.String(),
			"random_seed":      randomSeed,
		},
	}, nil
}

func intOr(v *int, def int) int {
	if v != nil {
		return *v
	}
	return def
}

func boolOr(v *bool, def bool) bool {
	if v != nil {
		return *v
	}
	return def
}

// StartRun 启动运行
// 输出文件在此处打开，打开失败直接返回错误，不会产生任何教师调用。
func (rm *RunManager) StartRun(req *dto.StartRunRequest) (*dto.StartRunResponse, error) {
	root := rm.cfg.Output.GetRoot()
	for _, p := range []string{req.SeedsFile, req.OutputPath} {
		if p == "" {
			continue
		}
		if _, err := utils.ResolveUnder(root, p); err != nil {
			return nil, err
		}
	}

	plan, err := BuildRunPlan(rm.cfg, req, rm.logger)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()

	rm.runsLock.Lock()
	if owner, busy := rm.outputs[plan.OutputPath]; busy {
		rm.runsLock.Unlock()
		return nil, fmt.Errorf("%w: %s (%s)", ErrOutputBusy, plan.OutputPath, owner)
	}
	rm.outputs[plan.OutputPath] = runID
	rm.runsLock.Unlock()

	release := func() {
		rm.runsLock.Lock()
		delete(rm.outputs, plan.OutputPath)
		rm.runsLock.Unlock()
	}

	writer, err := dataset.Open(plan.OutputPath, plan.Mode)
	if err != nil {
		release()
		return nil, err
	}

	run := &models.Run{
		RunID:      runID,
		Status:     models.RunStatusRunning,
		OutputPath: plan.OutputPath,
		Params:     plan.Params,
		StartID:    writer.Start(),
		StartedAt:  time.Now(),
	}
	if err := rm.runRepo.Create(run); err != nil {
		writer.Close()
		release()
		return nil, fmt.Errorf("创建运行记录失败: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runCtx := &RunContext{
		RunID:      runID,
		OutputPath: plan.OutputPath,
		Params:     plan.Params,
		StartID:    writer.Start(),
		StartTime:  run.StartedAt,
		CancelFunc: cancel,
		status:     models.RunStatusRunning,
		state:      pipeline.StateInit,
		done:       make(chan struct{}),
	}

	rm.runsLock.Lock()
	rm.runs[runID] = runCtx
	rm.runsLock.Unlock()

	rm.logger.WithFields(logrus.Fields{
		"run_id":   runID,
		"output":   plan.OutputPath,
		"mode":     plan.Mode.String(),
		"start_id": writer.Start(),
	}).Info("运行已启动")

	rm.wg.Add(1)
	go func() {
		defer rm.wg.Done()
		// 先释放输出路径再通知结束，Wait 返回后即可复用该路径
		defer close(runCtx.done)
		defer release()
		rm.runPipeline(ctx, runCtx, plan, writer)
	}()

	return &dto.StartRunResponse{
		Success: true,
		RunID:   runID,
		Status:  models.RunStatusRunning,
		StartID: writer.Start(),
	}, nil
}

func (rm *RunManager) runPipeline(ctx context.Context, rc *RunContext, plan *RunPlan, writer *dataset.Writer) {
	metrics.ActiveRuns.Inc()
	defer metrics.ActiveRuns.Dec()

	logger := rm.logger.WithField("run_id", rc.RunID)

	opts := plan.Options
	opts.OnEvent = func(ev pipeline.Event) {
		rm.handleEvent(rc, plan, ev)
	}
	orch := pipeline.New(opts, rm.teacher, rm.store, logger, rand.New(rand.NewSource(plan.RandomSeed)))

	stats, runErr := orch.Run(ctx, plan.Seeds, writer)
	if err := writer.Close(); err != nil && runErr == nil {
		runErr = err
	}

	status := models.RunStatusFinished
	errMsg := ""
	rc.mu.Lock()
	switch {
	case runErr == nil:
	case rc.stopped && errors.Is(runErr, context.Canceled):
		status = models.RunStatusStopped
		errMsg = "运行被手动停止"
	default:
		status = models.RunStatusError
		errMsg = runErr.Error()
	}
	now := time.Now()
	rc.status = status
	rc.stats = *stats
	rc.endTime = &now
	rc.errorMessage = errMsg
	rc.mu.Unlock()

	result := models.JSONMap{
		"seeds":         stats.Seeds,
		"requests":      stats.Requests,
		"emitted":       stats.Emitted,
		"skipped":       stats.Skipped,
		"cache_hits":    stats.CacheHits,
		"teacher_calls": stats.TeacherCalls,
		"seed_failures": stats.SeedFailures,
		"yield_rate":    stats.YieldRate(),
		"next_id":       writer.Next(),
	}
	if err := rm.runRepo.UpdateProgress(rc.RunID, stats.Requests, stats.Emitted, stats.Skipped, stats.CacheHits, stats.TeacherCalls); err != nil {
		logger.WithError(err).Warn("保存运行计数失败")
	}
	if err := rm.runRepo.Finish(rc.RunID, status, result, errMsg); err != nil {
		logger.WithError(err).Warn("保存运行结果失败")
	}

	runStats := toRunStats(*stats)
	rc.AddEvent(&dto.ProgressEvent{
		Type:     "finished",
		RunID:    rc.RunID,
		State:    string(stats.State),
		Progress: stats.Finished(),
		Total:    stats.Requests,
		Percent:  percent(stats.Finished(), stats.Requests),
		Message:  status,
		Stats:    &runStats,
	})

	logger.WithFields(logrus.Fields{
		"status":  status,
		"emitted": stats.Emitted,
		"skipped": stats.Skipped,
	}).Info("运行结束")
}

func percent(done, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(done) * 100 / float64(total)
}

// handleEvent 把流水线事件写入台账并广播
func (rm *RunManager) handleEvent(rc *RunContext, plan *RunPlan, ev pipeline.Event) {
	rc.mu.Lock()
	rc.stats = ev.Stats
	if ev.Type == pipeline.EventState {
		rc.state = ev.State
	}
	rc.mu.Unlock()

	logger := rm.logger.WithField("run_id", rc.RunID)
	index := ev.Index
	progress := &dto.ProgressEvent{
		Type:     string(ev.Type),
		RunID:    rc.RunID,
		State:    string(ev.Stats.State),
		Reason:   ev.Reason,
		Progress: ev.Stats.Finished(),
		Total:    ev.Stats.Requests,
		Percent:  percent(ev.Stats.Finished(), ev.Stats.Requests),
	}

	switch ev.Type {
	case pipeline.EventEmit:
		recordID := ev.Record.ID
		progress.Index = &index
		progress.RecordID = &recordID
		progress.CacheHit = ev.CacheHit
		err := rm.recordRepo.Create(&models.RunRecord{
			RunID:        rc.RunID,
			RecordID:     ev.Record.ID,
			Input:        ev.Record.Input,
			Output:       ev.Record.Output,
			Requirements: models.StringList(ev.Record.Requirements),
			Variant:      ev.Record.Variant,
			CacheKey:     ev.CacheKey,
			CacheHit:     ev.CacheHit,
		})
		if err != nil {
			logger.WithError(err).Warn("保存运行记录失败")
		}

	case pipeline.EventSkip, pipeline.EventSeedFailure:
		progress.Index = &index
		kind := "request"
		if ev.Type == pipeline.EventSeedFailure {
			kind = "seed"
		}
		errMsg := ""
		if ev.Err != nil {
			errMsg = ev.Err.Error()
		}
		progress.Message = errMsg
		err := rm.skipRepo.Create(&models.SkipEvent{
			RunID:        rc.RunID,
			Kind:         kind,
			RequestIndex: ev.Index,
			Step:         string(ev.Step),
			Reason:       ev.Reason,
			CacheKey:     ev.CacheKey,
			Seed:         ev.Seed,
			Requirements: models.StringList(plan.Options.Requirements),
			ErrorMessage: errMsg,
		})
		if err != nil {
			logger.WithError(err).Warn("保存跳过事件失败")
		}

	case pipeline.EventState:
		progress.State = string(ev.State)
		progress.Message = string(ev.State)
		s := ev.Stats
		if err := rm.runRepo.UpdateProgress(rc.RunID, s.Requests, s.Emitted, s.Skipped, s.CacheHits, s.TeacherCalls); err != nil {
			logger.WithError(err).Warn("保存运行计数失败")
		}
	}

	rc.AddEvent(progress)
}

// StopRun 停止运行
// 正在进行的教师调用通过上下文取消，已写出的记录和缓存保持完整。
func (rm *RunManager) StopRun(runID string) error {
	rm.runsLock.RLock()
	rc, exists := rm.runs[runID]
	rm.runsLock.RUnlock()

	if exists {
		if rc.Finished() {
			return ErrRunFinished
		}
		rc.mu.Lock()
		rc.stopped = true
		rc.mu.Unlock()
		if rc.CancelFunc != nil {
			rc.CancelFunc()
		}
		rm.logger.WithField("run_id", runID).Info("运行停止中")
		return nil
	}

	// 内存中不存在，可能是服务重启过
	run, err := rm.runRepo.GetByRunID(runID)
	if err != nil {
		return ErrRunNotFound
	}
	if run.IsFinal() {
		return ErrRunFinished
	}
	return rm.runRepo.Finish(runID, models.RunStatusStopped, nil, "运行被手动停止")
}

// GetRun 获取内存中的运行
func (rm *RunManager) GetRun(runID string) (*RunContext, bool) {
	rm.runsLock.RLock()
	defer rm.runsLock.RUnlock()
	rc, exists := rm.runs[runID]
	return rc, exists
}

// GetRunInfo 获取运行信息，内存中不存在时从数据库读取
func (rm *RunManager) GetRunInfo(runID string) (*dto.RunInfo, error) {
	if rc, ok := rm.GetRun(runID); ok {
		info := rc.Info()
		return &info, nil
	}

	run, err := rm.runRepo.GetByRunID(runID)
	if err != nil {
		return nil, ErrRunNotFound
	}
	info := RunInfoFromModel(run)
	return &info, nil
}

// RunInfoFromModel 数据库记录转运行信息
func RunInfoFromModel(run *models.Run) dto.RunInfo {
	end := time.Now()
	if run.FinishedAt != nil {
		end = *run.FinishedAt
	}
	stats := dto.RunStats{
		Requests:     run.Requests,
		Emitted:      run.Emitted,
		Skipped:      run.Skipped,
		CacheHits:    run.CacheHits,
		TeacherCalls: run.TeacherCalls,
	}
	if run.Requests > 0 {
		stats.YieldRate = float64(run.Emitted) / float64(run.Requests)
	}
	return dto.RunInfo{
		RunID:        run.RunID,
		Status:       run.Status,
		OutputPath:   run.OutputPath,
		Params:       run.Params,
		Stats:        stats,
		RunTime:      end.Sub(run.StartedAt).Seconds(),
		Finished:     run.IsFinal(),
		ErrorMessage: run.ErrorMessage,
	}
}

// ListRuns 从数据库分页获取运行
func (rm *RunManager) ListRuns(page, perPage int) ([]dto.RunInfo, int64, error) {
	offset, limit := utils.GetPaginationParams(page, perPage)
	runs, total, err := rm.runRepo.List(offset, limit)
	if err != nil {
		return nil, 0, err
	}

	infos := make([]dto.RunInfo, 0, len(runs))
	for i := range runs {
		if rc, ok := rm.GetRun(runs[i].RunID); ok {
			infos = append(infos, rc.Info())
			continue
		}
		infos = append(infos, RunInfoFromModel(&runs[i]))
	}
	return infos, total, nil
}

// ListRecords 获取运行写出的记录
func (rm *RunManager) ListRecords(runID string, page, perPage int) ([]models.RunRecord, int64, error) {
	offset, limit := utils.GetPaginationParams(page, perPage)
	return rm.recordRepo.ListByRunID(runID, offset, limit)
}

// ListSkips 获取运行的跳过事件及按原因的统计
func (rm *RunManager) ListSkips(runID string, page, perPage int) ([]models.SkipEvent, int64, map[string]int64, error) {
	offset, limit := utils.GetPaginationParams(page, perPage)
	events, total, err := rm.skipRepo.ListByRunID(runID, offset, limit)
	if err != nil {
		return nil, 0, nil, err
	}
	byReason, err := rm.skipRepo.CountByReason(runID)
	if err != nil {
		return nil, 0, nil, err
	}
	return events, total, byReason, nil
}

// GetProgress 获取运行进度通道（为每个订阅者创建独立的通道）
func (rm *RunManager) GetProgress(runID string) (<-chan *dto.ProgressEvent, []*dto.ProgressEvent, <-chan struct{}, func(), error) {
	rc, exists := rm.GetRun(runID)
	if !exists {
		return nil, nil, nil, nil, ErrRunNotFound
	}

	ch := rc.Subscribe()
	history := rc.GetEventHistory()
	unsubscribe := func() {
		rc.Unsubscribe(ch)
	}
	return ch, history, rc.Done(), unsubscribe, nil
}

// Shutdown 停止所有运行并等待退出
func (rm *RunManager) Shutdown(ctx context.Context) error {
	rm.runsLock.RLock()
	for _, rc := range rm.runs {
		if !rc.Finished() {
			rc.mu.Lock()
			rc.stopped = true
			rc.mu.Unlock()
			rc.CancelFunc()
		}
	}
	rm.runsLock.RUnlock()

	done := make(chan struct{})
	go func() {
		rm.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait 等待指定运行结束，主要用于命令行和测试
func (rm *RunManager) Wait(runID string) (*dto.RunInfo, error) {
	rc, ok := rm.GetRun(runID)
	if !ok {
		return nil, ErrRunNotFound
	}
	<-rc.Done()
	info := rc.Info()
	return &info, nil
}
