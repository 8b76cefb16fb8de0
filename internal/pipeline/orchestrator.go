// Package pipeline 串联种子生成、扩展、缓存、教师调用与数据集写入。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"distill-go/internal/cache"
	"distill-go/internal/cleaner"
	"distill-go/internal/dto"
	"distill-go/internal/metrics"
	"distill-go/internal/seed"
	"distill-go/pkg/model_caller"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Options 单次运行的配置
type Options struct {
	RuleSeedCount   int
	ModelSeedCount  int
	SamplesPerSeed  int
	TargetCount     int
	Requirements    []string
	Domains         []string
	ForceRegenerate bool
	ShuffleSeeds    bool
	Workers         int
	// FallbackText 文件、规则和模型都没有产出种子时作为唯一种子的单段文本
	FallbackText string
	// OnEvent 状态变化、产出与跳过时回调，不会被并发调用
	OnEvent func(Event)
}

// Sink 记录写入方，dataset.Writer 满足该接口
type Sink interface {
	Write(rec *dto.DatasetRecord) (int, error)
}

// Orchestrator 流水线编排器
type Orchestrator struct {
	opts    Options
	teacher model_caller.Teacher
	store   cache.Store
	logger  logrus.FieldLogger
	rng     *rand.Rand

	group singleflight.Group

	forceMu sync.Mutex
	forced  map[string]*forceState

	mu    sync.Mutex
	stats Stats
}

// New 创建编排器，rng 为空时按当前时间播种
func New(opts Options, teacher model_caller.Teacher, store cache.Store, logger logrus.FieldLogger, rng *rand.Rand) *Orchestrator {
	if opts.SamplesPerSeed < 1 {
		opts.SamplesPerSeed = 1
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Orchestrator{
		opts:    opts,
		teacher: teacher,
		store:   store,
		logger:  logger.WithField("component", "pipeline"),
		rng:     rng,
		forced:  make(map[string]*forceState),
		stats:   Stats{State: StateInit},
	}
}

// Stats 当前统计的快照
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stats
}

func (o *Orchestrator) update(fn func(s *Stats)) Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(&o.stats)
	return o.stats
}

func (o *Orchestrator) notify(ev Event) {
	if o.opts.OnEvent != nil {
		o.opts.OnEvent(ev)
	}
}

func (o *Orchestrator) setState(state State) {
	stats := o.update(func(s *Stats) { s.State = state })
	o.logger.WithField("state", state).Debug("流水线状态变化")
	o.notify(Event{Type: EventState, State: state, Stats: stats})
}

func (o *Orchestrator) abort(err error) (*Stats, error) {
	o.setState(StateAborted)
	stats := o.Stats()
	o.logger.WithError(err).WithFields(logrus.Fields{
		"emitted": stats.Emitted,
		"skipped": stats.Skipped,
	}).Error("流水线中止")
	return &stats, err
}

// Run 执行一次完整的生成
// fileSeeds 为外部提供的种子（种子文件或直接文本），与规则、模型生成的种子合并。
func (o *Orchestrator) Run(ctx context.Context, fileSeeds []seed.Seed, sink Sink) (*Stats, error) {
	o.setState(StateInit)
	if sink == nil {
		return o.abort(ErrWriterClosed)
	}
	if err := ctx.Err(); err != nil {
		return o.abort(err)
	}

	seeds, err := o.prepareSeeds(ctx, fileSeeds)
	if err != nil {
		return o.abort(err)
	}
	o.setState(StateSeedsReady)

	o.setState(StateExpanding)
	reqs := seed.Expand(seeds, o.opts.SamplesPerSeed, o.opts.Requirements)
	reqs = seed.Truncate(reqs, o.opts.TargetCount)
	o.update(func(s *Stats) { s.Requests = len(reqs) })
	o.logger.WithFields(logrus.Fields{
		"seeds":            len(seeds),
		"requests":         len(reqs),
		"samples_per_seed": o.opts.SamplesPerSeed,
		"workers":          o.opts.Workers,
	}).Info("种子扩展完成")

	o.setState(StatePerRequest)
	if o.opts.Workers > 1 {
		err = o.processConcurrent(ctx, reqs, sink)
	} else {
		err = o.processSequential(ctx, reqs, sink)
	}
	if err != nil {
		return o.abort(err)
	}

	o.setState(StateDone)
	stats := o.Stats()
	o.logger.WithFields(logrus.Fields{
		"requests":      stats.Requests,
		"emitted":       stats.Emitted,
		"skipped":       stats.Skipped,
		"cache_hits":    stats.CacheHits,
		"teacher_calls": stats.TeacherCalls,
		"yield_rate":    fmt.Sprintf("%.2f", stats.YieldRate()),
	}).Info("流水线完成")
	return &stats, nil
}

func (o *Orchestrator) prepareSeeds(ctx context.Context, fileSeeds []seed.Seed) ([]seed.Seed, error) {
	seeds := append([]seed.Seed(nil), fileSeeds...)

	if o.opts.RuleSeedCount > 0 {
		gen := seed.NewRuleGenerator(o.opts.Domains, o.rng)
		seeds = append(seeds, gen.Generate(o.opts.RuleSeedCount)...)
	}

	if o.opts.ModelSeedCount > 0 {
		gen := seed.NewModelGenerator(o.teacher, o.opts.Domains, o.rng, o.logger)
		gen.OnFailure = func(index int, domain string, err error) {
			metrics.SeedFailures.Inc()
			stats := o.update(func(s *Stats) { s.SeedFailures++ })
			o.notify(Event{
				Type:   EventSeedFailure,
				Index:  index,
				Seed:   domain,
				Reason: err.Error(),
				Err:    err,
				Stats:  stats,
			})
		}
		seeds = append(seeds, gen.Generate(ctx, o.opts.ModelSeedCount, o.opts.Requirements)...)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	if len(seeds) == 0 {
		seeds = seed.FromText(o.opts.FallbackText)
	}
	if len(seeds) == 0 {
		return nil, ErrNoSeeds
	}

	seeds = seed.FillToTarget(seeds, o.opts.TargetCount, o.opts.SamplesPerSeed)
	if o.opts.ShuffleSeeds {
		seed.Shuffle(seeds, o.rng)
	}
	o.update(func(s *Stats) { s.Seeds = len(seeds) })
	return seeds, nil
}

// result 单个请求的处理结果
type result struct {
	req  *seed.Request
	key  string
	demo *cache.Demonstration
	hit  bool
	step Step
	err  error
}

func (o *Orchestrator) processSequential(ctx context.Context, reqs []seed.Request, sink Sink) error {
	for i := range reqs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.emit(ctx, o.handle(ctx, &reqs[i]), sink); err != nil {
			return err
		}
	}
	return nil
}

// processConcurrent 多个 worker 并发获取示范，由当前 goroutine 按生成顺序写出
func (o *Orchestrator) processConcurrent(parent context.Context, reqs []seed.Request, sink Sink) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	workers := o.opts.Workers
	jobs := make(chan int)
	results := make(chan result, workers)
	// window 限制已领取但尚未写出的请求数，避免乱序结果无限堆积
	window := make(chan struct{}, workers*4)

	go func() {
		defer close(jobs)
		for i := range reqs {
			select {
			case window <- struct{}{}:
			case <-ctx.Done():
				return
			}
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				r := o.handle(ctx, &reqs[i])
				select {
				case results <- r:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	pending := make(map[int]result)
	next := 0
	var fatal error
	for r := range results {
		if fatal != nil {
			continue
		}
		pending[r.req.Index] = r
		for {
			p, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			<-window
			if err := ctx.Err(); err != nil {
				fatal = err
				break
			}
			if err := o.emit(ctx, p, sink); err != nil {
				fatal = err
				cancel()
				break
			}
		}
	}

	if fatal != nil {
		return fatal
	}
	if next < len(reqs) {
		if err := parent.Err(); err != nil {
			return err
		}
		return context.Canceled
	}
	return nil
}

// handle 获取单个请求的示范，可并发调用
func (o *Orchestrator) handle(ctx context.Context, req *seed.Request) result {
	key := cache.Key(req.Text, req.Requirements)
	demo, hit, step, err := o.acquire(ctx, key, req)
	return result{req: req, key: key, demo: demo, hit: hit, step: step, err: err}
}

// forceState 一次运行内某个 key 的强制重新生成结果，done 关闭后 demo 可读
type forceState struct {
	done chan struct{}
	demo *cache.Demonstration
}

// takeForce 强制重新生成时，同一 key 在一次运行中只强制一次。
// owner 为 true 的调用方负责生成并关闭 done，其余调用方等待其结果。
func (o *Orchestrator) takeForce(key string) (st *forceState, owner bool) {
	if !o.opts.ForceRegenerate {
		return nil, false
	}
	o.forceMu.Lock()
	defer o.forceMu.Unlock()
	if existing, ok := o.forced[key]; ok {
		return existing, false
	}
	st = &forceState{done: make(chan struct{})}
	o.forced[key] = st
	return st, true
}

func (o *Orchestrator) lookup(ctx context.Context, key string) (*cache.Demonstration, bool) {
	demo, ok, err := o.store.Get(ctx, key)
	if err != nil {
		o.logger.WithError(err).WithField("cache_key", key).Warn("读取缓存失败，按未命中处理")
		return nil, false
	}
	return demo, ok
}

type acquired struct {
	demo *cache.Demonstration
	hit  bool
}

func failedStep(err error) Step {
	if errors.Is(err, ErrEmptyPayload) {
		return StepClean
	}
	return StepTeacherCall
}

// acquire 缓存命中直接返回；未命中时同一 key 只会有一个调用方访问教师模型
func (o *Orchestrator) acquire(ctx context.Context, key string, req *seed.Request) (*cache.Demonstration, bool, Step, error) {
	st, owner := o.takeForce(key)
	if owner {
		demo, err := o.generate(ctx, key, req, true)
		if err == nil {
			st.demo = demo
		}
		close(st.done)
		if err != nil {
			return nil, false, failedStep(err), err
		}
		return demo, false, StepCacheLookup, nil
	}
	if st != nil {
		// 本次运行已强制过该 key，不能读到旧缓存
		select {
		case <-st.done:
		case <-ctx.Done():
			return nil, false, StepCacheLookup, ctx.Err()
		}
		if st.demo != nil {
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return st.demo, true, StepCacheLookup, nil
		}
		// 强制生成失败，按普通流程处理
	}

	if demo, ok := o.lookup(ctx, key); ok {
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return demo, true, StepCacheLookup, nil
	}
	metrics.CacheLookups.WithLabelValues("miss").Inc()

	executed := false
	v, err, _ := o.group.Do(key, func() (interface{}, error) {
		executed = true
		// 排队期间可能已被其他 worker 写入
		if demo, ok := o.lookup(ctx, key); ok {
			return acquired{demo: demo, hit: true}, nil
		}
		demo, err := o.generate(ctx, key, req, false)
		if err != nil {
			return nil, err
		}
		return acquired{demo: demo}, nil
	})
	if err != nil {
		return nil, false, failedStep(err), err
	}

	a := v.(acquired)
	// 共享了别人的调用结果，对本请求而言没有产生外部调用
	return a.demo, a.hit || !executed, StepCacheLookup, nil
}

// generate 调用教师模型、清洗并写入缓存
func (o *Orchestrator) generate(ctx context.Context, key string, req *seed.Request, force bool) (*cache.Demonstration, error) {
	start := time.Now()
	res, err := o.teacher.Invoke(ctx, BuildPrompt(req.Text, req.Requirements))
	metrics.TeacherLatency.Observe(time.Since(start).Seconds())
	o.update(func(s *Stats) { s.TeacherCalls++ })
	if err != nil {
		metrics.TeacherCalls.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %w", ErrExternalCall, err)
	}

	output := cleaner.Payload(res)
	if output == "" {
		metrics.TeacherCalls.WithLabelValues("empty").Inc()
		return nil, fmt.Errorf("%w: %w", ErrExternalCall, ErrEmptyPayload)
	}
	metrics.TeacherCalls.WithLabelValues("ok").Inc()

	demo := &cache.Demonstration{
		Key:          key,
		Seed:         req.Text,
		Requirements: req.Requirements,
		Output:       output,
		Model:        res.Model,
	}

	// 写缓存不受取消影响，已付费的结果尽量落盘
	storeCtx := context.WithoutCancel(ctx)
	stored, err := o.store.Put(storeCtx, demo, force)
	if err != nil {
		o.logger.WithError(err).WithField("cache_key", key).Warn("写入缓存失败，本条仍会输出")
		return demo, nil
	}
	if !stored {
		// 其他进程先写入了同一 key，以先写入的为准
		if existing, ok := o.lookup(storeCtx, key); ok {
			return existing, nil
		}
	}
	return demo, nil
}

// emit 把结果写出或记为跳过，只在单个 goroutine 中调用
func (o *Orchestrator) emit(ctx context.Context, r result, sink Sink) error {
	if r.err != nil {
		if ctx.Err() != nil && (errors.Is(r.err, context.Canceled) || errors.Is(r.err, context.DeadlineExceeded)) {
			return ctx.Err()
		}
		reason := ReasonTeacherFailed
		if errors.Is(r.err, ErrEmptyPayload) {
			reason = ReasonEmptyPayload
		}
		o.skip(r, r.step, reason, r.err)
		return nil
	}

	rec := &dto.DatasetRecord{
		Input:        cleaner.Clean(r.req.Seed.Text),
		Output:       cleaner.Clean(r.demo.Output),
		Requirements: r.req.Requirements,
		Variant:      r.req.Variant,
		CacheKey:     r.key,
	}
	id, err := sink.Write(rec)
	if err != nil {
		if errors.Is(err, ErrWriterClosed) {
			return err
		}
		metrics.RequestsTotal.WithLabelValues(metrics.OutcomeWriteFailed).Inc()
		o.skip(r, StepEmit, ReasonWriteFailed, err)
		return nil
	}
	rec.ID = id

	metrics.RequestsTotal.WithLabelValues(metrics.OutcomeEmitted).Inc()
	stats := o.update(func(s *Stats) {
		s.Emitted++
		if r.hit {
			s.CacheHits++
		}
	})
	o.logger.WithFields(logrus.Fields{
		"event":     "emit",
		"id":        id,
		"index":     r.req.Index,
		"cache_key": r.key,
		"cache_hit": r.hit,
	}).Debug("记录已写入")
	o.notify(Event{
		Type:     EventEmit,
		Index:    r.req.Index,
		CacheKey: r.key,
		CacheHit: r.hit,
		Seed:     r.req.Seed.Text,
		Record:   rec,
		Stats:    stats,
	})
	return nil
}

func (o *Orchestrator) skip(r result, step Step, reason string, err error) {
	if reason != ReasonWriteFailed {
		metrics.RequestsTotal.WithLabelValues(metrics.OutcomeSkipped).Inc()
	}
	stats := o.update(func(s *Stats) { s.Skipped++ })
	o.logger.WithError(err).WithFields(logrus.Fields{
		"event":        "skip",
		"reason":       reason,
		"step":         step,
		"index":        r.req.Index,
		"cache_key":    r.key,
		"seed":         cleaner.Excerpt(r.req.Seed.Text, 80),
		"requirements": r.req.Requirements,
	}).Warn("请求已跳过")
	o.notify(Event{
		Type:     EventSkip,
		Step:     step,
		Index:    r.req.Index,
		CacheKey: r.key,
		Reason:   reason,
		Err:      err,
		Seed:     r.req.Seed.Text,
		Stats:    stats,
	})
}
