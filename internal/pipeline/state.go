package pipeline

import "distill-go/internal/dto"

// State 流水线状态
type State string

const (
	StateInit       State = "init"
	StateSeedsReady State = "seeds_ready"
	StateExpanding  State = "expanding"
	StatePerRequest State = "per_request"
	StateDone       State = "done"
	StateAborted    State = "aborted"
)

// Step PerRequest 内部的步骤
type Step string

const (
	StepCacheLookup Step = "cache_lookup"
	StepTeacherCall Step = "teacher_call"
	StepClean       Step = "clean"
	StepCache       Step = "cache"
	StepEmit        Step = "emit"
)

// EventType 事件类型
type EventType string

const (
	EventState       EventType = "state"
	EventEmit        EventType = "emit"
	EventSkip        EventType = "skip"
	EventSeedFailure EventType = "seed_failure"
)

// Event 运行过程中的事件
type Event struct {
	Type  EventType `json:"type"`
	State State     `json:"state,omitempty"`
	// Step 跳过发生在哪一步
	Step     Step               `json:"step,omitempty"`
	Index    int                `json:"index"`
	CacheKey string             `json:"cache_key,omitempty"`
	CacheHit bool               `json:"cache_hit,omitempty"`
	Reason   string             `json:"reason,omitempty"`
	Err      error              `json:"-"`
	Seed     string             `json:"seed,omitempty"`
	Record   *dto.DatasetRecord `json:"record,omitempty"`
	Stats    Stats              `json:"stats"`
}

// Stats 运行统计
type Stats struct {
	Seeds        int   `json:"seeds"`
	Requests     int   `json:"requests"`
	Emitted      int   `json:"emitted"`
	CacheHits    int   `json:"cache_hits"`
	TeacherCalls int   `json:"teacher_calls"`
	Skipped      int   `json:"skipped"`
	SeedFailures int   `json:"seed_failures"`
	State        State `json:"state"`
}

// YieldRate 成功产出占请求数的比例
func (s Stats) YieldRate() float64 {
	if s.Requests == 0 {
		return 0
	}
	return float64(s.Emitted) / float64(s.Requests)
}

// Finished 已处理（产出或跳过）的请求数
func (s Stats) Finished() int {
	return s.Emitted + s.Skipped
}
