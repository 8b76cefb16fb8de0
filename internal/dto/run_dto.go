package dto

// StartRunRequest 启动运行请求，未填写的字段使用配置文件中的默认值
type StartRunRequest struct {
	SeedsFile       string `json:"seeds_file"`
	Text            string `json:"text"`
	Requirements    string `json:"requirements"`
	Domains         string `json:"domains"`
	RuleSeedCount   *int   `json:"rule_seed_count" binding:"omitempty,min=0"`
	ModelSeedCount  *int   `json:"model_seed_count" binding:"omitempty,min=0"`
	SamplesPerSeed  *int   `json:"samples_per_seed" binding:"omitempty,min=1"`
	TargetCount     *int   `json:"target_count" binding:"omitempty,min=0"`
	Workers         *int   `json:"workers" binding:"omitempty,min=1,max=64"`
	OutputPath      string `json:"output_path"`
	Append          *bool  `json:"append"`
	ForceRegenerate *bool  `json:"force_regenerate"`
	ShuffleSeeds    *bool  `json:"shuffle_seeds"`
	RandomSeed      *int64 `json:"random_seed"`
}

// StartRunResponse 启动运行响应
type StartRunResponse struct {
	Success bool   `json:"success"`
	RunID   string `json:"run_id"`
	Status  string `json:"status"`
	StartID int    `json:"start_id"`
}

// RunStats 运行统计
type RunStats struct {
	Seeds        int     `json:"seeds"`
	Requests     int     `json:"requests"`
	Emitted      int     `json:"emitted"`
	CacheHits    int     `json:"cache_hits"`
	TeacherCalls int     `json:"teacher_calls"`
	Skipped      int     `json:"skipped"`
	SeedFailures int     `json:"seed_failures"`
	YieldRate    float64 `json:"yield_rate"`
}

// RunInfo 运行信息
type RunInfo struct {
	RunID        string                 `json:"run_id"`
	Status       string                 `json:"status"`
	State        string                 `json:"state"`
	OutputPath   string                 `json:"output_path"`
	Params       map[string]interface{} `json:"params"`
	Stats        RunStats               `json:"stats"`
	RunTime      float64                `json:"run_time"`
	Finished     bool                   `json:"finished"`
	ErrorMessage string                 `json:"error_message,omitempty"`
}

// RunListResponse 运行列表响应
type RunListResponse struct {
	Success bool      `json:"success"`
	Runs    []RunInfo `json:"runs"`
	Total   int64     `json:"total"`
}

// ProgressEvent 进度事件
type ProgressEvent struct {
	Type     string    `json:"type"` // state, emit, skip, seed_failure, heartbeat, finished, error
	RunID    string    `json:"run_id,omitempty"`
	State    string    `json:"state,omitempty"`
	Index    *int      `json:"index,omitempty"`
	RecordID *int      `json:"record_id,omitempty"`
	CacheHit bool      `json:"cache_hit,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Progress int       `json:"progress"`
	Total    int       `json:"total"`
	Percent  float64   `json:"percent,omitempty"`
	Message  string    `json:"message,omitempty"`
	Stats    *RunStats `json:"stats,omitempty"`
}

// SkipEventResponse 跳过事件
type SkipEventResponse struct {
	Kind         string   `json:"kind"`
	RequestIndex int      `json:"request_index"`
	Step         string   `json:"step"`
	Reason       string   `json:"reason"`
	CacheKey     string   `json:"cache_key"`
	Seed         string   `json:"seed"`
	Requirements []string `json:"requirements"`
	ErrorMessage string   `json:"error_message"`
	CreatedAt    string   `json:"created_at"`
}

// SkipListResponse 跳过事件列表
type SkipListResponse struct {
	Success  bool                `json:"success"`
	Skips    []SkipEventResponse `json:"skips"`
	Total    int64               `json:"total"`
	ByReason map[string]int64    `json:"by_reason"`
}
