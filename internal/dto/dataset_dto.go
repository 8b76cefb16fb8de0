package dto

// DatasetRecord 输出数据集中的一行
type DatasetRecord struct {
	ID           int      `json:"id"`
	Input        string   `json:"input"`
	Output       string   `json:"output"`
	Requirements []string `json:"requirements"`
	Variant      int      `json:"variant,omitempty"`
	CacheKey     string   `json:"cache_key,omitempty"`
}

// RunRecordResponse 运行中产出的记录
type RunRecordResponse struct {
	ID           uint     `json:"id"`
	RunID        string   `json:"run_id"`
	RecordID     int      `json:"record_id"`
	Input        string   `json:"input"`
	Output       string   `json:"output"`
	Requirements []string `json:"requirements"`
	CacheHit     bool     `json:"cache_hit"`
	CreatedAt    string   `json:"created_at"`
}

// DatasetStatsResponse 数据集统计
type DatasetStatsResponse struct {
	Success bool   `json:"success"`
	Path    string `json:"path"`
	Exists  bool   `json:"exists"`
	Records int    `json:"records"`
	NextID  int    `json:"next_id"`
}

// CacheLookupResponse 缓存查询结果
type CacheLookupResponse struct {
	Success      bool     `json:"success"`
	Key          string   `json:"key"`
	Hit          bool     `json:"hit"`
	Output       string   `json:"output,omitempty"`
	Requirements []string `json:"requirements,omitempty"`
	Model        string   `json:"model,omitempty"`
	CreatedAt    string   `json:"created_at,omitempty"`
}
