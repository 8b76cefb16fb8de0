package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// Config 应用配置结构
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis_service"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Admin      AdminConfig      `mapstructure:"admin"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Log        LogConfig        `mapstructure:"log"`
	Teacher    TeacherConfig    `mapstructure:"teacher"`
	Generation GenerationConfig `mapstructure:"generation"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Output     OutputConfig     `mapstructure:"output"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port" validate:"min=1,max=65535"`
	ProductionMode bool   `mapstructure:"production_mode"`
}

// GetAddress 获取服务器地址
func (s *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig 数据库配置（运行台账）
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig Redis配置
// Enabled 为 false 时不创建客户端，缓存只能使用文件后端。
type RedisConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	DB          int    `mapstructure:"db"`
	Password    string `mapstructure:"password"`
	MaxWaitTime int    `mapstructure:"max_wait_time"`
	SlotTTL     int    `mapstructure:"slot_ttl"`
}

// GetAddress 获取Redis地址
func (r *RedisConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// GetMaxWaitDuration 获取最大等待时间
func (r *RedisConfig) GetMaxWaitDuration() time.Duration {
	return time.Duration(r.MaxWaitTime) * time.Second
}

// GetSlotTTL 获取限流槽位过期时间
func (r *RedisConfig) GetSlotTTL() time.Duration {
	return time.Duration(r.SlotTTL) * time.Second
}

// JWTConfig JWT配置
type JWTConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	Algorithm     string `mapstructure:"algorithm" validate:"oneof=HS256 HS384 HS512"`
	ExpireMinutes int    `mapstructure:"expire_minutes"`
}

// GetExpireDuration 获取过期时间
func (j *JWTConfig) GetExpireDuration() time.Duration {
	return time.Duration(j.ExpireMinutes) * time.Minute
}

// AdminConfig 管理员配置
type AdminConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// CORSConfig CORS配置
type CORSConfig struct {
	Origins          []string `mapstructure:"origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	AllowMethods     []string `mapstructure:"allow_methods"`
	AllowHeaders     []string `mapstructure:"allow_headers"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

// TeacherConfig 教师模型配置
type TeacherConfig struct {
	Provider      string  `mapstructure:"provider" validate:"oneof=openai-compatible vllm openai mock"`
	APIBase       string  `mapstructure:"api_base"`
	APIKey        string  `mapstructure:"api_key"`
	Model         string  `mapstructure:"model" validate:"required"`
	Temperature   float64 `mapstructure:"temperature" validate:"min=0,max=2"`
	TopP          float64 `mapstructure:"top_p" validate:"min=0,max=1"`
	MaxTokens     int     `mapstructure:"max_tokens" validate:"min=1"`
	Timeout       int     `mapstructure:"timeout" validate:"min=1"`
	RetryTimes    int     `mapstructure:"retry_times" validate:"min=0"`
	MaxConcurrent int     `mapstructure:"max_concurrent" validate:"min=1"`
	// Limiter 可选 none / local / redis
	Limiter string `mapstructure:"limiter" validate:"oneof=none local redis"`
}

// GetTimeout 获取单次调用超时
func (t *TeacherConfig) GetTimeout() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GenerationConfig 数据生成参数
type GenerationConfig struct {
	SeedsFile           string   `mapstructure:"seeds_file"`
	Text                string   `mapstructure:"text"`
	Requirements        string   `mapstructure:"requirements"`
	DefaultRequirements []string `mapstructure:"default_requirements"`
	Domains             string   `mapstructure:"domains"`
	RuleSeedCount       int      `mapstructure:"rule_seed_count" validate:"min=0"`
	ModelSeedCount      int      `mapstructure:"model_seed_count" validate:"min=0"`
	SamplesPerSeed      int      `mapstructure:"samples_per_seed" validate:"min=1"`
	TargetCount         int      `mapstructure:"target_count" validate:"min=0"`
	Append              bool     `mapstructure:"append"`
	ForceRegenerate     bool     `mapstructure:"force_regenerate"`
	ShuffleSeeds        bool     `mapstructure:"shuffle_seeds"`
	Workers             int      `mapstructure:"workers" validate:"min=1"`
	// RandomSeed 为 0 时使用当前时间
	RandomSeed int64 `mapstructure:"random_seed"`
}

// CacheConfig 教师示范缓存配置
type CacheConfig struct {
	Backend     string `mapstructure:"backend" validate:"oneof=file redis"`
	Path        string `mapstructure:"path"`
	RedisPrefix string `mapstructure:"redis_prefix"`
}

// OutputConfig 数据集输出配置
type OutputConfig struct {
	Path string `mapstructure:"path" validate:"required"`
	// Root HTTP 接口可读写的数据目录，为空时取 Path 所在目录
	Root string `mapstructure:"root"`
}

// GetRoot 获取 HTTP 接口允许访问的数据目录
func (o *OutputConfig) GetRoot() string {
	if o.Root != "" {
		return o.Root
	}
	return filepath.Dir(o.Path)
}
