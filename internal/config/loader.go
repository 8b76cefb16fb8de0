package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"distill-go/internal/utils"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var (
	globalConfig *Config
	once         sync.Once
	configPath   string
)

// LoadConfig 加载配置文件
func LoadConfig(configFile string) (*Config, error) {
	var err error
	var cfg *Config

	once.Do(func() {
		cfg, err = loadConfigFromFile(configFile)
		if err == nil {
			globalConfig = cfg
		}
		configPath = configFile
	})

	return globalConfig, err
}

// loadConfigFromFile 从文件加载配置
// configFile 为空时按默认路径查找，找不到配置文件则只使用默认值和环境变量。
func loadConfigFromFile(configFile string) (*Config, error) {
	// .env 中的密钥（TEACHER_API_KEY 等）先进入进程环境
	if err := loadDotEnv(configFile); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// TEACHER_API_KEY -> teacher.api_key
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &cfg, nil
}

// loadDotEnv 加载 .env，文件不存在时忽略
func loadDotEnv(configFile string) error {
	candidates := []string{".env"}
	if configFile != "" {
		candidates = append(candidates, filepath.Join(filepath.Dir(configFile), ".env"))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("加载环境文件 %s 失败: %w", p, err)
		}
	}
	return nil
}

// setDefaults 设置默认值
// 所有键都在这里注册，保证环境变量可以覆盖任意配置项。
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 18080)
	v.SetDefault("server.production_mode", false)

	v.SetDefault("database.path", "./database/runs.db")

	v.SetDefault("redis_service.enabled", false)
	v.SetDefault("redis_service.host", "localhost")
	v.SetDefault("redis_service.port", 6379)
	v.SetDefault("redis_service.db", 0)
	v.SetDefault("redis_service.password", "")
	v.SetDefault("redis_service.max_wait_time", 300)
	v.SetDefault("redis_service.slot_ttl", 300)

	v.SetDefault("jwt.secret_key", "")
	v.SetDefault("jwt.algorithm", "HS256")
	v.SetDefault("jwt.expire_minutes", 43200) // 30天

	v.SetDefault("admin.username", "admin")
	v.SetDefault("admin.password", "")

	v.SetDefault("cors.origins", []string{})
	v.SetDefault("cors.allow_credentials", false)
	v.SetDefault("cors.allow_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allow_headers", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("teacher.provider", "openai-compatible")
	v.SetDefault("teacher.api_base", "http://localhost:8000/v1")
	v.SetDefault("teacher.api_key", "")
	v.SetDefault("teacher.model", "qwen-plus")
	v.SetDefault("teacher.temperature", 0.7)
	v.SetDefault("teacher.top_p", 1.0)
	v.SetDefault("teacher.max_tokens", 2048)
	v.SetDefault("teacher.timeout", 120)
	v.SetDefault("teacher.retry_times", 0)
	v.SetDefault("teacher.max_concurrent", 4)
	v.SetDefault("teacher.limiter", "none")

	v.SetDefault("generation.seeds_file", "")
	v.SetDefault("generation.text", "")
	v.SetDefault("generation.requirements", "学术表达提升;结构清晰;可读性增强")
	v.SetDefault("generation.default_requirements", []string{"学术表达提升", "结构清晰", "可读性增强"})
	v.SetDefault("generation.domains", "")
	v.SetDefault("generation.rule_seed_count", 0)
	v.SetDefault("generation.model_seed_count", 0)
	v.SetDefault("generation.samples_per_seed", 1)
	v.SetDefault("generation.target_count", 0)
	v.SetDefault("generation.append", false)
	v.SetDefault("generation.force_regenerate", false)
	v.SetDefault("generation.shuffle_seeds", true)
	v.SetDefault("generation.workers", 1)
	v.SetDefault("generation.random_seed", 0)

	v.SetDefault("cache.backend", "file")
	v.SetDefault("cache.path", "data/teacher_cache.jsonl")
	v.SetDefault("cache.redis_prefix", "teacher_cache:")

	v.SetDefault("output.path", "data/teacher_only_dataset.jsonl")
}

// validateConfig 验证配置
func validateConfig(cfg *Config) error {
	if err := utils.ValidateStruct(cfg); err != nil {
		return err
	}

	if cfg.Cache.Backend == "file" && cfg.Cache.Path == "" {
		return fmt.Errorf("文件缓存必须配置 cache.path")
	}
	if cfg.Cache.Backend == "redis" && !cfg.Redis.Enabled {
		return fmt.Errorf("Redis缓存后端需要启用 redis_service.enabled")
	}
	if cfg.Teacher.Limiter == "redis" && !cfg.Redis.Enabled {
		return fmt.Errorf("Redis限流需要启用 redis_service.enabled")
	}
	if cfg.Teacher.Provider != "mock" && cfg.Teacher.Provider != "openai" && cfg.Teacher.APIBase == "" {
		return fmt.Errorf("教师模型 %s 需要配置 teacher.api_base", cfg.Teacher.Provider)
	}

	return nil
}

// ValidateServer 验证服务端额外需要的配置
func ValidateServer(cfg *Config) error {
	if cfg.JWT.SecretKey == "" {
		return fmt.Errorf("JWT密钥不能为空")
	}

	if cfg.Admin.Password == "" {
		return fmt.Errorf("管理员密码不能为空")
	}

	// 检查数据库目录是否存在
	dbDir := filepath.Dir(cfg.Database.Path)
	if _, err := os.Stat(dbDir); os.IsNotExist(err) {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return fmt.Errorf("创建数据库目录失败: %w", err)
		}
	}

	return nil
}

// GetConfig 获取全局配置
func GetConfig() *Config {
	return globalConfig
}
