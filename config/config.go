package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	OSS       OSSConfig       `mapstructure:"oss"`
	OCR       OCRConfig       `mapstructure:"ocr"`
	Reasoning ReasoningConfig `mapstructure:"reasoning"`
	Search    SearchConfig    `mapstructure:"search"`
	Alert     AlertConfig     `mapstructure:"alert"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Queue     QueueConfig     `mapstructure:"queue"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Quota     QuotaConfig     `mapstructure:"quota"`
	Upload    UploadConfig    `mapstructure:"upload"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	BucketName      string `mapstructure:"bucket_name"`
	CDNDomain       string `mapstructure:"cdn_domain"`
}

// OCRConfig 文档文本提取服务配置
type OCRConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// ReasoningConfig 推理服务（messages API）配置
type ReasoningConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	APIVersion     string `mapstructure:"api_version"`
	MaxTokens      int    `mapstructure:"max_tokens"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// SearchConfig 网络搜索服务配置
type SearchConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// AlertConfig 失败告警邮件配置，Recipient 必填（启动时校验）
type AlertConfig struct {
	SMTPHost  string `mapstructure:"smtp_host"`
	SMTPPort  int    `mapstructure:"smtp_port"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	From      string `mapstructure:"from"`
	Recipient string `mapstructure:"recipient"`
}

// PipelineConfig 分析流水线的运行参数，集中管理（不再散落各模块）
type PipelineConfig struct {
	MaxIterations          int         `mapstructure:"max_iterations"`
	WallClockBudgetSeconds int         `mapstructure:"wall_clock_budget_seconds"`
	MaxSearchesPerTurn     int         `mapstructure:"max_searches_per_turn"`
	MinSummaryLength       int         `mapstructure:"min_summary_length"`
	Retry                  RetryConfig `mapstructure:"retry"`
}

type RetryConfig struct {
	MaxRetries  int `mapstructure:"max_retries"`
	BaseDelayMs int `mapstructure:"base_delay_ms"`
	MaxDelayMs  int `mapstructure:"max_delay_ms"`
}

type QueueConfig struct {
	AnalysisQueue string `mapstructure:"analysis_queue"`
	MaxWorkers    int    `mapstructure:"max_workers"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type QuotaConfig struct {
	DailyQuota int `mapstructure:"daily_quota"`
}

type UploadConfig struct {
	MaxSize           int64    `mapstructure:"max_size"`           // 最大文件大小（字节）
	TempDir           string   `mapstructure:"temp_dir"`           // 临时目录
	ExpireHours       int      `mapstructure:"expire_hours"`       // 过期时间（小时）
	AllowedExtensions []string `mapstructure:"allowed_extensions"` // 允许的扩展名
}

func (c *PipelineConfig) WallClockBudget() time.Duration {
	return time.Duration(c.WallClockBudgetSeconds) * time.Second
}

func (c *RetryConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMs) * time.Millisecond
}

func (c *RetryConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMs) * time.Millisecond
}

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	// 检查 config.local.yaml 是否存在
	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// 环境变量覆盖
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Pipeline.MaxIterations == 0 {
		c.Pipeline.MaxIterations = 8
	}
	if c.Pipeline.WallClockBudgetSeconds == 0 {
		c.Pipeline.WallClockBudgetSeconds = 300
	}
	if c.Pipeline.MaxSearchesPerTurn == 0 {
		c.Pipeline.MaxSearchesPerTurn = 3
	}
	if c.Pipeline.MinSummaryLength == 0 {
		c.Pipeline.MinSummaryLength = 50
	}
	if c.Pipeline.Retry.MaxRetries == 0 {
		c.Pipeline.Retry.MaxRetries = 3
	}
	if c.Pipeline.Retry.BaseDelayMs == 0 {
		c.Pipeline.Retry.BaseDelayMs = 500
	}
	if c.Pipeline.Retry.MaxDelayMs == 0 {
		c.Pipeline.Retry.MaxDelayMs = 8000
	}
	if c.Reasoning.MaxTokens == 0 {
		c.Reasoning.MaxTokens = 4096
	}
	if c.Reasoning.APIVersion == "" {
		c.Reasoning.APIVersion = "2023-06-01"
	}
	if c.Reasoning.TimeoutSeconds == 0 {
		c.Reasoning.TimeoutSeconds = 60
	}
	if c.OCR.TimeoutSeconds == 0 {
		c.OCR.TimeoutSeconds = 120
	}
	if c.Search.TimeoutSeconds == 0 {
		c.Search.TimeoutSeconds = 30
	}
	if c.Quota.DailyQuota == 0 {
		c.Quota.DailyQuota = 5
	}
	if c.Queue.AnalysisQueue == "" {
		c.Queue.AnalysisQueue = "deal_analysis_jobs"
	}
	if c.Queue.MaxWorkers == 0 {
		c.Queue.MaxWorkers = 2
	}
}

// Validate 启动时校验必填配置，缺失直接失败，不做静默兜底
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}
	if c.Reasoning.Endpoint == "" || c.Reasoning.APIKey == "" || c.Reasoning.Model == "" {
		return errors.New("reasoning.endpoint, reasoning.api_key and reasoning.model are required")
	}
	if c.OCR.Endpoint == "" {
		return errors.New("ocr.endpoint is required")
	}
	if c.Search.Endpoint == "" {
		return errors.New("search.endpoint is required")
	}
	if c.Alert.SMTPHost != "" && c.Alert.Recipient == "" {
		return errors.New("alert.recipient is required when alerting is configured")
	}
	return nil
}
