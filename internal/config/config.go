package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config 应用配置根结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	AI        AIConfig        `mapstructure:"ai"`
	Log       LogConfig       `mapstructure:"log"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Workflow  WorkflowConfig  `mapstructure:"workflow"`
	Knowledge KnowledgeConfig `mapstructure:"knowledge"`
	Prompts   PromptsConfig   `mapstructure:"prompts"`
	Storage   StorageConfig   `mapstructure:"storage"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// AIConfig 推理网关配置
type AIConfig struct {
	// Models 可被直接调用的后端模型
	// 模型 ID 常带 "."，用列表而不是 map 以免被 viper 拆成嵌套 key
	Models []ModelConfig `mapstructure:"models" validate:"dive"`
	// Available 对外开放的生成模型目录（queue_chat 校验依据）
	Available []AvailableModel `mapstructure:"available" validate:"dive"`
	// Profiles 间接引用（profile）到后端模型列表的映射
	Profiles      []ProfileConfig `mapstructure:"profiles" validate:"dive"`
	ProfilePrefix string          `mapstructure:"profile_prefix"`

	GradingModel    string `mapstructure:"grading_model" validate:"required"`
	GenerationModel string `mapstructure:"generation_model"`
	FormattingModel string `mapstructure:"formatting_model"`

	GuardrailID      string `mapstructure:"guardrail_id"`
	GuardrailVersion string `mapstructure:"guardrail_version"`

	// RateLimit 每秒调用次数上限，0 表示不限流
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// ModelConfig 单个后端模型配置
type ModelConfig struct {
	ID       string          `mapstructure:"id" validate:"required"`
	Provider string          `mapstructure:"provider" validate:"omitempty,oneof=openai azure ark ark-runtime"`
	APIKey   string          `mapstructure:"api_key"`
	Model    string          `mapstructure:"model"`
	BaseURL  string          `mapstructure:"base_url"`
	Options  AIOptionsConfig `mapstructure:"options"`
}

// ProfileConfig 模型 profile，按顺序列出后端模型
type ProfileConfig struct {
	Name   string   `mapstructure:"name" validate:"required"`
	Models []string `mapstructure:"models"`
}

// AIOptionsConfig AI 模型参数
type AIOptionsConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	TopP        float64 `mapstructure:"top_p"`
}

// AvailableModel 模型目录条目
type AvailableModel struct {
	ID          string `mapstructure:"id" validate:"required"`
	Name        string `mapstructure:"name" validate:"required"`
	Description string `mapstructure:"description"`
}

// LogConfig 日志配置 (Zerolog)
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	TimeFormat string `mapstructure:"time_format"`
}

// MongoConfig MongoDB 配置
type MongoConfig struct {
	URI         string `mapstructure:"uri" validate:"required"`
	Database    string `mapstructure:"database" validate:"required"`
	MaxPoolSize uint64 `mapstructure:"max_pool_size"`
	MinPoolSize uint64 `mapstructure:"min_pool_size"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// CacheTTL 对话读缓存过期时间
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// QueueConfig 任务队列配置（Redis Streams）
type QueueConfig struct {
	Stream            string        `mapstructure:"stream" validate:"required"`
	Group             string        `mapstructure:"group" validate:"required"`
	WaitTime          time.Duration `mapstructure:"wait_time"`
	BatchSize         int64         `mapstructure:"batch_size"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout"`
}

// WorkerConfig 后台 worker 配置
type WorkerConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Name          string        `mapstructure:"name"`
	Backoff       time.Duration `mapstructure:"backoff"`
	JobTimeout    time.Duration `mapstructure:"job_timeout"`
	StaleAfter    time.Duration `mapstructure:"stale_after"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// HeartbeatTimeout 超过该时长未心跳视为 worker 不健康
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat_timeout"`
}

// WorkflowConfig 生成工作流配置
type WorkflowConfig struct {
	MaxGroundednessRetries int  `mapstructure:"max_groundedness_retries"`
	ValidateInput          bool `mapstructure:"validate_input"`
	ValidateOutput         bool `mapstructure:"validate_output"`
	HistoryTurns           int  `mapstructure:"history_turns"`
	// OffTopicPatterns 覆盖内置的偏题关键词正则
	OffTopicPatterns []string `mapstructure:"off_topic_patterns"`
}

// KnowledgeConfig 知识检索配置
type KnowledgeConfig struct {
	Backend             string        `mapstructure:"backend" validate:"oneof=data-service elasticsearch"`
	DataServiceURL      string        `mapstructure:"data_service_url"`
	GroupID             string        `mapstructure:"group_id"`
	MaxResults          int           `mapstructure:"max_results"`
	SimilarityThreshold float64       `mapstructure:"similarity_threshold"` // 0 使用默认值 0.5，负数关闭过滤
	Timeout             time.Duration `mapstructure:"timeout"`
	MaxRetries          int           `mapstructure:"max_retries"`
	Elastic             ElasticConfig `mapstructure:"elastic"`
}

// ElasticConfig Elasticsearch 配置
type ElasticConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

// PromptsConfig 提示词仓库配置
type PromptsConfig struct {
	// Source 为空时只使用内置提示词
	Source string `mapstructure:"source"`
	Prefix string `mapstructure:"prefix"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	Type  string       `mapstructure:"type"` // local, oss
	Local *LocalConfig `mapstructure:"local,omitempty"`
	OSS   *OSSConfig   `mapstructure:"oss,omitempty"`
}

// LocalConfig 本地文件系统配置
type LocalConfig struct {
	BasePath string `mapstructure:"base_path"` // 基础路径
}

// OSSConfig 阿里云OSS配置
type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`          // OSS端点
	Bucket          string `mapstructure:"bucket"`            // Bucket名称
	AccessKeyID     string `mapstructure:"access_key_id"`     // AccessKey ID
	AccessKeySecret string `mapstructure:"access_key_secret"` // AccessKey Secret
}

var validate = validator.New()

// Validate 验证配置有效性
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("invalid server port")
	}

	validModes := map[string]bool{"debug": true, "release": true, "test": true}
	if !validModes[c.Server.Mode] {
		return errors.New("invalid server mode, must be debug/release/test")
	}

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// guardrail 参数必须成对出现
	if (c.AI.GuardrailID == "") != (c.AI.GuardrailVersion == "") {
		return errors.New("ai.guardrail_id and ai.guardrail_version must be set together")
	}

	if len(c.AI.Available) == 0 {
		return errors.New("ai.available must list at least one model")
	}

	// 恢复扫描只能接管已经超时的任务
	if c.Worker.StaleAfter > 0 && c.Worker.JobTimeout > 0 && c.Worker.StaleAfter <= c.Worker.JobTimeout {
		return errors.New("worker.stale_after must be longer than worker.job_timeout")
	}

	if c.Knowledge.Backend == "data-service" && c.Knowledge.DataServiceURL == "" {
		return errors.New("knowledge.data_service_url is required for the data-service backend")
	}

	return nil
}
