package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ragchat/internal/config"
	"ragchat/internal/pkg/knowledge"
	"ragchat/internal/pkg/logger"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "ragchat",
	Short: "RAGChat - asynchronous knowledge-base chat service",
	Long: `RAGChat answers questions against a knowledge base.
Questions are accepted over HTTP, queued, and answered by background workers
running a retrieval, grading and generation workflow built with Eino.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ./configs/config.yaml, see configs/config.example.yaml)")

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.ragchat")
	}

	// 环境变量设置
	viper.SetEnvPrefix("RAGCHAT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 设置默认值
	setDefaults()

	// 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			fmt.Fprintln(os.Stderr, "No config file found, using defaults and environment variables")
		} else {
			fmt.Fprintf(os.Stderr, "Failed to read config: %v\n", err)
			os.Exit(1)
		}
	}

	// 反序列化到结构体
	cfg = &config.Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to unmarshal config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}

	log.Debug().Str("config_file", viper.ConfigFileUsed()).Msg("configuration loaded")
}

func setDefaults() {
	// Server
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")

	// AI
	viper.SetDefault("ai.profile_prefix", "profile/")
	viper.SetDefault("ai.rate_limit", 0)

	// Log
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.time_format", "RFC3339")

	// MongoDB
	viper.SetDefault("mongo.uri", "mongodb://localhost:27017")
	viper.SetDefault("mongo.database", "ragchat")
	viper.SetDefault("mongo.max_pool_size", 100)
	viper.SetDefault("mongo.min_pool_size", 10)

	// Redis
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.cache_ttl", "30s")

	// Queue
	viper.SetDefault("queue.stream", "ragchat:jobs")
	viper.SetDefault("queue.group", "ragchat-workers")
	viper.SetDefault("queue.wait_time", "20s")
	viper.SetDefault("queue.batch_size", 1)
	viper.SetDefault("queue.visibility_timeout", "10m")

	// Worker
	viper.SetDefault("worker.enabled", false)
	viper.SetDefault("worker.backoff", "5s")
	viper.SetDefault("worker.job_timeout", "5m")
	viper.SetDefault("worker.stale_after", "15m")
	viper.SetDefault("worker.sweep_interval", "1m")
	viper.SetDefault("worker.heartbeat_timeout", "90s")

	// Workflow
	viper.SetDefault("workflow.max_groundedness_retries", 2)
	viper.SetDefault("workflow.validate_input", true)
	viper.SetDefault("workflow.validate_output", true)
	viper.SetDefault("workflow.history_turns", 10)

	// Knowledge
	viper.SetDefault("knowledge.backend", "data-service")
	viper.SetDefault("knowledge.max_results", knowledge.DefaultMaxResults)
	viper.SetDefault("knowledge.similarity_threshold", knowledge.DefaultSimilarityThreshold)
	viper.SetDefault("knowledge.timeout", "30s")
	viper.SetDefault("knowledge.max_retries", 2)
}

// GetConfig returns the global configuration
func GetConfig() *config.Config {
	return cfg
}
