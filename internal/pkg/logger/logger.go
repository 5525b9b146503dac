package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"ragchat/internal/config"
)

// ServiceName 日志中的服务名
const ServiceName = "ragchat"

// Init 初始化全局日志
// 每条日志带 service 与 host 字段
func Init(cfg *config.LogConfig) error {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	switch cfg.TimeFormat {
	case "Unix":
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	case "UnixMs":
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	default:
		zerolog.TimeFieldFormat = time.RFC3339
	}

	output, err := newWriter(cfg)
	if err != nil {
		return err
	}

	host, _ := os.Hostname()
	log.Logger = zerolog.New(output).With().
		Timestamp().
		Str("service", ServiceName).
		Str("host", host).
		Caller().
		Logger()

	// log.Ctx 在 context 没有 logger 时回落到全局 logger
	zerolog.DefaultContextLogger = &log.Logger

	return nil
}

func newWriter(cfg *config.LogConfig) (io.Writer, error) {
	var output io.Writer = os.Stdout
	if cfg.Output == "file" && cfg.FilePath != "" {
		file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		output = file
	}

	// Console 格式 (开发环境友好)
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}
	return output, nil
}
