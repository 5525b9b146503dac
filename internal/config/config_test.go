package config

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080, Mode: "release"},
		AI: AIConfig{
			GradingModel: "gpt-4o-mini",
			Available:    []AvailableModel{{ID: "gpt-4o-mini", Name: "GPT-4o mini"}},
		},
		Mongo:     MongoConfig{URI: "mongodb://localhost:27017", Database: "ragchat"},
		Queue:     QueueConfig{Stream: "ragchat:jobs", Group: "ragchat-workers"},
		Worker:    WorkerConfig{JobTimeout: 5 * time.Minute, StaleAfter: 15 * time.Minute},
		Knowledge: KnowledgeConfig{Backend: "data-service", DataServiceURL: "http://data-service/"},
	}
}

func TestValidate(t *testing.T) {
	Convey("配置校验", t, func() {
		cfg := validConfig()

		Convey("合法配置", func() {
			So(cfg.Validate(), ShouldBeNil)
		})

		Convey("恢复阈值不大于任务超时被拒绝", func() {
			cfg.Worker.StaleAfter = cfg.Worker.JobTimeout
			So(cfg.Validate(), ShouldNotBeNil)

			cfg.Worker.StaleAfter = time.Minute
			So(cfg.Validate().Error(), ShouldContainSubstring, "worker.stale_after")
		})

		Convey("关闭恢复扫描时不检查", func() {
			cfg.Worker.StaleAfter = 0
			So(cfg.Validate(), ShouldBeNil)
		})

		Convey("guardrail 参数必须成对", func() {
			cfg.AI.GuardrailID = "gr-1"
			So(cfg.Validate(), ShouldNotBeNil)
			cfg.AI.GuardrailVersion = "1"
			So(cfg.Validate(), ShouldBeNil)
		})

		Convey("模型目录不能为空", func() {
			cfg.AI.Available = nil
			So(cfg.Validate(), ShouldNotBeNil)
		})

		Convey("数据服务后端需要地址", func() {
			cfg.Knowledge.DataServiceURL = ""
			So(cfg.Validate(), ShouldNotBeNil)
		})
	})
}
