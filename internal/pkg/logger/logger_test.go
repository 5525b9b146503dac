package logger

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	. "github.com/smartystreets/goconvey/convey"

	"ragchat/internal/config"
)

func TestInit(t *testing.T) {
	Convey("初始化日志", t, func() {
		defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

		Convey("非法级别回落到 info", func() {
			So(Init(&config.LogConfig{Level: "loud", Format: "json"}), ShouldBeNil)
			So(zerolog.GlobalLevel(), ShouldEqual, zerolog.InfoLevel)
		})

		Convey("没有请求 logger 时 log.Ctx 返回全局 logger", func() {
			So(Init(&config.LogConfig{Level: "debug", Format: "json"}), ShouldBeNil)
			So(log.Ctx(context.Background()), ShouldEqual, &log.Logger)
		})
	})
}
