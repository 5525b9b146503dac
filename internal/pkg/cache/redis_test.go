package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRedisCache(t *testing.T) {
	Convey("Redis 缓存", t, func() {
		ctx := context.Background()
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()
		c := NewRedisCache(client)

		Convey("读写 JSON 值", func() {
			type entry struct {
				Name string `json:"name"`
			}
			So(c.Set(ctx, "k", entry{Name: "v"}, time.Minute), ShouldBeNil)

			var got entry
			So(c.Get(ctx, "k", &got), ShouldBeNil)
			So(got.Name, ShouldEqual, "v")

			So(c.Invalidate(ctx, "k"), ShouldBeNil)
			So(errors.Is(c.Get(ctx, "k", &got), ErrMiss), ShouldBeTrue)
		})

		Convey("版本号变化后放弃写入", func() {
			v, err := c.Version(ctx, "conv")
			So(err, ShouldBeNil)
			So(v, ShouldEqual, 0)

			ok, err := c.SetIfVersion(ctx, "conv", v, "old", time.Minute)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)

			So(c.Invalidate(ctx, "conv"), ShouldBeNil)
			So(mr.Exists("conv"), ShouldBeFalse)

			ok, err = c.SetIfVersion(ctx, "conv", v, "stale", time.Minute)
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
			So(mr.Exists("conv"), ShouldBeFalse)

			v, err = c.Version(ctx, "conv")
			So(err, ShouldBeNil)
			So(v, ShouldEqual, 1)
			ok, err = c.SetIfVersion(ctx, "conv", v, "fresh", time.Minute)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
		})

		Convey("最近一次心跳取所有 worker 的最大值", func() {
			ts, err := c.LatestHeartbeat(ctx)
			So(err, ShouldBeNil)
			So(ts.IsZero(), ShouldBeTrue)

			So(c.Set(ctx, WorkerHeartbeatKey("a"), int64(1700000000), time.Minute), ShouldBeNil)
			So(c.Set(ctx, WorkerHeartbeatKey("b"), int64(1700000100), time.Minute), ShouldBeNil)
			So(c.Set(ctx, ConversationCacheKey("x"), int64(1800000000), time.Minute), ShouldBeNil)

			ts, err = c.LatestHeartbeat(ctx)
			So(err, ShouldBeNil)
			So(ts.Unix(), ShouldEqual, 1700000100)
		})
	})
}
