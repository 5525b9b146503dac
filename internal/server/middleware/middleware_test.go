package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	. "github.com/smartystreets/goconvey/convey"

	"ragchat/internal/pkg/ctxutil"
)

func TestMiddleware(t *testing.T) {
	Convey("中间件", t, func() {
		gin.SetMode(gin.TestMode)
		r := gin.New()
		r.Use(Recovery(), RequestID(), Logger(), CORS())

		var seen string
		r.GET("/ok", func(c *gin.Context) {
			seen, _ = ctxutil.GetRequestID(c.Request.Context())
			c.Status(http.StatusOK)
		})
		r.GET("/panic", func(c *gin.Context) { panic("boom") })

		Convey("生成请求 ID 并写入响应头", func() {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(seen, ShouldNotBeEmpty)
			So(w.Header().Get(RequestIDHeader), ShouldEqual, seen)
		})

		Convey("沿用客户端传入的请求 ID", func() {
			const clientID = "0190a5b2-7c1e-7d4a-9b3f-2f6c1d8e4a10"
			req := httptest.NewRequest(http.MethodGet, "/ok", nil)
			req.Header.Set(RequestIDHeader, clientID)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			So(seen, ShouldEqual, clientID)
		})

		Convey("非法请求 ID 被替换", func() {
			req := httptest.NewRequest(http.MethodGet, "/ok", nil)
			req.Header.Set(RequestIDHeader, "client-id")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			So(seen, ShouldNotEqual, "client-id")
			So(seen, ShouldNotBeEmpty)
		})

		Convey("panic 返回 500 错误包", func() {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
			So(w.Body.String(), ShouldContainSubstring, `"code":50001`)
		})

		Convey("预检请求直接返回", func() {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/ok", nil))
			So(w.Code, ShouldEqual, http.StatusNoContent)
		})
	})
}
