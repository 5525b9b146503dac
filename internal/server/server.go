package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "ragchat/docs"
	"ragchat/internal/config"
	"ragchat/internal/handler"
	chatHandler "ragchat/internal/handler/chat"
	"ragchat/internal/server/middleware"
)

// shutdownTimeout 等待进行中请求结束的最长时间
const shutdownTimeout = 15 * time.Second

// Server HTTP 服务器
type Server struct {
	cfg       *config.Config
	engine    *gin.Engine
	container *Container
}

// New 创建服务器实例
func New(cfg *config.Config, container *Container) *Server {
	// 设置 Gin 模式
	switch cfg.Server.Mode {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	srv := &Server{
		cfg:       cfg,
		engine:    gin.New(),
		container: container,
	}

	// 设置路由
	srv.setupRoutes()

	return srv
}

// setupRoutes 设置路由
func (s *Server) setupRoutes() {
	// 全局中间件
	s.engine.Use(middleware.Recovery())
	s.engine.Use(middleware.RequestID())
	s.engine.Use(middleware.Logger())
	s.engine.Use(middleware.CORS())

	// 健康检查：就绪状态同时看依赖连通与 worker 心跳
	healthHandler := handler.NewHealthHandler(
		map[string]handler.Pinger{
			"mongo": s.container.Mongo,
			"redis": s.container.Redis,
		},
		s.container.Redis,
		s.cfg.Worker.HeartbeatTimeout,
	)
	s.engine.GET("/health", healthHandler.Health)
	s.engine.GET("/ready", healthHandler.Ready)

	// 指标
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Swagger 文档
	s.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// API v1
	chatHdl := chatHandler.NewHandler(
		s.container.ChatService,
		s.container.ModelService,
		s.container.FeedbackService,
	)
	v1 := s.engine.Group("/api/v1")
	{
		v1.POST("/chat", chatHdl.SubmitChat)
		v1.GET("/conversations/:conversation_id", chatHdl.GetConversation)
		v1.GET("/models", chatHdl.ListModels)
		v1.POST("/feedback", chatHdl.SubmitFeedback)
	}
}

// Run 启动服务器，ctx 取消后优雅关闭
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	// 启动服务器
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 等待关闭信号或错误
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// Engine 获取 Gin 引擎 (用于测试)
func (s *Server) Engine() *gin.Engine {
	return s.engine
}
