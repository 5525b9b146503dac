package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// DefaultHeartbeatTimeout worker 心跳超过该时长视为不健康
const DefaultHeartbeatTimeout = 90 * time.Second

// Pinger 可探活的依赖
type Pinger interface {
	Ping(ctx context.Context) error
}

// HeartbeatSource 提供 worker 最近一次心跳时间
type HeartbeatSource interface {
	LatestHeartbeat(ctx context.Context) (time.Time, error)
}

// HealthHandler 健康检查处理器
type HealthHandler struct {
	deps             map[string]Pinger
	heartbeat        HeartbeatSource
	heartbeatTimeout time.Duration
}

// NewHealthHandler 创建健康检查处理器，heartbeat 为 nil 时不检查 worker
func NewHealthHandler(deps map[string]Pinger, heartbeat HeartbeatSource, heartbeatTimeout time.Duration) *HealthHandler {
	if heartbeatTimeout <= 0 {
		heartbeatTimeout = DefaultHeartbeatTimeout
	}
	return &HealthHandler{deps: deps, heartbeat: heartbeat, heartbeatTimeout: heartbeatTimeout}
}

// Health 存活检查
// @Summary  存活检查
// @Tags     系统
// @Produce  json
// @Success  200  {object}  map[string]string
// @Router   /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Ready 就绪检查：依赖连通且 worker 心跳未超时
// @Summary  就绪检查
// @Tags     系统
// @Produce  json
// @Success  200  {object}  map[string]interface{}
// @Failure  503  {object}  map[string]interface{}
// @Router   /ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.deps)+1)
	ready := true

	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			checks[name] = "unavailable"
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	if h.heartbeat != nil {
		last, err := h.heartbeat.LatestHeartbeat(ctx)
		switch {
		case err != nil:
			checks["worker"] = "unavailable"
			ready = false
		case last.IsZero() || time.Since(last) > h.heartbeatTimeout:
			checks["worker"] = "stale"
			ready = false
		default:
			checks["worker"] = "ok"
		}
	}

	status := http.StatusOK
	state := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		state = "not_ready"
	}
	c.JSON(status, gin.H{
		"status": state,
		"checks": checks,
	})
}
