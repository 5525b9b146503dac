// Package metrics Prometheus 指标
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ragchat"

var (
	// JobsTotal 按结果统计的任务数
	// Labels: outcome (completed, failed, skipped)
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "jobs_total",
		Help:      "Chat jobs processed by outcome",
	}, []string{"outcome"})

	// JobDuration 单个任务处理耗时
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "job_duration_seconds",
		Help:      "Chat job processing latency in seconds",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
	}, []string{"outcome"})

	// QueueReceiveErrors 轮询队列失败次数
	QueueReceiveErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "queue_receive_errors_total",
		Help:      "Worker loop iterations that failed and backed off",
	})

	// HeartbeatTimestamp 最近一次心跳的 Unix 时间
	HeartbeatTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "heartbeat_timestamp_seconds",
		Help:      "Unix time of the last worker heartbeat",
	})

	// StaleRequeued 恢复扫描重新入队的消息数
	StaleRequeued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "stale_requeued_total",
		Help:      "Messages moved from processing back to queued by the recovery sweep",
	})

	// StageDuration 工作流阶段耗时
	// Labels: stage
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "workflow",
		Name:      "stage_duration_seconds",
		Help:      "Generation workflow stage latency in seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"stage"})

	// ModelInvocations 模型调用次数
	// Labels: model, outcome (success, invalid_request, unavailable, config_error)
	ModelInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "inference",
		Name:      "invocations_total",
		Help:      "Model invocations by resolved model and outcome",
	}, []string{"model", "outcome"})

	// ModelTokens 模型 token 用量
	// Labels: model, direction (input, output)
	ModelTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "inference",
		Name:      "tokens_total",
		Help:      "Tokens consumed by resolved model and direction",
	}, []string{"model", "direction"})

	// GuardrailRejections 护栏拒绝次数
	// Labels: boundary (input, output), severity
	GuardrailRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "guardrails",
		Name:      "rejections_total",
		Help:      "Guardrail validation rejections",
	}, []string{"boundary", "severity"})
)

// ObserveSince 记录从 start 起的耗时
func ObserveSince(h prometheus.Observer, start time.Time) {
	h.Observe(time.Since(start).Seconds())
}
