// Package worker 后台任务消费
//
// 单个 worker 串行地长轮询队列：每次轮询（包括空轮询）都会写心跳，
// 每条收到的消息处理完后无条件删除恰好一次。循环中的基础设施错误只记录日志并退避，不会退出进程。
package worker

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"ragchat/internal/config"
	"ragchat/internal/model/chat"
	"ragchat/internal/pkg/cache"
	"ragchat/internal/pkg/metrics"
	"ragchat/internal/pkg/queue"
	"ragchat/internal/repository/conversation"
	"ragchat/internal/service"
)

// 默认值
const (
	DefaultBackoff          = 5 * time.Second
	DefaultWaitTime         = 20 * time.Second
	DefaultJobTimeout       = 5 * time.Minute
	DefaultHeartbeatTimeout = 90 * time.Second
)

// Executor 为已抢占的任务生成回答
type Executor interface {
	ExecuteChat(ctx context.Context, job *chat.ChatJob) (*service.ChatReply, error)
}

// HeartbeatStore 心跳存储
type HeartbeatStore interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
}

// Worker 任务消费者
type Worker struct {
	name      string
	queue     queue.Queue
	repo      conversation.ConversationRepository
	executor  Executor
	heartbeat HeartbeatStore

	backoff          time.Duration
	waitTime         time.Duration
	jobTimeout       time.Duration
	staleAfter       time.Duration
	sweepInterval    time.Duration
	heartbeatTimeout time.Duration

	lastHeartbeat atomic.Int64
}

// New 创建 worker，heartbeat 为 nil 时只在进程内记录心跳
func New(cfg *config.WorkerConfig, queueCfg *config.QueueConfig, q queue.Queue, repo conversation.ConversationRepository, executor Executor, heartbeat HeartbeatStore) *Worker {
	w := &Worker{
		name:             cfg.Name,
		queue:            q,
		repo:             repo,
		executor:         executor,
		heartbeat:        heartbeat,
		backoff:          cfg.Backoff,
		waitTime:         queueCfg.WaitTime,
		jobTimeout:       cfg.JobTimeout,
		staleAfter:       cfg.StaleAfter,
		sweepInterval:    cfg.SweepInterval,
		heartbeatTimeout: cfg.HeartbeatTimeout,
	}
	if w.name == "" {
		w.name, _ = os.Hostname()
	}
	if w.backoff <= 0 {
		w.backoff = DefaultBackoff
	}
	if w.waitTime <= 0 {
		w.waitTime = DefaultWaitTime
	}
	if w.jobTimeout <= 0 {
		w.jobTimeout = DefaultJobTimeout
	}
	if w.heartbeatTimeout <= 0 {
		w.heartbeatTimeout = DefaultHeartbeatTimeout
	}
	return w
}

// Name worker 名称，同时作为消费者名和心跳 key
func (w *Worker) Name() string {
	return w.name
}

// Run 运行消费循环和卡住消息的恢复扫描，直到 ctx 取消
func (w *Worker) Run(ctx context.Context) error {
	log.Info().Str("worker", w.name).Dur("wait_time", w.waitTime).Msg("worker started")
	defer log.Info().Str("worker", w.name).Msg("worker stopped")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		w.loop(ctx)
		return nil
	})
	if w.staleAfter > 0 && w.sweepInterval > 0 {
		g.Go(func() error {
			w.sweepLoop(ctx)
			return nil
		})
	}
	return g.Wait()
}

func (w *Worker) loop(ctx context.Context) {
	for ctx.Err() == nil {
		if err := w.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			metrics.QueueReceiveErrors.Inc()
			log.Error().Err(err).Str("worker", w.name).Dur("backoff", w.backoff).Msg("worker loop error")
			if !sleep(ctx, w.backoff) {
				return
			}
		}
	}
}

// poll 写心跳后拉取一条消息并处理
func (w *Worker) poll(ctx context.Context) error {
	w.beat(ctx)

	messages, err := w.queue.Receive(ctx, 1, w.waitTime)
	if err != nil {
		return err
	}
	for _, msg := range messages {
		w.process(ctx, msg)
	}
	return nil
}

// beat 记录心跳，写 Redis 失败不影响消费
func (w *Worker) beat(ctx context.Context) {
	now := time.Now()
	w.lastHeartbeat.Store(now.Unix())
	metrics.HeartbeatTimestamp.Set(float64(now.Unix()))

	if w.heartbeat == nil {
		return
	}
	if err := w.heartbeat.Set(ctx, cache.WorkerHeartbeatKey(w.name), now.Unix(), 2*w.heartbeatTimeout); err != nil {
		log.Warn().Err(err).Str("worker", w.name).Msg("failed to record worker heartbeat")
	}
}

// lastBeat 进程内最近一次心跳时间
func (w *Worker) lastBeat() time.Time {
	ts := w.lastHeartbeat.Load()
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0)
}

// healthy 进程内心跳是否在超时范围内
func (w *Worker) healthy() bool {
	last := w.lastBeat()
	return !last.IsZero() && time.Since(last) < w.heartbeatTimeout
}

// sleep 等待 d，ctx 取消时返回 false
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
