package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"ragchat/internal/model/chat"
	"ragchat/internal/pkg/metrics"
)

// sweepBatch 每轮最多恢复的消息数
const sweepBatch = 100

func (w *Worker) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := w.SweepStale(ctx); err != nil {
				log.Error().Err(err).Str("worker", w.name).Msg("stale message sweep failed")
			} else if n > 0 {
				log.Info().Int("requeued", n).Str("worker", w.name).Msg("stale messages requeued")
			}
		}
	}
}

// SweepStale 把开始处理超过 staleAfter 仍未结束的消息恢复为 queued 并重新入队
// 恢复是条件更新，多个 worker 同时扫描时同一消息只会被恢复一次
func (w *Worker) SweepStale(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-w.staleAfter)
	stale, err := w.repo.FindStaleProcessing(ctx, cutoff, sweepBatch)
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, s := range stale {
		logger := log.With().Str("conversation_id", s.ConversationID).Str("message_id", s.Message.MessageID).Logger()

		ok, err := w.repo.RequeueMessage(ctx, s.ConversationID, s.Message.MessageID, cutoff)
		if err != nil {
			logger.Error().Err(err).Msg("failed to requeue stale message")
			continue
		}
		if !ok {
			continue
		}

		job := &chat.ChatJob{
			MessageID:      s.Message.MessageID,
			ConversationID: s.ConversationID,
			Question:       s.Message.Content,
			ModelID:        s.Message.ModelID,
		}
		body, err := job.Encode()
		if err == nil {
			_, err = w.queue.Send(ctx, body)
		}
		if err != nil {
			logger.Error().Err(err).Msg("failed to re-enqueue stale message")
			if uerr := w.repo.UpdateMessageStatus(ctx, s.ConversationID, s.Message.MessageID,
				chat.MessageStatusFailed, msgUnexpectedError, 500); uerr != nil {
				logger.Error().Err(uerr).Msg("failed to mark stale message as failed")
			}
			continue
		}

		metrics.StaleRequeued.Inc()
		logger.Warn().Time("processing_started_at", *s.Message.ProcessingStartedAt).Msg("stale processing message requeued")
		requeued++
	}
	return requeued, nil
}
