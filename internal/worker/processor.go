package worker

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"ragchat/internal/model/chat"
	"ragchat/internal/pkg/metrics"
	"ragchat/internal/pkg/queue"
)

// 任务结果，用作指标标签
const (
	outcomeCompleted   = "completed"
	outcomeFailed      = "failed"
	outcomeRefused     = "refused"
	outcomeSkipped     = "skipped"
	outcomeInvalid     = "invalid"
	outcomeError       = "error"
	outcomeInterrupted = "interrupted"
)

// process 处理单条消息，返回前无论结果如何都删除该消息
func (w *Worker) process(ctx context.Context, msg queue.Message) {
	start := time.Now()
	outcome := outcomeError
	logger := log.With().Str("worker", w.name).Str("receipt", msg.ReceiptHandle).Logger()

	defer func() {
		// 关闭过程中也要删除
		delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := w.queue.Delete(delCtx, msg.ReceiptHandle); err != nil {
			logger.Error().Err(err).Msg("failed to delete queue message")
		}
		metrics.JobsTotal.WithLabelValues(outcome).Inc()
		metrics.ObserveSince(metrics.JobDuration.WithLabelValues(outcome), start)
	}()

	// 1. 解析任务
	job, err := chat.DecodeChatJob(msg.Body)
	if err != nil {
		outcome = outcomeInvalid
		logger.Error().Err(err).Msg("dropping malformed chat job")
		return
	}
	logger = logger.With().Str("conversation_id", job.ConversationID).Str("message_id", job.MessageID).Logger()

	// 2. 抢占
	claimed, err := w.repo.ClaimMessage(ctx, job.ConversationID, job.MessageID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to claim message")
		return
	}
	if !claimed {
		outcome = outcomeSkipped
		w.logSkip(ctx, &logger, job)
		return
	}

	// 3. 生成
	outcome = w.execute(ctx, &logger, job)
}

// execute 执行已抢占的任务并写入终态
func (w *Worker) execute(ctx context.Context, logger *zerolog.Logger, job *chat.ChatJob) string {
	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()
	jobCtx = logger.WithContext(jobCtx)

	logger.Info().Str("model_id", job.ModelID).Msg("processing chat job")
	reply, err := w.executor.ExecuteChat(jobCtx, job)

	// 关闭导致的中断保持 processing，由恢复扫描重新入队
	if err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled) {
		logger.Warn().Msg("chat job interrupted by shutdown, leaving it for recovery")
		return outcomeInterrupted
	}

	writeCtx, cancelWrite := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancelWrite()

	if err != nil {
		code, message := FailureStatus(err)
		if errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
			code, message = http.StatusGatewayTimeout, msgTimedOut
		}
		logger.Error().Err(err).Int("error_code", code).Msg("chat job failed")
		if uerr := w.repo.UpdateMessageStatus(writeCtx, job.ConversationID, job.MessageID, chat.MessageStatusFailed, message, code); uerr != nil {
			logger.Error().Err(uerr).Msg("failed to mark message as failed")
		}
		return outcomeFailed
	}

	// 写入失败时回答和状态都未落库，消息保持 processing 由恢复扫描重试
	completed, err := w.repo.CompleteMessage(writeCtx, job.ConversationID, job.MessageID, reply.Message)
	if err != nil {
		logger.Error().Err(err).Msg("failed to save reply")
		return outcomeError
	}
	if !completed {
		logger.Warn().Msg("message is no longer processing, reply dropped")
		return outcomeSkipped
	}

	result := reply.Result
	event := logger.Info().Int("input_tokens", result.Usage.InputTokens).Int("output_tokens", result.Usage.OutputTokens)
	if result.Refused {
		event.Str("refusal", result.Validation.Reason).Msg("chat job completed with refusal")
		return outcomeRefused
	}
	event.Int("sources", len(result.Sources)).Msg("chat job completed")
	return outcomeCompleted
}

// logSkip 抢占失败时记录原因
// 已完成、处理中或已不存在的消息属于重复投递，直接跳过
func (w *Worker) logSkip(ctx context.Context, logger *zerolog.Logger, job *chat.ChatJob) {
	status, ok, err := w.repo.GetMessageStatus(ctx, job.ConversationID, job.MessageID)
	switch {
	case err != nil:
		logger.Warn().Err(err).Msg("claim failed and status lookup failed, skipping")
	case !ok:
		logger.Info().Msg("message no longer exists, skipping")
	case status == chat.MessageStatusCompleted || status == chat.MessageStatusProcessing:
		logger.Info().Str("status", status.String()).Msg("duplicate delivery, skipping")
	default:
		logger.Warn().Str("status", status.String()).Msg("message not claimable, skipping")
	}
}
