package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"ragchat/internal/config"
)

const bodyField = "body"

// RedisStreamQueue 基于 Redis Streams 消费组的队列
// 已读取但未删除的消息在 visibilityTimeout 后会被其他消费者通过 XAUTOCLAIM 领取
type RedisStreamQueue struct {
	client            *redis.Client
	stream            string
	group             string
	consumer          string
	visibilityTimeout time.Duration
}

// NewRedisStreamQueue 创建队列并确保消费组存在
func NewRedisStreamQueue(ctx context.Context, client *redis.Client, cfg *config.QueueConfig, consumer string) (*RedisStreamQueue, error) {
	q := &RedisStreamQueue{
		client:            client,
		stream:            cfg.Stream,
		group:             cfg.Group,
		consumer:          consumer,
		visibilityTimeout: cfg.VisibilityTimeout,
	}
	if err := q.ensureGroup(ctx); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *RedisStreamQueue) ensureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s: %w", q.group, err)
	}
	return nil
}

// Send 投递消息
func (q *RedisStreamQueue) Send(ctx context.Context, body []byte) (string, error) {
	msgID, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]any{bodyField: body},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", q.stream, err)
	}
	return msgID, nil
}

// Receive 长轮询获取消息
// 先领取超过可见性超时的待确认消息，没有时再阻塞读取新消息
func (q *RedisStreamQueue) Receive(ctx context.Context, maxMessages int64, wait time.Duration) ([]Message, error) {
	if maxMessages <= 0 {
		maxMessages = 1
	}

	if q.visibilityTimeout > 0 {
		claimed, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   q.stream,
			Group:    q.group,
			Consumer: q.consumer,
			MinIdle:  q.visibilityTimeout,
			Start:    "0-0",
			Count:    maxMessages,
		}).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("xautoclaim %s: %w", q.stream, err)
		}
		if msgs := toMessages(claimed); len(msgs) > 0 {
			return msgs, nil
		}
	}

	block := wait
	if block <= 0 {
		// go-redis 中 Block=0 表示永久阻塞，负值表示不阻塞
		block = -1
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{q.stream, ">"},
		Count:    maxMessages,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []Message{}, nil
		}
		return nil, fmt.Errorf("xreadgroup %s: %w", q.stream, err)
	}

	var msgs []Message
	for _, s := range streams {
		msgs = append(msgs, toMessages(s.Messages)...)
	}
	if msgs == nil {
		msgs = []Message{}
	}
	return msgs, nil
}

// Delete 确认并删除消息
func (q *RedisStreamQueue) Delete(ctx context.Context, receiptHandle string) error {
	pipe := q.client.TxPipeline()
	pipe.XAck(ctx, q.stream, q.group, receiptHandle)
	pipe.XDel(ctx, q.stream, receiptHandle)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete %s from %s: %w", receiptHandle, q.stream, err)
	}
	return nil
}

func toMessages(entries []redis.XMessage) []Message {
	msgs := make([]Message, 0, len(entries))
	for _, e := range entries {
		var body []byte
		switch v := e.Values[bodyField].(type) {
		case string:
			body = []byte(v)
		case []byte:
			body = v
		default:
			// 条目已被删除（XAUTOCLAIM 可能返回空值），仍需交给调用方删除
			body = nil
		}
		msgs = append(msgs, Message{Body: body, ReceiptHandle: e.ID})
	}
	return msgs
}
