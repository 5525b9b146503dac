// Package queue 提供至少一次投递的任务队列
//
// 队列只是触发器，任务的权威状态保存在对话存储中。
// 收到的每条消息都必须用 receipt handle 删除，否则会在可见性超时后重新投递。
package queue

import (
	"context"
	"time"
)

// Message 收到的队列消息
type Message struct {
	Body          []byte
	ReceiptHandle string
}

// Queue 队列接口
type Queue interface {
	// Send 投递消息，返回消息 ID
	Send(ctx context.Context, body []byte) (string, error)
	// Receive 长轮询获取消息，最多等待 wait，超时返回空切片
	Receive(ctx context.Context, maxMessages int64, wait time.Duration) ([]Message, error)
	// Delete 确认并删除消息
	Delete(ctx context.Context, receiptHandle string) error
}
