package conversation

import (
	"context"
	"sync"
	"time"

	"ragchat/internal/model/chat"
)

// MemoryRepo 内存实现，语义与 Repo 一致，用于单元测试和本地调试
type MemoryRepo struct {
	mu    sync.Mutex
	convs map[string]*chat.Conversation
}

// NewMemoryRepo 创建内存仓库
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{convs: make(map[string]*chat.Conversation)}
}

// Save 保存对话
func (r *MemoryRepo) Save(_ context.Context, conv *chat.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now().UTC()
	}
	conv.UpdatedAt = time.Now().UTC()
	r.convs[conv.ID] = cloneConversation(conv)
	return nil
}

// Get 查询对话
func (r *MemoryRepo) Get(_ context.Context, conversationID string) (*chat.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[conversationID]
	if !ok {
		return nil, &chat.ConversationNotFoundError{ConversationID: conversationID}
	}
	return cloneConversation(conv), nil
}

// AppendMessages 追加消息
func (r *MemoryRepo) AppendMessages(_ context.Context, conversationID string, msgs ...chat.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[conversationID]
	if !ok {
		return &chat.ConversationNotFoundError{ConversationID: conversationID}
	}
	for _, m := range msgs {
		conv.AddMessage(m)
	}
	return nil
}

// UpdateMessageStatus 更新消息状态
func (r *MemoryRepo) UpdateMessageStatus(_ context.Context, conversationID, messageID string, status chat.MessageStatus, errorMessage string, errorCode int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, err := r.find(conversationID, messageID)
	if err != nil {
		return err
	}

	msg.Status = status
	if status == chat.MessageStatusFailed {
		msg.ErrorMessage = errorMessage
		msg.ErrorCode = errorCode
	} else {
		msg.ErrorMessage = ""
		msg.ErrorCode = 0
	}
	if status.IsTerminal() {
		msg.ProcessingStartedAt = nil
	}
	return nil
}

// ClaimMessage 抢占消息
func (r *MemoryRepo) ClaimMessage(_ context.Context, conversationID, messageID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, err := r.find(conversationID, messageID)
	if err != nil || msg.Status != chat.MessageStatusQueued {
		return false, nil
	}
	now := time.Now().UTC()
	msg.Status = chat.MessageStatusProcessing
	msg.ProcessingStartedAt = &now
	return true, nil
}

// CompleteMessage 完成消息并追加回答
func (r *MemoryRepo) CompleteMessage(_ context.Context, conversationID, messageID string, reply chat.Message) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, err := r.find(conversationID, messageID)
	if err != nil || msg.Status != chat.MessageStatusProcessing {
		return false, nil
	}
	msg.Status = chat.MessageStatusCompleted
	msg.ErrorMessage = ""
	msg.ErrorCode = 0
	msg.ProcessingStartedAt = nil
	r.convs[conversationID].AddMessage(reply)
	return true, nil
}

// GetMessageStatus 查询消息状态
func (r *MemoryRepo) GetMessageStatus(_ context.Context, conversationID, messageID string) (chat.MessageStatus, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, err := r.find(conversationID, messageID)
	if err != nil {
		return "", false, nil
	}
	return msg.EffectiveStatus(), true, nil
}

// FindStaleProcessing 查找卡住的消息
func (r *MemoryRepo) FindStaleProcessing(_ context.Context, cutoff time.Time, limit int64) ([]StaleMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stale []StaleMessage
	for _, conv := range r.convs {
		for _, m := range conv.Messages {
			if m.Status == chat.MessageStatusProcessing && m.ProcessingStartedAt != nil && m.ProcessingStartedAt.Before(cutoff) {
				stale = append(stale, StaleMessage{ConversationID: conv.ID, Message: m})
			}
		}
		if limit > 0 && int64(len(stale)) >= limit {
			break
		}
	}
	return stale, nil
}

// RequeueMessage 恢复卡住的消息
func (r *MemoryRepo) RequeueMessage(_ context.Context, conversationID, messageID string, cutoff time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, err := r.find(conversationID, messageID)
	if err != nil || msg.Status != chat.MessageStatusProcessing || msg.ProcessingStartedAt == nil || !msg.ProcessingStartedAt.Before(cutoff) {
		return false, nil
	}
	msg.Status = chat.MessageStatusQueued
	msg.ProcessingStartedAt = nil
	return true, nil
}

func (r *MemoryRepo) find(conversationID, messageID string) (*chat.Message, error) {
	conv, ok := r.convs[conversationID]
	if !ok {
		return nil, &chat.ConversationNotFoundError{ConversationID: conversationID}
	}
	msg, ok := conv.FindMessage(messageID)
	if !ok {
		return nil, &chat.ConversationNotFoundError{ConversationID: conversationID}
	}
	return msg, nil
}

func cloneConversation(c *chat.Conversation) *chat.Conversation {
	out := *c
	out.Messages = make([]chat.Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return &out
}
