package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"ragchat/internal/ai/workflow"
	"ragchat/internal/model/chat"
	"ragchat/internal/pkg/queue"
	"ragchat/internal/repository/conversation"
)

// ErrEmptyQuestion 问题为空
var ErrEmptyQuestion = errors.New("question must not be empty")

// Answerer 生成回答（输入护栏 + 工作流 + 输出护栏）
type Answerer interface {
	Answer(ctx context.Context, question string, history []chat.Message, modelID string) (*workflow.Result, error)
}

// QueueChatInput 提交问题
type QueueChatInput struct {
	Question       string
	ModelID        string
	ConversationID string
}

// QueueChatResult 提交结果
type QueueChatResult struct {
	MessageID      string             `json:"message_id"`
	ConversationID string             `json:"conversation_id"`
	Status         chat.MessageStatus `json:"status"`
}

// ChatService 对话服务
// 职责: 提交时落库并入队，worker 抢占后生成回答，轮询时读取对话
type ChatService struct {
	convRepo conversation.ConversationRepository
	queue    queue.Queue
	models   *ModelService
	answerer Answerer
}

// NewChatService 创建对话服务，answerer 只在 worker 侧需要
func NewChatService(convRepo conversation.ConversationRepository, q queue.Queue, models *ModelService, answerer Answerer) *ChatService {
	return &ChatService{
		convRepo: convRepo,
		queue:    q,
		models:   models,
		answerer: answerer,
	}
}

// QueueChat 提交问题并立即返回
// 业务流程: 1. 校验 -> 2. 加载或创建对话 -> 3. 追加 queued 用户消息 -> 4. 入队
func (s *ChatService) QueueChat(ctx context.Context, in *QueueChatInput) (*QueueChatResult, error) {
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	// 1. 模型必须在目录中
	info, err := s.models.Lookup(in.ModelID)
	if err != nil {
		return nil, err
	}

	userMsg := chat.NewUserMessage(question, info.ID, info.Name)

	// 2-3. 指定的对话不存在时在任何写入之前返回
	conversationID := in.ConversationID
	if conversationID != "" {
		if _, err := s.convRepo.Get(ctx, conversationID); err != nil {
			return nil, err
		}
		if err := s.convRepo.AppendMessages(ctx, conversationID, userMsg); err != nil {
			return nil, fmt.Errorf("append user message: %w", err)
		}
	} else {
		conv := chat.NewConversation()
		conv.AddMessage(userMsg)
		if err := s.convRepo.Save(ctx, conv); err != nil {
			return nil, fmt.Errorf("save conversation: %w", err)
		}
		conversationID = conv.ID
	}

	logger := log.With().Str("conversation_id", conversationID).Str("message_id", userMsg.MessageID).Logger()

	// 4. 入队
	job := &chat.ChatJob{
		MessageID:      userMsg.MessageID,
		ConversationID: conversationID,
		Question:       question,
		ModelID:        info.ID,
	}
	body, err := job.Encode()
	if err != nil {
		return nil, err
	}
	if _, err := s.queue.Send(ctx, body); err != nil {
		logger.Error().Err(err).Msg("failed to enqueue chat job")
		if uerr := s.convRepo.UpdateMessageStatus(ctx, conversationID, userMsg.MessageID,
			chat.MessageStatusFailed, "Failed to queue the request", http.StatusServiceUnavailable); uerr != nil {
			logger.Error().Err(uerr).Msg("failed to mark unqueued message as failed")
		}
		return nil, fmt.Errorf("enqueue chat job: %w", err)
	}

	logger.Info().Str("model_id", info.ID).Msg("chat job queued")
	return &QueueChatResult{
		MessageID:      userMsg.MessageID,
		ConversationID: conversationID,
		Status:         chat.MessageStatusQueued,
	}, nil
}

// GetConversation 查询对话
func (s *ChatService) GetConversation(ctx context.Context, conversationID string) (*chat.Conversation, error) {
	return s.convRepo.Get(ctx, conversationID)
}

// ChatReply 生成结果与待写入的助手消息
type ChatReply struct {
	Result  *workflow.Result
	Message chat.Message
}

// ExecuteChat 为已抢占的任务生成回答，构造助手消息但不写入
// 调用方用 CompleteMessage 把回答和 completed 状态一起落库
func (s *ChatService) ExecuteChat(ctx context.Context, job *chat.ChatJob) (*ChatReply, error) {
	if s.answerer == nil {
		return nil, errors.New("chat service has no answerer configured")
	}

	conv, err := s.convRepo.Get(ctx, job.ConversationID)
	if err != nil {
		return nil, err
	}

	result, err := s.answerer.Answer(ctx, job.Question, historyBefore(conv.Messages, job.MessageID), job.ModelID)
	if err != nil {
		return nil, err
	}

	sources := BuildSources(result.Sources)
	content := result.Answer + FormatSources(sources)
	usage := chat.TokenUsage{
		InputTokens:  result.Usage.InputTokens,
		OutputTokens: result.Usage.OutputTokens,
		TotalTokens:  result.Usage.Total(),
	}

	return &ChatReply{
		Result:  result,
		Message: chat.NewAssistantMessage(content, job.ModelID, s.models.DisplayName(job.ModelID), usage, sources),
	}, nil
}

// historyBefore 返回当前消息之前的历史
func historyBefore(messages []chat.Message, messageID string) []chat.Message {
	for i, m := range messages {
		if m.MessageID == messageID {
			return messages[:i]
		}
	}
	return messages
}
