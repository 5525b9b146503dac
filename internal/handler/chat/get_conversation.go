package chat

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ragchat/internal/model/chat"
)

// MessageInfo 消息（用于响应）
// 用户消息携带状态和错误信息，助手消息携带用量和来源
type MessageInfo struct {
	MessageID    string           `json:"message_id,omitempty"`
	Role         string           `json:"role"`
	Content      string           `json:"content"`
	ModelID      string           `json:"model_id"`
	ModelName    string           `json:"model_name,omitempty"`
	Status       string           `json:"status"`
	ErrorMessage string           `json:"error_message,omitempty"`
	ErrorCode    int              `json:"error_code,omitempty"`
	Usage        *chat.TokenUsage `json:"usage,omitempty"`
	Sources      []chat.Source    `json:"sources,omitempty"`
	Timestamp    string           `json:"timestamp"`
}

// ConversationResponse 对话响应
type ConversationResponse struct {
	ConversationID string        `json:"conversation_id"`
	Messages       []MessageInfo `json:"messages"`
	CreatedAt      string        `json:"created_at"`
	UpdatedAt      string        `json:"updated_at"`
}

// toMessageInfo 按角色转换消息
func toMessageInfo(m *chat.Message) MessageInfo {
	info := MessageInfo{
		MessageID: m.MessageID,
		Role:      m.Role.String(),
		Content:   m.Content,
		ModelID:   m.ModelID,
		ModelName: m.ModelName,
		Status:    m.EffectiveStatus().String(),
		Timestamp: m.Timestamp.Format(time.RFC3339),
	}
	switch m.Role {
	case chat.RoleUser:
		if m.EffectiveStatus() == chat.MessageStatusFailed {
			info.ErrorMessage = m.ErrorMessage
			info.ErrorCode = m.ErrorCode
		}
	case chat.RoleAssistant:
		info.Status = chat.MessageStatusCompleted.String()
		info.Usage = m.Usage
		info.Sources = m.Sources
	}
	return info
}

func toConversationResponse(conv *chat.Conversation) ConversationResponse {
	messages := make([]MessageInfo, 0, len(conv.Messages))
	for i := range conv.Messages {
		messages = append(messages, toMessageInfo(&conv.Messages[i]))
	}
	return ConversationResponse{
		ConversationID: conv.ID,
		Messages:       messages,
		CreatedAt:      conv.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      conv.UpdatedAt.Format(time.RFC3339),
	}
}

// GetConversation 查询对话
// @Summary      查询对话
// @Description  返回对话中的全部消息，用户消息的 status 反映对应任务的处理状态。
// @Tags         对话
// @Produce      json
// @Param        conversation_id  path      string                true  "对话ID"
// @Success      200              {object}  ConversationResponse  "对话"
// @Failure      404              {object}  ErrorResponse         "对话不存在"
// @Failure      500              {object}  ErrorResponse         "服务器内部错误"
// @Router       /api/v1/conversations/{conversation_id} [get]
func (h *Handler) GetConversation(c *gin.Context) {
	conv, err := h.chatService.GetConversation(c.Request.Context(), c.Param("conversation_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toConversationResponse(conv))
}
