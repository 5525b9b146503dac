package chat

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ragchat/internal/service"
)

// SubmitChatRequest 提交问题请求
type SubmitChatRequest struct {
	Question       string `json:"question" binding:"required"` // 问题（必填）
	ModelID        string `json:"model_id" binding:"required"` // 模型ID（必填，见 /api/v1/models）
	ConversationID string `json:"conversation_id,omitempty"`   // 对话ID（可选，不传则新建对话）
}

// SubmitChatResponse 提交问题响应
type SubmitChatResponse struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	Status         string `json:"status"`
}

// SubmitChat 提交问题
// @Summary      提交问题
// @Description  问题写入对话并进入队列后立即返回，通过 GET /api/v1/conversations/{conversation_id} 轮询处理结果。
// @Tags         对话
// @Accept       json
// @Produce      json
// @Param        request  body      SubmitChatRequest   true  "提交问题请求"
// @Success      202      {object}  SubmitChatResponse  "已入队"
// @Failure      400      {object}  ErrorResponse       "请求参数错误或模型不支持"
// @Failure      404      {object}  ErrorResponse       "对话不存在"
// @Failure      500      {object}  ErrorResponse       "服务器内部错误"
// @Router       /api/v1/chat [post]
func (h *Handler) SubmitChat(c *gin.Context) {
	var req SubmitChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidBody(c, err)
		return
	}

	res, err := h.chatService.QueueChat(c.Request.Context(), &service.QueueChatInput{
		Question:       req.Question,
		ModelID:        req.ModelID,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, SubmitChatResponse{
		MessageID:      res.MessageID,
		ConversationID: res.ConversationID,
		Status:         res.Status.String(),
	})
}
