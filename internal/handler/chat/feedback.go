package chat

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ragchat/internal/model/chat"
	"ragchat/internal/service"
)

// SubmitFeedbackRequest 提交反馈请求
type SubmitFeedbackRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`                                                                   // 对话ID（可选）
	WasHelpful     string `json:"was_helpful" binding:"required,oneof=very_useful useful neutral not_useful not_at_all_useful"` // 评分（必填）
	Comment        string `json:"comment,omitempty" binding:"max=1200"`                                                         // 评论（可选）
}

// SubmitFeedbackResponse 提交反馈响应
type SubmitFeedbackResponse struct {
	FeedbackID string `json:"feedback_id"`
}

// SubmitFeedback 提交反馈
// @Summary      提交反馈
// @Tags         反馈
// @Accept       json
// @Produce      json
// @Param        request  body      SubmitFeedbackRequest   true  "反馈"
// @Success      201      {object}  SubmitFeedbackResponse  "已保存"
// @Failure      400      {object}  ErrorResponse           "请求参数错误"
// @Failure      404      {object}  ErrorResponse           "对话不存在"
// @Failure      500      {object}  ErrorResponse           "服务器内部错误"
// @Router       /api/v1/feedback [post]
func (h *Handler) SubmitFeedback(c *gin.Context) {
	var req SubmitFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidBody(c, err)
		return
	}

	fb, err := h.feedbackService.Submit(c.Request.Context(), &service.FeedbackInput{
		ConversationID: req.ConversationID,
		WasHelpful:     chat.WasHelpfulRating(req.WasHelpful),
		Comment:        req.Comment,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, SubmitFeedbackResponse{FeedbackID: fb.ID})
}
