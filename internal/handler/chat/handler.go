package chat

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"ragchat/internal/model/chat"
	httputil "ragchat/internal/pkg/http"
	"ragchat/internal/service"
)

// ErrorResponse 错误响应类型别名（使用共用的 http.ErrorResponse）
type ErrorResponse = httputil.ErrorResponse

// Handler 对话接口处理器
type Handler struct {
	chatService     *service.ChatService
	modelService    *service.ModelService
	feedbackService *service.FeedbackService
}

// NewHandler 创建处理器
func NewHandler(chatService *service.ChatService, modelService *service.ModelService, feedbackService *service.FeedbackService) *Handler {
	return &Handler{
		chatService:     chatService,
		modelService:    modelService,
		feedbackService: feedbackService,
	}
}

// writeError 把服务层错误映射为 HTTP 响应，不暴露内部错误细节
func writeError(c *gin.Context, err error) {
	var notFound *chat.ConversationNotFoundError
	var unsupported *chat.UnsupportedModelError

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Code:    httputil.CodeConversationNotFound,
			Message: notFound.Error(),
		})
	case errors.As(err, &unsupported):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    httputil.CodeUnsupportedModel,
			Message: unsupported.Error(),
		})
	case errors.Is(err, service.ErrEmptyQuestion):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    httputil.CodeInvalidBody,
			Message: err.Error(),
		})
	case errors.Is(err, service.ErrInvalidRating), errors.Is(err, service.ErrCommentTooLong):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    httputil.CodeInvalidFeedback,
			Message: err.Error(),
		})
	default:
		log.Error().Err(err).Str("path", c.Request.URL.Path).Str("request_id", c.GetString("request_id")).Msg("request failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    httputil.CodeInternal,
			Message: "Internal Server Error",
		})
	}
}

func invalidBody(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Code:    httputil.CodeInvalidBody,
		Message: "Invalid request body",
		Detail:  err.Error(),
	})
}
