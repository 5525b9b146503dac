package chat

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ragchat/internal/service"
)

// ListModelsResponse 模型目录响应
type ListModelsResponse struct {
	Models []service.ModelInfo `json:"models"`
}

// ListModels 列出可用模型
// @Summary      可用模型
// @Tags         对话
// @Produce      json
// @Success      200  {object}  ListModelsResponse  "模型目录"
// @Router       /api/v1/models [get]
func (h *Handler) ListModels(c *gin.Context) {
	c.JSON(http.StatusOK, ListModelsResponse{Models: h.modelService.List()})
}
