package http

// 业务错误码
const (
	CodeInvalidBody          = 40001 // 请求体不合法
	CodeUnsupportedModel     = 40002 // 模型不在目录中
	CodeInvalidFeedback      = 40003 // 反馈参数不合法
	CodeConversationNotFound = 40401 // 对话不存在
	CodeInternal             = 50001 // 服务器内部错误
	CodeUnavailable          = 50301 // 依赖服务不可用
)

// ErrorResponse 错误响应（所有API共用）
// 用于统一错误响应格式
type ErrorResponse struct {
	Code    int    `json:"code"`             // 错误码（非0表示错误）
	Message string `json:"message"`          // 错误消息
	Detail  string `json:"detail,omitempty"` // 错误详情（可选）
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string, detail ...string) *ErrorResponse {
	resp := &ErrorResponse{
		Code:    code,
		Message: message,
	}
	if len(detail) > 0 && detail[0] != "" {
		resp.Detail = detail[0]
	}
	return resp
}
