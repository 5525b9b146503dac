package worker

import (
	"context"
	"errors"
	"net/http"

	"ragchat/internal/ai"
	"ragchat/internal/model/chat"
	"ragchat/internal/pkg/knowledge"
)

// 写入 failed 消息的提示文本
const (
	msgThrottled       = "The model provider is throttling requests. Please try again later."
	msgUnavailable     = "The model provider is temporarily unavailable. Please try again later."
	msgProviderError   = "The model provider encountered an internal error."
	msgProviderFailed  = "The model provider rejected the request."
	msgSearchDown      = "The knowledge search service is temporarily unavailable."
	msgTimedOut        = "The request took too long to process."
	msgUnexpectedError = "An unexpected error occurred while processing the request."
)

// FailureStatus 把处理错误映射为写入消息的错误码和错误信息
func FailureStatus(err error) (code int, message string) {
	var notFound *chat.ConversationNotFoundError
	if errors.As(err, &notFound) {
		return http.StatusNotFound, notFound.Error()
	}

	if ai.IsProviderError(err) {
		switch code := ai.ProviderStatusCode(err); code {
		case http.StatusTooManyRequests:
			return code, msgThrottled
		case http.StatusServiceUnavailable:
			return code, msgUnavailable
		case http.StatusInternalServerError:
			return code, msgProviderError
		case http.StatusGatewayTimeout:
			return code, msgTimedOut
		case 0:
			return http.StatusInternalServerError, msgProviderError
		default:
			if code >= 400 && code < 500 {
				return code, msgProviderFailed
			}
			return code, msgProviderError
		}
	}

	var searchDown *knowledge.UnavailableError
	if errors.As(err, &searchDown) {
		return http.StatusServiceUnavailable, msgSearchDown
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, msgTimedOut
	}

	if err == nil {
		return http.StatusInternalServerError, msgUnexpectedError
	}
	return http.StatusInternalServerError, err.Error()
}
