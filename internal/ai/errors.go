package ai

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// ResolutionError 模型引用无法解析为具体模型
type ResolutionError struct {
	ModelID string
	Reason  string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve model %q: %s", e.ModelID, e.Reason)
}

// InvalidConfigurationError 调用参数配置错误，未发出任何网络请求
type InvalidConfigurationError struct {
	Message string
}

func (e *InvalidConfigurationError) Error() string {
	return "invalid inference configuration: " + e.Message
}

// InvalidRequestError 提供方以 4xx 拒绝了请求
type InvalidRequestError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("inference request rejected (status %d): %s", e.StatusCode, e.Message)
}

func (e *InvalidRequestError) Unwrap() error { return e.Err }

// InferenceUnavailableError 提供方不可用（5xx、网络错误、超时）
// StatusCode 为 0 表示没有拿到状态码
type InferenceUnavailableError struct {
	StatusCode int
	Err        error
}

func (e *InferenceUnavailableError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("inference unavailable (status %d)", e.StatusCode)
	}
	return "inference unavailable"
}

func (e *InferenceUnavailableError) Unwrap() error { return e.Err }

// StatusCoder 能给出 HTTP 状态码的后端错误
type StatusCoder interface {
	StatusCode() int
}

// openai / ark SDK 的错误文本形如 "error, status code: 429, ..."
var statusCodePattern = regexp.MustCompile(`status code:\s*(\d{3})`)

// ProviderStatusCode 提取推理错误携带的状态码，没有则返回 0
func ProviderStatusCode(err error) int {
	var invalid *InvalidRequestError
	if errors.As(err, &invalid) {
		return invalid.StatusCode
	}
	var unavailable *InferenceUnavailableError
	if errors.As(err, &unavailable) {
		return unavailable.StatusCode
	}
	return 0
}

// IsProviderError 是否为提供方传输错误
func IsProviderError(err error) bool {
	var invalid *InvalidRequestError
	var unavailable *InferenceUnavailableError
	return errors.As(err, &invalid) || errors.As(err, &unavailable)
}

// classifyError 按状态码把后端错误归类
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if IsProviderError(err) {
		return err
	}

	code := statusCodeOf(err)
	if code >= 400 && code < 500 {
		return &InvalidRequestError{StatusCode: code, Message: err.Error(), Err: err}
	}
	if code == 0 && errors.Is(err, context.DeadlineExceeded) {
		code = 504
	}
	return &InferenceUnavailableError{StatusCode: code, Err: err}
}

func statusCodeOf(err error) int {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	if m := statusCodePattern.FindStringSubmatch(err.Error()); m != nil {
		if code, convErr := strconv.Atoi(m[1]); convErr == nil {
			return code
		}
	}
	return 0
}
