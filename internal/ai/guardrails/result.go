// Package guardrails 输入输出护栏
//
// 输入校验先跑确定性检查（空、长度、注入、偏题），最后才调用 LLM 语义分类。
// 确定性检查出错时拒绝请求，语义分类自身故障时放行。
// 输出校验任何环节出错都放行。
package guardrails

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/schema"

	"ragchat/internal/ai"
)

// Severity 严重程度
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ValidationResult 校验结果
type ValidationResult struct {
	IsValid  bool     `json:"is_valid"`
	Reason   string   `json:"reason,omitempty"`
	Severity Severity `json:"severity"`
}

// Valid 通过
func Valid() ValidationResult {
	return ValidationResult{IsValid: true, Severity: SeverityLow}
}

// Invalid 拒绝
func Invalid(reason string, severity Severity) ValidationResult {
	return ValidationResult{IsValid: false, Reason: reason, Severity: severity}
}

// Classifier LLM 文本分类器，返回模型的原始回答
type Classifier interface {
	Classify(ctx context.Context, systemPrompt, userMessage string) (string, error)
}

// LLMClassifier 通过推理网关调用评分模型
type LLMClassifier struct {
	invoker ai.Invoker
	modelID string
}

// NewLLMClassifier 创建分类器
func NewLLMClassifier(invoker ai.Invoker, modelID string) *LLMClassifier {
	return &LLMClassifier{invoker: invoker, modelID: modelID}
}

// Classify 调用模型并返回文本
func (c *LLMClassifier) Classify(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	if userMessage == "" {
		userMessage = "Validate the content described above."
	}
	resp, err := c.invoker.Invoke(ctx, &ai.InvokeRequest{
		ModelID:      c.modelID,
		SystemPrompt: systemPrompt,
		Messages:     []*schema.Message{schema.UserMessage(userMessage)},
	})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// verdict 解析 "VALID" / "INVALID: reason"
type verdict int

const (
	verdictAmbiguous verdict = iota
	verdictValid
	verdictInvalid
)

func parseVerdict(text string) (verdict, string) {
	trimmed := strings.TrimSpace(text)
	switch {
	case hasPrefixFold(trimmed, "VALID"):
		return verdictValid, ""
	case hasPrefixFold(trimmed, "INVALID"):
		// 判定词不区分大小写，原因保留模型原文
		reason := strings.TrimSpace(trimmed[len("INVALID"):])
		reason = strings.TrimSpace(strings.TrimPrefix(reason, ":"))
		return verdictInvalid, reason
	default:
		return verdictAmbiguous, trimmed
	}
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
