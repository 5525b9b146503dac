package guardrails

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"ragchat/internal/ai/prompt"
	"ragchat/internal/pkg/metrics"
)

// MaxQueryLength 问题最大字符数
const MaxQueryLength = 5000

// Matcher 模式匹配器，*regexp.Regexp 满足该接口
type Matcher interface {
	MatchString(s string) bool
	String() string
}

// InjectionPatterns 提示词注入模式
var InjectionPatterns = []string{
	// 指令覆盖
	`ignore\s+(all\s+)?previous\s+(instructions|prompts|rules)`,
	`forget\s+(all\s+)?previous\s+(instructions|prompts|rules)`,
	`disregard\s+(all\s+)?previous\s+(instructions|prompts|rules)`,
	`override\s+(all\s+)?previous\s+(instructions|prompts|rules)`,
	// 角色覆盖
	`you\s+are\s+now\s+a`,
	`act\s+as\s+(if\s+)?you\s+are`,
	`pretend\s+to\s+be`,
	`simulate\s+being`,
	`roleplay\s+as`,
	// 系统提示词套取
	`what\s+(are\s+)?your\s+(initial\s+)?(instructions|prompts|rules|guidelines)`,
	`show\s+me\s+your\s+(system\s+)?(prompt|instructions|rules)`,
	`reveal\s+your\s+(system\s+)?(prompt|instructions|rules)`,
	`print\s+your\s+(system\s+)?(prompt|instructions|rules)`,
	// 上下文截断
	`end\s+of\s+(context|document|instruction)`,
	`start\s+of\s+new\s+(context|document|instruction)`,
	`---\s*end\s*---`,
	"```\\s*end",
	// 特殊 token
	`<\|.*?\|>`,
	`###\s*(human|assistant|user|system)`,
	`\[INST\]|\[/INST\]`,
	// 越狱话术
	`for\s+educational\s+purposes\s+only`,
	`this\s+is\s+just\s+(a\s+)?(test|hypothetical)`,
	`in\s+this\s+(fictional\s+)?scenario`,
	`let's\s+play\s+a\s+game\s+where`,
}

// OffTopicPatterns 默认偏题关键词
var OffTopicPatterns = []string{
	`\b(politics|political|election|vote|democrat|republican)\b`,
	`\b(bitcoin|cryptocurrency|crypto|investment|trading)\b`,
	`\b(dating|relationship|romantic|love)\b`,
	`\b(medical|health|diagnosis|treatment|doctor)\b`,
	`\b(legal|law|lawyer|attorney|lawsuit)\b`,
}

// CompilePatterns 编译为不区分大小写、多行的匹配器
func CompilePatterns(patterns []string) ([]Matcher, error) {
	matchers := make([]Matcher, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(`(?im)` + p)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", p, err)
		}
		matchers = append(matchers, re)
	}
	return matchers, nil
}

func mustCompile(patterns []string) []Matcher {
	m, err := CompilePatterns(patterns)
	if err != nil {
		panic(err)
	}
	return m
}

// InputValidator 输入校验
type InputValidator struct {
	maxLength  int
	injection  []Matcher
	offTopic   []Matcher
	classifier Classifier
	prompts    prompt.Provider
}

// InputOption 输入校验选项
type InputOption func(*InputValidator)

// WithOffTopicMatchers 替换偏题关键词
func WithOffTopicMatchers(m []Matcher) InputOption {
	return func(v *InputValidator) { v.offTopic = m }
}

// WithInjectionMatchers 替换注入模式
func WithInjectionMatchers(m []Matcher) InputOption {
	return func(v *InputValidator) { v.injection = m }
}

// NewInputValidator 创建输入校验，classifier 为 nil 时跳过语义检查
func NewInputValidator(classifier Classifier, prompts prompt.Provider, opts ...InputOption) *InputValidator {
	v := &InputValidator{
		maxLength:  MaxQueryLength,
		injection:  mustCompile(InjectionPatterns),
		offTopic:   mustCompile(OffTopicPatterns),
		classifier: classifier,
		prompts:    prompts,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate 校验用户问题
func (v *InputValidator) Validate(ctx context.Context, query string) (result ValidationResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Ctx(ctx).Error().Interface("panic", r).Msg("input validation failed unexpectedly")
			result = Invalid("Validation system error - request rejected for security", SeverityHigh)
		}
		if !result.IsValid {
			metrics.GuardrailRejections.WithLabelValues("input", string(result.Severity)).Inc()
		}
	}()

	// 1. 空问题
	if strings.TrimSpace(query) == "" {
		return Invalid("Empty query provided", SeverityLow)
	}

	// 2. 长度
	if utf8.RuneCountInString(query) > v.maxLength {
		return Invalid("Query exceeds maximum length limit", SeverityMedium)
	}

	lower := strings.ToLower(query)

	// 3. 注入模式
	if r := v.detectInjection(lower); !r.IsValid {
		log.Ctx(ctx).Warn().Str("reason", r.Reason).Msg("injection pattern detected")
		return r
	}

	// 4. 偏题
	if r := v.detectOffTopic(lower); !r.IsValid {
		log.Ctx(ctx).Info().Str("reason", r.Reason).Msg("off-topic query detected")
		return r
	}

	// 5. 语义检查
	if v.classifier != nil {
		if r := v.semanticCheck(ctx, query); !r.IsValid {
			log.Ctx(ctx).Warn().Str("reason", r.Reason).Msg("semantic validation failed")
			return r
		}
	}

	return Valid()
}

func (v *InputValidator) detectInjection(query string) ValidationResult {
	for _, m := range v.injection {
		if m.MatchString(query) {
			pattern := m.String()
			if len(pattern) > 50 {
				pattern = pattern[:50]
			}
			return Invalid(fmt.Sprintf("Potential prompt injection detected: pattern '%s...'", pattern), SeverityHigh)
		}
	}
	return Valid()
}

func (v *InputValidator) detectOffTopic(query string) ValidationResult {
	for _, m := range v.offTopic {
		if m.MatchString(query) {
			return Invalid("Query appears to be off-topic for this system", SeverityMedium)
		}
	}
	return Valid()
}

// semanticCheck 语义分类自身故障时放行
func (v *InputValidator) semanticCheck(ctx context.Context, query string) ValidationResult {
	systemPrompt, err := v.prompts.Get(ctx, prompt.InputSemantic)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("input semantic prompt unavailable, skipping semantic check")
		return Valid()
	}

	text, err := v.classifier.Classify(ctx, systemPrompt, "Validate this query: "+query)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("input semantic validation error, relying on pattern checks")
		return Valid()
	}

	switch verdict, reason := parseVerdict(text); verdict {
	case verdictValid:
		return Valid()
	case verdictInvalid:
		return Invalid("LLM validation failed: "+reason, SeverityMedium)
	default:
		return Invalid("Ambiguous validation result - rejected for security", SeverityMedium)
	}
}
