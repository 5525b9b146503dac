package guardrails

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"ragchat/internal/ai/prompt"
	"ragchat/internal/pkg/metrics"
)

// MinSourceOverlap 回答与至少一篇文档的共同词数必须超过该值
const MinSourceOverlap = 3

// OutputValidator 输出校验
type OutputValidator struct {
	classifier Classifier
	prompts    prompt.Provider
}

// NewOutputValidator 创建输出校验，classifier 为 nil 时只做来源重叠检查
func NewOutputValidator(classifier Classifier, prompts prompt.Provider) *OutputValidator {
	return &OutputValidator{classifier: classifier, prompts: prompts}
}

// Validate 校验生成的回答，sources 为生成时使用的文档内容
func (v *OutputValidator) Validate(ctx context.Context, response string, sources []string, query string) (result ValidationResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Ctx(ctx).Error().Interface("panic", r).Msg("output validation failed unexpectedly, allowing response")
			result = Valid()
		}
		if !result.IsValid {
			metrics.GuardrailRejections.WithLabelValues("output", string(result.Severity)).Inc()
		}
	}()

	// 1. 来源重叠
	if !UsesSources(response, sources) {
		return Invalid("Response does not appear to use provided source documents", SeverityHigh)
	}

	if v.classifier == nil {
		return Valid()
	}

	// 2. 知识泄漏
	if r := v.check(ctx, prompt.OutputLeakage, map[string]string{
		"sources":  strings.Join(sources, "\n\n---\n\n"),
		"response": response,
	}, "Potential knowledge leakage: "); !r.IsValid {
		return r
	}

	// 3. 内容是否得体
	return v.check(ctx, prompt.OutputAppropriateness, map[string]string{
		"query":    query,
		"response": response,
	}, "Response validation failed: ")
}

// check LLM 检查，模棱两可或出错时都放行
func (v *OutputValidator) check(ctx context.Context, name string, vars map[string]string, reasonPrefix string) ValidationResult {
	tmpl, err := v.prompts.Get(ctx, name)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("prompt", name).Msg("output validation prompt unavailable")
		return Valid()
	}

	text, err := v.classifier.Classify(ctx, prompt.Render(tmpl, vars), "")
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("check", name).Msg("output validation error")
		return Valid()
	}

	switch verdict, reason := parseVerdict(text); verdict {
	case verdictInvalid:
		return Invalid(reasonPrefix+reason, SeverityMedium)
	case verdictAmbiguous:
		log.Ctx(ctx).Warn().Str("check", name).Str("result", reason).Msg("ambiguous output validation result")
	}
	return Valid()
}

// UsesSources 回答与任一文档的词集合交集超过阈值
func UsesSources(response string, sources []string) bool {
	if len(sources) == 0 {
		return false
	}

	responseWords := wordSet(response)
	for _, doc := range sources {
		overlap := 0
		for w := range wordSet(doc) {
			if _, ok := responseWords[w]; ok {
				overlap++
			}
		}
		if overlap > MinSourceOverlap {
			return true
		}
	}
	return false
}

func wordSet(text string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
