package workflow

import (
	"context"

	"github.com/rs/zerolog/log"

	"ragchat/internal/ai"
	"ragchat/internal/ai/guardrails"
	"ragchat/internal/model/chat"
	"ragchat/internal/pkg/knowledge"
)

// 护栏拒绝时返回的固定回答
const (
	InputRefusalAnswer  = "I'm sorry, but I cannot process this request. Please ask a question related to the topics covered by the knowledge base."
	OutputRefusalAnswer = "I apologise, but I cannot provide a satisfactory answer based on the available documents. Please try rephrasing your question."
)

// InputGuard 输入护栏
type InputGuard interface {
	Validate(ctx context.Context, query string) guardrails.ValidationResult
}

// OutputGuard 输出护栏
type OutputGuard interface {
	Validate(ctx context.Context, response string, sources []string, query string) guardrails.ValidationResult
}

// Result 一次问答的结果
// 护栏拒绝不是错误：Refused 为 true，Answer 为固定回答
type Result struct {
	Answer  string
	Sources []knowledge.Document
	Usage   ai.Usage
	Steps   []UsageRecord

	Refused    bool
	Validation guardrails.ValidationResult
}

// Agent 把输入护栏、生成工作流和输出护栏串起来
type Agent struct {
	input    InputGuard
	output   OutputGuard
	workflow *Workflow
}

// NewAgent 创建问答代理，input/output 为 nil 时跳过对应护栏
func NewAgent(input InputGuard, output OutputGuard, wf *Workflow) *Agent {
	return &Agent{input: input, output: output, workflow: wf}
}

// Answer 回答问题，只有处理失败才返回 error
func (a *Agent) Answer(ctx context.Context, question string, history []chat.Message, modelID string) (*Result, error) {
	logger := log.Ctx(ctx)

	// 1. 输入护栏，拒绝时不调用任何生成模型
	if a.input != nil {
		if v := a.input.Validate(ctx, question); !v.IsValid {
			logger.Warn().Str("reason", v.Reason).Str("severity", string(v.Severity)).Msg("input rejected by guardrails")
			return &Result{Answer: InputRefusalAnswer, Refused: true, Validation: v}, nil
		}
	}

	// 2. 生成工作流
	st := NewState(question, history)
	if err := a.workflow.Run(ctx, modelID, st); err != nil {
		return nil, err
	}

	result := &Result{
		Answer:     st.FinalAnswer,
		Sources:    st.Context,
		Usage:      st.TotalUsage(),
		Steps:      st.Usage,
		Validation: guardrails.Valid(),
	}

	// 3. 输出护栏，固定的无文档回答不校验
	if a.output == nil || st.NoContext {
		return result, nil
	}
	if v := a.output.Validate(ctx, st.Answer, st.ContextTexts(), question); !v.IsValid {
		logger.Warn().Str("reason", v.Reason).Str("severity", string(v.Severity)).Msg("output rejected by guardrails")
		result.Answer = OutputRefusalAnswer
		result.Refused = true
		result.Validation = v
	}
	return result, nil
}
