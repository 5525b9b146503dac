// Package workflow 检索增强生成工作流
//
// RETRIEVE -> GRADE_DOCUMENTS -> GENERATE -> (有依据: FINAL_ANSWER | 无依据: RETRIEVE) -> END
// 回到 RETRIEVE 的次数受 MaxGroundednessRetries 限制，用完后接受最后一次回答。
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/kaptinlin/jsonrepair"
	"github.com/rs/zerolog/log"

	"ragchat/internal/ai"
	"ragchat/internal/ai/prompt"
	"ragchat/internal/pkg/knowledge"
	"ragchat/internal/pkg/metrics"
)

// NoDocumentsAnswer 过滤后没有相关文档时的固定回答
const NoDocumentsAnswer = "I'm sorry, I couldn't find any relevant information to answer your question."

// DefaultMaxGroundednessRetries 默认重新生成次数上限
const DefaultMaxGroundednessRetries = 2

// Config 工作流配置
type Config struct {
	GradingModel    string
	FormattingModel string
	// GenerationModel 请求没有指定模型时使用
	GenerationModel string

	Scope      string
	MaxResults int

	MaxGroundednessRetries int
	HistoryTurns           int

	// 生成调用携带的 guardrail 参数，必须成对配置
	GuardrailID      string
	GuardrailVersion string
}

// Workflow 生成工作流
type Workflow struct {
	invoker  ai.Invoker
	searcher knowledge.Searcher
	prompts  prompt.Provider
	cfg      Config
}

// New 创建工作流
func New(invoker ai.Invoker, searcher knowledge.Searcher, prompts prompt.Provider, cfg Config) *Workflow {
	if cfg.MaxGroundednessRetries < 0 {
		cfg.MaxGroundednessRetries = 0
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = DefaultHistoryTurns
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = knowledge.DefaultMaxResults
	}
	return &Workflow{invoker: invoker, searcher: searcher, prompts: prompts, cfg: cfg}
}

// Run 依次执行各阶段，modelID 为生成阶段使用的模型
func (w *Workflow) Run(ctx context.Context, modelID string, st *State) error {
	if modelID == "" {
		modelID = w.cfg.GenerationModel
	}
	logger := log.Ctx(ctx)

	stage := StageRetrieve
	for stage != StageEnd {
		start := time.Now()
		next, err := w.step(ctx, stage, modelID, st)
		metrics.ObserveSince(metrics.StageDuration.WithLabelValues(stage.String()), start)
		if err != nil {
			return fmt.Errorf("%s: %w", stage, err)
		}
		logger.Debug().Str("stage", stage.String()).Str("next", next.String()).
			Dur("elapsed", time.Since(start)).Msg("workflow stage finished")
		stage = next
	}
	return nil
}

func (w *Workflow) step(ctx context.Context, stage Stage, modelID string, st *State) (Stage, error) {
	switch stage {
	case StageRetrieve:
		return StageGradeDocuments, w.retrieve(ctx, st)
	case StageGradeDocuments:
		return StageGenerate, w.gradeDocuments(ctx, st)
	case StageGenerate:
		if err := w.generate(ctx, modelID, st); err != nil {
			return StageEnd, err
		}
		edge, err := w.gradeGeneration(ctx, st)
		if err != nil {
			return StageEnd, err
		}
		if edge == EdgeNotUseful && st.Regenerations < w.cfg.MaxGroundednessRetries {
			st.Regenerations++
			log.Ctx(ctx).Info().Int("regenerations", st.Regenerations).Msg("answer not grounded, retrieving again")
			return StageRetrieve, nil
		}
		if edge == EdgeNotUseful {
			log.Ctx(ctx).Warn().Int("regenerations", st.Regenerations).Msg("answer still not grounded, accepting last answer")
		}
		return StageFinalAnswer, nil
	case StageFinalAnswer:
		w.finalAnswer(ctx, modelID, st)
		return StageEnd, nil
	default:
		return StageEnd, fmt.Errorf("unknown stage %d", stage)
	}
}

// retrieve 检索候选文档
func (w *Workflow) retrieve(ctx context.Context, st *State) error {
	docs, err := w.searcher.Search(ctx, st.Question, w.cfg.Scope, w.cfg.MaxResults)
	if err != nil {
		return err
	}
	st.CandidateDocuments = docs
	return nil
}

// gradeDocuments 逐篇判断相关性
func (w *Workflow) gradeDocuments(ctx context.Context, st *State) error {
	tmpl, err := w.prompts.Get(ctx, prompt.RetrievalGrader)
	if err != nil {
		return err
	}
	systemPrompt := prompt.Render(tmpl, map[string]string{"question": st.Question})

	st.Context = st.Context[:0]
	for _, doc := range st.CandidateDocuments {
		resp, err := w.invoker.Invoke(ctx, &ai.InvokeRequest{
			ModelID:      w.cfg.GradingModel,
			SystemPrompt: systemPrompt,
			Messages:     []*schema.Message{schema.UserMessage("Retrieved document: \n\n " + doc.Content)},
		})
		if err != nil {
			return err
		}
		st.record(StageGradeDocuments, prompt.RetrievalGrader, resp)

		if isYes(resp.Content) {
			st.Context = append(st.Context, doc)
		}
	}
	return nil
}

// isYes 最后一个文本块是否为 yes
func isYes(content []string) bool {
	if len(content) == 0 {
		return false
	}
	return strings.ToLower(strings.TrimSpace(content[len(content)-1])) == "yes"
}

// generate 基于上下文生成回答，没有上下文时返回固定回答且不调用模型
func (w *Workflow) generate(ctx context.Context, modelID string, st *State) error {
	if len(st.Context) == 0 {
		st.Answer = NoDocumentsAnswer
		st.NoContext = true
		return nil
	}
	st.NoContext = false

	tmpl, err := w.prompts.Get(ctx, prompt.QASystem)
	if err != nil {
		return err
	}
	systemPrompt := prompt.Render(tmpl, map[string]string{
		"context":              strings.Join(st.ContextTexts(), "\n\n"),
		"conversation_history": FormatHistory(st.History, w.cfg.HistoryTurns),
		"question":             st.Question,
	})

	resp, err := w.invoker.Invoke(ctx, &ai.InvokeRequest{
		ModelID:          modelID,
		SystemPrompt:     systemPrompt,
		Messages:         []*schema.Message{schema.UserMessage(st.Question)},
		GuardrailID:      w.cfg.GuardrailID,
		GuardrailVersion: w.cfg.GuardrailVersion,
	})
	if err != nil {
		return err
	}
	st.record(StageGenerate, "generate", resp)
	st.Answer = resp.Text()
	return nil
}

type groundednessScore struct {
	BinaryScore any `json:"binary_score"`
}

// gradeGeneration 判断回答是否被文档支持
func (w *Workflow) gradeGeneration(ctx context.Context, st *State) (Edge, error) {
	if st.NoContext {
		return EdgeUseful, nil
	}

	systemPrompt, err := w.prompts.Get(ctx, prompt.HallucinationGrader)
	if err != nil {
		return EdgeUseful, err
	}

	resp, err := w.invoker.Invoke(ctx, &ai.InvokeRequest{
		ModelID:      w.cfg.GradingModel,
		SystemPrompt: systemPrompt,
		Messages: []*schema.Message{schema.UserMessage(
			"Set of facts: \n\n " + strings.Join(st.ContextTexts(), "\n\n") + " \n\n LLM generation: " + st.Answer,
		)},
	})
	if err != nil {
		return EdgeUseful, err
	}
	st.record(StageGenerate, prompt.HallucinationGrader, resp)

	grounded, ok := parseGroundedness(resp.Text())
	if !ok {
		log.Ctx(ctx).Warn().Str("grader_output", resp.Text()).Msg("unparseable groundedness grade, treating answer as grounded")
		return EdgeUseful, nil
	}
	if grounded {
		return EdgeUseful, nil
	}
	return EdgeNotUseful, nil
}

// parseGroundedness 解析评分结果，JSON 不完整时先修复
func parseGroundedness(text string) (grounded bool, ok bool) {
	trimmed := strings.TrimSpace(text)
	switch strings.ToLower(strings.Trim(trimmed, `"'. `)) {
	case "yes", "true":
		return true, true
	case "no", "false":
		return false, true
	}

	if start := strings.Index(trimmed, "{"); start >= 0 {
		trimmed = trimmed[start:]
	}
	repaired, err := jsonrepair.JSONRepair(trimmed)
	if err != nil {
		return false, false
	}

	var score groundednessScore
	if err := json.Unmarshal([]byte(repaired), &score); err != nil {
		return false, false
	}
	switch v := score.BinaryScore.(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "yes", "true":
			return true, true
		case "no", "false":
			return false, true
		}
	}
	return false, false
}

// finalAnswer 格式化回答，失败时保留原回答
func (w *Workflow) finalAnswer(ctx context.Context, modelID string, st *State) {
	st.FinalAnswer = st.Answer
	if st.NoContext {
		return
	}

	formattingModel := w.cfg.FormattingModel
	if formattingModel == "" {
		formattingModel = modelID
	}

	tmpl, err := w.prompts.Get(ctx, prompt.FinalAnswer)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("final answer prompt unavailable, keeping generated answer")
		return
	}

	resp, err := w.invoker.Invoke(ctx, &ai.InvokeRequest{
		ModelID:      formattingModel,
		SystemPrompt: prompt.Render(tmpl, map[string]string{"answer": st.Answer}),
		Messages:     []*schema.Message{schema.UserMessage(st.Question)},
	})
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("final answer formatting failed, keeping generated answer")
		return
	}
	st.record(StageFinalAnswer, prompt.FinalAnswer, resp)

	if formatted := strings.TrimSpace(resp.Text()); formatted != "" {
		st.FinalAnswer = formatted
	}
}
