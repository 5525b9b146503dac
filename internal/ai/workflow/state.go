package workflow

import (
	"strings"

	"ragchat/internal/ai"
	"ragchat/internal/model/chat"
	"ragchat/internal/pkg/knowledge"
)

// Stage 工作流阶段
type Stage int

const (
	StageRetrieve Stage = iota
	StageGradeDocuments
	StageGenerate
	StageFinalAnswer
	StageEnd
)

func (s Stage) String() string {
	switch s {
	case StageRetrieve:
		return "retrieve"
	case StageGradeDocuments:
		return "grade_documents"
	case StageGenerate:
		return "generate"
	case StageFinalAnswer:
		return "final_answer"
	case StageEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Edge 生成之后的条件边
type Edge int

const (
	EdgeUseful Edge = iota
	EdgeNotUseful
)

// UsageRecord 单次模型调用的用量
type UsageRecord struct {
	Stage Stage
	// Step 阶段内的具体调用，如 retrieval_grader、hallucination_grader
	Step    string
	ModelID string
	Usage   ai.Usage
}

// State 单次工作流执行的状态，不在并发执行之间共享
type State struct {
	Question string
	History  []chat.Message

	CandidateDocuments []knowledge.Document
	Context            []knowledge.Document

	Answer      string
	FinalAnswer string

	// NoContext 过滤后没有文档，Answer 为固定回答
	NoContext bool
	// Regenerations 因为回答不被文档支持而回到检索的次数
	Regenerations int

	Usage []UsageRecord
}

// NewState 创建初始状态
func NewState(question string, history []chat.Message) *State {
	return &State{Question: question, History: history}
}

func (s *State) record(stage Stage, step string, resp *ai.InvokeResponse) {
	s.Usage = append(s.Usage, UsageRecord{Stage: stage, Step: step, ModelID: resp.ModelID, Usage: resp.Usage})
}

// TotalUsage 汇总所有阶段的用量
func (s *State) TotalUsage() ai.Usage {
	var total ai.Usage
	for _, r := range s.Usage {
		total.InputTokens += r.Usage.InputTokens
		total.OutputTokens += r.Usage.OutputTokens
	}
	return total
}

// ContextTexts 上下文文档内容
func (s *State) ContextTexts() []string {
	texts := make([]string, 0, len(s.Context))
	for _, d := range s.Context {
		texts = append(texts, d.Content)
	}
	return texts
}

// DefaultHistoryTurns 历史消息条数
const DefaultHistoryTurns = 10

// FormatHistory 把最近的消息渲染为对话文本
func FormatHistory(history []chat.Message, limit int) string {
	if limit <= 0 {
		limit = DefaultHistoryTurns
	}

	usable := make([]chat.Message, 0, len(history))
	for _, m := range history {
		if m.Role == chat.RoleUser && m.EffectiveStatus() == chat.MessageStatusFailed {
			continue
		}
		usable = append(usable, m)
	}
	if len(usable) > limit {
		usable = usable[len(usable)-limit:]
	}

	lines := make([]string, 0, len(usable))
	for _, m := range usable {
		switch m.Role {
		case chat.RoleAssistant:
			lines = append(lines, "Assistant: "+m.Content)
		default:
			lines = append(lines, "User: "+m.Content)
		}
	}
	return strings.Join(lines, "\n")
}
