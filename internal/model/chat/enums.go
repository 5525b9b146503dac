package chat

// MessageStatus 消息处理状态
// queued -> processing -> completed | failed
type MessageStatus string

const (
	MessageStatusQueued     MessageStatus = "queued"     // 已入队
	MessageStatusProcessing MessageStatus = "processing" // 处理中
	MessageStatusCompleted  MessageStatus = "completed"  // 已完成
	MessageStatusFailed     MessageStatus = "failed"     // 失败
)

// String 返回状态的字符串表示
func (s MessageStatus) String() string {
	return string(s)
}

// IsTerminal 是否为终态
func (s MessageStatus) IsTerminal() bool {
	return s == MessageStatusCompleted || s == MessageStatusFailed
}

// Role 消息角色（消息变体的判别字段）
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String 返回角色的字符串表示
func (r Role) String() string {
	return string(r)
}

// WasHelpfulRating 反馈评分
type WasHelpfulRating string

const (
	RatingVeryUseful     WasHelpfulRating = "very_useful"
	RatingUseful         WasHelpfulRating = "useful"
	RatingNeutral        WasHelpfulRating = "neutral"
	RatingNotUseful      WasHelpfulRating = "not_useful"
	RatingNotAtAllUseful WasHelpfulRating = "not_at_all_useful"
)

// IsValid 是否为合法评分
func (r WasHelpfulRating) IsValid() bool {
	switch r {
	case RatingVeryUseful, RatingUseful, RatingNeutral, RatingNotUseful, RatingNotAtAllUseful:
		return true
	}
	return false
}
