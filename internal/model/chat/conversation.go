package chat

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ragchat/internal/pkg/id"
)

// Conversation 对话实体
// 消息按插入顺序保存，只追加；唯一允许的修改是用户消息的状态字段
type Conversation struct {
	ID        string    `bson:"_id" json:"conversation_id"`
	Messages  []Message `bson:"messages" json:"messages"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// NewConversation 创建新对话
func NewConversation() *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		ID:        id.New(),
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddMessage 追加消息
func (c *Conversation) AddMessage(msg Message) {
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = time.Now().UTC()
}

// FindMessage 根据 message_id 查找消息
func (c *Conversation) FindMessage(messageID string) (*Message, bool) {
	for i := range c.Messages {
		if c.Messages[i].MessageID == messageID {
			return &c.Messages[i], true
		}
	}
	return nil, false
}

// Collection 返回集合名称
func (c *Conversation) Collection() string { return "conversations" }

// EnsureIndexes 创建和维护索引
func (c *Conversation) EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	coll := db.Collection(c.Collection())
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "messages.message_id", Value: 1}},
			Options: options.Index().SetName("idx_message_id"),
		},
		{
			// 恢复扫描：按状态 + 开始处理时间查找卡住的消息
			Keys: bson.D{
				{Key: "messages.status", Value: 1},
				{Key: "messages.processing_started_at", Value: 1},
			},
			Options: options.Index().SetName("idx_message_status_started"),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: -1}},
			Options: options.Index().SetName("idx_updated"),
		},
	}
	_, err := coll.Indexes().CreateMany(ctx, indexes)
	return err
}

// Message 消息
// Role 为判别字段：
//   - user: MessageID/Content/ModelID/Status/ErrorMessage/ErrorCode/Timestamp
//   - assistant: Content/ModelID/ModelName/Usage/Sources/Timestamp，始终为 completed
type Message struct {
	MessageID    string        `bson:"message_id" json:"message_id"`
	Role         Role          `bson:"role" json:"role"`
	Content      string        `bson:"content" json:"content"`
	ModelID      string        `bson:"model_id" json:"model_id"`
	ModelName    string        `bson:"model_name,omitempty" json:"model_name,omitempty"`
	Status       MessageStatus `bson:"status,omitempty" json:"status,omitempty"`
	ErrorMessage string        `bson:"error_message,omitempty" json:"error_message,omitempty"`
	ErrorCode    int           `bson:"error_code,omitempty" json:"error_code,omitempty"`
	Usage        *TokenUsage   `bson:"usage,omitempty" json:"usage,omitempty"`
	Sources      []Source      `bson:"sources,omitempty" json:"sources,omitempty"`
	Timestamp    time.Time     `bson:"timestamp" json:"timestamp"`

	ProcessingStartedAt *time.Time `bson:"processing_started_at,omitempty" json:"-"`
}

// NewUserMessage 创建排队中的用户消息
func NewUserMessage(content, modelID, modelName string) Message {
	return Message{
		MessageID: id.New(),
		Role:      RoleUser,
		Content:   content,
		ModelID:   modelID,
		ModelName: modelName,
		Status:    MessageStatusQueued,
		Timestamp: time.Now().UTC(),
	}
}

// NewAssistantMessage 创建助手消息
func NewAssistantMessage(content, modelID, modelName string, usage TokenUsage, sources []Source) Message {
	return Message{
		MessageID: id.New(),
		Role:      RoleAssistant,
		Content:   content,
		ModelID:   modelID,
		ModelName: modelName,
		Status:    MessageStatusCompleted,
		Usage:     &usage,
		Sources:   sources,
		Timestamp: time.Now().UTC(),
	}
}

// EffectiveStatus 读取状态，未存储状态的历史消息视为 completed
func (m *Message) EffectiveStatus() MessageStatus {
	if m.Status == "" {
		return MessageStatusCompleted
	}
	return m.Status
}

// TokenUsage Token 使用统计
type TokenUsage struct {
	InputTokens  int `bson:"input_tokens" json:"input_tokens"`
	OutputTokens int `bson:"output_tokens" json:"output_tokens"`
	TotalTokens  int `bson:"total_tokens" json:"total_tokens"`
}

// Add 累加
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		TotalTokens:  u.TotalTokens + other.TotalTokens,
	}
}

// Source 回答引用的知识来源
type Source struct {
	Name     string  `bson:"name" json:"name"`
	Location string  `bson:"location" json:"location"`
	Snippet  string  `bson:"snippet" json:"snippet"`
	Score    float64 `bson:"score" json:"score"`
}
