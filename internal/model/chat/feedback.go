package chat

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MaxFeedbackCommentLength 反馈评论最大长度
const MaxFeedbackCommentLength = 1200

// Feedback 用户反馈
type Feedback struct {
	ID             string           `bson:"_id" json:"id"`
	ConversationID string           `bson:"conversation_id,omitempty" json:"conversation_id,omitempty"`
	WasHelpful     WasHelpfulRating `bson:"was_helpful" json:"was_helpful"`
	Comment        string           `bson:"comment,omitempty" json:"comment,omitempty"`
	CreatedAt      time.Time        `bson:"created_at" json:"created_at"`
}

// Collection 返回集合名称
func (f *Feedback) Collection() string { return "feedback" }

// EnsureIndexes 创建和维护索引
func (f *Feedback) EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	coll := db.Collection(f.Collection())
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "conversation_id", Value: 1}},
			Options: options.Index().SetName("idx_conversation"),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_created"),
		},
	}
	_, err := coll.Indexes().CreateMany(ctx, indexes)
	return err
}
