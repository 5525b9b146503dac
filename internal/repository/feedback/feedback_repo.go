package feedback

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"ragchat/internal/model/chat"
)

// FeedbackRepository 反馈仓库接口
type FeedbackRepository interface {
	Create(ctx context.Context, fb *chat.Feedback) error
}

// Repo 实现 FeedbackRepository
type Repo struct {
	coll *mongo.Collection
}

// NewRepo 创建反馈仓库
func NewRepo(db *mongo.Database) *Repo {
	var f chat.Feedback
	return &Repo{coll: db.Collection(f.Collection())}
}

// Create 保存反馈
func (r *Repo) Create(ctx context.Context, fb *chat.Feedback) error {
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now().UTC()
	}
	_, err := r.coll.InsertOne(ctx, fb)
	return err
}
