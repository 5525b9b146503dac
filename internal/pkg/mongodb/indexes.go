package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"ragchat/internal/model/chat"
)

// EnsureIndexes 创建所有模型的索引
// 在应用启动时调用，模型通过 Model 接口声明自己的索引
func EnsureIndexes(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	models := []Model{
		&chat.Conversation{},
		&chat.Feedback{},
	}

	return EnsureAllIndexes(ctx, db, models...)
}
