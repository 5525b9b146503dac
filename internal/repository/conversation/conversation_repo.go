package conversation

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ragchat/internal/model/chat"
)

// ConversationRepository 对话仓库接口
// 对消息的修改都按 message_id 定位到数组元素
type ConversationRepository interface {
	// Save 整体保存对话（不存在则插入），只用于新建对话
	Save(ctx context.Context, conv *chat.Conversation) error
	// Get 查询对话，不存在时返回 *chat.ConversationNotFoundError
	Get(ctx context.Context, conversationID string) (*chat.Conversation, error)
	// AppendMessages 追加消息
	AppendMessages(ctx context.Context, conversationID string, msgs ...chat.Message) error
	// UpdateMessageStatus 更新单条消息状态
	UpdateMessageStatus(ctx context.Context, conversationID, messageID string, status chat.MessageStatus, errorMessage string, errorCode int) error
	// ClaimMessage 原子地将 queued 消息置为 processing，只有一个调用方能成功
	ClaimMessage(ctx context.Context, conversationID, messageID string) (bool, error)
	// CompleteMessage 仅当消息为 processing 时，在同一次写入中将其置为 completed 并追加回答
	CompleteMessage(ctx context.Context, conversationID, messageID string, reply chat.Message) (bool, error)
	// GetMessageStatus 查询消息状态，消息不存在时 ok 为 false
	GetMessageStatus(ctx context.Context, conversationID, messageID string) (status chat.MessageStatus, ok bool, err error)
	// FindStaleProcessing 查找在 cutoff 之前开始处理且仍未结束的消息
	FindStaleProcessing(ctx context.Context, cutoff time.Time, limit int64) ([]StaleMessage, error)
	// RequeueMessage 将卡住的 processing 消息恢复为 queued
	RequeueMessage(ctx context.Context, conversationID, messageID string, cutoff time.Time) (bool, error)
}

// StaleMessage 卡在 processing 的消息
type StaleMessage struct {
	ConversationID string
	Message        chat.Message
}

// Repo 实现 ConversationRepository
type Repo struct {
	coll *mongo.Collection
}

// NewRepo 创建对话仓库
func NewRepo(db *mongo.Database) *Repo {
	var c chat.Conversation
	return &Repo{coll: db.Collection(c.Collection())}
}

// Save 保存对话
func (r *Repo) Save(ctx context.Context, conv *chat.Conversation) error {
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now

	opts := options.Replace().SetUpsert(true)
	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": conv.ID}, conv, opts)
	return err
}

// Get 查询对话
func (r *Repo) Get(ctx context.Context, conversationID string) (*chat.Conversation, error) {
	var conv chat.Conversation
	err := r.coll.FindOne(ctx, bson.M{"_id": conversationID}).Decode(&conv)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &chat.ConversationNotFoundError{ConversationID: conversationID}
		}
		return nil, err
	}
	return &conv, nil
}

// AppendMessages 追加消息
func (r *Repo) AppendMessages(ctx context.Context, conversationID string, msgs ...chat.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	update := bson.M{
		"$push": bson.M{"messages": bson.M{"$each": msgs}},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	}

	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": conversationID}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return &chat.ConversationNotFoundError{ConversationID: conversationID}
	}
	return nil
}

// UpdateMessageStatus 更新消息状态
// failed 时写入错误信息；其他状态清理错误信息
func (r *Repo) UpdateMessageStatus(ctx context.Context, conversationID, messageID string, status chat.MessageStatus, errorMessage string, errorCode int) error {
	now := time.Now().UTC()

	set := bson.M{
		"messages.$.status": status,
		"updated_at":        now,
	}
	unset := bson.M{}

	if status == chat.MessageStatusFailed {
		set["messages.$.error_message"] = errorMessage
		set["messages.$.error_code"] = errorCode
	} else {
		unset["messages.$.error_message"] = ""
		unset["messages.$.error_code"] = ""
	}
	if status.IsTerminal() {
		unset["messages.$.processing_started_at"] = ""
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	filter := bson.M{"_id": conversationID, "messages.message_id": messageID}
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return &chat.ConversationNotFoundError{ConversationID: conversationID}
	}
	return nil
}

// ClaimMessage 抢占消息
// 单次条件更新：仅当消息当前状态恰好为 queued 时修改成功
func (r *Repo) ClaimMessage(ctx context.Context, conversationID, messageID string) (bool, error) {
	now := time.Now().UTC()

	filter := bson.M{
		"_id": conversationID,
		"messages": bson.M{"$elemMatch": bson.M{
			"message_id": messageID,
			"status":     chat.MessageStatusQueued,
		}},
	}
	update := bson.M{"$set": bson.M{
		"messages.$.status":                chat.MessageStatusProcessing,
		"messages.$.processing_started_at": now,
		"updated_at":                       now,
	}}

	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

// CompleteMessage 完成消息并追加回答
// 使用聚合管道更新，数组元素的修改和追加在一次 UpdateOne 中完成
func (r *Repo) CompleteMessage(ctx context.Context, conversationID, messageID string, reply chat.Message) (bool, error) {
	filter := bson.M{
		"_id": conversationID,
		"messages": bson.M{"$elemMatch": bson.M{
			"message_id": messageID,
			"status":     chat.MessageStatusProcessing,
		}},
	}

	// 目标消息去掉错误和处理时间字段后置为 completed
	cleared := bson.M{"$arrayToObject": bson.M{"$filter": bson.M{
		"input": bson.M{"$objectToArray": "$$m"},
		"cond": bson.M{"$not": bson.A{
			bson.M{"$in": bson.A{"$$this.k", bson.A{"error_message", "error_code", "processing_started_at"}}},
		}},
	}}}
	messages := bson.M{"$map": bson.M{
		"input": "$messages",
		"as":    "m",
		"in": bson.M{"$cond": bson.A{
			bson.M{"$eq": bson.A{"$$m.message_id", bson.M{"$literal": messageID}}},
			bson.M{"$mergeObjects": bson.A{cleared, bson.M{"status": bson.M{"$literal": chat.MessageStatusCompleted}}}},
			"$$m",
		}},
	}}

	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			// 回答内容可能以 $ 开头，必须作为字面量
			"messages":   bson.M{"$concatArrays": bson.A{messages, bson.M{"$literal": bson.A{reply}}}},
			"updated_at": time.Now().UTC(),
		}}},
	}

	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

// GetMessageStatus 查询消息状态
func (r *Repo) GetMessageStatus(ctx context.Context, conversationID, messageID string) (chat.MessageStatus, bool, error) {
	filter := bson.M{"_id": conversationID, "messages.message_id": messageID}
	opts := options.FindOne().SetProjection(bson.M{"messages.$": 1})

	var conv chat.Conversation
	if err := r.coll.FindOne(ctx, filter, opts).Decode(&conv); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", false, nil
		}
		return "", false, err
	}
	if len(conv.Messages) == 0 {
		return "", false, nil
	}
	return conv.Messages[0].EffectiveStatus(), true, nil
}

// FindStaleProcessing 查找卡住的消息
func (r *Repo) FindStaleProcessing(ctx context.Context, cutoff time.Time, limit int64) ([]StaleMessage, error) {
	filter := bson.M{
		"messages": bson.M{"$elemMatch": bson.M{
			"status":                chat.MessageStatusProcessing,
			"processing_started_at": bson.M{"$lt": cutoff},
		}},
	}
	opts := options.Find().SetLimit(limit)

	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var convs []*chat.Conversation
	if err := cur.All(ctx, &convs); err != nil {
		return nil, err
	}

	var stale []StaleMessage
	for _, conv := range convs {
		for _, msg := range conv.Messages {
			if msg.Status != chat.MessageStatusProcessing || msg.ProcessingStartedAt == nil {
				continue
			}
			if msg.ProcessingStartedAt.Before(cutoff) {
				stale = append(stale, StaleMessage{ConversationID: conv.ID, Message: msg})
			}
		}
	}
	return stale, nil
}

// RequeueMessage 恢复卡住的消息
// 条件与 FindStaleProcessing 一致，期间被正常完成的消息不会被改回
func (r *Repo) RequeueMessage(ctx context.Context, conversationID, messageID string, cutoff time.Time) (bool, error) {
	filter := bson.M{
		"_id": conversationID,
		"messages": bson.M{"$elemMatch": bson.M{
			"message_id":            messageID,
			"status":                chat.MessageStatusProcessing,
			"processing_started_at": bson.M{"$lt": cutoff},
		}},
	}
	update := bson.M{
		"$set":   bson.M{"messages.$.status": chat.MessageStatusQueued, "updated_at": time.Now().UTC()},
		"$unset": bson.M{"messages.$.processing_started_at": ""},
	}

	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}
