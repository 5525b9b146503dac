package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"ragchat/internal/model/chat"
	"ragchat/internal/pkg/cache"
)

// Cache 对话读缓存需要的最小接口
type Cache interface {
	Get(ctx context.Context, key string, dest any) error
	Version(ctx context.Context, key string) (int64, error)
	SetIfVersion(ctx context.Context, key string, version int64, value any, expiration time.Duration) (bool, error)
	Invalidate(ctx context.Context, key string) error
}

// CachedRepo 带读缓存的对话仓库
// 写操作先落库再失效缓存（版本号加一），回填缓存时版本号已变化则不写入
type CachedRepo struct {
	ConversationRepository
	cache Cache
	ttl   time.Duration
}

// NewCachedRepo 创建带缓存的仓库
func NewCachedRepo(inner ConversationRepository, c Cache, ttl time.Duration) *CachedRepo {
	if ttl <= 0 {
		ttl = cache.ConversationCacheTTL
	}
	return &CachedRepo{ConversationRepository: inner, cache: c, ttl: ttl}
}

// Get 优先读缓存
func (r *CachedRepo) Get(ctx context.Context, conversationID string) (*chat.Conversation, error) {
	key := cache.ConversationCacheKey(conversationID)

	var conv chat.Conversation
	err := r.cache.Get(ctx, key, &conv)
	if err == nil {
		return &conv, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		log.Warn().Err(err).Str("conversation_id", conversationID).Msg("conversation cache read failed")
	}

	// 版本号必须在读库之前取
	version, verr := r.cache.Version(ctx, key)

	loaded, err := r.ConversationRepository.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if verr != nil {
		log.Warn().Err(verr).Str("conversation_id", conversationID).Msg("conversation cache version read failed")
		return loaded, nil
	}
	if _, err := r.cache.SetIfVersion(ctx, key, version, loaded, r.ttl); err != nil {
		log.Warn().Err(err).Str("conversation_id", conversationID).Msg("conversation cache write failed")
	}
	return loaded, nil
}

// Save 保存并失效缓存
func (r *CachedRepo) Save(ctx context.Context, conv *chat.Conversation) error {
	if err := r.ConversationRepository.Save(ctx, conv); err != nil {
		return err
	}
	r.invalidate(ctx, conv.ID)
	return nil
}

// AppendMessages 追加并失效缓存
func (r *CachedRepo) AppendMessages(ctx context.Context, conversationID string, msgs ...chat.Message) error {
	if err := r.ConversationRepository.AppendMessages(ctx, conversationID, msgs...); err != nil {
		return err
	}
	r.invalidate(ctx, conversationID)
	return nil
}

// UpdateMessageStatus 更新并失效缓存
func (r *CachedRepo) UpdateMessageStatus(ctx context.Context, conversationID, messageID string, status chat.MessageStatus, errorMessage string, errorCode int) error {
	if err := r.ConversationRepository.UpdateMessageStatus(ctx, conversationID, messageID, status, errorMessage, errorCode); err != nil {
		return err
	}
	r.invalidate(ctx, conversationID)
	return nil
}

// ClaimMessage 抢占成功后失效缓存
func (r *CachedRepo) ClaimMessage(ctx context.Context, conversationID, messageID string) (bool, error) {
	claimed, err := r.ConversationRepository.ClaimMessage(ctx, conversationID, messageID)
	if err != nil {
		return false, err
	}
	if claimed {
		r.invalidate(ctx, conversationID)
	}
	return claimed, nil
}

// CompleteMessage 完成后失效缓存
func (r *CachedRepo) CompleteMessage(ctx context.Context, conversationID, messageID string, reply chat.Message) (bool, error) {
	completed, err := r.ConversationRepository.CompleteMessage(ctx, conversationID, messageID, reply)
	if err != nil {
		return false, err
	}
	if completed {
		r.invalidate(ctx, conversationID)
	}
	return completed, nil
}

// RequeueMessage 恢复后失效缓存
func (r *CachedRepo) RequeueMessage(ctx context.Context, conversationID, messageID string, cutoff time.Time) (bool, error) {
	requeued, err := r.ConversationRepository.RequeueMessage(ctx, conversationID, messageID, cutoff)
	if err != nil {
		return false, err
	}
	if requeued {
		r.invalidate(ctx, conversationID)
	}
	return requeued, nil
}

func (r *CachedRepo) invalidate(ctx context.Context, conversationID string) {
	if err := r.cache.Invalidate(ctx, cache.ConversationCacheKey(conversationID)); err != nil {
		log.Warn().Err(err).Str("conversation_id", conversationID).Msg("conversation cache invalidation failed")
	}
}
