package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"ragchat/internal/model/chat"
	"ragchat/internal/pkg/id"
	"ragchat/internal/repository/conversation"
	"ragchat/internal/repository/feedback"
)

var (
	// ErrInvalidRating 评分不在可选范围内
	ErrInvalidRating = errors.New("was_helpful must be one of very_useful, useful, neutral, not_useful, not_at_all_useful")
	// ErrCommentTooLong 评论超长
	ErrCommentTooLong = fmt.Errorf("comment must be at most %d characters", chat.MaxFeedbackCommentLength)
)

// FeedbackInput 提交反馈
type FeedbackInput struct {
	ConversationID string
	WasHelpful     chat.WasHelpfulRating
	Comment        string
}

// FeedbackService 反馈服务
type FeedbackService struct {
	repo     feedback.FeedbackRepository
	convRepo conversation.ConversationRepository
}

// NewFeedbackService 创建反馈服务
func NewFeedbackService(repo feedback.FeedbackRepository, convRepo conversation.ConversationRepository) *FeedbackService {
	return &FeedbackService{repo: repo, convRepo: convRepo}
}

// Submit 保存反馈，指定的对话必须存在
func (s *FeedbackService) Submit(ctx context.Context, in *FeedbackInput) (*chat.Feedback, error) {
	if !in.WasHelpful.IsValid() {
		return nil, ErrInvalidRating
	}
	comment := strings.TrimSpace(in.Comment)
	if utf8.RuneCountInString(comment) > chat.MaxFeedbackCommentLength {
		return nil, ErrCommentTooLong
	}

	if in.ConversationID != "" {
		if _, err := s.convRepo.Get(ctx, in.ConversationID); err != nil {
			return nil, err
		}
	}

	fb := &chat.Feedback{
		ID:             id.New(),
		ConversationID: in.ConversationID,
		WasHelpful:     in.WasHelpful,
		Comment:        comment,
	}
	if err := s.repo.Create(ctx, fb); err != nil {
		return nil, fmt.Errorf("save feedback: %w", err)
	}
	return fb, nil
}
