package chat

import "fmt"

// ConversationNotFoundError 对话不存在
type ConversationNotFoundError struct {
	ConversationID string
}

func (e *ConversationNotFoundError) Error() string {
	return fmt.Sprintf("conversation with id %s not found", e.ConversationID)
}

// UnsupportedModelError 模型不在可用目录中
type UnsupportedModelError struct {
	ModelID string
}

func (e *UnsupportedModelError) Error() string {
	return fmt.Sprintf("model %s is not supported", e.ModelID)
}
