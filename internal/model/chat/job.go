package chat

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ChatJob 队列消息体
// 只在提交与 worker 拉取之间存在，状态以对话中的消息为准
type ChatJob struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	Question       string `json:"question"`
	ModelID        string `json:"model_id"`
}

// Encode 序列化为队列消息体
func (j *ChatJob) Encode() ([]byte, error) {
	return json.Marshal(j)
}

// DecodeChatJob 解析队列消息体
func DecodeChatJob(body []byte) (*ChatJob, error) {
	var job ChatJob
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("decode chat job: %w", err)
	}
	if job.MessageID == "" {
		return nil, errors.New("decode chat job: message_id is required")
	}
	return &job, nil
}
