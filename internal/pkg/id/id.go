package id

import (
	"github.com/google/uuid"
)

// New 生成按时间有序的 UUIDv7，保证同一对话内消息 ID 单调递增
func New() string {
	u, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return u.String()
}

// IsValid 验证UUID格式是否有效
func IsValid(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
