package service

import (
	"ragchat/internal/config"
	"ragchat/internal/model/chat"
)

// ModelInfo 对外展示的模型信息
type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ModelService 模型目录
type ModelService struct {
	models []ModelInfo
	byID   map[string]ModelInfo
}

// NewModelService 根据配置创建模型目录
func NewModelService(available []config.AvailableModel) *ModelService {
	s := &ModelService{
		models: make([]ModelInfo, 0, len(available)),
		byID:   make(map[string]ModelInfo, len(available)),
	}
	for _, m := range available {
		info := ModelInfo{ID: m.ID, Name: m.Name, Description: m.Description}
		s.models = append(s.models, info)
		s.byID[m.ID] = info
	}
	return s
}

// List 列出所有可用模型
func (s *ModelService) List() []ModelInfo {
	out := make([]ModelInfo, len(s.models))
	copy(out, s.models)
	return out
}

// Lookup 按 ID 查找，不存在时返回 *chat.UnsupportedModelError
func (s *ModelService) Lookup(modelID string) (ModelInfo, error) {
	info, ok := s.byID[modelID]
	if !ok {
		return ModelInfo{}, &chat.UnsupportedModelError{ModelID: modelID}
	}
	return info, nil
}

// DisplayName 模型展示名称，未登记的模型返回 ID 本身
func (s *ModelService) DisplayName(modelID string) string {
	if info, ok := s.byID[modelID]; ok {
		return info.Name
	}
	return modelID
}
