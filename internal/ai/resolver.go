package ai

import (
	"context"
	"strings"

	"ragchat/internal/config"
)

// Resolver 把模型引用解析为具体模型 ID
type Resolver interface {
	Resolve(ctx context.Context, modelID string) (string, error)
}

// ProfileResolver 基于配置的 profile 解析器
// 带 prefix 的引用视为 profile，取 profile 的第一个后端模型；其余原样返回
type ProfileResolver struct {
	prefix   string
	profiles map[string][]string
}

// NewProfileResolver 创建解析器
func NewProfileResolver(prefix string, profiles []config.ProfileConfig) *ProfileResolver {
	m := make(map[string][]string, len(profiles))
	for _, p := range profiles {
		m[p.Name] = p.Models
	}
	return &ProfileResolver{prefix: prefix, profiles: m}
}

// IsProfile 是否为间接引用
func (r *ProfileResolver) IsProfile(modelID string) bool {
	return r.prefix != "" && strings.HasPrefix(modelID, r.prefix)
}

// Resolve 解析模型引用
func (r *ProfileResolver) Resolve(_ context.Context, modelID string) (string, error) {
	if !r.IsProfile(modelID) {
		return modelID, nil
	}

	name := strings.TrimPrefix(modelID, r.prefix)
	models, ok := r.profiles[name]
	if !ok {
		return "", &ResolutionError{ModelID: modelID, Reason: "profile not found"}
	}
	if len(models) == 0 || models[0] == "" {
		return "", &ResolutionError{ModelID: modelID, Reason: "profile has no models"}
	}
	return models[0], nil
}
