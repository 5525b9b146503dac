package component

import (
	"context"
	"fmt"

	arkext "github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"ragchat/internal/config"
	"ragchat/internal/pkg/ark"
)

// NewChatModel 创建后端模型
// 支持的 Provider: openai, azure, ark, ark-runtime
func NewChatModel(ctx context.Context, cfg *config.ModelConfig) (model.BaseChatModel, error) {
	switch cfg.Provider {
	case "openai", "":
		return newOpenAIChatModel(ctx, cfg)
	case "azure":
		return newAzureChatModel(ctx, cfg)
	case "ark":
		return newArkChatModel(ctx, cfg)
	case "ark-runtime":
		return ark.NewChatModel(cfg)
	default:
		return nil, fmt.Errorf("unsupported AI provider: %s", cfg.Provider)
	}
}

// modelName 未配置 model 时使用模型 ID
func modelName(cfg *config.ModelConfig) string {
	if cfg.Model != "" {
		return cfg.Model
	}
	return cfg.ID
}

func newOpenAIChatModel(ctx context.Context, cfg *config.ModelConfig) (model.BaseChatModel, error) {
	modelCfg := &openai.ChatModelConfig{
		Model:  modelName(cfg),
		APIKey: cfg.APIKey,
	}

	// Base URL (用于代理或兼容 API)
	if cfg.BaseURL != "" {
		modelCfg.BaseURL = cfg.BaseURL
	}

	if cfg.Options.Temperature > 0 {
		temp := float32(cfg.Options.Temperature)
		modelCfg.Temperature = &temp
	}
	if cfg.Options.MaxTokens > 0 {
		modelCfg.MaxTokens = &cfg.Options.MaxTokens
	}
	if cfg.Options.TopP > 0 {
		topP := float32(cfg.Options.TopP)
		modelCfg.TopP = &topP
	}

	return openai.NewChatModel(ctx, modelCfg)
}

func newAzureChatModel(ctx context.Context, cfg *config.ModelConfig) (model.BaseChatModel, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("model %s: base_url is required for azure", cfg.ID)
	}

	modelCfg := &openai.ChatModelConfig{
		Model:   modelName(cfg),
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		ByAzure: true,
	}

	if cfg.Options.Temperature > 0 {
		temp := float32(cfg.Options.Temperature)
		modelCfg.Temperature = &temp
	}
	if cfg.Options.MaxTokens > 0 {
		modelCfg.MaxTokens = &cfg.Options.MaxTokens
	}

	return openai.NewChatModel(ctx, modelCfg)
}

// newArkChatModel 通过 eino-ext 创建 Ark 模型
func newArkChatModel(ctx context.Context, cfg *config.ModelConfig) (model.BaseChatModel, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = ark.DefaultBaseURL
	}

	modelCfg := &arkext.ChatModelConfig{
		Model:   modelName(cfg),
		APIKey:  cfg.APIKey,
		BaseURL: baseURL,
	}

	if cfg.Options.Temperature > 0 {
		temp := float32(cfg.Options.Temperature)
		modelCfg.Temperature = &temp
	}
	if cfg.Options.MaxTokens > 0 {
		modelCfg.MaxTokens = &cfg.Options.MaxTokens
	}
	if cfg.Options.TopP > 0 {
		topP := float32(cfg.Options.TopP)
		modelCfg.TopP = &topP
	}

	return arkext.NewChatModel(ctx, modelCfg)
}
