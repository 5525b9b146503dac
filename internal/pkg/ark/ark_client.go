package ark

import (
	"context"
	"errors"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/volcengine/volcengine-go-sdk/service/arkruntime"
	"github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"

	"ragchat/internal/config"
)

const (
	// DefaultBaseURL Ark API 默认地址
	DefaultBaseURL = "https://ark.cn-beijing.volces.com/api/v3"
	// DefaultModel 未配置模型时的默认模型
	DefaultModel = "doubao-seed-1-6-flash-250615"
)

// ChatModel 直接使用 volcengine-go-sdk 调用 Ark（豆包大模型）
// 实现 eino 的 BaseChatModel，可以和 eino-ext 的模型一样注册到推理网关
type ChatModel struct {
	client  *arkruntime.Client
	model   string
	options config.AIOptionsConfig
}

var _ einomodel.BaseChatModel = (*ChatModel)(nil)

// NewChatModel 创建 Ark ChatModel
func NewChatModel(cfg *config.ModelConfig) (*ChatModel, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("ark api key is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = DefaultModel
	}

	arkClient := arkruntime.NewClientWithApiKey(cfg.APIKey, arkruntime.WithBaseUrl(baseURL))

	return &ChatModel{
		client:  arkClient,
		model:   modelName,
		options: cfg.Options,
	}, nil
}

// Generate 同步生成
func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	req := m.buildRequest(input, opts...)

	output, err := m.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("ark chat completion: %w", err)
	}

	return convertResponse(&output)
}

// Stream 以单个分片返回完整结果
func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *ChatModel) buildRequest(input []*schema.Message, opts ...einomodel.Option) *model.ChatCompletionRequest {
	base := &einomodel.Options{Model: &m.model}
	if m.options.Temperature > 0 {
		temp := float32(m.options.Temperature)
		base.Temperature = &temp
	}
	if m.options.MaxTokens > 0 {
		maxTokens := m.options.MaxTokens
		base.MaxTokens = &maxTokens
	}
	if m.options.TopP > 0 {
		topP := float32(m.options.TopP)
		base.TopP = &topP
	}
	common := einomodel.GetCommonOptions(base, opts...)

	req := &model.ChatCompletionRequest{
		Model:    m.model,
		Messages: convertMessages(input),
	}
	if common.Model != nil && *common.Model != "" {
		req.Model = *common.Model
	}
	if common.Temperature != nil {
		req.Temperature = *common.Temperature
	}
	if common.MaxTokens != nil {
		req.MaxTokens = *common.MaxTokens
	}
	if common.TopP != nil {
		req.TopP = *common.TopP
	}
	return req
}

// convertMessages 转换消息格式
func convertMessages(messages []*schema.Message) []*model.ChatCompletionMessage {
	result := make([]*model.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		content := msg.Content
		result = append(result, &model.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: &model.ChatCompletionMessageContent{StringValue: &content},
		})
	}
	return result
}

// convertResponse 取第一个 choice 并带上用量
func convertResponse(output *model.ChatCompletionResponse) (*schema.Message, error) {
	if len(output.Choices) == 0 {
		return nil, errors.New("ark chat completion: no choices in response")
	}

	choice := output.Choices[0]
	var content string
	if choice.Message.Content != nil && choice.Message.Content.StringValue != nil {
		content = *choice.Message.Content.StringValue
	}

	return &schema.Message{
		Role:    schema.Assistant,
		Content: content,
		ResponseMeta: &schema.ResponseMeta{
			FinishReason: string(choice.FinishReason),
			Usage: &schema.TokenUsage{
				PromptTokens:     output.Usage.PromptTokens,
				CompletionTokens: output.Usage.CompletionTokens,
				TotalTokens:      output.Usage.TotalTokens,
			},
		},
	}, nil
}
