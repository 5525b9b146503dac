package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"ragchat/internal/ai/component"
	"ragchat/internal/config"
	"ragchat/internal/pkg/metrics"
)

// InvokeRequest 模型调用请求
type InvokeRequest struct {
	ModelID      string
	SystemPrompt string
	Messages     []*schema.Message

	// GuardrailID 和 GuardrailVersion 必须成对出现
	GuardrailID      string
	GuardrailVersion string
}

// Usage token 用量
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total 总 token 数
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// InvokeResponse 模型调用响应
type InvokeResponse struct {
	// ModelID 始终是解析后的具体模型 ID
	ModelID string
	Content []string
	Usage   Usage
}

// Text 拼接所有文本块
func (r *InvokeResponse) Text() string {
	return strings.Join(r.Content, "")
}

// Invoker 推理调用接口
type Invoker interface {
	Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResponse, error)
}

// Gateway 推理网关
// 职责: 解析模型引用、校验 guardrail 参数、限流、调用后端模型、归一化用量和错误
type Gateway struct {
	backends map[string]model.BaseChatModel
	resolver Resolver
	limiter  *rate.Limiter
}

// Option 网关选项
type Option func(*Gateway)

// WithRateLimit 限制每秒调用次数
func WithRateLimit(limit float64, burst int) Option {
	return func(g *Gateway) {
		if limit <= 0 {
			return
		}
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(limit), burst)
	}
}

// NewGateway 创建网关，backends 的 key 为具体模型 ID
func NewGateway(backends map[string]model.BaseChatModel, resolver Resolver, opts ...Option) *Gateway {
	g := &Gateway{backends: backends, resolver: resolver}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewGatewayFromConfig 按配置创建所有后端模型
func NewGatewayFromConfig(ctx context.Context, cfg *config.AIConfig) (*Gateway, error) {
	backends := make(map[string]model.BaseChatModel, len(cfg.Models))
	for i := range cfg.Models {
		mc := &cfg.Models[i]
		cm, err := component.NewChatModel(ctx, mc)
		if err != nil {
			return nil, fmt.Errorf("failed to create model %s: %w", mc.ID, err)
		}
		backends[mc.ID] = cm
		log.Info().Str("model_id", mc.ID).Str("provider", mc.Provider).Msg("inference backend registered")
	}

	return NewGateway(backends,
		NewProfileResolver(cfg.ProfilePrefix, cfg.Profiles),
		WithRateLimit(cfg.RateLimit, cfg.RateBurst),
	), nil
}

// Invoke 调用模型
func (g *Gateway) Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResponse, error) {
	// 1. guardrail 参数校验，失败时不发出请求
	if (req.GuardrailID == "") != (req.GuardrailVersion == "") {
		metrics.ModelInvocations.WithLabelValues(req.ModelID, "config_error").Inc()
		return nil, &InvalidConfigurationError{Message: "guardrail_id and guardrail_version must be provided together"}
	}

	// 2. 解析模型引用
	modelID, err := g.resolver.Resolve(ctx, req.ModelID)
	if err != nil {
		metrics.ModelInvocations.WithLabelValues(req.ModelID, "config_error").Inc()
		return nil, err
	}
	backend, ok := g.backends[modelID]
	if !ok {
		metrics.ModelInvocations.WithLabelValues(modelID, "config_error").Inc()
		return nil, &ResolutionError{ModelID: modelID, Reason: "no backend configured"}
	}

	// 3. 限流
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			metrics.ModelInvocations.WithLabelValues(modelID, "unavailable").Inc()
			return nil, &InferenceUnavailableError{Err: err}
		}
	}

	// 4. 组装消息并调用
	messages := make([]*schema.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, schema.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, req.Messages...)

	logger := log.Ctx(ctx).With().Str("model_id", modelID).Str("requested_model_id", req.ModelID).Logger()
	if req.GuardrailID != "" {
		logger = logger.With().Str("guardrail_id", req.GuardrailID).Str("guardrail_version", req.GuardrailVersion).Logger()
	}

	out, err := backend.Generate(ctx, messages)
	if err != nil {
		classified := classifyError(err)
		var invalid *InvalidRequestError
		if errors.As(classified, &invalid) {
			metrics.ModelInvocations.WithLabelValues(modelID, "invalid_request").Inc()
		} else {
			metrics.ModelInvocations.WithLabelValues(modelID, "unavailable").Inc()
		}
		logger.Warn().Err(err).Int("status_code", ProviderStatusCode(classified)).Msg("model invocation failed")
		return nil, classified
	}

	// 5. 归一化响应
	resp := &InvokeResponse{ModelID: modelID, Content: []string{}}
	if out != nil {
		if out.Content != "" {
			resp.Content = append(resp.Content, out.Content)
		}
		if out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
			resp.Usage = Usage{
				InputTokens:  out.ResponseMeta.Usage.PromptTokens,
				OutputTokens: out.ResponseMeta.Usage.CompletionTokens,
			}
		}
	}

	metrics.ModelInvocations.WithLabelValues(modelID, "success").Inc()
	metrics.ModelTokens.WithLabelValues(modelID, "input").Add(float64(resp.Usage.InputTokens))
	metrics.ModelTokens.WithLabelValues(modelID, "output").Add(float64(resp.Usage.OutputTokens))
	logger.Debug().Int("input_tokens", resp.Usage.InputTokens).Int("output_tokens", resp.Usage.OutputTokens).Msg("model invoked")

	return resp, nil
}

// HasModel 模型引用能否解析到已配置的后端
func (g *Gateway) HasModel(ctx context.Context, modelID string) bool {
	resolved, err := g.resolver.Resolve(ctx, modelID)
	if err != nil {
		return false
	}
	_, ok := g.backends[resolved]
	return ok
}
