package server

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"ragchat/internal/ai"
	"ragchat/internal/ai/guardrails"
	"ragchat/internal/ai/prompt"
	"ragchat/internal/ai/workflow"
	"ragchat/internal/config"
	"ragchat/internal/pkg/cache"
	"ragchat/internal/pkg/knowledge"
	"ragchat/internal/pkg/mongodb"
	"ragchat/internal/pkg/queue"
	"ragchat/internal/pkg/storage"
	"ragchat/internal/pkg/storagefactory"
	"ragchat/internal/repository/conversation"
	"ragchat/internal/repository/feedback"
	"ragchat/internal/service"
	"ragchat/internal/worker"
)

// Container 进程级依赖，serve 与 worker 命令共用
type Container struct {
	Config *config.Config

	Mongo *mongodb.Client
	Redis *cache.RedisCache
	Queue queue.Queue

	Conversations conversation.ConversationRepository
	Feedback      feedback.FeedbackRepository

	ModelService    *service.ModelService
	ChatService     *service.ChatService
	FeedbackService *service.FeedbackService

	Worker *worker.Worker
}

// NewContainer 按配置依次初始化存储、队列、推理和服务
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	c := &Container{Config: cfg}

	// 1. MongoDB
	mongoClient, err := mongodb.New(&cfg.Mongo)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	c.Mongo = mongoClient
	log.Info().Str("database", cfg.Mongo.Database).Msg("connected to MongoDB")

	if err := mongodb.EnsureIndexes(mongoClient.Database()); err != nil {
		log.Warn().Err(err).Msg("failed to ensure indexes")
	}

	// 2. Redis（缓存、队列、心跳共用一个连接）
	redisClient, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		c.Close(ctx)
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	c.Redis = cache.NewRedisCache(redisClient)
	log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to Redis")

	// 3. 队列，消费者名与 worker 名一致
	workerCfg := cfg.Worker
	if workerCfg.Name == "" {
		workerCfg.Name, _ = os.Hostname()
	}
	q, err := queue.NewRedisStreamQueue(ctx, redisClient, &cfg.Queue, workerCfg.Name)
	if err != nil {
		c.Close(ctx)
		return nil, err
	}
	c.Queue = q

	// 4. 仓库
	db := mongoClient.Database()
	c.Conversations = conversation.NewCachedRepo(conversation.NewRepo(db), c.Redis, cfg.Redis.CacheTTL)
	c.Feedback = feedback.NewRepo(db)

	// 5. 推理与工作流
	agent, err := newAgent(ctx, cfg)
	if err != nil {
		c.Close(ctx)
		return nil, err
	}

	// 6. 服务
	c.ModelService = service.NewModelService(cfg.AI.Available)
	c.ChatService = service.NewChatService(c.Conversations, c.Queue, c.ModelService, agent)
	c.FeedbackService = service.NewFeedbackService(c.Feedback, c.Conversations)

	c.Worker = worker.New(&workerCfg, &cfg.Queue, c.Queue, c.Conversations, c.ChatService, c.Redis)

	return c, nil
}

func newAgent(ctx context.Context, cfg *config.Config) (*workflow.Agent, error) {
	var store storage.Storage
	if cfg.Prompts.Source != "" {
		storageCfg := cfg.Storage
		storageCfg.Type = cfg.Prompts.Source
		s, err := storagefactory.NewStorage(&storageCfg)
		if err != nil {
			return nil, fmt.Errorf("init prompt storage: %w", err)
		}
		store = s
	}
	prompts := prompt.NewRepository(store, cfg.Prompts.Prefix)

	gateway, err := ai.NewGatewayFromConfig(ctx, &cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("init inference gateway: %w", err)
	}
	for _, m := range cfg.AI.Available {
		if !gateway.HasModel(ctx, m.ID) {
			log.Warn().Str("model_id", m.ID).Msg("catalogue model has no inference backend")
		}
	}

	searcher, err := knowledge.NewSearcher(&cfg.Knowledge)
	if err != nil {
		return nil, fmt.Errorf("init knowledge searcher: %w", err)
	}

	wf := workflow.New(gateway, searcher, prompts, workflow.Config{
		GradingModel:           cfg.AI.GradingModel,
		FormattingModel:        cfg.AI.FormattingModel,
		GenerationModel:        cfg.AI.GenerationModel,
		Scope:                  cfg.Knowledge.GroupID,
		MaxResults:             cfg.Knowledge.MaxResults,
		MaxGroundednessRetries: cfg.Workflow.MaxGroundednessRetries,
		HistoryTurns:           cfg.Workflow.HistoryTurns,
		GuardrailID:            cfg.AI.GuardrailID,
		GuardrailVersion:       cfg.AI.GuardrailVersion,
	})

	// 护栏未开启时传入 nil 接口
	classifier := guardrails.NewLLMClassifier(gateway, cfg.AI.GradingModel)
	var input workflow.InputGuard
	if cfg.Workflow.ValidateInput {
		var opts []guardrails.InputOption
		if len(cfg.Workflow.OffTopicPatterns) > 0 {
			matchers, err := guardrails.CompilePatterns(cfg.Workflow.OffTopicPatterns)
			if err != nil {
				return nil, fmt.Errorf("compile off-topic patterns: %w", err)
			}
			opts = append(opts, guardrails.WithOffTopicMatchers(matchers))
		}
		input = guardrails.NewInputValidator(classifier, prompts, opts...)
	}
	var output workflow.OutputGuard
	if cfg.Workflow.ValidateOutput {
		output = guardrails.NewOutputValidator(classifier, prompts)
	}

	return workflow.NewAgent(input, output, wf), nil
}

// Close 释放连接
func (c *Container) Close(ctx context.Context) {
	if c.Mongo != nil {
		if err := c.Mongo.Close(ctx); err != nil {
			log.Error().Err(err).Msg("failed to close MongoDB connection")
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close Redis connection")
		}
	}
}
