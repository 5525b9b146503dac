package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"ragchat/internal/config"
)

// DataServiceClient 数据服务检索客户端
type DataServiceClient struct {
	baseURL    string
	groupID    string
	threshold  float64
	maxRetries int
	retryDelay time.Duration
	httpClient *http.Client
}

type queryRequest struct {
	GroupID    string `json:"groupId"`
	Query      string `json:"query"`
	MaxResults int    `json:"maxResults"`
}

type snapshotDocument struct {
	Content         string         `json:"content"`
	SnapshotID      string         `json:"snapshotId"`
	SourceID        string         `json:"sourceId"`
	Metadata        map[string]any `json:"metadata"`
	SimilarityScore *float64       `json:"similarityScore"`
}

// NewDataServiceClient 创建客户端
func NewDataServiceClient(cfg *config.KnowledgeConfig) *DataServiceClient {
	baseURL := cfg.DataServiceURL
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	return &DataServiceClient{
		baseURL:    baseURL,
		groupID:    cfg.GroupID,
		threshold:  similarityThreshold(cfg.SimilarityThreshold),
		maxRetries: maxRetries,
		retryDelay: 500 * time.Millisecond,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Search 检索文档，scope 为空时使用配置的 group
func (c *DataServiceClient) Search(ctx context.Context, query, scope string, maxResults int) ([]Document, error) {
	if scope == "" {
		scope = c.groupID
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	payload, err := json.Marshal(queryRequest{GroupID: scope, Query: query, MaxResults: maxResults})
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, &UnavailableError{Err: ctx.Err()}
			case <-time.After(c.retryDelay * time.Duration(attempt)):
			}
		}

		docs, retryable, err := c.query(ctx, payload)
		if err == nil {
			return filterBySimilarity(docs, c.threshold), nil
		}
		lastErr = err
		if !retryable {
			break
		}
		log.Warn().Err(err).Int("attempt", attempt+1).Msg("knowledge search failed, retrying")
	}

	log.Error().Err(lastErr).Str("group_id", scope).Msg("knowledge search failed")
	return nil, lastErr
}

// query 发送一次请求，返回是否值得重试
func (c *DataServiceClient) query(ctx context.Context, payload []byte) ([]Document, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"snapshots/query", bytes.NewReader(payload))
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, &UnavailableError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, &UnavailableError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return nil, retryable, &UnavailableError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(body))),
		}
	}

	var raw []snapshotDocument
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, false, &UnavailableError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}

	docs := make([]Document, 0, len(raw))
	for _, r := range raw {
		d := Document{
			Content:    r.Content,
			SourceID:   r.SourceID,
			SnapshotID: r.SnapshotID,
			Metadata:   r.Metadata,
		}
		if r.SimilarityScore != nil {
			d.Score, d.HasScore = *r.SimilarityScore, true
		} else if s, ok := r.Metadata["score"].(float64); ok {
			d.Score, d.HasScore = s, true
		}
		docs = append(docs, d)
	}
	return docs, false, nil
}
