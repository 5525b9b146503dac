package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v8"

	"ragchat/internal/config"
)

// esSearchFunc 执行一次 ES 搜索，返回是否错误响应和响应体
type esSearchFunc func(ctx context.Context, index string, body io.Reader, size int) (isError bool, respBody io.ReadCloser, err error)

// ElasticSearcher Elasticsearch 全文检索后端
type ElasticSearcher struct {
	index     string
	threshold float64
	doSearch  esSearchFunc
}

type esHit struct {
	ID     string  `json:"_id"`
	Score  float64 `json:"_score"`
	Source struct {
		Content    string         `json:"content"`
		SourceID   string         `json:"source_id"`
		SnapshotID string         `json:"snapshot_id"`
		Metadata   map[string]any `json:"metadata"`
	} `json:"_source"`
}

type esSearchResponse struct {
	Hits struct {
		MaxScore float64 `json:"max_score"`
		Hits     []esHit `json:"hits"`
	} `json:"hits"`
}

// NewElasticSearcher 创建 ES 检索后端
func NewElasticSearcher(cfg *config.KnowledgeConfig) (*ElasticSearcher, error) {
	if cfg.Elastic.Index == "" {
		return nil, fmt.Errorf("knowledge.elastic.index is required")
	}

	esClient, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Elastic.Addresses,
		Username:  cfg.Elastic.Username,
		Password:  cfg.Elastic.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	return newElasticSearcher(cfg.Elastic.Index, similarityThreshold(cfg.SimilarityThreshold),
		func(ctx context.Context, index string, body io.Reader, size int) (bool, io.ReadCloser, error) {
			res, err := esClient.Search(
				esClient.Search.WithContext(ctx),
				esClient.Search.WithIndex(index),
				esClient.Search.WithBody(body),
				esClient.Search.WithSize(size),
			)
			if err != nil {
				return false, nil, err
			}
			return res.IsError(), res.Body, nil
		}), nil
}

func newElasticSearcher(index string, threshold float64, fn esSearchFunc) *ElasticSearcher {
	return &ElasticSearcher{index: index, threshold: threshold, doSearch: fn}
}

// Search 对 content 字段做 match 查询，scope 非空时按 group_id 过滤
func (s *ElasticSearcher) Search(ctx context.Context, query, scope string, maxResults int) ([]Document, error) {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	must := []map[string]any{{"match": map[string]any{"content": query}}}
	boolQuery := map[string]any{"must": must}
	if scope != "" {
		boolQuery["filter"] = []map[string]any{{"term": map[string]any{"group_id": scope}}}
	}
	body, err := json.Marshal(map[string]any{"query": map[string]any{"bool": boolQuery}})
	if err != nil {
		return nil, fmt.Errorf("marshal es query: %w", err)
	}

	isError, respBody, err := s.doSearch(ctx, s.index, bytes.NewReader(body), maxResults)
	if err != nil {
		return nil, &UnavailableError{Err: err}
	}
	defer respBody.Close()

	data, err := io.ReadAll(respBody)
	if err != nil {
		return nil, &UnavailableError{Err: fmt.Errorf("read es response: %w", err)}
	}
	if isError {
		return nil, &UnavailableError{Err: fmt.Errorf("es search error: %s", string(data))}
	}

	var parsed esSearchResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, &UnavailableError{Err: fmt.Errorf("decode es response: %w", err)}
	}

	docs := make([]Document, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		d := Document{
			Content:    h.Source.Content,
			SourceID:   h.Source.SourceID,
			SnapshotID: h.Source.SnapshotID,
			Metadata:   h.Source.Metadata,
		}
		if d.SourceID == "" {
			d.SourceID = h.ID
		}
		// BM25 分数没有上界，按本次最高分归一化
		if parsed.Hits.MaxScore > 0 {
			d.Score, d.HasScore = h.Score/parsed.Hits.MaxScore, true
		}
		docs = append(docs, d)
	}
	return filterBySimilarity(docs, s.threshold), nil
}
