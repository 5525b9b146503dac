// Package knowledge 知识检索客户端
package knowledge

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"ragchat/internal/config"
)

// 默认值
const (
	DefaultMaxResults          = 5
	DefaultSimilarityThreshold = 0.5
	snippetLength              = 200
)

// Document 检索到的文档
type Document struct {
	Content    string         `json:"content"`
	SourceID   string         `json:"source_id"`
	SnapshotID string         `json:"snapshot_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	// Score 相似度，0 到 1；HasScore 为 false 时表示后端没有给出
	Score    float64 `json:"score"`
	HasScore bool    `json:"-"`
}

// Name 展示名称
func (d Document) Name() string {
	for _, key := range []string{"title", "name", "filename"} {
		if v, ok := d.Metadata[key].(string); ok && v != "" {
			return v
		}
	}
	if d.SourceID != "" {
		return d.SourceID
	}
	return "Untitled source"
}

// Location 文档链接
func (d Document) Location() string {
	for _, key := range []string{"url", "location", "source"} {
		if v, ok := d.Metadata[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// Snippet 摘要
func (d Document) Snippet() string {
	text := strings.TrimSpace(d.Content)
	if utf8.RuneCountInString(text) <= snippetLength {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:snippetLength])) + "..."
}

// Searcher 知识检索接口
type Searcher interface {
	Search(ctx context.Context, query, scope string, maxResults int) ([]Document, error)
}

// UnavailableError 检索服务不可用，与 "没有结果" 区分
type UnavailableError struct {
	StatusCode int
	Err        error
}

func (e *UnavailableError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("knowledge search unavailable (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("knowledge search unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// NewSearcher 按配置创建检索后端
func NewSearcher(cfg *config.KnowledgeConfig) (Searcher, error) {
	switch cfg.Backend {
	case "data-service", "":
		return NewDataServiceClient(cfg), nil
	case "elasticsearch":
		return NewElasticSearcher(cfg)
	default:
		return nil, fmt.Errorf("unsupported knowledge backend: %s", cfg.Backend)
	}
}

// similarityThreshold 未配置时使用默认阈值，负数表示关闭过滤
func similarityThreshold(v float64) float64 {
	switch {
	case v == 0:
		return DefaultSimilarityThreshold
	case v < 0:
		return 0
	}
	return v
}

// filterBySimilarity 去掉低于阈值的文档，没有分数的文档保留
func filterBySimilarity(docs []Document, threshold float64) []Document {
	if threshold <= 0 {
		return docs
	}
	kept := make([]Document, 0, len(docs))
	for _, d := range docs {
		if d.HasScore && d.Score < threshold {
			continue
		}
		kept = append(kept, d)
	}
	if dropped := len(docs) - len(kept); dropped > 0 {
		log.Info().Int("dropped", dropped).Int("kept", len(kept)).Float64("threshold", threshold).
			Msg("filtered documents by similarity threshold")
	}
	return kept
}
