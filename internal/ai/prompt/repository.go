// Package prompt 提示词仓库
//
// 内置默认提示词随二进制发布，配置了存储时优先读取存储中的同名文件，读到的内容缓存在内存中。
package prompt

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"ragchat/internal/pkg/storage"
)

// 提示词名称
const (
	RetrievalGrader       = "retrieval_grader"
	QASystem              = "qa_system"
	HallucinationGrader   = "hallucination_grader"
	FinalAnswer           = "final_answer"
	InputSemantic         = "input_semantic"
	OutputLeakage         = "output_leakage"
	OutputAppropriateness = "output_appropriateness"
)

// ErrPromptNotFound 提示词不存在
var ErrPromptNotFound = errors.New("prompt not found")

//go:embed defaults/*.txt
var defaults embed.FS

// Provider 按名称获取提示词
type Provider interface {
	Get(ctx context.Context, name string) (string, error)
}

// Repository 提示词仓库
type Repository struct {
	store  storage.Storage
	prefix string

	mu    sync.RWMutex
	cache map[string]string
}

// NewRepository 创建提示词仓库，store 为 nil 时只使用内置提示词
func NewRepository(store storage.Storage, prefix string) *Repository {
	return &Repository{
		store:  store,
		prefix: prefix,
		cache:  make(map[string]string),
	}
}

// Get 获取提示词
func (r *Repository) Get(ctx context.Context, name string) (string, error) {
	r.mu.RLock()
	text, ok := r.cache[name]
	r.mu.RUnlock()
	if ok {
		return text, nil
	}

	text, err := r.load(ctx, name)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.cache[name] = text
	r.mu.Unlock()
	return text, nil
}

// Invalidate 清空缓存，下次读取时重新加载
func (r *Repository) Invalidate() {
	r.mu.Lock()
	r.cache = make(map[string]string)
	r.mu.Unlock()
}

// Key 提示词在存储中的 key
func (r *Repository) Key(name string) string {
	return path.Join(r.prefix, name+".txt")
}

func (r *Repository) load(ctx context.Context, name string) (string, error) {
	if r.store != nil {
		text, err := r.download(ctx, name)
		if err == nil {
			return text, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			log.Warn().Err(err).Str("prompt", name).Str("storage", r.store.GetStorageType()).
				Msg("failed to load prompt from storage, using built-in default")
		}
	}
	return Default(name)
}

func (r *Repository) download(ctx context.Context, name string) (string, error) {
	rc, err := r.store.Download(ctx, r.Key(name))
	if err != nil {
		return "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read prompt %s: %w", name, err)
	}
	return string(data), nil
}

// Default 内置提示词
func Default(name string) (string, error) {
	data, err := defaults.ReadFile("defaults/" + name + ".txt")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrPromptNotFound, name)
		}
		return "", err
	}
	return string(data), nil
}

// Names 所有内置提示词名称
func Names() []string {
	entries, _ := defaults.ReadDir("defaults")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".txt"))
	}
	sort.Strings(names)
	return names
}

// Render 替换模板中的 {name} 占位符，未知占位符保持原样
func Render(template string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
