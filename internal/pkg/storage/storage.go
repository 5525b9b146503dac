package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound 对象不存在
var ErrNotFound = errors.New("storage: object not found")

// Storage 存储接口
// 用于提示词等小文本对象的读写
type Storage interface {
	// Upload 上传对象
	Upload(ctx context.Context, key string, data io.Reader, contentType string) error

	// Download 下载对象，不存在时返回 ErrNotFound
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists 检查对象是否存在
	Exists(ctx context.Context, key string) (bool, error)

	// GetStorageType 获取存储类型
	GetStorageType() string
}

// StorageType 存储类型
type StorageType string

const (
	StorageTypeLocal StorageType = "local" // 本地文件系统
	StorageTypeOSS   StorageType = "oss"   // 阿里云OSS
)
