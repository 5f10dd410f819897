package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound 对象不存在
var ErrNotFound = errors.New("object not found")

// ObjectInfo 对象元数据
type ObjectInfo struct {
	Key         string    // 对象路径，以 / 分隔
	Size        int64     // 大小(字节)
	ContentType string    // MIME类型
	ModTime     time.Time // 最后修改时间
}

// Storage 按路径寻址的对象存储
// 本地文件系统与MinIO各有一个实现
type Storage interface {
	// Put 写入对象，已存在时覆盖
	Put(ctx context.Context, key string, r io.Reader) (ObjectInfo, error)

	// Get 读取对象，不存在时返回 ErrNotFound
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete 删除对象，不存在时不报错
	Delete(ctx context.Context, key string) error

	// DeletePrefix 删除前缀下的所有对象
	DeletePrefix(ctx context.Context, prefix string) error

	// List 列出前缀下的对象，按路径排序
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Exists 检查对象是否存在
	Exists(ctx context.Context, key string) (bool, error)
}

// 存储类型
const (
	TypeLocal = "local"
	TypeMinio = "minio"
)

// Config 存储配置
type Config struct {
	Type  string
	Local LocalConfig
	Minio MinioConfig
}

// New 按配置创建存储
func New(cfg Config) (Storage, error) {
	switch cfg.Type {
	case "", TypeLocal:
		return NewLocalStorage(cfg.Local)
	case TypeMinio:
		return NewMinioStorage(cfg.Minio)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// CleanKey 规范化对象路径，拒绝空路径和包含 .. 的路径
func CleanKey(key string) (string, error) {
	key = strings.Trim(strings.TrimSpace(strings.ReplaceAll(key, `\`, "/")), "/")
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", fmt.Errorf("invalid object key: %s", key)
		}
	}
	cleaned := path.Clean(key)
	if key == "" || cleaned == "." {
		return "", fmt.Errorf("empty object key")
	}
	return cleaned, nil
}

// PutBytes 写入字节内容
func PutBytes(ctx context.Context, s Storage, key string, data []byte) error {
	_, err := s.Put(ctx, key, bytes.NewReader(data))
	return err
}

// ReadAll 读取整个对象
func ReadAll(ctx context.Context, s Storage, key string) ([]byte, error) {
	rc, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return data, nil
}

// AppendLine 在对象末尾追加一行，对象不存在时创建
func AppendLine(ctx context.Context, s Storage, key string, line []byte) error {
	existing, err := ReadAll(ctx, s, key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	buf := make([]byte, 0, len(existing)+len(line)+1)
	buf = append(buf, existing...)
	buf = append(buf, line...)
	if len(line) == 0 || line[len(line)-1] != '\n' {
		buf = append(buf, '\n')
	}
	return PutBytes(ctx, s, key, buf)
}

// SaveUpload 以随机ID保存上传文件，按日期分目录
func SaveUpload(ctx context.Context, s Storage, r io.Reader, filename string) (ObjectInfo, error) {
	now := time.Now()
	key := fmt.Sprintf("uploads/%04d/%02d/%02d/%s%s",
		now.Year(), now.Month(), now.Day(), uuid.New().String(), strings.ToLower(filepath.Ext(filename)))
	return s.Put(ctx, key, r)
}

// getMimeType 根据扩展名判断MIME类型
func getMimeType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".md", ".markdown":
		return "text/markdown"
	case ".txt":
		return "text/plain"
	case ".html", ".htm":
		return "text/html"
	case ".json":
		return "application/json"
	case ".ndjson":
		return "application/x-ndjson"
	default:
		return "application/octet-stream"
	}
}
