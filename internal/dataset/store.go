package dataset

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/rag-dataset/internal/document"
	"github.com/fyerfyer/rag-dataset/internal/questions"
	"github.com/fyerfyer/rag-dataset/pkg/storage"
)

// LogEntry logs.ndjson 中的一行
type LogEntry struct {
	Timestamp string         `json:"timestamp"`
	RunID     string         `json:"run_id"`
	ArticleID string         `json:"article_id"`
	Stage     string         `json:"stage,omitempty"`
	Status    string         `json:"status"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}

// Store 按文章目录读写产物
type Store struct {
	storage storage.Storage
	logger  *logrus.Logger
}

// NewStore 创建产物存储
func NewStore(s storage.Storage, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Store{storage: s, logger: logger}
}

// Storage 底层对象存储
func (s *Store) Storage() storage.Storage {
	return s.storage
}

// WriteRawHTML 保存抓取到的原始HTML
func (s *Store) WriteRawHTML(ctx context.Context, articleID, html string) error {
	return storage.PutBytes(ctx, s.storage, storage.NewArticlePaths(articleID).RawHTML(), []byte(html))
}

// WriteArticle 写入 article.md
func (s *Store) WriteArticle(ctx context.Context, meta ArticleMeta, body string) error {
	content, err := RenderArticle(meta, body)
	if err != nil {
		return err
	}
	return storage.PutBytes(ctx, s.storage, storage.NewArticlePaths(meta.ID).Article(), []byte(content))
}

// WriteChunks 写入全部分块文件和 chunks_index.md
func (s *Store) WriteChunks(ctx context.Context, articleID string, chunks []document.Chunk) error {
	paths := storage.NewArticlePaths(articleID)
	for _, c := range chunks {
		content, err := RenderChunk(articleID, c)
		if err != nil {
			return fmt.Errorf("failed to render chunk %s: %w", c.ID, err)
		}
		if err := storage.PutBytes(ctx, s.storage, paths.Chunk(c.ID), []byte(content)); err != nil {
			return err
		}
	}
	if err := storage.PutBytes(ctx, s.storage, paths.ChunksIndex(), []byte(RenderChunksIndex(chunks))); err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{
		"article_id": articleID,
		"chunks":     len(chunks),
	}).Debug("Wrote chunk files")
	return nil
}

// WriteDataset 写入 dataset.md
func (s *Store) WriteDataset(ctx context.Context, articleID, title string, items []questions.QuestionItem, generatedAt time.Time) error {
	content := RenderDataset(title, items, generatedAt)
	return storage.PutBytes(ctx, s.storage, storage.NewArticlePaths(articleID).Dataset(), []byte(content))
}

// AppendLog 追加运行日志，每条一行，所有条目写入第一条的文章目录
func (s *Store) AppendLog(ctx context.Context, entries ...LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	var buf bytes.Buffer
	for _, entry := range entries {
		if entry.Timestamp == "" {
			entry.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
		}
		line, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to encode log entry: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return storage.AppendLine(ctx, s.storage, storage.NewArticlePaths(entries[0].ArticleID).Logs(), buf.Bytes())
}

// ReadArticle 读取 article.md
func (s *Store) ReadArticle(ctx context.Context, articleID string) (ArticleMeta, string, error) {
	data, err := storage.ReadAll(ctx, s.storage, storage.NewArticlePaths(articleID).Article())
	if err != nil {
		return ArticleMeta{}, "", err
	}
	return ParseArticle(string(data))
}

// ReadChunks 读取全部分块，按序号排序
// 解析失败的文件记录警告后跳过
func (s *Store) ReadChunks(ctx context.Context, articleID string) ([]document.Chunk, error) {
	paths := storage.NewArticlePaths(articleID)
	objects, err := s.storage.List(ctx, paths.ChunksDir())
	if err != nil {
		return nil, err
	}

	chunks := make([]document.Chunk, 0, len(objects))
	for _, obj := range objects {
		if !strings.HasSuffix(obj.Key, ".md") {
			continue
		}
		data, err := storage.ReadAll(ctx, s.storage, obj.Key)
		if err != nil {
			return nil, err
		}
		id := strings.TrimSuffix(path.Base(obj.Key), ".md")
		chunk, err := ParseChunk(string(data), id)
		if err != nil {
			s.logger.WithError(err).WithField("key", obj.Key).Warn("Skipping unreadable chunk file")
			continue
		}
		chunks = append(chunks, chunk)
	}

	order := make(map[string]int, len(chunks))
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	for i, id := range document.SortChunkIDs(ids) {
		order[id] = i
	}
	sort.SliceStable(chunks, func(i, j int) bool {
		return order[chunks[i].ID] < order[chunks[j].ID]
	})
	return chunks, nil
}

// ReadDataset 读取并解析 dataset.md
func (s *Store) ReadDataset(ctx context.Context, articleID string) (Dataset, error) {
	data, err := storage.ReadAll(ctx, s.storage, storage.NewArticlePaths(articleID).Dataset())
	if err != nil {
		return Dataset{}, err
	}
	ds := ParseDataset(string(data))
	ds.ArticleID = articleID
	return ds, nil
}

// ReadLogs 读取运行日志，无法解析的行被跳过
func (s *Store) ReadLogs(ctx context.Context, articleID string) ([]LogEntry, error) {
	data, err := storage.ReadAll(ctx, s.storage, storage.NewArticlePaths(articleID).Logs())
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entries []LogEntry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var entry LogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, scanner.Err()
}

// Exists 文章目录下是否有 article.md
func (s *Store) Exists(ctx context.Context, articleID string) (bool, error) {
	return s.storage.Exists(ctx, storage.NewArticlePaths(articleID).Article())
}

// Delete 删除文章目录下的全部产物
func (s *Store) Delete(ctx context.Context, articleID string) error {
	return s.storage.DeletePrefix(ctx, storage.NewArticlePaths(articleID).Dir())
}
