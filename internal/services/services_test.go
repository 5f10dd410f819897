package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fyerfyer/rag-dataset/internal/database"
	"github.com/fyerfyer/rag-dataset/internal/dataset"
	"github.com/fyerfyer/rag-dataset/internal/document"
	"github.com/fyerfyer/rag-dataset/internal/questions"
	"github.com/fyerfyer/rag-dataset/internal/repository"
	"github.com/fyerfyer/rag-dataset/internal/wiki"
	"github.com/fyerfyer/rag-dataset/pkg/storage"
)

const testArticleURL = "https://en.wikipedia.org/wiki/Go_(programming_language)"

// 每段都超过过滤阈值的单词数
var testArticleHTML = `<p>` + words("Go is a statically typed compiled language designed at Google", 5) + `</p>
<h2>History</h2>
<p>` + words("The language was announced in 2009 and reached version one in 2012", 5) + `</p>
<h2>Design</h2>
<p>` + words("Go provides garbage collection structural typing and CSP style concurrency", 5) + `</p>
<h2>References</h2>
<ul><li>Reference one</li></ul>`

func words(sentence string, repeat int) string {
	parts := make([]string, repeat)
	for i := range parts {
		parts[i] = sentence + "."
	}
	return strings.Join(parts, " ")
}

// testEnv 服务测试共用的依赖
type testEnv struct {
	db       *gorm.DB
	articles repository.ArticleRepository
	runs     repository.RunRepository
	storage  *storage.LocalStorage
	store    *dataset.Store
	logger   *logrus.Logger
	hook     *test.Hook
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dbName := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	local, err := storage.NewLocalStorage(storage.LocalConfig{Path: t.TempDir()})
	require.NoError(t, err)

	log, hook := test.NewNullLogger()
	return &testEnv{
		db:       db,
		articles: repository.NewArticleRepository(db),
		runs:     repository.NewRunRepository(db),
		storage:  local,
		store:    dataset.NewStore(local, log),
		logger:   log,
		hook:     hook,
	}
}

// newIngestService 使用桩抓取器和生成器创建导入服务
func (e *testEnv) newIngestService(fetcher ArticleFetcher, gen QuestionGenerator, opts ...IngestOption) *IngestService {
	factory := func(model string) (QuestionGenerator, error) {
		if gen == nil {
			return nil, errors.New("no generator")
		}
		return gen, nil
	}
	opts = append([]IngestOption{WithIngestLogger(e.logger)}, opts...)
	return NewIngestService(fetcher, e.articles, e.runs, e.store, nil, factory, opts...)
}

type stubFetcher struct {
	mu      sync.Mutex
	article *wiki.Article
	err     error
	calls   int
}

func (f *stubFetcher) Fetch(ctx context.Context, rawURL string) (*wiki.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	a := *f.article
	a.URL = rawURL
	return &a, nil
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{article: &wiki.Article{
		Title:   "Go (programming language)",
		Content: testArticleHTML,
		Lang:    "en",
	}}
}

// stubGenerator 每个分块生成一条问答
type stubGenerator struct {
	err    error
	totals []int
}

func (g *stubGenerator) Generate(ctx context.Context, chunks []document.Chunk, total int) ([]questions.QuestionItem, error) {
	g.totals = append(g.totals, total)
	if g.err != nil {
		return nil, g.err
	}
	items := make([]questions.QuestionItem, 0, len(chunks))
	for _, c := range chunks {
		if len(items) == total {
			break
		}
		items = append(items, questions.QuestionItem{
			Question:        "What does the " + c.Section + " section describe?",
			Answer:          "It describes " + c.Section + ".",
			RelatedChunkIDs: []string{c.ID},
			Category:        questions.CategoryFactual,
		})
	}
	return items, nil
}
