package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fyerfyer/rag-dataset/internal/database"
	"github.com/fyerfyer/rag-dataset/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	// 使用唯一的内存数据库标识符
	dbName := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err, "Failed to open in-memory database")
	require.NoError(t, database.AutoMigrate(db), "Failed to run migrations")

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func testArticle(id string, created time.Time) *models.Article {
	url := "https://en.wikipedia.org/wiki/" + id
	return &models.Article{
		ID:        id,
		URL:       url,
		Title:     id,
		Lang:      "en",
		Checksum:  models.URLChecksum(url),
		Options:   datatypes.NewJSONType(models.DefaultIngestOptions()),
		Stats:     datatypes.NewJSONType(models.ArticleStats{NumChunks: 3, NumQuestions: 5}),
		CreatedAt: created,
	}
}

func TestArticleRepository_CreateGet(t *testing.T) {
	repo := NewArticleRepository(setupTestDB(t))
	ctx := context.Background()

	article := testArticle("go_12345678", time.Now().UTC())
	require.NoError(t, repo.Create(ctx, article))

	saved, err := repo.Get(ctx, article.ID)
	require.NoError(t, err)
	assert.Equal(t, article.Title, saved.Title)
	assert.Equal(t, models.SourceWikipedia, saved.Source)
	assert.Equal(t, 1200, saved.Options.Data().ChunkSize)
	assert.Equal(t, 5, saved.Stats.Data().NumQuestions)

	err = repo.Create(ctx, testArticle("go_12345678", time.Now()))
	assert.True(t, errors.Is(err, models.ErrArticleExists))

	assert.Error(t, repo.Create(ctx, &models.Article{}))

	_, err = repo.Get(ctx, "missing")
	assert.True(t, errors.Is(err, models.ErrArticleNotFound))
}

func TestArticleRepository_FindByChecksum(t *testing.T) {
	repo := NewArticleRepository(setupTestDB(t))
	ctx := context.Background()

	article := testArticle("rust_aaaaaaaa", time.Now().UTC())
	require.NoError(t, repo.Create(ctx, article))

	found, err := repo.FindByChecksum(ctx, article.Checksum)
	require.NoError(t, err)
	assert.Equal(t, article.ID, found.ID)

	_, err = repo.FindByChecksum(ctx, models.URLChecksum("https://en.wikipedia.org/wiki/Other"))
	assert.True(t, errors.Is(err, models.ErrArticleNotFound))
}

func TestArticleRepository_ListNewestFirst(t *testing.T) {
	repo := NewArticleRepository(setupTestDB(t))
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a_00000001", "b_00000002", "c_00000003"} {
		require.NoError(t, repo.Create(ctx, testArticle(id, base.Add(time.Duration(i)*time.Hour))))
	}

	articles, total, err := repo.List(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, articles, 3)
	assert.Equal(t, "c_00000003", articles[0].ID)
	assert.Equal(t, "a_00000001", articles[2].ID)

	page, total, err := repo.List(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, page, 1)
	assert.Equal(t, "b_00000002", page[0].ID)
}

func TestArticleRepository_UpdateDelete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewArticleRepository(db)
	runs := NewRunRepository(db)
	ctx := context.Background()

	article := testArticle("go_12345678", time.Now().UTC())
	require.NoError(t, repo.Create(ctx, article))
	require.NoError(t, runs.Create(ctx, &models.IngestRun{
		ID: "run_00000001", ArticleID: article.ID, Source: models.SourceWikipedia,
		Stage: models.StageDone, Status: models.RunStatusCompleted,
	}))

	article.Stats = datatypes.NewJSONType(models.ArticleStats{NumQuestions: 9})
	require.NoError(t, repo.Update(ctx, article))
	saved, err := repo.Get(ctx, article.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, saved.Stats.Data().NumQuestions)

	require.NoError(t, repo.Delete(ctx, article.ID))
	_, err = repo.Get(ctx, article.ID)
	assert.True(t, errors.Is(err, models.ErrArticleNotFound))

	// 运行记录随文章一起删除
	list, err := runs.ListByArticle(ctx, article.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.True(t, errors.Is(repo.Delete(ctx, article.ID), models.ErrArticleNotFound))
}

func TestRunRepository_UpdateStage(t *testing.T) {
	repo := NewRunRepository(setupTestDB(t))
	ctx := context.Background()

	run := &models.IngestRun{
		ID:      models.NewRunID(),
		Source:  models.SourceWikipedia,
		Input:   "https://en.wikipedia.org/wiki/Go",
		Stage:   models.StageQueued,
		Status:  models.RunStatusStarted,
		Options: datatypes.NewJSONType(models.DefaultIngestOptions()),
	}
	require.NoError(t, repo.Create(ctx, run))

	require.NoError(t, repo.UpdateStage(ctx, run.ID, StageUpdate{
		Stage:     models.StageSplitting,
		Status:    models.RunStatusRunning,
		Message:   "Splitting text",
		ArticleID: "go_12345678",
	}))
	saved, err := repo.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageSplitting, saved.Stage)
	assert.Equal(t, "go_12345678", saved.ArticleID)
	assert.Nil(t, saved.FinishedAt)

	require.NoError(t, repo.UpdateStage(ctx, run.ID, StageUpdate{
		Stage:  models.StageFailed,
		Status: models.RunStatusFailed,
		Error:  "boom",
	}))
	saved, err = repo.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "Splitting text", saved.Message)
	assert.Equal(t, "boom", saved.Error)
	assert.NotNil(t, saved.FinishedAt)

	err = repo.UpdateStage(ctx, "run_missing", StageUpdate{Stage: models.StageDone})
	assert.True(t, errors.Is(err, models.ErrRunNotFound))
	_, err = repo.Get(ctx, "run_missing")
	assert.True(t, errors.Is(err, models.ErrRunNotFound))

	require.NoError(t, repo.DeleteByArticle(ctx, "go_12345678"))
	_, err = repo.Get(ctx, run.ID)
	assert.Error(t, err)
}
