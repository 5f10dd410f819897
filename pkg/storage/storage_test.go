package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocal(t *testing.T) *LocalStorage {
	t.Helper()
	s, err := NewLocalStorage(LocalConfig{Path: t.TempDir()})
	require.NoError(t, err)
	return s
}

func TestLocalStoragePutGet(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	info, err := s.Put(ctx, "articles/a1/article.md", strings.NewReader("# 标题\n"))
	require.NoError(t, err)
	assert.Equal(t, "articles/a1/article.md", info.Key)
	assert.Equal(t, int64(len("# 标题\n")), info.Size)
	assert.Equal(t, "text/markdown", info.ContentType)

	data, err := ReadAll(ctx, s, "/articles/a1/article.md")
	require.NoError(t, err)
	assert.Equal(t, "# 标题\n", string(data))

	// 覆盖写入
	require.NoError(t, PutBytes(ctx, s, "articles/a1/article.md", []byte("v2")))
	data, err = ReadAll(ctx, s, "articles/a1/article.md")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))

	_, err = s.Get(ctx, "articles/a1/missing.md")
	assert.True(t, errors.Is(err, ErrNotFound))

	entries, err := os.ReadDir(filepath.Join(s.BasePath(), "articles", "a1"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files left behind")
}

func TestLocalStorageListDelete(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	for _, key := range []string{
		"articles/a1/article.md",
		"articles/a1/chunks/c0001.md",
		"articles/a1/chunks/c0000.md",
		"articles/a2/article.md",
	} {
		require.NoError(t, PutBytes(ctx, s, key, []byte(key)))
	}

	objects, err := s.List(ctx, "articles/a1")
	require.NoError(t, err)
	require.Len(t, objects, 3)
	assert.Equal(t, "articles/a1/article.md", objects[0].Key)
	assert.Equal(t, "articles/a1/chunks/c0000.md", objects[1].Key)

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	none, err := s.List(ctx, "articles/zzz")
	require.NoError(t, err)
	assert.Empty(t, none)

	ok, err := s.Exists(ctx, "articles/a2/article.md")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Exists(ctx, "articles/a2")
	require.NoError(t, err)
	assert.False(t, ok, "directories are not objects")

	require.NoError(t, s.Delete(ctx, "articles/a2/article.md"))
	require.NoError(t, s.Delete(ctx, "articles/a2/article.md"))
	ok, err = s.Exists(ctx, "articles/a2/article.md")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.DeletePrefix(ctx, "articles/a1"))
	all, err = s.List(ctx, "articles")
	require.NoError(t, err)
	assert.Empty(t, all)

	assert.Error(t, s.DeletePrefix(ctx, "/"))
}

func TestAppendLine(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	require.NoError(t, AppendLine(ctx, s, "logs.ndjson", []byte(`{"a":1}`)))
	require.NoError(t, AppendLine(ctx, s, "logs.ndjson", []byte("{\"a\":2}\n")))

	data, err := ReadAll(ctx, s, "logs.ndjson")
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":1}\n{\"a\":2}\n", string(data))
}

func TestSaveUpload(t *testing.T) {
	s := newLocal(t)
	info, err := SaveUpload(context.Background(), s, bytes.NewBufferString("# Doc"), "Notes.MD")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(info.Key, "uploads/"))
	assert.True(t, strings.HasSuffix(info.Key, ".md"))

	rc, err := s.Get(context.Background(), info.Key)
	require.NoError(t, err)
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	assert.Equal(t, "# Doc", string(body))
}

func TestCleanKey(t *testing.T) {
	tests := map[string]string{
		"a/b.md":        "a/b.md",
		"/a//b.md":      "a/b.md",
		`a\b.md`:        "a/b.md",
		"a/./b.md":      "a/b.md",
		" articles/x/ ": "articles/x",
	}
	for in, want := range tests {
		got, err := CleanKey(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "/", "../etc/passwd", "a/../../b", "."} {
		_, err := CleanKey(bad)
		assert.Error(t, err, bad)
	}
}

func TestArticlePaths(t *testing.T) {
	p := NewArticlePaths("go_abc12345")
	assert.Equal(t, "articles/go_abc12345", p.Dir())
	assert.Equal(t, "articles/go_abc12345/article.md", p.Article())
	assert.Equal(t, "articles/go_abc12345/chunks_index.md", p.ChunksIndex())
	assert.Equal(t, "articles/go_abc12345/dataset.md", p.Dataset())
	assert.Equal(t, "articles/go_abc12345/logs.ndjson", p.Logs())
	assert.Equal(t, "articles/go_abc12345/raw.html", p.RawHTML())
	assert.Equal(t, "articles/go_abc12345/chunks/go_abc12345_c0003.md", p.Chunk("go_abc12345_c0003"))

	key, ok := p.File("dataset.md")
	assert.True(t, ok)
	assert.Equal(t, p.Dataset(), key)
	key, ok = p.File("c0003.md")
	assert.True(t, ok)
	assert.Equal(t, "articles/go_abc12345/chunks/c0003.md", key)
	_, ok = p.File("../secret.md")
	assert.False(t, ok)
	_, ok = p.File("notes.txt")
	assert.False(t, ok)
}

func TestNewStorage(t *testing.T) {
	s, err := New(Config{Type: TypeLocal, Local: LocalConfig{Path: t.TempDir()}})
	require.NoError(t, err)
	assert.IsType(t, &LocalStorage{}, s)

	_, err = New(Config{Type: "s3"})
	assert.Error(t, err)
}
