package storage

import (
	"path"
	"strings"
)

// 文章目录下的固定文件名
const (
	ArticleFile     = "article.md"
	ChunksIndexFile = "chunks_index.md"
	DatasetFile     = "dataset.md"
	LogsFile        = "logs.ndjson"
	RawHTMLFile     = "raw.html"
	ChunksDir       = "chunks"
)

// ArticlePaths 单篇文章产物的对象路径
type ArticlePaths struct {
	ArticleID string
}

// NewArticlePaths 创建文章路径构造器
func NewArticlePaths(articleID string) ArticlePaths {
	return ArticlePaths{ArticleID: articleID}
}

// Dir 文章根目录 articles/<id>
func (p ArticlePaths) Dir() string {
	return path.Join("articles", p.ArticleID)
}

// Article article.md
func (p ArticlePaths) Article() string {
	return path.Join(p.Dir(), ArticleFile)
}

// ChunksIndex chunks_index.md
func (p ArticlePaths) ChunksIndex() string {
	return path.Join(p.Dir(), ChunksIndexFile)
}

// Dataset dataset.md
func (p ArticlePaths) Dataset() string {
	return path.Join(p.Dir(), DatasetFile)
}

// Logs logs.ndjson
func (p ArticlePaths) Logs() string {
	return path.Join(p.Dir(), LogsFile)
}

// RawHTML raw.html
func (p ArticlePaths) RawHTML() string {
	return path.Join(p.Dir(), RawHTMLFile)
}

// ChunksDir chunks子目录
func (p ArticlePaths) ChunksDir() string {
	return path.Join(p.Dir(), ChunksDir)
}

// Chunk chunks/<chunkID>.md
func (p ArticlePaths) Chunk(chunkID string) string {
	return path.Join(p.ChunksDir(), chunkID+".md")
}

// File 按文件名定位可下载的产物，块文件名为 <chunkID>.md
// 不认识的文件名返回false
func (p ArticlePaths) File(name string) (string, bool) {
	switch name {
	case ArticleFile, ChunksIndexFile, DatasetFile, LogsFile, RawHTMLFile:
		return path.Join(p.Dir(), name), true
	}
	if strings.HasSuffix(name, ".md") && !strings.ContainsAny(name, `/\`) && !strings.Contains(name, "..") {
		return path.Join(p.ChunksDir(), name), true
	}
	return "", false
}
