// Package dataset 渲染与解析文章目录下的Markdown产物
package dataset

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fyerfyer/rag-dataset/internal/document"
	"github.com/fyerfyer/rag-dataset/internal/models"
	"github.com/fyerfyer/rag-dataset/internal/questions"
	"github.com/fyerfyer/rag-dataset/pkg/markdown"
)

// IndexPreviewLength 分块索引中预览列的最大长度
const IndexPreviewLength = 100

// 数据集表格的列
var datasetHeaders = []string{"#", "Question", "Answer", "Category", "Related_Chunk_IDs"}

// ArticleMeta article.md 的头信息
type ArticleMeta struct {
	ID        string               `yaml:"id" json:"id"`
	URL       string               `yaml:"url" json:"url"`
	Title     string               `yaml:"title" json:"title"`
	Lang      string               `yaml:"lang" json:"lang"`
	Source    string               `yaml:"source,omitempty" json:"source,omitempty"`
	CreatedAt string               `yaml:"created_at" json:"created_at"`
	Checksum  string               `yaml:"checksum" json:"checksum"`
	Options   models.IngestOptions `yaml:"options" json:"options"`
	Stats     models.ArticleStats  `yaml:"stats" json:"stats"`
}

// MetaFromArticle 由索引记录构造头信息
func MetaFromArticle(a *models.Article) ArticleMeta {
	return ArticleMeta{
		ID:        a.ID,
		URL:       a.URL,
		Title:     a.Title,
		Lang:      a.Lang,
		Source:    string(a.Source),
		CreatedAt: a.CreatedAt.UTC().Format(time.RFC3339),
		Checksum:  a.Checksum,
		Options:   a.Options.Data(),
		Stats:     a.Stats.Data(),
	}
}

// chunkMeta 分块文件的头信息
type chunkMeta struct {
	ID            string `yaml:"id"`
	ArticleID     string `yaml:"article_id"`
	Section       string `yaml:"section"`
	HeadingPath   string `yaml:"heading_path"`
	StartChar     int    `yaml:"start_char"`
	EndChar       int    `yaml:"end_char"`
	CharCount     int    `yaml:"char_count"`
	TokenEstimate int    `yaml:"token_estimate"`
}

// RenderArticle 渲染 article.md
func RenderArticle(meta ArticleMeta, body string) (string, error) {
	return markdown.WithFrontMatter(meta, body)
}

// ParseArticle 解析 article.md
func ParseArticle(content string) (ArticleMeta, string, error) {
	var meta ArticleMeta
	body, err := markdown.ParseFrontMatter(content, &meta)
	if err != nil {
		return ArticleMeta{}, "", err
	}
	return meta, body, nil
}

// RenderChunk 渲染单个分块文件，正文为分块原文
func RenderChunk(articleID string, chunk document.Chunk) (string, error) {
	return markdown.WithFrontMatter(chunkMeta{
		ID:            chunk.ID,
		ArticleID:     articleID,
		Section:       chunk.Section,
		HeadingPath:   chunk.HeadingPath,
		StartChar:     chunk.StartChar,
		EndChar:       chunk.EndChar,
		CharCount:     chunk.CharCount,
		TokenEstimate: chunk.TokenEstimate,
	}, chunk.Content)
}

// ParseChunk 解析分块文件，fallbackID 在头信息缺少ID时使用
// 长度与token估算按正文重新计算
func ParseChunk(content, fallbackID string) (document.Chunk, error) {
	var meta chunkMeta
	body, err := markdown.ParseFrontMatter(content, &meta)
	if err != nil {
		return document.Chunk{}, err
	}
	if meta.ID == "" {
		meta.ID = fallbackID
	}
	if meta.HeadingPath == "" {
		meta.HeadingPath = document.LeadSection
	}
	return document.Chunk{
		ID:            meta.ID,
		Content:       body,
		StartChar:     meta.StartChar,
		EndChar:       meta.EndChar,
		Section:       meta.Section,
		HeadingPath:   meta.HeadingPath,
		CharCount:     len(body),
		TokenEstimate: document.TokenEstimate(body),
		Preview:       document.Preview(body, document.DefaultPreviewLength),
	}, nil
}

// RenderChunksIndex 渲染 chunks_index.md，没有分块时只有标题
func RenderChunksIndex(chunks []document.Chunk) string {
	table := markdown.Table{
		Title:   "Chunks Index",
		Headers: []string{"ID", "Section", "Heading Path", "Char Range", "Preview"},
	}
	for _, c := range chunks {
		table.Rows = append(table.Rows, []string{
			c.ID,
			c.Section,
			c.HeadingPath,
			fmt.Sprintf("%d-%d", c.StartChar, c.EndChar),
			document.Preview(c.Content, IndexPreviewLength),
		})
	}
	if len(table.Rows) == 0 {
		return "# Chunks Index\n"
	}
	return table.Render()
}

// Dataset 一篇文章的问答数据集
type Dataset struct {
	ArticleID      string                   `json:"article_id"`
	Title          string                   `json:"title"`
	CreatedAt      string                   `json:"created_at"`
	Items          []questions.QuestionItem `json:"items"`
	TotalQuestions int                      `json:"total_questions"`
}

// RenderDataset 渲染 dataset.md
func RenderDataset(title string, items []questions.QuestionItem, generatedAt time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Dataset: %s\n\n", title)
	fmt.Fprintf(&b, "Generated on: %s\n", generatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Total questions: %d\n\n", len(items))

	table := markdown.Table{Headers: datasetHeaders}
	for i, item := range items {
		table.Rows = append(table.Rows, []string{
			strconv.Itoa(i + 1),
			item.Question,
			item.Answer,
			string(item.Category),
			item.ChunkIDsString(),
		})
	}
	b.WriteString(table.Render())
	return b.String()
}

// ParseDataset 解析 dataset.md
// 兼容旧格式：4列表格没有类别，3列表格只有问题，缺省类别为 FACTUAL
// 缺少问题或块ID的行被跳过
func ParseDataset(content string) Dataset {
	var ds Dataset
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "# Dataset:"):
			ds.Title = strings.TrimSpace(strings.TrimPrefix(line, "# Dataset:"))
		case strings.HasPrefix(line, "Generated on:"):
			ds.CreatedAt = strings.TrimSpace(strings.TrimPrefix(line, "Generated on:"))
		}
	}

	_, rows := markdown.ParseTable(content)
	ds.Items = make([]questions.QuestionItem, 0, len(rows))
	for _, row := range rows {
		item, ok := parseDatasetRow(row)
		if ok {
			ds.Items = append(ds.Items, item)
		}
	}
	ds.TotalQuestions = len(ds.Items)
	return ds
}

func parseDatasetRow(cells []string) (questions.QuestionItem, bool) {
	item := questions.QuestionItem{Category: questions.CategoryFactual}
	switch {
	case len(cells) >= 5:
		item.Question, item.Answer = cells[1], cells[2]
		if c, err := questions.ParseCategory(cells[3]); err == nil {
			item.Category = c
		}
		item.RelatedChunkIDs = document.ParseChunkIDs(cells[4])
	case len(cells) == 4:
		item.Question, item.Answer = cells[1], cells[2]
		item.RelatedChunkIDs = document.ParseChunkIDs(cells[3])
	case len(cells) == 3:
		item.Question = cells[1]
		item.RelatedChunkIDs = document.ParseChunkIDs(cells[2])
		return item, item.Question != "" && len(item.RelatedChunkIDs) > 0
	default:
		return item, false
	}
	return item, item.Question != "" && item.Answer != "" && len(item.RelatedChunkIDs) > 0
}
