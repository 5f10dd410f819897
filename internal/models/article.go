package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ArticleSource 文章来源
type ArticleSource string

const (
	// SourceWikipedia 从维基百科抓取
	SourceWikipedia ArticleSource = "wikipedia"
	// SourceUpload 用户上传的Markdown文件
	SourceUpload ArticleSource = "upload"
)

// IngestOptions 单次导入的参数
type IngestOptions struct {
	ChunkSize      int    `json:"chunk_size" yaml:"chunk_size" form:"chunk_size" mapstructure:"chunk_size" binding:"omitempty,min=100,max=5000"`
	ChunkOverlap   int    `json:"chunk_overlap" yaml:"chunk_overlap" form:"chunk_overlap" mapstructure:"chunk_overlap" binding:"omitempty,min=0,max=1000"`
	SplitStrategy  string `json:"split_strategy" yaml:"split_strategy" form:"split_strategy" mapstructure:"split_strategy" binding:"omitempty,split_strategy"`
	TotalQuestions int    `json:"total_questions" yaml:"total_questions" form:"total_questions" mapstructure:"total_questions" binding:"omitempty,min=1,max=50"`
	LLMModel       string `json:"llm_model,omitempty" yaml:"llm_model,omitempty" form:"llm_model" mapstructure:"llm_model"`
	Reingest       bool   `json:"reingest" yaml:"-" form:"reingest" mapstructure:"reingest"`
	StripSections  *bool  `json:"strip_sections,omitempty" yaml:"strip_sections,omitempty" form:"strip_sections" mapstructure:"strip_sections"`
}

// DefaultIngestOptions 默认导入参数
func DefaultIngestOptions() IngestOptions {
	return IngestOptions{
		ChunkSize:      1200,
		ChunkOverlap:   200,
		SplitStrategy:  "header_aware",
		TotalQuestions: 10,
	}
}

// WithDefaults 用defaults补齐零值字段
func (o IngestOptions) WithDefaults(defaults IngestOptions) IngestOptions {
	if o.ChunkSize == 0 {
		o.ChunkSize = defaults.ChunkSize
	}
	if o.ChunkOverlap == 0 {
		o.ChunkOverlap = defaults.ChunkOverlap
	}
	if o.SplitStrategy == "" {
		o.SplitStrategy = defaults.SplitStrategy
	}
	if o.TotalQuestions == 0 {
		o.TotalQuestions = defaults.TotalQuestions
	}
	if o.LLMModel == "" {
		o.LLMModel = defaults.LLMModel
	}
	if o.StripSections == nil {
		o.StripSections = defaults.StripSections
	}
	return o
}

// ShouldStripSections 是否剔除参考文献等尾部章节，未设置时为true
func (o IngestOptions) ShouldStripSections() bool {
	return o.StripSections == nil || *o.StripSections
}

// ArticleStats 导入统计
type ArticleStats struct {
	WordCount      int `json:"word_count" yaml:"word_count"`
	CharCount      int `json:"char_count" yaml:"char_count"`
	NumChunks      int `json:"num_chunks" yaml:"num_chunks"`
	OriginalChunks int `json:"original_chunks" yaml:"original_chunks"`
	FilteredOut    int `json:"filtered_out" yaml:"filtered_out"`
	NumSections    int `json:"num_sections" yaml:"num_sections"`
	NumQuestions   int `json:"num_questions" yaml:"num_questions"`
}

// Article 文章索引记录
type Article struct {
	ID        string                            `gorm:"primaryKey;size:64" json:"id"`
	URL       string                            `gorm:"not null" json:"url"`
	Title     string                            `gorm:"not null" json:"title"`
	Lang      string                            `gorm:"size:8" json:"lang"`
	Checksum  string                            `gorm:"size:64;index" json:"checksum"`
	Source    ArticleSource                     `gorm:"size:20;not null;default:wikipedia" json:"source"`
	Options   datatypes.JSONType[IngestOptions] `json:"options"`
	Stats     datatypes.JSONType[ArticleStats]  `json:"stats"`
	CreatedAt time.Time                         `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time                         `json:"updated_at"`
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (a *Article) BeforeCreate(tx *gorm.DB) (err error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	a.UpdatedAt = time.Now().UTC()
	if a.Source == "" {
		a.Source = SourceWikipedia
	}
	return nil
}

// BeforeUpdate GORM的钩子函数，更新记录前自动设置更新时间
func (a *Article) BeforeUpdate(tx *gorm.DB) (err error) {
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// TableName 明确指定表名
func (Article) TableName() string {
	return "articles"
}

// URLChecksum URL的sha256摘要，用于判重
func URLChecksum(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

// NewArticleID 由标题前缀与摘要组成可读的文章ID
// 标题中只保留ASCII字母数字，最多20个，全部为空时用 article
func NewArticleID(url, title string, now time.Time) string {
	var b strings.Builder
	n := 0
	for _, r := range title {
		if n >= 20 {
			break
		}
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToLower(r))
			n++
		}
	}
	prefix := b.String()
	if prefix == "" {
		prefix = "article"
	}

	sum := sha256.Sum256([]byte(fmt.Sprintf("%s_%s_%d", url, title, now.UnixNano())))
	return prefix + "_" + hex.EncodeToString(sum[:])[:8]
}
