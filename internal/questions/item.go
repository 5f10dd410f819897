package questions

import (
	"fmt"
	"strings"

	"github.com/fyerfyer/rag-dataset/internal/document"
)

// Category 问题类别
type Category string

const (
	// CategoryFactual 直接回忆原文中的名称、日期、数字或短语
	CategoryFactual Category = "FACTUAL"
	// CategoryInterpretation 解释原因、影响或概念间关系
	CategoryInterpretation Category = "INTERPRETATION"
	// CategoryLongAnswer 对主题或过程的多句总结
	CategoryLongAnswer Category = "LONG_ANSWER"
)

// Categories 全部合法类别，顺序固定
var Categories = []Category{CategoryFactual, CategoryInterpretation, CategoryLongAnswer}

// Valid 是否属于封闭枚举
func (c Category) Valid() bool {
	switch c {
	case CategoryFactual, CategoryInterpretation, CategoryLongAnswer:
		return true
	}
	return false
}

// ParseCategory 解析类别字符串，忽略首尾空白与大小写
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("invalid category %q", s)
	}
	return c, nil
}

// QuestionItem 数据集中的一条问答
type QuestionItem struct {
	Question        string   `json:"question"`
	Answer          string   `json:"answer"`
	RelatedChunkIDs []string `json:"related_chunk_ids"`
	Category        Category `json:"category"`
	// IsFallback 生成失败时的占位条目，下游可据此过滤
	IsFallback bool `json:"is_fallback,omitempty"`
}

// ChunkIDsString 按序号排序后以逗号连接的块ID
func (q QuestionItem) ChunkIDsString() string {
	return document.FormatChunkIDs(q.RelatedChunkIDs)
}

// fallbackTopic 占位问题中引用的主题
const fallbackTopic = "this topic"

// FallbackItem 为生成失败的单元构造占位条目
func FallbackItem(unit Unit) QuestionItem {
	section := fallbackTopic
	if len(unit.Chunks) > 0 && unit.Chunks[0].Section != "" {
		section = unit.Chunks[0].Section
	}
	return QuestionItem{
		Question:        fmt.Sprintf("What information is provided about %s?", section),
		Answer:          fmt.Sprintf("The text provides information about %s as described in the relevant chunks.", section),
		RelatedChunkIDs: unit.ChunkIDs(),
		Category:        CategoryLongAnswer,
		IsFallback:      true,
	}
}
