package questions

import (
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/rag-dataset/internal/document"
)

// chunkIDPattern 合法块ID：可选的文章前缀加 c 与至少四位序号
var chunkIDPattern = regexp.MustCompile(`(?i)^(?:[a-z0-9_]+_)?c\d{4,}$`)

// Cleaner 过滤问答条目中不合法的块ID
type Cleaner struct {
	known  map[string]bool
	logger *logrus.Logger
}

// NewCleaner 创建清洗器，known为空时只检查ID格式
func NewCleaner(known []document.Chunk, logger *logrus.Logger) *Cleaner {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	c := &Cleaner{logger: logger}
	if len(known) > 0 {
		c.known = make(map[string]bool, len(known))
		for _, ch := range known {
			c.known[ch.ID] = true
		}
	}
	return c
}

// ValidChunkID 是否符合块ID格式
func ValidChunkID(id string) bool {
	return chunkIDPattern.MatchString(id)
}

func (c *Cleaner) accept(id string) bool {
	if !chunkIDPattern.MatchString(id) {
		return false
	}
	return c.known == nil || c.known[id]
}

// filterIDs 去除不合法与重复的ID，返回保留与被丢弃的部分
func (c *Cleaner) filterIDs(ids []string) (kept, dropped []string) {
	seen := make(map[string]bool, len(ids))
	kept = make([]string, 0, len(ids))
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if !c.accept(id) {
			dropped = append(dropped, raw)
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		kept = append(kept, id)
	}
	return kept, dropped
}

// Clean 返回清洗后的新切片，不修改入参
func (c *Cleaner) Clean(items []QuestionItem) []QuestionItem {
	out := make([]QuestionItem, 0, len(items))
	for i, item := range items {
		ids, dropped := c.filterIDs(item.RelatedChunkIDs)
		if len(dropped) > 0 {
			c.logger.WithFields(logrus.Fields{
				"index":   i,
				"dropped": dropped,
			}).Warn("Removed invalid chunk ids from question")
		}
		if len(ids) == 0 {
			c.logger.WithFields(logrus.Fields{
				"index":    i,
				"question": document.TruncateText(item.Question, 80),
			}).Warn("Dropped question without valid chunk ids")
			continue
		}

		item.RelatedChunkIDs = ids
		out = append(out, item)
	}
	if removed := len(items) - len(out); removed > 0 {
		c.logger.WithFields(logrus.Fields{
			"before":  len(items),
			"after":   len(out),
			"removed": removed,
		}).Info("Cleaned questions")
	}
	return out
}
