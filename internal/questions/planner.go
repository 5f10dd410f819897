package questions

import (
	"sort"
	"strings"

	"github.com/fyerfyer/rag-dataset/internal/document"
)

// 规划策略常量
const (
	// SingleRatio 单块问题所占比例，其余为多块问题
	SingleRatio = 0.3
	// MaxSectionGroupSize 按章节分组时每组最多取的块数
	MaxSectionGroupSize = 4
	// SubstantialChunkChars 相邻分组纳入第三块的长度阈值
	SubstantialChunkChars = 500
)

// Unit 一次生成调用所针对的块子集与目标问题数
type Unit struct {
	Chunks []document.Chunk
	Count  int
}

// ChunkIDs 返回单元内块ID，保持原顺序
func (u Unit) ChunkIDs() []string {
	ids := make([]string, len(u.Chunks))
	for i, c := range u.Chunks {
		ids[i] = c.ID
	}
	return ids
}

// IsMulti 是否为多块单元
func (u Unit) IsMulti() bool {
	return len(u.Chunks) > 1
}

// Planner 将分块划分为生成单元
type Planner struct {
	// SingleRatio 单块配额比例，取值 (0,1]
	SingleRatio float64
	// FillQuota 单元数不足总数时把差额轮流加到各单元的Count上
	FillQuota bool
}

// DefaultPlanner 返回使用默认比例的规划器
func DefaultPlanner() Planner {
	return Planner{SingleRatio: SingleRatio}
}

// Plan 使用默认规划器
func Plan(chunks []document.Chunk, total int) []Unit {
	return DefaultPlanner().Plan(chunks, total)
}

// Quotas 计算单块与多块配额
func (p Planner) Quotas(total int) (single, multi int) {
	if total <= 0 {
		return 0, 0
	}
	ratio := p.SingleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = SingleRatio
	}
	single = int(float64(total) * ratio)
	if single < 1 {
		single = 1
	}
	return single, total - single
}

// Plan 生成单元列表：先单块单元，再相邻分组，最后章节分组
func (p Planner) Plan(chunks []document.Chunk, total int) []Unit {
	if len(chunks) == 0 || total <= 0 {
		return nil
	}

	single, multi := p.Quotas(total)

	var units []Unit
	for _, c := range selectSingleChunks(chunks, single) {
		units = append(units, Unit{Chunks: []document.Chunk{c}, Count: 1})
	}
	if multi > 0 && len(chunks) >= 2 {
		units = append(units, multiChunkUnits(chunks, multi)...)
	}

	if p.FillQuota && len(units) > 0 {
		for deficit, i := total-len(units), 0; deficit > 0; deficit, i = deficit-1, i+1 {
			units[i%len(units)].Count++
		}
	}
	return units
}

// selectSingleChunks 按长度降序挑选，优先覆盖新章节，不足时按原文顺序补齐
func selectSingleChunks(chunks []document.Chunk, n int) []document.Chunk {
	if n >= len(chunks) {
		return append([]document.Chunk(nil), chunks...)
	}

	order := make([]int, len(chunks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return chunks[order[a]].CharCount > chunks[order[b]].CharCount
	})

	picked := make([]bool, len(chunks))
	sectionsUsed := make(map[string]bool)
	var selected []document.Chunk
	for _, idx := range order {
		if len(selected) >= n {
			break
		}
		c := chunks[idx]
		if !sectionsUsed[c.Section] || len(selected) < n/2 {
			selected = append(selected, c)
			picked[idx] = true
			sectionsUsed[c.Section] = true
		}
	}

	for i := 0; i < len(chunks) && len(selected) < n; i++ {
		if !picked[i] {
			selected = append(selected, chunks[i])
			picked[i] = true
		}
	}
	return selected
}

// multiChunkUnits 配额一半给相邻分组，其余给章节分组
func multiChunkUnits(chunks []document.Chunk, quota int) []Unit {
	adjacentQuota := quota / 2
	if adjacentQuota < 1 {
		adjacentQuota = 1
	}
	sectionQuota := quota - adjacentQuota

	units := adjacentUnits(chunks, adjacentQuota)
	if sectionQuota > 0 {
		units = append(units, sectionUnits(chunks, sectionQuota)...)
	}
	return units
}

// adjacentUnits 反复取最早的一对未使用的相邻块，第三块足够长时一并纳入
func adjacentUnits(chunks []document.Chunk, quota int) []Unit {
	used := make([]bool, len(chunks))
	var units []Unit

	for len(units) < quota {
		start := -1
		for i := 0; i+1 < len(chunks); i++ {
			if !used[i] && !used[i+1] {
				start = i
				break
			}
		}
		if start < 0 {
			break
		}

		end := start + 2
		if end < len(chunks) && !used[end] && chunks[end].CharCount > SubstantialChunkChars {
			end++
		}
		for i := start; i < end; i++ {
			used[i] = true
		}
		units = append(units, Unit{Chunks: append([]document.Chunk(nil), chunks[start:end]...), Count: 1})
	}
	return units
}

// sectionUnits 同章节至少两块时取前四块成组，按章节首次出现顺序消耗配额
func sectionUnits(chunks []document.Chunk, quota int) []Unit {
	var order []string
	groups := make(map[string][]document.Chunk)
	for _, c := range chunks {
		section := c.Section
		if strings.TrimSpace(section) == "" {
			section = document.LeadSection
		}
		if _, ok := groups[section]; !ok {
			order = append(order, section)
		}
		groups[section] = append(groups[section], c)
	}

	var units []Unit
	for _, section := range order {
		if quota <= 0 {
			break
		}
		members := groups[section]
		if len(members) < 2 {
			continue
		}
		if len(members) > MaxSectionGroupSize {
			members = members[:MaxSectionGroupSize]
		}
		units = append(units, Unit{Chunks: members, Count: 1})
		quota--
	}
	return units
}

// Verify 检查规划结果引用的块都存在且非空
func (p Planner) Verify(chunks []document.Chunk, units []Unit) error {
	known := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		if strings.TrimSpace(c.Content) == "" {
			return integrityError("chunk %s has empty content", c.ID)
		}
		known[c.ID] = true
	}
	for i, u := range units {
		if len(u.Chunks) == 0 {
			return integrityError("unit %d has no chunks", i)
		}
		if u.Count < 1 {
			return integrityError("unit %d has question count %d", i, u.Count)
		}
		for _, c := range u.Chunks {
			if !known[c.ID] {
				return integrityError("unit %d references unknown chunk %s", i, c.ID)
			}
		}
	}
	return nil
}
