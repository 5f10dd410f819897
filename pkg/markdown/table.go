package markdown

import (
	"strings"
	"unicode/utf8"
)

// Table Markdown表格
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// EscapeCell 转义单元格中会破坏表格结构的字符
func EscapeCell(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, `|`, `\|`)
	s = strings.ReplaceAll(s, "\n", "<br>")
	return strings.TrimSpace(s)
}

// UnescapeCell EscapeCell的逆操作
func UnescapeCell(s string) string {
	s = strings.ReplaceAll(s, "<br>", "\n")
	s = strings.ReplaceAll(s, `\|`, `|`)
	return strings.TrimSpace(s)
}

// Render 渲染为列宽对齐的表格，没有表头或数据行时返回空串
func (t Table) Render() string {
	if len(t.Headers) == 0 || len(t.Rows) == 0 {
		return ""
	}

	cols := len(t.Headers)
	rows := make([][]string, len(t.Rows))
	widths := make([]int, cols)
	for i, h := range t.Headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	for r, row := range t.Rows {
		cells := make([]string, cols)
		for i := 0; i < cols && i < len(row); i++ {
			cells[i] = EscapeCell(row[i])
		}
		for i, c := range cells {
			if w := utf8.RuneCountInString(c); w > widths[i] {
				widths[i] = w
			}
		}
		rows[r] = cells
	}

	var b strings.Builder
	if t.Title != "" {
		b.WriteString("# " + t.Title + "\n\n")
	}
	writeRow(&b, t.Headers, widths)
	sep := make([]string, cols)
	for i, w := range widths {
		sep[i] = strings.Repeat("-", w)
	}
	writeRow(&b, sep, widths)
	for _, row := range rows {
		writeRow(&b, row, widths)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func writeRow(b *strings.Builder, cells []string, widths []int) {
	b.WriteString("|")
	for i, c := range cells {
		b.WriteString(" ")
		b.WriteString(c)
		b.WriteString(strings.Repeat(" ", widths[i]-utf8.RuneCountInString(c)))
		b.WriteString(" |")
	}
	b.WriteString("\n")
}

// ParseTable 读取内容中第一张表格的表头与数据行
// 表格之后遇到非表格行即停止
func ParseTable(content string) (headers []string, rows [][]string) {
	inTable := false
	headerPassed := false
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "|") || !strings.HasSuffix(line, "|") || len(line) < 2 {
			if inTable {
				break
			}
			continue
		}
		cells := splitRow(line)
		if !inTable {
			inTable = true
			headers = cells
			continue
		}
		if !headerPassed && isSeparator(line) {
			headerPassed = true
			continue
		}
		rows = append(rows, cells)
	}
	return headers, rows
}

// splitRow 按未转义的竖线切分单元格
func splitRow(line string) []string {
	inner := line[1 : len(line)-1]
	var cells []string
	var cur strings.Builder
	for i := 0; i < len(inner); i++ {
		if inner[i] == '\\' && i+1 < len(inner) && inner[i+1] == '|' {
			cur.WriteString(`\|`)
			i++
			continue
		}
		if inner[i] == '|' {
			cells = append(cells, UnescapeCell(cur.String()))
			cur.Reset()
			continue
		}
		cur.WriteByte(inner[i])
	}
	return append(cells, UnescapeCell(cur.String()))
}

func isSeparator(line string) bool {
	return strings.Trim(line, "-|: ") == ""
}
