package questions

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/fyerfyer/rag-dataset/internal/document"
)

//go:embed prompts.yaml
var defaultPromptsYAML []byte

// CategoryDef 提示中展示的类别定义
type CategoryDef struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Prompts 提示模板集合，加载后只读
type Prompts struct {
	Categories             []CategoryDef `yaml:"categories"`
	SystemPrompt           string        `yaml:"system_prompt"`
	SingleChunkPrompt      string        `yaml:"single_chunk_prompt"`
	MultiChunkPrompt       string        `yaml:"multi_chunk_prompt"`
	ValidationSystemPrompt string        `yaml:"validation_system_prompt"`
	ValidationPrompt       string        `yaml:"validation_prompt"`

	system     string
	single     *template.Template
	multi      *template.Template
	validation *template.Template
}

var (
	defaultPromptsOnce sync.Once
	defaultPrompts     *Prompts
	defaultPromptsErr  error
)

// DefaultPrompts 返回内置模板，首次调用时解析
func DefaultPrompts() (*Prompts, error) {
	defaultPromptsOnce.Do(func() {
		defaultPrompts, defaultPromptsErr = ParsePrompts(defaultPromptsYAML)
	})
	return defaultPrompts, defaultPromptsErr
}

// LoadPrompts 从YAML读取模板
func LoadPrompts(r io.Reader) (*Prompts, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts: %w", err)
	}
	return ParsePrompts(data)
}

// LoadPromptsFile 从文件读取模板，path为空时使用内置模板
func LoadPromptsFile(path string) (*Prompts, error) {
	if path == "" {
		return DefaultPrompts()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open prompts file: %w", err)
	}
	defer f.Close()
	return LoadPrompts(f)
}

// ParsePrompts 解析YAML并编译模板
func ParsePrompts(data []byte) (*Prompts, error) {
	var p Prompts
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse prompts: %w", err)
	}

	for name, body := range map[string]string{
		"system_prompt":       p.SystemPrompt,
		"single_chunk_prompt": p.SingleChunkPrompt,
		"multi_chunk_prompt":  p.MultiChunkPrompt,
	} {
		if strings.TrimSpace(body) == "" {
			return nil, fmt.Errorf("prompts: %s is required", name)
		}
	}
	if len(p.Categories) == 0 {
		for _, c := range Categories {
			p.Categories = append(p.Categories, CategoryDef{Name: string(c)})
		}
	}

	system, err := template.New("system").Parse(p.SystemPrompt)
	if err != nil {
		return nil, fmt.Errorf("prompts: system_prompt: %w", err)
	}
	var b strings.Builder
	if err := system.Execute(&b, map[string]string{"Categories": p.categoryBlock()}); err != nil {
		return nil, fmt.Errorf("prompts: system_prompt: %w", err)
	}
	p.system = b.String()

	if p.single, err = template.New("single").Parse(p.SingleChunkPrompt); err != nil {
		return nil, fmt.Errorf("prompts: single_chunk_prompt: %w", err)
	}
	if p.multi, err = template.New("multi").Parse(p.MultiChunkPrompt); err != nil {
		return nil, fmt.Errorf("prompts: multi_chunk_prompt: %w", err)
	}
	if p.ValidationPrompt != "" {
		if p.validation, err = template.New("validation").Parse(p.ValidationPrompt); err != nil {
			return nil, fmt.Errorf("prompts: validation_prompt: %w", err)
		}
	}
	return &p, nil
}

// categoryBlock 渲染编号的类别说明
func (p *Prompts) categoryBlock() string {
	lines := make([]string, len(p.Categories))
	for i, c := range p.Categories {
		lines[i] = fmt.Sprintf("%d. **%s**: %s", i+1, c.Name, strings.TrimSpace(c.Description))
	}
	return strings.Join(lines, "\n")
}

// System 返回渲染好的系统提示
func (p *Prompts) System() string {
	return p.system
}

type promptChunk struct {
	ID      string
	Content string
}

// UnitPrompt 根据单元大小选择单块或多块模板
func (p *Prompts) UnitPrompt(unit Unit) (string, error) {
	if unit.IsMulti() {
		return p.MultiChunk(unit.Chunks, unit.Count)
	}
	if len(unit.Chunks) == 0 {
		return "", fmt.Errorf("unit has no chunks")
	}
	return p.SingleChunk(unit.Chunks[0], unit.Count)
}

// SingleChunk 渲染单块提示，带章节上下文
func (p *Prompts) SingleChunk(chunk document.Chunk, count int) (string, error) {
	context := ""
	if chunk.Section != "" || chunk.HeadingPath != "" {
		context = fmt.Sprintf("\n\nContext: This text is from the section '%s' under '%s'.", chunk.Section, chunk.HeadingPath)
	}

	var b strings.Builder
	err := p.single.Execute(&b, map[string]any{
		"Count":      count,
		"ChunkID":    chunk.ID,
		"Context":    context,
		"Content":    chunk.Content,
		"Categories": p.categoryBlock(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render single chunk prompt: %w", err)
	}
	return b.String(), nil
}

// MultiChunk 渲染多块提示，各块以分隔行标出ID
func (p *Prompts) MultiChunk(chunks []document.Chunk, count int) (string, error) {
	var sections []string
	seen := make(map[string]bool)
	items := make([]promptChunk, len(chunks))
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		items[i] = promptChunk{ID: c.ID, Content: c.Content}
		ids[i] = c.ID
		if c.Section != "" && !seen[c.Section] {
			seen[c.Section] = true
			sections = append(sections, c.Section)
		}
	}

	context := ""
	if len(sections) > 0 {
		context = "\n\nContext: These chunks are from sections: " + strings.Join(sections, ", ")
	}
	idList, _ := json.Marshal(ids)

	var b strings.Builder
	err := p.multi.Execute(&b, map[string]any{
		"Count":      count,
		"Context":    context,
		"Chunks":     items,
		"ChunkIDs":   string(idList),
		"Categories": p.categoryBlock(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render multi chunk prompt: %w", err)
	}
	return b.String(), nil
}

// ValidationMessages 渲染单条问答校验的系统与用户提示
func (p *Prompts) ValidationMessages(question, answer, chunksContent string) (string, string, error) {
	if p.validation == nil {
		return "", "", fmt.Errorf("prompts: validation_prompt is not configured")
	}
	var b strings.Builder
	err := p.validation.Execute(&b, map[string]string{
		"Question":      question,
		"Answer":        answer,
		"ChunksContent": chunksContent,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to render validation prompt: %w", err)
	}
	return p.ValidationSystemPrompt, b.String(), nil
}
