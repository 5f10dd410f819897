package questions

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// 响应结构定义
const (
	questionSchemaName = "questions"
	verdictSchemaName  = "verdict"

	questionSchemaJSON = `{
  "type": "object",
  "required": ["questions"],
  "properties": {
    "questions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["question", "answer", "related_chunk_ids", "category"],
        "properties": {
          "question": {"type": "string"},
          "answer": {"type": "string"},
          "related_chunk_ids": {"type": "array", "items": {"type": "string"}},
          "category": {"enum": ["FACTUAL", "INTERPRETATION", "LONG_ANSWER"]}
        }
      }
    }
  }
}`

	verdictSchemaJSON = `{
  "type": "object",
  "required": ["is_correct"],
  "properties": {
    "is_correct": {"type": "boolean"},
    "reason": {"type": "string"}
  }
}`
)

var schemaCache sync.Map // map[string]*jsonschema.Schema

func compiledSchema(name, definition string) (*jsonschema.Schema, error) {
	if cached, ok := schemaCache.Load(name); ok {
		return cached.(*jsonschema.Schema), nil
	}

	var parsed any
	if err := json.Unmarshal([]byte(definition), &parsed); err != nil {
		return nil, fmt.Errorf("parse schema %q: %w", name, err)
	}
	c := jsonschema.NewCompiler()
	url := fmt.Sprintf("schema://%s.json", name)
	if err := c.AddResource(url, parsed); err != nil {
		return nil, fmt.Errorf("add resource: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %q: %w", name, err)
	}
	schemaCache.Store(name, compiled)
	return compiled, nil
}

// DecodeQuestions 校验模型返回的对象并转换为问答条目
func DecodeQuestions(parsed map[string]any, raw string) ([]QuestionItem, error) {
	if parsed == nil {
		return nil, &ValidationError{Reason: "empty response object", Raw: raw}
	}

	schema, err := compiledSchema(questionSchemaName, questionSchemaJSON)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(parsed); err != nil {
		return nil, &ValidationError{Reason: "schema validation failed", Raw: raw, Err: err}
	}

	data, err := json.Marshal(parsed)
	if err != nil {
		return nil, &ValidationError{Reason: "re-encode response", Raw: raw, Err: err}
	}
	var body struct {
		Questions []QuestionItem `json:"questions"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, &ValidationError{Reason: "decode questions", Raw: raw, Err: err}
	}
	for i := range body.Questions {
		body.Questions[i].Question = strings.TrimSpace(body.Questions[i].Question)
		body.Questions[i].Answer = strings.TrimSpace(body.Questions[i].Answer)
		body.Questions[i].IsFallback = false
	}
	return body.Questions, nil
}

// Verdict 单条问答的校验结论
type Verdict struct {
	IsCorrect bool   `json:"is_correct"`
	Reason    string `json:"reason"`
}

// DecodeVerdict 校验并解析校验结论
func DecodeVerdict(parsed map[string]any, raw string) (Verdict, error) {
	if parsed == nil {
		return Verdict{}, &ValidationError{Reason: "empty verdict", Raw: raw}
	}
	schema, err := compiledSchema(verdictSchemaName, verdictSchemaJSON)
	if err != nil {
		return Verdict{}, err
	}
	if err := schema.Validate(parsed); err != nil {
		return Verdict{}, &ValidationError{Reason: "verdict schema validation failed", Raw: raw, Err: err}
	}
	v := Verdict{IsCorrect: parsed["is_correct"].(bool)}
	if reason, ok := parsed["reason"].(string); ok {
		v.Reason = strings.TrimSpace(reason)
	}
	return v, nil
}
