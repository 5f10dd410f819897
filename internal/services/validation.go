package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/rag-dataset/internal/dataset"
	"github.com/fyerfyer/rag-dataset/internal/llm"
	"github.com/fyerfyer/rag-dataset/internal/questions"
	"github.com/fyerfyer/rag-dataset/internal/repository"
	"github.com/fyerfyer/rag-dataset/pkg/storage"
)

// 校验调用参数
const (
	validationMaxTokens   = 2048
	validationTemperature = 0.1
)

// 校验结论文案
const (
	reasonNoQuestions = "No questions to validate"
	reasonAllCorrect  = "All question-answer pairs are correct"
)

// ValidationResult 数据集校验结果
type ValidationResult struct {
	ArticleID      string `json:"article_id"`
	IsCorrect      bool   `json:"is_correct"`
	Reason         string `json:"reason"`
	ValidatedCount int    `json:"validated_count"`
	TotalQuestions int    `json:"total_questions"`
}

// ValidationService 用大模型逐条核对问答与原文是否一致
type ValidationService struct {
	articles repository.ArticleRepository
	store    *dataset.Store
	client   llm.Client
	prompts  *questions.Prompts
	logger   *logrus.Logger
}

// NewValidationService 创建校验服务，prompts为空时使用内置模板
func NewValidationService(
	articles repository.ArticleRepository,
	store *dataset.Store,
	client llm.Client,
	prompts *questions.Prompts,
	logger *logrus.Logger,
) (*ValidationService, error) {
	if prompts == nil {
		var err error
		if prompts, err = questions.DefaultPrompts(); err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &ValidationService{
		articles: articles,
		store:    store,
		client:   client,
		prompts:  prompts,
		logger:   logger,
	}, nil
}

// Validate 校验文章数据集中的全部问答
// 某条问答缺少块内容时判定为错误并停止；单条调用失败记为错误后继续
func (s *ValidationService) Validate(ctx context.Context, articleID string) (*ValidationResult, error) {
	article, err := s.articles.Get(ctx, articleID)
	if err != nil {
		return nil, err
	}
	ds, err := s.store.ReadDataset(ctx, articleID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, articleID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}

	result := &ValidationResult{
		ArticleID:      articleID,
		IsCorrect:      true,
		TotalQuestions: len(ds.Items),
	}
	if len(ds.Items) == 0 {
		result.Reason = reasonNoQuestions
		return result, nil
	}

	chunks, err := s.store.ReadChunks(ctx, articleID)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunks: %w", err)
	}
	contents := make(map[string]string, len(chunks))
	for _, c := range chunks {
		contents[c.ID] = c.Content
	}

	logger := s.logger.WithFields(logrus.Fields{
		"article_id": articleID,
		"title":      article.Title,
	})
	logger.WithField("total", len(ds.Items)).Info("Starting dataset validation")

	var firstFailure string
	markFailed := func(reason string) {
		result.IsCorrect = false
		if firstFailure == "" {
			firstFailure = reason
		}
	}

	for i, item := range ds.Items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunksContent := joinChunkContents(item.RelatedChunkIDs, contents)
		if chunksContent == "" {
			markFailed("No chunk content found for question: " + item.Question)
			logger.WithField("question_index", i+1).Warn("Question has no chunk content, stopping validation")
			break
		}

		verdict, err := s.validateItem(ctx, item, chunksContent)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.WithError(err).WithField("question_index", i+1).Error("Failed to validate question")
			markFailed("Validation failed: " + err.Error())
			continue
		}

		result.ValidatedCount++
		if !verdict.IsCorrect {
			markFailed(verdict.Reason)
			logger.WithFields(logrus.Fields{
				"question_index": i + 1,
				"reason":         verdict.Reason,
			}).Info("Question marked incorrect")
		}
	}

	if result.IsCorrect {
		result.Reason = reasonAllCorrect
	} else {
		result.Reason = firstFailure
	}
	logger.WithFields(logrus.Fields{
		"is_correct": result.IsCorrect,
		"validated":  result.ValidatedCount,
	}).Info("Dataset validation finished")
	return result, nil
}

func (s *ValidationService) validateItem(ctx context.Context, item questions.QuestionItem, chunksContent string) (questions.Verdict, error) {
	system, user, err := s.prompts.ValidationMessages(item.Question, item.Answer, chunksContent)
	if err != nil {
		return questions.Verdict{}, err
	}
	resp, err := s.client.GenerateJSON(ctx,
		[]llm.Message{llm.SystemMessage(system), llm.UserMessage(user)},
		llm.WithGenerateMaxTokens(validationMaxTokens),
		llm.WithGenerateTemperature(validationTemperature),
	)
	if err != nil {
		return questions.Verdict{}, err
	}
	parsed := resp.Parsed
	if parsed == nil {
		if parsed, err = llm.ParseJSONObject(resp.Content); err != nil {
			return questions.Verdict{}, err
		}
	}
	return questions.DecodeVerdict(parsed, resp.Content)
}

// joinChunkContents 按问答引用顺序拼接块内容，缺失的块被跳过
func joinChunkContents(ids []string, contents map[string]string) string {
	var b strings.Builder
	for _, id := range ids {
		content, ok := contents[id]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "\n\n--- Chunk %s ---\n%s", id, content)
	}
	return b.String()
}
