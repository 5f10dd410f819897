package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Stage 导入流水线阶段
type Stage string

const (
	StageQueued         Stage = "QUEUED"
	StageFetching       Stage = "FETCHING"
	StageCleaning       Stage = "CLEANING"
	StageSplitting      Stage = "SPLITTING"
	StageWriteMarkdown  Stage = "WRITE_MARKDOWN"
	StageQuestionGen    Stage = "QUESTION_GEN"
	StageWriteDatasetMD Stage = "WRITE_DATASET_MD"
	StageDone           Stage = "DONE"
	StageFailed         Stage = "FAILED"
)

// Terminal 是否为终止阶段
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// RunStatus 导入任务状态
type RunStatus string

const (
	RunStatusStarted   RunStatus = "started"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusExisting  RunStatus = "existing"
	RunStatusFailed    RunStatus = "failed"
)

// IngestRun 一次导入的执行记录
type IngestRun struct {
	ID         string                            `gorm:"primaryKey;size:20" json:"id"`
	ArticleID  string                            `gorm:"size:64;index" json:"article_id,omitempty"`
	Source     ArticleSource                     `gorm:"size:20;not null" json:"source"`
	Input      string                            `gorm:"type:text" json:"input"` // URL或上传文件名
	Stage      Stage                             `gorm:"size:20;not null;index" json:"stage"`
	Status     RunStatus                         `gorm:"size:20;not null" json:"status"`
	Message    string                            `gorm:"type:text" json:"message"`
	Error      string                            `gorm:"type:text" json:"error,omitempty"`
	Options    datatypes.JSONType[IngestOptions] `json:"options"`
	CreatedAt  time.Time                         `gorm:"not null;index" json:"created_at"`
	UpdatedAt  time.Time                         `json:"updated_at"`
	FinishedAt *time.Time                        `json:"finished_at,omitempty"`
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (r *IngestRun) BeforeCreate(tx *gorm.DB) (err error) {
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	return nil
}

// BeforeUpdate GORM的钩子函数，更新记录前自动设置更新时间
func (r *IngestRun) BeforeUpdate(tx *gorm.DB) (err error) {
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// TableName 明确指定表名
func (IngestRun) TableName() string {
	return "ingest_runs"
}

// NewRunID 生成 run_ 加8位十六进制的运行ID
func NewRunID() string {
	return "run_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
