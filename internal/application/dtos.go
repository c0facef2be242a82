package application

import (
	"time"

	"github.com/wms-platform/warehouse-core/internal/domain"
)

// TaskDTO represents a task in responses
type TaskDTO struct {
	ID          string             `json:"id"`
	Type        string             `json:"type"`
	Status      string             `json:"status"`
	Priority    int                `json:"priority"`
	Assignee    string             `json:"assignee,omitempty"`
	SourceType  string             `json:"sourceType"`
	SourceID    string             `json:"sourceId"`
	Context     domain.TaskContext `json:"context"`
	Steps       []StepDTO          `json:"steps"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
	CompletedAt *time.Time         `json:"completedAt,omitempty"`
	CompletedBy string             `json:"completedBy,omitempty"`
}

// StepDTO represents one guided step
type StepDTO struct {
	ID          string                 `json:"id"`
	Seq         int                    `json:"seq"`
	Kind        string                 `json:"kind"`
	Prompt      string                 `json:"prompt"`
	Expected    domain.ExpectationSpec `json:"expected"`
	Status      string                 `json:"status"`
	Captured    string                 `json:"captured,omitempty"`
	CompletedBy string                 `json:"completedBy,omitempty"`
	CompletedAt *time.Time             `json:"completedAt,omitempty"`
	Ref         *domain.StepRef        `json:"ref,omitempty"`
}

// StepCompletionDTO is the outcome of a step completion
type StepCompletionDTO struct {
	Task      *TaskDTO              `json:"task"`
	Step      StepDTO               `json:"step"`
	Replayed  bool                  `json:"replayed"`
	Finalized bool                  `json:"finalized"`
	Exception *domain.TaskException `json:"exception,omitempty"`
}

// WaveReleaseDTO is the outcome of a wave release
type WaveReleaseDTO struct {
	Wave        *domain.Wave                        `json:"wave"`
	PickTask    *TaskDTO                            `json:"pickTask"`
	Allocations map[string]*domain.AllocationResult `json:"allocations"`
}

// ScanResultDTO is the outcome of one submitted scan
type ScanResultDTO struct {
	OK       bool                `json:"ok"`
	Message  string              `json:"message,omitempty"`
	Session  *domain.ScanSession `json:"session"`
	Event    *domain.ScanEvent   `json:"event"`
	Executed string              `json:"executed,omitempty"`
}
