package application

import "github.com/wms-platform/warehouse-core/internal/domain"

// ToTaskDTO converts a domain Task to a TaskDTO
func ToTaskDTO(t *domain.Task) *TaskDTO {
	if t == nil {
		return nil
	}
	steps := make([]StepDTO, 0, len(t.Steps))
	for i := range t.Steps {
		steps = append(steps, ToStepDTO(&t.Steps[i]))
	}
	return &TaskDTO{
		ID:          t.ID,
		Type:        string(t.Type),
		Status:      string(t.Status),
		Priority:    t.Priority,
		Assignee:    t.Assignee,
		SourceType:  string(t.SourceType),
		SourceID:    t.SourceID,
		Context:     t.Context,
		Steps:       steps,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		CompletedAt: t.CompletedAt,
		CompletedBy: t.CompletedBy,
	}
}

// ToStepDTO converts a domain TaskStep to a StepDTO
func ToStepDTO(s *domain.TaskStep) StepDTO {
	return StepDTO{
		ID:          s.ID,
		Seq:         s.Seq,
		Kind:        string(s.Kind()),
		Prompt:      s.Prompt,
		Expected:    s.Expected.Spec(),
		Status:      string(s.Status),
		Captured:    s.Captured,
		CompletedBy: s.CompletedBy,
		CompletedAt: s.CompletedAt,
		Ref:         s.Ref,
	}
}

// ToTaskDTOs converts a slice of domain Tasks
func ToTaskDTOs(tasks []*domain.Task) []*TaskDTO {
	out := make([]*TaskDTO, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, ToTaskDTO(t))
	}
	return out
}
