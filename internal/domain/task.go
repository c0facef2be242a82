package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wms-platform/warehouse-core/pkg/tenant"
)

// TaskType selects the finalization applied when the last step completes
type TaskType string

const (
	TaskReceive  TaskType = "RECEIVE"
	TaskPutaway  TaskType = "PUTAWAY"
	TaskPick     TaskType = "PICK"
	TaskPack     TaskType = "PACK"
	TaskShip     TaskType = "SHIP"
	TaskCount    TaskType = "COUNT"
	TaskWavePick TaskType = "WAVE_PICK"
)

// TaskStatus is the task lifecycle. DONE and CANCELLED are terminal;
// EXCEPTION is resumable.
type TaskStatus string

const (
	TaskOpen            TaskStatus = "OPEN"
	TaskInProgress      TaskStatus = "IN_PROGRESS"
	TaskDone            TaskStatus = "DONE"
	TaskStatusException TaskStatus = "EXCEPTION"
	TaskCancelled       TaskStatus = "CANCELLED"
)

// SourceType names the document a task was generated from
type SourceType string

const (
	SourceReceipt SourceType = "RECEIPT"
	SourceOrder   SourceType = "ORDER"
	SourceCount   SourceType = "COUNT"
	SourceWave    SourceType = "WAVE"
	SourceManual  SourceType = "MANUAL"
)

// DefaultTaskPriority is used when a generator does not set one. Lower runs first.
const DefaultTaskPriority = 50

// Task is a unit of guided physical work
type Task struct {
	ID          string
	TenantID    string
	FacilityID  string
	Type        TaskType
	Status      TaskStatus
	Priority    int
	Assignee    string
	SourceType  SourceType
	SourceID    string
	Context     TaskContext
	Steps       []TaskStep
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
	CompletedBy string

	DomainEvents []DomainEvent
}

// NewTask creates an OPEN task with its steps ordered by sequence
func NewTask(tc tenant.Context, taskType TaskType, sourceType SourceType, sourceID string, taskCtx TaskContext, steps []TaskStep) *Task {
	now := time.Now().UTC()
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Seq < steps[j].Seq })
	t := &Task{
		ID:         uuid.New().String(),
		TenantID:   tc.TenantID,
		FacilityID: tc.FacilityID,
		Type:       taskType,
		Status:     TaskOpen,
		Priority:   DefaultTaskPriority,
		SourceType: sourceType,
		SourceID:   sourceID,
		Context:    taskCtx,
		Steps:      steps,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	t.AddDomainEvent(&TaskCreatedEvent{
		TaskID:     t.ID,
		Type:       string(taskType),
		SourceType: string(sourceType),
		SourceID:   sourceID,
		StepCount:  len(steps),
		CreatedAt:  now,
	})
	return t
}

// Tenant returns the scope the task belongs to
func (t *Task) Tenant() tenant.Context {
	return tenant.Context{TenantID: t.TenantID, FacilityID: t.FacilityID}
}

// IsTerminal reports whether the task can no longer change
func (t *Task) IsTerminal() bool {
	return t.Status == TaskDone || t.Status == TaskCancelled
}

// Step returns the step with the given id
func (t *Task) Step(stepID string) (*TaskStep, error) {
	for i := range t.Steps {
		if t.Steps[i].ID == stepID {
			return &t.Steps[i], nil
		}
	}
	return nil, ErrStepNotFound
}

// NextPendingStep returns the lowest-sequence step not yet DONE
func (t *Task) NextPendingStep() *TaskStep {
	for i := range t.Steps {
		if !t.Steps[i].IsDone() {
			return &t.Steps[i]
		}
	}
	return nil
}

// AllStepsDone reports whether every step is DONE
func (t *Task) AllStepsDone() bool {
	return t.NextPendingStep() == nil
}

// StepOutcome is the result of a step completion attempt
type StepOutcome struct {
	Step            *TaskStep
	Replayed        bool
	Exception       *TaskException
	ReadyToFinalize bool
}

// CompleteStep validates value against the step expectation. A mismatch does
// not complete the step; it parks the task in EXCEPTION and returns the
// exception to record.
func (t *Task) CompleteStep(stepID, value, actor string) (StepOutcome, error) {
	step, err := t.Step(stepID)
	if err != nil {
		return StepOutcome{}, err
	}
	if step.IsDone() {
		return StepOutcome{Step: step, Replayed: true}, nil
	}
	if t.IsTerminal() {
		return StepOutcome{}, ErrTaskClosed
	}
	if t.Status == TaskStatusException {
		return StepOutcome{}, ErrTaskInException
	}
	if next := t.NextPendingStep(); next == nil || next.ID != step.ID {
		return StepOutcome{}, ErrStepOutOfOrder
	}

	now := time.Now().UTC()
	if mismatch := step.Expected.Check(value); mismatch != nil {
		t.Status = TaskStatusException
		t.UpdatedAt = now
		exc := NewMismatchException(t, step, mismatch, actor)
		t.AddDomainEvent(&TaskExceptionRaisedEvent{
			ExceptionID: exc.ID,
			TaskID:      t.ID,
			StepID:      step.ID,
			Kind:        string(mismatch.Kind),
			Expected:    mismatch.Expected,
			Got:         mismatch.Got,
			Actor:       actor,
			RaisedAt:    now,
		})
		return StepOutcome{Step: step, Exception: exc}, nil
	}

	return t.markStepDone(step, value, actor, now), nil
}

// AcceptOverride completes the pending step of an EXCEPTION task with the
// value that failed validation. The task is back in progress afterwards.
func (t *Task) AcceptOverride(stepID, value, actor string) (StepOutcome, error) {
	if t.IsTerminal() {
		return StepOutcome{}, ErrTaskClosed
	}
	if t.Status != TaskStatusException {
		return StepOutcome{}, ErrTaskNotInException
	}
	step, err := t.Step(stepID)
	if err != nil {
		return StepOutcome{}, err
	}
	if next := t.NextPendingStep(); next == nil || next.ID != step.ID {
		return StepOutcome{}, ErrStepOutOfOrder
	}
	return t.markStepDone(step, value, actor, time.Now().UTC()), nil
}

func (t *Task) markStepDone(step *TaskStep, value, actor string, now time.Time) StepOutcome {
	step.Status = StepDone
	step.Captured = strings.TrimSpace(value)
	step.CompletedBy = actor
	step.CompletedAt = &now
	t.Status = TaskInProgress
	if t.Assignee == "" {
		t.Assignee = actor
	}
	t.UpdatedAt = now
	t.AddDomainEvent(&TaskStepCompletedEvent{
		TaskID:      t.ID,
		StepID:      step.ID,
		Kind:        string(step.Kind()),
		Value:       step.Captured,
		Actor:       actor,
		CompletedAt: now,
	})
	return StepOutcome{Step: step, ReadyToFinalize: t.AllStepsDone()}
}

// MarkDone closes the task after finalization
func (t *Task) MarkDone(actor string) error {
	if t.IsTerminal() {
		return ErrTaskClosed
	}
	if !t.AllStepsDone() {
		return ErrStepOutOfOrder
	}
	now := time.Now().UTC()
	t.Status = TaskDone
	t.CompletedAt = &now
	t.CompletedBy = actor
	t.UpdatedAt = now
	t.AddDomainEvent(&TaskCompletedEvent{
		TaskID:      t.ID,
		Type:        string(t.Type),
		Actor:       actor,
		CompletedAt: now,
	})
	return nil
}

// Assign hands the task to assignee
func (t *Task) Assign(assignee string) error {
	if t.IsTerminal() {
		return ErrTaskClosed
	}
	if assignee == "" {
		return ErrMissingActor
	}
	t.Assignee = assignee
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// Cancel stops the task. Finalization never runs for a cancelled task.
func (t *Task) Cancel(actor, reason string) error {
	if t.IsTerminal() {
		return ErrTaskClosed
	}
	now := time.Now().UTC()
	t.Status = TaskCancelled
	t.CompletedAt = &now
	t.CompletedBy = actor
	t.UpdatedAt = now
	t.AddDomainEvent(&TaskCancelledEvent{
		TaskID:      t.ID,
		Type:        string(t.Type),
		Actor:       actor,
		Reason:      reason,
		CancelledAt: now,
	})
	return nil
}

// Resume returns an EXCEPTION task to work
func (t *Task) Resume() error {
	if t.Status != TaskStatusException {
		return ErrTaskNotInException
	}
	t.Status = TaskOpen
	for i := range t.Steps {
		if t.Steps[i].IsDone() {
			t.Status = TaskInProgress
			break
		}
	}
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// CapturedValue returns the last captured value for a step kind
func (t *Task) CapturedValue(kind StepKind) (string, bool) {
	value, found := "", false
	for i := range t.Steps {
		s := &t.Steps[i]
		if s.Kind() == kind && s.IsDone() && s.Captured != "" {
			value, found = s.Captured, true
		}
	}
	return value, found
}

// CapturedQuantity returns the first captured ENTER_QTY value
func (t *Task) CapturedQuantity() (decimal.Decimal, bool) {
	for i := range t.Steps {
		if qty, ok := t.Steps[i].CapturedQuantity(); ok {
			return qty, true
		}
	}
	return decimal.Zero, false
}

// CapturedLineQuantity returns the ENTER_QTY captured for a wave plan line
func (t *Task) CapturedLineQuantity(stop, line int) (decimal.Decimal, bool) {
	for i := range t.Steps {
		s := &t.Steps[i]
		if s.Ref != nil && s.Ref.Stop == stop && s.Ref.Line == line {
			if qty, ok := s.CapturedQuantity(); ok {
				return qty, true
			}
		}
	}
	return decimal.Zero, false
}

// AddDomainEvent adds a domain event
func (t *Task) AddDomainEvent(event DomainEvent) {
	t.DomainEvents = append(t.DomainEvents, event)
}

// PullDomainEvents returns and clears pending domain events
func (t *Task) PullDomainEvents() []DomainEvent {
	events := t.DomainEvents
	t.DomainEvents = nil
	return events
}
