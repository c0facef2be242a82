package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPutawayTask() *Task {
	steps := []TaskStep{
		NewStep(30, "Confirm", ConfirmExpectation{}),
		NewStep(10, "Scan source", LocationExpectation{Code: "STAGE"}),
		NewStep(20, "Scan destination", LocationExpectation{Code: "Z1-A01-B01"}),
	}
	return NewTask(testTenant, TaskPutaway, SourceManual, "m1", TaskContext{Putaway: &PutawayContext{ItemID: "i1"}}, steps)
}

func TestNewTask_OrdersStepsBySequence(t *testing.T) {
	task := newPutawayTask()
	require.Len(t, task.Steps, 3)
	assert.Equal(t, 10, task.Steps[0].Seq)
	assert.Equal(t, 30, task.Steps[2].Seq)
	assert.Equal(t, TaskOpen, task.Status)
	assert.Equal(t, DefaultTaskPriority, task.Priority)
}

func TestTask_CompleteStep(t *testing.T) {
	task := newPutawayTask()
	task.PullDomainEvents()

	out, err := task.CompleteStep(task.Steps[0].ID, "STAGE", "alice")
	require.NoError(t, err)
	assert.False(t, out.ReadyToFinalize)
	assert.Equal(t, TaskInProgress, task.Status)
	assert.Equal(t, "alice", task.Assignee)

	out, err = task.CompleteStep(task.Steps[0].ID, "ANYTHING", "alice")
	require.NoError(t, err)
	assert.True(t, out.Replayed, "completing a done step is a no-op")

	_, err = task.CompleteStep(task.Steps[2].ID, "", "alice")
	assert.ErrorIs(t, err, ErrStepOutOfOrder)

	_, err = task.CompleteStep(task.Steps[1].ID, "Z1-A01-B01", "alice")
	require.NoError(t, err)
	out, err = task.CompleteStep(task.Steps[2].ID, "", "alice")
	require.NoError(t, err)
	assert.True(t, out.ReadyToFinalize)

	require.NoError(t, task.MarkDone("alice"))
	assert.Equal(t, TaskDone, task.Status)
	assert.ErrorIs(t, task.MarkDone("alice"), ErrTaskClosed)
}

func TestTask_MismatchRaisesException(t *testing.T) {
	task := newPutawayTask()
	task.PullDomainEvents()

	out, err := task.CompleteStep(task.Steps[0].ID, "DOCK-1", "alice")
	require.NoError(t, err)
	require.NotNil(t, out.Exception)
	assert.Equal(t, ExceptionWrongLocation, out.Exception.Kind)
	assert.Equal(t, "STAGE", out.Exception.Data.Expected)
	assert.Equal(t, "DOCK-1", out.Exception.Data.Got)
	assert.Equal(t, TaskStatusException, task.Status)
	assert.False(t, task.Steps[0].IsDone())

	events := task.PullDomainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "wms.task.exception-raised", events[0].EventType())

	_, err = task.CompleteStep(task.Steps[0].ID, "STAGE", "alice")
	assert.ErrorIs(t, err, ErrTaskInException)

	require.NoError(t, task.Resume())
	assert.Equal(t, TaskOpen, task.Status)
	_, err = task.CompleteStep(task.Steps[0].ID, "STAGE", "alice")
	assert.NoError(t, err)
	assert.ErrorIs(t, task.Resume(), ErrTaskNotInException)
}

func TestQuantityExpectation_Check(t *testing.T) {
	limit := dec("5")
	exp := QuantityExpectation{Max: &limit}

	tests := []struct {
		value string
		want  ExceptionKind
	}{
		{"5", ""},
		{"0", ""},
		{"2.5", ""},
		{"6", ExceptionQtyExceedsExpected},
		{"-1", ExceptionInvalidQty},
		{"abc", ExceptionInvalidQty},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			m := exp.Check(tt.value)
			if tt.want == "" {
				assert.Nil(t, m)
				return
			}
			require.NotNil(t, m)
			assert.Equal(t, tt.want, m.Kind)
		})
	}
}

func TestContainerExpectation_AllowAny(t *testing.T) {
	open := ContainerExpectation{AllowAny: true}
	assert.Nil(t, open.Check("LPN-1"))
	assert.NotNil(t, open.Check("  "))

	fixed := ContainerExpectation{Code: "TOTE-01"}
	m := fixed.Check("TOTE-02")
	require.NotNil(t, m)
	assert.Equal(t, ExceptionWrongContainer, m.Kind)
}

func TestExpectationSpec_RoundTrip(t *testing.T) {
	limit := dec("3")
	for _, exp := range []StepExpectation{
		LocationExpectation{Code: "A"},
		ItemExpectation{SKU: "S"},
		LotExpectation{Code: "L"},
		ContainerExpectation{Code: "C", AllowAny: true},
		QuantityExpectation{Max: &limit},
		ConfirmExpectation{},
	} {
		got, err := exp.Spec().Expectation()
		require.NoError(t, err)
		assert.Equal(t, exp, got)
	}
}

func TestTask_CancelIsTerminal(t *testing.T) {
	task := newPutawayTask()
	require.NoError(t, task.Cancel("bob", "damaged"))
	assert.Equal(t, TaskCancelled, task.Status)
	assert.ErrorIs(t, task.Cancel("bob", ""), ErrTaskClosed)
	_, err := task.CompleteStep(task.Steps[0].ID, "STAGE", "bob")
	assert.ErrorIs(t, err, ErrTaskClosed)
}

func TestShortPickException(t *testing.T) {
	task := NewTask(testTenant, TaskPick, SourceOrder, "o1", TaskContext{}, nil)
	exc := NewShortPickException(task, ShortPick{OrderID: "o1", AllocationID: "a1", Expected: dec("10"), Picked: dec("6")}, "alice")

	assert.Equal(t, ExceptionShortPick, exc.Kind)
	require.NotNil(t, exc.Data.RemainingQty)
	assert.True(t, exc.Data.RemainingQty.Equal(dec("4")))

	types := []string{}
	for _, e := range exc.PullDomainEvents() {
		types = append(types, e.EventType())
	}
	assert.ElementsMatch(t, []string{"wms.exception.raised", "wms.exception.short-pick-recorded"}, types)

	require.NoError(t, exc.Resolve("sup", "recounted"))
	assert.ErrorIs(t, exc.Resolve("sup", ""), ErrExceptionClosed)
}

func TestTask_AcceptOverride(t *testing.T) {
	task := newPutawayTask()
	_, err := task.AcceptOverride(task.Steps[0].ID, "DOCK-1", "sup")
	assert.ErrorIs(t, err, ErrTaskNotInException)

	out, err := task.CompleteStep(task.Steps[0].ID, "DOCK-1", "alice")
	require.NoError(t, err)
	require.NotNil(t, out.Exception)

	_, err = task.AcceptOverride(task.Steps[1].ID, "Z9", "sup")
	assert.ErrorIs(t, err, ErrStepOutOfOrder)

	out, err = task.AcceptOverride(task.Steps[0].ID, " DOCK-1 ", "sup")
	require.NoError(t, err)
	assert.False(t, out.ReadyToFinalize)
	assert.Equal(t, TaskInProgress, task.Status)
	assert.Equal(t, "DOCK-1", task.Steps[0].Captured)
	assert.Equal(t, "sup", task.Steps[0].CompletedBy)

	require.NoError(t, task.Cancel("bob", ""))
	_, err = task.AcceptOverride(task.Steps[1].ID, "Z9", "sup")
	assert.ErrorIs(t, err, ErrTaskClosed)
}

func TestTaskException_Override(t *testing.T) {
	task := newPutawayTask()
	out, err := task.CompleteStep(task.Steps[0].ID, "DOCK-1", "alice")
	require.NoError(t, err)
	exc := out.Exception

	assert.ErrorIs(t, exc.RequestOverride("alice", ""), ErrMissingReason)
	assert.ErrorIs(t, exc.RequestOverride("", "relabelled"), ErrMissingActor)
	assert.ErrorIs(t, exc.DecideOverride("sup", "", true), ErrNoPendingOverride)

	require.NoError(t, exc.RequestOverride("alice", "relabelled"))
	assert.ErrorIs(t, exc.RequestOverride("alice", "again"), ErrOverridePending)

	require.NoError(t, exc.DecideOverride("sup", "", false))
	assert.Equal(t, OverrideRejected, exc.Override.Status)
	assert.Equal(t, ExceptionOpen, exc.Status)

	require.NoError(t, exc.RequestOverride("alice", "still relabelled"))
	require.NoError(t, exc.DecideOverride("sup", "ok", true))
	assert.Equal(t, OverrideApproved, exc.Override.Status)
	assert.Equal(t, ExceptionResolved, exc.Status)
	assert.Equal(t, "sup", exc.Override.DecidedBy)
	assert.ErrorIs(t, exc.RequestOverride("alice", "more"), ErrExceptionClosed)

	short := NewShortPickException(task, ShortPick{OrderID: "o1", Expected: dec("2"), Picked: dec("1")}, "alice")
	assert.ErrorIs(t, short.RequestOverride("alice", "found it"), ErrOverrideNotAllowed)
}

func TestParseShortPickResolution(t *testing.T) {
	for in, want := range map[string]string{
		"":           ShortPickReallocate,
		"reallocate": ShortPickReallocate,
		" Backorder": ShortPickBackorder,
		"CANCEL":     ShortPickCancel,
	} {
		got, err := ParseShortPickResolution(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseShortPickResolution("recount")
	assert.ErrorIs(t, err, ErrInvalidResolution)
}
