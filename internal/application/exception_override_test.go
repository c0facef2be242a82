package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/warehouse-core/internal/domain"
	"github.com/wms-platform/warehouse-core/pkg/errors"
)

// shortPicked leaves a SHORT_PICK exception for 2 of 6 units
func shortPicked(t *testing.T, f *fixture) *domain.TaskException {
	t.Helper()
	ctx := context.Background()
	f.receive(t, "rcpt-1", "item-1", "loc-a1", "10", "2")
	f.documents.PutOrder(tc, "order-1", domain.OrderLine{OrderID: "order-1", LineID: "1", ItemID: "item-1", Quantity: dec("6")})
	_, err := f.allocation.AllocateOrder(ctx, tc, "order-1", "planner")
	require.NoError(t, err)
	tasks, err := f.tasks.GenerateOrderTasks(ctx, tc, "order-1", "planner")
	require.NoError(t, err)
	f.completeAll(t, tasksOfType(tasks, domain.TaskPick)[0], map[domain.StepKind]string{
		domain.StepScanContainer: "TOTE-1",
		domain.StepEnterQty:      "4",
	})
	exceptions, err := f.exceptions.ListExceptions(ctx, tc, domain.ExceptionFilter{Kind: domain.ExceptionShortPick})
	require.NoError(t, err)
	require.Len(t, exceptions, 1)
	return exceptions[0]
}

func TestShortPickResolution_Backorder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exc := shortPicked(t, f)

	resolved, err := f.exceptions.ResolveException(ctx, tc, ResolveExceptionCommand{
		ExceptionID: exc.ID, Actor: "supervisor", Resolution: "backorder",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ShortPickBackorder, resolved.Resolution)
	assert.True(t, f.balance(t, "item-1", "loc-a1", domain.StateReserved).IsZero(), "nothing reallocated")

	backorders, err := f.exceptions.ListBackorders(ctx, tc, domain.BackorderFilter{OrderID: "order-1", Status: domain.BackorderOpen})
	require.NoError(t, err)
	require.Len(t, backorders, 1)
	assert.Equal(t, domain.ReasonShortPick, backorders[0].Reason)
	assert.Equal(t, "1", backorders[0].OrderLineID)
	assert.True(t, backorders[0].Quantity.Equal(dec("2")))
}

func TestShortPickResolution_Cancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exc := shortPicked(t, f)

	resolved, err := f.exceptions.ResolveException(ctx, tc, ResolveExceptionCommand{
		ExceptionID: exc.ID, Actor: "supervisor", Resolution: "CANCEL",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ExceptionResolved, resolved.Status)
	assert.True(t, f.balance(t, "item-1", "loc-a1", domain.StateReserved).IsZero())
	assert.True(t, f.balance(t, "item-1", "loc-a1", domain.StateAvailable).Equal(dec("6")))

	backorders, err := f.exceptions.ListBackorders(ctx, tc, domain.BackorderFilter{OrderID: "order-1"})
	require.NoError(t, err)
	assert.Empty(t, backorders)
}

func TestShortPickResolution_UnknownChoice(t *testing.T) {
	f := newFixture(t)
	exc := shortPicked(t, f)

	_, err := f.exceptions.ResolveException(context.Background(), tc, ResolveExceptionCommand{
		ExceptionID: exc.ID, Actor: "supervisor", Resolution: "SHRUG",
	})
	assert.True(t, errors.HasCode(err, errors.CodeValidationError))

	still, err := f.exceptions.ListExceptions(context.Background(), tc, domain.ExceptionFilter{Status: domain.ExceptionOpen})
	require.NoError(t, err)
	assert.Len(t, still, 1)
}

// putawayRedirected raises WRONG_LOCATION on the destination scan of a
// putaway suggested to A-02-01
func putawayRedirected(t *testing.T, f *fixture) (*TaskDTO, *domain.TaskException) {
	t.Helper()
	ctx := context.Background()
	small, large := dec("5"), dec("20")
	f.catalog.AddLocation(&domain.Location{ID: "loc-a1", TenantID: tc.TenantID, FacilityID: tc.FacilityID, Code: "A-01-01", Type: domain.LocationTypeBin, Zone: "A", CapacityUnits: &small})
	f.catalog.AddLocation(&domain.Location{ID: "loc-a2", TenantID: tc.TenantID, FacilityID: tc.FacilityID, Code: "A-02-01", Type: domain.LocationTypeBin, Zone: "A", CapacityUnits: &large})
	f.receive(t, "rcpt-0", "item-2", "loc-a1", "2", "1")
	f.receive(t, "rcpt-1", "item-1", "loc-stage", "4", "1")

	task, err := f.tasks.CreatePutawayTask(ctx, tc, CreatePutawayTaskCommand{
		ItemID: "item-1", FromLocationID: "loc-stage", Quantity: dec("4"), Actor: "clerk",
	})
	require.NoError(t, err)
	require.Equal(t, "A-02-01", task.Context.Putaway.ToLocationCode)

	_, err = f.tasks.CompleteStep(ctx, tc, CompleteStepCommand{TaskID: task.ID, StepID: task.Steps[0].ID, Value: "STAGE", Actor: "op-1"})
	require.NoError(t, err)
	out, err := f.tasks.CompleteStep(ctx, tc, CompleteStepCommand{TaskID: task.ID, StepID: task.Steps[1].ID, Value: "A-01-01", Actor: "op-1"})
	require.True(t, errors.HasCode(err, errors.CodeTaskException))
	require.NotNil(t, out.Exception)
	assert.Equal(t, domain.ExceptionWrongLocation, out.Exception.Kind)
	return task, out.Exception
}

func TestOverride_ApproveAcceptsScannedValue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task, exc := putawayRedirected(t, f)

	requested, err := f.exceptions.RequestOverride(ctx, tc, OverrideCommand{ExceptionID: exc.ID, Actor: "op-1", Reason: "A-02-01 is blocked"})
	require.NoError(t, err)
	require.NotNil(t, requested.Override)
	assert.Equal(t, domain.OverridePending, requested.Override.Status)

	_, err = f.exceptions.RequestOverride(ctx, tc, OverrideCommand{ExceptionID: exc.ID, Actor: "op-1", Reason: "again"})
	assert.True(t, errors.HasCode(err, errors.CodeConflict), "one pending request at a time")

	approved, err := f.exceptions.ApproveOverride(ctx, tc, OverrideCommand{ExceptionID: exc.ID, Actor: "supervisor"})
	require.NoError(t, err)
	assert.Equal(t, domain.ExceptionResolved, approved.Status)
	assert.Equal(t, domain.OverrideApproved, approved.Override.Status)

	current, err := f.tasks.GetTask(ctx, tc, task.ID)
	require.NoError(t, err)
	assert.Equal(t, string(domain.TaskInProgress), current.Status)
	assert.Equal(t, "A-01-01", current.Steps[1].Captured)
	assert.Equal(t, string(domain.StepDone), current.Steps[1].Status)

	out := f.completeAll(t, current, nil)
	assert.True(t, out.Finalized)
	assert.True(t, f.balance(t, "item-1", "loc-a1", domain.StateAvailable).Equal(dec("4")), "stock follows the approved location")
	assert.True(t, f.balance(t, "item-1", "loc-a2", domain.StateAvailable).IsZero())
}

func TestOverride_ApproveOnLastStepFinalizes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, "rcpt-1", "item-1", "loc-stage", "3", "1")
	task := domain.NewTask(tc, domain.TaskPutaway, domain.SourceManual, "manual-1", domain.TaskContext{Putaway: &domain.PutawayContext{
		ItemID: "item-1", SKU: "SKU-1", Quantity: dec("3"),
		FromLocationID: "loc-stage", FromLocationCode: "STAGE",
		ToLocationID: "loc-a2", ToLocationCode: "A-02-01",
	}}, []domain.TaskStep{
		domain.NewStep(10, "Scan source location STAGE", domain.LocationExpectation{Code: "STAGE"}),
		domain.NewStep(20, "Scan destination A-02-01", domain.LocationExpectation{Code: "A-02-01"}),
	})
	require.NoError(t, f.store.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		return repos.Tasks().Insert(ctx, task)
	}))

	_, err := f.tasks.CompleteStep(ctx, tc, CompleteStepCommand{TaskID: task.ID, StepID: task.Steps[0].ID, Value: "STAGE", Actor: "op-1"})
	require.NoError(t, err)
	out, err := f.tasks.CompleteStep(ctx, tc, CompleteStepCommand{TaskID: task.ID, StepID: task.Steps[1].ID, Value: "A-01-01", Actor: "op-1"})
	require.Error(t, err)
	require.NotNil(t, out.Exception)

	_, err = f.exceptions.RequestOverride(ctx, tc, OverrideCommand{ExceptionID: out.Exception.ID, Actor: "op-1", Reason: "bin full"})
	require.NoError(t, err)
	_, err = f.exceptions.ApproveOverride(ctx, tc, OverrideCommand{ExceptionID: out.Exception.ID, Actor: "supervisor"})
	require.NoError(t, err)

	done, err := f.tasks.GetTask(ctx, tc, task.ID)
	require.NoError(t, err)
	assert.Equal(t, string(domain.TaskDone), done.Status)
	assert.True(t, f.balance(t, "item-1", "loc-a1", domain.StateAvailable).Equal(dec("3")))
	assert.True(t, f.balance(t, "item-1", "loc-stage", domain.StateAvailable).IsZero())
}

func TestOverride_RejectKeepsExceptionOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task, exc := putawayRedirected(t, f)

	_, err := f.exceptions.ApproveOverride(ctx, tc, OverrideCommand{ExceptionID: exc.ID, Actor: "supervisor"})
	assert.True(t, errors.HasCode(err, errors.CodeConflict), "nothing requested yet")

	_, err = f.exceptions.RequestOverride(ctx, tc, OverrideCommand{ExceptionID: exc.ID, Actor: "op-1"})
	assert.True(t, errors.HasCode(err, errors.CodeValidationError), "a reason is required")

	_, err = f.exceptions.RequestOverride(ctx, tc, OverrideCommand{ExceptionID: exc.ID, Actor: "op-1", Reason: "bin full"})
	require.NoError(t, err)
	rejected, err := f.exceptions.RejectOverride(ctx, tc, OverrideCommand{ExceptionID: exc.ID, Actor: "supervisor", Reason: "use A-02-01"})
	require.NoError(t, err)
	assert.Equal(t, domain.ExceptionOpen, rejected.Status)
	assert.Equal(t, domain.OverrideRejected, rejected.Override.Status)

	current, err := f.tasks.GetTask(ctx, tc, task.ID)
	require.NoError(t, err)
	assert.Equal(t, string(domain.TaskStatusException), current.Status)
	assert.True(t, f.balance(t, "item-1", "loc-stage", domain.StateAvailable).Equal(dec("4")))
}

func TestOverride_NotOfferedForShortPick(t *testing.T) {
	f := newFixture(t)
	exc := shortPicked(t, f)

	_, err := f.exceptions.RequestOverride(context.Background(), tc, OverrideCommand{ExceptionID: exc.ID, Actor: "op-1", Reason: "found more"})
	assert.True(t, errors.HasCode(err, errors.CodeValidationError))
}
