package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/warehouse-core/internal/domain"
	"github.com/wms-platform/warehouse-core/pkg/errors"
)

func TestReceiptTasks_ReceiveThenPutaway(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.documents.PutReceipt(tc, "rcpt-1", domain.ReceiptLine{
		ReceiptID: "rcpt-1", LineID: "1", ItemID: "item-1", ExpectedQuantity: dec("10"), UnitCost: dec("3"),
	})

	tasks, err := f.tasks.GenerateReceiptTasks(ctx, tc, "rcpt-1", "clerk")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	receive := tasksOfType(tasks, domain.TaskReceive)[0]
	putaway := tasksOfType(tasks, domain.TaskPutaway)[0]

	out := f.completeAll(t, receive, map[domain.StepKind]string{domain.StepEnterQty: "10"})
	assert.True(t, out.Finalized)
	assert.Equal(t, string(domain.TaskDone), out.Task.Status)
	assert.True(t, f.balance(t, "item-1", "loc-stage", domain.StateAvailable).Equal(dec("10")))

	entries, err := f.ledger.LedgerEntries(ctx, tc, LedgerQuery{CorrelationID: "task:" + receive.ID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].UnitCost.Equal(dec("3")))

	f.completeAll(t, putaway, nil)
	assert.True(t, f.balance(t, "item-1", "loc-stage", domain.StateAvailable).IsZero())
	dest := putaway.Context.Putaway.ToLocationID
	assert.True(t, f.balance(t, "item-1", dest, domain.StateAvailable).Equal(dec("10")))
}

func TestPutaway_SuggestsLowestFillRatio(t *testing.T) {
	f := newFixture(t)
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

	out := f.completeAll(t, task, nil)
	assert.True(t, out.Finalized)
	assert.True(t, f.balance(t, "item-1", "loc-a2", domain.StateAvailable).Equal(dec("4")))

	_, err = f.tasks.CreatePutawayTask(ctx, tc, CreatePutawayTaskCommand{ItemID: "item-1", FromLocationID: "loc-stage", Quantity: dec("0")})
	assert.True(t, errors.HasCode(err, errors.CodeValidationError))
}

func TestPickTask_ShortPickReleasesAndReallocates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, "rcpt-1", "item-1", "loc-a1", "10", "2")
	f.documents.PutOrder(tc, "order-1", domain.OrderLine{OrderID: "order-1", LineID: "1", ItemID: "item-1", Quantity: dec("6")})

	_, err := f.allocation.AllocateOrder(ctx, tc, "order-1", "planner")
	require.NoError(t, err)
	tasks, err := f.tasks.GenerateOrderTasks(ctx, tc, "order-1", "planner")
	require.NoError(t, err)
	require.Len(t, tasksOfType(tasks, domain.TaskPick), 1)
	require.Len(t, tasksOfType(tasks, domain.TaskPack), 1)
	require.Len(t, tasksOfType(tasks, domain.TaskShip), 1)

	pick := tasksOfType(tasks, domain.TaskPick)[0]
	out := f.completeAll(t, pick, map[domain.StepKind]string{
		domain.StepScanContainer: "TOTE-1",
		domain.StepEnterQty:      "4",
	})
	assert.True(t, out.Finalized)

	assert.True(t, f.balance(t, "item-1", "loc-pack", domain.StateAvailable).Equal(dec("4")))
	assert.True(t, f.balance(t, "item-1", "loc-a1", domain.StateReserved).IsZero())
	assert.True(t, f.balance(t, "item-1", "loc-a1", domain.StateAvailable).Equal(dec("6")))

	exceptions, err := f.exceptions.ListExceptions(ctx, tc, domain.ExceptionFilter{Kind: domain.ExceptionShortPick})
	require.NoError(t, err)
	require.Len(t, exceptions, 1)
	require.NotNil(t, exceptions[0].Data.RemainingQty)
	assert.True(t, exceptions[0].Data.RemainingQty.Equal(dec("2")))

	resolved, err := f.exceptions.ResolveException(ctx, tc, ResolveExceptionCommand{
		ExceptionID: exceptions[0].ID, Actor: "supervisor", Resolution: "reallocate",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ExceptionResolved, resolved.Status)
	assert.True(t, f.balance(t, "item-1", "loc-a1", domain.StateReserved).Equal(dec("2")), "remaining demand reallocated")

	_, err = f.exceptions.ResolveException(ctx, tc, ResolveExceptionCommand{ExceptionID: exceptions[0].ID, Actor: "supervisor"})
	assert.True(t, errors.HasCode(err, errors.CodeConflict))
}

func TestPackAndShip_CreateShipment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, "rcpt-1", "item-1", "loc-a1", "2", "1")
	f.documents.PutOrder(tc, "order-1", domain.OrderLine{OrderID: "order-1", LineID: "1", ItemID: "item-1", Quantity: dec("2")})
	_, err := f.allocation.AllocateOrder(ctx, tc, "order-1", "planner")
	require.NoError(t, err)
	tasks, err := f.tasks.GenerateOrderTasks(ctx, tc, "order-1", "planner")
	require.NoError(t, err)

	lpn := map[domain.StepKind]string{domain.StepScanContainer: "HU-1"}
	f.completeAll(t, tasksOfType(tasks, domain.TaskPack)[0], lpn)

	var shipment *domain.Shipment
	readShipment := func() {
		require.NoError(t, f.store.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
			var err error
			shipment, err = repos.Shipments().FindByOrder(ctx, tc, "order-1")
			return err
		}))
	}
	readShipment()
	require.NotNil(t, shipment)
	assert.Equal(t, domain.ShipmentPacked, shipment.Status)
	assert.Len(t, shipment.HandlingUnitIDs, 1)

	f.completeAll(t, tasksOfType(tasks, domain.TaskShip)[0], lpn)
	readShipment()
	assert.Equal(t, domain.ShipmentShipped, shipment.Status)
	assert.Len(t, shipment.HandlingUnitIDs, 1)
}

func TestCompleteStep_MismatchBlocksUntilResumed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, "rcpt-1", "item-1", "loc-stage", "1", "1")
	task, err := f.tasks.CreatePutawayTask(ctx, tc, CreatePutawayTaskCommand{ItemID: "item-1", FromLocationID: "loc-stage", Quantity: dec("1"), Actor: "clerk"})
	require.NoError(t, err)
	first := task.Steps[0]

	out, err := f.tasks.CompleteStep(ctx, tc, CompleteStepCommand{TaskID: task.ID, StepID: first.ID, Value: "DOCK-9", Actor: "op"})
	require.Error(t, err)
	appErr, ok := errors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeTaskException, appErr.Code)
	assert.Equal(t, "STAGE", appErr.Details["expected"])
	assert.Equal(t, "DOCK-9", appErr.Details["got"])
	require.NotNil(t, out)
	assert.Equal(t, string(domain.TaskStatusException), out.Task.Status)

	_, err = f.tasks.CompleteStep(ctx, tc, CompleteStepCommand{TaskID: task.ID, StepID: first.ID, Value: "STAGE", Actor: "op"})
	assert.True(t, errors.HasCode(err, errors.CodeConflict))

	open, err := f.exceptions.ListExceptions(ctx, tc, domain.ExceptionFilter{})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, domain.ExceptionWrongLocation, open[0].Kind)

	resumed, err := f.tasks.ResumeTask(ctx, tc, task.ID)
	require.NoError(t, err)
	assert.Equal(t, string(domain.TaskOpen), resumed.Status, "no step was done yet")
	_, err = f.tasks.CompleteStep(ctx, tc, CompleteStepCommand{TaskID: task.ID, StepID: first.ID, Value: "STAGE", Actor: "op"})
	require.NoError(t, err)
}

func TestMyTasks_AssignAndCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, "rcpt-1", "item-1", "loc-stage", "2", "1")
	a, err := f.tasks.CreatePutawayTask(ctx, tc, CreatePutawayTaskCommand{ItemID: "item-1", FromLocationID: "loc-stage", Quantity: dec("1"), Actor: "clerk"})
	require.NoError(t, err)
	b, err := f.tasks.CreatePutawayTask(ctx, tc, CreatePutawayTaskCommand{ItemID: "item-1", FromLocationID: "loc-stage", Quantity: dec("1"), Actor: "clerk"})
	require.NoError(t, err)

	_, err = f.tasks.AssignTask(ctx, tc, a.ID, "bob")
	require.NoError(t, err)

	mine, err := f.tasks.MyTasks(ctx, tc, "alice")
	require.NoError(t, err)
	require.Len(t, mine, 1, "bob's task is hidden from alice")
	assert.Equal(t, b.ID, mine[0].ID)

	cancelled, err := f.tasks.CancelTask(ctx, tc, CancelTaskCommand{TaskID: b.ID, Actor: "supervisor", Reason: "duplicate"})
	require.NoError(t, err)
	assert.Equal(t, string(domain.TaskCancelled), cancelled.Status)

	mine, err = f.tasks.MyTasks(ctx, tc, "alice")
	require.NoError(t, err)
	assert.Empty(t, mine)

	_, err = f.tasks.GetTask(ctx, tc, "missing")
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))
}
