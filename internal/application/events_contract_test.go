package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/warehouse-core/internal/domain"
	"github.com/wms-platform/warehouse-core/pkg/contracts/asyncapi"
)

// TestOutboxEventsMatchAsyncAPI drives every service once and validates each
// recorded outbox event against the published AsyncAPI document.
func TestOutboxEventsMatchAsyncAPI(t *testing.T) {
	validator, err := asyncapi.NewEventValidator()
	require.NoError(t, err)

	f := newScanFixture(t)
	ctx := context.Background()
	f.receive(t, "rcpt-1", "item-1", "loc-a1", "10", "2")
	f.receive(t, "rcpt-2", "item-2", "loc-a2", "1", "4")

	// allocate, pick, pack and ship
	f.documents.PutOrder(tc, "order-1", domain.OrderLine{OrderID: "order-1", LineID: "1", ItemID: "item-1", Quantity: dec("2")})
	_, err = f.allocation.AllocateOrder(ctx, tc, "order-1", "planner")
	require.NoError(t, err)
	tasks, err := f.tasks.GenerateOrderTasks(ctx, tc, "order-1", "planner")
	require.NoError(t, err)
	lpn := map[domain.StepKind]string{domain.StepScanContainer: "HU-1"}
	for _, taskType := range []domain.TaskType{domain.TaskPick, domain.TaskPack, domain.TaskShip} {
		f.completeAll(t, tasksOfType(tasks, taskType)[0], lpn)
	}

	// backorder, then cancel it and deallocate
	f.documents.PutOrder(tc, "order-2", domain.OrderLine{OrderID: "order-2", LineID: "1", ItemID: "item-2", Quantity: dec("3")})
	allocated, err := f.allocation.AllocateOrder(ctx, tc, "order-2", "planner")
	require.NoError(t, err)
	require.Len(t, allocated.Shortfalls, 1)
	_, err = f.exceptions.CancelBackorder(ctx, tc, CloseBackorderCommand{BackorderID: allocated.Shortfalls[0].BackorderID, Actor: "planner"})
	require.NoError(t, err)
	_, err = f.allocation.DeallocateOrder(ctx, tc, "order-2", "planner")
	require.NoError(t, err)

	// wave with a short pick
	f.documents.PutOrder(tc, "order-3", domain.OrderLine{OrderID: "order-3", LineID: "1", ItemID: "item-1", Quantity: dec("3")})
	wave, err := f.waves.CreateWave(ctx, tc, CreateWaveCommand{OrderIDs: []string{"order-3"}, Actor: "planner"})
	require.NoError(t, err)
	released, err := f.waves.ReleaseWave(ctx, tc, ReleaseWaveCommand{WaveID: wave.ID, Actor: "planner"})
	require.NoError(t, err)
	f.completeAll(t, released.PickTask, map[domain.StepKind]string{domain.StepEnterQty: "1"})

	// step mismatch, resolved, then the task is cancelled
	f.receive(t, "rcpt-3", "item-1", "loc-stage", "1", "2")
	putaway, err := f.tasks.CreatePutawayTask(ctx, tc, CreatePutawayTaskCommand{ItemID: "item-1", FromLocationID: "loc-stage", Quantity: dec("1"), Actor: "clerk"})
	require.NoError(t, err)
	out, err := f.tasks.CompleteStep(ctx, tc, CompleteStepCommand{TaskID: putaway.ID, StepID: putaway.Steps[0].ID, Value: "DOCK-9", Actor: "op"})
	require.Error(t, err)
	require.NotNil(t, out.Exception)
	_, err = f.exceptions.ResolveException(ctx, tc, ResolveExceptionCommand{ExceptionID: out.Exception.ID, Actor: "supervisor", Resolution: "rescanned"})
	require.NoError(t, err)
	_, err = f.tasks.CancelTask(ctx, tc, CancelTaskCommand{TaskID: putaway.ID, Actor: "supervisor", Reason: "duplicate"})
	require.NoError(t, err)

	// count variance, rejected
	countAt(t, f, "count-1", "loc-a2", "SKU-2", "0")
	pending, err := f.counts.ListSubmissions(ctx, tc, "")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	_, err = f.counts.Reject(ctx, tc, ReviewCountCommand{SubmissionID: pending[0].ID, Actor: "supervisor"})
	require.NoError(t, err)

	// scan session, cancelled
	session := f.start(t, "ISSUE")
	_, err = f.scans.CancelSession(ctx, tc, CancelSessionCommand{SessionID: session.ID, Operator: "op-1"})
	require.NoError(t, err)

	rows, err := f.store.Outbox().FindUnpublished(ctx, 1000)
	require.NoError(t, err)
	seen := make(map[string]bool)
	for _, row := range rows {
		assert.NoError(t, validator.ValidateEventJSON(row.Payload), "%s %s", row.EventType, string(row.Payload))

		documented, ok := validator.Channel(row.EventType)
		require.True(t, ok, row.EventType)
		assert.Equal(t, documented, row.Topic, row.EventType)
		route, err := routeFor(row.EventType)
		require.NoError(t, err)
		assert.Equal(t, route.topic, row.Topic)
		seen[row.EventType] = true
	}

	for _, eventType := range []string{
		"wms.inventory.changed", "wms.allocation.order-allocated", "wms.allocation.backorder-created",
		"wms.allocation.backorder-closed", "wms.allocation.order-deallocated",
		"wms.task.created", "wms.task.step-completed", "wms.task.completed", "wms.task.cancelled",
		"wms.task.exception-raised", "wms.exception.raised", "wms.exception.resolved", "wms.exception.short-pick-recorded",
		"wms.wave.created", "wms.wave.released",
		"wms.shipping.shipment-packed", "wms.shipping.shipment-shipped",
		"wms.count.submitted", "wms.count.rejected", "wms.scan.session-completed",
	} {
		assert.True(t, seen[eventType], "no %s event recorded", eventType)
	}
}
