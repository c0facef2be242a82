package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/warehouse-core/internal/domain"
	"github.com/wms-platform/warehouse-core/pkg/errors"
)

func seedWaveOrders(t *testing.T, f *fixture) {
	t.Helper()
	f.receive(t, "rcpt-1", "item-1", "loc-a1", "10", "1")
	f.receive(t, "rcpt-2", "item-2", "loc-a2", "10", "1")
	f.documents.PutOrder(tc, "order-1",
		domain.OrderLine{OrderID: "order-1", LineID: "1", ItemID: "item-1", Quantity: dec("2")},
		domain.OrderLine{OrderID: "order-1", LineID: "2", ItemID: "item-2", Quantity: dec("1")})
	f.documents.PutOrder(tc, "order-2",
		domain.OrderLine{OrderID: "order-2", LineID: "1", ItemID: "item-1", Quantity: dec("3")})
}

func TestWave_CreateReleasePick(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedWaveOrders(t, f)

	wave, err := f.waves.CreateWave(ctx, tc, CreateWaveCommand{OrderIDs: []string{"order-1", "order-2"}, Actor: "planner"})
	require.NoError(t, err)
	assert.Equal(t, domain.WavePlanned, wave.Status)

	_, err = f.waves.CreateWave(ctx, tc, CreateWaveCommand{OrderIDs: []string{"order-2"}, Actor: "planner"})
	assert.True(t, errors.HasCode(err, errors.CodeConflict), "an order sits in one open wave")

	require.NoError(t, f.waves.CheckReleasable(ctx, tc, wave.ID))
	released, err := f.waves.ReleaseWave(ctx, tc, ReleaseWaveCommand{WaveID: wave.ID, Actor: "planner"})
	require.NoError(t, err)
	assert.Equal(t, domain.WaveReleased, released.Wave.Status)
	require.NotNil(t, released.PickTask)
	assert.Equal(t, string(domain.TaskWavePick), released.PickTask.Type)
	assert.Len(t, released.Allocations, 2)
	assert.True(t, f.balance(t, "item-1", "loc-a1", domain.StateReserved).Equal(dec("5")))

	err = f.waves.CheckReleasable(ctx, tc, wave.ID)
	assert.True(t, errors.HasCode(err, errors.CodeConflict))
	_, err = f.waves.ReleaseWave(ctx, tc, ReleaseWaveCommand{WaveID: wave.ID, Actor: "planner"})
	assert.True(t, errors.HasCode(err, errors.CodeConflict))

	shipTasks, err := f.tasks.MyTasks(ctx, tc, "packer")
	require.NoError(t, err)
	assert.Len(t, tasksOfType(shipTasks, domain.TaskPack), 2)

	out := f.completeAll(t, released.PickTask, nil)
	assert.True(t, out.Finalized)
	assert.True(t, f.balance(t, "item-1", "loc-pack", domain.StateAvailable).Equal(dec("5")))
	assert.True(t, f.balance(t, "item-2", "loc-pack", domain.StateAvailable).Equal(dec("1")))
	assert.True(t, f.balance(t, "item-1", "loc-a1", domain.StateReserved).IsZero())

	done, err := f.waves.GetWave(ctx, tc, wave.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WaveDone, done.Status)

	_, err = f.waves.CreateWave(ctx, tc, CreateWaveCommand{OrderIDs: []string{"order-2"}, Actor: "planner"})
	assert.NoError(t, err, "a finished wave no longer holds its orders")
}

func TestWave_ShortLineOnWavePick(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedWaveOrders(t, f)

	wave, err := f.waves.CreateWave(ctx, tc, CreateWaveCommand{OrderIDs: []string{"order-2"}, Actor: "planner"})
	require.NoError(t, err)
	released, err := f.waves.ReleaseWave(ctx, tc, ReleaseWaveCommand{WaveID: wave.ID, Actor: "planner"})
	require.NoError(t, err)

	f.completeAll(t, released.PickTask, map[domain.StepKind]string{domain.StepEnterQty: "1"})
	assert.True(t, f.balance(t, "item-1", "loc-pack", domain.StateAvailable).Equal(dec("1")))
	assert.True(t, f.balance(t, "item-1", "loc-a1", domain.StateAvailable).Equal(dec("9")))

	shorts, err := f.exceptions.ListExceptions(ctx, tc, domain.ExceptionFilter{Kind: domain.ExceptionShortPick})
	require.NoError(t, err)
	require.Len(t, shorts, 1)
	assert.Equal(t, "order-2", shorts[0].Data.OrderID)
}

func TestWave_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.waves.CreateWave(ctx, tc, CreateWaveCommand{Actor: "planner"})
	assert.True(t, errors.HasCode(err, errors.CodeValidationError))

	_, err = f.waves.GetWave(ctx, tc, "missing")
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))
}
