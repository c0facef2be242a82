package application

import (
	"github.com/shopspring/decimal"

	"github.com/wms-platform/warehouse-core/internal/domain"
	"github.com/wms-platform/warehouse-core/pkg/tenant"
)

// step templates per task type

func newReceiveTask(tc tenant.Context, line domain.ReceiptLine, item *domain.Item, staging *domain.Location) *domain.Task {
	expected := line.ExpectedQuantity
	steps := []domain.TaskStep{
		domain.NewStep(10, "Scan item "+item.SKU, domain.ItemExpectation{SKU: item.SKU}),
		domain.NewStep(20, "Enter received quantity", domain.QuantityExpectation{Max: &expected}),
		domain.NewStep(30, "Scan staging location "+staging.Code, domain.LocationExpectation{Code: staging.Code}),
	}
	return domain.NewTask(tc, domain.TaskReceive, domain.SourceReceipt, line.ReceiptID, domain.TaskContext{
		Receive: &domain.ReceiveContext{
			ReceiptID:           line.ReceiptID,
			ReceiptLineID:       line.LineID,
			ItemID:              item.ID,
			SKU:                 item.SKU,
			LotID:               line.LotID,
			ExpectedQty:         line.ExpectedQuantity,
			UnitCost:            line.UnitCost,
			StagingLocationID:   staging.ID,
			StagingLocationCode: staging.Code,
		},
	}, steps)
}

func newPutawayTask(tc tenant.Context, sourceType domain.SourceType, sourceID string, pc *domain.PutawayContext) *domain.Task {
	steps := []domain.TaskStep{
		domain.NewStep(10, "Scan source location "+pc.FromLocationCode, domain.LocationExpectation{Code: pc.FromLocationCode}),
		domain.NewStep(20, "Scan destination "+pc.ToLocationCode, domain.LocationExpectation{Code: pc.ToLocationCode}),
		domain.NewStep(30, "Confirm putaway", domain.ConfirmExpectation{}),
	}
	return domain.NewTask(tc, domain.TaskPutaway, sourceType, sourceID, domain.TaskContext{Putaway: pc}, steps)
}

func newPickTask(tc tenant.Context, a *domain.Allocation, item *domain.Item, from, pack *domain.Location) *domain.Task {
	qty := a.Quantity
	container := domain.ContainerExpectation{AllowAny: true}
	if a.ContainerID != "" {
		container = domain.ContainerExpectation{Code: a.ContainerID}
	}
	steps := []domain.TaskStep{
		domain.NewStep(5, "Scan tote or container", container),
		domain.NewStep(10, "Scan pick location "+from.Code, domain.LocationExpectation{Code: from.Code}),
		domain.NewStep(20, "Scan item "+item.SKU, domain.ItemExpectation{SKU: item.SKU}),
		domain.NewStep(30, "Enter picked quantity", domain.QuantityExpectation{Max: &qty}),
	}
	return domain.NewTask(tc, domain.TaskPick, domain.SourceOrder, a.OrderID, domain.TaskContext{
		Pick: &domain.PickContext{
			OrderID:          a.OrderID,
			OrderLineID:      a.OrderLineID,
			AllocationID:     a.ID,
			ItemID:           item.ID,
			SKU:              item.SKU,
			LotID:            a.LotID,
			ContainerID:      a.ContainerID,
			Quantity:         a.Quantity,
			FromLocationID:   from.ID,
			FromLocationCode: from.Code,
			ToLocationID:     pack.ID,
			ToLocationCode:   pack.Code,
		},
	}, steps)
}

// newShipmentTasks returns the PACK and SHIP tasks of an order
func newShipmentTasks(tc tenant.Context, sourceType domain.SourceType, sourceID, orderID string) []*domain.Task {
	pack := domain.NewTask(tc, domain.TaskPack, sourceType, sourceID,
		domain.TaskContext{Pack: &domain.ShipmentContext{OrderID: orderID}},
		[]domain.TaskStep{
			domain.NewStep(10, "Confirm order "+orderID+" packed", domain.ConfirmExpectation{}),
			domain.NewStep(20, "Scan handling unit", domain.ContainerExpectation{AllowAny: true}),
		})
	ship := domain.NewTask(tc, domain.TaskShip, sourceType, sourceID,
		domain.TaskContext{Ship: &domain.ShipmentContext{OrderID: orderID}},
		[]domain.TaskStep{
			domain.NewStep(10, "Scan handling unit", domain.ContainerExpectation{AllowAny: true}),
			domain.NewStep(20, "Confirm order "+orderID+" loaded", domain.ConfirmExpectation{}),
		})
	return []*domain.Task{pack, ship}
}

func newCountTask(tc tenant.Context, line domain.CountLine, loc *domain.Location) *domain.Task {
	steps := []domain.TaskStep{
		domain.NewStep(10, "Scan location "+loc.Code, domain.LocationExpectation{Code: loc.Code}),
		domain.NewStep(20, "Scan item", domain.ItemExpectation{}),
		domain.NewStep(30, "Enter counted quantity", domain.QuantityExpectation{}),
		domain.NewStep(40, "Confirm count", domain.ConfirmExpectation{}),
	}
	return domain.NewTask(tc, domain.TaskCount, domain.SourceCount, line.CountID, domain.TaskContext{
		Count: &domain.CountContext{
			CountID:      line.CountID,
			CountLineID:  line.LineID,
			LocationID:   loc.ID,
			LocationCode: loc.Code,
			Mode:         domain.BlindCountMode,
		},
	}, steps)
}

func newWavePickTask(tc tenant.Context, waveID string, plan domain.WavePlan, pack *domain.Location) *domain.Task {
	return domain.NewTask(tc, domain.TaskWavePick, domain.SourceWave, waveID, domain.TaskContext{
		WavePick: &domain.WavePickContext{
			WaveID:           waveID,
			Plan:             plan,
			PackLocationID:   pack.ID,
			PackLocationCode: pack.Code,
		},
	}, domain.WavePickSteps(plan))
}

// capturedOr returns the captured value when present, else fallback
func capturedOr(v decimal.Decimal, ok bool, fallback decimal.Decimal) decimal.Decimal {
	if ok {
		return v
	}
	return fallback
}
