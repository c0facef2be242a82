package application

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wms-platform/warehouse-core/internal/domain"
	"github.com/wms-platform/warehouse-core/pkg/tenant"
)

// finalizeTx applies the inventory and document effects of a task whose steps
// are all done. Any error rolls back the last step with it.
func (s *TaskService) finalizeTx(ctx context.Context, repos domain.Repositories, tc tenant.Context, task *domain.Task, actor string) error {
	switch task.Type {
	case domain.TaskReceive:
		return s.finalizeReceive(ctx, repos, tc, task, actor)
	case domain.TaskPutaway:
		return s.finalizePutaway(ctx, repos, tc, task, actor)
	case domain.TaskPick:
		return s.finalizePick(ctx, repos, tc, task, actor)
	case domain.TaskPack:
		return s.finalizeShipment(ctx, repos, tc, task, task.Context.Pack, false)
	case domain.TaskShip:
		return s.finalizeShipment(ctx, repos, tc, task, task.Context.Ship, true)
	case domain.TaskCount:
		return s.finalizeCount(ctx, repos, tc, task, actor)
	case domain.TaskWavePick:
		return s.finalizeWavePick(ctx, repos, tc, task, actor)
	default:
		return fmt.Errorf("no finalizer for task type %s", task.Type)
	}
}

func taskMeta(task *domain.Task, extra ...string) map[string]string {
	meta := map[string]string{
		domain.MetaTaskType: string(task.Type),
		domain.MetaTaskID:   task.ID,
	}
	for i := 0; i+1 < len(extra); i += 2 {
		meta[extra[i]] = extra[i+1]
	}
	return meta
}

func (s *TaskService) finalizeReceive(ctx context.Context, repos domain.Repositories, tc tenant.Context, task *domain.Task, actor string) error {
	rc := task.Context.Receive
	if rc == nil {
		return fmt.Errorf("receive task %s has no receive context", task.ID)
	}
	captured, ok := task.CapturedQuantity()
	qty := capturedOr(captured, ok, rc.ExpectedQty)
	if !qty.IsPositive() {
		return nil
	}
	unitCost := rc.UnitCost
	_, err := s.ledger.applyMovementTx(ctx, repos, tc, domain.MovementRequest{
		CorrelationID: "task:" + task.ID,
		ItemID:        rc.ItemID,
		Quantity:      qty,
		ToLocationID:  rc.StagingLocationID,
		LotID:         rc.LotID,
		Actor:         actor,
		Reason:        "receipt " + rc.ReceiptID,
		UnitCost:      &unitCost,
		Meta:          taskMeta(task),
	})
	return err
}

func (s *TaskService) finalizePutaway(ctx context.Context, repos domain.Repositories, tc tenant.Context, task *domain.Task, actor string) error {
	pc := task.Context.Putaway
	if pc == nil {
		return fmt.Errorf("putaway task %s has no putaway context", task.ID)
	}
	// the operator may have been redirected; the last scanned location wins
	destID := pc.ToLocationID
	if code, ok := task.CapturedValue(domain.StepScanLocation); ok && code != pc.ToLocationCode {
		dest, err := s.catalog.GetLocationByCode(ctx, tc, code)
		if err != nil {
			return err
		}
		destID = dest.ID
	}
	if destID == pc.FromLocationID || !pc.Quantity.IsPositive() {
		return nil
	}
	_, err := s.ledger.applyMovementTx(ctx, repos, tc, domain.MovementRequest{
		CorrelationID:  "task:" + task.ID,
		ItemID:         pc.ItemID,
		Quantity:       pc.Quantity,
		FromLocationID: pc.FromLocationID,
		ToLocationID:   destID,
		LotID:          pc.LotID,
		Actor:          actor,
		Reason:         "putaway",
		Meta:           taskMeta(task),
	})
	return err
}

func (s *TaskService) finalizePick(ctx context.Context, repos domain.Repositories, tc tenant.Context, task *domain.Task, actor string) error {
	pc := task.Context.Pick
	if pc == nil {
		return fmt.Errorf("pick task %s has no pick context", task.ID)
	}
	captured, ok := task.CapturedQuantity()
	picked := capturedOr(captured, ok, pc.Quantity)

	allocation, err := openAllocation(ctx, repos, tc, pc.AllocationID)
	if err != nil {
		return err
	}

	line := pickLine{
		orderID:      pc.OrderID,
		orderLineID:  pc.OrderLineID,
		allocationID: pc.AllocationID,
		itemID:       pc.ItemID,
		lotID:        pc.LotID,
		containerID:  pc.ContainerID,
		fromID:       pc.FromLocationID,
		expected:     pc.Quantity,
		picked:       picked,
	}
	return s.pickLineTx(ctx, repos, tc, task, allocation, line, pc.ToLocationID, "task:"+task.ID, actor)
}

// openAllocation returns the allocation a pick consumes. A released or already
// picked allocation no longer backs the reservation at its location, so the
// pick must not touch that stock.
func openAllocation(ctx context.Context, repos domain.Repositories, tc tenant.Context, allocationID string) (*domain.Allocation, error) {
	allocation, err := repos.Allocations().Get(ctx, tc, allocationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get allocation: %w", err)
	}
	if allocation == nil || !allocation.IsOpen() {
		return nil, fmt.Errorf("%w: %s", domain.ErrAllocationNotOpen, allocationID)
	}
	return allocation, nil
}

// pickLine is one allocation being closed out by a pick
type pickLine struct {
	orderID      string
	orderLineID  string
	allocationID string
	itemID       string
	lotID        string
	containerID  string
	fromID       string
	expected     decimal.Decimal
	picked       decimal.Decimal
}

// pickLineTx issues the picked quantity from the reservation, receives it at
// the pack location at the same unit cost, closes the allocation and records a
// short pick for any remainder.
func (s *TaskService) pickLineTx(ctx context.Context, repos domain.Repositories, tc tenant.Context, task *domain.Task, allocation *domain.Allocation, line pickLine, packID, correlation, actor string) error {
	meta := taskMeta(task, domain.MetaOrderID, line.orderID)
	if line.picked.IsPositive() {
		issue, err := s.ledger.applyMovementTx(ctx, repos, tc, domain.MovementRequest{
			CorrelationID:  correlation + ":resv_out",
			ItemID:         line.itemID,
			Quantity:       line.picked,
			FromLocationID: line.fromID,
			State:          domain.StateReserved,
			LotID:          line.lotID,
			ContainerID:    line.containerID,
			Actor:          actor,
			Reason:         "pick",
			Meta:           meta,
		})
		if err != nil {
			return err
		}
		unitCost := issue.UnitCost
		if _, err := s.ledger.applyMovementTx(ctx, repos, tc, domain.MovementRequest{
			CorrelationID: correlation + ":pack_in",
			ItemID:        line.itemID,
			Quantity:      line.picked,
			ToLocationID:  packID,
			LotID:         line.lotID,
			Actor:         actor,
			Reason:        "pick",
			UnitCost:      &unitCost,
			Meta:          meta,
		}); err != nil {
			return err
		}
	}

	allocation.RecordPick(line.picked)
	if err := repos.Allocations().Save(ctx, allocation); err != nil {
		return fmt.Errorf("failed to save allocation: %w", err)
	}

	short := line.expected.Sub(line.picked)
	if !short.IsPositive() {
		return nil
	}
	if _, err := s.ledger.releaseTx(ctx, repos, tc, domain.MovementRequest{
		CorrelationID:  "short:" + task.ID + shortSuffix(task, line.allocationID),
		ItemID:         line.itemID,
		Quantity:       short,
		FromLocationID: line.fromID,
		ToLocationID:   line.fromID,
		State:          domain.StateReserved,
		ToState:        domain.StateAvailable,
		LotID:          line.lotID,
		ContainerID:    line.containerID,
		Actor:          actor,
		Reason:         "short pick",
		Meta:           meta,
	}); err != nil {
		return err
	}

	exc := domain.NewShortPickException(task, domain.ShortPick{
		OrderID:      line.orderID,
		OrderLineID:  line.orderLineID,
		AllocationID: line.allocationID,
		ItemID:       line.itemID,
		LocationID:   line.fromID,
		Expected:     line.expected,
		Picked:       line.picked,
	}, actor)
	if err := repos.Exceptions().Insert(ctx, exc); err != nil {
		return fmt.Errorf("failed to save exception: %w", err)
	}
	s.metrics.RecordShortPick()
	return s.events.record(ctx, repos, tc, exc.ID, aggregateException, task.ID, exc.PullDomainEvents())
}

// wave picks close many allocations under one task
func shortSuffix(task *domain.Task, allocationID string) string {
	if task.Type == domain.TaskWavePick {
		return ":" + allocationID
	}
	return ""
}

// finalizeShipment creates the order's shipment on first use, links the
// scanned handling unit and advances the shipment.
func (s *TaskService) finalizeShipment(ctx context.Context, repos domain.Repositories, tc tenant.Context, task *domain.Task, sc *domain.ShipmentContext, ship bool) error {
	if sc == nil {
		return fmt.Errorf("%s task %s has no shipment context", task.Type, task.ID)
	}
	shipment, err := repos.Shipments().FindByOrder(ctx, tc, sc.OrderID)
	if err != nil {
		return fmt.Errorf("failed to find shipment: %w", err)
	}
	if shipment == nil {
		shipment = domain.NewShipment(tc, sc.OrderID)
	}

	lpn, _ := task.CapturedValue(domain.StepScanContainer)
	if lpn == domain.AnyContainer {
		lpn = ""
	}
	if lpn != "" {
		hu, err := repos.Shipments().FindHandlingUnit(ctx, tc, lpn)
		if err != nil {
			return fmt.Errorf("failed to find handling unit: %w", err)
		}
		if hu == nil {
			hu = domain.NewHandlingUnit(tc, lpn)
		}
		if ship {
			hu.MarkShipped()
		} else {
			hu.Close()
		}
		shipment.Link(hu)
		if err := repos.Shipments().SaveHandlingUnit(ctx, hu); err != nil {
			return fmt.Errorf("failed to save handling unit: %w", err)
		}
	}

	if ship {
		shipment.Ship(lpn)
	} else {
		shipment.Pack(lpn)
	}
	if err := repos.Shipments().Save(ctx, shipment); err != nil {
		return fmt.Errorf("failed to save shipment: %w", err)
	}
	return s.events.record(ctx, repos, tc, shipment.ID, aggregateShipment, sc.OrderID, shipment.PullDomainEvents())
}

func (s *TaskService) finalizeCount(ctx context.Context, repos domain.Repositories, tc tenant.Context, task *domain.Task, actor string) error {
	cc := task.Context.Count
	if cc == nil {
		return fmt.Errorf("count task %s has no count context", task.ID)
	}
	counted, _ := task.CapturedQuantity()
	sku, ok := task.CapturedValue(domain.StepScanItem)
	if !ok {
		sku = domain.UnknownSKU
	}

	item, err := s.catalog.GetItemBySKU(ctx, tc, sku)
	if stderrors.Is(err, domain.ErrUnknownItem) {
		s.logger.Warn("Count scanned an unknown SKU", "taskId", task.ID, "sku", sku)
		event := &domain.CountSubmittedEvent{
			TaskID:       task.ID,
			LocationCode: cc.LocationCode,
			UnknownSKU:   sku,
			Counted:      counted,
			SubmittedAt:  time.Now().UTC(),
		}
		return s.events.record(ctx, repos, tc, task.ID, aggregateCount, cc.CountID, []domain.DomainEvent{event})
	}
	if err != nil {
		return err
	}

	expected, err := availableAt(ctx, repos, tc, item.ID, cc.LocationID)
	if err != nil {
		return err
	}
	submission := domain.NewCountSubmission(tc, domain.CountObservation{
		Context:  *cc,
		TaskID:   task.ID,
		ItemID:   item.ID,
		SKU:      item.SKU,
		Counted:  counted,
		Expected: expected,
		Actor:    actor,
	})
	if err := repos.Counts().Insert(ctx, submission); err != nil {
		return fmt.Errorf("failed to save count submission: %w", err)
	}
	return s.events.record(ctx, repos, tc, submission.ID, aggregateCount, cc.CountID, submission.PullDomainEvents())
}

// availableAt sums AVAILABLE stock of an item at a location over lots and containers
func availableAt(ctx context.Context, repos domain.Repositories, tc tenant.Context, itemID, locationID string) (decimal.Decimal, error) {
	balances, err := repos.Balances().FindByLocation(ctx, tc, locationID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to list balances: %w", err)
	}
	total := decimal.Zero
	for _, b := range balances {
		if b.ItemID == itemID && b.State == domain.StateAvailable {
			total = total.Add(b.Quantity)
		}
	}
	return total, nil
}

func (s *TaskService) finalizeWavePick(ctx context.Context, repos domain.Repositories, tc tenant.Context, task *domain.Task, actor string) error {
	wc := task.Context.WavePick
	if wc == nil {
		return fmt.Errorf("wave pick task %s has no wave context", task.ID)
	}
	for si, stop := range wc.Plan.Stops {
		for li, sl := range stop.Lines {
			allocation, err := openAllocation(ctx, repos, tc, sl.AllocationID)
			if err != nil {
				return err
			}
			captured, ok := task.CapturedLineQuantity(si, li)
			line := pickLine{
				orderID:      sl.OrderID,
				orderLineID:  sl.OrderLineID,
				allocationID: sl.AllocationID,
				itemID:       sl.ItemID,
				lotID:        allocation.LotID,
				containerID:  allocation.ContainerID,
				fromID:       stop.LocationID,
				expected:     sl.Quantity,
				picked:       capturedOr(captured, ok, sl.Quantity),
			}
			correlation := fmt.Sprintf("wavepick:%s:%s:%s", task.ID, sl.OrderID, sl.AllocationID)
			if err := s.pickLineTx(ctx, repos, tc, task, allocation, line, wc.PackLocationID, correlation, actor); err != nil {
				return err
			}
		}
	}

	wave, err := repos.Waves().Get(ctx, tc, wc.WaveID)
	if err != nil {
		return err
	}
	wave.MarkOrdersDone()
	if err := repos.Waves().Save(ctx, wave); err != nil {
		return fmt.Errorf("failed to save wave: %w", err)
	}
	return nil
}
