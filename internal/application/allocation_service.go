package application

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wms-platform/warehouse-core/internal/domain"
	"github.com/wms-platform/warehouse-core/pkg/logging"
	"github.com/wms-platform/warehouse-core/pkg/metrics"
	"github.com/wms-platform/warehouse-core/pkg/tenant"
	"github.com/wms-platform/warehouse-core/pkg/tracing"
)

const systemActor = "system"

// AllocationService reserves pickable stock against order lines
type AllocationService struct {
	uow       domain.UnitOfWork
	documents domain.Documents
	catalog   domain.ReferenceCatalog
	locker    domain.AllocationLocker
	ledger    *LedgerService
	events    *eventRecorder
	metrics   *metrics.Metrics
	logger    *logging.Logger
}

// NewAllocationService creates a new AllocationService
func NewAllocationService(
	uow domain.UnitOfWork,
	documents domain.Documents,
	catalog domain.ReferenceCatalog,
	locker domain.AllocationLocker,
	ledger *LedgerService,
	m *metrics.Metrics,
	logger *logging.Logger,
) *AllocationService {
	return &AllocationService{
		uow:       uow,
		documents: documents,
		catalog:   catalog,
		locker:    locker,
		ledger:    ledger,
		events:    newEventRecorder(),
		metrics:   m,
		logger:    logger.WithComponent("allocation"),
	}
}

// AllocateOrder releases any open allocations of the order and allocates every
// line again. Uncovered demand becomes OPEN backorders.
func (s *AllocationService) AllocateOrder(ctx context.Context, tc tenant.Context, orderID, actor string) (*domain.AllocationResult, error) {
	if err := tc.Validate(); err != nil {
		return nil, toAppError(err)
	}
	return tracing.TracedOperation(ctx, tracer, "allocation.AllocateOrder", func(ctx context.Context) (*domain.AllocationResult, error) {
		lines, err := s.documents.OrderLines(ctx, tc, orderID)
		if err != nil {
			return nil, toAppError(err)
		}

		release, err := s.locker.Lock(ctx, tc, lineItems(lines))
		if err != nil {
			return nil, fmt.Errorf("failed to lock items: %w", err)
		}
		defer release()

		var result *domain.AllocationResult
		err = s.uow.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
			if err := checkNotInReleasedWave(ctx, repos, tc, orderID); err != nil {
				return err
			}
			var err error
			result, err = s.allocateOrderTx(ctx, repos, tc, orderID, lines, actor)
			return err
		})
		if err != nil {
			s.logger.WithError(err).Error("Failed to allocate order", "orderId", orderID)
			return nil, toAppError(err)
		}

		s.metrics.RecordAllocation(result.AllocationsCreated, len(result.Shortfalls))
		s.logger.Info("Allocated order", "orderId", orderID, "allocations", result.AllocationsCreated, "shortfalls", len(result.Shortfalls))
		return result, nil
	}, attribute.String("order.id", orderID))
}

// DeallocateOrder releases every open allocation of the order
func (s *AllocationService) DeallocateOrder(ctx context.Context, tc tenant.Context, orderID, actor string) (int, error) {
	if err := tc.Validate(); err != nil {
		return 0, toAppError(err)
	}
	var released int
	err := s.uow.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if err := checkNotInReleasedWave(ctx, repos, tc, orderID); err != nil {
			return err
		}
		var err error
		released, err = s.releaseOrderTx(ctx, repos, tc, orderID, actor)
		if err != nil {
			return err
		}
		event := &domain.OrderDeallocatedEvent{OrderID: orderID, Released: released, DeallocatedAt: time.Now().UTC()}
		return s.events.record(ctx, repos, tc, orderID, aggregateOrder, "", []domain.DomainEvent{event})
	})
	if err != nil {
		s.logger.WithError(err).Error("Failed to deallocate order", "orderId", orderID)
		return 0, toAppError(err)
	}
	s.logger.Info("Deallocated order", "orderId", orderID, "released", released)
	return released, nil
}

// Allocations lists the allocations of an order
func (s *AllocationService) Allocations(ctx context.Context, tc tenant.Context, orderID string) ([]*domain.Allocation, error) {
	var out []*domain.Allocation
	err := s.uow.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		out, err = repos.Allocations().FindByOrder(ctx, tc, orderID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list allocations: %w", err)
	}
	return out, nil
}

// allocateOrderTx runs one allocation pass. The caller holds the item locks.
func (s *AllocationService) allocateOrderTx(ctx context.Context, repos domain.Repositories, tc tenant.Context, orderID string, lines []domain.OrderLine, actor string) (*domain.AllocationResult, error) {
	released, err := s.releaseOrderTx(ctx, repos, tc, orderID, actor)
	if err != nil {
		return nil, err
	}

	// superseded backorders are cancelled, never deleted: the record and its
	// closed event stay in the trail
	open, err := repos.Backorders().List(ctx, tc, domain.BackorderFilter{OrderID: orderID, Status: domain.BackorderOpen})
	if err != nil {
		return nil, fmt.Errorf("failed to list backorders: %w", err)
	}
	for _, b := range open {
		if err := b.Cancel(actor, "superseded by reallocation"); err != nil {
			return nil, err
		}
		if err := repos.Backorders().Save(ctx, b); err != nil {
			return nil, fmt.Errorf("failed to save backorder: %w", err)
		}
		if err := s.events.record(ctx, repos, tc, b.ID, aggregateBackorder, orderID, b.PullDomainEvents()); err != nil {
			return nil, err
		}
	}

	// picked allocations survive reallocation and count towards their line
	kept, err := repos.Allocations().FindByOrder(ctx, tc, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list allocations: %w", err)
	}
	picked := make(map[string]decimal.Decimal)
	for _, a := range kept {
		picked[a.OrderLineID] = picked[a.OrderLineID].Add(a.Picked)
	}

	bins, err := s.binLocationIDs(ctx, tc)
	if err != nil {
		return nil, err
	}

	result := &domain.AllocationResult{OrderID: orderID, Released: released, Shortfalls: []domain.Shortfall{}}
	for _, line := range lines {
		demand := line.Quantity.Sub(picked[line.LineID])
		if !demand.IsPositive() {
			continue
		}
		allocated, err := s.allocateLineTx(ctx, repos, tc, line, demand, bins, actor, result)
		if err != nil {
			return nil, err
		}
		missing := demand.Sub(allocated)
		if !missing.IsPositive() {
			continue
		}
		backorder := domain.NewBackorder(tc, line, missing, domain.ReasonInsufficientAvailable)
		if err := repos.Backorders().Insert(ctx, backorder); err != nil {
			return nil, fmt.Errorf("failed to save backorder: %w", err)
		}
		if err := s.events.record(ctx, repos, tc, backorder.ID, aggregateBackorder, orderID, backorder.PullDomainEvents()); err != nil {
			return nil, err
		}
		result.Shortfalls = append(result.Shortfalls, domain.Shortfall{
			OrderLineID: line.LineID,
			ItemID:      line.ItemID,
			Requested:   demand,
			Allocated:   allocated,
			Missing:     missing,
			BackorderID: backorder.ID,
		})
	}

	event := &domain.OrderAllocatedEvent{
		OrderID:            orderID,
		AllocationsCreated: result.AllocationsCreated,
		Released:           released,
		Shortfalls:         result.Shortfalls,
		AllocatedAt:        time.Now().UTC(),
	}
	if err := s.events.record(ctx, repos, tc, orderID, aggregateOrder, "", []domain.DomainEvent{event}); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *AllocationService) allocateLineTx(ctx context.Context, repos domain.Repositories, tc tenant.Context, line domain.OrderLine, demand decimal.Decimal, bins []string, actor string, result *domain.AllocationResult) (decimal.Decimal, error) {
	candidates, err := repos.Balances().LockAvailableForItem(ctx, tc, line.ItemID, bins)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to lock balances: %w", err)
	}

	allocated := decimal.Zero
	for _, balance := range candidates {
		remaining := demand.Sub(allocated)
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(balance.Quantity, remaining)
		if !take.IsPositive() {
			continue
		}
		allocation := domain.NewAllocation(tc, line, balance, take)
		if _, err := s.ledger.applyMovementTx(ctx, repos, tc, domain.MovementRequest{
			CorrelationID:  allocation.ReserveCorrelation(),
			ItemID:         line.ItemID,
			Quantity:       take,
			FromLocationID: balance.LocationID,
			ToLocationID:   balance.LocationID,
			State:          domain.StateAvailable,
			ToState:        domain.StateReserved,
			LotID:          balance.LotID,
			ContainerID:    balance.ContainerID,
			Actor:          actor,
			Reason:         "allocation",
			Meta:           map[string]string{domain.MetaOrderID: line.OrderID},
		}); err != nil {
			return decimal.Zero, err
		}
		if err := repos.Allocations().Insert(ctx, allocation); err != nil {
			return decimal.Zero, fmt.Errorf("failed to save allocation: %w", err)
		}
		allocated = allocated.Add(take)
		result.AllocationsCreated++
		result.Allocations = append(result.Allocations, allocation)
	}
	return allocated, nil
}

// checkNotInReleasedWave refuses to touch the allocations of an order whose
// wave has been released; the wave pick task owns them until it finishes.
func checkNotInReleasedWave(ctx context.Context, repos domain.Repositories, tc tenant.Context, orderID string) error {
	wave, err := repos.Waves().FindOpenByOrder(ctx, tc, orderID)
	if err != nil {
		return fmt.Errorf("failed to find wave: %w", err)
	}
	if wave != nil && wave.Status == domain.WaveReleased {
		return fmt.Errorf("%w: wave %s", domain.ErrOrderWaveReleased, wave.ID)
	}
	return nil
}

// releaseOrderTx releases and deletes the OPEN allocations of an order and
// cancels the unfinished PICK tasks that pointed at them
func (s *AllocationService) releaseOrderTx(ctx context.Context, repos domain.Repositories, tc tenant.Context, orderID, actor string) (int, error) {
	existing, err := repos.Allocations().FindByOrder(ctx, tc, orderID)
	if err != nil {
		return 0, fmt.Errorf("failed to list allocations: %w", err)
	}
	releasedIDs := make(map[string]bool)
	for _, a := range existing {
		if !a.IsOpen() {
			continue
		}
		if _, err := s.ledger.releaseTx(ctx, repos, tc, domain.MovementRequest{
			CorrelationID:  a.ReleaseCorrelation(),
			ItemID:         a.ItemID,
			Quantity:       a.Quantity,
			FromLocationID: a.LocationID,
			ToLocationID:   a.LocationID,
			State:          domain.StateReserved,
			ToState:        domain.StateAvailable,
			LotID:          a.LotID,
			ContainerID:    a.ContainerID,
			Actor:          actor,
			Reason:         "deallocation",
			Meta:           map[string]string{domain.MetaOrderID: orderID},
		}); err != nil {
			return 0, err
		}
		if err := repos.Allocations().Delete(ctx, tc, a.ID); err != nil {
			return 0, fmt.Errorf("failed to delete allocation: %w", err)
		}
		releasedIDs[a.ID] = true
	}
	if err := s.cancelPicksTx(ctx, repos, tc, orderID, releasedIDs, actor); err != nil {
		return 0, err
	}
	return len(releasedIDs), nil
}

func (s *AllocationService) cancelPicksTx(ctx context.Context, repos domain.Repositories, tc tenant.Context, orderID string, allocationIDs map[string]bool, actor string) error {
	if len(allocationIDs) == 0 {
		return nil
	}
	tasks, err := repos.Tasks().FindBySource(ctx, tc, domain.SourceOrder, orderID)
	if err != nil {
		return fmt.Errorf("failed to list order tasks: %w", err)
	}
	for _, t := range tasks {
		if t.Type != domain.TaskPick || t.IsTerminal() || t.Context.Pick == nil || !allocationIDs[t.Context.Pick.AllocationID] {
			continue
		}
		if err := t.Cancel(actor, "allocation released"); err != nil {
			return err
		}
		if err := repos.Tasks().Save(ctx, t); err != nil {
			return fmt.Errorf("failed to save task: %w", err)
		}
		if err := s.events.record(ctx, repos, tc, t.ID, aggregateTask, t.SourceID, t.PullDomainEvents()); err != nil {
			return err
		}
		s.logger.Info("Cancelled pick of released allocation", "taskId", t.ID, "allocationId", t.Context.Pick.AllocationID)
	}
	return nil
}

func (s *AllocationService) binLocationIDs(ctx context.Context, tc tenant.Context) ([]string, error) {
	bins, err := s.catalog.ListLocations(ctx, tc, domain.LocationTypeBin)
	if err != nil {
		return nil, fmt.Errorf("failed to list bin locations: %w", err)
	}
	ids := make([]string, 0, len(bins))
	for _, l := range bins {
		ids = append(ids, l.ID)
	}
	return ids, nil
}

// lineItems returns the distinct item ids of lines, sorted
func lineItems(lines []domain.OrderLine) []string {
	seen := make(map[string]bool, len(lines))
	var ids []string
	for _, l := range lines {
		if !seen[l.ItemID] {
			seen[l.ItemID] = true
			ids = append(ids, l.ItemID)
		}
	}
	sort.Strings(ids)
	return ids
}
