package application

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/warehouse-core/internal/domain"
	"github.com/wms-platform/warehouse-core/internal/infrastructure/memory"
	"github.com/wms-platform/warehouse-core/pkg/logging"
	"github.com/wms-platform/warehouse-core/pkg/tenant"
)

var tc = tenant.Context{TenantID: "acme", FacilityID: "dc-1"}

// fixture wires every service over the in-memory store
type fixture struct {
	store      *memory.Store
	catalog    *memory.Catalog
	documents  *memory.Documents
	production *memory.ProductionOrders

	ledger     *LedgerService
	allocation *AllocationService
	tasks      *TaskService
	waves      *WaveService
	exceptions *ExceptionService
	counts     *CountService
	scans      *ScanService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:      memory.NewStore(),
		catalog:    memory.NewCatalog(),
		documents:  memory.NewDocuments(),
		production: memory.NewProductionOrders(),
	}
	logger := logging.Discard()
	locker := memory.NewLocker()

	f.ledger = NewLedgerService(f.store, f.catalog, nil, logger)
	f.allocation = NewAllocationService(f.store, f.documents, f.catalog, locker, f.ledger, nil, logger)
	f.tasks = NewTaskService(f.store, f.documents, f.catalog, f.ledger, nil, logger)
	f.waves = NewWaveService(f.store, f.documents, f.catalog, locker, f.allocation, f.tasks, 0, nil, logger)
	f.exceptions = NewExceptionService(f.store, f.allocation, f.tasks, logger)
	f.counts = NewCountService(f.store, f.ledger, logger)
	f.scans = NewScanService(f.store, f.catalog, f.production, f.ledger, nil, logger)

	f.catalog.AddItem(&domain.Item{ID: "item-1", TenantID: tc.TenantID, SKU: "SKU-1", Name: "Widget", ValuationMethod: domain.ValuationFIFO, Currency: "USD"})
	f.catalog.AddItem(&domain.Item{ID: "item-2", TenantID: tc.TenantID, SKU: "SKU-2", Name: "Gadget", ValuationMethod: domain.ValuationFIFO, Currency: "USD"})
	for _, loc := range []*domain.Location{
		{ID: "loc-stage", Code: "STAGE", Type: domain.LocationTypeStage},
		{ID: "loc-pack", Code: "PACK", Type: domain.LocationTypePack},
		{ID: "loc-a1", Code: "A-01-01", Type: domain.LocationTypeBin, Zone: "A"},
		{ID: "loc-a2", Code: "A-02-01", Type: domain.LocationTypeBin, Zone: "A"},
	} {
		loc.TenantID, loc.FacilityID = tc.TenantID, tc.FacilityID
		f.catalog.AddLocation(loc)
	}
	return f
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// receive books AVAILABLE stock at a location
func (f *fixture) receive(t *testing.T, correlation, itemID, locationID, qty, unitCost string) *domain.LedgerEntry {
	t.Helper()
	cost := dec(unitCost)
	entry, err := f.ledger.ApplyMovement(context.Background(), tc, ApplyMovementCommand{
		CorrelationID: correlation,
		ItemID:        itemID,
		Quantity:      dec(qty),
		ToLocationID:  locationID,
		Actor:         "test",
		UnitCost:      &cost,
	})
	require.NoError(t, err)
	return entry
}

func (f *fixture) balance(t *testing.T, itemID, locationID string, state domain.BalanceState) decimal.Decimal {
	t.Helper()
	var qty decimal.Decimal
	require.NoError(t, f.store.WithinTransaction(context.Background(), func(ctx context.Context, repos domain.Repositories) error {
		b, err := repos.Balances().Get(ctx, tc, domain.BalanceKey{ItemID: itemID, LocationID: locationID, State: state})
		if b != nil {
			qty = b.Quantity
		}
		return err
	}))
	return qty
}

// completeAll drives every remaining step of a task. A value given for the
// step's kind wins; otherwise the step gets its expected code or full quantity.
func (f *fixture) completeAll(t *testing.T, task *TaskDTO, values map[domain.StepKind]string) *StepCompletionDTO {
	t.Helper()
	var last *StepCompletionDTO
	for _, step := range task.Steps {
		if step.Status == string(domain.StepDone) {
			continue
		}
		out, err := f.tasks.CompleteStep(context.Background(), tc, CompleteStepCommand{
			TaskID: task.ID,
			StepID: step.ID,
			Value:  stepValue(step, values),
			Actor:  "picker-1",
		})
		require.NoError(t, err, "step %d %s", step.Seq, step.Kind)
		last = out
	}
	return last
}

func tasksOfType(tasks []*TaskDTO, taskType domain.TaskType) []*TaskDTO {
	var out []*TaskDTO
	for _, task := range tasks {
		if task.Type == string(taskType) {
			out = append(out, task)
		}
	}
	return out
}

func stepValue(step StepDTO, values map[domain.StepKind]string) string {
	if v, ok := values[domain.StepKind(step.Kind)]; ok {
		return v
	}
	if step.Expected.Max != nil {
		return step.Expected.Max.String()
	}
	return step.Expected.Code
}
