package memory

import (
	"context"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/wms-platform/warehouse-core/internal/domain"
	"github.com/wms-platform/warehouse-core/pkg/tenant"
)

func inScope(tc tenant.Context, tenantID, facilityID string) bool {
	return tenantID == tc.TenantID && facilityID == tc.FacilityID
}

func scopedKey(tc tenant.Context, key string) string {
	return tc.TenantID + "|" + tc.FacilityID + "|" + key
}

// copying

func cloneTask(t *domain.Task) *domain.Task {
	c := *t
	c.Steps = slices.Clone(t.Steps)
	c.DomainEvents = nil
	return &c
}

func cloneWave(w *domain.Wave) *domain.Wave {
	c := *w
	c.Orders = slices.Clone(w.Orders)
	c.DomainEvents = nil
	return &c
}

func cloneShipment(s *domain.Shipment) *domain.Shipment {
	c := *s
	c.HandlingUnitIDs = slices.Clone(s.HandlingUnitIDs)
	c.DomainEvents = nil
	return &c
}

func clone[T any](v *T) *T {
	c := *v
	return &c
}

// sortByInsertion orders rows by insertion, oldest first
func sortByInsertion[T any](s *state, rows []*T, id func(*T) string) {
	slices.SortStableFunc(rows, func(a, b *T) int {
		return int(s.inserted[id(a)] - s.inserted[id(b)])
	})
}

// balances

type balanceRepo struct{ s *state }

func (r balanceRepo) Get(_ context.Context, tc tenant.Context, key domain.BalanceKey) (*domain.Balance, error) {
	b, ok := r.s.balances[domain.BalanceID(tc, key)]
	if !ok {
		return nil, nil
	}
	return clone(b), nil
}

func (r balanceRepo) Save(_ context.Context, balance *domain.Balance) error {
	r.s.touch(balance.ID)
	r.s.balances[balance.ID] = clone(balance)
	return nil
}

func (r balanceRepo) LockAvailableForItem(_ context.Context, tc tenant.Context, itemID string, locationIDs []string) ([]*domain.Balance, error) {
	var out []*domain.Balance
	for _, b := range r.s.balances {
		if inScope(tc, b.TenantID, b.FacilityID) && b.ItemID == itemID && b.State == domain.StateAvailable &&
			b.Quantity.IsPositive() && slices.Contains(locationIDs, b.LocationID) {
			out = append(out, clone(b))
		}
	}
	slices.SortFunc(out, func(a, b *domain.Balance) int {
		if c := b.Quantity.Cmp(a.Quantity); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (r balanceRepo) FindByItem(_ context.Context, tc tenant.Context, itemID string) ([]*domain.Balance, error) {
	return r.filter(tc, func(b *domain.Balance) bool { return b.ItemID == itemID }), nil
}

func (r balanceRepo) FindByLocation(_ context.Context, tc tenant.Context, locationID string) ([]*domain.Balance, error) {
	return r.filter(tc, func(b *domain.Balance) bool { return b.LocationID == locationID }), nil
}

func (r balanceRepo) SumAtLocation(_ context.Context, tc tenant.Context, locationID string) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, b := range r.filter(tc, func(b *domain.Balance) bool { return b.LocationID == locationID }) {
		total = total.Add(b.Quantity)
	}
	return total, nil
}

func (r balanceRepo) filter(tc tenant.Context, match func(*domain.Balance) bool) []*domain.Balance {
	var out []*domain.Balance
	for _, b := range r.s.balances {
		if inScope(tc, b.TenantID, b.FacilityID) && match(b) {
			out = append(out, clone(b))
		}
	}
	slices.SortFunc(out, func(a, b *domain.Balance) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// ledger

type ledgerRepo struct{ s *state }

func (r ledgerRepo) FindByIdempotencyKey(_ context.Context, tc tenant.Context, key string) (*domain.LedgerEntry, error) {
	id, ok := r.s.ledgerKeys[scopedKey(tc, key)]
	if !ok {
		return nil, nil
	}
	return clone(r.s.ledger[id]), nil
}

func (r ledgerRepo) Insert(_ context.Context, entry *domain.LedgerEntry) error {
	key := scopedKey(tenant.Context{TenantID: entry.TenantID, FacilityID: entry.FacilityID}, entry.IdempotencyKey)
	if _, ok := r.s.ledgerKeys[key]; ok {
		return domain.ErrDuplicateMovement
	}
	r.s.touch(entry.ID)
	r.s.ledger[entry.ID] = clone(entry)
	r.s.ledgerKeys[key] = entry.ID
	return nil
}

func (r ledgerRepo) FindByCorrelation(_ context.Context, tc tenant.Context, correlationID string) ([]*domain.LedgerEntry, error) {
	return r.filter(tc, func(e *domain.LedgerEntry) bool { return e.CorrelationID == correlationID }), nil
}

func (r ledgerRepo) FindByItem(_ context.Context, tc tenant.Context, itemID string) ([]*domain.LedgerEntry, error) {
	return r.filter(tc, func(e *domain.LedgerEntry) bool { return e.ItemID == itemID }), nil
}

func (r ledgerRepo) filter(tc tenant.Context, match func(*domain.LedgerEntry) bool) []*domain.LedgerEntry {
	var out []*domain.LedgerEntry
	for _, e := range r.s.ledger {
		if inScope(tc, e.TenantID, e.FacilityID) && match(e) {
			out = append(out, clone(e))
		}
	}
	sortByInsertion(r.s, out, func(e *domain.LedgerEntry) string { return e.ID })
	return out
}

// cost layers

type costLayerRepo struct{ s *state }

func (r costLayerRepo) FindOpen(_ context.Context, tc tenant.Context, itemID, locationID string) (domain.CostLayers, error) {
	var out []*domain.CostLayer
	for _, l := range r.s.costLayers {
		if inScope(tc, l.TenantID, l.FacilityID) && l.ItemID == itemID && l.LocationID == locationID && !l.IsEmpty() {
			out = append(out, clone(l))
		}
	}
	sortByInsertion(r.s, out, func(l *domain.CostLayer) string { return l.ID })
	slices.SortStableFunc(out, func(a, b *domain.CostLayer) int { return a.ReceivedAt.Compare(b.ReceivedAt) })
	return out, nil
}

func (r costLayerRepo) Save(_ context.Context, layer *domain.CostLayer) error {
	r.s.touch(layer.ID)
	r.s.costLayers[layer.ID] = clone(layer)
	return nil
}

// valuations

type valuationRepo struct{ s *state }

func (r valuationRepo) Get(_ context.Context, tc tenant.Context, itemID string) (*domain.ItemValuation, error) {
	v, ok := r.s.valuations[domain.ValuationID(tc, itemID)]
	if !ok {
		return nil, nil
	}
	return clone(v), nil
}

func (r valuationRepo) Save(_ context.Context, valuation *domain.ItemValuation) error {
	r.s.valuations[valuation.ID] = clone(valuation)
	return nil
}

// allocations

type allocationRepo struct{ s *state }

func (r allocationRepo) Get(_ context.Context, tc tenant.Context, allocationID string) (*domain.Allocation, error) {
	a, ok := r.s.allocations[allocationID]
	if !ok || !inScope(tc, a.TenantID, a.FacilityID) {
		return nil, nil
	}
	return clone(a), nil
}

func (r allocationRepo) FindByOrder(_ context.Context, tc tenant.Context, orderID string) ([]*domain.Allocation, error) {
	var out []*domain.Allocation
	for _, a := range r.s.allocations {
		if inScope(tc, a.TenantID, a.FacilityID) && a.OrderID == orderID {
			out = append(out, clone(a))
		}
	}
	sortByInsertion(r.s, out, func(a *domain.Allocation) string { return a.ID })
	return out, nil
}

func (r allocationRepo) Insert(_ context.Context, allocation *domain.Allocation) error {
	r.s.touch(allocation.ID)
	r.s.allocations[allocation.ID] = clone(allocation)
	return nil
}

func (r allocationRepo) Save(ctx context.Context, allocation *domain.Allocation) error {
	return r.Insert(ctx, allocation)
}

func (r allocationRepo) Delete(_ context.Context, tc tenant.Context, allocationID string) error {
	if a, ok := r.s.allocations[allocationID]; ok && inScope(tc, a.TenantID, a.FacilityID) {
		delete(r.s.allocations, allocationID)
	}
	return nil
}

// backorders

type backorderRepo struct{ s *state }

func (r backorderRepo) Get(_ context.Context, tc tenant.Context, backorderID string) (*domain.Backorder, error) {
	b, ok := r.s.backorders[backorderID]
	if !ok || !inScope(tc, b.TenantID, b.FacilityID) {
		return nil, domain.ErrBackorderNotFound
	}
	c := clone(b)
	c.DomainEvents = nil
	return c, nil
}

func (r backorderRepo) Insert(_ context.Context, backorder *domain.Backorder) error {
	r.s.touch(backorder.ID)
	c := clone(backorder)
	c.DomainEvents = nil
	r.s.backorders[backorder.ID] = c
	return nil
}

func (r backorderRepo) Save(ctx context.Context, backorder *domain.Backorder) error {
	return r.Insert(ctx, backorder)
}

func (r backorderRepo) FindByOrder(ctx context.Context, tc tenant.Context, orderID string) ([]*domain.Backorder, error) {
	return r.List(ctx, tc, domain.BackorderFilter{OrderID: orderID})
}

func (r backorderRepo) List(_ context.Context, tc tenant.Context, filter domain.BackorderFilter) ([]*domain.Backorder, error) {
	var out []*domain.Backorder
	for _, b := range r.s.backorders {
		if !inScope(tc, b.TenantID, b.FacilityID) {
			continue
		}
		if filter.OrderID != "" && b.OrderID != filter.OrderID {
			continue
		}
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		out = append(out, clone(b))
	}
	sortByInsertion(r.s, out, func(b *domain.Backorder) string { return b.ID })
	return out, nil
}

// tasks

type taskRepo struct{ s *state }

func (r taskRepo) Get(_ context.Context, tc tenant.Context, taskID string) (*domain.Task, error) {
	t, ok := r.s.tasks[taskID]
	if !ok || !inScope(tc, t.TenantID, t.FacilityID) {
		return nil, domain.ErrTaskNotFound
	}
	return cloneTask(t), nil
}

func (r taskRepo) Insert(_ context.Context, task *domain.Task) error {
	r.s.touch(task.ID)
	r.s.tasks[task.ID] = cloneTask(task)
	return nil
}

func (r taskRepo) Save(ctx context.Context, task *domain.Task) error {
	return r.Insert(ctx, task)
}

func (r taskRepo) FindForAssignee(_ context.Context, tc tenant.Context, assignee string) ([]*domain.Task, error) {
	var out []*domain.Task
	for _, t := range r.s.tasks {
		if !inScope(tc, t.TenantID, t.FacilityID) {
			continue
		}
		if t.Status != domain.TaskOpen && t.Status != domain.TaskInProgress {
			continue
		}
		if t.Assignee != "" && t.Assignee != assignee {
			continue
		}
		out = append(out, cloneTask(t))
	}
	slices.SortFunc(out, func(a, b *domain.Task) int {
		if a.Priority != b.Priority {
			return a.Priority - b.Priority
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return int(r.s.inserted[a.ID] - r.s.inserted[b.ID])
	})
	return out, nil
}

func (r taskRepo) FindBySource(_ context.Context, tc tenant.Context, sourceType domain.SourceType, sourceID string) ([]*domain.Task, error) {
	var out []*domain.Task
	for _, t := range r.s.tasks {
		if inScope(tc, t.TenantID, t.FacilityID) && t.SourceType == sourceType && t.SourceID == sourceID {
			out = append(out, cloneTask(t))
		}
	}
	sortByInsertion(r.s, out, func(t *domain.Task) string { return t.ID })
	return out, nil
}

// exceptions

type exceptionRepo struct{ s *state }

func (r exceptionRepo) Get(_ context.Context, tc tenant.Context, exceptionID string) (*domain.TaskException, error) {
	e, ok := r.s.exceptions[exceptionID]
	if !ok || !inScope(tc, e.TenantID, e.FacilityID) {
		return nil, domain.ErrExceptionNotFound
	}
	return clone(e), nil
}

func (r exceptionRepo) Insert(_ context.Context, exception *domain.TaskException) error {
	r.s.touch(exception.ID)
	c := clone(exception)
	c.DomainEvents = nil
	r.s.exceptions[exception.ID] = c
	return nil
}

func (r exceptionRepo) Save(ctx context.Context, exception *domain.TaskException) error {
	return r.Insert(ctx, exception)
}

func (r exceptionRepo) List(_ context.Context, tc tenant.Context, filter domain.ExceptionFilter) ([]*domain.TaskException, error) {
	status := filter.Status
	if status == "" {
		status = domain.ExceptionOpen
	}
	var out []*domain.TaskException
	for _, e := range r.s.exceptions {
		if !inScope(tc, e.TenantID, e.FacilityID) || e.Status != status {
			continue
		}
		if filter.Kind != "" && e.Kind != filter.Kind {
			continue
		}
		out = append(out, clone(e))
	}
	sortByInsertion(r.s, out, func(e *domain.TaskException) string { return e.ID })
	slices.Reverse(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// waves

type waveRepo struct{ s *state }

func (r waveRepo) Get(_ context.Context, tc tenant.Context, waveID string) (*domain.Wave, error) {
	w, ok := r.s.waves[waveID]
	if !ok || !inScope(tc, w.TenantID, w.FacilityID) {
		return nil, domain.ErrWaveNotFound
	}
	return cloneWave(w), nil
}

func (r waveRepo) Insert(_ context.Context, wave *domain.Wave) error {
	r.s.touch(wave.ID)
	r.s.waves[wave.ID] = cloneWave(wave)
	return nil
}

func (r waveRepo) Save(ctx context.Context, wave *domain.Wave) error {
	return r.Insert(ctx, wave)
}

func (r waveRepo) FindOpenByOrder(_ context.Context, tc tenant.Context, orderID string) (*domain.Wave, error) {
	for _, w := range r.s.waves {
		if !inScope(tc, w.TenantID, w.FacilityID) || w.Status == domain.WaveDone {
			continue
		}
		if slices.Contains(w.OrderIDs(), orderID) {
			return cloneWave(w), nil
		}
	}
	return nil, nil
}

// shipments

type shipmentRepo struct{ s *state }

func (r shipmentRepo) FindByOrder(_ context.Context, tc tenant.Context, orderID string) (*domain.Shipment, error) {
	for _, sh := range r.s.shipments {
		if inScope(tc, sh.TenantID, sh.FacilityID) && sh.OrderID == orderID {
			return cloneShipment(sh), nil
		}
	}
	return nil, nil
}

func (r shipmentRepo) Save(_ context.Context, shipment *domain.Shipment) error {
	r.s.touch(shipment.ID)
	r.s.shipments[shipment.ID] = cloneShipment(shipment)
	return nil
}

func (r shipmentRepo) FindHandlingUnit(_ context.Context, tc tenant.Context, lpn string) (*domain.HandlingUnit, error) {
	for _, hu := range r.s.handlingUnits {
		if inScope(tc, hu.TenantID, hu.FacilityID) && hu.LPN == lpn {
			return clone(hu), nil
		}
	}
	return nil, nil
}

func (r shipmentRepo) SaveHandlingUnit(_ context.Context, hu *domain.HandlingUnit) error {
	r.s.touch(hu.ID)
	r.s.handlingUnits[hu.ID] = clone(hu)
	return nil
}

// counts

type countRepo struct{ s *state }

func (r countRepo) Get(_ context.Context, tc tenant.Context, submissionID string) (*domain.CountSubmission, error) {
	c, ok := r.s.counts[submissionID]
	if !ok || !inScope(tc, c.TenantID, c.FacilityID) {
		return nil, domain.ErrCountNotFound
	}
	return clone(c), nil
}

func (r countRepo) Insert(_ context.Context, submission *domain.CountSubmission) error {
	r.s.touch(submission.ID)
	c := clone(submission)
	c.DomainEvents = nil
	r.s.counts[submission.ID] = c
	return nil
}

func (r countRepo) Save(ctx context.Context, submission *domain.CountSubmission) error {
	return r.Insert(ctx, submission)
}

func (r countRepo) List(_ context.Context, tc tenant.Context, status domain.CountStatus) ([]*domain.CountSubmission, error) {
	var out []*domain.CountSubmission
	for _, c := range r.s.counts {
		if inScope(tc, c.TenantID, c.FacilityID) && (status == "" || c.Status == status) {
			out = append(out, clone(c))
		}
	}
	sortByInsertion(r.s, out, func(c *domain.CountSubmission) string { return c.ID })
	return out, nil
}

// scan sessions

type scanSessionRepo struct{ s *state }

func (r scanSessionRepo) Get(_ context.Context, tc tenant.Context, sessionID string) (*domain.ScanSession, error) {
	ss, ok := r.s.sessions[sessionID]
	if !ok || !inScope(tc, ss.TenantID, ss.FacilityID) {
		return nil, domain.ErrScanSessionNotFound
	}
	return clone(ss), nil
}

func (r scanSessionRepo) Insert(_ context.Context, session *domain.ScanSession) error {
	r.s.touch(session.ID)
	c := clone(session)
	c.DomainEvents = nil
	r.s.sessions[session.ID] = c
	return nil
}

func (r scanSessionRepo) Save(ctx context.Context, session *domain.ScanSession) error {
	return r.Insert(ctx, session)
}

func (r scanSessionRepo) AppendEvent(_ context.Context, event *domain.ScanEvent) error {
	r.s.scanEvents = append(r.s.scanEvents, clone(event))
	return nil
}

func (r scanSessionRepo) Events(_ context.Context, tc tenant.Context, sessionID string) ([]*domain.ScanEvent, error) {
	var out []*domain.ScanEvent
	for _, e := range r.s.scanEvents {
		if e.TenantID == tc.TenantID && e.SessionID == sessionID {
			out = append(out, clone(e))
		}
	}
	return out, nil
}

func (r scanSessionRepo) FindActive(_ context.Context, tc tenant.Context, operator string, limit int) ([]*domain.ScanSession, error) {
	var out []*domain.ScanSession
	for _, ss := range r.s.sessions {
		if inScope(tc, ss.TenantID, ss.FacilityID) && ss.Operator == operator && ss.Status == domain.SessionActive {
			out = append(out, clone(ss))
		}
	}
	sortByInsertion(r.s, out, func(ss *domain.ScanSession) string { return ss.ID })
	slices.Reverse(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r scanSessionRepo) FindByHandoff(_ context.Context, tc tenant.Context, code string) (*domain.ScanSession, error) {
	for _, ss := range r.s.sessions {
		if inScope(tc, ss.TenantID, ss.FacilityID) && ss.Handoff != nil && strings.EqualFold(ss.Handoff.Code, strings.TrimSpace(code)) {
			return clone(ss), nil
		}
	}
	return nil, domain.ErrHandoffNotFound
}
