// Package memory is an in-process implementation of the core's storage ports.
// Transactions are serialized by one mutex and rolled back by restoring a
// snapshot of the tables, which makes it suitable for tests and local runs.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/wms-platform/warehouse-core/internal/domain"
	"github.com/wms-platform/warehouse-core/pkg/outbox"
)

// state is the full set of tables. Stored values are never mutated in place;
// writes replace them with fresh copies, so a shallow copy of every map is a
// consistent snapshot.
type state struct {
	seq int64
	// inserted records the insertion order of every row for stable sorting
	inserted map[string]int64

	balances      map[string]*domain.Balance
	ledger        map[string]*domain.LedgerEntry
	ledgerKeys    map[string]string
	costLayers    map[string]*domain.CostLayer
	valuations    map[string]*domain.ItemValuation
	allocations   map[string]*domain.Allocation
	backorders    map[string]*domain.Backorder
	tasks         map[string]*domain.Task
	exceptions    map[string]*domain.TaskException
	waves         map[string]*domain.Wave
	shipments     map[string]*domain.Shipment
	handlingUnits map[string]*domain.HandlingUnit
	counts        map[string]*domain.CountSubmission
	sessions      map[string]*domain.ScanSession
	scanEvents    []*domain.ScanEvent
	outbox        map[string]*outbox.OutboxEvent
}

func newState() *state {
	return &state{
		inserted:      make(map[string]int64),
		balances:      make(map[string]*domain.Balance),
		ledger:        make(map[string]*domain.LedgerEntry),
		ledgerKeys:    make(map[string]string),
		costLayers:    make(map[string]*domain.CostLayer),
		valuations:    make(map[string]*domain.ItemValuation),
		allocations:   make(map[string]*domain.Allocation),
		backorders:    make(map[string]*domain.Backorder),
		tasks:         make(map[string]*domain.Task),
		exceptions:    make(map[string]*domain.TaskException),
		waves:         make(map[string]*domain.Wave),
		shipments:     make(map[string]*domain.Shipment),
		handlingUnits: make(map[string]*domain.HandlingUnit),
		counts:        make(map[string]*domain.CountSubmission),
		sessions:      make(map[string]*domain.ScanSession),
		outbox:        make(map[string]*outbox.OutboxEvent),
	}
}

func (s *state) snapshot() *state {
	return &state{
		seq:           s.seq,
		inserted:      maps.Clone(s.inserted),
		balances:      maps.Clone(s.balances),
		ledger:        maps.Clone(s.ledger),
		ledgerKeys:    maps.Clone(s.ledgerKeys),
		costLayers:    maps.Clone(s.costLayers),
		valuations:    maps.Clone(s.valuations),
		allocations:   maps.Clone(s.allocations),
		backorders:    maps.Clone(s.backorders),
		tasks:         maps.Clone(s.tasks),
		exceptions:    maps.Clone(s.exceptions),
		waves:         maps.Clone(s.waves),
		shipments:     maps.Clone(s.shipments),
		handlingUnits: maps.Clone(s.handlingUnits),
		counts:        maps.Clone(s.counts),
		sessions:      maps.Clone(s.sessions),
		scanEvents:    append([]*domain.ScanEvent(nil), s.scanEvents...),
		outbox:        maps.Clone(s.outbox),
	}
}

func (s *state) touch(id string) {
	if _, ok := s.inserted[id]; !ok {
		s.seq++
		s.inserted[id] = s.seq
	}
}

// Store is the in-memory database
type Store struct {
	mu   sync.Mutex
	data *state
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{data: newState()}
}

// WithinTransaction runs fn with exclusive access to the store. If fn fails
// every write it made is discarded. Transactions must not be nested.
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.data.snapshot()
	if err := fn(ctx, &repositories{s: s.data}); err != nil {
		s.data = before
		return err
	}
	return nil
}

// Outbox returns an outbox repository usable outside transactions, for the relay
func (s *Store) Outbox() outbox.Repository {
	return &lockedOutbox{store: s}
}

var _ domain.UnitOfWork = (*Store)(nil)

// repositories binds every table of one transaction
type repositories struct {
	s *state
}

func (r *repositories) Balances() domain.BalanceRepository          { return balanceRepo{r.s} }
func (r *repositories) Ledger() domain.LedgerRepository             { return ledgerRepo{r.s} }
func (r *repositories) CostLayers() domain.CostLayerRepository      { return costLayerRepo{r.s} }
func (r *repositories) Valuations() domain.ValuationRepository      { return valuationRepo{r.s} }
func (r *repositories) Allocations() domain.AllocationRepository    { return allocationRepo{r.s} }
func (r *repositories) Backorders() domain.BackorderRepository      { return backorderRepo{r.s} }
func (r *repositories) Tasks() domain.TaskRepository                { return taskRepo{r.s} }
func (r *repositories) Exceptions() domain.ExceptionRepository      { return exceptionRepo{r.s} }
func (r *repositories) Waves() domain.WaveRepository                { return waveRepo{r.s} }
func (r *repositories) Shipments() domain.ShipmentRepository        { return shipmentRepo{r.s} }
func (r *repositories) Counts() domain.CountRepository              { return countRepo{r.s} }
func (r *repositories) ScanSessions() domain.ScanSessionRepository  { return scanSessionRepo{r.s} }
func (r *repositories) Outbox() outbox.Repository                   { return outboxRepo{r.s} }
