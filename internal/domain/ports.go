package domain

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/wms-platform/warehouse-core/pkg/outbox"
	"github.com/wms-platform/warehouse-core/pkg/tenant"
)

// Store-level list limits
const (
	DefaultExceptionListLimit = 200
	DefaultActiveSessionLimit = 50
)

// BalanceRepository persists quantity balances. Balances are never deleted.
type BalanceRepository interface {
	// Get returns nil, nil when the balance does not exist yet
	Get(ctx context.Context, tc tenant.Context, key BalanceKey) (*Balance, error)
	Save(ctx context.Context, balance *Balance) error
	// LockAvailableForItem returns AVAILABLE balances > 0 of item in pickable
	// locations, largest first, locked for the rest of the transaction
	LockAvailableForItem(ctx context.Context, tc tenant.Context, itemID string, locationIDs []string) ([]*Balance, error)
	FindByItem(ctx context.Context, tc tenant.Context, itemID string) ([]*Balance, error)
	FindByLocation(ctx context.Context, tc tenant.Context, locationID string) ([]*Balance, error)
	// SumAtLocation totals every state at a location
	SumAtLocation(ctx context.Context, tc tenant.Context, locationID string) (decimal.Decimal, error)
}

// LedgerRepository is the append-only movement journal
type LedgerRepository interface {
	// FindByIdempotencyKey returns nil, nil when no entry exists
	FindByIdempotencyKey(ctx context.Context, tc tenant.Context, key string) (*LedgerEntry, error)
	// Insert returns ErrDuplicateMovement when the idempotency key is taken
	Insert(ctx context.Context, entry *LedgerEntry) error
	FindByCorrelation(ctx context.Context, tc tenant.Context, correlationID string) ([]*LedgerEntry, error)
	FindByItem(ctx context.Context, tc tenant.Context, itemID string) ([]*LedgerEntry, error)
}

// CostLayerRepository persists FIFO layers
type CostLayerRepository interface {
	// FindOpen returns layers with remaining quantity, oldest first
	FindOpen(ctx context.Context, tc tenant.Context, itemID, locationID string) (CostLayers, error)
	Save(ctx context.Context, layer *CostLayer) error
}

// ValuationRepository persists per-item valuation state
type ValuationRepository interface {
	// Get returns nil, nil when the item has no valuation yet
	Get(ctx context.Context, tc tenant.Context, itemID string) (*ItemValuation, error)
	Save(ctx context.Context, valuation *ItemValuation) error
}

// AllocationRepository persists order allocations
type AllocationRepository interface {
	// Get returns nil, nil when the allocation no longer exists
	Get(ctx context.Context, tc tenant.Context, allocationID string) (*Allocation, error)
	FindByOrder(ctx context.Context, tc tenant.Context, orderID string) ([]*Allocation, error)
	Insert(ctx context.Context, allocation *Allocation) error
	Save(ctx context.Context, allocation *Allocation) error
	Delete(ctx context.Context, tc tenant.Context, allocationID string) error
}

// BackorderFilter narrows backorder listings
type BackorderFilter struct {
	OrderID string
	Status  BackorderStatus
}

// BackorderRepository persists backorders
type BackorderRepository interface {
	Get(ctx context.Context, tc tenant.Context, backorderID string) (*Backorder, error)
	Insert(ctx context.Context, backorder *Backorder) error
	Save(ctx context.Context, backorder *Backorder) error
	FindByOrder(ctx context.Context, tc tenant.Context, orderID string) ([]*Backorder, error)
	List(ctx context.Context, tc tenant.Context, filter BackorderFilter) ([]*Backorder, error)
}

// TaskRepository persists tasks with their steps
type TaskRepository interface {
	Get(ctx context.Context, tc tenant.Context, taskID string) (*Task, error)
	Insert(ctx context.Context, task *Task) error
	Save(ctx context.Context, task *Task) error
	// FindForAssignee returns OPEN and IN_PROGRESS tasks assigned to assignee or
	// unassigned, by priority then creation time
	FindForAssignee(ctx context.Context, tc tenant.Context, assignee string) ([]*Task, error)
	FindBySource(ctx context.Context, tc tenant.Context, sourceType SourceType, sourceID string) ([]*Task, error)
}

// ExceptionFilter narrows exception listings. An empty Status means OPEN.
type ExceptionFilter struct {
	Kind   ExceptionKind
	Status ExceptionStatus
	Limit  int
}

// ExceptionRepository persists task exceptions
type ExceptionRepository interface {
	Get(ctx context.Context, tc tenant.Context, exceptionID string) (*TaskException, error)
	Insert(ctx context.Context, exception *TaskException) error
	Save(ctx context.Context, exception *TaskException) error
	// List returns matches newest first
	List(ctx context.Context, tc tenant.Context, filter ExceptionFilter) ([]*TaskException, error)
}

// WaveRepository persists waves
type WaveRepository interface {
	Get(ctx context.Context, tc tenant.Context, waveID string) (*Wave, error)
	Insert(ctx context.Context, wave *Wave) error
	Save(ctx context.Context, wave *Wave) error
	// FindOpenByOrder returns the PLANNED or RELEASED wave holding orderID, or nil
	FindOpenByOrder(ctx context.Context, tc tenant.Context, orderID string) (*Wave, error)
}

// ShipmentRepository persists shipments and handling units
type ShipmentRepository interface {
	// FindByOrder returns nil, nil when the order has no shipment yet
	FindByOrder(ctx context.Context, tc tenant.Context, orderID string) (*Shipment, error)
	Save(ctx context.Context, shipment *Shipment) error
	// FindHandlingUnit returns nil, nil for an unknown LPN
	FindHandlingUnit(ctx context.Context, tc tenant.Context, lpn string) (*HandlingUnit, error)
	SaveHandlingUnit(ctx context.Context, hu *HandlingUnit) error
}

// CountRepository persists count submissions
type CountRepository interface {
	Get(ctx context.Context, tc tenant.Context, submissionID string) (*CountSubmission, error)
	Insert(ctx context.Context, submission *CountSubmission) error
	Save(ctx context.Context, submission *CountSubmission) error
	// List returns submissions in status, oldest first; empty status lists all
	List(ctx context.Context, tc tenant.Context, status CountStatus) ([]*CountSubmission, error)
}

// ScanSessionRepository persists scan sessions and their audit trail
type ScanSessionRepository interface {
	Get(ctx context.Context, tc tenant.Context, sessionID string) (*ScanSession, error)
	Insert(ctx context.Context, session *ScanSession) error
	Save(ctx context.Context, session *ScanSession) error
	AppendEvent(ctx context.Context, event *ScanEvent) error
	Events(ctx context.Context, tc tenant.Context, sessionID string) ([]*ScanEvent, error)
	// FindActive returns ACTIVE sessions of operator, newest first
	FindActive(ctx context.Context, tc tenant.Context, operator string, limit int) ([]*ScanSession, error)
	// FindByHandoff returns the session that issued code, or ErrHandoffNotFound
	FindByHandoff(ctx context.Context, tc tenant.Context, code string) (*ScanSession, error)
}

// Repositories is the set of stores bound to one unit of work. Unless noted
// otherwise, Get on an unknown id returns the aggregate's Err*NotFound sentinel.
type Repositories interface {
	Balances() BalanceRepository
	Ledger() LedgerRepository
	CostLayers() CostLayerRepository
	Valuations() ValuationRepository
	Allocations() AllocationRepository
	Backorders() BackorderRepository
	Tasks() TaskRepository
	Exceptions() ExceptionRepository
	Waves() WaveRepository
	Shipments() ShipmentRepository
	Counts() CountRepository
	ScanSessions() ScanSessionRepository
	Outbox() outbox.Repository
}

// UnitOfWork runs fn atomically. Every write through repos, outbox included,
// commits together or not at all.
type UnitOfWork interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// AllocationLocker serializes allocation per item across processes
type AllocationLocker interface {
	// Lock acquires every item lock in sorted order and returns the release func
	Lock(ctx context.Context, tc tenant.Context, itemIDs []string) (func(), error)
}
