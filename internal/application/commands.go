package application

import (
	"github.com/shopspring/decimal"

	"github.com/wms-platform/warehouse-core/internal/domain"
)

// ApplyMovementCommand represents one ledger movement
type ApplyMovementCommand struct {
	CorrelationID  string
	ItemID         string
	Quantity       decimal.Decimal
	FromLocationID string // empty for a receipt
	ToLocationID   string // empty for an issue
	State          domain.BalanceState
	ToState        domain.BalanceState // differs from State only for a state transfer
	LotID          string
	ContainerID    string
	Actor          string
	Reason         string
	UnitCost       *decimal.Decimal // receipt cost override
	Meta           map[string]string
}

func (c ApplyMovementCommand) request() domain.MovementRequest {
	return domain.MovementRequest{
		CorrelationID:  c.CorrelationID,
		ItemID:         c.ItemID,
		Quantity:       c.Quantity,
		FromLocationID: c.FromLocationID,
		ToLocationID:   c.ToLocationID,
		State:          c.State,
		ToState:        c.ToState,
		LotID:          c.LotID,
		ContainerID:    c.ContainerID,
		Actor:          c.Actor,
		Reason:         c.Reason,
		UnitCost:       c.UnitCost,
		Meta:           c.Meta,
	}.Normalized()
}

// ReservationCommand moves quantity between AVAILABLE and RESERVED at one location
type ReservationCommand struct {
	CorrelationID string
	ItemID        string
	LocationID    string
	LotID         string
	ContainerID   string
	Quantity      decimal.Decimal
	Actor         string
	Reason        string
}

// BalanceQuery selects balances by item, location, or both
type BalanceQuery struct {
	ItemID     string
	LocationID string
}

// LedgerQuery selects ledger entries by correlation id or item
type LedgerQuery struct {
	CorrelationID string
	ItemID        string
}

// CreatePutawayTaskCommand represents a request to move stock from staging to a bin
type CreatePutawayTaskCommand struct {
	ItemID         string
	FromLocationID string
	LotID          string
	Quantity       decimal.Decimal
	Actor          string
}

// CompleteStepCommand represents one scan or entry against a task step
type CompleteStepCommand struct {
	TaskID string
	StepID string
	Value  string
	Actor  string
}

// CancelTaskCommand represents the command to cancel a task
type CancelTaskCommand struct {
	TaskID string
	Actor  string
	Reason string
}

// CreateWaveCommand represents the command to batch orders into a wave
type CreateWaveCommand struct {
	OrderIDs []string
	Actor    string
}

// ReleaseWaveCommand represents the command to release a planned wave
type ReleaseWaveCommand struct {
	WaveID string
	Actor  string
}

// ResolveExceptionCommand represents the command to close a task exception
type ResolveExceptionCommand struct {
	ExceptionID string
	Actor       string
	Resolution  string
}

// CloseBackorderCommand resolves or cancels a backorder
type CloseBackorderCommand struct {
	BackorderID string
	Actor       string
	Note        string
}

// ReviewCountCommand approves or rejects a count submission
type ReviewCountCommand struct {
	SubmissionID string
	Actor        string
	Note         string
}

// StartSessionCommand opens a scan session
type StartSessionCommand struct {
	Mode     string
	Operator string
}

// SubmitScanCommand submits one raw scan to a session
type SubmitScanCommand struct {
	SessionID string
	Operator  string
	Raw       string
}

// CancelSessionCommand ends a session without executing it
type CancelSessionCommand struct {
	SessionID string
	Operator  string
	Note      string
}

// PinExpectedScanCommand sets a session's next expected scan
type PinExpectedScanCommand struct {
	SessionID  string
	Supervisor string
	Raw        string
	HardLock   bool
}

// HoldStockCommand moves AVAILABLE stock into HOLD or QUARANTINE
type HoldStockCommand struct {
	HoldID      string // generated when empty
	ItemID      string
	LocationID  string
	LotID       string
	ContainerID string
	Quantity    decimal.Decimal
	State       domain.BalanceState // HOLD when empty
	Reason      string
	Actor       string
}

// ReleaseHoldCommand returns held stock to AVAILABLE
type ReleaseHoldCommand struct {
	HoldID string
	Actor  string
	Reason string
}

// OverrideCommand requests or decides a supervisor override of a task exception
type OverrideCommand struct {
	ExceptionID string
	Actor       string
	Reason      string
}
