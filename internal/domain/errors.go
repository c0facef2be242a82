package domain

import "errors"

// Validation errors, rejected before any mutation
var (
	ErrInvalidQuantity      = errors.New("quantity must be positive")
	ErrMissingCorrelationID = errors.New("correlation id is required")
	ErrMissingItem          = errors.New("item is required")
	ErrMissingLocation      = errors.New("at least one of from/to location is required")
	ErrInvalidStateTransfer = errors.New("state transfer requires from == to and a different target state")
	ErrInvalidState         = errors.New("invalid balance state")
	ErrMissingActor         = errors.New("actor is required")
	ErrEmptyWave            = errors.New("wave requires at least one order")
	ErrInvalidScanMode      = errors.New("scan mode must be one of START_OP, ISSUE, RECEIVE, QC")
	ErrInvalidResolution    = errors.New("short pick resolution must be one of REALLOCATE, BACKORDER, CANCEL")
	ErrMissingReason        = errors.New("reason is required")
	ErrOverrideNotAllowed   = errors.New("only WRONG_ITEM and WRONG_LOCATION exceptions can be overridden")
	ErrInvalidHoldState     = errors.New("hold state must be HOLD or QUARANTINE")
	ErrInvalidExpectedScan  = errors.New("expected scan must be a current or earlier step of the session")
)

// Reference errors
var (
	ErrUnknownItem     = errors.New("item not found")
	ErrUnknownLocation = errors.New("location not found")
	ErrUnknownLot      = errors.New("lot not found")
	ErrNoBinLocations  = errors.New("no BIN locations exist")
)

// Lookup errors
var (
	ErrTaskNotFound            = errors.New("task not found")
	ErrStepNotFound            = errors.New("task step not found")
	ErrWaveNotFound            = errors.New("wave not found")
	ErrExceptionNotFound       = errors.New("task exception not found")
	ErrBackorderNotFound       = errors.New("backorder not found")
	ErrCountNotFound           = errors.New("count submission not found")
	ErrScanSessionNotFound     = errors.New("scan session not found")
	ErrOrderNotFound           = errors.New("order not found")
	ErrReceiptNotFound         = errors.New("receipt not found")
	ErrCountRequestNotFound    = errors.New("count request not found")
	ErrProductionOrderNotFound = errors.New("production order not found")
	ErrHoldNotFound            = errors.New("qc hold not found")
	ErrHandoffNotFound         = errors.New("handoff code not found")
)

// Inventory errors
var (
	// ErrInsufficientInventory is returned when a decrement would take a balance below zero
	ErrInsufficientInventory = errors.New("insufficient inventory")

	// ErrDuplicateMovement is returned by stores when an idempotency key already exists
	ErrDuplicateMovement = errors.New("movement already recorded")
)

// State machine errors
var (
	ErrTaskClosed         = errors.New("task is already closed")
	ErrTaskInException    = errors.New("task is in EXCEPTION and must be resumed first")
	ErrTaskNotInException = errors.New("task is not in EXCEPTION")
	ErrStepOutOfOrder     = errors.New("steps must be completed in sequence")
	ErrWaveNotPlanned     = errors.New("wave can only be released from PLANNED")
	ErrExceptionClosed    = errors.New("exception is not OPEN")
	ErrBackorderClosed    = errors.New("backorder is not OPEN")
	ErrCountNotPending    = errors.New("count submission is not PENDING_REVIEW")
	ErrSessionNotActive   = errors.New("scan session is not ACTIVE")
	ErrSessionNotOwned    = errors.New("scan session owned by a different operator")
	ErrOrderAlreadyInWave = errors.New("order is already part of an active wave")
	ErrAllocationNotOpen  = errors.New("allocation is no longer open")
	ErrOrderWaveReleased  = errors.New("order belongs to a released wave")
	ErrOverridePending    = errors.New("an override request is already pending")
	ErrNoPendingOverride  = errors.New("exception has no pending override request")
	ErrHoldReleased       = errors.New("qc hold is no longer in HOLD")
	ErrHandoffUsed        = errors.New("handoff code already used")
)
