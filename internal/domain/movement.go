package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MovementKind classifies a movement by which sides it touches
type MovementKind string

const (
	MovementReceipt       MovementKind = "RECEIPT"
	MovementIssue         MovementKind = "ISSUE"
	MovementMove          MovementKind = "MOVE"
	MovementStateTransfer MovementKind = "STATE_TRANSFER"
)

// Metadata keys understood by the ledger
const (
	MetaTaskType = "taskType"
	MetaTaskID   = "taskId"
	MetaOrderID  = "orderId"
)

// MovementRequest is one logical quantity movement.
//
// A state transfer is a movement with FromLocationID == ToLocationID and
// ToState != State: quantity leaves the State balance and lands in the
// ToState balance at the same location.
type MovementRequest struct {
	CorrelationID  string
	ItemID         string
	Quantity       decimal.Decimal
	FromLocationID string
	ToLocationID   string
	State          BalanceState
	ToState        BalanceState
	LotID          string
	ContainerID    string
	Actor          string
	Reason         string
	UnitCost       *decimal.Decimal
	Meta           map[string]string
}

// Normalized fills the state defaults: AVAILABLE, and ToState = State
func (r MovementRequest) Normalized() MovementRequest {
	if r.State == "" {
		r.State = StateAvailable
	}
	if r.ToState == "" {
		r.ToState = r.State
	}
	r.CorrelationID = strings.TrimSpace(r.CorrelationID)
	return r
}

// Kind reports which sides of the ledger the movement touches
func (r MovementRequest) Kind() MovementKind {
	switch {
	case r.FromLocationID == "":
		return MovementReceipt
	case r.ToLocationID == "":
		return MovementIssue
	case r.FromLocationID == r.ToLocationID && r.ToState != r.State:
		return MovementStateTransfer
	default:
		return MovementMove
	}
}

// Validate checks the request shape. Reference checks (item and locations
// exist) happen in the ledger against the catalog.
func (r MovementRequest) Validate() error {
	if r.CorrelationID == "" {
		return ErrMissingCorrelationID
	}
	if r.ItemID == "" {
		return ErrMissingItem
	}
	if !r.Quantity.IsPositive() {
		return ErrInvalidQuantity
	}
	if r.FromLocationID == "" && r.ToLocationID == "" {
		return ErrMissingLocation
	}
	if !r.State.IsValid() || !r.ToState.IsValid() {
		return ErrInvalidState
	}
	if r.ToState != r.State && r.FromLocationID != r.ToLocationID {
		return ErrInvalidStateTransfer
	}
	if r.FromLocationID == r.ToLocationID && r.ToState == r.State {
		return ErrInvalidStateTransfer
	}
	return nil
}

// IdempotencyKey is the dedupe key of the movement. Two requests with the same
// key are the same logical movement.
func (r MovementRequest) IdempotencyKey() string {
	return strings.Join([]string{
		r.CorrelationID,
		r.ItemID,
		r.FromLocationID,
		r.ToLocationID,
		r.LotID,
		r.ContainerID,
		string(r.State),
		string(r.ToState),
		r.Quantity.String(),
	}, "|")
}

// FromKey is the balance decremented by the movement
func (r MovementRequest) FromKey() BalanceKey {
	return BalanceKey{ItemID: r.ItemID, LocationID: r.FromLocationID, LotID: r.LotID, ContainerID: r.ContainerID, State: r.State}
}

// ToKey is the balance incremented by the movement
func (r MovementRequest) ToKey() BalanceKey {
	return BalanceKey{ItemID: r.ItemID, LocationID: r.ToLocationID, LotID: r.LotID, ContainerID: r.ContainerID, State: r.ToState}
}
