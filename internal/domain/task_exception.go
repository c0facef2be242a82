package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ExceptionKind is the code of a task exception
type ExceptionKind string

const (
	ExceptionWrongLocation      ExceptionKind = "WRONG_LOCATION"
	ExceptionWrongItem          ExceptionKind = "WRONG_ITEM"
	ExceptionWrongLot           ExceptionKind = "WRONG_LOT"
	ExceptionWrongContainer     ExceptionKind = "WRONG_CONTAINER"
	ExceptionQtyExceedsExpected ExceptionKind = "QTY_EXCEEDS_EXPECTED"
	ExceptionInvalidQty         ExceptionKind = "INVALID_QTY"
	ExceptionShortPick          ExceptionKind = "SHORT_PICK"
)

// ExceptionStatus is OPEN until resolved out of band
type ExceptionStatus string

const (
	ExceptionOpen     ExceptionStatus = "OPEN"
	ExceptionResolved ExceptionStatus = "RESOLVED"
)

// Resolutions of a SHORT_PICK. REALLOCATE re-runs allocation for the order,
// BACKORDER records the remaining demand, CANCEL drops it.
const (
	ShortPickReallocate = "REALLOCATE"
	ShortPickBackorder  = "BACKORDER"
	ShortPickCancel     = "CANCEL"
)

// ParseShortPickResolution normalizes a SHORT_PICK resolution; empty means REALLOCATE
func ParseShortPickResolution(s string) (string, error) {
	switch r := strings.ToUpper(strings.TrimSpace(s)); r {
	case "":
		return ShortPickReallocate, nil
	case ShortPickReallocate, ShortPickBackorder, ShortPickCancel:
		return r, nil
	}
	return "", ErrInvalidResolution
}

// OverrideStatus is the state of a supervisor override request
type OverrideStatus string

const (
	OverridePending  OverrideStatus = "PENDING"
	OverrideApproved OverrideStatus = "APPROVED"
	OverrideRejected OverrideStatus = "REJECTED"
)

// OverrideRequest asks a supervisor to accept a scanned item or location
// that did not match the step
type OverrideRequest struct {
	Status      OverrideStatus `bson:"status" json:"status"`
	Reason      string         `bson:"reason" json:"reason"`
	RequestedBy string         `bson:"requestedBy" json:"requestedBy"`
	RequestedAt time.Time      `bson:"requestedAt" json:"requestedAt"`
	DecidedBy   string         `bson:"decidedBy,omitempty" json:"decidedBy,omitempty"`
	DecidedAt   *time.Time     `bson:"decidedAt,omitempty" json:"decidedAt,omitempty"`
	Note        string         `bson:"note,omitempty" json:"note,omitempty"`
}

// ExceptionData is the structured payload of an exception
type ExceptionData struct {
	StepID       string           `bson:"stepId,omitempty" json:"stepId,omitempty"`
	Expected     string           `bson:"expected,omitempty" json:"expected,omitempty"`
	Got          string           `bson:"got,omitempty" json:"got,omitempty"`
	OrderID      string           `bson:"orderId,omitempty" json:"orderId,omitempty"`
	OrderLineID  string           `bson:"orderLineId,omitempty" json:"orderLineId,omitempty"`
	AllocationID string           `bson:"allocationId,omitempty" json:"allocationId,omitempty"`
	ItemID       string           `bson:"itemId,omitempty" json:"itemId,omitempty"`
	LocationID   string           `bson:"locationId,omitempty" json:"locationId,omitempty"`
	ExpectedQty  *decimal.Decimal `bson:"expectedQty,omitempty" json:"expectedQty,omitempty"`
	PickedQty    *decimal.Decimal `bson:"pickedQty,omitempty" json:"pickedQty,omitempty"`
	RemainingQty *decimal.Decimal `bson:"remainingQty,omitempty" json:"remainingQty,omitempty"`
}

// TaskException is the durable record of a validation or fulfilment failure
type TaskException struct {
	ID         string          `bson:"_id" json:"id"`
	TenantID   string          `bson:"tenantId" json:"tenantId"`
	FacilityID string          `bson:"facilityId" json:"facilityId"`
	TaskID     string          `bson:"taskId" json:"taskId"`
	TaskType   TaskType        `bson:"taskType" json:"taskType"`
	Kind       ExceptionKind   `bson:"kind" json:"kind"`
	Status     ExceptionStatus `bson:"status" json:"status"`
	Message    string          `bson:"message" json:"message"`
	Data       ExceptionData   `bson:"data" json:"data"`
	RaisedBy   string          `bson:"raisedBy" json:"raisedBy"`
	CreatedAt  time.Time       `bson:"createdAt" json:"createdAt"`
	ResolvedAt *time.Time      `bson:"resolvedAt,omitempty" json:"resolvedAt,omitempty"`
	ResolvedBy string          `bson:"resolvedBy,omitempty" json:"resolvedBy,omitempty"`
	Resolution string          `bson:"resolution,omitempty" json:"resolution,omitempty"`

	Override *OverrideRequest `bson:"override,omitempty" json:"override,omitempty"`

	DomainEvents []DomainEvent `bson:"-" json:"-"`
}

func newException(t *Task, kind ExceptionKind, message string, data ExceptionData, actor string) *TaskException {
	now := time.Now().UTC()
	e := &TaskException{
		ID:         uuid.New().String(),
		TenantID:   t.TenantID,
		FacilityID: t.FacilityID,
		TaskID:     t.ID,
		TaskType:   t.Type,
		Kind:       kind,
		Status:     ExceptionOpen,
		Message:    message,
		Data:       data,
		RaisedBy:   actor,
		CreatedAt:  now,
	}
	e.AddDomainEvent(&ExceptionRaisedEvent{
		ExceptionID: e.ID,
		TaskID:      t.ID,
		TaskType:    string(t.Type),
		Kind:        string(kind),
		Message:     message,
		RaisedAt:    now,
	})
	return e
}

// NewMismatchException records a step value that did not match
func NewMismatchException(t *Task, step *TaskStep, m *StepMismatch, actor string) *TaskException {
	return newException(t, m.Kind, fmt.Sprintf("Expected %s got %s", m.Expected, m.Got), ExceptionData{
		StepID:   step.ID,
		Expected: m.Expected,
		Got:      m.Got,
	}, actor)
}

// ShortPick describes an allocation picked below its expected quantity
type ShortPick struct {
	OrderID      string
	OrderLineID  string
	AllocationID string
	ItemID       string
	LocationID   string
	Expected     decimal.Decimal
	Picked       decimal.Decimal
}

// Remaining is the unpicked quantity
func (s ShortPick) Remaining() decimal.Decimal {
	return s.Expected.Sub(s.Picked)
}

// NewShortPickException records a partial pick. The task itself still completes.
func NewShortPickException(t *Task, sp ShortPick, actor string) *TaskException {
	expected, picked, remaining := sp.Expected, sp.Picked, sp.Remaining()
	e := newException(t, ExceptionShortPick,
		fmt.Sprintf("Picked %s of %s, %s short", picked, expected, remaining),
		ExceptionData{
			OrderID:      sp.OrderID,
			OrderLineID:  sp.OrderLineID,
			AllocationID: sp.AllocationID,
			ItemID:       sp.ItemID,
			LocationID:   sp.LocationID,
			ExpectedQty:  &expected,
			PickedQty:    &picked,
			RemainingQty: &remaining,
		}, actor)
	e.AddDomainEvent(&ShortPickRecordedEvent{
		ExceptionID:  e.ID,
		TaskID:       t.ID,
		OrderID:      sp.OrderID,
		OrderLineID:  sp.OrderLineID,
		AllocationID: sp.AllocationID,
		ItemID:       sp.ItemID,
		LocationID:   sp.LocationID,
		ExpectedQty:  expected,
		PickedQty:    picked,
		RemainingQty: remaining,
		RecordedAt:   e.CreatedAt,
	})
	return e
}

// IsOpen reports whether the exception still needs resolution
func (e *TaskException) IsOpen() bool {
	return e.Status == ExceptionOpen
}

// Resolve closes the exception
func (e *TaskException) Resolve(actor, resolution string) error {
	if e.Status != ExceptionOpen {
		return ErrExceptionClosed
	}
	now := time.Now().UTC()
	e.Status = ExceptionResolved
	e.ResolvedAt = &now
	e.ResolvedBy = actor
	e.Resolution = resolution
	e.AddDomainEvent(&ExceptionResolvedEvent{
		ExceptionID: e.ID,
		TaskID:      e.TaskID,
		Kind:        string(e.Kind),
		ResolvedBy:  actor,
		Resolution:  resolution,
		ResolvedAt:  now,
	})
	return nil
}

// RequestOverride opens an override request on an OPEN wrong item or wrong
// location exception. A rejected request may be asked again.
func (e *TaskException) RequestOverride(actor, reason string) error {
	if e.Status != ExceptionOpen {
		return ErrExceptionClosed
	}
	if e.Kind != ExceptionWrongItem && e.Kind != ExceptionWrongLocation {
		return ErrOverrideNotAllowed
	}
	if strings.TrimSpace(actor) == "" {
		return ErrMissingActor
	}
	if strings.TrimSpace(reason) == "" {
		return ErrMissingReason
	}
	if e.Override != nil && e.Override.Status == OverridePending {
		return ErrOverridePending
	}
	e.Override = &OverrideRequest{
		Status:      OverridePending,
		Reason:      reason,
		RequestedBy: actor,
		RequestedAt: time.Now().UTC(),
	}
	return nil
}

// DecideOverride approves or rejects the pending override. Approval also
// resolves the exception.
func (e *TaskException) DecideOverride(actor, note string, approve bool) error {
	if e.Override == nil || e.Override.Status != OverridePending {
		return ErrNoPendingOverride
	}
	if strings.TrimSpace(actor) == "" {
		return ErrMissingActor
	}
	now := time.Now().UTC()
	e.Override.DecidedBy = actor
	e.Override.DecidedAt = &now
	e.Override.Note = note
	if !approve {
		e.Override.Status = OverrideRejected
		return nil
	}
	e.Override.Status = OverrideApproved
	return e.Resolve(actor, "OVERRIDE_APPROVED")
}

// AddDomainEvent adds a domain event
func (e *TaskException) AddDomainEvent(event DomainEvent) {
	e.DomainEvents = append(e.DomainEvents, event)
}

// PullDomainEvents returns and clears pending domain events
func (e *TaskException) PullDomainEvents() []DomainEvent {
	events := e.DomainEvents
	e.DomainEvents = nil
	return events
}
