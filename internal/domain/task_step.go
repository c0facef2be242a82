package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StepKind is the physical action a step asks for
type StepKind string

const (
	StepScanLocation  StepKind = "SCAN_LOCATION"
	StepScanItem      StepKind = "SCAN_ITEM"
	StepScanLot       StepKind = "SCAN_LOT"
	StepScanContainer StepKind = "SCAN_CONTAINER"
	StepEnterQty      StepKind = "ENTER_QTY"
	StepConfirm       StepKind = "CONFIRM"
)

// StepStatus is PENDING until completed, then DONE and immutable
type StepStatus string

const (
	StepPending StepStatus = "PENDING"
	StepDone    StepStatus = "DONE"
)

// AnyContainer is the container wildcard accepted by open container scans
const AnyContainer = "*"

// StepMismatch is a scanned value that does not satisfy the expectation
type StepMismatch struct {
	Kind     ExceptionKind
	Expected string
	Got      string
}

func (m *StepMismatch) Error() string {
	return fmt.Sprintf("%s: expected %s got %s", m.Kind, m.Expected, m.Got)
}

// StepExpectation is the typed expected value of one step
type StepExpectation interface {
	Kind() StepKind
	// Check returns nil when value satisfies the expectation
	Check(value string) *StepMismatch
	// Spec flattens the expectation for storage and transport
	Spec() ExpectationSpec
}

// LocationExpectation expects a location code. An empty code accepts any location.
type LocationExpectation struct{ Code string }

func (e LocationExpectation) Kind() StepKind { return StepScanLocation }

func (e LocationExpectation) Check(value string) *StepMismatch {
	return matchCode(e.Code, value, ExceptionWrongLocation)
}

func (e LocationExpectation) Spec() ExpectationSpec {
	return ExpectationSpec{Kind: StepScanLocation, Code: e.Code}
}

// ItemExpectation expects an item SKU. An empty SKU accepts any item.
type ItemExpectation struct{ SKU string }

func (e ItemExpectation) Kind() StepKind { return StepScanItem }

func (e ItemExpectation) Check(value string) *StepMismatch {
	return matchCode(e.SKU, value, ExceptionWrongItem)
}

func (e ItemExpectation) Spec() ExpectationSpec {
	return ExpectationSpec{Kind: StepScanItem, Code: e.SKU}
}

// LotExpectation expects a lot code
type LotExpectation struct{ Code string }

func (e LotExpectation) Kind() StepKind { return StepScanLot }

func (e LotExpectation) Check(value string) *StepMismatch {
	return matchCode(e.Code, value, ExceptionWrongLot)
}

func (e LotExpectation) Spec() ExpectationSpec {
	return ExpectationSpec{Kind: StepScanLot, Code: e.Code}
}

// ContainerExpectation expects a container (cart, tote, LPN) code
type ContainerExpectation struct {
	Code     string
	AllowAny bool
}

func (e ContainerExpectation) Kind() StepKind { return StepScanContainer }

func (e ContainerExpectation) Check(value string) *StepMismatch {
	if e.AllowAny {
		if strings.TrimSpace(value) == "" {
			return &StepMismatch{Kind: ExceptionWrongContainer, Expected: AnyContainer, Got: value}
		}
		return nil
	}
	return matchCode(e.Code, value, ExceptionWrongContainer)
}

func (e ContainerExpectation) Spec() ExpectationSpec {
	return ExpectationSpec{Kind: StepScanContainer, Code: e.Code, AllowAny: e.AllowAny}
}

// QuantityExpectation expects a non-negative quantity, optionally bounded
type QuantityExpectation struct{ Max *decimal.Decimal }

func (e QuantityExpectation) Kind() StepKind { return StepEnterQty }

func (e QuantityExpectation) Check(value string) *StepMismatch {
	qty, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil || qty.IsNegative() {
		return &StepMismatch{Kind: ExceptionInvalidQty, Expected: "numeric quantity", Got: value}
	}
	if e.Max != nil && qty.GreaterThan(*e.Max) {
		return &StepMismatch{Kind: ExceptionQtyExceedsExpected, Expected: "<= " + e.Max.String(), Got: value}
	}
	return nil
}

func (e QuantityExpectation) Spec() ExpectationSpec {
	return ExpectationSpec{Kind: StepEnterQty, Max: e.Max}
}

// ConfirmExpectation accepts any value
type ConfirmExpectation struct{}

func (e ConfirmExpectation) Kind() StepKind { return StepConfirm }

func (e ConfirmExpectation) Check(string) *StepMismatch { return nil }

func (e ConfirmExpectation) Spec() ExpectationSpec {
	return ExpectationSpec{Kind: StepConfirm}
}

func matchCode(expected, got string, kind ExceptionKind) *StepMismatch {
	if expected == "" {
		return nil
	}
	if strings.TrimSpace(got) != expected {
		return &StepMismatch{Kind: kind, Expected: expected, Got: got}
	}
	return nil
}

// ExpectationSpec is the flat form of an expectation
type ExpectationSpec struct {
	Kind     StepKind         `bson:"kind" json:"kind"`
	Code     string           `bson:"code,omitempty" json:"code,omitempty"`
	AllowAny bool             `bson:"allowAny,omitempty" json:"allowAny,omitempty"`
	Max      *decimal.Decimal `bson:"max,omitempty" json:"max,omitempty"`
}

// Expectation rebuilds the typed expectation
func (s ExpectationSpec) Expectation() (StepExpectation, error) {
	switch s.Kind {
	case StepScanLocation:
		return LocationExpectation{Code: s.Code}, nil
	case StepScanItem:
		return ItemExpectation{SKU: s.Code}, nil
	case StepScanLot:
		return LotExpectation{Code: s.Code}, nil
	case StepScanContainer:
		return ContainerExpectation{Code: s.Code, AllowAny: s.AllowAny}, nil
	case StepEnterQty:
		return QuantityExpectation{Max: s.Max}, nil
	case StepConfirm:
		return ConfirmExpectation{}, nil
	default:
		return nil, fmt.Errorf("unknown step kind %q", s.Kind)
	}
}

// StepRef ties a wave pick step to its stop and line in the plan
type StepRef struct {
	Stop int `bson:"stop" json:"stop"`
	Line int `bson:"line" json:"line"`
}

// TaskStep is one ordered guided action of a task
type TaskStep struct {
	ID          string
	Seq         int
	Prompt      string
	Expected    StepExpectation
	Status      StepStatus
	Captured    string
	CompletedBy string
	CompletedAt *time.Time
	Ref         *StepRef
}

// NewStep creates a PENDING step
func NewStep(seq int, prompt string, expected StepExpectation) TaskStep {
	return TaskStep{
		ID:       uuid.New().String(),
		Seq:      seq,
		Prompt:   prompt,
		Expected: expected,
		Status:   StepPending,
	}
}

// WithRef attaches a plan reference
func (s TaskStep) WithRef(stop, line int) TaskStep {
	s.Ref = &StepRef{Stop: stop, Line: line}
	return s
}

// Kind returns the step kind
func (s *TaskStep) Kind() StepKind {
	return s.Expected.Kind()
}

// IsDone reports whether the step has been completed
func (s *TaskStep) IsDone() bool {
	return s.Status == StepDone
}

// CapturedQuantity parses the captured ENTER_QTY value
func (s *TaskStep) CapturedQuantity() (decimal.Decimal, bool) {
	if s.Kind() != StepEnterQty || !s.IsDone() {
		return decimal.Zero, false
	}
	qty, err := decimal.NewFromString(strings.TrimSpace(s.Captured))
	if err != nil {
		return decimal.Zero, false
	}
	return qty, true
}
