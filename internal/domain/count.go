package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wms-platform/warehouse-core/pkg/tenant"
)

// CountStatus is the review state of a count submission
type CountStatus string

const (
	CountPendingReview CountStatus = "PENDING_REVIEW"
	CountApproved      CountStatus = "APPROVED"
	CountRejected      CountStatus = "REJECTED"
)

// BlindCountMode hides the system quantity from the counter
const BlindCountMode = "blind"

// UnknownSKU stands in for a count with no scanned item
const UnknownSKU = "__UNKNOWN__"

// CountSubmission is the result of one COUNT task with its signed variance
type CountSubmission struct {
	ID                string          `bson:"_id" json:"id"`
	TenantID          string          `bson:"tenantId" json:"tenantId"`
	FacilityID        string          `bson:"facilityId" json:"facilityId"`
	CountID           string          `bson:"countId" json:"countId"`
	CountLineID       string          `bson:"countLineId" json:"countLineId"`
	TaskID            string          `bson:"taskId" json:"taskId"`
	LocationID        string          `bson:"locationId" json:"locationId"`
	ItemID            string          `bson:"itemId" json:"itemId"`
	SKU               string          `bson:"sku" json:"sku"`
	CountedQty        decimal.Decimal `bson:"countedQty" json:"countedQty"`
	ExpectedQty       decimal.Decimal `bson:"expectedQty" json:"expectedQty"`
	VarianceQty       decimal.Decimal `bson:"varianceQty" json:"varianceQty"`
	Mode              string          `bson:"mode" json:"mode"`
	Status            CountStatus     `bson:"status" json:"status"`
	SubmittedBy       string          `bson:"submittedBy" json:"submittedBy"`
	ReviewedBy        string          `bson:"reviewedBy,omitempty" json:"reviewedBy,omitempty"`
	ReviewedAt        *time.Time      `bson:"reviewedAt,omitempty" json:"reviewedAt,omitempty"`
	ReviewNote        string          `bson:"reviewNote,omitempty" json:"reviewNote,omitempty"`
	AdjustmentEntryID string          `bson:"adjustmentEntryId,omitempty" json:"adjustmentEntryId,omitempty"`
	CreatedAt         time.Time       `bson:"createdAt" json:"createdAt"`

	DomainEvents []DomainEvent `bson:"-" json:"-"`
}

// CountObservation is what a counter reported at a location
type CountObservation struct {
	Context  CountContext
	TaskID   string
	ItemID   string
	SKU      string
	Counted  decimal.Decimal
	Expected decimal.Decimal
	Actor    string
}

// NewCountSubmission records a count. A zero variance is approved on the spot
// with the counter as reviewer.
func NewCountSubmission(tc tenant.Context, obs CountObservation) *CountSubmission {
	now := time.Now().UTC()
	variance := obs.Counted.Sub(obs.Expected)
	mode := obs.Context.Mode
	if mode == "" {
		mode = BlindCountMode
	}
	s := &CountSubmission{
		ID:          uuid.New().String(),
		TenantID:    tc.TenantID,
		FacilityID:  tc.FacilityID,
		CountID:     obs.Context.CountID,
		CountLineID: obs.Context.CountLineID,
		TaskID:      obs.TaskID,
		LocationID:  obs.Context.LocationID,
		ItemID:      obs.ItemID,
		SKU:         obs.SKU,
		CountedQty:  obs.Counted,
		ExpectedQty: obs.Expected,
		VarianceQty: variance,
		Mode:        mode,
		Status:      CountPendingReview,
		SubmittedBy: obs.Actor,
		CreatedAt:   now,
	}
	if variance.IsZero() {
		s.Status = CountApproved
		s.ReviewedBy = obs.Actor
		s.ReviewedAt = &now
	}
	s.AddDomainEvent(&CountSubmittedEvent{
		SubmissionID: s.ID,
		TaskID:       obs.TaskID,
		LocationCode: obs.Context.LocationCode,
		SKU:          obs.SKU,
		Counted:      obs.Counted,
		Expected:     obs.Expected,
		Variance:     variance,
		Status:       string(s.Status),
		SubmittedAt:  now,
	})
	return s
}

// HasVariance reports whether the count disagrees with the system
func (s *CountSubmission) HasVariance() bool {
	return !s.VarianceQty.IsZero()
}

// AdjustmentCorrelation is the correlation id of the approval movement
func (s *CountSubmission) AdjustmentCorrelation() string {
	return fmt.Sprintf("count-adjust:%s", s.ID)
}

// Approve accepts the variance. entryID is the adjustment ledger entry, empty
// when no movement was needed.
func (s *CountSubmission) Approve(actor, entryID string) error {
	if s.Status != CountPendingReview {
		return ErrCountNotPending
	}
	now := time.Now().UTC()
	s.Status = CountApproved
	s.ReviewedBy = actor
	s.ReviewedAt = &now
	s.AdjustmentEntryID = entryID
	s.AddDomainEvent(&CountAdjustmentApprovedEvent{
		SubmissionID: s.ID,
		ItemID:       s.ItemID,
		LocationID:   s.LocationID,
		Variance:     s.VarianceQty,
		EntryID:      entryID,
		ApprovedBy:   actor,
		ApprovedAt:   now,
	})
	return nil
}

// Reject discards the count without touching inventory
func (s *CountSubmission) Reject(actor, note string) error {
	if s.Status != CountPendingReview {
		return ErrCountNotPending
	}
	now := time.Now().UTC()
	s.Status = CountRejected
	s.ReviewedBy = actor
	s.ReviewedAt = &now
	s.ReviewNote = note
	s.AddDomainEvent(&CountRejectedEvent{
		SubmissionID: s.ID,
		RejectedBy:   actor,
		Note:         note,
		RejectedAt:   now,
	})
	return nil
}

// AddDomainEvent adds a domain event
func (s *CountSubmission) AddDomainEvent(event DomainEvent) {
	s.DomainEvents = append(s.DomainEvents, event)
}

// PullDomainEvents returns and clears pending domain events
func (s *CountSubmission) PullDomainEvents() []DomainEvent {
	events := s.DomainEvents
	s.DomainEvents = nil
	return events
}
