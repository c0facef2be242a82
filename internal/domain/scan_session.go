package domain

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wms-platform/warehouse-core/pkg/tenant"
)

// ScanMode selects the scan sequence of a session
type ScanMode string

const (
	ScanModeStartOp ScanMode = "START_OP"
	ScanModeIssue   ScanMode = "ISSUE"
	ScanModeReceive ScanMode = "RECEIVE"
	ScanModeQC      ScanMode = "QC"
)

// ScanKind is the kind of one scan. DONE and DECISION are session states.
type ScanKind string

const (
	ScanMO          ScanKind = "MO"
	ScanOP          ScanKind = "OP"
	ScanItem        ScanKind = "ITEM"
	ScanLoc         ScanKind = "LOC"
	ScanQty         ScanKind = "QTY"
	ScanCheck       ScanKind = "CHECK"
	ScanCheckResult ScanKind = "RESULT"
	ScanDecision    ScanKind = "DECISION"
	ScanRaw         ScanKind = "RAW"
	ScanDone        ScanKind = "DONE"
)

var scanSequences = map[ScanMode][]ScanKind{
	ScanModeStartOp: {ScanMO, ScanOP},
	ScanModeIssue:   {ScanMO, ScanOP, ScanItem, ScanLoc, ScanQty},
	ScanModeReceive: {ScanMO, ScanOP, ScanLoc, ScanQty},
	ScanModeQC:      {ScanMO, ScanOP, ScanCheck, ScanCheckResult},
}

// ParseScanMode validates a mode name
func ParseScanMode(s string) (ScanMode, error) {
	m := ScanMode(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := scanSequences[m]; !ok {
		return "", ErrInvalidScanMode
	}
	return m, nil
}

// Sequence is the ordered list of scans the mode requires
func (m ScanMode) Sequence() []ScanKind {
	return scanSequences[m]
}

// Decision choices offered when an issue is short
const (
	DecisionShortIssue = "SHORT_ISSUE"
	DecisionShort      = "SHORT"
	DecisionCancel     = "CANCEL"
	DecisionAbort      = "ABORT"
)

// ShortIssueOptions are the scans accepted in the DECISION state
var ShortIssueOptions = []string{"DECISION:" + DecisionShortIssue, "DECISION:" + DecisionCancel}

var scanPrefixes = []ScanKind{ScanMO, ScanOP, ScanItem, ScanLoc, ScanQty, ScanCheck, ScanDecision}

// ParsedScan is a raw scan split into kind and value
type ParsedScan struct {
	Kind  ScanKind `bson:"kind" json:"kind"`
	Value string   `bson:"value" json:"value"`
}

// ParseScan reads a raw barcode value. Prefixes are case-insensitive; bare
// PASS, FAIL and HOLD are results; anything else is RAW.
func ParseScan(raw string) ParsedScan {
	v := strings.TrimSpace(raw)
	up := strings.ToUpper(v)
	for _, k := range scanPrefixes {
		prefix := string(k) + ":"
		if strings.HasPrefix(up, prefix) {
			value := strings.TrimSpace(v[len(prefix):])
			if k == ScanDecision {
				value = strings.ToUpper(value)
			}
			return ParsedScan{Kind: k, Value: value}
		}
	}
	for _, r := range []string{"PASS", "FAIL", "HOLD"} {
		if strings.HasPrefix(up, r) {
			return ParsedScan{Kind: ScanCheckResult, Value: up}
		}
	}
	return ParsedScan{Kind: ScanRaw, Value: v}
}

// Normalize resolves a RAW scan against what the session expects: numerics
// become QTY and bare results become RESULT.
func (p ParsedScan) Normalize(expected ScanKind) ParsedScan {
	if p.Kind != ScanRaw {
		return p
	}
	switch expected {
	case ScanQty:
		if _, err := decimal.NewFromString(p.Value); err == nil {
			return ParsedScan{Kind: ScanQty, Value: p.Value}
		}
	case ScanCheckResult:
		up := strings.ToUpper(p.Value)
		if up == "PASS" || up == "FAIL" || up == "HOLD" {
			return ParsedScan{Kind: ScanCheckResult, Value: up}
		}
	}
	return p
}

// SessionStatus is the scan session lifecycle
type SessionStatus string

const (
	SessionActive    SessionStatus = "ACTIVE"
	SessionCompleted SessionStatus = "COMPLETED"
	SessionCancelled SessionStatus = "CANCELLED"
)

// ScanContext accumulates accepted scan values
type ScanContext struct {
	ProductionOrderID     string           `bson:"productionOrderId,omitempty" json:"productionOrderId,omitempty"`
	ProductionOrderNumber string           `bson:"productionOrderNumber,omitempty" json:"productionOrderNumber,omitempty"`
	OperationSeq          *int             `bson:"operationSeq,omitempty" json:"operationSeq,omitempty"`
	ItemID                string           `bson:"itemId,omitempty" json:"itemId,omitempty"`
	LocationID            string           `bson:"locationId,omitempty" json:"locationId,omitempty"`
	Quantity              *decimal.Decimal `bson:"quantity,omitempty" json:"quantity,omitempty"`
	CheckCode             string           `bson:"checkCode,omitempty" json:"checkCode,omitempty"`
	QCResult              string           `bson:"qcResult,omitempty" json:"qcResult,omitempty"`
}

// ScanException is the pending problem a DECISION scan must settle
type ScanException struct {
	Type     string    `bson:"type" json:"type"`
	Message  string    `bson:"message" json:"message"`
	Options  []string  `bson:"options" json:"options"`
	RaisedAt time.Time `bson:"raisedAt" json:"raisedAt"`
}

// ShortIssueResolution records how a short stock decision was executed
type ShortIssueResolution struct {
	RequestedQty decimal.Decimal `bson:"requestedQty" json:"requestedQty"`
	IssuedQty    decimal.Decimal `bson:"issuedQty" json:"issuedQty"`
	AvailableQty decimal.Decimal `bson:"availableQty" json:"availableQty"`
	ResolvedAt   time.Time       `bson:"resolvedAt" json:"resolvedAt"`
}

// PinnedScan is a supervisor-set expectation. With HardLock only Value is
// accepted; without it only the kind is pinned. It clears once accepted.
type PinnedScan struct {
	Kind     ScanKind  `bson:"kind" json:"kind"`
	Value    string    `bson:"value" json:"value"`
	HardLock bool      `bson:"hardLock" json:"hardLock"`
	SetBy    string    `bson:"setBy" json:"setBy"`
	SetAt    time.Time `bson:"setAt" json:"setAt"`
}

// Accepts reports whether a scan of the pinned kind satisfies the pin
func (p *PinnedScan) Accepts(value string) bool {
	return p == nil || !p.HardLock || strings.EqualFold(strings.TrimSpace(value), p.Value)
}

// SessionHandoff is a one-time code that moves a session to another operator
type SessionHandoff struct {
	Code     string     `bson:"code" json:"code"`
	IssuedBy string     `bson:"issuedBy" json:"issuedBy"`
	IssuedAt time.Time  `bson:"issuedAt" json:"issuedAt"`
	UsedBy   string     `bson:"usedBy,omitempty" json:"usedBy,omitempty"`
	UsedAt   *time.Time `bson:"usedAt,omitempty" json:"usedAt,omitempty"`
}

// ScanSession is an operator-owned stateful scan conversation
type ScanSession struct {
	ID         string                `bson:"_id" json:"id"`
	TenantID   string                `bson:"tenantId" json:"tenantId"`
	FacilityID string                `bson:"facilityId" json:"facilityId"`
	Mode       ScanMode              `bson:"mode" json:"mode"`
	Status     SessionStatus         `bson:"status" json:"status"`
	Expected   ScanKind              `bson:"expected" json:"expected"`
	Operator   string                `bson:"operator" json:"operator"`
	Context    ScanContext           `bson:"context" json:"context"`
	Exception  *ScanException        `bson:"exception,omitempty" json:"exception,omitempty"`
	Resolution *ShortIssueResolution `bson:"resolution,omitempty" json:"resolution,omitempty"`
	CancelNote string                `bson:"cancelNote,omitempty" json:"cancelNote,omitempty"`
	Pinned     *PinnedScan           `bson:"pinned,omitempty" json:"pinned,omitempty"`
	Handoff    *SessionHandoff       `bson:"handoff,omitempty" json:"handoff,omitempty"`
	CreatedAt  time.Time             `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time             `bson:"updatedAt" json:"updatedAt"`

	DomainEvents []DomainEvent `bson:"-" json:"-"`
}

// NewScanSession starts an ACTIVE session expecting the first scan of mode
func NewScanSession(tc tenant.Context, mode ScanMode, operator string) (*ScanSession, error) {
	seq := mode.Sequence()
	if len(seq) == 0 {
		return nil, ErrInvalidScanMode
	}
	if strings.TrimSpace(operator) == "" {
		return nil, ErrMissingActor
	}
	now := time.Now().UTC()
	return &ScanSession{
		ID:         uuid.New().String(),
		TenantID:   tc.TenantID,
		FacilityID: tc.FacilityID,
		Mode:       mode,
		Status:     SessionActive,
		Expected:   seq[0],
		Operator:   operator,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Authorize checks that operator may scan into the session
func (s *ScanSession) Authorize(operator string) error {
	if s.Operator != operator {
		return ErrSessionNotOwned
	}
	if s.Status != SessionActive {
		return ErrSessionNotActive
	}
	return nil
}

// IsLastScan reports whether the expected scan completes the sequence
func (s *ScanSession) IsLastScan() bool {
	seq := s.Mode.Sequence()
	return len(seq) > 0 && seq[len(seq)-1] == s.Expected
}

// Advance stores the accepted context and moves to the next expected scan.
// On the last scan the expectation is left in place for execution.
func (s *ScanSession) Advance(next ScanContext) {
	s.Context = next
	s.Pinned = nil
	s.UpdatedAt = time.Now().UTC()
	seq := s.Mode.Sequence()
	for i, k := range seq {
		if k == s.Expected && i < len(seq)-1 {
			s.Expected = seq[i+1]
			return
		}
	}
}

// PinExpected rewinds the session to the kind of raw, which must be the
// current or an earlier scan of the mode. A pending DECISION is dropped.
func (s *ScanSession) PinExpected(raw string, hardLock bool, supervisor string) error {
	if s.Status != SessionActive {
		return ErrSessionNotActive
	}
	if strings.TrimSpace(supervisor) == "" {
		return ErrMissingActor
	}
	parsed := ParseScan(raw)
	seq := s.Mode.Sequence()
	target := slices.Index(seq, parsed.Kind)
	if target < 0 {
		return ErrInvalidExpectedScan
	}
	if current := slices.Index(seq, s.Expected); current >= 0 && target > current {
		return ErrInvalidExpectedScan
	}
	now := time.Now().UTC()
	s.Expected = parsed.Kind
	s.Exception = nil
	s.Pinned = &PinnedScan{Kind: parsed.Kind, Value: parsed.Value, HardLock: hardLock, SetBy: supervisor, SetAt: now}
	s.UpdatedAt = now
	return nil
}

// IssueHandoff gives the owning operator a one-time code another operator
// scans to take over. A new code replaces an unused one.
func (s *ScanSession) IssueHandoff(operator string) (string, error) {
	if err := s.Authorize(operator); err != nil {
		return "", err
	}
	now := time.Now().UTC()
	code := "HS-" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:10])
	s.Handoff = &SessionHandoff{Code: code, IssuedBy: operator, IssuedAt: now}
	s.UpdatedAt = now
	return code, nil
}

// TakeOver consumes the handoff code and makes operator the owner
func (s *ScanSession) TakeOver(code, operator string) error {
	if s.Handoff == nil || !strings.EqualFold(s.Handoff.Code, strings.TrimSpace(code)) {
		return ErrHandoffNotFound
	}
	if s.Handoff.UsedAt != nil {
		return ErrHandoffUsed
	}
	if s.Status != SessionActive {
		return ErrSessionNotActive
	}
	if strings.TrimSpace(operator) == "" {
		return ErrMissingActor
	}
	now := time.Now().UTC()
	s.Handoff.UsedBy = operator
	s.Handoff.UsedAt = &now
	s.Operator = operator
	s.UpdatedAt = now
	return nil
}

// AwaitDecision parks the session on a short stock problem
func (s *ScanSession) AwaitDecision(message string) {
	now := time.Now().UTC()
	s.Exception = &ScanException{
		Type:     "SHORT_STOCK",
		Message:  message,
		Options:  append([]string(nil), ShortIssueOptions...),
		RaisedAt: now,
	}
	s.Expected = ScanDecision
	s.UpdatedAt = now
}

// Complete closes the session after execution
func (s *ScanSession) Complete(executed string) {
	now := time.Now().UTC()
	s.Status = SessionCompleted
	s.Expected = ScanDone
	s.UpdatedAt = now
	s.AddDomainEvent(&ScanSessionCompletedEvent{
		SessionID:         s.ID,
		Mode:              string(s.Mode),
		Status:            string(s.Status),
		Executed:          executed,
		Operator:          s.Operator,
		ProductionOrderID: s.Context.ProductionOrderID,
		CompletedAt:       now,
	})
}

// ResolveShortIssue completes the session with a partial issue
func (s *ScanSession) ResolveShortIssue(requested, issued, available decimal.Decimal) {
	s.Resolution = &ShortIssueResolution{
		RequestedQty: requested,
		IssuedQty:    issued,
		AvailableQty: available,
		ResolvedAt:   time.Now().UTC(),
	}
	s.Complete("ISSUE_SHORT")
}

// Cancel ends the session without executing
func (s *ScanSession) Cancel(note string) {
	now := time.Now().UTC()
	s.Status = SessionCancelled
	s.Expected = ScanDone
	s.CancelNote = note
	s.UpdatedAt = now
	s.AddDomainEvent(&ScanSessionCompletedEvent{
		SessionID:         s.ID,
		Mode:              string(s.Mode),
		Status:            string(s.Status),
		Operator:          s.Operator,
		ProductionOrderID: s.Context.ProductionOrderID,
		CompletedAt:       now,
	})
}

// AddDomainEvent adds a domain event
func (s *ScanSession) AddDomainEvent(event DomainEvent) {
	s.DomainEvents = append(s.DomainEvents, event)
}

// PullDomainEvents returns and clears pending domain events
func (s *ScanSession) PullDomainEvents() []DomainEvent {
	events := s.DomainEvents
	s.DomainEvents = nil
	return events
}

// ScanResult is the outcome of one submitted scan
type ScanResult string

const (
	ScanAccepted ScanResult = "OK"
	ScanRejected ScanResult = "REJECTED"
)

// ScanEvent is the append-only audit record of one scan
type ScanEvent struct {
	ID          string     `bson:"_id" json:"id"`
	TenantID    string     `bson:"tenantId" json:"tenantId"`
	SessionID   string     `bson:"sessionId" json:"sessionId"`
	Raw         string     `bson:"raw" json:"raw"`
	Parsed      ParsedScan `bson:"parsed" json:"parsed"`
	Expected    ScanKind   `bson:"expected" json:"expected"`
	Result      ScanResult `bson:"result" json:"result"`
	Message     string     `bson:"message,omitempty" json:"message,omitempty"`
	NewExpected ScanKind   `bson:"newExpected" json:"newExpected"`
	CreatedAt   time.Time  `bson:"createdAt" json:"createdAt"`
}

// NewScanEvent records a scan against the session's current expectation
func NewScanEvent(s *ScanSession, raw string, parsed ParsedScan, expected ScanKind, result ScanResult, message string) *ScanEvent {
	return &ScanEvent{
		ID:          uuid.New().String(),
		TenantID:    s.TenantID,
		SessionID:   s.ID,
		Raw:         raw,
		Parsed:      parsed,
		Expected:    expected,
		Result:      result,
		Message:     message,
		NewExpected: s.Expected,
		CreatedAt:   time.Now().UTC(),
	}
}
