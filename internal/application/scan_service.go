package application

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wms-platform/warehouse-core/internal/domain"
	"github.com/wms-platform/warehouse-core/pkg/errors"
	"github.com/wms-platform/warehouse-core/pkg/logging"
	"github.com/wms-platform/warehouse-core/pkg/metrics"
	"github.com/wms-platform/warehouse-core/pkg/tenant"
	"github.com/wms-platform/warehouse-core/pkg/tracing"
)

// ScanService runs manufacturing scan sessions
type ScanService struct {
	uow        domain.UnitOfWork
	catalog    domain.ReferenceCatalog
	production domain.ProductionOrders
	ledger     *LedgerService
	events     *eventRecorder
	metrics    *metrics.Metrics
	logger     *logging.Logger
}

// NewScanService creates a new ScanService
func NewScanService(
	uow domain.UnitOfWork,
	catalog domain.ReferenceCatalog,
	production domain.ProductionOrders,
	ledger *LedgerService,
	m *metrics.Metrics,
	logger *logging.Logger,
) *ScanService {
	return &ScanService{
		uow:        uow,
		catalog:    catalog,
		production: production,
		ledger:     ledger,
		events:     newEventRecorder(),
		metrics:    m,
		logger:     logger.WithComponent("scan"),
	}
}

// scanRejection is a scan refused by the protocol. The REJECTED event is
// committed before the rejection reaches the caller.
type scanRejection struct {
	message string
}

func (r *scanRejection) Error() string { return r.message }

func reject(format string, args ...any) error {
	return &scanRejection{message: fmt.Sprintf(format, args...)}
}

// StartSession opens an ACTIVE session for operator
func (s *ScanService) StartSession(ctx context.Context, tc tenant.Context, cmd StartSessionCommand) (*domain.ScanSession, error) {
	if err := tc.Validate(); err != nil {
		return nil, toAppError(err)
	}
	mode, err := domain.ParseScanMode(cmd.Mode)
	if err != nil {
		return nil, toAppError(err)
	}
	session, err := domain.NewScanSession(tc, mode, cmd.Operator)
	if err != nil {
		return nil, toAppError(err)
	}
	err = s.uow.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		return repos.ScanSessions().Insert(ctx, session)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save scan session: %w", err)
	}
	s.logger.Info("Started scan session", "sessionId", session.ID, "mode", mode, "operator", cmd.Operator)
	return session, nil
}

// ActiveSessions lists an operator's ACTIVE sessions, newest first
func (s *ScanService) ActiveSessions(ctx context.Context, tc tenant.Context, operator string) ([]*domain.ScanSession, error) {
	var out []*domain.ScanSession
	err := s.uow.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		out, err = repos.ScanSessions().FindActive(ctx, tc, operator, domain.DefaultActiveSessionLimit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list scan sessions: %w", err)
	}
	return out, nil
}

// SessionEvents returns the scan audit trail of a session
func (s *ScanService) SessionEvents(ctx context.Context, tc tenant.Context, sessionID string) ([]*domain.ScanEvent, error) {
	var out []*domain.ScanEvent
	err := s.uow.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if _, err := repos.ScanSessions().Get(ctx, tc, sessionID); err != nil {
			return err
		}
		var err error
		out, err = repos.ScanSessions().Events(ctx, tc, sessionID)
		return err
	})
	if err != nil {
		return nil, toAppError(err)
	}
	return out, nil
}

// CancelSession cancels an ACTIVE session. A session that is already closed
// is returned unchanged.
func (s *ScanService) CancelSession(ctx context.Context, tc tenant.Context, cmd CancelSessionCommand) (*domain.ScanSession, error) {
	var session *domain.ScanSession
	err := s.uow.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		session, err = repos.ScanSessions().Get(ctx, tc, cmd.SessionID)
		if err != nil {
			return err
		}
		if session.Operator != cmd.Operator {
			return domain.ErrSessionNotOwned
		}
		if session.Status != domain.SessionActive {
			return nil
		}
		expected := session.Expected
		session.Cancel(cmd.Note)
		event := domain.NewScanEvent(session, "CANCEL", domain.ParsedScan{Kind: domain.ScanRaw, Value: cmd.Note}, expected, domain.ScanAccepted, "CANCELLED")
		return s.saveTx(ctx, repos, tc, session, event)
	})
	if err != nil {
		return nil, toAppError(err)
	}
	return session, nil
}

// PinExpectedScan lets a supervisor rewind a session to an earlier scan and
// optionally lock it to one exact value
func (s *ScanService) PinExpectedScan(ctx context.Context, tc tenant.Context, cmd PinExpectedScanCommand) (*domain.ScanSession, error) {
	var session *domain.ScanSession
	err := s.uow.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		session, err = repos.ScanSessions().Get(ctx, tc, cmd.SessionID)
		if err != nil {
			return err
		}
		expected := session.Expected
		if err := session.PinExpected(cmd.Raw, cmd.HardLock, cmd.Supervisor); err != nil {
			return err
		}
		message := "EXPECTED_SET"
		if cmd.HardLock {
			message = "EXPECTED_SET_HARD_LOCK"
		}
		event := domain.NewScanEvent(session, cmd.Raw, domain.ParseScan(cmd.Raw), expected, domain.ScanAccepted, message+" by "+cmd.Supervisor)
		return s.saveTx(ctx, repos, tc, session, event)
	})
	if err != nil {
		return nil, toAppError(err)
	}
	s.logger.Audit(ctx, "set_expected_scan", "scan_session", session.ID, cmd.Supervisor,
		map[string]any{"expected": session.Expected, "hardLock": cmd.HardLock})
	return session, nil
}

// IssueHandoff returns a one-time code the owner hands to the next operator
func (s *ScanService) IssueHandoff(ctx context.Context, tc tenant.Context, sessionID, operator string) (string, error) {
	var code string
	err := s.uow.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		session, err := repos.ScanSessions().Get(ctx, tc, sessionID)
		if err != nil {
			return err
		}
		if code, err = session.IssueHandoff(operator); err != nil {
			return err
		}
		return repos.ScanSessions().Save(ctx, session)
	})
	if err != nil {
		return "", toAppError(err)
	}
	s.logger.Audit(ctx, "handoff_issue", "scan_session", sessionID, operator, nil)
	return code, nil
}

// ResumeHandoff moves the session behind code to operator. A code works once.
func (s *ScanService) ResumeHandoff(ctx context.Context, tc tenant.Context, code, operator string) (*domain.ScanSession, error) {
	if strings.TrimSpace(code) == "" {
		return nil, errors.ErrValidation("handoff code is required")
	}
	var session *domain.ScanSession
	err := s.uow.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		session, err = repos.ScanSessions().FindByHandoff(ctx, tc, code)
		if err != nil {
			return err
		}
		previous := session.Operator
		if err := session.TakeOver(code, operator); err != nil {
			return err
		}
		event := domain.NewScanEvent(session, code, domain.ParsedScan{Kind: domain.ScanRaw, Value: code}, session.Expected, domain.ScanAccepted, "HANDOFF from "+previous)
		return s.saveTx(ctx, repos, tc, session, event)
	})
	if err != nil {
		return nil, toAppError(err)
	}
	s.logger.Audit(ctx, "handoff_resume", "scan_session", session.ID, operator, nil)
	return session, nil
}

// SubmitScan feeds one raw scan into a session. A scan of the wrong kind or
// with an invalid value is recorded as REJECTED and returned as a conflict;
// the session keeps its expectation. An ISSUE that finds too little stock
// parks the session on a DECISION and reports ok=false without an error.
func (s *ScanService) SubmitScan(ctx context.Context, tc tenant.Context, cmd SubmitScanCommand) (*ScanResultDTO, error) {
	if err := tc.Validate(); err != nil {
		return nil, toAppError(err)
	}
	return tracing.TracedOperation(ctx, tracer, "scan.SubmitScan", func(ctx context.Context) (*ScanResultDTO, error) {
		var (
			result   *ScanResultDTO
			rejected *scanRejection
			expected domain.ScanKind
		)
		err := s.uow.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
			session, err := repos.ScanSessions().Get(ctx, tc, cmd.SessionID)
			if err != nil {
				return err
			}
			if err := session.Authorize(cmd.Operator); err != nil {
				return err
			}

			expected = session.Expected
			parsed := domain.ParseScan(cmd.Raw).Normalize(expected)
			result, err = s.apply(ctx, repos, tc, session, parsed, cmd.Operator)
			if !stderrors.As(err, &rejected) {
				if err != nil {
					return err
				}
				event := domain.NewScanEvent(session, cmd.Raw, parsed, expected, eventResult(result), result.Message)
				result.Event = event
				return s.saveTx(ctx, repos, tc, session, event)
			}

			// the session is reloaded so nothing apply changed is kept
			session, err = repos.ScanSessions().Get(ctx, tc, cmd.SessionID)
			if err != nil {
				return err
			}
			return repos.ScanSessions().AppendEvent(ctx, domain.NewScanEvent(session, cmd.Raw, parsed, expected, domain.ScanRejected, rejected.message))
		})
		if err != nil {
			s.logger.WithError(err).Warn("Failed to process scan", "sessionId", cmd.SessionID)
			return nil, toAppError(err)
		}
		if rejected != nil {
			s.metrics.RecordScanRejected(string(expected))
			return nil, errors.ErrConflict(rejected.message).WithDetail("sessionId", cmd.SessionID)
		}
		if result.Executed != "" {
			s.logger.Info("Executed scan session", "sessionId", cmd.SessionID, "executed", result.Executed)
		}
		return result, nil
	}, attribute.String("scan.session_id", cmd.SessionID))
}

func eventResult(r *ScanResultDTO) domain.ScanResult {
	if r.OK {
		return domain.ScanAccepted
	}
	return domain.ScanRejected
}

// apply validates one scan against the session and advances or executes it
func (s *ScanService) apply(ctx context.Context, repos domain.Repositories, tc tenant.Context, session *domain.ScanSession, parsed domain.ParsedScan, operator string) (*ScanResultDTO, error) {
	result := &ScanResultDTO{OK: true, Session: session}
	if session.Expected == domain.ScanDecision {
		return s.decide(ctx, repos, tc, session, parsed, operator)
	}
	if parsed.Kind != session.Expected {
		return result, reject("Expected %s scan", session.Expected)
	}
	if !session.Pinned.Accepts(parsed.Value) {
		return result, reject("Expected %s:%s scan", session.Pinned.Kind, session.Pinned.Value)
	}

	next := session.Context
	switch session.Expected {
	case domain.ScanMO:
		order, err := s.production.FindOrder(ctx, tc, parsed.Value)
		if stderrors.Is(err, domain.ErrProductionOrderNotFound) {
			return result, reject("MO not found")
		}
		if err != nil {
			return nil, err
		}
		next.ProductionOrderID, next.ProductionOrderNumber = order.ID, order.Number
	case domain.ScanOP:
		seq, err := strconv.Atoi(parsed.Value)
		if err != nil {
			return result, reject("OP scan must be numeric (use OP:<seq>)")
		}
		next.OperationSeq = &seq
	case domain.ScanItem:
		item, err := s.resolveItem(ctx, tc, parsed.Value)
		if err != nil {
			return result, err
		}
		if next.ProductionOrderID != "" {
			required, err := s.production.RequiresItem(ctx, tc, next.ProductionOrderID, item.ID)
			if err != nil {
				return nil, err
			}
			if !required {
				return result, reject("Item not required for MO")
			}
		}
		next.ItemID = item.ID
	case domain.ScanLoc:
		loc, err := s.resolveLocation(ctx, tc, parsed.Value)
		if err != nil {
			return result, err
		}
		next.LocationID = loc.ID
	case domain.ScanQty:
		qty, err := decimal.NewFromString(parsed.Value)
		if err != nil || !qty.IsPositive() {
			return result, reject("QTY must be a positive number")
		}
		next.Quantity = &qty
	case domain.ScanCheck:
		next.CheckCode = parsed.Value
	case domain.ScanCheckResult:
		next.QCResult = parsed.Value
	}

	last := session.IsLastScan()
	session.Advance(next)
	if !last {
		return result, nil
	}
	return s.execute(ctx, repos, tc, session, operator)
}

func (s *ScanService) resolveItem(ctx context.Context, tc tenant.Context, ref string) (*domain.Item, error) {
	item, err := s.catalog.GetItem(ctx, tc, ref)
	if stderrors.Is(err, domain.ErrUnknownItem) {
		item, err = s.catalog.GetItemBySKU(ctx, tc, ref)
	}
	if stderrors.Is(err, domain.ErrUnknownItem) {
		return nil, reject("Item not found")
	}
	return item, err
}

func (s *ScanService) resolveLocation(ctx context.Context, tc tenant.Context, ref string) (*domain.Location, error) {
	loc, err := s.catalog.GetLocation(ctx, tc, ref)
	if stderrors.Is(err, domain.ErrUnknownLocation) {
		loc, err = s.catalog.GetLocationByCode(ctx, tc, ref)
	}
	if stderrors.Is(err, domain.ErrUnknownLocation) {
		return nil, reject("Location not found")
	}
	return loc, err
}

// execute runs the mode's effect once the last scan is accepted
func (s *ScanService) execute(ctx context.Context, repos domain.Repositories, tc tenant.Context, session *domain.ScanSession, operator string) (*ScanResultDTO, error) {
	sc := session.Context
	result := &ScanResultDTO{OK: true, Session: session, Message: "EXECUTED", Executed: string(session.Mode)}

	switch session.Mode {
	case domain.ScanModeStartOp:
		if err := s.production.StartOperation(ctx, tc, sc.ProductionOrderID, *sc.OperationSeq, operator); err != nil {
			return result, reject("%s", err.Error())
		}
	case domain.ScanModeQC:
		if err := s.production.RecordQC(ctx, tc, sc.ProductionOrderID, *sc.OperationSeq, sc.CheckCode, sc.QCResult, operator); err != nil {
			return result, reject("%s", err.Error())
		}
	case domain.ScanModeIssue:
		available, err := availableBalance(ctx, repos, tc, sc.ItemID, sc.LocationID)
		if err != nil {
			return nil, err
		}
		if available.LessThan(*sc.Quantity) {
			message := fmt.Sprintf("insufficient stock: %s available, %s requested", available, sc.Quantity)
			session.AwaitDecision(message)
			return &ScanResultDTO{OK: false, Session: session, Message: message}, nil
		}
		if _, err := s.ledger.applyMovementTx(ctx, repos, tc, s.scanIssue(session, *sc.Quantity, "")); err != nil {
			return nil, err
		}
	case domain.ScanModeReceive:
		order, err := s.production.FindOrder(ctx, tc, sc.ProductionOrderID)
		if err != nil {
			return nil, err
		}
		if _, err := s.ledger.applyMovementTx(ctx, repos, tc, domain.MovementRequest{
			CorrelationID: "scan:" + session.ID,
			ItemID:        order.ItemID,
			Quantity:      *sc.Quantity,
			ToLocationID:  sc.LocationID,
			Actor:         operator,
			Reason:        "production receipt " + order.Number,
		}); err != nil {
			return nil, err
		}
	}

	session.Complete(string(session.Mode))
	return result, nil
}

// decide settles a short stock DECISION
func (s *ScanService) decide(ctx context.Context, repos domain.Repositories, tc tenant.Context, session *domain.ScanSession, parsed domain.ParsedScan, operator string) (*ScanResultDTO, error) {
	result := &ScanResultDTO{OK: true, Session: session}
	if parsed.Kind != domain.ScanDecision && parsed.Kind != domain.ScanRaw {
		return result, reject("Expected DECISION scan")
	}

	switch choice := normalizeChoice(parsed.Value); choice {
	case domain.DecisionCancel, domain.DecisionAbort:
		session.Cancel("decision " + choice)
		result.Message = "CANCELLED"
		return result, nil
	case domain.DecisionShortIssue, domain.DecisionShort:
		sc := session.Context
		if sc.ItemID == "" || sc.LocationID == "" || sc.ProductionOrderID == "" {
			return result, reject("Missing context for short issue")
		}
		available, err := availableBalance(ctx, repos, tc, sc.ItemID, sc.LocationID)
		if err != nil {
			return nil, err
		}
		if !available.IsPositive() {
			return result, reject("No stock available for short issue")
		}
		requested := decimal.Zero
		if sc.Quantity != nil {
			requested = *sc.Quantity
		}
		issued := available
		if requested.IsPositive() {
			issued = decimal.Min(available, requested)
		}
		if _, err := s.ledger.applyMovementTx(ctx, repos, tc, s.scanIssue(session, issued, ":short")); err != nil {
			return nil, err
		}
		session.ResolveShortIssue(requested, issued, available)
		result.Message = "EXECUTED_SHORT_ISSUE"
		result.Executed = "ISSUE_SHORT"
		return result, nil
	default:
		return result, reject("Unknown decision. Use DECISION:SHORT_ISSUE or DECISION:CANCEL")
	}
}

func normalizeChoice(v string) string {
	return strings.ToUpper(strings.TrimSpace(v))
}

func (s *ScanService) scanIssue(session *domain.ScanSession, qty decimal.Decimal, suffix string) domain.MovementRequest {
	return domain.MovementRequest{
		CorrelationID:  "scan:" + session.ID + suffix,
		ItemID:         session.Context.ItemID,
		Quantity:       qty,
		FromLocationID: session.Context.LocationID,
		Actor:          session.Operator,
		Reason:         "production issue " + session.Context.ProductionOrderNumber,
	}
}

// availableBalance is the AVAILABLE quantity of the untracked (no lot, no
// container) balance of an item at a location
func availableBalance(ctx context.Context, repos domain.Repositories, tc tenant.Context, itemID, locationID string) (decimal.Decimal, error) {
	balance, err := repos.Balances().Get(ctx, tc, domain.BalanceKey{ItemID: itemID, LocationID: locationID, State: domain.StateAvailable})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
	}
	if balance == nil {
		return decimal.Zero, nil
	}
	return balance.Quantity, nil
}

func (s *ScanService) saveTx(ctx context.Context, repos domain.Repositories, tc tenant.Context, session *domain.ScanSession, event *domain.ScanEvent) error {
	if err := repos.ScanSessions().Save(ctx, session); err != nil {
		return fmt.Errorf("failed to save scan session: %w", err)
	}
	if err := repos.ScanSessions().AppendEvent(ctx, event); err != nil {
		return fmt.Errorf("failed to append scan event: %w", err)
	}
	return s.events.record(ctx, repos, tc, session.ID, aggregateScanSession, session.ID, session.PullDomainEvents())
}
