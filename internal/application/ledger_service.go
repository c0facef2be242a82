package application

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wms-platform/warehouse-core/internal/domain"
	"github.com/wms-platform/warehouse-core/pkg/errors"
	"github.com/wms-platform/warehouse-core/pkg/logging"
	"github.com/wms-platform/warehouse-core/pkg/metrics"
	"github.com/wms-platform/warehouse-core/pkg/tenant"
	"github.com/wms-platform/warehouse-core/pkg/tracing"
)

var tracer = otel.Tracer("github.com/wms-platform/warehouse-core/internal/application")

// LedgerService applies quantity movements and keeps balances and valuation in step
type LedgerService struct {
	uow     domain.UnitOfWork
	catalog domain.ReferenceCatalog
	events  *eventRecorder
	metrics *metrics.Metrics
	logger  *logging.Logger
}

// NewLedgerService creates a new LedgerService
func NewLedgerService(uow domain.UnitOfWork, catalog domain.ReferenceCatalog, m *metrics.Metrics, logger *logging.Logger) *LedgerService {
	return &LedgerService{
		uow:     uow,
		catalog: catalog,
		events:  newEventRecorder(),
		metrics: m,
		logger:  logger.WithComponent("ledger"),
	}
}

// ApplyMovement applies one movement. Retrying with the same correlation and
// shape returns the original entry without touching balances again.
func (s *LedgerService) ApplyMovement(ctx context.Context, tc tenant.Context, cmd ApplyMovementCommand) (*domain.LedgerEntry, error) {
	if err := tc.Validate(); err != nil {
		return nil, toAppError(err)
	}
	req := cmd.request()
	if err := req.Validate(); err != nil {
		return nil, toAppError(err)
	}

	return tracing.TracedOperation(ctx, tracer, "ledger.ApplyMovement", func(ctx context.Context) (*domain.LedgerEntry, error) {
		var entry *domain.LedgerEntry
		err := s.uow.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
			var err error
			entry, err = s.applyMovementTx(ctx, repos, tc, req)
			return err
		})
		if stderrors.Is(err, domain.ErrDuplicateMovement) {
			// lost the insert race; the winner's entry is the answer
			entry, err = s.findByIdempotencyKey(ctx, tc, req.IdempotencyKey())
			if err == nil && entry == nil {
				err = domain.ErrDuplicateMovement
			}
		}
		if err != nil {
			s.logger.WithError(err).Warn("Failed to apply movement", "correlationId", req.CorrelationID, "itemId", req.ItemID)
			return nil, toAppError(err)
		}
		s.logger.Info("Applied movement", "correlationId", entry.CorrelationID, "kind", entry.Kind, "itemId", entry.ItemID, "quantity", entry.Quantity.String())
		return entry, nil
	}, attribute.String("correlation.id", req.CorrelationID))
}

// Reserve moves qty from AVAILABLE to RESERVED. It fails when AVAILABLE is short.
func (s *LedgerService) Reserve(ctx context.Context, tc tenant.Context, cmd ReservationCommand) (*domain.LedgerEntry, error) {
	return s.ApplyMovement(ctx, tc, ApplyMovementCommand{
		CorrelationID:  cmd.CorrelationID,
		ItemID:         cmd.ItemID,
		Quantity:       cmd.Quantity,
		FromLocationID: cmd.LocationID,
		ToLocationID:   cmd.LocationID,
		State:          domain.StateAvailable,
		ToState:        domain.StateReserved,
		LotID:          cmd.LotID,
		ContainerID:    cmd.ContainerID,
		Actor:          cmd.Actor,
		Reason:         cmd.Reason,
	})
}

// ReleaseReservation moves qty from RESERVED back to AVAILABLE. It is best
// effort: when RESERVED holds less than qty nothing happens and nil is returned.
func (s *LedgerService) ReleaseReservation(ctx context.Context, tc tenant.Context, cmd ReservationCommand) (*domain.LedgerEntry, error) {
	if err := tc.Validate(); err != nil {
		return nil, toAppError(err)
	}
	var entry *domain.LedgerEntry
	err := s.uow.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		entry, err = s.releaseTx(ctx, repos, tc, releaseRequest(cmd))
		return err
	})
	if err != nil {
		return nil, toAppError(err)
	}
	return entry, nil
}

// Balances lists balances by item and/or location
func (s *LedgerService) Balances(ctx context.Context, tc tenant.Context, q BalanceQuery) ([]*domain.Balance, error) {
	if q.ItemID == "" && q.LocationID == "" {
		return nil, errors.ErrValidation("itemId or locationId is required")
	}
	var out []*domain.Balance
	err := s.uow.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if q.ItemID == "" {
			balances, err := repos.Balances().FindByLocation(ctx, tc, q.LocationID)
			out = balances
			return err
		}
		balances, err := repos.Balances().FindByItem(ctx, tc, q.ItemID)
		if err != nil {
			return err
		}
		for _, b := range balances {
			if q.LocationID == "" || b.LocationID == q.LocationID {
				out = append(out, b)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list balances: %w", err)
	}
	return out, nil
}

// LedgerEntries lists ledger entries by correlation id, else by item
func (s *LedgerService) LedgerEntries(ctx context.Context, tc tenant.Context, q LedgerQuery) ([]*domain.LedgerEntry, error) {
	if q.CorrelationID == "" && q.ItemID == "" {
		return nil, errors.ErrValidation("correlationId or itemId is required")
	}
	var out []*domain.LedgerEntry
	err := s.uow.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		if q.CorrelationID != "" {
			out, err = repos.Ledger().FindByCorrelation(ctx, tc, q.CorrelationID)
			return err
		}
		out, err = repos.Ledger().FindByItem(ctx, tc, q.ItemID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	return out, nil
}

func (s *LedgerService) findByIdempotencyKey(ctx context.Context, tc tenant.Context, key string) (*domain.LedgerEntry, error) {
	var entry *domain.LedgerEntry
	err := s.uow.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		entry, err = repos.Ledger().FindByIdempotencyKey(ctx, tc, key)
		return err
	})
	return entry, err
}

// applyMovementTx is the movement engine. It runs inside the caller's unit of
// work so task finalization and allocation can compose several movements.
func (s *LedgerService) applyMovementTx(ctx context.Context, repos domain.Repositories, tc tenant.Context, req domain.MovementRequest) (*domain.LedgerEntry, error) {
	req = req.Normalized()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	existing, err := repos.Ledger().FindByIdempotencyKey(ctx, tc, req.IdempotencyKey())
	if err != nil {
		return nil, fmt.Errorf("failed to look up movement: %w", err)
	}
	if existing != nil {
		s.metrics.RecordMovement(string(existing.Kind), true)
		return existing, nil
	}

	item, err := s.catalog.GetItem(ctx, tc, req.ItemID)
	if err != nil {
		return nil, err
	}
	for _, id := range []string{req.FromLocationID, req.ToLocationID} {
		if id == "" {
			continue
		}
		if _, err := s.catalog.GetLocation(ctx, tc, id); err != nil {
			return nil, err
		}
	}

	if req.FromLocationID != "" {
		if err := s.adjust(ctx, repos, tc, req.FromKey(), req.Quantity.Neg()); err != nil {
			return nil, err
		}
	}
	if req.ToLocationID != "" {
		if err := s.adjust(ctx, repos, tc, req.ToKey(), req.Quantity); err != nil {
			return nil, err
		}
	}

	entry := domain.NewLedgerEntry(tc, req)
	switch entry.Kind {
	case domain.MovementReceipt:
		err = s.costReceipt(ctx, repos, tc, item, req, entry)
	case domain.MovementIssue:
		err = s.costIssue(ctx, repos, tc, item, req, entry)
	}
	if err != nil {
		return nil, err
	}

	if err := repos.Ledger().Insert(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to record movement: %w", err)
	}
	if err := s.events.record(ctx, repos, tc, entry.ID, aggregateLedgerEntry, entry.CorrelationID,
		[]domain.DomainEvent{entry.ChangedEvent()}); err != nil {
		return nil, err
	}
	s.metrics.RecordMovement(string(entry.Kind), false)
	return entry, nil
}

// releaseTx releases a reservation when RESERVED covers it, else does nothing
func (s *LedgerService) releaseTx(ctx context.Context, repos domain.Repositories, tc tenant.Context, req domain.MovementRequest) (*domain.LedgerEntry, error) {
	req = req.Normalized()
	existing, err := repos.Ledger().FindByIdempotencyKey(ctx, tc, req.IdempotencyKey())
	if err != nil {
		return nil, fmt.Errorf("failed to look up movement: %w", err)
	}
	if existing != nil {
		return existing, nil
	}
	reserved, err := repos.Balances().Get(ctx, tc, req.FromKey())
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	if reserved == nil || reserved.Quantity.LessThan(req.Quantity) {
		s.logger.Debug("Skipped release, reservation is short", "correlationId", req.CorrelationID, "itemId", req.ItemID)
		return nil, nil
	}
	return s.applyMovementTx(ctx, repos, tc, req)
}

func releaseRequest(cmd ReservationCommand) domain.MovementRequest {
	return domain.MovementRequest{
		CorrelationID:  cmd.CorrelationID,
		ItemID:         cmd.ItemID,
		Quantity:       cmd.Quantity,
		FromLocationID: cmd.LocationID,
		ToLocationID:   cmd.LocationID,
		State:          domain.StateReserved,
		ToState:        domain.StateAvailable,
		LotID:          cmd.LotID,
		ContainerID:    cmd.ContainerID,
		Actor:          cmd.Actor,
		Reason:         cmd.Reason,
	}
}

func (s *LedgerService) adjust(ctx context.Context, repos domain.Repositories, tc tenant.Context, key domain.BalanceKey, delta decimal.Decimal) error {
	balance, err := repos.Balances().Get(ctx, tc, key)
	if err != nil {
		return fmt.Errorf("failed to get balance: %w", err)
	}
	if balance == nil {
		balance = domain.NewBalance(tc, key)
	}
	if err := balance.Apply(delta); err != nil {
		return err
	}
	if err := repos.Balances().Save(ctx, balance); err != nil {
		return fmt.Errorf("failed to save balance: %w", err)
	}
	return nil
}

func (s *LedgerService) valuation(ctx context.Context, repos domain.Repositories, tc tenant.Context, item *domain.Item) (*domain.ItemValuation, error) {
	v, err := repos.Valuations().Get(ctx, tc, item.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get valuation: %w", err)
	}
	if v == nil {
		v = domain.NewItemValuation(tc, item)
	}
	return v, nil
}

func (s *LedgerService) costReceipt(ctx context.Context, repos domain.Repositories, tc tenant.Context, item *domain.Item, req domain.MovementRequest, entry *domain.LedgerEntry) error {
	v, err := s.valuation(ctx, repos, tc, item)
	if err != nil {
		return err
	}
	unitCost := v.ReceiptUnitCost(req.UnitCost)
	layer := domain.NewCostLayer(tc, item.ID, req.ToLocationID, req.Quantity, unitCost, req.CorrelationID)
	if err := repos.CostLayers().Save(ctx, layer); err != nil {
		return fmt.Errorf("failed to save cost layer: %w", err)
	}
	v.ApplyReceipt(req.Quantity, unitCost)
	if err := repos.Valuations().Save(ctx, v); err != nil {
		return fmt.Errorf("failed to save valuation: %w", err)
	}
	entry.SetCost(unitCost, unitCost.Mul(req.Quantity))
	return nil
}

func (s *LedgerService) costIssue(ctx context.Context, repos domain.Repositories, tc tenant.Context, item *domain.Item, req domain.MovementRequest, entry *domain.LedgerEntry) error {
	v, err := s.valuation(ctx, repos, tc, item)
	if err != nil {
		return err
	}
	layers, err := repos.CostLayers().FindOpen(ctx, tc, item.ID, req.FromLocationID)
	if err != nil {
		return fmt.Errorf("failed to load cost layers: %w", err)
	}
	consumed := layers.ConsumeFIFO(req.Quantity)
	for _, layer := range consumed.Touched {
		if err := repos.CostLayers().Save(ctx, layer); err != nil {
			return fmt.Errorf("failed to save cost layer: %w", err)
		}
	}
	unitCost, extended := v.IssueCost(req.Quantity, consumed)
	v.ApplyIssue(req.Quantity)
	if err := repos.Valuations().Save(ctx, v); err != nil {
		return fmt.Errorf("failed to save valuation: %w", err)
	}
	entry.SetCost(unitCost, extended)
	return nil
}
