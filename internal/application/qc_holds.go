package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wms-platform/warehouse-core/internal/domain"
	"github.com/wms-platform/warehouse-core/pkg/tenant"
)

// QC hold statuses
const (
	HoldActive   = "HOLD"
	HoldReleased = "RELEASED"
)

// QCHoldDTO is a quality hold as read back from its ledger entries
type QCHoldDTO struct {
	HoldID      string              `json:"holdId"`
	Status      string              `json:"status"`
	State       domain.BalanceState `json:"state"`
	ItemID      string              `json:"itemId"`
	LocationID  string              `json:"locationId"`
	LotID       string              `json:"lotId,omitempty"`
	ContainerID string              `json:"containerId,omitempty"`
	Quantity    decimal.Decimal     `json:"quantity"`
	Reason      string              `json:"reason,omitempty"`
	HeldBy      string              `json:"heldBy"`
	HeldAt      time.Time           `json:"heldAt"`
	ReleasedBy  string              `json:"releasedBy,omitempty"`
	ReleasedAt  *time.Time          `json:"releasedAt,omitempty"`
}

func holdCorrelation(holdID string) string    { return "qc-hold:" + holdID }
func releaseCorrelation(holdID string) string { return "qc-release:" + holdID }

// HoldStock transfers AVAILABLE stock into HOLD or QUARANTINE at the same
// location. The hold id is the correlation of the transfer, so a retry with
// the same id and shape replays.
func (s *LedgerService) HoldStock(ctx context.Context, tc tenant.Context, cmd HoldStockCommand) (*QCHoldDTO, error) {
	if err := tc.Validate(); err != nil {
		return nil, toAppError(err)
	}
	state := cmd.State
	if state == "" {
		state = domain.StateHold
	}
	if state != domain.StateHold && state != domain.StateQuarantine {
		return nil, toAppError(domain.ErrInvalidHoldState)
	}
	holdID := cmd.HoldID
	if holdID == "" {
		holdID = uuid.New().String()
	}
	req := domain.MovementRequest{
		CorrelationID:  holdCorrelation(holdID),
		ItemID:         cmd.ItemID,
		Quantity:       cmd.Quantity,
		FromLocationID: cmd.LocationID,
		ToLocationID:   cmd.LocationID,
		State:          domain.StateAvailable,
		ToState:        state,
		LotID:          cmd.LotID,
		ContainerID:    cmd.ContainerID,
		Actor:          cmd.Actor,
		Reason:         cmd.Reason,
	}
	if err := req.Validate(); err != nil {
		return nil, toAppError(err)
	}

	var hold *QCHoldDTO
	err := s.uow.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		existing, err := repos.Ledger().FindByCorrelation(ctx, tc, req.CorrelationID)
		if err != nil {
			return fmt.Errorf("failed to look up hold: %w", err)
		}
		for _, e := range existing {
			if e.IdempotencyKey != req.IdempotencyKey() {
				return fmt.Errorf("%w: hold %s", domain.ErrDuplicateMovement, holdID)
			}
		}
		if _, err := s.applyMovementTx(ctx, repos, tc, req); err != nil {
			return err
		}
		hold, err = s.loadHoldTx(ctx, repos, tc, holdID)
		return err
	})
	if err != nil {
		s.logger.WithError(err).Warn("Failed to place hold", "holdId", holdID, "itemId", cmd.ItemID)
		return nil, toAppError(err)
	}
	s.logger.Audit(ctx, "qc_hold", "qc_hold", holdID, cmd.Actor,
		map[string]any{"itemId": cmd.ItemID, "locationId": cmd.LocationID, "state": state, "reason": cmd.Reason})
	return hold, nil
}

// ReleaseHold returns held stock to AVAILABLE. Only a hold still in HOLD can
// be released.
func (s *LedgerService) ReleaseHold(ctx context.Context, tc tenant.Context, cmd ReleaseHoldCommand) (*QCHoldDTO, error) {
	if err := tc.Validate(); err != nil {
		return nil, toAppError(err)
	}
	reason := cmd.Reason
	if reason == "" {
		reason = "supervisor release"
	}

	var hold *QCHoldDTO
	err := s.uow.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		current, err := s.loadHoldTx(ctx, repos, tc, cmd.HoldID)
		if err != nil {
			return err
		}
		if current.Status != HoldActive {
			return domain.ErrHoldReleased
		}
		if _, err := s.applyMovementTx(ctx, repos, tc, domain.MovementRequest{
			CorrelationID:  releaseCorrelation(cmd.HoldID),
			ItemID:         current.ItemID,
			Quantity:       current.Quantity,
			FromLocationID: current.LocationID,
			ToLocationID:   current.LocationID,
			State:          current.State,
			ToState:        domain.StateAvailable,
			LotID:          current.LotID,
			ContainerID:    current.ContainerID,
			Actor:          cmd.Actor,
			Reason:         reason,
		}); err != nil {
			return err
		}
		hold, err = s.loadHoldTx(ctx, repos, tc, cmd.HoldID)
		return err
	})
	if err != nil {
		return nil, toAppError(err)
	}
	s.logger.Audit(ctx, "qc_release", "qc_hold", cmd.HoldID, cmd.Actor, map[string]any{"reason": reason})
	return hold, nil
}

// GetHold reads a hold and whether it was released
func (s *LedgerService) GetHold(ctx context.Context, tc tenant.Context, holdID string) (*QCHoldDTO, error) {
	var hold *QCHoldDTO
	err := s.uow.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		hold, err = s.loadHoldTx(ctx, repos, tc, holdID)
		return err
	})
	if err != nil {
		return nil, toAppError(err)
	}
	return hold, nil
}

func (s *LedgerService) loadHoldTx(ctx context.Context, repos domain.Repositories, tc tenant.Context, holdID string) (*QCHoldDTO, error) {
	held, err := repos.Ledger().FindByCorrelation(ctx, tc, holdCorrelation(holdID))
	if err != nil {
		return nil, fmt.Errorf("failed to look up hold: %w", err)
	}
	if len(held) == 0 {
		return nil, domain.ErrHoldNotFound
	}
	e := held[0]
	hold := &QCHoldDTO{
		HoldID:      holdID,
		Status:      HoldActive,
		State:       e.ToState,
		ItemID:      e.ItemID,
		LocationID:  e.ToLocationID,
		LotID:       e.LotID,
		ContainerID: e.ContainerID,
		Quantity:    e.Quantity,
		Reason:      e.Reason,
		HeldBy:      e.Actor,
		HeldAt:      e.CreatedAt,
	}

	released, err := repos.Ledger().FindByCorrelation(ctx, tc, releaseCorrelation(holdID))
	if err != nil {
		return nil, fmt.Errorf("failed to look up hold release: %w", err)
	}
	if len(released) > 0 {
		r := released[0]
		hold.Status = HoldReleased
		hold.ReleasedBy = r.Actor
		hold.ReleasedAt = &r.CreatedAt
	}
	return hold, nil
}
