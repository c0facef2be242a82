package application

import (
	"context"
	"fmt"

	"github.com/wms-platform/warehouse-core/internal/domain"
	"github.com/wms-platform/warehouse-core/pkg/logging"
	"github.com/wms-platform/warehouse-core/pkg/tenant"
)

// ExceptionService manages task exceptions and backorders
type ExceptionService struct {
	uow        domain.UnitOfWork
	allocation *AllocationService
	tasks      *TaskService
	events     *eventRecorder
	logger     *logging.Logger
}

// NewExceptionService creates a new ExceptionService
func NewExceptionService(uow domain.UnitOfWork, allocation *AllocationService, tasks *TaskService, logger *logging.Logger) *ExceptionService {
	return &ExceptionService{
		uow:        uow,
		allocation: allocation,
		tasks:      tasks,
		events:     newEventRecorder(),
		logger:     logger.WithComponent("exceptions"),
	}
}

// ListExceptions returns exceptions newest first
func (s *ExceptionService) ListExceptions(ctx context.Context, tc tenant.Context, filter domain.ExceptionFilter) ([]*domain.TaskException, error) {
	if filter.Limit <= 0 || filter.Limit > domain.DefaultExceptionListLimit {
		filter.Limit = domain.DefaultExceptionListLimit
	}
	var out []*domain.TaskException
	err := s.uow.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		out, err = repos.Exceptions().List(ctx, tc, filter)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list exceptions: %w", err)
	}
	return out, nil
}

// ResolveException closes an exception. A SHORT_PICK resolution is one of
// REALLOCATE (default), BACKORDER or CANCEL. REALLOCATE first re-runs
// allocation for the order; a failed reallocation is logged and does not block
// the resolution. BACKORDER records the unpicked quantity as a backorder.
func (s *ExceptionService) ResolveException(ctx context.Context, tc tenant.Context, cmd ResolveExceptionCommand) (*domain.TaskException, error) {
	if err := tc.Validate(); err != nil {
		return nil, toAppError(err)
	}
	exc, err := s.getException(ctx, tc, cmd.ExceptionID)
	if err != nil {
		return nil, err
	}

	resolution := cmd.Resolution
	shortPick := exc.Kind == domain.ExceptionShortPick
	if shortPick {
		if resolution, err = domain.ParseShortPickResolution(cmd.Resolution); err != nil {
			return nil, toAppError(err)
		}
	}

	if exc.IsOpen() && shortPick && resolution == domain.ShortPickReallocate && exc.Data.OrderID != "" {
		result, err := s.allocation.AllocateOrder(ctx, tc, exc.Data.OrderID, cmd.Actor)
		if err != nil {
			s.logger.WithError(err).Warn("Reallocation after short pick failed", "exceptionId", exc.ID, "orderId", exc.Data.OrderID)
		} else {
			s.logger.Info("Reallocated order after short pick", "exceptionId", exc.ID, "orderId", exc.Data.OrderID,
				"allocations", result.AllocationsCreated, "shortfalls", len(result.Shortfalls))
		}
	}

	err = s.uow.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		exc, err = repos.Exceptions().Get(ctx, tc, cmd.ExceptionID)
		if err != nil {
			return err
		}
		if err := exc.Resolve(cmd.Actor, resolution); err != nil {
			return err
		}
		if shortPick && resolution == domain.ShortPickBackorder {
			if err := s.backorderShortPickTx(ctx, repos, tc, exc); err != nil {
				return err
			}
		}
		if err := repos.Exceptions().Save(ctx, exc); err != nil {
			return fmt.Errorf("failed to save exception: %w", err)
		}
		return s.events.record(ctx, repos, tc, exc.ID, aggregateException, exc.TaskID, exc.PullDomainEvents())
	})
	if err != nil {
		return nil, toAppError(err)
	}

	s.logger.Audit(ctx, "resolve", "exception", exc.ID, cmd.Actor, map[string]any{"kind": exc.Kind, "resolution": resolution})
	return exc, nil
}

func (s *ExceptionService) backorderShortPickTx(ctx context.Context, repos domain.Repositories, tc tenant.Context, exc *domain.TaskException) error {
	if exc.Data.RemainingQty == nil || !exc.Data.RemainingQty.IsPositive() {
		return nil
	}
	line := domain.OrderLine{OrderID: exc.Data.OrderID, LineID: exc.Data.OrderLineID, ItemID: exc.Data.ItemID}
	backorder := domain.NewBackorder(tc, line, *exc.Data.RemainingQty, domain.ReasonShortPick)
	if err := repos.Backorders().Insert(ctx, backorder); err != nil {
		return fmt.Errorf("failed to save backorder: %w", err)
	}
	return s.events.record(ctx, repos, tc, backorder.ID, aggregateBackorder, exc.ID, backorder.PullDomainEvents())
}

// RequestOverride asks a supervisor to accept the value that raised a
// WRONG_ITEM or WRONG_LOCATION exception
func (s *ExceptionService) RequestOverride(ctx context.Context, tc tenant.Context, cmd OverrideCommand) (*domain.TaskException, error) {
	exc, err := s.mutateException(ctx, tc, cmd.ExceptionID, func(ctx context.Context, repos domain.Repositories, exc *domain.TaskException) error {
		return exc.RequestOverride(cmd.Actor, cmd.Reason)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Audit(ctx, "override_requested", "exception", exc.ID, cmd.Actor, map[string]any{"kind": exc.Kind, "reason": cmd.Reason})
	return exc, nil
}

// ApproveOverride accepts the mismatched value: the step completes with it,
// the task leaves EXCEPTION (finalizing when it was the last step) and the
// exception is resolved
func (s *ExceptionService) ApproveOverride(ctx context.Context, tc tenant.Context, cmd OverrideCommand) (*domain.TaskException, error) {
	exc, err := s.mutateException(ctx, tc, cmd.ExceptionID, func(ctx context.Context, repos domain.Repositories, exc *domain.TaskException) error {
		if err := exc.DecideOverride(cmd.Actor, cmd.Reason, true); err != nil {
			return err
		}
		task, err := repos.Tasks().Get(ctx, tc, exc.TaskID)
		if err != nil {
			return err
		}
		outcome, err := task.AcceptOverride(exc.Data.StepID, exc.Data.Got, cmd.Actor)
		if err != nil {
			return err
		}
		if outcome.ReadyToFinalize {
			if err := s.tasks.finalizeTx(ctx, repos, tc, task, cmd.Actor); err != nil {
				return err
			}
			if err := task.MarkDone(cmd.Actor); err != nil {
				return err
			}
		}
		return s.tasks.saveTaskTx(ctx, repos, tc, task)
	})
	if err != nil {
		s.logger.WithError(err).Warn("Failed to approve override", "exceptionId", cmd.ExceptionID)
		return nil, err
	}
	s.logger.Audit(ctx, "override_approved", "exception", exc.ID, cmd.Actor, map[string]any{"taskId": exc.TaskID, "value": exc.Data.Got})
	return exc, nil
}

// RejectOverride declines the pending request; the exception stays OPEN
func (s *ExceptionService) RejectOverride(ctx context.Context, tc tenant.Context, cmd OverrideCommand) (*domain.TaskException, error) {
	exc, err := s.mutateException(ctx, tc, cmd.ExceptionID, func(ctx context.Context, repos domain.Repositories, exc *domain.TaskException) error {
		return exc.DecideOverride(cmd.Actor, cmd.Reason, false)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Audit(ctx, "override_rejected", "exception", exc.ID, cmd.Actor, nil)
	return exc, nil
}

func (s *ExceptionService) mutateException(ctx context.Context, tc tenant.Context, id string, fn func(context.Context, domain.Repositories, *domain.TaskException) error) (*domain.TaskException, error) {
	if err := tc.Validate(); err != nil {
		return nil, toAppError(err)
	}
	var exc *domain.TaskException
	err := s.uow.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		exc, err = repos.Exceptions().Get(ctx, tc, id)
		if err != nil {
			return err
		}
		if err := fn(ctx, repos, exc); err != nil {
			return err
		}
		if err := repos.Exceptions().Save(ctx, exc); err != nil {
			return fmt.Errorf("failed to save exception: %w", err)
		}
		return s.events.record(ctx, repos, tc, exc.ID, aggregateException, exc.TaskID, exc.PullDomainEvents())
	})
	if err != nil {
		return nil, toAppError(err)
	}
	return exc, nil
}

func (s *ExceptionService) getException(ctx context.Context, tc tenant.Context, id string) (*domain.TaskException, error) {
	var exc *domain.TaskException
	err := s.uow.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		exc, err = repos.Exceptions().Get(ctx, tc, id)
		return err
	})
	if err != nil {
		return nil, toAppError(err)
	}
	return exc, nil
}

// ListBackorders returns backorders matching filter
func (s *ExceptionService) ListBackorders(ctx context.Context, tc tenant.Context, filter domain.BackorderFilter) ([]*domain.Backorder, error) {
	var out []*domain.Backorder
	err := s.uow.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		out, err = repos.Backorders().List(ctx, tc, filter)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list backorders: %w", err)
	}
	return out, nil
}

// ResolveBackorder marks a backorder RESOLVED
func (s *ExceptionService) ResolveBackorder(ctx context.Context, tc tenant.Context, cmd CloseBackorderCommand) (*domain.Backorder, error) {
	return s.closeBackorder(ctx, tc, cmd, func(b *domain.Backorder) error { return b.Resolve(cmd.Actor, cmd.Note) })
}

// CancelBackorder marks a backorder CANCELLED
func (s *ExceptionService) CancelBackorder(ctx context.Context, tc tenant.Context, cmd CloseBackorderCommand) (*domain.Backorder, error) {
	return s.closeBackorder(ctx, tc, cmd, func(b *domain.Backorder) error { return b.Cancel(cmd.Actor, cmd.Note) })
}

func (s *ExceptionService) closeBackorder(ctx context.Context, tc tenant.Context, cmd CloseBackorderCommand, transition func(*domain.Backorder) error) (*domain.Backorder, error) {
	var backorder *domain.Backorder
	err := s.uow.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		backorder, err = repos.Backorders().Get(ctx, tc, cmd.BackorderID)
		if err != nil {
			return err
		}
		if err := transition(backorder); err != nil {
			return err
		}
		if err := repos.Backorders().Save(ctx, backorder); err != nil {
			return fmt.Errorf("failed to save backorder: %w", err)
		}
		return s.events.record(ctx, repos, tc, backorder.ID, aggregateBackorder, backorder.OrderID, backorder.PullDomainEvents())
	})
	if err != nil {
		return nil, toAppError(err)
	}
	s.logger.Info("Closed backorder", "backorderId", backorder.ID, "status", backorder.Status, "actor", cmd.Actor)
	return backorder, nil
}
