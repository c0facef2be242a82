package application

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wms-platform/warehouse-core/internal/domain"
	"github.com/wms-platform/warehouse-core/pkg/errors"
	"github.com/wms-platform/warehouse-core/pkg/logging"
	"github.com/wms-platform/warehouse-core/pkg/metrics"
	"github.com/wms-platform/warehouse-core/pkg/tenant"
	"github.com/wms-platform/warehouse-core/pkg/tracing"
)

// TaskService generates guided tasks from documents and executes their steps
type TaskService struct {
	uow       domain.UnitOfWork
	documents domain.Documents
	catalog   domain.ReferenceCatalog
	ledger    *LedgerService
	events    *eventRecorder
	metrics   *metrics.Metrics
	logger    *logging.Logger
}

// NewTaskService creates a new TaskService
func NewTaskService(
	uow domain.UnitOfWork,
	documents domain.Documents,
	catalog domain.ReferenceCatalog,
	ledger *LedgerService,
	m *metrics.Metrics,
	logger *logging.Logger,
) *TaskService {
	return &TaskService{
		uow:       uow,
		documents: documents,
		catalog:   catalog,
		ledger:    ledger,
		events:    newEventRecorder(),
		metrics:   m,
		logger:    logger.WithComponent("tasks"),
	}
}

// GenerateReceiptTasks creates a RECEIVE and a PUTAWAY task per receipt line
func (s *TaskService) GenerateReceiptTasks(ctx context.Context, tc tenant.Context, receiptID, actor string) ([]*TaskDTO, error) {
	lines, err := s.documents.ReceiptLines(ctx, tc, receiptID)
	if err != nil {
		return nil, toAppError(err)
	}
	staging, err := s.catalog.GetLocationByCode(ctx, tc, domain.DefaultStagingLocationCode)
	if err != nil {
		return nil, toAppError(err)
	}

	var tasks []*domain.Task
	err = s.uow.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		tasks = nil
		for _, line := range lines {
			item, err := s.catalog.GetItem(ctx, tc, line.ItemID)
			if err != nil {
				return err
			}
			tasks = append(tasks, newReceiveTask(tc, line, item, staging))

			dest, err := s.suggestPutaway(ctx, repos, tc, item, line.ExpectedQuantity)
			if err != nil {
				return err
			}
			putaway := newPutawayTask(tc, domain.SourceReceipt, receiptID, &domain.PutawayContext{
				ItemID:           item.ID,
				SKU:              item.SKU,
				LotID:            line.LotID,
				Quantity:         line.ExpectedQuantity,
				FromLocationID:   staging.ID,
				FromLocationCode: staging.Code,
				ToLocationID:     dest.ID,
				ToLocationCode:   dest.Code,
			})
			tasks = append(tasks, putaway)
		}
		return s.insertTasksTx(ctx, repos, tc, tasks)
	})
	if err != nil {
		s.logger.WithError(err).Error("Failed to generate receipt tasks", "receiptId", receiptID)
		return nil, toAppError(err)
	}

	s.logger.Audit(ctx, "generate_tasks", "receipt", receiptID, actor, map[string]any{"tasks": len(tasks)})
	return ToTaskDTOs(tasks), nil
}

// CreatePutawayTask creates a PUTAWAY task to the suggested bin
func (s *TaskService) CreatePutawayTask(ctx context.Context, tc tenant.Context, cmd CreatePutawayTaskCommand) (*TaskDTO, error) {
	if !cmd.Quantity.IsPositive() {
		return nil, toAppError(domain.ErrInvalidQuantity)
	}
	item, err := s.catalog.GetItem(ctx, tc, cmd.ItemID)
	if err != nil {
		return nil, toAppError(err)
	}
	from, err := s.catalog.GetLocation(ctx, tc, cmd.FromLocationID)
	if err != nil {
		return nil, toAppError(err)
	}

	var task *domain.Task
	err = s.uow.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		dest, err := s.suggestPutaway(ctx, repos, tc, item, cmd.Quantity)
		if err != nil {
			return err
		}
		task = newPutawayTask(tc, domain.SourceManual, from.ID, &domain.PutawayContext{
			ItemID:           item.ID,
			SKU:              item.SKU,
			LotID:            cmd.LotID,
			Quantity:         cmd.Quantity,
			FromLocationID:   from.ID,
			FromLocationCode: from.Code,
			ToLocationID:     dest.ID,
			ToLocationCode:   dest.Code,
		})
		return s.insertTasksTx(ctx, repos, tc, []*domain.Task{task})
	})
	if err != nil {
		return nil, toAppError(err)
	}

	s.logger.Info("Created putaway task", "taskId", task.ID, "itemId", item.ID, "to", task.Context.Putaway.ToLocationCode)
	return ToTaskDTO(task), nil
}

// GenerateOrderTasks creates a PICK task per open allocation plus one PACK and
// one SHIP task. Work that already has an unfinished task is skipped, so the
// call is safe to repeat after a reallocation.
func (s *TaskService) GenerateOrderTasks(ctx context.Context, tc tenant.Context, orderID, actor string) ([]*TaskDTO, error) {
	pack, err := s.packLocation(ctx, tc)
	if err != nil {
		return nil, toAppError(err)
	}

	var tasks []*domain.Task
	err = s.uow.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		allocations, err := repos.Allocations().FindByOrder(ctx, tc, orderID)
		if err != nil {
			return fmt.Errorf("failed to list allocations: %w", err)
		}
		existing, err := repos.Tasks().FindBySource(ctx, tc, domain.SourceOrder, orderID)
		if err != nil {
			return fmt.Errorf("failed to list order tasks: %w", err)
		}
		picking := make(map[string]bool)
		pending := make(map[domain.TaskType]bool)
		for _, t := range existing {
			if t.IsTerminal() {
				continue
			}
			pending[t.Type] = true
			if t.Type == domain.TaskPick && t.Context.Pick != nil {
				picking[t.Context.Pick.AllocationID] = true
			}
		}

		tasks = nil
		for _, a := range allocations {
			if !a.IsOpen() || picking[a.ID] {
				continue
			}
			item, err := s.catalog.GetItem(ctx, tc, a.ItemID)
			if err != nil {
				return err
			}
			from, err := s.catalog.GetLocation(ctx, tc, a.LocationID)
			if err != nil {
				return err
			}
			tasks = append(tasks, newPickTask(tc, a, item, from, pack))
		}
		for _, t := range newShipmentTasks(tc, domain.SourceOrder, orderID, orderID) {
			if !pending[t.Type] {
				tasks = append(tasks, t)
			}
		}
		return s.insertTasksTx(ctx, repos, tc, tasks)
	})
	if err != nil {
		s.logger.WithError(err).Error("Failed to generate order tasks", "orderId", orderID)
		return nil, toAppError(err)
	}

	s.logger.Audit(ctx, "generate_tasks", "order", orderID, actor, map[string]any{"tasks": len(tasks)})
	return ToTaskDTOs(tasks), nil
}

// GenerateCountTasks creates a blind COUNT task per count line
func (s *TaskService) GenerateCountTasks(ctx context.Context, tc tenant.Context, countID, actor string) ([]*TaskDTO, error) {
	lines, err := s.documents.CountLines(ctx, tc, countID)
	if err != nil {
		return nil, toAppError(err)
	}

	var tasks []*domain.Task
	for _, line := range lines {
		loc, err := s.catalog.GetLocation(ctx, tc, line.LocationID)
		if err != nil {
			return nil, toAppError(err)
		}
		tasks = append(tasks, newCountTask(tc, line, loc))
	}
	err = s.uow.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		return s.insertTasksTx(ctx, repos, tc, tasks)
	})
	if err != nil {
		return nil, toAppError(err)
	}

	s.logger.Audit(ctx, "generate_tasks", "count", countID, actor, map[string]any{"tasks": len(tasks)})
	return ToTaskDTOs(tasks), nil
}

// GetTask returns a task with its steps
func (s *TaskService) GetTask(ctx context.Context, tc tenant.Context, taskID string) (*TaskDTO, error) {
	var task *domain.Task
	err := s.uow.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		task, err = repos.Tasks().Get(ctx, tc, taskID)
		return err
	})
	if err != nil {
		return nil, toAppError(err)
	}
	return ToTaskDTO(task), nil
}

// MyTasks lists OPEN and IN_PROGRESS tasks assigned to assignee or unassigned
func (s *TaskService) MyTasks(ctx context.Context, tc tenant.Context, assignee string) ([]*TaskDTO, error) {
	var tasks []*domain.Task
	err := s.uow.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		tasks, err = repos.Tasks().FindForAssignee(ctx, tc, assignee)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return ToTaskDTOs(tasks), nil
}

// AssignTask assigns a task to an operator
func (s *TaskService) AssignTask(ctx context.Context, tc tenant.Context, taskID, assignee string) (*TaskDTO, error) {
	return s.mutate(ctx, tc, taskID, func(t *domain.Task) error { return t.Assign(assignee) })
}

// CancelTask cancels a task that is not yet closed
func (s *TaskService) CancelTask(ctx context.Context, tc tenant.Context, cmd CancelTaskCommand) (*TaskDTO, error) {
	return s.mutate(ctx, tc, cmd.TaskID, func(t *domain.Task) error { return t.Cancel(cmd.Actor, cmd.Reason) })
}

// ResumeTask returns an EXCEPTION task to work
func (s *TaskService) ResumeTask(ctx context.Context, tc tenant.Context, taskID string) (*TaskDTO, error) {
	return s.mutate(ctx, tc, taskID, func(t *domain.Task) error { return t.Resume() })
}

func (s *TaskService) mutate(ctx context.Context, tc tenant.Context, taskID string, fn func(*domain.Task) error) (*TaskDTO, error) {
	var task *domain.Task
	err := s.uow.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		task, err = repos.Tasks().Get(ctx, tc, taskID)
		if err != nil {
			return err
		}
		if err := fn(task); err != nil {
			return err
		}
		return s.saveTaskTx(ctx, repos, tc, task)
	})
	if err != nil {
		return nil, toAppError(err)
	}
	return ToTaskDTO(task), nil
}

// CompleteStep completes one step. A mismatch is committed as a task exception
// and reported as a TASK_EXCEPTION error alongside the result. Completing the
// last step finalizes the task in the same transaction.
func (s *TaskService) CompleteStep(ctx context.Context, tc tenant.Context, cmd CompleteStepCommand) (*StepCompletionDTO, error) {
	if err := tc.Validate(); err != nil {
		return nil, toAppError(err)
	}
	return tracing.TracedOperation(ctx, tracer, "tasks.CompleteStep", func(ctx context.Context) (*StepCompletionDTO, error) {
		var (
			task    *domain.Task
			outcome domain.StepOutcome
		)
		err := s.uow.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
			var err error
			task, err = repos.Tasks().Get(ctx, tc, cmd.TaskID)
			if err != nil {
				return err
			}
			outcome, err = task.CompleteStep(cmd.StepID, cmd.Value, cmd.Actor)
			if err != nil || outcome.Replayed {
				return err
			}

			if exc := outcome.Exception; exc != nil {
				if err := repos.Exceptions().Insert(ctx, exc); err != nil {
					return fmt.Errorf("failed to save exception: %w", err)
				}
				if err := s.events.record(ctx, repos, tc, exc.ID, aggregateException, task.ID, exc.PullDomainEvents()); err != nil {
					return err
				}
				return s.saveTaskTx(ctx, repos, tc, task)
			}

			if outcome.ReadyToFinalize {
				if err := s.finalizeTx(ctx, repos, tc, task, cmd.Actor); err != nil {
					return err
				}
				if err := task.MarkDone(cmd.Actor); err != nil {
					return err
				}
			}
			return s.saveTaskTx(ctx, repos, tc, task)
		})
		if err != nil {
			s.logger.WithError(err).Warn("Failed to complete step", "taskId", cmd.TaskID, "stepId", cmd.StepID)
			return nil, toAppError(err)
		}

		result := &StepCompletionDTO{
			Task:      ToTaskDTO(task),
			Step:      ToStepDTO(outcome.Step),
			Replayed:  outcome.Replayed,
			Finalized: outcome.ReadyToFinalize && task.Status == domain.TaskDone,
			Exception: outcome.Exception,
		}
		if exc := outcome.Exception; exc != nil {
			s.metrics.RecordTaskException(string(exc.Kind))
			s.logger.Warn("Step mismatch raised exception", "taskId", task.ID, "kind", exc.Kind, "exceptionId", exc.ID)
			return result, exceptionError(exc)
		}
		if result.Finalized {
			s.metrics.RecordTaskCompleted(string(task.Type))
			s.logger.Info("Completed task", "taskId", task.ID, "type", task.Type, "actor", cmd.Actor)
		}
		return result, nil
	}, attribute.String("task.id", cmd.TaskID))
}

// exceptionError reports a committed step mismatch to the caller
func exceptionError(exc *domain.TaskException) error {
	return errors.ErrTaskException(exc.Message).
		WithDetail("exceptionId", exc.ID).
		WithDetail("kind", string(exc.Kind)).
		WithDetail("expected", exc.Data.Expected).
		WithDetail("got", exc.Data.Got)
}

// insertTasksTx stores new tasks and their created events
func (s *TaskService) insertTasksTx(ctx context.Context, repos domain.Repositories, tc tenant.Context, tasks []*domain.Task) error {
	for _, t := range tasks {
		if err := repos.Tasks().Insert(ctx, t); err != nil {
			return fmt.Errorf("failed to save task: %w", err)
		}
		if err := s.events.record(ctx, repos, tc, t.ID, aggregateTask, t.SourceID, t.PullDomainEvents()); err != nil {
			return err
		}
	}
	return nil
}

func (s *TaskService) saveTaskTx(ctx context.Context, repos domain.Repositories, tc tenant.Context, task *domain.Task) error {
	if err := repos.Tasks().Save(ctx, task); err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return s.events.record(ctx, repos, tc, task.ID, aggregateTask, task.SourceID, task.PullDomainEvents())
}

// suggestPutaway picks the destination bin: the first candidate without a
// capacity, else the candidate with the lowest projected fill ratio
func (s *TaskService) suggestPutaway(ctx context.Context, repos domain.Repositories, tc tenant.Context, item *domain.Item, qty decimal.Decimal) (*domain.Location, error) {
	bins, err := s.catalog.ListLocations(ctx, tc, domain.LocationTypeBin)
	if err != nil {
		return nil, fmt.Errorf("failed to list bin locations: %w", err)
	}
	candidates, err := domain.PutawayCandidates(item, bins)
	if err != nil {
		return nil, err
	}

	var best *domain.Location
	var bestRatio decimal.Decimal
	for _, loc := range candidates {
		if loc.CapacityUnits == nil {
			return loc, nil
		}
		current, err := repos.Balances().SumAtLocation(ctx, tc, loc.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to sum location: %w", err)
		}
		ratio := domain.FillRatio(loc, current, qty)
		if best == nil || ratio.LessThan(bestRatio) {
			best, bestRatio = loc, ratio
		}
	}
	return best, nil
}

// packLocation resolves the PACK location, falling back to the first STAGE location
func (s *TaskService) packLocation(ctx context.Context, tc tenant.Context) (*domain.Location, error) {
	loc, err := s.catalog.GetLocationByCode(ctx, tc, domain.DefaultPackLocationCode)
	if err == nil {
		return loc, nil
	}
	if !stderrors.Is(err, domain.ErrUnknownLocation) {
		return nil, err
	}
	stages, err := s.catalog.ListLocations(ctx, tc, domain.LocationTypeStage)
	if err != nil {
		return nil, err
	}
	if len(stages) == 0 {
		return nil, fmt.Errorf("%w: no PACK or STAGE location", domain.ErrUnknownLocation)
	}
	return stages[0], nil
}
