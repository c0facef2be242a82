package application

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wms-platform/warehouse-core/internal/domain"
	"github.com/wms-platform/warehouse-core/pkg/errors"
	"github.com/wms-platform/warehouse-core/pkg/logging"
	"github.com/wms-platform/warehouse-core/pkg/metrics"
	"github.com/wms-platform/warehouse-core/pkg/tenant"
	"github.com/wms-platform/warehouse-core/pkg/tracing"
)

// WaveService batches orders into waves and releases them as one consolidated pick
type WaveService struct {
	uow        domain.UnitOfWork
	documents  domain.Documents
	catalog    domain.ReferenceCatalog
	locker     domain.AllocationLocker
	allocation *AllocationService
	tasks      *TaskService
	events     *eventRecorder
	metrics    *metrics.Metrics
	logger     *logging.Logger
	perTote    int
}

// NewWaveService creates a new WaveService. perTote <= 0 uses the default tote capacity.
func NewWaveService(
	uow domain.UnitOfWork,
	documents domain.Documents,
	catalog domain.ReferenceCatalog,
	locker domain.AllocationLocker,
	allocation *AllocationService,
	tasks *TaskService,
	perTote int,
	m *metrics.Metrics,
	logger *logging.Logger,
) *WaveService {
	if perTote <= 0 {
		perTote = domain.DefaultOrdersPerTote
	}
	return &WaveService{
		uow:        uow,
		documents:  documents,
		catalog:    catalog,
		locker:     locker,
		allocation: allocation,
		tasks:      tasks,
		events:     newEventRecorder(),
		metrics:    m,
		logger:     logger.WithComponent("waves"),
		perTote:    perTote,
	}
}

// CreateWave plans a wave over orders that are not part of another open wave
func (s *WaveService) CreateWave(ctx context.Context, tc tenant.Context, cmd CreateWaveCommand) (*domain.Wave, error) {
	if err := tc.Validate(); err != nil {
		return nil, toAppError(err)
	}
	wave, err := domain.NewWave(tc, cmd.OrderIDs)
	if err != nil {
		return nil, toAppError(err)
	}

	err = s.uow.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		for _, orderID := range wave.OrderIDs() {
			open, err := repos.Waves().FindOpenByOrder(ctx, tc, orderID)
			if err != nil {
				return fmt.Errorf("failed to look up waves: %w", err)
			}
			if open != nil {
				return fmt.Errorf("order %s in wave %s: %w", orderID, open.ID, domain.ErrOrderAlreadyInWave)
			}
		}
		if err := repos.Waves().Insert(ctx, wave); err != nil {
			return fmt.Errorf("failed to save wave: %w", err)
		}
		return s.events.record(ctx, repos, tc, wave.ID, aggregateWave, wave.ID, wave.PullDomainEvents())
	})
	if err != nil {
		return nil, toAppError(err)
	}

	s.logger.Info("Created wave", "waveId", wave.ID, "orders", len(wave.Orders))
	return wave, nil
}

// GetWave returns a wave
func (s *WaveService) GetWave(ctx context.Context, tc tenant.Context, waveID string) (*domain.Wave, error) {
	var wave *domain.Wave
	err := s.uow.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		wave, err = repos.Waves().Get(ctx, tc, waveID)
		return err
	})
	if err != nil {
		return nil, toAppError(err)
	}
	return wave, nil
}

// ReleaseWave allocates every order of a PLANNED wave, generates their PACK and
// SHIP tasks and one WAVE_PICK task over the consolidated plan.
func (s *WaveService) ReleaseWave(ctx context.Context, tc tenant.Context, cmd ReleaseWaveCommand) (*WaveReleaseDTO, error) {
	if err := tc.Validate(); err != nil {
		return nil, toAppError(err)
	}
	return tracing.TracedOperation(ctx, tracer, "waves.ReleaseWave", func(ctx context.Context) (*WaveReleaseDTO, error) {
		wave, err := s.GetWave(ctx, tc, cmd.WaveID)
		if err != nil {
			return nil, err
		}
		if wave.Status != domain.WavePlanned {
			return nil, toAppError(domain.ErrWaveNotPlanned)
		}

		linesByOrder := make(map[string][]domain.OrderLine, len(wave.Orders))
		var all []domain.OrderLine
		for _, orderID := range wave.OrderIDs() {
			lines, err := s.documents.OrderLines(ctx, tc, orderID)
			if err != nil {
				return nil, toAppError(err)
			}
			linesByOrder[orderID] = lines
			all = append(all, lines...)
		}
		pack, err := s.tasks.packLocation(ctx, tc)
		if err != nil {
			return nil, toAppError(err)
		}

		release, err := s.locker.Lock(ctx, tc, lineItems(all))
		if err != nil {
			return nil, fmt.Errorf("failed to lock items: %w", err)
		}
		defer release()

		result := &WaveReleaseDTO{Allocations: make(map[string]*domain.AllocationResult, len(wave.Orders))}
		var pickTask *domain.Task
		err = s.uow.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
			// re-read under the transaction so two releases cannot both pass
			wave, err := repos.Waves().Get(ctx, tc, cmd.WaveID)
			if err != nil {
				return err
			}
			if wave.Status != domain.WavePlanned {
				return domain.ErrWaveNotPlanned
			}

			var planLines []domain.PlanLine
			for _, orderID := range wave.OrderIDs() {
				allocated, err := s.allocation.allocateOrderTx(ctx, repos, tc, orderID, linesByOrder[orderID], cmd.Actor)
				if err != nil {
					return err
				}
				result.Allocations[orderID] = allocated
				if err := s.tasks.insertTasksTx(ctx, repos, tc, newShipmentTasks(tc, domain.SourceWave, wave.ID, orderID)); err != nil {
					return err
				}
				for _, a := range allocated.Allocations {
					line, err := s.planLine(ctx, tc, a)
					if err != nil {
						return err
					}
					planLines = append(planLines, line)
				}
			}

			plan := domain.BuildWavePlan(wave.ID, wave.OrderIDs(), planLines, s.perTote)
			pickTask = newWavePickTask(tc, wave.ID, plan, pack)
			if err := s.tasks.insertTasksTx(ctx, repos, tc, []*domain.Task{pickTask}); err != nil {
				return err
			}
			if err := wave.Release(pickTask.ID, plan, cmd.Actor); err != nil {
				return err
			}
			if err := repos.Waves().Save(ctx, wave); err != nil {
				return fmt.Errorf("failed to save wave: %w", err)
			}
			result.Wave = wave
			return s.events.record(ctx, repos, tc, wave.ID, aggregateWave, wave.ID, wave.PullDomainEvents())
		})
		if err != nil {
			s.logger.WithError(err).Error("Failed to release wave", "waveId", cmd.WaveID)
			return nil, toAppError(err)
		}

		result.PickTask = ToTaskDTO(pickTask)
		s.metrics.RecordWaveReleased()
		for _, r := range result.Allocations {
			s.metrics.RecordAllocation(r.AllocationsCreated, len(r.Shortfalls))
		}
		s.logger.Info("Released wave", "waveId", cmd.WaveID, "pickTaskId", pickTask.ID,
			"stops", len(pickTask.Context.WavePick.Plan.Stops), "actor", cmd.Actor)
		return result, nil
	}, attribute.String("wave.id", cmd.WaveID))
}

func (s *WaveService) planLine(ctx context.Context, tc tenant.Context, a *domain.Allocation) (domain.PlanLine, error) {
	item, err := s.catalog.GetItem(ctx, tc, a.ItemID)
	if err != nil {
		return domain.PlanLine{}, err
	}
	loc, err := s.catalog.GetLocation(ctx, tc, a.LocationID)
	if err != nil {
		return domain.PlanLine{}, err
	}
	return domain.PlanLine{Allocation: a, SKU: item.SKU, Location: loc}, nil
}

// CheckReleasable reports a release conflict without side effects. The
// asynchronous path calls it before starting a workflow.
func (s *WaveService) CheckReleasable(ctx context.Context, tc tenant.Context, waveID string) error {
	wave, err := s.GetWave(ctx, tc, waveID)
	if err != nil {
		return err
	}
	if wave.Status != domain.WavePlanned {
		return errors.ErrConflict(domain.ErrWaveNotPlanned.Error()).WithDetail("status", string(wave.Status))
	}
	return nil
}
