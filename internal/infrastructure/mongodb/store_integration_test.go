//go:build integration

package mongodb

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcmongo "github.com/testcontainers/testcontainers-go/modules/mongodb"

	"github.com/wms-platform/warehouse-core/internal/application"
	"github.com/wms-platform/warehouse-core/internal/domain"
	"github.com/wms-platform/warehouse-core/internal/infrastructure/memory"
	"github.com/wms-platform/warehouse-core/pkg/logging"
	mongoclient "github.com/wms-platform/warehouse-core/pkg/mongodb"
	"github.com/wms-platform/warehouse-core/pkg/tenant"
)

var testTenant = tenant.Context{TenantID: "acme", FacilityID: "dc-1"}

type StoreIntegrationTestSuite struct {
	suite.Suite
	ctx       context.Context
	container *tcmongo.MongoDBContainer
	client    *mongoclient.Client
	store     *Store

	catalog   *memory.Catalog
	documents *memory.Documents
	ledger    *application.LedgerService
	alloc     *application.AllocationService
	tasks     *application.TaskService
}

func TestStoreIntegration(t *testing.T) {
	suite.Run(t, new(StoreIntegrationTestSuite))
}

func (s *StoreIntegrationTestSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := tcmongo.Run(s.ctx, "mongo:6", tcmongo.WithReplicaSet("rs"))
	s.Require().NoError(err)
	s.container = container

	uri, err := container.ConnectionString(s.ctx)
	s.Require().NoError(err)

	cfg := mongoclient.DefaultConfig()
	cfg.URI = uri
	cfg.Database = "warehouse_core_test"
	cfg.Direct = true
	s.client, err = mongoclient.NewClient(s.ctx, cfg)
	s.Require().NoError(err)
}

func (s *StoreIntegrationTestSuite) TearDownSuite() {
	if s.client != nil {
		s.client.Close(s.ctx)
	}
	s.Require().NoError(testcontainers.TerminateContainer(s.container))
}

func (s *StoreIntegrationTestSuite) SetupTest() {
	s.Require().NoError(s.client.Database().Drop(s.ctx))
	s.store = NewStore(s.client, mongoclient.NewObserver(nil, logging.Discard()))
	s.Require().NoError(s.store.EnsureIndexes(s.ctx))

	s.catalog = memory.NewCatalog()
	s.documents = memory.NewDocuments()
	s.catalog.AddItem(&domain.Item{ID: "item-1", TenantID: testTenant.TenantID, SKU: "SKU-1", ValuationMethod: domain.ValuationFIFO, Currency: "USD"})
	for _, loc := range []*domain.Location{
		{ID: "loc-stage", Code: "STAGE", Type: domain.LocationTypeStage},
		{ID: "loc-a1", Code: "A-01-01", Type: domain.LocationTypeBin, Zone: "A"},
		{ID: "loc-a2", Code: "A-02-01", Type: domain.LocationTypeBin, Zone: "A"},
	} {
		loc.TenantID, loc.FacilityID = testTenant.TenantID, testTenant.FacilityID
		s.catalog.AddLocation(loc)
	}

	logger := logging.Discard()
	locker := memory.NewLocker()
	s.ledger = application.NewLedgerService(s.store, s.catalog, nil, logger)
	s.alloc = application.NewAllocationService(s.store, s.documents, s.catalog, locker, s.ledger, nil, logger)
	s.tasks = application.NewTaskService(s.store, s.documents, s.catalog, s.ledger, nil, logger)
}

func (s *StoreIntegrationTestSuite) receive(correlation, locationID string, qty int64) *domain.LedgerEntry {
	cost := decimal.NewFromInt(2)
	entry, err := s.ledger.ApplyMovement(s.ctx, testTenant, application.ApplyMovementCommand{
		CorrelationID: correlation,
		ItemID:        "item-1",
		Quantity:      decimal.NewFromInt(qty),
		ToLocationID:  locationID,
		Actor:         "it",
		UnitCost:      &cost,
	})
	s.Require().NoError(err)
	return entry
}

func (s *StoreIntegrationTestSuite) available(locationID string) decimal.Decimal {
	var qty decimal.Decimal
	err := s.store.WithinTransaction(s.ctx, func(ctx context.Context, repos domain.Repositories) error {
		b, err := repos.Balances().Get(ctx, testTenant, domain.BalanceKey{ItemID: "item-1", LocationID: locationID, State: domain.StateAvailable})
		if b != nil {
			qty = b.Quantity
		}
		return err
	})
	s.Require().NoError(err)
	return qty
}

func (s *StoreIntegrationTestSuite) TestMovementReplayIsIdempotent() {
	first := s.receive("rcv-1", "loc-a1", 10)
	again := s.receive("rcv-1", "loc-a1", 10)

	s.Equal(first.ID, again.ID)
	s.True(s.available("loc-a1").Equal(decimal.NewFromInt(10)))

	entries, err := s.ledger.LedgerEntries(s.ctx, testTenant, application.LedgerQuery{CorrelationID: "rcv-1"})
	s.Require().NoError(err)
	s.Len(entries, 1)

	events, err := s.store.Outbox().FindUnpublished(s.ctx, 10)
	s.Require().NoError(err)
	s.NotEmpty(events)
}

func (s *StoreIntegrationTestSuite) TestDuplicateIdempotencyKeyIsRejected() {
	entry := s.receive("rcv-1", "loc-a1", 1)
	dup := *entry
	dup.ID = "other"

	err := s.store.WithinTransaction(s.ctx, func(ctx context.Context, repos domain.Repositories) error {
		return repos.Ledger().Insert(ctx, &dup)
	})
	s.ErrorIs(err, domain.ErrDuplicateMovement)
}

func (s *StoreIntegrationTestSuite) TestFailedTransactionRollsBack() {
	boom := stderrors.New("boom")
	err := s.store.WithinTransaction(s.ctx, func(ctx context.Context, repos domain.Repositories) error {
		b := domain.NewBalance(testTenant, domain.BalanceKey{ItemID: "item-1", LocationID: "loc-a1", State: domain.StateAvailable})
		b.Quantity = decimal.NewFromInt(99)
		if err := repos.Balances().Save(ctx, b); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)
	s.True(s.available("loc-a1").IsZero())
}

func (s *StoreIntegrationTestSuite) TestAllocationLocksLargestBalanceFirst() {
	s.receive("rcv-1", "loc-a1", 3)
	s.receive("rcv-2", "loc-a2", 8)
	s.documents.PutOrder(testTenant, "ord-1", domain.OrderLine{OrderID: "ord-1", LineID: "l1", ItemID: "item-1", Quantity: decimal.NewFromInt(5)})

	result, err := s.alloc.AllocateOrder(s.ctx, testTenant, "ord-1", "it")
	s.Require().NoError(err)
	s.Equal(1, result.AllocationsCreated)
	s.Empty(result.Shortfalls)
	s.True(s.available("loc-a2").Equal(decimal.NewFromInt(3)))

	allocations, err := s.alloc.Allocations(s.ctx, testTenant, "ord-1")
	s.Require().NoError(err)
	s.Require().Len(allocations, 1)
	s.Equal("loc-a2", allocations[0].LocationID)
}

func (s *StoreIntegrationTestSuite) TestTaskSurvivesReload() {
	s.receive("rcv-1", "loc-stage", 4)
	created, err := s.tasks.CreatePutawayTask(s.ctx, testTenant, application.CreatePutawayTaskCommand{
		ItemID:         "item-1",
		FromLocationID: "loc-stage",
		Quantity:       decimal.NewFromInt(4),
		Actor:          "it",
	})
	s.Require().NoError(err)

	loaded, err := s.tasks.GetTask(s.ctx, testTenant, created.ID)
	s.Require().NoError(err)
	s.Require().Len(loaded.Steps, len(created.Steps))
	for i := range created.Steps {
		s.Equal(created.Steps[i].ID, loaded.Steps[i].ID)
		s.Equal(created.Steps[i].Kind, loaded.Steps[i].Kind)
	}

	mine, err := s.tasks.MyTasks(s.ctx, testTenant, "bob")
	s.Require().NoError(err)
	s.Len(mine, 1)

	_, err = s.tasks.GetTask(s.ctx, tenant.Context{TenantID: "other", FacilityID: "dc-1"}, created.ID)
	s.Error(err)
}

func (s *StoreIntegrationTestSuite) TestExceptionListNewestFirst() {
	for i, kind := range []domain.ExceptionKind{domain.ExceptionWrongLocation, domain.ExceptionShortPick} {
		exc := &domain.TaskException{
			ID:         string(kind),
			TenantID:   testTenant.TenantID,
			FacilityID: testTenant.FacilityID,
			TaskID:     "t-1",
			Kind:       kind,
			Status:     domain.ExceptionOpen,
			CreatedAt:  time.Now().UTC().Add(time.Duration(i) * time.Second),
		}
		err := s.store.WithinTransaction(s.ctx, func(ctx context.Context, repos domain.Repositories) error {
			return repos.Exceptions().Insert(ctx, exc)
		})
		s.Require().NoError(err)
	}

	var listed []*domain.TaskException
	err := s.store.WithinTransaction(s.ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		listed, err = repos.Exceptions().List(ctx, testTenant, domain.ExceptionFilter{Limit: 10})
		return err
	})
	s.Require().NoError(err)
	s.Require().Len(listed, 2)
	s.Equal(domain.ExceptionShortPick, listed[0].Kind)
}

func (s *StoreIntegrationTestSuite) TestScanSessionFindByHandoff() {
	session, err := domain.NewScanSession(testTenant, domain.ScanModeQC, "op-1")
	s.Require().NoError(err)
	code, err := session.IssueHandoff("op-1")
	s.Require().NoError(err)

	err = s.store.WithinTransaction(s.ctx, func(ctx context.Context, repos domain.Repositories) error {
		if err := repos.ScanSessions().Insert(ctx, session); err != nil {
			return err
		}
		found, err := repos.ScanSessions().FindByHandoff(ctx, testTenant, code)
		if err != nil {
			return err
		}
		s.Equal(session.ID, found.ID)
		_, err = repos.ScanSessions().FindByHandoff(ctx, testTenant, "HS-0000000000")
		s.ErrorIs(err, domain.ErrHandoffNotFound)
		return nil
	})
	s.Require().NoError(err)
}
