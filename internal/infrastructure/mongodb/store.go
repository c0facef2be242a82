// Package mongodb implements the core's storage ports on MongoDB. Every unit of
// work runs in one multi-document transaction, so the deployment must be a
// replica set.
package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/warehouse-core/internal/domain"
	mongoclient "github.com/wms-platform/warehouse-core/pkg/mongodb"
	"github.com/wms-platform/warehouse-core/pkg/outbox"
	outboxMongo "github.com/wms-platform/warehouse-core/pkg/outbox/mongodb"
	"github.com/wms-platform/warehouse-core/pkg/tenant"
)

// Collection names
const (
	CollectionBalances      = "balances"
	CollectionLedger        = "ledger_entries"
	CollectionCostLayers    = "cost_layers"
	CollectionValuations    = "item_valuations"
	CollectionAllocations   = "allocations"
	CollectionBackorders    = "backorders"
	CollectionTasks         = "tasks"
	CollectionExceptions    = "task_exceptions"
	CollectionWaves         = "waves"
	CollectionShipments     = "shipments"
	CollectionHandlingUnits = "handling_units"
	CollectionCounts        = "count_submissions"
	CollectionScanSessions  = "scan_sessions"
	CollectionScanEvents    = "scan_events"
)

// Store is the MongoDB unit of work
type Store struct {
	client   *mongoclient.Client
	db       *mongo.Database
	observer *mongoclient.Observer
	outbox   *outboxMongo.OutboxRepository
}

// NewStore creates a store over client. observer may be nil.
func NewStore(client *mongoclient.Client, observer *mongoclient.Observer) *Store {
	db := client.Database()
	return &Store{
		client:   client,
		db:       db,
		observer: observer,
		outbox:   outboxMongo.NewOutboxRepository(db),
	}
}

// WithinTransaction runs fn inside a MongoDB transaction. The driver re-runs fn
// on transient errors such as write conflicts on locked balances.
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	return s.client.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		return fn(sessCtx, &repositories{store: s})
	})
}

// Outbox returns the outbox repository for the relay
func (s *Store) Outbox() outbox.Repository {
	return s.outbox
}

// EnsureIndexes creates every index the repositories rely on
func (s *Store) EnsureIndexes(ctx context.Context) error {
	scoped := func(keys ...string) bson.D {
		d := bson.D{{Key: "tenantId", Value: 1}, {Key: "facilityId", Value: 1}}
		for _, k := range keys {
			d = append(d, bson.E{Key: k, Value: 1})
		}
		return d
	}

	indexes := map[string][]mongo.IndexModel{
		CollectionBalances: {
			{Keys: scoped("itemId", "state")},
			{Keys: scoped("locationId")},
		},
		CollectionLedger: {
			{Keys: scoped("idempotencyKey"), Options: options.Index().SetUnique(true)},
			{Keys: scoped("correlationId", "createdAt")},
			{Keys: scoped("itemId", "createdAt")},
		},
		CollectionCostLayers: {
			{Keys: scoped("itemId", "locationId", "receivedAt")},
		},
		CollectionAllocations: {
			{Keys: scoped("orderId")},
		},
		CollectionBackorders: {
			{Keys: scoped("orderId", "status")},
			{Keys: scoped("status", "createdAt")},
		},
		CollectionTasks: {
			{Keys: scoped("status", "assignee", "priority", "createdAt")},
			{Keys: scoped("sourceType", "sourceId")},
		},
		CollectionExceptions: {
			{Keys: scoped("status", "kind", "createdAt")},
		},
		CollectionWaves: {
			{Keys: scoped("orders.orderId", "status")},
		},
		CollectionShipments: {
			{Keys: scoped("orderId"), Options: options.Index().SetUnique(true)},
		},
		CollectionHandlingUnits: {
			{Keys: scoped("lpn"), Options: options.Index().SetUnique(true)},
		},
		CollectionCounts: {
			{Keys: scoped("status", "createdAt")},
		},
		CollectionScanSessions: {
			{Keys: scoped("operator", "status", "createdAt")},
			{Keys: scoped("handoff.code")},
		},
		CollectionScanEvents: {
			{Keys: bson.D{{Key: "tenantId", Value: 1}, {Key: "sessionId", Value: 1}, {Key: "createdAt", Value: 1}}},
		},
	}

	for name, models := range indexes {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", name, err)
		}
	}
	if err := s.outbox.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("failed to create outbox indexes: %w", err)
	}
	return nil
}

var _ domain.UnitOfWork = (*Store)(nil)

type repositories struct {
	store *Store
}

func (r *repositories) Balances() domain.BalanceRepository {
	return balanceRepo{r.collection(CollectionBalances)}
}

func (r *repositories) Ledger() domain.LedgerRepository {
	return ledgerRepo{r.collection(CollectionLedger)}
}

func (r *repositories) CostLayers() domain.CostLayerRepository {
	return costLayerRepo{r.collection(CollectionCostLayers)}
}

func (r *repositories) Valuations() domain.ValuationRepository {
	return valuationRepo{r.collection(CollectionValuations)}
}

func (r *repositories) Allocations() domain.AllocationRepository {
	return allocationRepo{r.collection(CollectionAllocations)}
}

func (r *repositories) Backorders() domain.BackorderRepository {
	return backorderRepo{r.collection(CollectionBackorders)}
}

func (r *repositories) Tasks() domain.TaskRepository {
	return taskRepo{r.collection(CollectionTasks)}
}

func (r *repositories) Exceptions() domain.ExceptionRepository {
	return exceptionRepo{r.collection(CollectionExceptions)}
}

func (r *repositories) Waves() domain.WaveRepository {
	return waveRepo{r.collection(CollectionWaves)}
}

func (r *repositories) Shipments() domain.ShipmentRepository {
	return shipmentRepo{shipments: r.collection(CollectionShipments), units: r.collection(CollectionHandlingUnits)}
}

func (r *repositories) Counts() domain.CountRepository {
	return countRepo{r.collection(CollectionCounts)}
}

func (r *repositories) ScanSessions() domain.ScanSessionRepository {
	return scanSessionRepo{sessions: r.collection(CollectionScanSessions), events: r.collection(CollectionScanEvents)}
}

func (r *repositories) Outbox() outbox.Repository {
	return r.store.outbox
}

func (r *repositories) collection(name string) collection {
	return collection{c: r.store.db.Collection(name), name: name, observer: r.store.observer}
}

// collection is an observed handle on one MongoDB collection
type collection struct {
	c        *mongo.Collection
	name     string
	observer *mongoclient.Observer
}

// findOne decodes the first match into out and reports whether one existed
func (c collection) findOne(ctx context.Context, filter bson.M, out any, opts ...*options.FindOneOptions) (bool, error) {
	found := true
	err := c.observer.Observe(ctx, c.name, "find_one", func() error {
		err := c.c.FindOne(ctx, filter, opts...).Decode(out)
		if err == mongo.ErrNoDocuments {
			found = false
			return nil
		}
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to find in %s: %w", c.name, err)
	}
	return found, nil
}

// find decodes every match into out, a pointer to a slice
func (c collection) find(ctx context.Context, filter bson.M, out any, opts ...*options.FindOptions) error {
	err := c.observer.Observe(ctx, c.name, "find", func() error {
		cursor, err := c.c.Find(ctx, filter, opts...)
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)
		return cursor.All(ctx, out)
	})
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", c.name, err)
	}
	return nil
}

func (c collection) insert(ctx context.Context, doc any) error {
	return c.observer.Observe(ctx, c.name, "insert", func() error {
		_, err := c.c.InsertOne(ctx, doc)
		return err
	})
}

// upsert replaces the document with id, creating it if missing
func (c collection) upsert(ctx context.Context, id string, doc any) error {
	err := c.observer.Observe(ctx, c.name, "upsert", func() error {
		_, err := c.c.ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to save to %s: %w", c.name, err)
	}
	return nil
}

func (c collection) delete(ctx context.Context, filter bson.M) error {
	err := c.observer.Observe(ctx, c.name, "delete", func() error {
		_, err := c.c.DeleteOne(ctx, filter)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", c.name, err)
	}
	return nil
}

// scope returns a tenant and facility filter extended with extra
func scope(tc tenant.Context, extra bson.M) bson.M {
	filter := bson.M{"tenantId": tc.TenantID, "facilityId": tc.FacilityID}
	for k, v := range extra {
		filter[k] = v
	}
	return filter
}

func sortBy(keys ...string) bson.D {
	d := make(bson.D, 0, len(keys))
	for _, k := range keys {
		dir := 1
		if k[0] == '-' {
			dir, k = -1, k[1:]
		}
		d = append(d, bson.E{Key: k, Value: dir})
	}
	return d
}
