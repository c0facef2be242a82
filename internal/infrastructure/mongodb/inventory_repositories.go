package mongodb

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/warehouse-core/internal/domain"
	mongoclient "github.com/wms-platform/warehouse-core/pkg/mongodb"
	"github.com/wms-platform/warehouse-core/pkg/tenant"
)

// balances

type balanceRepo struct{ col collection }

func (r balanceRepo) Get(ctx context.Context, tc tenant.Context, key domain.BalanceKey) (*domain.Balance, error) {
	var b domain.Balance
	found, err := r.col.findOne(ctx, bson.M{"_id": domain.BalanceID(tc, key)}, &b)
	if err != nil || !found {
		return nil, err
	}
	return &b, nil
}

func (r balanceRepo) Save(ctx context.Context, balance *domain.Balance) error {
	return r.col.upsert(ctx, balance.ID, balance)
}

// LockAvailableForItem bumps lockVersion on every candidate row. Any other
// transaction writing the same rows then fails with a write conflict and is
// retried by the driver, which serializes competing allocations.
func (r balanceRepo) LockAvailableForItem(ctx context.Context, tc tenant.Context, itemID string, locationIDs []string) ([]*domain.Balance, error) {
	if len(locationIDs) == 0 {
		return nil, nil
	}
	filter := scope(tc, bson.M{
		"itemId":     itemID,
		"state":      domain.StateAvailable,
		"locationId": bson.M{"$in": locationIDs},
		"quantity":   bson.M{"$gt": decimal.Zero},
	})
	var rows []*domain.Balance
	if err := r.col.find(ctx, filter, &rows, options.Find().SetSort(sortBy("-quantity", "_id"))); err != nil {
		return nil, err
	}

	for _, b := range rows {
		err := r.col.observer.Observe(ctx, r.col.name, "lock", func() error {
			res, err := r.col.c.UpdateOne(ctx,
				bson.M{"_id": b.ID, "lockVersion": b.LockVersion},
				bson.M{"$inc": bson.M{"lockVersion": 1}})
			if err != nil {
				return err
			}
			if res.MatchedCount == 0 {
				return fmt.Errorf("balance %s changed while locking", b.ID)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to lock balance: %w", err)
		}
		b.LockVersion++
	}
	return rows, nil
}

func (r balanceRepo) FindByItem(ctx context.Context, tc tenant.Context, itemID string) ([]*domain.Balance, error) {
	var rows []*domain.Balance
	err := r.col.find(ctx, scope(tc, bson.M{"itemId": itemID}), &rows, options.Find().SetSort(sortBy("_id")))
	return rows, err
}

func (r balanceRepo) FindByLocation(ctx context.Context, tc tenant.Context, locationID string) ([]*domain.Balance, error) {
	var rows []*domain.Balance
	err := r.col.find(ctx, scope(tc, bson.M{"locationId": locationID}), &rows, options.Find().SetSort(sortBy("_id")))
	return rows, err
}

func (r balanceRepo) SumAtLocation(ctx context.Context, tc tenant.Context, locationID string) (decimal.Decimal, error) {
	rows, err := r.FindByLocation(ctx, tc, locationID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, b := range rows {
		total = total.Add(b.Quantity)
	}
	return total, nil
}

// ledger

type ledgerRepo struct{ col collection }

func (r ledgerRepo) FindByIdempotencyKey(ctx context.Context, tc tenant.Context, key string) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	found, err := r.col.findOne(ctx, scope(tc, bson.M{"idempotencyKey": key}), &e)
	if err != nil || !found {
		return nil, err
	}
	return &e, nil
}

func (r ledgerRepo) Insert(ctx context.Context, entry *domain.LedgerEntry) error {
	if err := r.col.insert(ctx, entry); err != nil {
		if mongoclient.IsDuplicateKey(err) {
			return domain.ErrDuplicateMovement
		}
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return nil
}

func (r ledgerRepo) FindByCorrelation(ctx context.Context, tc tenant.Context, correlationID string) ([]*domain.LedgerEntry, error) {
	return r.list(ctx, scope(tc, bson.M{"correlationId": correlationID}))
}

func (r ledgerRepo) FindByItem(ctx context.Context, tc tenant.Context, itemID string) ([]*domain.LedgerEntry, error) {
	return r.list(ctx, scope(tc, bson.M{"itemId": itemID}))
}

func (r ledgerRepo) list(ctx context.Context, filter bson.M) ([]*domain.LedgerEntry, error) {
	var rows []*domain.LedgerEntry
	err := r.col.find(ctx, filter, &rows, options.Find().SetSort(sortBy("createdAt", "_id")))
	return rows, err
}

// cost layers

type costLayerRepo struct{ col collection }

func (r costLayerRepo) FindOpen(ctx context.Context, tc tenant.Context, itemID, locationID string) (domain.CostLayers, error) {
	filter := scope(tc, bson.M{
		"itemId":     itemID,
		"locationId": locationID,
		"remaining":  bson.M{"$gt": decimal.Zero},
	})
	var rows []*domain.CostLayer
	if err := r.col.find(ctx, filter, &rows, options.Find().SetSort(sortBy("receivedAt", "_id"))); err != nil {
		return nil, err
	}
	return domain.CostLayers(rows), nil
}

func (r costLayerRepo) Save(ctx context.Context, layer *domain.CostLayer) error {
	return r.col.upsert(ctx, layer.ID, layer)
}

// valuations are tenant-wide

type valuationRepo struct{ col collection }

func (r valuationRepo) Get(ctx context.Context, tc tenant.Context, itemID string) (*domain.ItemValuation, error) {
	var v domain.ItemValuation
	found, err := r.col.findOne(ctx, bson.M{"_id": domain.ValuationID(tc, itemID)}, &v)
	if err != nil || !found {
		return nil, err
	}
	return &v, nil
}

func (r valuationRepo) Save(ctx context.Context, valuation *domain.ItemValuation) error {
	return r.col.upsert(ctx, valuation.ID, valuation)
}

// allocations

type allocationRepo struct{ col collection }

func (r allocationRepo) Get(ctx context.Context, tc tenant.Context, allocationID string) (*domain.Allocation, error) {
	var a domain.Allocation
	found, err := r.col.findOne(ctx, scope(tc, bson.M{"_id": allocationID}), &a)
	if err != nil || !found {
		return nil, err
	}
	return &a, nil
}

func (r allocationRepo) FindByOrder(ctx context.Context, tc tenant.Context, orderID string) ([]*domain.Allocation, error) {
	var rows []*domain.Allocation
	err := r.col.find(ctx, scope(tc, bson.M{"orderId": orderID}), &rows, options.Find().SetSort(sortBy("createdAt", "_id")))
	return rows, err
}

func (r allocationRepo) Insert(ctx context.Context, allocation *domain.Allocation) error {
	if err := r.col.insert(ctx, allocation); err != nil {
		return fmt.Errorf("failed to insert allocation: %w", err)
	}
	return nil
}

func (r allocationRepo) Save(ctx context.Context, allocation *domain.Allocation) error {
	return r.col.upsert(ctx, allocation.ID, allocation)
}

func (r allocationRepo) Delete(ctx context.Context, tc tenant.Context, allocationID string) error {
	return r.col.delete(ctx, scope(tc, bson.M{"_id": allocationID}))
}

// backorders

type backorderRepo struct{ col collection }

func (r backorderRepo) Get(ctx context.Context, tc tenant.Context, backorderID string) (*domain.Backorder, error) {
	var b domain.Backorder
	found, err := r.col.findOne(ctx, scope(tc, bson.M{"_id": backorderID}), &b)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.ErrBackorderNotFound
	}
	return &b, nil
}

func (r backorderRepo) Insert(ctx context.Context, backorder *domain.Backorder) error {
	if err := r.col.insert(ctx, backorder); err != nil {
		return fmt.Errorf("failed to insert backorder: %w", err)
	}
	return nil
}

func (r backorderRepo) Save(ctx context.Context, backorder *domain.Backorder) error {
	return r.col.upsert(ctx, backorder.ID, backorder)
}

func (r backorderRepo) FindByOrder(ctx context.Context, tc tenant.Context, orderID string) ([]*domain.Backorder, error) {
	return r.List(ctx, tc, domain.BackorderFilter{OrderID: orderID})
}

func (r backorderRepo) List(ctx context.Context, tc tenant.Context, filter domain.BackorderFilter) ([]*domain.Backorder, error) {
	extra := bson.M{}
	if filter.OrderID != "" {
		extra["orderId"] = filter.OrderID
	}
	if filter.Status != "" {
		extra["status"] = filter.Status
	}
	var rows []*domain.Backorder
	err := r.col.find(ctx, scope(tc, extra), &rows, options.Find().SetSort(sortBy("createdAt", "_id")))
	return rows, err
}
