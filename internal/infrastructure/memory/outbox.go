package memory

import (
	"context"
	"time"

	"github.com/wms-platform/warehouse-core/pkg/outbox"
)

type outboxRepo struct{ s *state }

func (r outboxRepo) SaveAll(_ context.Context, events []*outbox.OutboxEvent) error {
	for _, e := range events {
		r.s.touch(e.ID)
		r.s.outbox[e.ID] = clone(e)
	}
	return nil
}

func (r outboxRepo) FindUnpublished(_ context.Context, limit int) ([]*outbox.OutboxEvent, error) {
	var out []*outbox.OutboxEvent
	for _, e := range r.s.outbox {
		if e.ShouldRetry() {
			out = append(out, clone(e))
		}
	}
	sortByInsertion(r.s, out, func(e *outbox.OutboxEvent) string { return e.ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r outboxRepo) MarkPublished(_ context.Context, eventID string) error {
	e, ok := r.s.outbox[eventID]
	if !ok {
		return nil
	}
	c := clone(e)
	now := time.Now().UTC()
	c.PublishedAt = &now
	r.s.outbox[eventID] = c
	return nil
}

func (r outboxRepo) IncrementRetry(_ context.Context, eventID string, errorMsg string) error {
	e, ok := r.s.outbox[eventID]
	if !ok {
		return nil
	}
	c := clone(e)
	c.RetryCount++
	c.LastError = errorMsg
	r.s.outbox[eventID] = c
	return nil
}

func (r outboxRepo) FindByAggregateID(_ context.Context, aggregateID string) ([]*outbox.OutboxEvent, error) {
	var out []*outbox.OutboxEvent
	for _, e := range r.s.outbox {
		if e.AggregateID == aggregateID {
			out = append(out, clone(e))
		}
	}
	sortByInsertion(r.s, out, func(e *outbox.OutboxEvent) string { return e.ID })
	return out, nil
}

// lockedOutbox serializes relay access with running transactions
type lockedOutbox struct {
	store *Store
}

func (o *lockedOutbox) repo() outboxRepo { return outboxRepo{o.store.data} }

func (o *lockedOutbox) SaveAll(ctx context.Context, events []*outbox.OutboxEvent) error {
	o.store.mu.Lock()
	defer o.store.mu.Unlock()
	return o.repo().SaveAll(ctx, events)
}

func (o *lockedOutbox) FindUnpublished(ctx context.Context, limit int) ([]*outbox.OutboxEvent, error) {
	o.store.mu.Lock()
	defer o.store.mu.Unlock()
	return o.repo().FindUnpublished(ctx, limit)
}

func (o *lockedOutbox) MarkPublished(ctx context.Context, eventID string) error {
	o.store.mu.Lock()
	defer o.store.mu.Unlock()
	return o.repo().MarkPublished(ctx, eventID)
}

func (o *lockedOutbox) IncrementRetry(ctx context.Context, eventID string, errorMsg string) error {
	o.store.mu.Lock()
	defer o.store.mu.Unlock()
	return o.repo().IncrementRetry(ctx, eventID, errorMsg)
}

func (o *lockedOutbox) FindByAggregateID(ctx context.Context, aggregateID string) ([]*outbox.OutboxEvent, error) {
	o.store.mu.Lock()
	defer o.store.mu.Unlock()
	return o.repo().FindByAggregateID(ctx, aggregateID)
}
