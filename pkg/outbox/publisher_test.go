package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/warehouse-core/pkg/cloudevents"
	"github.com/wms-platform/warehouse-core/pkg/logging"
	"github.com/wms-platform/warehouse-core/pkg/resilience"
)

type fakeRepo struct {
	mu      sync.Mutex
	events  []*OutboxEvent
	retries map[string]string
	findErr error
}

func (r *fakeRepo) SaveAll(ctx context.Context, events []*OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *fakeRepo) FindUnpublished(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	var out []*OutboxEvent
	for _, e := range r.events {
		if e.ShouldRetry() && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeRepo) MarkPublished(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.ID == id {
			now := e.CreatedAt
			e.PublishedAt = &now
		}
	}
	return nil
}

func (r *fakeRepo) IncrementRetry(ctx context.Context, id, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.retries == nil {
		r.retries = map[string]string{}
	}
	for _, e := range r.events {
		if e.ID == id {
			e.RetryCount++
			e.LastError = msg
			r.retries[id] = msg
		}
	}
	return nil
}

func (r *fakeRepo) FindByAggregateID(ctx context.Context, id string) ([]*OutboxEvent, error) {
	return nil, nil
}

type fakeProducer struct {
	topics []string
	failOn string
}

func (p *fakeProducer) PublishEvent(ctx context.Context, topic string, event *cloudevents.WMSCloudEvent) error {
	if event.Type == p.failOn {
		return errors.New("broker down")
	}
	p.topics = append(p.topics, topic)
	return nil
}

// flakyProducer fails the first failures calls with err
type flakyProducer struct {
	calls    int
	failures int
	err      error
}

func (p *flakyProducer) PublishEvent(ctx context.Context, topic string, event *cloudevents.WMSCloudEvent) error {
	p.calls++
	if p.calls <= p.failures {
		return p.err
	}
	return nil
}

func fastRetry() *PublisherConfig {
	cfg := DefaultPublisherConfig()
	cfg.Retry = resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1}
	return cfg
}

func newEvent(t *testing.T, eventType string) *OutboxEvent {
	t.Helper()
	ce := cloudevents.NewEventFactory(cloudevents.SourceCore).CreateEvent(context.Background(), eventType, "thing/1", map[string]string{"k": "v"})
	e, err := NewOutboxEventFromCloudEvent("1", "Thing", "wms.test.events", ce)
	require.NoError(t, err)
	return e
}

func TestPublisher_ProcessBatch(t *testing.T) {
	repo := &fakeRepo{}
	ok := newEvent(t, cloudevents.InventoryChanged)
	bad := newEvent(t, cloudevents.WaveReleased)
	require.NoError(t, repo.SaveAll(context.Background(), []*OutboxEvent{ok, bad}))

	producer := &fakeProducer{failOn: cloudevents.WaveReleased}
	p := NewPublisher(repo, producer, logging.Discard(), nil, fastRetry())

	published := p.ProcessBatch(context.Background())

	assert.Equal(t, 1, published)
	assert.True(t, ok.IsPublished())
	assert.False(t, bad.IsPublished())
	assert.Equal(t, 1, bad.RetryCount)
	assert.Contains(t, bad.LastError, "broker down")
	assert.Equal(t, []string{"wms.test.events"}, producer.topics)
	assert.Equal(t, map[string]int{"published": 1, "failed": 1}, p.Stats())
}

func TestPublisher_StopsRetryingAtLimit(t *testing.T) {
	repo := &fakeRepo{}
	bad := newEvent(t, cloudevents.WaveReleased)
	bad.RetryCount = bad.MaxRetries - 1
	require.NoError(t, repo.SaveAll(context.Background(), []*OutboxEvent{bad}))

	p := NewPublisher(repo, &fakeProducer{failOn: cloudevents.WaveReleased}, logging.Discard(), nil, fastRetry())
	p.ProcessBatch(context.Background())
	p.ProcessBatch(context.Background())

	assert.Equal(t, bad.MaxRetries, bad.RetryCount)
	assert.False(t, bad.ShouldRetry())
}

func TestPublisher_FindErrorIsLogged(t *testing.T) {
	repo := &fakeRepo{findErr: errors.New("db down")}
	p := NewPublisher(repo, &fakeProducer{}, logging.Discard(), nil, nil)
	assert.Equal(t, 0, p.ProcessBatch(context.Background()))
}

func TestPublisher_StartStop(t *testing.T) {
	p := NewPublisher(&fakeRepo{}, &fakeProducer{}, logging.Discard(), nil, nil)
	require.NoError(t, p.Start(context.Background()))
	assert.Error(t, p.Start(context.Background()))
	assert.True(t, p.IsRunning())
	require.NoError(t, p.Stop())
	assert.False(t, p.IsRunning())
	assert.Error(t, p.Stop())
}

func TestOutboxEvent_RoundTripsCloudEvent(t *testing.T) {
	e := newEvent(t, cloudevents.TaskCompleted)
	ce, err := e.ToCloudEvent()
	require.NoError(t, err)
	assert.Equal(t, cloudevents.TaskCompleted, ce.Type)
	assert.Equal(t, "thing/1", ce.Subject)
	assert.Equal(t, cloudevents.TaskCompleted, e.EventType)
}

func TestPublisher_RetriesTransientFailures(t *testing.T) {
	repo := &fakeRepo{}
	e := newEvent(t, cloudevents.TaskCompleted)
	require.NoError(t, repo.SaveAll(context.Background(), []*OutboxEvent{e}))

	producer := &flakyProducer{failures: 2, err: errors.New("leader not available")}
	p := NewPublisher(repo, producer, logging.Discard(), nil, fastRetry())

	assert.Equal(t, 1, p.ProcessBatch(context.Background()))
	assert.Equal(t, 3, producer.calls)
	assert.True(t, e.IsPublished())
	assert.Zero(t, e.RetryCount)
}

func TestPublisher_OpenCircuitIsNotRetried(t *testing.T) {
	repo := &fakeRepo{}
	e := newEvent(t, cloudevents.TaskCompleted)
	require.NoError(t, repo.SaveAll(context.Background(), []*OutboxEvent{e}))

	producer := &flakyProducer{failures: 10, err: fmt.Errorf("kafka-producer: %w", resilience.ErrCircuitOpen)}
	p := NewPublisher(repo, producer, logging.Discard(), nil, fastRetry())

	assert.Zero(t, p.ProcessBatch(context.Background()))
	assert.Equal(t, 1, producer.calls)
	assert.Equal(t, 1, e.RetryCount)
}
