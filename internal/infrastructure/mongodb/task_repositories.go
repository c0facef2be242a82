package mongodb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/warehouse-core/internal/domain"
	"github.com/wms-platform/warehouse-core/pkg/tenant"
)

// taskDocument is the stored form of a task. Step expectations are kept in
// their flat ExpectationSpec form and rebuilt on load.
type taskDocument struct {
	ID          string             `bson:"_id"`
	TenantID    string             `bson:"tenantId"`
	FacilityID  string             `bson:"facilityId"`
	Type        domain.TaskType    `bson:"type"`
	Status      domain.TaskStatus  `bson:"status"`
	Priority    int                `bson:"priority"`
	Assignee    string             `bson:"assignee"`
	SourceType  domain.SourceType  `bson:"sourceType"`
	SourceID    string             `bson:"sourceId"`
	Context     domain.TaskContext `bson:"context"`
	Steps       []stepDocument     `bson:"steps"`
	CreatedAt   time.Time          `bson:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt"`
	CompletedAt *time.Time         `bson:"completedAt,omitempty"`
	CompletedBy string             `bson:"completedBy,omitempty"`
}

type stepDocument struct {
	ID          string                 `bson:"id"`
	Seq         int                    `bson:"seq"`
	Prompt      string                 `bson:"prompt"`
	Expected    domain.ExpectationSpec `bson:"expected"`
	Status      domain.StepStatus      `bson:"status"`
	Captured    string                 `bson:"captured,omitempty"`
	CompletedBy string                 `bson:"completedBy,omitempty"`
	CompletedAt *time.Time             `bson:"completedAt,omitempty"`
	Ref         *domain.StepRef        `bson:"ref,omitempty"`
}

func toTaskDocument(t *domain.Task) *taskDocument {
	doc := &taskDocument{
		ID:          t.ID,
		TenantID:    t.TenantID,
		FacilityID:  t.FacilityID,
		Type:        t.Type,
		Status:      t.Status,
		Priority:    t.Priority,
		Assignee:    t.Assignee,
		SourceType:  t.SourceType,
		SourceID:    t.SourceID,
		Context:     t.Context,
		Steps:       make([]stepDocument, len(t.Steps)),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		CompletedAt: t.CompletedAt,
		CompletedBy: t.CompletedBy,
	}
	for i, s := range t.Steps {
		doc.Steps[i] = stepDocument{
			ID:          s.ID,
			Seq:         s.Seq,
			Prompt:      s.Prompt,
			Expected:    s.Expected.Spec(),
			Status:      s.Status,
			Captured:    s.Captured,
			CompletedBy: s.CompletedBy,
			CompletedAt: s.CompletedAt,
			Ref:         s.Ref,
		}
	}
	return doc
}

func (d *taskDocument) toDomain() (*domain.Task, error) {
	t := &domain.Task{
		ID:          d.ID,
		TenantID:    d.TenantID,
		FacilityID:  d.FacilityID,
		Type:        d.Type,
		Status:      d.Status,
		Priority:    d.Priority,
		Assignee:    d.Assignee,
		SourceType:  d.SourceType,
		SourceID:    d.SourceID,
		Context:     d.Context,
		Steps:       make([]domain.TaskStep, len(d.Steps)),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		CompletedAt: d.CompletedAt,
		CompletedBy: d.CompletedBy,
	}
	for i, s := range d.Steps {
		expected, err := s.Expected.Expectation()
		if err != nil {
			return nil, fmt.Errorf("task %s step %s: %w", d.ID, s.ID, err)
		}
		t.Steps[i] = domain.TaskStep{
			ID:          s.ID,
			Seq:         s.Seq,
			Prompt:      s.Prompt,
			Expected:    expected,
			Status:      s.Status,
			Captured:    s.Captured,
			CompletedBy: s.CompletedBy,
			CompletedAt: s.CompletedAt,
			Ref:         s.Ref,
		}
	}
	return t, nil
}

// tasks

type taskRepo struct{ col collection }

func (r taskRepo) Get(ctx context.Context, tc tenant.Context, taskID string) (*domain.Task, error) {
	var doc taskDocument
	found, err := r.col.findOne(ctx, scope(tc, bson.M{"_id": taskID}), &doc)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.ErrTaskNotFound
	}
	return doc.toDomain()
}

func (r taskRepo) Insert(ctx context.Context, task *domain.Task) error {
	if err := r.col.insert(ctx, toTaskDocument(task)); err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

func (r taskRepo) Save(ctx context.Context, task *domain.Task) error {
	return r.col.upsert(ctx, task.ID, toTaskDocument(task))
}

func (r taskRepo) FindForAssignee(ctx context.Context, tc tenant.Context, assignee string) ([]*domain.Task, error) {
	filter := scope(tc, bson.M{
		"status":   bson.M{"$in": bson.A{domain.TaskOpen, domain.TaskInProgress}},
		"assignee": bson.M{"$in": bson.A{"", assignee}},
	})
	return r.list(ctx, filter, sortBy("priority", "createdAt", "_id"))
}

func (r taskRepo) FindBySource(ctx context.Context, tc tenant.Context, sourceType domain.SourceType, sourceID string) ([]*domain.Task, error) {
	return r.list(ctx, scope(tc, bson.M{"sourceType": sourceType, "sourceId": sourceID}), sortBy("createdAt", "_id"))
}

func (r taskRepo) list(ctx context.Context, filter bson.M, sort bson.D) ([]*domain.Task, error) {
	var docs []*taskDocument
	if err := r.col.find(ctx, filter, &docs, options.Find().SetSort(sort)); err != nil {
		return nil, err
	}
	out := make([]*domain.Task, 0, len(docs))
	for _, doc := range docs {
		t, err := doc.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// exceptions

type exceptionRepo struct{ col collection }

func (r exceptionRepo) Get(ctx context.Context, tc tenant.Context, exceptionID string) (*domain.TaskException, error) {
	var e domain.TaskException
	found, err := r.col.findOne(ctx, scope(tc, bson.M{"_id": exceptionID}), &e)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.ErrExceptionNotFound
	}
	return &e, nil
}

func (r exceptionRepo) Insert(ctx context.Context, exception *domain.TaskException) error {
	if err := r.col.insert(ctx, exception); err != nil {
		return fmt.Errorf("failed to insert exception: %w", err)
	}
	return nil
}

func (r exceptionRepo) Save(ctx context.Context, exception *domain.TaskException) error {
	return r.col.upsert(ctx, exception.ID, exception)
}

func (r exceptionRepo) List(ctx context.Context, tc tenant.Context, filter domain.ExceptionFilter) ([]*domain.TaskException, error) {
	status := filter.Status
	if status == "" {
		status = domain.ExceptionOpen
	}
	extra := bson.M{"status": status}
	if filter.Kind != "" {
		extra["kind"] = filter.Kind
	}
	opts := options.Find().SetSort(sortBy("-createdAt", "-_id"))
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	var rows []*domain.TaskException
	err := r.col.find(ctx, scope(tc, extra), &rows, opts)
	return rows, err
}

// waves

type waveRepo struct{ col collection }

func (r waveRepo) Get(ctx context.Context, tc tenant.Context, waveID string) (*domain.Wave, error) {
	var w domain.Wave
	found, err := r.col.findOne(ctx, scope(tc, bson.M{"_id": waveID}), &w)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.ErrWaveNotFound
	}
	return &w, nil
}

func (r waveRepo) Insert(ctx context.Context, wave *domain.Wave) error {
	if err := r.col.insert(ctx, wave); err != nil {
		return fmt.Errorf("failed to insert wave: %w", err)
	}
	return nil
}

func (r waveRepo) Save(ctx context.Context, wave *domain.Wave) error {
	return r.col.upsert(ctx, wave.ID, wave)
}

func (r waveRepo) FindOpenByOrder(ctx context.Context, tc tenant.Context, orderID string) (*domain.Wave, error) {
	filter := scope(tc, bson.M{
		"orders.orderId": orderID,
		"status":         bson.M{"$ne": domain.WaveDone},
	})
	var w domain.Wave
	found, err := r.col.findOne(ctx, filter, &w)
	if err != nil || !found {
		return nil, err
	}
	return &w, nil
}

// shipments and handling units

type shipmentRepo struct {
	shipments collection
	units     collection
}

func (r shipmentRepo) FindByOrder(ctx context.Context, tc tenant.Context, orderID string) (*domain.Shipment, error) {
	var sh domain.Shipment
	found, err := r.shipments.findOne(ctx, scope(tc, bson.M{"orderId": orderID}), &sh)
	if err != nil || !found {
		return nil, err
	}
	return &sh, nil
}

func (r shipmentRepo) Save(ctx context.Context, shipment *domain.Shipment) error {
	return r.shipments.upsert(ctx, shipment.ID, shipment)
}

func (r shipmentRepo) FindHandlingUnit(ctx context.Context, tc tenant.Context, lpn string) (*domain.HandlingUnit, error) {
	var hu domain.HandlingUnit
	found, err := r.units.findOne(ctx, scope(tc, bson.M{"lpn": lpn}), &hu)
	if err != nil || !found {
		return nil, err
	}
	return &hu, nil
}

func (r shipmentRepo) SaveHandlingUnit(ctx context.Context, hu *domain.HandlingUnit) error {
	return r.units.upsert(ctx, hu.ID, hu)
}

// count submissions

type countRepo struct{ col collection }

func (r countRepo) Get(ctx context.Context, tc tenant.Context, submissionID string) (*domain.CountSubmission, error) {
	var c domain.CountSubmission
	found, err := r.col.findOne(ctx, scope(tc, bson.M{"_id": submissionID}), &c)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.ErrCountNotFound
	}
	return &c, nil
}

func (r countRepo) Insert(ctx context.Context, submission *domain.CountSubmission) error {
	if err := r.col.insert(ctx, submission); err != nil {
		return fmt.Errorf("failed to insert count submission: %w", err)
	}
	return nil
}

func (r countRepo) Save(ctx context.Context, submission *domain.CountSubmission) error {
	return r.col.upsert(ctx, submission.ID, submission)
}

func (r countRepo) List(ctx context.Context, tc tenant.Context, status domain.CountStatus) ([]*domain.CountSubmission, error) {
	extra := bson.M{}
	if status != "" {
		extra["status"] = status
	}
	var rows []*domain.CountSubmission
	err := r.col.find(ctx, scope(tc, extra), &rows, options.Find().SetSort(sortBy("createdAt", "_id")))
	return rows, err
}

// scan sessions

type scanSessionRepo struct {
	sessions collection
	events   collection
}

func (r scanSessionRepo) Get(ctx context.Context, tc tenant.Context, sessionID string) (*domain.ScanSession, error) {
	var ss domain.ScanSession
	found, err := r.sessions.findOne(ctx, scope(tc, bson.M{"_id": sessionID}), &ss)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.ErrScanSessionNotFound
	}
	return &ss, nil
}

func (r scanSessionRepo) Insert(ctx context.Context, session *domain.ScanSession) error {
	if err := r.sessions.insert(ctx, session); err != nil {
		return fmt.Errorf("failed to insert scan session: %w", err)
	}
	return nil
}

func (r scanSessionRepo) Save(ctx context.Context, session *domain.ScanSession) error {
	return r.sessions.upsert(ctx, session.ID, session)
}

func (r scanSessionRepo) AppendEvent(ctx context.Context, event *domain.ScanEvent) error {
	if err := r.events.insert(ctx, event); err != nil {
		return fmt.Errorf("failed to append scan event: %w", err)
	}
	return nil
}

func (r scanSessionRepo) Events(ctx context.Context, tc tenant.Context, sessionID string) ([]*domain.ScanEvent, error) {
	var rows []*domain.ScanEvent
	filter := bson.M{"tenantId": tc.TenantID, "sessionId": sessionID}
	err := r.events.find(ctx, filter, &rows, options.Find().SetSort(sortBy("createdAt", "_id")))
	return rows, err
}

func (r scanSessionRepo) FindActive(ctx context.Context, tc tenant.Context, operator string, limit int) ([]*domain.ScanSession, error) {
	opts := options.Find().SetSort(sortBy("-createdAt", "-_id"))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	var rows []*domain.ScanSession
	err := r.sessions.find(ctx, scope(tc, bson.M{"operator": operator, "status": domain.SessionActive}), &rows, opts)
	return rows, err
}

func (r scanSessionRepo) FindByHandoff(ctx context.Context, tc tenant.Context, code string) (*domain.ScanSession, error) {
	var ss domain.ScanSession
	found, err := r.sessions.findOne(ctx, scope(tc, bson.M{"handoff.code": strings.ToUpper(strings.TrimSpace(code))}), &ss)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.ErrHandoffNotFound
	}
	return &ss, nil
}
