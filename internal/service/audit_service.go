package service

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/model"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/pkg/apperrors"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/pkg/logger"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/pkg/metrics"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/repository"

	"github.com/google/uuid"
)

// AuditRepo is the durable audit sink. Insert must be idempotent on event ID
// so a retried write never duplicates history.
type AuditRepo interface {
	Insert(ctx context.Context, event *model.AuditEvent) error
	Query(ctx context.Context, filter model.AuditFilter, page model.AuditPage) ([]*model.AuditEvent, error)
	GetHistory(ctx context.Context, targetType, targetID string) ([]*model.AuditEvent, error)
	MarkApproval(ctx context.Context, eventID, approverID string, status model.ApprovalStatus) error
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// AuditService records audit events without ever failing or blocking the
// operation that produced them. Events flow through a bounded queue to
// background workers; when the queue is full the event is dropped, counted
// and logged rather than applying backpressure. A capped in-process window
// always holds the most recent events so queries work even with no durable
// store configured.
type AuditService struct {
	queue  chan *model.AuditEvent
	window *repository.MemoryAuditRepo
	repo   AuditRepo // durable store, may be nil
	mirror AuditRepo // secondary sink (e.g. a redis recent-events list), may be nil
	file   *os.File

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	now    func() time.Time
}

// AuditOptions configures the recorder pipeline. Zero values get defaults.
type AuditOptions struct {
	QueueSize  int
	Workers    int
	WindowSize int
	// LogDir, when set, enables an append-only daily jsonl file alongside the
	// configured stores.
	LogDir string
}

func NewAuditService(opts AuditOptions, repo, mirror AuditRepo) (*AuditService, error) {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1000
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.WindowSize <= 0 {
		opts.WindowSize = 10000
	}

	var file *os.File
	if opts.LogDir != "" {
		if err := os.MkdirAll(opts.LogDir, 0o755); err != nil {
			return nil, err
		}
		filename := filepath.Join(opts.LogDir, "audit-"+time.Now().UTC().Format("2006-01-02")+".jsonl")
		f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		file = f
	}

	svc := &AuditService{
		queue:  make(chan *model.AuditEvent, opts.QueueSize),
		window: repository.NewMemoryAuditRepo(opts.WindowSize),
		repo:   repo,
		mirror: mirror,
		file:   file,
		now:    time.Now,
	}

	svc.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go svc.drain()
	}
	return svc, nil
}

// Record enqueues one event. It completes the event (id, timestamp, field
// diff), trims oversized text and never blocks: a full queue drops the event.
func (s *AuditService) Record(event *model.AuditEvent) {
	if event == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now().UTC()
	}
	if event.FieldDiff == nil && event.OldValue != nil && event.NewValue != nil {
		event.FieldDiff = model.ComputeFieldDiff(event.OldValue, event.NewValue)
	}
	event.Sanitize()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}

	// The window is synchronous so reads immediately after a write observe
	// the event even before a worker persists it.
	_ = s.window.Insert(context.Background(), event)

	select {
	case s.queue <- event:
		metrics.AuditQueueDepth.Set(float64(len(s.queue)))
	default:
		metrics.AuditEventsDropped.Inc()
		logger.Warn("audit queue full, dropping event",
			"action", string(event.Action), "target_type", event.TargetType, "target_id", event.TargetID)
	}
}

func (s *AuditService) drain() {
	defer s.wg.Done()
	var encoder *json.Encoder
	if s.file != nil {
		encoder = json.NewEncoder(s.file)
	}
	for event := range s.queue {
		metrics.AuditQueueDepth.Set(float64(len(s.queue)))
		s.persist(event, encoder)
	}
}

func (s *AuditService) persist(event *model.AuditEvent, encoder *json.Encoder) {
	ctx := context.Background()
	if s.repo != nil {
		if err := s.repo.Insert(ctx, event); err != nil {
			logger.Error("failed to persist audit event", "event_id", event.ID, "error", err.Error())
		} else {
			metrics.AuditEventsWritten.WithLabelValues(string(event.Action)).Inc()
		}
	}
	if s.mirror != nil {
		if err := s.mirror.Insert(ctx, event); err != nil {
			logger.Warn("failed to mirror audit event", "event_id", event.ID, "error", err.Error())
		}
	}
	if encoder != nil {
		if err := encoder.Encode(event); err != nil {
			logger.Error("failed to append audit event to file", "event_id", event.ID, "error", err.Error())
		}
	}
}

// Query reads from the durable store when available, falling back to the
// in-process window.
func (s *AuditService) Query(ctx context.Context, filter model.AuditFilter, page model.AuditPage) ([]*model.AuditEvent, error) {
	if s.repo != nil {
		events, err := s.repo.Query(ctx, filter, page)
		if err == nil {
			return events, nil
		}
		logger.Warn("audit store query failed, serving recent window", "error", err.Error())
	}
	return s.window.Query(ctx, filter, page)
}

// GetHistory returns every recorded event for one record, newest first.
func (s *AuditService) GetHistory(ctx context.Context, targetType, targetID string) ([]*model.AuditEvent, error) {
	if s.repo != nil {
		events, err := s.repo.GetHistory(ctx, targetType, targetID)
		if err == nil {
			return events, nil
		}
		logger.Warn("audit history query failed, serving recent window", "error", err.Error())
	}
	return s.window.GetHistory(ctx, targetType, targetID)
}

// ResolveApproval settles the secondary-review sub-record on a pending
// event. The event body itself stays immutable.
func (s *AuditService) ResolveApproval(ctx context.Context, eventID, approverID string, approve bool) error {
	status := model.ApprovalApproved
	if !approve {
		status = model.ApprovalRejected
	}
	var err error
	if s.repo != nil {
		err = s.repo.MarkApproval(ctx, eventID, approverID, status)
	} else {
		err = s.window.MarkApproval(ctx, eventID, approverID, status)
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrSelfReview):
		return apperrors.NewSelfApproval("a different administrator must review this change")
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound("no pending review for this event")
	default:
		return apperrors.Wrap(err)
	}
}

// Cleanup removes events older than the retention horizon. A zero horizon
// keeps everything.
func (s *AuditService) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return nil
	}
	_ = s.window.Cleanup(ctx, olderThan)
	if s.repo != nil {
		return s.repo.Cleanup(ctx, olderThan)
	}
	return nil
}

// Close stops accepting events, waits for the workers to flush the queue and
// closes the log file.
func (s *AuditService) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.queue)
	s.wg.Wait()
	if s.file != nil {
		_ = s.file.Close()
	}
}
