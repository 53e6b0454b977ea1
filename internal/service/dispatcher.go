package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/rakshak/internal/metrics"
	"github.com/sakif/rakshak/internal/model"
	"github.com/sakif/rakshak/internal/repository"
)

// DefaultQueueSize is used when NewDispatcher gets a non-positive size.
const DefaultQueueSize = 64

// remoteWriteTimeout bounds one job's two store calls.
const remoteWriteTimeout = 10 * time.Second

// DispatchJob is one SOS event waiting to be written remotely.
// After, when set, runs once the write was attempted, successful or not.
type DispatchJob struct {
	Event model.SOSEvent
	After func()
}

// Dispatcher writes SOS events to the shared document store in the
// background.
//
// HOW IT WORKS:
//
//	Enqueue ──► buffered queue ──► worker goroutine ──► sos_events add
//	                                                └─► users/{uid} merge
//
// Writes are best effort. A failed write is logged and counted and never
// retried; a full queue drops the job. The SOS itself already succeeded
// locally by the time a job is queued, so nothing here reports back to the
// caller.
type Dispatcher struct {
	docs    repository.DocumentStore
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan DispatchJob
	wg     sync.WaitGroup
}

// NewDispatcher starts the worker. Close it on shutdown to drain the queue.
func NewDispatcher(docs repository.DocumentStore, size int, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	if size <= 0 {
		size = DefaultQueueSize
	}
	d := &Dispatcher{
		docs:    docs,
		metrics: m,
		logger:  logger,
		queue:   make(chan DispatchJob, size),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Enqueue queues job without blocking. It reports false when the job was
// dropped because the queue is full or the dispatcher is closed.
func (d *Dispatcher) Enqueue(job DispatchJob) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn("dispatcher closed, dropping SOS write", slog.String("event_id", job.Event.ID))
		return false
	}

	select {
	case d.queue <- job:
		return true
	default:
		d.metrics.DispatchDropped()
		d.logger.Warn("dispatch queue full, dropping SOS write",
			slog.String("event_id", job.Event.ID),
			slog.String("uid", job.Event.UserID),
		)
		return false
	}
}

// Close stops accepting jobs and waits for the queued ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for job := range d.queue {
		d.write(job)
		if job.After != nil {
			job.After()
		}
	}
}

func (d *Dispatcher) write(job DispatchJob) {
	ctx, cancel := context.WithTimeout(context.Background(), remoteWriteTimeout)
	defer cancel()

	ev := job.Event
	doc := repository.Document{
		"type":      string(ev.Type),
		"location":  ev.Location,
		"timestamp": ev.Timestamp,
		"userId":    ev.UserID,
		"userEmail": ev.UserEmail,
		"status":    model.StatusActivated,
	}

	id, err := d.docs.AddDocument(ctx, model.CollectionSOSEvents, doc)
	if err != nil {
		d.failed(model.CollectionSOSEvents, ev, err)
		return
	}

	userDoc := repository.Document{
		"lastSOS":     ev.Timestamp,
		"lastUpdated": time.Now().UTC(),
	}
	if err := d.docs.MergeDocument(ctx, model.CollectionUsers, ev.UserID, userDoc); err != nil {
		d.failed(model.CollectionUsers, ev, err)
		return
	}

	d.logger.Info("SOS event stored",
		slog.String("doc_id", id),
		slog.String("uid", ev.UserID),
		slog.String("type", string(ev.Type)),
	)
}

func (d *Dispatcher) failed(collection string, ev model.SOSEvent, err error) {
	d.metrics.RemoteWriteFailed(collection)
	d.logger.Error("remote SOS write failed",
		slog.String("collection", collection),
		slog.String("event_id", ev.ID),
		slog.String("uid", ev.UserID),
		slog.String("error", err.Error()),
	)
}
