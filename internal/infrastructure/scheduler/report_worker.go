package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReportProcessor runs one queued report generation end to end. The worker
// never retries: a report that fails stays FAILED and the caller requests a
// new one.
type ReportProcessor interface {
	ProcessReport(ctx context.Context, reportID uuid.UUID) error
}

// WorkerConfig holds configuration for the report worker pool
type WorkerConfig struct {
	// Workers is the number of concurrent generation goroutines
	Workers int

	// QueueSize is the capacity of the pending-report queue
	QueueSize int

	// JobTimeout is the maximum time a single generation may run
	JobTimeout time.Duration
}

// DefaultWorkerConfig returns default worker pool configuration
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Workers:    3,
		QueueSize:  100,
		JobTimeout: 2 * time.Minute,
	}
}

// ReportWorker is the channel-fed pool that generates queued reports in the
// background. Report IDs arrive through Enqueue; each one is handed to the
// registered processor under a per-job timeout.
type ReportWorker struct {
	config    WorkerConfig
	processor ReportProcessor
	logger    *zap.Logger

	jobs      chan uuid.UUID
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewReportWorker creates a new report worker pool. The processor is
// registered separately because the report service and the worker reference
// each other. Zero config fields fall back to the defaults.
func NewReportWorker(config WorkerConfig, logger *zap.Logger) *ReportWorker {
	defaults := DefaultWorkerConfig()
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = defaults.JobTimeout
	}
	return &ReportWorker{
		config: config,
		logger: logger,
	}
}

// RegisterProcessor wires the generation backend. Must be called before Start.
func (w *ReportWorker) RegisterProcessor(p ReportProcessor) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.processor = p
}

// Start launches the worker goroutines
func (w *ReportWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isRunning {
		return nil
	}
	if w.processor == nil {
		return ErrNoProcessor
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.jobs = make(chan uuid.UUID, w.config.QueueSize)
	w.isRunning = true

	for i := 0; i < w.config.Workers; i++ {
		w.wg.Add(1)
		go w.worker(ctx, i)
	}

	w.logger.Info("Report worker started",
		zap.Int("workers", w.config.Workers),
		zap.Int("queue_size", w.config.QueueSize),
		zap.Duration("job_timeout", w.config.JobTimeout),
	)

	return nil
}

// Stop closes the queue and waits for the workers to drain it. Jobs still
// in flight are cancelled only if ctx expires first.
func (w *ReportWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	close(w.jobs)
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.cancel()
		w.logger.Info("Report worker stopped")
		return nil
	case <-ctx.Done():
		w.cancel()
		w.logger.Warn("Report worker stop timed out, cancelling in-flight jobs")
		return ctx.Err()
	}
}

// Enqueue hands a pending report to the pool. It never blocks: a full queue
// is reported to the caller instead.
func (w *ReportWorker) Enqueue(reportID uuid.UUID) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.isRunning {
		return ErrSchedulerNotRunning
	}

	select {
	case w.jobs <- reportID:
		return nil
	default:
		return ErrJobQueueFull
	}
}

// IsRunning returns whether the pool is accepting work
func (w *ReportWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.isRunning
}

// QueueDepth returns the number of report IDs waiting for a worker
func (w *ReportWorker) QueueDepth() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.jobs == nil {
		return 0
	}
	return len(w.jobs)
}

// worker consumes report IDs until the queue is closed and drained, or the
// context is cancelled outright
func (w *ReportWorker) worker(ctx context.Context, workerID int) {
	defer w.wg.Done()

	w.logger.Debug("Report worker goroutine started", zap.Int("worker_id", workerID))
	defer w.logger.Debug("Report worker goroutine stopped", zap.Int("worker_id", workerID))

	for {
		select {
		case <-ctx.Done():
			return
		case reportID, ok := <-w.jobs:
			if !ok {
				return
			}
			w.process(ctx, workerID, reportID)
		}
	}
}

// process runs one generation under the configured timeout
func (w *ReportWorker) process(ctx context.Context, workerID int, reportID uuid.UUID) {
	jobCtx, cancel := context.WithTimeout(ctx, w.config.JobTimeout)
	defer cancel()

	start := time.Now()
	err := w.processor.ProcessReport(jobCtx, reportID)
	duration := time.Since(start)

	if err != nil {
		w.logger.Warn("Report generation job failed",
			zap.Int("worker_id", workerID),
			zap.String("report_id", reportID.String()),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return
	}

	w.logger.Debug("Report generation job finished",
		zap.Int("worker_id", workerID),
		zap.String("report_id", reportID.String()),
		zap.Duration("duration", duration),
	)
}
