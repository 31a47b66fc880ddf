package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sop/backend/internal/application/analytics"
	"github.com/sop/backend/internal/application/planning"
	"github.com/sop/backend/internal/domain/shared"
	"github.com/sop/backend/internal/infrastructure/logger"
)

// JobName identifies one scheduled lifecycle job
type JobName string

const (
	// JobDeadlineReminder surfaces submitters still incomplete ahead of the deadline
	JobDeadlineReminder JobName = "DEADLINE_REMINDER"

	// JobAutoCloseCycle closes the open cycle once its deadline has passed
	JobAutoCloseCycle JobName = "AUTO_CLOSE_CYCLE"

	// JobReportCleanup deletes finished reports past the retention horizon
	JobReportCleanup JobName = "REPORT_CLEANUP"

	// JobStatisticsRefresh recomputes the open cycle's submission statistics
	JobStatisticsRefresh JobName = "STATISTICS_REFRESH"
)

// AllJobs returns every lifecycle job in execution order
func AllJobs() []JobName {
	return []JobName{
		JobStatisticsRefresh,
		JobDeadlineReminder,
		JobAutoCloseCycle,
		JobReportCleanup,
	}
}

// CycleLifecycle is the slice of the planning service the lifecycle jobs drive
type CycleLifecycle interface {
	GetOpen(ctx context.Context) (*planning.CycleResponse, error)
	Close(ctx context.Context, cycleID uuid.UUID) (*planning.CycleResponse, error)
	RefreshStatistics(ctx context.Context, cycleID uuid.UUID) (*planning.CycleResponse, error)
	GetSubmitterProgress(ctx context.Context, cycleID uuid.UUID) ([]planning.SubmitterProgressResponse, error)
}

// ReportMaintenance is the slice of the report service the cleanup job drives
type ReportMaintenance interface {
	Cleanup(ctx context.Context, retention time.Duration) (int64, error)
}

// JobRunnerConfig holds configuration for the lifecycle job runner
type JobRunnerConfig struct {
	// JobTimeout is the maximum time a single job run may take
	JobTimeout time.Duration

	// DeadlineLeadTime is how far ahead of the cycle deadline reminders fire
	DeadlineLeadTime time.Duration

	// ReportRetention is how long finished reports are kept before cleanup
	ReportRetention time.Duration
}

// DefaultJobRunnerConfig returns default job runner configuration
func DefaultJobRunnerConfig() JobRunnerConfig {
	return JobRunnerConfig{
		JobTimeout:       5 * time.Minute,
		DeadlineLeadTime: 48 * time.Hour,
		ReportRetention:  7 * 24 * time.Hour,
	}
}

// JobRunner executes named lifecycle jobs against the injected services.
// It has no timer of its own: an external trigger decides when each job
// runs. Every run is recorded through the JobRecordRepository.
type JobRunner struct {
	config  JobRunnerConfig
	cycles  CycleLifecycle
	reports ReportMaintenance
	records *JobRecordRepository
	logger  *zap.Logger
}

// NewJobRunner creates a new lifecycle job runner. records may be nil when
// run audit rows are not wanted. Zero config fields fall back to the
// defaults.
func NewJobRunner(
	config JobRunnerConfig,
	cycles CycleLifecycle,
	reports ReportMaintenance,
	records *JobRecordRepository,
	logger *zap.Logger,
) *JobRunner {
	defaults := DefaultJobRunnerConfig()
	if config.JobTimeout <= 0 {
		config.JobTimeout = defaults.JobTimeout
	}
	if config.DeadlineLeadTime <= 0 {
		config.DeadlineLeadTime = defaults.DeadlineLeadTime
	}
	if config.ReportRetention <= 0 {
		config.ReportRetention = defaults.ReportRetention
	}
	return &JobRunner{
		config:  config,
		cycles:  cycles,
		reports: reports,
		records: records,
		logger:  logger,
	}
}

// Run executes one lifecycle job under the configured timeout and records
// the outcome. The context is tagged with a run-scoped request ID so SQL
// statements issued by the job correlate with the run in the logs. Record
// writes use the caller's context so a job timeout still leaves a closed
// audit row.
func (r *JobRunner) Run(ctx context.Context, job JobName) error {
	ctx, log := logger.WithRequestID(ctx,
		r.logger.With(zap.String("job", string(job))), uuid.NewString())

	var recordID uuid.UUID
	if r.records != nil {
		var err error
		recordID, err = r.records.RecordStart(ctx, job)
		if err != nil {
			log.Warn("Failed to record job start", zap.Error(err))
		}
	}

	jobCtx, cancel := context.WithTimeout(ctx, r.config.JobTimeout)
	defer cancel()

	start := time.Now()
	runErr := r.dispatch(jobCtx, job)
	duration := time.Since(start)

	if r.records != nil && recordID != uuid.Nil {
		if err := r.records.RecordFinish(ctx, recordID, runErr); err != nil {
			log.Warn("Failed to record job finish", zap.Error(err))
		}
	}

	if runErr != nil {
		log.Error("Lifecycle job failed",
			zap.Duration("duration", duration),
			zap.Error(runErr),
		)
		return runErr
	}

	log.Info("Lifecycle job finished", zap.Duration("duration", duration))
	return nil
}

// RunAll executes every lifecycle job in order, continuing past individual
// failures. The first error is returned.
func (r *JobRunner) RunAll(ctx context.Context) error {
	var firstErr error
	for _, job := range AllJobs() {
		if err := r.Run(ctx, job); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *JobRunner) dispatch(ctx context.Context, job JobName) error {
	switch job {
	case JobDeadlineReminder:
		return r.runDeadlineReminder(ctx)
	case JobAutoCloseCycle:
		return r.runAutoCloseCycle(ctx)
	case JobReportCleanup:
		return r.runReportCleanup(ctx)
	case JobStatisticsRefresh:
		return r.runStatisticsRefresh(ctx)
	default:
		return ErrUnknownJob
	}
}

// runDeadlineReminder looks for an open cycle whose deadline falls inside
// the lead window and surfaces every submitter still below full completion.
// Delivering the reminder is the external notifier's concern.
func (r *JobRunner) runDeadlineReminder(ctx context.Context) error {
	log := logger.FromContext(ctx)

	cycle, err := r.cycles.GetOpen(ctx)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			log.Debug("No open cycle, skipping deadline reminder")
			return nil
		}
		return err
	}
	if cycle.Deadline == nil {
		return nil
	}

	now := time.Now()
	deadline := *cycle.Deadline
	if now.After(deadline) || deadline.Sub(now) > r.config.DeadlineLeadTime {
		return nil
	}

	progress, err := r.cycles.GetSubmitterProgress(ctx, cycle.ID)
	if err != nil {
		return err
	}

	pending := 0
	for _, p := range progress {
		if p.Complete {
			continue
		}
		pending++
		log.Info("Submitter incomplete ahead of cycle deadline",
			zap.String("cycle_id", cycle.ID.String()),
			zap.String("cycle_name", cycle.Name),
			zap.String("submitter_id", p.SubmitterID.String()),
			zap.Int("submitted", p.Submitted),
			zap.Int("total", p.Total),
			zap.Time("deadline", deadline),
		)
	}

	log.Info("Deadline reminder computed",
		zap.String("cycle_id", cycle.ID.String()),
		zap.Int("submitters_pending", pending),
		zap.Int("submitters_total", len(progress)),
	)
	return nil
}

// runAutoCloseCycle closes the open cycle once its deadline has passed.
// Losing the race to a manual close is not an error.
func (r *JobRunner) runAutoCloseCycle(ctx context.Context) error {
	cycle, err := r.cycles.GetOpen(ctx)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		return err
	}
	if cycle.Deadline == nil || time.Now().Before(*cycle.Deadline) {
		return nil
	}

	closed, err := r.cycles.Close(ctx, cycle.ID)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidState) || errors.Is(err, shared.ErrNotFound) {
			logger.FromContext(ctx).Info("Cycle already closed elsewhere",
				zap.String("cycle_id", cycle.ID.String()),
			)
			return nil
		}
		return err
	}

	logger.FromContext(ctx).Info("Cycle auto-closed past deadline",
		zap.String("cycle_id", closed.ID.String()),
		zap.String("cycle_name", closed.Name),
		zap.Timep("deadline", closed.Deadline),
	)
	return nil
}

// runReportCleanup deletes finished reports older than the retention horizon
func (r *JobRunner) runReportCleanup(ctx context.Context) error {
	deleted, err := r.reports.Cleanup(ctx, r.config.ReportRetention)
	if err != nil {
		return err
	}
	logger.FromContext(ctx).Info("Report cleanup finished",
		zap.Int64("deleted_count", deleted),
		zap.Duration("retention", r.config.ReportRetention),
	)
	return nil
}

// runStatisticsRefresh recomputes submission statistics for the open cycle
func (r *JobRunner) runStatisticsRefresh(ctx context.Context) error {
	cycle, err := r.cycles.GetOpen(ctx)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		return err
	}

	refreshed, err := r.cycles.RefreshStatistics(ctx, cycle.ID)
	if err != nil {
		return err
	}

	logger.FromContext(ctx).Debug("Cycle statistics refreshed",
		zap.String("cycle_id", refreshed.ID.String()),
		zap.Int("total_forecasts", refreshed.TotalForecasts),
		zap.Int("submitted_forecasts", refreshed.SubmittedForecasts),
		zap.String("completion_pct", refreshed.CompletionPct.String()),
	)
	return nil
}

// The concrete application services satisfy the runner's dependencies.
var (
	_ CycleLifecycle    = (*planning.CycleService)(nil)
	_ ReportMaintenance = (*analytics.ReportService)(nil)
)
