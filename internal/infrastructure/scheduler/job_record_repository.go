package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JobStatus represents the status of a lifecycle job run
type JobStatus string

const (
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// JobRecord is the audit row written for every lifecycle job run
type JobRecord struct {
	ID         uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	JobName    string     `gorm:"column:job_name;size:50;not null;index"`
	Status     string     `gorm:"column:status;size:20;not null"`
	Error      string     `gorm:"column:error;type:text"`
	StartedAt  time.Time  `gorm:"column:started_at;not null"`
	FinishedAt *time.Time `gorm:"column:finished_at"`
	CreatedAt  time.Time  `gorm:"column:created_at"`
	UpdatedAt  time.Time  `gorm:"column:updated_at"`
}

// TableName returns the table name for GORM
func (JobRecord) TableName() string {
	return "scheduler_job_records"
}

// JobRecordRepository persists lifecycle job run records
type JobRecordRepository struct {
	db *gorm.DB
}

// NewJobRecordRepository creates a new JobRecordRepository
func NewJobRecordRepository(db *gorm.DB) *JobRecordRepository {
	return &JobRecordRepository{db: db}
}

// RecordStart writes a RUNNING row for a job run and returns its id
func (r *JobRecordRepository) RecordStart(ctx context.Context, job JobName) (uuid.UUID, error) {
	now := time.Now()
	record := &JobRecord{
		ID:        uuid.New(),
		JobName:   string(job),
		Status:    string(JobStatusRunning),
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return uuid.Nil, err
	}
	return record.ID, nil
}

// RecordFinish closes a job run row with its outcome
func (r *JobRecordRepository) RecordFinish(ctx context.Context, recordID uuid.UUID, runErr error) error {
	now := time.Now()
	status := string(JobStatusSuccess)
	errMsg := ""
	if runErr != nil {
		status = string(JobStatusFailed)
		errMsg = runErr.Error()
	}
	return r.db.WithContext(ctx).
		Model(&JobRecord{}).
		Where("id = ?", recordID).
		Updates(map[string]any{
			"status":      status,
			"error":       errMsg,
			"finished_at": now,
			"updated_at":  now,
		}).Error
}

// LastRun returns the most recent run record for a job
func (r *JobRecordRepository) LastRun(ctx context.Context, job JobName) (*JobRecord, error) {
	var record JobRecord
	err := r.db.WithContext(ctx).
		Where("job_name = ?", job).
		Order("started_at DESC").
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}
