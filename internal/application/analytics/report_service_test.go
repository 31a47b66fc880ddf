package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sop/backend/internal/domain/analytics"
	"github.com/sop/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// =============================================================================
// Mock Repositories
// =============================================================================

// MockReportRepository is a mock implementation of analytics.ReportRepository
type MockReportRepository struct {
	mock.Mock
}

func (m *MockReportRepository) FindByID(ctx context.Context, id uuid.UUID) (*analytics.Report, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*analytics.Report), args.Error(1)
}

func (m *MockReportRepository) FindFreshByFingerprint(ctx context.Context, fingerprint string, maxAge time.Duration) (*analytics.Report, error) {
	args := m.Called(ctx, fingerprint, maxAge)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*analytics.Report), args.Error(1)
}

func (m *MockReportRepository) FindInFlightByFingerprint(ctx context.Context, fingerprint string) (*analytics.Report, error) {
	args := m.Called(ctx, fingerprint)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*analytics.Report), args.Error(1)
}

func (m *MockReportRepository) FindAll(ctx context.Context, filter shared.Filter) ([]analytics.Report, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]analytics.Report), args.Error(1)
}

func (m *MockReportRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockReportRepository) Create(ctx context.Context, report *analytics.Report) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

func (m *MockReportRepository) MarkGenerating(ctx context.Context, report *analytics.Report) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

func (m *MockReportRepository) MarkCompleted(ctx context.Context, report *analytics.Report) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

func (m *MockReportRepository) MarkFailed(ctx context.Context, report *analytics.Report) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

func (m *MockReportRepository) UpdateArtifactRef(ctx context.Context, report *analytics.Report) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

func (m *MockReportRepository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// Verify interface compliance
var _ analytics.ReportRepository = (*MockReportRepository)(nil)

// MockPayloadCache is a mock implementation of analytics.PayloadCache
type MockPayloadCache struct {
	mock.Mock
}

func (m *MockPayloadCache) GetPayload(ctx context.Context, fingerprint string) ([]byte, error) {
	args := m.Called(ctx, fingerprint)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockPayloadCache) SetPayload(ctx context.Context, fingerprint string, payload []byte, ttl time.Duration) error {
	args := m.Called(ctx, fingerprint, payload, ttl)
	return args.Error(0)
}

func (m *MockPayloadCache) DeletePayload(ctx context.Context, fingerprint string) error {
	args := m.Called(ctx, fingerprint)
	return args.Error(0)
}

// Verify interface compliance
var _ analytics.PayloadCache = (*MockPayloadCache)(nil)

// MockReportQueue is a mock implementation of ReportQueue
type MockReportQueue struct {
	mock.Mock
}

func (m *MockReportQueue) Enqueue(reportID uuid.UUID) error {
	args := m.Called(reportID)
	return args.Error(0)
}

// Verify interface compliance
var _ ReportQueue = (*MockReportQueue)(nil)

// =============================================================================
// Test Helper Functions
// =============================================================================

func testRequesterID() uuid.UUID {
	return uuid.MustParse("55555555-5555-5555-5555-555555555555")
}

func salesSummaryFingerprint() string {
	return analytics.Fingerprint(analytics.ReportTypeSalesSummary, analytics.Filter{})
}

func pendingReportFixture() *analytics.Report {
	report, _ := analytics.NewReport(analytics.ReportTypeSalesSummary, analytics.Filter{}, testRequesterID())
	return report
}

func completedReportFixture() *analytics.Report {
	report := pendingReportFixture()
	_ = report.Start()
	_ = report.Complete([]byte(`{"total_revenue":100000}`))
	return report
}

func notFoundReport() error {
	return shared.NewNotFoundError("REPORT_NOT_FOUND", "Report not found")
}

// =============================================================================
// ReportService Request Tests
// =============================================================================

func TestReportService_Request_QueuesNewReport(t *testing.T) {
	mockReports := new(MockReportRepository)
	mockPayloads := new(MockPayloadCache)
	mockQueue := new(MockReportQueue)
	engine, _, _, _ := newAnalyticsServiceUnderTest()
	service := NewReportService(mockReports, mockPayloads, engine, mockQueue, 0, zap.NewNop())

	ctx := context.Background()
	fingerprint := salesSummaryFingerprint()

	mockReports.On("FindFreshByFingerprint", ctx, fingerprint, time.Hour).Return(nil, notFoundReport())
	mockReports.On("FindInFlightByFingerprint", ctx, fingerprint).Return(nil, notFoundReport())
	mockReports.On("Create", ctx, mock.AnythingOfType("*analytics.Report")).Return(nil)
	mockQueue.On("Enqueue", mock.AnythingOfType("uuid.UUID")).Return(nil)

	result, err := service.Request(ctx, RequestReportRequest{
		ReportType:  "SALES_SUMMARY",
		RequestedBy: testRequesterID(),
	})

	assert.NoError(t, err)
	assert.Equal(t, "PENDING", result.Status)
	assert.Equal(t, "SALES_SUMMARY", result.ReportType)
	assert.Equal(t, fingerprint, result.Fingerprint)
	assert.Empty(t, result.Payload)
	mockReports.AssertExpectations(t)
	mockQueue.AssertExpectations(t)
}

func TestReportService_Request_ReturnsFreshReport(t *testing.T) {
	mockReports := new(MockReportRepository)
	mockPayloads := new(MockPayloadCache)
	mockQueue := new(MockReportQueue)
	engine, _, _, _ := newAnalyticsServiceUnderTest()
	service := NewReportService(mockReports, mockPayloads, engine, mockQueue, 0, zap.NewNop())

	ctx := context.Background()
	fresh := completedReportFixture()

	mockReports.On("FindFreshByFingerprint", ctx, fresh.Fingerprint, time.Hour).Return(fresh, nil)

	result, err := service.Request(ctx, RequestReportRequest{
		ReportType:  "SALES_SUMMARY",
		RequestedBy: testRequesterID(),
	})

	assert.NoError(t, err)
	assert.Equal(t, fresh.ID.String(), result.ID)
	assert.Equal(t, "COMPLETED", result.Status)
	mockReports.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	mockQueue.AssertNotCalled(t, "Enqueue", mock.Anything)
}

func TestReportService_Request_SharesInFlightGeneration(t *testing.T) {
	mockReports := new(MockReportRepository)
	mockPayloads := new(MockPayloadCache)
	mockQueue := new(MockReportQueue)
	engine, _, _, _ := newAnalyticsServiceUnderTest()
	service := NewReportService(mockReports, mockPayloads, engine, mockQueue, 0, zap.NewNop())

	ctx := context.Background()
	inFlight := pendingReportFixture()
	_ = inFlight.Start()

	mockReports.On("FindFreshByFingerprint", ctx, inFlight.Fingerprint, time.Hour).Return(nil, notFoundReport())
	mockReports.On("FindInFlightByFingerprint", ctx, inFlight.Fingerprint).Return(inFlight, nil)

	result, err := service.Request(ctx, RequestReportRequest{
		ReportType:  "SALES_SUMMARY",
		RequestedBy: testRequesterID(),
	})

	assert.NoError(t, err)
	assert.Equal(t, inFlight.ID.String(), result.ID)
	assert.Equal(t, "GENERATING", result.Status)
	mockReports.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	mockQueue.AssertNotCalled(t, "Enqueue", mock.Anything)
}

func TestReportService_Request_LostInsertRaceSharesWinner(t *testing.T) {
	mockReports := new(MockReportRepository)
	mockPayloads := new(MockPayloadCache)
	mockQueue := new(MockReportQueue)
	engine, _, _, _ := newAnalyticsServiceUnderTest()
	service := NewReportService(mockReports, mockPayloads, engine, mockQueue, 0, zap.NewNop())

	ctx := context.Background()
	winner := pendingReportFixture()

	// Nothing visible on the first lookups, then the insert loses to a
	// concurrent request that slipped in between
	mockReports.On("FindFreshByFingerprint", ctx, winner.Fingerprint, time.Hour).
		Return(nil, notFoundReport())
	mockReports.On("FindInFlightByFingerprint", ctx, winner.Fingerprint).
		Return(nil, notFoundReport()).Once()
	mockReports.On("Create", ctx, mock.AnythingOfType("*analytics.Report")).
		Return(shared.NewConflictError("REPORT_IN_FLIGHT",
			"A generation for this report is already in flight"))
	mockReports.On("FindInFlightByFingerprint", ctx, winner.Fingerprint).
		Return(winner, nil).Once()

	result, err := service.Request(ctx, RequestReportRequest{
		ReportType:  "SALES_SUMMARY",
		RequestedBy: testRequesterID(),
	})

	assert.NoError(t, err)
	assert.Equal(t, winner.ID.String(), result.ID)
	assert.Equal(t, "PENDING", result.Status)
	mockQueue.AssertNotCalled(t, "Enqueue", mock.Anything)
	mockReports.AssertExpectations(t)
}

func TestReportService_Request_QueueFull(t *testing.T) {
	mockReports := new(MockReportRepository)
	mockPayloads := new(MockPayloadCache)
	mockQueue := new(MockReportQueue)
	engine, _, _, _ := newAnalyticsServiceUnderTest()
	service := NewReportService(mockReports, mockPayloads, engine, mockQueue, 0, zap.NewNop())

	ctx := context.Background()
	fingerprint := salesSummaryFingerprint()

	mockReports.On("FindFreshByFingerprint", ctx, fingerprint, time.Hour).Return(nil, notFoundReport())
	mockReports.On("FindInFlightByFingerprint", ctx, fingerprint).Return(nil, notFoundReport())
	mockReports.On("Create", ctx, mock.AnythingOfType("*analytics.Report")).Return(nil)
	mockQueue.On("Enqueue", mock.AnythingOfType("uuid.UUID")).Return(errors.New("job queue is full"))
	mockReports.On("MarkFailed", ctx, mock.MatchedBy(func(r *analytics.Report) bool {
		return r.Status == analytics.ReportStatusFailed && r.ErrorMessage != ""
	})).Return(nil)

	result, err := service.Request(ctx, RequestReportRequest{
		ReportType:  "SALES_SUMMARY",
		RequestedBy: testRequesterID(),
	})

	assert.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, shared.ErrConflict)
	var domainErr *shared.DomainError
	assert.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "REPORT_QUEUE_FULL", domainErr.Code)
	mockReports.AssertExpectations(t)
}

func TestReportService_Request_UnknownType(t *testing.T) {
	mockReports := new(MockReportRepository)
	mockPayloads := new(MockPayloadCache)
	mockQueue := new(MockReportQueue)
	engine, _, _, _ := newAnalyticsServiceUnderTest()
	service := NewReportService(mockReports, mockPayloads, engine, mockQueue, 0, zap.NewNop())

	ctx := context.Background()

	result, err := service.Request(ctx, RequestReportRequest{
		ReportType:  "WEEKLY_SALES",
		RequestedBy: testRequesterID(),
	})

	assert.Error(t, err)
	assert.Nil(t, result)
	var domainErr *shared.DomainError
	assert.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "INVALID_REPORT_TYPE", domainErr.Code)
	mockReports.AssertNotCalled(t, "FindFreshByFingerprint", mock.Anything, mock.Anything, mock.Anything)
}

// =============================================================================
// ReportService GetFresh Tests
// =============================================================================

func TestReportService_GetFresh_ServesPayloadFromCache(t *testing.T) {
	mockReports := new(MockReportRepository)
	mockPayloads := new(MockPayloadCache)
	mockQueue := new(MockReportQueue)
	engine, _, _, _ := newAnalyticsServiceUnderTest()
	service := NewReportService(mockReports, mockPayloads, engine, mockQueue, 0, zap.NewNop())

	ctx := context.Background()
	completed := completedReportFixture()
	meta := *completed
	meta.Payload = nil // the fingerprint lookup never loads the payload column

	mockReports.On("FindFreshByFingerprint", ctx, completed.Fingerprint, time.Hour).Return(&meta, nil)
	mockPayloads.On("GetPayload", ctx, completed.Fingerprint).
		Return([]byte(`{"total_revenue":100000}`), nil)

	result, err := service.GetFresh(ctx, "SALES_SUMMARY", ReportFilterRequest{})

	assert.NoError(t, err)
	assert.JSONEq(t, `{"total_revenue":100000}`, string(result.Payload))
	mockReports.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
	mockPayloads.AssertNotCalled(t, "SetPayload", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReportService_GetFresh_CacheMissFallsBackToRow(t *testing.T) {
	mockReports := new(MockReportRepository)
	mockPayloads := new(MockPayloadCache)
	mockQueue := new(MockReportQueue)
	engine, _, _, _ := newAnalyticsServiceUnderTest()
	service := NewReportService(mockReports, mockPayloads, engine, mockQueue, 0, zap.NewNop())

	ctx := context.Background()
	completed := completedReportFixture()
	meta := *completed
	meta.Payload = nil

	mockReports.On("FindFreshByFingerprint", ctx, completed.Fingerprint, time.Hour).Return(&meta, nil)
	mockPayloads.On("GetPayload", ctx, completed.Fingerprint).Return(nil, shared.ErrNotFound)
	mockReports.On("FindByID", ctx, completed.ID).Return(completed, nil)
	mockPayloads.On("SetPayload", ctx, completed.Fingerprint, completed.Payload, time.Hour).Return(nil)

	result, err := service.GetFresh(ctx, "SALES_SUMMARY", ReportFilterRequest{})

	assert.NoError(t, err)
	assert.JSONEq(t, `{"total_revenue":100000}`, string(result.Payload))
	mockReports.AssertExpectations(t)
	mockPayloads.AssertExpectations(t)
}

func TestReportService_GetFresh_StaleIsNotFound(t *testing.T) {
	mockReports := new(MockReportRepository)
	mockPayloads := new(MockPayloadCache)
	mockQueue := new(MockReportQueue)
	engine, _, _, _ := newAnalyticsServiceUnderTest()
	service := NewReportService(mockReports, mockPayloads, engine, mockQueue, 0, zap.NewNop())

	ctx := context.Background()

	mockReports.On("FindFreshByFingerprint", ctx, salesSummaryFingerprint(), time.Hour).
		Return(nil, notFoundReport())

	result, err := service.GetFresh(ctx, "SALES_SUMMARY", ReportFilterRequest{})

	assert.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	mockPayloads.AssertNotCalled(t, "GetPayload", mock.Anything, mock.Anything)
}

func TestReportService_GetFresh_UnknownType(t *testing.T) {
	mockReports := new(MockReportRepository)
	mockPayloads := new(MockPayloadCache)
	mockQueue := new(MockReportQueue)
	engine, _, _, _ := newAnalyticsServiceUnderTest()
	service := NewReportService(mockReports, mockPayloads, engine, mockQueue, 0, zap.NewNop())

	ctx := context.Background()

	result, err := service.GetFresh(ctx, "WEEKLY_SALES", ReportFilterRequest{})

	assert.Error(t, err)
	assert.Nil(t, result)
	var domainErr *shared.DomainError
	assert.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "INVALID_REPORT_TYPE", domainErr.Code)
}

// =============================================================================
// ReportService GenerateNow Tests
// =============================================================================

func TestReportService_GenerateNow_ComputesAndPersists(t *testing.T) {
	mockReports := new(MockReportRepository)
	mockPayloads := new(MockPayloadCache)
	mockQueue := new(MockReportQueue)
	engine, mockSales, _, _ := newAnalyticsServiceUnderTest()
	service := NewReportService(mockReports, mockPayloads, engine, mockQueue, 0, zap.NewNop())

	ctx := context.Background()
	fingerprint := salesSummaryFingerprint()
	salesSummaryFixture(mockSales, ctx, analytics.Filter{})

	mockReports.On("FindFreshByFingerprint", ctx, fingerprint, time.Hour).Return(nil, notFoundReport())
	mockReports.On("Create", ctx, mock.AnythingOfType("*analytics.Report")).Return(nil)
	mockReports.On("MarkGenerating", ctx, mock.AnythingOfType("*analytics.Report")).Return(nil)
	mockReports.On("MarkCompleted", ctx, mock.AnythingOfType("*analytics.Report")).Return(nil)
	mockPayloads.On("SetPayload", ctx, fingerprint, mock.AnythingOfType("[]uint8"), time.Hour).Return(nil)

	result, err := service.GenerateNow(ctx, RequestReportRequest{
		ReportType:  "SALES_SUMMARY",
		RequestedBy: testRequesterID(),
	})

	assert.NoError(t, err)
	assert.Equal(t, "COMPLETED", result.Status)
	assert.NotNil(t, result.CompletedAt)
	assert.Contains(t, string(result.Payload), `"total_revenue":100000`)
	mockReports.AssertExpectations(t)
	mockPayloads.AssertExpectations(t)
	mockQueue.AssertNotCalled(t, "Enqueue", mock.Anything)
}

func TestReportService_GenerateNow_ServesFreshWithoutComputing(t *testing.T) {
	mockReports := new(MockReportRepository)
	mockPayloads := new(MockPayloadCache)
	mockQueue := new(MockReportQueue)
	engine, mockSales, _, _ := newAnalyticsServiceUnderTest()
	service := NewReportService(mockReports, mockPayloads, engine, mockQueue, 0, zap.NewNop())

	ctx := context.Background()
	completed := completedReportFixture()

	mockReports.On("FindFreshByFingerprint", ctx, completed.Fingerprint, time.Hour).Return(completed, nil)
	mockPayloads.On("GetPayload", ctx, completed.Fingerprint).
		Return([]byte(`{"total_revenue":100000}`), nil)

	result, err := service.GenerateNow(ctx, RequestReportRequest{
		ReportType:  "SALES_SUMMARY",
		RequestedBy: testRequesterID(),
	})

	assert.NoError(t, err)
	assert.Equal(t, "COMPLETED", result.Status)
	mockSales.AssertNotCalled(t, "GetSalesTotals", mock.Anything, mock.Anything)
	mockReports.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

// =============================================================================
// ReportService ProcessReport Tests
// =============================================================================

func TestReportService_ProcessReport_ClaimLostToAnotherWorker(t *testing.T) {
	mockReports := new(MockReportRepository)
	mockPayloads := new(MockPayloadCache)
	mockQueue := new(MockReportQueue)
	engine, _, _, _ := newAnalyticsServiceUnderTest()
	service := NewReportService(mockReports, mockPayloads, engine, mockQueue, 0, zap.NewNop())

	ctx := context.Background()
	report := pendingReportFixture()

	mockReports.On("FindByID", ctx, report.ID).Return(report, nil)
	mockReports.On("MarkGenerating", ctx, report).
		Return(shared.NewConflictError("REPORT_NOT_PENDING", "Report is no longer pending"))

	err := service.ProcessReport(ctx, report.ID)

	assert.NoError(t, err)
	mockReports.AssertNotCalled(t, "MarkCompleted", mock.Anything, mock.Anything)
	mockReports.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything)
}

func TestReportService_ProcessReport_SkipsFinishedReport(t *testing.T) {
	mockReports := new(MockReportRepository)
	mockPayloads := new(MockPayloadCache)
	mockQueue := new(MockReportQueue)
	engine, _, _, _ := newAnalyticsServiceUnderTest()
	service := NewReportService(mockReports, mockPayloads, engine, mockQueue, 0, zap.NewNop())

	ctx := context.Background()
	report := completedReportFixture()

	mockReports.On("FindByID", ctx, report.ID).Return(report, nil)

	err := service.ProcessReport(ctx, report.ID)

	assert.NoError(t, err)
	mockReports.AssertNotCalled(t, "MarkGenerating", mock.Anything, mock.Anything)
}

func TestReportService_ProcessReport_VanishedReport(t *testing.T) {
	mockReports := new(MockReportRepository)
	mockPayloads := new(MockPayloadCache)
	mockQueue := new(MockReportQueue)
	engine, _, _, _ := newAnalyticsServiceUnderTest()
	service := NewReportService(mockReports, mockPayloads, engine, mockQueue, 0, zap.NewNop())

	ctx := context.Background()
	reportID := uuid.New()

	mockReports.On("FindByID", ctx, reportID).Return(nil, notFoundReport())

	err := service.ProcessReport(ctx, reportID)

	assert.NoError(t, err)
}

func TestReportService_ProcessReport_RecordsFailure(t *testing.T) {
	mockReports := new(MockReportRepository)
	mockPayloads := new(MockPayloadCache)
	mockQueue := new(MockReportQueue)
	engine, _, _, _ := newAnalyticsServiceUnderTest()
	service := NewReportService(mockReports, mockPayloads, engine, mockQueue, 0, zap.NewNop())

	ctx := context.Background()
	// A forecast-vs-actual report without a cycle filter fails in the engine
	report, _ := analytics.NewReport(analytics.ReportTypeForecastVsActual, analytics.Filter{}, testRequesterID())

	mockReports.On("FindByID", ctx, report.ID).Return(report, nil)
	mockReports.On("MarkGenerating", ctx, report).Return(nil)
	mockReports.On("MarkFailed", ctx, mock.MatchedBy(func(r *analytics.Report) bool {
		return r.Status == analytics.ReportStatusFailed && r.ErrorMessage != ""
	})).Return(nil)

	err := service.ProcessReport(ctx, report.ID)

	assert.Error(t, err)
	var domainErr *shared.DomainError
	assert.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "MISSING_CYCLE_ID", domainErr.Code)
	assert.Contains(t, report.ErrorMessage, "cycle")
	mockReports.AssertNotCalled(t, "MarkCompleted", mock.Anything, mock.Anything)
	mockReports.AssertExpectations(t)
}

// =============================================================================
// ReportService Artifact, Cleanup and List Tests
// =============================================================================

func TestReportService_AttachArtifact_Success(t *testing.T) {
	mockReports := new(MockReportRepository)
	mockPayloads := new(MockPayloadCache)
	mockQueue := new(MockReportQueue)
	engine, _, _, _ := newAnalyticsServiceUnderTest()
	service := NewReportService(mockReports, mockPayloads, engine, mockQueue, 0, zap.NewNop())

	ctx := context.Background()
	report := completedReportFixture()

	mockReports.On("FindByID", ctx, report.ID).Return(report, nil)
	mockReports.On("UpdateArtifactRef", ctx, report).Return(nil)

	result, err := service.AttachArtifact(ctx, report.ID, "s3://reports/sales-summary.pdf")

	assert.NoError(t, err)
	assert.Equal(t, "s3://reports/sales-summary.pdf", result.ArtifactRef)
	mockReports.AssertExpectations(t)
}

func TestReportService_AttachArtifact_IncompleteReport(t *testing.T) {
	mockReports := new(MockReportRepository)
	mockPayloads := new(MockPayloadCache)
	mockQueue := new(MockReportQueue)
	engine, _, _, _ := newAnalyticsServiceUnderTest()
	service := NewReportService(mockReports, mockPayloads, engine, mockQueue, 0, zap.NewNop())

	ctx := context.Background()
	report := pendingReportFixture()

	mockReports.On("FindByID", ctx, report.ID).Return(report, nil)

	result, err := service.AttachArtifact(ctx, report.ID, "s3://reports/sales-summary.pdf")

	assert.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, shared.ErrInvalidState)
	mockReports.AssertNotCalled(t, "UpdateArtifactRef", mock.Anything, mock.Anything)
}

func TestReportService_Cleanup_RemovesExpired(t *testing.T) {
	mockReports := new(MockReportRepository)
	mockPayloads := new(MockPayloadCache)
	mockQueue := new(MockReportQueue)
	engine, _, _, _ := newAnalyticsServiceUnderTest()
	service := NewReportService(mockReports, mockPayloads, engine, mockQueue, 0, zap.NewNop())

	ctx := context.Background()

	mockReports.On("DeleteFinishedBefore", ctx, mock.AnythingOfType("time.Time")).Return(int64(3), nil)

	removed, err := service.Cleanup(ctx, 24*time.Hour)

	assert.NoError(t, err)
	assert.Equal(t, int64(3), removed)
	mockReports.AssertExpectations(t)
}

func TestReportService_Cleanup_RequiresPositiveRetention(t *testing.T) {
	mockReports := new(MockReportRepository)
	mockPayloads := new(MockPayloadCache)
	mockQueue := new(MockReportQueue)
	engine, _, _, _ := newAnalyticsServiceUnderTest()
	service := NewReportService(mockReports, mockPayloads, engine, mockQueue, 0, zap.NewNop())

	ctx := context.Background()

	removed, err := service.Cleanup(ctx, 0)

	assert.Error(t, err)
	assert.Zero(t, removed)
	var domainErr *shared.DomainError
	assert.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "INVALID_RETENTION", domainErr.Code)
	mockReports.AssertNotCalled(t, "DeleteFinishedBefore", mock.Anything, mock.Anything)
}

func TestReportService_List_FiltersByStatus(t *testing.T) {
	mockReports := new(MockReportRepository)
	mockPayloads := new(MockPayloadCache)
	mockQueue := new(MockReportQueue)
	engine, _, _, _ := newAnalyticsServiceUnderTest()
	service := NewReportService(mockReports, mockPayloads, engine, mockQueue, 0, zap.NewNop())

	ctx := context.Background()
	failed := pendingReportFixture()
	_ = failed.Start()
	_ = failed.Fail("sales repository unavailable")
	status := "FAILED"

	statusMatch := mock.MatchedBy(func(f shared.Filter) bool {
		return f.Filters["status"] == "FAILED"
	})
	mockReports.On("FindAll", ctx, statusMatch).Return([]analytics.Report{*failed}, nil)
	mockReports.On("Count", ctx, statusMatch).Return(int64(1), nil)

	page, err := service.List(ctx, ReportListFilter{Status: &status})

	assert.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	assert.Len(t, page.Items, 1)
	assert.Equal(t, "FAILED", page.Items[0].Status)
	assert.Equal(t, "sales repository unavailable", page.Items[0].ErrorMessage)
}
