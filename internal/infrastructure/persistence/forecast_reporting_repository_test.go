package persistence

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/sop/backend/internal/domain/analytics"
	"github.com/sop/backend/internal/domain/planning"
	"github.com/sop/backend/internal/domain/sales"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupForecastReportingTestDB(t *testing.T) *gorm.DB {
	db := setupPlanningTestDB(t)
	require.NoError(t, db.AutoMigrate(&sales.SalesRecord{}))
	return db
}

func TestGormForecastReportingRepository_GetForecastActualLines(t *testing.T) {
	ctx := context.Background()

	t.Run("joins non-future lines of active forecasts against sales", func(t *testing.T) {
		db := setupForecastReportingTestDB(t)
		repo := NewGormForecastReportingRepository(db)
		forecastRepo := NewGormForecastRepository(db)
		cycle := seedOpenCycle(t, NewGormCycleRepository(db), "S&OP 2025-12", "2025-12")

		c1, c2, p1, p2 := uuid.New(), uuid.New(), uuid.New(), uuid.New()
		repA, repB := uuid.New(), uuid.New()
		submitted := seedForecast(t, forecastRepo, cycle, c1, p1, repA, planning.ForecastStatusSubmitted)
		seedForecast(t, forecastRepo, cycle, c2, p1, repB, planning.ForecastStatusDraft)
		seedForecast(t, forecastRepo, cycle, c1, p2, repA, planning.ForecastStatusRejected)

		// One actual for the first historical month only
		require.NoError(t, NewGormSalesRecordRepository(db).Save(ctx,
			newTestSalesRecord(t, c1, p1, "2025-08", 8, 5)))

		lines, err := repo.GetForecastActualLines(ctx, analytics.Filter{CycleID: &cycle.ID})

		require.NoError(t, err)
		require.Len(t, lines, planning.HistoricalMonths)

		first := lines[0]
		assert.Equal(t, submitted.ID, first.ForecastID)
		assert.Equal(t, cycle.ID, first.CycleID)
		assert.Equal(t, c1, first.CustomerID)
		assert.Equal(t, p1, first.ProductID)
		assert.Equal(t, repA, first.SubmitterID)
		assert.Equal(t, 2025, first.Year)
		assert.Equal(t, 8, first.Month)
		assertDecimal(t, 10, first.ForecastQuantity)
		assertDecimal(t, 8, first.ActualQuantity)
		assert.True(t, first.HasActual)

		second := lines[1]
		assert.Equal(t, 9, second.Month)
		assertDecimal(t, 0, second.ActualQuantity)
		assert.False(t, second.HasActual)

		last := lines[3]
		assert.Equal(t, 11, last.Month)
		assert.False(t, last.HasActual)
	})

	t.Run("narrows by customer", func(t *testing.T) {
		db := setupForecastReportingTestDB(t)
		repo := NewGormForecastReportingRepository(db)
		forecastRepo := NewGormForecastRepository(db)
		cycle := seedOpenCycle(t, NewGormCycleRepository(db), "S&OP 2025-12", "2025-12")

		c1, c2, p1 := uuid.New(), uuid.New(), uuid.New()
		seedForecast(t, forecastRepo, cycle, c1, p1, uuid.New(), planning.ForecastStatusSubmitted)
		seedForecast(t, forecastRepo, cycle, c2, p1, uuid.New(), planning.ForecastStatusDraft)

		lines, err := repo.GetForecastActualLines(ctx,
			analytics.Filter{CycleID: &cycle.ID, CustomerID: &c2})

		require.NoError(t, err)
		assert.Empty(t, lines)
	})
}

func TestGormForecastReportingRepository_GetSubmitterStatusCounts(t *testing.T) {
	ctx := context.Background()

	t.Run("groups forecasts by submitter and status", func(t *testing.T) {
		db := setupForecastReportingTestDB(t)
		repo := NewGormForecastReportingRepository(db)
		forecastRepo := NewGormForecastRepository(db)
		cycle := seedOpenCycle(t, NewGormCycleRepository(db), "S&OP 2025-12", "2025-12")

		c1, c2, p1, p2 := uuid.New(), uuid.New(), uuid.New(), uuid.New()
		repA, repB := uuid.New(), uuid.New()
		seedForecast(t, forecastRepo, cycle, c1, p1, repA, planning.ForecastStatusSubmitted)
		seedForecast(t, forecastRepo, cycle, c1, p2, repA, planning.ForecastStatusRejected)
		seedForecast(t, forecastRepo, cycle, c2, p1, repB, planning.ForecastStatusDraft)

		counts, err := repo.GetSubmitterStatusCounts(ctx, cycle.ID)

		require.NoError(t, err)
		require.Len(t, counts, 2)
		byRep := make(map[uuid.UUID]analytics.SubmitterStatusCounts, len(counts))
		for _, c := range counts {
			byRep[c.SubmitterID] = c
		}

		assert.Equal(t, 1, byRep[repA].SubmittedCount)
		assert.Equal(t, 1, byRep[repA].RejectedCount)
		assert.Equal(t, 0, byRep[repA].DraftCount)
		assert.Equal(t, 2, byRep[repA].Total())
		assert.Equal(t, 1, byRep[repB].DraftCount)
		assert.Equal(t, 0, byRep[repB].SubmittedOrApproved())
	})
}
