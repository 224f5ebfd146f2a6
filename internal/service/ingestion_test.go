package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/keiba-line-bot/internal/datasource"
	"github.com/yourusername/keiba-line-bot/internal/models"
)

type mockPerformanceRepository struct {
	mock.Mock
}

func (m *mockPerformanceRepository) PastPerformances(ctx context.Context, horse models.HorseEntry) ([]models.PerformanceRecord, error) {
	args := m.Called(ctx, horse)
	return args.Get(0).([]models.PerformanceRecord), args.Error(1)
}

func (m *mockPerformanceRepository) InsertBatch(ctx context.Context, horseKey string, records []models.PerformanceRecord) error {
	return m.Called(ctx, horseKey, records).Error(0)
}

func raceWithPast() datasource.RaceData {
	race := testRaceData("11")
	for i := range race.Runners[:3] {
		race.Runners[i].Past = []models.PerformanceRecord{
			{Date: time.Date(2024, 4, 14, 0, 0, 0, 0, jst), RaceName: "皐月賞", Finish: i + 1, FieldSize: 18},
			{Date: time.Date(2024, 3, 3, 0, 0, 0, 0, jst), RaceName: "弥生賞", Finish: 2, FieldSize: 12},
		}
	}
	return race
}

func newIngestion(collector *mockCollector, repo *mockPerformanceRepository) *IngestionService {
	log := quietLogger()
	return NewIngestionService(collector, repo, NewDataValidator(0, log), NewDataNormalizer(jst, log), log)
}

func TestIngestRangeStoresPastPerformances(t *testing.T) {
	collector := &mockCollector{}
	repo := &mockPerformanceRepository{}
	day1 := time.Date(2024, 5, 25, 0, 0, 0, 0, jst)
	day2 := day1.AddDate(0, 0, 1)

	collector.On("Collect", mock.Anything, day1).Return([]datasource.RaceData{raceWithPast()}, nil)
	collector.On("Collect", mock.Anything, day2).Return([]datasource.RaceData(nil), nil)
	repo.On("InsertBatch", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	metrics, err := newIngestion(collector, repo).IngestRange(context.Background(), day1, day2)

	require.NoError(t, err)
	assert.Equal(t, 1, metrics.TotalRaces)
	assert.Equal(t, 1, metrics.StoredRaces)
	assert.Equal(t, 6, metrics.Records)
	assert.Zero(t, metrics.Errors)
	repo.AssertNumberOfCalls(t, "InsertBatch", 3)
	collector.AssertExpectations(t)
}

func TestIngestRangeCountsFailures(t *testing.T) {
	collector := &mockCollector{}
	repo := &mockPerformanceRepository{}
	day := time.Date(2024, 5, 26, 0, 0, 0, 0, jst)

	invalid := raceWithPast()
	invalid.Runners = nil
	collector.On("Collect", mock.Anything, day).Return([]datasource.RaceData{invalid, raceWithPast()}, nil)
	repo.On("InsertBatch", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("db down"))

	metrics, err := newIngestion(collector, repo).IngestRange(context.Background(), day, day)

	require.NoError(t, err)
	assert.Equal(t, 2, metrics.TotalRaces)
	assert.Equal(t, 1, metrics.ValidationErrors)
	assert.Equal(t, 4, metrics.Errors)
	assert.Zero(t, metrics.Records)
	assert.Contains(t, metrics.String(), "Total=2")
}

func TestIngestRangeRejectsInvertedRange(t *testing.T) {
	day := time.Date(2024, 5, 26, 0, 0, 0, 0, jst)
	_, err := newIngestion(&mockCollector{}, &mockPerformanceRepository{}).IngestRange(context.Background(), day, day.AddDate(0, 0, -1))
	assert.Error(t, err)
}
