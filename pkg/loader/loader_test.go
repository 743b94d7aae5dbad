package loader

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chauhanaman41/UIDAI-Analytics/pkg/model"
	"github.com/chauhanaman41/UIDAI-Analytics/pkg/store"
)

func makeRecords(n int, state string) []model.CleanedRecord {
	records := make([]model.CleanedRecord, 0, n)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		records = append(records, model.CleanedRecord{
			Source:   model.SourceEnrollment,
			Date:     base.AddDate(0, 0, i),
			State:    state,
			District: "Central",
			Pincode:  "110001",
			Counts: map[string]int64{
				"age_0_5":        int64(i),
				"age_5_17":       int64(i * 2),
				"age_18_greater": int64(i * 3),
			},
		})
	}
	return records
}

func TestLoaderBatchesAndCounts(t *testing.T) {
	repo := store.NewMemoryRepository()
	l, err := NewLoader(repo, zap.NewNop(), 10)
	require.NoError(t, err)

	result, err := l.LoadSlice(context.Background(), model.SourceEnrollment, makeRecords(25, "Delhi"))
	require.NoError(t, err)

	assert.Equal(t, int64(25), result.RowsReceived)
	assert.Equal(t, int64(25), result.RowsInserted)
	assert.Equal(t, int64(0), result.RowsSkipped)
	assert.Equal(t, 3, result.BatchesWritten) // 10 + 10 + 5
	assert.True(t, result.Success())
	assert.Equal(t, 25, repo.RowCount(model.SourceEnrollment))
}

func TestLoaderReloadIsIdempotent(t *testing.T) {
	repo := store.NewMemoryRepository()
	l, err := NewLoader(repo, zap.NewNop(), 10)
	require.NoError(t, err)

	records := makeRecords(15, "Goa")
	_, err = l.LoadSlice(context.Background(), model.SourceEnrollment, records)
	require.NoError(t, err)

	result, err := l.LoadSlice(context.Background(), model.SourceEnrollment, records)
	require.NoError(t, err)

	assert.Equal(t, int64(0), result.RowsInserted)
	assert.Equal(t, int64(15), result.RowsSkipped)
	assert.Equal(t, 15, repo.RowCount(model.SourceEnrollment))
}

// flakyRepo fails the first UpsertBatch call, then delegates.
type flakyRepo struct {
	*store.MemoryRepository
	failures int
}

func (f *flakyRepo) UpsertBatch(ctx context.Context, source model.SourceType, records []model.CleanedRecord) (int64, int64, error) {
	if f.failures > 0 {
		f.failures--
		return 0, 0, errors.New("sink unavailable")
	}
	return f.MemoryRepository.UpsertBatch(ctx, source, records)
}

func TestLoaderBatchFailureDoesNotAbortRun(t *testing.T) {
	repo := &flakyRepo{MemoryRepository: store.NewMemoryRepository(), failures: 1}
	l, err := NewLoader(repo, zap.NewNop(), 10)
	require.NoError(t, err)

	result, err := l.LoadSlice(context.Background(), model.SourceEnrollment, makeRecords(25, "Bihar"))
	require.NoError(t, err)

	assert.False(t, result.Success())
	assert.Equal(t, 1, result.BatchesFailed)
	assert.Equal(t, 2, result.BatchesWritten)
	assert.Equal(t, int64(10), result.RowsFailed)
	assert.Equal(t, int64(15), result.RowsInserted)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 10, result.Errors[0].RowCount)
}

func TestLoaderConstructorValidation(t *testing.T) {
	repo := store.NewMemoryRepository()

	_, err := NewLoader(nil, zap.NewNop(), 10)
	assert.Error(t, err)

	_, err = NewLoader(repo, nil, 10)
	assert.Error(t, err)

	_, err = NewLoader(repo, zap.NewNop(), 0)
	assert.Error(t, err)
}

func TestLoaderContextCancellation(t *testing.T) {
	repo := store.NewMemoryRepository()
	l, err := NewLoader(repo, zap.NewNop(), 10)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan model.CleanedRecord)
	cancel()

	result, err := l.Load(ctx, model.SourceEnrollment, ch)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Equal(t, int64(0), result.RowsReceived)
}
