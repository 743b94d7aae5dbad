package loader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chauhanaman41/UIDAI-Analytics/pkg/model"
	"github.com/chauhanaman41/UIDAI-Analytics/pkg/store"
)

func TestVerifyCleanLoad(t *testing.T) {
	repo := store.NewMemoryRepository()
	ld, err := NewLoader(repo, zap.NewNop(), 10)
	require.NoError(t, err)

	result, err := ld.LoadSlice(context.Background(), model.SourceEnrollment, makeRecords(8, "Kerala"))
	require.NoError(t, err)

	v, err := NewVerifier(repo, zap.NewNop())
	require.NoError(t, err)

	report, err := v.Verify(context.Background(), result)
	require.NoError(t, err)

	assert.True(t, report.Verified())
	assert.True(t, report.AccountingBalanced)
	assert.True(t, report.CountConsistent)
	assert.Equal(t, int64(8), report.SinkRowCount)
	assert.Equal(t, int64(8), report.RowsInserted)
	assert.Empty(t, report.Issues)
}

func TestVerifyDetectsAccountingMismatch(t *testing.T) {
	repo := store.NewMemoryRepository()
	v, err := NewVerifier(repo, zap.NewNop())
	require.NoError(t, err)

	// A result that claims more rows received than it accounts for
	result := NewLoadResult(model.SourceEnrollment)
	result.RowsReceived = 10
	result.RowsInserted = 0
	result.Complete()

	report, err := v.Verify(context.Background(), result)
	require.NoError(t, err)

	assert.False(t, report.Verified())
	assert.False(t, report.AccountingBalanced)
	assert.True(t, report.CountConsistent)
	require.Len(t, report.Issues, 1)
	assert.Contains(t, report.Issues[0], "accounting mismatch")
}

func TestVerifyDetectsMissingSinkRows(t *testing.T) {
	repo := store.NewMemoryRepository()
	v, err := NewVerifier(repo, zap.NewNop())
	require.NoError(t, err)

	// The sink is empty but the result claims inserts
	result := NewLoadResult(model.SourceEnrollment)
	result.RowsReceived = 5
	result.RowsInserted = 5
	result.Complete()

	report, err := v.Verify(context.Background(), result)
	require.NoError(t, err)

	assert.False(t, report.Verified())
	assert.False(t, report.CountConsistent)
}

func TestVerifierValidation(t *testing.T) {
	_, err := NewVerifier(nil, zap.NewNop())
	assert.Error(t, err)

	v, err := NewVerifier(store.NewMemoryRepository(), zap.NewNop())
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), nil)
	assert.Error(t, err)
}
