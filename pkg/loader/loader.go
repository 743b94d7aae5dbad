// pkg/loader/loader.go
package loader

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/chauhanaman41/UIDAI-Analytics/pkg/model"
	"github.com/chauhanaman41/UIDAI-Analytics/pkg/store"
)

// Loader batches cleaned records and upserts them into the sink. One Loader
// writes one source table within a run; idempotence comes from the dedup key
// conflict target, so retried or overlapping runs never duplicate rows.
type Loader struct {
	repo      store.SinkRepository
	logger    *zap.Logger
	batchSize int
}

// NewLoader creates a new Loader instance
func NewLoader(repo store.SinkRepository, logger *zap.Logger, batchSize int) (*Loader, error) {
	if repo == nil {
		return nil, errors.New("sink repository cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}

	return &Loader{
		repo:      repo,
		logger:    logger.Named("loader"),
		batchSize: batchSize,
	}, nil
}

// Load consumes records from the channel until it closes, upserting them in
// batches. A failed batch is recorded in the result and loading continues
// with the next batch; the caller decides whether failed batches warrant an
// external retry of the run.
func (l *Loader) Load(
	ctx context.Context,
	source model.SourceType,
	records <-chan model.CleanedRecord,
) (*LoadResult, error) {
	if !source.Valid() {
		return nil, fmt.Errorf("unknown source type %q", source)
	}

	result := NewLoadResult(source)
	batch := make([]model.CleanedRecord, 0, l.batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		l.upsertBatch(ctx, source, batch, result)
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			// Leave the partial batch unwritten; reloading is safe
			result.Complete()
			return result, ctx.Err()

		case rec, ok := <-records:
			if !ok {
				flush()
				result.Complete()
				l.logResult(result)
				return result, nil
			}
			batch = append(batch, rec)
			if len(batch) >= l.batchSize {
				flush()
			}
		}
	}
}

// LoadSlice upserts an already-materialized record slice in batches
func (l *Loader) LoadSlice(
	ctx context.Context,
	source model.SourceType,
	records []model.CleanedRecord,
) (*LoadResult, error) {
	ch := make(chan model.CleanedRecord, l.batchSize)
	go func() {
		defer close(ch)
		for _, rec := range records {
			select {
			case ch <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()
	return l.Load(ctx, source, ch)
}

// upsertBatch writes one batch and records the outcome
func (l *Loader) upsertBatch(
	ctx context.Context,
	source model.SourceType,
	batch []model.CleanedRecord,
	result *LoadResult,
) {
	inserted, skipped, err := l.repo.UpsertBatch(ctx, source, batch)
	if err != nil {
		result.AddBatchError(len(batch), err)
		l.logger.Error("Batch upsert failed",
			zap.String("source", string(source)),
			zap.Int("batchSize", len(batch)),
			zap.Int("batchIndex", result.BatchesFailed+result.BatchesWritten-1),
			zap.Error(err))
		return
	}

	result.AddBatch(len(batch), inserted, skipped)
	l.logger.Debug("Batch upserted",
		zap.String("source", string(source)),
		zap.Int("batchSize", len(batch)),
		zap.Int64("inserted", inserted),
		zap.Int64("skipped", skipped))
}

func (l *Loader) logResult(result *LoadResult) {
	l.logger.Info("Load completed",
		zap.String("source", string(result.Source)),
		zap.Int64("rowsReceived", result.RowsReceived),
		zap.Int64("rowsInserted", result.RowsInserted),
		zap.Int64("rowsSkipped", result.RowsSkipped),
		zap.Int("batchesWritten", result.BatchesWritten),
		zap.Int("batchesFailed", result.BatchesFailed),
		zap.Duration("duration", result.Duration),
		zap.Float64("rowsPerSecond", result.Throughput()))
}
