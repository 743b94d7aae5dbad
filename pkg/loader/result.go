// pkg/loader/result.go
package loader

import (
	"time"

	"github.com/chauhanaman41/UIDAI-Analytics/pkg/model"
)

// BatchError records one failed batch for external retry decisions
type BatchError struct {
	BatchIndex int
	RowCount   int
	Err        error
}

// LoadResult accumulates the outcome of loading one source within a run
type LoadResult struct {
	Source         model.SourceType
	RowsReceived   int64
	RowsInserted   int64
	RowsSkipped    int64 // dedup-key conflicts, already present
	RowsFailed     int64 // rows in batches that failed to write
	BatchesWritten int
	BatchesFailed  int
	Errors         []BatchError
	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
}

// NewLoadResult creates a result tracker for one source
func NewLoadResult(source model.SourceType) *LoadResult {
	return &LoadResult{
		Source:    source,
		StartTime: time.Now(),
	}
}

// AddBatch records a successfully written batch
func (r *LoadResult) AddBatch(rows int, inserted, skipped int64) {
	r.RowsReceived += int64(rows)
	r.RowsInserted += inserted
	r.RowsSkipped += skipped
	r.BatchesWritten++
}

// AddBatchError records a failed batch
func (r *LoadResult) AddBatchError(rows int, err error) {
	r.RowsReceived += int64(rows)
	r.RowsFailed += int64(rows)
	r.BatchesFailed++
	r.Errors = append(r.Errors, BatchError{
		BatchIndex: r.BatchesWritten + r.BatchesFailed - 1,
		RowCount:   rows,
		Err:        err,
	})
}

// Complete finalizes timing
func (r *LoadResult) Complete() {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
}

// Success reports whether every batch was written
func (r *LoadResult) Success() bool {
	return r.BatchesFailed == 0
}

// Throughput returns rows written per second
func (r *LoadResult) Throughput() float64 {
	secs := r.Duration.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(r.RowsInserted+r.RowsSkipped) / secs
}
