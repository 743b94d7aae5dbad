// pkg/pipeline/result.go
package pipeline

import (
	"time"

	"github.com/chauhanaman41/UIDAI-Analytics/pkg/ingest"
	"github.com/chauhanaman41/UIDAI-Analytics/pkg/loader"
	"github.com/chauhanaman41/UIDAI-Analytics/pkg/model"
)

// RunInput names the source files for one pipeline run. A source with no
// files is skipped; analytics run over whatever the sink then holds.
type RunInput struct {
	// SourceFiles maps each dataset to its CSV files
	SourceFiles map[model.SourceType][]string

	// SkipAnalytics stops after loading; used for ingest-only runs
	SkipAnalytics bool
}

// StageError records a non-fatal per-unit failure in an analytics stage,
// e.g. one state whose forecast models all failed
type StageError struct {
	Stage string
	Key   string // state or state/district the failure applies to
	Err   error
}

// RunResult is the synchronous outcome of one pipeline run
type RunResult struct {
	RunID     string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	// Ingest + load, per source
	Rejections    map[model.SourceType]*ingest.RejectionSummary
	Loads         map[model.SourceType]*loader.LoadResult
	Verifications map[model.SourceType]*loader.VerificationReport

	// Analytics outputs
	AlertsInserted int64
	Forecasts      []model.ForecastResult
	RiskScores     []model.RiskScore
	StageErrors    []StageError
}

// NewRunResult creates a result tracker for a run
func NewRunResult(runID string) *RunResult {
	return &RunResult{
		RunID:         runID,
		StartTime:     time.Now(),
		Rejections:    make(map[model.SourceType]*ingest.RejectionSummary),
		Loads:         make(map[model.SourceType]*loader.LoadResult),
		Verifications: make(map[model.SourceType]*loader.VerificationReport),
	}
}

// Complete finalizes timing
func (r *RunResult) Complete() {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
}

// RowsInserted sums inserted rows across sources
func (r *RunResult) RowsInserted() int64 {
	var total int64
	for _, l := range r.Loads {
		total += l.RowsInserted
	}
	return total
}

// RowsRejected sums rejected rows across sources
func (r *RunResult) RowsRejected() int64 {
	var total int64
	for _, s := range r.Rejections {
		total += s.Rejected()
	}
	return total
}

// LoadSucceeded reports whether every batch of every source was written
func (r *RunResult) LoadSucceeded() bool {
	for _, l := range r.Loads {
		if !l.Success() {
			return false
		}
	}
	return true
}
