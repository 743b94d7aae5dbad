// pkg/loader/verifier.go
package loader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chauhanaman41/UIDAI-Analytics/pkg/model"
	"github.com/chauhanaman41/UIDAI-Analytics/pkg/store"
)

// VerificationReport contains the results of a post-load verification for
// one source table
type VerificationReport struct {
	Source           model.SourceType
	VerificationTime time.Time
	Duration         time.Duration

	// AccountingBalanced is true when every received row is accounted for
	// as inserted, skipped, or failed
	AccountingBalanced bool

	// CountConsistent is true when the sink holds at least as many rows as
	// this load inserted
	CountConsistent bool
	SinkRowCount    int64
	RowsInserted    int64

	Issues []string
}

// Verified reports whether the load passed all checks
func (r *VerificationReport) Verified() bool {
	return r.AccountingBalanced && r.CountConsistent
}

// Verifier checks a completed load against the sink. Because writes are
// keyed upserts, the sink can legitimately hold more rows than one run
// inserted; holding fewer means rows were lost.
type Verifier struct {
	repo   store.SinkRepository
	logger *zap.Logger
}

// NewVerifier creates a new verifier
func NewVerifier(repo store.SinkRepository, logger *zap.Logger) (*Verifier, error) {
	if repo == nil {
		return nil, errors.New("sink repository cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &Verifier{
		repo:   repo,
		logger: logger.Named("load-verifier"),
	}, nil
}

// Verify checks one load result. Failing a check is not an error; the
// report carries the findings and the caller decides what they warrant.
func (v *Verifier) Verify(ctx context.Context, result *LoadResult) (*VerificationReport, error) {
	if result == nil {
		return nil, errors.New("load result cannot be nil")
	}

	start := time.Now()
	report := &VerificationReport{
		Source:           result.Source,
		VerificationTime: start,
		RowsInserted:     result.RowsInserted,
	}

	accounted := result.RowsInserted + result.RowsSkipped + result.RowsFailed
	report.AccountingBalanced = accounted == result.RowsReceived
	if !report.AccountingBalanced {
		report.Issues = append(report.Issues, fmt.Sprintf(
			"row accounting mismatch: received %d, accounted %d",
			result.RowsReceived, accounted))
	}

	count, err := v.repo.CountRows(ctx, result.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to count sink rows for %s: %w", result.Source, err)
	}
	report.SinkRowCount = count
	report.CountConsistent = count >= result.RowsInserted
	if !report.CountConsistent {
		report.Issues = append(report.Issues, fmt.Sprintf(
			"sink holds %d rows but this load inserted %d",
			count, result.RowsInserted))
	}

	report.Duration = time.Since(start)

	if report.Verified() {
		v.logger.Debug("Load verified",
			zap.String("source", string(result.Source)),
			zap.Int64("sinkRows", count),
			zap.Int64("rowsInserted", result.RowsInserted))
	} else {
		v.logger.Warn("Load verification failed",
			zap.String("source", string(result.Source)),
			zap.Strings("issues", report.Issues))
	}

	return report, nil
}
