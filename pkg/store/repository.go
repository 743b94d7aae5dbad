// pkg/store/repository.go
package store

import (
	"context"
	"time"

	"github.com/chauhanaman41/UIDAI-Analytics/pkg/model"
)

// SeriesFilter selects sink rows for analytics reads. Zero-value fields are
// unfiltered; AgeBand selects a single count column, empty means the sum of
// all bands.
type SeriesFilter struct {
	Source    model.SourceType
	State     string
	District  string
	AgeBand   string
	StartDate time.Time
	EndDate   time.Time
}

// SeriesPoint is one stored observation: the total of the selected band(s)
// for a calendar date and location.
type SeriesPoint struct {
	Date     time.Time `db:"date"`
	State    string    `db:"state"`
	District string    `db:"district"`
	Value    float64   `db:"value"`
}

// AlertFilter selects persisted anomaly alerts
type AlertFilter struct {
	State        string
	District     string
	MinSeverity  float64
	LookbackDays int // 0 means unbounded
}

// SinkRepository is the storage contract the pipeline core depends on. The
// core never talks to a storage engine directly; batched upsert-by-key is
// what makes reloads idempotent.
type SinkRepository interface {
	// EnsureSchema creates the sink tables if they do not exist
	EnsureSchema(ctx context.Context) error

	// UpsertBatch writes cleaned records keyed by their dedup key. A record
	// whose key already exists is skipped, never duplicated.
	UpsertBatch(ctx context.Context, source model.SourceType, records []model.CleanedRecord) (inserted, skipped int64, err error)

	// CountRows returns the number of rows in a sink table
	CountRows(ctx context.Context, source model.SourceType) (int64, error)

	// QuerySeries returns per-date totals matching the filter, ordered by
	// date ascending
	QuerySeries(ctx context.Context, filter SeriesFilter) ([]SeriesPoint, error)

	// DistinctLocations returns the (state, district) pairs present in a
	// sink table
	DistinctLocations(ctx context.Context, source model.SourceType) ([]model.Location, error)

	// DistinctStates returns the states present in a sink table
	DistinctStates(ctx context.Context, source model.SourceType) ([]string, error)

	// InsertAlerts persists anomaly alerts
	InsertAlerts(ctx context.Context, alerts []model.AnomalyAlert) (int64, error)

	// QueryAlerts returns persisted alerts matching the filter
	QueryAlerts(ctx context.Context, filter AlertFilter) ([]model.AnomalyAlert, error)
}
