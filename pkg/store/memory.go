// pkg/store/memory.go
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/chauhanaman41/UIDAI-Analytics/pkg/model"
)

// MemoryRepository is an in-memory SinkRepository with the same dedup
// semantics as the PostgreSQL implementation. It backs tests and local runs
// without a database.
type MemoryRepository struct {
	mu     sync.RWMutex
	tables map[model.SourceType]map[string]model.CleanedRecord // dedup key -> record
	alerts []model.AnomalyAlert
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		tables: map[model.SourceType]map[string]model.CleanedRecord{
			model.SourceEnrollment:  {},
			model.SourceBiometric:   {},
			model.SourceDemographic: {},
		},
	}
}

// EnsureSchema is a no-op for the in-memory repository
func (r *MemoryRepository) EnsureSchema(ctx context.Context) error {
	return nil
}

// UpsertBatch writes records keyed by dedup key; existing keys are skipped
func (r *MemoryRepository) UpsertBatch(
	ctx context.Context,
	source model.SourceType,
	records []model.CleanedRecord,
) (int64, int64, error) {
	if !source.Valid() {
		return 0, 0, fmt.Errorf("unknown source type %q", source)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	table := r.tables[source]
	var inserted, skipped int64
	for _, rec := range records {
		key := rec.DedupKey()
		if _, exists := table[key]; exists {
			skipped++
			continue
		}
		table[key] = rec
		inserted++
	}

	return inserted, skipped, nil
}

// RowCount returns the number of stored rows for a source table
func (r *MemoryRepository) RowCount(source model.SourceType) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tables[source])
}

// CountRows returns the number of stored rows for a source table
func (r *MemoryRepository) CountRows(ctx context.Context, source model.SourceType) (int64, error) {
	if !source.Valid() {
		return 0, fmt.Errorf("unknown source type %q", source)
	}
	return int64(r.RowCount(source)), nil
}

// QuerySeries returns per-date totals matching the filter, ordered by date
// ascending
func (r *MemoryRepository) QuerySeries(ctx context.Context, filter SeriesFilter) ([]SeriesPoint, error) {
	if !filter.Source.Valid() {
		return nil, fmt.Errorf("unknown source type %q", filter.Source)
	}
	if filter.AgeBand != "" {
		found := false
		for _, col := range filter.Source.CountColumns() {
			if col == filter.AgeBand {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown age band %q for source %q", filter.AgeBand, filter.Source)
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	type groupKey struct {
		date     time.Time
		state    string
		district string
	}
	totals := make(map[groupKey]float64)

	for _, rec := range r.tables[filter.Source] {
		if filter.State != "" && rec.State != filter.State {
			continue
		}
		if filter.District != "" && rec.District != filter.District {
			continue
		}
		if !filter.StartDate.IsZero() && rec.Date.Before(filter.StartDate) {
			continue
		}
		if !filter.EndDate.IsZero() && rec.Date.After(filter.EndDate) {
			continue
		}

		var value float64
		if filter.AgeBand != "" {
			value = float64(rec.Counts[filter.AgeBand])
		} else {
			for _, col := range filter.Source.CountColumns() {
				value += float64(rec.Counts[col])
			}
		}

		totals[groupKey{rec.Date, rec.State, rec.District}] += value
	}

	points := make([]SeriesPoint, 0, len(totals))
	for key, value := range totals {
		points = append(points, SeriesPoint{
			Date:     key.date,
			State:    key.state,
			District: key.district,
			Value:    value,
		})
	}

	sort.Slice(points, func(i, j int) bool {
		if !points[i].Date.Equal(points[j].Date) {
			return points[i].Date.Before(points[j].Date)
		}
		if points[i].State != points[j].State {
			return points[i].State < points[j].State
		}
		return points[i].District < points[j].District
	})

	return points, nil
}

// DistinctLocations returns the (state, district) pairs present in a sink
// table
func (r *MemoryRepository) DistinctLocations(ctx context.Context, source model.SourceType) ([]model.Location, error) {
	if !source.Valid() {
		return nil, fmt.Errorf("unknown source type %q", source)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[model.Location]struct{})
	for _, rec := range r.tables[source] {
		seen[model.Location{State: rec.State, District: rec.District}] = struct{}{}
	}

	locations := make([]model.Location, 0, len(seen))
	for loc := range seen {
		locations = append(locations, loc)
	}
	sort.Slice(locations, func(i, j int) bool {
		if locations[i].State != locations[j].State {
			return locations[i].State < locations[j].State
		}
		return locations[i].District < locations[j].District
	})

	return locations, nil
}

// DistinctStates returns the states present in a sink table
func (r *MemoryRepository) DistinctStates(ctx context.Context, source model.SourceType) ([]string, error) {
	locations, err := r.DistinctLocations(ctx, source)
	if err != nil {
		return nil, err
	}

	states := make([]string, 0, len(locations))
	for _, loc := range locations {
		if len(states) == 0 || states[len(states)-1] != loc.State {
			states = append(states, loc.State)
		}
	}

	return states, nil
}

// InsertAlerts persists anomaly alerts
func (r *MemoryRepository) InsertAlerts(ctx context.Context, alerts []model.AnomalyAlert) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.alerts = append(r.alerts, alerts...)
	return int64(len(alerts)), nil
}

// QueryAlerts returns persisted alerts matching the filter, newest first
func (r *MemoryRepository) QueryAlerts(ctx context.Context, filter AlertFilter) ([]model.AnomalyAlert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var cutoff time.Time
	if filter.LookbackDays > 0 {
		cutoff = time.Now().UTC().AddDate(0, 0, -filter.LookbackDays)
	}

	matched := make([]model.AnomalyAlert, 0)
	for _, alert := range r.alerts {
		if alert.SeverityScore < filter.MinSeverity {
			continue
		}
		if !cutoff.IsZero() && alert.Date.Before(cutoff) {
			continue
		}
		if filter.State != "" && alert.State != filter.State {
			continue
		}
		if filter.District != "" && alert.District != filter.District {
			continue
		}
		matched = append(matched, alert)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Date.After(matched[j].Date)
	})

	return matched, nil
}
