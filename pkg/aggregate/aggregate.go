// pkg/aggregate/aggregate.go
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/chauhanaman41/UIDAI-Analytics/pkg/cache"
	"github.com/chauhanaman41/UIDAI-Analytics/pkg/model"
	"github.com/chauhanaman41/UIDAI-Analytics/pkg/store"
)

// Aggregator computes trend series over sink rows. It is read-only; all
// writes happen in the loading stage.
type Aggregator struct {
	repo   store.SinkRepository
	cache  cache.ResultCache
	logger *zap.Logger
}

// NewAggregator creates a new Aggregator instance. resultCache may be
// cache.Disabled{}.
func NewAggregator(repo store.SinkRepository, resultCache cache.ResultCache, logger *zap.Logger) (*Aggregator, error) {
	if repo == nil {
		return nil, errors.New("sink repository cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if resultCache == nil {
		resultCache = cache.Disabled{}
	}

	return &Aggregator{
		repo:   repo,
		cache:  resultCache,
		logger: logger.Named("aggregator"),
	}, nil
}

// TrendQuery selects and buckets sink rows for trend computation. Empty
// State/District aggregate across all locations matching the other filters.
type TrendQuery struct {
	Source      model.SourceType
	State       string
	District    string
	Granularity Granularity
	StartDate   time.Time
	EndDate     time.Time
}

func (q TrendQuery) cacheKey() string {
	start, end := "", ""
	if !q.StartDate.IsZero() {
		start = q.StartDate.Format("2006-01-02")
	}
	if !q.EndDate.IsZero() {
		end = q.EndDate.Format("2006-01-02")
	}
	return cache.Key("trends", string(q.Source), q.State, q.District, string(q.Granularity), start, end)
}

// Trends returns one TrendPoint series per age band plus a "total" series,
// ordered by period ascending within each band. Periods between the first
// and last observation are contiguous; empty ones carry a zero total.
// Growth is nil, never zero, when the prior period is absent or its total is
// zero.
func (a *Aggregator) Trends(ctx context.Context, q TrendQuery) ([]model.TrendPoint, error) {
	if !q.Source.Valid() {
		return nil, fmt.Errorf("unknown source type %q", q.Source)
	}
	if !q.Granularity.Valid() {
		return nil, fmt.Errorf("unknown granularity %q", q.Granularity)
	}

	key := q.cacheKey()
	var cached []model.TrendPoint
	if a.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	bands := append([]string{}, q.Source.CountColumns()...)
	bands = append(bands, "total")

	var points []model.TrendPoint
	for _, band := range bands {
		filter := store.SeriesFilter{
			Source:    q.Source,
			State:     q.State,
			District:  q.District,
			StartDate: q.StartDate,
			EndDate:   q.EndDate,
		}
		if band != "total" {
			filter.AgeBand = band
		}

		series, err := a.repo.QuerySeries(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to query %s series for band %s: %w", q.Source, band, err)
		}

		points = append(points, bucketSeries(series, q, band)...)
	}

	a.cache.Set(ctx, key, points)

	a.logger.Debug("Computed trends",
		zap.String("source", string(q.Source)),
		zap.String("state", q.State),
		zap.String("granularity", string(q.Granularity)),
		zap.Int("points", len(points)))

	return points, nil
}

// bucketSeries sums daily observations into contiguous periods and derives
// change metrics against the prior period
func bucketSeries(series []store.SeriesPoint, q TrendQuery, band string) []model.TrendPoint {
	if len(series) == 0 {
		return nil
	}

	totals := make(map[string]float64)
	first := periodStart(series[0].Date, q.Granularity)
	last := first
	for _, p := range series {
		start := periodStart(p.Date, q.Granularity)
		if start.Before(first) {
			first = start
		}
		if start.After(last) {
			last = start
		}
		totals[periodKey(p.Date, q.Granularity)] += p.Value
	}

	var points []model.TrendPoint
	var prev *model.TrendPoint
	for start := first; !start.After(last); start = nextPeriod(start, q.Granularity) {
		key := periodKey(start, q.Granularity)
		point := model.TrendPoint{
			State:    q.State,
			District: q.District,
			AgeBand:  band,
			Period:   key,
			Total:    totals[key],
		}

		if prev != nil {
			change := point.Total - prev.Total
			point.AbsoluteChange = &change
			if prev.Total != 0 {
				growth := change / prev.Total * 100
				point.GrowthRatePct = &growth
			}
		}

		points = append(points, point)
		prev = &points[len(points)-1]
	}

	return points
}

// SuccessRate is the biometric completion rate for one date and district,
// age-banded. A rate is nil when the matching enrollment count is zero.
type SuccessRate struct {
	Date        time.Time `json:"date"`
	State       string    `json:"state"`
	District    string    `json:"district"`
	Rate5To17   *float64  `json:"success_rate_5_17"`
	Rate17Plus  *float64  `json:"success_rate_17_plus"`
	Enrollments float64   `json:"enrollments"`
}

// SuccessRates joins enrollment and biometric observations per date and
// location and computes attempt/enrollment percentages
func (a *Aggregator) SuccessRates(ctx context.Context, state, district string) ([]SuccessRate, error) {
	key := cache.Key("success_rates", state, district)
	var cached []SuccessRate
	if a.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	type ratio struct{ enrollment, attempts float64 }
	type joinKey struct {
		date     time.Time
		state    string
		district string
	}

	young := make(map[joinKey]*ratio)  // 5-17
	adult := make(map[joinKey]*ratio)  // 18+ enrollments vs 17+ attempts
	upsert := func(m map[joinKey]*ratio, k joinKey) *ratio {
		if r, ok := m[k]; ok {
			return r
		}
		r := &ratio{}
		m[k] = r
		return r
	}

	load := func(source model.SourceType, band string, into map[joinKey]*ratio, attempts bool) error {
		series, err := a.repo.QuerySeries(ctx, store.SeriesFilter{
			Source:   source,
			State:    state,
			District: district,
			AgeBand:  band,
		})
		if err != nil {
			return fmt.Errorf("failed to query %s/%s: %w", source, band, err)
		}
		for _, p := range series {
			r := upsert(into, joinKey{p.Date, p.State, p.District})
			if attempts {
				r.attempts += p.Value
			} else {
				r.enrollment += p.Value
			}
		}
		return nil
	}

	if err := load(model.SourceEnrollment, "age_5_17", young, false); err != nil {
		return nil, err
	}
	if err := load(model.SourceBiometric, "bio_age_5_17", young, true); err != nil {
		return nil, err
	}
	if err := load(model.SourceEnrollment, "age_18_greater", adult, false); err != nil {
		return nil, err
	}
	if err := load(model.SourceBiometric, "bio_age_17_plus", adult, true); err != nil {
		return nil, err
	}

	keys := make(map[joinKey]struct{}, len(young))
	for k := range young {
		keys[k] = struct{}{}
	}
	for k := range adult {
		keys[k] = struct{}{}
	}

	rates := make([]SuccessRate, 0, len(keys))
	for k := range keys {
		r := SuccessRate{Date: k.date, State: k.state, District: k.district}
		if y, ok := young[k]; ok {
			r.Enrollments += y.enrollment
			if y.enrollment > 0 {
				pct := y.attempts / y.enrollment * 100
				r.Rate5To17 = &pct
			}
		}
		if ad, ok := adult[k]; ok {
			r.Enrollments += ad.enrollment
			if ad.enrollment > 0 {
				pct := ad.attempts / ad.enrollment * 100
				r.Rate17Plus = &pct
			}
		}
		rates = append(rates, r)
	}

	sort.Slice(rates, func(i, j int) bool {
		if !rates[i].Date.Equal(rates[j].Date) {
			return rates[i].Date.Before(rates[j].Date)
		}
		if rates[i].State != rates[j].State {
			return rates[i].State < rates[j].State
		}
		return rates[i].District < rates[j].District
	})

	a.cache.Set(ctx, key, rates)
	return rates, nil
}

// SeasonalIndices returns, per calendar month, the ratio of that month's
// mean daily total to the overall mean. Values above 1 mark peak months.
func (a *Aggregator) SeasonalIndices(ctx context.Context, source model.SourceType, state string) (map[time.Month]float64, error) {
	series, err := a.repo.QuerySeries(ctx, store.SeriesFilter{Source: source, State: state})
	if err != nil {
		return nil, fmt.Errorf("failed to query %s series: %w", source, err)
	}
	if len(series) == 0 {
		return nil, nil
	}

	sums := make(map[time.Month]float64)
	counts := make(map[time.Month]int)
	var overall float64
	for _, p := range series {
		sums[p.Date.Month()] += p.Value
		counts[p.Date.Month()]++
		overall += p.Value
	}

	overallMean := overall / float64(len(series))
	if overallMean == 0 {
		return nil, nil
	}

	indices := make(map[time.Month]float64, len(sums))
	for month, sum := range sums {
		indices[month] = (sum / float64(counts[month])) / overallMean
	}
	return indices, nil
}

// MonthlySeries returns the state's per-month totals ordered ascending,
// with empty interior months zero-filled. This is the input shape the
// forecaster and anomaly detector consume.
func (a *Aggregator) MonthlySeries(ctx context.Context, source model.SourceType, state, district string) ([]model.TrendPoint, error) {
	points, err := a.Trends(ctx, TrendQuery{
		Source:      source,
		State:       state,
		District:    district,
		Granularity: GranularityMonth,
	})
	if err != nil {
		return nil, err
	}

	monthly := points[:0:0]
	for _, p := range points {
		if p.AgeBand == "total" {
			monthly = append(monthly, p)
		}
	}
	return monthly, nil
}
