// pkg/pipeline/analytics.go
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chauhanaman41/UIDAI-Analytics/pkg/anomaly"
	"github.com/chauhanaman41/UIDAI-Analytics/pkg/forecast"
	"github.com/chauhanaman41/UIDAI-Analytics/pkg/model"
	"github.com/chauhanaman41/UIDAI-Analytics/pkg/risk"
)

// runAnalytics runs anomaly detection, forecasting and risk scoring over
// whatever the sink holds after loading. Per-unit failures (one district,
// one state) become StageErrors; only query errors against the sink abort
// the stage.
func (p *Pipeline) runAnalytics(ctx context.Context, result *RunResult, logger *zap.Logger) error {
	locations, err := p.repo.DistinctLocations(ctx, model.SourceEnrollment)
	if err != nil {
		return fmt.Errorf("failed to list districts: %w", err)
	}
	states, err := p.repo.DistinctStates(ctx, model.SourceEnrollment)
	if err != nil {
		return fmt.Errorf("failed to list states: %w", err)
	}

	logger.Info("Starting analytics stage",
		zap.Int("districts", len(locations)),
		zap.Int("states", len(states)),
		zap.Int("workers", p.workers))

	alertsByDistrict, err := p.detectAnomalies(ctx, locations, result)
	if err != nil {
		return err
	}

	if err := p.forecastStates(ctx, states, result); err != nil {
		return err
	}

	return p.scoreDistricts(ctx, locations, alertsByDistrict, result)
}

// detectAnomalies runs the detector over every district's monthly
// enrollment series and persists the alerts in one write
func (p *Pipeline) detectAnomalies(ctx context.Context, locations []model.Location, result *RunResult) (map[model.Location][]model.AnomalyAlert, error) {
	var mu sync.Mutex
	byDistrict := make(map[model.Location][]model.AnomalyAlert, len(locations))
	var all []model.AnomalyAlert

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for _, loc := range locations {
		loc := loc
		g.Go(func() error {
			series, err := p.aggregator.MonthlySeries(gctx, model.SourceEnrollment, loc.State, loc.District)
			if err != nil {
				return fmt.Errorf("failed to build monthly series for %s/%s: %w", loc.State, loc.District, err)
			}

			alerts := p.detector.Detect(toObservations(series), "enrollment_total", loc.State, loc.District)

			mu.Lock()
			byDistrict[loc] = alerts
			all = append(all, alerts...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(all) > 0 {
		inserted, err := p.repo.InsertAlerts(ctx, all)
		if err != nil {
			return nil, fmt.Errorf("failed to persist anomaly alerts: %w", err)
		}
		result.AlertsInserted = inserted
	}

	return byDistrict, nil
}

// forecastStates forecasts each state's monthly enrollment totals. A state
// whose every model fails is recorded as a StageError, not a run failure.
func (p *Pipeline) forecastStates(ctx context.Context, states []string, result *RunResult) error {
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for _, state := range states {
		state := state
		g.Go(func() error {
			series, err := p.aggregator.MonthlySeries(gctx, model.SourceEnrollment, state, "")
			if err != nil {
				return fmt.Errorf("failed to build monthly series for %s: %w", state, err)
			}

			forecastResult, err := p.forecaster.ForecastState(gctx, state, forecast.FromTrendPoints(series))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.StageErrors = append(result.StageErrors, StageError{
					Stage: "forecast",
					Key:   state,
					Err:   err,
				})
				return nil
			}
			result.Forecasts = append(result.Forecasts, *forecastResult)
			return nil
		})
	}

	return g.Wait()
}

// scoreDistricts derives each district's feature vector from aggregate
// outputs and classifies it. Missing features produce null scores inside the
// classifier, so every district yields a RiskScore.
func (p *Pipeline) scoreDistricts(ctx context.Context, locations []model.Location, alertsByDistrict map[model.Location][]model.AnomalyAlert, result *RunResult) error {
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for _, loc := range locations {
		loc := loc
		g.Go(func() error {
			rates, err := p.aggregator.SuccessRates(gctx, loc.State, loc.District)
			if err != nil {
				return fmt.Errorf("failed to compute success rates for %s/%s: %w", loc.State, loc.District, err)
			}

			enrollTrend, err := p.aggregator.MonthlySeries(gctx, model.SourceEnrollment, loc.State, loc.District)
			if err != nil {
				return fmt.Errorf("failed to build enrollment trend for %s/%s: %w", loc.State, loc.District, err)
			}

			demoTrend, err := p.aggregator.MonthlySeries(gctx, model.SourceDemographic, loc.State, loc.District)
			if err != nil {
				return fmt.Errorf("failed to build demographic trend for %s/%s: %w", loc.State, loc.District, err)
			}

			features := risk.BuildFeatures(
				rates,
				enrollTrend,
				updateFrequencies(demoTrend, enrollTrend),
				alertsByDistrict[loc],
			)
			score := p.classifier.Score(loc.State, loc.District, features)

			mu.Lock()
			result.RiskScores = append(result.RiskScores, score)
			mu.Unlock()
			return nil
		})
	}

	return g.Wait()
}

// toObservations converts a monthly trend series into dated observations
func toObservations(series []model.TrendPoint) []anomaly.Observation {
	obs := make([]anomaly.Observation, 0, len(series))
	for _, p := range series {
		date, err := time.Parse("2006-01", p.Period)
		if err != nil {
			continue
		}
		obs = append(obs, anomaly.Observation{Date: date, Value: p.Total})
	}
	return obs
}

// updateFrequencies computes, per month present in both series, the ratio of
// demographic updates to enrollments. Months with zero enrollments are
// skipped; an empty result leaves the feature absent.
func updateFrequencies(demoTrend, enrollTrend []model.TrendPoint) []float64 {
	enrollByPeriod := make(map[string]float64, len(enrollTrend))
	for _, p := range enrollTrend {
		enrollByPeriod[p.Period] = p.Total
	}

	var freqs []float64
	for _, p := range demoTrend {
		enrollment, ok := enrollByPeriod[p.Period]
		if !ok || enrollment == 0 {
			continue
		}
		freqs = append(freqs, p.Total/enrollment)
	}
	return freqs
}
