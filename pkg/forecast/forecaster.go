// pkg/forecast/forecaster.go
package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chauhanaman41/UIDAI-Analytics/pkg/config"
	"github.com/chauhanaman41/UIDAI-Analytics/pkg/model"
)

// intervalZ is the normal quantile for 95% prediction intervals
const intervalZ = 1.96

// Point is one monthly observation of the series being forecast
type Point struct {
	Period string // YYYY-MM
	Value  float64
}

// FromTrendPoints converts an aggregator monthly series into forecast input
func FromTrendPoints(points []model.TrendPoint) []Point {
	out := make([]Point, 0, len(points))
	for _, p := range points {
		out = append(out, Point{Period: p.Period, Value: p.Total})
	}
	return out
}

// Forecaster produces per-state forecasts with an automatic fallback chain:
// seasonal-trend decomposition, then autoregression, then the naive seasonal
// average. A model that fails to converge, has too little data, or exceeds
// the fit timeout falls through to the next; all three failing is an error
// for that state only.
type Forecaster struct {
	cfg    config.ForecastConfig
	logger *zap.Logger
}

// NewForecaster creates a new Forecaster instance
func NewForecaster(cfg config.ForecastConfig, logger *zap.Logger) (*Forecaster, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Horizon <= 0 {
		return nil, errors.New("forecast horizon must be positive")
	}
	if cfg.SeasonLength < 2 {
		return nil, errors.New("season length must be at least 2")
	}
	if cfg.ARORder < 1 {
		return nil, errors.New("ar order must be at least 1")
	}
	if cfg.HoldoutPeriods <= 0 {
		return nil, errors.New("holdout must be positive")
	}

	return &Forecaster{cfg: cfg, logger: logger.Named("forecaster")}, nil
}

// variant couples a model tag to its fitting function
type variant struct {
	name string
	fn   modelFunc
}

func (f *Forecaster) variants() []variant {
	return []variant{
		{ModelSeasonalTrend, func(train []float64, h int) (*fit, error) {
			return fitHoltWintersAdd(train, h, f.cfg.SeasonLength)
		}},
		{ModelAutoregressive, func(train []float64, h int) (*fit, error) {
			return fitAR(train, h, f.cfg.ARORder)
		}},
		{ModelSeasonalAverage, func(train []float64, h int) (*fit, error) {
			return fitSeasonalAverage(train, h, f.cfg.SeasonLength)
		}},
	}
}

// ForecastState forecasts the next horizon periods of a state's monthly
// series
func (f *Forecaster) ForecastState(ctx context.Context, state string, series []Point) (*model.ForecastResult, error) {
	if len(series) == 0 {
		return nil, fmt.Errorf("no data for state %s", state)
	}

	values := make([]float64, len(series))
	for i, p := range series {
		values[i] = p.Value
	}

	var fallbackReasons []string
	for _, v := range f.variants() {
		fitted, err := f.fitWithTimeout(ctx, v.fn, values, f.cfg.Horizon)
		if err != nil {
			fallbackReasons = append(fallbackReasons, fmt.Sprintf("%s: %v", v.name, err))
			f.logger.Debug("Model fell through",
				zap.String("state", state),
				zap.String("model", v.name),
				zap.Error(err))
			continue
		}

		result := f.buildResult(state, series, values, fitted, v.name)
		result.FallbackReason = strings.Join(fallbackReasons, "; ")
		result.ErrorMetric = f.backtest(ctx, v.fn, values)

		f.logger.Info("Forecast produced",
			zap.String("state", state),
			zap.String("model", v.name),
			zap.Int("seriesLength", len(series)),
			zap.Float64("mape", result.ErrorMetric))

		return result, nil
	}

	return nil, fmt.Errorf("all models failed for state %s: %s", state, strings.Join(fallbackReasons, "; "))
}

// fitWithTimeout bounds one model fit. A timeout counts as a convergence
// failure so the chain falls through instead of stalling the run.
func (f *Forecaster) fitWithTimeout(ctx context.Context, fn modelFunc, train []float64, horizon int) (*fit, error) {
	timeout := f.cfg.FitTimeout
	if timeout <= 0 {
		return fn(train, horizon)
	}

	type outcome struct {
		fit *fit
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		ft, err := fn(train, horizon)
		done <- outcome{ft, err}
	}()

	select {
	case o := <-done:
		return o.fit, o.err
	case <-time.After(timeout):
		return nil, fmt.Errorf("fit exceeded %v timeout", timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// buildResult attaches periods and prediction intervals to a successful fit.
// Interval width grows with the square root of the horizon step, since
// multi-step prediction error accumulates beyond the one-step residual.
func (f *Forecaster) buildResult(state string, series []Point, values []float64, ft *fit, modelName string) *model.ForecastResult {
	sigma := residualStdDev(values, ft.fitted)

	points := make([]model.ForecastPoint, len(ft.forecast))
	period := series[len(series)-1].Period
	for i, predicted := range ft.forecast {
		period = nextMonth(period)
		spread := intervalZ * sigma * math.Sqrt(float64(i+1))
		points[i] = model.ForecastPoint{
			Period:    period,
			Predicted: predicted,
			Lower:     predicted - spread,
			Upper:     predicted + spread,
		}
	}

	return &model.ForecastResult{
		State:     state,
		Forecast:  points,
		ModelUsed: modelName,
	}
}

// backtest refits the producing model on the series minus the final holdout
// and scores its predictions against the held-out actuals. NaN when the
// series is too short to hold anything out.
func (f *Forecaster) backtest(ctx context.Context, fn modelFunc, values []float64) float64 {
	k := f.cfg.HoldoutPeriods
	if len(values) <= k {
		return math.NaN()
	}

	train, holdout := values[:len(values)-k], values[len(values)-k:]
	ft, err := f.fitWithTimeout(ctx, fn, train, k)
	if err != nil {
		return math.NaN()
	}
	return mape(holdout, ft.forecast)
}

// nextMonth advances a YYYY-MM period label by one month
func nextMonth(period string) string {
	t, err := time.Parse("2006-01", period)
	if err != nil {
		return period
	}
	return t.AddDate(0, 1, 0).Format("2006-01")
}
