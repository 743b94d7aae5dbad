package forecast

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chauhanaman41/UIDAI-Analytics/pkg/config"
)

func testForecastConfig() config.ForecastConfig {
	return config.ForecastConfig{
		Horizon:        6,
		SeasonLength:   12,
		ARORder:        3,
		HoldoutPeriods: 3,
		FitTimeout:     5 * time.Second,
	}
}

func newTestForecaster(t *testing.T) *Forecaster {
	t.Helper()
	f, err := NewForecaster(testForecastConfig(), zap.NewNop())
	require.NoError(t, err)
	return f
}

// seasonalSeries builds a monthly series with a linear trend plus a yearly
// seasonal swing
func seasonalSeries(months int) []Point {
	points := make([]Point, months)
	start := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < months; i++ {
		month := start.AddDate(0, i, 0)
		value := 1000 + 10*float64(i) + 200*math.Sin(2*math.Pi*float64(i)/12)
		points[i] = Point{Period: month.Format("2006-01"), Value: value}
	}
	return points
}

func TestForecastSeasonalSeriesUsesHoltWinters(t *testing.T) {
	f := newTestForecaster(t)

	result, err := f.ForecastState(context.Background(), "Kerala", seasonalSeries(36))
	require.NoError(t, err)

	assert.Equal(t, ModelSeasonalTrend, result.ModelUsed)
	assert.Empty(t, result.FallbackReason)
	require.Len(t, result.Forecast, 6)

	// Horizon periods continue the input series
	assert.Equal(t, "2024-01", result.Forecast[0].Period)
	assert.Equal(t, "2024-06", result.Forecast[5].Period)

	for _, p := range result.Forecast {
		assert.False(t, math.IsNaN(p.Predicted))
		assert.LessOrEqual(t, p.Lower, p.Predicted)
		assert.GreaterOrEqual(t, p.Upper, p.Predicted)
	}

	// The series is smooth, so the backtest error should be small
	assert.False(t, math.IsNaN(result.ErrorMetric))
	assert.Less(t, result.ErrorMetric, 15.0)
}

func TestForecastIntervalsCoverHeldOutTruth(t *testing.T) {
	f := newTestForecaster(t)

	// Trending yearly-seasonal series with deterministic noise; fit on the
	// first 36 months and hold out the rest as truth
	values := make([]float64, 42)
	start := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	series := make([]Point, 36)
	for i := range values {
		fi := float64(i)
		values[i] = 1000 + 10*fi + 200*math.Sin(2*math.Pi*fi/12) +
			4*math.Sin(2.3*fi) + 3*math.Cos(1.7*fi)
		if i < 36 {
			series[i] = Point{Period: start.AddDate(0, i, 0).Format("2006-01"), Value: values[i]}
		}
	}

	result, err := f.ForecastState(context.Background(), "Kerala", series)
	require.NoError(t, err)
	require.Equal(t, ModelSeasonalTrend, result.ModelUsed)
	require.Len(t, result.Forecast, 6)

	for h := 0; h < 3; h++ {
		p := result.Forecast[h]
		truth := values[36+h]
		assert.LessOrEqual(t, p.Lower, truth, "horizon %d: truth below interval", h+1)
		assert.GreaterOrEqual(t, p.Upper, truth, "horizon %d: truth above interval", h+1)
	}

	// Uncertainty grows with the horizon
	first := result.Forecast[0].Upper - result.Forecast[0].Lower
	last := result.Forecast[5].Upper - result.Forecast[5].Lower
	assert.Greater(t, last, first)
}

func TestForecastShortSeriesFallsBackToAR(t *testing.T) {
	f := newTestForecaster(t)

	// 12 months is under the two seasonal cycles Holt-Winters needs
	result, err := f.ForecastState(context.Background(), "Goa", seasonalSeries(12))
	require.NoError(t, err)

	assert.Equal(t, ModelAutoregressive, result.ModelUsed)
	assert.Contains(t, result.FallbackReason, ModelSeasonalTrend)
	require.Len(t, result.Forecast, 6)
}

func TestForecastDegenerateSeriesFallsBackToSeasonalAverage(t *testing.T) {
	f := newTestForecaster(t)

	result, err := f.ForecastState(context.Background(), "Sikkim", []Point{
		{Period: "2024-01", Value: 50},
		{Period: "2024-02", Value: 60},
	})
	require.NoError(t, err)

	assert.Equal(t, ModelSeasonalAverage, result.ModelUsed)
	assert.Contains(t, result.FallbackReason, ModelSeasonalTrend)
	assert.Contains(t, result.FallbackReason, ModelAutoregressive)
	require.Len(t, result.Forecast, 6)

	// With no prior year the naive model predicts the overall mean
	assert.InDelta(t, 55.0, result.Forecast[0].Predicted, 1e-9)

	// Too short for a holdout backtest
	assert.True(t, math.IsNaN(result.ErrorMetric))
}

func TestForecastEmptySeriesIsError(t *testing.T) {
	f := newTestForecaster(t)

	_, err := f.ForecastState(context.Background(), "Ladakh", nil)
	require.Error(t, err)
}

func TestFitTimeoutFallsThrough(t *testing.T) {
	f := newTestForecaster(t)
	f.cfg.FitTimeout = 10 * time.Millisecond

	slow := func(train []float64, h int) (*fit, error) {
		time.Sleep(time.Second)
		return &fit{forecast: make([]float64, h), fitted: train}, nil
	}

	_, err := f.fitWithTimeout(context.Background(), slow, []float64{1, 2, 3}, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestSeasonalAveragePicksSameCalendarMonth(t *testing.T) {
	// Two full years: month m is always 100*(m+1)
	train := make([]float64, 24)
	for i := range train {
		train[i] = float64((i%12 + 1) * 100)
	}

	ft, err := fitSeasonalAverage(train, 6, 12)
	require.NoError(t, err)

	// Forecast continues at month position 0 (January)
	assert.Equal(t, 100.0, ft.forecast[0])
	assert.Equal(t, 200.0, ft.forecast[1])
	assert.Equal(t, 600.0, ft.forecast[5])
}

func TestMAPESkipsNearZeroActuals(t *testing.T) {
	got := mape([]float64{0, 100}, []float64{50, 110})
	assert.InDelta(t, 10.0, got, 1e-9)

	assert.True(t, math.IsNaN(mape([]float64{0, 0}, []float64{1, 2})))
}

func TestARRecoversLinearTrend(t *testing.T) {
	// Linear trend with a little noise so the lagged design keeps full rank
	train := make([]float64, 20)
	for i := range train {
		train[i] = float64(10+5*i) + 0.5*math.Sin(float64(i))
	}

	ft, err := fitAR(train, 3, 3)
	require.NoError(t, err)

	assert.InDelta(t, 110.0, ft.forecast[0], 3.0)
	assert.InDelta(t, 120.0, ft.forecast[2], 5.0)
}

func TestHoltWintersNeedsTwoCycles(t *testing.T) {
	_, err := fitHoltWintersAdd(make([]float64, 23), 6, 12)
	require.Error(t, err)
}

func ExampleForecaster_ForecastState() {
	f, _ := NewForecaster(config.ForecastConfig{
		Horizon: 2, SeasonLength: 12, ARORder: 3, HoldoutPeriods: 3,
	}, zap.NewNop())

	result, _ := f.ForecastState(context.Background(), "Kerala", []Point{
		{Period: "2024-01", Value: 100},
		{Period: "2024-02", Value: 100},
	})
	fmt.Println(result.ModelUsed, len(result.Forecast))
	// Output: seasonal_average 2
}
