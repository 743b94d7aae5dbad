// pkg/forecast/models.go
package forecast

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Model variant tags. ModelUsed in a result always carries one of these.
const (
	ModelSeasonalTrend   = "holt_winters_additive"
	ModelAutoregressive  = "ar_least_squares"
	ModelSeasonalAverage = "seasonal_average"
)

// Smoothing defaults for the seasonal-trend model
const (
	hwAlpha = 0.3
	hwBeta  = 0.1
	hwGamma = 0.1
)

// fit is the common model output: point forecasts for the horizon and
// in-sample fitted values for residual statistics
type fit struct {
	forecast []float64
	fitted   []float64
}

// modelFunc fits one model variant on a training series
type modelFunc func(train []float64, horizon int) (*fit, error)

// fitHoltWintersAdd fits additive Holt-Winters with season length p. It
// needs at least two full seasonal cycles to initialize level, trend, and
// seasonal components.
func fitHoltWintersAdd(train []float64, horizon, p int) (*fit, error) {
	if p < 2 {
		return nil, fmt.Errorf("season length %d too short", p)
	}
	if len(train) < 2*p {
		return nil, fmt.Errorf("need %d points for two seasonal cycles, have %d", 2*p, len(train))
	}

	firstMean := stat.Mean(train[:p], nil)
	trend := (stat.Mean(train[p:2*p], nil) - firstMean) / float64(p)

	// Seasonal components are deviations from the trend line through the
	// first two cycles, averaged across both, so no trend leaks into the
	// seasonal component
	mid := float64(p-1) / 2
	lineAt := func(i int) float64 { return firstMean + (float64(i)-mid)*trend }
	season := make([]float64, p)
	for i := 0; i < p; i++ {
		season[i] = ((train[i] - lineAt(i)) + (train[i+p] - lineAt(i+p))) / 2
	}

	// Anchor the level just before the series so the first one-step
	// prediction sits on the trend line at index 0
	level := lineAt(-1)

	fitted := make([]float64, len(train))
	for i := 0; i < len(train); i++ {
		si := i % p
		fitted[i] = level + trend + season[si]

		prevLevel := level
		prevSeason := season[si]
		level = hwAlpha*(train[i]-prevSeason) + (1-hwAlpha)*(level+trend)
		trend = hwBeta*(level-prevLevel) + (1-hwBeta)*trend
		season[si] = hwGamma*(train[i]-level) + (1-hwGamma)*prevSeason
	}

	forecast := make([]float64, horizon)
	for i := 1; i <= horizon; i++ {
		si := (len(train) + i - 1) % p
		forecast[i-1] = level + float64(i)*trend + season[si]
	}

	if !allFinite(forecast) || !allFinite(fitted) {
		return nil, errors.New("holt-winters produced non-finite values")
	}
	return &fit{forecast: forecast, fitted: fitted}, nil
}

// fitAR fits an AR(p) model by least squares and forecasts iteratively.
// Lagged design matrix solved via QR; a rank-deficient design is a
// convergence failure.
func fitAR(train []float64, horizon, p int) (*fit, error) {
	if p < 1 {
		return nil, fmt.Errorf("ar order %d too small", p)
	}
	rows := len(train) - p
	if rows < p+2 {
		return nil, fmt.Errorf("need %d points for ar(%d), have %d", 2*p+2, p, len(train))
	}

	// Design: y[t] ~ intercept + y[t-1] .. y[t-p]
	x := mat.NewDense(rows, p+1, nil)
	y := mat.NewVecDense(rows, nil)
	for t := 0; t < rows; t++ {
		x.Set(t, 0, 1)
		for lag := 1; lag <= p; lag++ {
			x.Set(t, lag, train[p+t-lag])
		}
		y.SetVec(t, train[p+t])
	}

	var qr mat.QR
	qr.Factorize(x)
	coef := mat.NewVecDense(p+1, nil)
	if err := qr.SolveVecTo(coef, false, y); err != nil {
		return nil, fmt.Errorf("ar least squares did not converge: %w", err)
	}

	predict := func(history []float64) float64 {
		v := coef.AtVec(0)
		for lag := 1; lag <= p; lag++ {
			v += coef.AtVec(lag) * history[len(history)-lag]
		}
		return v
	}

	fitted := make([]float64, len(train))
	copy(fitted, train[:p]) // no one-step prediction for the first p points
	for t := p; t < len(train); t++ {
		fitted[t] = predict(train[:t])
	}

	history := append([]float64{}, train...)
	forecast := make([]float64, horizon)
	for i := 0; i < horizon; i++ {
		next := predict(history)
		forecast[i] = next
		history = append(history, next)
	}

	if !allFinite(forecast) || !allFinite(fitted) {
		return nil, errors.New("ar forecast produced non-finite values")
	}
	return &fit{forecast: forecast, fitted: fitted}, nil
}

// fitSeasonalAverage predicts each future period as the mean of the same
// seasonal position across the training data. With less than one full cycle
// of history it degrades to the overall mean.
func fitSeasonalAverage(train []float64, horizon, p int) (*fit, error) {
	if len(train) == 0 {
		return nil, errors.New("empty series")
	}

	overall := stat.Mean(train, nil)

	sums := make([]float64, p)
	counts := make([]int, p)
	for i, v := range train {
		sums[i%p] += v
		counts[i%p]++
	}

	positionMean := func(pos int) float64 {
		if counts[pos] == 0 {
			return overall
		}
		return sums[pos] / float64(counts[pos])
	}

	fitted := make([]float64, len(train))
	for i := range train {
		fitted[i] = positionMean(i % p)
	}

	forecast := make([]float64, horizon)
	for i := 0; i < horizon; i++ {
		forecast[i] = positionMean((len(train) + i) % p)
	}

	return &fit{forecast: forecast, fitted: fitted}, nil
}

// mape is the mean absolute percentage error, skipping near-zero actuals.
// NaN when no actual is usable.
func mape(actual, predicted []float64) float64 {
	n := len(actual)
	if len(predicted) < n {
		n = len(predicted)
	}

	var sum float64
	count := 0
	for i := 0; i < n; i++ {
		if math.Abs(actual[i]) < 1e-9 {
			continue
		}
		sum += math.Abs((actual[i] - predicted[i]) / actual[i])
		count++
	}
	if count == 0 {
		return math.NaN()
	}
	return sum / float64(count) * 100
}

// residualStdDev is the standard deviation of in-sample residuals
func residualStdDev(train, fitted []float64) float64 {
	n := len(train)
	if len(fitted) < n {
		n = len(fitted)
	}
	if n < 2 {
		return 0
	}

	residuals := make([]float64, n)
	for i := 0; i < n; i++ {
		residuals[i] = train[i] - fitted[i]
	}
	return stat.StdDev(residuals, nil)
}

func allFinite(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
