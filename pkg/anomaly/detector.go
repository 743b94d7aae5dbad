// pkg/anomaly/detector.go
package anomaly

import (
	"errors"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/chauhanaman41/UIDAI-Analytics/pkg/config"
	"github.com/chauhanaman41/UIDAI-Analytics/pkg/model"
)

// Detection method names as persisted in alert rows
const (
	MethodZScore     = "z_score"
	MethodIQR        = "iqr"
	MethodRollingAvg = "rolling_deviation"
)

// maxSeverity caps the severity scale
const maxSeverity = 10.0

// Observation is one point of a metric series, ordered by date
type Observation struct {
	Date  time.Time
	Value float64
}

// Detector runs the three-method ensemble over metric series. A point is
// anomalous when at least one method fires; each method also contributes a
// normalized deviation used for severity.
type Detector struct {
	cfg    config.AnomalyConfig
	logger *zap.Logger
}

// NewDetector creates a new Detector instance
func NewDetector(cfg config.AnomalyConfig, logger *zap.Logger) (*Detector, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Window < 2 {
		return nil, errors.New("anomaly window must be at least 2")
	}
	if cfg.MinPoints < 2 {
		return nil, errors.New("anomaly minimum points must be at least 2")
	}
	if cfg.ZScoreThreshold <= 0 {
		return nil, errors.New("z-score threshold must be positive")
	}
	if cfg.RollingDeviationPct <= 0 {
		return nil, errors.New("rolling deviation threshold must be positive")
	}

	return &Detector{cfg: cfg, logger: logger.Named("anomaly-detector")}, nil
}

// finding is one method's verdict on a point
type finding struct {
	method string
	score  float64 // normalized deviation, severity input
}

// Detect evaluates every point of a series against its trailing window and
// returns the alerts. Series shorter than the minimum point count produce
// no alerts and no error.
func (d *Detector) Detect(series []Observation, metricName, state, district string) []model.AnomalyAlert {
	if len(series) < d.cfg.MinPoints {
		return nil
	}

	type candidate struct {
		index int
		alert model.AnomalyAlert
		spike bool
	}
	var candidates []candidate

	values := make([]float64, len(series))
	for i, obs := range series {
		values[i] = obs.Value
	}

	for i := range series {
		window := trailingWindow(values, i, d.cfg.Window)
		if len(window) < d.cfg.MinPoints {
			continue
		}

		findings := d.evaluate(series[i].Value, window)
		if len(findings) == 0 {
			continue
		}

		rollingMean := stat.Mean(window, nil)
		spike := series[i].Value > rollingMean

		alert := model.AnomalyAlert{
			Date:          series[i].Date,
			State:         state,
			District:      district,
			MetricName:    metricName,
			AnomalyValue:  series[i].Value,
			SeverityScore: severity(findings),
			AnomalyType:   model.AnomalyDrop,
		}
		if spike {
			alert.AnomalyType = model.AnomalySpike
		}
		for _, f := range findings {
			alert.DetectionMethods = append(alert.DetectionMethods, f.method)
		}

		candidates = append(candidates, candidate{index: i, alert: alert, spike: spike})
	}

	// Adjacent alerts in opposite directions indicate irregular oscillation
	// rather than a one-sided shift
	for i := range candidates {
		for j := range candidates {
			if i == j {
				continue
			}
			adjacent := candidates[j].index == candidates[i].index-1 ||
				candidates[j].index == candidates[i].index+1
			if adjacent && candidates[j].spike != candidates[i].spike {
				candidates[i].alert.AnomalyType = model.AnomalyIrregular
				break
			}
		}
	}

	alerts := make([]model.AnomalyAlert, 0, len(candidates))
	for _, c := range candidates {
		alerts = append(alerts, c.alert)
	}

	if len(alerts) > 0 {
		d.logger.Debug("Detected anomalies",
			zap.String("metric", metricName),
			zap.String("state", state),
			zap.String("district", district),
			zap.Int("seriesLength", len(series)),
			zap.Int("alerts", len(alerts)))
	}

	return alerts
}

// evaluate runs all three methods for one value against its window
func (d *Detector) evaluate(value float64, window []float64) []finding {
	var findings []finding

	if f, ok := d.zScore(value, window); ok {
		findings = append(findings, f)
	}
	if f, ok := d.iqrFence(value, window); ok {
		findings = append(findings, f)
	}
	if f, ok := d.rollingDeviation(value, window); ok {
		findings = append(findings, f)
	}

	return findings
}

// zScore fires when the value is more than the threshold standard
// deviations from the window mean. A zero-variance window is skipped; a
// constant series never alarms by this method.
func (d *Detector) zScore(value float64, window []float64) (finding, bool) {
	mean, std := stat.MeanStdDev(window, nil)
	if std == 0 || math.IsNaN(std) {
		return finding{}, false
	}

	z := math.Abs(value-mean) / std
	if z <= d.cfg.ZScoreThreshold {
		return finding{}, false
	}
	return finding{method: MethodZScore, score: z}, true
}

// iqrFence fires when the value falls outside Q1-1.5*IQR or Q3+1.5*IQR of
// the window
func (d *Detector) iqrFence(value float64, window []float64) (finding, bool) {
	sorted := append([]float64{}, window...)
	sort.Float64s(sorted)

	q1 := stat.Quantile(0.25, stat.Empirical, sorted, nil)
	q3 := stat.Quantile(0.75, stat.Empirical, sorted, nil)
	iqr := q3 - q1
	if iqr == 0 {
		return finding{}, false
	}

	lower := q1 - 1.5*iqr
	upper := q3 + 1.5*iqr
	if value >= lower && value <= upper {
		return finding{}, false
	}

	median := stat.Quantile(0.5, stat.Empirical, sorted, nil)
	return finding{method: MethodIQR, score: math.Abs(value-median) / iqr}, true
}

// rollingDeviation fires when the value deviates from the window mean by
// more than the configured percentage
func (d *Detector) rollingDeviation(value float64, window []float64) (finding, bool) {
	mean := stat.Mean(window, nil)
	if mean == 0 {
		return finding{}, false
	}

	deviationPct := math.Abs(value-mean) / math.Abs(mean) * 100
	if deviationPct <= d.cfg.RollingDeviationPct {
		return finding{}, false
	}

	// 100% deviation from the rolling mean maps to the severity ceiling
	return finding{method: MethodRollingAvg, score: deviationPct / 10}, true
}

// severity is the maximum normalized deviation across firing methods,
// clamped to [0, 10]
func severity(findings []finding) float64 {
	var max float64
	for _, f := range findings {
		if f.score > max {
			max = f.score
		}
	}
	if max > maxSeverity {
		return maxSeverity
	}
	if max < 0 {
		return 0
	}
	return max
}

// trailingWindow returns up to size values preceding index i
func trailingWindow(values []float64, i, size int) []float64 {
	start := i - size
	if start < 0 {
		start = 0
	}
	return values[start:i]
}
