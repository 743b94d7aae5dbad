package anomaly

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chauhanaman41/UIDAI-Analytics/pkg/config"
	"github.com/chauhanaman41/UIDAI-Analytics/pkg/model"
)

func testConfig() config.AnomalyConfig {
	return config.AnomalyConfig{
		Window:              12,
		MinPoints:           4,
		ZScoreThreshold:     3.0,
		RollingDeviationPct: 20.0,
	}
}

func newTestDetector(t *testing.T) *Detector {
	t.Helper()
	d, err := NewDetector(testConfig(), zap.NewNop())
	require.NoError(t, err)
	return d
}

func makeSeries(values []float64) []Observation {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	series := make([]Observation, len(values))
	for i, v := range values {
		series[i] = Observation{Date: base.AddDate(0, i, 0), Value: v}
	}
	return series
}

func TestDetectFiveTimesSpikeFiresAllMethods(t *testing.T) {
	d := newTestDetector(t)

	// Stable baseline with slight noise, then a 5x spike
	values := []float64{100, 102, 98, 101, 99, 100, 103, 97, 100, 101, 99, 100, 500}
	alerts := d.Detect(makeSeries(values), "enrollment_total", "Kerala", "Kochi")

	require.Len(t, alerts, 1)
	alert := alerts[0]

	assert.Equal(t, model.AnomalySpike, alert.AnomalyType)
	assert.Equal(t, float64(500), alert.AnomalyValue)
	assert.ElementsMatch(t, []string{MethodZScore, MethodIQR, MethodRollingAvg}, alert.DetectionMethods)
	assert.Equal(t, maxSeverity, alert.SeverityScore)
	assert.Equal(t, "Kerala", alert.State)
	assert.Equal(t, "enrollment_total", alert.MetricName)
}

func TestDetectDrop(t *testing.T) {
	d := newTestDetector(t)

	values := []float64{100, 102, 98, 101, 99, 100, 103, 97, 100, 101, 99, 100, 5}
	alerts := d.Detect(makeSeries(values), "enrollment_total", "Kerala", "Kochi")

	require.Len(t, alerts, 1)
	assert.Equal(t, model.AnomalyDrop, alerts[0].AnomalyType)
}

func TestDetectShortSeriesIsSilent(t *testing.T) {
	d := newTestDetector(t)

	alerts := d.Detect(makeSeries([]float64{100, 100000}), "enrollment_total", "Goa", "")
	assert.Empty(t, alerts)
}

func TestDetectConstantSeriesIsSilent(t *testing.T) {
	d := newTestDetector(t)

	values := make([]float64, 24)
	for i := range values {
		values[i] = 250
	}
	alerts := d.Detect(makeSeries(values), "enrollment_total", "Goa", "")
	assert.Empty(t, alerts)
}

func TestDetectSingleMethodIsEnough(t *testing.T) {
	d := newTestDetector(t)

	// Against this noisy baseline a 30% deviation exceeds the rolling
	// threshold but stays inside three standard deviations and the IQR fence
	values := []float64{100, 130, 70, 120, 80, 110, 90, 125, 75, 105, 95, 100, 130}
	alerts := d.Detect(makeSeries(values), "enrollment_total", "Assam", "Kamrup")

	require.NotEmpty(t, alerts)
	last := alerts[len(alerts)-1]
	assert.Equal(t, float64(130), last.AnomalyValue)
	assert.Equal(t, []string{MethodRollingAvg}, last.DetectionMethods)
}

func TestDetectIrregularOscillation(t *testing.T) {
	d := newTestDetector(t)

	// Spike immediately followed by a drop: both points alert with opposite
	// directions, so both are reclassified as irregular
	values := []float64{100, 101, 99, 100, 102, 98, 100, 101, 99, 100, 100, 100, 400, 4}
	alerts := d.Detect(makeSeries(values), "enrollment_total", "Bihar", "Patna")

	require.Len(t, alerts, 2)
	assert.Equal(t, model.AnomalyIrregular, alerts[0].AnomalyType)
	assert.Equal(t, model.AnomalyIrregular, alerts[1].AnomalyType)
}

func TestSeverityClamped(t *testing.T) {
	d := newTestDetector(t)

	values := []float64{100, 101, 99, 100, 102, 98, 100, 101, 99, 100, 100, 1e9}
	alerts := d.Detect(makeSeries(values), "enrollment_total", "Delhi", "")

	require.NotEmpty(t, alerts)
	for _, a := range alerts {
		assert.LessOrEqual(t, a.SeverityScore, maxSeverity)
		assert.GreaterOrEqual(t, a.SeverityScore, 0.0)
	}
}

func TestNewDetectorValidation(t *testing.T) {
	cfg := testConfig()

	_, err := NewDetector(cfg, nil)
	assert.Error(t, err)

	bad := cfg
	bad.Window = 1
	_, err = NewDetector(bad, zap.NewNop())
	assert.Error(t, err)

	bad = cfg
	bad.ZScoreThreshold = 0
	_, err = NewDetector(bad, zap.NewNop())
	assert.Error(t, err)
}
