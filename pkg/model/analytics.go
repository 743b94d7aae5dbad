// pkg/model/analytics.go
package model

import "time"

// TrendPoint is one grouped trend observation for a (group, period) pair.
// GrowthRatePct and AbsoluteChange are nil when the prior period has no
// rows; GrowthRatePct is additionally nil when the prior period total is
// zero. Undefined growth is never reported as 0%.
type TrendPoint struct {
	State          string
	District       string
	AgeBand        string // count column name, or "total"
	Period         string // e.g. 2024-03, 2024-Q1, 2024
	Total          float64
	AbsoluteChange *float64
	GrowthRatePct  *float64
}

// AnomalyType categorizes the direction of an anomaly
type AnomalyType string

const (
	AnomalySpike     AnomalyType = "spike"
	AnomalyDrop      AnomalyType = "drop"
	AnomalyIrregular AnomalyType = "irregular"
)

// AnomalyAlert is emitted when at least one detection method fires for a
// point in a metric's time series. DetectionMethods is non-empty by
// construction.
type AnomalyAlert struct {
	Date             time.Time
	State            string
	District         string
	MetricName       string
	AnomalyValue     float64
	SeverityScore    float64 // clamped to [0, 10]
	AnomalyType      AnomalyType
	DetectionMethods []string
}

// ForecastPoint is a single predicted period with its interval bounds
type ForecastPoint struct {
	Period    string  `json:"period"` // YYYY-MM
	Predicted float64 `json:"predicted"`
	Lower     float64 `json:"lower"`
	Upper     float64 `json:"upper"`
}

// ForecastResult is the forecast contract for one state. ModelUsed records
// the model that actually produced the output, including any fallback.
type ForecastResult struct {
	State          string          `json:"state"`
	Forecast       []ForecastPoint `json:"forecast"`
	ModelUsed      string          `json:"model_used"`
	FallbackReason string          `json:"fallback_reason,omitempty"`
	ErrorMetric    float64         `json:"error_metric"` // backtest MAPE percent, NaN when no holdout possible
}

// RiskScore is the classifier output for one district. Score is nil with
// Reason set when required features were missing or the snapshot version is
// unknown; a null score is never a run failure.
type RiskScore struct {
	State           string
	District        string
	SnapshotVersion string
	Score           *float64 // probability of high risk, in [0, 1]
	Category        string   // Low / Medium / High
	Reason          string   // reason code when Score is nil
	TopFactors      []string
}
