// pkg/risk/classifier.go
package risk

import (
	"errors"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/chauhanaman41/UIDAI-Analytics/pkg/model"
)

// Reason codes for null scores
const (
	ReasonMissingFeatures = "missing_features"
	ReasonUnknownSnapshot = "unknown_model_snapshot"
)

// Category thresholds on the risk probability
const (
	thresholdHigh   = 0.7
	thresholdMedium = 0.4
)

// Feature names. These match the aggregate quantities the features are
// derived from.
const (
	FeatureSuccessRate      = "success_rate"
	FeatureUpdateFrequency  = "update_freq"
	FeatureGrowthRate       = "growth_rate"
	FeatureRollSuccess3M    = "roll_success_3m"
	FeatureRollSuccess6M    = "roll_success_6m"
	FeatureRollSuccess12M   = "roll_success_12m"
	FeatureAnomalyFrequency = "anomaly_freq"
)

// Features is a per-district feature vector. Absent keys are missing
// features, which produce a null score rather than a guess.
type Features map[string]float64

// snapshot is one frozen model version: logistic coefficients over
// standardized features. Scoring a fixed vector with a fixed snapshot is
// fully deterministic.
type snapshot struct {
	intercept float64
	weights   map[string]float64
	means     map[string]float64
	stddevs   map[string]float64
}

// snapshots holds every embedded model version. Coefficients are frozen at
// training time; a new training run ships as a new version, never as a
// mutation of an existing one.
var snapshots = map[string]snapshot{
	"v1": {
		intercept: -0.35,
		weights: map[string]float64{
			FeatureSuccessRate:      -1.10,
			FeatureUpdateFrequency:  0.45,
			FeatureGrowthRate:       -0.30,
			FeatureRollSuccess3M:    -0.85,
			FeatureRollSuccess6M:    -0.60,
			FeatureRollSuccess12M:   -0.40,
			FeatureAnomalyFrequency: 0.75,
		},
		means: map[string]float64{
			FeatureSuccessRate:      62.0,
			FeatureUpdateFrequency:  0.35,
			FeatureGrowthRate:       1.5,
			FeatureRollSuccess3M:    62.0,
			FeatureRollSuccess6M:    61.5,
			FeatureRollSuccess12M:   61.0,
			FeatureAnomalyFrequency: 0.08,
		},
		stddevs: map[string]float64{
			FeatureSuccessRate:      18.0,
			FeatureUpdateFrequency:  0.25,
			FeatureGrowthRate:       12.0,
			FeatureRollSuccess3M:    16.0,
			FeatureRollSuccess6M:    15.0,
			FeatureRollSuccess12M:   14.0,
			FeatureAnomalyFrequency: 0.10,
		},
	},
}

// Classifier scores districts against a pinned model snapshot
type Classifier struct {
	version string
	logger  *zap.Logger
}

// NewClassifier creates a classifier pinned to one snapshot version. An
// unknown version is not a construction error; it surfaces per-score so a
// run can still report every district.
func NewClassifier(snapshotVersion string, logger *zap.Logger) (*Classifier, error) {
	if snapshotVersion == "" {
		return nil, errors.New("model snapshot version cannot be empty")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &Classifier{
		version: snapshotVersion,
		logger:  logger.Named("risk-classifier"),
	}, nil
}

// Score classifies one district. Missing required features or an unknown
// snapshot yield a null score with a reason code; neither is a run failure.
func (c *Classifier) Score(state, district string, features Features) model.RiskScore {
	result := model.RiskScore{
		State:           state,
		District:        district,
		SnapshotVersion: c.version,
	}

	snap, ok := snapshots[c.version]
	if !ok {
		result.Reason = ReasonUnknownSnapshot
		c.logger.Warn("Unknown model snapshot requested",
			zap.String("version", c.version),
			zap.String("district", district))
		return result
	}

	// Accumulate in sorted feature order: float addition is order
	// sensitive, and map iteration order would make repeated scores of the
	// same vector only probably identical
	names := make([]string, 0, len(snap.weights))
	for name := range snap.weights {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, ok := features[name]; !ok {
			result.Reason = ReasonMissingFeatures + ":" + name
			return result
		}
	}

	type contribution struct {
		name  string
		value float64 // weight x standardized feature
	}

	z := snap.intercept
	contributions := make([]contribution, 0, len(names))
	for _, name := range names {
		standardized := (features[name] - snap.means[name]) / snap.stddevs[name]
		term := snap.weights[name] * standardized
		z += term
		contributions = append(contributions, contribution{name: name, value: term})
	}

	score := 1.0 / (1.0 + math.Exp(-z))
	result.Score = &score
	result.Category = categorize(score)

	sort.Slice(contributions, func(i, j int) bool {
		if math.Abs(contributions[i].value) != math.Abs(contributions[j].value) {
			return math.Abs(contributions[i].value) > math.Abs(contributions[j].value)
		}
		return contributions[i].name < contributions[j].name // deterministic ties
	})
	for i := 0; i < 3 && i < len(contributions); i++ {
		result.TopFactors = append(result.TopFactors, contributions[i].name)
	}

	return result
}

// categorize maps a probability to the reporting category
func categorize(score float64) string {
	switch {
	case score > thresholdHigh:
		return "High"
	case score > thresholdMedium:
		return "Medium"
	default:
		return "Low"
	}
}

// KnownSnapshots lists the embedded model versions
func KnownSnapshots() []string {
	versions := make([]string, 0, len(snapshots))
	for v := range snapshots {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions
}
