// pkg/risk/features.go
package risk

import (
	"github.com/chauhanaman41/UIDAI-Analytics/pkg/aggregate"
	"github.com/chauhanaman41/UIDAI-Analytics/pkg/model"
)

// BuildFeatures derives a district's feature vector from aggregate outputs:
// dated success rates, the district's monthly enrollment trend, per-date
// demographic update frequency, and the district's anomaly alerts. Inputs
// too thin to support a feature leave it absent, which the classifier
// reports as a null score.
func BuildFeatures(
	successRates []aggregate.SuccessRate,
	monthlyTrend []model.TrendPoint,
	updateFrequencies []float64,
	alerts []model.AnomalyAlert,
) Features {
	features := Features{}

	rates := latestRates(successRates)
	if len(rates) > 0 {
		features[FeatureSuccessRate] = rates[len(rates)-1]
		if mean, ok := trailingMean(rates, 3); ok {
			features[FeatureRollSuccess3M] = mean
		}
		if mean, ok := trailingMean(rates, 6); ok {
			features[FeatureRollSuccess6M] = mean
		}
		if mean, ok := trailingMean(rates, 12); ok {
			features[FeatureRollSuccess12M] = mean
		}
	}

	if len(updateFrequencies) > 0 {
		features[FeatureUpdateFrequency] = updateFrequencies[len(updateFrequencies)-1]
	}

	if growth := latestGrowth(monthlyTrend); growth != nil {
		features[FeatureGrowthRate] = *growth
	}

	if len(monthlyTrend) > 0 {
		features[FeatureAnomalyFrequency] = float64(len(alerts)) / float64(len(monthlyTrend))
	}

	return features
}

// latestRates flattens dated success rates into a chronological series of
// combined rates, skipping undefined entries
func latestRates(rates []aggregate.SuccessRate) []float64 {
	out := make([]float64, 0, len(rates))
	for _, r := range rates {
		switch {
		case r.Rate5To17 != nil && r.Rate17Plus != nil:
			out = append(out, (*r.Rate5To17+*r.Rate17Plus)/2)
		case r.Rate5To17 != nil:
			out = append(out, *r.Rate5To17)
		case r.Rate17Plus != nil:
			out = append(out, *r.Rate17Plus)
		}
	}
	return out
}

// trailingMean averages the final n values. Shorter histories use what
// exists; an empty history has no mean.
func trailingMean(values []float64, n int) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	start := len(values) - n
	if start < 0 {
		start = 0
	}

	var sum float64
	for _, v := range values[start:] {
		sum += v
	}
	return sum / float64(len(values)-start), true
}

// latestGrowth returns the most recent defined growth rate of the trend
func latestGrowth(trend []model.TrendPoint) *float64 {
	for i := len(trend) - 1; i >= 0; i-- {
		if trend[i].GrowthRatePct != nil {
			return trend[i].GrowthRatePct
		}
	}
	return nil
}
