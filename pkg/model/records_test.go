package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedupKeyIsStable(t *testing.T) {
	rec := CleanedRecord{
		Source:   SourceEnrollment,
		Date:     time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		State:    "Maharashtra",
		District: "Pune",
		Pincode:  "411001",
		Counts:   map[string]int64{"age_0_5": 10},
	}

	// Pinned digest of "2024-03-15|Maharashtra|Pune|411001|enrollment".
	// Counts do not participate; the key identifies the observation, not
	// its values.
	assert.Equal(t,
		"8e995367630429acf16fd33b88e0534f441d375392a86f3e45ef5a2071b366d5",
		rec.DedupKey())

	rec.Counts["age_0_5"] = 99
	assert.Equal(t,
		"8e995367630429acf16fd33b88e0534f441d375392a86f3e45ef5a2071b366d5",
		rec.DedupKey())
}

func TestDedupKeyDistinguishesSources(t *testing.T) {
	base := CleanedRecord{
		Date:     time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		State:    "Maharashtra",
		District: "Pune",
		Pincode:  "411001",
	}

	enrollment := base
	enrollment.Source = SourceEnrollment
	biometric := base
	biometric.Source = SourceBiometric

	assert.NotEqual(t, enrollment.DedupKey(), biometric.DedupKey())
}

func TestSourceTypeTables(t *testing.T) {
	assert.Equal(t, "enrollments", SourceEnrollment.Table())
	assert.Equal(t, "biometric_attempts", SourceBiometric.Table())
	assert.Equal(t, "demographic_updates", SourceDemographic.Table())
	assert.Empty(t, SourceType("bogus").Table())

	assert.True(t, SourceEnrollment.Valid())
	assert.False(t, SourceType("bogus").Valid())

	assert.Len(t, SourceEnrollment.CountColumns(), 3)
	assert.Len(t, SourceBiometric.CountColumns(), 2)
	assert.Len(t, SourceDemographic.CountColumns(), 2)
}
