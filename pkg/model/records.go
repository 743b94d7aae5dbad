// pkg/model/records.go
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// SourceType identifies which dataset a record belongs to
type SourceType string

const (
	SourceEnrollment  SourceType = "enrollment"
	SourceBiometric   SourceType = "biometric"
	SourceDemographic SourceType = "demographic"
)

// Table returns the sink table a source type is loaded into
func (s SourceType) Table() string {
	switch s {
	case SourceEnrollment:
		return "enrollments"
	case SourceBiometric:
		return "biometric_attempts"
	case SourceDemographic:
		return "demographic_updates"
	default:
		return ""
	}
}

// CountColumns returns the age-bucket count columns for a source type,
// in sink-table order
func (s SourceType) CountColumns() []string {
	switch s {
	case SourceEnrollment:
		return []string{"age_0_5", "age_5_17", "age_18_greater"}
	case SourceBiometric:
		return []string{"bio_age_5_17", "bio_age_17_plus"}
	case SourceDemographic:
		return []string{"demo_age_5_17", "demo_age_17_plus"}
	default:
		return nil
	}
}

// Valid reports whether the source type is one of the known datasets
func (s SourceType) Valid() bool {
	return s == SourceEnrollment || s == SourceBiometric || s == SourceDemographic
}

// RawRecord is a single unvalidated row read from a source file.
// It exists only during a pipeline run.
type RawRecord struct {
	Source   SourceType
	Line     int               // 1-based line number in the source file
	Date     string            // free-form date text
	State    string            // raw state name
	District string            // raw district name
	Pincode  string            // raw pincode text, may be empty
	Counts   map[string]string // count column -> raw text
}

// CleanedRecord is a validated, normalized row ready for loading.
// Every CleanedRecord corresponds to exactly one accepted RawRecord.
type CleanedRecord struct {
	Source   SourceType
	Date     time.Time // calendar date, UTC midnight
	State    string    // canonical state name
	District string    // canonical district name
	Pincode  string    // exactly 6 digits, or "" for null
	Counts   map[string]int64
}

// ISODate returns the record date formatted as ISO-8601 (YYYY-MM-DD)
func (r CleanedRecord) ISODate() string {
	return r.Date.Format("2006-01-02")
}

// DedupKey derives the deterministic key that makes loads idempotent:
// the same (date, state, district, pincode, source) always hashes to the
// same key, across runs and process restarts.
func (r CleanedRecord) DedupKey() string {
	var b strings.Builder
	b.WriteString(r.ISODate())
	b.WriteByte('|')
	b.WriteString(r.State)
	b.WriteByte('|')
	b.WriteString(r.District)
	b.WriteByte('|')
	b.WriteString(r.Pincode)
	b.WriteByte('|')
	b.WriteString(string(r.Source))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Location is a (state, district) pair present in a sink table
type Location struct {
	State    string `db:"state"`
	District string `db:"district"`
}
