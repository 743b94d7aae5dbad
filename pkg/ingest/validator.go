// pkg/ingest/validator.go
package ingest

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chauhanaman41/UIDAI-Analytics/pkg/model"
)

// Rejection reason codes. These are stable strings; downstream reporting
// keys on them.
const (
	ReasonInvalidDate     = "invalid_date"
	ReasonInvalidPincode  = "invalid_pincode"
	ReasonInvalidCount    = "invalid_count"
	ReasonUnknownLocation = "unknown_location"
	ReasonMalformedRow    = "malformed_row"
)

// dateFormats are the accepted input date layouts, tried in order. The
// canonical ISO form is included so that re-validating normalized output is
// a no-op.
var dateFormats = []string{
	"02-01-2006",
	"2006-01-02",
	"02/01/2006",
}

// Rejection describes one rejected row
type Rejection struct {
	Source model.SourceType
	Line   int
	Code   string
	Detail string
}

// RejectionSummary accumulates per-reason rejection counts for a run.
// Safe for concurrent use.
type RejectionSummary struct {
	mu       sync.Mutex
	byCode   map[string]int64
	read     int64
	accepted int64
}

// NewRejectionSummary creates an empty summary
func NewRejectionSummary() *RejectionSummary {
	return &RejectionSummary{byCode: make(map[string]int64)}
}

func (s *RejectionSummary) addAccepted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.read++
	s.accepted++
}

func (s *RejectionSummary) addRejected(code string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.read++
	s.byCode[code]++
	return s.byCode[code]
}

// RowsRead returns the total rows seen
func (s *RejectionSummary) RowsRead() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read
}

// Accepted returns the count of rows that passed validation
func (s *RejectionSummary) Accepted() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// Rejected returns the total rejected row count
func (s *RejectionSummary) Rejected() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, n := range s.byCode {
		total += n
	}
	return total
}

// ByCode returns a copy of the per-reason rejection counts
func (s *RejectionSummary) ByCode() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(s.byCode))
	for code, n := range s.byCode {
		out[code] = n
	}
	return out
}

// Validator normalizes raw rows into CleanedRecords. Row-level failures are
// reported as Rejections; they never abort a run.
type Validator struct {
	ref       *ReferenceTable
	logger    *zap.Logger
	logSample int64 // rejections logged per reason code
}

// NewValidator creates a new Validator instance
func NewValidator(ref *ReferenceTable, logger *zap.Logger, logSample int) (*Validator, error) {
	if ref == nil {
		return nil, errors.New("reference table cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if logSample < 0 {
		logSample = 0
	}

	return &Validator{
		ref:       ref,
		logger:    logger.Named("validator"),
		logSample: int64(logSample),
	}, nil
}

// ValidateRecord validates and normalizes a single raw row. Exactly one of
// the returns is set.
func (v *Validator) ValidateRecord(raw model.RawRecord) (*model.CleanedRecord, *Rejection) {
	if !raw.Source.Valid() {
		return nil, v.reject(raw, ReasonMalformedRow, fmt.Sprintf("unknown source type %q", raw.Source))
	}

	date, err := parseDate(raw.Date)
	if err != nil {
		return nil, v.reject(raw, ReasonInvalidDate, err.Error())
	}

	state, ok := v.ref.CanonicalState(raw.State)
	if !ok {
		return nil, v.reject(raw, ReasonUnknownLocation, fmt.Sprintf("unresolvable state %q", raw.State))
	}
	district, ok := v.ref.CanonicalDistrict(state, raw.District)
	if !ok {
		return nil, v.reject(raw, ReasonUnknownLocation, fmt.Sprintf("unresolvable district %q in %s", raw.District, state))
	}

	pincode, err := parsePincode(raw.Pincode)
	if err != nil {
		return nil, v.reject(raw, ReasonInvalidPincode, err.Error())
	}

	counts := make(map[string]int64, len(raw.Source.CountColumns()))
	for _, col := range raw.Source.CountColumns() {
		text, ok := raw.Counts[col]
		if !ok {
			return nil, v.reject(raw, ReasonInvalidCount, fmt.Sprintf("missing count column %s", col))
		}
		n, err := parseCount(text)
		if err != nil {
			return nil, v.reject(raw, ReasonInvalidCount, fmt.Sprintf("column %s: %v", col, err))
		}
		counts[col] = n
	}

	return &model.CleanedRecord{
		Source:   raw.Source,
		Date:     date,
		State:    state,
		District: district,
		Pincode:  pincode,
		Counts:   counts,
	}, nil
}

// reject builds the rejection and logs the first few occurrences per code
func (v *Validator) reject(raw model.RawRecord, code, detail string) *Rejection {
	return &Rejection{
		Source: raw.Source,
		Line:   raw.Line,
		Code:   code,
		Detail: detail,
	}
}

// logRejection emits a sampled log line for a rejection. seen is the
// cumulative count for the rejection's reason code.
func (v *Validator) logRejection(r *Rejection, seen int64) {
	if seen > v.logSample {
		return
	}
	v.logger.Warn("Rejected row",
		zap.String("source", string(r.Source)),
		zap.Int("line", r.Line),
		zap.String("reason", r.Code),
		zap.String("detail", r.Detail))
}

// parseDate parses an input date into a UTC calendar date
func parseDate(raw string) (time.Time, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return time.Time{}, errors.New("empty date")
	}

	for _, layout := range dateFormats {
		if t, err := time.ParseInLocation(layout, text, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", text)
}

// parsePincode validates a 6-digit pincode. Empty input is a null pincode.
// Float-formatted values like "110001.0" are tolerated; anything else that
// is not exactly 6 digits is rejected.
func parsePincode(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", nil
	}

	// Source files sometimes carry pincodes as floats
	if i := strings.IndexByte(text, '.'); i >= 0 {
		frac := text[i+1:]
		for _, c := range frac {
			if c != '0' {
				return "", fmt.Errorf("invalid pincode %q", raw)
			}
		}
		text = text[:i]
	}

	if len(text) != 6 {
		return "", fmt.Errorf("pincode %q is not 6 digits", raw)
	}
	for _, c := range text {
		if c < '0' || c > '9' {
			return "", fmt.Errorf("pincode %q is not numeric", raw)
		}
	}
	return text, nil
}

// parseCount validates a non-negative integer count. Integral float text
// like "42.0" is tolerated.
func parseCount(raw string) (int64, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return 0, errors.New("empty count")
	}

	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative count %d", n)
		}
		return n, nil
	}

	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("non-numeric count %q", raw)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite count %q", raw)
	}
	if f < 0 {
		return 0, fmt.Errorf("negative count %v", f)
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("non-integer count %v", f)
	}
	return int64(f), nil
}
