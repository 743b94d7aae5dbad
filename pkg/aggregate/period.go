// pkg/aggregate/period.go
package aggregate

import (
	"fmt"
	"time"
)

// Granularity is the period width trends are bucketed into
type Granularity string

const (
	GranularityMonth   Granularity = "month"
	GranularityQuarter Granularity = "quarter"
	GranularityYear    Granularity = "year"
)

// Valid reports whether the granularity is known
func (g Granularity) Valid() bool {
	return g == GranularityMonth || g == GranularityQuarter || g == GranularityYear
}

// periodKey formats the period label a date falls into
func periodKey(date time.Time, g Granularity) string {
	switch g {
	case GranularityMonth:
		return date.Format("2006-01")
	case GranularityQuarter:
		quarter := (int(date.Month())-1)/3 + 1
		return fmt.Sprintf("%04d-Q%d", date.Year(), quarter)
	case GranularityYear:
		return date.Format("2006")
	default:
		return ""
	}
}

// periodStart truncates a date to the start of its period
func periodStart(date time.Time, g Granularity) time.Time {
	switch g {
	case GranularityMonth:
		return time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, time.UTC)
	case GranularityQuarter:
		month := time.Month(((int(date.Month())-1)/3)*3 + 1)
		return time.Date(date.Year(), month, 1, 0, 0, 0, 0, time.UTC)
	case GranularityYear:
		return time.Date(date.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	default:
		return date
	}
}

// nextPeriod advances a period-start date by one period
func nextPeriod(start time.Time, g Granularity) time.Time {
	switch g {
	case GranularityMonth:
		return start.AddDate(0, 1, 0)
	case GranularityQuarter:
		return start.AddDate(0, 3, 0)
	case GranularityYear:
		return start.AddDate(1, 0, 0)
	default:
		return start
	}
}
