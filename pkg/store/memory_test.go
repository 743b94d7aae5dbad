package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/chauhanaman41/UIDAI-Analytics/pkg/model"
)

type MemoryRepositorySuite struct {
	suite.Suite
	repo *MemoryRepository
	ctx  context.Context
}

func (s *MemoryRepositorySuite) SetupTest() {
	s.repo = NewMemoryRepository()
	s.ctx = context.Background()
}

func TestMemoryRepositorySuite(t *testing.T) {
	suite.Run(t, new(MemoryRepositorySuite))
}

func enrollmentRecord(date time.Time, state, district, pincode string, total int64) model.CleanedRecord {
	return model.CleanedRecord{
		Source:   model.SourceEnrollment,
		Date:     date,
		State:    state,
		District: district,
		Pincode:  pincode,
		Counts: map[string]int64{
			"age_0_5":        total / 4,
			"age_5_17":       total / 4,
			"age_18_greater": total - total/4 - total/4,
		},
	}
}

// TestUpsertIdempotence verifies reloading identical input changes nothing.
func (s *MemoryRepositorySuite) TestUpsertIdempotence() {
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	batch := []model.CleanedRecord{
		enrollmentRecord(day, "Maharashtra", "Pune", "411001", 100),
		enrollmentRecord(day, "Maharashtra", "Mumbai", "400001", 200),
	}

	inserted, skipped, err := s.repo.UpsertBatch(s.ctx, model.SourceEnrollment, batch)
	s.Require().NoError(err)
	s.Equal(int64(2), inserted)
	s.Equal(int64(0), skipped)

	inserted, skipped, err = s.repo.UpsertBatch(s.ctx, model.SourceEnrollment, batch)
	s.Require().NoError(err)
	s.Equal(int64(0), inserted)
	s.Equal(int64(2), skipped)

	s.Equal(2, s.repo.RowCount(model.SourceEnrollment))
}

func (s *MemoryRepositorySuite) TestUpsertRejectsUnknownSource() {
	_, _, err := s.repo.UpsertBatch(s.ctx, model.SourceType("bogus"), nil)
	s.Require().Error(err)
}

// TestQuerySeries verifies filtering, band selection, and date ordering.
func (s *MemoryRepositorySuite) TestQuerySeries() {
	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	batch := []model.CleanedRecord{
		enrollmentRecord(feb, "Kerala", "Kochi", "682001", 80),
		enrollmentRecord(jan, "Kerala", "Kochi", "682001", 40),
		enrollmentRecord(jan, "Kerala", "Kochi", "682002", 20),
		enrollmentRecord(jan, "Punjab", "Amritsar", "143001", 500),
	}
	_, _, err := s.repo.UpsertBatch(s.ctx, model.SourceEnrollment, batch)
	s.Require().NoError(err)

	s.Run("all bands summed per date and location", func() {
		points, err := s.repo.QuerySeries(s.ctx, SeriesFilter{
			Source: model.SourceEnrollment,
			State:  "Kerala",
		})
		s.Require().NoError(err)
		s.Require().Len(points, 2)

		// Two January pincodes collapse into one point
		s.Equal(jan, points[0].Date)
		s.Equal(float64(60), points[0].Value)
		s.Equal(feb, points[1].Date)
		s.Equal(float64(80), points[1].Value)
	})

	s.Run("single band", func() {
		points, err := s.repo.QuerySeries(s.ctx, SeriesFilter{
			Source:   model.SourceEnrollment,
			State:    "Punjab",
			District: "Amritsar",
			AgeBand:  "age_0_5",
		})
		s.Require().NoError(err)
		s.Require().Len(points, 1)
		s.Equal(float64(125), points[0].Value)
	})

	s.Run("date range filter", func() {
		points, err := s.repo.QuerySeries(s.ctx, SeriesFilter{
			Source:    model.SourceEnrollment,
			State:     "Kerala",
			StartDate: feb,
		})
		s.Require().NoError(err)
		s.Require().Len(points, 1)
		s.Equal(feb, points[0].Date)
	})

	s.Run("unknown band rejected", func() {
		_, err := s.repo.QuerySeries(s.ctx, SeriesFilter{
			Source:  model.SourceEnrollment,
			AgeBand: "bio_age_5_17",
		})
		s.Require().Error(err)
	})
}

func (s *MemoryRepositorySuite) TestDistinctLocations() {
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	batch := []model.CleanedRecord{
		enrollmentRecord(day, "Kerala", "Kochi", "682001", 10),
		enrollmentRecord(day, "Kerala", "Kochi", "682002", 10),
		enrollmentRecord(day, "Kerala", "Ernakulam", "682010", 10),
		enrollmentRecord(day, "Assam", "Kamrup", "781001", 10),
	}
	_, _, err := s.repo.UpsertBatch(s.ctx, model.SourceEnrollment, batch)
	s.Require().NoError(err)

	locations, err := s.repo.DistinctLocations(s.ctx, model.SourceEnrollment)
	s.Require().NoError(err)
	s.Equal([]model.Location{
		{State: "Assam", District: "Kamrup"},
		{State: "Kerala", District: "Ernakulam"},
		{State: "Kerala", District: "Kochi"},
	}, locations)

	states, err := s.repo.DistinctStates(s.ctx, model.SourceEnrollment)
	s.Require().NoError(err)
	s.Equal([]string{"Assam", "Kerala"}, states)
}

// TestAlerts verifies alert persistence and severity/lookback filtering.
func (s *MemoryRepositorySuite) TestAlerts() {
	now := time.Now().UTC()
	alerts := []model.AnomalyAlert{
		{
			Date:             now.AddDate(0, 0, -2),
			State:            "Kerala",
			District:         "Kochi",
			MetricName:       "enrollment_total",
			AnomalyValue:     900,
			SeverityScore:    8.5,
			AnomalyType:      model.AnomalySpike,
			DetectionMethods: []string{"zscore", "iqr"},
		},
		{
			Date:             now.AddDate(0, 0, -40),
			State:            "Kerala",
			District:         "Kochi",
			MetricName:       "enrollment_total",
			AnomalyValue:     30,
			SeverityScore:    2.0,
			AnomalyType:      model.AnomalyDrop,
			DetectionMethods: []string{"rolling_avg"},
		},
	}

	n, err := s.repo.InsertAlerts(s.ctx, alerts)
	s.Require().NoError(err)
	s.Equal(int64(2), n)

	s.Run("severity threshold", func() {
		got, err := s.repo.QueryAlerts(s.ctx, AlertFilter{MinSeverity: 5.0})
		s.Require().NoError(err)
		s.Require().Len(got, 1)
		s.Equal(model.AnomalySpike, got[0].AnomalyType)
	})

	s.Run("lookback window", func() {
		got, err := s.repo.QueryAlerts(s.ctx, AlertFilter{LookbackDays: 7})
		s.Require().NoError(err)
		s.Require().Len(got, 1)
		s.Equal(8.5, got[0].SeverityScore)
	})

	s.Run("unbounded returns all", func() {
		got, err := s.repo.QueryAlerts(s.ctx, AlertFilter{})
		s.Require().NoError(err)
		s.Len(got, 2)
	})
}
