// pkg/store/postgres.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/chauhanaman41/UIDAI-Analytics/pkg/connector"
	"github.com/chauhanaman41/UIDAI-Analytics/pkg/model"
)

const (
	upsertTimeout = 60 * time.Second
	queryTimeout  = 5 * time.Minute
)

// PostgresRepository implements SinkRepository against the PostgreSQL sink
type PostgresRepository struct {
	conn   connector.DatabaseConnector
	db     *sqlx.DB
	logger *zap.Logger
}

// NewPostgresRepository creates a repository bound to an open sink connection
func NewPostgresRepository(conn connector.DatabaseConnector, logger *zap.Logger) (*PostgresRepository, error) {
	if conn == nil {
		return nil, errors.New("database connector cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &PostgresRepository{
		conn:   conn,
		db:     sqlx.NewDb(conn.DB(), "pgx"),
		logger: logger.Named("sink-repository"),
	}, nil
}

// EnsureSchema creates the sink tables if they do not exist
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	statements := []string{
		sinkTableDDL(model.SourceEnrollment),
		sinkTableDDL(model.SourceBiometric),
		sinkTableDDL(model.SourceDemographic),
		`CREATE TABLE IF NOT EXISTS anomaly_alerts (
			id SERIAL PRIMARY KEY,
			date DATE NOT NULL,
			state TEXT NOT NULL,
			district TEXT NOT NULL,
			metric_name TEXT NOT NULL,
			anomaly_value DOUBLE PRECISION NOT NULL,
			severity_score DOUBLE PRECISION NOT NULL,
			anomaly_type TEXT NOT NULL,
			detection_methods TEXT[] NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, ddl := range statements {
		if _, err := r.conn.ExecWithTimeout(ctx, ddl, 30*time.Second); err != nil {
			return fmt.Errorf("failed to ensure sink schema: %w", err)
		}
	}

	r.logger.Info("Ensured sink tables exist")
	return nil
}

func sinkTableDDL(source model.SourceType) string {
	countDefs := make([]string, 0, len(source.CountColumns()))
	for _, col := range source.CountColumns() {
		countDefs = append(countDefs, fmt.Sprintf("%s BIGINT NOT NULL CHECK (%s >= 0)", col, col))
	}

	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		dedup_key TEXT PRIMARY KEY,
		date DATE NOT NULL,
		state TEXT NOT NULL,
		district TEXT NOT NULL,
		pincode CHAR(6),
		%s
	)`, source.Table(), strings.Join(countDefs, ",\n\t\t"))
}

// UpsertBatch performs a multi-row INSERT ... ON CONFLICT (dedup_key) DO
// NOTHING. Re-running the same batch inserts nothing and changes no counts.
func (r *PostgresRepository) UpsertBatch(
	ctx context.Context,
	source model.SourceType,
	records []model.CleanedRecord,
) (int64, int64, error) {
	if len(records) == 0 {
		return 0, 0, nil
	}
	if !source.Valid() {
		return 0, 0, fmt.Errorf("unknown source type %q", source)
	}

	countCols := source.CountColumns()
	columns := append([]string{"dedup_key", "date", "state", "district", "pincode"}, countCols...)

	placeholders := make([]string, len(records))
	args := make([]interface{}, 0, len(records)*len(columns))

	for i, rec := range records {
		rowPlaceholders := make([]string, len(columns))
		for j := range columns {
			rowPlaceholders[j] = fmt.Sprintf("$%d", i*len(columns)+j+1)
		}
		placeholders[i] = fmt.Sprintf("(%s)", strings.Join(rowPlaceholders, ", "))

		args = append(args, rec.DedupKey(), rec.Date, rec.State, rec.District, nullablePincode(rec.Pincode))
		for _, col := range countCols {
			args = append(args, rec.Counts[col])
		}
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES %s ON CONFLICT (dedup_key) DO NOTHING",
		source.Table(),
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
	)

	result, err := r.conn.ExecWithTimeout(ctx, query, upsertTimeout, args...)
	if err != nil {
		return 0, 0, fmt.Errorf("batch upsert into %s failed: %w", source.Table(), err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		r.logger.Warn("Couldn't get rows affected", zap.Error(err))
		inserted = 0
	}
	skipped := int64(len(records)) - inserted

	return inserted, skipped, nil
}

// CountRows returns the number of rows in a sink table
func (r *PostgresRepository) CountRows(ctx context.Context, source model.SourceType) (int64, error) {
	if !source.Valid() {
		return 0, fmt.Errorf("unknown source type %q", source)
	}

	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", source.Table())
	if err := r.db.GetContext(queryCtx, &count, query); err != nil {
		return 0, fmt.Errorf("row count query on %s failed: %w", source.Table(), err)
	}

	return count, nil
}

func nullablePincode(pincode string) sql.NullString {
	if pincode == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: pincode, Valid: true}
}

// QuerySeries returns per-date totals matching the filter, ordered by date
// ascending
func (r *PostgresRepository) QuerySeries(ctx context.Context, filter SeriesFilter) ([]SeriesPoint, error) {
	if !filter.Source.Valid() {
		return nil, fmt.Errorf("unknown source type %q", filter.Source)
	}

	valueExpr, err := bandExpression(filter.Source, filter.AgeBand)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		"SELECT date, state, district, SUM(%s)::float8 AS value FROM %s WHERE 1=1",
		valueExpr, filter.Source.Table(),
	)

	args := make([]interface{}, 0, 4)
	if filter.State != "" {
		args = append(args, filter.State)
		query += fmt.Sprintf(" AND state = $%d", len(args))
	}
	if filter.District != "" {
		args = append(args, filter.District)
		query += fmt.Sprintf(" AND district = $%d", len(args))
	}
	if !filter.StartDate.IsZero() {
		args = append(args, filter.StartDate)
		query += fmt.Sprintf(" AND date >= $%d", len(args))
	}
	if !filter.EndDate.IsZero() {
		args = append(args, filter.EndDate)
		query += fmt.Sprintf(" AND date <= $%d", len(args))
	}
	query += " GROUP BY date, state, district ORDER BY date ASC, state ASC, district ASC"

	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var points []SeriesPoint
	if err := r.db.SelectContext(queryCtx, &points, query, args...); err != nil {
		return nil, fmt.Errorf("series query on %s failed: %w", filter.Source.Table(), err)
	}

	return points, nil
}

func bandExpression(source model.SourceType, ageBand string) (string, error) {
	cols := source.CountColumns()
	if ageBand == "" {
		return strings.Join(cols, " + "), nil
	}
	for _, col := range cols {
		if col == ageBand {
			return col, nil
		}
	}
	return "", fmt.Errorf("unknown age band %q for source %q", ageBand, source)
}

// DistinctLocations returns the (state, district) pairs present in a sink
// table
func (r *PostgresRepository) DistinctLocations(ctx context.Context, source model.SourceType) ([]model.Location, error) {
	if !source.Valid() {
		return nil, fmt.Errorf("unknown source type %q", source)
	}

	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var locations []model.Location
	query := fmt.Sprintf("SELECT DISTINCT state, district FROM %s ORDER BY state, district", source.Table())
	if err := r.db.SelectContext(queryCtx, &locations, query); err != nil {
		return nil, fmt.Errorf("distinct locations query failed: %w", err)
	}

	return locations, nil
}

// DistinctStates returns the states present in a sink table
func (r *PostgresRepository) DistinctStates(ctx context.Context, source model.SourceType) ([]string, error) {
	if !source.Valid() {
		return nil, fmt.Errorf("unknown source type %q", source)
	}

	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var states []string
	query := fmt.Sprintf("SELECT DISTINCT state FROM %s ORDER BY state", source.Table())
	if err := r.db.SelectContext(queryCtx, &states, query); err != nil {
		return nil, fmt.Errorf("distinct states query failed: %w", err)
	}

	return states, nil
}

// InsertAlerts persists anomaly alerts. The detection_methods array column
// is written with pq.Array.
func (r *PostgresRepository) InsertAlerts(ctx context.Context, alerts []model.AnomalyAlert) (int64, error) {
	if len(alerts) == 0 {
		return 0, nil
	}

	tx, err := r.conn.DB().BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				r.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
			}
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO anomaly_alerts
		(date, state, district, metric_name, anomaly_value, severity_score, anomaly_type, detection_methods)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare alert insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, alert := range alerts {
		_, err = stmt.ExecContext(ctx,
			alert.Date,
			alert.State,
			alert.District,
			alert.MetricName,
			alert.AnomalyValue,
			alert.SeverityScore,
			string(alert.AnomalyType),
			pq.Array(alert.DetectionMethods),
		)
		if err != nil {
			return inserted, fmt.Errorf("failed to insert alert: %w", err)
		}
		inserted++
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit alert insert: %w", err)
	}

	r.logger.Info("Inserted anomaly alerts", zap.Int64("count", inserted))
	return inserted, nil
}

// QueryAlerts returns persisted alerts matching the filter, newest first
func (r *PostgresRepository) QueryAlerts(ctx context.Context, filter AlertFilter) ([]model.AnomalyAlert, error) {
	query := `
		SELECT date, state, district, metric_name, anomaly_value, severity_score, anomaly_type, detection_methods
		FROM anomaly_alerts
		WHERE severity_score >= $1
	`
	args := []interface{}{filter.MinSeverity}

	if filter.LookbackDays > 0 {
		args = append(args, time.Now().UTC().AddDate(0, 0, -filter.LookbackDays))
		query += fmt.Sprintf(" AND date >= $%d", len(args))
	}
	if filter.State != "" {
		args = append(args, filter.State)
		query += fmt.Sprintf(" AND state = $%d", len(args))
	}
	if filter.District != "" {
		args = append(args, filter.District)
		query += fmt.Sprintf(" AND district = $%d", len(args))
	}
	query += " ORDER BY date DESC"

	// The timeout context must outlive row iteration: database/sql closes
	// the Rows as soon as the query context is done
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(queryCtx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("alert query failed: %w", err)
	}
	defer rows.Close()

	alerts := make([]model.AnomalyAlert, 0)
	for rows.Next() {
		var (
			alert       model.AnomalyAlert
			anomalyType string
			methods     []string
		)
		if err := rows.Scan(
			&alert.Date,
			&alert.State,
			&alert.District,
			&alert.MetricName,
			&alert.AnomalyValue,
			&alert.SeverityScore,
			&anomalyType,
			pq.Array(&methods),
		); err != nil {
			return nil, fmt.Errorf("failed to scan alert row: %w", err)
		}
		alert.AnomalyType = model.AnomalyType(anomalyType)
		alert.DetectionMethods = methods
		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alert rows: %w", err)
	}

	return alerts, nil
}
