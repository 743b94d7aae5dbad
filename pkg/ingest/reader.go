// pkg/ingest/reader.go
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/chauhanaman41/UIDAI-Analytics/pkg/model"
)

// locationColumns are required in every source file alongside the
// source-specific count columns
var locationColumns = []string{"date", "state", "district", "pincode"}

// ValidateFile opens a CSV source file and streams validated records into
// emit. An unreadable file or a header missing required columns is fatal;
// row-level failures are counted in summary and the run continues.
func (v *Validator) ValidateFile(
	ctx context.Context,
	source model.SourceType,
	path string,
	summary *RejectionSummary,
	emit func(model.CleanedRecord) error,
) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open source file %s: %w", path, err)
	}
	defer f.Close()

	v.logger.Info("Validating source file",
		zap.String("source", string(source)),
		zap.String("path", path))

	return v.ValidateStream(ctx, source, f, summary, emit)
}

// ValidateStream reads CSV rows from r, validates each, and passes accepted
// records to emit in input order. emit returning an error stops the stream.
func (v *Validator) ValidateStream(
	ctx context.Context,
	source model.SourceType,
	r io.Reader,
	summary *RejectionSummary,
	emit func(model.CleanedRecord) error,
) error {
	if !source.Valid() {
		return fmt.Errorf("unknown source type %q", source)
	}
	if summary == nil {
		return errors.New("rejection summary cannot be nil")
	}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}

	columns, err := resolveColumns(header, source)
	if err != nil {
		return err
	}

	line := 1 // header was line 1
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		row, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		line++

		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				rej := &Rejection{Source: source, Line: line, Code: ReasonMalformedRow, Detail: err.Error()}
				v.logRejection(rej, summary.addRejected(ReasonMalformedRow))
				continue
			}
			return fmt.Errorf("failed to read row %d: %w", line, err)
		}

		raw := buildRawRecord(source, line, row, columns)
		cleaned, rejection := v.ValidateRecord(raw)
		if rejection != nil {
			v.logRejection(rejection, summary.addRejected(rejection.Code))
			continue
		}

		summary.addAccepted()
		if err := emit(*cleaned); err != nil {
			return err
		}
	}
}

// columnIndex maps logical column names to their positions in the header
type columnIndex map[string]int

// resolveColumns locates the required columns in the header. A missing
// required column is a schema mismatch and fatal for the file.
func resolveColumns(header []string, source model.SourceType) (columnIndex, error) {
	index := make(columnIndex, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}

	required := append([]string{}, locationColumns...)
	required = append(required, source.CountColumns()...)
	for _, name := range required {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("source file header missing required column %q", name)
		}
	}

	return index, nil
}

// buildRawRecord extracts the known columns from a CSV row. Rows shorter
// than the header yield empty fields, which validation rejects with the
// appropriate reason.
func buildRawRecord(source model.SourceType, line int, row []string, columns columnIndex) model.RawRecord {
	field := func(name string) string {
		i, ok := columns[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	counts := make(map[string]string, len(source.CountColumns()))
	for _, col := range source.CountColumns() {
		if i, ok := columns[col]; ok && i < len(row) {
			counts[col] = row[i]
		}
	}

	return model.RawRecord{
		Source:   source,
		Line:     line,
		Date:     field("date"),
		State:    field("state"),
		District: field("district"),
		Pincode:  field("pincode"),
		Counts:   counts,
	}
}
