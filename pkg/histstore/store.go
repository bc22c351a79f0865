package histstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"

	"hivewatch/pkg/structlog"
)

// Query is the narrow fetch contract the batch path needs from the
// historical store: a bucket (table), a lookback window, a measurement
// filter, and the columns to keep.
type Query struct {
	Bucket        string
	TimeRangeDays int
	Measurement   string
	Columns       []string
}

// Frame is a tabular query result. The batch path treats an empty Frame and
// a failed query identically, so upstream outages never crash a fit run.
type Frame struct {
	Columns []string
	Rows    []map[string]any
}

// Empty reports whether the frame carries no rows.
func (f *Frame) Empty() bool { return len(f.Rows) == 0 }

// FloatColumn extracts a numeric column, zero for non-numeric cells.
func (f *Frame) FloatColumn(name string) []float64 {
	out := make([]float64, len(f.Rows))
	for i, row := range f.Rows {
		out[i] = toFloat(row[name])
	}
	return out
}

// StringColumn extracts a text column, empty string for non-text cells.
func (f *Frame) StringColumn(name string) []string {
	out := make([]string, len(f.Rows))
	for i, row := range f.Rows {
		switch v := row[name].(type) {
		case string:
			out[i] = v
		case []byte:
			out[i] = string(v)
		}
	}
	return out
}

// Store is the Postgres-backed telemetry source adapter. Batch path only; it
// never sits on the live scoring path.
type Store struct {
	db  *sql.DB
	log *structlog.Logger
}

// Open connects to the historical store.
func Open(dsn string, log *structlog.Logger) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open historical store: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// FetchRange queries one measurement over the lookback window. Errors and
// empty results both degrade to an empty Frame, logged, never a crash.
func (s *Store) FetchRange(ctx context.Context, q Query) *Frame {
	frame := &Frame{Columns: q.Columns}
	if len(q.Columns) == 0 || q.Bucket == "" {
		s.log.Warn("historical query missing bucket or columns", structlog.Fields{"bucket": q.Bucket})
		return frame
	}

	rows, err := s.db.QueryContext(ctx, buildQuery(q), q.Measurement, q.TimeRangeDays)
	if err != nil {
		s.log.Error("historical query failed", structlog.Fields{
			"bucket":      q.Bucket,
			"measurement": q.Measurement,
			"error":       err.Error(),
		})
		return frame
	}
	defer rows.Close()

	for rows.Next() {
		cells := make([]any, len(q.Columns))
		ptrs := make([]any, len(q.Columns))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			s.log.Error("historical row scan failed", structlog.Fields{"bucket": q.Bucket, "error": err.Error()})
			return &Frame{Columns: q.Columns}
		}
		row := make(map[string]any, len(q.Columns))
		for i, col := range q.Columns {
			row[col] = cells[i]
		}
		frame.Rows = append(frame.Rows, row)
	}
	if err := rows.Err(); err != nil {
		s.log.Error("historical result iteration failed", structlog.Fields{"bucket": q.Bucket, "error": err.Error()})
		return &Frame{Columns: q.Columns}
	}
	return frame
}

// buildQuery renders the SELECT. Identifiers are quoted; the measurement and
// window go through placeholders.
func buildQuery(q Query) string {
	cols := make([]string, len(q.Columns))
	for i, c := range q.Columns {
		cols[i] = quoteIdent(c)
	}
	return fmt.Sprintf(
		`SELECT %s FROM %s WHERE measurement = $1 AND time > now() - ($2 * interval '1 day')`,
		strings.Join(cols, ", "), quoteIdent(q.Bucket),
	)
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	case int:
		return float64(n)
	case []byte:
		// lib/pq hands NUMERIC and DECIMAL columns back as bytes.
		f, err := strconv.ParseFloat(string(n), 64)
		if err != nil {
			return 0
		}
		return f
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
