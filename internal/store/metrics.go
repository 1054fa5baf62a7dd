package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/austat/austat/internal/log"
)

// MetricStore persists economic metric data points.
type MetricStore struct {
	db     DB
	logger log.Logger
}

// NewMetricStore creates a MetricStore.
func NewMetricStore(db DB, logger log.Logger) (*MetricStore, error) {
	if db == nil {
		return nil, ErrNilDB
	}
	return &MetricStore{db: db, logger: orNop(logger)}, nil
}

// UpsertPoint inserts a data point, replacing any existing observation of
// the same metric, period, and geography. Re-collection is idempotent.
func (s *MetricStore) UpsertPoint(ctx context.Context, p DataPoint) error {
	if p.Geography == "" {
		p.Geography = "AUS"
	}
	meta, err := json.Marshal(orEmptyMap(p.Metadata))
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO data_points
			(id, metric_name, value, unit, period, geography, source, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (metric_name, period, geography) DO UPDATE SET
			value = EXCLUDED.value,
			unit = EXCLUDED.unit,
			source = EXCLUDED.source,
			metadata = EXCLUDED.metadata,
			collected_at = now()`,
		uuid.New(), p.MetricName, p.Value, textOrNull(p.Unit),
		p.Period, p.Geography, p.Source, meta)
	if err != nil {
		return fmt.Errorf("upserting data point %s/%s: %w", p.MetricName, p.Period, err)
	}
	return nil
}

// Latest returns the newest observation of a metric. Empty geography matches
// any geography.
func (s *MetricStore) Latest(ctx context.Context, metric, geography string) (*DataPoint, error) {
	row := s.db.QueryRow(ctx, dataPointSelect+`
		WHERE metric_name = $1 AND ($2 = '' OR geography = $2)
		ORDER BY period DESC
		LIMIT 1`, metric, geography)

	p, err := scanDataPoint(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("metric %q: %w", metric, ErrMetricNotFound)
		}
		return nil, fmt.Errorf("loading latest %q: %w", metric, err)
	}
	return p, nil
}

// Timeseries returns up to limit observations of a metric in chronological
// order, keeping the most recent when truncating.
func (s *MetricStore) Timeseries(ctx context.Context, metric string, limit int, geography string) ([]DataPoint, error) {
	if limit <= 0 {
		limit = 24
	}
	rows, err := s.db.Query(ctx, dataPointSelect+`
		WHERE metric_name = $1 AND ($3 = '' OR geography = $3)
		ORDER BY period DESC
		LIMIT $2`, metric, limit, geography)
	if err != nil {
		return nil, fmt.Errorf("loading timeseries %q: %w", metric, err)
	}
	defer rows.Close()

	points, err := collectDataPoints(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
	return points, nil
}

// Range returns observations with start <= period <= end, in chronological
// order. Periods are zero-padded strings, so lexical comparison is correct.
func (s *MetricStore) Range(ctx context.Context, metric, startPeriod, endPeriod string) ([]DataPoint, error) {
	rows, err := s.db.Query(ctx, dataPointSelect+`
		WHERE metric_name = $1 AND period >= $2 AND period <= $3
		ORDER BY period ASC`, metric, startPeriod, endPeriod)
	if err != nil {
		return nil, fmt.Errorf("loading range %q: %w", metric, err)
	}
	defer rows.Close()
	return collectDataPoints(rows)
}

// ListMetrics returns every known metric with its latest period and count.
func (s *MetricStore) ListMetrics(ctx context.Context) ([]MetricInfo, error) {
	rows, err := s.db.Query(ctx, `
		SELECT metric_name, MAX(period), COUNT(*)
		FROM data_points
		GROUP BY metric_name
		ORDER BY metric_name`)
	if err != nil {
		return nil, fmt.Errorf("listing metrics: %w", err)
	}
	defer rows.Close()

	var out []MetricInfo
	for rows.Next() {
		var info MetricInfo
		if err := rows.Scan(&info.Name, &info.LatestPeriod, &info.PointCount); err != nil {
			return nil, fmt.Errorf("scanning metric info: %w", err)
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing metrics: %w", err)
	}
	return out, nil
}

// Summary returns the latest observation of each named metric. Metrics with
// no data are simply absent from the result.
func (s *MetricStore) Summary(ctx context.Context, names []string) ([]DataPoint, error) {
	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT ON (metric_name)
			id, metric_name, value, unit, period, geography, source, metadata, collected_at
		FROM data_points
		WHERE metric_name = ANY($1)
		ORDER BY metric_name, period DESC`, names)
	if err != nil {
		return nil, fmt.Errorf("loading summary: %w", err)
	}
	defer rows.Close()
	return collectDataPoints(rows)
}

const dataPointSelect = `
	SELECT id, metric_name, value, unit, period, geography, source, metadata, collected_at
	FROM data_points`

func collectDataPoints(rows pgx.Rows) ([]DataPoint, error) {
	var out []DataPoint
	for rows.Next() {
		p, err := scanDataPoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning data point: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading data points: %w", err)
	}
	return out, nil
}

func scanDataPoint(row pgx.Row) (*DataPoint, error) {
	var (
		p    DataPoint
		unit pgtype.Text
		meta []byte
	)
	if err := row.Scan(&p.ID, &p.MetricName, &p.Value, &unit, &p.Period,
		&p.Geography, &p.Source, &meta, &p.CollectedAt); err != nil {
		return nil, err
	}
	if unit.Valid {
		p.Unit = unit.String
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &p.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata: %w", err)
		}
	}
	return &p, nil
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
