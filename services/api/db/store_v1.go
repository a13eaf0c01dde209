package db

import (
	"context"
	"strings"
	"time"
)

type DeviceSummary struct {
	DeviceID       string     `json:"device_id"`
	RecordCount    int        `json:"record_count"`
	FirstSeen      *time.Time `json:"first_seen,omitempty"`
	LastSeen       *time.Time `json:"last_seen,omitempty"`
	AvgTemperature *float64   `json:"avg_temperature,omitempty"`
	WeatherFilled  int        `json:"weather_filled"`
}

type DeviceSummaryPage struct {
	Devices    []DeviceSummary `json:"devices"`
	TotalCount int             `json:"total_count"`
}

func buildSummaryQuery(q RecordQuery) (countSQL, listSQL string, countArgs, listArgs []any) {
	b := &clauseBuilder{}
	b.conditions = append(b.conditions, `"deviceID" IS NOT NULL`)
	b.bounds(q.Bounds)
	if q.BeginDatetime != nil {
		b.add("device_datetime >= ?", *q.BeginDatetime)
	}
	if q.EndDatetime != nil {
		b.add("device_datetime <= ?", *q.EndDatetime)
	}
	if ids := validIDs(q.DeviceIDs); len(ids) > 0 {
		b.add(`"deviceID" = ANY(?)`, ids)
	}

	whereClause := b.where()
	countSQL = `SELECT COUNT(DISTINCT "deviceID") FROM images` + whereClause
	countArgs = append([]any(nil), b.args...)

	query := strings.Builder{}
	query.WriteString(`SELECT "deviceID", COUNT(*) AS record_count, `)
	query.WriteString("MIN(device_datetime) AS first_seen, MAX(device_datetime) AS last_seen, ")
	query.WriteString("AVG(temperature) AS avg_temperature, ")
	query.WriteString("COUNT(*) FILTER (WHERE weather IS NOT NULL AND weather <> 'n/a') AS weather_filled ")
	query.WriteString("FROM images")
	query.WriteString(whereClause + " ")
	query.WriteString(`GROUP BY "deviceID" `)
	query.WriteString(`ORDER BY "deviceID" DESC`)
	query.WriteString(b.page(q.Limit, q.Offset))

	return countSQL, query.String(), countArgs, b.args
}

// SummarizeDevices groups records per device and reports activity aggregates.
func (s *Store) SummarizeDevices(ctx context.Context, q RecordQuery) (*DeviceSummaryPage, error) {
	countSQL, listSQL, countArgs, listArgs := buildSummaryQuery(q)

	var totalCount int
	if err := s.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&totalCount); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, listSQL, listArgs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	devices := make([]DeviceSummary, 0)
	for rows.Next() {
		var d DeviceSummary
		if err := rows.Scan(
			&d.DeviceID,
			&d.RecordCount,
			&d.FirstSeen,
			&d.LastSeen,
			&d.AvgTemperature,
			&d.WeatherFilled,
		); err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &DeviceSummaryPage{Devices: devices, TotalCount: totalCount}, nil
}
