package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/waterwatch/dashboard/services/watcher/internal/models"
)

// FetchPending loads up to limit records without weather that were taken
// before cutoff, newest first.
func FetchPending(ctx context.Context, pool *pgxpool.Pool, cutoff time.Time, limit int) ([]models.PendingRecord, error) {
	rows, err := pool.Query(ctx, `
SELECT id, COALESCE("deviceID", ''), latitude, longitude, device_datetime
FROM images
WHERE (weather IS NULL OR weather = 'n/a')
  AND latitude IS NOT NULL
  AND longitude IS NOT NULL
  AND device_datetime IS NOT NULL
  AND device_datetime <= $1
ORDER BY device_datetime DESC
LIMIT $2`, cutoff.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pending := make([]models.PendingRecord, 0, limit)
	for rows.Next() {
		var p models.PendingRecord
		if err := rows.Scan(&p.ID, &p.DeviceID, &p.Latitude, &p.Longitude, &p.DeviceTime); err != nil {
			return nil, err
		}
		p.DeviceTime = p.DeviceTime.UTC()
		pending = append(pending, p)
	}

	return pending, rows.Err()
}

// UpdateWeather writes weather values in one batch. A record that was filled
// concurrently keeps its value.
func UpdateWeather(ctx context.Context, pool *pgxpool.Pool, updates []models.WeatherUpdate) (int64, error) {
	if len(updates) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	query := `UPDATE images
SET weather = $2
WHERE id = $1 AND (weather IS NULL OR weather = 'n/a')`

	for _, u := range updates {
		batch.Queue(query, u.RecordID, u.Weather)
	}

	res := pool.SendBatch(ctx, batch)
	defer res.Close()

	var updated int64
	for range updates {
		tag, err := res.Exec()
		if err != nil {
			return updated, err
		}
		updated += tag.RowsAffected()
	}

	return updated, nil
}
