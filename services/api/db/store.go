package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/waterwatch/dashboard/services/api/models"
)

// MaxLimit caps the page size of every listing.
const MaxLimit = 1000

// Store wraps database access helpers.
type Store struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// New creates a Store backed by a pgx pool and makes sure the schema exists.
func New(ctx context.Context, databaseURL string, log *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	s := &Store{pool: pool, log: log}
	if err := s.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the pool resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS images (
	id              SERIAL PRIMARY KEY,
	"deviceID"      VARCHAR,
	latitude        DOUBLE PRECISION,
	longitude       DOUBLE PRECISION,
	device_datetime TIMESTAMP,
	gmt_datetime    TIMESTAMP NULL,
	"imageURI"      VARCHAR,
	temperature     DOUBLE PRECISION NULL,
	"waterColor"    VARCHAR NULL,
	weather         VARCHAR NULL
);

CREATE INDEX IF NOT EXISTS ix_images_deviceID ON images ("deviceID");
CREATE INDEX IF NOT EXISTS ix_images_device_datetime ON images (device_datetime);
CREATE INDEX IF NOT EXISTS ix_images_gmt_datetime ON images (gmt_datetime);

CREATE TABLE IF NOT EXISTS devices (
	"deviceID"        VARCHAR PRIMARY KEY,
	"accountOwner"    VARCHAR,
	latitude          DOUBLE PRECISION,
	longitude         DOUBLE PRECISION,
	"lastOnline"      TIMESTAMP NULL,
	"nearbyGeoCoords" VARCHAR NULL,
	"lastCleaned"     TIMESTAMP NULL
);
`

func (s *Store) initialize(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}

	if _, err := tx.Exec(ctx, schemaDDL); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Bounds is an optional geographic filter.
type Bounds struct {
	BeginLongitude *float64
	BeginLatitude  *float64
	EndLongitude   *float64
	EndLatitude    *float64
}

// RecordQuery holds filters for listing records.
type RecordQuery struct {
	Bounds
	BeginDatetime  *time.Time
	EndDatetime    *time.Time
	MaxTemperature *float64
	DeviceIDs      []string
	Limit          int
	Offset         int
}

// DeviceQuery holds filters for listing devices.
type DeviceQuery struct {
	Bounds
	DeviceID          *string
	DeviceIDs         []string
	LastCleanedBefore *time.Time
	Limit             int
	Offset            int
}

type clauseBuilder struct {
	conditions []string
	args       []any
}

func (b *clauseBuilder) add(expr string, arg any) {
	b.args = append(b.args, arg)
	b.conditions = append(b.conditions, strings.ReplaceAll(expr, "?", "$"+strconv.Itoa(len(b.args))))
}

func (b *clauseBuilder) bounds(bd Bounds) {
	if bd.BeginLongitude != nil {
		b.add("longitude >= ?", *bd.BeginLongitude)
	}
	if bd.EndLongitude != nil {
		b.add("longitude <= ?", *bd.EndLongitude)
	}
	if bd.BeginLatitude != nil {
		b.add("latitude >= ?", *bd.BeginLatitude)
	}
	if bd.EndLatitude != nil {
		b.add("latitude <= ?", *bd.EndLatitude)
	}
}

func (b *clauseBuilder) where() string {
	if len(b.conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.conditions, " AND ")
}

func (b *clauseBuilder) page(limit, offset int) string {
	limitPos := len(b.args) + 1
	offsetPos := len(b.args) + 2
	b.args = append(b.args, clampLimit(limit), max(offset, 0))
	return " LIMIT $" + strconv.Itoa(limitPos) + " OFFSET $" + strconv.Itoa(offsetPos)
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

func validIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

const selectRecords = `SELECT id, "deviceID", latitude, longitude, device_datetime, gmt_datetime, "imageURI", temperature, "waterColor", weather FROM images`

func buildRecordQuery(q RecordQuery) (string, []any) {
	b := &clauseBuilder{}
	b.bounds(q.Bounds)
	if q.BeginDatetime != nil {
		b.add("device_datetime >= ?", *q.BeginDatetime)
	}
	if q.EndDatetime != nil {
		b.add("device_datetime <= ?", *q.EndDatetime)
	}
	if q.MaxTemperature != nil {
		b.add("temperature <= ?", *q.MaxTemperature)
	}
	if ids := validIDs(q.DeviceIDs); len(ids) > 0 {
		b.add(`"deviceID" = ANY(?)`, ids)
	}

	sql := selectRecords + b.where() + ` ORDER BY "deviceID" DESC, gmt_datetime DESC` + b.page(q.Limit, q.Offset)
	return sql, b.args
}

// ListRecords returns one page of records matching q.
func (s *Store) ListRecords(ctx context.Context, q RecordQuery) ([]models.Record, error) {
	sql, args := buildRecordQuery(q)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}

	records, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = make([]models.Record, 0)
	}
	return records, nil
}

const selectDevices = `SELECT "deviceID", "accountOwner", latitude, longitude, "lastOnline", "nearbyGeoCoords", "lastCleaned" FROM devices`

func buildDeviceQuery(q DeviceQuery) (string, []any) {
	b := &clauseBuilder{}
	if q.DeviceID != nil {
		b.add(`"deviceID" = ?`, *q.DeviceID)
	}
	if ids := validIDs(q.DeviceIDs); len(ids) > 0 {
		b.add(`"deviceID" = ANY(?)`, ids)
	}
	b.bounds(q.Bounds)
	if q.LastCleanedBefore != nil {
		b.add(`"lastCleaned" <= ?`, *q.LastCleanedBefore)
	}

	sql := selectDevices + b.where() + ` ORDER BY "deviceID" DESC` + b.page(q.Limit, q.Offset)
	return sql, b.args
}

// ListDevices returns one page of devices matching q.
func (s *Store) ListDevices(ctx context.Context, q DeviceQuery) ([]models.Device, error) {
	sql, args := buildDeviceQuery(q)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	devices := make([]models.Device, 0)
	for rows.Next() {
		var (
			d        models.Device
			owner    *string
			lat, lon *float64
		)
		if err := rows.Scan(
			&d.DeviceID,
			&owner,
			&lat,
			&lon,
			&d.LastOnline,
			&d.NearbyGeoCoords,
			&d.LastCleaned,
		); err != nil {
			return nil, err
		}
		d.AccountOwner = deref(owner)
		d.Latitude = derefFloat(lat)
		d.Longitude = derefFloat(lon)
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

const insertRecordSQL = `
INSERT INTO images ("deviceID", latitude, longitude, device_datetime, gmt_datetime, "imageURI", temperature, "waterColor", weather)
VALUES (@device_id, @lat, @lon, @device_datetime, NOW() AT TIME ZONE 'UTC', @image_uri, @temperature, @water_color, @weather)
RETURNING id`

// InsertRecord stores an uploaded observation and returns its id.
func (s *Store) InsertRecord(ctx context.Context, r models.Record) (int64, error) {
	weather := r.Weather
	if weather == "" {
		weather = "n/a"
	}

	var id int64
	err := s.pool.QueryRow(ctx, insertRecordSQL, pgx.NamedArgs{
		"device_id":       r.DeviceID,
		"lat":             r.Latitude,
		"lon":             r.Longitude,
		"device_datetime": r.DeviceTime.UTC(),
		"image_uri":       r.ImageURI,
		"temperature":     r.Temperature,
		"water_color":     r.WaterColor,
		"weather":         weather,
	}).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert record: %w", err)
	}

	if s.log != nil {
		s.log.Debug("record stored", "id", id, "device", r.DeviceID)
	}
	return id, nil
}

// GetRecord returns the record with id, or nil when it does not exist.
func (s *Store) GetRecord(ctx context.Context, id int64) (*models.Record, error) {
	rows, err := s.pool.Query(ctx, selectRecords+` WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}

	r, err := pgx.CollectOneRow(rows, scanRecord)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func scanRecord(row pgx.CollectableRow) (models.Record, error) {
	var (
		r          models.Record
		deviceID   *string
		deviceTime *time.Time
		imageURI   *string
		waterColor *string
		weather    *string
		lat, lon   *float64
	)
	err := row.Scan(&r.ID, &deviceID, &lat, &lon, &deviceTime, &r.GMTTime, &imageURI, &r.Temperature, &waterColor, &weather)
	if err != nil {
		return r, err
	}
	r.DeviceID = deref(deviceID)
	r.Latitude = derefFloat(lat)
	r.Longitude = derefFloat(lon)
	if deviceTime != nil {
		r.DeviceTime = deviceTime.UTC()
	}
	r.ImageURI = deref(imageURI)
	r.WaterColor = deref(waterColor)
	r.Weather = deref(weather)
	return r, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefFloat(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
