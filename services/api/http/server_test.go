package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waterwatch/dashboard/services/api/aligner"
	"github.com/waterwatch/dashboard/services/api/config"
	"github.com/waterwatch/dashboard/services/api/db"
	"github.com/waterwatch/dashboard/services/api/models"
	"github.com/waterwatch/dashboard/services/api/render"
	"github.com/waterwatch/dashboard/services/api/session"
	"github.com/waterwatch/dashboard/services/api/waterdata"
	"github.com/waterwatch/dashboard/services/api/weather"
)

var base = time.Date(2024, 10, 5, 12, 0, 0, 0, time.UTC)

type fakePager struct {
	timeline session.Timeline
	err      error
	calls    int
}

func (f *fakePager) Next(context.Context) (session.Timeline, error) {
	f.calls++
	return f.timeline, f.err
}

type fakeWeather struct {
	lat, lon float64
	at       time.Time
	mm       float64
	err      error
}

func (f *fakeWeather) Current(_ context.Context, lat, lon float64) (float64, error) {
	f.lat, f.lon = lat, lon
	return f.mm, f.err
}

func (f *fakeWeather) At(_ context.Context, lat, lon float64, t time.Time) (float64, error) {
	f.lat, f.lon, f.at = lat, lon, t
	return f.mm, f.err
}

func (f *fakeWeather) Area(_ context.Context, lat, lon float64) (weather.Area, error) {
	f.lat, f.lon = lat, lon
	if f.err != nil {
		return weather.Area{}, f.err
	}
	samples := make([]weather.Sample, 0, 8)
	for _, p := range weather.NearbyPoints(lat, lon) {
		samples = append(samples, weather.Sample{Point: p, PrecipitationMM: f.mm})
	}
	return weather.Area{Center: weather.Point{Lat: lat, Lon: lon}, Samples: samples, Average: f.mm}, nil
}

type fakeStore struct {
	recordQuery db.RecordQuery
	deviceQuery db.DeviceQuery
	inserted    []models.Record
	records     []models.Record
	devices     []models.Device
	summary     *db.DeviceSummaryPage
	err         error
}

func (f *fakeStore) ListRecords(_ context.Context, q db.RecordQuery) ([]models.Record, error) {
	f.recordQuery = q
	return f.records, f.err
}

func (f *fakeStore) ListDevices(_ context.Context, q db.DeviceQuery) ([]models.Device, error) {
	f.deviceQuery = q
	return f.devices, f.err
}

func (f *fakeStore) InsertRecord(_ context.Context, r models.Record) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.inserted = append(f.inserted, r)
	return int64(len(f.inserted)), nil
}

func (f *fakeStore) GetRecord(_ context.Context, id int64) (*models.Record, error) {
	for _, r := range f.records {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, f.err
}

func (f *fakeStore) SummarizeDevices(_ context.Context, q db.RecordQuery) (*db.DeviceSummaryPage, error) {
	f.recordQuery = q
	return f.summary, f.err
}

type fakeImages struct {
	device string
	data   []byte
	err    error
}

func (f *fakeImages) PutImage(_ context.Context, deviceID string, data []byte, _ string) (string, error) {
	f.device, f.data = deviceID, data
	if f.err != nil {
		return "", f.err
	}
	return "https://waterwatch.s3.amazonaws.com/" + deviceID + "/x.jpg", nil
}

func testConfig() config.Config {
	return config.Config{
		AlphaScale:     100,
		CenterLat:      43.69,
		CenterLon:      -79.385,
		RequestTimeout: time.Second,
	}
}

func testSession() *session.Session {
	s := session.New(10)
	s.Ingest(session.Page{Offset: 0, Size: 3, Records: []models.Record{
		{DeviceID: "a", Latitude: 43.1, Longitude: -79.1, DeviceTime: base, WaterColor: "{'r': 0, 'g': 0, 'b': 0, 'a': 100}"},
		{DeviceID: "b", Latitude: 43.2, Longitude: -79.2, DeviceTime: base.Add(-10 * time.Minute), WaterColor: "{'r': 200, 'g': 100, 'b': 50, 'a': 80}"},
		{DeviceID: "a", Latitude: 43.3, Longitude: -79.3, DeviceTime: base.Add(-time.Hour), WaterColor: "broken"},
	}})
	return s
}

type fixture struct {
	srv     *Server
	pager   *fakePager
	weather *fakeWeather
	store   *fakeStore
	images  *fakeImages
}

func newFixture(t *testing.T, cfg config.Config, withStore bool) fixture {
	t.Helper()
	f := fixture{
		pager:   &fakePager{},
		weather: &fakeWeather{mm: 2.5},
		store:   &fakeStore{},
		images:  &fakeImages{},
	}
	deps := Deps{
		Session: testSession(),
		Pager:   f.pager,
		Aligner: aligner.New(aligner.WithTolerance(30 * time.Minute)),
		Weather: f.weather,
		Log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if withStore {
		deps.Store = f.store
		deps.Images = f.images
	}
	f.srv = New(cfg, deps)
	return f
}

func (f fixture) do(t *testing.T, method, target string, body io.Reader, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	f.srv.Engine().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, testConfig(), false)

	rec := f.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = f.do(t, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWeatherAPIKey(t *testing.T) {
	f := newFixture(t, testConfig(), false)
	rec := f.do(t, http.MethodGet, "/getWeatherAPIKey", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	cfg := testConfig()
	cfg.WeatherAPIKey = "secret"
	f = newFixture(t, cfg, false)
	rec = f.do(t, http.MethodGet, "/getWeatherAPIKey", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"api_key":"secret"}`, rec.Body.String())
}

func TestTimeline(t *testing.T) {
	f := newFixture(t, testConfig(), false)

	rec := f.do(t, http.MethodGet, "/api/v1/dashboard/timeline", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "v1", rec.Header().Get("X-API-Version"))

	body := decode[struct{ Data session.Timeline }](t, rec)
	assert.Equal(t, 3, body.Data.Count)
	assert.Equal(t, 2, body.Data.MaxIndex)
	assert.False(t, body.Data.HasNext)
	assert.Equal(t, []string{"a", "b"}, body.Data.Devices)
}

func TestNextPage(t *testing.T) {
	f := newFixture(t, testConfig(), false)
	f.pager.timeline = session.Timeline{Count: 42, HasNext: true}

	rec := f.do(t, http.MethodPost, "/api/v1/dashboard/next", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct{ Data session.Timeline }](t, rec)
	assert.Equal(t, 42, body.Data.Count)

	f.pager.err = waterdata.ErrSuperseded
	rec = f.do(t, http.MethodPost, "/api/v1/dashboard/next", nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	f.pager.err = errors.New("connection refused")
	rec = f.do(t, http.MethodPost, "/api/v1/dashboard/next", nil, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	failed := decode[struct {
		Error string
		Data  session.Timeline
	}](t, rec)
	assert.Equal(t, "connection refused", failed.Error)
	assert.Equal(t, 3, failed.Data.Count)
	assert.Equal(t, 3, f.pager.calls)
}

func TestSnapshot(t *testing.T) {
	f := newFixture(t, testConfig(), false)

	rec := f.do(t, http.MethodGet, "/api/v1/dashboard/snapshot/0?details=true", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[struct {
		Data struct {
			Frame session.Frame
			Layer render.FeatureCollection
		}
		Meta map[string]any
	}](t, rec)

	frame := body.Data.Frame
	assert.Equal(t, base, frame.Reference)
	require.Len(t, frame.Entries, 2)
	require.NotNil(t, frame.Entries[0].Record)
	assert.Equal(t, base, frame.Entries[0].Record.DeviceTime)
	require.NotNil(t, frame.Entries[1].Record)
	assert.Equal(t, base.Add(-10*time.Minute), frame.Entries[1].Record.DeviceTime)

	// two markers and the line joining them
	assert.Len(t, body.Data.Layer.Features, 3)
	assert.Equal(t, 2.0, body.Meta["present"])
	assert.Equal(t, 1800.0, body.Meta["tolerance_seconds"])
}

func TestSnapshotOutsideTolerance(t *testing.T) {
	f := newFixture(t, testConfig(), false)

	// index 2 is device a one hour back; b is fifty minutes away
	rec := f.do(t, http.MethodGet, "/api/v1/dashboard/snapshot/2", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[struct {
		Data struct {
			Frame session.Frame
			Layer render.FeatureCollection
		}
	}](t, rec)
	require.Len(t, body.Data.Frame.Entries, 2)
	assert.NotNil(t, body.Data.Frame.Entries[0].Record)
	assert.Nil(t, body.Data.Frame.Entries[1].Record)
	assert.Len(t, body.Data.Layer.Features, 1)
}

func TestSnapshotBadRequests(t *testing.T) {
	f := newFixture(t, testConfig(), false)

	tests := map[string]int{
		"/api/v1/dashboard/snapshot/3":              http.StatusNotFound,
		"/api/v1/dashboard/snapshot/-1":             http.StatusNotFound,
		"/api/v1/dashboard/snapshot/x":              http.StatusBadRequest,
		"/api/v1/dashboard/snapshot/0?details=nope": http.StatusBadRequest,
	}
	for target, want := range tests {
		rec := f.do(t, http.MethodGet, target, nil, nil)
		assert.Equal(t, want, rec.Code, target)
	}
}

func TestAreaPrecipitation(t *testing.T) {
	f := newFixture(t, testConfig(), false)

	rec := f.do(t, http.MethodGet, "/api/v1/dashboard/precipitation", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 43.69, f.weather.lat)
	assert.Equal(t, -79.385, f.weather.lon)

	body := decode[struct {
		Data struct {
			Area  weather.Area
			Layer render.FeatureCollection
		}
	}](t, rec)
	assert.Len(t, body.Data.Area.Samples, 8)
	assert.Len(t, body.Data.Layer.Features, 9)

	rec = f.do(t, http.MethodGet, "/api/v1/dashboard/precipitation?lat=10&lon=20", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10.0, f.weather.lat)
	assert.Equal(t, 20.0, f.weather.lon)

	rec = f.do(t, http.MethodGet, "/api/v1/dashboard/precipitation?lat=95", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.weather.err = weather.ErrNoAPIKey
	rec = f.do(t, http.MethodGet, "/api/v1/dashboard/precipitation", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	f.weather.err = errors.New("boom")
	rec = f.do(t, http.MethodGet, "/api/v1/dashboard/precipitation", nil, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestPrecipitationAtIndex(t *testing.T) {
	f := newFixture(t, testConfig(), false)

	rec := f.do(t, http.MethodGet, "/api/v1/dashboard/precipitation/1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 43.2, f.weather.lat)
	assert.Equal(t, -79.2, f.weather.lon)
	assert.Equal(t, base.Add(-10*time.Minute), f.weather.at)

	body := decode[struct {
		Data struct {
			Sample   weather.Sample
			DeviceID string `json:"device_id"`
		}
	}](t, rec)
	assert.Equal(t, "b", body.Data.DeviceID)
	assert.Equal(t, 2.5, body.Data.Sample.PrecipitationMM)

	rec = f.do(t, http.MethodGet, "/api/v1/dashboard/precipitation/9", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBearerAuth(t *testing.T) {
	cfg := testConfig()
	cfg.BearerToken = "token"
	f := newFixture(t, cfg, true)

	rec := f.do(t, http.MethodGet, "/api/v1/dashboard/timeline", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/getwaterdata/", nil, http.Header{"Authorization": {"Bearer wrong"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/dashboard/timeline", nil, http.Header{"Authorization": {"Bearer token"}})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRecordRoutesNeedStore(t *testing.T) {
	f := newFixture(t, testConfig(), false)

	for _, target := range []string{"/getwaterdata/", "/getwaterdevice/", "/api/v1/core/records/1"} {
		rec := f.do(t, http.MethodGet, target, nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
	}
}

func TestGetWaterData(t *testing.T) {
	f := newFixture(t, testConfig(), true)
	f.store.records = []models.Record{{ID: 7, DeviceID: "a", DeviceTime: base}}

	rec := f.do(t, http.MethodGet,
		"/getwaterdata/?begin_latitude=43&end_longitude=-79&begin_datetime=2024-10-01T00:00:00&max_temperature=30&DeviceIDs=a&deviceIDs=b&limit=5&offset=10",
		nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	q := f.store.recordQuery
	require.NotNil(t, q.BeginLatitude)
	assert.Equal(t, 43.0, *q.BeginLatitude)
	require.NotNil(t, q.EndLongitude)
	assert.Equal(t, -79.0, *q.EndLongitude)
	assert.Nil(t, q.BeginLongitude)
	require.NotNil(t, q.BeginDatetime)
	assert.Equal(t, time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC), *q.BeginDatetime)
	require.NotNil(t, q.MaxTemperature)
	assert.Equal(t, 30.0, *q.MaxTemperature)
	assert.Equal(t, []string{"a", "b"}, q.DeviceIDs)
	assert.Equal(t, 5, q.Limit)
	assert.Equal(t, 10, q.Offset)

	records := decode[[]models.Record](t, rec)
	require.Len(t, records, 1)
	assert.Equal(t, int64(7), records[0].ID)

	for _, target := range []string{
		"/getwaterdata/?begin_latitude=north",
		"/getwaterdata/?end_datetime=yesterday",
		"/getwaterdata/?limit=0",
		"/getwaterdata/?offset=-1",
	} {
		rec = f.do(t, http.MethodGet, target, nil, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}

	f.store.err = errors.New("db down")
	rec = f.do(t, http.MethodGet, "/getwaterdata/", nil, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetWaterDevice(t *testing.T) {
	f := newFixture(t, testConfig(), true)
	f.store.devices = []models.Device{{DeviceID: "a", AccountOwner: "owner"}}

	rec := f.do(t, http.MethodGet, "/getwaterdevice/?DeviceID=a&lastCleaned_datetime=2024-09-01%2000:00:00", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	q := f.store.deviceQuery
	require.NotNil(t, q.DeviceID)
	assert.Equal(t, "a", *q.DeviceID)
	require.NotNil(t, q.LastCleanedBefore)
	assert.Equal(t, time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC), *q.LastCleanedBefore)
	assert.Equal(t, db.MaxLimit, q.Limit)

	devices := decode[[]models.Device](t, rec)
	require.Len(t, devices, 1)
	assert.Equal(t, "owner", devices[0].AccountOwner)
}

func uploadBody(t *testing.T, fields map[string]string, withImage bool) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if withImage {
		part, err := w.CreateFormFile("image", "photo.jpg")
		require.NoError(t, err)
		_, err = part.Write([]byte("jpeg-bytes"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf, w.FormDataContentType()
}

func validUpload() map[string]string {
	return map[string]string{
		"deviceID":        "0000000077de649d",
		"latitude":        "43.65",
		"longitude":       "-79.38",
		"device_datetime": "2024-10-05 12:00:00",
		"temperature":     "11.5",
		"waterColor":      "{'r': 10.4, 'g': 20.5, 'b': 30, 'a': 90}",
	}
}

func TestUpload(t *testing.T) {
	f := newFixture(t, testConfig(), true)

	body, contentType := uploadBody(t, validUpload(), true)
	rec := f.do(t, http.MethodPost, "/upload/", body, http.Header{"Content-Type": {contentType}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "0000000077de649d", f.images.device)
	assert.Equal(t, []byte("jpeg-bytes"), f.images.data)

	require.Len(t, f.store.inserted, 1)
	r := f.store.inserted[0]
	assert.Equal(t, base, r.DeviceTime)
	assert.Equal(t, 43.65, r.Latitude)
	require.NotNil(t, r.Temperature)
	assert.Equal(t, 11.5, *r.Temperature)
	assert.Equal(t, "{'r': 10, 'g': 21, 'b': 30, 'a': 90}", r.WaterColor)
	assert.True(t, strings.HasPrefix(r.ImageURI, "https://waterwatch.s3.amazonaws.com/"))

	resp := decode[map[string]any](t, rec)
	assert.Equal(t, "File uploaded successfully", resp["message"])
}

func TestUploadRejectsBadInput(t *testing.T) {
	f := newFixture(t, testConfig(), true)

	badColor := validUpload()
	badColor["waterColor"] = "red"
	body, contentType := uploadBody(t, badColor, true)
	rec := f.do(t, http.MethodPost, "/upload/", body, http.Header{"Content-Type": {contentType}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, contentType = uploadBody(t, validUpload(), false)
	rec = f.do(t, http.MethodPost, "/upload/", body, http.Header{"Content-Type": {contentType}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Empty(t, f.store.inserted)

	f.images.err = errors.New("access denied")
	body, contentType = uploadBody(t, validUpload(), true)
	rec = f.do(t, http.MethodPost, "/upload/", body, http.Header{"Content-Type": {contentType}})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, f.store.inserted)
}

func TestCoreRoutes(t *testing.T) {
	f := newFixture(t, testConfig(), true)
	f.store.records = []models.Record{{ID: 3, DeviceID: "a", WaterColor: "{'r': 255, 'g': 0, 'b': 0, 'a': 50}"}}
	f.store.summary = &db.DeviceSummaryPage{
		Devices:    []db.DeviceSummary{{DeviceID: "a", RecordCount: 12}},
		TotalCount: 41,
	}

	rec := f.do(t, http.MethodGet, "/api/v1/core/records/3", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[struct {
		Data models.Record
		Meta map[string]string
	}](t, rec)
	assert.Equal(t, "a", got.Data.DeviceID)
	assert.Equal(t, "rgba(255, 0, 0, 0.5)", got.Meta["color"])

	rec = f.do(t, http.MethodGet, "/api/v1/core/records/4", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/core/devices/summary?page=2&limit=20", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 20, f.store.recordQuery.Offset)
	summary := decode[struct {
		Data       []db.DeviceSummary
		Pagination map[string]int
	}](t, rec)
	require.Len(t, summary.Data, 1)
	assert.Equal(t, 3, summary.Pagination["total_pages"])
}
