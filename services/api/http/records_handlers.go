package http

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/waterwatch/dashboard/services/api/db"
	"github.com/waterwatch/dashboard/services/api/models"
	"github.com/waterwatch/dashboard/services/api/watercolor"
)

const maxUploadBytes = 10 << 20

// handleGetWaterData lists stored records
// GET /getwaterdata/?begin_latitude=..&DeviceIDs=a&DeviceIDs=b&limit=..&offset=..
func (s *Server) handleGetWaterData(c *gin.Context) {
	q, ok := recordFilters(c)
	if !ok {
		return
	}
	if q.MaxTemperature, ok = optionalFloat(c, "max_temperature"); !ok {
		return
	}
	if q.Limit, q.Offset, ok = paging(c); !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	records, err := s.store.ListRecords(ctx, q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, records)
}

// handleGetWaterDevice lists registered devices
// GET /getwaterdevice/?DeviceID=..&lastCleaned_datetime=..
func (s *Server) handleGetWaterDevice(c *gin.Context) {
	var (
		q  db.DeviceQuery
		ok bool
	)
	if id := strings.TrimSpace(c.Query("DeviceID")); id != "" {
		q.DeviceID = &id
	}
	q.DeviceIDs = deviceIDs(c)
	if q.Bounds, ok = bounds(c); !ok {
		return
	}
	if q.LastCleanedBefore, ok = optionalTime(c, "lastCleaned_datetime"); !ok {
		return
	}
	if q.Limit, q.Offset, ok = paging(c); !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	devices, err := s.store.ListDevices(ctx, q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, devices)
}

// handleUpload stores a device image and its reading
// POST /upload/ (multipart: deviceID, latitude, longitude, device_datetime, temperature, waterColor, image)
func (s *Server) handleUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	deviceID := strings.TrimSpace(c.PostForm("deviceID"))
	if deviceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "deviceID is required"})
		return
	}

	lat, err := strconv.ParseFloat(c.PostForm("latitude"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid latitude"})
		return
	}
	lon, err := strconv.ParseFloat(c.PostForm("longitude"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid longitude"})
		return
	}
	deviceTime, err := models.ParseTimestamp(c.PostForm("device_datetime"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid device_datetime"})
		return
	}
	temperature, err := strconv.ParseFloat(c.PostForm("temperature"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid temperature"})
		return
	}
	color, err := watercolor.Decode(c.PostForm("waterColor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid waterColor", "error": err.Error()})
		return
	}

	header, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "image is required"})
		return
	}
	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "unreadable image", "error": err.Error()})
		return
	}
	data, err := io.ReadAll(file)
	_ = file.Close()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "unreadable image", "error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
	defer cancel()

	uri, err := s.images.PutImage(ctx, deviceID, data, header.Header.Get("Content-Type"))
	if err != nil {
		s.log.Error("image upload failed", "device", deviceID, "err", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to upload file", "error": err.Error()})
		return
	}

	id, err := s.store.InsertRecord(ctx, models.Record{
		DeviceID:    deviceID,
		Latitude:    lat,
		Longitude:   lon,
		DeviceTime:  deviceTime,
		ImageURI:    uri,
		Temperature: &temperature,
		WaterColor:  watercolor.Encode(color),
	})
	if err != nil {
		s.log.Error("record insert failed", "device", deviceID, "err", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to upload file", "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "File uploaded successfully",
		"id":       id,
		"imageURI": uri,
	})
}

// recordFilters reads the bounds, datetime window and device ids shared by
// record listings.
func recordFilters(c *gin.Context) (db.RecordQuery, bool) {
	var (
		q  db.RecordQuery
		ok bool
	)
	if q.Bounds, ok = bounds(c); !ok {
		return q, false
	}
	if q.BeginDatetime, ok = optionalTime(c, "begin_datetime"); !ok {
		return q, false
	}
	if q.EndDatetime, ok = optionalTime(c, "end_datetime"); !ok {
		return q, false
	}
	q.DeviceIDs = deviceIDs(c)
	return q, true
}

func bounds(c *gin.Context) (db.Bounds, bool) {
	var (
		b  db.Bounds
		ok bool
	)
	if b.BeginLongitude, ok = optionalFloat(c, "begin_longitude"); !ok {
		return b, false
	}
	if b.BeginLatitude, ok = optionalFloat(c, "begin_latitude"); !ok {
		return b, false
	}
	if b.EndLongitude, ok = optionalFloat(c, "end_longitude"); !ok {
		return b, false
	}
	if b.EndLatitude, ok = optionalFloat(c, "end_latitude"); !ok {
		return b, false
	}
	return b, true
}

// deviceIDs accepts both spellings used by clients.
func deviceIDs(c *gin.Context) []string {
	ids := c.QueryArray("DeviceIDs")
	return append(ids, c.QueryArray("deviceIDs")...)
}

func optionalFloat(c *gin.Context, name string) (*float64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return nil, false
	}
	return &v, true
}

func optionalTime(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	t, err := models.ParseTimestamp(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return nil, false
	}
	return &t, true
}

func paging(c *gin.Context) (limit, offset int, ok bool) {
	limit = db.MaxLimit
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return 0, 0, false
		}
		limit = v
	}
	if raw := c.Query("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
			return 0, 0, false
		}
		offset = v
	}
	return limit, offset, true
}
