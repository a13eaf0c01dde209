package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/waterwatch/dashboard/services/api/render"
	"github.com/waterwatch/dashboard/services/api/session"
	"github.com/waterwatch/dashboard/services/api/weather"
)

// handleV1AreaPrecipitation samples current precipitation around a center
// GET /api/v1/dashboard/precipitation?lat=43.69&lon=-79.385
func (s *Server) handleV1AreaPrecipitation(c *gin.Context) {
	if s.weather == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "weather source not configured"})
		return
	}

	lat, err := coordinate(c.Query("lat"), s.cfg.CenterLat, 90)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lat"})
		return
	}
	lon, err := coordinate(c.Query("lon"), s.cfg.CenterLon, 180)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lon"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 20*time.Second)
	defer cancel()

	area, err := s.weather.Area(ctx, lat, lon)
	if err != nil {
		s.weatherError(c, err)
		return
	}

	layer := render.NewGeoJSON()
	render.DrawPrecipitation(layer, area)

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"area":  area,
			"layer": layer.Collection(),
		},
		"meta": gin.H{
			"samples":      len(area.Samples),
			"generated_at": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// handleV1PrecipitationAt returns the precipitation at the position and time
// of the global record at :index
// GET /api/v1/dashboard/precipitation/:index
func (s *Server) handleV1PrecipitationAt(c *gin.Context) {
	if s.weather == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "weather source not configured"})
		return
	}

	index, ok := indexParam(c)
	if !ok {
		return
	}

	record, err := s.session.RecordAt(index)
	if errors.Is(err, session.ErrIndexOutOfRange) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	mm, err := s.weather.At(ctx, record.Latitude, record.Longitude, record.DeviceTime)
	if err != nil {
		s.weatherError(c, err)
		return
	}

	sample := weather.Sample{
		Point:           weather.Point{Lat: record.Latitude, Lon: record.Longitude},
		PrecipitationMM: mm,
	}
	layer := render.NewGeoJSON()
	render.DrawPrecipitationAt(layer, sample)

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"sample":    sample,
			"device_id": record.DeviceID,
			"layer":     layer.Collection(),
		},
		"meta": gin.H{
			"index":     index,
			"reference": record.DeviceTime.Format(time.RFC3339),
		},
	})
}

func (s *Server) weatherError(c *gin.Context, err error) {
	if errors.Is(err, weather.ErrNoAPIKey) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	s.log.Warn("weather request failed", "err", err.Error())
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}

func coordinate(raw string, fallback, limit float64) (float64, error) {
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if v < -limit || v > limit {
		return 0, strconv.ErrRange
	}
	return v, nil
}
