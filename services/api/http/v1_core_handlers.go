package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/waterwatch/dashboard/services/api/watercolor"
)

// handleV1GetRecord returns a stored record with its decoded water color
// GET /api/v1/core/records/:id
func (s *Server) handleV1GetRecord(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "record id must be a positive integer"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	record, err := s.store.GetRecord(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}

	color := watercolor.Parse(record.WaterColor)
	c.JSON(http.StatusOK, gin.H{
		"data": record,
		"meta": gin.H{
			"color": color.CSS(s.cfg.AlphaScale),
		},
	})
}

// handleV1DeviceSummaries returns paginated per-device activity aggregates
// GET /api/v1/core/devices/summary?page=1&limit=20&begin_datetime=...
func (s *Server) handleV1DeviceSummaries(c *gin.Context) {
	page := 1
	if p := c.Query("page"); p != "" {
		if val, err := strconv.Atoi(p); err == nil && val > 0 {
			page = val
		}
	}

	limit := 20
	if l := c.Query("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil && val > 0 && val <= 100 {
			limit = val
		}
	}

	q, ok := recordFilters(c)
	if !ok {
		return
	}
	q.Limit = limit
	q.Offset = (page - 1) * limit

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	result, err := s.store.SummarizeDevices(ctx, q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": result.Devices,
		"pagination": gin.H{
			"page":        page,
			"limit":       limit,
			"total_count": result.TotalCount,
			"total_pages": (result.TotalCount + limit - 1) / limit,
		},
	})
}
