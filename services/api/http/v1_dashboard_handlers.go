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
	"github.com/waterwatch/dashboard/services/api/waterdata"
)

// handleV1Timeline returns the size of the global index and paging state
// GET /api/v1/dashboard/timeline
func (s *Server) handleV1Timeline(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"data": s.session.Timeline(),
	})
}

// handleV1NextPage fetches the next page of records into the session
// POST /api/v1/dashboard/next
func (s *Server) handleV1NextPage(c *gin.Context) {
	timeout := s.cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	timeline, err := s.pager.Next(ctx)
	switch {
	case errors.Is(err, waterdata.ErrSuperseded):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{
			"error": err.Error(),
			"data":  s.session.Timeline(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": timeline,
	})
}

// handleV1Snapshot aligns every device to the global record at :index
// GET /api/v1/dashboard/snapshot/:index?details=true
func (s *Server) handleV1Snapshot(c *gin.Context) {
	index, ok := indexParam(c)
	if !ok {
		return
	}

	showDetails := false
	if v := c.Query("details"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid details parameter"})
			return
		}
		showDetails = parsed
	}

	frame, err := s.session.Snapshot(index, s.aligner)
	if errors.Is(err, session.ErrIndexOutOfRange) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	layer := render.NewGeoJSON()
	render.DrawFrame(layer, frame, render.FrameOptions{
		ShowDetails: showDetails,
		AlphaScale:  s.cfg.AlphaScale,
	})

	tolerance, bounded := s.aligner.Tolerance()
	meta := gin.H{
		"present": len(frame.Present()),
		"devices": len(frame.Entries),
	}
	if bounded {
		meta["tolerance_seconds"] = tolerance.Seconds()
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"frame": frame,
			"layer": layer.Collection(),
		},
		"meta": meta,
	})
}

func indexParam(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "index must be an integer"})
		return 0, false
	}
	return index, true
}
