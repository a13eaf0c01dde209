package http

import "github.com/gin-gonic/gin"

// registerV1Routes sets up the v1 API structure
// Groups: /api/v1/dashboard, /api/v1/core
func (s *Server) registerV1Routes(root *gin.RouterGroup) {
	v1 := root.Group("/api/v1")
	v1.Use(apiVersionMiddleware())

	// Dashboard endpoints - paged session, aligned frames and precipitation layers
	dashboard := v1.Group("/dashboard")
	{
		dashboard.GET("/timeline", s.handleV1Timeline)
		dashboard.POST("/next", s.handleV1NextPage)
		dashboard.GET("/snapshot/:index", s.handleV1Snapshot)
		dashboard.GET("/precipitation", s.handleV1AreaPrecipitation)
		dashboard.GET("/precipitation/:index", s.handleV1PrecipitationAt)
	}

	// Core endpoints - stored records and device activity
	if s.store != nil {
		core := v1.Group("/core")
		{
			core.GET("/records/:id", s.handleV1GetRecord)
			core.GET("/devices/summary", s.handleV1DeviceSummaries)
		}
	}
}

func apiVersionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-API-Version", "v1")
		c.Next()
	}
}
