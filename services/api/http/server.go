package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/waterwatch/dashboard/services/api/aligner"
	"github.com/waterwatch/dashboard/services/api/blob"
	"github.com/waterwatch/dashboard/services/api/config"
	"github.com/waterwatch/dashboard/services/api/db"
	"github.com/waterwatch/dashboard/services/api/models"
	"github.com/waterwatch/dashboard/services/api/session"
	"github.com/waterwatch/dashboard/services/api/weather"
)

// PageLoader requests the next page of records into the session.
type PageLoader interface {
	Next(ctx context.Context) (session.Timeline, error)
}

// WeatherSource provides precipitation readings.
type WeatherSource interface {
	Current(ctx context.Context, lat, lon float64) (float64, error)
	At(ctx context.Context, lat, lon float64, t time.Time) (float64, error)
	Area(ctx context.Context, lat, lon float64) (weather.Area, error)
}

// RecordStore is the persistence used by the record API.
type RecordStore interface {
	ListRecords(ctx context.Context, q db.RecordQuery) ([]models.Record, error)
	ListDevices(ctx context.Context, q db.DeviceQuery) ([]models.Device, error)
	InsertRecord(ctx context.Context, r models.Record) (int64, error)
	GetRecord(ctx context.Context, id int64) (*models.Record, error)
	SummarizeDevices(ctx context.Context, q db.RecordQuery) (*db.DeviceSummaryPage, error)
}

// Deps are the collaborators served by the API. Store and Images may be nil,
// which leaves the record API unregistered.
type Deps struct {
	Session *session.Session
	Pager   PageLoader
	Aligner *aligner.Aligner
	Weather WeatherSource
	Store   RecordStore
	Images  blob.ImageStore
	Log     *slog.Logger
}

// Server bundles router and dependencies for the REST API.
type Server struct {
	cfg     config.Config
	session *session.Session
	pager   PageLoader
	aligner *aligner.Aligner
	weather WeatherSource
	store   RecordStore
	images  blob.ImageStore
	log     *slog.Logger
	engine  *gin.Engine
}

// New constructs a server with routes and middleware.
func New(cfg config.Config, deps Deps) *Server {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(log))
	engine.Use(corsMiddleware())

	server := &Server{
		cfg:     cfg,
		session: deps.Session,
		pager:   deps.Pager,
		aligner: deps.Aligner,
		weather: deps.Weather,
		store:   deps.Store,
		images:  deps.Images,
		log:     log,
		engine:  engine,
	}
	if server.aligner == nil {
		server.aligner = aligner.New()
	}
	server.registerRoutes()
	return server
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run starts the HTTP server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr(),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.log.Info("REST API listening", "addr", s.cfg.ListenAddr())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.engine.GET("/getWeatherAPIKey", s.handleWeatherAPIKey)

	protected := s.engine.Group("/")
	if s.cfg.BearerToken != "" {
		protected.Use(bearerAuthMiddleware(s.cfg.BearerToken))
	}

	if s.store != nil {
		protected.GET("/getwaterdata/", s.handleGetWaterData)
		protected.GET("/getwaterdevice/", s.handleGetWaterDevice)
		if s.images != nil {
			protected.POST("/upload/", s.handleUpload)
		}
	}

	s.registerV1Routes(protected)
}

func (s *Server) handleWeatherAPIKey(c *gin.Context) {
	if s.cfg.WeatherAPIKey == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "weather api key not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"api_key": s.cfg.WeatherAPIKey})
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)

		start := time.Now()
		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		log.Log(c.Request.Context(), level, "request",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func bearerAuthMiddleware(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		if token != expected {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
