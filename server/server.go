// Package server exposes the near-duplicate pipeline over HTTP and streams
// per-URL progress over a websocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/xhad/neardup/internal/models"
	"github.com/xhad/neardup/internal/types"
	"github.com/xhad/neardup/pkg/similarity"
	"github.com/xhad/neardup/pkg/store"
)

const (
	defaultLogLimit = 100
	maxLogLimit     = 10000
)

// Processor runs single documents through the pipeline.
type Processor interface {
	ProcessURL(ctx context.Context, url string) models.Result
	ProcessDocument(ctx context.Context, doc models.Document) models.Result
}

// Detector is the engine surface the API reads from.
type Detector interface {
	types.Detector
	Analyze() similarity.Distribution
	Compare(title, content string) []similarity.Comparison
}

// ResultStore persists results and answers nearest-neighbour lookups.
type ResultStore interface {
	Store(ctx context.Context, results []models.Result) error
	Similar(ctx context.Context, url string, limit int) ([]store.Match, error)
}

type Options struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type Server struct {
	pipeline Processor
	detector Detector
	// store is optional.
	store    ResultStore
	logger   zerolog.Logger
	opts     Options
	upgrader websocket.Upgrader
}

type documentRequest struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

type urlRequest struct {
	URL string `json:"url"`
}

func New(pipeline Processor, detector Detector, resultStore ResultStore, logger zerolog.Logger, opts Options) *Server {
	if strings.TrimSpace(opts.Addr) == "" {
		opts.Addr = ":8080"
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 2 * time.Minute
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	return &Server{
		pipeline: pipeline,
		detector: detector,
		store:    resultStore,
		logger:   logger,
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Handler builds the echo router.
func (s *Server) Handler() http.Handler {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			event := s.logger.Info()
			if v.Error != nil {
				event = s.logger.Error().Err(v.Error)
			}
			event.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	e.GET("/health", s.handleHealth)
	e.GET("/ws", s.handleWebSocket)

	api := e.Group("/v1")
	api.POST("/documents", s.handleDocument)
	api.POST("/urls", s.handleURL)
	api.GET("/stats", s.handleStats)
	api.GET("/logs", s.handleLogs)
	api.GET("/similar", s.handleSimilar)
	api.GET("/analysis", s.handleAnalysis)
	api.POST("/compare", s.handleCompare)

	return e
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error().Err(err).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", s.opts.Addr).Msg("neardup server started")

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("neardup server stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if v, ok := he.Message.(string); ok && strings.TrimSpace(v) != "" {
			message = v
		} else if text := http.StatusText(status); text != "" {
			message = text
		}
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

func (s *Server) handleHealth(c echo.Context) error {
	return success(c, map[string]any{
		"service": "neardup",
		"time":    time.Now().UTC(),
	})
}

func (s *Server) handleDocument(c echo.Context) error {
	var req documentRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "Invalid request body", nil)
	}

	fieldErrors := map[string]string{}
	if strings.TrimSpace(req.URL) == "" {
		fieldErrors["url"] = "url is required"
	}
	if strings.TrimSpace(req.Title) == "" && strings.TrimSpace(req.Content) == "" {
		fieldErrors["content"] = "title or content is required"
	}
	if len(fieldErrors) > 0 {
		return failValidation(c, fieldErrors)
	}

	ctx := c.Request().Context()
	result := s.pipeline.ProcessDocument(ctx, models.Document{
		ID:      req.URL,
		URL:     req.URL,
		Title:   req.Title,
		Content: req.Content,
	})
	s.persist(ctx, result)

	return success(c, result)
}

func (s *Server) handleURL(c echo.Context) error {
	var req urlRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "Invalid request body", nil)
	}
	if strings.TrimSpace(req.URL) == "" {
		return failValidation(c, map[string]string{"url": "url is required"})
	}

	ctx := c.Request().Context()
	result := s.pipeline.ProcessURL(ctx, strings.TrimSpace(req.URL))
	s.persist(ctx, result)

	return success(c, result)
}

func (s *Server) handleStats(c echo.Context) error {
	return success(c, s.detector.Stats())
}

func (s *Server) handleLogs(c echo.Context) error {
	limit, err := parseLimit(c.QueryParam("limit"), defaultLogLimit)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	return success(c, map[string]any{
		"items": s.detector.Logs(limit),
	})
}

func (s *Server) handleAnalysis(c echo.Context) error {
	return success(c, s.detector.Analyze())
}

// handleCompare scores a document against every stored document without
// recording it.
func (s *Server) handleCompare(c echo.Context) error {
	var req documentRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "Invalid request body", nil)
	}
	if strings.TrimSpace(req.Title) == "" && strings.TrimSpace(req.Content) == "" {
		return failValidation(c, map[string]string{"content": "title or content is required"})
	}

	return success(c, map[string]any{
		"items": s.detector.Compare(req.Title, req.Content),
	})
}

func (s *Server) handleSimilar(c echo.Context) error {
	if s.store == nil {
		return fail(c, http.StatusServiceUnavailable, "Result store is not configured", nil)
	}

	url := strings.TrimSpace(c.QueryParam("url"))
	if url == "" {
		return failValidation(c, map[string]string{"url": "url is required"})
	}
	limit, err := parseLimit(c.QueryParam("limit"), store.DefaultSearchLimit)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	matches, err := s.store.Similar(c.Request().Context(), url, limit)
	if errors.Is(err, store.ErrNotFound) {
		return failNotFound(c, "No stored embedding for url")
	}
	if err != nil {
		s.logger.Error().Err(err).Str("url", url).Msg("similar query failed")
		return internalError(c, "Failed to query similar results")
	}

	return success(c, map[string]any{
		"items": matches,
	})
}

// persist is best effort; a store failure never fails the request.
func (s *Server) persist(ctx context.Context, result models.Result) {
	if s.store == nil {
		return
	}
	if err := s.store.Store(ctx, []models.Result{result}); err != nil {
		s.logger.Error().Err(err).Str("url", result.URL).Msg("failed to store result")
	}
}

func parseLimit(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > maxLogLimit {
		return 0, fmt.Errorf("limit must be between 1 and %d", maxLogLimit)
	}
	return limit, nil
}
