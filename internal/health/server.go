// Package health serves the LINE webhook together with health, metrics and
// operator endpoints.
package health

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/keiba-line-bot/internal/bot"
	"github.com/yourusername/keiba-line-bot/internal/line"
	applogger "github.com/yourusername/keiba-line-bot/internal/logger"
	"github.com/yourusername/keiba-line-bot/internal/metrics"
	"github.com/yourusername/keiba-line-bot/internal/models"
)

const defaultEventTimeout = 2 * time.Minute

// DatabasePinger defines the interface for checking database connectivity.
type DatabasePinger interface {
	Ping(ctx context.Context) error
}

// Bot is the subset of the bot orchestrator the server drives.
type Bot interface {
	HandleWebhook(ctx context.Context, wh *line.Webhook) error
	Predict(ctx context.Context, date time.Time) *models.PredictionResult
	Broadcast(ctx context.Context, trigger string) error
	Status() bot.OrchestratorStatus
}

// HealthResponse represents the JSON response for health check endpoints.
type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp,omitempty"`
	Version   string `json:"version,omitempty"`
	Commit    string `json:"commit,omitempty"`
}

// ReadyResponse represents the JSON response for readiness check endpoints.
type ReadyResponse struct {
	Status   string            `json:"status"`
	Service  string            `json:"service"`
	Checks   map[string]string `json:"checks,omitempty"`
	Duration string            `json:"duration,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Config holds the configuration for the server.
type Config struct {
	ServiceName   string
	Version       string
	Commit        string
	Port          int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	EventTimeout  time.Duration
	ChannelSecret string
	AdminToken    string
	MetricsPath   string
	Location      *time.Location
	Logger        *logrus.Logger
	DB            DatabasePinger
	Bot           Bot
}

// Server handles the webhook and operational endpoints.
type Server struct {
	cfg    Config
	router *chi.Mux
	server *http.Server
	logger *logrus.Logger
	audit  *applogger.AuditLogger
	events sync.WaitGroup
	mu     sync.RWMutex
	ready  bool
}

// NewServer creates a new server.
func NewServer(cfg Config) *Server {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 60 * time.Second
	}
	if cfg.EventTimeout <= 0 {
		cfg.EventTimeout = defaultEventTimeout
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Logger == nil {
		cfg.Logger = applogger.Discard()
	}

	s := &Server{
		cfg:    cfg,
		router: chi.NewRouter(),
		logger: cfg.Logger,
		audit:  applogger.NewAuditLogger(cfg.Logger),
	}
	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/live", s.handleLive)
	s.router.Get("/ready", s.handleReady)

	if s.cfg.MetricsPath != "" {
		s.router.Handle(s.cfg.MetricsPath, metrics.Handler())
	}

	if s.cfg.Bot == nil {
		return
	}
	s.router.Post("/callback", s.handleCallback)
	s.router.Group(func(r chi.Router) {
		r.Use(s.requireAdmin)
		r.Post("/predict", s.handlePredict)
		r.Post("/broadcast", s.handleBroadcast)
		r.Get("/status", s.handleStatus)
	})
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetReady marks the server as ready to accept traffic.
func (s *Server) SetReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = ready
}

// IsReady returns whether the server is ready.
func (s *Server) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Start serves in the background until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		s.logger.WithFields(logrus.Fields{
			"port":    s.cfg.Port,
			"service": s.cfg.ServiceName,
		}).Info("HTTP server starting")

		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("HTTP server error")
		}
	}()

	go func() {
		<-ctx.Done()
		if err := s.Shutdown(); err != nil {
			s.logger.WithError(err).Warn("HTTP server shutdown incomplete")
		}
	}()
	return nil
}

// Shutdown stops accepting requests and waits for in-flight webhook events.
func (s *Server) Shutdown() error {
	s.logger.Info("HTTP server shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.server.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.events.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = errors.New("webhook events still running at shutdown")
		}
	}
	return err
}

// WaitEvents blocks until dispatched webhook events finish.
func (s *Server) WaitEvents() {
	s.events.Wait()
}

// handleCallback verifies and acknowledges a LINE webhook, handling events in
// the background so the platform gets its 200 promptly.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	wh, err := line.ParseRequest(s.cfg.ChannelSecret, r)
	if err != nil {
		s.audit.LogWebhookRejected(r.RemoteAddr, err.Error())
		status := http.StatusBadRequest
		if errors.Is(err, line.ErrMissingSignature) || errors.Is(err, line.ErrInvalidSignature) {
			status = http.StatusUnauthorized
		}
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}

	if len(wh.Events) > 0 {
		s.events.Add(1)
		go func() {
			defer s.events.Done()
			ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.cfg.EventTimeout)
			defer cancel()
			if err := s.cfg.Bot.HandleWebhook(ctx, wh); err != nil {
				s.logger.WithError(err).WithField("events", len(wh.Events)).Warn("Webhook handling failed")
			}
		}()
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handlePredict runs or returns the cached prediction for ?date=YYYY-MM-DD (default today).
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	now := time.Now().In(s.cfg.Location)
	date := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.cfg.Location)
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, s.cfg.Location)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "date must be YYYY-MM-DD"})
			return
		}
		date = parsed
	}

	result := s.cfg.Bot.Predict(r.Context(), date)
	status := http.StatusOK
	if !result.Succeeded() {
		status = statusForKind(result.ErrorKind)
	}
	writeJSON(w, status, result)
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	err := s.cfg.Bot.Broadcast(r.Context(), bot.TriggerManual)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
	case errors.Is(err, bot.ErrDeliverySuspended):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Bot.Status())
}

// handleHealth handles the /health endpoint - basic liveness check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   s.cfg.ServiceName,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   s.cfg.Version,
		Commit:    s.cfg.Commit,
	})
}

// handleLive handles the /live endpoint - kubernetes liveness probe.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Service: s.cfg.ServiceName})
}

// handleReady handles the /ready endpoint - checks database connectivity.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	checks := make(map[string]string)
	allHealthy := true

	if !s.IsReady() {
		allHealthy = false
		checks["service"] = "not_ready"
	} else {
		checks["service"] = "ok"
	}

	if s.cfg.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		if err := s.cfg.DB.Ping(ctx); err != nil {
			allHealthy = false
			checks["database"] = fmt.Sprintf("error: %v", err)
		} else {
			checks["database"] = "ok"
		}
	}

	response := ReadyResponse{
		Service:  s.cfg.ServiceName,
		Checks:   checks,
		Duration: time.Since(start).String(),
	}
	if allHealthy {
		response.Status = "ok"
		writeJSON(w, http.StatusOK, response)
		return
	}
	response.Status = "not_ready"
	writeJSON(w, http.StatusServiceUnavailable, response)
}

// requireAdmin checks the bearer token on operator endpoints. Without a
// configured token the endpoints are open.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminToken != "" {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AdminToken)) != 1 {
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"bytes":       ww.BytesWritten(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		}).Debug("HTTP request")
	})
}

func statusForKind(kind string) int {
	switch kind {
	case models.ErrorKindNotFound:
		return http.StatusNotFound
	case models.ErrorKindValidation:
		return http.StatusUnprocessableEntity
	case models.ErrorKindTimeout:
		return http.StatusGatewayTimeout
	case models.ErrorKindCollection:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
