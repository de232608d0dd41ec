// Package server exposes the advocate over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sweetpotato0/ai-advocate/advocate"
	"github.com/sweetpotato0/ai-advocate/middleware/errorhandler"
	"github.com/sweetpotato0/ai-advocate/middleware/limiter"
	"github.com/sweetpotato0/ai-advocate/middleware/logger"
	"github.com/sweetpotato0/ai-advocate/pkg/logging"
	"github.com/sweetpotato0/ai-advocate/store"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const shutdownTimeout = 10 * time.Second

// Advancer runs one conversational turn.
type Advancer interface {
	Advance(ctx context.Context, req advocate.AdvanceRequest) (*advocate.Turn, error)
}

// Pinger reports backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Option configures a Server.
type Option func(*Server)

// WithRateLimiter throttles the /api routes.
func WithRateLimiter(l *limiter.RateLimiter) Option {
	return func(s *Server) { s.limiter = l }
}

// WithHealthCheck makes /health ping p.
func WithHealthCheck(p Pinger) Option {
	return func(s *Server) { s.pinger = p }
}

// WithMetricsHandler serves h on /metrics instead of the default registry.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithServiceName names the otelgin spans.
func WithServiceName(name string) Option {
	return func(s *Server) { s.serviceName = name }
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// Server is the HTTP boundary. Conversation state lives in the store; the
// server itself only reads history and hands turns to the coordinator.
type Server struct {
	coordinator Advancer
	history     store.HistoryReader
	pinger      Pinger
	limiter     *limiter.RateLimiter
	metrics     http.Handler
	serviceName string
	logger      *slog.Logger
	engine      *gin.Engine
}

// New builds the router. The gin mode is process-wide and is left to the
// caller.
func New(coordinator Advancer, history store.HistoryReader, opts ...Option) (*Server, error) {
	if coordinator == nil || history == nil {
		return nil, errors.New("server requires a coordinator and a history reader")
	}
	s := &Server{
		coordinator: coordinator,
		history:     history,
		metrics:     promhttp.Handler(),
		serviceName: "ai-advocate",
		logger:      logging.WithComponent("server"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = s.routes()
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(errorhandler.Recovery(s.logger))
	r.Use(otelgin.Middleware(s.serviceName))
	r.Use(logger.RequestLogger(s.logger))

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(s.metrics))

	api := r.Group("/api")
	if s.limiter != nil {
		api.Use(s.limiter.Middleware())
	}
	{
		api.POST("/sessions", s.createSession)
		api.POST("/sessions/:id/messages", s.postMessage)
		api.GET("/sessions/:id/messages", s.listMessages)
	}
	return r
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
