// Package server exposes the supervisor and the Genie client over HTTP and
// a websocket query stream.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"dbxagent/internal/genie"
	"dbxagent/internal/logging"
	"dbxagent/internal/supervisor"
)

// Supervisor answers queries. *supervisor.Supervisor satisfies it.
type Supervisor interface {
	Invoke(ctx context.Context, query string, opts ...supervisor.InvokeOption) *supervisor.State
	Registry() *supervisor.Registry
}

// GenieClient is the part of *genie.Client the query endpoint uses.
type GenieClient interface {
	StartConversation(ctx context.Context, spaceID, content string) (*genie.Message, error)
	ContinueConversation(ctx context.Context, spaceID, conversationID, content string) (*genie.Message, error)
	WaitForCompletion(ctx context.Context, spaceID, conversationID, messageID string, timeout time.Duration) (*genie.Message, error)
}

// Config configures the HTTP server.
type Config struct {
	Addr            string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
	// GenieMaxRows caps rendered tables when a request names no limit.
	GenieMaxRows int
	Debug        bool
}

// Server serves the dbxagent API.
type Server struct {
	cfg        Config
	supervisor Supervisor
	genie      GenieClient
	gatherer   prometheus.Gatherer
	logger     logging.Logger
	started    time.Time

	engine     *gin.Engine
	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// Option customizes a Server.
type Option func(*Server)

// WithGenie enables the Genie query endpoint.
func WithGenie(client GenieClient) Option {
	return func(s *Server) { s.genie = client }
}

// WithGatherer serves gatherer on /metrics.
func WithGatherer(gatherer prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = gatherer }
}

// WithLogger sets the access and error logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Server) { s.logger = logging.OrNop(logger) }
}

// New builds the router.
func New(cfg Config, sup Supervisor, opts ...Option) (*Server, error) {
	if sup == nil {
		return nil, fmt.Errorf("server requires a supervisor")
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.GenieMaxRows <= 0 {
		cfg.GenieMaxRows = genie.DefaultMaxRows
	}

	s := &Server{
		cfg:        cfg,
		supervisor: sup,
		logger:     logging.NewComponentLogger("server"),
		started:    time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), requestID(), observe(s.logger), limitBody(cfg.MaxBodyBytes))

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) == 0 || slices.Contains(cfg.AllowedOrigins, "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	}
	corsConfig.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", requestIDHeader}
	corsConfig.ExposeHeaders = []string{requestIDHeader}
	corsConfig.AllowWebSockets = true
	engine.Use(cors.New(corsConfig))

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	s.engine = engine
	s.routes()

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.handleHealth)
	if s.gatherer != nil {
		s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	v1 := s.engine.Group("/v1")
	{
		v1.POST("/invoke", s.handleInvoke)
		v1.GET("/agents", s.handleAgents)
		v1.GET("/ws", s.handleStream)
		if s.genie != nil {
			v1.POST("/genie/:space/query", s.handleGenieQuery)
		}
	}
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.httpServer.BaseContext = func(net.Listener) context.Context { return ctx }

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("Serving dbxagent API on %s", listener.Addr())
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		s.logger.Info("Shutting down HTTP server")
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(s.cfg.AllowedOrigins, "*") || slices.Contains(s.cfg.AllowedOrigins, origin)
}
