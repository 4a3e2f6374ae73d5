// Package httpserver is the visitor-facing HTTP surface: the engagement
// event stream and its actions, the API proxy, and the debug routes.
package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"resumeassist/internal/engagement"
	logx "resumeassist/pkg/logx"
)

type Config struct {
	Addr        string
	ReadTimeout time.Duration
	IdleTimeout time.Duration

	// Backend is the API base URL for /api/upload and /api/proxy.
	Backend        *url.URL
	BackendTimeout time.Duration
	RatePerSec     int
	Burst          int

	// SecureCookies marks identity cookies Secure (production).
	SecureCookies bool
}

// Options are the collaborators of a Server.
type Options struct {
	Pages *engagement.Pages
	Log   logx.Logger
	// Health adds fields to /healthz.
	Health func() map[string]any
	// Client talks to the backend. Nil gets a client with BackendTimeout.
	Client *http.Client
}

type Server struct {
	cfg     Config
	pages   *engagement.Pages
	log     logx.Logger
	health  func() map[string]any
	client  *http.Client
	limiter *ipLimiter
	engine  *gin.Engine
	started time.Time
}

func New(cfg Config, opts Options) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":3000"
	}
	if cfg.BackendTimeout <= 0 {
		cfg.BackendTimeout = 30 * time.Second
	}
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.BackendTimeout}
	}
	s := &Server{
		cfg:     cfg,
		pages:   opts.Pages,
		log:     log.With(logx.String("comp", "http")),
		health:  opts.Health,
		client:  client,
		limiter: newIPLimiter(cfg.RatePerSec, cfg.Burst),
		started: time.Now(),
	}
	s.engine = s.routes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())

	r.GET("/healthz", s.handleHealth)

	eng := r.Group("/engagement", s.identity())
	eng.GET("/stream", s.handleStream)
	page := eng.Group("/pages/:page", s.pageOwner())
	page.POST("/mount", s.handleMount)
	page.POST("/unmount", s.handleUnmount)
	page.POST("/snooze", s.handleSnooze)
	page.POST("/dismiss", s.handleDismiss)
	page.POST("/confirm", s.handleConfirm)

	dbg := r.Group("/debug", s.debugOnly())
	dbg.POST("/engagement/reset", s.identity(), s.handleDebugReset)
	dbg.POST("/engagement/pages/:page/trigger", s.identity(), s.pageOwner(), s.handleDebugTrigger)
	dbg.GET("/pprof/*name", s.handlePprof)
	dbg.POST("/pprof/symbol", s.handlePprof)

	api := r.Group("/api", s.rateLimit())
	api.POST("/upload", s.handleUpload)
	api.POST("/auth/register", s.handleRegister)
	api.GET("/user/profile", s.handleProfile)
	api.GET("/proxy/*path", s.handleProxy)
	api.POST("/proxy/*path", s.handleProxy)

	return r
}

// Run serves until ctx is canceled, then shuts down within grace.
func (s *Server) Run(ctx context.Context, grace time.Duration) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln, grace)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener, grace time.Duration) error {
	srv := &http.Server{
		Handler:           s.engine,
		BaseContext:       func(net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("http server listening", logx.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	if grace <= 0 {
		grace = 10 * time.Second
	}
	sctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	err := srv.Shutdown(sctx)
	<-errCh
	s.log.Info("http server stopped")
	return err
}

func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	}
	if s.pages != nil {
		body["pages"] = s.pages.Len()
	}
	if s.health != nil {
		for k, v := range s.health() {
			body[k] = v
		}
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http request",
			logx.String("method", c.Request.Method),
			logx.String("path", c.FullPath()),
			logx.Int("status", c.Writer.Status()),
			logx.Duration("took", time.Since(start)),
		)
	}
}
