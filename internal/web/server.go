// Package web serves the minting page and its JSON API on a loopback address.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"epics/internal/domain"
	"epics/internal/observability"
	"epics/internal/session"
)

//go:embed templates/*.html
var templatesFS embed.FS

// ErrNotLoopback is returned for listen addresses reachable from other hosts.
var ErrNotLoopback = errors.New("listen address must be loopback")

// Controller is the session surface the page drives.
type Controller interface {
	Snapshot() session.Snapshot
	Connect(ctx context.Context) error
	Mint(ctx context.Context) error
	Refresh(ctx context.Context) error
	Disconnect()
	OnState(fn func(session.Snapshot)) (func(), error)
	OnNotice(fn func(domain.Notice)) (func(), error)
}

// Server hosts the page, the API, live updates, health and metrics.
type Server struct {
	ctrl       Controller
	router     *gin.Engine
	hub        *Hub
	httpServer *http.Server
	listener   net.Listener
	logger     *zap.Logger

	// bg outlives requests; background mints run on it.
	bg       context.Context
	stop     context.CancelFunc
	wg       sync.WaitGroup
	cancels  []func()
	stopOnce sync.Once
}

// New creates a server for addr. The controller's updates are pushed to
// every open page.
func New(ctrl Controller, addr string, logger *zap.Logger) (*Server, error) {
	if err := checkLoopback(addr); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("web")

	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(requestLogger(logger), gin.Recovery())
	router.SetHTMLTemplate(tmpl)

	bg, stop := context.WithCancel(context.Background())
	s := &Server{
		ctrl:   ctrl,
		router: router,
		hub:    newHub(logger),
		logger: logger,
		bg:     bg,
		stop:   stop,
	}

	cancelState, err := ctrl.OnState(s.hub.onState)
	if err != nil {
		stop()
		return nil, err
	}
	cancelNotice, err := ctrl.OnNotice(s.hub.onNotice)
	if err != nil {
		cancelState()
		stop()
		return nil, err
	}
	s.cancels = []func(){cancelState, cancelNotice}

	s.setupRoutes()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.GET("/", s.handleIndex)
	s.router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	s.router.GET("/metrics", gin.WrapH(observability.Handler()))
	s.router.GET("/ws", func(c *gin.Context) {
		s.hub.serve(c.Writer, c.Request, s.ctrl.Snapshot())
	})

	api := s.router.Group("/api")
	api.GET("/state", s.handleState)
	api.POST("/connect", s.handleConnect)
	api.POST("/mint", s.handleMint)
	api.POST("/refresh", s.handleRefresh)
	api.POST("/disconnect", s.handleDisconnect)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	s.listener = ln
	s.logger.Info("serving page", zap.String("url", "http://"+ln.Addr().String()))

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.httpServer.Addr
	}
	return s.listener.Addr().String()
}

// Stop detaches from the controller, waits for background mints and
// shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		for _, cancel := range s.cancels {
			cancel()
		}
		s.stop()

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			s.logger.Warn("background mint still running at shutdown")
		}

		s.hub.closeAll()
		if s.listener != nil {
			err = s.httpServer.Shutdown(ctx)
		}
	})
	return err
}

func checkLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("listen address %q: %w", addr, err)
	}
	if host == "localhost" {
		return nil
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return nil
	}
	return fmt.Errorf("%q: %w", addr, ErrNotLoopback)
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
