package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"gapper-terminal/src/interfaces"
	"gapper-terminal/src/logger"
	"gapper-terminal/src/models"

	"github.com/gin-gonic/gin"
)

const submitTimeout = 30 * time.Second

// -----------------------------------------------------------------------------
// RenderServer exposes a session to external renderers: a small REST API and
// a websocket hub that fans out replies, routed events and state changes.
// -----------------------------------------------------------------------------

type RenderServer struct {
	Config  *models.MConfig
	Logger  *logger.Logger
	session interfaces.ISession
	engine  *gin.Engine
	http    *http.Server

	// WebSocket clients
	clients    map[*Client]struct{}
	broadcast  chan models.MSessionUpdate
	register   chan *Client
	unregister chan *Client
	quit       chan struct{}
	hubOnce    sync.Once
	stopOnce   sync.Once

	latestState models.MSessionSnapshot
	stateMutex  sync.RWMutex
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewRenderServer(cfg *models.MConfig, session interfaces.ISession, log *logger.Logger) *RenderServer {
	if !strings.EqualFold(cfg.LogLevel, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}
	if log == nil {
		log = logger.NewLogger(cfg, "RenderServer")
	}

	s := &RenderServer{
		Config:  cfg,
		Logger:  log,
		session: session,
		engine:  gin.New(),
		clients: make(map[*Client]struct{}),
		// Buffered so session goroutines never wait on the hub
		broadcast:  make(chan models.MSessionUpdate, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
	}
	s.engine.Use(gin.Recovery())

	// Add CORS Middleware
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") || strings.HasPrefix(origin, "http://localhost:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	s.setupRoutes()
	return s
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *RenderServer) setupRoutes() {
	api := s.engine.Group("/api")
	api.GET("/health", s.getHealth)
	api.GET("/state", s.getState)
	api.GET("/feed", s.getFeed)
	api.GET("/channels", s.getChannels)
	api.GET("/channels/:ticker", s.getChannelEvents)
	api.GET("/complete", s.getComplete)
	api.POST("/submit", s.postSubmit)

	// WebSocket endpoint
	s.engine.GET("/ws", s.handleWebSocket)
}

// Handler exposes the router, mainly for tests.
func (s *RenderServer) Handler() http.Handler { return s.engine }

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

// Start runs the hub and serves until Stop. It blocks.
func (s *RenderServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)
	s.Logger.Info("Starting render bridge on %s", addr)

	s.startHub()
	s.http = &http.Server{Addr: addr, Handler: s.engine, ReadHeaderTimeout: 5 * time.Second}
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *RenderServer) startHub() {
	s.hubOnce.Do(func() { go s.handleWebsockets() })
}

// -----------------------------------------------------------------------------

func (s *RenderServer) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.quit)
		if s.http != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err = s.http.Shutdown(ctx)
		}
	})
	return err
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *RenderServer) getHealth(c *gin.Context) {
	s.stateMutex.RLock()
	connections := len(s.clients)
	s.stateMutex.RUnlock()

	snap := s.session.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": connections,
		"session_id":  snap.SessionID,
		"state":       snap.State,
	})
}

func (s *RenderServer) getState(c *gin.Context) {
	c.JSON(http.StatusOK, s.session.Snapshot())
}

func (s *RenderServer) getFeed(c *gin.Context) {
	c.JSON(http.StatusOK, s.session.GroupedFeed())
}

func (s *RenderServer) getChannels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"channels": s.session.Channels()})
}

func (s *RenderServer) getChannelEvents(c *gin.Context) {
	c.JSON(http.StatusOK, s.session.ChannelEvents(c.Param("ticker")))
}

func (s *RenderServer) getComplete(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"commands": s.session.Complete(c.Query("prefix"))})
}

// -----------------------------------------------------------------------------

func (s *RenderServer) postSubmit(c *gin.Context) {
	var req models.MSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, models.MAPIError{Code: "bad_request", Message: "text is required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), submitTimeout)
	defer cancel()
	c.JSON(http.StatusOK, s.session.Submit(ctx, req.Text))
}
