package devapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gapper-terminal/src/logger"
	"gapper-terminal/src/models"

	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------

// Faults switches the dev backend into misbehaving modes.
type Faults struct {
	StreamContentType string // served instead of text/event-stream when set
	StreamStatus      int    // non-zero: reject the stream handshake with this status
	StreamErrorCode   string // error body code sent with StreamStatus
	DropAfter         int    // close each stream after this many events
	CardStatus        int    // non-zero: card endpoint fails with this status
	ActionStatus      int    // non-zero: analyze/pin fail with this status
}

// Hooks run inside handlers before the response is written. They may block.
type Hooks struct {
	BeforeCard   func(ticker string)
	BeforeAction func(ticker, action string)
}

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

type Server struct {
	Store  *Store
	Logger *logger.Logger
	engine *gin.Engine

	mu          sync.RWMutex
	faults      Faults
	hooks       Hooks
	subscribers map[chan models.MWireEvent]struct{}

	cardRequests   atomic.Int64
	notModified    atomic.Int64
	actionRequests atomic.Int64
	streamConnects atomic.Int64
	gapperRequests atomic.Int64
}

// -----------------------------------------------------------------------------

func NewServer(store *Store, log *logger.Logger) *Server {
	if store == nil {
		store = NewStore()
	}
	if log == nil {
		log = logger.NewLogger(nil, "DevAPI")
	}

	s := &Server{
		Store:       store,
		Logger:      log,
		engine:      gin.New(),
		subscribers: make(map[chan models.MWireEvent]struct{}),
	}
	s.engine.Use(gin.Recovery())
	s.setupRoutes()
	return s
}

// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	api := s.engine.Group("/api")
	api.GET("/health", s.getHealth)
	api.GET("/cards/:ticker", s.getCard)
	api.POST("/tickers/:ticker/:action", s.postAction)
	api.GET("/top-gappers", s.getTopGappers)
	api.GET("/stream", s.getStream)
}

// Handler exposes the router for http.Server or httptest.
func (s *Server) Handler() http.Handler { return s.engine }

// -----------------------------------------------------------------------------

func (s *Server) SetFaults(f Faults) {
	s.mu.Lock()
	s.faults = f
	s.mu.Unlock()
}

func (s *Server) SetHooks(h Hooks) {
	s.mu.Lock()
	s.hooks = h
	s.mu.Unlock()
}

func (s *Server) snapshot() (Faults, Hooks) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.faults, s.hooks
}

// -----------------------------------------------------------------------------

// Stats is a point-in-time view of request counters.
type Stats struct {
	CardRequests   int64 `json:"card_requests"`
	NotModified    int64 `json:"not_modified"`
	ActionRequests int64 `json:"action_requests"`
	StreamConnects int64 `json:"stream_connects"`
	GapperRequests int64 `json:"gapper_requests"`
	Subscribers    int   `json:"subscribers"`
}

func (s *Server) Stats() Stats {
	s.mu.RLock()
	subs := len(s.subscribers)
	s.mu.RUnlock()
	return Stats{
		CardRequests:   s.cardRequests.Load(),
		NotModified:    s.notModified.Load(),
		ActionRequests: s.actionRequests.Load(),
		StreamConnects: s.streamConnects.Load(),
		GapperRequests: s.gapperRequests.Load(),
		Subscribers:    subs,
	}
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *Server) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "stats": s.Stats()})
}

// -----------------------------------------------------------------------------

func (s *Server) getCard(c *gin.Context) {
	s.cardRequests.Add(1)
	ticker := strings.ToUpper(c.Param("ticker"))
	faults, hooks := s.snapshot()
	if hooks.BeforeCard != nil {
		hooks.BeforeCard(ticker)
	}

	if faults.CardStatus != 0 {
		apiError(c, faults.CardStatus, "card_unavailable", "card service degraded")
		return
	}

	body, etag, ok := s.Store.Card(ticker)
	if !ok {
		apiError(c, http.StatusNotFound, "not_found", fmt.Sprintf("no card for %s", ticker))
		return
	}

	c.Header("ETag", etag)
	c.Header("Cache-Control", "no-cache")
	if match := c.GetHeader("If-None-Match"); match != "" && match == etag {
		s.notModified.Add(1)
		c.Status(http.StatusNotModified)
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}

// -----------------------------------------------------------------------------

func (s *Server) postAction(c *gin.Context) {
	s.actionRequests.Add(1)
	ticker := strings.ToUpper(c.Param("ticker"))
	action := c.Param("action")
	faults, hooks := s.snapshot()

	if action != "analyze" && action != "pin" {
		apiError(c, http.StatusNotFound, "unknown_action", action)
		return
	}
	if hooks.BeforeAction != nil {
		hooks.BeforeAction(ticker, action)
	}
	if faults.ActionStatus != 0 {
		apiError(c, faults.ActionStatus, "action_failed", fmt.Sprintf("%s %s failed", action, ticker))
		return
	}

	msg := fmt.Sprintf("%s queued for analysis", ticker)
	if action == "pin" {
		msg = fmt.Sprintf("%s pinned", ticker)
	}
	c.JSON(http.StatusAccepted, models.MActionAck{Status: "accepted", Message: msg})
}

// -----------------------------------------------------------------------------

func (s *Server) getTopGappers(c *gin.Context) {
	s.gapperRequests.Add(1)
	limit := 10
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 100 {
			apiError(c, http.StatusBadRequest, "bad_limit", "limit must be 1-100")
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, s.Store.Gappers(limit))
}

// -----------------------------------------------------------------------------

func (s *Server) getStream(c *gin.Context) {
	s.streamConnects.Add(1)
	faults, _ := s.snapshot()

	if faults.StreamStatus != 0 {
		apiError(c, faults.StreamStatus, faults.StreamErrorCode, "stream refused")
		return
	}
	if faults.StreamContentType != "" {
		c.Data(http.StatusOK, faults.StreamContentType, []byte(`{"events":[]}`))
		return
	}

	ch := make(chan models.MWireEvent, 64)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.subscribers, ch)
		s.mu.Unlock()
	}()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	sent := 0
	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			data, _ := json.Marshal(ev)
			if _, err := fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", ev.EventType, data); err != nil {
				return
			}
			c.Writer.Flush()
			sent++
			if faults.DropAfter > 0 && sent >= faults.DropAfter {
				return
			}
		}
	}
}

// -----------------------------------------------------------------------------

// Publish sends ev to every open stream. Slow subscribers drop events.
func (s *Server) Publish(ev models.MWireEvent) int {
	if len(ev.Timestamp) == 0 {
		ev.Timestamp = json.RawMessage(strconv.FormatInt(time.Now().Unix(), 10))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	delivered := 0
	for ch := range s.subscribers {
		select {
		case ch <- ev:
			delivered++
		default:
			s.Logger.Warning("Dropping %s event for slow subscriber", ev.EventType)
		}
	}
	return delivered
}

// WaitForSubscribers blocks until n streams are attached or ctx ends.
func (s *Server) WaitForSubscribers(ctx context.Context, n int) error {
	t := time.NewTicker(5 * time.Millisecond)
	defer t.Stop()
	for {
		if s.Stats().Subscribers >= n {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// -----------------------------------------------------------------------------

func apiError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, models.MAPIError{Code: code, Message: message})
}
