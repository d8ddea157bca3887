package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"sort"
	"strings"
	"sync"
	"time"

	"gapper-terminal/src/backend"
	"gapper-terminal/src/gateway"
	"gapper-terminal/src/helpers"
	"gapper-terminal/src/logger"
	"gapper-terminal/src/models"
	"gapper-terminal/src/utils"
)

// Source opens one push connection. Handshake failures are *helpers.StreamError.
type Source interface {
	OpenStream(ctx context.Context) (iter.Seq2[models.MStreamEvent, error], error)
}

// CardFetcher is used by fallback polling for tracked tickers.
type CardFetcher interface {
	FetchCard(ctx context.Context, ticker string) (gateway.Result, error)
}

// GapperSource is used by fallback polling for the live_gappers channel.
type GapperSource interface {
	GetTopGappers(ctx context.Context, limit int) ([]models.MTopGapper, error)
}

// Options tunes reconnect and polling behaviour.
type Options struct {
	Backoff      helpers.Backoff
	PollInterval time.Duration
	EventBuffer  int
	GapperLimit  int
	Now          func() time.Time
}

// -----------------------------------------------------------------------------
// Manager owns the push connection lifecycle for one session. Every state
// change goes through transition under mu; other components only observe.
// -----------------------------------------------------------------------------

type Manager struct {
	source  Source
	cards   CardFetcher
	gappers GapperSource
	opts    Options
	Logger  *logger.Logger

	mu        sync.Mutex
	state     models.ConnectionState
	reason    models.FallbackReason
	observers []chan models.MStateChange
	tracked   map[string]struct{}
	started   bool
	closing   bool

	events    chan models.MStreamEvent
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// -----------------------------------------------------------------------------

func NewManager(source Source, cards CardFetcher, gappers GapperSource, opts Options, log *logger.Logger) *Manager {
	if opts.Backoff.Initial <= 0 {
		opts.Backoff = helpers.DefaultBackoff()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 15 * time.Second
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 256
	}
	if opts.GapperLimit <= 0 {
		opts.GapperLimit = utils.DefaultScanLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = logger.NewLogger(nil, "Transport")
	}

	return &Manager{
		source:  source,
		cards:   cards,
		gappers: gappers,
		opts:    opts,
		Logger:  log,
		state:   models.StateConnecting,
		tracked: make(map[string]struct{}),
		events:  make(chan models.MStreamEvent, opts.EventBuffer),
	}
}

// -----------------------------------------------------------------------------

// Start begins connecting. It may be called once.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closing {
		return fmt.Errorf("transport manager is closed")
	}
	if m.started {
		return fmt.Errorf("transport manager already started")
	}
	m.started = true

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.wg.Add(1)
	go m.run(runCtx)
	return nil
}

// -----------------------------------------------------------------------------

// Close cancels reconnect timers and polling, then moves to closed.
// Calling it again is a no-op.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closing = true
		cancel := m.cancel
		m.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		m.wg.Wait()

		m.mu.Lock()
		m.transitionLocked(models.StateClosed, models.ReasonNone, 0)
		for _, ch := range m.observers {
			close(ch)
		}
		m.observers = nil
		m.mu.Unlock()

		close(m.events)
	})
	return nil
}

// -----------------------------------------------------------------------------

// State returns the current connection state.
func (m *Manager) State() models.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Reason returns why the manager fell back to polling, if it did.
func (m *Manager) Reason() models.FallbackReason {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reason
}

// Events delivers pushed and polled events in arrival order. It is closed by Close.
func (m *Manager) Events() <-chan models.MStreamEvent {
	return m.events
}

// -----------------------------------------------------------------------------

// Subscribe returns a channel receiving every subsequent state change. Slow
// observers miss changes rather than stall the manager.
func (m *Manager) Subscribe() <-chan models.MStateChange {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan models.MStateChange, 16)
	if m.state == models.StateClosed {
		close(ch)
		return ch
	}
	m.observers = append(m.observers, ch)
	return ch
}

// -----------------------------------------------------------------------------

// Track adds tickers to the set refreshed while fallback polling.
func (m *Manager) Track(tickers ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tickers {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			m.tracked[t] = struct{}{}
		}
	}
}

// Untrack removes a ticker from polling.
func (m *Manager) Untrack(ticker string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tracked, strings.ToUpper(ticker))
}

// Tracked returns the polled tickers alphabetically.
func (m *Manager) Tracked() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.tracked))
	for t := range m.tracked {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// -----------------------------------------------------------------------------

func (m *Manager) transition(to models.ConnectionState, reason models.FallbackReason, attempt int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(to, reason, attempt)
}

func (m *Manager) transitionLocked(to models.ConnectionState, reason models.FallbackReason, attempt int) bool {
	from := m.state
	if from == to || !models.CanTransition(from, to) {
		return false
	}
	m.state = to
	if to == models.StateFallbackPolling {
		m.reason = reason
	}

	change := models.MStateChange{From: from, To: to, Reason: reason, Attempt: attempt, At: m.opts.Now()}
	for _, ch := range m.observers {
		select {
		case ch <- change:
		default:
			m.Logger.Warning("Observer lagging, dropped %s -> %s", from, to)
		}
	}

	if reason != models.ReasonNone {
		m.Logger.Warning("Connection %s -> %s (%s)", from, to, reason)
	} else {
		m.Logger.Info("Connection %s -> %s", from, to)
	}
	return true
}

// -----------------------------------------------------------------------------

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	failures := 0
	for {
		seq, err := m.source.OpenStream(ctx)
		if ctx.Err() != nil {
			return
		}

		if err != nil {
			if reason := fallbackReason(err); reason != models.ReasonNone {
				m.enterFallback(ctx, reason, failures)
				return
			}
			failures++
			m.Logger.Warning("Stream handshake failed (attempt %d/%d): %v", failures, m.opts.Backoff.MaxAttempts, err)
			m.transition(models.StateReconnecting, models.ReasonNone, failures)
		} else {
			m.transition(models.StateOpen, models.ReasonNone, 0)
			delivered, reason := m.consume(ctx, seq)
			if ctx.Err() != nil {
				return
			}
			m.transition(models.StateReconnecting, models.ReasonNone, failures+1)
			if reason != models.ReasonNone {
				m.enterFallback(ctx, reason, failures)
				return
			}
			// A stream that drops before delivering anything counts against the budget.
			if delivered > 0 {
				failures = 0
			} else {
				failures++
			}
		}

		if failures > 0 && m.opts.Backoff.Exhausted(failures+1) {
			m.enterFallback(ctx, models.ReasonReconnectExhausted, failures)
			return
		}
		if err := helpers.Sleep(ctx, m.opts.Backoff.Delay(max(failures, 1))); err != nil {
			return
		}
	}
}

// -----------------------------------------------------------------------------

func fallbackReason(err error) models.FallbackReason {
	var se *helpers.StreamError
	if errors.As(err, &se) && !se.Transient() {
		return se.Reason
	}
	return models.ReasonNone
}

// -----------------------------------------------------------------------------

// consume forwards events until the sequence ends. It returns the number of
// events delivered and a fallback reason when the server asked us to stop.
func (m *Manager) consume(ctx context.Context, seq iter.Seq2[models.MStreamEvent, error]) (int, models.FallbackReason) {
	delivered := 0
	for ev, err := range seq {
		if err != nil {
			m.Logger.Warning("Stream dropped: %v", err)
			return delivered, models.ReasonNone
		}
		if backend.IsTooManyStreamsEvent(ev) {
			return delivered, models.ReasonTooManyStreams
		}
		if !m.emit(ctx, ev) {
			return delivered, models.ReasonNone
		}
		delivered++
	}
	m.Logger.Info("Stream closed by server after %d events", delivered)
	return delivered, models.ReasonNone
}

func (m *Manager) emit(ctx context.Context, ev models.MStreamEvent) bool {
	select {
	case m.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// -----------------------------------------------------------------------------
// Fallback polling
// -----------------------------------------------------------------------------

func (m *Manager) enterFallback(ctx context.Context, reason models.FallbackReason, attempt int) {
	m.mu.Lock()
	// connecting and reconnecting may both fall back; open must pass through reconnecting first
	if m.state == models.StateOpen {
		m.transitionLocked(models.StateReconnecting, models.ReasonNone, attempt)
	}
	m.transitionLocked(models.StateFallbackPolling, reason, attempt)
	m.mu.Unlock()

	m.poll(ctx)
}

// -----------------------------------------------------------------------------

func (m *Manager) poll(ctx context.Context) {
	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	leaders := map[string]struct{}{}
	for {
		leaders = m.pollOnce(ctx, leaders)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// -----------------------------------------------------------------------------

func (m *Manager) pollOnce(ctx context.Context, leaders map[string]struct{}) map[string]struct{} {
	for _, t := range m.Tracked() {
		if m.cards == nil || ctx.Err() != nil {
			return leaders
		}
		res, err := m.cards.FetchCard(ctx, t)
		if err != nil {
			m.Logger.Warning("Polling card %s failed: %v", t, err)
			continue
		}
		if res.Kind != gateway.KindOK || res.Card.IsMissing {
			continue
		}
		payload, _ := json.Marshal(res.Card.Card)
		m.emit(ctx, models.MStreamEvent{
			EventType:  models.EventCardUpdated,
			Ticker:     t,
			Payload:    payload,
			Timestamp:  m.opts.Now(),
			ChannelKey: t,
		})
	}

	if m.gappers == nil || ctx.Err() != nil {
		return leaders
	}
	rows, err := m.gappers.GetTopGappers(ctx, m.opts.GapperLimit)
	if err != nil {
		m.Logger.Warning("Polling top gappers failed: %v", err)
		return leaders
	}

	next := make(map[string]struct{}, len(rows))
	now := m.opts.Now()
	for i, row := range rows {
		next[row.Ticker] = struct{}{}
		if _, known := leaders[row.Ticker]; known {
			continue
		}
		payload, _ := json.Marshal(models.MGapperEntry{Ticker: row.Ticker, GapPercent: row.Score.InexactFloat64(), Rank: i + 1})
		m.emit(ctx, models.MStreamEvent{
			EventType:  models.EventEnteredGapper,
			Ticker:     row.Ticker,
			Payload:    payload,
			Timestamp:  now,
			ChannelKey: models.LiveGappersChannel,
		})
	}
	for t := range leaders {
		if _, still := next[t]; !still {
			payload, _ := json.Marshal(models.MGapperEntry{Ticker: t})
			m.emit(ctx, models.MStreamEvent{
				EventType:  models.EventLeftGapper,
				Ticker:     t,
				Payload:    payload,
				Timestamp:  now,
				ChannelKey: models.LiveGappersChannel,
			})
		}
	}
	return next
}
