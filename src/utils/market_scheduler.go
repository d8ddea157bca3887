package utils

import (
	"sync"
	"time"

	"gapper-terminal/src/logger"
)

// MarketScheduler tracks one or more exchange calendars and answers
// "is anything open right now" against an injectable clock.
type MarketScheduler struct {
	Calendars map[string]*TradingCalendar
	Logger    *logger.Logger
	now       func() time.Time
	mu        sync.RWMutex
}

// -----------------------------------------------------------------------------

func NewMarketScheduler(mics []string, l *logger.Logger) *MarketScheduler {
	ms := &MarketScheduler{
		Calendars: make(map[string]*TradingCalendar),
		Logger:    l,
		now:       time.Now,
	}
	ms.MapCalendars(mics)
	return ms
}

// -----------------------------------------------------------------------------

// WithClock replaces the time source.
func (ms *MarketScheduler) WithClock(now func() time.Time) *MarketScheduler {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if now != nil {
		ms.now = now
	}
	return ms
}

// -----------------------------------------------------------------------------

// MapCalendars replaces the tracked set with calendars for mics.
func (ms *MarketScheduler) MapCalendars(mics []string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.Calendars = make(map[string]*TradingCalendar)
	for _, mic := range mics {
		if cal := GetCalendar(mic, ms.Logger); cal != nil {
			ms.Calendars[cal.MIC] = cal
		}
	}

	if ms.Logger != nil {
		ms.Logger.Info("MarketScheduler: tracking %d calendars.", len(ms.Calendars))
	}
}

// -----------------------------------------------------------------------------

// Now returns the scheduler clock reading.
func (ms *MarketScheduler) Now() time.Time {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.now()
}

// -----------------------------------------------------------------------------

// AnyMarketOpen checks if ANY tracked markets are currently open
func (ms *MarketScheduler) AnyMarketOpen() bool {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	now := ms.now().UTC()
	for _, cal := range ms.Calendars {
		if cal.IsOpenOnMinute(now) {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------

// IsStale reports whether asOf is older than window while a market is open.
// Outside market hours nothing is considered stale.
func (ms *MarketScheduler) IsStale(asOf time.Time, window time.Duration) bool {
	if asOf.IsZero() || window <= 0 {
		return false
	}
	if !ms.AnyMarketOpen() {
		return false
	}
	return ms.Now().Sub(asOf) > window
}
