package models

import (
	"encoding/json"
	"time"
)

// LiveGappersChannel is the reserved ad-hoc broadcast channel.
const LiveGappersChannel = "live_gappers"

// EventType tags a push event.
type EventType string

const (
	EventCardUpdated   EventType = "card_updated"
	EventEnteredGapper EventType = "entered_gapper"
	EventLeftGapper    EventType = "left_gapper"
	EventNews          EventType = "news"
	EventHeartbeat     EventType = "heartbeat"
	EventError         EventType = "error"
	EventUnknown       EventType = "unknown"
)

// -----------------------------------------------------------------------------

// ParseEventType maps a wire value onto the closed set, folding anything else into EventUnknown.
func ParseEventType(s string) EventType {
	switch t := EventType(s); t {
	case EventCardUpdated, EventEnteredGapper, EventLeftGapper, EventNews, EventHeartbeat, EventError:
		return t
	}
	return EventUnknown
}

// -----------------------------------------------------------------------------

// MStreamEvent is one inbound push event, immutable once received.
// ChannelKey is the wire channel, or the ticker when no channel was sent.
type MStreamEvent struct {
	EventType  EventType       `json:"event_type"`
	Ticker     string          `json:"ticker,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	ChannelKey string          `json:"channel_key"`
}

// MWireEvent is the JSON body carried in an SSE data field.
type MWireEvent struct {
	EventType string          `json:"event_type"`
	Ticker    string          `json:"ticker,omitempty"`
	Channel   string          `json:"channel,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp json.RawMessage `json:"timestamp"` // unix seconds, unix millis or RFC 3339
}

// MGapperEntry is the payload of entered_gapper / left_gapper events.
type MGapperEntry struct {
	Ticker     string  `json:"ticker"`
	GapPercent float64 `json:"gap_percent"`
	Rank       int     `json:"rank"`
}
