package models

import "time"

// UpdateKind tags what a session update carries.
type UpdateKind string

const (
	UpdateReply UpdateKind = "reply"
	UpdateEvent UpdateKind = "event"
	UpdateState UpdateKind = "state"
)

// MSessionUpdate is pushed to renderers for every reply, routed event and
// connection state change.
type MSessionUpdate struct {
	Kind    UpdateKind    `json:"kind"`
	Reply   *MChatReply   `json:"reply,omitempty"`
	Event   *MStreamEvent `json:"event,omitempty"`
	Channel string        `json:"channel,omitempty"`
	IsLive  bool          `json:"is_live,omitempty"`
	Bucket  string        `json:"bucket,omitempty"`
	State   *MStateChange `json:"state,omitempty"`
}

// MSessionSnapshot is the point-in-time status served to newly attached renderers.
type MSessionSnapshot struct {
	SessionID     string          `json:"session_id"`
	State         ConnectionState `json:"state"`
	Reason        FallbackReason  `json:"reason,omitempty"`
	Tracked       []string        `json:"tracked"`
	Channels      []string        `json:"channels"`
	LiveFeedSize  int             `json:"live_feed_size"`
	CardCacheSize int             `json:"card_cache_size"`
	ETagCacheSize int             `json:"etag_cache_size"`
	Evictions     uint64          `json:"evictions"`
	Submissions   int64           `json:"submissions"`
	Errors        int64           `json:"errors"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
