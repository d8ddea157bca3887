package router

import (
	"strings"
	"time"

	"gapper-terminal/src/models"
)

const (
	BucketToday     = "Today's Gappers"
	BucketYesterday = "Yesterday's Gappers"
	bucketDated     = "Gappers for Mon Jan 2"
)

// Routed says where an event belongs. Bucket is empty for event types that
// are not grouped by day.
type Routed struct {
	Channel string `json:"channel"`
	IsLive  bool   `json:"is_live"`
	Bucket  string `json:"bucket,omitempty"`
}

// -----------------------------------------------------------------------------
// Router classifies push events. It holds no per-event state, so routing the
// same event again after the local day rolls over re-buckets it.
// -----------------------------------------------------------------------------

type Router struct {
	loc *time.Location
	now func() time.Time
}

// New creates a router bucketing by calendar day in loc.
func New(loc *time.Location, now func() time.Time) *Router {
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	return &Router{loc: loc, now: now}
}

// -----------------------------------------------------------------------------

// Route returns the channel and, for gapper and card events, the day bucket.
func (r *Router) Route(ev models.MStreamEvent) Routed {
	var out Routed
	if ev.ChannelKey == models.LiveGappersChannel {
		out = Routed{Channel: models.LiveGappersChannel, IsLive: true}
	} else {
		ch := ev.Ticker
		if ch == "" {
			ch = ev.ChannelKey
		}
		out = Routed{Channel: strings.ToUpper(ch)}
	}

	switch ev.EventType {
	case models.EventEnteredGapper, models.EventCardUpdated:
		out.Bucket = r.Bucket(ev.Timestamp)
	case models.EventLeftGapper, models.EventNews, models.EventHeartbeat, models.EventError, models.EventUnknown:
	}
	return out
}

// -----------------------------------------------------------------------------

// Bucket labels ts relative to the router's current day.
func (r *Router) Bucket(ts time.Time) string {
	today := dayOf(r.now().In(r.loc))
	day := dayOf(ts.In(r.loc))

	switch {
	case !day.Before(today):
		return BucketToday
	case day.Equal(today.AddDate(0, 0, -1)):
		return BucketYesterday
	default:
		return day.Format(bucketDated)
	}
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
