package router

import (
	"sort"
	"strings"
	"sync"
	"time"

	"gapper-terminal/src/logger"
	"gapper-terminal/src/models"
	"gapper-terminal/src/utils"
)

// RoutedEvent pairs an event with where it went.
type RoutedEvent struct {
	Event  models.MStreamEvent `json:"event"`
	Routed Routed              `json:"routed"`
}

// FeedGroup is one day bucket of the live feed, newest bucket first.
type FeedGroup struct {
	Bucket string                `json:"bucket"`
	Events []models.MStreamEvent `json:"events"`
}

// -----------------------------------------------------------------------------
// ChannelStore keeps bounded per-ticker histories plus the live feed. The
// number of ticker channels is itself bounded; the least recently written
// channel is dropped first.
// -----------------------------------------------------------------------------

type ChannelStore struct {
	router   *Router
	channels *utils.BoundedCache[string, *utils.RingBuffer[models.MStreamEvent]]
	live     *utils.RingBuffer[models.MStreamEvent]
	depth    int
	Logger   *logger.Logger
	mu       sync.Mutex // serializes get-or-create on channels
}

// -----------------------------------------------------------------------------

func NewChannelStore(r *Router, maxChannels, depth, liveDepth int) *ChannelStore {
	if maxChannels <= 0 {
		maxChannels = utils.DefaultCacheCapacity
	}
	if depth <= 0 {
		depth = utils.DefaultChannelHistory
	}
	if liveDepth <= 0 {
		liveDepth = utils.DefaultLiveFeedHistory
	}
	return &ChannelStore{
		router:   r,
		channels: utils.NewBoundedCache[string, *utils.RingBuffer[models.MStreamEvent]](maxChannels),
		live:     utils.NewRingBuffer[models.MStreamEvent](liveDepth),
		depth:    depth,
		Logger:   logger.NewLogger(nil, "ChannelStore"),
	}
}

// -----------------------------------------------------------------------------

// Dispatch routes ev and appends it to exactly one history.
func (cs *ChannelStore) Dispatch(ev models.MStreamEvent) RoutedEvent {
	routed := cs.router.Route(ev)
	if routed.IsLive {
		cs.live.Append(ev)
		return RoutedEvent{Event: ev, Routed: routed}
	}
	if routed.Channel == "" {
		// heartbeats and channel-less errors are not kept
		return RoutedEvent{Event: ev, Routed: routed}
	}

	cs.mu.Lock()
	buf, ok := cs.channels.Get(routed.Channel)
	if !ok {
		buf = utils.NewRingBuffer[models.MStreamEvent](cs.depth)
		if cs.channels.Set(routed.Channel, buf) {
			cs.Logger.Debug("Channel limit reached, dropped oldest channel for %s", routed.Channel)
		}
	}
	cs.mu.Unlock()

	buf.Append(ev)
	return RoutedEvent{Event: ev, Routed: routed}
}

// -----------------------------------------------------------------------------

// Feed returns the live feed, oldest first.
func (cs *ChannelStore) Feed() []models.MStreamEvent {
	return cs.live.GetAll()
}

// ChannelEvents returns the history of one ticker channel, oldest first.
func (cs *ChannelStore) ChannelEvents(ticker string) []models.MStreamEvent {
	buf, ok := cs.channels.Peek(strings.ToUpper(ticker))
	if !ok {
		return []models.MStreamEvent{}
	}
	return buf.GetAll()
}

// Channels lists ticker channels with history, alphabetically.
func (cs *ChannelStore) Channels() []string {
	keys := cs.channels.Keys()
	sort.Strings(keys)
	return keys
}

// -----------------------------------------------------------------------------

// GroupedFeed regroups the live feed by day bucket at call time.
// Events without a bucket are grouped with today.
func (cs *ChannelStore) GroupedFeed() []FeedGroup {
	type group struct {
		day    time.Time
		events []models.MStreamEvent
	}
	groups := make(map[string]*group)

	for _, ev := range cs.live.GetAll() {
		label := cs.router.Route(ev).Bucket
		if label == "" {
			label = BucketToday
		}
		g, ok := groups[label]
		if !ok {
			g = &group{day: dayOf(ev.Timestamp.In(cs.router.loc))}
			if label == BucketToday {
				g.day = dayOf(cs.router.now().In(cs.router.loc))
			}
			groups[label] = g
		}
		g.events = append(g.events, ev)
	}

	out := make([]FeedGroup, 0, len(groups))
	for label, g := range groups {
		out = append(out, FeedGroup{Bucket: label, Events: g.events})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return groups[out[i].Bucket].day.After(groups[out[j].Bucket].day)
	})
	return out
}

// -----------------------------------------------------------------------------

// Clear drops every history.
func (cs *ChannelStore) Clear() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.channels.Clear()
	cs.live.Clear()
}
