package router

import (
	"testing"
	"time"

	"gapper-terminal/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ny = mustLoad("America/New_York")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestRouteLiveGappersStaysOnLiveChannel(t *testing.T) {
	r := New(ny, fixedClock(time.Date(2025, 6, 11, 9, 0, 0, 0, ny)))
	got := r.Route(models.MStreamEvent{
		EventType:  models.EventEnteredGapper,
		Ticker:     "AMD",
		ChannelKey: models.LiveGappersChannel,
		Timestamp:  time.Date(2025, 6, 11, 8, 0, 0, 0, ny),
	})
	assert.True(t, got.IsLive)
	assert.Equal(t, models.LiveGappersChannel, got.Channel)
	assert.Equal(t, BucketToday, got.Bucket)
}

func TestRouteTickerChannel(t *testing.T) {
	r := New(ny, fixedClock(time.Date(2025, 6, 11, 9, 0, 0, 0, ny)))
	got := r.Route(models.MStreamEvent{EventType: models.EventNews, Ticker: "nvda", ChannelKey: "NVDA"})
	assert.False(t, got.IsLive)
	assert.Equal(t, "NVDA", got.Channel)
	assert.Empty(t, got.Bucket, "news is not day-bucketed")
}

func TestBuckets(t *testing.T) {
	now := time.Date(2025, 6, 11, 0, 30, 0, 0, ny) // just past local midnight
	r := New(ny, fixedClock(now))

	assert.Equal(t, BucketToday, r.Bucket(now.Add(-10*time.Minute)))
	assert.Equal(t, BucketYesterday, r.Bucket(now.Add(-time.Hour)))
	assert.Equal(t, "Gappers for Mon Jun 9", r.Bucket(time.Date(2025, 6, 9, 15, 0, 0, 0, ny)))
	assert.Equal(t, BucketToday, r.Bucket(now.Add(time.Hour)), "small clock skew reads as today")
}

func TestBucketIsRederivedWhenDayRolls(t *testing.T) {
	now := time.Date(2025, 6, 11, 23, 0, 0, 0, ny)
	clock := now
	r := New(ny, func() time.Time { return clock })
	ev := models.MStreamEvent{EventType: models.EventCardUpdated, Ticker: "NVDA", ChannelKey: "NVDA", Timestamp: now}

	assert.Equal(t, BucketToday, r.Route(ev).Bucket)
	clock = now.Add(2 * time.Hour)
	assert.Equal(t, BucketYesterday, r.Route(ev).Bucket)
	assert.Equal(t, now, ev.Timestamp)
}

func TestChannelStoreKeepsLiveOutOfTickerChannels(t *testing.T) {
	now := time.Date(2025, 6, 11, 10, 0, 0, 0, ny)
	cs := NewChannelStore(New(ny, fixedClock(now)), 10, 5, 5)

	cs.Dispatch(models.MStreamEvent{EventType: models.EventEnteredGapper, Ticker: "NVDA", ChannelKey: models.LiveGappersChannel, Timestamp: now})
	cs.Dispatch(models.MStreamEvent{EventType: models.EventCardUpdated, Ticker: "NVDA", ChannelKey: "NVDA", Timestamp: now})
	cs.Dispatch(models.MStreamEvent{EventType: models.EventHeartbeat, Timestamp: now})

	feed := cs.Feed()
	require.Len(t, feed, 1)
	assert.Equal(t, models.EventEnteredGapper, feed[0].EventType)

	for _, ch := range cs.Channels() {
		for _, ev := range cs.ChannelEvents(ch) {
			assert.NotEqual(t, models.LiveGappersChannel, ev.ChannelKey)
		}
	}
	nvda := cs.ChannelEvents("nvda")
	require.Len(t, nvda, 1)
	assert.Equal(t, models.EventCardUpdated, nvda[0].EventType)
	assert.Equal(t, []string{"NVDA"}, cs.Channels())
}

func TestChannelStoreBounds(t *testing.T) {
	now := time.Date(2025, 6, 11, 10, 0, 0, 0, ny)
	cs := NewChannelStore(New(ny, fixedClock(now)), 2, 3, 2)

	for i := 0; i < 5; i++ {
		cs.Dispatch(models.MStreamEvent{EventType: models.EventNews, Ticker: "AAPL", ChannelKey: "AAPL", Timestamp: now})
	}
	cs.Dispatch(models.MStreamEvent{EventType: models.EventNews, Ticker: "TSLA", ChannelKey: "TSLA", Timestamp: now})
	cs.Dispatch(models.MStreamEvent{EventType: models.EventNews, Ticker: "AMD", ChannelKey: "AMD", Timestamp: now})

	assert.Equal(t, []string{"AMD", "TSLA"}, cs.Channels())
	assert.Empty(t, cs.ChannelEvents("AAPL"))

	cs.Clear()
	assert.Empty(t, cs.Channels())
	assert.Empty(t, cs.Feed())
}

func TestGroupedFeed(t *testing.T) {
	now := time.Date(2025, 6, 11, 10, 0, 0, 0, ny)
	cs := NewChannelStore(New(ny, fixedClock(now)), 10, 10, 10)
	live := func(ts time.Time, ticker string) models.MStreamEvent {
		return models.MStreamEvent{EventType: models.EventEnteredGapper, Ticker: ticker, ChannelKey: models.LiveGappersChannel, Timestamp: ts}
	}

	cs.Dispatch(live(now.AddDate(0, 0, -3), "OLD"))
	cs.Dispatch(live(now.AddDate(0, 0, -1), "YDAY"))
	cs.Dispatch(live(now.Add(-time.Hour), "AMD"))
	cs.Dispatch(live(now, "NVDA"))

	groups := cs.GroupedFeed()
	require.Len(t, groups, 3)
	assert.Equal(t, BucketToday, groups[0].Bucket)
	assert.Len(t, groups[0].Events, 2)
	assert.Equal(t, BucketYesterday, groups[1].Bucket)
	assert.Equal(t, "Gappers for Sun Jun 8", groups[2].Bucket)
}
