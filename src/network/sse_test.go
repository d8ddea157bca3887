package network

import (
	"io"
	"strings"
	"testing"
	"time"

	"gapper-terminal/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEReaderFraming(t *testing.T) {
	raw := ": keepalive\n" +
		"event: card_updated\n" +
		"id: 7\n" +
		"data: {\"a\":1,\n" +
		"data: \"b\":2}\n" +
		"\n" +
		"\n" +
		"data: tail-without-blank-line"

	r := NewSSEReader(strings.NewReader(raw))

	name, data, err := r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, "card_updated", name)
	assert.Equal(t, "{\"a\":1,\n\"b\":2}", string(data))

	name, data, err = r.ReadEvent()
	require.NoError(t, err)
	assert.Empty(t, name)
	assert.Equal(t, "tail-without-blank-line", string(data))

	_, _, err = r.ReadEvent()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecodeEventChannels(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	ev, err := DecodeEvent("", []byte(`{"event_type":"card_updated","ticker":"nvda","payload":{"x":1},"timestamp":1700000100}`), now)
	require.NoError(t, err)
	assert.Equal(t, models.EventCardUpdated, ev.EventType)
	assert.Equal(t, "NVDA", ev.Ticker)
	assert.Equal(t, "NVDA", ev.ChannelKey)
	assert.Equal(t, int64(1700000100), ev.Timestamp.Unix())

	ev, err = DecodeEvent("", []byte(`{"event_type":"entered_gapper","ticker":"live_gappers","timestamp":"2025-06-11T13:30:00Z"}`), now)
	require.NoError(t, err)
	assert.Equal(t, models.LiveGappersChannel, ev.ChannelKey)
	assert.Empty(t, ev.Ticker)

	ev, err = DecodeEvent("", []byte(`{"event_type":"entered_gapper","ticker":"AMD","channel":"live_gappers","timestamp":1700000100000}`), now)
	require.NoError(t, err)
	assert.Equal(t, models.LiveGappersChannel, ev.ChannelKey)
	assert.Equal(t, "AMD", ev.Ticker)
	assert.Equal(t, int64(1700000100), ev.Timestamp.Unix())
}

func TestDecodeEventFallbacks(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	ev, err := DecodeEvent("heartbeat", []byte(`{}`), now)
	require.NoError(t, err)
	assert.Equal(t, models.EventHeartbeat, ev.EventType)
	assert.Equal(t, now, ev.Timestamp)

	ev, err = DecodeEvent("", []byte(`{"event_type":"split_announced"}`), now)
	require.NoError(t, err)
	assert.Equal(t, models.EventUnknown, ev.EventType)

	_, err = DecodeEvent("", []byte(`not json`), now)
	assert.Error(t, err)
}
