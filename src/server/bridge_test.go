package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"gapper-terminal/src/config"
	"gapper-terminal/src/models"
	"gapper-terminal/src/router"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSession struct {
	mu        sync.Mutex
	submitted []string
	onSubmit  func(models.MChatReply)
}

func (f *fakeSession) Submit(_ context.Context, raw string) models.MChatReply {
	f.mu.Lock()
	f.submitted = append(f.submitted, raw)
	f.mu.Unlock()
	reply := models.MChatReply{ID: "r1", Text: "echo " + raw, Sections: []models.MCardSection{}}
	if f.onSubmit != nil {
		f.onSubmit(reply)
	}
	return reply
}

func (f *fakeSession) Snapshot() models.MSessionSnapshot {
	return models.MSessionSnapshot{SessionID: "s1", State: models.StateOpen, Channels: []string{"NVDA"}}
}

func (f *fakeSession) GroupedFeed() []router.FeedGroup {
	return []router.FeedGroup{{Bucket: router.BucketToday, Events: []models.MStreamEvent{{EventType: models.EventEnteredGapper, Ticker: "AMD"}}}}
}

func (f *fakeSession) Channels() []string { return []string{"NVDA"} }

func (f *fakeSession) ChannelEvents(ticker string) []models.MStreamEvent {
	return []models.MStreamEvent{{EventType: models.EventCardUpdated, Ticker: ticker, ChannelKey: ticker}}
}

func (f *fakeSession) Complete(prefix string) []string { return []string{"/" + prefix + "x"} }

func newTestServer(t *testing.T) (*RenderServer, *httptest.Server, *fakeSession) {
	t.Helper()
	sess := &fakeSession{}
	srv := NewRenderServer(config.Default().MConfig, sess, nil)
	sess.onSubmit = func(r models.MChatReply) {
		srv.Broadcast(models.MSessionUpdate{Kind: models.UpdateReply, Reply: &r})
	}
	srv.startHub()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Stop()
	})
	return srv, ts, sess
}

// -----------------------------------------------------------------------------

func TestRESTEndpoints(t *testing.T) {
	_, ts, sess := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	var health map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "open", health["state"])

	resp, err = http.Get(ts.URL + "/api/state")
	require.NoError(t, err)
	var snap models.MSessionSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	resp.Body.Close()
	assert.Equal(t, "s1", snap.SessionID)

	resp, err = http.Get(ts.URL + "/api/feed")
	require.NoError(t, err)
	var feed []router.FeedGroup
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&feed))
	resp.Body.Close()
	require.Len(t, feed, 1)
	assert.Equal(t, "AMD", feed[0].Events[0].Ticker)

	resp, err = http.Post(ts.URL+"/api/submit", "application/json", bytes.NewBufferString(`{"text":"$NVDA"}`))
	require.NoError(t, err)
	var reply models.MChatReply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "echo $NVDA", reply.Text)
	assert.Equal(t, []string{"$NVDA"}, sess.submitted)

	resp, err = http.Post(ts.URL+"/api/submit", "application/json", bytes.NewBufferString(`{"text":"  "}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// -----------------------------------------------------------------------------

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	return conn
}

type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func read(t *testing.T, conn *websocket.Conn) inbound {
	t.Helper()
	var msg inbound
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebsocketSnapshotThenUpdates(t *testing.T) {
	srv, ts, _ := newTestServer(t)
	srv.UpdateAllDatas(models.MSessionSnapshot{SessionID: "s1", State: models.StateFallbackPolling})

	conn := dial(t, ts)
	first := read(t, conn)
	assert.Equal(t, models.BridgeSnapshot, first.Type)
	var snap models.MSessionSnapshot
	require.NoError(t, json.Unmarshal(first.Data, &snap))
	assert.Equal(t, models.StateFallbackPolling, snap.State)

	require.NoError(t, conn.WriteJSON(models.MClientCommand{Command: "submit", Text: "hello"}))
	msg := read(t, conn)
	assert.Equal(t, models.BridgeUpdate, msg.Type)
	var u models.MSessionUpdate
	require.NoError(t, json.Unmarshal(msg.Data, &u))
	assert.Equal(t, models.UpdateReply, u.Kind)
	assert.Equal(t, "echo hello", u.Reply.Text)
}

func TestWebsocketSubscriptionFiltersTickerEvents(t *testing.T) {
	srv, ts, _ := newTestServer(t)
	conn := dial(t, ts)
	read(t, conn) // snapshot

	require.NoError(t, conn.WriteJSON(models.MClientCommand{Command: "subscribe", Channels: []string{"nvda", "$NVDA", ""}}))
	ack := read(t, conn)
	assert.Equal(t, models.BridgeSubscribed, ack.Type)
	assert.JSONEq(t, `["NVDA"]`, string(ack.Data))

	srv.Broadcast(models.MSessionUpdate{Kind: models.UpdateEvent, Channel: "TSLA", Event: &models.MStreamEvent{Ticker: "TSLA"}})
	srv.Broadcast(models.MSessionUpdate{Kind: models.UpdateEvent, Channel: models.LiveGappersChannel, IsLive: true, Event: &models.MStreamEvent{Ticker: "AMD"}})
	srv.Broadcast(models.MSessionUpdate{Kind: models.UpdateEvent, Channel: "NVDA", Event: &models.MStreamEvent{Ticker: "NVDA"}})

	var got []string
	for range 2 {
		var u models.MSessionUpdate
		require.NoError(t, json.Unmarshal(read(t, conn).Data, &u))
		got = append(got, u.Channel)
	}
	assert.Equal(t, []string{models.LiveGappersChannel, "NVDA"}, got)
}

func TestBadClientCommandGetsError(t *testing.T) {
	_, ts, _ := newTestServer(t)
	conn := dial(t, ts)
	read(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"command":"dance"}`)))
	msg := read(t, conn)
	assert.Equal(t, models.BridgeError, msg.Type)
}

func TestBroadcastIgnoresForeignPayloads(t *testing.T) {
	srv, _, _ := newTestServer(t)
	srv.Broadcast(map[string]interface{}{"raw_data": 1})
	srv.UpdateAllDatas("nope")
	assert.Empty(t, srv.broadcast)
}
