package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gapper-terminal/src/backend"
	"gapper-terminal/src/config"
	"gapper-terminal/src/devapi"
	"gapper-terminal/src/helpers"
	"gapper-terminal/src/interfaces"
	"gapper-terminal/src/models"
	"gapper-terminal/src/network"
	"gapper-terminal/src/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	gw    *Gateway
	dev   *devapi.Server
	cards *utils.BoundedCache[string, models.MCardViewModel]
	etags *utils.BoundedCache[string, string]
}

func newFixture(t *testing.T, capacity int, opts ...Option) fixture {
	t.Helper()
	store := devapi.NewStore()
	store.Seed(time.Now())
	dev := devapi.NewServer(store, nil)
	ts := httptest.NewServer(dev.Handler())
	t.Cleanup(ts.Close)

	cfg := config.Default()
	client := backend.NewClient(ts.URL, network.NewNetworkManager(cfg.MConfig, nil), nil)
	cards := utils.NewBoundedCache[string, models.MCardViewModel](capacity)
	etags := utils.NewBoundedCache[string, string](capacity)
	return fixture{gw: New(client, cards, etags, opts...), dev: dev, cards: cards, etags: etags}
}

func TestSecondFetchIsNotModified(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()

	first, err := f.gw.FetchCard(ctx, "nvda")
	require.NoError(t, err)
	assert.Equal(t, KindOK, first.Kind)
	assert.Equal(t, "NVDA", first.Card.Ticker)
	assert.NotEmpty(t, first.Card.ETag)

	second, err := f.gw.FetchCard(ctx, "NVDA")
	require.NoError(t, err)
	assert.Equal(t, KindNotModified, second.Kind)
	assert.Equal(t, first.Card, second.Card)
	assert.Equal(t, int64(1), f.dev.Stats().NotModified)
}

func TestChangedCardIsRefetched(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()

	first, err := f.gw.FetchCard(ctx, "TSLA")
	require.NoError(t, err)

	card, _ := f.dev.Store.CardValue("TSLA")
	card.Summary = "Reversal off support."
	f.dev.Store.PutCard(card)

	second, err := f.gw.FetchCard(ctx, "TSLA")
	require.NoError(t, err)
	assert.Equal(t, KindOK, second.Kind)
	assert.NotEqual(t, first.Card.ETag, second.Card.ETag)
	assert.Equal(t, "Reversal off support.", second.Card.Card.Summary)
}

func TestMissingCard(t *testing.T) {
	f := newFixture(t, 50)
	res, err := f.gw.FetchCard(context.Background(), "ZZZZ")
	require.NoError(t, err)
	assert.Equal(t, KindOK, res.Kind)
	assert.True(t, res.Card.IsMissing)
	_, ok := f.etags.Get("ZZZZ")
	assert.False(t, ok)
}

func TestServerErrorSurfacedWithoutRetry(t *testing.T) {
	f := newFixture(t, 50)
	f.dev.SetFaults(devapi.Faults{CardStatus: http.StatusInternalServerError})

	_, err := f.gw.FetchCard(context.Background(), "NVDA")
	var se *helpers.ServerError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, int64(1), f.dev.Stats().CardRequests)
	assert.Zero(t, f.cards.Len())
}

func TestLivenessGuardSkipsWrites(t *testing.T) {
	alive := true
	f := newFixture(t, 50, WithLiveness(func() bool { return alive }))
	alive = false

	res, err := f.gw.FetchCard(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", res.Card.Ticker)
	assert.Zero(t, f.cards.Len())
	assert.Zero(t, f.etags.Len())
}

func TestEvictedCardFetchesUnconditionally(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	_, err := f.gw.FetchCard(ctx, "NVDA")
	require.NoError(t, err)
	// Evict NVDA's card only; its ETag lives in a separate cache.
	f.cards.Set("TSLA", models.MCardViewModel{Ticker: "TSLA"})
	_, ok := f.etags.Get("NVDA")
	require.True(t, ok)

	res, err := f.gw.FetchCard(ctx, "NVDA")
	require.NoError(t, err)
	assert.Equal(t, KindOK, res.Kind)
	assert.Zero(t, f.dev.Stats().NotModified)
}

func TestStaleFlagRefreshedOnNotModified(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	// Wednesday after the close, then Thursday mid-session.
	now := time.Date(2025, 6, 11, 20, 0, 0, 0, ny)
	market := utils.NewMarketScheduler([]string{"XNYS"}, nil).WithClock(func() time.Time { return now })

	f := newFixture(t, 50, WithStaleness(market, 5*time.Minute))
	card, _ := f.dev.Store.CardValue("AMD")
	card.AsOf = now.Add(-time.Hour)
	f.dev.Store.PutCard(card)

	first, err := f.gw.FetchCard(context.Background(), "AMD")
	require.NoError(t, err)
	assert.False(t, first.Card.IsStale)

	now = time.Date(2025, 6, 12, 11, 0, 0, 0, ny)
	second, err := f.gw.FetchCard(context.Background(), "AMD")
	require.NoError(t, err)
	assert.Equal(t, KindNotModified, second.Kind)
	assert.True(t, second.Card.IsStale)

	cached, ok := f.gw.Cached("AMD")
	require.True(t, ok)
	assert.True(t, cached.IsStale)
}

func TestStaleFlagWhileMarketOpen(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	now := time.Date(2025, 6, 11, 11, 0, 0, 0, ny)
	market := utils.NewMarketScheduler([]string{"XNYS"}, nil).WithClock(func() time.Time { return now })

	f := newFixture(t, 50, WithStaleness(market, 5*time.Minute))
	card, _ := f.dev.Store.CardValue("AMD")
	card.AsOf = now.Add(-time.Hour)
	f.dev.Store.PutCard(card)

	res, err := f.gw.FetchCard(context.Background(), "AMD")
	require.NoError(t, err)
	assert.True(t, res.Card.IsStale)
	assert.Equal(t, now, res.Card.FetchedAt)
}

// -----------------------------------------------------------------------------

type blockingSource struct {
	release chan struct{}
}

func (b blockingSource) GetCard(ctx context.Context, ticker, etag string) (interfaces.CardResponse, error) {
	select {
	case <-b.release:
	case <-ctx.Done():
		return interfaces.CardResponse{}, ctx.Err()
	}
	return interfaces.CardResponse{Card: &models.MCard{Ticker: ticker}, ETag: `"e"`}, nil
}

func TestAsyncIssuedBeforeDone(t *testing.T) {
	src := blockingSource{release: make(chan struct{})}
	gw := New(src, utils.NewBoundedCache[string, models.MCardViewModel](2), utils.NewBoundedCache[string, string](2))

	p := gw.FetchCardAsync(context.Background(), "NVDA")
	select {
	case <-p.Issued():
	case <-time.After(time.Second):
		t.Fatal("fetch never issued")
	}
	select {
	case <-p.Done():
		t.Fatal("fetch finished before backend answered")
	default:
	}

	close(src.release)
	res, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, KindOK, res.Kind)
	v, ok := gw.Cached("nvda")
	require.True(t, ok)
	assert.Equal(t, `"e"`, v.ETag)

	gw.Clear()
	_, ok = gw.Cached("NVDA")
	assert.False(t, ok)
}

// -----------------------------------------------------------------------------

// notModifiedSource answers 304 to everything and can evict the card it is
// asked to revalidate.
type notModifiedSource struct {
	calls atomic.Int64
	evict func(ticker string)
}

func (n *notModifiedSource) GetCard(ctx context.Context, ticker, etag string) (interfaces.CardResponse, error) {
	n.calls.Add(1)
	if n.evict != nil {
		n.evict(ticker)
	}
	return interfaces.CardResponse{NotModified: true}, nil
}

func TestUnconditionalNotModifiedIsAnError(t *testing.T) {
	src := &notModifiedSource{}
	gw := New(src, utils.NewBoundedCache[string, models.MCardViewModel](2), utils.NewBoundedCache[string, string](2))

	_, err := gw.FetchCard(context.Background(), "NVDA")
	var se *helpers.ServerError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "unexpected_not_modified", se.Code)
	assert.Equal(t, int64(1), src.calls.Load())
}

func TestNotModifiedAfterEvictionRefetchesOnce(t *testing.T) {
	cards := utils.NewBoundedCache[string, models.MCardViewModel](2)
	etags := utils.NewBoundedCache[string, string](2)
	cards.Set("NVDA", models.MCardViewModel{Ticker: "NVDA", ETag: `"a"`})
	etags.Set("NVDA", `"a"`)

	src := &notModifiedSource{evict: func(ticker string) { cards.Remove(ticker) }}
	gw := New(src, cards, etags)

	_, err := gw.FetchCard(context.Background(), "NVDA")
	var se *helpers.ServerError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "unexpected_not_modified", se.Code)
	assert.Equal(t, int64(2), src.calls.Load())
}

// -----------------------------------------------------------------------------

type instantSource struct{}

func (instantSource) GetCard(ctx context.Context, ticker, etag string) (interfaces.CardResponse, error) {
	return interfaces.CardResponse{Card: &models.MCard{Ticker: ticker}, ETag: `"e"`}, nil
}

func TestClearWaitsForInFlightWrite(t *testing.T) {
	var open atomic.Bool
	open.Store(true)
	checking := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	alive := func() bool {
		v := open.Load()
		once.Do(func() {
			close(checking)
			<-release
		})
		return v
	}

	cards := utils.NewBoundedCache[string, models.MCardViewModel](2)
	etags := utils.NewBoundedCache[string, string](2)
	gw := New(instantSource{}, cards, etags, WithLiveness(alive))

	p := gw.FetchCardAsync(context.Background(), "NVDA")
	<-checking

	// Teardown: flip liveness, then clear while the write is still pending.
	open.Store(false)
	cleared := make(chan struct{})
	go func() {
		gw.Clear()
		close(cleared)
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-cleared:
		t.Fatal("Clear returned while a cache write was in flight")
	default:
	}

	close(release)
	_, err := p.Wait(context.Background())
	require.NoError(t, err)
	<-cleared

	assert.Zero(t, cards.Len())
	assert.Zero(t, etags.Len())

	// Later fetches see the closed session and leave the caches alone.
	_, err = gw.FetchCard(context.Background(), "AMD")
	require.NoError(t, err)
	assert.Zero(t, cards.Len())
}
