package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"gapper-terminal/src/backend"
	"gapper-terminal/src/command"
	"gapper-terminal/src/config"
	"gapper-terminal/src/devapi"
	"gapper-terminal/src/gateway"
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
	orch   *Orchestrator
	dev    *devapi.Server
	client *backend.Client
	gw     *gateway.Gateway
}

func newFixture(t *testing.T, actions func(*backend.Client) ActionClient, opts ...Option) fixture {
	t.Helper()
	store := devapi.NewStore()
	store.Seed(time.Now())
	dev := devapi.NewServer(store, nil)
	ts := httptest.NewServer(dev.Handler())
	t.Cleanup(ts.Close)

	cfg := config.Default()
	client := backend.NewClient(ts.URL, network.NewNetworkManager(cfg.MConfig, nil), nil)
	gw := gateway.New(client,
		utils.NewBoundedCache[string, models.MCardViewModel](50),
		utils.NewBoundedCache[string, string](50))

	var ac ActionClient = client
	if actions != nil {
		ac = actions(client)
	}
	orch := New(command.NewInterpreter(nil, 6), gw, ac, opts...)
	return fixture{orch: orch, dev: dev, client: client, gw: gw}
}

// -----------------------------------------------------------------------------

// orderedActions waits for the card request to reach the backend before
// sending the action.
type orderedActions struct {
	*backend.Client
	cardSeen    <-chan struct{}
	actionSent  chan struct{}
	once        sync.Once
	sawCardWait bool
}

func (a *orderedActions) PostAnalyze(ctx context.Context, ticker string) (models.MActionAck, error) {
	select {
	case <-a.cardSeen:
		a.sawCardWait = true
	case <-time.After(2 * time.Second):
	}
	a.once.Do(func() { close(a.actionSent) })
	return a.Client.PostAnalyze(ctx, ticker)
}

func TestAnalyzeIssuesCardFetchBeforeAwaitingAction(t *testing.T) {
	cardSeen := make(chan struct{})
	var wrapped *orderedActions
	f := newFixture(t, func(c *backend.Client) ActionClient {
		wrapped = &orderedActions{Client: c, cardSeen: cardSeen, actionSent: make(chan struct{})}
		return wrapped
	})

	var cardBlockedUntilAction bool
	var cardOnce sync.Once
	f.dev.SetHooks(devapi.Hooks{
		BeforeCard: func(string) {
			cardOnce.Do(func() { close(cardSeen) })
			// The card stays in flight until the action has been sent.
			select {
			case <-wrapped.actionSent:
				cardBlockedUntilAction = true
			case <-time.After(2 * time.Second):
			}
		},
	})

	reply := f.orch.Submit(context.Background(), "/analyze NVDA")

	assert.True(t, wrapped.sawCardWait, "card request must reach the backend before the action call")
	assert.True(t, cardBlockedUntilAction, "action must be sent while the card fetch is in flight")
	assert.Empty(t, reply.ActionError)
	assert.Equal(t, "accepted: NVDA queued for analysis", reply.ActionStatus)
	require.Len(t, reply.Sections, 1)
	assert.Equal(t, "NVDA", reply.Sections[0].Ticker)
	assert.Empty(t, reply.Sections[0].Degraded)
}

func TestFailedActionStillShowsCard(t *testing.T) {
	f := newFixture(t, nil)
	f.dev.SetFaults(devapi.Faults{ActionStatus: http.StatusInternalServerError})

	reply := f.orch.Submit(context.Background(), "/analyze NVDA")

	assert.NotEmpty(t, reply.ActionError)
	assert.Empty(t, reply.ActionStatus)
	require.Len(t, reply.Sections, 1)
	assert.NotEmpty(t, reply.Sections[0].Rendered)
	assert.Contains(t, reply.Text, "NVDA")
	assert.Contains(t, reply.Text, "NVIDIA Corp")
	assert.Equal(t, int64(1), f.dev.Stats().CardRequests)
}

func TestPinUsesPinEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	var mu sync.Mutex
	var actions []string
	f.dev.SetHooks(devapi.Hooks{BeforeAction: func(ticker, action string) {
		mu.Lock()
		actions = append(actions, ticker+":"+action)
		mu.Unlock()
	}})

	reply := f.orch.Submit(context.Background(), "/pin tsla")
	assert.Empty(t, reply.ActionError)
	assert.Equal(t, []string{"TSLA:pin"}, actions)
}

// -----------------------------------------------------------------------------

func TestNoTickerReturnsUsageWithoutBackendCalls(t *testing.T) {
	f := newFixture(t, nil)

	for _, in := range []string{"", "hello there", "/levels", "what do you think about the open"} {
		reply := f.orch.Submit(context.Background(), in)
		assert.Equal(t, utils.DefaultUsageReply, reply.Text, in)
		assert.Empty(t, reply.Sections, in)
		assert.NotEmpty(t, reply.ID)
	}
	stats := f.dev.Stats()
	assert.Zero(t, stats.CardRequests)
	assert.Zero(t, stats.ActionRequests)
	assert.Zero(t, stats.GapperRequests)
}

func TestHelpListsCommands(t *testing.T) {
	f := newFixture(t, nil)
	reply := f.orch.Submit(context.Background(), "/help")
	assert.Contains(t, reply.Text, "/analyze TICKER")
	assert.Contains(t, reply.Text, "/scan")
	assert.Zero(t, f.dev.Stats().CardRequests)
}

// -----------------------------------------------------------------------------

type fixedMarket bool

func (m fixedMarket) AnyMarketOpen() bool { return bool(m) }

func TestScanEnrichesOnlyTopTicker(t *testing.T) {
	f := newFixture(t, nil, WithMarketClock(fixedMarket(true)))

	reply := f.orch.Submit(context.Background(), "/scan")

	require.Len(t, reply.Gappers, 5)
	assert.Equal(t, "PLTR", reply.Gappers[0].Ticker)
	require.Len(t, reply.Sections, 1)
	assert.Equal(t, "PLTR", reply.Sections[0].Ticker)
	assert.Equal(t, int64(1), f.dev.Stats().CardRequests)
	assert.Equal(t, int64(1), f.dev.Stats().GapperRequests)
	assert.Empty(t, reply.Notes)
	assert.Contains(t, reply.Text, "Top gappers:")
}

func TestScanHonoursLimitAndMarketClosedNote(t *testing.T) {
	f := newFixture(t, nil, WithMarketClock(fixedMarket(false)))

	reply := f.orch.Submit(context.Background(), "/scan 2")

	assert.Len(t, reply.Gappers, 2)
	assert.Contains(t, reply.Notes, utils.DefaultMarketClosedNote)
}

func TestScanWithNoRowsSkipsCard(t *testing.T) {
	f := newFixture(t, nil)
	f.dev.Store.SetGappers(nil)

	reply := f.orch.Submit(context.Background(), "/scan")
	assert.Empty(t, reply.Sections)
	assert.Contains(t, reply.Text, "No gappers ranked right now.")
	assert.Zero(t, f.dev.Stats().CardRequests)
}

// -----------------------------------------------------------------------------

func TestTickerFailuresAreIsolated(t *testing.T) {
	f := newFixture(t, nil)

	reply := f.orch.Submit(context.Background(), "compare $NVDA and $ZZZZ")

	require.Len(t, reply.Sections, 2)
	assert.Equal(t, "NVDA", reply.Sections[0].Ticker)
	assert.Empty(t, reply.Sections[0].Degraded)
	assert.Equal(t, "ZZZZ", reply.Sections[1].Ticker)
	assert.Equal(t, "no card published for ZZZZ yet", reply.Sections[1].Degraded)
}

func TestDegradedMessages(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first := f.orch.Submit(ctx, "$NVDA")
	require.Empty(t, first.Sections[0].Degraded)

	f.dev.SetFaults(devapi.Faults{CardStatus: http.StatusServiceUnavailable})

	cached := f.orch.Submit(ctx, "$NVDA")
	assert.Equal(t, MsgServingCached, cached.Sections[0].Degraded)
	assert.NotEmpty(t, cached.Sections[0].Rendered)

	uncached := f.orch.Submit(ctx, "$TSLA")
	assert.Equal(t, "could not refresh TSLA card", uncached.Sections[0].Degraded)
	assert.Contains(t, uncached.Text, "could not refresh TSLA card")
}

func TestIntentSpecificRendering(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	levels := f.orch.Submit(ctx, "/levels NVDA")
	assert.Contains(t, levels.Text, "nearest support 126.00")
	assert.Contains(t, levels.Text, "nearest resistance 134.00")

	gap := f.orch.Submit(ctx, "/gap NVDA")
	assert.Contains(t, gap.Text, "NVDA gap +5.88%")

	news := f.orch.Submit(ctx, "/news NVDA")
	assert.Contains(t, news.Text, "NVIDIA Corp moves premarket")
}

// -----------------------------------------------------------------------------

type recordingTracker struct {
	mu      sync.Mutex
	tickers []string
}

func (r *recordingTracker) Track(tickers ...string) {
	r.mu.Lock()
	r.tickers = append(r.tickers, tickers...)
	r.mu.Unlock()
}

func TestResolvedTickersAreTrackedAndReported(t *testing.T) {
	tr := &recordingTracker{}
	var recent []string
	f := newFixture(t, nil, WithTracker(tr), WithResolvedHook(func(ts []string) { recent = append(recent, ts...) }))
	ctx := context.Background()

	f.orch.Submit(ctx, "$NVDA $AMD")
	f.orch.Submit(ctx, "/scan")
	f.orch.Submit(ctx, "nothing here")

	assert.Equal(t, []string{"NVDA", "AMD", "PLTR"}, tr.tickers)
	assert.Equal(t, []string{"NVDA", "AMD", "PLTR"}, recent)
}

func TestSubmitIsSerialized(t *testing.T) {
	f := newFixture(t, nil)
	var inFlight, maxInFlight int
	var mu sync.Mutex
	f.dev.SetHooks(devapi.Hooks{BeforeCard: func(string) {
		mu.Lock()
		inFlight++
		maxInFlight = max(maxInFlight, inFlight)
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
	}})

	var wg sync.WaitGroup
	for _, in := range []string{"$NVDA", "$TSLA", "$AAPL"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.orch.Submit(context.Background(), in)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxInFlight)
}
