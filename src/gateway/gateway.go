package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"gapper-terminal/src/helpers"
	"gapper-terminal/src/interfaces"
	"gapper-terminal/src/logger"
	"gapper-terminal/src/models"
	"gapper-terminal/src/utils"
)

// ResultKind tells a fresh card from a revalidated one.
type ResultKind string

const (
	KindOK          ResultKind = "ok"
	KindNotModified ResultKind = "not_modified"
)

// Result is the outcome of one conditional fetch.
type Result struct {
	Kind ResultKind
	Card models.MCardViewModel
}

// CardSource is the part of the backend the gateway needs.
type CardSource interface {
	GetCard(ctx context.Context, ticker, etag string) (interfaces.CardResponse, error)
}

// -----------------------------------------------------------------------------
// Gateway performs ETag-conditional card fetches against two independent
// bounded caches. It never retries.
// -----------------------------------------------------------------------------

type Gateway struct {
	source CardSource
	cards  *utils.BoundedCache[string, models.MCardViewModel]
	etags  *utils.BoundedCache[string, string]
	logger *logger.Logger

	// Writers hold mu for reading; Clear holds it for writing, so no write
	// that passed the liveness check can land after a teardown Clear.
	mu         sync.RWMutex
	alive      func() bool
	market     *utils.MarketScheduler
	staleAfter time.Duration
	now        func() time.Time
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLiveness makes cache writes conditional on alive() returning true.
func WithLiveness(alive func() bool) Option {
	return func(g *Gateway) { g.alive = alive }
}

// WithStaleness flags cards older than window while market reports open.
func WithStaleness(market *utils.MarketScheduler, window time.Duration) Option {
	return func(g *Gateway) {
		g.market = market
		g.staleAfter = window
		if market != nil {
			g.now = market.Now
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// -----------------------------------------------------------------------------

func New(source CardSource, cards *utils.BoundedCache[string, models.MCardViewModel], etags *utils.BoundedCache[string, string], opts ...Option) *Gateway {
	g := &Gateway{
		source: source,
		cards:  cards,
		etags:  etags,
		alive:  func() bool { return true },
		now:    time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	if g.logger == nil {
		g.logger = logger.NewLogger(nil, "Gateway")
	}
	return g
}

// -----------------------------------------------------------------------------

// FetchCard fetches ticker, revalidating with the stored ETag when a cached
// card exists. Errors are *helpers.NetworkError or *helpers.ServerError.
func (g *Gateway) FetchCard(ctx context.Context, ticker string) (Result, error) {
	return g.fetch(ctx, ticker, nil, false)
}

// -----------------------------------------------------------------------------

func (g *Gateway) fetch(ctx context.Context, ticker string, issued chan struct{}, retried bool) (Result, error) {
	ticker = strings.ToUpper(ticker)

	// An ETag is only useful while the card it validates is still cached.
	etag := ""
	if _, ok := g.cards.Peek(ticker); ok {
		etag, _ = g.etags.Get(ticker)
	}

	if issued != nil {
		close(issued)
	}
	resp, err := g.source.GetCard(ctx, ticker, etag)
	if err != nil {
		g.logger.Warning("Card fetch for %s failed: %v", ticker, err)
		return Result{}, err
	}

	if resp.NotModified {
		if etag == "" {
			g.logger.Warning("Backend answered 304 to an unconditional fetch of %s", ticker)
			return Result{}, helpers.NewServerError(http.StatusNotModified, "unexpected_not_modified",
				fmt.Sprintf("no validator was sent for %s", ticker))
		}
		if cached, ok := g.cards.Get(ticker); ok {
			return Result{Kind: KindNotModified, Card: g.revalidated(cached)}, nil
		}
		if retried {
			return Result{}, helpers.NewServerError(http.StatusNotModified, "unexpected_not_modified",
				fmt.Sprintf("card for %s evicted during revalidation", ticker))
		}
		// Evicted between lookup and response; fetch once without a validator.
		return g.fetch(ctx, ticker, nil, true)
	}

	vm := models.MCardViewModel{
		Ticker:    ticker,
		ETag:      resp.ETag,
		FetchedAt: g.now(),
	}
	if resp.Missing || resp.Card == nil {
		vm.IsMissing = true
	} else {
		vm.Card = *resp.Card
		vm.IsStale = g.stale(vm.Card)
	}

	stored := g.commit(func() {
		if vm.IsMissing {
			g.etags.Remove(ticker)
		} else if vm.ETag != "" {
			g.etags.Set(ticker, vm.ETag)
		}
		g.cards.Set(ticker, vm)
	})
	if !stored {
		g.logger.Debug("Session closed, dropping card for %s", ticker)
	}
	return Result{Kind: KindOK, Card: vm}, nil
}

// revalidated refreshes the staleness flag of a card the backend confirmed
// unchanged, since the market may have opened since it was cached.
func (g *Gateway) revalidated(vm models.MCardViewModel) models.MCardViewModel {
	if vm.IsMissing {
		return vm
	}
	if stale := g.stale(vm.Card); stale != vm.IsStale {
		vm.IsStale = stale
		g.commit(func() { g.cards.Set(vm.Ticker, vm) })
	}
	return vm
}

func (g *Gateway) stale(card models.MCard) bool {
	return g.market != nil && g.market.IsStale(card.AsOf, g.staleAfter)
}

// commit runs write only while the session is alive.
func (g *Gateway) commit(write func()) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.alive() {
		return false
	}
	write()
	return true
}

// -----------------------------------------------------------------------------

// Cached returns the last stored card for ticker, marking it recently used.
func (g *Gateway) Cached(ticker string) (models.MCardViewModel, bool) {
	return g.cards.Get(strings.ToUpper(ticker))
}

// Clear drops both caches, waiting for in-flight writes.
func (g *Gateway) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cards.Clear()
	g.etags.Clear()
}

// -----------------------------------------------------------------------------
// Pending is an in-flight fetch started with FetchCardAsync.
// -----------------------------------------------------------------------------

type Pending struct {
	issued chan struct{}
	done   chan struct{}
	res    Result
	err    error
}

// FetchCardAsync starts a fetch in the background.
func (g *Gateway) FetchCardAsync(ctx context.Context, ticker string) *Pending {
	p := &Pending{issued: make(chan struct{}), done: make(chan struct{})}
	go func() {
		defer close(p.done)
		p.res, p.err = g.fetch(ctx, ticker, p.issued, false)
	}()
	return p
}

// Issued is closed once the request has been handed to the backend client.
func (p *Pending) Issued() <-chan struct{} { return p.issued }

// Done is closed when the result is available.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks for the result or ctx.
func (p *Pending) Wait(ctx context.Context) (Result, error) {
	select {
	case <-p.done:
		return p.res, p.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
