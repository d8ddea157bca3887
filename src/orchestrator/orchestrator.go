package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"gapper-terminal/src/command"
	"gapper-terminal/src/gateway"
	"gapper-terminal/src/helpers"
	"gapper-terminal/src/logger"
	"gapper-terminal/src/models"
	"gapper-terminal/src/utils"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Degraded-state messages shown in place of, or next to, a card.
const (
	MsgServingCached = "serving cached card while backend refreshes"
	MsgCouldNotFetch = "could not refresh %s card"
	MsgMissingCard   = "no card published for %s yet"
	MsgScanFailed    = "could not load top gappers"
	maxScanLimit     = 50
)

// CardGateway is the conditional fetch layer the orchestrator drives.
type CardGateway interface {
	FetchCard(ctx context.Context, ticker string) (gateway.Result, error)
	FetchCardAsync(ctx context.Context, ticker string) *gateway.Pending
	Cached(ticker string) (models.MCardViewModel, bool)
}

// ActionClient is the request/response part of the backend.
type ActionClient interface {
	PostAnalyze(ctx context.Context, ticker string) (models.MActionAck, error)
	PostPin(ctx context.Context, ticker string) (models.MActionAck, error)
	GetTopGappers(ctx context.Context, limit int) ([]models.MTopGapper, error)
}

// Tracker receives the tickers a submission resolved.
type Tracker interface {
	Track(tickers ...string)
}

// MarketClock answers whether any configured venue is trading.
type MarketClock interface {
	AnyMarketOpen() bool
}

// -----------------------------------------------------------------------------
// Orchestrator handles one submission at a time: interpret, dispatch action
// and card fetches, merge a reply.
// -----------------------------------------------------------------------------

type Orchestrator struct {
	interp    *command.Interpreter
	cards     CardGateway
	actions   ActionClient
	tracker   Tracker
	market    MarketClock
	scanLimit int
	onResolve func(tickers []string)
	now       func() time.Time
	logger    *logger.Logger

	mu sync.Mutex
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithTracker(t Tracker) Option         { return func(o *Orchestrator) { o.tracker = t } }
func WithMarketClock(m MarketClock) Option { return func(o *Orchestrator) { o.market = m } }
func WithLogger(l *logger.Logger) Option   { return func(o *Orchestrator) { o.logger = l } }

// WithScanLimit sets the default number of ranked rows for scan.
func WithScanLimit(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.scanLimit = n
		}
	}
}

// WithResolvedHook is called with the tickers of every submission that resolved any.
func WithResolvedHook(fn func(tickers []string)) Option {
	return func(o *Orchestrator) { o.onResolve = fn }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// -----------------------------------------------------------------------------

func New(interp *command.Interpreter, cards CardGateway, actions ActionClient, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		interp:    interp,
		cards:     cards,
		actions:   actions,
		scanLimit: utils.DefaultScanLimit,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.interp == nil {
		o.interp = command.NewInterpreter(nil, 0)
	}
	if o.logger == nil {
		o.logger = logger.NewLogger(nil, "Orchestrator")
	}
	return o
}

func (o *Orchestrator) Interpreter() *command.Interpreter { return o.interp }

// -----------------------------------------------------------------------------

// Submit interprets raw and produces a reply. It never fails; backend
// problems surface as degraded sections and notes. Calls are serialized.
func (o *Orchestrator) Submit(ctx context.Context, raw string) models.MChatReply {
	o.mu.Lock()
	defer o.mu.Unlock()

	parsed := o.interp.Parse(raw)
	reply := models.MChatReply{
		ID:        uuid.NewString(),
		Input:     parsed,
		Sections:  []models.MCardSection{},
		CreatedAt: o.now(),
	}
	o.logger.Debug("Submission %s parsed as %s %v", reply.ID, parsed.Intent, parsed.Tickers)

	var resolved []string
	switch {
	case parsed.CommandName == "help":
		reply.Text = o.helpText()
		return reply
	case parsed.Intent == models.IntentScan:
		resolved = o.scan(ctx, parsed, &reply)
	case len(parsed.Tickers) == 0:
		reply.Text = utils.DefaultUsageReply
		return reply
	case parsed.CommandName == "analyze" || parsed.CommandName == "pin":
		o.action(ctx, parsed, &reply)
		resolved = parsed.Tickers
	default:
		reply.Sections = o.fetchAll(ctx, parsed.Intent, parsed.Tickers)
		resolved = parsed.Tickers
	}

	o.collectNotes(&reply)
	reply.Text = composeText(reply)

	if len(resolved) > 0 {
		if o.tracker != nil {
			o.tracker.Track(resolved...)
		}
		if o.onResolve != nil {
			o.onResolve(resolved)
		}
	}
	return reply
}

// -----------------------------------------------------------------------------

// action starts the card fetches, waits until the primary one is on the wire,
// and only then awaits the action call.
func (o *Orchestrator) action(ctx context.Context, parsed models.MParsedInput, reply *models.MChatReply) {
	primary := parsed.PrimaryTicker()

	pending := make([]*gateway.Pending, len(parsed.Tickers))
	for i, t := range parsed.Tickers {
		pending[i] = o.cards.FetchCardAsync(ctx, t)
	}
	select {
	case <-pending[0].Issued():
	case <-ctx.Done():
	}

	var (
		ack models.MActionAck
		err error
	)
	if parsed.CommandName == "pin" {
		ack, err = o.actions.PostPin(ctx, primary)
	} else {
		ack, err = o.actions.PostAnalyze(ctx, primary)
	}
	if err != nil {
		o.logger.Warning("%s %s failed: %v", parsed.CommandName, primary, err)
		reply.ActionError = fmt.Sprintf("%s %s failed: %s", parsed.CommandName, primary, describe(err))
	} else {
		reply.ActionStatus = ack.Status
		if ack.Message != "" {
			reply.ActionStatus = ack.Status + ": " + ack.Message
		}
	}

	reply.Sections = make([]models.MCardSection, len(pending))
	for i, p := range pending {
		res, ferr := p.Wait(ctx)
		reply.Sections[i] = o.section(parsed.Intent, parsed.Tickers[i], res, ferr)
	}
}

// -----------------------------------------------------------------------------

// fetchAll fetches every ticker concurrently. A failure stays in its own section.
func (o *Orchestrator) fetchAll(ctx context.Context, intent models.Intent, tickers []string) []models.MCardSection {
	sections := make([]models.MCardSection, len(tickers))

	var g errgroup.Group
	g.SetLimit(utils.DefaultMaxTickers)
	for i, t := range tickers {
		g.Go(func() error {
			res, err := o.cards.FetchCard(ctx, t)
			sections[i] = o.section(intent, t, res, err)
			return nil
		})
	}
	_ = g.Wait()
	return sections
}

// -----------------------------------------------------------------------------

func (o *Orchestrator) scan(ctx context.Context, parsed models.MParsedInput, reply *models.MChatReply) []string {
	limit := o.scanLimit
	if len(parsed.Args) > 0 {
		if n, err := strconv.Atoi(parsed.Args[0]); err == nil && n > 0 {
			limit = min(n, maxScanLimit)
		}
	}

	if o.market != nil && !o.market.AnyMarketOpen() {
		reply.Notes = append(reply.Notes, utils.DefaultMarketClosedNote)
	}

	rows, err := o.actions.GetTopGappers(ctx, limit)
	if err != nil {
		o.logger.Warning("Top gappers failed: %v", err)
		reply.Notes = append(reply.Notes, MsgScanFailed)
		return nil
	}
	if rows == nil {
		rows = []models.MTopGapper{}
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}
	reply.Gappers = rows
	if len(rows) == 0 {
		return nil
	}

	top := command.NormalizeTicker(rows[0].Ticker)
	if top == "" {
		return nil
	}
	res, ferr := o.cards.FetchCard(ctx, top)
	reply.Sections = []models.MCardSection{o.section(models.IntentQuickGap, top, res, ferr)}
	return []string{top}
}

// -----------------------------------------------------------------------------

func (o *Orchestrator) section(intent models.Intent, ticker string, res gateway.Result, err error) models.MCardSection {
	sec := models.MCardSection{Ticker: ticker}

	if err != nil {
		if cached, ok := o.cards.Cached(ticker); ok && !cached.IsMissing {
			sec.Card = &cached
			sec.Degraded = MsgServingCached
			sec.Rendered = renderCard(intent, cached)
			return sec
		}
		sec.Degraded = fmt.Sprintf(MsgCouldNotFetch, ticker)
		return sec
	}

	vm := res.Card
	sec.Card = &vm
	if vm.IsMissing {
		sec.Degraded = fmt.Sprintf(MsgMissingCard, ticker)
		return sec
	}
	sec.Rendered = renderCard(intent, vm)
	return sec
}

// -----------------------------------------------------------------------------

func (o *Orchestrator) collectNotes(reply *models.MChatReply) {
	for _, s := range reply.Sections {
		if s.Card != nil && s.Card.IsStale && !s.Card.IsMissing {
			reply.Notes = append(reply.Notes, fmt.Sprintf("%s card may be stale (as of %s)", s.Ticker, s.Card.Card.AsOf.Format("15:04")))
		}
	}
}

func (o *Orchestrator) helpText() string {
	var b strings.Builder
	b.WriteString("Commands:")
	for _, c := range o.interp.Registry().Commands() {
		fmt.Fprintf(&b, "\n  %-18s %s", c.Usage, c.Summary)
	}
	return b.String()
}

// -----------------------------------------------------------------------------

func composeText(reply models.MChatReply) string {
	var parts []string
	if reply.ActionStatus != "" {
		parts = append(parts, reply.ActionStatus)
	}
	if reply.ActionError != "" {
		parts = append(parts, reply.ActionError)
	}
	if reply.Input.Intent == models.IntentScan && reply.Gappers != nil {
		parts = append(parts, renderGappers(reply.Gappers))
	}
	for _, s := range reply.Sections {
		switch {
		case s.Rendered != "" && s.Degraded != "":
			parts = append(parts, s.Rendered+"\n("+s.Degraded+")")
		case s.Rendered != "":
			parts = append(parts, s.Rendered)
		default:
			parts = append(parts, s.Degraded)
		}
	}
	parts = append(parts, reply.Notes...)
	return strings.Join(parts, "\n\n")
}

func describe(err error) string {
	var se *helpers.ServerError
	if errors.As(err, &se) {
		if se.Code != "" {
			return fmt.Sprintf("%s (%d)", se.Code, se.StatusCode)
		}
		return fmt.Sprintf("status %d", se.StatusCode)
	}
	if helpers.IsNetworkError(err) {
		return "backend unreachable"
	}
	return err.Error()
}
