package session

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"gapper-terminal/src/backend"
	"gapper-terminal/src/command"
	"gapper-terminal/src/gateway"
	"gapper-terminal/src/helpers"
	"gapper-terminal/src/interfaces"
	"gapper-terminal/src/logger"
	"gapper-terminal/src/models"
	"gapper-terminal/src/network"
	"gapper-terminal/src/orchestrator"
	"gapper-terminal/src/router"
	"gapper-terminal/src/stream"
	"gapper-terminal/src/utils"

	"github.com/google/uuid"
)

const storeTimeout = 3 * time.Second

// Deps overrides collaborators built from config. Zero values are filled in.
type Deps struct {
	Backend    interfaces.IBackend
	Store      interfaces.IPreferenceStore
	Exchangers []interfaces.IDataExchanger
	Now        func() time.Time
	Logger     *logger.Logger
}

// -----------------------------------------------------------------------------
// Session wires every component for one composer lifetime and owns its
// teardown.
// -----------------------------------------------------------------------------

type Session struct {
	ID     string
	Config *models.MConfig
	Logger *logger.Logger

	backend    interfaces.IBackend
	store      interfaces.IPreferenceStore
	exchangers []interfaces.IDataExchanger
	errs       *helpers.ErrorHandler

	cards    *utils.BoundedCache[string, models.MCardViewModel]
	etags    *utils.BoundedCache[string, string]
	market   *utils.MarketScheduler
	gateway  *gateway.Gateway
	manager  *stream.Manager
	channels *router.ChannelStore
	interp   *command.Interpreter
	orch     *orchestrator.Orchestrator

	alive       atomic.Bool
	submissions atomic.Int64
	now         func() time.Time

	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	started   bool
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// -----------------------------------------------------------------------------

func New(cfg *models.MConfig, deps Deps) (*Session, error) {
	log := deps.Logger
	if log == nil {
		log = logger.NewLogger(cfg, "Session")
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, helpers.NewConfigurationError(fmt.Sprintf("invalid timezone %q", cfg.Timezone), err)
	}

	be := deps.Backend
	if be == nil {
		nm := network.NewNetworkManager(cfg, log.Named("Network"))
		be = backend.NewClient(cfg.Backend.BaseURL, nm, log.Named("Backend"))
	}

	s := &Session{
		ID:         uuid.NewString(),
		Config:     cfg,
		Logger:     log,
		backend:    be,
		store:      deps.Store,
		exchangers: deps.Exchangers,
		errs:       helpers.NewErrorHandler(log),
		cards:      utils.NewBoundedCache[string, models.MCardViewModel](cfg.Cache.CardCapacity),
		etags:      utils.NewBoundedCache[string, string](cfg.Cache.ETagCapacity),
		now:        now,
	}
	s.alive.Store(true)

	s.market = utils.NewMarketScheduler([]string{cfg.Market.MIC}, log.Named("Market")).WithClock(now)
	s.gateway = gateway.New(be, s.cards, s.etags,
		gateway.WithLiveness(s.alive.Load),
		gateway.WithStaleness(s.market, time.Duration(cfg.Market.StaleAfterSeconds)*time.Second),
		gateway.WithLogger(log.Named("Gateway")),
	)

	s.manager = stream.NewManager(be, s.gateway, be, stream.Options{
		Backoff: helpers.Backoff{
			Initial:     time.Duration(cfg.Stream.BackoffInitialMillis) * time.Millisecond,
			Max:         time.Duration(cfg.Stream.BackoffMaxMillis) * time.Millisecond,
			Factor:      2,
			MaxAttempts: cfg.Stream.MaxReconnectAttempts,
		},
		PollInterval: time.Duration(cfg.Stream.PollIntervalSeconds) * time.Second,
		EventBuffer:  cfg.Stream.EventBuffer,
		GapperLimit:  cfg.Scan.Limit,
		Now:          now,
	}, log.Named("Transport"))

	s.channels = router.NewChannelStore(router.New(loc, now), cfg.Cache.CardCapacity, cfg.Cache.ChannelHistory, cfg.Cache.LiveFeedHistory)
	s.interp = command.NewInterpreter(command.DefaultRegistry(), cfg.Interpreter.MaxTickers)
	s.orch = orchestrator.New(s.interp, s.gateway, be,
		orchestrator.WithTracker(s.manager),
		orchestrator.WithMarketClock(s.market),
		orchestrator.WithScanLimit(cfg.Scan.Limit),
		orchestrator.WithResolvedHook(s.recordRecent),
		orchestrator.WithClock(now),
		orchestrator.WithLogger(log.Named("Orchestrator")),
	)
	return s, nil
}

// -----------------------------------------------------------------------------

// Start opens the preference store, loads the ticker pool and connects the
// push stream. It may be called once.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("session %s already started", s.ID)
	}
	if !s.alive.Load() {
		s.mu.Unlock()
		return fmt.Errorf("session %s is closed", s.ID)
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Initialize(s.ctx); err != nil {
			s.errs.Handle(err, "preference store")
			s.store = nil
		}
	}
	s.refreshPool()

	states := s.manager.Subscribe()
	if err := s.manager.Start(s.ctx); err != nil {
		return err
	}

	s.wg.Add(2)
	go s.pumpEvents()
	go s.pumpStates(states)

	s.Logger.Info("Session %s started against %s", s.ID, s.Config.Backend.BaseURL)
	return nil
}

// -----------------------------------------------------------------------------

func (s *Session) pumpEvents() {
	defer s.wg.Done()
	for ev := range s.manager.Events() {
		routed := s.channels.Dispatch(ev)
		s.publish(models.MSessionUpdate{
			Kind:    models.UpdateEvent,
			Event:   &routed.Event,
			Channel: routed.Routed.Channel,
			IsLive:  routed.Routed.IsLive,
			Bucket:  routed.Routed.Bucket,
		})
	}
}

func (s *Session) pumpStates(states <-chan models.MStateChange) {
	defer s.wg.Done()
	for change := range states {
		if change.Reason != models.ReasonNone {
			s.Logger.Warning("Stream %s -> %s (%s)", change.From, change.To, change.Reason)
		} else {
			s.Logger.Info("Stream %s -> %s", change.From, change.To)
		}
		s.publish(models.MSessionUpdate{Kind: models.UpdateState, State: &change})
	}
}

// -----------------------------------------------------------------------------

// Submit runs one chat submission. It never fails; after Close it returns a
// reply explaining the session has ended.
func (s *Session) Submit(ctx context.Context, raw string) models.MChatReply {
	if !s.alive.Load() {
		return models.MChatReply{
			ID:        uuid.NewString(),
			Input:     s.interp.Parse(raw),
			Sections:  []models.MCardSection{},
			Text:      "Session closed.",
			CreatedAt: s.now(),
		}
	}
	s.submissions.Add(1)
	reply := s.orch.Submit(ctx, raw)
	s.publish(models.MSessionUpdate{Kind: models.UpdateReply, Reply: &reply})
	return reply
}

// recordRecent runs after every submission that resolved tickers.
func (s *Session) recordRecent(tickers []string) {
	if s.store == nil || !s.alive.Load() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := s.store.TouchRecent(ctx, tickers...); err != nil {
		s.errs.Handle(err, "recent tickers")
		return
	}
	s.refreshPool()
}

// refreshPool reloads watchlist and recent tickers into the interpreter.
func (s *Session) refreshPool() {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	watch, err := s.store.Watchlist(ctx)
	if err != nil {
		s.errs.Handle(err, "watchlist")
	}
	recent, err := s.store.RecentTickers(ctx, s.Config.Interpreter.RecentTickerCap)
	if err != nil {
		s.errs.Handle(err, "recent tickers")
	}
	s.interp.SetCandidatePool(append(watch, recent...))
}

// -----------------------------------------------------------------------------

// Watch adds ticker to the persisted watchlist and the polling set.
func (s *Session) Watch(ctx context.Context, ticker string) error {
	if s.store == nil {
		return helpers.NewDatabaseError("no preference store configured", nil)
	}
	if err := s.store.AddToWatchlist(ctx, ticker); err != nil {
		return err
	}
	s.manager.Track(ticker)
	s.refreshPool()
	return nil
}

// Unwatch removes ticker from the watchlist and the polling set.
func (s *Session) Unwatch(ctx context.Context, ticker string) error {
	if s.store == nil {
		return helpers.NewDatabaseError("no preference store configured", nil)
	}
	if err := s.store.RemoveFromWatchlist(ctx, ticker); err != nil {
		return err
	}
	s.manager.Untrack(command.NormalizeTicker(ticker))
	s.refreshPool()
	return nil
}

// -----------------------------------------------------------------------------

func (s *Session) State() (models.ConnectionState, models.FallbackReason) {
	return s.manager.State(), s.manager.Reason()
}

// Feed is the live_gappers feed, oldest first.
func (s *Session) Feed() []models.MStreamEvent { return s.channels.Feed() }

// GroupedFeed is the live feed grouped by day bucket, newest day first.
func (s *Session) GroupedFeed() []router.FeedGroup { return s.channels.GroupedFeed() }

func (s *Session) Channels() []string { return s.channels.Channels() }

func (s *Session) ChannelEvents(ticker string) []models.MStreamEvent {
	return s.channels.ChannelEvents(ticker)
}

// Complete lists registered command names starting with prefix.
func (s *Session) Complete(prefix string) []string { return s.interp.Registry().Complete(prefix) }

// Snapshot reports current status for renderers.
func (s *Session) Snapshot() models.MSessionSnapshot {
	state, reason := s.State()
	return models.MSessionSnapshot{
		SessionID:     s.ID,
		State:         state,
		Reason:        reason,
		Tracked:       s.manager.Tracked(),
		Channels:      s.channels.Channels(),
		LiveFeedSize:  len(s.channels.Feed()),
		CardCacheSize: s.cards.Len(),
		ETagCacheSize: s.etags.Len(),
		Evictions:     s.cards.Evictions() + s.etags.Evictions(),
		Submissions:   s.submissions.Load(),
		Errors:        s.errs.ErrorCount(),
		UpdatedAt:     s.now(),
	}
}

// -----------------------------------------------------------------------------

// AddExchanger attaches another renderer after construction.
func (s *Session) AddExchanger(ex interfaces.IDataExchanger) {
	s.mu.Lock()
	s.exchangers = append(s.exchangers, ex)
	s.mu.Unlock()
	ex.UpdateAllDatas(s.Snapshot())
}

func (s *Session) publish(u models.MSessionUpdate) {
	s.mu.Lock()
	exchangers := slices.Clone(s.exchangers)
	s.mu.Unlock()
	if len(exchangers) == 0 {
		return
	}
	snap := s.Snapshot()
	for _, ex := range exchangers {
		ex.UpdateAllDatas(snap)
		ex.Broadcast(u)
	}
}

// -----------------------------------------------------------------------------

// Close tears the session down: in-flight fetches stop writing to the caches,
// stream and polling stop, both caches are cleared. Safe to call repeatedly.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.alive.Store(false)

		s.mu.Lock()
		cancel := s.cancel
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}

		if err := s.manager.Close(); err != nil {
			s.errs.Handle(err, "transport close")
		}
		s.wg.Wait()

		s.gateway.Clear()
		s.channels.Clear()

		if s.store != nil {
			if err := s.store.Close(); err != nil {
				s.errs.Handle(err, "preference store close")
			}
		}
		s.Logger.Info("Session %s closed", s.ID)
	})
	return nil
}
