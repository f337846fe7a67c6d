package poller

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tnicklin/grassy/clock"
	"github.com/tnicklin/grassy/logger"
	"github.com/tnicklin/grassy/metrics"
	"github.com/tnicklin/grassy/models"
	"github.com/tnicklin/grassy/notify"
	"github.com/tnicklin/grassy/twitch"
)

var _ Poller = (*DefaultPoller)(nil)

// DefaultPoller checks every configured category of every guild on a fixed
// interval and hands new broadcasts to the dispatcher.
type DefaultPoller struct {
	credentials CredentialChecker
	guilds      GuildSource
	configs     ConfigReader
	streams     StreamSource
	dispatcher  *notify.Dispatcher
	clock       clock.Clock
	logger      logger.Logger
	metrics     *metrics.Metrics

	enabled    bool
	interval   time.Duration
	maxBackoff time.Duration
	retention  time.Duration
	backoff    time.Duration
	rng        *rand.Rand

	namesMu sync.Mutex
	names   map[string]string

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// Params holds configuration for creating a new Poller.
type Params struct {
	Config      Config
	Credentials CredentialChecker
	Guilds      GuildSource
	Configs     ConfigReader
	Streams     StreamSource
	Dispatcher  *notify.Dispatcher
	Clock       clock.Clock
	Logger      logger.Logger
	Metrics     *metrics.Metrics
}

// New creates a new DefaultPoller with the given parameters.
func New(p Params) *DefaultPoller {
	p.Config.Defaults()

	clk := p.Clock
	if clk == nil {
		clk = clock.System()
	}

	return &DefaultPoller{
		credentials: p.Credentials,
		guilds:      p.Guilds,
		configs:     p.Configs,
		streams:     p.Streams,
		dispatcher:  p.Dispatcher,
		clock:       clk,
		logger:      logger.OrNop(p.Logger),
		metrics:     p.Metrics,
		enabled:     p.Config.IsEnabled(),
		interval:    p.Config.Interval,
		maxBackoff:  p.Config.MaxBackoff,
		retention:   p.Config.AnnounceRetention,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		names:       map[string]string{},
	}
}

// Start begins the poll loop. It returns immediately when notifications are
// globally disabled.
func (p *DefaultPoller) Start(ctx context.Context) error {
	if p.guilds == nil {
		return errors.New("poller: guild source is required")
	}
	if p.configs == nil {
		return errors.New("poller: config store is required")
	}
	if p.streams == nil {
		return errors.New("poller: stream source is required")
	}
	if p.dispatcher == nil {
		return errors.New("poller: dispatcher is required")
	}

	if !p.enabled {
		p.logger.InfoW("stream notifications disabled, poller not started")
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		return errors.New("poller: already started")
	}
	p.stop = make(chan struct{})
	p.done = make(chan struct{})

	go p.run(ctx, p.stop, p.done)

	p.logger.InfoW("poller started", "interval", p.interval.String())
	return nil
}

// Stop ends the poll loop and waits for the current tick to finish.
func (p *DefaultPoller) Stop() {
	p.mu.Lock()
	stop, done := p.stop, p.done
	p.stop, p.done = nil, nil
	p.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (p *DefaultPoller) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		res := p.pollOnce(ctx)
		wait := p.nextWait(res.failed())

		select {
		case <-time.After(wait):
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// nextWait returns the delay before the next tick. Clean ticks run on the
// fixed interval; failed ticks double the delay up to maxBackoff, plus up
// to 10% jitter.
func (p *DefaultPoller) nextWait(failed bool) time.Duration {
	if !failed {
		p.backoff = 0
		return p.interval
	}

	if p.backoff == 0 {
		p.backoff = p.interval * 2
	} else {
		p.backoff *= 2
	}
	if p.backoff > p.maxBackoff {
		p.backoff = p.maxBackoff
	}

	wait := p.backoff
	if jitterWindow := p.backoff / 10; jitterWindow > 0 {
		wait += time.Duration(p.rng.Int63n(int64(jitterWindow)))
	}
	return wait
}

type tickResult struct {
	sent             int
	upstreamFailures int
	sendFailures     int
	// polled lists the scopes whose broadcast listing was fetched.
	polled []notify.Scope
}

// failed reports whether the tick hit Twitch or Discord errors that the
// next tick would retry.
func (r tickResult) failed() bool {
	return r.upstreamFailures > 0 || r.sendFailures > 0
}

func (p *DefaultPoller) pollOnce(ctx context.Context) tickResult {
	var res tickResult
	started := time.Now()
	log := p.logger.With("tick_id", uuid.NewString())

	if p.credentials != nil {
		refreshed, err := p.credentials.EnsureFresh(ctx)
		switch {
		case err != nil:
			// Keep polling with the old token; the next tick tries again.
			log.WarnW("twitch token refresh failed", "error", err)
			p.recordUpstream(err, "refresh token")
			if twitch.IsUpstream(err) {
				res.upstreamFailures++
			}
		case refreshed:
			log.InfoW("twitch token refreshed before poll")
		}
	}

	for _, guildID := range p.guilds.Guilds() {
		if ctx.Err() != nil {
			break
		}

		cfg, found, err := p.configs.Get(ctx, guildID)
		if err != nil {
			log.ErrorW("failed to read guild stream config", "guild_id", guildID, "error", err)
			continue
		}
		if !found || !cfg.NotificationsActive {
			continue
		}

		for _, categoryID := range cfg.CategoryIDs() {
			p.pollCategory(ctx, log, guildID, categoryID, cfg.Categories[categoryID], &res)
		}
	}

	// Only scopes fetched this tick age out; failed or inactive ones keep
	// their entries until they are polled again.
	removed := p.dispatcher.Announced().Sweep(p.clock.Now(), p.retention, res.polled)
	if removed > 0 {
		log.DebugW("evicted ended broadcasts", "count", removed)
	}
	p.metrics.SetAnnounced(p.dispatcher.Announced().Len())
	p.metrics.ObserveTick(time.Since(started), res.failed())

	return res
}

func (p *DefaultPoller) pollCategory(ctx context.Context, log logger.Logger, guildID, categoryID string, setting models.CategorySetting, res *tickResult) {
	broadcasts, err := p.streams.ActiveBroadcasts(ctx, categoryID)
	if err != nil {
		log.WarnW("failed to fetch active broadcasts",
			"guild_id", guildID,
			"category_id", categoryID,
			"error", err,
		)
		p.recordUpstream(err, "get streams")
		if twitch.IsUpstream(err) {
			res.upstreamFailures++
		}
		return
	}
	res.polled = append(res.polled, notify.Scope{GuildID: guildID, CategoryID: categoryID})
	if len(broadcasts) == 0 {
		return
	}

	target := notify.Target{
		GuildID:      guildID,
		CategoryID:   categoryID,
		CategoryName: p.categoryName(ctx, categoryID, broadcasts),
		Setting:      setting,
	}
	sent, err := p.dispatcher.Dispatch(ctx, target, broadcasts)
	res.sent += sent
	if err != nil {
		res.sendFailures++
	}
}

// categoryName prefers the name carried by the broadcasts and falls back to
// a cached lookup.
func (p *DefaultPoller) categoryName(ctx context.Context, categoryID string, broadcasts []models.Broadcast) string {
	for _, b := range broadcasts {
		if b.CategoryName != "" {
			return b.CategoryName
		}
	}

	p.namesMu.Lock()
	name, ok := p.names[categoryID]
	p.namesMu.Unlock()
	if ok {
		return name
	}

	name, err := p.streams.CategoryName(ctx, categoryID)
	if err != nil {
		p.logger.DebugW("category name lookup failed", "category_id", categoryID, "error", err)
		return categoryID
	}

	p.namesMu.Lock()
	p.names[categoryID] = name
	p.namesMu.Unlock()
	return name
}

func (p *DefaultPoller) recordUpstream(err error, op string) {
	var ue *twitch.UpstreamError
	if errors.As(err, &ue) {
		op = ue.Op
	}
	p.metrics.UpstreamError(op)
}
