package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/tnicklin/grassy/clock"
	"github.com/tnicklin/grassy/config"
	"github.com/tnicklin/grassy/discord"
	"github.com/tnicklin/grassy/logger"
	"github.com/tnicklin/grassy/metrics"
	"github.com/tnicklin/grassy/notify"
	"github.com/tnicklin/grassy/poller"
	"github.com/tnicklin/grassy/store"
	"github.com/tnicklin/grassy/twitch"
)

func main() {
	params, err := build()
	if err != nil {
		log.Fatal(err)
	}

	if err = run(params); err != nil {
		log.Fatal(err)
	}
}

func build() (runParams, error) {
	// A missing .env is fine; the environment may already be set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return runParams{}, fmt.Errorf("load .env: %w", err)
	}

	cfg, err := config.LoadWithDefaults("config/config.yaml", "config/secrets.yaml")
	if err != nil {
		return runParams{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return runParams{}, err
	}

	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		return runParams{}, fmt.Errorf("initialize logger: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(registry)

	var (
		clk      clock.Clock = clock.System()
		ntpClock *clock.NTPClock
	)
	if cfg.Clock.Enabled() {
		ntpClock = clock.NewNTP(append(cfg.Clock.Options(), clock.WithLogger(appLogger))...)
		clk = ntpClock
	}

	st, err := store.Open(context.Background(), cfg.Store, appLogger.With("component", "store"))
	if err != nil {
		return runParams{}, fmt.Errorf("open store: %w", err)
	}

	credentials := twitch.NewCredentials(twitch.CredentialsParams{
		Config:    cfg.Twitch,
		Clock:     clk,
		Logger:    appLogger.With("component", "credentials"),
		OnRefresh: appMetrics.TokenRefresh,
	})
	twitchClient := twitch.New(twitch.Params{
		Config: cfg.Twitch,
		Tokens: credentials,
		Logger: appLogger.With("component", "twitch"),
	})

	discordClient, err := discord.New(discord.Params{
		Config:   cfg.Discord,
		Store:    st,
		Resolver: twitchClient,
		Logger:   appLogger.With("component", "discord"),
		Metrics:  appMetrics,
	})
	if err != nil {
		_ = st.Close()
		return runParams{}, err
	}

	dispatcher := notify.NewDispatcher(notify.Params{
		Sender:  discordClient,
		Avatars: twitchClient,
		Clock:   clk,
		Logger:  appLogger.With("component", "notify"),
		Metrics: appMetrics,
	})

	streamPoller := poller.New(poller.Params{
		Config:      cfg.Poller,
		Credentials: credentials,
		Guilds:      discordClient,
		Configs:     st,
		Streams:     twitchClient,
		Dispatcher:  dispatcher,
		Clock:       clk,
		Logger:      appLogger.With("component", "poller"),
		Metrics:     appMetrics,
	})

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled() {
		metricsServer = metrics.NewServer(metrics.ServerParams{
			Config:   cfg.Metrics,
			Gatherer: registry,
			Logger:   appLogger,
		})
	}

	return runParams{
		Config:        cfg,
		Logger:        appLogger,
		Store:         st,
		NTPClock:      ntpClock,
		Credentials:   credentials,
		DiscordClient: discordClient,
		Poller:        streamPoller,
		MetricsServer: metricsServer,
	}, nil
}

type runParams struct {
	Config        *config.AppConfig
	Logger        logger.Logger
	Store         store.Store
	NTPClock      *clock.NTPClock
	Credentials   *twitch.Credentials
	DiscordClient discord.Discord
	Poller        poller.Poller
	MetricsServer *metrics.Server
}

// run starts all components and runs the application until shutdown.
func run(p runParams) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer p.Logger.Sync()
	defer p.Store.Close()

	if p.NTPClock != nil {
		if err := p.NTPClock.Start(ctx); err != nil {
			return fmt.Errorf("start ntp clock: %w", err)
		}
		defer p.NTPClock.Stop()
	}

	if p.MetricsServer != nil {
		if err := p.MetricsServer.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
	}

	if err := p.DiscordClient.Start(ctx); err != nil {
		return fmt.Errorf("start discord client: %w", err)
	}

	go p.Credentials.RunRefreshLoop(ctx, p.Config.Twitch.RefreshCheckInterval)

	if err := p.Poller.Start(ctx); err != nil {
		_ = p.DiscordClient.Stop()
		return fmt.Errorf("start poller: %w", err)
	}

	p.Logger.InfoW("grassy started",
		"store", p.Config.Store.Driver,
		"poll_interval", p.Config.Poller.Interval.String(),
	)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	p.Logger.InfoW("shutting down")
	p.Poller.Stop()
	if err := p.DiscordClient.Stop(); err != nil {
		p.Logger.ErrorW("stop discord client", "error", err)
	}
	cancel()

	if p.MetricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := p.MetricsServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}

	return nil
}
