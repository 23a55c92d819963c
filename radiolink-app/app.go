package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/compose-network/radiolink/metrics"
	"github.com/compose-network/radiolink/radiolink-app/config"
	apisrv "github.com/compose-network/radiolink/server/api"
	"github.com/compose-network/radiolink/x/codec"
	"github.com/compose-network/radiolink/x/events"
	"github.com/compose-network/radiolink/x/modem"
	"github.com/compose-network/radiolink/x/poller"
	"github.com/compose-network/radiolink/x/protocol"
	"github.com/compose-network/radiolink/x/transport/tcp"
	"github.com/compose-network/radiolink/x/vendor"
)

// App represents the radiolink application
type App struct {
	cfg     *config.Config
	log     zerolog.Logger
	client  *modem.Client
	poller  *poller.Poller
	metrics *modem.Metrics
	started time.Time

	// API server (HTTP)
	apiServer *apisrv.Server

	// Shutdown management
	shutdownFns []func() error
	wg          sync.WaitGroup

	cancel context.CancelFunc
}

// NewApp creates a new application instance
func NewApp(cfg *config.Config, log zerolog.Logger) (*App, error) {
	app := &App{
		cfg:         cfg,
		log:         log.With().Str("component", "app").Logger(),
		shutdownFns: make([]func() error, 0),
		started:     time.Now(),
	}

	if err := app.initialize(log); err != nil {
		return nil, fmt.Errorf("failed to initialize app: %w", err)
	}

	return app, nil
}

// initialize sets up the application components
func (a *App) initialize(log zerolog.Logger) error {
	client, err := a.initializeClient(log)
	if err != nil {
		return err
	}
	a.client = client

	p, err := poller.New(log, client, a.cfg.Modem.Poll)
	if err != nil {
		return fmt.Errorf("failed to initialize poller: %w", err)
	}
	a.poller = p

	a.shutdownFns = append(a.shutdownFns, func() error {
		p.Stop()
		return nil
	}, client.Close)

	if a.cfg.API.Enabled {
		a.initializeAPIServer()
	}
	return nil
}

// initializeClient builds the modem client from the configured variants and policies
func (a *App) initializeClient(log zerolog.Logger) (*modem.Client, error) {
	chain, replay, err := vendor.BuildChain(a.cfg.Modem.Variants...)
	if err != nil {
		return nil, fmt.Errorf("failed to build decoder chain: %w", err)
	}
	for _, code := range a.cfg.Modem.ReplayCodes {
		replay = append(replay, protocol.EventCode(code))
	}

	teardown, err := modem.ParseTeardownPolicy(a.cfg.Modem.TeardownPolicy)
	if err != nil {
		return nil, err
	}
	buffer, err := events.ParsePolicy(a.cfg.Modem.BufferPolicy)
	if err != nil {
		return nil, err
	}

	opts := []modem.Option{
		modem.WithChain(chain),
		modem.WithReplayCodes(replay...),
		modem.WithTeardownPolicy(teardown),
		modem.WithBufferPolicy(buffer),
		modem.WithLimits(a.cfg.Modem.Limits),
		modem.WithMaxFrameSize(a.cfg.Modem.MaxFrameSize),
		modem.WithMaxHistory(a.cfg.Modem.MaxHistory),
	}
	if a.cfg.Metrics.Enabled {
		a.metrics = modem.NewMetrics()
		opts = append(opts, modem.WithMetrics(a.metrics))
	}

	a.log.Info().
		Str("chain", chain.Name()).
		Int("replay_codes", len(replay)).
		Str("teardown_policy", teardown.String()).
		Str("buffer_policy", buffer.String()).
		Msg("Modem client configured")

	return modem.New(log, opts...), nil
}

// initializeAPIServer sets up the HTTP API server with all endpoints
func (a *App) initializeAPIServer() {
	s := apisrv.NewServer(a.cfg.API.Server(), a.log)

	newHandler(a.client, a.poller, a.cfg.Modem.RequestTimeout, a.log).Register(s.Router)

	if a.cfg.Metrics.Enabled {
		s.Router.Handle(a.cfg.Metrics.Path, promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})).
			Methods(http.MethodGet)
	}

	a.apiServer = s
}

// Run starts the application and blocks until shutdown.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.connectLoop(runCtx)
	}()

	a.poller.Start(runCtx)
	go a.metricsReporter(runCtx)

	if a.cfg.Metrics.Enabled {
		go metrics.StartPeriodicCollection(runCtx, a.cfg.Metrics.RuntimeInterval, a.started)
	}

	// Start API server
	if a.apiServer != nil {
		go func() {
			if err := a.apiServer.Start(runCtx); err != nil {
				a.log.Error().Err(err).Msg("API server error")
				cancel()
			}
		}()
	}

	return a.runWithGracefulShutdown(runCtx)
}

// connectLoop keeps one transport attached, redialing with exponential
// backoff after each teardown.
func (a *App) connectLoop(ctx context.Context) {
	backoff := a.cfg.Modem.ReconnectMin
	fc := codec.NewStreamCodec(a.cfg.Modem.MaxFrameSize)

	for attempt := 1; ; attempt++ {
		conn, err := tcp.Dial(ctx, a.cfg.Modem.Network, a.cfg.Modem.Addr,
			fmt.Sprintf("modem-%d", attempt), fc, a.log, a.cfg.Transport)
		if err == nil {
			err = a.client.Attach(conn)
			if err != nil {
				_ = conn.Close()
			}
		}

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			a.log.Warn().
				Err(err).
				Str("addr", a.cfg.Modem.Addr).
				Int("attempt", attempt).
				Dur("retry_in", backoff).
				Msg("Failed to connect to modem")

			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, a.cfg.Modem.ReconnectMax)
			continue
		}

		backoff = a.cfg.Modem.ReconnectMin
		select {
		case <-ctx.Done():
			return
		case <-a.client.SessionDone():
			a.log.Info().Str("addr", a.cfg.Modem.Addr).Msg("Modem session ended, reconnecting")
		}
	}
}

// runWithGracefulShutdown handles shutdown signals.
func (a *App) runWithGracefulShutdown(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	a.log.Info().Msg("radiolink started successfully")

	select {
	case <-ctx.Done():
		a.log.Info().Msg("Context canceled, initiating shutdown")
	case sig := <-sigCh:
		a.log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	}

	if a.cancel != nil {
		a.cancel()
	}

	return a.shutdown()
}

// shutdown stops the reconnect loop and closes the client, which drains
// in-flight requests.
func (a *App) shutdown() error {
	a.log.Info().Msg("Initiating graceful shutdown")
	a.wg.Wait()

	var firstErr error
	for _, fn := range a.shutdownFns {
		if err := fn(); err != nil {
			a.log.Error().Err(err).Msg("Shutdown function error")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	a.log.Info().Msg("Graceful shutdown complete")
	return firstErr
}

// metricsReporter periodically reports application statistics.
func (a *App) metricsReporter(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := a.client.Stats()

			a.log.Info().
				Bool("connected", stats.Connected).
				Str("session_id", stats.SessionID).
				Int("pending", stats.Pending).
				Uint64("frames_in", stats.FramesIn).
				Uint64("frames_out", stats.FramesOut).
				Uint64("malformed", stats.Malformed).
				Uint64("teardowns", stats.Teardowns).
				Float64("uptime_seconds", stats.Uptime.Seconds()).
				Msg("radiolink statistics")
		}
	}
}
