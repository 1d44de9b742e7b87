// Package app assembles herald: config, logging, storage, the detection
// pipeline, the delivery queue, and the schedulers around them.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"herald/internal/channel"
	"herald/internal/channel/telegram"
	"herald/internal/config"
	"herald/internal/content"
	"herald/internal/dedup"
	"herald/internal/delivery"
	"herald/internal/eventbus"
	"herald/internal/pipeline"
	"herald/internal/source"
	"herald/internal/storage"
	logx "herald/pkg/logx"
)

const defaultFetchSpec = "@every 2m"

type App struct {
	cfgPath string
	cfgm    *config.Manager

	log  logx.Logger
	logs *logx.Service

	store  storage.Store
	sender *telegram.Adapter
	bus    eventbus.Bus

	det     *dedup.Detector
	tracker *content.Tracker
	queue   *delivery.Queue
	pipe    *pipeline.Pipeline
	poller  *source.Poller

	cleanup *cron.Cron

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	// The adapter needs a logger and the log service needs the adapter, so
	// the adapter gets a plain console logger for bootstrap.
	bootLog := logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "telegram"))
	sender, err := telegram.New(telegram.Config{
		Token:      cfg.Telegram.Token,
		RatePerSec: cfg.Telegram.RatePerSec,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(loggingConfig(cfg), sender)
	log = log.With(logx.String("comp", "app"))
	if t, err := announceTarget(cfg); err == nil {
		logs.SetChannelTarget(t)
	}
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	store, err := storage.Open(storageConfig(cfg), log.With(logx.String("comp", "storage")))
	if err != nil {
		logs.Close()
		return nil, err
	}

	target, err := announceTarget(cfg)
	if err != nil {
		logs.Close()
		return nil, err
	}

	dcfg, err := deliveryConfig(cfg)
	if err != nil {
		logs.Close()
		return nil, err
	}
	maxAge, err := config.ParseDurationOrDefault("content.max_age", cfg.Content.MaxAge, content.DefaultMaxAge)
	if err != nil {
		logs.Close()
		return nil, err
	}

	bus := eventbus.New()
	det := dedup.New(dedup.Config{MaxEntries: cfg.Detector.MaxEntries}, store, log.With(logx.String("comp", "dedup")))
	tracker := content.New(content.Config{MaxAge: maxAge}, store, log.With(logx.String("comp", "content")))
	queue := delivery.New(dcfg, sender, log.With(logx.String("comp", "delivery")), bus, store)
	pipe := pipeline.New(pipeline.Config{Target: target}, det, tracker, queue, bus, log.With(logx.String("comp", "pipeline")))
	poller := source.NewPoller(pipe.Sink(), log.With(logx.String("comp", "poller")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logs,
		store:   store,
		sender:  sender,
		bus:     bus,
		det:     det,
		tracker: tracker,
		queue:   queue,
		pipe:    pipe,
		poller:  poller,
	}, nil
}

// Pipeline exposes the ingest entry point for push-based detection paths
// (webhooks, websocket listeners) that don't go through the poller.
func (a *App) Pipeline() *pipeline.Pipeline { return a.pipe }

// RegisterFetcher schedules a polled detection source. The cron spec comes
// from the sources config section (keyed by fetcher name), falling back to
// every two minutes.
func (a *App) RegisterFetcher(f source.Fetcher) error {
	spec := defaultFetchSpec
	if cfg := a.cfgm.Get(); cfg != nil {
		if s, ok := cfg.Sources[f.Name()]; ok && s != "" {
			spec = s
		}
	}
	return a.poller.Register(spec, f)
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	// Rehydrate survives restarts: announced content stays announced.
	a.tracker.Load(runCtx)

	a.queue.Start(runCtx)
	a.poller.Start()

	if err := a.startCleanup(); err != nil {
		cancel()
		return err
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(runCtx)
	}()

	sub := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(runCtx, sub)
	}()

	events, unsub := a.bus.Subscribe(64)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer unsub()
		a.eventLoop(runCtx, events)
	}()

	a.log.Info("herald started", logx.String("config", a.cfgPath))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	a.poller.Stop()
	if a.cleanup != nil {
		<-a.cleanup.Stop().Done()
	}

	// Drain pending announcements before tearing anything else down.
	a.queue.Stop(ctx)

	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()

	if a.store != nil {
		_ = a.store.Close()
	}
	a.log.Info("herald stopped")
	_ = a.logs.Close()
	return nil
}

func (a *App) startCleanup() error {
	spec := a.cfgm.Get().Content.CleanupSchedule
	if spec == "" {
		spec = "@hourly"
	}
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if n := a.tracker.Cleanup(ctx); n > 0 {
			a.log.Debug("content cleanup", logx.Int("removed", n))
		}
	})
	if err != nil {
		return err
	}
	c.Start()
	a.cleanup = c
	return nil
}

// reloadLoop applies hot-reloadable settings: logging, announce target, and
// delivery pacing. Everything else needs a restart.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						cfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			a.logs.Apply(loggingConfig(cfg))
			if t, err := announceTarget(cfg); err == nil {
				a.logs.SetChannelTarget(t)
				a.pipe.SetTarget(t)
			}
			if dcfg, err := deliveryConfig(cfg); err == nil {
				a.queue.Apply(dcfg)
			}
			a.log.Info("config reloaded")
		}
	}
}

// eventLoop is the bus consumer: announce lifecycle events surface in the
// logs without coupling the queue to the logger's verbosity.
func (a *App) eventLoop(ctx context.Context, events <-chan eventbus.Event) {
	log := a.log.With(logx.String("comp", "events"))
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			switch e.Type {
			case eventbus.EventFailed:
				log.Warn("announce event", logx.String("event", e.Type), logx.Any("data", e.Data))
			default:
				log.Debug("announce event", logx.String("event", e.Type), logx.Any("data", e.Data))
			}
		}
	}
}

// ---- config mapping ----

func loggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Channel: logx.ChannelConfig{
			Enabled:    cfg.Logging.Channel.Enabled,
			MinLevel:   cfg.Logging.Channel.MinLevel,
			RatePerSec: cfg.Logging.Channel.RatePerSec,
		},
	}
}

func announceTarget(cfg *config.Config) (channel.Target, error) {
	id, err := cfg.Telegram.ChatID()
	if err != nil {
		return channel.Target{}, err
	}
	return channel.Target{ChatID: id, ThreadID: cfg.Telegram.ThreadID}, nil
}

func storageConfig(cfg *config.Config) storage.Config {
	s := cfg.Storage
	if s == nil {
		return storage.Config{}
	}
	busy, _ := config.ParseDurationField("storage.busy_timeout", s.BusyTimeout)
	return storage.Config{Driver: s.Driver, Path: s.Path, BusyTimeout: busy}
}

func deliveryConfig(cfg *config.Config) (delivery.Config, error) {
	d := cfg.Delivery
	var out delivery.Config
	var err error
	if out.BaseDelay, err = config.ParseDurationField("delivery.base_delay", d.BaseDelay); err != nil {
		return out, err
	}
	if out.BurstWindow, err = config.ParseDurationField("delivery.burst_window", d.BurstWindow); err != nil {
		return out, err
	}
	if out.MaxBackoff, err = config.ParseDurationField("delivery.max_backoff", d.MaxBackoff); err != nil {
		return out, err
	}
	if out.RateLimitBuffer, err = config.ParseDurationField("delivery.rate_limit_buffer", d.RateLimitBuffer); err != nil {
		return out, err
	}
	if out.ShutdownTimeout, err = config.ParseDurationField("delivery.shutdown_timeout", d.ShutdownTimeout); err != nil {
		return out, err
	}
	out.BurstAllowance = d.BurstAllowance
	out.MaxRetries = d.MaxRetries
	if out.MaxRetries == 0 {
		out.MaxRetries = 3
	}
	out.BackoffMultiplier = d.BackoffMultiplier
	return out, nil
}
