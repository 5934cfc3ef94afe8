package app

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"pollster/internal/banner"
	"pollster/internal/config"
	"pollster/internal/events"
	"pollster/internal/httpclient"
	"pollster/internal/interceptor"
	"pollster/internal/notify"
	"pollster/internal/polling"
	"pollster/internal/store"
	"pollster/internal/store/local"
	"pollster/internal/store/primary"
)

type App struct {
	Config *config.Config

	Bus      events.Bus
	Redis    *redis.Client // nil unless redis.events_channel is set
	Banner   *banner.Banner
	Notifier notify.Notifier

	Client    *httpclient.Client
	Transport *interceptor.Interceptor

	History   store.JobStore // nil when history.driver is "none"
	JobClient store.JobClient
	Engine    *polling.Engine

	detach []func()
}

// NewApp wires the engine and its collaborators from cfg. Toasts go to
// notifier; a nil notifier logs them.
func NewApp(cfg *config.Config, notifier notify.Notifier) (*App, error) {
	ctx := context.Background()
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	app := &App{Config: cfg, Notifier: notifier}

	app.initLogging()
	if err := app.initBus(ctx); err != nil {
		return nil, err
	}
	if err := app.initTransport(); err != nil {
		app.cleanupPartialInit()
		return nil, err
	}
	if err := app.initHistory(ctx); err != nil {
		app.cleanupPartialInit()
		return nil, err
	}
	app.initJobClient()
	app.initEngine()

	log.Debug("Application initialization complete.")
	return app, nil
}

func (a *App) initLogging() {
	level, err := log.ParseLevel(a.Config.Log.Level)
	if err != nil {
		log.Warnf("Unknown log level %q, using info", a.Config.Log.Level)
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

func (a *App) initBus(ctx context.Context) error {
	if a.Config.Redis.EventsChannel == "" {
		a.Bus = events.NewLocalBus()
	} else {
		rdb := redis.NewClient(&redis.Options{
			Addr:     a.Config.Redis.Address,
			Password: a.Config.Redis.Password,
			DB:       a.Config.Redis.DB,
		})
		bus, err := events.NewRedisBus(ctx, rdb, a.Config.Redis.EventsChannel)
		if err != nil {
			rdb.Close()
			return fmt.Errorf("init event bus: %w", err)
		}
		a.Redis = rdb
		a.Bus = bus
	}

	a.Banner = banner.New()
	a.detach = append(a.detach, a.Banner.Attach(a.Bus), notify.Forward(a.Bus, a.Notifier))
	return nil
}

func (a *App) initTransport() error {
	cfg := a.Config.API
	client, err := httpclient.New(cfg.BaseURL, httpclient.StaticSession(cfg.SessionToken), httpclient.Options{
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
	})
	if err != nil {
		return fmt.Errorf("init http client: %w", err)
	}
	a.Client = client
	a.Transport = interceptor.New(client, a.Bus, interceptor.DefaultRules())
	return nil
}

func (a *App) initHistory(ctx context.Context) error {
	switch a.Config.History.Driver {
	case "postgres":
		ps, err := primary.NewPrimaryStore(ctx, a.Config.History.DSN)
		if err != nil {
			return fmt.Errorf("init postgres history: %w", err)
		}
		a.History = ps
	case "sqlite":
		ls, err := local.Open(ctx, a.Config.History.DSN)
		if err != nil {
			return fmt.Errorf("init sqlite history: %w", err)
		}
		a.History = ls
	default:
		log.Debug("Job history disabled")
	}
	return nil
}

func (a *App) initJobClient() {
	a.JobClient = store.NewAsynqJobClient(a.RedisClientOpt())
}

func (a *App) initEngine() {
	p := a.Config.Polling
	opts := polling.DefaultOptions()
	opts.MaxProgress = p.MaxProgress
	opts.TransientRetries = p.TransientRetries
	opts.TransientDelay = p.TransientDelay
	opts.Windows = map[polling.Speed]polling.Window{
		polling.SpeedFast: {Min: p.Windows.Fast.Min, Max: p.Windows.Fast.Max},
		polling.SpeedLong: {Min: p.Windows.Long.Min, Max: p.Windows.Long.Max},
	}
	opts.Notifier = a.Notifier
	if a.History != nil {
		opts.Recorder = store.NewRecorder(a.History)
	}
	a.Engine = polling.NewEngine(a.Transport, opts)
}

// RedisClientOpt is the asynq connection used by the job client and worker.
func (a *App) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     a.Config.Redis.Address,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	}
}

// Close releases every resource NewApp acquired.
func (a *App) Close() error {
	a.cleanupPartialInit()
	return nil
}

func (a *App) cleanupPartialInit() {
	for _, detach := range a.detach {
		detach()
	}
	a.detach = nil
	if a.JobClient != nil {
		if err := a.JobClient.Close(); err != nil {
			log.Warnf("Error closing job client: %v", err)
		}
	}
	if a.History != nil {
		if err := a.History.Close(); err != nil {
			log.Warnf("Error closing history store: %v", err)
		}
	}
	if a.Bus != nil {
		if err := a.Bus.Close(); err != nil {
			log.Warnf("Error closing event bus: %v", err)
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
}
