// Package app wires configuration, logging, storage, the engagement pages
// and the HTTP server into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"resumeassist/internal/config"
	"resumeassist/internal/engagement"
	"resumeassist/internal/httpserver"
	"resumeassist/internal/runtime/supervisor"
	"resumeassist/internal/storage"
	logx "resumeassist/pkg/logx"
)

type StopReason string

const (
	StopSignal     StopReason = "signal"
	StopFatalError StopReason = "fatal_error"
	StopAppStop    StopReason = "app_stop"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	store storage.Store
	pages *engagement.Pages
	http  *httpserver.Server
	maint *maintenance

	driver string
	grace  time.Duration
}

// New loads the config at cfgPath (empty: defaults plus environment) and
// builds every component. Nothing runs until Start.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfgm.SetValidator(config.Validate)
	cfg, err := cfgm.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logs, log := logx.New(mapLogging(cfg))
	cfgm.SetLogger(log)

	store, driver, err := OpenStorage(cfg, log)
	if err != nil {
		logs.Close()
		return nil, err
	}

	settings, maxPages, err := mapEngagement(cfg)
	if err != nil {
		closeQuietly(store)
		logs.Close()
		return nil, err
	}
	pages := engagement.NewPages(engagement.Deps{
		Backend:  store,
		Log:      log.With(logx.String("comp", "engagement")),
		Settings: settings,
	}, maxPages)

	srvCfg, err := mapServer(cfg)
	if err != nil {
		closeQuietly(store)
		logs.Close()
		return nil, err
	}
	grace, err := config.ParseDurationOrDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout, config.DefaultShutdownTimeout)
	if err != nil {
		closeQuietly(store)
		logs.Close()
		return nil, err
	}

	a := &App{
		cfgm:   cfgm,
		log:    log.With(logx.String("comp", "app")),
		logs:   logs,
		store:  store,
		pages:  pages,
		maint:  newMaintenance(store, log.With(logx.String("comp", "maintenance"))),
		driver: driver,
		grace:  grace,
	}
	a.http = httpserver.New(srvCfg, httpserver.Options{Pages: pages, Log: log, Health: a.health})

	if err := a.applyMaintenance(cfg); err != nil {
		closeQuietly(store)
		logs.Close()
		return nil, err
	}
	a.log.Info("app configured",
		logx.String("environment", cfg.Environment),
		logx.String("storage", driver),
		logx.Bool("debug", settings.Debug),
		logx.String("addr", srvCfg.Addr))
	return a, nil
}

// OpenStorage opens the configured decision store. A nil store with a nil
// error means persistence is off.
func OpenStorage(cfg *config.Config, log logx.Logger) (storage.Store, string, error) {
	sc, enabled, err := mapStorage(cfg)
	if err != nil || !enabled {
		if err == nil {
			log.Warn("storage disabled; visitor decisions last only for the page")
		}
		return nil, "none", err
	}
	st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, "", fmt.Errorf("storage: %w", err)
	}
	return st, sc.Driver, nil
}

func closeQuietly(st storage.Store) {
	if st != nil {
		_ = st.Close()
	}
}

func (a *App) Pages() *engagement.Pages { return a.pages }

// Done is closed when the supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) health() map[string]any {
	out := map[string]any{"storage": a.driver}
	if a.sup != nil {
		out["goroutines"] = a.sup.Snapshot()
	}
	return out
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.sup.Go("http.serve", func(c context.Context) error {
		return a.http.Run(c, a.grace)
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch)
	a.sup.Go0("config.reload", a.reloadLoop)
	a.sup.Go0("systemd.watchdog", func(c context.Context) { watchdog(c, a.log) })
	a.maint.Start()

	notifySystemd(a.log, daemon.SdNotifyReady)
	a.log.Info("app started")
	return nil
}

// reloadLoop applies what can change live: logging, engagement timings
// for new pages, and the maintenance schedule.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()
	for {
		var next *config.Config
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			next = cfg
		}
		// Coalesce bursts.
	drain:
		for {
			select {
			case newer := <-sub:
				if newer != nil {
					next = newer
				}
			default:
				break drain
			}
		}
		a.apply(last, next)
		last = next
	}
}

func (a *App) apply(prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	if restart := config.NeedsRestart(sections); len(restart) > 0 {
		a.log.Warn("config sections changed that need a restart", logx.String("sections", strings.Join(restart, ",")))
	}

	a.logs.Apply(mapLogging(next))

	if settings, _, err := mapEngagement(next); err != nil {
		a.log.Warn("invalid engagement config; keeping previous", logx.Err(err))
	} else {
		a.pages.Apply(settings)
	}

	if err := a.applyMaintenance(next); err != nil {
		a.log.Warn("invalid maintenance config; keeping previous", logx.Err(err))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config applied", fields...)
}

func (a *App) applyMaintenance(cfg *config.Config) error {
	if cfg.Maintenance.Disabled {
		return a.maint.Apply("", 0)
	}
	spec, retention, err := cfg.MaintenanceSchedule()
	if err != nil {
		return err
	}
	return a.maint.Apply(spec, retention)
}

// Stop shuts down in order: stop accepting requests, close every page,
// stop maintenance, close storage. Each step is bounded so one slow
// component cannot stall the rest.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	notifySystemd(a.log, daemon.SdNotifyStopping)
	a.sup.Cancel()

	var errs []error
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		c, cancel := context.WithTimeout(ctx, limit)
		defer cancel()
		if err := fn(c); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	step("supervisor", a.grace+2*time.Second, func(c context.Context) error {
		err := a.sup.Wait(c)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	step("pages", 5*time.Second, a.pages.CloseAll)
	step("maintenance", 5*time.Second, a.maint.Stop)
	step("storage", time.Second, func(context.Context) error {
		if a.store == nil {
			return nil
		}
		return a.store.Close()
	})

	a.log.Info("stopped")
	a.logs.Close()
	return errors.Join(errs...)
}
