package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"gozo/internal/eventbus"
	"gozo/internal/gateway"
	gmetrics "gozo/internal/metrics"
	"gozo/internal/scheduler"
	"gozo/internal/store"
	logx "gozo/pkg/logx"
)

// App is the Supervisor: it builds the Bus Gateway, Durable Store and
// Scheduler Core in dependency order, performs restart-time recovery, then
// starts the Gateway subscription and the Scheduler's timer worker. On
// termination it stops the Gateway first (no more admissions), drains the
// Scheduler, then exits.
type App struct {
	cfgPath string
	cfgm    *ConfigManager

	sup *Supervisor

	log  logx.Logger
	logs *logx.Service

	nc  *nats.Conn
	db  store.Store
	gw  *gateway.Gateway
	sch *scheduler.Service
	met *gmetrics.Collector
	mon *gmetrics.Service
	bus eventbus.Bus

	drain time.Duration
}

// NewApp connects to the bus, opens the Durable Store, performs recovery,
// and wires the Gateway and Scheduler Core together. It does not yet
// subscribe or start the firing loop — call Start for that.
func NewApp(ctx context.Context, cfgPath string, bus *BusOptions) (*App, error) {
	cfgm := NewConfigManager(cfgPath)
	cfg := &Config{}
	if strings.TrimSpace(cfgPath) != "" {
		loaded, err := cfgm.Load()
		if err != nil {
			return nil, fmt.Errorf("app: load config: %w", err)
		}
		cfg = loaded
	}

	logCfg := logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
	if strings.TrimSpace(logCfg.Level) == "" {
		logCfg.Level = "INFO"
	}
	logSvc, log := logx.New(logCfg)
	log = log.With(logx.String("comp", "app"))

	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	cfgm.SetValidator(validateConfigReload)

	nc, err := dial(bus, log.With(logx.String("comp", "bus")))
	if err != nil {
		return nil, fmt.Errorf("app: connect bus: %w", err)
	}

	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		bucket = "gozo"
	}
	db, err := store.Open(ctx, store.Config{Driver: "jetstream", Bucket: bucket}, nc, log.With(logx.String("comp", "store")))
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("app: open store: %w", err)
	}

	subject := strings.TrimSpace(cfg.Subject)
	if subject == "" {
		subject = "gozo"
	}

	pollFloor, err := parseDurationOrDefault("poll_floor", cfg.PollFloor, 0)
	if err != nil {
		nc.Close()
		return nil, err
	}
	sch := scheduler.New(scheduler.Config{PollFloor: pollFloor}, nil, db, log.With(logx.String("comp", "scheduler")))
	gw := gateway.New(nc, gateway.Config{Subject: subject}, schedAdmitter{sch}, log.With(logx.String("comp", "gateway")))
	sch.SetEmitter(gw)

	met := gmetrics.NewCollector(nil)
	sch.SetMetrics(met)
	gw.SetMetrics(met)

	evbus := eventbus.New()
	sch.SetBus(evbus)
	mon := gmetrics.New(gmetrics.Config{Enabled: cfg.Metrics.Enabled, Addr: cfg.Metrics.Addr}, log.With(logx.String("comp", "metrics")))

	drain, err := parseDurationOrDefault("drain", cfg.Drain, 5*time.Second)
	if err != nil {
		nc.Close()
		return nil, err
	}

	if db != nil {
		entries, err := db.Iterate(ctx)
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("app: recovery read: %w", err)
		}
		sch.Recover(ctx, entries)
	}

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		nc:      nc,
		db:      db,
		gw:      gw,
		sch:     sch,
		met:     met,
		mon:     mon,
		bus:     evbus,
		drain:   drain,
	}, nil
}

// validateConfigReload rejects a reloaded config before it is committed or
// published to hot-reload subscribers.
// Subject and Bucket are read once at startup and only logged as "requires
// restart" on change (see watchConfig); Drain and PollFloor are parsed here
// too even though only PollFloor hot-applies — a reload that can't even be
// parsed into a valid duration should never reach a subscriber at all.
func validateConfigReload(_ context.Context, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("app: nil config")
	}
	if _, err := parseDurationOrDefault("drain", cfg.Drain, 5*time.Second); err != nil {
		return err
	}
	if _, err := parseDurationOrDefault("poll_floor", cfg.PollFloor, 0); err != nil {
		return err
	}
	return nil
}

// dial opens the NATS connection. Bus disconnects after a successful
// connect are not retried inside the core: the ClosedHandler set here only
// logs, and Start replaces it with one that records a FatalError on the
// supervisor, cancelling it so the process exits non-zero and an external
// supervisor restarts it.
func dial(bus *BusOptions, log logx.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("gozo"),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Error("bus connection closed; exiting for supervised restart")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("bus disconnected", logx.Err(err))
			}
		}),
	}
	if bus.Secure {
		opts = append(opts, nats.Secure())
	}
	if bus.Token != "" {
		opts = append(opts, nats.Token(bus.Token))
	}
	if bus.User != "" && bus.Password != "" {
		opts = append(opts, nats.UserInfo(bus.User, bus.Password))
	}
	if bus.CertFile != "" && bus.KeyFile != "" {
		opts = append(opts, nats.ClientCert(bus.CertFile, bus.KeyFile))
	}
	if bus.NKey != "" {
		o, err := nats.NkeyOptionFromSeed(bus.NKey)
		if err != nil {
			return nil, fmt.Errorf("nkey: %w", err)
		}
		opts = append(opts, o)
	}
	if bus.Creds != "" {
		opts = append(opts, nats.UserCredentials(bus.Creds))
	}
	return nats.Connect(bus.Address, opts...)
}

// schedAdmitter narrows *scheduler.Service down to the gateway.Admitter
// surface the Gateway actually calls.
type schedAdmitter struct{ s *scheduler.Service }

func (a schedAdmitter) Admit(ctx context.Context, req scheduler.ScheduleRequest) error {
	return a.s.Admit(ctx, req)
}

func (a schedAdmitter) Cancel(ctx context.Context, req scheduler.CancelRequest) error {
	return a.s.Cancel(ctx, req)
}

// Start performs recovery ordering (already done in NewApp), then starts
// the Gateway subscription and the Scheduler's timer worker under the
// Supervisor, and begins watching the config file for hot-reloadable
// changes (logging, poll floor).
func (a *App) Start(ctx context.Context) error {
	a.sup = NewSupervisor(ctx, WithLogger(a.log), WithCancelOnError(true))

	// A bus connection closed while the supervisor is still running is
	// fatal. A close after the supervisor is cancelled (Stop) is not.
	a.nc.SetClosedHandler(func(_ *nats.Conn) {
		if a.sup.Context().Err() != nil {
			return
		}
		a.log.Error("bus connection closed; exiting for supervised restart")
		a.sup.Go("bus", func(context.Context) error {
			return &scheduler.FatalError{Reason: "bus connection closed"}
		})
	})

	if err := a.gw.Start(a.sup.Context()); err != nil {
		return fmt.Errorf("app: gateway start: %w", err)
	}
	if err := a.mon.Start(a.sup.Context()); err != nil {
		a.log.Warn("metrics server failed to start", logx.Err(err))
	}

	a.sup.Go0("scheduler", func(ctx context.Context) {
		a.sch.Run(ctx)
	})
	a.sup.Go0("event-log", a.logLifecycleEvents)

	if strings.TrimSpace(a.cfgPath) != "" {
		a.sup.Go("config-watch", func(ctx context.Context) error {
			return a.cfgm.Watch(ctx)
		})
		a.sup.Go0("config-apply", a.watchConfig)
	}

	a.log.Info("started")
	return nil
}

// logLifecycleEvents is the one in-process subscriber to the scheduler's
// event bus: it turns admit/cancel/fire signals into debug-level log
// lines, useful when tracing a single schedule's path without raising the
// whole service to debug verbosity.
func (a *App) logLifecycleEvents(ctx context.Context) {
	ch, unsub := a.bus.Subscribe(32)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			a.log.Debug("schedule event",
				logx.String("kind", string(ev.Kind)),
				logx.String("id", ev.ID),
				logx.Int64("fire_at", ev.FireAt),
				logx.String("subject", ev.Subject),
			)
		}
	}
}

// watchConfig applies hot-reloadable fields (logging, poll floor) as they
// change. Subject, Bucket and Drain are read once at startup — changing
// them requires a restart, since they're entangled with an already-open
// bus subscription/KV bucket/in-flight drain loop.
func (a *App) watchConfig(ctx context.Context) {
	sub := a.cfgm.Subscribe(4)
	defer a.cfgm.Unsubscribe(sub)

	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok || cfg == nil {
				return
			}
			sections, attrs := SummarizeConfigChange(last, cfg)
			last = cfg
			if len(sections) == 0 {
				continue
			}
			fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
			a.log.Info("config change applied", fields...)

			for _, s := range sections {
				switch s {
				case "subject", "bucket", "drain", "metrics":
					a.log.Warn("config field changed but requires restart to take effect", logx.String("field", s))
				case "poll_floor":
					if pf, err := parseDurationOrDefault("poll_floor", cfg.PollFloor, 0); err != nil {
						a.log.Warn("poll_floor reload rejected", logx.Err(err))
					} else {
						a.sch.SetPollFloor(pf)
					}
				}
			}

			a.logs.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
		}
	}
}

// Stop shuts down in dependency order: stop the Gateway first so no new
// admissions occur, drain the Scheduler's pending queue until empty or the
// drain deadline passes, then tear down the rest. Durable schedules still
// pending after the deadline remain in the Store for the next process.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}
		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()
		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name))
		}
	}

	step("gateway", 2*time.Second, func(c context.Context) error { return a.gw.Stop() })

	step("drain", a.drain, func(c context.Context) error {
		for {
			if a.sch.Pending() == 0 {
				return nil
			}
			select {
			case <-c.Done():
				return c.Err()
			case <-time.After(50 * time.Millisecond):
			}
		}
	})

	a.sup.Cancel()

	step("metrics", 1*time.Second, func(c context.Context) error { return a.mon.Stop(c) })
	step("store", 1*time.Second, func(c context.Context) error {
		if a.db != nil {
			return a.db.Close()
		}
		return nil
	})
	step("bus", 1*time.Second, func(c context.Context) error {
		a.nc.Close()
		return nil
	})
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}

// Done reports the underlying Supervisor's context — closed once Stop has
// cancelled it (or it was cancelled by an internal fatal error).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		return make(chan struct{})
	}
	return a.sup.Context().Done()
}

// Err reports the first fatal error observed by any supervised goroutine.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}
