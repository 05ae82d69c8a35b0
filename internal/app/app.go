package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"raidbot/internal/config"
	"raidbot/internal/eventbus"
	"raidbot/internal/messenger"
	"raidbot/internal/raid"
	"raidbot/internal/runtime/supervisor"
	"raidbot/internal/splay"
	"raidbot/internal/storage"
	"raidbot/internal/transport/telegram"
	"raidbot/pkg/logx"
	"raidbot/pkg/systemd"
)

type App struct {
	cfgm *config.Manager
	cfg  *config.Config

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	client  messenger.Client
	journal storage.Journal
	planner *splay.Planner
	orch    *raid.Orchestrator
	sleeper raid.Sleeper
	notify  systemd.Notifier

	runID   string
	startup time.Duration

	sup  *supervisor.Supervisor
	done chan struct{}

	mu      sync.Mutex
	results []raid.Channel
}

type Option func(*App)

// WithClient replaces the Telegram client (used by tests and alternative transports).
func WithClient(c messenger.Client) Option { return func(a *App) { a.client = c } }

// WithSleeper replaces every wall-clock wait, including the startup delay.
func WithSleeper(s raid.Sleeper) Option { return func(a *App) { a.sleeper = s } }

func WithNotifier(n systemd.Notifier) Option { return func(a *App) { a.notify = n } }

// New loads settings and builds every component. Settings problems come back
// as *config.Error.
func New(cfgPath string, opts ...Option) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	window, err := cfg.RateWindow()
	if err != nil {
		return nil, err
	}
	startup, err := cfg.Startup()
	if err != nil {
		return nil, err
	}
	jc, err := mapJournalConfig(cfg)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg), nil)
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	a := &App{
		cfgm:    cfgm,
		cfg:     cfg,
		log:     log.With(logx.String("comp", "app")),
		logs:    logSvc,
		bus:     eventbus.New(),
		sleeper: raid.TimerSleeper{},
		notify:  systemd.Default,
		runID:   uuid.NewString(),
		startup: startup,
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(a)
	}

	if a.client == nil {
		tc, err := telegram.New(mapClientConfig(cfg, window), log)
		if err != nil {
			_ = logSvc.Close()
			return nil, err
		}
		logSvc.SetSender(tc)
		a.client = tc
	}

	j, err := storage.Open(jc, log.With(logx.String("comp", "journal")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	a.journal = j

	a.planner = splay.NewPlanner(func() []string { return cfg.RaidOrder }, splay.Budget{
		Calls:  cfg.RateBudget(),
		Window: window,
	})

	compose := raid.Plain
	if cfg.SignOffEnabled() {
		compose = raid.SignOff
	}
	a.orch = raid.New(a.client,
		raid.WithLogger(log.With(logx.String("run_id", a.runID))),
		raid.WithBus(a.bus),
		raid.WithSleeper(a.sleeper),
		raid.WithComposer(compose),
	)
	return a, nil
}

// Done is closed once every channel task has finished.
func (a *App) Done() <-chan struct{} { return a.done }

// Results returns the final channel records after Done.
func (a *App) Results() []raid.Channel {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]raid.Channel(nil), a.results...)
}

func (a *App) Start(ctx context.Context) error {
	plan := a.planner.Plan()
	channels, err := raid.BuildChannels(a.cfg, plan)
	if err != nil {
		return err
	}
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))))
	a.log.Info("raid planned",
		logx.String("run_id", a.runID),
		logx.String("app", a.cfg.AppShortName),
		logx.Int64("api_id", a.cfg.APIID),
		logx.Int("channels", plan.Len()),
		logx.Duration("recommended_splay", plan.Recommended),
		logx.Duration("startup_delay", a.startup),
	)

	if a.journal != nil {
		events, unsub := a.bus.Subscribe(256)
		a.sup.Go0("journal.record", func(c context.Context) {
			defer unsub()
			storage.Record(c, a.journal, a.runID, events, a.log.With(logx.String("comp", "journal")))
		})
	}

	a.sup.Go("settings.watch", a.cfgm.Watch)

	a.sup.Go0("raid.run", func(c context.Context) {
		defer close(a.done)
		if a.startup > 0 {
			a.log.Info("waiting before connecting", logx.Duration("delay", a.startup))
		}
		if err := a.sleeper.Sleep(c, a.startup); err != nil {
			return
		}
		results := a.orch.Run(c, channels)
		a.mu.Lock()
		a.results = results
		a.mu.Unlock()
		a.summarize(results)
	})

	if _, err := systemd.Ready(a.notify); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	}
	_, _ = systemd.Status(a.notify, fmt.Sprintf("raiding %d channels", plan.Len()))
	a.log.Info("app started")
	return nil
}

func (a *App) summarize(results []raid.Channel) {
	byState := map[raid.State]int{}
	for _, c := range results {
		byState[c.State]++
		a.log.Info("channel finished",
			logx.String("channel", c.Name),
			logx.String("state", c.State.String()),
			logx.Int("attempts", c.Count),
		)
	}
	a.log.Info("raid finished",
		logx.Int("channels", len(results)),
		logx.Int("done", byState[raid.StateDone]),
		logx.Int("stopped", byState[raid.StateLoopStopped]),
		logx.Int("connect_failed", byState[raid.StateConnectFailed]),
	)
	if n := eventbus.Dropped(a.bus); n > 0 {
		a.log.Warn("raid events dropped before reaching the journal", logx.Int64("count", int64(n)))
	}
}

// Stop cancels every channel task where it is suspended, ends the client
// session and closes the journal. Each step is bounded so a stuck network
// call cannot hold shutdown.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = systemd.Stopping(a.notify)

	if a.sup != nil {
		a.sup.Cancel()
		a.step(ctx, "raid", 2*time.Second, func(c context.Context) error {
			select {
			case <-a.done:
				return nil
			case <-c.Done():
				return c.Err()
			}
		})
	}
	a.step(ctx, "client.logout", 3*time.Second, a.client.Logout)
	if a.sup != nil {
		a.step(ctx, "supervisor", 2*time.Second, a.sup.Wait)
		if c := a.sup.Counters(); c.Active > 0 {
			a.log.Warn("goroutines still running at stop",
				logx.Int64("active", c.Active),
				logx.Int64("started", int64(c.Started)),
			)
		}
	}
	if a.journal != nil {
		a.step(ctx, "journal", time.Second, func(context.Context) error { return a.journal.Close() })
	}

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// step runs fn with an upper bound; it never extends the caller's deadline.
func (a *App) step(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		limit = min(limit, time.Until(dl))
	}
	stepCtx, cancel := context.WithTimeout(ctx, max(limit, 0))
	defer cancel()

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
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)),
		)
	}
}
