// Package app wires configuration, storage, the Telegram gateway and the
// bot's domain services into one supervised process.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"fsubbot/internal/broadcast"
	"fsubbot/internal/commands"
	"fsubbot/internal/config"
	"fsubbot/internal/eventbus"
	"fsubbot/internal/fsub"
	"fsubbot/internal/observability/health"
	"fsubbot/internal/runtime/supervisor"
	"fsubbot/internal/storage"
	"fsubbot/internal/task/scheduler"
	"fsubbot/internal/transport"
	telegram "fsubbot/internal/transport/telegram/adapter"
	"fsubbot/internal/transport/telegram/router"
	"fsubbot/pkg/logx"
	"fsubbot/pkg/systemd"
)

const (
	jobPendingSweep = "fsub.pending_sweep"
	jobSessionPrune = "sessions.prune"
)

type Options struct {
	ConfigPath string
	Version    string
}

type App struct {
	opts      Options
	startedAt time.Time

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter transport.Adapter
	router  *router.Router
	sched   *scheduler.Service
	health  *health.Service

	engine     *fsub.Engine
	sessions   *fsub.Sessions
	broadcasts *broadcast.Sessions
	dispatcher *broadcast.Dispatcher

	support atomic.Value // string
	updates chan transport.Update
}

func New(opts Options) (*App, error) {
	cfgm := config.NewConfigManager(opts.ConfigPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	}

	logs, log := logx.New(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	handlerTimeout, err := config.ParseDurationOrDefault("telegram.handler_timeout", cfg.Telegram.HandlerTimeout, 30*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, PollTimeout: pollTimeout},
		log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}
	logs.AttachSender(ad)

	sc, _ := mapStorageConfig(cfg)
	store, err := storage.Open(sc, log)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	log.Info("storage ready", logx.String("driver", sc.Driver))

	bus := eventbus.New()
	sched := scheduler.New(scheduler.Config{Timezone: cfg.Scheduler.Timezone}, log.With(logx.String("comp", "scheduler")))
	sessions := fsub.NewSessions()
	engine := fsub.NewEngine(fsub.Deps{
		Gateway:  ad,
		Repo:     fsub.NewRepository(store),
		Pending:  store,
		Timers:   sched,
		Sessions: sessions,
		Bus:      bus,
		Log:      log,
	})

	a := &App{
		opts:       opts,
		startedAt:  time.Now(),
		cfgm:       cfgm,
		log:        log,
		logs:       logs,
		bus:        bus,
		store:      store,
		adapter:    ad,
		sched:      sched,
		health:     health.New(mapHealthConfig(cfg, opts.Version), log),
		engine:     engine,
		sessions:   sessions,
		broadcasts: broadcast.NewSessions(),
		dispatcher: broadcast.NewDispatcher(ad, store, bus, log),
		updates:    make(chan transport.Update, 256),
	}
	a.support.Store(cfg.Telegram.SupportChannel)
	a.router = router.New(log, ad, router.Options{
		Workers:        cfg.Telegram.Workers,
		HandlerTimeout: handlerTimeout,
		Owners:         cfg.Telegram.OwnerUserIDs,
		OnMessage:      engine.HandleMessage,
	})
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) supportChannel() string {
	s, _ := a.support.Load().(string)
	return s
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	c := a.sup.Context()
	cfg := a.cfgm.Get()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, next *config.Config) error {
		_, err := mapStorageConfig(next)
		return err
	})

	h := commands.New(commands.Deps{
		Engine:     a.engine,
		Store:      a.store,
		Broadcasts: a.broadcasts,
		Dispatcher: a.dispatcher,
		Go:         a.sup.Go,
		Support:    a.supportChannel,
		StartedAt:  a.startedAt,
		Log:        a.log,
	})
	a.router.SetRegistry(h.Commands(), h.Callbacks())

	a.sched.Start(c)
	if err := a.registerJobs(cfg); err != nil {
		return err
	}
	n, err := a.engine.Recover(c)
	if err != nil {
		a.log.Warn("pending unmute recovery failed", logx.Err(err))
	} else if n > 0 {
		a.log.Info("pending unmutes recovered", logx.Int("count", n))
	}

	if err := a.adapter.Start(c, a.updates); err != nil {
		return err
	}
	a.sup.Go("telegram.router", func(c context.Context) error {
		return a.router.Run(c, a.updates)
	})

	// Keep this debug-level; mutes can be frequent.
	a.sup.Go0("eventbus.log", func(c context.Context) {
		eventbus.Consume(c, a.bus, 128, func(e eventbus.Event) {
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time), logx.Any("data", e.Data))
		})
	})

	if a.health.Enabled() {
		a.health.Start(c)
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(last, next)
				last = next
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	if d := systemd.WatchdogInterval(); d > 0 {
		a.sup.Go0("systemd.watchdog", func(c context.Context) {
			t := time.NewTicker(d)
			defer t.Stop()
			for {
				select {
				case <-c.Done():
					return
				case <-t.C:
					_, _ = systemd.Watchdog()
				}
			}
		})
	}
	if sent, err := systemd.Ready(); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("systemd notified ready")
	}

	self := a.adapter.Self()
	a.log.Info("app started", logx.String("bot", self.Username), logx.String("version", a.opts.Version))
	return nil
}

func (a *App) registerJobs(cfg *config.Config) error {
	err := a.sched.AddSchedule(jobPendingSweep, cfg.Scheduler.PendingSweep, time.Minute, a.engine.Sweep)
	if err != nil {
		return fmt.Errorf("scheduler.pending_sweep: %w", err)
	}
	err = a.sched.AddSchedule(jobSessionPrune, cfg.Scheduler.SessionPrune, 10*time.Second, func(context.Context) error {
		chats := a.sessions.Prune(fsub.NoticeWindow)
		dialogs := a.broadcasts.Prune()
		if chats > 0 || dialogs > 0 {
			a.log.Debug("sessions pruned", logx.Int("chats", chats), logx.Int("dialogs", dialogs))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scheduler.session_prune: %w", err)
	}
	return nil
}

// applyConfig applies the hot-reloadable sections. The rest waits for a
// restart.
func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs, restart := config.SummarizeConfigChange(prev, next)
	if len(restart) > 0 {
		a.log.Warn("config change needs a restart to take effect", logx.String("sections", strings.Join(restart, ",")))
	}
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.Apply(mapLogConfig(next))
	a.router.SetOwners(next.Telegram.OwnerUserIDs)
	a.support.Store(next.Telegram.SupportChannel)
	if prev.Scheduler.PendingSweep != next.Scheduler.PendingSweep || prev.Scheduler.SessionPrune != next.Scheduler.SessionPrune {
		if err := a.registerJobs(next); err != nil {
			a.log.Warn("scheduler config rejected; keeping previous", logx.Err(err))
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = systemd.Stopping()
	a.sup.Cancel()

	// step bounds one shutdown step so a stuck component cannot stall the rest.
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok && time.Until(dl) < limit {
			limit = max(time.Until(dl), 0)
		}
		stepCtx, cancel := context.WithTimeout(ctx, limit)
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
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("adapter", 2*time.Second, a.adapter.Stop)
	step("health", time.Second, func(c context.Context) error { a.health.Stop(c); return nil })
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
