// Package app wires the services together: config, logging, the Telegram
// adapter, storage, the notifier, the poll loop, and the command dispatcher.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"hwbot/internal/config"
	"hwbot/internal/notifier"
	"hwbot/internal/poller"
	"hwbot/internal/practicum"
	"hwbot/internal/runtime/supervisor"
	"hwbot/internal/storage"
	kit "hwbot/internal/transport"
	tgadapter "hwbot/internal/transport/telegram/adapter"
	logx "hwbot/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	adapter kit.Adapter
	store   storage.Store
	client  *practicum.Client
	notif   *notifier.Service
	poll    *poller.Service
	cmds    *Dispatcher

	updates chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := tgadapter.New(tgadapter.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(storageConfig(cfg), log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	target := kit.ChatTarget{ChatID: cfg.Telegram.ChatID, ThreadID: cfg.Telegram.ThreadID}
	notif, err := notifier.New(notifierConfig(cfg), ad, target, store, log.With(logx.String("comp", "notifier")))
	if err != nil {
		return nil, err
	}

	apiTimeout, err := config.ParseDurationField("practicum.timeout", cfg.Practicum.Timeout)
	if err != nil {
		return nil, err
	}
	client := practicum.NewClient(practicum.ClientConfig{
		Token:    cfg.Practicum.Token,
		Endpoint: cfg.Practicum.Endpoint,
		Timeout:  apiTimeout,
	}, log.With(logx.String("comp", "practicum")))

	spec, err := poller.ParseSchedule(cfg.Schedule())
	if err != nil {
		return nil, fmt.Errorf("poller.schedule: %w", err)
	}
	poll := poller.New(poller.Config{
		Schedule: spec,
		Strict:   cfg.StrictPracticum(),
	}, client, notif, log.With(logx.String("comp", "poller")))

	cmds := NewDispatcher(log.With(logx.String("comp", "commands")),
		ad, notif, poll, cfg.Telegram.ChatID, cfg.Telegram.OwnerUserIDs)

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logs,
		adapter: ad,
		store:   store,
		client:  client,
		notif:   notif,
		poll:    poll,
		cmds:    cmds,
		updates: make(chan kit.Update, 256),
	}, nil
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

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true),
	)

	// Transactional config reload: validate before commit/publish.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		if _, err := poller.ParseSchedule(cfg.Schedule()); err != nil {
			return fmt.Errorf("poller.schedule: %w", err)
		}
		// Quiet-hours grammar (HH:MM, timezone) is checked by the notifier.
		probe := notifierConfig(cfg)
		if _, err := notifier.New(probe, nil, kit.ChatTarget{}, nil, logx.Nop()); err != nil {
			return err
		}
		return nil
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.sup.Go("poller.run", a.poll.Run)
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmds.Loop(c, a.updates)
	})

	// Hot reload fan-out.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: apply only the newest queued config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(newCfg, lastApplied)
				lastApplied = newCfg
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("app started")
	return nil
}

// applyConfig pushes a validated config into the running services.
func (a *App) applyConfig(cfg, prev *config.Config) {
	sections, attrs := config.SummarizeChange(prev, cfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}

	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	apiTimeout, err := config.ParseDurationField("practicum.timeout", cfg.Practicum.Timeout)
	if err != nil {
		a.log.Warn("invalid practicum.timeout; using default", logx.Err(err))
		apiTimeout = 0
	}
	a.client.Apply(practicum.ClientConfig{
		Token:    cfg.Practicum.Token,
		Endpoint: cfg.Practicum.Endpoint,
		Timeout:  apiTimeout,
	})

	if err := a.notif.Apply(notifierConfig(cfg)); err != nil {
		a.log.Warn("notifier config apply failed", logx.Err(err))
	}

	if spec, err := poller.ParseSchedule(cfg.Schedule()); err != nil {
		a.log.Warn("invalid poller.schedule; keeping previous", logx.Err(err))
	} else {
		a.poll.Apply(poller.Config{Schedule: spec, Strict: cfg.StrictPracticum()})
	}

	a.cmds.SetAccess(cfg.Telegram.ChatID, cfg.Telegram.OwnerUserIDs)

	// The telebot client and the storage driver are built once; changes to
	// them only take effect on restart.
	if prev != nil && cfg.Telegram.Token != prev.Telegram.Token {
		a.log.Warn("telegram.token changed; restart required to take effect")
	}
	for _, section := range sections {
		if section == "storage" {
			a.log.Warn("storage config changed; restart required to take effect")
		}
	}

	a.log.Info("config reloaded",
		append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel the run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// Run each shutdown step with an upper bound so one component can't
	// stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
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
			} else {
				a.log.Debug("stop step done",
					logx.String("name", name), logx.Duration("took", time.Since(start)))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("adapter", 2*time.Second, a.adapter.Stop)
	step("supervisor", 3*time.Second, a.sup.Wait)
	if a.store != nil {
		step("storage", 1*time.Second, func(context.Context) error { return a.store.Close() })
	}

	a.log.Info("stopped")
	_ = a.logs.Close()
	return nil
}

func notifierConfig(cfg *config.Config) notifier.Config {
	out := notifier.Config{}
	if cfg.Notifier != nil {
		out.RatePerSec = cfg.Notifier.RatePerSec
		if qh := cfg.Notifier.QuietHours; qh != nil {
			out.QuietHours = notifier.QuietHours{
				Enabled:  qh.Enabled,
				Start:    qh.Start,
				End:      qh.End,
				Timezone: qh.Timezone,
			}
		}
	}
	return out
}

func storageConfig(cfg *config.Config) storage.Config {
	if cfg.Storage == nil {
		return storage.Config{}
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		busy = 0
	}
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}
}
