// Package app assembles the bot: config, logging, the Telegram adapter, the
// Lichess poller, the command router, and the health endpoint.
package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gmwatch/internal/config"
	"gmwatch/internal/health"
	"gmwatch/internal/lichess"
	"gmwatch/internal/runtime/supervisor"
	"gmwatch/internal/storage"
	kit "gmwatch/internal/transport"
	telegram "gmwatch/internal/transport/telegram/adapter"
	"gmwatch/internal/transport/telegram/router"
	"gmwatch/internal/watch"
	logx "gmwatch/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	adapter kit.Adapter
	state   *watch.Store
	hist    storage.Store
	client  *lichess.Client
	poller  *watch.Poller
	cmdm    *router.CommandManager
	health  *health.Server

	updates chan kit.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// Logging service mapping.
	// logx.New() calls Apply() immediately; bootstrap with Telegram logging
	// disabled, set the target, then Apply() the final config so a missing
	// target doesn't produce a false warning.
	baseLogCfg := mapLogConfig(cfg)
	baseLogCfg.Telegram.Enabled = false
	logSvc, log := logx.New(baseLogCfg, ad)
	log = log.With(logx.String("comp", "app"))

	if chatID, ok := parseGroupLog(cfg.Telegram.GroupLog); ok {
		logSvc.SetTelegramTarget(chatID, cfg.Logging.Telegram.ThreadID)
	}
	logSvc.Apply(mapLogConfig(cfg))

	// Watch state (the single source of truth for players/filter/dedup/chat).
	statePath := strings.TrimSpace(cfg.Watch.StateFile)
	if statePath == "" {
		statePath = "./data_bot.json"
	}
	state := watch.NewStore(statePath, log.With(logx.String("comp", "state")))
	if err := state.Load(); err != nil {
		// A corrupt state file is fatal: silently starting fresh would lose
		// the dedup set and replay every notification.
		return nil, fmt.Errorf("load state: %w", err)
	}

	// Notification history (optional).
	var hist storage.Store
	if sc, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if sc.Driver != "" {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		hist = st
		if hist != nil {
			log.Info("history enabled", logx.String("driver", sc.Driver))
		}
	}

	lcfg, err := mapLichessConfig(cfg)
	if err != nil {
		return nil, err
	}
	client := lichess.New(lcfg, log.With(logx.String("comp", "lichess")))

	pcfg, err := mapPollerConfig(cfg)
	if err != nil {
		return nil, err
	}
	poller := watch.NewPoller(pcfg, state, client, ad, hist, log.With(logx.String("comp", "poller")))

	cmdm := router.NewCommandManager(log.With(logx.String("comp", "commands")),
		ad, cfgm, cfg.Telegram.OwnerUserIDs)
	cmdm.SetRegistry(watch.Commands(state, poller, hist))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		adapter: ad,
		state:   state,
		hist:    hist,
		client:  client,
		poller:  poller,
		cmdm:    cmdm,
		health:  health.NewServer(log),
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
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		if strings.TrimSpace(cfg.Telegram.Token) == "" {
			return fmt.Errorf("telegram.token is required")
		}
		if _, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
			return err
		}
		if _, err := mapPollerConfig(cfg); err != nil {
			return err
		}
		if _, err := mapLichessConfig(cfg); err != nil {
			return err
		}
		if _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		return nil
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.health.Apply(a.sup.Context(), a.cfgm.Get().Health)
	a.poller.Start(a.sup.Context())

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	// hot reload config fan-out
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
				// Coalesce bursts: keep only the latest config in the channel.
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
				sections, attrs := config.SummarizeChange(lastApplied, newCfg)
				if len(sections) > 0 {
					fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
					a.log.Debug("config change summary", fields...)
				} else {
					a.log.Debug("config reload received, but no effective changes detected")
				}
				lastApplied = newCfg

				a.applyReload(c, sections, newCfg)

				if len(sections) > 0 {
					fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
					a.log.Info("config reloaded", fields...)
				} else {
					a.log.Info("config reloaded (no changes)")
				}
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

func (a *App) applyReload(ctx context.Context, sections []string, newCfg *config.Config) {
	// Restart-only sections get a warning, not a partial apply.
	for _, s := range sections {
		if s == "storage" {
			a.log.Warn("storage config changed; restart required for changes to take effect")
		}
	}

	// Update log target first (so Apply() doesn't warn when Telegram logging
	// is enabled).
	if chatID, ok := parseGroupLog(newCfg.Telegram.GroupLog); ok {
		a.logs.SetTelegramTarget(chatID, newCfg.Logging.Telegram.ThreadID)
	} else {
		a.logs.SetTelegramTarget(0, 0)
	}
	a.logs.Apply(mapLogConfig(newCfg))

	a.cmdm.SetOwners(newCfg.Telegram.OwnerUserIDs)

	if pcfg, err := mapPollerConfig(newCfg); err != nil {
		a.log.Warn("invalid watch config; keeping previous", logx.Err(err))
	} else {
		a.poller.Apply(ctx, pcfg)
	}

	// The Lichess client holds its base URL and timeout for its lifetime;
	// flag the change instead of swapping the client mid-cycle.
	if lcfg, err := mapLichessConfig(newCfg); err == nil {
		if lcfg.BaseURL != "" && strings.TrimRight(lcfg.BaseURL, "/") != a.client.BaseURL() {
			a.log.Warn("watch.base_url changed; restart required for changes to take effect")
		}
	}

	a.health.Apply(ctx, newCfg.Health)
}

func (a *App) Stop(ctx context.Context, reason string) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", reason))

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// Run each shutdown step with an upper bound so one component can't stall
	// the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
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
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("poller", 2*time.Second, func(c context.Context) error { return a.poller.Stop(c) })
	step("health", 1*time.Second, func(c context.Context) error { a.health.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("history", 1*time.Second, func(c context.Context) error {
		if a.hist != nil {
			return a.hist.Close()
		}
		return nil
	})

	// Finally, wait for supervised goroutines (config watch/reload, command
	// dispatcher).
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}

func parseGroupLog(raw string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
