package watch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"gmwatch/internal/lichess"
	"gmwatch/internal/storage"
	kit "gmwatch/internal/transport"
	logx "gmwatch/pkg/logx"
)

// ErrNoChat reports that no notification chat has been registered yet.
var ErrNoChat = errors.New("no chat registered; send /start first")

// GameFetcher is the slice of the Lichess client the poller needs.
type GameFetcher interface {
	CurrentGame(ctx context.Context, player string) (lichess.GameStatus, error)
}

// Sender is the slice of the transport adapter the poller needs.
type Sender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

// PollerConfig carries the schedule parameters.
type PollerConfig struct {
	// Interval between scheduled cycles. Defaults to 2m.
	Interval time.Duration
	// FirstDelay overrides the wait before the first cycle only.
	// Defaults to 10s.
	FirstDelay time.Duration
}

func (c *PollerConfig) normalize() {
	if c.Interval <= 0 {
		c.Interval = 2 * time.Minute
	}
	if c.FirstDelay <= 0 {
		c.FirstDelay = 10 * time.Second
	}
}

// firstRunSchedule wraps a base schedule and overrides the first run time.
// After the first run, it delegates to the base schedule.
type firstRunSchedule struct {
	base  cron.Schedule
	first time.Time
}

func (s *firstRunSchedule) Next(t time.Time) time.Time {
	if !s.first.IsZero() && t.Before(s.first) {
		return s.first
	}
	return s.base.Next(t)
}

// Poller drives the scheduled check cycle and serves on-demand checks.
// Cycles never overlap: a tick that fires while the previous cycle is still
// running is skipped, not queued.
type Poller struct {
	log   logx.Logger
	store *Store
	fetch GameFetcher
	send  Sender
	hist  storage.Store // nil when history is disabled

	inCycle atomic.Bool

	mu      sync.Mutex
	cron    *cron.Cron
	entry   cron.EntryID
	cfg     PollerConfig
	lastRun time.Time
}

func NewPoller(cfg PollerConfig, store *Store, fetch GameFetcher, send Sender, hist storage.Store, log logx.Logger) *Poller {
	cfg.normalize()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Poller{
		log:   log,
		store: store,
		fetch: fetch,
		send:  send,
		hist:  hist,
		cfg:   cfg,
	}
}

// Start begins the cycle schedule. The first run fires after FirstDelay,
// every run after that Interval apart.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cron != nil {
		return
	}
	p.cron = cron.New()
	p.scheduleLocked(ctx, true)
	p.cron.Start()
	p.log.Info("poller started",
		logx.Duration("interval", p.cfg.Interval),
		logx.Duration("first_delay", p.cfg.FirstDelay),
	)
}

// Apply reconfigures the schedule. A changed interval takes effect at the
// next tick; the first-run override is not replayed.
func (p *Poller) Apply(ctx context.Context, cfg PollerConfig) {
	cfg.normalize()
	p.mu.Lock()
	defer p.mu.Unlock()
	if cfg == p.cfg {
		return
	}
	p.cfg = cfg
	if p.cron == nil {
		return
	}
	p.cron.Remove(p.entry)
	p.scheduleLocked(ctx, false)
	p.log.Info("poller rescheduled", logx.Duration("interval", cfg.Interval))
}

func (p *Poller) scheduleLocked(ctx context.Context, firstDelay bool) {
	var sched cron.Schedule = cron.Every(p.cfg.Interval)
	if firstDelay {
		sched = &firstRunSchedule{base: sched, first: time.Now().Add(p.cfg.FirstDelay)}
	}
	p.entry = p.cron.Schedule(sched, cron.FuncJob(func() {
		if !p.inCycle.CompareAndSwap(false, true) {
			p.log.Warn("poll cycle skipped: previous cycle still running")
			return
		}
		defer p.inCycle.Store(false)
		if err := ctx.Err(); err != nil {
			return
		}
		if err := p.RunCycle(ctx); err != nil && !errors.Is(err, ErrNoChat) {
			p.log.Warn("poll cycle failed", logx.Err(err))
		}
	}))
}

// Stop halts the schedule and waits for a running cycle to finish, bounded
// by ctx.
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	c := p.cron
	p.cron = nil
	p.mu.Unlock()
	if c == nil {
		return nil
	}
	done := c.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunCycle checks every monitored player once and notifies the registered
// chat about new games. One player's failure never blocks the rest.
func (p *Poller) RunCycle(ctx context.Context) error {
	snap := p.store.Snapshot()
	if snap.ChatID == 0 {
		p.log.Warn("poll cycle skipped: no chat registered")
		return ErrNoChat
	}

	p.mu.Lock()
	p.lastRun = time.Now()
	p.mu.Unlock()

	p.log.Debug("poll cycle started", logx.Int("players", len(snap.Players)))
	target := kit.ChatTarget{ChatID: snap.ChatID}

	for _, player := range snap.Players {
		if err := ctx.Err(); err != nil {
			return err
		}
		st, err := p.fetch.CurrentGame(ctx, player)
		if errors.Is(err, lichess.ErrNoActiveGame) {
			continue
		}
		if err != nil {
			p.log.Warn("player check failed", logx.String("player", player), logx.Err(err))
			continue
		}

		// Re-read the dedup set per game: two monitored players in the same
		// game must produce one announcement, not two.
		cur := p.store.Snapshot()
		d := Evaluate(st, cur)
		if !d.Notify {
			continue
		}

		if _, err := p.send.SendText(ctx, target, d.Message, &kit.SendOptions{ParseMode: "HTML"}); err != nil {
			p.log.Warn("notification send failed",
				logx.String("player", player),
				logx.String("game", st.GameID),
				logx.Err(err),
			)
			continue
		}
		p.log.Info("game notified",
			logx.String("player", player),
			logx.String("game", st.GameID),
			logx.String("speed", st.Speed),
		)
		if err := p.store.MarkNotified(st.GameID); err != nil {
			p.log.Warn("state persist failed", logx.String("game", st.GameID), logx.Err(err))
		}
		p.appendHistory(ctx, st, snap.ChatID, false)
	}
	return nil
}

// CheckNow runs one on-demand pass: every monitored player, no dedup, no
// speed filter. Results go to the registered chat; the return value is the
// number of active games found.
func (p *Poller) CheckNow(ctx context.Context) (int, error) {
	snap := p.store.Snapshot()
	if snap.ChatID == 0 {
		return 0, ErrNoChat
	}
	target := kit.ChatTarget{ChatID: snap.ChatID}

	found := 0
	for _, player := range snap.Players {
		if err := ctx.Err(); err != nil {
			return found, err
		}
		st, err := p.fetch.CurrentGame(ctx, player)
		if errors.Is(err, lichess.ErrNoActiveGame) {
			continue
		}
		if err != nil {
			p.log.Warn("player check failed", logx.String("player", player), logx.Err(err))
			continue
		}
		found++
		if _, err := p.send.SendText(ctx, target, formatManualResult(st), &kit.SendOptions{ParseMode: "HTML"}); err != nil {
			p.log.Warn("manual result send failed", logx.String("player", player), logx.Err(err))
			continue
		}
		p.appendHistory(ctx, st, snap.ChatID, true)
	}
	return found, nil
}

func (p *Poller) appendHistory(ctx context.Context, st lichess.GameStatus, chatID int64, manual bool) {
	if p.hist == nil {
		return
	}
	rec := storage.NotificationRecord{
		At:       time.Now(),
		Player:   st.Player,
		GameID:   st.GameID,
		Opponent: st.Opponent,
		Speed:    st.Speed,
		Color:    st.Color,
		ChatID:   chatID,
		Manual:   manual,
	}
	if err := p.hist.AppendNotification(ctx, rec); err != nil {
		p.log.Warn("history append failed", logx.String("game", st.GameID), logx.Err(err))
	}
}

// Status describes the schedule for /status.
type Status struct {
	Interval   time.Duration
	FirstDelay time.Duration
	LastRun    time.Time // zero before the first cycle
	InCycle    bool
}

func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		Interval:   p.cfg.Interval,
		FirstDelay: p.cfg.FirstDelay,
		LastRun:    p.lastRun,
		InCycle:    p.inCycle.Load(),
	}
}
