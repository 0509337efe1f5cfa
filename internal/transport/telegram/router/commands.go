package router

import (
	"context"
	"runtime"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"gmwatch/internal/config"
	"gmwatch/internal/runtime/supervisor"
	kit "gmwatch/internal/transport"
	logx "gmwatch/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type Command struct {
	Name        string
	Aliases     []string // e.g. /check also answers as /verify
	Description string
	Usage       string
	Access      Access

	Timeout time.Duration // optional per-command override
	Handle  HandlerFunc
}

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string
	ReqID   string

	Adapter kit.Adapter
	Config  *config.Config
	Logger  logx.Logger
}

type CommandManager struct {
	mu    sync.RWMutex
	cmds  map[string]*Command // canonical name -> command
	index map[string]*Command // name + aliases -> command
	order []string            // registration order, for /help
	owner []int64

	log     logx.Logger
	adapter kit.Adapter
	cfgm    *config.Manager

	runMu   sync.Mutex
	running bool
	sup     *supervisor.Supervisor

	jobs chan func()
}

func NewCommandManager(log logx.Logger, adapter kit.Adapter, cfgm *config.Manager, owners []int64) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	// copy to avoid callers mutating the slice after construction
	ownCopy := append([]int64(nil), owners...)
	return &CommandManager{
		cmds:    map[string]*Command{},
		index:   map[string]*Command{},
		log:     log,
		adapter: adapter,
		cfgm:    cfgm,
		owner:   ownCopy,
		jobs:    make(chan func(), 64),
	}
}

// SetOwners updates the owner list used for AccessOwnerOnly checks.
// Safe to call during hot-reload. An empty list disables the checks
// entirely (open mode).
func (m *CommandManager) SetOwners(owners []int64) {
	ownCopy := append([]int64(nil), owners...)
	m.mu.Lock()
	m.owner = ownCopy
	m.mu.Unlock()
}

func (m *CommandManager) ownersSnapshot() []int64 {
	m.mu.RLock()
	cp := append([]int64(nil), m.owner...)
	m.mu.RUnlock()
	return cp
}

func (m *CommandManager) SetRegistry(cmds []Command) {
	// always inject help
	helper := Command{
		Name:        "help",
		Aliases:     []string{"h"},
		Description: "show this help",
		Usage:       "/help [command]",
		Access:      AccessEveryone,
		Handle: func(ctx context.Context, req *Request) error {
			text := m.helpText(req.Args)
			_, _ = req.Adapter.SendText(ctx, req.Chat, text, &kit.SendOptions{DisablePreview: true, ParseMode: "HTML"})
			return nil
		},
	}
	cmds = append(cmds, helper)

	byName := map[string]*Command{}
	index := map[string]*Command{}
	order := make([]string, 0, len(cmds))

	for _, c := range cmds {
		name := sanitizeTelegramCommand(c.Name)
		if name == "" || c.Handle == nil {
			continue
		}
		cc := c // copy
		cc.Name = name
		byName[name] = &cc
		index[name] = &cc
		order = append(order, name)
		for _, a := range cc.Aliases {
			a = sanitizeTelegramCommand(a)
			if a == "" || a == name {
				continue
			}
			if _, exists := index[a]; !exists {
				index[a] = &cc
			}
		}
	}

	m.mu.Lock()
	m.cmds = byName
	m.index = index
	m.order = order
	m.mu.Unlock()

	// Best-effort Telegram /menu autocomplete update (non-blocking).
	if up, ok := m.adapter.(kit.CommandMenuUpdater); ok {
		menu := buildMenuCommands(byName, order)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = up.UpdateMenuCommands(ctx, menu)
		}()
	}
}

func (m *CommandManager) commandNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := append([]string(nil), m.order...)
	sort.Strings(names)
	return names
}

func (m *CommandManager) lookup(word string) (*Command, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.index[word]
	return c, ok
}

// tryEnqueue is a panic-safe enqueue helper (handles the jobs channel being closed).
func (m *CommandManager) tryEnqueue(fn func()) (ok bool) {
	if fn == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}

func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}
	if workers > 4 {
		workers = 4
	}

	// Internal supervisor keeps the worker pool resilient and observable.
	sup := supervisor.New(ctx,
		supervisor.WithLogger(m.log.With(logx.String("comp", "telegram.router"))),
		supervisor.WithCancelOnError(false),
	)
	m.runMu.Lock()
	m.sup = sup
	m.running = true
	m.runMu.Unlock()

	m.log.Info("command dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", cap(m.jobs)))

	var closeOnce sync.Once
	closeJobs := func() {
		closeOnce.Do(func() {
			m.runMu.Lock()
			m.running = false
			m.runMu.Unlock()
			close(m.jobs)
		})
	}

	for i := 0; i < workers; i++ {
		idx := i
		name := "command.worker." + strconv.Itoa(idx)
		sup.GoRestart(name, func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-m.jobs:
					if !ok {
						return nil
					}
					if job == nil {
						continue
					}
					// Middleware already recovers; keep the worker alive anyway.
					func() {
						defer func() {
							if r := recover(); r != nil {
								m.log.Error("panic in command job", logx.Int("worker", idx), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		},
			supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			supervisor.WithPublishFirstError(true),
			supervisor.WithStopOnCleanExit(true),
		)
	}

	defer func() {
		closeJobs()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.runMu.Lock()
		m.sup = nil
		m.runMu.Unlock()
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				m.log.Info("command dispatcher stopped (updates channel closed)")
				return nil
			}
			if up.Message != nil {
				m.routeMessage(ctx, up)
			}
		}
	}
}

func (m *CommandManager) routeMessage(root context.Context, up kit.Update) {
	msg := up.Message
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}

	parts := tokenizeCommandLine(text)
	if len(parts) == 0 {
		return
	}
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	word = strings.ToLower(word)
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}

	cmd, ok := m.lookup(word)
	if !ok {
		_, _ = m.adapter.SendText(root, kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}, "Unknown command. Try /help.", nil)
		return
	}

	m.enqueueCommand(root, up, *cmd, args)
}

func (m *CommandManager) enqueueCommand(root context.Context, up kit.Update, cmd Command, args []string) {
	msg := up.Message

	// Owner checks only apply when owners are configured at all.
	owners := m.ownersSnapshot()
	if cmd.Access == AccessOwnerOnly && len(owners) > 0 && !isOwner(msg.FromID, owners) {
		_, _ = m.adapter.SendText(root, kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}, "unauthorized", nil)
		return
	}

	rid := newReqID()
	reqLog := m.log.With(
		logx.String("rid", rid),
		logx.Int64("chat_id", msg.ChatID),
		logx.Int64("from_id", msg.FromID),
		logx.String("cmd", cmd.Name),
	)

	req := &Request{
		Update:  up,
		Chat:    kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		FromID:  msg.FromID,
		Command: cmd.Name,
		Args:    args,
		ReqID:   rid,
		Adapter: m.adapter,
		Config:  m.cfgm.Get(),
		Logger:  reqLog,
	}

	final := Chain(
		cmd.Handle,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(cmd.Timeout),
	)

	if !m.tryEnqueue(func() { _ = final(root, req) }) {
		_, _ = m.adapter.SendText(root, req.Chat, "busy, try again", nil)
	}
}

func isOwner(id int64, owners []int64) bool {
	for _, o := range owners {
		if o == id {
			return true
		}
	}
	return false
}
