package watch

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"gmwatch/internal/storage"
	kit "gmwatch/internal/transport"
	"gmwatch/internal/transport/telegram/router"
)

const defaultHistoryLimit = 10

// Commands builds the chat command registry. hist may be nil (history
// disabled).
func Commands(store *Store, poller *Poller, hist storage.Store) []router.Command {
	reply := func(ctx context.Context, req *router.Request, text string) {
		_, _ = req.Adapter.SendText(ctx, req.Chat, text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
	}

	return []router.Command{
		{
			Name:        "start",
			Description: "register this chat for game alerts",
			Usage:       "/start",
			Access:      router.AccessEveryone,
			Handle: func(ctx context.Context, req *router.Request) error {
				if err := store.SetChat(req.Chat.ChatID); err != nil {
					reply(ctx, req, "⚠️ Could not save the chat registration. Try again.")
					return err
				}
				snap := store.Snapshot()
				var b strings.Builder
				b.WriteString("👋 <b>Hi!</b> This chat now receives game alerts.\n\n")
				fmt.Fprintf(&b, "♟ Watching <b>%d</b> player(s): %s\n", len(snap.Players), html.EscapeString(strings.Join(snap.Players, ", ")))
				b.WriteString("Type /help to see what I can do.")
				reply(ctx, req, b.String())
				return nil
			},
		},
		{
			Name:        "check",
			Aliases:     []string{"verify"},
			Description: "check all monitored players right now",
			Usage:       "/check",
			Access:      router.AccessEveryone,
			Timeout:     2 * time.Minute,
			Handle: func(ctx context.Context, req *router.Request) error {
				snap := store.Snapshot()
				if snap.ChatID == 0 {
					reply(ctx, req, "Use /start first so I know where to send results.")
					return nil
				}
				reply(ctx, req, fmt.Sprintf("🔎 Checking %d monitored player(s), hold on…", len(snap.Players)))
				found, err := poller.CheckNow(ctx)
				if errors.Is(err, ErrNoChat) {
					reply(ctx, req, "Use /start first so I know where to send results.")
					return nil
				}
				if err != nil {
					return err
				}
				if found == 0 {
					reply(ctx, req, "Checked the whole list. Nobody is playing right now.")
				}
				return nil
			},
		},
		{
			Name:        "players",
			Aliases:     []string{"list"},
			Description: "list the monitored players",
			Usage:       "/players",
			Access:      router.AccessEveryone,
			Handle: func(ctx context.Context, req *router.Request) error {
				snap := store.Snapshot()
				if len(snap.Players) == 0 {
					reply(ctx, req, "The watch list is empty. Add someone with /add &lt;username&gt;.")
					return nil
				}
				var b strings.Builder
				b.WriteString("♟ <b>Monitored players</b>\n")
				for _, p := range snap.Players {
					fmt.Fprintf(&b, "• <code>%s</code>\n", html.EscapeString(p))
				}
				reply(ctx, req, strings.TrimRight(b.String(), "\n"))
				return nil
			},
		},
		{
			Name:        "add",
			Description: "add a player to the watch list",
			Usage:       "/add <lichess-username>",
			Access:      router.AccessOwnerOnly,
			Handle: func(ctx context.Context, req *router.Request) error {
				if len(req.Args) == 0 {
					reply(ctx, req, "Usage: <code>/add &lt;lichess-username&gt;</code>")
					return nil
				}
				added, name, err := store.AddPlayer(req.Args[0])
				if err != nil {
					reply(ctx, req, "⚠️ "+html.EscapeString(err.Error()))
					return err
				}
				if !added {
					reply(ctx, req, fmt.Sprintf("<code>%s</code> is already on the list.", html.EscapeString(name)))
					return nil
				}
				reply(ctx, req, fmt.Sprintf("✅ Now watching <code>%s</code>.", html.EscapeString(name)))
				return nil
			},
		},
		{
			Name:        "remove",
			Description: "remove a player from the watch list",
			Usage:       "/remove <lichess-username>",
			Access:      router.AccessOwnerOnly,
			Handle: func(ctx context.Context, req *router.Request) error {
				if len(req.Args) == 0 {
					reply(ctx, req, "Usage: <code>/remove &lt;lichess-username&gt;</code>")
					return nil
				}
				removed, name, err := store.RemovePlayer(req.Args[0])
				if err != nil {
					reply(ctx, req, "⚠️ "+html.EscapeString(err.Error()))
					return err
				}
				if !removed {
					reply(ctx, req, fmt.Sprintf("<code>%s</code> is not on the list.", html.EscapeString(name)))
					return nil
				}
				reply(ctx, req, fmt.Sprintf("🗑 Stopped watching <code>%s</code>.", html.EscapeString(name)))
				return nil
			},
		},
		{
			Name:        "speeds",
			Description: "show or set the speed filter",
			Usage:       "/speeds [show | all | bullet blitz rapid classical]",
			Access:      router.AccessOwnerOnly,
			Handle: func(ctx context.Context, req *router.Request) error {
				if len(req.Args) == 0 || (len(req.Args) == 1 && strings.EqualFold(req.Args[0], "show")) {
					snap := store.Snapshot()
					cur := "all speeds"
					if len(snap.Speeds) > 0 {
						cur = strings.Join(snap.Speeds, ", ")
					}
					reply(ctx, req, fmt.Sprintf(
						"⌛ <b>Speed filter:</b> %s\nValid values: %s. Use <code>/speeds all</code> to clear.",
						html.EscapeString(cur), strings.Join(ValidSpeeds, ", ")))
					return nil
				}
				if len(req.Args) == 1 && (strings.EqualFold(req.Args[0], "all") || strings.EqualFold(req.Args[0], "clear")) {
					if err := store.ClearSpeedFilter(); err != nil {
						reply(ctx, req, "⚠️ Could not save the filter. Try again.")
						return err
					}
					reply(ctx, req, "✅ Filter cleared. All speeds are notified.")
					return nil
				}
				applied, changed, err := store.SetSpeedFilter(req.Args)
				if err != nil {
					reply(ctx, req, "⚠️ Could not save the filter. Try again.")
					return err
				}
				if !changed {
					reply(ctx, req, "None of those are valid speeds. Valid values: "+strings.Join(ValidSpeeds, ", ")+".")
					return nil
				}
				reply(ctx, req, "✅ Filter set: "+html.EscapeString(strings.Join(applied, ", "))+".")
				return nil
			},
		},
		{
			Name:        "history",
			Description: "show the most recent notifications",
			Usage:       "/history [count]",
			Access:      router.AccessEveryone,
			Handle: func(ctx context.Context, req *router.Request) error {
				if hist == nil {
					reply(ctx, req, "History is disabled.")
					return nil
				}
				limit := defaultHistoryLimit
				if len(req.Args) > 0 {
					if n, err := strconv.Atoi(req.Args[0]); err == nil && n > 0 && n <= 50 {
						limit = n
					}
				}
				recs, err := hist.RecentNotifications(ctx, limit)
				if err != nil {
					reply(ctx, req, "⚠️ Could not read the history.")
					return err
				}
				if len(recs) == 0 {
					reply(ctx, req, "No notifications recorded yet.")
					return nil
				}
				var b strings.Builder
				b.WriteString("🗂 <b>Recent notifications</b>\n")
				for _, r := range recs {
					tag := ""
					if r.Manual {
						tag = " (manual)"
					}
					fmt.Fprintf(&b, "• %s — <code>%s</code> vs %s, %s%s\n",
						r.At.Format("Jan 02 15:04"),
						html.EscapeString(r.Player),
						html.EscapeString(r.Opponent),
						html.EscapeString(r.Speed),
						tag,
					)
				}
				reply(ctx, req, strings.TrimRight(b.String(), "\n"))
				return nil
			},
		},
		{
			Name:        "status",
			Description: "show watcher status",
			Usage:       "/status",
			Access:      router.AccessOwnerOnly,
			Handle: func(ctx context.Context, req *router.Request) error {
				snap := store.Snapshot()
				st := poller.Status()

				last := "never"
				if !st.LastRun.IsZero() {
					last = st.LastRun.Format("Jan 02 15:04:05")
				}
				filter := "all speeds"
				if len(snap.Speeds) > 0 {
					filter = strings.Join(snap.Speeds, ", ")
				}
				chat := "not registered"
				if snap.ChatID != 0 {
					chat = "registered"
				}

				var b strings.Builder
				b.WriteString("📊 <b>Status</b>\n")
				fmt.Fprintf(&b, "• Players: %d\n", len(snap.Players))
				fmt.Fprintf(&b, "• Chat: %s\n", chat)
				fmt.Fprintf(&b, "• Filter: %s\n", html.EscapeString(filter))
				fmt.Fprintf(&b, "• Interval: %s\n", st.Interval)
				fmt.Fprintf(&b, "• Last cycle: %s\n", last)
				fmt.Fprintf(&b, "• Notified games: %d", len(snap.Notified))
				reply(ctx, req, b.String())
				return nil
			},
		},
	}
}
