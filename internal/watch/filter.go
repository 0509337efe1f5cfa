package watch

import (
	"fmt"
	"html"
	"strings"

	"gmwatch/internal/lichess"
)

// Decision is the filter verdict for one active game.
type Decision struct {
	Notify  bool
	Message string // HTML, set only when Notify is true
}

// Evaluate decides whether an active game should produce a notification.
// Pure: reads only the status and the snapshot. A game is suppressed when
// its speed is rejected by the filter or its id is already in the dedup set.
func Evaluate(st lichess.GameStatus, snap Snapshot) Decision {
	if !snap.SpeedAllowed(st.Speed) {
		return Decision{}
	}
	if _, seen := snap.Notified[st.GameID]; seen {
		return Decision{}
	}
	return Decision{Notify: true, Message: formatNotification(st)}
}

// formatNotification renders the scheduled-cycle announcement.
func formatNotification(st lichess.GameStatus) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📢 <b>GM %s is playing!</b>\n\n", html.EscapeString(capitalize(st.Player)))
	fmt.Fprintf(&b, "⚔️ <b>Opponent:</b> %s\n", html.EscapeString(st.Opponent))
	fmt.Fprintf(&b, "⌛ <b>Speed:</b> %s\n", html.EscapeString(capitalize(st.Speed)))
	fmt.Fprintf(&b, "🎨 <b>Color:</b> %s\n\n", html.EscapeString(st.Color))
	fmt.Fprintf(&b, "🔗 <a href=\"%s\">Watch live</a>", st.Link)
	return b.String()
}

// formatManualResult renders one result line of an on-demand check. Manual
// checks report every active game, notified-before or not.
func formatManualResult(st lichess.GameStatus) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ <b>%s</b> is playing now!\n", html.EscapeString(capitalize(st.Player)))
	fmt.Fprintf(&b, "⚔️ Opponent: %s\n", html.EscapeString(st.Opponent))
	fmt.Fprintf(&b, "⌛ Speed: %s · %s\n", html.EscapeString(capitalize(st.Speed)), html.EscapeString(st.Color))
	fmt.Fprintf(&b, "🔗 <a href=\"%s\">Watch live</a>", st.Link)
	return b.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
