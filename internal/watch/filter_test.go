package watch

import (
	"strings"
	"testing"

	"gmwatch/internal/lichess"
)

func gameStatus(player, id, speed string) lichess.GameStatus {
	return lichess.GameStatus{
		Player:   player,
		GameID:   id,
		Opponent: "bob",
		Speed:    speed,
		Color:    "White",
		Link:     "https://lichess.org/" + id,
	}
}

func TestEvaluateNotifiesNewGame(t *testing.T) {
	snap := Snapshot{Notified: map[string]struct{}{}, ChatID: 1}

	d := Evaluate(gameStatus("alice", "g1", "blitz"), snap)
	if !d.Notify {
		t.Fatal("new game should notify")
	}
	for _, want := range []string{"Alice", "bob", "Blitz", "White", "https://lichess.org/g1"} {
		if !strings.Contains(d.Message, want) {
			t.Fatalf("message missing %q:\n%s", want, d.Message)
		}
	}
}

func TestEvaluateSuppressesNotifiedGame(t *testing.T) {
	snap := Snapshot{
		Notified: map[string]struct{}{"g1": {}},
		ChatID:   1,
	}
	if d := Evaluate(gameStatus("alice", "g1", "blitz"), snap); d.Notify {
		t.Fatal("already-notified game must be suppressed")
	}
	// Dedup wins even when the speed passes the filter.
	snap.Speeds = []string{"blitz"}
	if d := Evaluate(gameStatus("alice", "g1", "blitz"), snap); d.Notify {
		t.Fatal("dedup must override a passing filter")
	}
}

func TestEvaluateSpeedFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter []string
		speed  string
		notify bool
	}{
		{"empty filter admits everything", nil, "bullet", true},
		{"matching speed passes", []string{"blitz", "rapid"}, "rapid", true},
		{"non-matching speed suppressed", []string{"blitz"}, "classical", false},
		{"unexpected label suppressed by filter", []string{"blitz"}, "correspondence", false},
		{"unexpected label passes empty filter", nil, "correspondence", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			snap := Snapshot{Notified: map[string]struct{}{}, Speeds: tc.filter, ChatID: 1}
			d := Evaluate(gameStatus("alice", "g9", tc.speed), snap)
			if d.Notify != tc.notify {
				t.Fatalf("notify = %v, want %v", d.Notify, tc.notify)
			}
		})
	}
}

func TestFormatManualResultIgnoresNothing(t *testing.T) {
	msg := formatManualResult(gameStatus("alice", "g1", "bullet"))
	for _, want := range []string{"Alice", "bob", "Bullet", "https://lichess.org/g1"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("manual message missing %q:\n%s", want, msg)
		}
	}
}

func TestMessagesEscapeHTML(t *testing.T) {
	st := gameStatus("alice", "g1", "blitz")
	st.Opponent = "<script>"
	msg := formatNotification(st)
	if strings.Contains(msg, "<script>") {
		t.Fatalf("opponent name not escaped:\n%s", msg)
	}
	if !strings.Contains(msg, "&lt;script&gt;") {
		t.Fatalf("escaped opponent missing:\n%s", msg)
	}
}
