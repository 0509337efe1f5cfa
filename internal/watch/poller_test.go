package watch

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"gmwatch/internal/lichess"
	"gmwatch/internal/storage"
	kit "gmwatch/internal/transport"
	logx "gmwatch/pkg/logx"
)

type fakeFetcher struct {
	mu    sync.Mutex
	games map[string]lichess.GameStatus
	errs  map[string]error
	calls []string
}

func (f *fakeFetcher) CurrentGame(ctx context.Context, player string) (lichess.GameStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, player)
	if err, ok := f.errs[player]; ok {
		return lichess.GameStatus{}, err
	}
	st, ok := f.games[player]
	if !ok {
		return lichess.GameStatus{}, lichess.ErrNoActiveGame
	}
	return st, nil
}

type sentMessage struct {
	Chat kit.ChatTarget
	Text string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeSender) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return kit.MessageRef{}, f.err
	}
	f.sent = append(f.sent, sentMessage{Chat: to, Text: text})
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type memHistory struct {
	mu   sync.Mutex
	recs []storage.NotificationRecord
}

func (m *memHistory) AppendNotification(ctx context.Context, r storage.NotificationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, r)
	return nil
}

func (m *memHistory) RecentNotifications(ctx context.Context, limit int) ([]storage.NotificationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.NotificationRecord(nil), m.recs...), nil
}

func (m *memHistory) Close() error { return nil }

func newCycleFixture(t *testing.T) (*Store, *fakeFetcher, *fakeSender, *memHistory, *Poller) {
	t.Helper()
	st := NewStore(filepath.Join(t.TempDir(), "data_bot.json"), logx.Nop())
	if err := st.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	fetch := &fakeFetcher{games: map[string]lichess.GameStatus{}, errs: map[string]error{}}
	send := &fakeSender{}
	hist := &memHistory{}
	p := NewPoller(PollerConfig{}, st, fetch, send, hist, logx.Nop())
	return st, fetch, send, hist, p
}

func TestRunCycleRequiresChat(t *testing.T) {
	_, fetch, send, _, p := newCycleFixture(t)

	if err := p.RunCycle(context.Background()); !errors.Is(err, ErrNoChat) {
		t.Fatalf("RunCycle without chat = %v, want ErrNoChat", err)
	}
	if len(fetch.calls) != 0 {
		t.Fatalf("no player should be checked without a chat, got %v", fetch.calls)
	}
	if len(send.messages()) != 0 {
		t.Fatal("nothing should be sent without a chat")
	}
}

func TestRunCycleNotifiesOncePerGame(t *testing.T) {
	st, fetch, send, hist, p := newCycleFixture(t)
	if err := st.SetChat(7); err != nil {
		t.Fatal(err)
	}
	fetch.games["magnuscarlsen"] = gameStatus("magnuscarlsen", "g1", "blitz")

	if err := p.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	msgs := send.messages()
	if len(msgs) != 1 {
		t.Fatalf("sent %d messages, want 1", len(msgs))
	}
	if msgs[0].Chat.ChatID != 7 {
		t.Fatalf("sent to chat %d, want 7", msgs[0].Chat.ChatID)
	}
	if !st.IsNotified("g1") {
		t.Fatal("game not marked notified after send")
	}
	if len(hist.recs) != 1 || hist.recs[0].GameID != "g1" || hist.recs[0].Manual {
		t.Fatalf("history = %+v", hist.recs)
	}

	// Second cycle with the same game stays quiet.
	if err := p.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if got := send.messages(); len(got) != 1 {
		t.Fatalf("repeat cycle resent: %d messages", len(got))
	}
}

func TestRunCycleSharedGameNotifiesOnce(t *testing.T) {
	st, fetch, send, _, p := newCycleFixture(t)
	if err := st.SetChat(7); err != nil {
		t.Fatal(err)
	}
	// Both monitored players are in the same game.
	fetch.games["magnuscarlsen"] = gameStatus("magnuscarlsen", "shared", "rapid")
	fetch.games["hikaru"] = gameStatus("hikaru", "shared", "rapid")

	if err := p.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if got := send.messages(); len(got) != 1 {
		t.Fatalf("shared game sent %d messages, want 1", len(got))
	}
}

func TestRunCycleIsolatesPlayerFailures(t *testing.T) {
	st, fetch, send, _, p := newCycleFixture(t)
	if err := st.SetChat(7); err != nil {
		t.Fatal(err)
	}
	fetch.errs["magnuscarlsen"] = errors.New("boom")
	fetch.games["hikaru"] = gameStatus("hikaru", "g2", "bullet")

	if err := p.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(fetch.calls) != 2 {
		t.Fatalf("calls = %v, want both players checked", fetch.calls)
	}
	if got := send.messages(); len(got) != 1 {
		t.Fatalf("sent %d messages, want 1", len(got))
	}
}

func TestRunCycleHonorsSpeedFilter(t *testing.T) {
	st, fetch, send, _, p := newCycleFixture(t)
	if err := st.SetChat(7); err != nil {
		t.Fatal(err)
	}
	if _, _, err := st.SetSpeedFilter([]string{"classical"}); err != nil {
		t.Fatal(err)
	}
	fetch.games["hikaru"] = gameStatus("hikaru", "g3", "bullet")

	if err := p.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if got := send.messages(); len(got) != 0 {
		t.Fatalf("filtered speed still sent %d messages", len(got))
	}
	if st.IsNotified("g3") {
		t.Fatal("suppressed game must not enter the dedup set")
	}
}

func TestRunCycleSendFailureSkipsDedup(t *testing.T) {
	st, fetch, send, hist, p := newCycleFixture(t)
	if err := st.SetChat(7); err != nil {
		t.Fatal(err)
	}
	fetch.games["hikaru"] = gameStatus("hikaru", "g4", "blitz")
	send.err = errors.New("telegram down")

	if err := p.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if st.IsNotified("g4") {
		t.Fatal("failed send must not mark the game notified")
	}
	if len(hist.recs) != 0 {
		t.Fatal("failed send must not enter the history")
	}

	// Next cycle retries the announcement.
	send.err = nil
	if err := p.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if got := send.messages(); len(got) != 1 {
		t.Fatalf("retry sent %d messages, want 1", len(got))
	}
	if !st.IsNotified("g4") {
		t.Fatal("retried game not marked notified")
	}
}

func TestCheckNowIgnoresDedupAndFilter(t *testing.T) {
	st, fetch, send, hist, p := newCycleFixture(t)
	if err := st.SetChat(7); err != nil {
		t.Fatal(err)
	}
	if _, _, err := st.SetSpeedFilter([]string{"classical"}); err != nil {
		t.Fatal(err)
	}
	if err := st.MarkNotified("g5"); err != nil {
		t.Fatal(err)
	}
	// bullet game, already notified: the scheduled cycle would stay quiet.
	fetch.games["hikaru"] = gameStatus("hikaru", "g5", "bullet")

	found, err := p.CheckNow(context.Background())
	if err != nil {
		t.Fatalf("CheckNow: %v", err)
	}
	if found != 1 {
		t.Fatalf("found = %d, want 1", found)
	}
	if got := send.messages(); len(got) != 1 {
		t.Fatalf("sent %d messages, want 1", len(got))
	}
	if len(hist.recs) != 1 || !hist.recs[0].Manual {
		t.Fatalf("history = %+v, want one manual record", hist.recs)
	}
}

func TestCheckNowRequiresChat(t *testing.T) {
	_, _, _, _, p := newCycleFixture(t)
	if _, err := p.CheckNow(context.Background()); !errors.Is(err, ErrNoChat) {
		t.Fatalf("CheckNow without chat = %v, want ErrNoChat", err)
	}
}
