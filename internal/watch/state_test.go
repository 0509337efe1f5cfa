package watch

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	logx "gmwatch/pkg/logx"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data_bot.json")
	s := NewStore(path, logx.Nop())
	if err := s.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s, path
}

func readStateFile(t *testing.T, path string) map[string]any {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read state file: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("parse state file: %v", err)
	}
	return m
}

func TestLoadMissingFileWritesDefaults(t *testing.T) {
	s, path := newTestStore(t)

	snap := s.Snapshot()
	want := []string{"magnuscarlsen", "hikaru"}
	if len(snap.Players) != len(want) {
		t.Fatalf("players = %v, want %v", snap.Players, want)
	}
	for i := range want {
		if snap.Players[i] != want[i] {
			t.Fatalf("players = %v, want %v", snap.Players, want)
		}
	}
	if len(snap.Speeds) != 0 {
		t.Fatalf("default filter should be empty, got %v", snap.Speeds)
	}
	if snap.ChatID != 0 {
		t.Fatalf("default chat id should be unset, got %d", snap.ChatID)
	}

	// Defaults must already be on disk.
	m := readStateFile(t, path)
	if _, ok := m["gms_a_monitorar"]; !ok {
		t.Fatalf("state file missing gms_a_monitorar: %v", m)
	}
}

func TestLoadCorruptFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data_bot.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	s := NewStore(path, logx.Nop())
	if err := s.Load(); err == nil {
		t.Fatal("Load should fail on a corrupt state file")
	}
}

func TestStateRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data_bot.json")

	s := NewStore(path, logx.Nop())
	if err := s.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, _, err := s.AddPlayer("Alice"); err != nil {
		t.Fatalf("AddPlayer: %v", err)
	}
	if err := s.SetChat(42); err != nil {
		t.Fatalf("SetChat: %v", err)
	}
	if err := s.MarkNotified("g2"); err != nil {
		t.Fatalf("MarkNotified: %v", err)
	}
	if err := s.MarkNotified("g1"); err != nil {
		t.Fatalf("MarkNotified: %v", err)
	}
	if _, _, err := s.SetSpeedFilter([]string{"blitz", "rapid"}); err != nil {
		t.Fatalf("SetSpeedFilter: %v", err)
	}

	// Reload from disk into a fresh store.
	s2 := NewStore(path, logx.Nop())
	if err := s2.Load(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	snap := s2.Snapshot()
	if len(snap.Players) != 3 || snap.Players[2] != "alice" {
		t.Fatalf("players after reload = %v", snap.Players)
	}
	if snap.ChatID != 42 {
		t.Fatalf("chat id after reload = %d", snap.ChatID)
	}
	if _, ok := snap.Notified["g1"]; !ok {
		t.Fatalf("notified set lost g1: %v", snap.Notified)
	}
	if _, ok := snap.Notified["g2"]; !ok {
		t.Fatalf("notified set lost g2: %v", snap.Notified)
	}
	if len(snap.Speeds) != 2 || snap.Speeds[0] != "blitz" || snap.Speeds[1] != "rapid" {
		t.Fatalf("filter after reload = %v", snap.Speeds)
	}

	// The notified list must serialize deterministically.
	m := readStateFile(t, path)
	got, _ := m["partidas_notificadas"].([]any)
	if len(got) != 2 || got[0] != "g1" || got[1] != "g2" {
		t.Fatalf("partidas_notificadas = %v, want sorted [g1 g2]", got)
	}
}

func TestAddPlayerNormalizesAndDedupes(t *testing.T) {
	s, _ := newTestStore(t)

	added, name, err := s.AddPlayer("  NewGuy ")
	if err != nil || !added || name != "newguy" {
		t.Fatalf("AddPlayer = (%v, %q, %v)", added, name, err)
	}
	added, _, err = s.AddPlayer("NEWGUY")
	if err != nil {
		t.Fatalf("AddPlayer repeat: %v", err)
	}
	if added {
		t.Fatal("duplicate add should report added=false")
	}

	snap := s.Snapshot()
	if len(snap.Players) != 3 {
		t.Fatalf("players = %v", snap.Players)
	}
}

func TestRemovePlayerMissingIsReported(t *testing.T) {
	s, _ := newTestStore(t)

	removed, _, err := s.RemovePlayer("nobody")
	if err != nil {
		t.Fatalf("RemovePlayer: %v", err)
	}
	if removed {
		t.Fatal("removing an unknown player should report removed=false")
	}

	removed, _, err = s.RemovePlayer("Hikaru")
	if err != nil || !removed {
		t.Fatalf("RemovePlayer(hikaru) = (%v, %v)", removed, err)
	}
	snap := s.Snapshot()
	if len(snap.Players) != 1 || snap.Players[0] != "magnuscarlsen" {
		t.Fatalf("players = %v", snap.Players)
	}
}

func TestSetSpeedFilterKeepsValidSubset(t *testing.T) {
	s, _ := newTestStore(t)

	applied, changed, err := s.SetSpeedFilter([]string{"Blitz", "ultrafast", "rapid"})
	if err != nil {
		t.Fatalf("SetSpeedFilter: %v", err)
	}
	if !changed || len(applied) != 2 || applied[0] != "blitz" || applied[1] != "rapid" {
		t.Fatalf("applied = %v changed=%v", applied, changed)
	}

	// All-invalid input leaves the filter alone.
	applied, changed, err = s.SetSpeedFilter([]string{"hyperbullet"})
	if err != nil {
		t.Fatalf("SetSpeedFilter: %v", err)
	}
	if changed || applied != nil {
		t.Fatalf("all-invalid input should not change the filter, got %v", applied)
	}
	snap := s.Snapshot()
	if len(snap.Speeds) != 2 {
		t.Fatalf("filter = %v", snap.Speeds)
	}

	if err := s.ClearSpeedFilter(); err != nil {
		t.Fatalf("ClearSpeedFilter: %v", err)
	}
	if got := s.Snapshot().Speeds; len(got) != 0 {
		t.Fatalf("filter after clear = %v", got)
	}
}

func TestMarkNotifiedIdempotent(t *testing.T) {
	s, path := newTestStore(t)

	if err := s.MarkNotified("abc"); err != nil {
		t.Fatalf("MarkNotified: %v", err)
	}
	fi1, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.MarkNotified("abc"); err != nil {
		t.Fatalf("MarkNotified repeat: %v", err)
	}
	fi2, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	// Repeat marks must not rewrite the file.
	if !fi1.ModTime().Equal(fi2.ModTime()) || fi1.Size() != fi2.Size() {
		t.Fatal("idempotent MarkNotified rewrote the state file")
	}
	if !s.IsNotified("abc") {
		t.Fatal("IsNotified(abc) = false")
	}
}
