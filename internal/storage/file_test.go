package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "gmwatch/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	st, err := Open(Config{}, logx.Nop())
	if err != nil || st != nil {
		t.Fatalf("Open(disabled) = (%v, %v), want (nil, nil)", st, err)
	}
	st, err = Open(Config{Driver: "none"}, logx.Nop())
	if err != nil || st != nil {
		t.Fatalf("Open(none) = (%v, %v), want (nil, nil)", st, err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("unknown driver should fail")
	}
}

func TestFileStoreAppendAndRecent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		r := NotificationRecord{
			At:     base.Add(time.Duration(i) * time.Minute),
			Player: "alice",
			GameID: fmt.Sprintf("g%d", i),
			ChatID: 7,
		}
		if err := st.AppendNotification(ctx, r); err != nil {
			t.Fatalf("AppendNotification: %v", err)
		}
	}

	recs, err := st.RecentNotifications(ctx, 3)
	if err != nil {
		t.Fatalf("RecentNotifications: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	// Most recent first.
	if recs[0].GameID != "g4" || recs[2].GameID != "g2" {
		t.Fatalf("order = [%s %s %s]", recs[0].GameID, recs[1].GameID, recs[2].GameID)
	}
}

func TestFileStoreRecentSkipsCorruptLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := st.AppendNotification(context.Background(), NotificationRecord{Player: "alice", GameID: "g1", ChatID: 7}); err != nil {
		t.Fatal(err)
	}
	if err := st.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("{broken\n"); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	st2, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { st2.Close() })

	recs, err := st2.RecentNotifications(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentNotifications: %v", err)
	}
	if len(recs) != 1 || recs[0].GameID != "g1" {
		t.Fatalf("records = %+v", recs)
	}
}

func TestFileStoreRecentMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	// Nothing appended yet; an absent file reads as empty.
	_ = os.Remove(path)
	recs, err := st.RecentNotifications(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentNotifications: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("records = %+v, want none", recs)
	}
}
