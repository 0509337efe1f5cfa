package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "gmwatch/pkg/logx"
)

// fileStore is a dependency-free persistence backend: a single append-only
// JSON Lines file. Reads scan the file; the history is small (one line per
// notified game) so that stays cheap.
type fileStore struct {
	log logx.Logger

	mu   sync.Mutex
	path string
	f    *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &fileStore{log: log, path: path, f: f}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *fileStore) AppendNotification(ctx context.Context, r NotificationRecord) error {
	_ = ctx
	if r.At.IsZero() {
		r.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return errors.New("history file closed")
	}
	return json.NewEncoder(s.f).Encode(r)
}

func (s *fileStore) RecentNotifications(ctx context.Context, limit int) ([]NotificationRecord, error) {
	_ = ctx
	if limit <= 0 {
		limit = 10
	}

	s.mu.Lock()
	path := s.path
	s.mu.Unlock()

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Keep a rolling window of the last <limit> parseable lines.
	var tail []NotificationRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r NotificationRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		tail = append(tail, r)
		if len(tail) > limit {
			tail = tail[1:]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	// Most recent first.
	for i, j := 0, len(tail)-1; i < j; i, j = i+1, j-1 {
		tail[i], tail[j] = tail[j], tail[i]
	}
	return tail, nil
}
