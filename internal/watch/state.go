// Package watch implements the monitoring core: the persisted watch state,
// the notification filter, and the poll cycle driver.
package watch

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	logx "gmwatch/pkg/logx"
)

// ValidSpeeds is the fixed set of Lichess time-control labels the speed
// filter accepts.
var ValidSpeeds = []string{"bullet", "blitz", "rapid", "classical"}

func isValidSpeed(s string) bool {
	for _, v := range ValidSpeeds {
		if s == v {
			return true
		}
	}
	return false
}

// stateFile is the wire format of the persisted state. The field names are
// fixed: files written by earlier deployments of this bot must keep loading,
// and files we write must keep loading there.
type stateFile struct {
	Players  []string `json:"gms_a_monitorar"`
	Notified []string `json:"partidas_notificadas"`
	Speeds   []string `json:"ritmos_permitidos"`
	ChatID   *int64   `json:"chat_id"`
}

// Snapshot is a consistent copy of the watch state for the filter and the
// poll cycle. ChatID is 0 while no chat is registered.
type Snapshot struct {
	Players  []string
	Speeds   []string
	Notified map[string]struct{}
	ChatID   int64
}

// SpeedAllowed reports whether the snapshot's filter admits the given speed.
// An empty filter admits everything.
func (s Snapshot) SpeedAllowed(speed string) bool {
	if len(s.Speeds) == 0 {
		return true
	}
	for _, v := range s.Speeds {
		if v == speed {
			return true
		}
	}
	return false
}

// Store owns the persisted watch state. Every mutation rewrites the whole
// file (atomic tmp+rename); all access is serialized through the internal
// mutex so the scheduled cycle and command handlers can't race.
type Store struct {
	mu   sync.Mutex
	path string
	log  logx.Logger

	players  []string            // ordered, lower-cased, unique
	speeds   []string            // allow-list; empty means no filter
	notified map[string]struct{} // game ids already notified
	chatID   int64               // 0 = unset
}

func NewStore(path string, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{
		path:     path,
		log:      log,
		notified: map[string]struct{}{},
	}
}

// Load reads the state file. A missing file initializes defaults and writes
// them immediately; a present-but-corrupt file is fatal (no auto-repair).
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.players = []string{"magnuscarlsen", "hikaru"}
		s.speeds = nil
		s.notified = map[string]struct{}{}
		s.chatID = 0
		if err := s.persistLocked(); err != nil {
			return fmt.Errorf("write default state: %w", err)
		}
		s.log.Info("no state file found; defaults written", logx.String("path", s.path))
		return nil
	}
	if err != nil {
		return fmt.Errorf("read state: %w", err)
	}

	var f stateFile
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("parse state %s: %w", s.path, err)
	}

	s.players = make([]string, 0, len(f.Players))
	seen := map[string]struct{}{}
	for _, p := range f.Players {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		s.players = append(s.players, p)
	}

	s.speeds = nil
	for _, v := range f.Speeds {
		v = strings.ToLower(strings.TrimSpace(v))
		if isValidSpeed(v) {
			s.speeds = append(s.speeds, v)
		}
	}

	s.notified = make(map[string]struct{}, len(f.Notified))
	for _, id := range f.Notified {
		if id != "" {
			s.notified[id] = struct{}{}
		}
	}

	s.chatID = 0
	if f.ChatID != nil {
		s.chatID = *f.ChatID
	}

	s.log.Info("state loaded",
		logx.String("path", s.path),
		logx.Int("players", len(s.players)),
		logx.Int("notified", len(s.notified)),
		logx.Bool("chat_set", s.chatID != 0),
	)
	return nil
}

// persistLocked writes the full state atomically. Caller holds s.mu.
func (s *Store) persistLocked() error {
	f := stateFile{
		Players:  append([]string{}, s.players...),
		Notified: make([]string, 0, len(s.notified)),
		Speeds:   append([]string{}, s.speeds...),
	}
	for id := range s.notified {
		f.Notified = append(f.Notified, id)
	}
	// The dedup set is unordered in memory; sort for a stable file.
	sort.Strings(f.Notified)
	if s.chatID != 0 {
		id := s.chatID
		f.ChatID = &id
	}

	b, err := json.MarshalIndent(f, "", "    ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Snapshot returns a consistent copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Players:  append([]string{}, s.players...),
		Speeds:   append([]string{}, s.speeds...),
		Notified: make(map[string]struct{}, len(s.notified)),
		ChatID:   s.chatID,
	}
	for id := range s.notified {
		snap.Notified[id] = struct{}{}
	}
	return snap
}

// AddPlayer adds a player (case-normalized). The second return is the
// normalized name; added is false when it was already on the list.
func (s *Store) AddPlayer(name string) (added bool, normalized string, err error) {
	normalized = strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return false, "", errors.New("player name is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.players {
		if p == normalized {
			return false, normalized, nil
		}
	}
	s.players = append(s.players, normalized)
	if err := s.persistLocked(); err != nil {
		return false, normalized, fmt.Errorf("persist state: %w", err)
	}
	return true, normalized, nil
}

// RemovePlayer removes a player. removed is false (with no persist) when the
// name is not on the list.
func (s *Store) RemovePlayer(name string) (removed bool, normalized string, err error) {
	normalized = strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return false, "", errors.New("player name is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.players {
		if p == normalized {
			s.players = append(s.players[:i], s.players[i+1:]...)
			if err := s.persistLocked(); err != nil {
				return false, normalized, fmt.Errorf("persist state: %w", err)
			}
			return true, normalized, nil
		}
	}
	return false, normalized, nil
}

// SetSpeedFilter replaces the filter with the valid subset of the input,
// preserving input order. When no input value is valid the filter is left
// unchanged and changed is false.
func (s *Store) SetSpeedFilter(speeds []string) (applied []string, changed bool, err error) {
	for _, v := range speeds {
		v = strings.ToLower(strings.TrimSpace(v))
		if isValidSpeed(v) {
			applied = append(applied, v)
		}
	}
	if len(applied) == 0 {
		return nil, false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.speeds = append([]string{}, applied...)
	if err := s.persistLocked(); err != nil {
		return nil, false, fmt.Errorf("persist state: %w", err)
	}
	return applied, true, nil
}

// ClearSpeedFilter empties the filter (allow all speeds).
func (s *Store) ClearSpeedFilter() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speeds = nil
	if err := s.persistLocked(); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	return nil
}

// SetChat registers the notification target chat.
func (s *Store) SetChat(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatID = id
	if err := s.persistLocked(); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	return nil
}

// MarkNotified records a game id in the dedup set. Idempotent; a repeat call
// does not rewrite the file.
func (s *Store) MarkNotified(gameID string) error {
	if gameID == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notified[gameID]; ok {
		return nil
	}
	s.notified[gameID] = struct{}{}
	if err := s.persistLocked(); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	return nil
}

// IsNotified reports dedup membership against the live set (not a snapshot).
func (s *Store) IsNotified(gameID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.notified[gameID]
	return ok
}
