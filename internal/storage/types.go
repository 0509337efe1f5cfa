package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (append-only jsonl)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// NotificationRecord is one delivered game announcement.
// Keep it compact and schema-stable.
type NotificationRecord struct {
	At       time.Time `json:"at"`
	Player   string    `json:"player"`
	GameID   string    `json:"game_id"`
	Opponent string    `json:"opponent,omitempty"`
	Speed    string    `json:"speed,omitempty"`
	Color    string    `json:"color,omitempty"`
	ChatID   int64     `json:"chat_id"`
	Manual   bool      `json:"manual,omitempty"`
}
