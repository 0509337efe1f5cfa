package config

// Config is the full bot configuration, loaded from a JSON or YAML file.
// All duration fields are Go duration strings (e.g. "10s", "2m").
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Watch    WatchConfig    `json:"watch"`
	Health   HealthConfig   `json:"health"`
	Storage  *StorageConfig `json:"storage,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	GroupLog     string  `json:"group_log"`
	// PollTimeout is the Telegram long-poll timeout.
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// WatchConfig controls the Lichess poll cycle.
//
// Defaults (when fields are omitted/empty):
//   - interval: "2m"
//   - first_delay: "10s"
//   - base_url: "https://lichess.org"
//   - request_timeout: "10s"
//   - state_file: "./data_bot.json" (the DATA_DIR env var relocates it)
//   - rate_per_sec: 2
type WatchConfig struct {
	StateFile string `json:"state_file"`
	// Interval between poll cycles.
	Interval string `json:"interval"`
	// FirstDelay is the delay before the first cycle after startup.
	FirstDelay string `json:"first_delay"`
	BaseURL    string `json:"base_url"`
	// RequestTimeout bounds a single current-game request.
	RequestTimeout string `json:"request_timeout"`
	// RatePerSec caps outbound Lichess requests (client-side limiter).
	RatePerSec int `json:"rate_per_sec"`
}

// HealthConfig controls the liveness probe HTTP server.
type HealthConfig struct {
	Enabled bool `json:"enabled"`
	// Addr defaults to ":8080"; the PORT env var overrides the port.
	Addr string `json:"addr,omitempty"`
}

// StorageConfig controls the optional notification history store.
//
// Driver values:
//   - "file": append-only JSON Lines (default persistence backend)
//   - "sqlite": SQLite database file (requires the sqlite build tag)
//
// If the section is omitted or driver is empty/"none", history is disabled.
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}
