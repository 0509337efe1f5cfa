package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
)

// envOverrides are the hosting-platform environment variables. They take
// precedence over the config file so a PaaS deployment works without editing
// the file (the platform injects PORT; secrets live in the environment).
type envOverrides struct {
	TelegramToken string `env:"TELEGRAM_TOKEN"`
	Port          string `env:"PORT"`
	DataDir       string `env:"DATA_DIR"`
}

// ApplyEnv overlays environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	if t := strings.TrimSpace(ov.TelegramToken); t != "" {
		cfg.Telegram.Token = t
	}
	if p := strings.TrimSpace(ov.Port); p != "" {
		cfg.Health.Addr = ":" + p
		cfg.Health.Enabled = true
	}
	if d := strings.TrimSpace(ov.DataDir); d != "" {
		name := filepath.Base(strings.TrimSpace(cfg.Watch.StateFile))
		if name == "" || name == "." || name == string(filepath.Separator) {
			name = "data_bot.json"
		}
		cfg.Watch.StateFile = filepath.Join(d, name)
	}
	return nil
}
