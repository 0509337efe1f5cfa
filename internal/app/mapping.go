package app

import (
	"fmt"
	"strings"
	"time"

	"gmwatch/internal/config"
	"gmwatch/internal/lichess"
	"gmwatch/internal/storage"
	"gmwatch/internal/watch"
	logx "gmwatch/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapPollerConfig(cfg *config.Config) (watch.PollerConfig, error) {
	interval, err := config.ParseDurationOrDefault("watch.interval", cfg.Watch.Interval, 2*time.Minute)
	if err != nil {
		return watch.PollerConfig{}, err
	}
	firstDelay, err := config.ParseDurationOrDefault("watch.first_delay", cfg.Watch.FirstDelay, 10*time.Second)
	if err != nil {
		return watch.PollerConfig{}, err
	}
	if interval < time.Second {
		return watch.PollerConfig{}, fmt.Errorf("watch.interval must be at least 1s")
	}
	return watch.PollerConfig{Interval: interval, FirstDelay: firstDelay}, nil
}

func mapLichessConfig(cfg *config.Config) (lichess.Config, error) {
	timeout, err := config.ParseDurationOrDefault("watch.request_timeout", cfg.Watch.RequestTimeout, 10*time.Second)
	if err != nil {
		return lichess.Config{}, err
	}
	if cfg.Watch.RatePerSec < 0 {
		return lichess.Config{}, fmt.Errorf("watch.rate_per_sec must be >= 0")
	}
	return lichess.Config{
		BaseURL:    cfg.Watch.BaseURL,
		Timeout:    timeout,
		RatePerSec: cfg.Watch.RatePerSec,
	}, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	if cfg.Storage == nil {
		return storage.Config{}, nil
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, nil
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 0)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, nil
}
