package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{
  "telegram": {"token": "t0k", "owner_user_ids": [1, 2]},
  "logging": {"level": "DEBUG", "console": true},
  "watch": {"interval": "90s", "state_file": "./state.json"},
  "health": {"enabled": true, "addr": ":9090"}
}`)
	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "t0k" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if len(cfg.Telegram.OwnerUserIDs) != 2 || cfg.Telegram.OwnerUserIDs[1] != 2 {
		t.Fatalf("owners = %v", cfg.Telegram.OwnerUserIDs)
	}
	if cfg.Watch.Interval != "90s" {
		t.Fatalf("interval = %q", cfg.Watch.Interval)
	}
	if !cfg.Health.Enabled || cfg.Health.Addr != ":9090" {
		t.Fatalf("health = %+v", cfg.Health)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get should return the committed config")
	}
}

func TestParseYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", strings.Join([]string{
		"telegram:",
		"  token: t0k",
		"watch:",
		"  interval: 2m",
		"  rate_per_sec: 3",
	}, "\n"))
	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "t0k" || cfg.Watch.Interval != "2m" || cfg.Watch.RatePerSec != 3 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "config.json", `{"telegram": {"token": "x"}, "bogus": 1}`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("unknown top-level field should be rejected")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	path := writeConfig(t, "config.json", `{"telegram": {"token": "x"}}{"again": true}`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("trailing JSON should be rejected")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "env-token")
	t.Setenv("PORT", "10000")
	t.Setenv("DATA_DIR", "/var/data")

	cfg := &Config{}
	cfg.Telegram.Token = "file-token"
	cfg.Watch.StateFile = "./data_bot.json"

	if err := ApplyEnv(cfg); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Telegram.Token != "env-token" {
		t.Fatalf("token = %q, env must win", cfg.Telegram.Token)
	}
	if !cfg.Health.Enabled || cfg.Health.Addr != ":10000" {
		t.Fatalf("health = %+v", cfg.Health)
	}
	if cfg.Watch.StateFile != "/var/data/data_bot.json" {
		t.Fatalf("state_file = %q", cfg.Watch.StateFile)
	}
}

func TestApplyEnvNoVarsKeepsFile(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "")
	t.Setenv("PORT", "")
	t.Setenv("DATA_DIR", "")

	cfg := &Config{}
	cfg.Telegram.Token = "file-token"
	if err := ApplyEnv(cfg); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Telegram.Token != "file-token" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Health.Enabled {
		t.Fatal("health should stay disabled without PORT")
	}
}

func TestParseDurationField(t *testing.T) {
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"10s", 10 * time.Second, false},
		{" 2m ", 2 * time.Minute, false},
		{"-5s", 0, true},
		{"banana", 0, true},
	}
	for _, tc := range tests {
		got, err := ParseDurationField("x", tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseDurationField(%q): want error", tc.raw)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("ParseDurationField(%q) = (%v, %v), want %v", tc.raw, got, err, tc.want)
		}
	}
}

func TestSummarizeChangeNeverLogsToken(t *testing.T) {
	oldCfg := &Config{}
	newCfg := &Config{}
	newCfg.Telegram.Token = "secret"
	newCfg.Telegram.PollTimeout = "20s"
	newCfg.Watch.Interval = "1m"

	sections, attrs := SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		t.Fatal("changed sections expected")
	}
	_ = attrs
	for _, s := range sections {
		if strings.Contains(s, "secret") {
			t.Fatal("section names must not carry config values")
		}
	}
}
