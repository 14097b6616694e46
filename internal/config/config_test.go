package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.WSAddr != ":8081" || cfg.StoreBackend != BackendRedis {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.StoreTTL() != 24*time.Hour || cfg.StorePollInterval() != 500*time.Millisecond {
		t.Fatalf("unexpected durations %v %v", cfg.StoreTTL(), cfg.StorePollInterval())
	}
	if cfg.IdleTimeout() != 30*time.Minute {
		t.Fatalf("idle timeout = %v", cfg.IdleTimeout())
	}
	if cfg.BotDepth != 2 || cfg.BotSeed != 0 || cfg.WaitTimeout() != 0 {
		t.Fatalf("unexpected bot/wait defaults %+v", cfg)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "Badger")
	t.Setenv("BADGER_DIR", "/tmp/relay")
	t.Setenv("STORE_KEY_PREFIX", "")
	t.Setenv("STORE_POLL_INTERVAL_MS", "0")
	t.Setenv("BOT_DEPTH", "4")
	t.Setenv("BOT_SEED", "42")
	t.Setenv("WAIT_TIMEOUT_SEC", "30")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StoreBackend != BackendBadger || cfg.StoreKeyPrefix != "" || cfg.StorePollInterval() != 0 {
		t.Fatalf("store overrides not applied: %+v", cfg)
	}
	if cfg.BotDepth != 4 || cfg.BotSeed != 42 || cfg.WaitTimeout() != 30*time.Second {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"redis without url", map[string]string{}, "REDIS_URL"},
		{"badger without dir", map[string]string{"STORE_BACKEND": "badger"}, "BADGER_DIR"},
		{"unknown backend", map[string]string{"STORE_BACKEND": "etcd"}, "unknown STORE_BACKEND"},
		{"depth below one", map[string]string{"REDIS_URL": "redis://x", "BOT_DEPTH": "0"}, "BOT_DEPTH"},
		{"depth not a number", map[string]string{"REDIS_URL": "redis://x", "BOT_DEPTH": "deep"}, "BOT_DEPTH"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("REDIS_URL", "")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestConfigFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chess.yaml")
	body := "store_backend: badger\nbadger_dir: /var/lib/relay\nbot_depth: 3\nhttp_addr: \":9090\"\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("CHESS_CONFIG_FILE", path)
	t.Setenv("BOT_DEPTH", "5")
	t.Setenv("WS_ADDR", ":7000")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StoreBackend != BackendBadger || cfg.BadgerDir != "/var/lib/relay" {
		t.Fatalf("file store keys not applied: %+v", cfg)
	}
	if cfg.BotDepth != 3 || cfg.HTTPAddr != ":9090" {
		t.Fatalf("file should win over env: %+v", cfg)
	}
	if cfg.WSAddr != ":7000" {
		t.Fatalf("env key absent from file should survive: %+v", cfg)
	}
}

func TestConfigFileErrors(t *testing.T) {
	t.Setenv("CHESS_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatalf("expected read error")
	}
}
