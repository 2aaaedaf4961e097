package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.BindAddress != "0.0.0.0:3000" {
		t.Fatalf("bind address = %q, want default", cfg.Server.BindAddress)
	}
	if cfg.Game.MoveSpeed != 160 {
		t.Fatalf("move speed = %v, want 160", cfg.Game.MoveSpeed)
	}
	if cfg.Database.Enabled {
		t.Fatal("database must default to disabled")
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.toml")
	body := `
[server]
bind_address = ":4000"

[network]
read_timeout = "30s"

[game]
move_speed = 200.0
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.BindAddress != ":4000" {
		t.Fatalf("bind address = %q, want :4000", cfg.Server.BindAddress)
	}
	if cfg.Network.ReadTimeout != 30*time.Second {
		t.Fatalf("read timeout = %v, want 30s", cfg.Network.ReadTimeout)
	}
	if cfg.Game.MoveSpeed != 200 {
		t.Fatalf("move speed = %v, want 200", cfg.Game.MoveSpeed)
	}
	// Untouched sections keep defaults.
	if cfg.Network.OutQueueSize != 64 {
		t.Fatalf("out queue = %d, want default 64", cfg.Network.OutQueueSize)
	}
}

func TestLoadRejectsBadToml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[server\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}
