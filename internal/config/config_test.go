package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func clearEnv(t *testing.T) {
	for _, key := range []string{"NOTES_CONFIG", "PORT", "LOG_LEVEL", "NOTES_DISCOVERY_RELAYS", "NOTES_CONTENT_RELAYS", "NOTES_BATCH_LIMIT", "NOTES_EOSE_TIMEOUT", "REDIS_URL"} {
		t.Setenv(key, "")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("NOTES_CONFIG", filepath.Join(t.TempDir(), "absent.json"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadJSON(t *testing.T) {
	clearEnv(t)
	t.Setenv("NOTES_CONFIG", writeFile(t, "notes.json", `{
		"discoveryRelays": ["wss://indexer.example"],
		"batchLimit": 50,
		"eoseTimeout": "2s",
		"connectTimeout": 3
	}`))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff([]string{"wss://indexer.example"}, cfg.DiscoveryRelays); diff != "" {
		t.Errorf("discovery relays (-want +got):\n%s", diff)
	}
	if cfg.BatchLimit != 50 {
		t.Errorf("BatchLimit = %d, want 50", cfg.BatchLimit)
	}
	if cfg.EOSETimeout.Std() != 2*time.Second {
		t.Errorf("EOSETimeout = %v, want 2s", cfg.EOSETimeout)
	}
	if cfg.ConnectTimeout.Std() != 3*time.Second {
		t.Errorf("ConnectTimeout = %v, want 3s", cfg.ConnectTimeout)
	}
	// Absent fields keep their defaults
	if diff := cmp.Diff(Default().ContentRelays, cfg.ContentRelays); diff != "" {
		t.Errorf("content relays (-want +got):\n%s", diff)
	}
	if cfg.MaxPages != 10 || cfg.DiscoveryLimit != 20 {
		t.Errorf("MaxPages = %d, DiscoveryLimit = %d", cfg.MaxPages, cfg.DiscoveryLimit)
	}
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)
	t.Setenv("NOTES_CONFIG", writeFile(t, "notes.yaml", `
contentRelays:
  - wss://one.example
  - wss://two.example
maxPages: 2
eoseTimeout: 750ms
listenAddr: 127.0.0.1:9000
discoveryCacheTtl: 30m
`))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff([]string{"wss://one.example", "wss://two.example"}, cfg.ContentRelays); diff != "" {
		t.Errorf("content relays (-want +got):\n%s", diff)
	}
	if cfg.MaxPages != 2 {
		t.Errorf("MaxPages = %d, want 2", cfg.MaxPages)
	}
	if cfg.EOSETimeout.Std() != 750*time.Millisecond {
		t.Errorf("EOSETimeout = %v, want 750ms", cfg.EOSETimeout)
	}
	if cfg.ListenAddr != "127.0.0.1:9000" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.DiscoveryCacheTTL.Std() != 30*time.Minute {
		t.Errorf("DiscoveryCacheTTL = %v, want 30m", cfg.DiscoveryCacheTTL)
	}
	if cfg.DiscoveryMissTTL != Default().DiscoveryMissTTL {
		t.Errorf("DiscoveryMissTTL = %v, want the default", cfg.DiscoveryMissTTL)
	}
}

func TestLoadInvalidFileUsesDefaults(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"broken.json", `{"batchLimit": `},
		{"broken.yaml", "contentRelays: [unterminated"},
		{"bad-duration.json", `{"eoseTimeout": "soon"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("NOTES_CONFIG", writeFile(t, tt.name, tt.content))
			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if diff := cmp.Diff(Default(), cfg); diff != "" {
				t.Errorf("config mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("NOTES_CONFIG", writeFile(t, "notes.json", `{"batchLimit": 50, "contentRelays": ["wss://file.example"]}`))
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("NOTES_DISCOVERY_RELAYS", "wss://d1.example, wss://d2.example,")
	t.Setenv("NOTES_CONTENT_RELAYS", "wss://env.example")
	t.Setenv("NOTES_BATCH_LIMIT", "25")
	t.Setenv("NOTES_EOSE_TIMEOUT", "1s")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	want.DiscoveryRelays = []string{"wss://d1.example", "wss://d2.example"}
	want.ContentRelays = []string{"wss://env.example"}
	want.BatchLimit = 25
	want.EOSETimeout = Duration(time.Second)
	want.ListenAddr = ":9090"
	want.LogLevel = "debug"
	want.RedisURL = "redis://localhost:6379/0"
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadBadEnv(t *testing.T) {
	tests := []struct {
		key, value, wantErr string
	}{
		{"NOTES_BATCH_LIMIT", "many", "invalid NOTES_BATCH_LIMIT"},
		{"NOTES_BATCH_LIMIT", "0", "invalid NOTES_BATCH_LIMIT"},
		{"PORT", "http", "invalid PORT"},
		{"PORT", "70000", "invalid PORT"},
		{"NOTES_EOSE_TIMEOUT", "5", "invalid NOTES_EOSE_TIMEOUT"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("NOTES_CONFIG", filepath.Join(t.TempDir(), "absent.json"))
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want %q", err, tt.wantErr)
			}
		})
	}
}
