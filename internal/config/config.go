// Package config loads relay sets and fetch tunables from a JSON or YAML
// file, then applies environment overrides.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultPath is read when NOTES_CONFIG is unset
const DefaultPath = "config/notes.json"

// Config holds every setting of the service and the CLI
type Config struct {
	// DiscoveryRelays are asked for profiles and relay lists
	DiscoveryRelays []string `json:"discoveryRelays" yaml:"discoveryRelays"`
	// ContentRelays are used for posts when a user has no usable relay list
	ContentRelays []string `json:"contentRelays" yaml:"contentRelays"`

	BatchLimit     int      `json:"batchLimit" yaml:"batchLimit"`
	DiscoveryLimit int      `json:"discoveryLimit" yaml:"discoveryLimit"`
	MaxPages       int      `json:"maxPages" yaml:"maxPages"`
	EOSETimeout    Duration `json:"eoseTimeout" yaml:"eoseTimeout"`
	ConnectTimeout Duration `json:"connectTimeout" yaml:"connectTimeout"`

	ListenAddr string `json:"listenAddr" yaml:"listenAddr"`
	LogLevel   string `json:"logLevel" yaml:"logLevel"`
	// AllowedOrigins are the CORS origins of the web UI
	AllowedOrigins []string `json:"allowedOrigins" yaml:"allowedOrigins"`

	// RedisURL selects the Redis discovery cache; empty means in memory
	RedisURL          string   `json:"redisUrl" yaml:"redisUrl"`
	CacheEntries      int      `json:"cacheEntries" yaml:"cacheEntries"`
	DiscoveryCacheTTL Duration `json:"discoveryCacheTtl" yaml:"discoveryCacheTtl"`
	// DiscoveryMissTTL applies to authors without a relay list
	DiscoveryMissTTL Duration `json:"discoveryMissTtl" yaml:"discoveryMissTtl"`
}

// Default returns the embedded default configuration
func Default() *Config {
	return &Config{
		DiscoveryRelays: []string{
			"wss://purplepag.es",
			"wss://relay.nostr.band",
			"wss://relay.damus.io",
		},
		ContentRelays: []string{
			"wss://relay.damus.io",
			"wss://relay.nostr.band",
			"wss://relay.primal.net",
			"wss://nos.lol",
			"wss://nostr.mom",
		},
		BatchLimit:     500,
		DiscoveryLimit: 20,
		MaxPages:       10,
		EOSETimeout:    Duration(5 * time.Second),
		ConnectTimeout: Duration(10 * time.Second),
		ListenAddr:     ":8080",
		LogLevel:       "info",
		AllowedOrigins: []string{"*"},

		CacheEntries:      10000,
		DiscoveryCacheTTL: Duration(10 * time.Minute),
		DiscoveryMissTTL:  Duration(time.Minute),
	}
}

// Load reads the file named by NOTES_CONFIG and applies the environment
func Load() (*Config, error) {
	return LoadFrom(os.Getenv("NOTES_CONFIG"))
}

// LoadFrom reads path, or DefaultPath when empty, and applies the environment
func LoadFrom(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	cfg := LoadFile(path)
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads path as YAML (.yaml, .yml) or JSON. A missing or invalid
// file yields the defaults; fields absent from the file keep their default.
func LoadFile(path string) *Config {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Debug("config file not found, using defaults", "path", path)
		} else {
			slog.Warn("could not read config, using defaults", "path", path, "error", err)
		}
		return Default()
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		slog.Error("invalid config, using defaults", "path", path, "error", err)
		return Default()
	}

	cfg.fillDefaults()
	slog.Info("loaded configuration",
		"path", path,
		"discovery", len(cfg.DiscoveryRelays),
		"content", len(cfg.ContentRelays),
		"batchLimit", cfg.BatchLimit)
	return &cfg
}

func (c *Config) fillDefaults() {
	d := Default()
	if len(c.DiscoveryRelays) == 0 {
		c.DiscoveryRelays = d.DiscoveryRelays
	}
	if len(c.ContentRelays) == 0 {
		c.ContentRelays = d.ContentRelays
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = d.BatchLimit
	}
	if c.DiscoveryLimit <= 0 {
		c.DiscoveryLimit = d.DiscoveryLimit
	}
	if c.MaxPages <= 0 {
		c.MaxPages = d.MaxPages
	}
	if c.EOSETimeout <= 0 {
		c.EOSETimeout = d.EOSETimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.ListenAddr == "" {
		c.ListenAddr = d.ListenAddr
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = d.AllowedOrigins
	}
	if c.CacheEntries <= 0 {
		c.CacheEntries = d.CacheEntries
	}
	if c.DiscoveryCacheTTL <= 0 {
		c.DiscoveryCacheTTL = d.DiscoveryCacheTTL
	}
	if c.DiscoveryMissTTL <= 0 {
		c.DiscoveryMissTTL = d.DiscoveryMissTTL
	}
}

func (c *Config) applyEnv() error {
	if p := os.Getenv("PORT"); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("invalid PORT %q", p)
		}
		c.ListenAddr = ":" + strconv.Itoa(port)
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		c.RedisURL = url
	}
	if relays := splitList(os.Getenv("NOTES_DISCOVERY_RELAYS")); len(relays) > 0 {
		c.DiscoveryRelays = relays
	}
	if relays := splitList(os.Getenv("NOTES_CONTENT_RELAYS")); len(relays) > 0 {
		c.ContentRelays = relays
	}
	if v := os.Getenv("NOTES_BATCH_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid NOTES_BATCH_LIMIT: %w", err)
		}
		if n <= 0 {
			return fmt.Errorf("invalid NOTES_BATCH_LIMIT: %d is not positive", n)
		}
		c.BatchLimit = n
	}
	if v := os.Getenv("NOTES_EOSE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid NOTES_EOSE_TIMEOUT: %w", err)
		}
		c.EOSETimeout = Duration(d)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
