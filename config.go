package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const (
	defaultPageSize         = 50
	defaultSizeCacheEntries = 4096
	defaultInsets           = 2
)

// ChannelConfig is a NIP-28 channel listed in the config file.
type ChannelConfig struct {
	Name string `toml:"name"`
	ID   string `toml:"id"`
}

type Config struct {
	Relays           []string        `toml:"relays"`
	PageSize         int             `toml:"page_size"`
	SizeCacheEntries *int            `toml:"size_cache_entries"` // nil = default, 0 = unbounded
	HorizontalInsets *int            `toml:"horizontal_insets"`
	Logging          *bool           `toml:"logging"` // nil = default (true)
	LogDir           string          `toml:"log_dir"`
	GlamourStyle     string          `toml:"glamour_style"` // "" = detect, "notty" = plain text
	Channels         []ChannelConfig `toml:"channel"`
}

// LoggingEnabled returns whether message logging is enabled.
func (c Config) LoggingEnabled() bool {
	if c.Logging == nil {
		return true // enabled by default
	}
	return *c.Logging
}

// CacheEntries returns the size cache capacity; 0 means unbounded.
func (c Config) CacheEntries() int {
	if c.SizeCacheEntries == nil || *c.SizeCacheEntries < 0 {
		return defaultSizeCacheEntries
	}
	return *c.SizeCacheEntries
}

// Insets returns the total horizontal inset of the message list.
func (c Config) Insets() int {
	if c.HorizontalInsets == nil || *c.HorizontalInsets < 0 {
		return defaultInsets
	}
	return *c.HorizontalInsets
}

// logDir returns the directory chat logs go to, or "" when logging is off.
func (c Config) logDir() string {
	if !c.LoggingEnabled() {
		return ""
	}
	return c.LogDir
}

func defaultConfig() Config {
	return Config{
		Relays: []string{
			"wss://relay.damus.io",
			"wss://nos.lol",
		},
		PageSize: defaultPageSize,
	}
}

func configPath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if p := os.Getenv("RIVULET_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(home, ".config", "rivulet", "config.toml")
}

func defaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "logs"
	}
	return filepath.Join(home, ".local", "share", "rivulet", "logs")
}

func LoadConfig(flagPath string) (Config, error) {
	cfg := defaultConfig()

	path := configPath(flagPath)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.LogDir = defaultLogDir()
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if len(cfg.Relays) == 0 {
		cfg.Relays = defaultConfig().Relays
	}
	if cfg.LogDir == "" {
		cfg.LogDir = defaultLogDir()
	}
	for i, ch := range cfg.Channels {
		if ch.ID == "" {
			return cfg, fmt.Errorf("parse config %s: channel %d has no id", path, i+1)
		}
		if ch.Name == "" {
			cfg.Channels[i].Name = shortPK(ch.ID)
		}
	}

	return cfg, nil
}

// channelsFromConfig converts configured channels; names may be replaced
// later by kind-40 metadata.
func channelsFromConfig(cfg Config) []Channel {
	out := make([]Channel, 0, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		out = append(out, Channel{ID: ch.ID, Name: ch.Name})
	}
	return out
}
