package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Discord DiscordConfig `json:"discord"`
	Convo   ConvoConfig   `json:"convo"`
}

type DiscordConfig struct {
	Token     string `env:"CONVOSPLIT_DISCORD_TOKEN"      json:"token"`
	GuildID   string `env:"CONVOSPLIT_DISCORD_GUILD_ID"   json:"guild_id"` // when set, commands register to this guild only
	InviteURL string `env:"CONVOSPLIT_DISCORD_INVITE_URL" json:"invite_url"`
}

type ConvoConfig struct {
	CategoryMarker           string `env:"CONVOSPLIT_CONVO_CATEGORY_MARKER"            json:"category_marker"`
	DefaultTimeoutMinutes    int    `env:"CONVOSPLIT_CONVO_DEFAULT_TIMEOUT_MINUTES"    json:"default_timeout_minutes"`
	ArchiveDir               string `env:"CONVOSPLIT_CONVO_ARCHIVE_DIR"                json:"archive_dir"`
	DeliveryFreshnessMinutes int    `env:"CONVOSPLIT_CONVO_DELIVERY_FRESHNESS_MINUTES" json:"delivery_freshness_minutes"`
}

func DefaultConfig() *Config {
	return &Config{
		Convo: ConvoConfig{
			CategoryMarker:           "convosplit",
			DefaultTimeoutMinutes:    5,
			ArchiveDir:               "convos",
			DeliveryFreshnessMinutes: 10,
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// DefaultTimeout returns the inactivity timeout applied when a split request
// does not specify one.
func (c *Config) DefaultTimeout() time.Duration {
	m := c.Convo.DefaultTimeoutMinutes
	if m <= 0 {
		m = 5
	}
	return time.Duration(m) * time.Minute
}

// DeliveryFreshness returns how long after a conversation starts its
// interaction webhook is still considered a viable delivery surface.
func (c *Config) DeliveryFreshness() time.Duration {
	m := c.Convo.DeliveryFreshnessMinutes
	if m <= 0 {
		m = 10
	}
	return time.Duration(m) * time.Minute
}
