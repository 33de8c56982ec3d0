// Package config provides configuration loading from YAML files.
package config

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Discord  DiscordConfig  `yaml:"discord"`
	Music    MusicConfig    `yaml:"music"`
	Lavalink LavalinkConfig `yaml:"lavalink"`
	Notify   NotifyConfig   `yaml:"notify"`
	Log      LogConfig      `yaml:"log"`
	LangPath string         `yaml:"lang_path" default:"lang.yaml"`
}

type DiscordConfig struct {
	Token   string `yaml:"token" validate:"required"`
	GuildID string `yaml:"guild_id"`
}

type MusicConfig struct {
	DefaultVolume    int `yaml:"default_volume" default:"50" validate:"gte=0,lte=100"`
	MaxQueueSize     int `yaml:"max_queue_size" default:"100" validate:"gt=0"`
	SearchResults    int `yaml:"search_results" default:"3" validate:"gte=1,lte=5"`
	PromptTimeoutSec int `yaml:"prompt_timeout_sec" default:"10" validate:"gt=0"`
	FadeStepMs       int `yaml:"fade_step_ms" default:"200" validate:"gte=0,lte=5000"`
}

type LavalinkConfig struct {
	Host     string `yaml:"host" default:"localhost"`
	Port     int    `yaml:"port" default:"2333"`
	Password string `yaml:"password" default:"youshallnotpass"`
	Secure   bool   `yaml:"secure"`
}

type NotifyConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange" default:"jukebox.playback"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info"`
	Output string `yaml:"output" default:"stdout"`
	File   string `yaml:"file"`
}

// Load reads a YAML config file. Environment variables take precedence over
// file values for credentials; defaults fill whatever is left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

func (c *Config) overrideFromEnv() {
	if v := os.Getenv("DISCORD_TOKEN"); v != "" {
		c.Discord.Token = v
	}
	if v := os.Getenv("LAVALINK_PASSWORD"); v != "" {
		c.Lavalink.Password = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		c.Notify.URL = v
	}
}

func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}
