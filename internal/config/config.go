package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tashasho/social-media-posting-automator/internal/llm"
	"github.com/tashasho/social-media-posting-automator/internal/writer"
)

// DefaultPath is used when CONFIG_PATH is not set
const DefaultPath = "configs/config.yml"

// Config holds application configuration
type Config struct {
	Server struct {
		Port            string        `yaml:"port"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Log struct {
		Development bool   `yaml:"development"`
		Level       string `yaml:"level"`
	} `yaml:"log"`

	Slack struct {
		BotToken      string `yaml:"bot_token"`
		SigningSecret string `yaml:"signing_secret"`
		ChannelID     string `yaml:"channel_id"`
		APIURL        string `yaml:"api_url"`
	} `yaml:"slack"`

	Drafts struct {
		PendingDir  string        `yaml:"pending_dir"`
		ApprovedDir string        `yaml:"approved_dir"`
		PendingTTL  time.Duration `yaml:"pending_ttl"`
	} `yaml:"drafts"`

	Writer struct {
		writer.Config `yaml:",inline"`
		NewsPath      string `yaml:"news_path"`
		ExamplesPath  string `yaml:"examples_path"`
	} `yaml:"writer"`

	Generator struct {
		Providers []llm.ProviderConfig `yaml:"providers"`
	} `yaml:"generator"`

	Critic struct {
		Providers  []llm.ProviderConfig `yaml:"providers"`
		PolicyPath string               `yaml:"policy_path"`
		Timeout    time.Duration        `yaml:"timeout"`
	} `yaml:"critic"`

	MaxFailuresBeforeSwitch int `yaml:"max_failures_before_switch"`

	Publisher struct {
		Timeout time.Duration `yaml:"timeout"`
		Skip    []string      `yaml:"skip"`

		Twitter struct {
			BearerToken string `yaml:"bearer_token"`
			BaseURL     string `yaml:"base_url"`
		} `yaml:"twitter"`
		LinkedIn struct {
			AccessToken string `yaml:"access_token"`
			OrgID       string `yaml:"org_id"`
			BaseURL     string `yaml:"base_url"`
		} `yaml:"linkedin"`
		Telegram struct {
			BotToken string `yaml:"bot_token"`
			Channel  string `yaml:"channel"`
		} `yaml:"telegram"`
	} `yaml:"publisher"`

	Audit struct {
		Enabled bool   `yaml:"enabled"`
		Driver  string `yaml:"driver"` // "sqlite" or "postgres"
		DSN     string `yaml:"dsn"`
	} `yaml:"audit"`

	Ops struct {
		JWTSecret string        `yaml:"jwt_secret"`
		TokenTTL  time.Duration `yaml:"token_ttl"`
	} `yaml:"ops"`
}

// Path returns CONFIG_PATH or the default location
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return DefaultPath
}

// LoadConfig loads configuration from YAML file
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	config.applyDefaults()
	config.expandSecrets()

	if config.Drafts.PendingTTL < 0 {
		return nil, fmt.Errorf("drafts.pending_ttl must not be negative")
	}

	return config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "5000"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 5 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	if c.Drafts.PendingDir == "" {
		c.Drafts.PendingDir = "./data/drafts"
	}
	if c.Drafts.ApprovedDir == "" {
		c.Drafts.ApprovedDir = "./data/approved"
	}

	c.Writer.Config = c.Writer.Config.WithDefaults()
	if c.Writer.NewsPath == "" {
		c.Writer.NewsPath = "./data/news/latest.json"
	}
	if c.Writer.ExamplesPath == "" {
		c.Writer.ExamplesPath = "./data/examples/style_examples.json"
	}

	if c.Critic.Timeout == 0 {
		c.Critic.Timeout = 30 * time.Second
	}
	if c.MaxFailuresBeforeSwitch == 0 {
		c.MaxFailuresBeforeSwitch = 3
	}
	if c.Publisher.Timeout == 0 {
		c.Publisher.Timeout = 30 * time.Second
	}

	if c.Audit.Driver == "" {
		c.Audit.Driver = "sqlite"
	}
	if c.Audit.DSN == "" {
		c.Audit.DSN = "./data/audit.db"
	}
	if c.Ops.TokenTTL == 0 {
		c.Ops.TokenTTL = 24 * time.Hour
	}
}

// expandSecrets resolves ${VAR} references so secrets stay out of the file
func (c *Config) expandSecrets() {
	for i := range c.Generator.Providers {
		c.Generator.Providers[i].APIKey = os.ExpandEnv(c.Generator.Providers[i].APIKey)
	}
	for i := range c.Critic.Providers {
		c.Critic.Providers[i].APIKey = os.ExpandEnv(c.Critic.Providers[i].APIKey)
	}

	c.Slack.BotToken = os.ExpandEnv(c.Slack.BotToken)
	c.Slack.SigningSecret = os.ExpandEnv(c.Slack.SigningSecret)
	c.Slack.ChannelID = os.ExpandEnv(c.Slack.ChannelID)

	c.Publisher.Twitter.BearerToken = os.ExpandEnv(c.Publisher.Twitter.BearerToken)
	c.Publisher.LinkedIn.AccessToken = os.ExpandEnv(c.Publisher.LinkedIn.AccessToken)
	c.Publisher.LinkedIn.OrgID = os.ExpandEnv(c.Publisher.LinkedIn.OrgID)
	c.Publisher.Telegram.BotToken = os.ExpandEnv(c.Publisher.Telegram.BotToken)
	c.Publisher.Telegram.Channel = os.ExpandEnv(c.Publisher.Telegram.Channel)

	c.Audit.DSN = os.ExpandEnv(c.Audit.DSN)
	c.Ops.JWTSecret = os.ExpandEnv(c.Ops.JWTSecret)
}
