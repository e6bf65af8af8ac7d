package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log     Log     `yaml:"log"`
	Server  Server  `yaml:"server"`
	Backend Backend `yaml:"backend"`
	Tracker Tracker `yaml:"tracker"`
	Retry   Retry   `yaml:"retry"`
	Admin   Admin   `yaml:"admin"`
	Centre  Centre  `yaml:"centre"`
}

type Log struct {
	// Telegram logging config
	Telegram TelegramLog `yaml:"telegram"`
}

type TelegramLog struct {
	// Chat bot token, obtain it via BotFather
	Token string `yaml:"token" example:"1234567890:ABCdefGHIjklMNopQRstUVwxyZ-123456789"`
	// Chat ID to send messages to
	ChatID string `yaml:"chat_id" example:"1001234567890"`
}

type Server struct {
	// Listen address of the HTTP API
	Addr string `yaml:"addr" example:":8080"`
}

type Backend struct {
	// Workflow engine webhook URL
	URL string `yaml:"url" example:"https://workflows.example.org/webhook/analytics" validate:"required,url"`
	// Lightweight reachability endpoint
	ProbeURL string `yaml:"probe_url" example:"https://workflows.example.org/healthz" validate:"required,url"`
	// Per-request timeout for backend calls
	Timeout time.Duration `yaml:"timeout" example:"30s"`
	// Timeout for a single reachability probe
	ProbeTimeout time.Duration `yaml:"probe_timeout" example:"5s"`
}

type Tracker struct {
	// Minutes of inactivity before a conversation is ended
	TimeoutMinutes int `yaml:"timeout_minutes" example:"10"`
	// How often the inactivity deadline is evaluated
	CheckInterval time.Duration `yaml:"check_interval" example:"20s"`
	// How often the connection is probed in the background
	PollInterval time.Duration `yaml:"poll_interval" example:"30s"`
	// Pause inactivity checks while the page is hidden or unfocused
	PauseOnInvisible bool `yaml:"pause_on_invisible" example:"true"`
}

type Retry struct {
	// Maximum number of scheduled retries per request
	MaxAttempts int `yaml:"max_attempts" example:"3"`
	// Delay before the first retry
	QuickDelay time.Duration `yaml:"quick_delay" example:"2s"`
	// Upper bound of the backoff ladder
	MaxDelay time.Duration `yaml:"max_delay" example:"10s"`
	// Cooldown applied to rate-limited requests
	RateLimitDelay time.Duration `yaml:"rate_limit_delay" example:"10s"`
	// Backend error text mapped to an auth failure
	AuthKeywords []string `yaml:"auth_keywords"`
	// Backend error text mapped to a rate limit
	RateLimitKeywords []string `yaml:"rate_limit_keywords"`
}

type Admin struct {
	// Minutes until an admin session expires
	TimeoutMinutes int `yaml:"timeout_minutes" example:"30"`
	// Minutes before expiry at which the warning is raised
	WarningMinutes int `yaml:"warning_minutes" example:"5"`
	// How often the session deadline is evaluated
	CheckInterval time.Duration `yaml:"check_interval" example:"60s"`
}

type Centre struct {
	// Health centre identifier sent with every backend request
	ID string `yaml:"id" example:"centre-042" validate:"required"`
	// Human-readable centre name
	Name string `yaml:"name" example:"Riverside Community Clinic" validate:"required"`
	// Whether the centre is registered as an NGO
	IsNGO bool `yaml:"is_ngo" example:"false"`
}

func Load() (*Config, error) {
	var result Config

	data, err := os.ReadFile("config.yaml")
	if err != nil {
		return nil, oops.Errorf("failed to read config file: %w", err)
	}

	if err = yaml.Unmarshal(data, &result); err != nil {
		return nil, oops.Errorf("failed to parse YAML config: %w", err)
	}

	result.ApplyDefaults()

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(result); err != nil {
		return nil, oops.Errorf("failed to validate config: %w", err)
	}

	return &result, nil
}

func (c *Config) ApplyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = 30 * time.Second
	}
	if c.Backend.ProbeTimeout == 0 {
		c.Backend.ProbeTimeout = 5 * time.Second
	}
	if c.Tracker.TimeoutMinutes == 0 {
		c.Tracker.TimeoutMinutes = 10
	}
	if c.Tracker.CheckInterval == 0 {
		c.Tracker.CheckInterval = 20 * time.Second
	}
	if c.Tracker.PollInterval == 0 {
		c.Tracker.PollInterval = 30 * time.Second
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.QuickDelay == 0 {
		c.Retry.QuickDelay = 2 * time.Second
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = 10 * time.Second
	}
	if c.Retry.RateLimitDelay == 0 {
		c.Retry.RateLimitDelay = c.Retry.MaxDelay
	}
	if len(c.Retry.AuthKeywords) == 0 {
		c.Retry.AuthKeywords = []string{"unauthorized", "forbidden", "invalid token"}
	}
	if len(c.Retry.RateLimitKeywords) == 0 {
		c.Retry.RateLimitKeywords = []string{"rate limit", "too many requests"}
	}
	if c.Admin.TimeoutMinutes == 0 {
		c.Admin.TimeoutMinutes = 30
	}
	if c.Admin.WarningMinutes == 0 {
		c.Admin.WarningMinutes = 5
	}
	if c.Admin.CheckInterval == 0 {
		c.Admin.CheckInterval = time.Minute
	}
}
