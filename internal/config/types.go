package config

import "time"

// Config is the parsed settings file.
//
// Example (YAML):
//
//	api_id: 12345
//	api_hash: "0123456789abcdef"
//	app_short_name: "raidbot"
//	telegram:
//	  token: "123456:ABC"
//	raid:
//	  general:
//	    message_type: simple
//	    wait_interval: 30
//	    increase_wait_interval: 5
//	    image: ./banner.png
//	messages:
//	  simple: "Hello from raidbot"
type Config struct {
	APIID        int64  `json:"api_id"`
	APIHash      string `json:"api_hash"`
	AppShortName string `json:"app_short_name"`

	Telegram  TelegramConfig  `json:"telegram"`
	RateLimit RateLimitConfig `json:"rate_limit"`

	// StartupDelay is a Go duration string; default "10s".
	StartupDelay string `json:"startup_delay,omitempty"`

	// SignOff appends a random thank-you line to every message. Default true.
	SignOff *bool `json:"sign_off,omitempty"`

	Logging LoggingConfig  `json:"logging"`
	Journal *JournalConfig `json:"journal,omitempty"`

	Raid     map[string]RaidConfig `json:"raid"`
	Messages map[string]string     `json:"messages"`

	// RaidOrder lists Raid keys in the order they are declared in the file.
	RaidOrder []string `json:"-"`
}

// RaidConfig describes how one channel is raided.
// Intervals are whole seconds; a zero WaitInterval means "send once".
type RaidConfig struct {
	MessageType          string `json:"message_type"`
	WaitInterval         int    `json:"wait_interval,omitempty"`
	IncreaseWaitInterval int    `json:"increase_wait_interval,omitempty"`
	Image                string `json:"image,omitempty"`
}

type TelegramConfig struct {
	// Token may be left empty and supplied via RAIDBOT_TOKEN (or a .env file).
	Token string `json:"token,omitempty"`
	// APIURL points at a self-hosted Bot API server; empty uses api.telegram.org.
	APIURL string `json:"api_url,omitempty"`
	// LogoutOnExit calls logOut on shutdown, releasing the session on the server.
	LogoutOnExit bool `json:"logout_on_exit,omitempty"`
}

// RateLimitConfig is the provider's shared call budget: Budget calls per Window.
// Defaults: 20 calls per "60s".
type RateLimitConfig struct {
	Budget int    `json:"budget,omitempty"`
	Window string `json:"window,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  *bool           `json:"console,omitempty"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// JournalConfig controls the optional send journal.
//
//	"journal": { "driver": "file", "path": "./raidbot.journal.jsonl" }
type JournalConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

const (
	DefaultBudget       = 20
	DefaultWindow       = 60 * time.Second
	DefaultStartupDelay = 10 * time.Second
)

// SignOffEnabled reports whether messages get a thank-you line appended.
func (c *Config) SignOffEnabled() bool {
	return c.SignOff == nil || *c.SignOff
}

// ConsoleEnabled defaults to true when logging.console is omitted.
func (c *Config) ConsoleEnabled() bool {
	return c.Logging.Console == nil || *c.Logging.Console
}

// RateWindow returns the configured budget window or DefaultWindow.
func (c *Config) RateWindow() (time.Duration, error) {
	return ParseDurationOrDefault("rate_limit.window", c.RateLimit.Window, DefaultWindow)
}

// RateBudget returns the configured call budget or DefaultBudget.
func (c *Config) RateBudget() int {
	if c.RateLimit.Budget <= 0 {
		return DefaultBudget
	}
	return c.RateLimit.Budget
}

// Startup returns the delay between client start and the connect phase.
func (c *Config) Startup() (time.Duration, error) {
	d, err := ParseDurationField("startup_delay", c.StartupDelay)
	if err != nil {
		return 0, err
	}
	if c.StartupDelay == "" {
		return DefaultStartupDelay, nil
	}
	return d, nil
}

// Message returns the template configured for the channel's message_type.
func (c *Config) Message(channel string) (string, bool) {
	rc, ok := c.Raid[channel]
	if !ok {
		return "", false
	}
	msg, ok := c.Messages[rc.MessageType]
	return msg, ok
}
