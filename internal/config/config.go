package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Environment Environment
	Log         Log
	HTTP        HTTPServer
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	Telegram   Telegram
	Store      Store      `envPrefix:"STORE_"`
	Reconciler Reconciler `envPrefix:"RECONCILER_"`
	Session    Session
}

type Telegram struct {
	BotToken       string        `env:"BOT_TOKEN"`
	AdminID        int64         `env:"ADMIN_ID"`
	Passcode       string        `env:"BOT_PASSCODE"`
	SupportText    string        `env:"SUPPORT_TEXT" envDefault:"Contact the admin for help."`
	RequestTimeout time.Duration `env:"TELEGRAM_REQUEST_TIMEOUT" envDefault:"20s"`
	PollTimeout    time.Duration `env:"TELEGRAM_POLL_TIMEOUT" envDefault:"10s"`
	UpdateTimeout  time.Duration `env:"TELEGRAM_UPDATE_TIMEOUT" envDefault:"60s"`
	InviteLinkTTL  time.Duration `env:"INVITE_LINK_TTL" envDefault:"24h"`
}

type Store struct {
	OpTimeout     time.Duration `env:"OP_TIMEOUT" envDefault:"5s"`
	RetryAttempts int           `env:"RETRY_ATTEMPTS" envDefault:"3"`
}

type Reconciler struct {
	Interval     time.Duration `env:"INTERVAL" envDefault:"10m"`
	PassTimeout  time.Duration `env:"PASS_TIMEOUT" envDefault:"5m"`
	ReminderDays []int         `env:"REMINDER_DAYS" envDefault:"1,2" envSeparator:","`
}

type Session struct {
	TTL time.Duration `env:"SESSION_TTL" envDefault:"24h"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type HTTPServer struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"PORT" envDefault:"8080"`
}

// ConfigurationError lists the required settings that are missing. The process
// keeps serving liveness checks but must not start the bot.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("missing required configuration: %s", strings.Join(e.Missing, ", "))
}

func (c *Config) Validate() error {
	var missing []string
	if c.Telegram.BotToken == "" {
		missing = append(missing, "BOT_TOKEN")
	}
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.Telegram.AdminID == 0 {
		missing = append(missing, "ADMIN_ID")
	}
	if len(missing) > 0 {
		return &ConfigurationError{Missing: missing}
	}

	if c.Telegram.PollTimeout >= c.Telegram.RequestTimeout {
		return fmt.Errorf("TELEGRAM_POLL_TIMEOUT (%s) must be lower than TELEGRAM_REQUEST_TIMEOUT (%s)",
			c.Telegram.PollTimeout, c.Telegram.RequestTimeout)
	}
	if c.Reconciler.Interval <= 0 {
		return fmt.Errorf("RECONCILER_INTERVAL must be positive")
	}

	return nil
}
