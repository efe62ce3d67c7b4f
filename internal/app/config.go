package app

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds process configuration, populated from the environment.
type Config struct {
	Env  string `envconfig:"APP_ENV" default:"development"`
	Addr string `envconfig:"APP_ADDR" default:":8080"`

	ReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `envconfig:"HTTP_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
	RequestTimeout  time.Duration `envconfig:"HTTP_REQUEST_TIMEOUT" default:"30s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	PostgresDSN string `envconfig:"PG_DSN" required:"true"`
	RedisAddr   string `envconfig:"REDIS_ADDR" default:"localhost:6379"`

	SessionCookie string        `envconfig:"SESSION_COOKIE" default:"opsdesk_session"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"12h"`

	// SecretboxKey is the hex-encoded AES key sealing session payloads.
	// Per deployment, never shared between environments.
	SecretboxKey string `envconfig:"SECRETBOX_KEY" required:"true"`
	CSRFSecret   string `envconfig:"CSRF_SECRET" required:"true"`

	// CORSOrigin is the origin of the browser front end. The SPA is
	// served from a different origin than the API, so cookies cross
	// origins and CORS must allow credentials for exactly this origin.
	CORSOrigin string `envconfig:"CORS_ORIGIN" default:"http://localhost:5173"`

	RateLimit int `envconfig:"RATE_LIMIT" default:"120"`
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("app: load config: %w", err)
	}
	return cfg, nil
}

// IsProduction reports whether the process runs in production mode.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}
