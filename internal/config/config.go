package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port      string `env:"PORT,      default=8080"`
	Env       string `env:"ENV,       default=development"`
	LogLevel  string `env:"LOG_LEVEL, default=info"`
	LogPretty bool   `env:"LOG_PRETTY, default=false"`

	LMS   LMSConfig
	Redis RedisConfig
}

// LMSConfig holds the remote web-service endpoint settings. URL and Token are
// deliberately not required here: a missing value surfaces as a clear error
// from the connectivity probe, not as a startup crash.
type LMSConfig struct {
	// URL is the full web-service endpoint, e.g.
	// https://lms.example.edu/webservice/rest/server.php
	URL    string `env:"LMS_URL"`
	Token  string `env:"LMS_TOKEN"`
	RoleID int    `env:"LMS_ROLE_ID, default=5"` // default role: student
}

// RedisConfig is optional. When Addr is empty the service falls back to a
// process-local username claim registry.
type RedisConfig struct {
	Addr string `env:"REDIS_ADDR"`
	DB   int    `env:"REDIS_DB, default=0"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load() *Config {
	var cfg Config
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		panic(fmt.Sprintf("config: failed to load configuration: %v", err))
	}
	return &cfg
}
