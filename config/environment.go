package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config is the single source of runtime settings. It is parsed once in
// main and passed by injection; business logic never reads the environment.
type Config struct {
	Environment string `env:"APP_ENV" envDefault:"development"`
	Port        string `env:"PORT" envDefault:"8080"`

	DatabaseURL string `env:"DB_URL"`

	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	Auth0Domain   string `env:"AUTH0_DOMAIN"`
	Auth0Audience string `env:"AUTH0_AUDIENCE"`

	JWTSecretKey string `env:"JWT_SECRET_KEY"`

	OpenAIAPIKey          string  `env:"OPENAI_API_KEY"`
	OpenAIBaseURL         string  `env:"OPENAI_BASE_URL"`
	OpenAIModel           string  `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	OpenAITemperature     float64 `env:"OPENAI_TEMPERATURE" envDefault:"0.2"`
	OpenAIMaxOutputTokens int     `env:"OPENAI_MAX_OUTPUT_TOKENS" envDefault:"4096"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// IsDevelopment reports whether the server runs in development mode.
func (c Config) IsDevelopment() bool {
	return c.Environment != "production" && c.Environment != "prod"
}
