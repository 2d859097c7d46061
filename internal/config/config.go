package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        int    `envconfig:"PORT" default:"8080"`
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	OpenAIKey       string        `envconfig:"OPENAI_API_KEY" required:"true"`
	OpenAIModel     string        `envconfig:"OPENAI_MODEL"`
	BotSystemPrompt string        `envconfig:"BOT_SYSTEM_PROMPT"`
	BotTimeout      time.Duration `envconfig:"BOT_TIMEOUT" default:"30s"`
	BotFallback     string        `envconfig:"BOT_FALLBACK_MESSAGE" default:"I'm having trouble answering right now. Please call us at (305) 555-0100 or email support@aramistech.com and a technician will get back to you."`

	JWTSecret     string        `envconfig:"JWT_SECRET" required:"true"`
	AdminPassword string        `envconfig:"ADMIN_PASSWORD" required:"true"`
	TokenDuration time.Duration `envconfig:"TOKEN_DURATION" default:"24h"`

	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"*"`
	LogLevel       string   `envconfig:"LOG_LEVEL" default:"info"`
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
