package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the fcpbot service
type Config struct {
	// Server settings
	Port int

	// GitHub App settings. GitHubToken is used instead when no App is configured.
	GitHubAppID      string
	GitHubPrivateKey string
	GitHubToken      string
	WebhookSecrets   []string

	// Bot identity
	BotMention   string
	BotLogin     string
	PostComments bool

	// Team roster and per-repository behaviors
	SetupFile string

	// Storage settings. An empty DatabaseURL selects the in-memory store.
	DatabaseURL string
	RedisURL    string

	// Timing
	SweepInterval time.Duration
	FCPWait       time.Duration
	DedupeTTL     time.Duration

	// Dispatcher settings
	DispatcherWorkers   int
	DispatcherQueueSize int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	mention := getEnv("BOT_MENTION", "@rfcbot")

	cfg := &Config{
		Port:                getEnvInt("PORT", 8000),
		GitHubAppID:         os.Getenv("GITHUB_APP_ID"),
		GitHubPrivateKey:    normalizePrivateKey(os.Getenv("GITHUB_PRIVATE_KEY")),
		GitHubToken:         strings.TrimSpace(os.Getenv("GITHUB_TOKEN")),
		WebhookSecrets:      webhookSecrets(),
		BotMention:          mention,
		BotLogin:            getEnv("BOT_LOGIN", strings.TrimPrefix(mention, "@")),
		PostComments:        getEnvBool("POST_COMMENTS", true),
		SetupFile:           getEnv("SETUP_FILE", "rfcbot.toml"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RedisURL:            os.Getenv("REDIS_URL"),
		SweepInterval:       time.Duration(getEnvInt("SWEEP_INTERVAL_SECONDS", 300)) * time.Second,
		FCPWait:             time.Duration(getEnvInt("FCP_WAIT_DAYS", 10)) * 24 * time.Hour,
		DedupeTTL:           time.Duration(getEnvInt("DEDUPE_TTL_HOURS", 12)) * time.Hour,
		DispatcherWorkers:   getEnvInt("DISPATCHER_WORKERS", 1),
		DispatcherQueueSize: getEnvInt("DISPATCHER_QUEUE_SIZE", 64),
	}

	// Validate required fields
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// UseApp reports whether GitHub App credentials are configured.
func (c *Config) UseApp() bool {
	return c.GitHubAppID != "" && c.GitHubPrivateKey != ""
}

// webhookSecrets reads GITHUB_WEBHOOK_SECRETS, falling back to the single
// GITHUB_WEBHOOK_SECRET.
func webhookSecrets() []string {
	raw := os.Getenv("GITHUB_WEBHOOK_SECRETS")
	if raw == "" {
		raw = os.Getenv("GITHUB_WEBHOOK_SECRET")
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func normalizePrivateKey(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	if strings.HasPrefix(trimmed, "\"") && strings.HasSuffix(trimmed, "\"") {
		trimmed = strings.TrimPrefix(trimmed, "\"")
		trimmed = strings.TrimSuffix(trimmed, "\"")
	}
	if strings.HasPrefix(trimmed, "'") && strings.HasSuffix(trimmed, "'") {
		trimmed = strings.TrimPrefix(trimmed, "'")
		trimmed = strings.TrimSuffix(trimmed, "'")
	}

	trimmed = strings.ReplaceAll(trimmed, "\r\n", "\n")
	trimmed = strings.ReplaceAll(trimmed, "\r", "\n")
	if strings.Contains(trimmed, "\\n") {
		trimmed = strings.ReplaceAll(trimmed, "\\r", "")
		trimmed = strings.ReplaceAll(trimmed, "\\n", "\n")
	}

	return trimmed
}

// validate checks that all required configuration is present
func (c *Config) validate() error {
	if err := c.validateGitHubCredentials(); err != nil {
		return err
	}

	if !strings.HasPrefix(c.BotMention, "@") || len(c.BotMention) < 2 {
		return fmt.Errorf("BOT_MENTION must look like @name, got %q", c.BotMention)
	}
	if c.SetupFile == "" {
		return fmt.Errorf("SETUP_FILE is required")
	}

	c.applyDefaults()
	return c.validateTiming()
}

func (c *Config) validateGitHubCredentials() error {
	switch {
	case c.GitHubAppID != "" && c.GitHubPrivateKey == "":
		return fmt.Errorf("GITHUB_PRIVATE_KEY is required when GITHUB_APP_ID is set")
	case c.GitHubAppID == "" && c.GitHubPrivateKey != "":
		return fmt.Errorf("GITHUB_APP_ID is required when GITHUB_PRIVATE_KEY is set")
	case !c.UseApp() && c.GitHubToken == "":
		return fmt.Errorf("GITHUB_APP_ID and GITHUB_PRIVATE_KEY, or GITHUB_TOKEN, are required")
	}
	if len(c.WebhookSecrets) == 0 {
		return fmt.Errorf("GITHUB_WEBHOOK_SECRETS is required")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.DispatcherWorkers <= 0 {
		c.DispatcherWorkers = 1
	}
	if c.DispatcherQueueSize <= 0 {
		c.DispatcherQueueSize = 64
	}
	if c.DedupeTTL <= 0 {
		c.DedupeTTL = 12 * time.Hour
	}
}

func (c *Config) validateTiming() error {
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL_SECONDS must be greater than 0")
	}
	if c.FCPWait <= 0 {
		return fmt.Errorf("FCP_WAIT_DAYS must be greater than 0")
	}
	return nil
}

// getEnv gets environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets environment variable as int with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
