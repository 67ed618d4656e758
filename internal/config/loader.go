package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Load reads configuration from environment variables (optionally a local
// .env file) and fails fast with a single aggregated error naming every
// missing required variable, rather than failing one at a time.
func Load() (Config, error) {
	// Overload lets a repo-local .env override inherited shell vars, which
	// is what development expects; production deployments simply don't ship
	// a .env file so this is a no-op there.
	_ = godotenv.Overload()

	cfg := Config{
		AppEnv:            firstNonEmpty(trimEnv("APP_ENV"), "dev"),
		DatabaseURL:       trimEnv("DATABASE_URL"),
		SupabaseURL:       trimEnv("SUPABASE_URL"),
		SupabaseDBPassword: trimEnv("SUPABASE_DB_PASSWORD"),
		RedisURL:          trimEnv("REDIS_URL"),
		OpenAIAPIKey:      trimEnv("OPENAI_API_KEY"),
		OpenAIModel:       firstNonEmpty(trimEnv("OPENAI_MODEL"), "gpt-5-mini"),
		BotAPIBaseURL:     firstNonEmpty(trimEnv("BOT_API_BASE_URL"), "https://api.telegram.org"),
		BotToken:          trimEnv("BOT_TOKEN"),
		BotMention:        trimEnv("BOT_MENTION"),
		AWSEndpointURLS3:  trimEnv("AWS_ENDPOINT_URL_S3"),
		AWSAccessKeyID:    trimEnv("AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey: trimEnv("AWS_SECRET_ACCESS_KEY"),
		AWSRegion:         firstNonEmpty(trimEnv("AWS_REGION"), "auto"),
		BucketName:        trimEnv("BUCKET_NAME"),
		BucketPrefix:      trimEnv("BUCKET_PREFIX"),
		Port:              firstNonEmpty(trimEnv("PORT"), "8080"),
		HashSalt:          trimEnv("HASH_SALT"),
		OTLPEndpoint:      trimEnv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		LogLevel:          firstNonEmpty(trimEnv("LOG_LEVEL"), "info"),
		WorkerConcurrency: 4,
	}

	if v := trimEnv("WORKER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.WorkerConcurrency = n
		}
	}

	var missing []string
	if cfg.RedisURL == "" {
		missing = append(missing, "REDIS_URL")
	}
	if cfg.OpenAIAPIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if cfg.DatabaseURL == "" && (cfg.SupabaseURL == "" || cfg.SupabaseDBPassword == "") {
		missing = append(missing, "DATABASE_URL (or SUPABASE_URL+SUPABASE_DB_PASSWORD)")
	}
	if cfg.BucketName == "" {
		missing = append(missing, "BUCKET_NAME")
	}
	if cfg.BotToken == "" {
		missing = append(missing, "BOT_TOKEN")
	}
	if cfg.BotMention == "" {
		missing = append(missing, "BOT_MENTION")
	}
	if cfg.AWSAccessKeyID == "" {
		missing = append(missing, "AWS_ACCESS_KEY_ID")
	}
	if cfg.AWSSecretAccessKey == "" {
		missing = append(missing, "AWS_SECRET_ACCESS_KEY")
	}
	if cfg.IsProd() && cfg.HashSalt == "" {
		missing = append(missing, "HASH_SALT")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if cfg.HashSalt == "" {
		salt, err := randomHex(16)
		if err != nil {
			return Config{}, errors.New("failed to generate ephemeral HASH_SALT")
		}
		cfg.HashSalt = salt
		log.Warn().Msg("HASH_SALT not set; using an ephemeral per-process salt (hashes will not be stable across restarts)")
	}

	return cfg, nil
}

func trimEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
