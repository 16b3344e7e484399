package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	PushWebsocket = "websocket"
	PushKafka     = "kafka"
	PushNone      = "none"
)

// Config aggregates the daemon settings loaded from environment variables.
type Config struct {
	Env      string
	HTTPAddr string
	UserID   string

	BackendURL     string
	BackendToken   string
	BackendTimeout time.Duration

	PushMode       string
	PushURL        string
	PushReconnect  time.Duration
	KafkaBrokers   []string
	KafkaTopic     string
	KafkaGroupID   string
	MongoURI       string
	MongoDB        string
	InboxRetention time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	LookupTTL        time.Duration
	RateLimitBackoff time.Duration
	DebounceDelay    time.Duration
	CORSOrigins      []string
}

// LoadEnvFile preloads variables from a dotenv file without overriding the
// real environment. A missing default .env is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load parses configuration from the current environment.
func Load() (Config, error) {
	cfg := Config{
		Env:           getEnv("APP_ENV", "dev"),
		HTTPAddr:      getEnv("HTTP_ADDR", ":8090"),
		UserID:        strings.TrimSpace(os.Getenv("RENTSYNC_USER_ID")),
		BackendURL:    strings.TrimRight(getEnv("BACKEND_URL", "http://localhost:8080"), "/"),
		BackendToken:  os.Getenv("BACKEND_TOKEN"),
		PushMode:      strings.ToLower(getEnv("PUSH_MODE", PushWebsocket)),
		PushURL:       getEnv("PUSH_URL", ""),
		KafkaTopic:    getEnv("KAFKA_TOPIC", "rentme.requests"),
		KafkaGroupID:  getEnv("KAFKA_GROUP_ID", "rentsync"),
		MongoURI:      os.Getenv("MONGO_URI"),
		MongoDB:       getEnv("MONGO_DB", "rentsync"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		CORSOrigins:   splitList(getEnv("CORS_ORIGINS", "*")),
	}
	cfg.KafkaBrokers = splitList(os.Getenv("KAFKA_BROKERS"))

	var err error
	if cfg.BackendTimeout, err = parseDurationEnv("BACKEND_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.PushReconnect, err = parseDurationEnv("PUSH_RECONNECT", 3*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.InboxRetention, err = parseDurationEnv("INBOX_RETENTION", 72*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.LookupTTL, err = parseDurationEnv("LOOKUP_TTL", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitBackoff, err = parseDurationEnv("RATE_LIMIT_BACKOFF", 60*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.DebounceDelay, err = parseDurationEnv("DEBOUNCE_DELAY", 500*time.Millisecond); err != nil {
		return Config{}, err
	}
	if cfg.RedisDB, err = parseIntEnv("REDIS_DB", 0); err != nil {
		return Config{}, err
	}

	if cfg.UserID == "" {
		return Config{}, fmt.Errorf("RENTSYNC_USER_ID is required")
	}
	if cfg.BackendURL == "" {
		return Config{}, fmt.Errorf("BACKEND_URL is required")
	}
	switch cfg.PushMode {
	case PushWebsocket:
		if cfg.PushURL == "" {
			cfg.PushURL = websocketURL(cfg.BackendURL) + "/ws"
		}
	case PushKafka:
		if len(cfg.KafkaBrokers) == 0 {
			return Config{}, fmt.Errorf("KAFKA_BROKERS is required when PUSH_MODE=kafka")
		}
	case PushNone:
	default:
		return Config{}, fmt.Errorf("invalid PUSH_MODE %q", cfg.PushMode)
	}
	return cfg, nil
}

func websocketURL(httpURL string) string {
	switch {
	case strings.HasPrefix(httpURL, "https://"):
		return "wss://" + strings.TrimPrefix(httpURL, "https://")
	case strings.HasPrefix(httpURL, "http://"):
		return "ws://" + strings.TrimPrefix(httpURL, "http://")
	default:
		return httpURL
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}

func parseIntEnv(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s integer: %w", key, err)
	}
	return n, nil
}
