package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the settings shared by the gateway, api and notifier apps.
type Config struct {
	Env string

	GatewayAddr string
	APIAddr     string

	// Mailbox backend: "scylla", "postgres" or "memory".
	MailboxBackend string
	ScyllaHosts    []string
	Keyspace       string
	DatabaseURL    string
	NodeID         int64

	RedisAddr string

	// Notifier: "kafka" publishes events for the relay, "log" only logs them.
	Notifier          string
	KafkaBrokers      []string
	NotificationTopic string
	NotifierGroupID   string

	JWTSecret    string
	ServiceToken string

	// Largest inbound websocket frame. Bigger frames close the connection
	// with 1009, a transport-level refusal rather than a protocol error.
	MaxFrameBytes int64

	NotificationServiceURL string
	NotifyTimeout          time.Duration

	// Delivery policy, tunable per deployment.
	UndeliveredWindow   time.Duration
	ReplayLimit         int
	HistoryDefaultLimit int
	HistoryMaxLimit     int
}

// Load reads configuration from the environment, loading a .env file first
// if one is present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:                    getEnv("ENV", "development"),
		GatewayAddr:            getEnv("GATEWAY_ADDR", ":8080"),
		APIAddr:                getEnv("API_ADDR", ":8081"),
		MailboxBackend:         getEnv("MAILBOX_BACKEND", "scylla"),
		ScyllaHosts:            getList("SCYLLA_HOSTS", "localhost:9042"),
		Keyspace:               getEnv("SCYLLA_KEYSPACE", "chat"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		RedisAddr:              getEnv("REDIS_ADDR", "localhost:6379"),
		Notifier:               getEnv("NOTIFIER", "kafka"),
		KafkaBrokers:           getList("KAFKA_BROKERS", "localhost:19092"),
		NotificationTopic:      getEnv("NOTIFICATION_TOPIC", "chat-notifications"),
		NotifierGroupID:        getEnv("NOTIFIER_GROUP_ID", "chat-notifier-group"),
		JWTSecret:              os.Getenv("JWT_SECRET"),
		ServiceToken:           os.Getenv("SERVICE_TOKEN"),
		NotificationServiceURL: getEnv("NOTIFICATION_SERVICE_URL", "http://localhost:8090"),
	}

	var err error
	if cfg.NodeID, err = getInt64("NODE_ID", 1); err != nil {
		return nil, err
	}
	if cfg.MaxFrameBytes, err = getInt64("MAX_FRAME_BYTES", 64*1024); err != nil {
		return nil, err
	}
	if cfg.NotifyTimeout, err = getDuration("NOTIFY_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.UndeliveredWindow, err = getDuration("UNDELIVERED_WINDOW", 7*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.ReplayLimit, err = getInt("REPLAY_LIMIT", 100); err != nil {
		return nil, err
	}
	if cfg.HistoryDefaultLimit, err = getInt("HISTORY_DEFAULT_LIMIT", 100); err != nil {
		return nil, err
	}
	if cfg.HistoryMaxLimit, err = getInt("HISTORY_MAX_LIMIT", 200); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) validate() error {
	switch c.MailboxBackend {
	case "scylla", "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres mailbox")
		}
	default:
		return fmt.Errorf("unknown MAILBOX_BACKEND %q", c.MailboxBackend)
	}

	switch c.Notifier {
	case "kafka":
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required for the kafka notifier")
		}
	case "log":
	default:
		return fmt.Errorf("unknown NOTIFIER %q", c.Notifier)
	}

	if c.HistoryMaxLimit < 1 {
		return fmt.Errorf("HISTORY_MAX_LIMIT must be positive")
	}
	if c.HistoryDefaultLimit < 1 || c.HistoryDefaultLimit > c.HistoryMaxLimit {
		return fmt.Errorf("HISTORY_DEFAULT_LIMIT must be within [1, %d]", c.HistoryMaxLimit)
	}
	if c.ReplayLimit < 1 {
		return fmt.Errorf("REPLAY_LIMIT must be positive")
	}
	if c.UndeliveredWindow <= 0 {
		return fmt.Errorf("UNDELIVERED_WINDOW must be positive")
	}
	if c.NotifyTimeout <= 0 {
		return fmt.Errorf("NOTIFY_TIMEOUT must be positive")
	}
	if c.MaxFrameBytes < 1024 {
		return fmt.Errorf("MAX_FRAME_BYTES must be at least 1024")
	}

	if c.JWTSecret == "" {
		if !c.IsDevelopment() {
			return fmt.Errorf("JWT_SECRET is required outside development")
		}
		c.JWTSecret = "dev_secret_key"
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getList(key, defaultValue string) []string {
	var out []string
	for _, entry := range strings.Split(getEnv(key, defaultValue), ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			out = append(out, entry)
		}
	}
	return out
}

func getInt(key string, defaultValue int) (int, error) {
	v, err := getInt64(key, int64(defaultValue))
	return int(v), err
}

func getInt64(key string, defaultValue int64) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
