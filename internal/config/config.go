package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	BrokerLocal = "local"
	BrokerNATS  = "nats"
	BrokerRedis = "redis"
)

type Config struct {
	Env        string
	LogLevel   string
	ServerPort string
	NodeName   string

	StoreDriver string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string

	Broker       string
	NATSURL      string
	RedisURL     string
	BrokerPrefix string

	JWTSecret      string
	AllowedOrigins []string

	TypingTimeout time.Duration
	WSRateLimit   float64
	WSRateBurst   int
}

// Load reads configuration from the environment. A .env file in the
// working directory, when present, fills in unset variables.
func Load() *Config {
	_ = godotenv.Load()

	hostname, _ := os.Hostname()

	return &Config{
		Env:        getEnv("APP_ENV", "dev"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		ServerPort: getEnv("SERVER_PORT", "8080"),
		NodeName:   getEnv("NODE_NAME", hostname),

		StoreDriver: getEnv("STORE_DRIVER", StoreDriverPostgres),
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBPort:      getEnv("DB_PORT", "5432"),
		DBUser:      getEnv("DB_USER", "pulse"),
		DBPassword:  getEnv("DB_PASSWORD", "pulse_dev_password"),
		DBName:      getEnv("DB_NAME", "pulse"),

		Broker:       getEnv("BROKER", BrokerLocal),
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		RedisURL:     getEnv("REDIS_URL", "localhost:6379"),
		BrokerPrefix: getEnv("BROKER_PREFIX", "pulse"),

		JWTSecret:      getEnv("JWT_SECRET", "dev-secret-change-me"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "")),

		TypingTimeout: getDuration("TYPING_TIMEOUT", 5*time.Second),
		WSRateLimit:   getFloat("WS_RATE_LIMIT", 20),
		WSRateBurst:   getInt("WS_RATE_BURST", 40),
	}
}

func (c *Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.StoreDriver))
	}
	switch c.Broker {
	case BrokerLocal, BrokerNATS, BrokerRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown broker %q", c.Broker))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt secret cannot be empty"))
	}
	if c.TypingTimeout <= 0 {
		errs = append(errs, errors.New("typing timeout must be positive"))
	}
	if c.WSRateLimit <= 0 || c.WSRateBurst <= 0 {
		errs = append(errs, errors.New("websocket rate limit and burst must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	val, exists := os.LookupEnv(key)

	if exists {
		return val
	}

	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return d
}

func getInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	f, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return fallback
	}
	return f
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
