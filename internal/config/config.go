package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	Environment string

	// DatabaseURL selects the hosted backend when set and reachable; when
	// empty the data layer runs on the local on-disk store (demo mode).
	DatabaseURL    string
	LocalStorePath string

	RedisURL string

	Identity IdentityConfig
	Guard    GuardConfig
	Events   EventConfig
}

// IdentityConfig holds the connection settings for the hosted identity
// provider (Casdoor).
type IdentityConfig struct {
	Endpoint     string
	ClientID     string
	ClientSecret string
	Certificate  string
	Organization string
	Application  string
}

// Configured reports whether the identity provider can be reached at all.
func (c IdentityConfig) Configured() bool {
	return c.Endpoint != "" && c.ClientID != ""
}

// GuardConfig controls the route guard's timeout behavior. FailOpen keeps the
// original availability-over-strictness tradeoff: on bootstrap timeout the
// request is let through rather than blocked. Stricter deployments set
// GUARD_FAIL_OPEN=false to turn the timeout into a 503.
type GuardConfig struct {
	FailOpen         bool
	BootstrapTimeout time.Duration
	AuthStateTimeout time.Duration
}

func LoadConfig() (*Config, error) {
	// .env is optional outside development
	_ = godotenv.Load()

	return &Config{
		Port:           getEnv("PORT", "8080"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		LocalStorePath: getEnv("LOCAL_STORE_PATH", "dashboard-local.json"),
		RedisURL:       getEnv("REDIS_URL", "redis://localhost:6379"),
		Identity: IdentityConfig{
			Endpoint:     getEnv("CASDOOR_ENDPOINT", ""),
			ClientID:     getEnv("CASDOOR_CLIENT_ID", ""),
			ClientSecret: getEnv("CASDOOR_CLIENT_SECRET", ""),
			Certificate:  getEnv("CASDOOR_CERTIFICATE", ""),
			Organization: getEnv("CASDOOR_ORGANIZATION", "tinysteps"),
			Application:  getEnv("CASDOOR_APPLICATION", "dashboard"),
		},
		Guard: GuardConfig{
			FailOpen:         getBool("GUARD_FAIL_OPEN", true),
			BootstrapTimeout: getDuration("GUARD_BOOTSTRAP_TIMEOUT", 3*time.Second),
			AuthStateTimeout: getDuration("GUARD_AUTH_STATE_TIMEOUT", 3*time.Second),
		},
		Events: LoadEventConfig(),
	}, nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
