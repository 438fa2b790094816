package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config captures process-level configuration. Values come from the
// environment with development defaults so main stays lean.
type Config struct {
	Addr            string
	FacilitiesFile  string
	SampleBuffer    int
	EventQueueDepth int
	StopGrace       time.Duration
	ShutdownTimeout time.Duration

	Redis RedisConfig
}

// RedisConfig configures the optional Redis mirror. An empty Addr disables
// it entirely.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// FromEnv builds a Config from environment variables, loading a local .env
// file first when present.
func FromEnv() Config {
	_ = godotenv.Load()

	return Config{
		Addr:            getEnv("DRIVEWATCH_ADDR", ":8080"),
		FacilitiesFile:  getEnv("FACILITIES_FILE", "facilities.json"),
		SampleBuffer:    getEnvInt("SAMPLE_BUFFER", 64),
		EventQueueDepth: getEnvInt("EVENT_QUEUE_DEPTH", 64),
		StopGrace:       getEnvDuration("MONITOR_STOP_GRACE", 3*time.Second),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
