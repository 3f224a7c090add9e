package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server     ServerConfig
	Device     DeviceConfig
	Submission SubmissionConfig
	Models     ModelsConfig
	Worker     WorkerConfig
	DB         DatabaseConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	RequestsPerSec int
	Burst          int
}

// DeviceConfig describes the handset running the submission pipeline.
type DeviceConfig struct {
	StatePath       string
	ServerURL       string
	UserID          string
	TemporaryUser   bool
	Latitude        *float64
	Longitude       *float64
	LocationCommand string
	ProbeInterval   time.Duration
	RequestTimeout  time.Duration
}

type SubmissionConfig struct {
	MaxPerWindow    int
	Window          time.Duration
	Cooldown        time.Duration
	LocationTimeout time.Duration
	PendingCapacity int
}

// ModelsConfig holds artifact locations. Each may be a local path or an http(s) URL.
type ModelsConfig struct {
	UrgencyVocabulary  string
	UrgencyModel       string
	CategoryVocabulary string
	CategoryModel      string
	LoadTimeout        time.Duration
}

// WorkerConfig sizes the server's re-triage pool. SweepInterval of zero
// disables the periodic scan for degraded alerts.
type WorkerConfig struct {
	Count         int
	BufferSize    int
	SweepInterval time.Duration
}

type DatabaseConfig struct {
	Path string
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "localhost"),
			Port:           getEnvInt("SERVER_PORT", 8080),
			RequestsPerSec: getEnvInt("SERVER_RPS", 5),
			Burst:          getEnvInt("SERVER_RATE_BURST", 10),
		},
		Device: DeviceConfig{
			StatePath:       getEnv("DEVICE_STATE_PATH", "./data/lifeline-device.db"),
			ServerURL:       getEnv("LIFELINE_SERVER_URL", "http://localhost:8080"),
			UserID:          getEnv("LIFELINE_USER_ID", ""),
			TemporaryUser:   getEnvBool("LIFELINE_USER_TEMPORARY", true),
			Latitude:        getEnvFloat("LIFELINE_LATITUDE"),
			Longitude:       getEnvFloat("LIFELINE_LONGITUDE"),
			LocationCommand: getEnv("LIFELINE_LOCATION_COMMAND", ""),
			ProbeInterval:   getEnvDuration("LIFELINE_PROBE_INTERVAL", 15*time.Second),
			RequestTimeout:  getEnvDuration("LIFELINE_REQUEST_TIMEOUT", 10*time.Second),
		},
		Submission: SubmissionConfig{
			MaxPerWindow:    getEnvInt("SUBMIT_MAX_PER_WINDOW", 5),
			Window:          getEnvDuration("SUBMIT_WINDOW", 60*time.Minute),
			Cooldown:        getEnvDuration("SUBMIT_COOLDOWN", 10*time.Second),
			LocationTimeout: getEnvDuration("LOCATION_TIMEOUT", 10*time.Second),
			PendingCapacity: getEnvInt("PENDING_CAPACITY", 3),
		},
		Models: ModelsConfig{
			UrgencyVocabulary:  getEnv("URGENCY_VOCAB", "./models/urgency_vectorizer.json"),
			UrgencyModel:       getEnv("URGENCY_MODEL", "./models/urgency_nb.json"),
			CategoryVocabulary: getEnv("CATEGORY_VOCAB", "./models/vectorizer.json"),
			CategoryModel:      getEnv("CATEGORY_MODEL", "./models/category_net.json"),
			LoadTimeout:        getEnvDuration("MODEL_LOAD_TIMEOUT", 30*time.Second),
		},
		Worker: WorkerConfig{
			Count:      getEnvInt("WORKER_COUNT", 2),
			BufferSize: getEnvInt("WORKER_BUFFER_SIZE", 20),
		},
		DB: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/lifeline.db"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.RequestsPerSec < 1 {
		return fmt.Errorf("server rps must be positive")
	}
	if c.Server.Burst < 1 {
		return fmt.Errorf("server rate burst must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Submission.MaxPerWindow < 1 {
		return fmt.Errorf("max sends per window must be at least 1")
	}
	if c.Submission.Window <= 0 {
		return fmt.Errorf("send window must be positive")
	}
	if c.Submission.Cooldown < 0 {
		return fmt.Errorf("cooldown cannot be negative")
	}
	if c.Submission.LocationTimeout <= 0 {
		return fmt.Errorf("location timeout must be positive")
	}
	if c.Submission.PendingCapacity < 1 {
		return fmt.Errorf("pending capacity must be at least 1")
	}

	if (c.Device.Latitude == nil) != (c.Device.Longitude == nil) {
		return fmt.Errorf("LIFELINE_LATITUDE and LIFELINE_LONGITUDE must be set together")
	}
	if c.Device.ProbeInterval < time.Second {
		return fmt.Errorf("probe interval must be at least 1 second")
	}

	if c.Worker.Count < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}
	if c.Worker.SweepInterval < 0 {
		return fmt.Errorf("retriage interval cannot be negative")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvFloat returns nil when the variable is unset or malformed.
func getEnvFloat(key string) *float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return &f
		}
	}
	return nil
}
