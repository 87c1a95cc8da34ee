package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	Backend    BackendConfig
	Tracker    TrackerConfig
	RateLimit  RateLimitConfig
	Storage    StorageConfig
	DevBackend DevBackendConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	LogFormat string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type BackendConfig struct {
	BaseURL           string
	APIKey            string
	JWTSecret         string
	Timeout           time.Duration
	RequestsPerSecond int
	NudgeTimeout      time.Duration
}

type TrackerConfig struct {
	PollInterval      time.Duration
	MaxPollFailures   int
	RetryDelay        time.Duration
	LogCapacity       int
	RestartThreshold  time.Duration
	DefaultWaitPerJob time.Duration
}

type RateLimitConfig struct {
	GeneratePerHour int
}

type StorageConfig struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
	SignedURLTTL    time.Duration
}

type DevBackendConfig struct {
	Port         string
	StepDuration time.Duration
	FailureRate  float64
}

// Load reads config.yaml (optional), environment variables and defaults.
func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("BACKEND_API_KEY")
	readSecret("BACKEND_JWT_SECRET")
	readSecret("STORAGE_ACCESS_KEY_ID")
	readSecret("STORAGE_SECRET_ACCESS_KEY")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()

	bindEnv(v)
	setDefaults(v)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      v.GetString("server.port"),
			Env:       v.GetString("server.env"),
			LogLevel:  v.GetString("server.log_level"),
			LogFormat: v.GetString("server.log_format"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Backend: BackendConfig{
			BaseURL:           strings.TrimRight(v.GetString("backend.base_url"), "/"),
			APIKey:            v.GetString("backend.api_key"),
			JWTSecret:         v.GetString("backend.jwt_secret"),
			Timeout:           v.GetDuration("backend.timeout"),
			RequestsPerSecond: v.GetInt("backend.requests_per_second"),
			NudgeTimeout:      v.GetDuration("backend.nudge_timeout"),
		},
		Tracker: TrackerConfig{
			PollInterval:      v.GetDuration("tracker.poll_interval"),
			MaxPollFailures:   v.GetInt("tracker.max_poll_failures"),
			RetryDelay:        v.GetDuration("tracker.retry_delay"),
			LogCapacity:       v.GetInt("tracker.log_capacity"),
			RestartThreshold:  v.GetDuration("tracker.restart_threshold"),
			DefaultWaitPerJob: v.GetDuration("tracker.default_wait_per_job"),
		},
		RateLimit: RateLimitConfig{
			GeneratePerHour: v.GetInt("ratelimit.generate_per_hour"),
		},
		Storage: StorageConfig{
			AccountID:       v.GetString("storage.account_id"),
			AccessKeyID:     v.GetString("storage.access_key_id"),
			SecretAccessKey: v.GetString("storage.secret_access_key"),
			BucketName:      v.GetString("storage.bucket_name"),
			PublicURL:       v.GetString("storage.public_url"),
			SignedURLTTL:    v.GetDuration("storage.signed_url_ttl"),
		},
		DevBackend: DevBackendConfig{
			Port:         v.GetString("devbackend.port"),
			StepDuration: v.GetDuration("devbackend.step_duration"),
			FailureRate:  v.GetFloat64("devbackend.failure_rate"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bindEnv binds environment variables with underscores to nested config keys
func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("server.log_format", "LOG_FORMAT")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("backend.base_url", "BACKEND_BASE_URL")
	_ = v.BindEnv("backend.api_key", "BACKEND_API_KEY")
	_ = v.BindEnv("backend.jwt_secret", "BACKEND_JWT_SECRET")
	_ = v.BindEnv("backend.timeout", "BACKEND_TIMEOUT")
	_ = v.BindEnv("backend.requests_per_second", "BACKEND_REQUESTS_PER_SECOND")
	_ = v.BindEnv("backend.nudge_timeout", "BACKEND_NUDGE_TIMEOUT")
	_ = v.BindEnv("tracker.poll_interval", "TRACKER_POLL_INTERVAL")
	_ = v.BindEnv("tracker.max_poll_failures", "TRACKER_MAX_POLL_FAILURES")
	_ = v.BindEnv("tracker.retry_delay", "TRACKER_RETRY_DELAY")
	_ = v.BindEnv("tracker.log_capacity", "TRACKER_LOG_CAPACITY")
	_ = v.BindEnv("tracker.restart_threshold", "TRACKER_RESTART_THRESHOLD")
	_ = v.BindEnv("tracker.default_wait_per_job", "TRACKER_DEFAULT_WAIT_PER_JOB")
	_ = v.BindEnv("ratelimit.generate_per_hour", "RATELIMIT_GENERATE_PER_HOUR")
	_ = v.BindEnv("storage.account_id", "STORAGE_ACCOUNT_ID")
	_ = v.BindEnv("storage.access_key_id", "STORAGE_ACCESS_KEY_ID")
	_ = v.BindEnv("storage.secret_access_key", "STORAGE_SECRET_ACCESS_KEY")
	_ = v.BindEnv("storage.bucket_name", "STORAGE_BUCKET_NAME")
	_ = v.BindEnv("storage.public_url", "STORAGE_PUBLIC_URL")
	_ = v.BindEnv("storage.signed_url_ttl", "STORAGE_SIGNED_URL_TTL")
	_ = v.BindEnv("devbackend.port", "DEVBACKEND_PORT")
	_ = v.BindEnv("devbackend.step_duration", "DEVBACKEND_STEP_DURATION")
	_ = v.BindEnv("devbackend.failure_rate", "DEVBACKEND_FAILURE_RATE")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "text")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Backend defaults
	v.SetDefault("backend.base_url", "http://localhost:8090")
	v.SetDefault("backend.timeout", 30*time.Second)
	v.SetDefault("backend.requests_per_second", 5)
	v.SetDefault("backend.nudge_timeout", 10*time.Second)

	// Tracker defaults
	v.SetDefault("tracker.poll_interval", 2*time.Second)
	v.SetDefault("tracker.max_poll_failures", 3)
	v.SetDefault("tracker.retry_delay", 2*time.Second)
	v.SetDefault("tracker.log_capacity", 50)
	v.SetDefault("tracker.restart_threshold", 5*time.Minute)
	v.SetDefault("tracker.default_wait_per_job", 5*time.Minute)

	v.SetDefault("ratelimit.generate_per_hour", 10)

	v.SetDefault("storage.signed_url_ttl", time.Hour)

	// Dev backend defaults
	v.SetDefault("devbackend.port", "8090")
	v.SetDefault("devbackend.step_duration", 15*time.Second)
	v.SetDefault("devbackend.failure_rate", 0.0)
}

func (c *Config) validate() error {
	switch {
	case c.Tracker.PollInterval <= 0:
		return fmt.Errorf("tracker.poll_interval must be positive, got %v", c.Tracker.PollInterval)
	case c.Tracker.RetryDelay < 0:
		return fmt.Errorf("tracker.retry_delay must not be negative, got %v", c.Tracker.RetryDelay)
	case c.Tracker.MaxPollFailures < 1:
		return fmt.Errorf("tracker.max_poll_failures must be at least 1, got %d", c.Tracker.MaxPollFailures)
	case c.Tracker.LogCapacity < 1:
		return fmt.Errorf("tracker.log_capacity must be at least 1, got %d", c.Tracker.LogCapacity)
	case c.Backend.RequestsPerSecond < 1:
		return fmt.Errorf("backend.requests_per_second must be at least 1, got %d", c.Backend.RequestsPerSecond)
	case c.DevBackend.FailureRate < 0 || c.DevBackend.FailureRate > 1:
		return fmt.Errorf("devbackend.failure_rate must be within [0,1], got %v", c.DevBackend.FailureRate)
	}
	return nil
}
