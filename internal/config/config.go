package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Dispatch  DispatchConfig
	Scheduler SchedulerConfig
	Webhook   WebhookConfig
}

type ServerConfig struct {
	Address string
}

type DatabaseConfig struct {
	// PostgresURL is optional; when empty the process runs on the
	// in-memory store.
	PostgresURL string
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

type DispatchConfig struct {
	ContentMax  int
	Spacing     time.Duration
	SendTimeout time.Duration
	RetryMax    int
}

type SchedulerConfig struct {
	Interval time.Duration
}

type WebhookConfig struct {
	URL string
}

// LoadAll reads every setting from the environment. All problems are
// collected and reported in one error so a misconfigured deployment
// shows everything wrong at once.
func LoadAll() (*Config, error) {
	var errs []error

	webhookURL, err := requireEnv("WEBHOOK_URL")
	if err != nil {
		errs = append(errs, err)
	}

	contentMax, err := getEnvInt("CONTENT_MAX", 4096)
	if err != nil {
		errs = append(errs, err)
	}
	spacingSecs, err := getEnvInt("SEND_SPACING_SECONDS", 2)
	if err != nil {
		errs = append(errs, err)
	}
	sendTimeoutSecs, err := getEnvInt("SEND_TIMEOUT_SECONDS", 10)
	if err != nil {
		errs = append(errs, err)
	}
	retryMax, err := getEnvInt("SEND_RETRY_MAX", 3)
	if err != nil {
		errs = append(errs, err)
	}
	intervalSecs, err := getEnvInt("SCHED_INTERVAL_SECONDS", 60)
	if err != nil {
		errs = append(errs, err)
	}

	redisCfg, err := loadRedisConfig()
	if err != nil {
		errs = append(errs, err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Database: DatabaseConfig{
			PostgresURL: os.Getenv("POSTGRES_URL"),
		},
		Webhook: WebhookConfig{
			URL: webhookURL,
		},
		Dispatch: DispatchConfig{
			ContentMax:  contentMax,
			Spacing:     time.Duration(spacingSecs) * time.Second,
			SendTimeout: time.Duration(sendTimeoutSecs) * time.Second,
			RetryMax:    retryMax,
		},
		Scheduler: SchedulerConfig{
			Interval: time.Duration(intervalSecs) * time.Second,
		},
		Redis: redisCfg,
	}

	errs = append(errs, validate(cfg)...)
	if err := joinErrors(errs); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadRedisConfig() (RedisConfig, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}, nil
	}

	var errs []error
	db, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		errs = append(errs, err)
	}
	ttlSecs, err := getEnvInt("REDIS_TTL_SECONDS", 86400)
	if err != nil {
		errs = append(errs, err)
	}

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
		TTL:      time.Duration(ttlSecs) * time.Second,
	}, joinErrors(errs)
}

func validate(cfg *Config) []error {
	var errs []error
	if cfg.Dispatch.ContentMax <= 0 {
		errs = append(errs, errors.New("CONTENT_MAX must be > 0"))
	}
	if cfg.Dispatch.Spacing < 0 {
		errs = append(errs, errors.New("SEND_SPACING_SECONDS must be >= 0"))
	}
	if cfg.Dispatch.SendTimeout <= 0 {
		errs = append(errs, errors.New("SEND_TIMEOUT_SECONDS must be > 0"))
	}
	if cfg.Dispatch.RetryMax < 1 {
		errs = append(errs, errors.New("SEND_RETRY_MAX must be >= 1"))
	}
	if cfg.Scheduler.Interval <= 0 {
		errs = append(errs, errors.New("SCHED_INTERVAL_SECONDS must be > 0"))
	}
	if cfg.Redis.Enabled && cfg.Redis.TTL <= 0 {
		errs = append(errs, errors.New("REDIS_TTL_SECONDS must be > 0"))
	}
	return errs
}

func requireEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return val, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid int for env %s: %q", key, v)
	}
	return i, nil
}

func joinErrors(errs []error) error {
	return errors.Join(errs...)
}
