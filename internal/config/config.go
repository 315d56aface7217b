package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the grading service.
type Config struct {
	AppName                 string
	AppEnv                  string
	AppPort                 string
	DatabaseURL             string
	DatabaseMaxOpenConns    int
	DatabaseMaxIdleConns    int
	RedisURL                string
	NATSURL                 string
	RabbitMQURL             string
	RabbitMQQueue           string
	RabbitMQReconnectDelay  time.Duration
	JWTSecret               string
	ChannelBase             string
	BuildResultSubject      string
	BuildResultQueue        string
	TestCaseCacheTTL        time.Duration
	LockTTL                 time.Duration
	ReEvaluationConcurrency int
	ConsumerWorkers         int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GRADER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Grader")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("channel.base", "gema:grader")
	v.SetDefault("build_results.subject", "gema.grader.build_results")
	v.SetDefault("build_results.queue", "build-results")
	v.SetDefault("test_cases.cache_ttl", "10m")
	v.SetDefault("lock.ttl", "30s")
	v.SetDefault("re_evaluation.concurrency", 4)
	v.SetDefault("consumer.workers", 4)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("rabbitmq.queue", "build-results")
	v.SetDefault("rabbitmq.reconnect_delay", "5s")

	cacheTTL, err := time.ParseDuration(v.GetString("test_cases.cache_ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid test case cache ttl: %w", err)
	}

	lockTTL, err := time.ParseDuration(v.GetString("lock.ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid lock ttl: %w", err)
	}

	reconnectDelay, err := time.ParseDuration(v.GetString("rabbitmq.reconnect_delay"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid rabbitmq reconnect delay: %w", err)
	}

	cfg := Config{
		AppName:                 v.GetString("app.name"),
		AppEnv:                  v.GetString("app.env"),
		AppPort:                 v.GetString("app.port"),
		DatabaseURL:             v.GetString("database.url"),
		DatabaseMaxOpenConns:    v.GetInt("database.max_open_conns"),
		DatabaseMaxIdleConns:    v.GetInt("database.max_idle_conns"),
		RedisURL:                v.GetString("redis.url"),
		NATSURL:                 v.GetString("nats.url"),
		RabbitMQURL:             v.GetString("rabbitmq.url"),
		RabbitMQQueue:           v.GetString("rabbitmq.queue"),
		RabbitMQReconnectDelay:  reconnectDelay,
		JWTSecret:               v.GetString("jwt.secret"),
		ChannelBase:             v.GetString("channel.base"),
		BuildResultSubject:      v.GetString("build_results.subject"),
		BuildResultQueue:        v.GetString("build_results.queue"),
		TestCaseCacheTTL:        cacheTTL,
		LockTTL:                 lockTTL,
		ReEvaluationConcurrency: v.GetInt("re_evaluation.concurrency"),
		ConsumerWorkers:         v.GetInt("consumer.workers"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.ReEvaluationConcurrency <= 0 {
		cfg.ReEvaluationConcurrency = 4
	}

	if cfg.ConsumerWorkers <= 0 {
		cfg.ConsumerWorkers = 4
	}

	return cfg, nil
}
