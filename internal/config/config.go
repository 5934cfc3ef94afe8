package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Window is the inclusive range a randomized poll delay is drawn from.
type Window struct {
	Min time.Duration `mapstructure:"min"`
	Max time.Duration `mapstructure:"max"`
}

type Config struct {
	API struct {
		BaseURL           string        `mapstructure:"base_url"`
		SessionToken      string        `mapstructure:"session_token"`
		Timeout           time.Duration `mapstructure:"timeout"`
		RequestsPerSecond float64       `mapstructure:"requests_per_second"` // 0 disables the outbound limiter
	} `mapstructure:"api"`

	Polling struct {
		MaxProgress      int           `mapstructure:"max_progress"`
		TransientRetries int           `mapstructure:"transient_retries"`
		TransientDelay   time.Duration `mapstructure:"transient_delay"`
		Windows          struct {
			Fast Window `mapstructure:"fast"`
			Long Window `mapstructure:"long"`
		} `mapstructure:"windows"`
	} `mapstructure:"polling"`

	History struct {
		Driver string `mapstructure:"driver"` // "postgres", "sqlite" or "none"
		DSN    string `mapstructure:"dsn"`
	} `mapstructure:"history"`

	Redis struct {
		Address       string `mapstructure:"address"`
		Password      string `mapstructure:"password"`
		DB            int    `mapstructure:"db"`
		EventsChannel string `mapstructure:"events_channel"` // empty keeps events in-process
	} `mapstructure:"redis"`

	Worker struct {
		Concurrency int            `mapstructure:"concurrency"`
		Queues      map[string]int `mapstructure:"queues"`
	} `mapstructure:"worker"`

	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`

	DevServer struct {
		Addr         string `mapstructure:"addr"`
		Generator    string `mapstructure:"generator"` // "echo", "openai" or "gemini"
		Steps        int    `mapstructure:"steps"`
		// Token, when set, must be presented as a bearer token on every request.
		Token             string  `mapstructure:"token"`
		RequestsPerSecond float64 `mapstructure:"requests_per_second"`
		OpenaiApiKey string `mapstructure:"openai_api_key"`
		OpenaiModel  string `mapstructure:"openai_model"`
		GoogleApiKey string `mapstructure:"google_api_key"`
		GeminiModel  string `mapstructure:"gemini_model"`
	} `mapstructure:"devserver"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
}

// SetDefaults registers the values used when neither config.yaml nor the
// environment provides a key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:3000")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("api.requests_per_second", 0)

	v.SetDefault("polling.max_progress", 12)
	v.SetDefault("polling.transient_retries", 5)
	v.SetDefault("polling.transient_delay", 3*time.Second)
	v.SetDefault("polling.windows.fast.min", 2*time.Second)
	v.SetDefault("polling.windows.fast.max", 3*time.Second)
	v.SetDefault("polling.windows.long.min", 10*time.Second)
	v.SetDefault("polling.windows.long.max", 15*time.Second)

	v.SetDefault("history.driver", "sqlite")
	v.SetDefault("history.dsn", "pollster.db")

	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("worker.concurrency", 10)
	v.SetDefault("worker.queues", map[string]int{"jobs": 1})

	v.SetDefault("server.addr", "localhost:8080")

	v.SetDefault("devserver.addr", "localhost:3000")
	v.SetDefault("devserver.generator", "echo")
	v.SetDefault("devserver.steps", 3)
	v.SetDefault("devserver.requests_per_second", 0)
	v.SetDefault("devserver.openai_model", "gpt-4o-mini")
	v.SetDefault("devserver.gemini_model", "gemini-1.5-flash")

	v.SetDefault("log.level", "info")
}

func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	SetDefaults(v)

	// POLLSTER_API_BASE_URL, POLLSTER_HISTORY_DSN, ...
	v.SetEnvPrefix("POLLSTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("api.session_token", "POLLSTER_TOKEN")
	v.BindEnv("devserver.openai_api_key", "OPENAI_API_KEY")
	v.BindEnv("devserver.google_api_key", "GEMINI_API_KEY")

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine, defaults and env vars still apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	return &config, nil
}

// Default returns the configuration built from defaults alone.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		panic(fmt.Sprintf("config defaults do not decode: %v", err))
	}
	return &config
}
