package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	LLM        LLMConfig
	Moderation ModerationConfig
	Session    SessionConfig
	Redis      RedisConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	BodyLimit      int
	MaxReviewChars int
	AllowedOrigins []string
	IsDevelopment  bool
}

type LLMConfig struct {
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	MaxTokens   int
	TimeoutSec  int
}

type ModerationConfig struct {
	BaseURL          string
	APIUser          string
	APISecret        string
	Lang             string
	TimeoutSec       int
	FailureThreshold int
	OpenTimeoutSec   int
}

type SessionConfig struct {
	Backend   string
	TTLMin    int
	NoticeSec int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

// envBindings keeps the credential variable names the deployment already uses.
var envBindings = map[string]string{
	"llm.apiKey":           "OPENAI_API_KEY",
	"llm.model":            "OPENAI_MODEL",
	"llm.baseURL":          "OPENAI_BASE_URL",
	"moderation.apiUser":   "SIGHTENGINE_API_USER",
	"moderation.apiSecret": "SIGHTENGINE_API_SECRET",
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/review-moderation")

	v.SetEnvPrefix("REVIEWBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range envBindings {
		if err := v.BindEnv(key, "REVIEWBOT_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 120)
	v.SetDefault("server.bodyLimit", 1048576)
	v.SetDefault("server.maxReviewChars", 10000)
	v.SetDefault("server.allowedOrigins", []string{})
	v.SetDefault("server.isDevelopment", false)

	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.baseURL", "")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.maxTokens", 512)
	v.SetDefault("llm.timeoutSec", 60)

	v.SetDefault("moderation.baseURL", "https://api.sightengine.com")
	v.SetDefault("moderation.lang", "en")
	v.SetDefault("moderation.timeoutSec", 15)
	v.SetDefault("moderation.failureThreshold", 5)
	v.SetDefault("moderation.openTimeoutSec", 30)

	v.SetDefault("session.backend", "memory")
	v.SetDefault("session.ttlMin", 60)
	v.SetDefault("session.noticeSec", 3)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
