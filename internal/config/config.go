package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret fills envKey from the file named by envKey_FILE (Docker
// secrets). A value set directly always wins.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	path := os.Getenv(envKey + "_FILE")
	if path == "" {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

var secretEnv = []string{
	"REDIS_PASSWORD",
	"JWT_SECRET",
	"GROQ_API_KEY",
	"SUNO_API_KEY",
	"IMAGE_API_KEY",
	"R2_ACCOUNT_ID",
	"R2_ACCESS_KEY_ID",
	"R2_SECRET_ACCESS_KEY",
	"ZITADEL_CLIENT_ID",
	"CALLBACK_SECRET",
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Store     StoreConfig     `mapstructure:"store"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Groq      GroqConfig      `mapstructure:"groq"`
	Suno      SunoConfig      `mapstructure:"suno"`
	Image     ImageConfig     `mapstructure:"image"`
	R2        R2Config        `mapstructure:"r2"`
	Zitadel   ZitadelConfig   `mapstructure:"zitadel"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Callback  CallbackConfig  `mapstructure:"callback"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// JWTConfig holds the shared secret for legacy HMAC tokens
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type RateLimitConfig struct {
	ShowsPerHour  int `mapstructure:"shows_per_hour"`
	TracksPerHour int `mapstructure:"tracks_per_hour"`
}

type GroqConfig struct {
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type SunoConfig struct {
	APIKey              string `mapstructure:"api_key"`
	BaseURL             string `mapstructure:"base_url"`
	Model               string `mapstructure:"model"`
	TimeoutSeconds      int    `mapstructure:"timeout_seconds"`
	PollIntervalSeconds int    `mapstructure:"poll_interval_seconds"`
	PollMaxWaitMinutes  int    `mapstructure:"poll_max_wait_minutes"`
}

type ImageConfig struct {
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
	Model    string `mapstructure:"model"`
	Size     string `mapstructure:"size"`
	Variants int    `mapstructure:"variants"`
}

type R2Config struct {
	AccountID       string `mapstructure:"account_id"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"`
	PublicURL       string `mapstructure:"public_url"`
}

// ZitadelConfig enables JWKS verification when Issuer is set. ClientID, when
// set, is required as the token audience.
type ZitadelConfig struct {
	Issuer   string `mapstructure:"issuer"`
	ClientID string `mapstructure:"client_id"`
}

type GatewayConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type CallbackConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Secret  string `mapstructure:"secret"`
}

type PipelineConfig struct {
	TrackCount                  int  `mapstructure:"track_count"`
	PrimaryTrack                int  `mapstructure:"primary_track"`
	FailedTracksBlockCompletion bool `mapstructure:"failed_tracks_block_completion"`
}

var defaults = map[string]any{
	"server.port":      "8000",
	"server.env":       "development",
	"server.log_level": "info",

	"redis.addr":     "localhost:6379",
	"redis.password": "",
	"redis.db":       0,

	"store.path": "./data/showrunner.db",
	"jwt.secret": "change-me-in-production",

	"ratelimit.shows_per_hour":  10,
	"ratelimit.tracks_per_hour": 30,

	"groq.api_key":         "",
	"groq.base_url":        "https://api.groq.com/openai/v1",
	"groq.model":           "llama-3.3-70b-versatile",
	"groq.timeout_seconds": 30,

	"suno.api_key":               "",
	"suno.base_url":              "https://api.sunoapi.org",
	"suno.model":                 "V4_5",
	"suno.timeout_seconds":       30,
	"suno.poll_interval_seconds": 10,
	"suno.poll_max_wait_minutes": 10,

	"image.api_key":  "",
	"image.base_url": "https://api.openai.com/v1",
	"image.model":    "dall-e-3",
	"image.size":     "1024x1024",
	"image.variants": 1,

	"r2.account_id":        "",
	"r2.access_key_id":     "",
	"r2.secret_access_key": "",
	"r2.bucket_name":       "",
	"r2.public_url":        "",

	"zitadel.issuer":    "",
	"zitadel.client_id": "",

	"gateway.enabled": false,

	"callback.base_url": "",
	"callback.secret":   "",

	"pipeline.track_count":                    6,
	"pipeline.primary_track":                  1,
	"pipeline.failed_tracks_block_completion": false,
}

// Load reads config.yaml (optional, from . or ./config) and the environment.
// Every key maps to its upper-cased env name with dots as underscores
// (suno.api_key is SUNO_API_KEY); server.log_level is also read from LOG_LEVEL.
func Load() (*Config, error) {
	for _, key := range secretEnv {
		readSecret(key)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	_ = v.BindEnv("server.log_level", "SERVER_LOG_LEVEL", "LOG_LEVEL")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Callback.BaseURL = strings.TrimRight(cfg.Callback.BaseURL, "/")
	if cfg.Pipeline.TrackCount < 1 {
		cfg.Pipeline.TrackCount = 6
	}
	if cfg.Pipeline.PrimaryTrack < 1 || cfg.Pipeline.PrimaryTrack > cfg.Pipeline.TrackCount {
		cfg.Pipeline.PrimaryTrack = 1
	}
	return &cfg, nil
}
