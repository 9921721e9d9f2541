package config

import (
	"errors"
	"io/fs"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env       string `mapstructure:"ENV"`
	Addr      string `mapstructure:"ADDR"`
	DBDSN     string `mapstructure:"DB_DSN"`
	JWTSecret string `mapstructure:"JWT_SECRET"`
	RedisAddr string `mapstructure:"REDIS_ADDR"`

	// Key-value store for per-user documents (profile, cart, draft...)
	KVBackend       string `mapstructure:"KV_BACKEND"` // memory | redis | pebble
	PebblePath      string `mapstructure:"PEBBLE_PATH"`
	KVMaxValueBytes int    `mapstructure:"KV_MAX_VALUE_BYTES"`

	// Gemini
	GeminiAPIKey      string        `mapstructure:"GEMINI_API_KEY"`
	GeminiTextModel   string        `mapstructure:"GEMINI_TEXT_MODEL"`
	GeminiImageModel  string        `mapstructure:"GEMINI_IMAGE_MODEL"`
	GeminiVideoModel  string        `mapstructure:"GEMINI_VIDEO_MODEL"`
	VideoPollInterval time.Duration `mapstructure:"VIDEO_POLL_INTERVAL"`
	VideoTimeout      time.Duration `mapstructure:"VIDEO_TIMEOUT"`
	VideoMaxPolls     int           `mapstructure:"VIDEO_MAX_POLLS"`

	// S3 compatible object storage for recordings and uploads
	S3Endpoint        string `mapstructure:"S3_ENDPOINT"`
	S3Bucket          string `mapstructure:"S3_BUCKET"`
	S3AccessKeyID     string `mapstructure:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `mapstructure:"S3_SECRET_ACCESS_KEY"`
	S3PublicURL       string `mapstructure:"S3_PUBLIC_URL"`

	AutoReplyDelay time.Duration `mapstructure:"AUTO_REPLY_DELAY"`
	DraftDebounce  time.Duration `mapstructure:"DRAFT_DEBOUNCE"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`
}

var defaults = map[string]any{
	"ENV":                  "development",
	"ADDR":                 ":8080",
	"DB_DSN":               "",
	"JWT_SECRET":           "",
	"REDIS_ADDR":           "localhost:6379",
	"KV_BACKEND":           "memory",
	"PEBBLE_PATH":          "data/kv",
	"KV_MAX_VALUE_BYTES":   5 * 1024 * 1024,
	"GEMINI_API_KEY":       "",
	"GEMINI_TEXT_MODEL":    "gemini-2.5-flash",
	"GEMINI_IMAGE_MODEL":   "gemini-2.5-flash-image",
	"GEMINI_VIDEO_MODEL":   "veo-3.1-fast-generate-preview",
	"VIDEO_POLL_INTERVAL":  "5s",
	"VIDEO_TIMEOUT":        "10m",
	"VIDEO_MAX_POLLS":      120,
	"S3_ENDPOINT":          "",
	"S3_BUCKET":            "",
	"S3_ACCESS_KEY_ID":     "",
	"S3_SECRET_ACCESS_KEY": "",
	"S3_PUBLIC_URL":        "",
	"AUTO_REPLY_DELAY":     "2s",
	"DRAFT_DEBOUNCE":       "1s",
	"RATE_LIMIT_RPS":       10.0,
	"RATE_LIMIT_BURST":     50,
}

// Load reads an optional env file and then the environment. Environment wins.
func Load(envFile string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is not set")
	}
	return &cfg, nil
}

// UseRedis reports whether the redis pub/sub fan-out should be enabled.
func (c *Config) UseRedis() bool {
	return c.RedisAddr != "" && (c.KVBackend == "redis" || c.Env != "development")
}
