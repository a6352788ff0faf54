package config

import (
	"fmt"
	"net"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// DefaultMaxUploadBytes is the largest audio clip accepted for analysis (120 MiB).
const DefaultMaxUploadBytes = 120 * 1024 * 1024

// Config captures the runtime configuration for the speech analysis service.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Speech        SpeechConfig        `mapstructure:"speech"`
	Translator    TranslatorConfig    `mapstructure:"translator"`
	Audio         AudioConfig         `mapstructure:"audio"`
	Redis         RedisConfig         `mapstructure:"redis"`
	RateLimits    RateLimitConfig     `mapstructure:"rate_limits"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Health        HealthConfig        `mapstructure:"health"`
}

type ServerConfig struct {
	Host                  string        `mapstructure:"host"`
	Port                  int           `mapstructure:"port"`
	Debug                 bool          `mapstructure:"debug"`
	CORSOrigins           []string      `mapstructure:"cors_origins"`
	ReadTimeout           time.Duration `mapstructure:"read_timeout"`
	GracefulShutdownDelay time.Duration `mapstructure:"graceful_shutdown_delay"`
}

// ListenAddr joins host and port for the listener.
func (s ServerConfig) ListenAddr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

type SpeechConfig struct {
	Key            string        `mapstructure:"key"`
	Region         string        `mapstructure:"region"`
	Endpoint       string        `mapstructure:"endpoint"`
	// RecognitionURL overrides the short-audio REST base URL derived from the region.
	RecognitionURL string        `mapstructure:"recognition_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

type TranslatorConfig struct {
	Key                string        `mapstructure:"key"`
	Endpoint           string        `mapstructure:"endpoint"`
	Region             string        `mapstructure:"region"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	Timeout            time.Duration `mapstructure:"timeout"`
}

type AudioConfig struct {
	MaxUploadBytes        int    `mapstructure:"max_upload_bytes"`
	TempDir               string `mapstructure:"temp_dir"`
	SourceLanguage        string `mapstructure:"source_language"`
	TranslationSource     string `mapstructure:"translation_source"`
	DefaultTargetLanguage string `mapstructure:"default_target_language"`
}

type RedisConfig struct {
	URL      string `mapstructure:"url"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type RateLimitConfig struct {
	RequestsPerMinute   int `mapstructure:"requests_per_minute"`
	ParallelRequests    int `mapstructure:"parallel_requests"`
	AudioBytesPerMinute int `mapstructure:"audio_bytes_per_minute"`
}

type ObservabilityConfig struct {
	OTLPEndpoint  string `mapstructure:"otlp_endpoint"`
	EnableOTLP    bool   `mapstructure:"enable_otlp"`
	EnableMetrics bool   `mapstructure:"enable_metrics"`
}

type HealthConfig struct {
	CheckInterval time.Duration `mapstructure:"check_interval"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// Options controls the config loader behavior.
type Options struct {
	ConfigFile string
	EnvFile    string
}

// envBindings maps config keys to the environment variables the service has always read.
var envBindings = map[string]string{
	"server.host":                        "HOST",
	"server.port":                        "PORT",
	"server.debug":                       "DEBUG",
	"server.cors_origins":                "CORS_ORIGINS",
	"speech.key":                         "AZURE_SPEECH_KEY",
	"speech.region":                      "AZURE_SPEECH_REGION",
	"speech.endpoint":                    "AZURE_SPEECH_ENDPOINT",
	"speech.recognition_url":             "AZURE_SPEECH_RECOGNITION_URL",
	"translator.key":                     "AZURE_TRANSLATOR_KEY",
	"translator.endpoint":                "AZURE_TRANSLATOR_ENDPOINT",
	"translator.region":                  "AZURE_TRANSLATOR_REGION",
	"translator.insecure_skip_verify":    "AZURE_TRANSLATOR_INSECURE_SKIP_VERIFY",
	"audio.temp_dir":                     "AUDIO_TEMP_DIR",
	"audio.max_upload_bytes":             "AUDIO_MAX_UPLOAD_BYTES",
	"redis.url":                          "REDIS_URL",
	"rate_limits.requests_per_minute":    "RATE_LIMIT_RPM",
	"rate_limits.parallel_requests":      "RATE_LIMIT_PARALLEL",
	"rate_limits.audio_bytes_per_minute": "RATE_LIMIT_AUDIO_BYTES",
	"observability.otlp_endpoint":        "OTLP_ENDPOINT",
	"observability.enable_otlp":          "ENABLE_OTLP",
	"observability.enable_metrics":       "ENABLE_METRICS",
}

// Load returns the merged configuration sourced from YAML and environment variables.
func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		_ = godotenv.Load(opts.EnvFile)
	} else {
		_ = godotenv.Load()
	}

	v := viper.New()
	setDefaults(v)

	explicitFile := false
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		explicitFile = true
	} else if cfg := os.Getenv("SPEECH_CONFIG_FILE"); cfg != "" {
		v.SetConfigFile(cfg)
		explicitFile = true
	}

	if !explicitFile {
		v.SetConfigName("speech")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	var cfg Config
	hooks := mapstructure.ComposeDecodeHookFunc(
		timeStringToDurationHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hooks)); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate normalizes defaults and rejects inconsistent values. Vendor credentials are not
// required here: their absence is reported when the corresponding call is made.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Host) == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	c.Server.CORSOrigins = normalizeStringSlice(c.Server.CORSOrigins)
	if c.Server.GracefulShutdownDelay <= 0 {
		c.Server.GracefulShutdownDelay = 5 * time.Second
	}

	c.Speech.Key = strings.TrimSpace(c.Speech.Key)
	c.Speech.Region = strings.TrimSpace(c.Speech.Region)
	c.Speech.Endpoint = strings.TrimSuffix(strings.TrimSpace(c.Speech.Endpoint), "/")
	if c.Speech.Timeout <= 0 {
		c.Speech.Timeout = 60 * time.Second
	}

	c.Translator.Key = strings.TrimSpace(c.Translator.Key)
	c.Translator.Endpoint = strings.TrimSuffix(strings.TrimSpace(c.Translator.Endpoint), "/")
	c.Translator.Region = strings.TrimSpace(c.Translator.Region)
	if c.Translator.Timeout <= 0 {
		c.Translator.Timeout = 60 * time.Second
	}

	if err := c.Audio.validate(); err != nil {
		return err
	}

	if c.Redis.PoolSize < 0 {
		return fmt.Errorf("redis.pool_size must be >= 0")
	}
	if c.RateLimits.RequestsPerMinute < 0 || c.RateLimits.ParallelRequests < 0 || c.RateLimits.AudioBytesPerMinute < 0 {
		return fmt.Errorf("rate_limits values must be >= 0")
	}

	if c.Health.CheckInterval <= 0 {
		c.Health.CheckInterval = time.Minute
	}
	if c.Health.Timeout <= 0 || c.Health.Timeout > c.Health.CheckInterval {
		c.Health.Timeout = 5 * time.Second
	}
	return nil
}

func (a *AudioConfig) validate() error {
	if a.MaxUploadBytes < 0 {
		return fmt.Errorf("audio.max_upload_bytes must be >= 0")
	}
	if a.MaxUploadBytes == 0 {
		a.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if strings.TrimSpace(a.SourceLanguage) == "" {
		a.SourceLanguage = "en-US"
	}
	if strings.TrimSpace(a.TranslationSource) == "" {
		a.TranslationSource = "en"
	}
	if strings.TrimSpace(a.DefaultTargetLanguage) == "" {
		a.DefaultTargetLanguage = "es"
	}
	return nil
}

// RateLimitsEnabled reports whether the request limiter has anything to enforce.
func (c *Config) RateLimitsEnabled() bool {
	return c.Redis.URL != "" && (c.RateLimits.RequestsPerMinute > 0 || c.RateLimits.ParallelRequests > 0 || c.RateLimits.AudioBytesPerMinute > 0)
}

// Redacted returns a copy safe for printing.
func (c Config) Redacted() Config {
	c.Speech.Key = redact(c.Speech.Key)
	c.Translator.Key = redact(c.Translator.Key)
	c.Redis.URL = redact(c.Redis.URL)
	return c
}

func redact(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 4 {
		return "****"
	}
	return value[:2] + strings.Repeat("*", len(value)-4) + value[len(value)-2:]
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.debug", true)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000", "http://localhost:3001"})
	v.SetDefault("server.read_timeout", "300s")
	v.SetDefault("server.graceful_shutdown_delay", "5s")

	v.SetDefault("speech.timeout", "60s")
	v.SetDefault("translator.timeout", "60s")
	v.SetDefault("translator.insecure_skip_verify", false)

	v.SetDefault("audio.max_upload_bytes", DefaultMaxUploadBytes)
	v.SetDefault("audio.source_language", "en-US")
	v.SetDefault("audio.translation_source", "en")
	v.SetDefault("audio.default_target_language", "es")

	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("observability.enable_otlp", false)
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.otlp_endpoint", "http://localhost:4317")

	v.SetDefault("health.check_interval", "60s")
	v.SetDefault("health.timeout", "5s")
}

func normalizeStringSlice(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

func timeStringToDurationHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case time.Duration:
			return v, nil
		case string:
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, err
			}
			return d, nil
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		default:
			return nil, fmt.Errorf("cannot decode %T into time.Duration", data)
		}
	}
}
