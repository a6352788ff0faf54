package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) {
	t.Helper()
	for _, env := range envBindings {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}
	t.Setenv("SPEECH_CONFIG_FILE", "")
	t.Chdir(t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(Options{})
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1", cfg.Server.Host)
	require.Equal(t, 8000, cfg.Server.Port)
	require.True(t, cfg.Server.Debug)
	require.Equal(t, []string{"http://localhost:3000", "http://localhost:3001"}, cfg.Server.CORSOrigins)
	require.Equal(t, "127.0.0.1:8000", cfg.Server.ListenAddr())
	require.Equal(t, 60*time.Second, cfg.Speech.Timeout)
	require.Equal(t, 60*time.Second, cfg.Translator.Timeout)
	require.False(t, cfg.Translator.InsecureSkipVerify)
	require.Equal(t, DefaultMaxUploadBytes, cfg.Audio.MaxUploadBytes)
	require.Equal(t, "en-US", cfg.Audio.SourceLanguage)
	require.Equal(t, "en", cfg.Audio.TranslationSource)
	require.Equal(t, "es", cfg.Audio.DefaultTargetLanguage)
	require.True(t, cfg.Observability.EnableMetrics)
	require.False(t, cfg.Observability.EnableOTLP)
	require.False(t, cfg.RateLimitsEnabled())
}

func TestLoadFromEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv("HOST", "0.0.0.0")
	t.Setenv("PORT", "9090")
	t.Setenv("DEBUG", "false")
	t.Setenv("CORS_ORIGINS", "https://app.example.com, https://admin.example.com")
	t.Setenv("AZURE_SPEECH_KEY", " speech-key ")
	t.Setenv("AZURE_SPEECH_REGION", "eastus")
	t.Setenv("AZURE_SPEECH_ENDPOINT", "https://eastus.api.cognitive.microsoft.com/")
	t.Setenv("AZURE_TRANSLATOR_KEY", "translator-key")
	t.Setenv("AZURE_TRANSLATOR_ENDPOINT", "https://api.cognitive.microsofttranslator.com/")
	t.Setenv("AZURE_TRANSLATOR_REGION", "eastus")
	t.Setenv("AZURE_TRANSLATOR_INSECURE_SKIP_VERIFY", "true")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("RATE_LIMIT_RPM", "30")

	cfg, err := Load(Options{})
	require.NoError(t, err)

	require.Equal(t, "0.0.0.0:9090", cfg.Server.ListenAddr())
	require.False(t, cfg.Server.Debug)
	require.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.Server.CORSOrigins)
	require.Equal(t, "speech-key", cfg.Speech.Key)
	require.Equal(t, "eastus", cfg.Speech.Region)
	require.Equal(t, "https://eastus.api.cognitive.microsoft.com", cfg.Speech.Endpoint)
	require.Equal(t, "https://api.cognitive.microsofttranslator.com", cfg.Translator.Endpoint)
	require.True(t, cfg.Translator.InsecureSkipVerify)
	require.Equal(t, 30, cfg.RateLimits.RequestsPerMinute)
	require.True(t, cfg.RateLimitsEnabled())
}

func TestLoadFromFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "speech.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 8100
speech:
  region: westeurope
  timeout: 15s
audio:
  max_upload_bytes: 2048
  default_target_language: fr
health:
  check_interval: 30s
  timeout: 2s
`), 0o600))

	cfg, err := Load(Options{ConfigFile: path})
	require.NoError(t, err)
	require.Equal(t, 8100, cfg.Server.Port)
	require.Equal(t, "westeurope", cfg.Speech.Region)
	require.Equal(t, 15*time.Second, cfg.Speech.Timeout)
	require.Equal(t, 2048, cfg.Audio.MaxUploadBytes)
	require.Equal(t, "fr", cfg.Audio.DefaultTargetLanguage)
	require.Equal(t, 30*time.Second, cfg.Health.CheckInterval)
	require.Equal(t, 2*time.Second, cfg.Health.Timeout)
}

func TestLoadEnvFile(t *testing.T) {
	isolate(t)
	envPath := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("AZURE_SPEECH_KEY=from-dotenv\nPORT=8200\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("AZURE_SPEECH_KEY")
		os.Unsetenv("PORT")
	})

	cfg, err := Load(Options{EnvFile: envPath})
	require.NoError(t, err)
	require.Equal(t, "from-dotenv", cfg.Speech.Key)
	require.Equal(t, 8200, cfg.Server.Port)
}

func TestValidateRejectsInvalidValues(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Port: 70000}}
	require.Error(t, cfg.Validate())

	cfg = &Config{Server: ServerConfig{Port: 8000}, Audio: AudioConfig{MaxUploadBytes: -1}}
	require.Error(t, cfg.Validate())

	cfg = &Config{Server: ServerConfig{Port: 8000}, RateLimits: RateLimitConfig{ParallelRequests: -2}}
	require.Error(t, cfg.Validate())
}

func TestRedacted(t *testing.T) {
	cfg := Config{
		Speech:     SpeechConfig{Key: "abcdef123456"},
		Translator: TranslatorConfig{Key: "xyz"},
		Redis:      RedisConfig{URL: "redis://:secret@host:6379"},
	}
	redacted := cfg.Redacted()
	require.Equal(t, "ab********56", redacted.Speech.Key)
	require.Equal(t, "****", redacted.Translator.Key)
	require.NotContains(t, redacted.Redis.URL, "secret")
	require.Equal(t, "abcdef123456", cfg.Speech.Key)
}
