package config

import (
	"strings"
	"time"
)

const secretService = "clipd"

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Log     LogConfig
	Notion  NotionConfig
	AI      AIConfig
	Schema  SchemaConfig
	Extract ExtractConfig
	API     APIConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

type NotionConfig struct {
	Token       string
	DatabaseID  string
	URLProperty string
}

type AIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

type SchemaConfig struct {
	CacheTTL time.Duration
}

type ExtractConfig struct {
	MaxContentChars int
}

type APIConfig struct {
	Token string
}

func defaults() Config {
	return Config{
		Server:  ServerConfig{Port: 4100},
		Storage: StorageConfig{DataDir: defaultDataDir()},
		Log:     LogConfig{Level: "info"},
		AI: AIConfig{
			Model:   "openai/gpt-4o-mini",
			BaseURL: "https://openrouter.ai/api/v1",
			Timeout: 45 * time.Second,
		},
		Schema:  SchemaConfig{CacheTTL: 10 * time.Minute},
		Extract: ExtractConfig{MaxContentChars: 15000},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.clipd.app) and secrets
// live in the Keychain (service: clipd).
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/clipd/config.json
// and secrets live in $XDG_DATA_HOME/clipd/secrets.json.
//
// Environment variables (CLIPD_*) override backend values on all platforms.
// Missing credentials are not an error here; see NotionCredentials.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts secret storage for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Secrets still empty after env come from the secret store.
	for _, s := range specs {
		if !s.secret || s.extract(cfg).(string) != "" {
			continue
		}
		if v, err := kc.Get(secretService, s.account); err == nil && v != "" {
			s.apply(&cfg, v)
		}
	}

	return cfg, nil
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
