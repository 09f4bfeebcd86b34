package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

// ShowAll returns all non-secret config key/value pairs from the current config.
func ShowAll(cfg Config) []KeyInfo {
	var result []KeyInfo
	for _, s := range specs {
		if s.secret {
			continue
		}
		result = append(result, KeyInfo{
			Key:    s.key,
			EnvVar: s.env,
			Value:  fmt.Sprintf("%v", s.extract(cfg)),
		})
	}
	return result
}

// SecretInfo reports whether a secret is configured, never its value.
type SecretInfo struct {
	Key    string
	EnvVar string
	Set    bool
}

// ShowSecrets lists the secret keys and whether each has a value.
func ShowSecrets(cfg Config) []SecretInfo {
	var result []SecretInfo
	for _, s := range specs {
		if !s.secret {
			continue
		}
		result = append(result, SecretInfo{
			Key:    s.key,
			EnvVar: s.env,
			Set:    s.extract(cfg).(string) != "",
		})
	}
	return result
}

// SetKey writes a config key to the platform backend.
func SetKey(key, value string) error {
	return setKeyWith(newPlatformBackend(), key, value)
}

func setKeyWith(b ConfigBackend, key, value string) error {
	s, ok := lookupSpec(key)
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}
	if s.secret {
		return fmt.Errorf("cannot set secret %q via config; use `clipd secrets set %s`", key, key)
	}
	switch s.typ {
	case kString:
		if key == "notion.database_id" {
			id, err := NormalizeDatabaseID(value)
			if err != nil {
				return err
			}
			value = id
		}
		return b.SetString(key, value)
	case kInt:
		i, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %w", key, err)
		}
		return b.SetInt(key, i)
	case kDuration:
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration value for %s: %w", key, err)
		}
		return b.SetString(key, value)
	}
	return fmt.Errorf("unsupported type for %s", key)
}

// SetSecret validates and stores a secret in the platform secret store.
func SetSecret(key, value string) error {
	s, ok := lookupSpec(key)
	if !ok || !s.secret {
		return fmt.Errorf("unknown secret: %q (valid: %v)", key, SecretKeys())
	}
	var err error
	switch key {
	case "notion.token":
		err = ValidateNotionToken(value)
	case "ai.api_key":
		err = ValidateAIKey(value)
	default:
		if value == "" {
			err = fmt.Errorf("%w: %s is empty", ErrMissingCredential, key)
		}
	}
	if err != nil {
		return err
	}
	return keychainSet(secretService, s.account, value)
}

// EnsureAPIToken generates and stores an API token when none is
// configured. It reports whether a new token was created.
func EnsureAPIToken(cfg *Config) (bool, error) {
	if cfg.API.Token != "" {
		return false, nil
	}
	tok := uuid.NewString()
	if err := SetSecret("api.token", tok); err != nil {
		return false, fmt.Errorf("storing api token: %w", err)
	}
	cfg.API.Token = tok
	return true, nil
}

// ValidKeys returns the list of valid non-secret config key names.
func ValidKeys() []string {
	var keys []string
	for _, s := range specs {
		if !s.secret {
			keys = append(keys, s.key)
		}
	}
	return keys
}

// SecretKeys returns the names of the secret keys.
func SecretKeys() []string {
	var keys []string
	for _, s := range specs {
		if s.secret {
			keys = append(keys, s.key)
		}
	}
	return keys
}
