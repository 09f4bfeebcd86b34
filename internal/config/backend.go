package config

import "errors"

// ConfigBackend is where non-secret keys persist between runs. macOS keeps
// them in UserDefaults; other platforms use a JSON file under XDG paths.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}

var errSecretNotFound = errors.New("secret not found")
