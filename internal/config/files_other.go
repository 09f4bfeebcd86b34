//go:build !darwin

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
)

// xdgPath joins elem under the XDG base directory named by env, falling
// back to fallback under the home directory.
func xdgPath(env, fallback string, elem ...string) string {
	dir := os.Getenv(env)
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(append([]string{"clipd-data"}, elem[1:]...)...)
		}
		dir = filepath.Join(home, fallback)
	}
	return filepath.Join(append([]string{dir}, elem...)...)
}

func defaultDataDir() string {
	return xdgPath("XDG_DATA_HOME", filepath.Join(".local", "share"), "clipd")
}

func configFilePath() string {
	return xdgPath("XDG_CONFIG_HOME", ".config", "clipd", "config.json")
}

func secretsFilePath(service string) string {
	return xdgPath("XDG_DATA_HOME", filepath.Join(".local", "share"), service, "secrets.json")
}

// readJSONFile decodes path into v. A missing file leaves v untouched.
func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// writeJSONFile replaces path with v through a rename, so a daemon
// reloading its settings never sees a partial file.
func writeJSONFile(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

type fileBackend struct {
	path string
	data map[string]any
}

func newPlatformBackend() ConfigBackend {
	b := &fileBackend{path: configFilePath(), data: make(map[string]any)}
	if err := readJSONFile(b.path, &b.data); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] ignoring config file %s: %v\n", b.path, err)
		b.data = make(map[string]any)
	}
	return b
}

func (b *fileBackend) GetString(key string) (string, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return "", false, nil
	}
	if s, ok := v.(string); ok {
		return s, true, nil
	}
	return fmt.Sprint(v), true, nil
}

func (b *fileBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return 0, false, nil
	}
	switch val := v.(type) {
	case float64:
		if val != math.Trunc(val) || val < math.MinInt || val > math.MaxInt {
			return 0, true, fmt.Errorf("%s: %v is not an integer", key, val)
		}
		return int(val), true, nil
	case string:
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, true, fmt.Errorf("%s: %w", key, err)
		}
		return i, true, nil
	}
	return 0, true, fmt.Errorf("%s: unexpected %T", key, v)
}

func (b *fileBackend) SetString(key, val string) error {
	b.data[key] = val
	return writeJSONFile(b.path, b.data)
}

func (b *fileBackend) SetInt(key string, val int) error {
	b.data[key] = val
	return writeJSONFile(b.path, b.data)
}

func (b *fileBackend) Delete(key string) error {
	delete(b.data, key)
	return writeJSONFile(b.path, b.data)
}

// Secrets live in a 0600 JSON object keyed by account, one file per service.

func keychainGet(service, account string) ([]byte, error) {
	secrets := map[string]string{}
	if err := readJSONFile(secretsFilePath(service), &secrets); err != nil {
		return nil, fmt.Errorf("reading secrets: %w", err)
	}
	v, ok := secrets[account]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errSecretNotFound, account)
	}
	return []byte(v), nil
}

func keychainSet(service, account, value string) error {
	path := secretsFilePath(service)
	secrets := map[string]string{}
	if err := readJSONFile(path, &secrets); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] rewriting unreadable secrets file %s: %v\n", path, err)
		secrets = map[string]string{}
	}
	secrets[account] = value
	return writeJSONFile(path, secrets)
}
