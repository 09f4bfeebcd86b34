//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const defaultsDomain = "com.clipd.app"

// securityItemNotFound is the exit status of security(1) for a missing item.
const securityItemNotFound = 44

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "clipd-data"
	}
	return filepath.Join(home, "Library", "Application Support", "clipd")
}

// run executes a system tool and returns its trimmed output together with
// the exit status, or -1 when the tool could not be started.
func run(name string, args ...string) (string, int, error) {
	out, err := exec.Command(name, args...).CombinedOutput()
	s := strings.TrimSpace(string(out))
	if err == nil {
		return s, 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return s, exitErr.ExitCode(), err
	}
	return s, -1, err
}

type defaultsBackend struct {
	domain string
}

func newPlatformBackend() ConfigBackend {
	return defaultsBackend{domain: defaultsDomain}
}

func (b defaultsBackend) GetString(key string) (string, bool, error) {
	out, code, err := run("defaults", "read", b.domain, key)
	switch {
	case err == nil:
		return out, true, nil
	case code == 1:
		return "", false, nil
	}
	return "", false, fmt.Errorf("defaults read %s: %w: %s", key, err, out)
}

func (b defaultsBackend) GetInt(key string) (int, bool, error) {
	s, ok, err := b.GetString(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, true, fmt.Errorf("%s: %w", key, err)
	}
	return i, true, nil
}

func (b defaultsBackend) write(key string, args ...string) error {
	out, _, err := run("defaults", append([]string{"write", b.domain, key}, args...)...)
	if err != nil {
		return fmt.Errorf("defaults write %s: %w: %s", key, err, out)
	}
	return nil
}

func (b defaultsBackend) SetString(key, val string) error {
	return b.write(key, "-string", val)
}

func (b defaultsBackend) SetInt(key string, val int) error {
	return b.write(key, "-int", strconv.Itoa(val))
}

func (b defaultsBackend) Delete(key string) error {
	_, code, err := run("defaults", "delete", b.domain, key)
	if err != nil && code != 1 {
		return fmt.Errorf("defaults delete %s: %w", key, err)
	}
	return nil
}

func keychainGet(service, account string) ([]byte, error) {
	out, code, err := run("security", "find-generic-password", "-s", service, "-a", account, "-w")
	switch {
	case err == nil:
		return []byte(out), nil
	case code == securityItemNotFound:
		return nil, fmt.Errorf("%w: %s", errSecretNotFound, account)
	}
	return nil, fmt.Errorf("keychain lookup %s: %w", account, err)
}

func keychainSet(service, account, value string) error {
	if _, _, err := run("security", "add-generic-password", "-U", "-s", service, "-a", account, "-w", value); err != nil {
		return fmt.Errorf("keychain store %s: %w", account, err)
	}
	return nil
}
