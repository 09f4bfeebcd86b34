package config

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
)

var (
	ErrMissingCredential = errors.New("missing credential")
	ErrInvalidCredential = errors.New("invalid credential")
)

const minNotionTokenLen = 40

var databaseIDRe = regexp.MustCompile(`([0-9a-fA-F]{32})$`)

// ValidateNotionToken checks the shape of a Notion integration token.
func ValidateNotionToken(tok string) error {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return fmt.Errorf("%w: notion token is not set", ErrMissingCredential)
	}
	if !strings.HasPrefix(tok, "secret_") && !strings.HasPrefix(tok, "ntn_") {
		return fmt.Errorf("%w: notion token must start with secret_ or ntn_", ErrInvalidCredential)
	}
	if len(tok) < minNotionTokenLen {
		return fmt.Errorf("%w: notion token is too short", ErrInvalidCredential)
	}
	return nil
}

// NormalizeDatabaseID accepts a bare id, a dashed UUID or a database URL
// and returns the 32 lowercase hex characters of the id.
func NormalizeDatabaseID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: notion database id is not set", ErrMissingCredential)
	}
	s := raw
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return "", fmt.Errorf("%w: database url: %v", ErrInvalidCredential, err)
		}
		s = path.Base(u.Path)
	}
	s = strings.ReplaceAll(s, "-", "")
	m := databaseIDRe.FindStringSubmatch(s)
	if m == nil {
		return "", fmt.Errorf("%w: %q does not contain a 32 character database id", ErrInvalidCredential, raw)
	}
	// A bare id must be exactly the id, not a longer hex run.
	if !strings.Contains(raw, "://") && len(s) != 32 {
		return "", fmt.Errorf("%w: %q is not a 32 character database id", ErrInvalidCredential, raw)
	}
	return strings.ToLower(m[1]), nil
}

// ValidateAIKey checks the shape of an OpenRouter key.
func ValidateAIKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%w: ai api key is not set", ErrMissingCredential)
	}
	if !strings.HasPrefix(key, "sk-or-") {
		return fmt.Errorf("%w: ai api key must start with sk-or-", ErrInvalidCredential)
	}
	return nil
}

// NotionCredentials returns the validated token and normalised database id.
func (c Config) NotionCredentials() (token, databaseID string, err error) {
	if err := ValidateNotionToken(c.Notion.Token); err != nil {
		return "", "", err
	}
	id, err := NormalizeDatabaseID(c.Notion.DatabaseID)
	if err != nil {
		return "", "", err
	}
	return strings.TrimSpace(c.Notion.Token), id, nil
}

// AIEnabled reports whether a well-formed AI key is configured.
func (c Config) AIEnabled() bool {
	return ValidateAIKey(c.AI.APIKey) == nil
}
