package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	account string // secret store account for secrets
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "CLIPD_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "CLIPD_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "CLIPD_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "notion.database_id", typ: kString, env: "CLIPD_NOTION_DATABASE_ID",
		apply:   func(cfg *Config, v any) { cfg.Notion.DatabaseID = v.(string) },
		extract: func(cfg Config) any { return cfg.Notion.DatabaseID },
	},
	{
		key: "notion.url_property", typ: kString, env: "CLIPD_NOTION_URL_PROPERTY",
		apply:   func(cfg *Config, v any) { cfg.Notion.URLProperty = v.(string) },
		extract: func(cfg Config) any { return cfg.Notion.URLProperty },
	},
	{
		key: "notion.token", typ: kString, env: "CLIPD_NOTION_TOKEN",
		secret: true, account: "notion_token",
		apply:   func(cfg *Config, v any) { cfg.Notion.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Notion.Token },
	},
	{
		key: "ai.api_key", typ: kString, env: "CLIPD_AI_API_KEY",
		secret: true, account: "openrouter_api_key",
		apply:   func(cfg *Config, v any) { cfg.AI.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.APIKey },
	},
	{
		key: "ai.model", typ: kString, env: "CLIPD_AI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.AI.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.Model },
	},
	{
		key: "ai.base_url", typ: kString, env: "CLIPD_AI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.AI.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.BaseURL },
	},
	{
		key: "ai.timeout", typ: kDuration, env: "CLIPD_AI_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.AI.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.AI.Timeout },
	},
	{
		key: "schema.cache_ttl", typ: kDuration, env: "CLIPD_SCHEMA_CACHE_TTL",
		apply:   func(cfg *Config, v any) { cfg.Schema.CacheTTL = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Schema.CacheTTL },
	},
	{
		key: "extract.max_content_chars", typ: kInt, env: "CLIPD_EXTRACT_MAX_CONTENT_CHARS",
		apply:   func(cfg *Config, v any) { cfg.Extract.MaxContentChars = v.(int) },
		extract: func(cfg Config) any { return cfg.Extract.MaxContentChars },
	},
	{
		key: "api.token", typ: kString, env: "CLIPD_API_TOKEN",
		secret: true, account: "api_token",
		apply:   func(cfg *Config, v any) { cfg.API.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.API.Token },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kDuration:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if d, err := time.ParseDuration(v); err == nil {
					s.apply(cfg, d)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kDuration:
			if d, err := time.ParseDuration(raw); err == nil {
				s.apply(cfg, d)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
