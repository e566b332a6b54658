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
	kBool
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "api.base_url", typ: kString, env: "REELCHAT_API_URL",
		apply:   func(cfg *Config, v any) { cfg.API.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.API.BaseURL },
	},
	{
		key: "api.timeout", typ: kDuration, env: "REELCHAT_API_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.API.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.API.Timeout },
	},
	{
		key: "media.provider", typ: kString, env: "REELCHAT_MEDIA_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.Media.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.Media.Provider },
	},
	{
		key: "cloudinary.cloud_name", typ: kString, env: "REELCHAT_CLOUDINARY_CLOUD_NAME",
		apply:   func(cfg *Config, v any) { cfg.Cloudinary.CloudName = v.(string) },
		extract: func(cfg Config) any { return cfg.Cloudinary.CloudName },
	},
	{
		key: "cloudinary.upload_preset", typ: kString, env: "REELCHAT_CLOUDINARY_UPLOAD_PRESET",
		apply:   func(cfg *Config, v any) { cfg.Cloudinary.UploadPreset = v.(string) },
		extract: func(cfg Config) any { return cfg.Cloudinary.UploadPreset },
	},
	{
		key: "cloudinary.upload_url", typ: kString, env: "REELCHAT_CLOUDINARY_UPLOAD_URL",
		apply:   func(cfg *Config, v any) { cfg.Cloudinary.UploadURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Cloudinary.UploadURL },
	},
	{
		key: "s3.endpoint", typ: kString, env: "REELCHAT_S3_ENDPOINT",
		apply:   func(cfg *Config, v any) { cfg.S3.Endpoint = v.(string) },
		extract: func(cfg Config) any { return cfg.S3.Endpoint },
	},
	{
		key: "s3.bucket", typ: kString, env: "REELCHAT_S3_BUCKET",
		apply:   func(cfg *Config, v any) { cfg.S3.Bucket = v.(string) },
		extract: func(cfg Config) any { return cfg.S3.Bucket },
	},
	{
		key: "s3.region", typ: kString, env: "REELCHAT_S3_REGION",
		apply:   func(cfg *Config, v any) { cfg.S3.Region = v.(string) },
		extract: func(cfg Config) any { return cfg.S3.Region },
	},
	{
		key: "s3.access_key", typ: kString, env: "REELCHAT_S3_ACCESS_KEY",
		apply:   func(cfg *Config, v any) { cfg.S3.AccessKey = v.(string) },
		extract: func(cfg Config) any { return cfg.S3.AccessKey },
	},
	{
		key: "s3.secret_key", typ: kString, env: "REELCHAT_S3_SECRET_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.S3.SecretKey = v.(string) },
		extract: func(cfg Config) any { return cfg.S3.SecretKey },
	},
	{
		key: "s3.public_base_url", typ: kString, env: "REELCHAT_S3_PUBLIC_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.S3.PublicBaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.S3.PublicBaseURL },
	},
	{
		key: "session.ttl", typ: kDuration, env: "REELCHAT_SESSION_TTL",
		apply:   func(cfg *Config, v any) { cfg.Session.TTL = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Session.TTL },
	},
	{
		key: "storage.data_dir", typ: kString, env: "REELCHAT_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "player.port", typ: kInt, env: "REELCHAT_PLAYER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Player.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Player.Port },
	},
	{
		key: "player.open_browser", typ: kBool, env: "REELCHAT_PLAYER_OPEN_BROWSER",
		apply:   func(cfg *Config, v any) { cfg.Player.OpenBrowser = v.(bool) },
		extract: func(cfg Config) any { return cfg.Player.OpenBrowser },
	},
	{
		key: "player.settle_delay", typ: kDuration, env: "REELCHAT_PLAYER_SETTLE_DELAY",
		apply:   func(cfg *Config, v any) { cfg.Player.SettleDelay = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Player.SettleDelay },
	},
	{
		key: "voice.command", typ: kString, env: "REELCHAT_VOICE_COMMAND",
		apply:   func(cfg *Config, v any) { cfg.Voice.Command = v.(string) },
		extract: func(cfg Config) any { return cfg.Voice.Command },
	},
	{
		key: "log.level", typ: kString, env: "REELCHAT_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
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

func envName(key string) string {
	s, _ := lookupSpec(key)
	return s.env
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
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
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
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
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

// applySecrets fills secret keys that the environment left empty.
func applySecrets(cfg *Config, store secretStore) {
	for _, s := range specs {
		if !s.secret {
			continue
		}
		if v, _ := s.extract(*cfg).(string); v != "" {
			continue
		}
		if v, err := store.Get(secretsService, s.key); err == nil && v != "" {
			s.apply(cfg, v)
		}
	}
}
