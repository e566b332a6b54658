package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderCloudinary = "cloudinary"
	ProviderS3         = "s3"
)

type Config struct {
	API        APIConfig
	Media      MediaConfig
	Cloudinary CloudinaryConfig
	S3         S3Config
	Session    SessionConfig
	Storage    StorageConfig
	Player     PlayerConfig
	Voice      VoiceConfig
	Log        LogConfig
}

type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

type MediaConfig struct {
	Provider string
}

type CloudinaryConfig struct {
	CloudName    string
	UploadPreset string
	// UploadURL overrides the endpoint derived from CloudName.
	UploadURL string
}

type S3Config struct {
	Endpoint      string
	Bucket        string
	Region        string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
}

type SessionConfig struct {
	TTL time.Duration
}

type StorageConfig struct {
	DataDir string
}

type PlayerConfig struct {
	Port        int
	OpenBrowser bool
	SettleDelay time.Duration
}

type VoiceConfig struct {
	Command string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		API: APIConfig{
			BaseURL: "http://127.0.0.1:5000",
			Timeout: 60 * time.Second,
		},
		Media: MediaConfig{
			Provider: ProviderCloudinary,
		},
		Cloudinary: CloudinaryConfig{
			UploadPreset: "video_uploads",
		},
		S3: S3Config{
			Region: "eu-central-1",
		},
		Session: SessionConfig{
			TTL: 24 * time.Hour,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Player: PlayerConfig{
			Port:        4750,
			OpenBrowser: true,
			SettleDelay: 500 * time.Millisecond,
		},
		Voice: VoiceConfig{
			Command: "ffplay -nodisp -autoexit -loglevel quiet",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a .env file in the working directory, the
// JSON config file, environment variables and the secrets file.
//
// The config file lives at $XDG_CONFIG_HOME/reelchat/config.json and secrets
// at $XDG_DATA_HOME/reelchat/secrets.json. Environment variables (REELCHAT_*)
// override file values; a .env file only fills variables that are not
// already set.
func Load() (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}
	return loadWith(newPlatformBackend(), fileSecrets{path: secretsFilePath()})
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func loadWith(b ConfigBackend, secrets secretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	applySecrets(&cfg, secrets)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("missing required config: api.base_url (env %s)", envName("api.base_url"))
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid api.base_url %q: expected an absolute http(s) URL", c.API.BaseURL)
	}
	switch c.Media.Provider {
	case ProviderCloudinary:
	case ProviderS3:
		// Registered videos keep this URL, so it must not expire.
		if c.S3.PublicBaseURL == "" {
			return fmt.Errorf("missing required config for media.provider %q: s3.public_base_url (env %s)", ProviderS3, envName("s3.public_base_url"))
		}
		if u, err := url.Parse(c.S3.PublicBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid s3.public_base_url %q: expected an absolute http(s) URL", c.S3.PublicBaseURL)
		}
	default:
		return fmt.Errorf("invalid media.provider %q: want %q or %q", c.Media.Provider, ProviderCloudinary, ProviderS3)
	}
	return nil
}

// CloudinaryUploadURL returns the video upload endpoint for the configured cloud.
func (c Config) CloudinaryUploadURL() (string, error) {
	if c.Cloudinary.UploadURL != "" {
		return c.Cloudinary.UploadURL, nil
	}
	if c.Cloudinary.CloudName == "" {
		return "", fmt.Errorf("missing required config: cloudinary.cloud_name (env %s)", envName("cloudinary.cloud_name"))
	}
	return fmt.Sprintf("https://api.cloudinary.com/v1_1/%s/video/upload", c.Cloudinary.CloudName), nil
}

// SessionPath is the SQLite file that holds the signed-in session.
func (c Config) SessionPath() string {
	return filepath.Join(c.Storage.DataDir, "session.db")
}
