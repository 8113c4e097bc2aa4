// Package config loads the process configuration from an optional TOML file,
// defaults and environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/spachava753/msgsession/logging"
	"github.com/spachava753/msgsession/transport/imessage"
	"github.com/spachava753/msgsession/transport/smtpgw"
)

const (
	EnvHome         = "MSGSESSION_HOME"
	EnvMasterKey    = "MSGSESSION_MASTER_KEY"
	EnvSMTPPassword = "MSGSESSION_SMTP_PASSWORD"

	TransportSMTP     = "smtp"
	TransportIMessage = "imessage"

	defaultDirName = ".msgsession"
)

// Config is the full process configuration.
type Config struct {
	Auth      AuthConfig      `toml:"auth"`
	Log       logging.Config  `toml:"log"`
	Store     StoreConfig     `toml:"store"`
	Session   SessionConfig   `toml:"session"`
	Transport TransportConfig `toml:"transport"`
	SMTP      smtpgw.Config   `toml:"smtp"`
	IMessage  imessage.Config `toml:"imessage"`
}

// AuthConfig holds the process master key runs must present.
type AuthConfig struct {
	MasterKey string `toml:"master_key"`
}

// StoreConfig locates on-disk state.
type StoreConfig struct {
	Home           string `toml:"home"`
	CredentialsDir string `toml:"credentials_dir"`
	BlobPath       string `toml:"blob_path"`
}

// SessionConfig holds run defaults.
type SessionConfig struct {
	DefaultID                  string `toml:"default_id"`
	WaitTimeoutMillis          int    `toml:"wait_timeout_ms"`
	DelayBetweenMessagesMillis int    `toml:"delay_between_messages_ms"`
	CheckIntervalMillis        int    `toml:"check_interval_ms"`
}

// TransportConfig selects the transport implementation.
type TransportConfig struct {
	Kind   string `toml:"kind"`
	Suffix string `toml:"suffix"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Log: logging.DefaultConfig(),
		Session: SessionConfig{
			DefaultID:                  "default",
			WaitTimeoutMillis:          120000,
			DelayBetweenMessagesMillis: 2000,
			CheckIntervalMillis:        1000,
		},
		Transport: TransportConfig{Kind: TransportSMTP, Suffix: "@c.us"},
	}
}

// Load reads path over the defaults, applies environment overrides and
// fills derived paths. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		meta, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("config: reading %s failed: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, key := range undecoded {
				keys = append(keys, key.String())
			}
			return Config{}, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}
	cfg.applyEnv()
	if err := cfg.resolvePaths(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (cfg *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvHome)); v != "" {
		cfg.Store.Home = v
	}
	if v := os.Getenv(EnvMasterKey); v != "" {
		cfg.Auth.MasterKey = v
	}
	if v := os.Getenv(EnvSMTPPassword); v != "" {
		cfg.SMTP.Password = strings.ReplaceAll(v, " ", "")
	}
	cfg.Log.ApplyEnv()
}

func (cfg *Config) resolvePaths() error {
	if cfg.Store.Home == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("config: unable to resolve home directory: %w", err)
		}
		cfg.Store.Home = filepath.Join(home, defaultDirName)
	}
	if cfg.Store.CredentialsDir == "" {
		cfg.Store.CredentialsDir = filepath.Join(cfg.Store.Home, "credentials")
	}
	if cfg.Store.BlobPath == "" {
		cfg.Store.BlobPath = filepath.Join(cfg.Store.Home, "artifacts.db")
	}
	return nil
}

// Validate checks values that have no usable fallback.
func (cfg Config) Validate() error {
	switch cfg.Transport.Kind {
	case TransportSMTP, TransportIMessage:
	default:
		return fmt.Errorf("config: unknown transport kind %q", cfg.Transport.Kind)
	}
	if cfg.Session.WaitTimeoutMillis < 0 || cfg.Session.DelayBetweenMessagesMillis < 0 || cfg.Session.CheckIntervalMillis < 0 {
		return errors.New("config: session durations must not be negative")
	}
	if strings.TrimSpace(cfg.Session.DefaultID) == "" {
		return errors.New("config: session default_id is required")
	}
	return nil
}
