// Package config loads the engine's configuration: a YAML file read
// with Viper, strict environment overrides, and secrets resolved
// through the system keyring with environment fallbacks.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"github.com/dispatchware/mailsync/internal/credential"
	"github.com/dispatchware/mailsync/internal/vault"
)

// Keyring entry names for process-level secrets. Exported so the
// command layer can seed them.
const (
	SecretVaultKey   = "vault-key"
	SecretSyncSecret = "sync-secret"
)

// IMAPConfig is the mail server every account connects to. One shared
// host is assumed for all accounts; per-account hosts would move these
// fields onto the account record.
type IMAPConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	TLS  bool   `mapstructure:"tls"`
}

// HTTPConfig is the trigger endpoints' listen address.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// StorageConfig locates the message database and attachment blobs.
type StorageConfig struct {
	DBPath  string `mapstructure:"db_path"`
	BlobDir string `mapstructure:"blob_dir"`
}

// SyncConfig tunes the engine.
type SyncConfig struct {
	// AccountTimeoutSec bounds one account's pass; 0 disables.
	AccountTimeoutSec int `mapstructure:"account_timeout_sec"`
	// Workers bounds concurrent accounts in a bulk pass; 1 = sequential.
	Workers int `mapstructure:"workers"`
}

// Config is the top-level engine configuration.
type Config struct {
	HTTP    HTTPConfig    `mapstructure:"http"`
	IMAP    IMAPConfig    `mapstructure:"imap"`
	Storage StorageConfig `mapstructure:"storage"`
	Sync    SyncConfig    `mapstructure:"sync"`

	// SyncSecret authorizes the scheduled bulk trigger. Resolved from
	// the keyring or MAILSYNC_SYNC_SECRET, never from the YAML file.
	SyncSecret string `mapstructure:"-"`

	// VaultKey is the 32-byte AES key protecting stored passwords.
	// Resolved (hex-encoded) from the keyring or MAILSYNC_VAULT_KEY.
	VaultKey []byte `mapstructure:"-"`
}

// AccountTimeout returns the per-account deadline as a duration.
func (c *Config) AccountTimeout() time.Duration {
	return time.Duration(c.Sync.AccountTimeoutSec) * time.Second
}

// DefaultPath returns the default configuration file location,
// ~/.config/mailsync/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailsync", "config.yaml")
}

// Load reads configuration from path. A missing file yields defaults;
// environment variables override file values; secrets resolve last.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("imap.host", "localhost")
	v.SetDefault("imap.port", "993")
	v.SetDefault("imap.tls", true)
	v.SetDefault("storage.db_path", "mailsync.db")
	v.SetDefault("storage.blob_dir", "attachments")
	v.SetDefault("sync.account_timeout_sec", 300)
	v.SetDefault("sync.workers", 1)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); !ok {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := resolveSecrets(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides lets deployment environments override file values
// without editing the YAML.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("MAILSYNC_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("MAILSYNC_IMAP_HOST"); v != "" {
		cfg.IMAP.Host = v
	}
	if v := os.Getenv("MAILSYNC_IMAP_PORT"); v != "" {
		cfg.IMAP.Port = v
	}
	if v := os.Getenv("MAILSYNC_IMAP_TLS"); v != "" {
		useTLS, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing MAILSYNC_IMAP_TLS: %w", err)
		}
		cfg.IMAP.TLS = useTLS
	}
	if v := os.Getenv("MAILSYNC_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("MAILSYNC_BLOB_DIR"); v != "" {
		cfg.Storage.BlobDir = v
	}
	if v := os.Getenv("MAILSYNC_SYNC_WORKERS"); v != "" {
		workers, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing MAILSYNC_SYNC_WORKERS: %w", err)
		}
		cfg.Sync.Workers = workers
	}
	if v := os.Getenv("MAILSYNC_SYNC_ACCOUNT_TIMEOUT_SEC"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing MAILSYNC_SYNC_ACCOUNT_TIMEOUT_SEC: %w", err)
		}
		cfg.Sync.AccountTimeoutSec = seconds
	}
	return nil
}

// resolveSecrets fills SyncSecret and VaultKey from the keyring,
// falling back to environment variables for containerized deployments.
func resolveSecrets(cfg *Config) error {
	secret, err := secretValue(SecretSyncSecret, "MAILSYNC_SYNC_SECRET")
	if err != nil {
		return fmt.Errorf("resolving sync secret: %w", err)
	}
	cfg.SyncSecret = secret

	keyHex, err := secretValue(SecretVaultKey, "MAILSYNC_VAULT_KEY")
	if err != nil {
		return fmt.Errorf("resolving vault key: %w", err)
	}

	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return fmt.Errorf("decoding vault key: %w", err)
	}
	if len(key) != vault.KeySize {
		return fmt.Errorf("vault key must be %d bytes, got %d", vault.KeySize, len(key))
	}
	cfg.VaultKey = key

	return nil
}

// secretValue tries the environment first (explicit deployment intent)
// and falls back to the system keyring.
func secretValue(keyringKey, envVar string) (string, error) {
	if v := os.Getenv(envVar); v != "" {
		return v, nil
	}

	value, err := credential.Get(keyringKey)
	if err != nil {
		return "", fmt.Errorf("secret not in %s and keyring lookup failed: %w", envVar, err)
	}
	if value == "" {
		return "", fmt.Errorf("secret %q is empty", keyringKey)
	}
	return value, nil
}
