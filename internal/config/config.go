// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration, loaded from config.yaml and
// FIELDSYNC_* environment variables.
type Config struct {
	Remote struct {
		URL     string        `mapstructure:"url"`
		APIKey  string        `mapstructure:"api_key"`
		Bucket  string        `mapstructure:"bucket"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"remote"`
	Sync struct {
		Interval    time.Duration `mapstructure:"interval"`
		MaxRetries  int           `mapstructure:"max_retries"`
		BackoffBase time.Duration `mapstructure:"backoff_base"`
		BackoffCap  time.Duration `mapstructure:"backoff_cap"`
	} `mapstructure:"sync"`
	Store struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"store"`
	Spool struct {
		Dir      string        `mapstructure:"dir"`
		Debounce time.Duration `mapstructure:"debounce"`
	} `mapstructure:"spool"`
	Status struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"status"`
	Logging struct {
		File       string `mapstructure:"file"`
		MaxSizeMB  int    `mapstructure:"max_size_mb"`
		MaxBackups int    `mapstructure:"max_backups"`
	} `mapstructure:"logging"`
}

// Load reads the configuration. Missing config files are fine; the
// remote URL and API key are the only hard requirements, and those are
// enforced by the commands that actually reach the network.
func Load() (Config, error) {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".fieldsync")

	viper.SetDefault("remote.bucket", "notecam-photos")
	viper.SetDefault("remote.timeout", "20s")
	viper.SetDefault("sync.interval", "30s")
	viper.SetDefault("sync.max_retries", 5)
	viper.SetDefault("sync.backoff_base", "5s")
	viper.SetDefault("sync.backoff_cap", "5m")
	viper.SetDefault("store.path", filepath.Join(dataDir, "fieldsync.db"))
	viper.SetDefault("spool.dir", filepath.Join(dataDir, "spool"))
	viper.SetDefault("spool.debounce", "200ms")
	viper.SetDefault("status.port", 8090)
	viper.SetDefault("logging.file", "")
	viper.SetDefault("logging.max_size_mb", 10)
	viper.SetDefault("logging.max_backups", 3)

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(dataDir)
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig()

	viper.SetEnvPrefix("FIELDSYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// explicit bindings
	_ = viper.BindEnv("remote.url", "FIELDSYNC_REMOTE_URL")
	_ = viper.BindEnv("remote.api_key", "FIELDSYNC_REMOTE_API_KEY")
	_ = viper.BindEnv("remote.bucket", "FIELDSYNC_REMOTE_BUCKET")
	_ = viper.BindEnv("remote.timeout", "FIELDSYNC_REMOTE_TIMEOUT")
	_ = viper.BindEnv("sync.interval", "FIELDSYNC_SYNC_INTERVAL")
	_ = viper.BindEnv("sync.max_retries", "FIELDSYNC_SYNC_MAX_RETRIES")
	_ = viper.BindEnv("sync.backoff_base", "FIELDSYNC_SYNC_BACKOFF_BASE")
	_ = viper.BindEnv("sync.backoff_cap", "FIELDSYNC_SYNC_BACKOFF_CAP")
	_ = viper.BindEnv("store.path", "FIELDSYNC_STORE_PATH")
	_ = viper.BindEnv("spool.dir", "FIELDSYNC_SPOOL_DIR")
	_ = viper.BindEnv("spool.debounce", "FIELDSYNC_SPOOL_DEBOUNCE")
	_ = viper.BindEnv("status.port", "FIELDSYNC_STATUS_PORT")
	_ = viper.BindEnv("logging.file", "FIELDSYNC_LOG_FILE")
	_ = viper.BindEnv("logging.max_size_mb", "FIELDSYNC_LOG_MAX_SIZE_MB")
	_ = viper.BindEnv("logging.max_backups", "FIELDSYNC_LOG_MAX_BACKUPS")

	var c Config
	if err := viper.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	c.Remote.URL = strings.TrimRight(strings.TrimSpace(c.Remote.URL), "/")
	return c, nil
}

// RequireRemote validates that the remote endpoint is configured.
// Commands that never leave the local store skip this check.
func (c Config) RequireRemote() error {
	if c.Remote.URL == "" {
		return fmt.Errorf("remote.url / FIELDSYNC_REMOTE_URL is required")
	}
	if c.Remote.APIKey == "" {
		return fmt.Errorf("remote.api_key / FIELDSYNC_REMOTE_API_KEY is required")
	}
	return nil
}
