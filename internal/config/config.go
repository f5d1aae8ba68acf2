package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pders01/searchable-files/internal/auth"
	"github.com/pders01/searchable-files/internal/models"
	"github.com/pders01/searchable-files/internal/search"
	"github.com/pders01/searchable-files/internal/watcher"
)

// AppName names the config directory and env prefix
const AppName = "searchable-files"

// SetDefaults registers every key's default on the global viper instance
func SetDefaults() {
	viper.SetDefault("auth.client_id", auth.DefaultClientID)
	viper.SetDefault("auth.base_url", auth.DefaultBaseURL)
	viper.SetDefault("search.base_url", search.DefaultBaseURL)
	viper.SetDefault("storage.path", "")
	viper.SetDefault("submit.rate_limit", 0.0)
	viper.SetDefault("submit.burst", 1)
	viper.SetDefault("watch.max_wait", watcher.DefaultMaxWait)
	viper.SetDefault("watch.backoff", watcher.PolicyFixed)
	viper.SetDefault("watch.interval", watcher.DefaultInterval)
	viper.SetDefault("watch.max_interval", watcher.DefaultMaxInterval)
	viper.SetDefault("log.level", "warn")
	viper.SetDefault("telemetry.otlp_endpoint", "")
	viper.SetDefault("telemetry.insecure", false)
	viper.SetDefault("http.timeout", search.DefaultTimeout)
}

// Dir returns ~/.config/searchable-files
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", AppName), nil
}

// GetClientID returns the OAuth2 native app client id
func GetClientID() string {
	return viper.GetString("auth.client_id")
}

func GetAuthBaseURL() string {
	return viper.GetString("auth.base_url")
}

func GetSearchBaseURL() string {
	return viper.GetString("search.base_url")
}

// GetStoragePath returns the token database path, defaulting to
// storage.db in the config directory. A leading ~ is expanded.
func GetStoragePath() (string, error) {
	p := viper.GetString("storage.path")
	if p == "" {
		dir, err := Dir()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, "storage.db"), nil
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		p = filepath.Join(home, strings.TrimPrefix(p[1:], "/"))
	}
	return p, nil
}

// GetSubmitRateLimit returns ingest requests per second; 0 means unlimited
func GetSubmitRateLimit() float64 {
	return viper.GetFloat64("submit.rate_limit")
}

func GetSubmitBurst() int {
	return viper.GetInt("submit.burst")
}

// GetWatchMaxWait returns the default poll budget per task
func GetWatchMaxWait() int {
	return viper.GetInt("watch.max_wait")
}

// GetWatchBackoff returns the poll policy name (fixed or exponential)
func GetWatchBackoff() string {
	return viper.GetString("watch.backoff")
}

func GetWatchInterval() time.Duration {
	return viper.GetDuration("watch.interval")
}

func GetWatchMaxInterval() time.Duration {
	return viper.GetDuration("watch.max_interval")
}

func GetHTTPTimeout() time.Duration {
	return viper.GetDuration("http.timeout")
}

func GetOTLPEndpoint() string {
	return viper.GetString("telemetry.otlp_endpoint")
}

func GetOTLPInsecure() bool {
	return viper.GetBool("telemetry.insecure")
}

// GetLogLevel parses log.level
func GetLogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log.level"))); err != nil {
		return slog.LevelWarn, fmt.Errorf("%w: log.level: %v", models.ErrConfig, err)
	}
	return level, nil
}
