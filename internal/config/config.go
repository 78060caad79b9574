// Package config provides centralized configuration for the ingestion daemon.
// Settings come from environment variables with defaults and are validated on
// startup so a misconfigured daemon fails before it touches the staging
// directory. Store credentials live separately in a profiles file (see
// profiles.go).
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all daemon configuration.
type Config struct {
	Watch   WatchConfig
	Store   StoreConfig
	Archive ArchiveConfig
	Geocode GeocodeConfig
	Journal JournalConfig
	Server  ServerConfig
	Logging LoggingConfig
}

// WatchConfig controls the staging directory watcher and the dispatcher.
type WatchConfig struct {
	// StagingDir is the directory watched (non-recursively) for new exports.
	StagingDir string `env:"STAGING_DIR" default:"./temp"`

	// ScanOnStart submits files already present in StagingDir at startup.
	ScanOnStart bool `env:"SCAN_ON_START" default:"true"`

	// RescanInterval re-submits lingering staging files periodically (0 disables).
	RescanInterval time.Duration `env:"WATCH_RESCAN_INTERVAL" default:"5m"`

	// QuietPeriod is how long a path must see no events before it is processed.
	QuietPeriod time.Duration `env:"QUIET_PERIOD" default:"500ms"`

	// MaxConcurrent bounds the number of files processed at once.
	MaxConcurrent int `env:"MAX_CONCURRENT" default:"4"`
}

// StoreConfig holds document store settings.
type StoreConfig struct {
	// ProfilesFile is the YAML file holding named connection profiles.
	ProfilesFile string `env:"STORE_PROFILES_FILE" default:"./config/profiles.yaml"`

	// WriteProfile names the profile used for inserts.
	WriteProfile string `env:"STORE_WRITE_PROFILE" default:"write"`

	// ReadProfile names the profile used by the warehouse reader.
	ReadProfile string `env:"STORE_READ_PROFILE" default:"read"`

	// Timeout bounds a single insert attempt.
	Timeout time.Duration `env:"STORE_TIMEOUT" default:"10s"`

	// RetryAttempts is the total number of insert attempts per document.
	RetryAttempts int `env:"STORE_RETRY_ATTEMPTS" default:"3"`

	// RetryBackoff is the delay before the second attempt; it doubles per attempt.
	RetryBackoff time.Duration `env:"STORE_RETRY_BACKOFF" default:"1s"`

	// MaxConns caps the connection pool of each profile.
	MaxConns int `env:"STORE_MAX_CONNS" default:"4"`

	// WriteEmpty controls whether documents with no surviving rows are inserted.
	WriteEmpty bool `env:"STORE_EMPTY_DOCUMENTS" default:"true"`
}

// ArchiveConfig controls what happens to source files after processing.
type ArchiveConfig struct {
	// BackupDir receives successfully committed files (created on demand).
	BackupDir string `env:"BACKUP_DIR" default:"./storage"`

	// FailedDir receives files whose commit failed. Empty leaves them in staging.
	FailedDir string `env:"FAILED_DIR"`

	// SettleDelay is the pause between a successful commit and the move.
	SettleDelay time.Duration `env:"ARCHIVE_SETTLE_DELAY" default:"5s"`

	// MoveAttempts is the number of tries for a backup move.
	MoveAttempts int `env:"ARCHIVE_MOVE_ATTEMPTS" default:"3"`

	// MoveBackoff is the delay between backup move attempts.
	MoveBackoff time.Duration `env:"ARCHIVE_MOVE_BACKOFF" default:"500ms"`
}

// GeocodeConfig configures optional reverse-geocoding enrichment.
type GeocodeConfig struct {
	Enabled   bool          `env:"GEOCODE_ENABLED" default:"false"`
	URL       string        `env:"GEOCODE_URL" default:"https://nominatim.openstreetmap.org"`
	Timeout   time.Duration `env:"GEOCODE_TIMEOUT" default:"5s"`
	UserAgent string        `env:"GEOCODE_USER_AGENT" default:"celllog-ingestd/1.0"`

	// CellLevel is the S2 cell level used to share lookups between nearby points.
	CellLevel int `env:"GEOCODE_CELL_LEVEL" default:"10"`
}

// JournalConfig locates the local outcome journal.
type JournalConfig struct {
	Path string `env:"JOURNAL_PATH" default:"./data/journal.db"`
}

// ServerConfig holds the operations HTTP server settings.
type ServerConfig struct {
	// Enabled turns the ops endpoints on (default: true)
	Enabled bool `env:"OPS_ENABLED" default:"true"`

	// Host is the interface to bind to (default: 127.0.0.1)
	Host string `env:"SERVER_HOST" default:"127.0.0.1"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading a request (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// APIKeys, when set, are required in X-API-Key on every endpoint but /healthz
	APIKeys []string `env:"OPS_API_KEYS"`

	// TrustedProxies is a comma-separated list of proxy CIDRs whose
	// X-Real-IP / X-Forwarded-For headers are believed
	TrustedProxies []string `env:"OPS_TRUSTED_PROXIES"`

	// ShutdownTimeout bounds graceful shutdown, including in-flight files (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
