package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// LookupFunc resolves a configuration key. It has the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
func Load() (*Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom reads configuration through lookup instead of the process
// environment. Empty values count as unset.
func LoadFrom(lookup LookupFunc) (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem(), lookup); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// loadStruct recursively populates struct fields from the lookup.
func loadStruct(v reflect.Value, lookup LookupFunc) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal, lookup); err != nil {
				return err
			}
			continue
		}

		key := field.Tag.Get("env")
		if key == "" {
			continue
		}

		value, _ := lookup(key)
		if value == "" {
			if alt := field.Tag.Get("envAlt"); alt != "" {
				value, _ = lookup(alt)
			}
		}

		if value == "" {
			if field.Tag.Get("required") == "true" {
				return fmt.Errorf("required environment variable %s is not set", key)
			}
			value = field.Tag.Get("default")
		}

		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", key, value, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(strings.TrimSpace(value))

	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(strings.TrimSpace(value))
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(i)

	case reflect.Bool:
		b, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				result = append(result, p)
			}
		}
		field.Set(reflect.ValueOf(result))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is usable.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Watch
	if strings.TrimSpace(c.Watch.StagingDir) == "" {
		errs = append(errs, "STAGING_DIR is required")
	}
	if c.Watch.MaxConcurrent <= 0 {
		errs = append(errs, "MAX_CONCURRENT must be positive")
	}
	if c.Watch.QuietPeriod < 0 {
		errs = append(errs, "QUIET_PERIOD must be non-negative")
	}
	if c.Watch.RescanInterval < 0 {
		errs = append(errs, "WATCH_RESCAN_INTERVAL must be non-negative")
	}

	// Store
	if c.Store.ProfilesFile == "" {
		errs = append(errs, "STORE_PROFILES_FILE is required")
	}
	if c.Store.WriteProfile == "" {
		errs = append(errs, "STORE_WRITE_PROFILE is required")
	}
	if c.Store.Timeout <= 0 {
		errs = append(errs, "STORE_TIMEOUT must be positive")
	}
	if c.Store.RetryAttempts <= 0 {
		errs = append(errs, "STORE_RETRY_ATTEMPTS must be positive")
	}
	if c.Store.RetryBackoff < 0 {
		errs = append(errs, "STORE_RETRY_BACKOFF must be non-negative")
	}
	if c.Store.MaxConns <= 0 {
		errs = append(errs, "STORE_MAX_CONNS must be positive")
	}

	// Archive
	if strings.TrimSpace(c.Archive.BackupDir) == "" {
		errs = append(errs, "BACKUP_DIR is required")
	}
	if c.Archive.BackupDir != "" && samePath(c.Archive.BackupDir, c.Watch.StagingDir) {
		errs = append(errs, "BACKUP_DIR must differ from STAGING_DIR")
	}
	if c.Archive.FailedDir != "" && samePath(c.Archive.FailedDir, c.Watch.StagingDir) {
		errs = append(errs, "FAILED_DIR must differ from STAGING_DIR")
	}
	if c.Archive.SettleDelay < 0 {
		errs = append(errs, "ARCHIVE_SETTLE_DELAY must be non-negative")
	}
	if c.Archive.MoveAttempts <= 0 {
		errs = append(errs, "ARCHIVE_MOVE_ATTEMPTS must be positive")
	}

	// Geocode
	if c.Geocode.Enabled {
		if c.Geocode.URL == "" {
			errs = append(errs, "GEOCODE_URL is required when geocoding is enabled")
		}
		if c.Geocode.Timeout <= 0 {
			errs = append(errs, "GEOCODE_TIMEOUT must be positive when geocoding is enabled")
		}
	}
	if c.Geocode.CellLevel < 0 || c.Geocode.CellLevel > 30 {
		errs = append(errs, fmt.Sprintf("GEOCODE_CELL_LEVEL (%d) must be 0-30", c.Geocode.CellLevel))
	}

	// Journal
	if c.Journal.Path == "" {
		errs = append(errs, "JOURNAL_PATH is required")
	}

	// Server
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// Logging
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

func samePath(a, b string) bool {
	return cleanPath(a) == cleanPath(b)
}

func cleanPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

// String returns a loggable summary of the config.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Watch: {StagingDir: %q, MaxConcurrent: %d, QuietPeriod: %s}, ",
		c.Watch.StagingDir, c.Watch.MaxConcurrent, c.Watch.QuietPeriod)
	fmt.Fprintf(&b, "Store: {ProfilesFile: %q, Write: %q, Read: %q, Timeout: %s, Attempts: %d}, ",
		c.Store.ProfilesFile, c.Store.WriteProfile, c.Store.ReadProfile, c.Store.Timeout, c.Store.RetryAttempts)
	fmt.Fprintf(&b, "Archive: {BackupDir: %q, FailedDir: %q, SettleDelay: %s}, ",
		c.Archive.BackupDir, c.Archive.FailedDir, c.Archive.SettleDelay)
	fmt.Fprintf(&b, "Geocode: {Enabled: %v}, ", c.Geocode.Enabled)
	fmt.Fprintf(&b, "Server: {Enabled: %v, Addr: %q, APIKeys: %d configured}, ",
		c.Server.Enabled, c.Server.Addr(), len(c.Server.APIKeys))
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}
