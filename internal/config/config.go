// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config represents the harvester configuration loaded from a JSON file.
// Field names mirror the keys of the operator-maintained config file.
type Config struct {
	// Shop site
	BaseURL  string `json:"base_url" validate:"required,url"`
	LoginURL string `json:"login_url" validate:"required,url"`
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
	Headless *bool  `json:"headless_mode,omitempty"`

	// Files
	InputFile  string `json:"input_file" validate:"required"`
	OutputFile string `json:"output_file" validate:"required"`

	// Harvest behavior
	RSVQty            int             `json:"rsv_qty,omitempty" validate:"omitempty,min=1"`
	MaxRows           json.RawMessage `json:"max_rows,omitempty"`
	OverwriteExisting *bool           `json:"overwrite_existing,omitempty"`
	SaveInterval      *int            `json:"save_interval,omitempty" validate:"omitempty,min=0"`
	Concurrency       int             `json:"concurrency,omitempty" validate:"omitempty,min=1"`
	RequestTimeoutSec int             `json:"request_timeout_seconds,omitempty" validate:"omitempty,min=1"`
	RequestsPerSecond float64         `json:"requests_per_second,omitempty" validate:"omitempty,gt=0"`

	// FTP publishing (all three of host/username/password required to enable)
	FTPHost      string `json:"ftp_host,omitempty"`
	FTPUsername  string `json:"ftp_username,omitempty"`
	FTPPassword  string `json:"ftp_password,omitempty"`
	FTPPort      int    `json:"ftp_port,omitempty" validate:"omitempty,min=1,max=65535"`
	FTPDirectory string `json:"ftp_directory,omitempty"`
}

// Defaults applied by Load when the config file leaves a field unset.
const (
	DefaultConcurrency       = 6
	DefaultRSVQty            = 1
	DefaultSaveInterval      = 25
	DefaultFTPPort           = 21
	DefaultRequestTimeout    = 30 * time.Second
	DefaultRequestsPerSecond = 4.0
)

// Load reads and validates configuration from a JSON file.
// Relative paths are resolved against the current directory.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Concurrency == 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.RSVQty == 0 {
		c.RSVQty = DefaultRSVQty
	}
	if c.SaveInterval == nil {
		v := DefaultSaveInterval
		c.SaveInterval = &v
	}
	if c.FTPPort == 0 {
		c.FTPPort = DefaultFTPPort
	}
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = DefaultRequestsPerSecond
	}
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("config error: invalid fields: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("config error: %w", err)
	}

	if _, _, err := c.MaxRowsLimit(); err != nil {
		return err
	}

	return nil
}

// MaxRowsLimit interprets the max_rows field, which accepts either an
// integer or the string "all". The second return is false when no limit
// applies.
func (c *Config) MaxRowsLimit() (int, bool, error) {
	if len(c.MaxRows) == 0 {
		return 0, false, nil
	}

	var s string
	if err := json.Unmarshal(c.MaxRows, &s); err == nil {
		if strings.EqualFold(strings.TrimSpace(s), "all") {
			return 0, false, nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil || n < 0 {
			return 0, false, fmt.Errorf("config error: invalid max_rows value: %q", s)
		}
		return n, true, nil
	}

	var n int
	if err := json.Unmarshal(c.MaxRows, &n); err != nil || n < 0 {
		return 0, false, fmt.Errorf("config error: invalid max_rows value: %s", string(c.MaxRows))
	}
	return n, true, nil
}

// RequestTimeout returns the per-request HTTP timeout.
func (c *Config) RequestTimeout() time.Duration {
	if c.RequestTimeoutSec > 0 {
		return time.Duration(c.RequestTimeoutSec) * time.Second
	}
	return DefaultRequestTimeout
}

// HeadlessMode reports whether the login browser should run headless.
// Defaults to true when unset.
func (c *Config) HeadlessMode() bool {
	if c.Headless == nil {
		return true
	}
	return *c.Headless
}

// Overwrite reports whether an existing committed output file may be
// overwritten. Defaults to true when unset.
func (c *Config) Overwrite() bool {
	if c.OverwriteExisting == nil {
		return true
	}
	return *c.OverwriteExisting
}

// SaveEvery returns the partial-persist interval; 0 disables partial saves.
func (c *Config) SaveEvery() int {
	if c.SaveInterval == nil {
		return DefaultSaveInterval
	}
	return *c.SaveInterval
}
