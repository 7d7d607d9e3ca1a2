package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvBackendURL = "BANDCAL_BACKEND_URL"
	EnvAnonKey    = "BANDCAL_ANON_KEY"
	EnvListen     = "BANDCAL_LISTEN"
	EnvLogLevel   = "BANDCAL_LOG_LEVEL"
)

// BackendConfig points at the hosted backend (auth + table storage).
type BackendConfig struct {
	// URL is the project base URL, e.g. https://xyz.supabase.co.
	URL string `yaml:"url" json:"url"`
	// AnonKey is the public API key sent as `apikey` on every request.
	AnonKey string `yaml:"anon_key" json:"anon_key"`
	// Timeout bounds a single HTTP round trip.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// RequestsPerSecond throttles outgoing calls. Zero disables throttling.
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
}

// SessionConfig controls session persistence and the refresh loop.
type SessionConfig struct {
	// File is where the current session is persisted between runs.
	File string `yaml:"file" json:"file"`
	// Refresh is a cron spec for the periodic refresh check.
	Refresh string `yaml:"refresh" json:"refresh"`
	// RefreshThreshold is how close to expiry a session must be before
	// the refresh check renews it.
	RefreshThreshold time.Duration `yaml:"refresh_threshold" json:"refresh_threshold"`
}

// ExportConfig shapes the generated iCalendar file.
type ExportConfig struct {
	ProdID        string        `yaml:"prod_id" json:"prod_id"`
	UIDDomain     string        `yaml:"uid_domain" json:"uid_domain"`
	EventDuration time.Duration `yaml:"event_duration" json:"event_duration"`
	FileName      string        `yaml:"file_name" json:"file_name"`
}

// ICSConfig describes a single ICS subscription source used by import.
type ICSConfig struct {
	URL  string `yaml:"url" json:"url"`
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the companion server.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// LogConfig selects the logger flavour.
type LogConfig struct {
	Env   string `yaml:"env" json:"env"`
	Level string `yaml:"level" json:"level"`
}

// Config is the top-level application configuration.
type Config struct {
	Backend BackendConfig `yaml:"backend" json:"backend"`
	Session SessionConfig `yaml:"session" json:"session"`
	Export  ExportConfig  `yaml:"export" json:"export"`

	// Timezone is the IANA zone event dates and times are interpreted in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// Listen is the companion HTTP server address.
	Listen string `yaml:"listen" json:"listen"`

	// ImportHorizonDays bounds recurrence expansion on ICS import.
	ImportHorizonDays int `yaml:"import_horizon_days" json:"import_horizon_days"`

	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	Log LogConfig `yaml:"log" json:"log"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			Timeout:           15 * time.Second,
			RequestsPerSecond: 10,
		},
		Session: SessionConfig{
			File:             defaultSessionFile(),
			Refresh:          "@every 5m",
			RefreshThreshold: 300 * time.Second,
		},
		Export: ExportConfig{
			ProdID:        "-//LaCantat//Evenimente//RO",
			UIDDomain:     "lacantat.ro",
			EventDuration: 2 * time.Hour,
			FileName:      "lacantat-evenimente.ics",
		},
		Timezone:          "Europe/Bucharest",
		Listen:            "127.0.0.1:8080",
		ImportHorizonDays: 180,
		ICS:               []ICSConfig{},
		Log:               LogConfig{Env: "dev", Level: "info"},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Backend.Timeout <= 0 {
		c.Backend.Timeout = d.Backend.Timeout
	}
	if c.Backend.RequestsPerSecond < 0 {
		c.Backend.RequestsPerSecond = 0
	}
	if c.Session.File == "" {
		c.Session.File = d.Session.File
	}
	if c.Session.Refresh == "" {
		c.Session.Refresh = d.Session.Refresh
	}
	if c.Session.RefreshThreshold <= 0 {
		c.Session.RefreshThreshold = d.Session.RefreshThreshold
	}
	if c.Export.ProdID == "" {
		c.Export.ProdID = d.Export.ProdID
	}
	if c.Export.UIDDomain == "" {
		c.Export.UIDDomain = d.Export.UIDDomain
	}
	if c.Export.EventDuration <= 0 {
		c.Export.EventDuration = d.Export.EventDuration
	}
	if c.Export.FileName == "" {
		c.Export.FileName = d.Export.FileName
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.ImportHorizonDays <= 0 {
		c.ImportHorizonDays = d.ImportHorizonDays
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	switch c.Log.Env {
	case "dev", "prod":
	default:
		c.Log.Env = "dev"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Validate reports whether the backend is reachable in principle.
func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return errors.New("backend.url is not set (config file or " + EnvBackendURL + ")")
	}
	if c.Backend.AnonKey == "" {
		return errors.New("backend.anon_key is not set (config file or " + EnvAnonKey + ")")
	}
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - A .env file next to the working directory is loaded if present.
//   - If the config file does not exist, a default config is written
//     with 0600 perms and returned.
//   - Environment variables override file values.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	// Missing .env is the normal case.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			cfg.applyEnv()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	cfg.applyEnv()

	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvBackendURL); v != "" {
		c.Backend.URL = v
	}
	if v := os.Getenv(EnvAnonKey); v != "" {
		c.Backend.AnonKey = v
	}
	if v := os.Getenv(EnvListen); v != "" {
		c.Listen = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("BANDCAL_REQUESTS_PER_SECOND"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			c.Backend.RequestsPerSecond = f
		}
	}
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Writes atomically via a temp file + rename, final perms 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}

// WriteFileAtomic writes data to path through a temp file in the same
// directory and renames it into place with 0600 permissions.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".bandcal-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// DefaultPath is where the CLI looks for its config file when --config is
// not given.
func DefaultPath() string {
	return filepath.Join(userDir(), "config.yaml")
}

func defaultSessionFile() string {
	return filepath.Join(userDir(), "session.json")
}

func userDir() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return filepath.Join(".", "var")
	}
	return filepath.Join(dir, "bandcal")
}
