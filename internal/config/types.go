package config

import "time"

// Config represents the complete shellmux configuration.
type Config struct {
	Service   ServiceConfig         `yaml:"service"`
	State     StateConfig           `yaml:"state"`
	API       APIConfig             `yaml:"api,omitempty"`
	Telemetry TelemetryConfig       `yaml:"telemetry,omitempty"`
	Slots     map[string]SlotConfig `yaml:"slots"`

	// SourcePath is the absolute path the config was loaded from.
	SourcePath string `yaml:"-"`
	// Fingerprint is the BLAKE3 hash of the raw config file.
	Fingerprint string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name            string        `yaml:"name"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
	PIDFile         string        `yaml:"pid_file"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StateConfig defines job journal settings.
type StateConfig struct {
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	APIKey string `yaml:"api_key"`
}

// TelemetryConfig enables OpenTelemetry export to stdout.
type TelemetryConfig struct {
	Enabled        bool          `yaml:"enabled"`
	MetricInterval time.Duration `yaml:"metric_interval"`
}

// SlotConfig defines how one named shell slot is created.
type SlotConfig struct {
	// Candidates are tried in order; empty means su --mount-master, su, sh.
	Candidates     [][]string    `yaml:"candidates,omitempty"`
	Timeout        time.Duration `yaml:"timeout"`
	RedirectStderr bool          `yaml:"redirect_stderr"`
	NonRoot        bool          `yaml:"non_root"`
	MountMaster    bool          `yaml:"mount_master"`
	RequireRoot    bool          `yaml:"require_root"`
	Init           []string      `yaml:"init,omitempty"`
	Fallback       string        `yaml:"fallback,omitempty"`
}

const (
	MainSlot     = "main"
	FallbackSlot = "fallback"
)

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:            "shellmux",
			LogLevel:        "info",
			LogFormat:       "json",
			PIDFile:         "./data/shellmux.lock",
			ShutdownTimeout: 10 * time.Second,
		},
		State: StateConfig{
			Path:      "./data/journal.db",
			Retention: 7 * 24 * time.Hour,
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8080",
		},
		Telemetry: TelemetryConfig{
			MetricInterval: 60 * time.Second,
		},
		Slots: DefaultSlots(),
	}
}

// DefaultSlots returns a root-preferring main slot backed by a plain sh fallback.
func DefaultSlots() map[string]SlotConfig {
	return map[string]SlotConfig{
		MainSlot: {
			Timeout:     DefaultSlotTimeout,
			MountMaster: true,
			Fallback:    FallbackSlot,
		},
		FallbackSlot: {
			Timeout: DefaultSlotTimeout,
			NonRoot: true,
		},
	}
}

// DefaultSlotTimeout bounds shell creation when a slot sets no timeout.
const DefaultSlotTimeout = 10 * time.Second
