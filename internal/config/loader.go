package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/drone/envsubst"
	"gopkg.in/yaml.v3"
)

var (
	envVarPattern  = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)
	bareVarPattern = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
)

// Load reads and parses configuration from a file. A directory is searched
// for config.yaml.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	cfg.SourcePath = absPath
	cfg.Fingerprint = hashBytes(data)
	return cfg, nil
}

// Parse decodes, interpolates, defaults and validates raw YAML.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := interpolateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("failed to interpolate environment: %w", err)
	}
	applyConfigDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// interpolateConfig expands environment references in paths, credentials and
// candidate commands. Slot init commands are shell code and left untouched.
func interpolateConfig(cfg *Config) error {
	fields := []*string{
		&cfg.Service.PIDFile,
		&cfg.State.Path,
		&cfg.API.Listen,
		&cfg.API.Auth.APIKey,
	}
	for _, f := range fields {
		v, err := interpolateEnv(*f)
		if err != nil {
			return err
		}
		*f = v
	}
	for name, slot := range cfg.Slots {
		for i, argv := range slot.Candidates {
			for j, arg := range argv {
				v, err := interpolateEnv(arg)
				if err != nil {
					return fmt.Errorf("slot %q: %w", name, err)
				}
				slot.Candidates[i][j] = v
			}
		}
	}
	return nil
}

func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	cfg.Service.LogLevel = strings.ToLower(cfg.Service.LogLevel)
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}
	if cfg.Service.PIDFile == "" {
		cfg.Service.PIDFile = defaults.Service.PIDFile
	}
	if cfg.Service.ShutdownTimeout == 0 {
		cfg.Service.ShutdownTimeout = defaults.Service.ShutdownTimeout
	}

	if cfg.State.Path == "" {
		cfg.State.Path = defaults.State.Path
	}
	if cfg.State.Retention == 0 {
		cfg.State.Retention = defaults.State.Retention
	}

	if !cfg.API.Enabled && cfg.API.Listen == "" {
		cfg.API = defaults.API
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}

	if cfg.Telemetry.MetricInterval == 0 {
		cfg.Telemetry.MetricInterval = defaults.Telemetry.MetricInterval
	}

	if len(cfg.Slots) == 0 {
		cfg.Slots = DefaultSlots()
	}
	for name, slot := range cfg.Slots {
		if slot.Timeout == 0 {
			slot.Timeout = DefaultSlotTimeout
		}
		cfg.Slots[name] = slot
	}
	return cfg
}

// interpolateEnv replaces $VAR and ${VAR} with environment variable values.
// Bare $VAR is rewritten to ${VAR} first. Undefined variables are left as
// ${VAR} and rejected by validate.
func interpolateEnv(input string) (string, error) {
	input = bareVarPattern.ReplaceAllString(input, "$${${1}}")
	return envsubst.Eval(input, func(name string) string {
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return "${" + name + "}"
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.LogFormat != "json" && cfg.Service.LogFormat != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}
	for field, value := range map[string]string{
		"service.pid_file": cfg.Service.PIDFile,
		"state.path":       cfg.State.Path,
		"api.listen":       cfg.API.Listen,
	} {
		if err := checkUnresolved(field, value); err != nil {
			return err
		}
	}

	if cfg.API.Enabled {
		if cfg.API.Auth.APIKey == "" {
			return fmt.Errorf("api.auth.api_key is required when the API is enabled")
		}
		if err := checkUnresolved("api.auth.api_key", cfg.API.Auth.APIKey); err != nil {
			return err
		}
	}

	names := make([]string, 0, len(cfg.Slots))
	for name := range cfg.Slots {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		slot := cfg.Slots[name]
		if name == "" {
			return fmt.Errorf("slots: empty slot name")
		}
		if slot.Timeout < 0 {
			return fmt.Errorf("slot %q: timeout must be positive", name)
		}
		for i, argv := range slot.Candidates {
			if len(argv) == 0 || argv[0] == "" {
				return fmt.Errorf("slot %q: candidates[%d] is empty", name, i)
			}
			for _, arg := range argv {
				if err := checkUnresolved(fmt.Sprintf("slot %q candidates[%d]", name, i), arg); err != nil {
					return err
				}
			}
		}
		if slot.Fallback != "" {
			if slot.Fallback == name {
				return fmt.Errorf("slot %q: fallback refers to itself", name)
			}
			if _, ok := cfg.Slots[slot.Fallback]; !ok {
				return fmt.Errorf("slot %q: fallback %q is not defined", name, slot.Fallback)
			}
		}
	}
	return nil
}

func checkUnresolved(field, value string) error {
	if matches := envVarPattern.FindStringSubmatch(value); len(matches) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
	}
	return nil
}
