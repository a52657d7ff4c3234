// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads serverctl settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	serverctlerrors "github.com/tombee/serverctl/pkg/errors"
)

// Config is the complete serverctl configuration.
type Config struct {
	Installation InstallationConfig `yaml:"installation"`
	Connection   ConnectionConfig   `yaml:"connection"`
	Process      ProcessConfig      `yaml:"process"`
	Log          LogConfig          `yaml:"log"`
	Tracing      TracingConfig      `yaml:"tracing"`

	// Locale selects the message catalog (e.g. "en", "de").
	// Environment: SERVERCTL_LOCALE
	// Default: en
	Locale string `yaml:"locale"`
}

// InstallationConfig locates the server installation.
type InstallationConfig struct {
	// Root is the installation directory containing bin/ and logs/.
	// Environment: SERVERCTL_INSTALL_ROOT
	Root string `yaml:"root"`

	// AdminPort is the administration connector port probed after start.
	// Environment: SERVERCTL_ADMIN_PORT
	// Default: 4444
	AdminPort int `yaml:"admin_port"`

	// JavaHome is exported to the scripts as OPENDJ_JAVA_HOME.
	// Environment: JAVA_HOME
	JavaHome string `yaml:"java_home"`

	// StartedMarker is the token the server logs once started.
	// Default: org.opends.messages.core-135
	StartedMarker string `yaml:"started_marker"`

	// EventsFile receives the JSON-lines lifecycle event log.
	// Default: <root>/logs/serverctl-events.log
	EventsFile string `yaml:"events_file"`
}

// ConnectionConfig controls the post-start connectivity probe.
type ConnectionConfig struct {
	// Hostname is tried first on most probe rounds.
	// Environment: SERVERCTL_HOSTNAME
	// Default: localhost
	Hostname string `yaml:"hostname"`

	// Timeout bounds each connection attempt.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout"`

	// BindDN authenticates the probe. Without a password the probe
	// connects anonymously.
	// Environment: SERVERCTL_BIND_DN
	BindDN string `yaml:"bind_dn"`

	// PasswordEnv names the variable holding the bind password.
	// Default: SERVERCTL_BIND_PASSWORD
	PasswordEnv string `yaml:"password_env"`

	// PasswordFile is read when the variable is unset.
	PasswordFile string `yaml:"password_file"`

	// UseKeychain looks the password up in the OS keychain, keyed by
	// bind DN.
	UseKeychain bool `yaml:"use_keychain"`

	// FIPS restricts certificate trust to TrustCAFile.
	// Environment: SERVERCTL_FIPS
	FIPS bool `yaml:"fips"`

	// TrustCAFile is a PEM bundle used in FIPS mode.
	TrustCAFile string `yaml:"trust_ca_file"`
}

// ProcessConfig tunes script execution.
type ProcessConfig struct {
	// DrainTimeout bounds the wait for script output after exit.
	// Default: 5s
	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	// Environment: LOG_LEVEL
	// Default: warn
	Level string `yaml:"level"`

	// Format sets the output format (json, text).
	// Environment: LOG_FORMAT
	// Default: text
	Format string `yaml:"format"`

	// AddSource adds source file and line information to logs.
	// Environment: LOG_SOURCE
	AddSource bool `yaml:"add_source"`
}

// TracingConfig selects where lifecycle spans are exported.
type TracingConfig struct {
	// Exporter is one of none, console, otlp, otlp-http.
	// Environment: SERVERCTL_TRACE_EXPORTER
	// Default: none
	Exporter string `yaml:"exporter"`

	// Endpoint is the OTLP receiver address.
	// Environment: OTEL_EXPORTER_OTLP_ENDPOINT
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS to the receiver.
	Insecure bool `yaml:"insecure"`

	// CACertFile verifies the receiver certificate.
	CACertFile string `yaml:"ca_cert_file"`

	// Headers are sent with every export request.
	Headers map[string]string `yaml:"headers"`

	// SampleRate is the fraction of operations traced.
	// Default: 1.0
	SampleRate float64 `yaml:"sample_rate"`
}

const (
	defaultAdminPort     = 4444
	defaultHostname      = "localhost"
	defaultTimeout       = 30 * time.Second
	defaultDrainTimeout  = 5 * time.Second
	defaultStartedMarker = "org.opends.messages.core-135"
	defaultPasswordEnv   = "SERVERCTL_BIND_PASSWORD"
	defaultLocale        = "en"
)

// Default returns a Config with defaults for everything except the
// installation root.
func Default() *Config {
	return &Config{
		Installation: InstallationConfig{
			AdminPort:     defaultAdminPort,
			StartedMarker: defaultStartedMarker,
		},
		Connection: ConnectionConfig{
			Hostname:    defaultHostname,
			Timeout:     defaultTimeout,
			PasswordEnv: defaultPasswordEnv,
		},
		Process: ProcessConfig{
			DrainTimeout: defaultDrainTimeout,
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
		Tracing: TracingConfig{
			Exporter:   "none",
			SampleRate: 1.0,
		},
		Locale: defaultLocale,
	}
}

// Load reads configuration with precedence defaults < file < environment.
// An empty configPath uses the XDG config file when it exists.
func Load(configPath string) (*Config, error) {
	cfg, err := LoadPartial(configPath)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, &serverctlerrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}

	return cfg, nil
}

// LoadPartial is Load without validation, for commands that need only
// part of the configuration.
func LoadPartial(configPath string) (*Config, error) {
	cfg := Default()

	path := configPath
	if path == "" {
		if p, err := ConfigPath(); err == nil {
			if _, statErr := os.Stat(p); statErr == nil {
				path = p
			}
		}
	}

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, &serverctlerrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", path),
				Cause:  err,
			}
		}
	}

	cfg.loadFromEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	path, err := expandHome(path)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return serverctlerrors.Wrapf(err, "failed to read config file %s", path)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return serverctlerrors.Wrap(err, "failed to parse YAML")
	}

	return nil
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv("SERVERCTL_INSTALL_ROOT"); val != "" {
		c.Installation.Root = val
	}
	if val := os.Getenv("SERVERCTL_ADMIN_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Installation.AdminPort = port
		}
	}
	if val := os.Getenv("JAVA_HOME"); val != "" && c.Installation.JavaHome == "" {
		c.Installation.JavaHome = val
	}

	if val := os.Getenv("SERVERCTL_HOSTNAME"); val != "" {
		c.Connection.Hostname = val
	}
	if val := os.Getenv("SERVERCTL_BIND_DN"); val != "" {
		c.Connection.BindDN = val
	}
	if val := os.Getenv("SERVERCTL_FIPS"); val != "" {
		c.Connection.FIPS = val == "1" || strings.ToLower(val) == "true"
	}

	if val := os.Getenv("SERVERCTL_LOCALE"); val != "" {
		c.Locale = val
	}

	if val := os.Getenv("SERVERCTL_TRACE_EXPORTER"); val != "" {
		c.Tracing.Exporter = strings.ToLower(val)
	}
	if val := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); val != "" {
		c.Tracing.Endpoint = val
	}

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_SOURCE"); val != "" {
		c.Log.AddSource = val == "1" || strings.ToLower(val) == "true"
	}
}

// applyDefaults fills zero values left by a partial config file and
// resolves paths.
func (c *Config) applyDefaults() {
	if c.Installation.AdminPort == 0 {
		c.Installation.AdminPort = defaultAdminPort
	}
	if c.Installation.StartedMarker == "" {
		c.Installation.StartedMarker = defaultStartedMarker
	}
	if c.Connection.Hostname == "" {
		c.Connection.Hostname = defaultHostname
	}
	if c.Connection.Timeout == 0 {
		c.Connection.Timeout = defaultTimeout
	}
	if c.Connection.PasswordEnv == "" {
		c.Connection.PasswordEnv = defaultPasswordEnv
	}
	if c.Process.DrainTimeout == 0 {
		c.Process.DrainTimeout = defaultDrainTimeout
	}
	if c.Locale == "" {
		c.Locale = defaultLocale
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = "none"
	}

	for _, p := range []*string{
		&c.Installation.Root,
		&c.Installation.EventsFile,
		&c.Connection.PasswordFile,
		&c.Connection.TrustCAFile,
		&c.Tracing.CACertFile,
	} {
		if expanded, err := expandHome(*p); err == nil {
			*p = expanded
		}
	}

	if c.Installation.EventsFile == "" && c.Installation.Root != "" {
		c.Installation.EventsFile = filepath.Join(c.Installation.Root, "logs", "serverctl-events.log")
	}
}

// Validate checks the configuration for values the workflows cannot use.
func (c *Config) Validate() error {
	var errs []error

	if c.Installation.Root == "" {
		errs = append(errs, &serverctlerrors.ValidationError{
			Field:      "installation.root",
			Message:    "installation root is required",
			Suggestion: "set installation.root in the config file or SERVERCTL_INSTALL_ROOT",
		})
	}
	if c.Installation.AdminPort < 1 || c.Installation.AdminPort > 65535 {
		errs = append(errs, &serverctlerrors.ValidationError{
			Field:   "installation.admin_port",
			Message: fmt.Sprintf("port %d is out of range", c.Installation.AdminPort),
		})
	}
	if c.Connection.Timeout < 0 {
		errs = append(errs, &serverctlerrors.ValidationError{
			Field:   "connection.timeout",
			Message: "timeout must be positive",
		})
	}
	if c.Process.DrainTimeout < 0 {
		errs = append(errs, &serverctlerrors.ValidationError{
			Field:   "process.drain_timeout",
			Message: "drain timeout must be positive",
		})
	}
	if c.Connection.FIPS && c.Connection.TrustCAFile == "" {
		errs = append(errs, &serverctlerrors.ValidationError{
			Field:      "connection.trust_ca_file",
			Message:    "FIPS mode requires a trust CA file",
			Suggestion: "set connection.trust_ca_file to a PEM bundle",
		})
	}
	switch c.Tracing.Exporter {
	case "none", "console":
	case "otlp", "otlp-http":
		if c.Tracing.Endpoint == "" {
			errs = append(errs, &serverctlerrors.ValidationError{
				Field:      "tracing.endpoint",
				Message:    fmt.Sprintf("%s exporter requires an endpoint", c.Tracing.Exporter),
				Suggestion: "set tracing.endpoint or OTEL_EXPORTER_OTLP_ENDPOINT",
			})
		}
	default:
		errs = append(errs, &serverctlerrors.ValidationError{
			Field:   "tracing.exporter",
			Message: fmt.Sprintf("unknown exporter %q", c.Tracing.Exporter),
		})
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		errs = append(errs, &serverctlerrors.ValidationError{
			Field:   "tracing.sample_rate",
			Message: "sample rate must be between 0 and 1",
		})
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, &serverctlerrors.ValidationError{
			Field:   "log.format",
			Message: fmt.Sprintf("unknown format %q", c.Log.Format),
		})
	}

	return errors.Join(errs...)
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", serverctlerrors.Wrap(err, "failed to get home directory")
	}
	return filepath.Join(home, path[2:]), nil
}
