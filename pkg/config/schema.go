// Package config loads, validates, and hot-reloads the veilgate
// configuration file. YAML is the primary format with a JSON fallback;
// environment variables override selected fields.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/veilgate/veilgate/pkg/domain"
)

// Duration parses YAML/JSON duration strings such as "5m" or "1h".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the on-disk configuration schema.
type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`

	// FieldPolicies maps field names to the roles/clients allowed to see
	// them. Unlisted fields are visible to everyone.
	FieldPolicies map[string][]string `yaml:"field_policies" json:"field_policies"`

	Monitoring MonitoringConfig `yaml:"monitoring" json:"monitoring"`

	// ExcludedPaths bypass response filtering entirely.
	ExcludedPaths []string `yaml:"excluded_paths" json:"excluded_paths"`
	// IntrospectionPaths are flagged with INTROSPECTION_REQUEST events.
	IntrospectionPaths []string `yaml:"introspection_paths" json:"introspection_paths"`

	Admission AdmissionConfig `yaml:"admission" json:"admission"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Listen string `yaml:"listen" json:"listen"`
	// Upstream is the URL requests are proxied to. Empty selects the
	// built-in sample handler.
	Upstream string `yaml:"upstream" json:"upstream"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Pretty bool   `yaml:"pretty" json:"pretty"`
}

// TelemetryConfig holds the OTLP trace exporter settings.
type TelemetryConfig struct {
	ServiceName  string `yaml:"service_name" json:"service_name"`
	OTLPEndpoint string `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	Environment  string `yaml:"environment" json:"environment"`
	Insecure     bool   `yaml:"insecure" json:"insecure"`
}

// MonitoringConfig holds the sliding-window thresholds.
type MonitoringConfig struct {
	SuspiciousThreshold    int      `yaml:"suspicious_threshold" json:"suspicious_threshold"`
	SuspiciousWindow       Duration `yaml:"suspicious_window" json:"suspicious_window"`
	HighFrequencyThreshold int      `yaml:"high_frequency_threshold" json:"high_frequency_threshold"`
	HighFrequencyWindow    Duration `yaml:"high_frequency_window" json:"high_frequency_window"`
	Retention              Duration `yaml:"retention" json:"retention"`
	IdleEviction           Duration `yaml:"idle_eviction" json:"idle_eviction"`
}

// AdmissionConfig holds the optional blocking rate limit settings.
type AdmissionConfig struct {
	Enabled           bool `yaml:"enabled" json:"enabled"`
	RequestsPerSecond int  `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int  `yaml:"burst" json:"burst"`
}

// Default returns the configuration used when fields are absent from the
// file. The field policy table ships here as data, not as logic.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Listen: ":8090",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "veilgate",
		},
		FieldPolicies: map[string][]string{
			"temperaturec": {"service", "admin"},
			"temperaturef": {"service", "admin"},
			"humidity":     {"service", "admin"},
			"pressure":     {"service", "admin"},
			"internalid":   {"admin"},
			"date":         {"web_user", "mobile_user", "service", "admin"},
			"summary":      {"web_user", "mobile_user", "service", "admin"},
			"location":     {"web_user", "mobile_user", "service", "admin"},
		},
		Monitoring: MonitoringConfig{
			SuspiciousThreshold:    10,
			SuspiciousWindow:       Duration(5 * time.Minute),
			HighFrequencyThreshold: 100,
			HighFrequencyWindow:    Duration(time.Hour),
			Retention:              Duration(time.Hour),
			IdleEviction:           Duration(30 * time.Minute),
		},
		ExcludedPaths: []string{
			"/connect/",
			"/.well-known/",
			"/swagger",
		},
		IntrospectionPaths: []string{
			"/connect/introspect",
		},
		Admission: AdmissionConfig{
			RequestsPerSecond: 100,
			Burst:             100,
		},
	}
}

// Parse decodes data over the defaults, applies environment overrides,
// and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		if jsonErr := json.Unmarshal(data, &cfg); jsonErr != nil {
			return Config{}, fmt.Errorf("config: failed to parse: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VEILGATE_LISTEN"); v != "" {
		cfg.Server.Listen = v
	}
	if v := os.Getenv("VEILGATE_UPSTREAM"); v != "" {
		cfg.Server.Upstream = v
	}
	if v := os.Getenv("VEILGATE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("VEILGATE_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("config: server.listen must not be empty")
	}
	m := c.Monitoring
	if m.SuspiciousThreshold < 0 || m.HighFrequencyThreshold < 0 {
		return fmt.Errorf("config: monitoring thresholds must not be negative")
	}
	if m.SuspiciousWindow <= 0 || m.HighFrequencyWindow <= 0 {
		return fmt.Errorf("config: monitoring windows must be positive")
	}
	if m.Retention < m.HighFrequencyWindow || m.Retention < m.SuspiciousWindow {
		return fmt.Errorf("config: monitoring.retention must cover the longest window")
	}
	if c.Admission.Enabled && c.Admission.RequestsPerSecond <= 0 {
		return fmt.Errorf("config: admission.requests_per_second must be positive when enabled")
	}
	for field, allowed := range c.FieldPolicies {
		if len(allowed) == 0 {
			return fmt.Errorf("config: field_policies.%s has an empty allow list; remove the entry to allow everyone", field)
		}
	}
	return nil
}

// Snapshot converts the file schema into the immutable domain view.
func (c Config) Snapshot() domain.Snapshot {
	policies := make(map[string][]string, len(c.FieldPolicies))
	for field, allowed := range c.FieldPolicies {
		policies[field] = append([]string(nil), allowed...)
	}

	return domain.Snapshot{
		FieldPolicies:      policies,
		ExcludedPaths:      append([]string(nil), c.ExcludedPaths...),
		IntrospectionPaths: append([]string(nil), c.IntrospectionPaths...),
		Thresholds: domain.Thresholds{
			Suspicious:          c.Monitoring.SuspiciousThreshold,
			SuspiciousWindow:    time.Duration(c.Monitoring.SuspiciousWindow),
			HighFrequency:       c.Monitoring.HighFrequencyThreshold,
			HighFrequencyWindow: time.Duration(c.Monitoring.HighFrequencyWindow),
			Retention:           time.Duration(c.Monitoring.Retention),
			IdleEviction:        time.Duration(c.Monitoring.IdleEviction),
		},
		Admission: domain.AdmissionConfig{
			Enabled:           c.Admission.Enabled,
			RequestsPerSecond: c.Admission.RequestsPerSecond,
			BurstSize:         c.Admission.Burst,
		},
	}
}
