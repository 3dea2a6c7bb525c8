package tapfix

import (
	"fmt"
	"io/ioutil"
	"time"

	"gopkg.in/yaml.v2"
)

// A sensible default configuration for the fixture server in YAML
var defaultServerConfigYAML = `
api:
    bind:   127.0.0.1:5050
    rate_limit:
        cps:    200.0
        burst:  50

scenarios:
    ttl:        1800
    cleanup:    60

registry:
    strict: false

output:
    format: json
`

// RateLimitConfig describes the configuration for the API rate limiter.
type RateLimitConfig struct {
	CPS   float64 `yaml:"cps"` // Calls per second, 0 disables limiting
	Burst int     `yaml:"burst"`
}

// APIConfig describes the parameters for the JSON HTTP API.
type APIConfig struct {
	Bind      string          `yaml:"bind"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// ScenariosConfig describes how long idle scenarios are kept, in seconds.
type ScenariosConfig struct {
	TTL     int64 `yaml:"ttl"`
	Cleanup int64 `yaml:"cleanup"`
}

// TTLDuration converts TTL to a time.Duration, falling back to the default.
func (sc ScenariosConfig) TTLDuration() time.Duration {
	if sc.TTL <= 0 {
		return DefaultScenarioTTL
	}
	return time.Duration(sc.TTL) * time.Second
}

// CleanupDuration converts Cleanup to a time.Duration, falling back to the
// default.
func (sc ScenariosConfig) CleanupDuration() time.Duration {
	if sc.Cleanup <= 0 {
		return DefaultScenarioCleanup
	}
	return time.Duration(sc.Cleanup) * time.Second
}

// RegistryConfig describes how registries treat unrecognised options.
type RegistryConfig struct {
	Strict bool `yaml:"strict"`
}

// OutputConfig describes the default document format.
type OutputConfig struct {
	Format string `yaml:"format"`
}

// ServerConfig wraps all of the above and defines the overall configuration
// for a fixture server.
type ServerConfig struct {
	API       APIConfig       `yaml:"api"`
	Scenarios ScenariosConfig `yaml:"scenarios"`
	Registry  RegistryConfig  `yaml:"registry"`
	Output    OutputConfig    `yaml:"output"`
}

// RegistryOptions returns the options every scenario registry is built with.
func (cfg *ServerConfig) RegistryOptions() []RegistryOption {
	return []RegistryOption{WithStrict(cfg.Registry.Strict)}
}

//
// Config Creators
//

// NewDefaultServerConfig provides a sensible default server config.
func NewDefaultServerConfig() (*ServerConfig, error) {
	return NewServerConfig([]byte(defaultServerConfigYAML))
}

// NewServerConfig provides a parsed ServerConfig based on the provided data,
// layered over the defaults so partial files work.
//
// `data` is expected to be a byte slice version of a YAML ServerConfig.
func NewServerConfig(data []byte) (*ServerConfig, error) {
	cfg := &ServerConfig{}
	if err := yaml.Unmarshal([]byte(defaultServerConfigYAML), cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse default server config: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse server config: %w", err)
	}
	switch cfg.Output.Format {
	case "json", "yaml":
	default:
		return cfg, fmt.Errorf("unsupported output format %q", cfg.Output.Format)
	}
	return cfg, nil
}

// LoadServerConfig reads a ServerConfig from path, or returns the default
// when path is empty.
func LoadServerConfig(path string) (*ServerConfig, error) {
	if path == "" {
		return NewDefaultServerConfig()
	}
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read server config: %w", err)
	}
	return NewServerConfig(data)
}
