// Package config loads the proxy configuration from defaults, an optional
// TOML file, and environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces the environment variables consulted by Load, e.g.
// CONVERSE_PROXY_PORT=8080 or CONVERSE_PROXY_AWS_REGION=eu-central-1.
const envPrefix = "CONVERSE_PROXY_"

// Config is the fully resolved proxy configuration.
type Config struct {
	Host string `koanf:"host" validate:"required"`
	Port int    `koanf:"port" validate:"gte=1,lte=65535"`

	// AWSRegion overrides the region resolved from the ambient AWS
	// configuration when set.
	AWSRegion string `koanf:"aws_region"`

	// InferenceProfilePrefixes are stripped from model ids for backend
	// operations that only accept foundation model ids.
	InferenceProfilePrefixes []string `koanf:"inference_profile_prefixes"`

	// AnthropicBetaWhitelist lists the anthropic-beta flags forwarded to
	// the backend; all others are dropped.
	AnthropicBetaWhitelist []string `koanf:"anthropic_beta_whitelist"`

	MaxRequestBytes        int64 `koanf:"max_request_bytes" validate:"gt=0"`
	PingIntervalSeconds    int   `koanf:"ping_interval_seconds" validate:"gt=0"`
	ShutdownTimeoutSeconds int   `koanf:"shutdown_timeout_seconds" validate:"gt=0"`
}

func defaults() map[string]any {
	return map[string]any{
		"host":                       "127.0.0.1",
		"port":                       4000,
		"inference_profile_prefixes": []string{"us."},
		"max_request_bytes":          int64(10 << 20),
		"ping_interval_seconds":      15,
		"shutdown_timeout_seconds":   5,
	}
}

// Load resolves the configuration. A missing config file is not an error;
// an unreadable or invalid one is.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		err := k.Load(file.Provider(path), toml.Parser())
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider(".", env.Opt{
		Prefix:        envPrefix,
		TransformFunc: transformEnv,
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// transformEnv maps CONVERSE_PROXY_MAX_REQUEST_BYTES to max_request_bytes
// and splits comma-separated values into lists.
func transformEnv(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	if strings.Contains(value, ",") {
		parts := strings.Split(value, ",")
		for i, part := range parts {
			parts[i] = strings.TrimSpace(part)
		}
		return key, parts
	}
	return key, value
}

// Address returns the host:port listen address.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// PingInterval returns the SSE keep-alive interval.
func (c *Config) PingInterval() time.Duration {
	return time.Duration(c.PingIntervalSeconds) * time.Second
}

// ShutdownTimeout returns the graceful shutdown deadline.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}
