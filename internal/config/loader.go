package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// Environment variables that override the file.
const (
	EnvPort             = "PORT"
	EnvJWTSecret        = "JWT_SECRET"
	EnvUsersServiceURL  = "USERS_SERVICE_URL"
	EnvOrdersServiceURL = "ORDERS_SERVICE_URL"
	EnvLogLevel         = "LOG_LEVEL"
)

// LookupEnvFunc reads an environment variable.
type LookupEnvFunc func(key string) (string, bool)

// Loader handles configuration loading from files and readers.
type Loader struct {
	lookupEnv LookupEnvFunc
}

// NewLoader creates a loader that reads the process environment.
func NewLoader() *Loader {
	return &Loader{lookupEnv: os.LookupEnv}
}

// NewLoaderWithEnv creates a loader with a custom environment, for tests.
func NewLoaderWithEnv(lookup LookupEnvFunc) *Loader {
	return &Loader{lookupEnv: lookup}
}

// LoadConfig loads, defaults, overrides, and validates configuration from path.
// An empty path yields defaults plus environment overrides.
func LoadConfig(path string) (*GatewayConfig, error) {
	return NewLoader().Load(path)
}

// LoadConfigFromReader loads configuration from an io.Reader.
func LoadConfigFromReader(r io.Reader) (*GatewayConfig, error) {
	return NewLoader().LoadFromReader(r)
}

// Load loads configuration from a file path.
func (l *Loader) Load(path string) (*GatewayConfig, error) {
	if path == "" {
		return l.finish(DefaultConfig())
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", path, err)
	}

	data, err := os.ReadFile(absPath) //nolint:gosec // operator supplied path
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return l.parse(data)
}

// LoadFromReader loads configuration from an io.Reader.
func (l *Loader) LoadFromReader(r io.Reader) (*GatewayConfig, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return l.parse(data)
}

func (l *Loader) parse(data []byte) (*GatewayConfig, error) {
	content := l.substituteEnvVars(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return l.finish(cfg)
}

func (l *Loader) finish(cfg *GatewayConfig) (*GatewayConfig, error) {
	ApplyDefaults(cfg)
	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// substituteEnvVars replaces ${VAR} and ${VAR:-default}; "$$" escapes a dollar.
func (l *Loader) substituteEnvVars(content string) string {
	content = strings.ReplaceAll(content, "$$", "\x00ESCAPED_DOLLAR\x00")

	result := envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		sub := envVarPattern.FindStringSubmatch(match)
		if len(sub) < 2 {
			return match
		}
		if value, ok := l.lookupEnv(sub[1]); ok {
			return value
		}
		if len(sub) >= 3 {
			return sub[2]
		}
		return ""
	})

	return strings.ReplaceAll(result, "\x00ESCAPED_DOLLAR\x00", "$")
}

func (l *Loader) applyEnvOverrides(cfg *GatewayConfig) error {
	if v, ok := l.lookupEnv(EnvPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPort, v, err)
		}
		cfg.Server.Port = port
	}
	if v, ok := l.lookupEnv(EnvJWTSecret); ok && v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v, ok := l.lookupEnv(EnvUsersServiceURL); ok && v != "" {
		cfg.Services.Users.URL = v
	}
	if v, ok := l.lookupEnv(EnvOrdersServiceURL); ok && v != "" {
		cfg.Services.Orders.URL = v
	}
	if v, ok := l.lookupEnv(EnvLogLevel); ok && v != "" {
		cfg.Observability.Logging.Level = v
	}
	return nil
}
