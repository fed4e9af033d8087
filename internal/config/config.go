// Package config provides configuration management for the formcheck service.
// Configuration is loaded from environment variables with sensible defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	// Default values
	DefaultPort          = 8787
	DefaultBindAddr      = "127.0.0.1"
	DefaultLogLevel      = "info"
	DefaultDataDir       = ".formcheck"
	DefaultWorkspaceName = "formcheck-videos"

	// Environment variable names
	EnvPort     = "FORMCHECK_PORT"
	EnvBindAddr = "FORMCHECK_BIND"
	EnvLogLevel = "FORMCHECK_LOG_LEVEL"
	EnvDataDir  = "FORMCHECK_DATA_DIR"
	EnvAPIToken = "FORMCHECK_API_TOKEN"

	// Provider environment variable names
	EnvProviderBaseURL   = "FORMCHECK_PROVIDER_BASE_URL"
	EnvProviderAPIKey    = "FORMCHECK_PROVIDER_API_KEY"
	EnvWorkspaceName     = "FORMCHECK_WORKSPACE_NAME"
	EnvPollInterval      = "FORMCHECK_POLL_INTERVAL"
	EnvPollMaxAttempts   = "FORMCHECK_POLL_MAX_ATTEMPTS"
	EnvMaxInlineBytes    = "FORMCHECK_MAX_INLINE_BYTES"
	EnvHardMaxBytes      = "FORMCHECK_HARD_MAX_BYTES"
	EnvAnalysisMaxTokens = "FORMCHECK_ANALYSIS_MAX_TOKENS"
	EnvAnalysisTemp      = "FORMCHECK_ANALYSIS_TEMPERATURE"

	// Database filename
	DBFilename = "formcheck.db"

	// Pipeline defaults
	DefaultPollInterval      = 3 * time.Second
	DefaultPollMaxAttempts   = 60
	DefaultMaxInlineBytes    = 50 * 1000 * 1000       // 50 MB
	DefaultHardMaxBytes      = 2 * 1024 * 1024 * 1024 // 2 GiB
	DefaultAnalysisMaxTokens = 2048
	DefaultAnalysisTemp      = 0.2
)

// ErrMissingCredential is returned by New when the provider API key is absent.
var ErrMissingCredential = errors.New("provider API key is not configured")

// Config defines the application configuration interface
type Config interface {
	Port() int
	BindAddr() string
	LogLevel() string
	DataDir() string
	DBPath() string
	APIToken() string
	ProviderBaseURL() string
	ProviderAPIKey() string
	WorkspaceName() string
	PollInterval() time.Duration
	PollMaxAttempts() int
	MaxInlineBytes() int64
	HardMaxBytes() int64
	AnalysisMaxTokens() int
	AnalysisTemperature() float64
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port     int
	bindAddr string
	logLevel string
	dataDir  string
	apiToken string

	providerBaseURL string
	providerAPIKey  string
	workspaceName   string
	pollInterval    time.Duration
	pollMaxAttempts int
	maxInlineBytes  int64
	hardMaxBytes    int64
	maxTokens       int
	temperature     float64
}

// New creates a new EnvConfig with defaults and environment variable overrides.
// A missing provider credential is reported as ErrMissingCredential before
// anything else is validated, so callers can fail fast.
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:            DefaultPort,
		bindAddr:        DefaultBindAddr,
		logLevel:        DefaultLogLevel,
		dataDir:         defaultDataDir(),
		workspaceName:   DefaultWorkspaceName,
		pollInterval:    DefaultPollInterval,
		pollMaxAttempts: DefaultPollMaxAttempts,
		maxInlineBytes:  DefaultMaxInlineBytes,
		hardMaxBytes:    DefaultHardMaxBytes,
		maxTokens:       DefaultAnalysisMaxTokens,
		temperature:     DefaultAnalysisTemp,
	}

	cfg.providerAPIKey = strings.TrimSpace(os.Getenv(EnvProviderAPIKey))
	if cfg.providerAPIKey == "" {
		return nil, fmt.Errorf("%s: %w", EnvProviderAPIKey, ErrMissingCredential)
	}

	cfg.providerBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv(EnvProviderBaseURL)), "/")
	if cfg.providerBaseURL == "" {
		return nil, fmt.Errorf("%s is required", EnvProviderBaseURL)
	}

	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	if b := os.Getenv(EnvBindAddr); b != "" {
		cfg.bindAddr = b
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	cfg.apiToken = strings.TrimSpace(os.Getenv(EnvAPIToken))

	if wn := strings.TrimSpace(os.Getenv(EnvWorkspaceName)); wn != "" {
		cfg.workspaceName = wn
	}

	if v := os.Getenv(EnvPollInterval); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPollInterval, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("invalid %s: must be positive", EnvPollInterval)
		}
		cfg.pollInterval = d
	}

	if v := os.Getenv(EnvPollMaxAttempts); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPollMaxAttempts, err)
		}
		if n < 1 {
			return nil, fmt.Errorf("invalid %s: must be at least 1", EnvPollMaxAttempts)
		}
		cfg.pollMaxAttempts = n
	}

	if v := os.Getenv(EnvMaxInlineBytes); v != "" {
		n, err := parseSize(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvMaxInlineBytes, err)
		}
		cfg.maxInlineBytes = n
	}

	if v := os.Getenv(EnvHardMaxBytes); v != "" {
		n, err := parseSize(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvHardMaxBytes, err)
		}
		cfg.hardMaxBytes = n
	}

	if cfg.maxInlineBytes > cfg.hardMaxBytes {
		return nil, fmt.Errorf("%s must not exceed %s", EnvMaxInlineBytes, EnvHardMaxBytes)
	}

	if v := os.Getenv(EnvAnalysisMaxTokens); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvAnalysisMaxTokens, err)
		}
		if n < 1 {
			return nil, fmt.Errorf("invalid %s: must be at least 1", EnvAnalysisMaxTokens)
		}
		cfg.maxTokens = n
	}

	if v := os.Getenv(EnvAnalysisTemp); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvAnalysisTemp, err)
		}
		if f < 0 || f > 1 {
			return nil, fmt.Errorf("invalid %s: must be between 0 and 1", EnvAnalysisTemp)
		}
		cfg.temperature = f
	}

	return cfg, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// BindAddr returns the interface the HTTP server listens on
func (c *EnvConfig) BindAddr() string {
	return c.bindAddr
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// APIToken returns the configured bearer token, empty when one should be generated
func (c *EnvConfig) APIToken() string {
	return c.apiToken
}

func (c *EnvConfig) ProviderBaseURL() string {
	return c.providerBaseURL
}

func (c *EnvConfig) ProviderAPIKey() string {
	return c.providerAPIKey
}

func (c *EnvConfig) WorkspaceName() string {
	return c.workspaceName
}

func (c *EnvConfig) PollInterval() time.Duration {
	return c.pollInterval
}

func (c *EnvConfig) PollMaxAttempts() int {
	return c.pollMaxAttempts
}

func (c *EnvConfig) MaxInlineBytes() int64 {
	return c.maxInlineBytes
}

func (c *EnvConfig) HardMaxBytes() int64 {
	return c.hardMaxBytes
}

func (c *EnvConfig) AnalysisMaxTokens() int {
	return c.maxTokens
}

func (c *EnvConfig) AnalysisTemperature() float64 {
	return c.temperature
}

// parseSize accepts plain byte counts as well as humanized sizes like "50MB".
func parseSize(v string) (int64, error) {
	n, err := humanize.ParseBytes(strings.TrimSpace(v))
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("size must be positive")
	}
	return int64(n), nil
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
