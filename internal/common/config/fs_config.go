package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/crawlkit/browserfetch/internal/common/configtypes"
	"github.com/crawlkit/browserfetch/internal/common/yamlutil"
	"github.com/crawlkit/browserfetch/pkg/types"
)

// FSConfig represents Fetch Service configuration
type FSConfig struct {
	Server  FSServerConfig            `yaml:"server"`
	Browser BrowserYAMLConfig         `yaml:"browser"`
	Log     LogConfig                 `yaml:"log"`
	Metrics configtypes.MetricsConfig `yaml:"metrics"`
}

// LogConfig is the shared logging configuration block.
type LogConfig = configtypes.LogConfig

// FSServerConfig represents FS server configuration
type FSServerConfig struct {
	ID      string         `yaml:"id"`
	Listen  string         `yaml:"listen"`
	Timeout types.Duration `yaml:"timeout"`
}

// BrowserYAMLConfig represents browser configuration for YAML
type BrowserYAMLConfig struct {
	Kind     string `yaml:"kind"`
	Headless *bool  `yaml:"headless,omitempty"`

	// At most one remote attach mode may be set; both empty means a local
	// browser is launched.
	CDPAddress string `yaml:"cdp_address,omitempty"`
	WSEndpoint string `yaml:"ws_endpoint,omitempty"`

	MaxPagesPerContext int `yaml:"max_pages_per_context"`
	EngineConcurrency  int `yaml:"engine_concurrency"`
	MaxContexts        int `yaml:"max_contexts"`

	NavigationTimeout *types.Duration `yaml:"navigation_timeout,omitempty"`

	PassthroughHeaders bool  `yaml:"passthrough_headers"`
	RelaunchOnCrash    *bool `yaml:"relaunch_on_crash,omitempty"`

	MaxPageRetries *int `yaml:"max_page_retries,omitempty"`
	ContentRetries *int `yaml:"content_retries,omitempty"`

	// Requests matching these are aborted before reaching the network.
	AbortResourceTypes []string `yaml:"abort_resource_types,omitempty"`
	AbortURLPatterns   []string `yaml:"abort_url_patterns,omitempty"`

	// Contexts launched eagerly at startup, by name.
	Contexts map[string]ContextYAMLConfig `yaml:"contexts,omitempty"`
}

// ContextYAMLConfig describes one named startup browsing context
type ContextYAMLConfig struct {
	UserDataDir       string `yaml:"user_data_dir,omitempty"`
	UserAgent         string `yaml:"user_agent,omitempty"`
	IgnoreHTTPSErrors *bool  `yaml:"ignore_https_errors,omitempty"`
	BypassCSP         *bool  `yaml:"bypass_csp,omitempty"`
	JavaScriptEnabled *bool  `yaml:"javascript_enabled,omitempty"`

	Viewport *ViewportYAMLConfig `yaml:"viewport,omitempty"`
}

// ViewportYAMLConfig sets the context viewport dimensions
type ViewportYAMLConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

const (
	// serverTimeoutMargin is the buffer added to the navigation timeout for
	// the FastHTTP server timeout, so the server never kills a connection
	// before the fetch completes.
	serverTimeoutMargin = 10 * time.Second

	defaultEngineConcurrency = 16
	defaultServerTimeout     = 60 * time.Second
)

// EffectiveServerTimeout returns the FastHTTP server timeout: the configured
// value, or navigation timeout plus a safety margin.
func (cfg *FSConfig) EffectiveServerTimeout() time.Duration {
	if cfg.Server.Timeout > 0 {
		return time.Duration(cfg.Server.Timeout)
	}
	if cfg.Browser.NavigationTimeout != nil && *cfg.Browser.NavigationTimeout > 0 {
		return time.Duration(*cfg.Browser.NavigationTimeout) + serverTimeoutMargin
	}
	return defaultServerTimeout
}

// LoadFSConfig loads Fetch Service configuration from a file
func LoadFSConfig(configPath string) (*FSConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg FSConfig
	if err := yamlutil.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults applies default values to configuration fields
func (cfg *FSConfig) applyDefaults() {
	// If both outputs are disabled (zero values), enable console by default
	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console.Enabled = true
	}

	if cfg.Log.Console.Format == "" {
		cfg.Log.Console.Format = configtypes.LogFormatConsole
	}
	if cfg.Log.File.Format == "" {
		cfg.Log.File.Format = configtypes.LogFormatText
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = configtypes.LogLevelInfo
	}

	if cfg.Browser.Kind == "" {
		cfg.Browser.Kind = "chromium"
	}
	if cfg.Browser.EngineConcurrency == 0 && cfg.Browser.MaxPagesPerContext == 0 {
		cfg.Browser.EngineConcurrency = defaultEngineConcurrency
	}
}

// Validate checks configuration validity
func (cfg *FSConfig) Validate() error {
	if cfg.Server.ID == "" {
		return fmt.Errorf("server.id is required")
	}

	if cfg.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	} else if err := configtypes.ValidateListenAddress(cfg.Server.Listen); err != nil {
		return fmt.Errorf("invalid server.listen: %w", err)
	}

	switch cfg.Browser.Kind {
	case "chromium", "firefox", "webkit":
	default:
		return fmt.Errorf("browser.kind must be chromium, firefox or webkit, got %q", cfg.Browser.Kind)
	}

	if cfg.Browser.CDPAddress != "" && cfg.Browser.WSEndpoint != "" {
		return fmt.Errorf("browser.cdp_address and browser.ws_endpoint are mutually exclusive")
	}

	if cfg.Browser.MaxPagesPerContext < 0 {
		return fmt.Errorf("browser.max_pages_per_context must be >= 0")
	}
	if cfg.Browser.EngineConcurrency < 0 {
		return fmt.Errorf("browser.engine_concurrency must be >= 0")
	}
	if cfg.Browser.MaxPagesPerContext == 0 && cfg.Browser.EngineConcurrency == 0 {
		return fmt.Errorf("either browser.max_pages_per_context or browser.engine_concurrency must be positive")
	}
	if cfg.Browser.MaxContexts < 0 {
		return fmt.Errorf("browser.max_contexts must be >= 0")
	}

	if cfg.Browser.NavigationTimeout != nil && *cfg.Browser.NavigationTimeout < 0 {
		return fmt.Errorf("browser.navigation_timeout must not be negative")
	}
	if cfg.Browser.MaxPageRetries != nil && *cfg.Browser.MaxPageRetries < 0 {
		return fmt.Errorf("browser.max_page_retries must be >= 0")
	}
	if cfg.Browser.ContentRetries != nil && *cfg.Browser.ContentRetries < 0 {
		return fmt.Errorf("browser.content_retries must be >= 0")
	}

	for name, context := range cfg.Browser.Contexts {
		if name == "" {
			return fmt.Errorf("browser.contexts must not contain an empty name")
		}
		if context.Viewport != nil && (context.Viewport.Width <= 0 || context.Viewport.Height <= 0) {
			return fmt.Errorf("browser.contexts[%s].viewport dimensions must be positive", name)
		}
	}

	if err := cfg.validateLog(); err != nil {
		return err
	}
	return cfg.validateMetrics()
}

func (cfg *FSConfig) validateLog() error {
	validLogLevels := map[string]bool{
		configtypes.LogLevelDebug:  true,
		configtypes.LogLevelInfo:   true,
		configtypes.LogLevelWarn:   true,
		configtypes.LogLevelError:  true,
		configtypes.LogLevelDPanic: true,
		configtypes.LogLevelPanic:  true,
		configtypes.LogLevelFatal:  true,
	}
	if !validLogLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log.level: %s (must be debug, info, warn, error, dpanic, panic, or fatal)", cfg.Log.Level)
	}

	validConsoleFormats := map[string]bool{
		configtypes.LogFormatJSON:    true,
		configtypes.LogFormatConsole: true,
	}
	if cfg.Log.Console.Enabled && cfg.Log.Console.Format != "" && !validConsoleFormats[cfg.Log.Console.Format] {
		return fmt.Errorf("invalid log.console.format: %s (must be json or console)", cfg.Log.Console.Format)
	}

	if cfg.Log.File.Enabled {
		if cfg.Log.File.Path == "" {
			return fmt.Errorf("log.file.path must be specified when file logging is enabled")
		}

		validFileFormats := map[string]bool{
			configtypes.LogFormatJSON: true,
			configtypes.LogFormatText: true,
		}
		if cfg.Log.File.Format != "" && !validFileFormats[cfg.Log.File.Format] {
			return fmt.Errorf("invalid log.file.format: %s (must be json or text)", cfg.Log.File.Format)
		}

		if cfg.Log.File.Rotation.MaxSize < 0 {
			return fmt.Errorf("log.file.rotation.max_size must be >= 0, got %d", cfg.Log.File.Rotation.MaxSize)
		}
		if cfg.Log.File.Rotation.MaxAge < 0 {
			return fmt.Errorf("log.file.rotation.max_age must be >= 0, got %d", cfg.Log.File.Rotation.MaxAge)
		}
		if cfg.Log.File.Rotation.MaxBackups < 0 {
			return fmt.Errorf("log.file.rotation.max_backups must be >= 0, got %d", cfg.Log.File.Rotation.MaxBackups)
		}
	}

	return nil
}

func (cfg *FSConfig) validateMetrics() error {
	if cfg.Metrics.Enabled {
		if cfg.Metrics.Listen == "" {
			return fmt.Errorf("metrics.listen is required when metrics enabled")
		} else if err := configtypes.ValidateListenAddress(cfg.Metrics.Listen); err != nil {
			return fmt.Errorf("invalid metrics.listen: %w", err)
		}

		metricsPort, err1 := configtypes.GetPortFromListen(cfg.Metrics.Listen)
		serverPort, err2 := configtypes.GetPortFromListen(cfg.Server.Listen)
		if err1 == nil && err2 == nil && metricsPort == serverPort {
			return fmt.Errorf("metrics.listen port (%d) must differ from server.listen port (%d) when metrics enabled", metricsPort, serverPort)
		}
	}

	if cfg.Metrics.Path != "" && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("invalid metrics.path: %s (must start with /)", cfg.Metrics.Path)
	}

	if cfg.Metrics.Namespace != "" {
		if matched, _ := regexp.MatchString(`^[a-zA-Z_][a-zA-Z0-9_]*$`, cfg.Metrics.Namespace); !matched {
			return fmt.Errorf("invalid metrics.namespace: %s (must match [a-zA-Z_][a-zA-Z0-9_]*)", cfg.Metrics.Namespace)
		}
	}

	return nil
}

// GetConfigPath resolves the config file path
func GetConfigPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("config path cannot be empty")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path: %w", err)
	}

	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		return "", fmt.Errorf("config file does not exist: %s", absPath)
	}

	return absPath, nil
}
