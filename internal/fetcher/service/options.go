package service

import (
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/crawlkit/browserfetch/internal/common/config"
	"github.com/crawlkit/browserfetch/internal/fetcher"
	"github.com/crawlkit/browserfetch/pkg/types"
)

// ToContextSpec converts the wire context description into a pool spec.
func (s *ContextWireSpec) ToContextSpec() *types.ContextSpec {
	if s == nil {
		return nil
	}

	spec := &types.ContextSpec{UserDataDir: s.UserDataDir}

	var viewport *playwright.Size
	if s.Viewport != nil {
		viewport = &playwright.Size{Width: s.Viewport.Width, Height: s.Viewport.Height}
	}

	if spec.Persistent() {
		opts := &spec.PersistentOptions
		if s.UserAgent != "" {
			opts.UserAgent = playwright.String(s.UserAgent)
		}
		opts.IgnoreHttpsErrors = s.IgnoreHTTPSErrors
		opts.BypassCSP = s.BypassCSP
		opts.JavaScriptEnabled = s.JavaScriptEnabled
		opts.Viewport = viewport
		return spec
	}

	opts := &spec.NewContextOptions
	if s.UserAgent != "" {
		opts.UserAgent = playwright.String(s.UserAgent)
	}
	opts.IgnoreHttpsErrors = s.IgnoreHTTPSErrors
	opts.BypassCSP = s.BypassCSP
	opts.JavaScriptEnabled = s.JavaScriptEnabled
	opts.Viewport = viewport
	return spec
}

// BuildOptions converts the YAML browser configuration into fetcher options.
func BuildOptions(cfg *config.FSConfig) *fetcher.Options {
	opts := fetcher.DefaultOptions()
	opts.BrowserKind = cfg.Browser.Kind
	opts.CDPAddress = cfg.Browser.CDPAddress
	opts.WSEndpoint = cfg.Browser.WSEndpoint
	opts.MaxPagesPerContext = cfg.Browser.MaxPagesPerContext
	if cfg.Browser.EngineConcurrency > 0 {
		opts.EngineConcurrency = cfg.Browser.EngineConcurrency
	}
	opts.MaxContexts = cfg.Browser.MaxContexts
	opts.PassthroughHeaders = cfg.Browser.PassthroughHeaders

	if cfg.Browser.Headless != nil {
		opts.LaunchOptions.Headless = cfg.Browser.Headless
	}
	if cfg.Browser.NavigationTimeout != nil {
		ms := float64(time.Duration(*cfg.Browser.NavigationTimeout)) / float64(time.Millisecond)
		opts.NavigationTimeout = playwright.Float(ms)
	}
	if cfg.Browser.RelaunchOnCrash != nil {
		opts.RelaunchOnCrash = *cfg.Browser.RelaunchOnCrash
	}
	if cfg.Browser.MaxPageRetries != nil {
		opts.MaxPageRetries = *cfg.Browser.MaxPageRetries
	}
	if cfg.Browser.ContentRetries != nil {
		opts.ContentRetries = *cfg.Browser.ContentRetries
	}

	opts.AbortRequest = buildAbortFunc(cfg.Browser.AbortResourceTypes, cfg.Browser.AbortURLPatterns)

	if len(cfg.Browser.Contexts) > 0 {
		opts.StartupContexts = make(map[string]*types.ContextSpec, len(cfg.Browser.Contexts))
		for name, contextCfg := range cfg.Browser.Contexts {
			opts.StartupContexts[name] = buildContextSpec(contextCfg)
		}
	}

	return opts
}

func buildContextSpec(cfg config.ContextYAMLConfig) *types.ContextSpec {
	wire := &ContextWireSpec{
		UserDataDir:       cfg.UserDataDir,
		UserAgent:         cfg.UserAgent,
		IgnoreHTTPSErrors: cfg.IgnoreHTTPSErrors,
		BypassCSP:         cfg.BypassCSP,
		JavaScriptEnabled: cfg.JavaScriptEnabled,
	}
	if cfg.Viewport != nil {
		wire.Viewport = &ViewportSpec{Width: cfg.Viewport.Width, Height: cfg.Viewport.Height}
	}
	return wire.ToContextSpec()
}

// buildAbortFunc compiles the configured block lists into an abort predicate.
// Patterns match by substring against the request URL.
func buildAbortFunc(resourceTypes, urlPatterns []string) fetcher.AbortFunc {
	if len(resourceTypes) == 0 && len(urlPatterns) == 0 {
		return nil
	}

	blocked := make(map[string]bool, len(resourceTypes))
	for _, rt := range resourceTypes {
		blocked[strings.ToLower(rt)] = true
	}

	return func(request playwright.Request) (bool, error) {
		if blocked[strings.ToLower(request.ResourceType())] {
			return true, nil
		}
		url := request.URL()
		for _, pattern := range urlPatterns {
			if strings.Contains(url, pattern) {
				return true, nil
			}
		}
		return false, nil
	}
}
