package config

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/kelseyhightower/envconfig"

	"github.com/JonMunkholm/mlready/internal/engine"
	"github.com/JonMunkholm/mlready/internal/logging"
	"github.com/JonMunkholm/mlready/internal/parse"
	"github.com/JonMunkholm/mlready/internal/recipe"
)

// Load reads configuration from the environment, applies defaults and
// validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// MustLoad is Load for main; it panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []string
	key := func(section, name string) string {
		return Prefix + "_" + section + "_" + name
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("%s (%d) must be 1-65535", key("SERVER", "PORT"), c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, key("SERVER", "READ_TIMEOUT")+" must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, key("SERVER", "SHUTDOWN_TIMEOUT")+" must be positive")
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, key("SERVER", "REQUEST_TIMEOUT")+" must be positive")
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Sprintf("%s (%q) must be one of: debug, info, warn, error", key("LOG", "LEVEL"), c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case logging.FormatText, logging.FormatJSON:
	default:
		errs = append(errs, fmt.Sprintf("%s (%q) must be one of: text, json", key("LOG", "FORMAT"), c.Logging.Format))
	}

	n := c.Normalize
	if n.ScoreThreshold < 0 || n.ScoreThreshold > 1 {
		errs = append(errs, fmt.Sprintf("%s (%v) must be within [0, 1]", key("NORMALIZE", "SCORE_THRESHOLD"), n.ScoreThreshold))
	}
	if n.CategoryCardinalityRatio < 0 || n.CategoryCardinalityRatio > 1 {
		errs = append(errs, fmt.Sprintf("%s (%v) must be within [0, 1]", key("NORMALIZE", "CATEGORY_RATIO"), n.CategoryCardinalityRatio))
	}
	if n.SampleSize <= 0 {
		errs = append(errs, key("NORMALIZE", "SAMPLE_SIZE")+" must be positive")
	}
	if n.Workers < 0 {
		errs = append(errs, key("NORMALIZE", "WORKERS")+" must be non-negative")
	}
	if n.MaxFailureSamples < 0 {
		errs = append(errs, key("NORMALIZE", "MAX_FAILURE_SAMPLES")+" must be non-negative")
	}
	if !recipe.FallbackPolicy(n.Fallback).Valid() {
		errs = append(errs, fmt.Sprintf("%s (%q) must be one of: unresolved, keep_text", key("NORMALIZE", "FALLBACK"), n.Fallback))
	}
	if len(n.Priority) == 0 {
		errs = append(errs, key("NORMALIZE", "PRIORITY")+" must list at least one kind")
	}
	builtin := parse.Builtin()
	for _, k := range n.Priority {
		if _, ok := builtin.Lookup(parse.Kind(k)); !ok {
			errs = append(errs, fmt.Sprintf("%s names unknown kind %q", key("NORMALIZE", "PRIORITY"), k))
		}
	}

	if c.Limits.MaxConcurrent <= 0 {
		errs = append(errs, key("LIMITS", "MAX_CONCURRENT")+" must be positive")
	}
	if c.Limits.MaxWait <= 0 {
		errs = append(errs, key("LIMITS", "MAX_WAIT")+" must be positive")
	}
	if c.Limits.MaxUploadBytes <= 0 {
		errs = append(errs, key("LIMITS", "MAX_UPLOAD_BYTES")+" must be positive")
	}

	if c.Database.Enabled() {
		if c.Database.MaxConns <= 0 {
			errs = append(errs, key("DATABASE", "MAX_CONNS")+" must be positive")
		}
		if c.Database.MaxConns < c.Database.MinConns {
			errs = append(errs, fmt.Sprintf("%s (%d) must be >= %s (%d)",
				key("DATABASE", "MAX_CONNS"), c.Database.MaxConns, key("DATABASE", "MIN_CONNS"), c.Database.MinConns))
		}
	}

	for _, proxy := range c.Security.TrustedProxies {
		if _, err := netip.ParsePrefix(proxy); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(proxy); err != nil {
			errs = append(errs, fmt.Sprintf("%s entry %q is not an address or CIDR", key("SECURITY", "TRUSTED_PROXIES"), proxy))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// EngineOptions converts the normalize section into engine options.
func (c *Config) EngineOptions() engine.Options {
	n := c.Normalize
	opts := engine.DefaultOptions()

	opts.Inference.ScoreThreshold = n.ScoreThreshold
	opts.Inference.SampleSize = n.SampleSize
	opts.Inference.Parse.CategoryCardinalityRatio = n.CategoryCardinalityRatio
	opts.Inference.Parse.TrueTokens = n.TrueTokens
	opts.Inference.Parse.FalseTokens = n.FalseTokens
	opts.Inference.Parse.MissingTokens = n.MissingTokens
	if len(n.DatePatterns) > 0 {
		opts.Inference.Parse.DatePatterns = []string(n.DatePatterns)
	}

	priority := make([]parse.Kind, len(n.Priority))
	for i, k := range n.Priority {
		priority[i] = parse.Kind(k)
	}
	opts.Inference.Priority = priority

	opts.Workers = n.Workers
	opts.Fallback = recipe.FallbackPolicy(n.Fallback)
	opts.MaxFailureSamples = n.MaxFailureSamples
	return opts
}

// String renders the config for logs with the database URL masked.
func (c *Config) String() string {
	db := "disabled"
	if c.Database.Enabled() {
		db = "[MASKED]"
	}

	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Addr: %q, RequestTimeout: %s}, ", c.Server.Addr(), c.Server.RequestTimeout)
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}, ", c.Logging.Level, c.Logging.Format)
	fmt.Fprintf(&b, "Normalize: {ScoreThreshold: %v, SampleSize: %d, Workers: %d, Fallback: %q}, ",
		c.Normalize.ScoreThreshold, c.Normalize.SampleSize, c.Normalize.Workers, c.Normalize.Fallback)
	fmt.Fprintf(&b, "Limits: {MaxConcurrent: %d, MaxWait: %s, MaxUploadBytes: %d}, ",
		c.Limits.MaxConcurrent, c.Limits.MaxWait, c.Limits.MaxUploadBytes)
	fmt.Fprintf(&b, "Database: {URL: %s}, ", db)
	fmt.Fprintf(&b, "Security: {APIKeys: %d configured, TrustedProxies: %q}", len(c.Security.APIKeys), c.Security.TrustedProxies)
	b.WriteString("}")
	return b.String()
}
