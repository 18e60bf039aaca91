// Package config loads service configuration from the environment.
//
// Every variable carries the MLREADY_ prefix, followed by the section name:
// MLREADY_SERVER_PORT, MLREADY_NORMALIZE_SCORE_THRESHOLD, and so on. Values
// are validated on startup so misconfiguration fails fast.
package config

import (
	"strconv"
	"strings"
	"time"
)

// Prefix is prepended to every environment variable name.
const Prefix = "MLREADY"

// Config holds all service configuration.
type Config struct {
	Server    ServerConfig    `envconfig:"SERVER"`
	Logging   LoggingConfig   `envconfig:"LOG"`
	Normalize NormalizeConfig `envconfig:"NORMALIZE"`
	Limits    LimitsConfig    `envconfig:"LIMITS"`
	Database  DatabaseConfig  `envconfig:"DATABASE"`
	Security  SecurityConfig  `envconfig:"SECURITY"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `envconfig:"HOST" default:"0.0.0.0"`
	Port int    `envconfig:"PORT" default:"8080"`

	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"2m"`
	IdleTimeout     time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout bounds a single build or replay request.
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"90s"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `envconfig:"LEVEL" default:"info"`
	Format string `envconfig:"FORMAT" default:"text"`
}

// NormalizeConfig holds the defaults every pass runs with.
type NormalizeConfig struct {
	ScoreThreshold           float64  `envconfig:"SCORE_THRESHOLD" default:"0.6"`
	SampleSize               int      `envconfig:"SAMPLE_SIZE" default:"1000"`
	CategoryCardinalityRatio float64  `envconfig:"CATEGORY_RATIO" default:"0.5"`
	Priority                 []string `envconfig:"PRIORITY" default:"boolean,currency,percentage,numeric,datetime,category,text"`
	TrueTokens               []string `envconfig:"TRUE_TOKENS" default:"true,yes,y,t,1"`
	FalseTokens              []string `envconfig:"FALSE_TOKENS" default:"false,no,n,f,0"`
	MissingTokens            []string `envconfig:"MISSING_TOKENS" default:"na,n/a,null,nan"`

	// DatePatterns replaces the built-in layouts when set. Layouts are
	// separated by ';' since they may contain commas.
	DatePatterns PatternList `envconfig:"DATE_PATTERNS"`

	Workers           int    `envconfig:"WORKERS" default:"0"`
	Fallback          string `envconfig:"FALLBACK" default:"unresolved"`
	MaxFailureSamples int    `envconfig:"MAX_FAILURE_SAMPLES" default:"5"`
}

// LimitsConfig bounds request handling.
type LimitsConfig struct {
	// MaxConcurrent is the number of passes that may run at once.
	MaxConcurrent int `envconfig:"MAX_CONCURRENT" default:"4"`

	// MaxWait is how long a request waits for a pass slot.
	MaxWait time.Duration `envconfig:"MAX_WAIT" default:"30s"`

	// MaxUploadBytes caps the multipart body of a request.
	MaxUploadBytes int64 `envconfig:"MAX_UPLOAD_BYTES" default:"33554432"`
}

// DatabaseConfig holds the optional PostgreSQL target for loading clean
// tables. Loading is disabled when URL is empty.
type DatabaseConfig struct {
	URL             string        `envconfig:"URL"`
	MaxConns        int32         `envconfig:"MAX_CONNS" default:"10"`
	MinConns        int32         `envconfig:"MIN_CONNS" default:"0"`
	MaxConnLifetime time.Duration `envconfig:"MAX_CONN_LIFETIME" default:"1h"`
}

// SecurityConfig holds request authentication settings.
type SecurityConfig struct {
	// APIKeys are accepted in the X-API-Key header. Empty disables the check.
	APIKeys []string `envconfig:"API_KEYS"`

	// TrustedProxies are CIDRs or addresses whose X-Real-IP and
	// X-Forwarded-For headers are believed.
	TrustedProxies []string `envconfig:"TRUSTED_PROXIES"`
}

// Enabled reports whether a database is configured.
func (c DatabaseConfig) Enabled() bool { return c.URL != "" }

// Addr returns the listen address in host:port form.
func (c ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// PatternList is a ';'-separated list of time layouts.
type PatternList []string

// Decode implements envconfig.Decoder.
func (p *PatternList) Decode(value string) error {
	var out PatternList
	for _, part := range strings.Split(value, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*p = out
	return nil
}
