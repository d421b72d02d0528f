// Package config provides configuration management for codekb.
// It supports loading configuration from environment variables, files
// (YAML/JSON), and defaults, with a clear precedence order: env > file >
// defaults.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete codekb configuration.
type Config struct {
	Server        ServerConfig        `json:"server" yaml:"server"`
	Database      DatabaseConfig      `json:"database" yaml:"database"`
	Denylist      DenylistConfig      `json:"denylist" yaml:"denylist"`
	Chunker       ChunkerConfig       `json:"chunker" yaml:"chunker"`
	CodeHost      CodeHostConfig      `json:"code_host" yaml:"code_host"`
	TaskQueue     TaskQueueConfig     `json:"task_queue" yaml:"task_queue"`
	LLM           LLMConfig           `json:"llm" yaml:"llm"`
	Retrieval     RetrievalConfig     `json:"retrieval" yaml:"retrieval"`
	Logging       LoggingConfig       `json:"logging" yaml:"logging"`
	Auth          AuthConfig          `json:"auth" yaml:"auth"`
	Security      SecurityConfig      `json:"security" yaml:"security"`
	CORS          CORSConfig          `json:"cors" yaml:"cors"`
	TLS           TLSConfig           `json:"tls" yaml:"tls"`
	RateLimit     RateLimitConfig     `json:"rate_limit" yaml:"rate_limit"`
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

// DatabaseConfig holds the SQLite knowledge-base database configuration.
type DatabaseConfig struct {
	Path string `json:"path" yaml:"path"`
}

// DenylistConfig holds the oversized-file threshold; directory, extension,
// and exact-filename denylists are fixed in internal/denylist.
type DenylistConfig struct {
	MaxFileSizeBytes int64 `json:"max_file_size_bytes" yaml:"max_file_size_bytes"`
}

// ChunkerConfig holds the chunk size bounds used when splitting files.
type ChunkerConfig struct {
	MinLines int `json:"min_lines" yaml:"min_lines"`
	MaxLines int `json:"max_lines" yaml:"max_lines"`
}

// CodeHostConfig holds code host backend selection and credentials.
type CodeHostConfig struct {
	Backend          string `json:"backend" yaml:"backend"` // "github" or "local"
	GitHubToken      string `json:"github_token" yaml:"github_token"`
	LocalReposDir    string `json:"local_repos_dir" yaml:"local_repos_dir"`
	WebhookSecret    string `json:"webhook_secret" yaml:"webhook_secret"`
	IndexTaskURL     string `json:"index_task_url" yaml:"index_task_url"`
	DeleteTaskURL    string `json:"delete_task_url" yaml:"delete_task_url"`
}

// TaskQueueConfig holds task queue backend selection.
type TaskQueueConfig struct {
	Backend   string `json:"backend" yaml:"backend"` // "memory" or "redis"
	RedisAddr string `json:"redis_addr" yaml:"redis_addr"`
}

// LLMConfig holds answer-generation backend selection.
type LLMConfig struct {
	Backend  string `json:"backend" yaml:"backend"` // "http" or "memory"
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	APIKey   string `json:"api_key" yaml:"api_key"`
	Model    string `json:"model" yaml:"model"`
}

// RetrievalConfig holds the retrieval cascade's tunable thresholds.
type RetrievalConfig struct {
	MinFTSResults int     `json:"min_fts_results" yaml:"min_fts_results"`
	MaxChunks     int     `json:"max_chunks" yaml:"max_chunks"`
	TrigramThresh float64 `json:"trigram_threshold" yaml:"trigram_threshold"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// AuthConfig holds JWT authentication configuration.
type AuthConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	Issuer      string `json:"issuer" yaml:"issuer"`
	Audience    string `json:"audience" yaml:"audience"`
	PublicKey   string `json:"public_key" yaml:"public_key"`
	PrivateKey  string `json:"private_key" yaml:"private_key"`
	TokenExpiry int    `json:"token_expiry" yaml:"token_expiry"` // in minutes
}

// ObservabilityConfig holds observability configuration.
type ObservabilityConfig struct {
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
	Sentry  SentryConfig  `json:"sentry" yaml:"sentry"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Port    int    `json:"port" yaml:"port"`
	Path    string `json:"path" yaml:"path"`
}

// TracingConfig holds tracing configuration.
type TracingConfig struct {
	Enabled    bool    `json:"enabled" yaml:"enabled"`
	Endpoint   string  `json:"endpoint" yaml:"endpoint"`
	SampleRate float64 `json:"sample_rate" yaml:"sample_rate"`
}

// SentryConfig holds Sentry error monitoring configuration.
type SentryConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	DSN         string  `json:"dsn" yaml:"dsn"`
	Environment string  `json:"environment" yaml:"environment"`
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`
	Release     string  `json:"release" yaml:"release"`
}

// SecurityConfig holds security headers configuration.
type SecurityConfig struct {
	CSP                 CSPConfig  `json:"csp" yaml:"csp"`
	HSTS                HSTSConfig `json:"hsts" yaml:"hsts"`
	XFrameOptions       string     `json:"x_frame_options" yaml:"x_frame_options"`
	XContentTypeOptions string     `json:"x_content_type_options" yaml:"x_content_type_options"`
	ReferrerPolicy      string     `json:"referrer_policy" yaml:"referrer_policy"`
	PermissionsPolicy   string     `json:"permissions_policy" yaml:"permissions_policy"`
}

// CSPConfig holds Content Security Policy configuration.
type CSPConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Default []string `json:"default" yaml:"default"`
	Script  []string `json:"script" yaml:"script"`
	Style   []string `json:"style" yaml:"style"`
	Image   []string `json:"image" yaml:"image"`
	Font    []string `json:"font" yaml:"font"`
	Connect []string `json:"connect" yaml:"connect"`
	Media   []string `json:"media" yaml:"media"`
	Object  []string `json:"object" yaml:"object"`
	Frame   []string `json:"frame" yaml:"frame"`
	Report  string   `json:"report" yaml:"report"`
}

// HSTSConfig holds HTTP Strict Transport Security configuration.
type HSTSConfig struct {
	Enabled           bool `json:"enabled" yaml:"enabled"`
	MaxAge            int  `json:"max_age" yaml:"max_age"`
	IncludeSubdomains bool `json:"include_subdomains" yaml:"include_subdomains"`
	Preload           bool `json:"preload" yaml:"preload"`
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	Enabled          bool     `json:"enabled" yaml:"enabled"`
	AllowedOrigins   []string `json:"allowed_origins" yaml:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods" yaml:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers" yaml:"allowed_headers"`
	ExposedHeaders   []string `json:"exposed_headers" yaml:"exposed_headers"`
	AllowCredentials bool     `json:"allow_credentials" yaml:"allow_credentials"`
	MaxAge           int      `json:"max_age" yaml:"max_age"`
}

// TLSConfig holds TLS/HTTPS configuration.
type TLSConfig struct {
	Enabled          bool     `json:"enabled" yaml:"enabled"`
	CertFile         string   `json:"cert_file" yaml:"cert_file"`
	KeyFile          string   `json:"key_file" yaml:"key_file"`
	AutoCert         bool     `json:"auto_cert" yaml:"auto_cert"`
	AutoCertDomains  []string `json:"auto_cert_domains" yaml:"auto_cert_domains"`
	AutoCertEmail    string   `json:"auto_cert_email" yaml:"auto_cert_email"`
	AutoCertCacheDir string   `json:"auto_cert_cache_dir" yaml:"auto_cert_cache_dir"`
	MinVersion       string   `json:"min_version" yaml:"min_version"`
	HTTPRedirectPort int      `json:"http_redirect_port" yaml:"http_redirect_port"`
	CipherSuites     []string `json:"cipher_suites" yaml:"cipher_suites"`
	CurvePreferences []string `json:"curve_preferences" yaml:"curve_preferences"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	Enabled         bool                 `json:"enabled" yaml:"enabled"`
	Algorithm       string               `json:"algorithm" yaml:"algorithm"`
	Redis           RateLimitRedisConfig `json:"redis" yaml:"redis"`
	Default         RateLimitRuleConfig  `json:"default" yaml:"default"`
	Health          RateLimitRuleConfig  `json:"health" yaml:"health"`
	Webhook         RateLimitRuleConfig  `json:"webhook" yaml:"webhook"`
	// Chat maps onto the lower-level ratelimit package's "auth" bucket,
	// which RateLimiter.GetLimitConfig selects for requests carrying a
	// "Bearer "/"Token " Authorization header or an API key, on any path
	// outside the health and webhook prefixes. /chat itself is public:
	// a /chat request without credentials falls under Default.
	Chat            RateLimitRuleConfig  `json:"chat" yaml:"chat"`
	BurstMultiplier float64              `json:"burst_multiplier" yaml:"burst_multiplier"`
	CleanupInterval time.Duration        `json:"cleanup_interval" yaml:"cleanup_interval"`
	SkipPaths       []string             `json:"skip_paths" yaml:"skip_paths"`
}

// RateLimitRedisConfig holds Redis configuration for rate limiting.
type RateLimitRedisConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Addr      string `json:"addr" yaml:"addr"`
	Password  string `json:"password" yaml:"password"`
	DB        int    `json:"db" yaml:"db"`
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
}

// RateLimitRuleConfig holds rate limit configuration for a specific endpoint type.
type RateLimitRuleConfig struct {
	Requests int           `json:"requests" yaml:"requests"`
	Window   time.Duration `json:"window" yaml:"window"`
}

// Default values.
const (
	DefaultHost              = "0.0.0.0"
	DefaultPort              = 8080
	DefaultDBPath            = "./data/codekb.db"
	DefaultMaxFileSizeBytes  = 500_000
	DefaultChunkMinLines     = 200
	DefaultChunkMaxLines     = 400
	DefaultCodeHostBackend   = "github"
	DefaultTaskQueueBackend  = "memory"
	DefaultLLMBackend        = "http"
	DefaultLLMModel          = "gemini-1.5-flash"
	DefaultMinFTSResults     = 3
	DefaultMaxChunks         = 12
	DefaultTrigramThreshold  = 0.15
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "json"
	DefaultAuthEnabled       = false
	DefaultAuthIssuer        = "codekb"
	DefaultAuthAudience      = "codekb-api"
	DefaultAuthTokenExpiry   = 60 // 1 hour in minutes
	DefaultSecurityCSPEnabled  = true
	DefaultSecurityHSTSEnabled = true
	DefaultSecurityHSTSMaxAge  = 31536000 // 1 year
	DefaultCORSEnabled         = false
	DefaultCORSMaxAge          = 86400 // 24 hours
	DefaultTLSEnabled          = false
	DefaultTLSAutoCertCacheDir = "./data/tls-cache"
	DefaultTLSMinVersion       = "1.2"
	DefaultTLSHTTPRedirectPort = 80
	DefaultRateLimitEnabled    = false
	DefaultMetricsEnabled      = false
	DefaultMetricsPort         = 9091
	DefaultMetricsPath         = "/metrics"
	DefaultTracingEnabled      = false
	DefaultTracingEndpoint     = "http://localhost:4318"
	DefaultSampleRate          = 0.1
	DefaultSentryEnabled       = false
	DefaultSentryEnv           = "development"
	DefaultSentrySampleRate    = 1.0
	DefaultSentryRelease       = "0.1.0"
)

// Valid values for validation.
var (
	ValidLogLevels  = []string{"debug", "info", "warn", "error"}
	ValidLogFormats = []string{"json", "text"}
)

// Load loads configuration from environment variables and an optional
// config file. Precedence: env vars > config file > defaults.
func Load(ctx context.Context) (*Config, error) {
	cfg := defaults()

	if configFile := os.Getenv("CODEKB_CONFIG_FILE"); configFile != "" {
		fileCfg, err := loadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
		cfg = merge(cfg, fileCfg)
	}

	cfg = loadEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config with all default values.
func defaults() *Config {
	return &Config{
		Server:   ServerConfig{Host: DefaultHost, Port: DefaultPort},
		Database: DatabaseConfig{Path: DefaultDBPath},
		Denylist: DenylistConfig{MaxFileSizeBytes: DefaultMaxFileSizeBytes},
		Chunker:  ChunkerConfig{MinLines: DefaultChunkMinLines, MaxLines: DefaultChunkMaxLines},
		CodeHost: CodeHostConfig{
			Backend:       DefaultCodeHostBackend,
			IndexTaskURL:  "/tasks/index-file",
			DeleteTaskURL: "/tasks/delete-file",
		},
		TaskQueue: TaskQueueConfig{Backend: DefaultTaskQueueBackend},
		LLM:       LLMConfig{Backend: DefaultLLMBackend, Model: DefaultLLMModel},
		Retrieval: RetrievalConfig{
			MinFTSResults: DefaultMinFTSResults,
			MaxChunks:     DefaultMaxChunks,
			TrigramThresh: DefaultTrigramThreshold,
		},
		Logging: LoggingConfig{Level: DefaultLogLevel, Format: DefaultLogFormat},
		Auth: AuthConfig{
			Enabled:     DefaultAuthEnabled,
			Issuer:      DefaultAuthIssuer,
			Audience:    DefaultAuthAudience,
			TokenExpiry: DefaultAuthTokenExpiry,
		},
		Security: SecurityConfig{
			CSP: CSPConfig{
				Enabled: DefaultSecurityCSPEnabled,
				Default: []string{"'none'"},
				Script:  []string{"'self'"},
				Style:   []string{"'self'"},
				Image:   []string{"'self'"},
				Font:    []string{"'self'"},
				Connect: []string{"'self'"},
				Media:   []string{"'none'"},
				Object:  []string{"'none'"},
				Frame:   []string{"'none'"},
			},
			HSTS: HSTSConfig{
				Enabled:           DefaultSecurityHSTSEnabled,
				MaxAge:            DefaultSecurityHSTSMaxAge,
				IncludeSubdomains: true,
			},
			XFrameOptions:       "DENY",
			XContentTypeOptions: "nosniff",
			ReferrerPolicy:      "strict-origin-when-cross-origin",
			PermissionsPolicy:   "camera=(), microphone=(), geolocation=(), payment=()",
		},
		CORS: CORSConfig{
			Enabled:        DefaultCORSEnabled,
			AllowedOrigins: []string{},
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
			MaxAge:         DefaultCORSMaxAge,
		},
		TLS: TLSConfig{
			Enabled:          DefaultTLSEnabled,
			AutoCertCacheDir: DefaultTLSAutoCertCacheDir,
			MinVersion:       DefaultTLSMinVersion,
			HTTPRedirectPort: DefaultTLSHTTPRedirectPort,
		},
		RateLimit: RateLimitConfig{
			Enabled:         DefaultRateLimitEnabled,
			Algorithm:       "sliding_window",
			Default:         RateLimitRuleConfig{Requests: 100, Window: time.Minute},
			Health:          RateLimitRuleConfig{Requests: 1000, Window: time.Minute},
			Webhook:         RateLimitRuleConfig{Requests: 600, Window: time.Minute},
			Chat:            RateLimitRuleConfig{Requests: 30, Window: time.Minute},
			BurstMultiplier: 1.2,
			CleanupInterval: 5 * time.Minute,
			SkipPaths:       []string{"/healthz"},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{Enabled: DefaultMetricsEnabled, Port: DefaultMetricsPort, Path: DefaultMetricsPath},
			Tracing: TracingConfig{Enabled: DefaultTracingEnabled, Endpoint: DefaultTracingEndpoint, SampleRate: DefaultSampleRate},
			Sentry:  SentryConfig{Enabled: DefaultSentryEnabled, Environment: DefaultSentryEnv, SampleRate: DefaultSentrySampleRate, Release: DefaultSentryRelease},
		},
	}
}

// loadFile loads configuration from a YAML or JSON file.
func loadFile(path string) (*Config, error) {
	safePath := filepath.Clean(path)

	data, err := os.ReadFile(safePath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	cfg := &Config{}
	switch ext := strings.ToLower(filepath.Ext(safePath)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}

	return cfg, nil
}

// loadEnv overrides cfg with any non-empty CODEKB_* environment variables.
func loadEnv(cfg *Config) *Config {
	if v := os.Getenv("CODEKB_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("CODEKB_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("CODEKB_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("CODEKB_MAX_FILE_SIZE_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Denylist.MaxFileSizeBytes = n
		}
	}
	if v := os.Getenv("CODEKB_CHUNK_MIN_LINES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Chunker.MinLines = n
		}
	}
	if v := os.Getenv("CODEKB_CHUNK_MAX_LINES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Chunker.MaxLines = n
		}
	}
	if v := os.Getenv("CODEKB_CODEHOST_BACKEND"); v != "" {
		cfg.CodeHost.Backend = v
	}
	if v := os.Getenv("CODEKB_GITHUB_TOKEN"); v != "" {
		cfg.CodeHost.GitHubToken = v
	}
	if v := os.Getenv("CODEKB_LOCAL_REPOS_DIR"); v != "" {
		cfg.CodeHost.LocalReposDir = v
	}
	if v := os.Getenv("CODEKB_WEBHOOK_SECRET"); v != "" {
		cfg.CodeHost.WebhookSecret = v
	}
	if v := os.Getenv("CODEKB_INDEX_TASK_URL"); v != "" {
		cfg.CodeHost.IndexTaskURL = v
	}
	if v := os.Getenv("CODEKB_DELETE_TASK_URL"); v != "" {
		cfg.CodeHost.DeleteTaskURL = v
	}
	if v := os.Getenv("CODEKB_TASKQUEUE_BACKEND"); v != "" {
		cfg.TaskQueue.Backend = v
	}
	if v := os.Getenv("CODEKB_REDIS_ADDR"); v != "" {
		cfg.TaskQueue.RedisAddr = v
	}
	if v := os.Getenv("CODEKB_LLM_BACKEND"); v != "" {
		cfg.LLM.Backend = v
	}
	if v := os.Getenv("CODEKB_LLM_ENDPOINT"); v != "" {
		cfg.LLM.Endpoint = v
	}
	if v := os.Getenv("CODEKB_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("CODEKB_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("CODEKB_MIN_FTS_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retrieval.MinFTSResults = n
		}
	}
	if v := os.Getenv("CODEKB_MAX_CHUNKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retrieval.MaxChunks = n
		}
	}
	if v := os.Getenv("CODEKB_TRIGRAM_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Retrieval.TrigramThresh = f
		}
	}
	if v := os.Getenv("CODEKB_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CODEKB_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("CODEKB_METRICS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Observability.Metrics.Enabled = b
		}
	}
	if v := os.Getenv("CODEKB_METRICS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Observability.Metrics.Port = n
		}
	}
	if v := os.Getenv("CODEKB_TRACING_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Observability.Tracing.Enabled = b
		}
	}
	if v := os.Getenv("CODEKB_TRACING_ENDPOINT"); v != "" {
		cfg.Observability.Tracing.Endpoint = v
	}
	if v := os.Getenv("CODEKB_SENTRY_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Observability.Sentry.Enabled = b
		}
	}
	if v := os.Getenv("CODEKB_SENTRY_DSN"); v != "" {
		cfg.Observability.Sentry.DSN = v
	}
	if v := os.Getenv("CODEKB_SENTRY_ENVIRONMENT"); v != "" {
		cfg.Observability.Sentry.Environment = v
	}
	if v := os.Getenv("CODEKB_AUTH_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Auth.Enabled = b
		}
	}
	if v := os.Getenv("CODEKB_AUTH_ISSUER"); v != "" {
		cfg.Auth.Issuer = v
	}
	if v := os.Getenv("CODEKB_AUTH_AUDIENCE"); v != "" {
		cfg.Auth.Audience = v
	}
	if v := os.Getenv("CODEKB_AUTH_PUBLIC_KEY"); v != "" {
		cfg.Auth.PublicKey = v
	}
	if v := os.Getenv("CODEKB_AUTH_PRIVATE_KEY"); v != "" {
		cfg.Auth.PrivateKey = v
	}
	if v := os.Getenv("CODEKB_CORS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.CORS.Enabled = b
		}
	}
	if v := os.Getenv("CODEKB_CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORS.AllowedOrigins = splitTrim(v)
	}
	if v := os.Getenv("CODEKB_TLS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.TLS.Enabled = b
		}
	}
	if v := os.Getenv("CODEKB_TLS_CERT_FILE"); v != "" {
		cfg.TLS.CertFile = v
	}
	if v := os.Getenv("CODEKB_TLS_KEY_FILE"); v != "" {
		cfg.TLS.KeyFile = v
	}
	if v := os.Getenv("CODEKB_TLS_AUTO_CERT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.TLS.AutoCert = b
		}
	}
	if v := os.Getenv("CODEKB_TLS_AUTO_CERT_DOMAINS"); v != "" {
		cfg.TLS.AutoCertDomains = splitTrim(v)
	}
	if v := os.Getenv("CODEKB_TLS_AUTO_CERT_EMAIL"); v != "" {
		cfg.TLS.AutoCertEmail = v
	}
	if v := os.Getenv("CODEKB_RATE_LIMIT_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.RateLimit.Enabled = b
		}
	}
	if v := os.Getenv("CODEKB_RATE_LIMIT_REDIS_ADDR"); v != "" {
		cfg.RateLimit.Redis.Enabled = true
		cfg.RateLimit.Redis.Addr = v
	}
	if v := os.Getenv("CODEKB_RATE_LIMIT_DEFAULT_REQUESTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.Default.Requests = n
		}
	}
	if v := os.Getenv("CODEKB_RATE_LIMIT_DEFAULT_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RateLimit.Default.Window = d
		}
	}
	if v := os.Getenv("CODEKB_RATE_LIMIT_CHAT_REQUESTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.Chat.Requests = n
		}
	}
	if v := os.Getenv("CODEKB_TLS_CIPHER_SUITES"); v != "" {
		cfg.TLS.CipherSuites = splitTrim(v)
	}
	if v := os.Getenv("CODEKB_TLS_CURVE_PREFERENCES"); v != "" {
		cfg.TLS.CurvePreferences = splitTrim(v)
	}

	return cfg
}

func splitTrim(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// merge merges two configs, preferring non-zero values from override.
func merge(base, override *Config) *Config {
	result := *base

	if override.Server.Host != "" {
		result.Server.Host = override.Server.Host
	}
	if override.Server.Port != 0 {
		result.Server.Port = override.Server.Port
	}
	if override.Database.Path != "" {
		result.Database.Path = override.Database.Path
	}
	if override.Denylist.MaxFileSizeBytes != 0 {
		result.Denylist.MaxFileSizeBytes = override.Denylist.MaxFileSizeBytes
	}
	if override.Chunker.MinLines != 0 {
		result.Chunker.MinLines = override.Chunker.MinLines
	}
	if override.Chunker.MaxLines != 0 {
		result.Chunker.MaxLines = override.Chunker.MaxLines
	}
	if override.CodeHost.Backend != "" {
		result.CodeHost = override.CodeHost
	}
	if override.TaskQueue.Backend != "" {
		result.TaskQueue = override.TaskQueue
	}
	if override.LLM.Backend != "" {
		result.LLM = override.LLM
	}
	if override.Retrieval.MaxChunks != 0 {
		result.Retrieval = override.Retrieval
	}
	if override.Logging.Level != "" {
		result.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		result.Logging.Format = override.Logging.Format
	}
	if override.Auth.Enabled {
		result.Auth = override.Auth
	}
	if override.RateLimit.Enabled {
		result.RateLimit = override.RateLimit
	}
	if override.TLS.Enabled {
		result.TLS = override.TLS
	}
	if override.Observability.Metrics.Enabled != DefaultMetricsEnabled {
		result.Observability.Metrics = override.Observability.Metrics
	}
	if override.Observability.Tracing.Enabled != DefaultTracingEnabled {
		result.Observability.Tracing = override.Observability.Tracing
	}
	if override.Observability.Sentry.Enabled != DefaultSentryEnabled {
		result.Observability.Sentry = override.Observability.Sentry
	}

	return &result
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Chunker.MinLines < 1 {
		return fmt.Errorf("chunker min lines must be positive: %d", c.Chunker.MinLines)
	}
	if c.Chunker.MaxLines < c.Chunker.MinLines {
		return fmt.Errorf("chunker max lines (%d) must be >= min lines (%d)", c.Chunker.MaxLines, c.Chunker.MinLines)
	}
	if c.CodeHost.Backend != "github" && c.CodeHost.Backend != "local" {
		return fmt.Errorf("invalid code host backend: %s (valid: github, local)", c.CodeHost.Backend)
	}
	if c.TaskQueue.Backend != "memory" && c.TaskQueue.Backend != "redis" {
		return fmt.Errorf("invalid task queue backend: %s (valid: memory, redis)", c.TaskQueue.Backend)
	}
	if c.TaskQueue.Backend == "redis" && c.TaskQueue.RedisAddr == "" {
		return fmt.Errorf("redis addr cannot be empty when task queue backend is redis")
	}
	if c.LLM.Backend != "http" && c.LLM.Backend != "memory" {
		return fmt.Errorf("invalid llm backend: %s (valid: http, memory)", c.LLM.Backend)
	}
	if c.Retrieval.MaxChunks < 1 {
		return fmt.Errorf("retrieval max chunks must be positive: %d", c.Retrieval.MaxChunks)
	}
	if !contains(ValidLogLevels, c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (valid: %v)", c.Logging.Level, ValidLogLevels)
	}
	if !contains(ValidLogFormats, c.Logging.Format) {
		return fmt.Errorf("invalid log format: %s (valid: %v)", c.Logging.Format, ValidLogFormats)
	}
	if c.Observability.Metrics.Enabled {
		if c.Observability.Metrics.Port < 1 || c.Observability.Metrics.Port > 65535 {
			return fmt.Errorf("invalid metrics port: %d (must be 1-65535)", c.Observability.Metrics.Port)
		}
	}
	if c.Observability.Tracing.Enabled && c.Observability.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing endpoint cannot be empty when tracing enabled")
	}
	if c.Observability.Sentry.Enabled && c.Observability.Sentry.DSN == "" {
		return fmt.Errorf("sentry DSN cannot be empty when sentry enabled")
	}
	if c.Auth.Enabled {
		if c.Auth.PublicKey == "" || c.Auth.PrivateKey == "" {
			return fmt.Errorf("auth public/private key cannot be empty when auth enabled")
		}
	}
	if c.TLS.Enabled {
		if !c.TLS.AutoCert {
			if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
				return fmt.Errorf("TLS cert/key file cannot be empty when TLS enabled and auto-cert disabled")
			}
		} else if len(c.TLS.AutoCertDomains) == 0 || c.TLS.AutoCertEmail == "" {
			return fmt.Errorf("auto-cert domains and email cannot be empty when auto-cert enabled")
		}
	}

	return nil
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// Default returns a default configuration for testing and documentation.
func Default() *Config {
	return defaults()
}
