// Package config handles configuration loading, validation and the
// per-request resolver for backend URLs and headers.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/portal-edge/config.toml",
	"configs/config.toml",
}

// CLI holds command-line arguments parsed by Kong. Environment names follow
// the portal's frontend deployment so the same .env file serves both.
type CLI struct {
	Config   string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host     string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port     int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	LogLevel string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
	Env      string `kong:"help='Deployment environment, e.g. production.',env='APP_ENV'"`

	APIURL          string `kong:"name='api-url',help='Public backend API base URL.',env='NEXT_PUBLIC_API_URL'"`
	APIInternalURL  string `kong:"name='api-internal-url',help='Internal backend API base URL.',env='API_INTERNAL_URL'"`
	APIHostname     string `kong:"name='api-hostname',help='Canonical internal API hostname.',env='API_HOSTNAME'"`
	FrontendAPIKey  string `kong:"name='frontend-api-key',help='Static key identifying this frontend to the backend.',env='NEXT_PUBLIC_FRONTEND_API_KEY'"`
	InternalTLS     string `kong:"name='internal-tls-reject-unauthorized',help='Set to 0 to skip certificate checks for the internal API host.',env='NODE_TLS_REJECT_UNAUTHORIZED_INTERNAL'"`
	RevalidateKey   string `kong:"name='revalidate-secret',help='Shared secret for the revalidation webhook.',env='REVALIDATE_SECRET'"`
	FrontendRevalid string `kong:"name='frontend-revalidate-secret',help='Fallback revalidation secret.',env='FRONTEND_REVALIDATE_SECRET'"`
	AppURL          string `kong:"name='app-url',help='Public site URL used for absolute links.',env='NEXT_PUBLIC_APP_URL'"`
	CacheDriver     string `kong:"name='cache-driver',help='Cache driver: memory|redis|none.',env='CACHE_DRIVER'"`
	RedisAddr       string `kong:"name='redis-addr',help='Redis address for the redis cache driver.',env='REDIS_ADDR'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server     ServerConfig      `toml:"server"`
	Backend    BackendConfig     `toml:"backend"`
	Site       SiteConfig        `toml:"site"`
	Countries  map[string]string `toml:"countries"`
	Fetch      FetchConfig       `toml:"fetch"`
	Cache      CacheConfig       `toml:"cache"`
	Storage    StorageConfig     `toml:"storage"`
	Upload     UploadConfig      `toml:"upload"`
	Revalidate RevalidateConfig  `toml:"revalidate"`
	RSS        RSSConfig         `toml:"rss"`
	Debug      DebugConfig       `toml:"debug"`
	Log        LogConfig         `toml:"log"`
	Metrics    MetricsConfig     `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (3000)
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// BackendConfig describes how to reach the content API.
type BackendConfig struct {
	PublicURL       string `toml:"public_url"`
	InternalURL     string `toml:"internal_url"`
	Hostname        string `toml:"hostname"`
	FrontendAPIKey  string `toml:"frontend_api_key"`
	RelaxedTLS      bool   `toml:"relaxed_tls"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	IdleConnections int    `toml:"idle_connections"`

	// Path templates. DownloadPath understands {country} and {id}.
	MePath          string `toml:"me_path"`
	DownloadPath    string `toml:"download_path"`
	UploadFilePath  string `toml:"upload_file_path"`
	UploadImagePath string `toml:"upload_image_path"`
	PostsPath       string `toml:"posts_path"`
	SettingsPath    string `toml:"settings_path"`
}

// SiteConfig holds settings about the public site itself.
type SiteConfig struct {
	URL          string `toml:"url"`
	DefaultURL   string `toml:"default_url"`
	Environment  string `toml:"environment"`
	ErrorMessage string `toml:"error_message"`
}

// FetchConfig holds defaults for server-side backend fetches.
type FetchConfig struct {
	RevalidateSeconds int    `toml:"revalidate_seconds"`
	DefaultTag        string `toml:"default_tag"`
}

// CacheConfig selects and configures the response cache driver.
type CacheConfig struct {
	Driver        string `toml:"driver"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	Prefix        string `toml:"prefix"`
}

// StorageConfig holds settings for the stored-asset proxy.
type StorageConfig struct {
	CacheControl string `toml:"cache_control"`
}

// UploadConfig holds the upload authorization policy.
type UploadConfig struct {
	AdminRoles []string `toml:"admin_roles"`
	Permission string   `toml:"permission"`
}

// RevalidateConfig holds the revalidation webhook secret.
type RevalidateConfig struct {
	Secret string `toml:"secret"`
}

// RSSConfig holds feed settings.
type RSSConfig struct {
	Limit             int    `toml:"limit"`
	RevalidateSeconds int    `toml:"revalidate_seconds"`
	Title             string `toml:"title"`
	Description       string `toml:"description"`
	Language          string `toml:"language"`
}

// DebugConfig controls the internal fetch probe endpoint.
type DebugConfig struct {
	Enabled   bool   `toml:"enabled"`
	ProbePath string `toml:"probe_path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file, if any, and applies CLI and environment
// overrides. An explicit path (--config or CONFIG_PATH) must exist; otherwise
// /etc/portal-edge/config.toml then configs/config.toml are tried and, when
// neither exists, defaults plus environment are used.
func Load(cli *CLI) (*Config, error) {
	var cfg Config

	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
	if cli.Env != "" {
		c.Site.Environment = cli.Env
	}
	if cli.APIURL != "" {
		c.Backend.PublicURL = cli.APIURL
	}
	if cli.APIInternalURL != "" {
		c.Backend.InternalURL = cli.APIInternalURL
	}
	if cli.APIHostname != "" {
		c.Backend.Hostname = cli.APIHostname
	}
	if cli.FrontendAPIKey != "" {
		c.Backend.FrontendAPIKey = cli.FrontendAPIKey
	}
	if v := strings.TrimSpace(cli.InternalTLS); v != "" {
		c.Backend.RelaxedTLS = v == "0" || strings.EqualFold(v, "false")
	}
	switch {
	case cli.RevalidateKey != "":
		c.Revalidate.Secret = cli.RevalidateKey
	case cli.FrontendRevalid != "" && c.Revalidate.Secret == "":
		c.Revalidate.Secret = cli.FrontendRevalid
	}
	if cli.AppURL != "" {
		c.Site.URL = cli.AppURL
	}
	if cli.CacheDriver != "" {
		c.Cache.Driver = cli.CacheDriver
	}
	if cli.RedisAddr != "" {
		c.Cache.RedisAddr = cli.RedisAddr
	}
}

func (c *Config) validate() error {
	// Backend URLs: public is required, internal is optional.
	if c.Backend.PublicURL == "" {
		return fmt.Errorf("backend.public_url is required (or set NEXT_PUBLIC_API_URL)")
	}
	if err := validateHTTPURL("backend.public_url", c.Backend.PublicURL); err != nil {
		return err
	}
	if c.Backend.InternalURL != "" {
		if err := validateHTTPURL("backend.internal_url", c.Backend.InternalURL); err != nil {
			return err
		}
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Backend.TimeoutSeconds < 0 {
		return fmt.Errorf("backend.timeout_seconds must be non-negative; got %d", c.Backend.TimeoutSeconds)
	}
	if c.Backend.IdleConnections < 0 {
		return fmt.Errorf("backend.idle_connections must be non-negative; got %d", c.Backend.IdleConnections)
	}
	if c.Fetch.RevalidateSeconds < 0 {
		return fmt.Errorf("fetch.revalidate_seconds must be non-negative; got %d", c.Fetch.RevalidateSeconds)
	}
	if c.RSS.Limit < 0 || c.RSS.Limit > 100 {
		return fmt.Errorf("rss.limit must be 0–100; got %d", c.RSS.Limit)
	}
	if c.RSS.RevalidateSeconds < 0 {
		return fmt.Errorf("rss.revalidate_seconds must be non-negative; got %d", c.RSS.RevalidateSeconds)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	switch strings.ToLower(c.Cache.Driver) {
	case "memory", "redis", "none", "":
		// valid
	default:
		return fmt.Errorf("cache.driver must be one of: memory, redis, none; got %q", c.Cache.Driver)
	}

	// Log fields.
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	if c.Debug.ProbePath != "" && c.Debug.ProbePath[0] != '/' {
		return fmt.Errorf("debug.probe_path must start with '/'; got %q", c.Debug.ProbePath)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range []string{"/api", "/rss.xml", "/healthz", "/proxy/status"} {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

func validateHTTPURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https; got %q", field, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s has no host; got %q", field, raw)
	}
	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 64 * 1024 * 1024 // 64 MB, uploads included
	}
	if c.Backend.TimeoutSeconds == 0 {
		c.Backend.TimeoutSeconds = 60
	}
	if c.Backend.IdleConnections == 0 {
		c.Backend.IdleConnections = 100
	}
	if c.Backend.MePath == "" {
		c.Backend.MePath = "/api/me"
	}
	if c.Backend.DownloadPath == "" {
		c.Backend.DownloadPath = "/api/{country}/files/{id}/download"
	}
	if c.Backend.UploadFilePath == "" {
		c.Backend.UploadFilePath = "/api/dashboard/upload/file"
	}
	if c.Backend.UploadImagePath == "" {
		c.Backend.UploadImagePath = "/api/dashboard/upload/image"
	}
	if c.Backend.PostsPath == "" {
		c.Backend.PostsPath = "/api/posts"
	}
	if c.Backend.SettingsPath == "" {
		c.Backend.SettingsPath = "/api/settings"
	}
	if c.Site.DefaultURL == "" {
		c.Site.DefaultURL = "http://localhost:3000"
	}
	if c.Site.ErrorMessage == "" {
		c.Site.ErrorMessage = "حدث خطأ غير متوقع، يرجى المحاولة لاحقاً"
	}
	if c.Fetch.RevalidateSeconds == 0 {
		c.Fetch.RevalidateSeconds = 300
	}
	if c.Fetch.DefaultTag == "" {
		c.Fetch.DefaultTag = "/"
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	c.Cache.Driver = strings.ToLower(c.Cache.Driver)
	if c.Cache.RedisAddr == "" {
		c.Cache.RedisAddr = "127.0.0.1:6379"
	}
	if c.Cache.Prefix == "" {
		c.Cache.Prefix = "portal-edge"
	}
	if c.Storage.CacheControl == "" {
		c.Storage.CacheControl = "public, max-age=86400, stale-while-revalidate=604800"
	}
	if len(c.Upload.AdminRoles) == 0 {
		c.Upload.AdminRoles = []string{"admin", "super-admin", "super_admin"}
	}
	if c.Upload.Permission == "" {
		c.Upload.Permission = "manage files"
	}
	if c.RSS.Limit == 0 {
		c.RSS.Limit = 20
	}
	if c.RSS.RevalidateSeconds == 0 {
		c.RSS.RevalidateSeconds = 3600
	}
	if c.RSS.Title == "" {
		c.RSS.Title = "Latest posts"
	}
	if c.RSS.Language == "" {
		c.RSS.Language = "ar"
	}
	if c.Debug.ProbePath == "" {
		c.Debug.ProbePath = "/api/ping"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WarnPermissions logs a warning if the config file is readable by group or
// others. The file may hold the revalidation secret and the frontend key.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
