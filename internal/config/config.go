package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/smallbiznis/valora-sleep/internal/domain"
	domainoauth "github.com/smallbiznis/valora-sleep/internal/domain/oauth"
)

const (
	defaultWhoopAuthURL    = "https://api.prod.whoop.com/oauth/oauth2/auth"
	defaultWhoopTokenURL   = "https://api.prod.whoop.com/oauth/oauth2/token"
	defaultWhoopAPIBaseURL = "https://api.prod.whoop.com/developer/v2"
	defaultWhoopScopes     = "offline read:sleep"
)

// Config contains runtime configuration values.
type Config struct {
	Environment          string
	HTTPPort             string
	ServiceName          string
	WhoopClientID        string
	WhoopClientSecret    string
	WhoopRedirectURI     string
	WhoopAuthURL         string
	WhoopTokenURL        string
	WhoopAPIBaseURL      string
	WhoopScopes          []string
	WhoopTokenStyle      domainoauth.TokenStyle
	AnalysisURL          string
	PostAuthRedirect     string
	StateTTL             time.Duration
	TokenTimeout         time.Duration
	FetchTimeout         time.Duration
	AnalysisTimeout      time.Duration
	RetryOnUnauthorized  bool
	CookieSecure         bool
	SessionSecret        string
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	RateLimitRPM         int
	ServiceVersion       string
	ShutdownTimeout      time.Duration
	ReadHeaderTimeout    time.Duration
	TelemetryEndpoint    string
	TelemetryInsecure    bool
	TelemetryHeaders     map[string]string
	TelemetrySampleRatio float64
	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
	UIDistDir            string
}

// Provider returns the OAuth client registration derived from the config.
func (c Config) Provider() domainoauth.ProviderConfig {
	return domainoauth.ProviderConfig{
		ClientID:     c.WhoopClientID,
		ClientSecret: c.WhoopClientSecret,
		AuthURL:      c.WhoopAuthURL,
		TokenURL:     c.WhoopTokenURL,
		RedirectURI:  c.WhoopRedirectURI,
		Scopes:       append([]string{}, c.WhoopScopes...),
		TokenStyle:   c.WhoopTokenStyle,
	}
}

// Load reads configuration from the environment, an optional .env file and an
// optional TOML file named by SLEEPGATE_CONFIG. Environment values win.
func Load() (Config, error) {
	_ = godotenv.Load()

	src, err := newSource(os.Getenv("SLEEPGATE_CONFIG"))
	if err != nil {
		return Config{}, err
	}
	return src.build()
}

func (s source) build() (Config, error) {
	cfg := Config{
		Environment:          s.getEnv("APP_ENV", "development"),
		HTTPPort:             s.getEnv("HTTP_PORT", "3000"),
		ServiceName:          s.getEnv("SERVICE_NAME", "valora-sleep"),
		WhoopClientID:        strings.TrimSpace(s.getEnv("WHOOP_CLIENT_ID", "")),
		WhoopClientSecret:    strings.TrimSpace(s.getEnv("WHOOP_CLIENT_SECRET", "")),
		WhoopRedirectURI:     strings.TrimSpace(s.getEnv("WHOOP_REDIRECT_URI", "")),
		WhoopAuthURL:         s.getEnv("WHOOP_AUTH_URL", defaultWhoopAuthURL),
		WhoopTokenURL:        s.getEnv("WHOOP_TOKEN_URL", defaultWhoopTokenURL),
		WhoopAPIBaseURL:      strings.TrimRight(s.getEnv("WHOOP_API_BASE_URL", defaultWhoopAPIBaseURL), "/"),
		WhoopScopes:          strings.Fields(s.getEnv("WHOOP_SCOPES", defaultWhoopScopes)),
		WhoopTokenStyle:      domainoauth.ParseTokenStyle(s.getEnv("WHOOP_TOKEN_AUTH_STYLE", "params")),
		AnalysisURL:          strings.TrimSpace(s.getEnv("ANALYSIS_API_URL", s.getEnv("API_URL", ""))),
		PostAuthRedirect:     s.getEnv("POST_AUTH_REDIRECT", "/#whoop"),
		StateTTL:             s.getDuration("STATE_TTL", 10*time.Minute),
		TokenTimeout:         s.getDuration("TOKEN_TIMEOUT", 10*time.Second),
		FetchTimeout:         s.getDuration("FETCH_TIMEOUT", 10*time.Second),
		AnalysisTimeout:      s.getDuration("ANALYSIS_TIMEOUT", 30*time.Second),
		RetryOnUnauthorized:  s.getBool("RETRY_ON_UNAUTHORIZED", true),
		CookieSecure:         s.getBool("COOKIE_SECURE", false),
		SessionSecret:        s.getEnv("SESSION_SECRET", ""),
		RedisAddr:            s.getEnv("REDIS_ADDR", ""),
		RedisPassword:        s.getEnv("REDIS_PASSWORD", ""),
		RedisDB:              s.getInt("REDIS_DB", 0),
		RateLimitRPM:         s.getInt("RATE_LIMIT_RPM", 600),
		ServiceVersion:       s.getEnv("SERVICE_VERSION", "dev"),
		ShutdownTimeout:      s.getDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		ReadHeaderTimeout:    s.getDuration("HTTP_READ_HEADER_TIMEOUT", 10*time.Second),
		TelemetryEndpoint:    s.getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		TelemetryInsecure:    s.getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		TelemetryHeaders:     s.getPairs("OTEL_EXPORTER_OTLP_HEADERS"),
		TelemetrySampleRatio: s.getFloat("OTEL_TRACES_SAMPLE_RATIO", 1.0),
		CORSAllowedOrigins:   s.getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:   s.getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
		CORSAllowedHeaders:   s.getList("CORS_ALLOWED_HEADERS", []string{"Content-Type"}),
		CORSAllowCredentials: s.getBool("CORS_ALLOW_CREDENTIALS", true),
		UIDistDir:            strings.TrimSpace(s.getEnv("UI_DIST_DIR", "")),
	}

	if cfg.WhoopClientID == "" {
		return Config{}, domain.NewConfigError("WHOOP_CLIENT_ID")
	}
	if cfg.WhoopClientSecret == "" {
		return Config{}, domain.NewConfigError("WHOOP_CLIENT_SECRET")
	}
	if cfg.WhoopRedirectURI == "" {
		return Config{}, domain.NewConfigError("WHOOP_REDIRECT_URI")
	}
	if !absoluteURL(cfg.WhoopRedirectURI) {
		return Config{}, &domain.ConfigError{Key: "WHOOP_REDIRECT_URI", Reason: "must be an absolute URL"}
	}
	if cfg.AnalysisURL == "" {
		return Config{}, domain.NewConfigError("ANALYSIS_API_URL")
	}
	if !absoluteURL(cfg.AnalysisURL) {
		return Config{}, &domain.ConfigError{Key: "ANALYSIS_API_URL", Reason: "must be an absolute URL"}
	}
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = 10 * time.Minute
	}
	if cfg.TelemetrySampleRatio < 0 || cfg.TelemetrySampleRatio > 1 {
		return Config{}, &domain.ConfigError{Key: "OTEL_TRACES_SAMPLE_RATIO", Reason: "must be between 0 and 1"}
	}

	return cfg, nil
}

func absoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// source resolves a key from the environment first, then the file values.
type source struct {
	file map[string]string
}

func newSource(path string) (source, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return source{}, nil
	}
	values, err := readFile(path)
	if err != nil {
		return source{}, err
	}
	return source{file: values}, nil
}

// fileConfig is the TOML layout accepted by SLEEPGATE_CONFIG.
type fileConfig struct {
	Environment string `toml:"environment"`
	HTTP        struct {
		Port           string   `toml:"port"`
		RateLimitRPM   *int     `toml:"rate_limit_rpm"`
		AllowedOrigins []string `toml:"allowed_origins"`
	} `toml:"http"`
	Whoop struct {
		ClientID     string `toml:"client_id"`
		ClientSecret string `toml:"client_secret"`
		RedirectURI  string `toml:"redirect_uri"`
		AuthURL      string `toml:"auth_url"`
		TokenURL     string `toml:"token_url"`
		APIBaseURL   string `toml:"api_base_url"`
		Scopes       string `toml:"scopes"`
		TokenStyle   string `toml:"token_auth_style"`
	} `toml:"whoop"`
	Analysis struct {
		URL     string `toml:"url"`
		Timeout string `toml:"timeout"`
	} `toml:"analysis"`
	Session struct {
		Secret           string `toml:"secret"`
		CookieSecure     *bool  `toml:"cookie_secure"`
		PostAuthRedirect string `toml:"post_auth_redirect"`
		StateTTL         string `toml:"state_ttl"`
	} `toml:"session"`
	Redis struct {
		Addr     string `toml:"addr"`
		Password string `toml:"password"`
		DB       *int   `toml:"db"`
	} `toml:"redis"`
}

func readFile(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := toml.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	values := map[string]string{}
	set := func(key, val string) {
		if strings.TrimSpace(val) != "" {
			values[key] = val
		}
	}
	set("APP_ENV", fc.Environment)
	set("HTTP_PORT", fc.HTTP.Port)
	if fc.HTTP.RateLimitRPM != nil {
		values["RATE_LIMIT_RPM"] = strconv.Itoa(*fc.HTTP.RateLimitRPM)
	}
	set("CORS_ALLOWED_ORIGINS", strings.Join(fc.HTTP.AllowedOrigins, ","))
	set("WHOOP_CLIENT_ID", fc.Whoop.ClientID)
	set("WHOOP_CLIENT_SECRET", fc.Whoop.ClientSecret)
	set("WHOOP_REDIRECT_URI", fc.Whoop.RedirectURI)
	set("WHOOP_AUTH_URL", fc.Whoop.AuthURL)
	set("WHOOP_TOKEN_URL", fc.Whoop.TokenURL)
	set("WHOOP_API_BASE_URL", fc.Whoop.APIBaseURL)
	set("WHOOP_SCOPES", fc.Whoop.Scopes)
	set("WHOOP_TOKEN_AUTH_STYLE", fc.Whoop.TokenStyle)
	set("ANALYSIS_API_URL", fc.Analysis.URL)
	set("ANALYSIS_TIMEOUT", fc.Analysis.Timeout)
	set("SESSION_SECRET", fc.Session.Secret)
	if fc.Session.CookieSecure != nil {
		values["COOKIE_SECURE"] = strconv.FormatBool(*fc.Session.CookieSecure)
	}
	set("POST_AUTH_REDIRECT", fc.Session.PostAuthRedirect)
	set("STATE_TTL", fc.Session.StateTTL)
	set("REDIS_ADDR", fc.Redis.Addr)
	set("REDIS_PASSWORD", fc.Redis.Password)
	if fc.Redis.DB != nil {
		values["REDIS_DB"] = strconv.Itoa(*fc.Redis.DB)
	}
	return values, nil
}

func (s source) lookup(key string) (string, bool) {
	if v, ok := os.LookupEnv(key); ok {
		return v, true
	}
	v, ok := s.file[key]
	return v, ok
}

func (s source) getEnv(key, def string) string {
	if v, ok := s.lookup(key); ok {
		return v
	}
	return def
}

func (s source) getDuration(key string, def time.Duration) time.Duration {
	if v, ok := s.lookup(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func (s source) getInt(key string, def int) int {
	if v, ok := s.lookup(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func (s source) getFloat(key string, def float64) float64 {
	if v, ok := s.lookup(key); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err == nil {
			return f
		}
	}
	return def
}

// getPairs parses "k1=v1,k2=v2".
func (s source) getPairs(key string) map[string]string {
	out := map[string]string{}
	for _, item := range s.getList(key, nil) {
		k, v, ok := strings.Cut(item, "=")
		if !ok || strings.TrimSpace(k) == "" {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}

func (s source) getBool(key string, def bool) bool {
	if v, ok := s.lookup(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func (s source) getList(key string, def []string) []string {
	if v, ok := s.lookup(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
