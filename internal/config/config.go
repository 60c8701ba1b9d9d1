package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains runtime configuration values.
type Config struct {
	Environment          string
	HTTPPort             string
	DatabaseURL          string
	EncryptionKey        string
	AppURL               string
	RefreshThreshold     time.Duration
	UpstreamTimeout      time.Duration
	AttemptTTL           time.Duration
	ServiceName          string
	RateLimitRPM         int
	TelemetryEndpoint    string
	TelemetryInsecure    bool
	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
	Shopee               ShopeeConfig
	TikTok               TikTokConfig
}

// ShopeeConfig holds partner credentials for the signed Shopee API.
type ShopeeConfig struct {
	Enabled     bool
	PartnerID   string
	PartnerKey  string
	ShopID      string
	BaseURL     string
	RedirectURL string
}

// TikTokConfig holds app credentials for the bearer-token TikTok API.
type TikTokConfig struct {
	Enabled     bool
	AppID       string
	AppSecret   string
	BaseURL     string
	AuthURL     string
	APIVersion  string
	RedirectURL string
	Scopes      []string
}

// Load reads configuration from environment variables with sane defaults.
// A platform is enabled when its primary credential is set; a half-configured
// platform is a startup error so the service never runs with partial secrets.
func Load() (Config, error) {
	cfg := Config{
		Environment:          getEnv("APP_ENV", "development"),
		HTTPPort:             getEnv("HTTP_PORT", "4000"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		EncryptionKey:        os.Getenv("TOKEN_ENCRYPTION_KEY"),
		AppURL:               getEnv("APP_URL", "http://localhost:3000"),
		RefreshThreshold:     getDuration("TOKEN_REFRESH_THRESHOLD", 30*time.Minute),
		UpstreamTimeout:      getDuration("UPSTREAM_TIMEOUT", 30*time.Second),
		AttemptTTL:           getDuration("AUTH_ATTEMPT_TTL", 5*time.Minute),
		ServiceName:          getEnv("SERVICE_NAME", "partner-broker"),
		RateLimitRPM:         getInt("RATE_LIMIT_RPM", 600),
		TelemetryEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:    getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type"}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", false),
		Shopee: ShopeeConfig{
			PartnerID:   os.Getenv("SHOPEE_PARTNER_ID"),
			PartnerKey:  os.Getenv("SHOPEE_PARTNER_KEY"),
			ShopID:      os.Getenv("SHOPEE_SHOP_ID"),
			BaseURL:     getEnv("SHOPEE_BASE_URL", "https://partner.shopeemobile.com"),
			RedirectURL: os.Getenv("SHOPEE_REDIRECT_URL"),
		},
		TikTok: TikTokConfig{
			AppID:       os.Getenv("TIKTOK_APP_ID"),
			AppSecret:   os.Getenv("TIKTOK_APP_SECRET"),
			BaseURL:     getEnv("TIKTOK_BASE_URL", "https://business-api.tiktok.com"),
			AuthURL:     getEnv("TIKTOK_AUTH_URL", "https://ads.tiktok.com/marketing_api/auth"),
			APIVersion:  getEnv("TIKTOK_API_VERSION", "v1.3"),
			RedirectURL: os.Getenv("TIKTOK_REDIRECT_URL"),
			Scopes:      getList("TIKTOK_SCOPES", []string{"user_info", "ad.read", "campaign_list", "report_read"}),
		},
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.EncryptionKey == "" {
		return Config{}, fmt.Errorf("TOKEN_ENCRYPTION_KEY is required")
	}

	cfg.Shopee.Enabled = cfg.Shopee.PartnerID != ""
	if cfg.Shopee.Enabled && cfg.Shopee.PartnerKey == "" {
		return Config{}, fmt.Errorf("SHOPEE_PARTNER_KEY is required when SHOPEE_PARTNER_ID is set")
	}

	cfg.TikTok.Enabled = cfg.TikTok.AppID != ""
	if cfg.TikTok.Enabled && cfg.TikTok.AppSecret == "" {
		return Config{}, fmt.Errorf("TIKTOK_APP_SECRET is required when TIKTOK_APP_ID is set")
	}

	if !cfg.Shopee.Enabled && !cfg.TikTok.Enabled {
		return Config{}, fmt.Errorf("no platform configured: set SHOPEE_PARTNER_ID or TIKTOK_APP_ID")
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
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
