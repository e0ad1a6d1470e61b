package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv         string
	Port           string
	StoriesDir     string
	PublicBasePath string
	UniversesPath  string

	GeminiAPIKey     string
	GeminiBaseURL    string
	GeminiStoryModel string
	GeminiImageModel string

	RetryMaxAttempts  int
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration
	MinImageSuccesses int

	DatabaseURL string
	GeoIPDBPath string

	CORSAllowedOrigins []string
	RateLimitPerMin    int
	HTTPReadTimeout    time.Duration
	HTTPIdleTimeout    time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               getEnv("PORT", "8000"),
		StoriesDir:         getEnv("STORIES_DIR", "historias"),
		PublicBasePath:     getEnv("PUBLIC_BASE_PATH", "/historias"),
		UniversesPath:      os.Getenv("UNIVERSES_PATH"),
		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		GeminiBaseURL:      getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiStoryModel:   getEnv("GEMINI_STORY_MODEL", "gemini-2.5-flash"),
		GeminiImageModel:   getEnv("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image"),
		RetryMaxAttempts:   getEnvInt("STORY_RETRY_MAX_ATTEMPTS", 5),
		RetryBaseDelay:     getEnvMillis("STORY_RETRY_BASE_DELAY_MS", time.Second),
		RetryMaxDelay:      getEnvMillis("STORY_RETRY_MAX_DELAY_MS", 5*time.Second),
		MinImageSuccesses:  getEnvInt("STORY_MIN_IMAGE_SUCCESSES", 1),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		GeoIPDBPath:        os.Getenv("GEOIP_DB_PATH"),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 120)),
	}

	if cfg.RetryMaxAttempts < 1 {
		return nil, fmt.Errorf("STORY_RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.RetryBaseDelay < 0 || cfg.RetryMaxDelay < cfg.RetryBaseDelay {
		return nil, fmt.Errorf("STORY_RETRY_MAX_DELAY_MS must not be below STORY_RETRY_BASE_DELAY_MS")
	}
	if cfg.MinImageSuccesses < 1 {
		return nil, fmt.Errorf("STORY_MIN_IMAGE_SUCCESSES must be at least 1")
	}
	if !strings.HasPrefix(cfg.PublicBasePath, "/") {
		return nil, fmt.Errorf("PUBLIC_BASE_PATH must start with /")
	}

	return cfg, nil
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvMillis(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return time.Duration(i) * time.Millisecond
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
