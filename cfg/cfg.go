package cfg

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type Secret struct {
	value []byte
}

func NewSecret(s string) Secret {
	return Secret{value: []byte(s)}
}

func (s Secret) Value() string {
	return string(s.value)
}

func (s Secret) Wipe() {
	for i := range s.value {
		s.value[i] = 0
	}
}

func (s Secret) String() string {
	return "***REDACTED***"
}

type Cfg struct {
	Port           string
	Environment    string
	LogLevel       string
	StorageBackend string
	DatabasePath   string

	RedisURL      string
	RedisTLS      bool
	RedisUsername string
	RedisPassword Secret
	RedisTimeout  time.Duration

	LRUCacheSize int
	CacheTTL     time.Duration

	MaxContentBytes int64
	MinTTL          time.Duration
	MaxTTL          time.Duration
	DefaultTTL      time.Duration

	WorkerID       int64
	ObfuscationKey Secret

	RateLimitPerMinute int
	TrustedProxies     []string

	MetricsUser string
	MetricsPass Secret

	ContextTimeout  time.Duration
	CleanupInterval time.Duration

	DBMaxOpenConns int
	DBMaxIdleConns int
	DBQueryTimeout time.Duration
}

func Load() (*Cfg, error) {
	c := &Cfg{}
	c.Port = getEnv("PORT", "8080")
	c.Environment = getEnv("ENVIRONMENT", "development")
	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.StorageBackend = strings.ToLower(getEnv("STORAGE_BACKEND", "sqlite"))
	c.DatabasePath = getEnv("DATABASE_PATH", "snipbin.db")
	c.RedisURL = getEnv("REDIS_URL", "")
	c.RedisTLS = getEnv("REDIS_TLS", "false") == "true"
	c.RedisUsername = getEnv("REDIS_USERNAME", "")
	c.RedisPassword = NewSecret(getEnv("REDIS_PASSWORD", ""))
	var err error
	c.RedisTimeout, err = getDuration("REDIS_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	c.LRUCacheSize, err = getInt("LRU_CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}
	c.CacheTTL, err = getDuration("CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, err
	}
	c.MaxContentBytes, err = getInt64("MAX_CONTENT_BYTES", 64*1024)
	if err != nil {
		return nil, err
	}
	c.MinTTL, err = getDuration("MIN_TTL", 60*time.Second)
	if err != nil {
		return nil, err
	}
	c.MaxTTL, err = getDuration("MAX_TTL", 168*time.Hour)
	if err != nil {
		return nil, err
	}
	c.DefaultTTL, err = getDuration("DEFAULT_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	c.WorkerID, err = getInt64("WORKER_ID", 0)
	if err != nil {
		return nil, err
	}
	c.ObfuscationKey = NewSecret(getEnv("OBFUSCATION_KEY", ""))
	c.RateLimitPerMinute, err = getInt("RATE_LIMIT_PER_MINUTE", 60)
	if err != nil {
		return nil, err
	}
	c.TrustedProxies = getSlice("TRUSTED_PROXIES", []string{})
	c.MetricsUser = getEnv("METRICS_USER", "")
	c.MetricsPass = NewSecret(getEnv("METRICS_PASS", ""))
	c.ContextTimeout, err = getDuration("CONTEXT_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	c.CleanupInterval, err = getDuration("CLEANUP_INTERVAL", 10*time.Minute)
	if err != nil {
		return nil, err
	}
	c.DBMaxOpenConns, err = getInt("DB_MAX_OPEN_CONNS", 100)
	if err != nil {
		return nil, err
	}
	c.DBMaxIdleConns, err = getInt("DB_MAX_IDLE_CONNS", 10)
	if err != nil {
		return nil, err
	}
	c.DBQueryTimeout, err = getDuration("DB_QUERY_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func Validate(c *Cfg) error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return errors.New("PORT must be a number")
	}
	if c.StorageBackend != "sqlite" && c.StorageBackend != "memory" {
		return fmt.Errorf("STORAGE_BACKEND must be sqlite or memory, got %q", c.StorageBackend)
	}
	if c.StorageBackend == "sqlite" && c.DatabasePath == "" {
		return errors.New("DATABASE_PATH is required for the sqlite backend")
	}
	if c.RedisURL != "" {
		if !strings.HasPrefix(c.RedisURL, "redis://") && !strings.HasPrefix(c.RedisURL, "rediss://") {
			return errors.New("REDIS_URL must start with redis:// or rediss://")
		}
		if strings.HasPrefix(c.RedisURL, "rediss://") && !c.RedisTLS {
			return errors.New("REDIS_URL uses rediss:// but REDIS_TLS=false")
		}
	}
	if c.LRUCacheSize <= 0 {
		return errors.New("LRU_CACHE_SIZE must be positive")
	}
	if c.CacheTTL <= 0 {
		return errors.New("CACHE_TTL must be positive")
	}
	if c.CacheTTL > 5*time.Minute {
		return errors.New("CACHE_TTL should not exceed 5 minutes")
	}
	if c.MaxContentBytes <= 0 {
		return errors.New("MAX_CONTENT_BYTES must be positive")
	}
	if c.MaxContentBytes > 10*1024*1024 {
		return errors.New("MAX_CONTENT_BYTES cannot exceed 10MB")
	}
	if c.MinTTL < time.Second {
		return errors.New("MIN_TTL must be at least 1 second")
	}
	if c.MaxTTL < c.MinTTL {
		return errors.New("MAX_TTL must be >= MIN_TTL")
	}
	if c.DefaultTTL < c.MinTTL || c.DefaultTTL > c.MaxTTL {
		return errors.New("DEFAULT_TTL must lie within [MIN_TTL, MAX_TTL]")
	}
	if c.WorkerID < 0 || c.WorkerID > 1023 {
		return errors.New("WORKER_ID must be in [0, 1023]")
	}
	if len(c.ObfuscationKey.Value()) == 0 {
		return errors.New("OBFUSCATION_KEY is required")
	}
	if len(c.ObfuscationKey.Value()) < 16 {
		return errors.New("OBFUSCATION_KEY must be at least 16 bytes")
	}
	if c.RateLimitPerMinute <= 0 {
		return errors.New("RATE_LIMIT_PER_MINUTE must be positive")
	}
	for _, proxy := range c.TrustedProxies {
		if strings.Contains(proxy, "/") {
			if _, _, err := net.ParseCIDR(proxy); err != nil {
				return fmt.Errorf("invalid CIDR in TRUSTED_PROXIES: %s", proxy)
			}
		} else {
			if net.ParseIP(proxy) == nil {
				return fmt.Errorf("invalid IP in TRUSTED_PROXIES: %s", proxy)
			}
		}
	}
	if c.Environment == "production" {
		if c.MetricsUser == "" || c.MetricsPass.Value() == "" {
			return errors.New("METRICS_USER and METRICS_PASS are required in production")
		}
	}
	if c.CleanupInterval < time.Minute {
		return errors.New("CLEANUP_INTERVAL must be at least 1 minute")
	}
	return nil
}

func (c *Cfg) Wipe() {
	c.RedisPassword.Wipe()
	c.MetricsPass.Wipe()
	c.ObfuscationKey.Wipe()
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return v, nil
}

func getInt64(key string, fallback int64) (int64, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return v, nil
}

func getSlice(key string, fallback []string) []string {
	s := getEnv(key, "")
	if s == "" {
		return fallback
	}
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
