package server

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap"

	"github.com/legit-games/grant-engine/manage"
)

// AppConfig defines application configuration loaded from files and environment.
type AppConfig struct {
	Env       string          `koanf:"env"`
	Addr      string          `koanf:"addr"`
	Issuer    string          `koanf:"issuer"`
	KeysDir   string          `koanf:"keys_dir"`
	Token     TokenConfig     `koanf:"token"`
	Valkey    ValkeyConfig    `koanf:"valkey"`
	Database  DatabaseConfig  `koanf:"database"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Sweeper   SweeperConfig   `koanf:"sweeper"`
}

// TokenConfig holds token lifetimes and flow toggles.
type TokenConfig struct {
	AccessTTL     time.Duration `koanf:"access_ttl"`
	RefreshTTL    time.Duration `koanf:"refresh_ttl"`
	CodeTTL       time.Duration `koanf:"code_ttl"`
	AllowImplicit bool          `koanf:"allow_implicit"`
}

type ValkeyConfig struct {
	Addr   string `koanf:"addr"`
	Prefix string `koanf:"prefix"`
}

type DatabaseConfig struct {
	DSN    string `koanf:"dsn"`
	Driver string `koanf:"driver"`
}

type RateLimitConfig struct {
	TokenPerMinute int `koanf:"token_per_minute"`
}

type SweeperConfig struct {
	Interval time.Duration `koanf:"interval"`
}

const defaultTokenPerMinute = 600

var (
	cfgOnce sync.Once
	cfgInst *AppConfig
)

// GetConfig loads and returns the singleton AppConfig. Loading order:
// 1) config/config.yaml (optional)
// 2) config/config.<APP_ENV>.yaml (optional), APP_ENV defaults to "local"
// 3) Environment variables with prefix IAM_ mapped using __ as nested separator, e.g. IAM_DATABASE__DSN
func GetConfig() *AppConfig {
	cfgOnce.Do(func() {
		cfgInst = LoadConfig(zap.L())
	})
	return cfgInst
}

// LoadConfig reads the configuration without caching it.
func LoadConfig(log *zap.Logger) *AppConfig {
	if log == nil {
		log = zap.NewNop()
	}
	k := koanf.New(".")
	// Config directory (CONFIG_DIR) default ./config
	configDir := os.Getenv("CONFIG_DIR")
	if configDir == "" {
		configDir = "config"
	}
	// Whether to load files (default: disabled to keep tests isolated)
	loadFiles := strings.EqualFold(os.Getenv("APP_CONFIG_FILES"), "1") || strings.EqualFold(os.Getenv("APP_CONFIG_FILES"), "true")
	envName := os.Getenv("APP_ENV")
	if envName == "" {
		envName = "local"
	}
	if loadFiles {
		for _, name := range []string{"config.yaml", "config." + envName + ".yaml"} {
			path := filepath.Join(configDir, name)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				log.Warn("config: failed loading file", zap.String("path", path), zap.Error(err))
			}
		}
	}
	// IAM_TOKEN__ACCESS_TTL -> token.access_ttl
	if err := k.Load(env.Provider("IAM_", ".", envKey), nil); err != nil {
		log.Warn("config: failed loading env", zap.Error(err))
	}

	var c AppConfig
	if err := k.Unmarshal("", &c); err != nil {
		log.Warn("config: unmarshal error", zap.Error(err))
	}
	if c.Env == "" {
		c.Env = envName
	}
	// an explicit zero disables rate limiting
	if !k.Exists("rate_limit.token_per_minute") {
		c.RateLimit.TokenPerMinute = defaultTokenPerMinute
	}
	c.applyDefaults()
	return &c
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "IAM_")), "__", ".")
}

func (c *AppConfig) applyDefaults() {
	if c.Addr == "" {
		c.Addr = ":9096"
	}
	if c.Issuer == "" {
		c.Issuer = "http://localhost:9096"
	}
	if c.Valkey.Prefix == "" {
		c.Valkey.Prefix = "iam:"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Sweeper.Interval <= 0 {
		c.Sweeper.Interval = 10 * time.Minute
	}
}

// DatabaseDSN returns the effective DSN for the session database (config first, then env fallback to MIGRATE_DSN).
func (c *AppConfig) DatabaseDSN() string {
	if c != nil && c.Database.DSN != "" {
		return strings.TrimSpace(c.Database.DSN)
	}
	dsn := strings.TrimSpace(os.Getenv("USER_DB_DSN"))
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("MIGRATE_DSN"))
	}
	return dsn
}

// ManageConfig maps the token section onto the grant engine configuration.
func (c *AppConfig) ManageConfig() manage.Config {
	return manage.Config{
		Issuer:          c.Issuer,
		AccessTokenTTL:  c.Token.AccessTTL,
		RefreshTokenTTL: c.Token.RefreshTTL,
		AuthCodeTTL:     c.Token.CodeTTL,
		AllowImplicit:   c.Token.AllowImplicit,
	}
}

// ServerConfig maps onto the HTTP layer configuration.
func (c *AppConfig) ServerConfig() *Config {
	cfg := NewConfig()
	cfg.Issuer = c.Issuer
	cfg.AllowImplicit = c.Token.AllowImplicit
	cfg.TokenRateLimit = c.RateLimit.TokenPerMinute
	return cfg
}
