package app

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/aussiebroadwan/tenantadmin/pkg/cryptox"
	"github.com/aussiebroadwan/tenantadmin/pkg/httpx"
	"github.com/aussiebroadwan/tenantadmin/pkg/jwtx"
)

const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// Config is read from the environment, with an optional .env file in the
// working directory underneath it.
type Config struct {
	Env                  string        `mapstructure:"ENV"`
	LogLevel             string        `mapstructure:"LOG_LEVEL"`
	LogFormat            string        `mapstructure:"LOG_FORMAT"`
	Port                 int           `mapstructure:"PORT"`
	ShutdownGracePeriod  time.Duration `mapstructure:"SHUTDOWN_GRACE_PERIOD"`
	HousekeepingInterval time.Duration `mapstructure:"HOUSEKEEPING_INTERVAL"`

	Issuer        string        `mapstructure:"AUTH_ISSUER"`
	AccessSecret  string        `mapstructure:"AUTH_ACCESS_TOKEN_SECRET"`
	RefreshSecret string        `mapstructure:"AUTH_REFRESH_TOKEN_SECRET"`
	AccessTTL     time.Duration `mapstructure:"AUTH_ACCESS_TTL"`
	RefreshTTL    time.Duration `mapstructure:"AUTH_REFRESH_TTL"`
	RotateRefresh bool          `mapstructure:"AUTH_ROTATE_REFRESH"`
	CookieSecure  bool          `mapstructure:"AUTH_COOKIE_SECURE"`
	CookieDomain  string        `mapstructure:"AUTH_COOKIE_DOMAIN"`
	EnforceMFA    bool          `mapstructure:"AUTH_ENFORCE_MFA_SERVER"`
	MasterKey     string        `mapstructure:"AUTH_MASTER_KEY"` // seals TOTP secrets
	PepperFile    string        `mapstructure:"AUTH_PEPPER_FILE"`

	StoreDriver   string        `mapstructure:"STORE_DRIVER"` // sqlite or mongo
	DatabaseFile  string        `mapstructure:"AUTH_DATABASE_FILE"`
	MongoURI      string        `mapstructure:"MONGODB_URI"`
	MongoDatabase string        `mapstructure:"MONGODB_DATABASE"`
	MongoTimeout  time.Duration `mapstructure:"MONGODB_TIMEOUT"`

	// Rate limits are shared through redis when RedisAddr is set.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	CORSAllowedOrigins string        `mapstructure:"CORS_ALLOWED_ORIGINS"` // comma separated
	AuditRetention     time.Duration `mapstructure:"AUDIT_RETENTION"`

	// TrustedProxies lists the CIDRs whose X-Forwarded-For is believed.
	TrustedProxies       string         `mapstructure:"TRUSTED_PROXIES"`
	TrustedProxyPrefixes []netip.Prefix `mapstructure:"-"`

	AdminUsername string `mapstructure:"ADMIN_USERNAME"`
	AdminPassword string `mapstructure:"ADMIN_PASSWORD"`
	AdminEmail    string `mapstructure:"ADMIN_EMAIL"`

	// Generated lists the secrets that were missing and made up for this
	// run. Only dev allows that.
	Generated []string `mapstructure:"-"`
}

var defaults = map[string]any{
	"ENV":                   "dev",
	"LOG_LEVEL":             "info",
	"LOG_FORMAT":            "json",
	"PORT":                  8080,
	"SHUTDOWN_GRACE_PERIOD": "10s",
	"HOUSEKEEPING_INTERVAL": "1h",

	"AUTH_ISSUER":               "tenantadmin-auth",
	"AUTH_ACCESS_TOKEN_SECRET":  "",
	"AUTH_REFRESH_TOKEN_SECRET": "",
	"AUTH_ACCESS_TTL":           jwtx.DefaultAccessTokenTTL.String(),
	"AUTH_REFRESH_TTL":          jwtx.DefaultRefreshTokenTTL.String(),
	"AUTH_ROTATE_REFRESH":       false,
	"AUTH_COOKIE_SECURE":        true,
	"AUTH_COOKIE_DOMAIN":        "",
	"AUTH_ENFORCE_MFA_SERVER":   true,
	"AUTH_MASTER_KEY":           "",
	"AUTH_PEPPER_FILE":          "pepper",

	"STORE_DRIVER":       DriverSQLite,
	"AUTH_DATABASE_FILE": "auth.db",
	"MONGODB_URI":        "mongodb://localhost:27017",
	"MONGODB_DATABASE":   "tenantadmin",
	"MONGODB_TIMEOUT":    "10s",

	"REDIS_ADDR":     "",
	"REDIS_PASSWORD": "",
	"REDIS_DB":       0,

	"CORS_ALLOWED_ORIGINS": "",
	"AUDIT_RETENTION":      "2160h",
	"TRUSTED_PROXIES":      "",

	"ADMIN_USERNAME": "",
	"ADMIN_PASSWORD": "",
	"ADMIN_EMAIL":    "",
}

// LoadConfig reads .env if present, then the environment. Variables already
// set in the environment win over .env.
func LoadConfig() (Config, error) {
	_ = godotenv.Load() // a missing .env is fine

	v := viper.New()
	v.AutomaticEnv()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// CORSOrigins splits CORSAllowedOrigins.
func (c Config) CORSOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case DriverSQLite, DriverMongo:
	default:
		return fmt.Errorf("config: STORE_DRIVER must be %q or %q, got %q", DriverSQLite, DriverMongo, c.StoreDriver)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: PORT out of range: %d", c.Port)
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return errors.New("config: AUTH_ACCESS_TTL and AUTH_REFRESH_TTL must be positive")
	}
	if c.RefreshTTL <= c.AccessTTL {
		return errors.New("config: AUTH_REFRESH_TTL must be longer than AUTH_ACCESS_TTL")
	}
	proxies, err := httpx.ParseTrustedProxies(c.TrustedProxies)
	if err != nil {
		return fmt.Errorf("config: TRUSTED_PROXIES: %w", err)
	}
	c.TrustedProxyPrefixes = proxies

	secrets := []struct {
		key string
		val *string
	}{
		{"AUTH_ACCESS_TOKEN_SECRET", &c.AccessSecret},
		{"AUTH_REFRESH_TOKEN_SECRET", &c.RefreshSecret},
		{"AUTH_MASTER_KEY", &c.MasterKey},
	}
	for _, s := range secrets {
		if *s.val != "" {
			continue
		}
		if c.Env != "dev" {
			return fmt.Errorf("config: %s is required when ENV=%s", s.key, c.Env)
		}
		gen, err := cryptox.GenerateToken(jwtx.MinSecretLen)
		if err != nil {
			return err
		}
		*s.val = gen
		c.Generated = append(c.Generated, s.key)
	}

	if len(c.AccessSecret) < jwtx.MinSecretLen || len(c.RefreshSecret) < jwtx.MinSecretLen {
		return fmt.Errorf("config: token secrets must be at least %d bytes", jwtx.MinSecretLen)
	}
	if c.AccessSecret == c.RefreshSecret {
		return errors.New("config: AUTH_ACCESS_TOKEN_SECRET and AUTH_REFRESH_TOKEN_SECRET must differ")
	}
	return nil
}
