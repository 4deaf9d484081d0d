package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host         string
	Port         int
	PublicURL    string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StorageConfig struct {
	Endpoint    string
	AccessKey   string
	SecretKey   string
	BucketTheme string
	UseSSL      bool
	Region      string
}

type SecurityConfig struct {
	CookieName        string
	CookieSecret      string
	CookieSecure      bool
	CookieDomain      string
	FingerprintSecret string
	MemberIDSecret    string
	HostSessionTTL    time.Duration
	RememberMeTTL     time.Duration
}

// AuthConfig holds the fallback used when the options table has no value yet.
type AuthConfig struct {
	DefaultSessionDays int
}

type GaletteConfig struct {
	BaseURL             string
	APIToken            string
	JWKSURL             string
	Issuer              string
	AuthorizeURL        string
	ClientID            string
	ClientTimeout       time.Duration
	JWKSRefreshInterval time.Duration
	JWTLeeway           time.Duration
	BureauGroups        []string
	MemberGroups        []string
}

type GuardConfig struct {
	ProtectedSlugs []string
	LoginPath      string
}

type WorkerConfig struct {
	Stream        string
	Group         string
	Consumer      string
	ClaimInterval time.Duration
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

type AppConfig struct {
	Environment      string
	LogLevel         string
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Security         SecurityConfig
	Auth             AuthConfig
	Galette          GaletteConfig
	Guard            GuardConfig
	Worker           WorkerConfig
	Metrics          MetricsConfig
	AllowCORSOrigins []string
}

// ExternalAuthAvailable reports whether an external identity provider is configured.
func (c *AppConfig) ExternalAuthAvailable() bool {
	return c.Galette.JWKSURL != ""
}

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("LEMUR")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("loglevel", "info")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.publicurl", "http://localhost:8080")
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("postgres.maxopen", 20)
	v.SetDefault("postgres.maxidle", 4)
	v.SetDefault("postgres.connmaxlifetime", "30m")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.buckettheme", "lemur-theme")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")

	v.SetDefault("security.cookiename", "lemur_auth")
	v.SetDefault("security.cookiesecure", true)
	v.SetDefault("security.hostsessionttl", "48h")
	v.SetDefault("security.remembermettl", "336h") // 14 days

	v.SetDefault("auth.defaultsessiondays", 7)

	v.SetDefault("galette.clienttimeout", "15s")
	v.SetDefault("galette.jwksrefreshinterval", "1h")
	v.SetDefault("galette.jwtleeway", "30s")
	v.SetDefault("galette.bureaugroups", []string{"bureau", "bureau-lemur", "administrateurs"})
	v.SetDefault("galette.membergroups", []string{"membres", "adherents", "lemur-membres"})

	v.SetDefault("guard.protectedslugs", []string{
		"espace-membre",
		"espace-membres",
		"mon-compte",
		"documents-membres",
		"kanban",
		"annuaire",
	})
	v.SetDefault("guard.loginpath", "/connexion")

	v.SetDefault("worker.stream", "lemur:jobs")
	v.SetDefault("worker.group", "lemur-workers")
	v.SetDefault("worker.consumer", "worker-1")
	v.SetDefault("worker.claiminterval", "30s")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}
