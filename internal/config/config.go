package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const EnvironmentProduction = "production"

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StorageConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	BucketArchive string
	UseSSL        bool
	Region        string
}

type SecurityConfig struct {
	JWTSecret         string
	JWTIssuer         string
	JWTAudience       string
	SessionTTL        time.Duration
	ResetTokenTTL     time.Duration
	SweepSchedule     string
	LoginMaxFailures  int
	LoginWindow       time.Duration
	ResetMaxAttempts  int
	ResetWindow       time.Duration
	ExposeResetTokens bool
	// memory or redis
	StoreBackend   string
	LimiterBackend string
}

type AuditConfig struct {
	QueueSize     int
	Stream        string
	Group         string
	Consumer      string
	ClaimInterval time.Duration
	ArchiveBatch  int
}

type MailConfig struct {
	// log, smtp or resend
	Provider     string
	From         string
	AppURL       string
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	ResendAPIKey string
	QueueSize    int
}

type LoggingConfig struct {
	Level string
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Security         SecurityConfig
	Audit            AuditConfig
	Mail             MailConfig
	Logging          LoggingConfig
	AllowCORSOrigins []string
}

func (c *AppConfig) IsProduction() bool {
	return c.Environment == EnvironmentProduction
}

// ExposeResetTokens reports whether reset tokens may be echoed back in
// request-reset responses. Never true in production.
func (c *AppConfig) ExposeResetTokens() bool {
	return !c.IsProduction() && c.Security.ExposeResetTokens
}

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("WELLNESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

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

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *AppConfig) validate() error {
	if c.Security.JWTSecret == "" {
		if c.IsProduction() {
			return fmt.Errorf("security.jwtsecret is required in production")
		}
		c.Security.JWTSecret = "development-only-secret-change-me"
	}
	if c.Security.SessionTTL <= 0 {
		return fmt.Errorf("security.sessionttl must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 10)
	v.SetDefault("postgres.connmaxlifetime", "30m")
	v.SetDefault("postgres.automigrate", false)

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.bucketarchive", "wellness-audit-archive")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")

	v.SetDefault("security.jwtissuer", "wellness-cms")
	v.SetDefault("security.jwtaudience", "wellness-admin-console")
	v.SetDefault("security.sessionttl", "4h")
	v.SetDefault("security.resettokenttl", "30m")
	v.SetDefault("security.sweepschedule", "0 0 */1 * * *") // hourly
	v.SetDefault("security.loginmaxfailures", 5)
	v.SetDefault("security.loginwindow", "15m")
	v.SetDefault("security.resetmaxattempts", 5)
	v.SetDefault("security.resetwindow", "15m")
	v.SetDefault("security.exposeresettokens", false)
	v.SetDefault("security.storebackend", "memory")
	v.SetDefault("security.limiterbackend", "memory")

	v.SetDefault("audit.queuesize", 1024)
	v.SetDefault("audit.stream", "audit:events")
	v.SetDefault("audit.group", "audit-workers")
	v.SetDefault("audit.consumer", "worker-1")
	v.SetDefault("audit.claiminterval", "10s")
	v.SetDefault("audit.archivebatch", 500)

	v.SetDefault("mail.provider", "log")
	v.SetDefault("mail.from", "no-reply@wellness.local")
	v.SetDefault("mail.appurl", "http://localhost:5173")
	v.SetDefault("mail.smtpport", 587)
	v.SetDefault("mail.queuesize", 64)

	v.SetDefault("logging.level", "info")
}

// unsetKeys have no default, so Unmarshal only sees their env values once
// they are bound.
var unsetKeys = []string{
	"postgres.dsn",
	"redis.password",
	"storage.endpoint",
	"storage.accesskey",
	"storage.secretkey",
	"security.jwtsecret",
	"mail.smtphost",
	"mail.smtpuser",
	"mail.smtppassword",
	"mail.resendapikey",
	"allowcorsorigins",
}

func bindEnv(v *viper.Viper) error {
	for _, key := range unsetKeys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}
