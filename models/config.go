package models

import (
	"net"
	"strings"
	"time"
)

const (
	StoreSQLite    = "sqlite"
	StorePostgres  = "postgres"
	StoreFirestore = "firestore"

	AuthFirebase = "firebase"
	AuthLocal    = "local"
)

// Config is the service configuration. Values come from the `lumina:` key of
// config.yaml and are then overridden from the environment.
type Config struct {
	Host      string `yaml:"host" env:"HOST"`
	Port      string `yaml:"port" env:"PORT"`
	ProjectID string `yaml:"project_id" env:"GOOGLE_CLOUD_PROJECT"`
	IsDebug   bool   `yaml:"debug" env:"LUMINA_DEBUG"`

	CredentialsFile string `yaml:"credentials_file" env:"GOOGLE_APPLICATION_CREDENTIALS"`
	AuthMode        string `yaml:"auth_mode" env:"LUMINA_AUTH_MODE"`
	JWTSecret       string `yaml:"jwt_secret" env:"LUMINA_JWT_SECRET"`
	JWTTTLMinutes   int    `yaml:"jwt_ttl_minutes" env:"LUMINA_JWT_TTL_MINUTES"`
	DefaultRole     string `yaml:"default_role" env:"LUMINA_DEFAULT_ROLE"`

	StoreDriver  string `yaml:"store_driver" env:"LUMINA_STORE_DRIVER"`
	DatabaseURL  string `yaml:"db_url" env:"DATABASE_URL"`
	DatabasePath string `yaml:"db_path" env:"LUMINA_DB_PATH"`

	RedisAddr       string `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword   string `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB         int    `yaml:"redis_db" env:"REDIS_DB"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds" env:"LUMINA_CACHE_TTL_SECONDS"`

	StorageBucket       string `yaml:"storage_bucket" env:"GCP_STORAGE_BUCKET"`
	SignedURLTTLMinutes int    `yaml:"signed_url_ttl_minutes" env:"LUMINA_SIGNED_URL_TTL_MINUTES"`
	StaticDir           string `yaml:"static_dir" env:"LUMINA_STATIC_DIR"`
	PublicBaseURL       string `yaml:"public_base_url" env:"LUMINA_PUBLIC_URL"`

	FirebaseAPIKey     string `yaml:"firebase_api_key" env:"FIREBASE_API_KEY"`
	FirebaseAuthDomain string `yaml:"firebase_auth_domain" env:"FIREBASE_AUTH_DOMAIN"`

	AdminKey      string `yaml:"admin_key" env:"LUMINA_ADMIN_KEY"`
	AdminUser     string `yaml:"admin_user" env:"LUMINA_ADMIN_USER"`
	AdminPassword string `yaml:"admin_password" env:"LUMINA_ADMIN_PASSWORD"`
	CorsOrigins   string `yaml:"cors_origins" env:"LUMINA_CORS_ORIGINS"`

	PushEnabled               bool   `yaml:"push_enabled" env:"LUMINA_PUSH_ENABLED"`
	NotificationRetentionDays int    `yaml:"notification_retention_days" env:"LUMINA_NOTIFICATION_RETENTION_DAYS"`
	RetentionSchedule         string `yaml:"retention_schedule" env:"LUMINA_RETENTION_SCHEDULE"`

	LoginRatePerMinute int `yaml:"login_rate_per_minute" env:"LUMINA_LOGIN_RATE_PER_MINUTE"`
	LoginBurst         int `yaml:"login_burst" env:"LUMINA_LOGIN_BURST"`

	LogSamplingTickMs  int `yaml:"log_sampling_tick_ms" env:"LUMINA_LOG_SAMPLING_TICK_MS"`
	LogSamplingAfterMs int `yaml:"log_sampling_after_ms" env:"LUMINA_LOG_SAMPLING_AFTER_MS"`

	OtelEnabled     bool    `yaml:"otel_enabled" env:"LUMINA_OTEL_ENABLED"`
	OtelEndpoint    string  `yaml:"otel_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OtelInsecure    bool    `yaml:"otel_insecure" env:"LUMINA_OTEL_INSECURE"`
	OtelServiceName string  `yaml:"otel_service_name" env:"OTEL_SERVICE_NAME"`
	OtelSampleRate  float64 `yaml:"otel_sample_rate" env:"LUMINA_OTEL_SAMPLE_RATE"`
}

// Defaults fills every unset field with its production default.
func (c *Config) Defaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	c.Port = strings.TrimPrefix(strings.TrimSpace(c.Port), ":")
	if c.Port == "" {
		c.Port = "8080"
	}
	if c.ProjectID == "" {
		c.ProjectID = "tp-lumina-485907"
	}
	if c.AuthMode == "" {
		c.AuthMode = AuthFirebase
	}
	if c.JWTTTLMinutes <= 0 {
		c.JWTTTLMinutes = 180
	}
	if c.DefaultRole == "" {
		c.DefaultRole = "contributor"
	}
	if c.StoreDriver == "" {
		c.StoreDriver = StoreSQLite
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "lumina.db"
	}
	if c.CacheTTLSeconds <= 0 {
		c.CacheTTLSeconds = 300
	}
	if c.SignedURLTTLMinutes <= 0 {
		c.SignedURLTTLMinutes = 60
	}
	if c.NotificationRetentionDays <= 0 {
		c.NotificationRetentionDays = 30
	}
	if c.RetentionSchedule == "" {
		c.RetentionSchedule = "@daily"
	}
	if c.LoginRatePerMinute <= 0 {
		c.LoginRatePerMinute = 10
	}
	if c.LoginBurst <= 0 {
		c.LoginBurst = 5
	}
	if c.CorsOrigins == "" {
		c.CorsOrigins = "*"
	}
}

// Addr is the listen address, all interfaces by default.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

func (c Config) SignedURLTTL() time.Duration {
	return time.Duration(c.SignedURLTTLMinutes) * time.Minute
}

func (c Config) JWTTTL() time.Duration {
	return time.Duration(c.JWTTTLMinutes) * time.Minute
}

func (c Config) Retention() time.Duration {
	return time.Duration(c.NotificationRetentionDays) * 24 * time.Hour
}

// DemoURL is the public address of a tenant's demo page.
func (c Config) DemoURL(slug string) string {
	return strings.TrimRight(c.PublicBaseURL, "/") + "/" + slug
}
