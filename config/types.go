package config

import "time"

type AppConfig struct {
	AppEnv    string          `yaml:"app_env" env:"LAZARUS_APP_ENV" env-default:"development"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Incidents IncidentsConfig `yaml:"incidents"`
	Redis     RedisConfig     `yaml:"redis"`
	Media     MediaConfig     `yaml:"media"`
	Mail      MailConfig      `yaml:"mail"`
	Log       LogConfig       `yaml:"log"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
}

type ServerConfig struct {
	ListenAddr   string        `yaml:"listen_addr" env:"LAZARUS_LISTEN_ADDR" env-default:"0.0.0.0:8080"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"LAZARUS_READ_TIMEOUT" env-default:"15s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"LAZARUS_WRITE_TIMEOUT" env-default:"15s"`
	BodyLimitMB  int           `yaml:"body_limit_mb" env:"LAZARUS_BODY_LIMIT_MB" env-default:"20"`
}

type DatabaseConfig struct {
	// Driver is sqlite or postgres
	Driver  string `yaml:"driver" env:"LAZARUS_DB_DRIVER" env-default:"sqlite"`
	URL     string `yaml:"url" env:"LAZARUS_DB_URL" env-default:"file:lazarus.db?cache=shared"`
	Migrate bool   `yaml:"migrate" env:"LAZARUS_DB_MIGRATE" env-default:"true"`
	Debug   bool   `yaml:"debug" env:"LAZARUS_DB_DEBUG" env-default:"false"`
}

type AuthConfig struct {
	SigningKey    string        `yaml:"signing_key" env:"LAZARUS_SIGNING_KEY"`
	TokenTTL      time.Duration `yaml:"token_ttl" env:"LAZARUS_TOKEN_TTL" env-default:"24h"`
	Issuer        string        `yaml:"issuer" env:"LAZARUS_TOKEN_ISSUER" env-default:"lazarus"`
	Audience      []string      `yaml:"audience" env:"LAZARUS_TOKEN_AUDIENCE" env-separator:","`
	ResetTokenTTL time.Duration `yaml:"reset_token_ttl" env:"LAZARUS_RESET_TOKEN_TTL" env-default:"1h"`
	ResetURL      string        `yaml:"reset_url" env:"LAZARUS_RESET_URL"`
	PhoneRegion   string        `yaml:"phone_region" env:"LAZARUS_PHONE_REGION" env-default:"CR"`
}

type IncidentsConfig struct {
	NearbyRadiusKm  float64       `yaml:"nearby_radius_km" env:"LAZARUS_NEARBY_RADIUS_KM" env-default:"5"`
	ArchiveAfter    time.Duration `yaml:"archive_after" env:"LAZARUS_ARCHIVE_AFTER" env-default:"48h"`
	ArchiveSchedule string        `yaml:"archive_schedule" env:"LAZARUS_ARCHIVE_SCHEDULE" env-default:"0 3 * * *"`
	ArchiveEnabled  bool          `yaml:"archive_enabled" env:"LAZARUS_ARCHIVE_ENABLED" env-default:"true"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" env:"LAZARUS_REDIS_ENABLED" env-default:"false"`
	Addr     string `yaml:"addr" env:"LAZARUS_REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"LAZARUS_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"LAZARUS_REDIS_DB" env-default:"0"`
	Channel  string `yaml:"channel" env:"LAZARUS_REDIS_CHANNEL" env-default:"lazarus:realtime"`
}

type MediaConfig struct {
	Enabled   bool   `yaml:"enabled" env:"LAZARUS_MEDIA_ENABLED" env-default:"false"`
	UploadURL string `yaml:"upload_url" env:"LAZARUS_MEDIA_UPLOAD_URL"`
	// DestroyURL is optional; without it removed media stays on the host
	DestroyURL string        `yaml:"destroy_url" env:"LAZARUS_MEDIA_DESTROY_URL"`
	APIKey     string        `yaml:"api_key" env:"LAZARUS_MEDIA_API_KEY"`
	Folder     string        `yaml:"folder" env:"LAZARUS_MEDIA_FOLDER" env-default:"lazarus/incidents"`
	Timeout    time.Duration `yaml:"timeout" env:"LAZARUS_MEDIA_TIMEOUT" env-default:"30s"`
	MaxFiles   int           `yaml:"max_files" env:"LAZARUS_MEDIA_MAX_FILES" env-default:"10"`
}

type MailConfig struct {
	From string `yaml:"from" env:"LAZARUS_MAIL_FROM" env-default:"no-reply@lazarus.local"`
}

type LogConfig struct {
	Level       string `yaml:"level" env:"LAZARUS_LOG_LEVEL" env-default:"info"`
	Format      string `yaml:"format" env:"LAZARUS_LOG_FORMAT" env-default:"json"`
	ServiceName string `yaml:"service_name" env:"LAZARUS_SERVICE_NAME" env-default:"lazarus"`
}

type BootstrapConfig struct {
	AdminEmail     string `yaml:"admin_email" env:"LAZARUS_ADMIN_EMAIL"`
	AdminPassword  string `yaml:"admin_password" env:"LAZARUS_ADMIN_PASSWORD"`
	AdminFirstName string `yaml:"admin_first_name" env:"LAZARUS_ADMIN_FIRST_NAME" env-default:"System"`
	AdminLastName  string `yaml:"admin_last_name" env:"LAZARUS_ADMIN_LAST_NAME" env-default:"Administrator"`
}
