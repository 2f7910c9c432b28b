package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Slot backends understood by the photo store.
const (
	SlotBackendMemory   = "memory"
	SlotBackendFile     = "file"
	SlotBackendRedis    = "redis"
	SlotBackendPostgres = "postgres"
	SlotBackendSQLite   = "sqlite"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string
	StaticDir string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Auth     AuthConfig
	CORS     CORSConfig
	Log      LogConfig
	Media    MediaConfig
	Slot     SlotConfig
	Analyzer AnalyzerConfig
	Launch   LaunchConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

// AuthConfig toggles role enforcement on the photo API.
type AuthConfig struct {
	Enabled bool
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// MediaConfig controls where uploaded and masked images live and how they are served.
type MediaConfig struct {
	StorageDir       string
	SignedURLSecret  string
	SignedURLTTL     time.Duration
	MaxFileSizeBytes int64
}

// SlotConfig selects the durable slot mirroring the photo list.
type SlotConfig struct {
	Backend     string
	Name        string
	RedisPrefix string
	SQLitePath  string
}

// AnalyzerConfig tunes the simulated analyzer and its worker queue.
type AnalyzerConfig struct {
	Delay        time.Duration
	RemovalDelay time.Duration
	Seed         int64
	CatalogPath  string
	Workers      int
	Retries      int
}

// LaunchConfig drives the `start` launcher command.
type LaunchConfig struct {
	HealthURL  string
	RetryDelay time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.StaticDir = v.GetString("STATIC_DIR")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.Auth = AuthConfig{Enabled: v.GetBool("AUTH_ENABLED")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	maxUpload := v.GetInt64("MEDIA_MAX_UPLOAD_SIZE")
	if maxUpload <= 0 {
		maxUpload = 10 * 1024 * 1024
	}
	cfg.Media = MediaConfig{
		StorageDir:       v.GetString("MEDIA_STORAGE_DIR"),
		SignedURLSecret:  v.GetString("MEDIA_SIGNED_URL_SECRET"),
		SignedURLTTL:     parseDuration(v.GetString("MEDIA_SIGNED_URL_TTL"), 30*time.Minute),
		MaxFileSizeBytes: maxUpload,
	}

	cfg.Slot = SlotConfig{
		Backend:     strings.ToLower(strings.TrimSpace(v.GetString("SLOT_BACKEND"))),
		Name:        v.GetString("SLOT_NAME"),
		RedisPrefix: v.GetString("SLOT_REDIS_PREFIX"),
		SQLitePath:  v.GetString("SLOT_SQLITE_PATH"),
	}

	cfg.Analyzer = AnalyzerConfig{
		Delay:        parseDuration(v.GetString("ANALYZER_DELAY"), 2*time.Second),
		RemovalDelay: parseDuration(v.GetString("ANALYZER_REMOVAL_DELAY"), 3*time.Second),
		Seed:         v.GetInt64("ANALYZER_SEED"),
		CatalogPath:  v.GetString("ANALYZER_CATALOG"),
		Workers:      v.GetInt("ANALYSIS_WORKERS"),
		Retries:      v.GetInt("ANALYSIS_RETRIES"),
	}

	cfg.Launch = LaunchConfig{
		HealthURL:  v.GetString("LAUNCH_HEALTH_URL"),
		RetryDelay: parseDuration(v.GetString("LAUNCH_RETRY_DELAY"), 3*time.Second),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("STATIC_DIR", "./dist")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "kindrid")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 5)
	v.SetDefault("DB_MAX_IDLE_CONNS", 2)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "kindrid")
	v.SetDefault("AUTH_ENABLED", false)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("MEDIA_STORAGE_DIR", "./media")
	v.SetDefault("MEDIA_SIGNED_URL_SECRET", "dev_media_secret")
	v.SetDefault("MEDIA_SIGNED_URL_TTL", "30m")
	v.SetDefault("MEDIA_MAX_UPLOAD_SIZE", 10*1024*1024)

	v.SetDefault("SLOT_BACKEND", SlotBackendFile)
	v.SetDefault("SLOT_NAME", "kindrid-photos")
	v.SetDefault("SLOT_REDIS_PREFIX", "kindrid:slot:")
	v.SetDefault("SLOT_SQLITE_PATH", "./kindrid.db")

	v.SetDefault("ANALYZER_DELAY", "2s")
	v.SetDefault("ANALYZER_REMOVAL_DELAY", "3s")
	v.SetDefault("ANALYZER_SEED", 0)
	v.SetDefault("ANALYZER_CATALOG", "")
	v.SetDefault("ANALYSIS_WORKERS", 1)
	v.SetDefault("ANALYSIS_RETRIES", 1)

	v.SetDefault("LAUNCH_HEALTH_URL", "")
	v.SetDefault("LAUNCH_RETRY_DELAY", "3s")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
