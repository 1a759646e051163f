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

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Forms    FormsConfig
	AI       AIConfig
	Alerts   AlertsConfig
	Mail     MailConfig
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
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// FormsConfig tunes form resolution caching.
type FormsConfig struct {
	CacheTTL time.Duration
}

// AIConfig configures the outbound text-generation collaborator.
type AIConfig struct {
	Enabled        bool
	APIKey         string
	BaseURL        string
	Model          string
	Temperature    float64
	MaxTokens      int
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxReviews     int
}

// AlertsConfig governs the aggregation/alert engine and its triggers.
type AlertsConfig struct {
	SchedulerEnabled bool
	Cron             string
	WindowDays       int
	MinReviews       int
	LowRatingMax     int
	Debounce         time.Duration
	Concurrency      int
	LockTTL          time.Duration
	QueueWorkers     int
	QueueBuffer      int
}

// MailConfig selects the outbound mail provider.
type MailConfig struct {
	Provider       string
	SendgridAPIKey string
	FromName       string
	FromAddress    string
	SubjectPrefix  string
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

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
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Forms = FormsConfig{
		CacheTTL: parseDuration(v.GetString("FORMS_CACHE_TTL"), 5*time.Minute),
	}

	cfg.AI = AIConfig{
		Enabled:        v.GetBool("AI_ENABLED"),
		APIKey:         v.GetString("AI_API_KEY"),
		BaseURL:        v.GetString("AI_BASE_URL"),
		Model:          v.GetString("AI_MODEL"),
		Temperature:    v.GetFloat64("AI_TEMPERATURE"),
		MaxTokens:      v.GetInt("AI_MAX_TOKENS"),
		Timeout:        parseDuration(v.GetString("AI_TIMEOUT"), 30*time.Second),
		MaxRetries:     v.GetInt("AI_MAX_RETRIES"),
		InitialBackoff: parseDuration(v.GetString("AI_INITIAL_BACKOFF"), 500*time.Millisecond),
		MaxReviews:     v.GetInt("AI_MAX_REVIEWS"),
	}

	cfg.Alerts = AlertsConfig{
		SchedulerEnabled: v.GetBool("ALERT_SCHEDULER_ENABLED"),
		Cron:             v.GetString("ALERT_CRON"),
		WindowDays:       v.GetInt("ALERT_WINDOW_DAYS"),
		MinReviews:       v.GetInt("ALERT_MIN_REVIEWS"),
		LowRatingMax:     v.GetInt("ALERT_LOW_RATING_MAX"),
		Debounce:         parseDuration(v.GetString("ALERT_DEBOUNCE"), 10*time.Minute),
		Concurrency:      v.GetInt("ALERT_CONCURRENCY"),
		LockTTL:          parseDuration(v.GetString("ALERT_LOCK_TTL"), 2*time.Minute),
		QueueWorkers:     v.GetInt("ALERT_QUEUE_WORKERS"),
		QueueBuffer:      v.GetInt("ALERT_QUEUE_BUFFER"),
	}

	cfg.Mail = MailConfig{
		Provider:       strings.ToLower(v.GetString("MAIL_PROVIDER")),
		SendgridAPIKey: v.GetString("SENDGRID_API_KEY"),
		FromName:       v.GetString("MAIL_FROM_NAME"),
		FromAddress:    v.GetString("MAIL_FROM_ADDRESS"),
		SubjectPrefix:  v.GetString("MAIL_SUBJECT_PREFIX"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "course_feedback")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("FORMS_CACHE_TTL", "5m")

	v.SetDefault("AI_ENABLED", false)
	v.SetDefault("AI_API_KEY", "")
	v.SetDefault("AI_BASE_URL", "")
	v.SetDefault("AI_MODEL", "gpt-4o-mini")
	v.SetDefault("AI_TEMPERATURE", 0.2)
	v.SetDefault("AI_MAX_TOKENS", 800)
	v.SetDefault("AI_TIMEOUT", "30s")
	v.SetDefault("AI_MAX_RETRIES", 2)
	v.SetDefault("AI_INITIAL_BACKOFF", "500ms")
	v.SetDefault("AI_MAX_REVIEWS", 50)

	v.SetDefault("ALERT_SCHEDULER_ENABLED", true)
	v.SetDefault("ALERT_CRON", "0 6 * * *")
	v.SetDefault("ALERT_WINDOW_DAYS", 7)
	v.SetDefault("ALERT_MIN_REVIEWS", 3)
	v.SetDefault("ALERT_LOW_RATING_MAX", 2)
	v.SetDefault("ALERT_DEBOUNCE", "10m")
	v.SetDefault("ALERT_CONCURRENCY", 4)
	v.SetDefault("ALERT_LOCK_TTL", "2m")
	v.SetDefault("ALERT_QUEUE_WORKERS", 2)
	v.SetDefault("ALERT_QUEUE_BUFFER", 64)

	v.SetDefault("MAIL_PROVIDER", "console")
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("MAIL_FROM_NAME", "Course Feedback")
	v.SetDefault("MAIL_FROM_ADDRESS", "no-reply@localhost")
	v.SetDefault("MAIL_SUBJECT_PREFIX", "[Feedback] ")
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
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
