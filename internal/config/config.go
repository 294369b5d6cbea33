package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/jwalitptl/booking-assistant/internal/model"
	"github.com/jwalitptl/booking-assistant/internal/service/availability"
	"github.com/jwalitptl/booking-assistant/internal/service/classifier"
	"github.com/jwalitptl/booking-assistant/pkg/logger"
	"github.com/jwalitptl/booking-assistant/pkg/messaging/redis"
	"github.com/jwalitptl/booking-assistant/pkg/worker"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Store      StoreConfig      `mapstructure:"store"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Admins     []AdminConfig    `mapstructure:"admins" validate:"dive"`
	Booking    BookingConfig    `mapstructure:"booking"`
	Providers  []ProviderConfig `mapstructure:"providers" validate:"required,min=1,dive"`
	Hours      []WindowConfig   `mapstructure:"hours" validate:"dive"`
	Calendar   CalendarConfig   `mapstructure:"calendar"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	SMTP       SMTPConfig       `mapstructure:"smtp"`
	Outbox     OutboxConfig     `mapstructure:"outbox"`
	Sync       SyncConfig       `mapstructure:"sync"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	WorkerPort      int           `mapstructure:"worker_port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// StoreConfig picks the ledger and conversation-state backends.
type StoreConfig struct {
	Driver   string        `mapstructure:"driver" validate:"oneof=postgres memory"`
	State    string        `mapstructure:"state" validate:"oneof=redis memory"`
	StateTTL time.Duration `mapstructure:"state_ttl" validate:"gt=0"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	// Channel prefix for published outbox events.
	Channel string `mapstructure:"channel"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpiryHours int    `mapstructure:"expiry_hours" validate:"gt=0"`
}

// AdminConfig is one operator account of the admin API.
type AdminConfig struct {
	Username     string `mapstructure:"username" validate:"required"`
	PasswordHash string `mapstructure:"password_hash" validate:"required"`
}

type BookingConfig struct {
	SlotMinutes     int    `mapstructure:"slot_minutes" validate:"gt=0,lte=1440"`
	MaxOffers       int    `mapstructure:"max_offers" validate:"gt=0,lte=10"`
	HorizonDays     int    `mapstructure:"horizon_days" validate:"gt=0,lte=60"`
	Timezone        string `mapstructure:"timezone" validate:"required"`
	DefaultProvider string `mapstructure:"default_provider"`
}

type ProviderConfig struct {
	ID          string         `mapstructure:"id" validate:"required"`
	Name        string         `mapstructure:"name" validate:"required"`
	CalendarRef string         `mapstructure:"calendar_ref"`
	Email       string         `mapstructure:"email" validate:"omitempty,email"`
	Disabled    bool           `mapstructure:"disabled"`
	Hours       []WindowConfig `mapstructure:"hours" validate:"dive"`
}

// WindowConfig is a working-hours entry such as {friday, "09:00", "18:00"}.
type WindowConfig struct {
	Weekday string `mapstructure:"weekday" validate:"required"`
	Start   string `mapstructure:"start" validate:"required"`
	End     string `mapstructure:"end" validate:"required"`
}

type CalendarConfig struct {
	Driver          string        `mapstructure:"driver" validate:"oneof=google static"`
	CredentialsFile string        `mapstructure:"credentials_file"`
	Policy          string        `mapstructure:"policy" validate:"oneof=fail_open fail_closed"`
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout" validate:"gt=0"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	BreakerFailures int           `mapstructure:"breaker_failures"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
}

type ClassifierConfig struct {
	// Vocabulary is appended to the built-in keyword sets.
	Vocabulary classifier.Vocabulary `mapstructure:"vocabulary"`
	Gemini     GeminiConfig          `mapstructure:"gemini"`
}

// GeminiConfig enables the intent oracle when APIKey is set.
type GeminiConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
	MemoTTL time.Duration `mapstructure:"memo_ttl"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from" validate:"omitempty,email"`
	// AdminEmail receives review requests and copies of every alert.
	AdminEmail string `mapstructure:"admin_email" validate:"omitempty,email"`
}

type OutboxConfig struct {
	BatchSize     int           `mapstructure:"batch_size" validate:"gt=0"`
	PollInterval  time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	RetryAttempts int           `mapstructure:"retry_attempts" validate:"gt=0"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" validate:"gt=0"`
	MaxAttempts   int           `mapstructure:"max_attempts" validate:"gt=0"`
	// RetentionDays keeps delivered events around for inspection.
	RetentionDays   int           `mapstructure:"retention_days" validate:"gt=0"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" validate:"gt=0"`
}

type SyncConfig struct {
	Schedule string `mapstructure:"schedule" validate:"required"`
	Days     int    `mapstructure:"days" validate:"gt=0"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// secrets are read from BOOKING_* environment variables and override the file.
type secrets struct {
	DBPassword   string `envconfig:"DB_PASSWORD"`
	JWTSecret    string `envconfig:"JWT_SECRET"`
	GeminiAPIKey string `envconfig:"GEMINI_API_KEY"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
	RedisURL     string `envconfig:"REDIS_URL"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.worker_port", 8081)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.state", "memory")
	v.SetDefault("store.state_ttl", 24*time.Hour)
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.channel", "booking")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("jwt.expiry_hours", 12)
	v.SetDefault("booking.slot_minutes", 60)
	v.SetDefault("booking.max_offers", 10)
	v.SetDefault("booking.horizon_days", 7)
	v.SetDefault("booking.timezone", "UTC")
	v.SetDefault("calendar.driver", "static")
	v.SetDefault("calendar.policy", string(availability.FailOpen))
	v.SetDefault("calendar.fetch_timeout", 5*time.Second)
	v.SetDefault("calendar.cache_ttl", time.Minute)
	v.SetDefault("calendar.breaker_failures", 5)
	v.SetDefault("calendar.breaker_timeout", 30*time.Second)
	v.SetDefault("classifier.gemini.model", "gemini-1.5-flash")
	v.SetDefault("classifier.gemini.timeout", 5*time.Second)
	v.SetDefault("classifier.gemini.memo_ttl", 10*time.Minute)
	v.SetDefault("smtp.port", 587)
	v.SetDefault("outbox.batch_size", 50)
	v.SetDefault("outbox.poll_interval", 5*time.Second)
	v.SetDefault("outbox.retry_attempts", 3)
	v.SetDefault("outbox.retry_delay", time.Second)
	v.SetDefault("outbox.max_attempts", 5)
	v.SetDefault("outbox.retention_days", 30)
	v.SetDefault("outbox.cleanup_interval", time.Hour)
	v.SetDefault("sync.schedule", "@every 15m")
	v.SetDefault("sync.days", 7)
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 1)
	v.SetDefault("rate_limit.burst", 5)
}

// LoadConfig reads file, or config.yml from the usual locations when file
// is empty, then applies .env and BOOKING_* secrets and validates.
func LoadConfig(file string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app/config")
	}
	v.SetEnvPrefix("booking")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var s secrets
	if err := envconfig.Process("booking", &s); err != nil {
		return nil, fmt.Errorf("failed to read secrets: %w", err)
	}
	config.applySecrets(s)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applySecrets(s secrets) {
	if s.DBPassword != "" {
		c.Database.Password = s.DBPassword
	}
	if s.JWTSecret != "" {
		c.JWT.Secret = s.JWTSecret
	}
	if s.GeminiAPIKey != "" {
		c.Classifier.Gemini.APIKey = s.GeminiAPIKey
	}
	if s.SMTPPassword != "" {
		c.SMTP.Password = s.SMTPPassword
	}
	if s.RedisURL != "" {
		c.Redis.URL = s.RedisURL
	}
}

// Validate checks field constraints and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Store.Driver == "postgres" && (c.Database.Host == "" || c.Database.Name == "") {
		return errors.New("invalid config: database host and name are required for the postgres store")
	}
	if c.Store.State == "redis" && c.Redis.URL == "" {
		return errors.New("invalid config: redis url is required for the redis state store")
	}
	if c.Calendar.Driver == "google" && c.Calendar.CredentialsFile == "" {
		return errors.New("invalid config: calendar credentials_file is required for the google calendar")
	}
	if len(c.Admins) > 0 && c.JWT.Secret == "" {
		return errors.New("invalid config: jwt secret is required when admins are configured")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Directory(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Booking.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", c.Booking.Timezone, err)
	}
	return loc, nil
}

// Directory builds the provider directory with the global working hours.
func (c *Config) Directory() (*model.Directory, error) {
	global, err := workingHours(c.Hours)
	if err != nil {
		return nil, err
	}
	providers := make([]model.Provider, 0, len(c.Providers))
	for _, p := range c.Providers {
		hours, err := workingHours(p.Hours)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", p.ID, err)
		}
		providers = append(providers, model.Provider{
			ID:          p.ID,
			Name:        p.Name,
			CalendarRef: p.CalendarRef,
			Email:       p.Email,
			Active:      !p.Disabled,
			Hours:       hours,
		})
	}
	return model.NewDirectory(providers, global)
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

func workingHours(windows []WindowConfig) (model.WorkingHours, error) {
	var out model.WorkingHours
	for _, w := range windows {
		day, ok := weekdays[strings.ToLower(strings.TrimSpace(w.Weekday))]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", w.Weekday)
		}
		start, err := model.ParseClock(w.Start)
		if err != nil {
			return nil, fmt.Errorf("bad start %q: %w", w.Start, err)
		}
		end, err := model.ParseClock(w.End)
		if err != nil {
			return nil, fmt.Errorf("bad end %q: %w", w.End, err)
		}
		if end <= start {
			return nil, fmt.Errorf("working window %s %s-%s ends before it starts", w.Weekday, w.Start, w.End)
		}
		out = append(out, model.WorkingWindow{Weekday: day, Start: start, End: end})
	}
	return out, nil
}

func (c *Config) SlotDuration() time.Duration {
	return time.Duration(c.Booking.SlotMinutes) * time.Minute
}

func (c *Config) Vocabulary() classifier.Vocabulary {
	return classifier.DefaultVocabulary().Merge(c.Classifier.Vocabulary)
}

func (c *Config) ToLoggerConfig() *logger.Config {
	return &logger.Config{
		Level:      logger.ParseLevel(c.Log.Level),
		TimeFormat: time.RFC3339,
		JSON:       c.Log.JSON,
	}
}

func (c *Config) ToResolverConfig(loc *time.Location) availability.Config {
	return availability.Config{
		SlotDuration: c.SlotDuration(),
		Policy:       availability.FailurePolicy(c.Calendar.Policy),
		FetchTimeout: c.Calendar.FetchTimeout,
		Location:     loc,
	}
}

func (c *OutboxConfig) ToWorkerConfig() worker.OutboxProcessorConfig {
	return worker.OutboxProcessorConfig{
		BatchSize:     c.BatchSize,
		PollInterval:  c.PollInterval,
		RetryAttempts: c.RetryAttempts,
		RetryDelay:    c.RetryDelay,
		MaxAttempts:   c.MaxAttempts,
	}
}

func (c *RedisConfig) ToBrokerConfig() redis.Config {
	return redis.Config{
		URL:          c.URL,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: c.RetryBackoff,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
	}
}
