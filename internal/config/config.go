package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config struct is the top-level configuration structure.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Survey   SurveyConfig   `mapstructure:"survey"`
	Stimuli  StimuliConfig  `mapstructure:"stimuli"`
	Sink     SinkConfig     `mapstructure:"sink"`
	Reaper   ReaperConfig   `mapstructure:"reaper"`
}

// ServerConfig holds server-related settings.
type ServerConfig struct {
	Port          string `mapstructure:"port"`
	SessionSecret string `mapstructure:"session_secret"`
	SecureCookies bool   `mapstructure:"secure_cookies"`
	// ConsentRateLimit caps new sessions per client IP per minute.
	ConsentRateLimit uint `mapstructure:"consent_rate_limit"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`

	// SlowQuery is the duration above which queries are logged as slow.
	SlowQuery time.Duration `mapstructure:"slow_query"`
}

// DSN builds the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		d.Host, d.User, d.Password, d.DBName, d.Port, d.SSLMode)
}

// LoggingConfig holds settings for the logger.
type LoggingConfig struct {
	Directory  string `mapstructure:"directory"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
	Console    bool   `mapstructure:"console"`
}

// SurveyConfig holds the session rules.
type SurveyConfig struct {
	SessionLength       time.Duration `mapstructure:"session_length"`
	MinRecords          int           `mapstructure:"min_records"`
	RespondentParam     string        `mapstructure:"respondent_param"`
	RequireFullSchedule bool          `mapstructure:"require_full_schedule"`
	Question            string        `mapstructure:"question"`
}

// StimuliConfig selects where stimuli come from.
type StimuliConfig struct {
	// Source is "dir" or "manifest".
	Source   string `mapstructure:"source"`
	Dir      string `mapstructure:"dir"`
	Suffix   string `mapstructure:"suffix"`
	Manifest string `mapstructure:"manifest"`
}

// SinkConfig selects where responses are flushed to.
type SinkConfig struct {
	// Driver is "postgres", "sqlite" or "memory".
	Driver      string        `mapstructure:"driver"`
	SQLitePath  string        `mapstructure:"sqlite_path"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Backoff     time.Duration `mapstructure:"backoff"`
	MaxBackoff  time.Duration `mapstructure:"max_backoff"`
	Concurrency int           `mapstructure:"concurrency"`
}

// ReaperConfig controls the background session sweep.
type ReaperConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	IdleAfter time.Duration `mapstructure:"idle_after"`
	Retention time.Duration `mapstructure:"retention"`
}

// setDefaults sets the default values for the configuration.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "5050")
	v.SetDefault("server.session_secret", "change-me-in-production")
	v.SetDefault("server.secure_cookies", false)
	v.SetDefault("server.consent_rate_limit", 10)

	// Database defaults
	v.SetDefault("database.host", "db")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "user")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.dbname", "pictopercept")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.slow_query", "200ms")

	// Logging defaults
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.max_size", 10)   // 10 MB
	v.SetDefault("logging.max_backups", 3) // Keep 3 backups
	v.SetDefault("logging.max_age", 7)     // 7 days
	v.SetDefault("logging.compress", true) // Compress old logs
	v.SetDefault("logging.console", true)

	// Survey defaults
	v.SetDefault("survey.session_length", "65s")
	v.SetDefault("survey.min_records", 2)
	v.SetDefault("survey.respondent_param", "choice_respondent")
	v.SetDefault("survey.require_full_schedule", true)
	v.SetDefault("survey.question", "Who of these looks like a doctor?")

	// Stimuli defaults
	v.SetDefault("stimuli.source", "dir")
	v.SetDefault("stimuli.dir", "CFD_dataset/Images/CFD")
	v.SetDefault("stimuli.suffix", "-N.jpg")
	v.SetDefault("stimuli.manifest", "config/stimuli.yaml")

	// Sink defaults
	v.SetDefault("sink.driver", "postgres")
	v.SetDefault("sink.sqlite_path", "data/responses.db")
	v.SetDefault("sink.max_attempts", 5)
	v.SetDefault("sink.backoff", "200ms")
	v.SetDefault("sink.max_backoff", "5s")
	v.SetDefault("sink.concurrency", 1)

	// Reaper defaults
	v.SetDefault("reaper.interval", "1m")
	v.SetDefault("reaper.idle_after", "2m")
	v.SetDefault("reaper.retention", "24h")
}

// Load reads config/config.yaml under projectRoot, overlaid with PICTO_*
// environment variables. A missing file is fine; defaults and env vars are used.
func Load(projectRoot string) (*Config, *viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	// --- File Configuration ---
	v.AddConfigPath(filepath.Join(projectRoot, "config"))
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// --- Environment Variable Binding ---
	v.SetEnvPrefix("PICTO") // e.g., PICTO_SERVER_PORT
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// minRecordsFloor is one completed trial; a session never ends with less.
const minRecordsFloor = 2

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	switch c.Sink.Driver {
	case "postgres", "sqlite", "memory":
	default:
		return fmt.Errorf("unknown sink driver %q", c.Sink.Driver)
	}
	switch c.Stimuli.Source {
	case "dir", "manifest":
	default:
		return fmt.Errorf("unknown stimulus source %q", c.Stimuli.Source)
	}
	if c.Survey.SessionLength <= 0 {
		return fmt.Errorf("survey.session_length must be positive")
	}
	if c.Survey.MinRecords < minRecordsFloor {
		return fmt.Errorf("survey.min_records must be at least %d", minRecordsFloor)
	}
	return nil
}

// Watch logs configuration file changes and hands each successfully decoded
// version to onChange. Running sessions keep the rules they started with.
func Watch(v *viper.Viper, log *zap.Logger, onChange func(*Config)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Info("Configuration file changed, reloading.", zap.String("file", e.Name))
		cfg, err := decode(v)
		if err != nil {
			log.Error("Error reloading configuration", zap.Error(err))
			return
		}
		if onChange != nil {
			onChange(cfg)
		}
	})
	v.WatchConfig()
}
