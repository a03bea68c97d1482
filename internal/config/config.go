package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"smart-mail-responder/internal/apperrors"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Mailbox    MailboxConfig    `mapstructure:"mailbox"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	AI         AIConfig         `mapstructure:"ai"`
	Replies    RepliesConfig    `mapstructure:"replies"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"dbname"`
	SSLMode      string `mapstructure:"sslmode"`
	Path         string `mapstructure:"path"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// MailboxConfig selects and configures the mailbox provider
type MailboxConfig struct {
	Provider        string        `mapstructure:"provider"`
	InitialLookback time.Duration `mapstructure:"initial_lookback"`
	Gmail           GmailConfig   `mapstructure:"gmail"`
	IMAP            IMAPConfig    `mapstructure:"imap"`
	SMTP            SMTPConfig    `mapstructure:"smtp"`
}

// GmailConfig holds Gmail API configuration
type GmailConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RefreshToken string `mapstructure:"refresh_token"`
	UserEmail    string `mapstructure:"user_email"`
	Query        string `mapstructure:"query"`
	MaxResults   int64  `mapstructure:"max_results"`
}

// IMAPConfig holds IMAP connection configuration
type IMAPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Mailbox  string `mapstructure:"mailbox"`
}

// SMTPConfig holds the outgoing server used with the IMAP provider
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	PurgeSchedule string        `mapstructure:"purge_schedule"`
}

// WorkerConfig holds worker pool and retry configuration
type WorkerConfig struct {
	Count             int           `mapstructure:"count"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	BackoffBase       time.Duration `mapstructure:"backoff_base"`
	BackoffMax        time.Duration `mapstructure:"backoff_max"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout"`
	ClaimTTL          time.Duration `mapstructure:"claim_ttl"`
	SendTimeout       time.Duration `mapstructure:"send_timeout"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	RateLimit         float64       `mapstructure:"rate_limit"`
	RateBurst         int           `mapstructure:"rate_burst"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	Retention         time.Duration `mapstructure:"retention"`
}

// ClassifierConfig selects the classifier and its keyword sets
type ClassifierConfig struct {
	Provider string         `mapstructure:"provider"`
	Keywords KeywordsConfig `mapstructure:"keywords"`
}

// KeywordsConfig holds the keyword set per matched category
type KeywordsConfig struct {
	Interested      []string `mapstructure:"interested"`
	MoreInformation []string `mapstructure:"more_information"`
}

// AIConfig holds the OpenAI-compatible endpoint used by the AI classifier
type AIConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RepliesConfig holds the reply template per category
type RepliesConfig struct {
	Templates map[string]string `mapstructure:"templates"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// LoadConfig loads configuration from .env, an optional config file and
// environment variables. An empty path searches ./config.yaml and ./config/.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.AutomaticEnv()
	bindEnvVars(v)

	var config Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&config, hook); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "smart-mail-responder.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)

	v.SetDefault("mailbox.provider", "gmail")
	v.SetDefault("mailbox.initial_lookback", "24h")
	v.SetDefault("mailbox.gmail.user_email", "me")
	v.SetDefault("mailbox.gmail.query", "in:inbox -from:me")
	v.SetDefault("mailbox.gmail.max_results", 100)
	v.SetDefault("mailbox.imap.host", "imap.gmail.com")
	v.SetDefault("mailbox.imap.port", 993)
	v.SetDefault("mailbox.imap.mailbox", "INBOX")
	v.SetDefault("mailbox.smtp.host", "smtp.gmail.com")
	v.SetDefault("mailbox.smtp.port", 587)

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.purge_schedule", "@daily")

	v.SetDefault("worker.count", 3)
	v.SetDefault("worker.max_attempts", 3)
	v.SetDefault("worker.backoff_base", "2s")
	v.SetDefault("worker.backoff_max", "5m")
	v.SetDefault("worker.visibility_timeout", "2m")
	v.SetDefault("worker.claim_ttl", "5m")
	v.SetDefault("worker.send_timeout", "1m")
	v.SetDefault("worker.poll_interval", "1s")
	v.SetDefault("worker.rate_limit", 2.0)
	v.SetDefault("worker.rate_burst", 1)
	v.SetDefault("worker.shutdown_timeout", "30s")
	v.SetDefault("worker.retention", "168h")

	v.SetDefault("classifier.provider", "keyword")
	v.SetDefault("classifier.keywords.interested", DefaultInterestedKeywords)
	v.SetDefault("classifier.keywords.more_information", DefaultMoreInformationKeywords)

	v.SetDefault("ai.base_url", "https://api.openai.com/v1")
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("ai.timeout", "30s")

	v.SetDefault("replies.templates", DefaultTemplates)

	v.SetDefault("log.level", "info")
}

// bindEnvVars binds environment variables to configuration keys
func bindEnvVars(v *viper.Viper) {
	// Server
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	v.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")

	// Database
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("database.sslmode", "DB_SSLMODE")
	v.BindEnv("database.path", "DB_PATH")

	// Mailbox
	v.BindEnv("mailbox.provider", "MAILBOX_PROVIDER")
	v.BindEnv("mailbox.gmail.client_id", "GMAIL_CLIENT_ID")
	v.BindEnv("mailbox.gmail.client_secret", "GMAIL_CLIENT_SECRET")
	v.BindEnv("mailbox.gmail.refresh_token", "GMAIL_REFRESH_TOKEN")
	v.BindEnv("mailbox.gmail.user_email", "GMAIL_USER_EMAIL")
	v.BindEnv("mailbox.imap.host", "IMAP_HOST")
	v.BindEnv("mailbox.imap.port", "IMAP_PORT")
	v.BindEnv("mailbox.imap.user", "IMAP_USER")
	v.BindEnv("mailbox.imap.password", "IMAP_PASSWORD")
	v.BindEnv("mailbox.imap.mailbox", "IMAP_MAILBOX")
	v.BindEnv("mailbox.smtp.host", "SMTP_HOST")
	v.BindEnv("mailbox.smtp.port", "SMTP_PORT")
	v.BindEnv("mailbox.smtp.user", "SMTP_USER")
	v.BindEnv("mailbox.smtp.password", "SMTP_PASSWORD")
	v.BindEnv("mailbox.smtp.from", "SMTP_FROM")

	// Scheduler
	v.BindEnv("scheduler.interval", "FETCH_INTERVAL")

	// Worker
	v.BindEnv("worker.count", "WORKER_COUNT")
	v.BindEnv("worker.max_attempts", "MAX_RETRY_ATTEMPTS")
	v.BindEnv("worker.backoff_base", "BACKOFF_BASE")
	v.BindEnv("worker.backoff_max", "BACKOFF_MAX")
	v.BindEnv("worker.visibility_timeout", "VISIBILITY_TIMEOUT")
	v.BindEnv("worker.claim_ttl", "CLAIM_TTL")
	v.BindEnv("worker.send_timeout", "SEND_TIMEOUT")
	v.BindEnv("worker.rate_limit", "SEND_RATE_LIMIT")

	// Classifier and replies
	v.BindEnv("classifier.provider", "CLASSIFIER_PROVIDER")
	v.BindEnv("classifier.keywords.interested", "INTERESTED_KEYWORDS")
	v.BindEnv("classifier.keywords.more_information", "MORE_INFORMATION_KEYWORDS")
	v.BindEnv("replies.templates.interested", "REPLY_TEMPLATE_INTERESTED")
	v.BindEnv("replies.templates.more_information", "REPLY_TEMPLATE_MORE_INFORMATION")
	v.BindEnv("replies.templates.not_interested", "REPLY_TEMPLATE_NOT_INTERESTED")

	// AI
	v.BindEnv("ai.api_key", "OPENAI_API_KEY")
	v.BindEnv("ai.base_url", "OPENAI_BASE_URL")
	v.BindEnv("ai.model", "OPENAI_MODEL")

	v.BindEnv("log.level", "LOG_LEVEL")
}

// GetDSN returns the database connection string for the configured driver
func (c *DatabaseConfig) GetDSN() string {
	switch c.Driver {
	case "postgres":
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
			c.Host, c.User, c.Password, c.DBName, c.Port, c.SSLMode)
	case "sqlite":
		return fmt.Sprintf("%s?_busy_timeout=5000&_journal_mode=WAL", c.Path)
	default:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			c.User, c.Password, c.Host, c.Port, c.DBName)
	}
}

// Validate validates the configuration. Keyword sets and reply templates are
// validated by the classifier and composer when they are built.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return apperrors.Configuration("server.port", "is required")
	}

	switch c.Database.Driver {
	case "mysql", "postgres":
		if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
			return apperrors.Configuration("database", "host, user, and dbname are required for %s", c.Database.Driver)
		}
	case "sqlite":
		if c.Database.Path == "" {
			return apperrors.Configuration("database.path", "is required for sqlite")
		}
	default:
		return apperrors.Configuration("database.driver", "unsupported driver %q", c.Database.Driver)
	}

	switch strings.ToLower(c.Mailbox.Provider) {
	case "gmail":
		g := c.Mailbox.Gmail
		if g.ClientID == "" || g.ClientSecret == "" || g.RefreshToken == "" {
			return apperrors.Configuration("mailbox.gmail", "OAuth2 credentials are required")
		}
	case "imap":
		if c.Mailbox.IMAP.User == "" || c.Mailbox.IMAP.Password == "" {
			return apperrors.Configuration("mailbox.imap", "credentials are required")
		}
		if c.Mailbox.SMTP.Host == "" || c.Mailbox.SMTP.Port == 0 {
			return apperrors.Configuration("mailbox.smtp", "host and port are required")
		}
	default:
		return apperrors.Configuration("mailbox.provider", "unsupported provider %q", c.Mailbox.Provider)
	}

	if c.Scheduler.Interval <= 0 {
		return apperrors.Configuration("scheduler.interval", "must be greater than 0")
	}

	if err := c.Worker.Validate(); err != nil {
		return err
	}

	switch c.Classifier.Provider {
	case "keyword":
	case "ai":
		if c.AI.APIKey == "" {
			return apperrors.Configuration("ai.api_key", "is required for the ai classifier")
		}
	default:
		return apperrors.Configuration("classifier.provider", "unsupported provider %q", c.Classifier.Provider)
	}

	return nil
}

// Validate validates worker pool settings
func (w *WorkerConfig) Validate() error {
	if w.Count <= 0 {
		return apperrors.Configuration("worker.count", "must be greater than 0")
	}
	if w.MaxAttempts <= 0 {
		return apperrors.Configuration("worker.max_attempts", "must be greater than 0")
	}
	if w.BackoffBase <= 0 {
		return apperrors.Configuration("worker.backoff_base", "must be greater than 0")
	}
	if w.BackoffMax < w.BackoffBase {
		return apperrors.Configuration("worker.backoff_max", "must not be below backoff_base")
	}
	if w.VisibilityTimeout <= 0 || w.ClaimTTL <= 0 || w.SendTimeout <= 0 {
		return apperrors.Configuration("worker", "visibility_timeout, claim_ttl and send_timeout must be greater than 0")
	}
	// A send must finish while its claim is still held, and a redelivered job
	// must not reach a claim that its first delivery still owns.
	if w.SendTimeout >= w.ClaimTTL {
		return apperrors.Configuration("worker.send_timeout", "must be shorter than claim_ttl")
	}
	if w.VisibilityTimeout > w.ClaimTTL {
		return apperrors.Configuration("worker.visibility_timeout", "must not exceed claim_ttl")
	}
	if w.RateLimit < 0 {
		return apperrors.Configuration("worker.rate_limit", "must not be negative")
	}
	return nil
}
