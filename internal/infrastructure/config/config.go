package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root of the application configuration tree. Sections map
// 1:1 to TOML tables and to SOP_<SECTION>_<KEY> environment variables.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
	Planning  PlanningConfig  `mapstructure:"planning"`
	Reports   ReportsConfig   `mapstructure:"reports"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// AppConfig holds application-wide settings.
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	// ShutdownTimeout is the graceful shutdown budget covering worker
	// drain and connection close.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds the postgres connection and pool settings.
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // minutes
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // minutes
}

// RedisConfig holds the report cache connection settings.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig controls log level ("debug".."error"), format ("json" or
// "console") and output ("stdout", "stderr" or a file path).
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// PlanningConfig holds forecast submission policy settings.
type PlanningConfig struct {
	// SubmitMinMonths is how many future months must carry quantity
	// before a forecast can be submitted.
	SubmitMinMonths int `mapstructure:"submit_min_months"`
}

// ReportsConfig holds report generation settings.
type ReportsConfig struct {
	Workers    int           `mapstructure:"workers"`     // concurrent generation workers
	QueueSize  int           `mapstructure:"queue_size"`  // pending report queue capacity
	JobTimeout time.Duration `mapstructure:"job_timeout"` // per-report generation timeout
	// MaxAge is the reuse window for completed reports with a matching
	// fingerprint.
	MaxAge    time.Duration `mapstructure:"max_age"`
	Retention time.Duration `mapstructure:"retention"` // how long finished reports are kept
}

// SchedulerConfig holds the lifecycle job settings.
type SchedulerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Interval         time.Duration `mapstructure:"interval"`
	JobTimeout       time.Duration `mapstructure:"job_timeout"`
	DeadlineLeadTime time.Duration `mapstructure:"deadline_lead_time"` // reminder window before a cycle deadline
}

// TelemetryConfig holds the OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	CollectorEndpoint string  `mapstructure:"collector_endpoint"` // OTLP gRPC endpoint, host:port
	SamplingRatio     float64 `mapstructure:"sampling_ratio"`     // 0.0 to 1.0
	ServiceName       string  `mapstructure:"service_name"`
	Insecure          bool    `mapstructure:"insecure"` // plaintext collector connection, development only
	// DBTraceEnabled turns on per-query spans via the otelgorm plugin.
	DBTraceEnabled bool `mapstructure:"db_trace_enabled"`
	// DBLogFullSQL records complete SQL statements on spans. Rejected in
	// production because statements carry customer quantities and prices.
	DBLogFullSQL      bool          `mapstructure:"db_log_full_sql"`
	DBSlowQueryThresh time.Duration `mapstructure:"db_slow_query_threshold"`
}

// Load builds the configuration from three layers: built-in defaults,
// an optional config.toml, and SOP_-prefixed environment variables
// (e.g. SOP_DATABASE_PASSWORD). Later layers win.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	// Registering a default for every key is what lets AutomaticEnv
	// overrides reach Unmarshal.
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix("SOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "sop-backend")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.shutdown_timeout", 30*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "sop")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 60)
	v.SetDefault("database.conn_max_idle_time", 30)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")

	// Full future horizon plus the current month
	v.SetDefault("planning.submit_min_months", 12)

	v.SetDefault("reports.workers", 3)
	v.SetDefault("reports.queue_size", 100)
	v.SetDefault("reports.job_timeout", 2*time.Minute)
	v.SetDefault("reports.max_age", time.Hour)
	v.SetDefault("reports.retention", 168*time.Hour)

	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.interval", 15*time.Minute)
	v.SetDefault("scheduler.job_timeout", 5*time.Minute)
	v.SetDefault("scheduler.deadline_lead_time", 48*time.Hour)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.collector_endpoint", "localhost:4317")
	v.SetDefault("telemetry.sampling_ratio", 1.0)
	v.SetDefault("telemetry.service_name", "sop-backend")
	v.SetDefault("telemetry.insecure", false)
	v.SetDefault("telemetry.db_trace_enabled", false)
	v.SetDefault("telemetry.db_log_full_sql", false)
	v.SetDefault("telemetry.db_slow_query_threshold", 200*time.Millisecond)
}

func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	// The submit gate can never require more months than the planning window holds
	if c.Planning.SubmitMinMonths < 1 || c.Planning.SubmitMinMonths > 16 {
		return fmt.Errorf("planning.submit_min_months must be between 1 and 16, got %d", c.Planning.SubmitMinMonths)
	}

	if c.Reports.Workers < 0 {
		return fmt.Errorf("reports.workers cannot be negative")
	}
	if c.Reports.QueueSize < 0 {
		return fmt.Errorf("reports.queue_size cannot be negative")
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be positive when the scheduler is enabled")
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	return nil
}

// DSN returns a postgres connection URL with credentials escaped.
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     d.DBName,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}
