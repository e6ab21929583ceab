// Package config loads and validates harvester configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. HARVESTER_HARVEST_INDEX_URL.
const EnvPrefix = "HARVESTER"

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Harvest   HarvestConfig   `mapstructure:"harvest"`
	Pacing    PacingConfig    `mapstructure:"pacing"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Writeback WritebackConfig `mapstructure:"writeback"`
	Scroll    ScrollConfig    `mapstructure:"scroll"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Index     IndexConfig     `mapstructure:"index"`
	Blob      BlobConfig      `mapstructure:"blob"`
	Google    GoogleConfig    `mapstructure:"google"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// HarvestConfig describes the listing site.
type HarvestConfig struct {
	IndexURL          string `mapstructure:"index_url" validate:"required,url"`
	PostingMarker     string `mapstructure:"posting_marker" validate:"required"`
	IDStartMarker     string `mapstructure:"id_start_marker" validate:"required"`
	IDEndMarker       string `mapstructure:"id_end_marker" validate:"required"`
	MaxPostings       int    `mapstructure:"max_postings" validate:"gte=0"`
	InvalidIdentifier string `mapstructure:"invalid_identifier" validate:"oneof=skip fail"`
}

// PacingConfig bounds the pause between browser actions.
type PacingConfig struct {
	MinSleep time.Duration `mapstructure:"min_sleep" validate:"gte=0"`
	MaxSleep time.Duration `mapstructure:"max_sleep" validate:"gte=0"`
}

// RetryConfig is the jittered policy for snapshot reads and navigation.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" validate:"gte=1"`
	MinDelay    time.Duration `mapstructure:"min_delay" validate:"gte=0"`
	MaxDelay    time.Duration `mapstructure:"max_delay" validate:"gte=0"`
}

// WritebackConfig is the fixed-delay policy for index and blob writes.
type WritebackConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" validate:"gte=1"`
	Delay       time.Duration `mapstructure:"delay" validate:"gte=0"`
}

// ScrollConfig controls the scroll-to-end loop.
type ScrollConfig struct {
	StepPx   int `mapstructure:"step_px" validate:"gte=1"`
	MaxSteps int `mapstructure:"max_steps" validate:"gte=1"`
}

// BrowserConfig configures headless Chrome.
type BrowserConfig struct {
	Headless       bool          `mapstructure:"headless"`
	UserAgent      string        `mapstructure:"user_agent"`
	NavTimeout     time.Duration `mapstructure:"nav_timeout" validate:"gt=0"`
	MinNavInterval time.Duration `mapstructure:"min_nav_interval" validate:"gte=0"`
}

// IndexConfig selects and configures the identifier index backend.
type IndexConfig struct {
	Provider string         `mapstructure:"provider" validate:"oneof=sheets postgres redis memory"`
	Sheets   SheetsConfig   `mapstructure:"sheets"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// SheetsConfig locates the index spreadsheet.
type SheetsConfig struct {
	SpreadsheetID string `mapstructure:"spreadsheet_id"`
	Sheet         string `mapstructure:"sheet"`
}

// PostgresConfig controls the Postgres index table.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// RedisConfig controls the Redis index list.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
}

// BlobConfig selects and configures the artifact store.
type BlobConfig struct {
	Provider    string      `mapstructure:"provider" validate:"oneof=drive gcs local memory"`
	ContentType string      `mapstructure:"content_type"`
	Drive       DriveConfig `mapstructure:"drive"`
	GCS         GCSConfig   `mapstructure:"gcs"`
	Local       LocalConfig `mapstructure:"local"`
}

// DriveConfig identifies the Drive folder.
type DriveConfig struct {
	FolderID string `mapstructure:"folder_id"`
}

// GCSConfig identifies the bucket.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// LocalConfig sets the output directory.
type LocalConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// GoogleConfig carries service-account credentials. Empty means Application
// Default Credentials.
type GoogleConfig struct {
	CredentialsJSON string `mapstructure:"credentials_json"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// PublisherConfig enables the run-summary Pub/Sub message.
type PublisherConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig enables pushing run metrics to a Prometheus Pushgateway.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url" validate:"omitempty,url"`
	Job            string `mapstructure:"job"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// TracingConfig controls the OpenTelemetry trace provider.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name" validate:"required_if=Enabled true"`
}

// Load builds a Config from defaults, an optional file and the environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Google = resolveCredentials(cfg.Google, os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// resolveCredentials accepts GOOGLE_APPLICATION_CREDENTIALS holding the key
// JSON itself, which ADC would otherwise try to open as a path.
func resolveCredentials(g GoogleConfig, env string) GoogleConfig {
	if g.CredentialsJSON != "" || g.CredentialsFile != "" {
		return g
	}
	if strings.HasPrefix(strings.TrimSpace(env), "{") {
		g.CredentialsJSON = env
	}
	return g
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("harvest.index_url", "https://www.higheredjobs.com/faculty/search.cfm?JobCat=62")
	v.SetDefault("harvest.posting_marker", "details.cfm?JobCode=")
	v.SetDefault("harvest.id_start_marker", "JobCode=")
	v.SetDefault("harvest.id_end_marker", "&Title")
	v.SetDefault("harvest.max_postings", 0)
	v.SetDefault("harvest.invalid_identifier", "skip")
	v.SetDefault("pacing.min_sleep", 2*time.Second)
	v.SetDefault("pacing.max_sleep", 6*time.Second)
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.min_delay", 2*time.Second)
	v.SetDefault("retry.max_delay", 6*time.Second)
	v.SetDefault("writeback.max_attempts", 5)
	v.SetDefault("writeback.delay", 5*time.Second)
	v.SetDefault("scroll.step_px", 500)
	v.SetDefault("scroll.max_steps", 200)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.nav_timeout", 45*time.Second)
	v.SetDefault("browser.min_nav_interval", time.Duration(0))
	v.SetDefault("index.provider", "sheets")
	v.SetDefault("index.sheets.spreadsheet_id", "")
	v.SetDefault("index.sheets.sheet", "")
	v.SetDefault("index.postgres.dsn", "")
	v.SetDefault("index.postgres.table", "posting_index")
	v.SetDefault("index.postgres.max_conns", 4)
	v.SetDefault("index.postgres.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("index.redis.addr", "")
	v.SetDefault("index.redis.password", "")
	v.SetDefault("index.redis.db", 0)
	v.SetDefault("index.redis.key", "harvest:posting_index")
	v.SetDefault("blob.provider", "drive")
	v.SetDefault("blob.content_type", "text/plain; charset=utf-8")
	v.SetDefault("blob.drive.folder_id", "")
	v.SetDefault("blob.gcs.bucket", "")
	v.SetDefault("blob.gcs.prefix", "")
	v.SetDefault("blob.local.base_dir", "postings")
	v.SetDefault("google.credentials_json", "")
	v.SetDefault("google.credentials_file", "")
	v.SetDefault("publisher.project_id", "")
	v.SetDefault("publisher.topic", "")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "jobpost_harvester")
	v.SetDefault("logging.development", false)
	v.SetDefault("tracing.enabled", true)
	v.SetDefault("tracing.service_name", "jobpost-harvester")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate enforces required values and cross-field rules.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	var errs []error
	if c.Pacing.MinSleep > c.Pacing.MaxSleep {
		errs = append(errs, fmt.Errorf("pacing.min_sleep must be <= pacing.max_sleep"))
	}
	if c.Retry.MinDelay > c.Retry.MaxDelay {
		errs = append(errs, fmt.Errorf("retry.min_delay must be <= retry.max_delay"))
	}
	switch c.Index.Provider {
	case "sheets":
		if c.Index.Sheets.SpreadsheetID == "" {
			errs = append(errs, fmt.Errorf("index.sheets.spreadsheet_id is required for the sheets provider"))
		}
	case "postgres":
		if c.Index.Postgres.DSN == "" {
			errs = append(errs, fmt.Errorf("index.postgres.dsn is required for the postgres provider"))
		}
	case "redis":
		if c.Index.Redis.Addr == "" {
			errs = append(errs, fmt.Errorf("index.redis.addr is required for the redis provider"))
		}
	}
	switch c.Blob.Provider {
	case "drive":
		if c.Blob.Drive.FolderID == "" {
			errs = append(errs, fmt.Errorf("blob.drive.folder_id is required for the drive provider"))
		}
	case "gcs":
		if c.Blob.GCS.Bucket == "" {
			errs = append(errs, fmt.Errorf("blob.gcs.bucket is required for the gcs provider"))
		}
	case "local":
		if c.Blob.Local.BaseDir == "" {
			errs = append(errs, fmt.Errorf("blob.local.base_dir is required for the local provider"))
		}
	}
	if c.Publisher.Topic != "" && c.Publisher.ProjectID == "" {
		errs = append(errs, fmt.Errorf("publisher.project_id is required when publisher.topic is set"))
	}
	return errors.Join(errs...)
}

// UsesGoogle reports whether any configured backend talks to Google APIs.
func (c Config) UsesGoogle() bool {
	return c.Index.Provider == "sheets" || c.Blob.Provider == "drive" || c.Blob.Provider == "gcs" || c.Publisher.Topic != ""
}
