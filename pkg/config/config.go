package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is applied to every environment variable read by Load.
const EnvPrefix = "securepatrol"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App        AppConfig
	Store      StoreConfig
	Zone       ZoneConfig
	Master     MasterConfig
	Password   PasswordConfig
	Media      MediaConfig
	Classifier ClassifierConfig
	Retention  RetentionConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Zone.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SECUREPATROL_APP_ENV" default:"dev"`
	LogLevel     string `envconfig:"SECUREPATROL_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SECUREPATROL_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type StoreConfig struct {
	SQLiteDSN string `envconfig:"SECUREPATROL_STORE_SQLITE_DSN" default:"file:securepatrol.db?_fk=1"`
	// MaxPartitionBytes bounds a single partition payload, mirroring the
	// quota of the original on-device medium. Zero disables the cap.
	MaxPartitionBytes int  `envconfig:"SECUREPATROL_STORE_MAX_PARTITION_BYTES" default:"5242880"`
	AutoMigrate       bool `envconfig:"SECUREPATROL_STORE_AUTO_MIGRATE" default:"true"`
}

// ZoneConfig fixes the geographic circle inside which a patrol submission is
// valid. Read once at process start; not editable through the core.
type ZoneConfig struct {
	Latitude     float64 `envconfig:"SECUREPATROL_ZONE_LAT" default:"-7.3643555"`
	Longitude    float64 `envconfig:"SECUREPATROL_ZONE_LNG" default:"108.5324731"`
	RadiusMeters float64 `envconfig:"SECUREPATROL_ZONE_RADIUS_METERS" default:"500"`
}

func (z ZoneConfig) validate() error {
	if z.RadiusMeters < 0 {
		return fmt.Errorf("zone radius must not be negative")
	}
	if z.Latitude < -90 || z.Latitude > 90 {
		return fmt.Errorf("zone latitude out of range")
	}
	if z.Longitude < -180 || z.Longitude > 180 {
		return fmt.Errorf("zone longitude out of range")
	}
	return nil
}

// MasterConfig holds the privileged credential pair kept outside the user
// partition. When Email is empty the master login is disabled.
type MasterConfig struct {
	Email    string `envconfig:"SECUREPATROL_MASTER_EMAIL"`
	Password string `envconfig:"SECUREPATROL_MASTER_PASSWORD"`
}

func (m MasterConfig) Enabled() bool {
	return strings.TrimSpace(m.Email) != "" && m.Password != ""
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"SECUREPATROL_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"SECUREPATROL_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"SECUREPATROL_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"SECUREPATROL_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"SECUREPATROL_ARGON_KEY_LEN" default:"32"`
}

type MediaConfig struct {
	ImageMaxWidth int `envconfig:"SECUREPATROL_MEDIA_IMAGE_MAX_WIDTH" default:"1024"`
	ImageQuality  int `envconfig:"SECUREPATROL_MEDIA_IMAGE_QUALITY" default:"70"`
}

type ClassifierConfig struct {
	APIKey  string `envconfig:"SECUREPATROL_CLASSIFIER_API_KEY"`
	Model   string `envconfig:"SECUREPATROL_CLASSIFIER_MODEL" default:"gemini-2.5-flash"`
	BaseURL string `envconfig:"SECUREPATROL_CLASSIFIER_BASE_URL"`
}

func (c ClassifierConfig) Enabled() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

type RetentionConfig struct {
	// MaxLogs caps the patrol log partition; the oldest entry by insertion
	// order is evicted once the ceiling is exceeded.
	MaxLogs int `envconfig:"SECUREPATROL_RETENTION_MAX_LOGS" default:"50"`
}
