package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"github.com/clearpath-clinical/inventory-backend/pkg/policy"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Policy       PolicyConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if _, err := cfg.Policy.Rules(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CLEARPATH_APP_ENV" required:"true"`
	Port         string `envconfig:"CLEARPATH_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CLEARPATH_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CLEARPATH_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CLEARPATH_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CLEARPATH_DB_DSN"`
	Driver string `envconfig:"CLEARPATH_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CLEARPATH_DB_HOST"`
	LegacyPort     int    `envconfig:"CLEARPATH_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CLEARPATH_DB_USER"`
	LegacyPassword string `envconfig:"CLEARPATH_DB_PASSWORD"`
	LegacyName     string `envconfig:"CLEARPATH_DB_NAME"`
	LegacySSLMode  string `envconfig:"CLEARPATH_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CLEARPATH_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CLEARPATH_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CLEARPATH_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CLEARPATH_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL      string `envconfig:"CLEARPATH_REDIS_URL"`
	Address  string `envconfig:"CLEARPATH_REDIS_ADDRESS"`
	Password string `envconfig:"CLEARPATH_REDIS_PASSWORD"`
	DB       int    `envconfig:"CLEARPATH_REDIS_DB" default:"0"`

	PoolSize     int           `envconfig:"CLEARPATH_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CLEARPATH_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CLEARPATH_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CLEARPATH_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"CLEARPATH_REDIS_WRITE_TIMEOUT" default:"3s"`
}

// PolicyConfig carries the regulatory policy knobs as env strings.
// Quantities are decimal strings (mL). Rules() parses and validates.
type PolicyConfig struct {
	FullDisposalWitnessMin int    `envconfig:"CLEARPATH_POLICY_FULL_DISPOSAL_WITNESS_MIN" default:"2"`
	WasteWitnessMin        int    `envconfig:"CLEARPATH_POLICY_WASTE_WITNESS_MIN" default:"1"`
	IncinerationFormML     string `envconfig:"CLEARPATH_POLICY_INCINERATION_FORM_ML" default:"100"`
	LowStockML             string `envconfig:"CLEARPATH_POLICY_LOW_STOCK_ML" default:"100"`
	VarianceAlertPercent   string `envconfig:"CLEARPATH_POLICY_VARIANCE_ALERT_PERCENT" default:"1"`
	BiennialIntervalDays   int    `envconfig:"CLEARPATH_POLICY_BIENNIAL_INTERVAL_DAYS" default:"730"`
	MutationRetryAttempts  int    `envconfig:"CLEARPATH_POLICY_MUTATION_RETRY_ATTEMPTS" default:"3"`
}

// Rules converts the raw env values into the policy the services enforce.
func (p PolicyConfig) Rules() (policy.Rules, error) {
	rules := policy.Default()

	if p.FullDisposalWitnessMin > 0 {
		rules.FullDisposalWitnessMin = p.FullDisposalWitnessMin
	}
	if p.WasteWitnessMin > 0 {
		rules.WasteWitnessMin = p.WasteWitnessMin
	}
	if p.BiennialIntervalDays > 0 {
		rules.BiennialIntervalDays = p.BiennialIntervalDays
	}
	if p.MutationRetryAttempts > 0 {
		rules.MutationRetryAttempts = p.MutationRetryAttempts
	}

	var err error
	if rules.IncinerationFormThreshold, err = parseQuantity("CLEARPATH_POLICY_INCINERATION_FORM_ML", p.IncinerationFormML, rules.IncinerationFormThreshold); err != nil {
		return policy.Rules{}, err
	}
	if rules.LowStockThreshold, err = parseQuantity("CLEARPATH_POLICY_LOW_STOCK_ML", p.LowStockML, rules.LowStockThreshold); err != nil {
		return policy.Rules{}, err
	}
	if rules.VarianceAlertPercent, err = parseQuantity("CLEARPATH_POLICY_VARIANCE_ALERT_PERCENT", p.VarianceAlertPercent, rules.VarianceAlertPercent); err != nil {
		return policy.Rules{}, err
	}
	return rules, nil
}

func parseQuantity(envName, raw string, fallback decimal.Decimal) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fallback, nil
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing %s: %w", envName, err)
	}
	if value.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative", envName)
	}
	return value, nil
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CLEARPATH_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CLEARPATH_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CLEARPATH_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"CLEARPATH_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"CLEARPATH_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	AuditTopic        string `envconfig:"CLEARPATH_PUBSUB_AUDIT_TOPIC" default:"cp-audit-events"`
	AuditSubscription string `envconfig:"CLEARPATH_PUBSUB_AUDIT_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"CLEARPATH_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"CLEARPATH_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"CLEARPATH_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
