package application

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"asset-runhours/internal/runhours/domain"
)

// CassandraConfig describes the event store.
type CassandraConfig struct {
	Hosts           []string      `yaml:"hosts"`
	Keyspace        string        `yaml:"keyspace"`
	Table           string        `yaml:"table"`
	LocalDC         string        `yaml:"local_dc"`
	ProtocolVersion int           `yaml:"protocol_version"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	Consistency     string        `yaml:"consistency"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	DayLimit        int           `yaml:"day_limit"`
}

// AssetAPIConfig describes the asset directory and its credentials.
type AssetAPIConfig struct {
	URL          string        `yaml:"url"`
	Domain       string        `yaml:"domain"`
	PageSize     int           `yaml:"page_size"`
	Timeout      time.Duration `yaml:"timeout"`
	Token        string        `yaml:"token"`
	AuthURL      string        `yaml:"auth_url"`
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
}

// MQTTConfig describes the optional record publisher.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ScheduleConfig defines the daemon schedule.
type ScheduleConfig struct {
	DailyAt string `yaml:"daily_at"`
}

// Config defines run-hour configuration.
type Config struct {
	Env            string          `yaml:"env"`
	DatabaseURL    string          `yaml:"database_url"`
	UTCOffset      string          `yaml:"utc_offset"`
	Workers        int             `yaml:"workers"`
	FetchTimeout   time.Duration   `yaml:"fetch_timeout"`
	ProbeTimeout   time.Duration   `yaml:"probe_timeout"`
	WriteTimeout   time.Duration   `yaml:"write_timeout"`
	FetchRetries   int             `yaml:"fetch_retries"`
	FetchBackoff   time.Duration   `yaml:"fetch_backoff"`
	MaxDaysBack    int             `yaml:"max_days_back"`
	HangingOnCap   time.Duration   `yaml:"hanging_on_cap"`
	FallbackAssets []string        `yaml:"fallback_assets"`
	PushgatewayURL string          `yaml:"pushgateway_url"`
	MetricsAddr    string          `yaml:"metrics_addr"`
	Debug          bool            `yaml:"debug"`
	Cassandra      CassandraConfig `yaml:"cassandra"`
	AssetAPI       AssetAPIConfig  `yaml:"asset_api"`
	MQTT           MQTTConfig      `yaml:"mqtt"`
	Schedule       ScheduleConfig  `yaml:"schedule"`
}

// LoadEnvFile loads .env.<ENV> (default development) into the process
// environment. A missing file is not an error; variables already set win.
func LoadEnvFile() (string, error) {
	name := ".env." + getenvDefault("ENV", "development")
	if _, err := os.Stat(name); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	if err := godotenv.Load(name); err != nil {
		return "", fmt.Errorf("load %s: %w", name, err)
	}
	return name, nil
}

// LoadConfig loads config from env, then overlays the yaml file at path
// (or RUNHOURS_CONFIG when path is empty).
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		Env:            getenvDefault("ENV", "development"),
		DatabaseURL:    getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", postgresURLFromParts())),
		UTCOffset:      getenvDefault("RUNHOURS_UTC_OFFSET", "+04:00"),
		Workers:        getenvIntDefault("RUNHOURS_WORKERS", DefaultWorkers),
		FetchTimeout:   getenvDuration("RUNHOURS_FETCH_TIMEOUT", 10*time.Second),
		ProbeTimeout:   getenvDuration("RUNHOURS_PROBE_TIMEOUT", 5*time.Second),
		WriteTimeout:   getenvDuration("RUNHOURS_WRITE_TIMEOUT", 30*time.Second),
		FetchRetries:   getenvIntDefault("RUNHOURS_FETCH_RETRIES", 3),
		FetchBackoff:   getenvDuration("RUNHOURS_FETCH_BACKOFF", 500*time.Millisecond),
		MaxDaysBack:    getenvIntDefault("RUNHOURS_MAX_DAYS_BACK", domain.DefaultMaxDaysBack),
		HangingOnCap:   getenvDuration("RUNHOURS_HANGING_ON_CAP", domain.DefaultHangingOnCap),
		FallbackAssets: splitCSV(getenvDefault("FALLBACK_ASSETS", "AC_001")),
		PushgatewayURL: os.Getenv("PUSHGATEWAY_URL"),
		MetricsAddr:    getenvDefault("METRICS_ADDR", ":9108"),
		Debug:          getenvBool("LOG_DEBUG"),
		Cassandra: CassandraConfig{
			Hosts:           splitCSV(getenvDefault("CASSANDRA_HOSTS", getenvDefault("CASSANDRA_HOST", "127.0.0.1"))),
			Keyspace:        os.Getenv("CASSANDRA_KEYSPACE"),
			Table:           getenvDefault("CASSANDRA_TABLE", "run_status"),
			LocalDC:         os.Getenv("CASSANDRA_LOCAL_DC"),
			ProtocolVersion: getenvIntDefault("CASSANDRA_PROTOCOL_VERSION", 4),
			Username:        os.Getenv("CASSANDRA_USERNAME"),
			Password:        os.Getenv("CASSANDRA_PASSWORD"),
			Consistency:     getenvDefault("CASSANDRA_CONSISTENCY", "LOCAL_QUORUM"),
			ConnectTimeout:  getenvDuration("CASSANDRA_CONNECT_TIMEOUT", 10*time.Second),
			DayLimit:        getenvIntDefault("CASSANDRA_DAY_LIMIT", 1000),
		},
		AssetAPI: AssetAPIConfig{
			URL:          os.Getenv("ASSET_API_URL"),
			Domain:       getenvDefault("ASSET_DOMAIN", "AC"),
			PageSize:     getenvIntDefault("ASSET_PAGE_SIZE", 100),
			Timeout:      getenvDuration("ASSET_API_TIMEOUT", 10*time.Second),
			Token:        os.Getenv("ASSET_API_TOKEN"),
			AuthURL:      getenvDefault("AUTH_URL", os.Getenv("TOKEN_API_URL")),
			ClientID:     getenvDefault("AUTH_CLIENT_ID", os.Getenv("API_USERNAME")),
			ClientSecret: getenvDefault("AUTH_CLIENT_SECRET", os.Getenv("API_PASSWORD")),
		},
		MQTT: MQTTConfig{
			Broker:   os.Getenv("MQTT_BROKER"),
			Topic:    getenvDefault("MQTT_TOPIC", "energy/runhours/daily"),
			ClientID: getenvDefault("MQTT_CLIENT_ID", "runhours"),
			Username: os.Getenv("MQTT_USERNAME"),
			Password: os.Getenv("MQTT_PASSWORD"),
		},
	}

	if path == "" {
		path = os.Getenv("RUNHOURS_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("runhours config %s: %w", path, err)
		}
	}

	if cfg.Schedule.DailyAt == "" {
		cfg.Schedule.DailyAt = getenvDefault("RUNHOURS_DAILY_AT", "01:00")
	}
	return cfg, cfg.Validate()
}

// Validate checks required and bounded values.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("runhours config: DATABASE_URL or PG_DSN is required")
	}
	if len(c.Cassandra.Hosts) == 0 {
		return errors.New("runhours config: cassandra hosts required")
	}
	if c.Cassandra.Keyspace == "" {
		return errors.New("runhours config: CASSANDRA_KEYSPACE is required")
	}
	if _, err := domain.ParseZone(c.UTCOffset); err != nil {
		return fmt.Errorf("runhours config: %w", err)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("runhours config: workers must be positive, got %d", c.Workers)
	}
	if c.FetchRetries < 0 {
		return fmt.Errorf("runhours config: fetch retries must not be negative, got %d", c.FetchRetries)
	}
	if c.MaxDaysBack <= 0 {
		return fmt.Errorf("runhours config: max days back must be positive, got %d", c.MaxDaysBack)
	}
	if c.HangingOnCap <= 0 {
		return fmt.Errorf("runhours config: hanging on cap must be positive, got %s", c.HangingOnCap)
	}
	if _, _, err := parseDailyAt(c.Schedule.DailyAt); err != nil {
		return fmt.Errorf("runhours config: daily_at %q: %w", c.Schedule.DailyAt, err)
	}
	return nil
}

// Zone returns the configured fixed zone.
func (c Config) Zone() (domain.Zone, error) {
	return domain.ParseZone(c.UTCOffset)
}

// ProcessorConfig derives per-asset processing settings.
func (c Config) ProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		Fetch: RetryPolicy{
			Attempts:   c.FetchRetries + 1,
			Timeout:    c.FetchTimeout,
			Backoff:    c.FetchBackoff,
			MaxBackoff: 30 * time.Second,
		},
		ProbeTimeout: c.ProbeTimeout,
		WriteTimeout: c.WriteTimeout,
		MaxDaysBack:  c.MaxDaysBack,
		Debug:        c.Debug,
	}
}

// FallbackAssetList returns the fallback ids as assets.
func (c Config) FallbackAssetList() []Asset {
	assets := make([]Asset, 0, len(c.FallbackAssets))
	for _, id := range c.FallbackAssets {
		assets = append(assets, Asset{ID: id, DisplayName: id})
	}
	return assets
}

// postgresURLFromParts builds a DSN from POSTGRES_HOST/DB/USER/PASSWORD.
func postgresURLFromParts() string {
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return ""
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   host,
		Path:   "/" + os.Getenv("POSTGRES_DB"),
	}
	if user := os.Getenv("POSTGRES_USER"); user != "" {
		u.User = url.UserPassword(user, os.Getenv("POSTGRES_PASSWORD"))
	}
	if mode := os.Getenv("POSTGRES_SSLMODE"); mode != "" {
		u.RawQuery = "sslmode=" + url.QueryEscape(mode)
	}
	return u.String()
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string) bool {
	parsed, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
