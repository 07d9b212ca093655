package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"parking-monitor/internal/parking/notify"
)

// Default live feeds and history sheet.
var (
	DefaultRealtimeURLs = []string{
		"https://gd.zaparkuj.pl/api/freegroupcountervalue.json",
		"https://gd.zaparkuj.pl/api/freegroupcountervalue-green.json",
	}
	DefaultHistoryURL = "https://docs.google.com/spreadsheets/d/e/2PACX-1vTwLNDbg8KjlVHsZWj9JUnO_OBIyZaRgZ4gZ8_Gbyly2J3f6rlCW6lDHAihwbuLhxWbBkNMI1wdWRAq/pub?gid=411529798&single=true&output=csv"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Config defines the service configuration.
type Config struct {
	HTTPAddr        string         `yaml:"http_addr" validate:"required"`
	Timezone        string         `yaml:"timezone" validate:"required"`
	Locale          string         `yaml:"locale" validate:"required"`
	RefreshInterval time.Duration  `yaml:"refresh_interval" validate:"gte=1s"`
	Feed            FeedConfig     `yaml:"feed"`
	Form            FormConfig     `yaml:"form"`
	Storage         StorageConfig  `yaml:"storage"`
	Thresholds      Thresholds     `yaml:"thresholds"`
	Capacities      map[string]int `yaml:"capacities" validate:"dive,keys,required,endkeys,gt=0"`
}

// FeedConfig defines the upstream endpoints.
type FeedConfig struct {
	// RealtimeURLs are ordered GreenDay first, Uni second.
	RealtimeURLs   []string      `yaml:"realtime_urls" validate:"len=2,dive,url"`
	HistoryURL     string        `yaml:"history_url" validate:"omitempty,url"`
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gte=1s"`
	CacheBust      bool          `yaml:"cache_bust"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes" validate:"gt=0"`
}

// FormConfig defines the sample submission form.
type FormConfig struct {
	Enabled bool        `yaml:"enabled"`
	URL     string      `yaml:"url" validate:"omitempty,url"`
	Entries FormEntries `yaml:"entries"`
}

// FormEntries names the form inputs.
type FormEntries struct {
	GreenDayValue string `yaml:"greenday_value" validate:"required"`
	GreenDayTime  string `yaml:"greenday_time" validate:"required"`
	UniValue      string `yaml:"uni_value" validate:"required"`
	UniTime       string `yaml:"uni_time" validate:"required"`
}

// StorageConfig selects the cache backend.
type StorageConfig struct {
	Driver        string        `yaml:"driver" validate:"oneof=memory sqlite postgres redis"`
	SQLitePath    string        `yaml:"sqlite_path" validate:"required_if=Driver sqlite"`
	PostgresDSN   string        `yaml:"postgres_dsn" validate:"required_if=Driver postgres"`
	PostgresTable string        `yaml:"postgres_table"`
	RedisAddr     string        `yaml:"redis_addr" validate:"required_if=Driver redis"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db" validate:"gte=0"`
	RedisPrefix   string        `yaml:"redis_prefix"`
	RedisTTL      time.Duration `yaml:"redis_ttl"`
}

// Thresholds defines staleness limits in minutes.
type Thresholds struct {
	StaleMinutes         int `yaml:"stale_minutes" validate:"gt=0"`
	ApproximationMinutes int `yaml:"approximation_minutes" validate:"gt=0"`
}

// Load reads env defaults, applies the optional PARKING_CONFIG yaml file and validates.
func Load() (Config, error) {
	formDefaults := notify.DefaultFormEntries()
	cfg := Config{
		HTTPAddr:        getenvDefault("HTTP_ADDR", ":8080"),
		Timezone:        getenvDefault("PARKING_TIMEZONE", "Europe/Warsaw"),
		Locale:          getenvDefault("PARKING_LOCALE", "pl-PL"),
		RefreshInterval: getenvDuration("PARKING_REFRESH_INTERVAL", 5*time.Minute),
		Feed: FeedConfig{
			RealtimeURLs:   splitCSV(getenvDefault("PARKING_REALTIME_URLS", strings.Join(DefaultRealtimeURLs, ","))),
			HistoryURL:     getenvDefault("PARKING_HISTORY_URL", DefaultHistoryURL),
			RequestTimeout: getenvDuration("PARKING_REQUEST_TIMEOUT", 10*time.Second),
			CacheBust:      getenvBool("PARKING_CACHE_BUST", true),
			MaxBodyBytes:   int64(getenvIntDefault("PARKING_MAX_BODY_BYTES", 64<<20)),
		},
		Form: FormConfig{
			Enabled: getenvBool("PARKING_FORM_ENABLED", true),
			URL:     getenvDefault("PARKING_FORM_URL", notify.DefaultFormURL),
			Entries: FormEntries{
				GreenDayValue: getenvDefault("PARKING_FORM_GREENDAY_VALUE", formDefaults.GreenDayValue),
				GreenDayTime:  getenvDefault("PARKING_FORM_GREENDAY_TIME", formDefaults.GreenDayTime),
				UniValue:      getenvDefault("PARKING_FORM_UNI_VALUE", formDefaults.UniValue),
				UniTime:       getenvDefault("PARKING_FORM_UNI_TIME", formDefaults.UniTime),
			},
		},
		Storage: StorageConfig{
			Driver:        getenvDefault("PARKING_STORAGE_DRIVER", DriverSQLite),
			SQLitePath:    getenvDefault("PARKING_SQLITE_PATH", "var/parking.db"),
			PostgresDSN:   getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
			PostgresTable: getenvDefault("PARKING_PG_TABLE", "parking_cache"),
			RedisAddr:     getenvDefault("REDIS_ADDR", ""),
			RedisPassword: os.Getenv("REDIS_PASSWORD"),
			RedisDB:       getenvIntDefault("REDIS_DB", 0),
			RedisPrefix:   getenvDefault("PARKING_REDIS_PREFIX", "parking:"),
			RedisTTL:      getenvDuration("PARKING_REDIS_TTL", 0),
		},
		Thresholds: Thresholds{
			StaleMinutes:         getenvIntDefault("PARKING_STALE_MINUTES", 15),
			ApproximationMinutes: getenvIntDefault("PARKING_APPROX_MINUTES", 30),
		},
		Capacities: parseCapacities(os.Getenv("PARKING_CAPACITIES")),
	}

	if path := os.Getenv("PARKING_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if cfg.Form.Enabled && cfg.Form.URL == "" {
		return cfg, errors.New("config: form url required when form is enabled")
	}
	if _, err := cfg.Location(); err != nil {
		return cfg, fmt.Errorf("config: timezone: %w", err)
	}
	return cfg, nil
}

// Location resolves the timezone used for timestamps without an offset.
func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
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

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
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

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	var result []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}

// parseCapacities reads "Name=187,Other=41".
func parseCapacities(value string) map[string]int {
	out := map[string]int{}
	for _, pair := range splitCSV(value) {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			continue
		}
		out[strings.TrimSpace(name)] = n
	}
	return out
}
