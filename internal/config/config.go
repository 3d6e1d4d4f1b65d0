package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr      string        `yaml:"http_addr"`
	LogLevel      string        `yaml:"log_level"`
	DatabaseURL   string        `yaml:"database_url"`
	RedisAddr     string        `yaml:"redis_addr"`
	RouteCacheTTL time.Duration `yaml:"route_cache_ttl"`
	CORSOrigins   []string      `yaml:"cors_allowed_origins"`

	Map struct {
		NearestSearchMaxKm        float64 `yaml:"nearest_search_max_km"`
		SnapMaxM                  float64 `yaml:"snap_max_m"`
		AllowStraightlineFallback bool    `yaml:"allow_straightline_fallback"`
	} `yaml:"map"`

	Weathermap struct {
		WarnBps float64 `yaml:"warn_bps"`
		HighBps float64 `yaml:"high_bps"`
	} `yaml:"weathermap"`

	TrafficPoll struct {
		Enabled  bool          `yaml:"enabled"`
		Interval time.Duration `yaml:"interval"`
		Workers  int           `yaml:"workers"`
	} `yaml:"traffic_poll"`

	SNMP struct {
		Community string        `yaml:"community"`
		Version   string        `yaml:"version"`
		Timeout   time.Duration `yaml:"timeout"`
		Retries   int           `yaml:"retries"`
		Port      uint16        `yaml:"port"`
	} `yaml:"snmp"`
}

func Default() Config {
	var c Config
	c.HTTPAddr = ":8081"
	c.LogLevel = "info"
	c.RouteCacheTTL = 5 * time.Minute
	c.Map.NearestSearchMaxKm = 50
	c.Map.SnapMaxM = 250
	c.Weathermap.WarnBps = 100_000_000
	c.Weathermap.HighBps = 500_000_000
	c.TrafficPoll.Interval = time.Minute
	c.TrafficPoll.Workers = 8
	c.SNMP.Community = "public"
	c.SNMP.Version = "2c"
	c.SNMP.Timeout = 900 * time.Millisecond
	c.SNMP.Retries = 1
	c.SNMP.Port = 161
	return c
}

// Load builds the configuration from defaults, an optional YAML file named by
// CONFIG_FILE, and environment overrides. A .env file in the working directory
// is loaded first if present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config file %s not found", path)
		}
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	var errs []error
	float := func(key string, dst *float64) {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = f
	}
	boolean := func(key string, dst *bool) {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = b
	}
	duration := func(key string, dst *time.Duration) {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}
	integer := func(key string, dst *int) {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}

	str("HTTP_ADDR", &c.HTTPAddr)
	str("LOG_LEVEL", &c.LogLevel)
	str("DATABASE_URL", &c.DatabaseURL)
	str("REDIS_ADDR", &c.RedisAddr)
	duration("ROUTE_CACHE_TTL", &c.RouteCacheTTL)
	if v := strings.TrimSpace(getenv("CORS_ALLOWED_ORIGINS")); v != "" {
		c.CORSOrigins = splitList(v)
	}

	float("MAP_NEAREST_SEARCH_MAX_KM", &c.Map.NearestSearchMaxKm)
	float("MAP_SNAP_MAX_M", &c.Map.SnapMaxM)
	boolean("MAP_ALLOW_STRAIGHTLINE_FALLBACK", &c.Map.AllowStraightlineFallback)

	float("WARN_BPS", &c.Weathermap.WarnBps)
	float("HIGH_BPS", &c.Weathermap.HighBps)
	if c.Weathermap.WarnBps >= c.Weathermap.HighBps {
		errs = append(errs, fmt.Errorf("WARN_BPS (%g) must be below HIGH_BPS (%g)", c.Weathermap.WarnBps, c.Weathermap.HighBps))
	}

	boolean("TRAFFIC_POLL_ENABLED", &c.TrafficPoll.Enabled)
	duration("TRAFFIC_POLL_INTERVAL", &c.TrafficPoll.Interval)
	integer("TRAFFIC_POLL_WORKERS", &c.TrafficPoll.Workers)

	str("SNMP_COMMUNITY", &c.SNMP.Community)
	str("SNMP_VERSION", &c.SNMP.Version)
	duration("SNMP_TIMEOUT", &c.SNMP.Timeout)
	integer("SNMP_RETRIES", &c.SNMP.Retries)
	if v := strings.TrimSpace(getenv("SNMP_PORT")); v != "" {
		n, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			errs = append(errs, fmt.Errorf("SNMP_PORT: %w", err))
		} else {
			c.SNMP.Port = uint16(n)
		}
	}

	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
