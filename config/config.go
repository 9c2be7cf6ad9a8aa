package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type HTTP struct {
	Addr            string        `yaml:"addr"`            // ":8080"
	ReadTimeout     time.Duration `yaml:"readTimeout"`     // "15s"
	WriteTimeout    time.Duration `yaml:"writeTimeout"`    // "30s"
	IdleTimeout     time.Duration `yaml:"idleTimeout"`     // "60s"
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"` // "10s"
}

type Store struct {
	Driver string `yaml:"driver"` // memory|sqlite|postgres|redis
	DSN    string `yaml:"dsn"`
}

type WS struct {
	PingInterval time.Duration `yaml:"pingInterval"` // "15s"
	SendBuffer   int           `yaml:"sendBuffer"`   // per-connection outbox depth
}

type Reaper struct {
	Interval time.Duration `yaml:"interval"` // "60s"
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|stage|prod
	Service   string `yaml:"service"`   // "m5chat"
	Version   string `yaml:"version"`   // "v0.1.0"
	Backend   string `yaml:"backend"`   // std|zap
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type Config struct {
	HTTP    HTTP    `yaml:"http"`
	Store   Store   `yaml:"store"`
	WS      WS      `yaml:"ws"`
	Reaper  Reaper  `yaml:"reaper"`
	Logging Logging `yaml:"logging"`
}

// Load reads CONFIG_PATH (default ./config/config.yaml), then applies
// environment overrides. A missing file is fine: every field has a default,
// and a bare binary runs on the in-memory store.
func Load() (*Config, error) {
	_ = godotenv.Load() // .env is a dev convenience, absence is normal

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal yaml: %w", err)
		}
	case os.IsNotExist(err):
		// defaults only
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if v := os.Getenv("M5CHAT_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("M5CHAT_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("M5CHAT_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = 15 * time.Second
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = 30 * time.Second
	}
	if c.HTTP.IdleTimeout == 0 {
		c.HTTP.IdleTimeout = 60 * time.Second
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}

	switch c.Store.Driver {
	case "", "memory", "sqlite", "postgres", "redis":
	default:
		return fmt.Errorf("store.driver %q is not one of memory|sqlite|postgres|redis", c.Store.Driver)
	}

	if c.WS.PingInterval == 0 {
		c.WS.PingInterval = 15 * time.Second
	}
	if c.WS.SendBuffer <= 0 {
		c.WS.SendBuffer = 256
	}
	if c.Reaper.Interval == 0 {
		c.Reaper.Interval = 60 * time.Second
	}

	if c.Logging.Service == "" {
		c.Logging.Service = "m5chat"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	return nil
}
