// Package config loads the server configuration from config.yaml, with
// ${VAR} references expanded from the environment and an optional .env.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Database struct {
	Name     string `yaml:"name"`
	Driver   string `yaml:"driver"` // postgres or sqlite3
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	Schema   string `yaml:"schema"`
	// Path is the database file for sqlite3.
	Path    string `yaml:"path"`
	Default bool   `yaml:"default"`
}

// DSN builds the connection string for the database's driver.
func (d Database) DSN() string {
	if d.Driver == "sqlite3" {
		if d.Path == "" {
			return "file::memory:?cache=shared"
		}
		return "file:" + d.Path
	}
	schema := d.Schema
	if schema == "" {
		schema = "public"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable search_path=%s,public",
		d.Host, d.Port, d.User, d.Password, d.Database, schema)
}

type Config struct {
	Application struct {
		Name      string `yaml:"name"`
		Version   string `yaml:"version"`
		Namespace string `yaml:"namespace"`
	} `yaml:"application"`

	Server struct {
		Port   string `yaml:"port"`
		Prefix string `yaml:"prefix"`
	} `yaml:"server"`

	Database []Database `yaml:"database"`

	Pool struct {
		MaxConnections int    `yaml:"max_connections"`
		IdleTimeout    string `yaml:"idle_timeout"`
		AbsTimeout     string `yaml:"abs_timeout"`
	} `yaml:"pool"`

	Assets struct {
		Root    string `yaml:"root"`
		Version string `yaml:"version"`
	} `yaml:"assets"`

	Cache struct {
		Driver string `yaml:"driver"` // memory or sql
		Size   int    `yaml:"size"`
	} `yaml:"cache"`

	Catalog struct {
		Schema      string `yaml:"schema"`
		Definitions string `yaml:"definitions"`
		Introspect  bool   `yaml:"introspect"`
	} `yaml:"catalog"`

	Session struct {
		IdleTimeout string `yaml:"idle_timeout"`
		AbsTimeout  string `yaml:"abs_timeout"`
	} `yaml:"session"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// Load reads path after loading .env, if there is one.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse expands environment references in data and decodes it, filling
// in defaults.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))
	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Application.Namespace == "" {
		c.Application.Namespace = "app"
	}
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.Prefix == "" {
		c.Server.Prefix = "/datatables"
	}
	if c.Pool.MaxConnections == 0 {
		c.Pool.MaxConnections = 10
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	for i := range c.Database {
		if c.Database[i].Driver == "" {
			c.Database[i].Driver = "postgres"
		}
	}
}

// DefaultDatabase returns the database marked default, or the first one.
func (c *Config) DefaultDatabase() (Database, error) {
	if len(c.Database) == 0 {
		return Database{}, fmt.Errorf("config: no database configured")
	}
	for _, d := range c.Database {
		if d.Default {
			return d, nil
		}
	}
	return c.Database[0], nil
}

// Duration parses a duration setting, falling back to def when it is
// empty or malformed.
func Duration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
