package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the single YAML configuration file for the server.
type Config struct {
	Server ServerConfig `yaml:"server"`

	// StoragePath is the unrestricted root administrators browse.
	StoragePath string `yaml:"storage_path" validate:"required"`

	// VisitorStoragePath is the read-only root for visitor sessions.
	// Defaults to StoragePath.
	VisitorStoragePath string `yaml:"visitor_storage_path"`

	// UserFilesPath holds one subdirectory per registered user.
	UserFilesPath string `yaml:"user_files_path"`

	// UsersDBPath is the SQLite file backing users, shares, and logs.
	UsersDBPath string `yaml:"users_db_path"`

	AllowVisitor bool `yaml:"allow_visitor"`

	// DefaultQuotaGB is assigned to newly created users.
	DefaultQuotaGB int64 `yaml:"default_quota_gb" validate:"gte=0"`

	// MaxShareDays caps share duration for non-administrators.
	MaxShareDays int `yaml:"max_share_days" validate:"gte=0"`

	// HeavyWorkers bounds concurrent archive builds and full-file
	// streams so they cannot starve the accept loop.
	HeavyWorkers int64 `yaml:"heavy_workers" validate:"gte=0"`

	Admin AdminConfig `yaml:"admin"`

	LogLevel string `yaml:"log_level"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port" validate:"gte=0,lte=65535"`
}

// AdminConfig seeds the initial administrator account on first start.
type AdminConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Load reads, defaults, and validates a config file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}

	abs, err := filepath.Abs(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("resolving storage_path: %w", err)
	}
	cfg.StoragePath = abs
	if cfg.VisitorStoragePath != "" {
		if abs, err = filepath.Abs(cfg.VisitorStoragePath); err == nil {
			cfg.VisitorStoragePath = abs
		}
	}
	if abs, err = filepath.Abs(cfg.UserFilesPath); err == nil {
		cfg.UserFilesPath = abs
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 5000
	}
	if c.VisitorStoragePath == "" {
		c.VisitorStoragePath = c.StoragePath
	}
	if c.UserFilesPath == "" {
		c.UserFilesPath = "userfiles"
	}
	if c.UsersDBPath == "" {
		c.UsersDBPath = "users.db"
	}
	if c.DefaultQuotaGB == 0 {
		c.DefaultQuotaGB = 5
	}
	if c.MaxShareDays == 0 {
		c.MaxShareDays = 90
	}
	if c.HeavyWorkers == 0 {
		c.HeavyWorkers = 4
	}
	if c.Admin.Username == "" {
		c.Admin.Username = "admin"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
