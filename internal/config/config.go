// Package config loads the filehub configuration from the environment.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pavel-fokin/filehub/internal/files"
)

// Config is the process configuration. The core only ever sees the
// files.Settings snapshot derived from it.
type Config struct {
	RootDir          string `env:"FILEHUB_ROOT_DIR" envDefault:"filehub" validate:"required"`
	RegistryFile     string `env:"FILEHUB_REGISTRY_FILE" envDefault:"registry.json" validate:"required"`
	RegistryRequired bool   `env:"FILEHUB_REGISTRY_REQUIRED"`
	WatchRegistry    bool   `env:"FILEHUB_WATCH_REGISTRY" envDefault:"true"`

	CallbackAPIBase    string            `env:"FILEHUB_CALLBACK_API_BASE" validate:"omitempty,url"`
	MaxFileSizeMB      int               `env:"FILEHUB_MAX_FILE_SIZE_MB" envDefault:"-1" validate:"gte=-1"`
	PathMap            map[string]string `env:"FILEHUB_PATH_MAP" envSeparator:"," envKeyValSeparator:"="`
	AllowAbsolutePaths bool              `env:"FILEHUB_ALLOW_ABSOLUTE_PATHS" envDefault:"true"`
	IndexExclude       []string          `env:"FILEHUB_INDEX_EXCLUDE" envSeparator:","`

	DefaultAllowUsers  []string `env:"FILEHUB_DEFAULT_ALLOW_USERS" envSeparator:","`
	DefaultAllowGroups []string `env:"FILEHUB_DEFAULT_ALLOW_GROUPS" envSeparator:","`
	DefaultDenyUsers   []string `env:"FILEHUB_DEFAULT_DENY_USERS" envSeparator:","`
	DefaultDenyGroups  []string `env:"FILEHUB_DEFAULT_DENY_GROUPS" envSeparator:","`

	Addr        string        `env:"FILEHUB_ADDR" envDefault:":8080" validate:"required"`
	AdminToken  string        `env:"FILEHUB_ADMIN_TOKEN"`
	HmacKey     string        `env:"FILEHUB_HMAC_KEY" validate:"required_with=CallbackAPIBase"`
	TicketTTL   time.Duration `env:"FILEHUB_TICKET_TTL" envDefault:"10m" validate:"gt=0"`
	DBPath      string        `env:"FILEHUB_DB_PATH" envDefault:"filehub.db" validate:"required"`
	MaxBodySize int64         `env:"FILEHUB_MAX_BODY_SIZE" envDefault:"1048576" validate:"gt=0"`

	NATSURL     string `env:"FILEHUB_NATS_URL" validate:"omitempty,url"`
	NATSSubject string `env:"FILEHUB_NATS_SUBJECT" envDefault:"filehub.delivery"`

	LogLevel string `env:"FILEHUB_LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
}

var validate = validator.New()

// Load reads an optional .env file, then the environment, and validates
// the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct tags and reports the first failure
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			e := errs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)", e.Namespace(), e.Tag(), e.Value())
		}
		return err
	}
	for host := range cfg.PathMap {
		if !filepath.IsAbs(host) {
			return fmt.Errorf("path map: host prefix %q must be absolute", host)
		}
	}
	return nil
}

// Settings builds the immutable snapshot handed to the core
func (c *Config) Settings() (files.Settings, error) {
	root, err := filepath.Abs(c.RootDir)
	if err != nil {
		return files.Settings{}, fmt.Errorf("failed to resolve root dir: %w", err)
	}

	pathMap := make(map[string]string, len(c.PathMap))
	for k, v := range c.PathMap {
		pathMap[k] = v
	}

	return files.Settings{
		RootDir:            root,
		CallbackAPIBase:    c.CallbackAPIBase,
		MaxFileSizeMB:      c.MaxFileSizeMB,
		PathMap:            pathMap,
		AllowAbsolutePaths: c.AllowAbsolutePaths,
		Defaults: files.Defaults{
			AllowUsers:  files.IDList(c.DefaultAllowUsers),
			AllowGroups: files.IDList(c.DefaultAllowGroups),
			DenyUsers:   files.IDList(c.DefaultDenyUsers),
			DenyGroups:  files.IDList(c.DefaultDenyGroups),
		},
	}, nil
}
