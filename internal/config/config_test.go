package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pavel-fokin/filehub/internal/files"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("FILEHUB_ROOT_DIR", "/srv/filehub")

	cfg := &Config{}
	require.NoError(t, env.Parse(cfg))
	require.NoError(t, Validate(cfg))

	assert.Equal(t, "registry.json", cfg.RegistryFile)
	assert.Equal(t, -1, cfg.MaxFileSizeMB)
	assert.True(t, cfg.AllowAbsolutePaths)
	assert.Equal(t, 10*time.Minute, cfg.TicketTTL)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestParseLists(t *testing.T) {
	t.Setenv("FILEHUB_ROOT_DIR", "/srv/filehub")
	t.Setenv("FILEHUB_DEFAULT_ALLOW_GROUPS", "100,200")
	t.Setenv("FILEHUB_DEFAULT_DENY_USERS", "42")
	t.Setenv("FILEHUB_PATH_MAP", "/srv/filehub=/mnt/filehub,/data=/adapter/data")
	t.Setenv("FILEHUB_CALLBACK_API_BASE", "http://127.0.0.1:6185")
	t.Setenv("FILEHUB_HMAC_KEY", "secret")
	t.Setenv("FILEHUB_MAX_FILE_SIZE_MB", "50")

	cfg := &Config{}
	require.NoError(t, env.Parse(cfg))
	require.NoError(t, Validate(cfg))

	s, err := cfg.Settings()
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean("/srv/filehub"), s.RootDir)
	assert.Equal(t, files.IDList{"100", "200"}, s.Defaults.AllowGroups)
	assert.Equal(t, files.IDList{"42"}, s.Defaults.DenyUsers)
	assert.Empty(t, s.Defaults.AllowUsers)
	assert.Equal(t, map[string]string{"/srv/filehub": "/mnt/filehub", "/data": "/adapter/data"}, s.PathMap)
	assert.Equal(t, "http://127.0.0.1:6185", s.CallbackAPIBase)
	assert.Equal(t, 50, s.MaxFileSizeMB)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			RootDir:      "/srv/filehub",
			RegistryFile: "registry.json",
			TicketTTL:    time.Minute,
			DBPath:       "filehub.db",
			Addr:         ":8080",
			MaxBodySize:  1024,
			LogLevel:     "info",
		}
	}

	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr bool
	}{
		{name: "valid", modify: func(c *Config) {}},
		{name: "bad log level", modify: func(c *Config) { c.LogLevel = "loud" }, wantErr: true},
		{name: "bad callback url", modify: func(c *Config) { c.CallbackAPIBase = "not a url"; c.HmacKey = "k" }, wantErr: true},
		{name: "callback without key", modify: func(c *Config) { c.CallbackAPIBase = "http://host:6185" }, wantErr: true},
		{name: "callback with key", modify: func(c *Config) { c.CallbackAPIBase = "http://host:6185"; c.HmacKey = "k" }},
		{name: "size below -1", modify: func(c *Config) { c.MaxFileSizeMB = -2 }, wantErr: true},
		{name: "zero ttl", modify: func(c *Config) { c.TicketTTL = 0 }, wantErr: true},
		{name: "relative path map", modify: func(c *Config) { c.PathMap = map[string]string{"srv": "/mnt"} }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(cfg)
			err := Validate(cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
