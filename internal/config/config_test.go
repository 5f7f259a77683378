package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "localhost", cfg.DB.Host)
	assert.Equal(t,
		"host=localhost user=postgres password= dbname=thumbsup port=5432 sslmode=disable TimeZone=UTC",
		cfg.DB.ConnString(),
	)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("PORT", "9000")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_SSLMODE", "require")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "db.internal", cfg.DB.Host)
	assert.Equal(t, "require", cfg.DB.SSLMode)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadFileAndFlags(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	path := filepath.Join(t.TempDir(), "thumbsup.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: \"7000\"\ndb:\n  name: votes\n"), 0o600))

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("port", "8080", "")
	flags.String("db-dsn", "", "")
	require.NoError(t, flags.Parse([]string{"--db-dsn", "postgres://u@h/db"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)
	assert.Equal(t, "7000", cfg.Port)
	assert.Equal(t, "votes", cfg.DB.Name)
	assert.Equal(t, "postgres://u@h/db", cfg.DB.ConnString())
}

func TestLoadValidates(t *testing.T) {
	t.Setenv("JWT_SECRET", "short")
	_, err := Load("", nil)
	require.Error(t, err)

	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("LOG_LEVEL", "loud")
	_, err = Load("", nil)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	require.Error(t, err)
}
