package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func TestFromViper_Defaults(t *testing.T) {
	cfg, err := fromViper(newViper())
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.App.Environment)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 500, cfg.Pipeline.YieldEvery)
	assert.Equal(t, time.Millisecond, cfg.Pipeline.YieldPause)
	assert.Equal(t, "BMI", cfg.Pipeline.StatementSource)
	assert.True(t, cfg.Database.AutoMigrate)
}

func TestFromViper_Overrides(t *testing.T) {
	v := newViper()
	v.Set("server.allowed_origins", "https://a.example, https://b.example")
	v.Set("pipeline.yield_every", 50)
	v.Set("pipeline.statement_source", "ASCAP")

	cfg, err := fromViper(v)
	require.NoError(t, err)

	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 50, cfg.Pipeline.YieldEvery)
	assert.Equal(t, "ASCAP", cfg.Pipeline.StatementSource)
}

func TestFromViper_RejectsInvalid(t *testing.T) {
	v := newViper()
	v.Set("pipeline.yield_every", 0)
	v.Set("pipeline.statement_source", " ")

	_, err := fromViper(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "yield_every")
	assert.Contains(t, err.Error(), "statement_source")
}

func TestLoad_ReadsEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DATABASE_DSN", "postgres://localhost/royalties")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "postgres://localhost/royalties", cfg.Database.DSN)
}

func TestInitDB_RequiresDSN(t *testing.T) {
	_, err := InitDB(DatabaseConfig{})
	assert.ErrorIs(t, err, ErrNoDSN)
}
