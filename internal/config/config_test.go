package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// load writes body as the config file, loads it and decodes the result.
func load(t *testing.T, body string) (Config, error) {
	t.Helper()
	t.Cleanup(viper.Reset)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0o644))
	require.NoError(t, Load(dir))
	return Get()
}

func TestGet_Defaults(t *testing.T) {
	cfg, err := load(t, `{}`)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "./pilgrimlogs", cfg.LogsDir)
	assert.Equal(t, SamplerConfig{MinInterval: 3 * time.Second, MaxInterval: 5 * time.Second}, cfg.Sampler)
	assert.Equal(t, 300*time.Millisecond, cfg.Animation.Duration)
	assert.Equal(t, TrackingConfig{RecentPathLimit: 20, OnlineWindow: 2 * time.Minute}, cfg.Tracking)
	assert.Equal(t, 48, cfg.Route.FitPaddingPx)
	assert.Equal(t, 5500*time.Millisecond, cfg.Hint.Highlight)
	assert.Equal(t, float64(17), cfg.View.RecenterZoom)

	assert.Equal(t, "osrm", cfg.Routing.Provider)
	assert.Equal(t, "foot", cfg.Routing.Profile)
	assert.Equal(t, 10*time.Second, cfg.Routing.Timeout)
	assert.True(t, cfg.Routing.Alternatives)
	assert.InDelta(t, 1.3, cfg.Routing.WalkingSpeedMps, 1e-9)

	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, MemoryConfig{OutputDir: "./recordings", CompressOutput: true}, cfg.Storage.Memory)
	assert.Equal(t, 3*time.Minute, cfg.Storage.SQLite.DumpInterval)
	assert.Equal(t, DBConfig{Host: "localhost", Port: "5432", Username: "postgres", Password: "postgres", Database: "pilgrim"}, cfg.DB)
	assert.False(t, cfg.Influx.Enabled)
	assert.Equal(t, "tracks", cfg.Influx.Bucket)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, OTelConfig{ServiceName: "pilgrim-tracker", BatchTimeout: 5 * time.Second, Insecure: true}, cfg.OTel)
	assert.Equal(t, GraylogConfig{Address: "localhost:12201"}, cfg.Graylog)
}

func TestGet_FileOverrides(t *testing.T) {
	cfg, err := load(t, `{
		"logLevel": "debug",
		"sampler": { "minInterval": "1s", "maxInterval": "2s" },
		"db": { "host": "10.0.0.1", "port": "5433" },
		"storage": { "type": "sqlite", "sqlite": { "dumpInterval": "10m" } },
		"otel": { "enabled": true, "endpoint": "collector:4318", "insecure": false }
	}`)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, time.Second, cfg.Sampler.MinInterval)
	assert.Equal(t, "10.0.0.1", cfg.DB.Host)
	assert.Equal(t, "5433", cfg.DB.Port)
	assert.Equal(t, "pilgrim", cfg.DB.Database)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, 10*time.Minute, cfg.Storage.SQLite.DumpInterval)
	assert.True(t, cfg.OTel.Enabled)
	assert.Equal(t, "collector:4318", cfg.OTel.Endpoint)
	assert.False(t, cfg.OTel.Insecure)
}

func TestGet_EnvOverrides(t *testing.T) {
	t.Setenv("PILGRIM_DB_PASSWORD", "from-env")
	t.Setenv("PILGRIM_API_APIKEY", "k-env")

	cfg, err := load(t, `{"db": {"password": "from-file"}}`)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.DB.Password)
	assert.Equal(t, "k-env", cfg.API.APIKey)
}

func TestGet_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"inverted sampler window", `{"sampler": {"minInterval": "5s", "maxInterval": "3s"}}`},
		{"unknown storage", `{"storage": {"type": "mongo"}}`},
		{"unknown routing provider", `{"routing": {"provider": "google"}}`},
		{"bad log level", `{"logLevel": "loud"}`},
		{"stream without url", `{"mapStream": {"enabled": true, "url": ""}}`},
		{"latitude out of range", `{"view": {"defaultLat": 91}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(t, tt.body)
			assert.ErrorContains(t, err, "invalid config")
		})
	}
}

func TestLoad_MissingFileKeepsDefaults(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load(filepath.Join(t.TempDir(), "absent"))
	assert.ErrorContains(t, err, "error reading config file")

	cfg, err := Get()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Type)
}
