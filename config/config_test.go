package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, int64(10<<20), cfg.Media.MaxUploadBytes)
	assert.Equal(t, "smtp.gmail.com", cfg.SMTP.Server)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Equal(t, "PathPatrol_PotholeReporter/1.0", cfg.Geocode.UserAgent)
	assert.Contains(t, cfg.Complaints.DefaultTags, "Safety Hazard")
}

func TestLoadConfigFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"server":{"port":"9090"},"complaints":{"tag_match":"substring"},"media":{"backend":"s3","s3":{"bucket":"potholes"}}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "substring", cfg.Complaints.TagMatch)
	assert.Equal(t, "first_write", cfg.Complaints.ResolutionPolicy)
	assert.Equal(t, "potholes", cfg.Media.S3.Bucket)
	assert.Equal(t, "data", cfg.Media.DataDir)
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("SENDER_PASSWORD", "secret")
	t.Setenv("RABBITMQ_ENABLED", "true")
	t.Setenv("DB_PASSWORD", "pw")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, 2525, cfg.SMTP.Port)
	assert.True(t, cfg.SMTP.Enabled())
	assert.True(t, cfg.RabbitMQ.Enabled)
	assert.Contains(t, cfg.Database.DSN(), "password=pw")
	assert.Contains(t, cfg.Database.DSN(), "sslmode=disable")
}

func TestLoadConfigRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}
