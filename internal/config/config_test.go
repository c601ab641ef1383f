package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/storefront/internal/config"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_USER", "postgres")
	t.Setenv("DB_NAME", "storefront")
	t.Setenv("AUTH_JWT_SECRET", "secret")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := config.Load("", "")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, "disable", cfg.Postgres.SSLMode)
	assert.Equal(t, 587, cfg.Mail.SMTPPort)
	assert.Equal(t, 30*time.Second, cfg.Mail.Timeout)
	assert.Equal(t, "storefront.orders", cfg.Rabbit.Exchange)
	assert.False(t, cfg.Orders.StrictTransitions)
	assert.False(t, cfg.Mail.Enabled())
}

func TestLoad_MissingRequired(t *testing.T) {
	for _, key := range []string{"DB_HOST", "DB_PORT", "DB_USER", "DB_NAME", "AUTH_JWT_SECRET"} {
		t.Setenv(key, "")
	}

	_, err := config.Load("", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_HOST")
	assert.Contains(t, err.Error(), "AUTH_JWT_SECRET")
}

func TestLoad_YAMLThenEnvOverride(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MAIL_SMTP_HOST", "smtp.env.example")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	raw := `
app:
  port: "9090"
mail:
  sender_email: shop@example.com
  sender_password: hunter2
  smtp_host: smtp.yaml.example
  admin_email: admin@example.com
orders:
  strict_transitions: true
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	cfg, err := config.Load(path, "")
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.App.Port)
	assert.Equal(t, "smtp.env.example", cfg.Mail.SMTPHost)
	assert.Equal(t, "admin@example.com", cfg.Mail.AdminEmail)
	assert.True(t, cfg.Mail.Enabled())
	assert.True(t, cfg.Orders.StrictTransitions)
}

func TestLoad_GarbledSMTPPortFallsBack(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MAIL_SMTP_PORT", "not-a-port")

	cfg, err := config.Load("", "")
	require.NoError(t, err)
	assert.Equal(t, 587, cfg.Mail.SMTPPort)
}

func TestLoad_DotEnvFile(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("REDIS_ADDR", "")
	require.NoError(t, os.Unsetenv("REDIS_ADDR"))

	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("REDIS_ADDR=localhost:6379\n"), 0o600))

	cfg, err := config.Load("", path)
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}
